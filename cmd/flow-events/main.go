// Command flow-events converts a tab-separated flow-metrics activity export
// on stdin (or a file) into JSON analytics events on stdout, one per line,
// ready for publishing to the event topic.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/mozilla/fxa-amplitude-send/internal/flowevents"
	"github.com/mozilla/fxa-amplitude-send/pkg/logger"
)

func main() {
	input := flag.String("input", "-", "Activity rows file; - reads stdin")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()
	ctx := context.Background()

	in := os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatal(ctx, "failed to open input", logger.Error(err))
		}
		defer f.Close()
		in = f
	}

	stats, err := flowevents.Convert(in, os.Stdout)
	if err != nil {
		log.Fatal(ctx, "conversion failed", logger.Error(err))
	}

	log.Info(ctx, "activity rows converted",
		logger.Int("rows", stats.Rows),
		logger.Int("emitted", stats.Emitted),
		logger.Int("dropped", stats.Dropped),
		logger.Int("malformed", stats.Malformed),
	)
}
