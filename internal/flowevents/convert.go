// Package flowevents converts tab-separated flow-metrics activity exports
// into analytics events ready for publishing.
package flowevents

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mozilla/fxa-amplitude-send/internal/domain/flow"
)

// columnCount is the number of tab-separated fields per activity row.
const columnCount = 18

// Stats summarizes one conversion run.
type Stats struct {
	Rows      int
	Emitted   int
	Dropped   int
	Malformed int
}

// ParseRow decodes one tab-separated activity line. Columns, in order:
// timestamp, type, flow_id, flow_time, ua_browser, ua_version, ua_os,
// context, entrypoint, migration, service, utm_campaign, utm_content,
// utm_medium, utm_source, utm_term, locale, uid.
func ParseRow(line string) (flow.Row, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != columnCount {
		return flow.Row{}, fmt.Errorf("%w: got %d columns, want %d", ErrMalformedRow, len(fields), columnCount)
	}

	timestamp, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return flow.Row{}, fmt.Errorf("%w: timestamp: %w", ErrMalformedRow, err)
	}
	flowTime, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return flow.Row{}, fmt.Errorf("%w: flow_time: %w", ErrMalformedRow, err)
	}

	return flow.Row{
		Timestamp:   timestamp,
		Type:        fields[1],
		FlowID:      fields[2],
		FlowTime:    flowTime,
		UABrowser:   fields[4],
		UAVersion:   fields[5],
		UAOS:        fields[6],
		Context:     fields[7],
		Entrypoint:  fields[8],
		Migration:   fields[9],
		Service:     fields[10],
		UtmCampaign: fields[11],
		UtmContent:  fields[12],
		UtmMedium:   fields[13],
		UtmSource:   fields[14],
		UtmTerm:     fields[15],
		Locale:      fields[16],
		UID:         fields[17],
	}, nil
}

// Convert reads activity rows from in and writes one JSON event per line to
// out. Rows with no matching rule are dropped; rows that do not parse are
// counted and skipped. Blank lines are ignored.
func Convert(in io.Reader, out io.Writer) (Stats, error) {
	var stats Stats

	scanner := bufio.NewScanner(in)
	writer := bufio.NewWriter(out)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		stats.Rows++

		row, err := ParseRow(line)
		if err != nil {
			stats.Malformed++
			continue
		}

		ev, ok := flow.Transform(row)
		if !ok {
			stats.Dropped++
			continue
		}

		encoded, err := json.Marshal(ev)
		if err != nil {
			return stats, fmt.Errorf("encode event: %w", err)
		}
		if _, err := writer.Write(append(encoded, '\n')); err != nil {
			return stats, fmt.Errorf("write event: %w", err)
		}
		stats.Emitted++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read rows: %w", err)
	}
	return stats, writer.Flush()
}
