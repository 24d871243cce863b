package flow

import (
	"github.com/mozilla/fxa-amplitude-send/internal/domain/event"
)

// Row is one flow-metrics activity record.
type Row struct {
	Timestamp   int64
	Type        string
	FlowID      string
	FlowTime    int64
	UABrowser   string
	UAVersion   string
	UAOS        string
	Context     string
	Entrypoint  string
	Migration   string
	Service     string
	UtmCampaign string
	UtmContent  string
	UtmMedium   string
	UtmSource   string
	UtmTerm     string
	Locale      string
	UID         string
}

// Transform maps a flow row onto an analytics event. Rows with no matching
// rule, or whose dynamic group cannot be resolved, are dropped (ok=false).
// The produced event carries the op marker used by the double-encoded
// upstream hop that the normalizer unwraps.
func Transform(row Row) (event.Event, bool) {
	group, evt, ok := lookup(row.Type)
	if !ok {
		return nil, false
	}

	ev := event.Event{
		"op":                     "amplitudeEvent",
		event.KeyTime:            row.Timestamp,
		event.KeyEventType:       group + " - " + evt,
		event.KeySessionID:       row.Timestamp - row.FlowTime,
		event.KeyUserID:          row.UID,
		event.KeyEventProperties: eventProperties(group, row),
		event.KeyUserProperties:  userProperties(group, row),
		"language":               row.Locale,
	}
	if row.UAOS != "" {
		ev["os_name"] = row.UAOS
	}
	return ev, true
}

// eventProperties builds the per-group event properties.
func eventProperties(group string, row Row) map[string]any {
	props := map[string]any{}
	switch group {
	case GroupConnectDevice:
		if flow, ok := connectDeviceFlows[category(row.Type)]; ok {
			props["connect_device_flow"] = flow
		}
	case GroupEmailFirst, GroupLogin, GroupRegistration:
		mapService(props, row)
	}
	return props
}

// userProperties builds the per-group user properties plus the browser and
// entrypoint fields shared by every group.
func userProperties(group string, row Row) map[string]any {
	props := map[string]any{}
	if row.UABrowser != "" {
		props["ua_browser"] = row.UABrowser
		props["ua_version"] = row.UAVersion
	}
	if row.Entrypoint != "" {
		props["entrypoint"] = row.Entrypoint
	}
	if row.FlowID != "" {
		props["flow_id"] = row.FlowID
	}

	switch group {
	case GroupEmailFirst, GroupLogin, GroupRegistration:
		mapUtm(props, row)
	}
	return props
}

// mapService resolves the service name and oauth client id. Anything other
// than sync is an oauth relier we have no display name for.
func mapService(props map[string]any, row Row) {
	if row.Service == "" {
		return
	}
	if row.Service == "sync" {
		props["service"] = "sync"
		return
	}
	props["service"] = "undefined_oauth"
	props["oauth_client_id"] = row.Service
}

func mapUtm(props map[string]any, row Row) {
	props["utm_campaign"] = row.UtmCampaign
	props["utm_content"] = row.UtmContent
	props["utm_medium"] = row.UtmMedium
	props["utm_source"] = row.UtmSource
	props["utm_term"] = row.UtmTerm
}

// category extracts the flow view name from a dotted flow event type,
// e.g. "flow.signin.engage" -> "signin".
func category(flowType string) string {
	const prefix = "flow."
	if len(flowType) <= len(prefix) {
		return ""
	}
	rest := flowType[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '.' {
			return rest[:i]
		}
	}
	return rest
}
