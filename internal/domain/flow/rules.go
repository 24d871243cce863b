// Package flow maps flow-metrics activity rows onto the analytics event
// taxonomy.
package flow

import "regexp"

// Destination taxonomy groups.
const (
	GroupConnectDevice = "fxa_connect_device"
	GroupEmail         = "fxa_email"
	GroupEmailFirst    = "fxa_email_first"
	GroupLogin         = "fxa_login"
	GroupRegistration  = "fxa_reg"
	GroupSettings      = "fxa_pref"
	GroupSMS           = "fxa_sms"
)

// engageSubmitGroups resolves the dynamic group for engage/submit rows from
// the flow view name.
var engageSubmitGroups = map[string]string{
	"connect-another-device": GroupConnectDevice,
	"enter-email":            GroupEmailFirst,
	"force-auth":             GroupLogin,
	"install_from":           GroupConnectDevice,
	"signin_from":            GroupConnectDevice,
	"signin":                 GroupLogin,
	"signup":                 GroupRegistration,
	"sms":                    GroupConnectDevice,
}

// viewGroups resolves the dynamic group for view rows.
var viewGroups = map[string]string{
	"connect-another-device": GroupConnectDevice,
	"enter-email":            GroupEmailFirst,
	"force-auth":             GroupLogin,
	"signin":                 GroupLogin,
	"signup":                 GroupRegistration,
	"sms":                    GroupConnectDevice,
}

// connectDeviceFlows names the connect-device entry flow per view.
var connectDeviceFlows = map[string]string{
	"connect-another-device": "cad",
	"install_from":           "store_buttons",
	"signin_from":            "signin",
	"sms":                    "sms",
}

// exactRule maps one literal flow event type.
type exactRule struct {
	flowType string
	group    string
	event    string
}

// fuzzyRule maps a family of flow event types by pattern. When groupFor is
// set the group is resolved from the first capture; a nil result drops the
// row. Static rules set group directly.
type fuzzyRule struct {
	pattern  *regexp.Regexp
	group    string
	groupFor func(category string) string
	event    string
}

// exactRules are consulted before the fuzzy list; order within each list is
// significant because two patterns can match the same literal type.
var exactRules = []exactRule{
	{flowType: "flow.reset-password.submit", group: GroupLogin, event: "forgot_submit"},
}

var fuzzyRules = []fuzzyRule{
	{
		pattern:  regexp.MustCompile(`^flow\.([\w-]+)\.engage$`),
		groupFor: func(category string) string { return engageSubmitGroups[category] },
		event:    "engage",
	},
	{
		pattern: regexp.MustCompile(`^flow\.[\w-]+\.forgot-password$`),
		group:   GroupLogin,
		event:   "forgot_pwd",
	},
	{
		pattern: regexp.MustCompile(`^flow\.[\w-]+\.have-account$`),
		group:   GroupRegistration,
		event:   "have_account",
	},
	{
		pattern: regexp.MustCompile(`^flow\.((?:install|signin)_from)\.\w+$`),
		group:   GroupConnectDevice,
		event:   "engage",
	},
	{
		pattern:  regexp.MustCompile(`^flow\.([\w-]+)\.submit$`),
		groupFor: func(category string) string { return engageSubmitGroups[category] },
		event:    "submit",
	},
	{
		pattern:  regexp.MustCompile(`^flow\.([\w-]+)\.view$`),
		groupFor: func(category string) string { return viewGroups[category] },
		event:    "view",
	},
}

// lookup resolves a flow event type to its (group, event) pair. Exact rules
// win over fuzzy rules; within the fuzzy list the first match wins.
func lookup(flowType string) (group, evt string, ok bool) {
	for _, rule := range exactRules {
		if rule.flowType == flowType {
			return rule.group, rule.event, true
		}
	}

	for _, rule := range fuzzyRules {
		match := rule.pattern.FindStringSubmatch(flowType)
		if match == nil {
			continue
		}

		group := rule.group
		if rule.groupFor != nil {
			var category string
			if len(match) == 2 {
				category = match[1]
			}
			group = rule.groupFor(category)
			if group == "" {
				return "", "", false
			}
		}
		return group, rule.event, true
	}

	return "", "", false
}
