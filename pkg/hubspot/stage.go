package hubspot

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// stageIDs maps folded sales-stage labels onto default-pipeline stage ids.
var stageIDs = map[string]string{
	"appointmentscheduled":  "appointmentscheduled",
	"qualifiedlead":         "qualifiedtobuy",
	"qualifiedtobuy":        "qualifiedtobuy",
	"qualification":         "qualifiedtobuy",
	"presentationscheduled": "presentationscheduled",
	"proposal":              "presentationscheduled",
	"decisionmakerboughtin": "decisionmakerboughtin",
	"negotiation":           "decisionmakerboughtin",
	"contractsent":          "contractsent",
	"closedwon":             "closedwon",
	"closedlost":            "closedlost",
}

// StageID returns the HubSpot stage id for a conventional stage label such
// as "Qualified Lead" or "Negotiation". Unrecognised labels are returned
// trimmed but otherwise verbatim, so custom pipeline ids pass through.
func StageID(label string) string {
	if id, ok := stageIDs[foldStage(label)]; ok {
		return id
	}
	return strings.TrimSpace(label)
}

func foldStage(label string) string {
	folded := cases.Fold().String(label)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, folded)
}
