package identifier

import (
	"fmt"
	"strings"

	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

// indianStates maps normalized state and union territory names to their two-letter codes
var indianStates = map[string]string{
	"andaman and nicobar islands":              "AN",
	"andhra pradesh":                           "AP",
	"arunachal pradesh":                        "AR",
	"assam":                                    "AS",
	"bihar":                                    "BR",
	"chandigarh":                               "CH",
	"chhattisgarh":                             "CG",
	"dadra and nagar haveli and daman and diu": "DH",
	"delhi":                                    "DL",
	"goa":                                      "GA",
	"gujarat":                                  "GJ",
	"haryana":                                  "HR",
	"himachal pradesh":                         "HP",
	"jammu and kashmir":                        "JK",
	"jharkhand":                                "JH",
	"karnataka":                                "KA",
	"kerala":                                   "KL",
	"ladakh":                                   "LA",
	"lakshadweep":                              "LD",
	"madhya pradesh":                           "MP",
	"maharashtra":                              "MH",
	"manipur":                                  "MN",
	"meghalaya":                                "ML",
	"mizoram":                                  "MZ",
	"nagaland":                                 "NL",
	"odisha":                                   "OD",
	"puducherry":                               "PY",
	"punjab":                                   "PB",
	"rajasthan":                                "RJ",
	"sikkim":                                   "SK",
	"tamil nadu":                               "TN",
	"telangana":                                "TS",
	"tripura":                                  "TR",
	"uttar pradesh":                            "UP",
	"uttarakhand":                              "UK",
	"west bengal":                              "WB",
}

// stateAliases covers older and colloquial names still found in profiles
var stateAliases = map[string]string{
	"orissa":                 "OD",
	"pondicherry":            "PY",
	"uttaranchal":            "UK",
	"nct of delhi":           "DL",
	"new delhi":              "DL",
	"andaman":                "AN",
	"daman and diu":          "DH",
	"dadra and nagar haveli": "DH",
}

var stateCodes = func() map[string]bool {
	codes := make(map[string]bool, len(indianStates))
	for _, code := range indianStates {
		codes[code] = true
	}
	return codes
}()

func normalizeStateName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "&", " and ")
	return strings.Join(strings.Fields(name), " ")
}

// IndianStateCode resolves a state or union territory given by name or by code
func IndianStateCode(state string) (string, bool) {
	if code := strings.ToUpper(strings.TrimSpace(state)); stateCodes[code] {
		return code, true
	}
	normalized := normalizeStateName(state)
	if code, ok := indianStates[normalized]; ok {
		return code, true
	}
	code, ok := stateAliases[normalized]
	return code, ok
}

// StateCode returns the state segment of a vendor code for the counterparty.
// Domestic profiles use the Indian state table; others use their free-text state upper-cased.
func StateCode(counterparty *entity.Counterparty) (string, error) {
	if counterparty == nil {
		return "", workflow.ErrCounterpartyRequired
	}

	if counterparty.IsDomestic() {
		code, ok := IndianStateCode(counterparty.IndianState)
		if !ok {
			return "", fmt.Errorf("%w: %q", workflow.ErrStateNotResolvable, counterparty.IndianState)
		}
		return code, nil
	}

	state := strings.ToUpper(strings.Join(strings.Fields(counterparty.ForeignState), " "))
	state = strings.ReplaceAll(state, "/", "-")
	if state == "" {
		return "", fmt.Errorf("%w: foreign counterparty has no state", workflow.ErrStateNotResolvable)
	}
	return state, nil
}
