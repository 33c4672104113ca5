package transcript

import "strings"

// Intent is a coarse guess at what a dictated request asks for.
type Intent string

const (
	IntentQuery   Intent = "query"
	IntentAction  Intent = "action"
	IntentUnknown Intent = "unknown"
)

var (
	actionWords = map[string]struct{}{
		"add": {}, "create": {}, "delete": {}, "remove": {}, "new": {}, "update": {}, "set": {},
	}
	queryWords = map[string]struct{}{
		"show": {}, "what": {}, "how": {}, "when": {}, "list": {}, "display": {}, "get": {}, "chart": {}, "graph": {},
	}
)

// Classify looks at the leading word. Action verbs win over question words.
func Classify(text string) Intent {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return IntentUnknown
	}
	first := strings.TrimRight(fields[0], ",.!?:;")
	first = strings.TrimSuffix(strings.TrimSuffix(first, "'s"), "’s")
	if _, ok := actionWords[first]; ok {
		return IntentAction
	}
	if _, ok := queryWords[first]; ok {
		return IntentQuery
	}
	return IntentUnknown
}
