package agent

import (
	"fmt"
	"strings"
)

// Classification markers the model is asked to emit.
const (
	MarkerRespond = "[RESPOND]"
	MarkerIgnore  = "[IGNORE]"
)

// DecisionKind is the outcome of a respond/ignore classification
type DecisionKind int

const (
	Ignore DecisionKind = iota
	Respond
	// Unparseable means the model answered with neither marker.
	Unparseable
)

func (k DecisionKind) String() string {
	switch k {
	case Respond:
		return "respond"
	case Ignore:
		return "ignore"
	case Unparseable:
		return "unparseable"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// Decision is a classification result. Raw holds the model's answer.
type Decision struct {
	Kind DecisionKind
	Raw  string
}

// Responds reports whether a reply should be generated. Only an explicit
// respond marker counts; malformed or empty answers never trigger a reply.
func (d Decision) Responds() bool {
	return d.Kind == Respond
}

// ParseDecision maps a raw model answer to a Decision. Markers are matched
// case-insensitively and [RESPOND] wins when both are present.
func ParseDecision(raw string) Decision {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, MarkerRespond):
		return Decision{Kind: Respond, Raw: raw}
	case strings.Contains(upper, MarkerIgnore):
		return Decision{Kind: Ignore, Raw: raw}
	default:
		return Decision{Kind: Unparseable, Raw: raw}
	}
}
