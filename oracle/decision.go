package oracle

import (
	"fmt"
	"strings"
)

// Action is what the agent should do on the page next.
type Action string

const (
	ActionClick Action = "click"
	ActionNone  Action = "none"
)

// Severity of a reported defect.
type Severity string

const (
	SeverityBlocker  Severity = "blocker"
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityTrivial  Severity = "trivial"
)

// ParseSeverity maps free-form severity text onto a Severity. Unknown or empty values map to
// SeverityMajor.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blocker", "highest":
		return SeverityBlocker
	case "critical", "high", "критический":
		return SeverityCritical
	case "minor", "low", "некритический":
		return SeverityMinor
	case "trivial", "lowest":
		return SeverityTrivial
	default:
		return SeverityMajor
	}
}

// Target identifies an element to act on. Ref is preferred when set; it refers to the
// data-agent-ref assigned in the most recent DOM snapshot.
type Target struct {
	Ref      int    `json:"ref,omitempty"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	ID       string `json:"id,omitempty"`
}

// Empty reports whether the target carries no way to find an element.
func (t Target) Empty() bool {
	return t.Ref <= 0 && t.Selector == "" && t.Text == "" && t.ID == ""
}

// Key is a stable identifier used to remember which targets were already exercised.
func (t Target) Key() string {
	switch {
	case t.ID != "":
		return "#" + t.ID
	case t.Selector != "":
		return t.Selector
	case t.Text != "":
		return "text:" + strings.ToLower(t.Text)
	case t.Ref > 0:
		return fmt.Sprintf("ref:%d", t.Ref)
	}
	return ""
}

func (t Target) String() string {
	return t.Key()
}

// Defect is an anomaly the oracle judged to be a product bug.
type Defect struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity,omitempty"`
	// Pattern is the short recurring symptom, such as the error message. It feeds the
	// deduplication signature together with the title.
	Pattern string `json:"pattern,omitempty"`
}

// Decision is the oracle's answer for one iteration.
type Decision struct {
	Action Action  `json:"action"`
	Target *Target `json:"target,omitempty"`
	Reason string  `json:"reason,omitempty"`
	Defect *Defect `json:"defect,omitempty"`
}

// NoAction is the decision used whenever the oracle's answer cannot be used.
func NoAction() Decision {
	return Decision{Action: ActionNone}
}
