package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrUnparseable is returned by ParseDecision when no decision object can be found.
	ErrUnparseable = errors.New("oracle: response is not a decision")

	fenceOpen  = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*")
	fenceClose = regexp.MustCompile("(?m)```\\s*$")
	refPattern = regexp.MustCompile(`^\[?(?:ref|data-agent-ref)\s*[:=]\s*"?(\d+)"?\]?$`)
)

// rawDecision accepts both the current reply format and the older flat one, where the target
// was a single "selector" string and the defect a "possible_bug" sentence.
type rawDecision struct {
	Action      string          `json:"action"`
	Target      json.RawMessage `json:"target"`
	Selector    string          `json:"selector"`
	Reason      string          `json:"reason"`
	Defect      *rawDefect      `json:"defect"`
	PossibleBug string          `json:"possible_bug"`
}

type rawDefect struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Pattern     string `json:"pattern"`
}

// ParseDecision extracts a Decision from free-form model output. It accepts bare JSON, JSON
// inside a markdown fence, or a JSON object embedded in prose.
func ParseDecision(text string) (Decision, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return NoAction(), ErrUnparseable
	}

	cleaned := fenceOpen.ReplaceAllString(text, "")
	cleaned = strings.TrimSpace(fenceClose.ReplaceAllString(cleaned, ""))

	var raw rawDecision
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil || raw.Action == "" {
		obj, ok := extractObject(text, "action")
		if !ok {
			return NoAction(), ErrUnparseable
		}
		raw = rawDecision{}
		if err := json.Unmarshal([]byte(obj), &raw); err != nil {
			return NoAction(), fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		if raw.Action == "" {
			return NoAction(), ErrUnparseable
		}
	}

	return raw.decision(), nil
}

func (r rawDecision) decision() Decision {
	d := Decision{Action: ActionNone, Reason: strings.TrimSpace(r.Reason)}

	switch strings.ToLower(strings.TrimSpace(r.Action)) {
	case "click":
		target := r.target()
		if target != nil {
			d.Action = ActionClick
			d.Target = target
		}
	}

	switch {
	case r.Defect != nil && strings.TrimSpace(r.Defect.Title) != "":
		d.Defect = &Defect{
			Title:       strings.TrimSpace(r.Defect.Title),
			Description: strings.TrimSpace(r.Defect.Description),
			Severity:    ParseSeverity(r.Defect.Severity),
			Pattern:     strings.TrimSpace(r.Defect.Pattern),
		}
	case strings.TrimSpace(r.PossibleBug) != "":
		bug := strings.TrimSpace(r.PossibleBug)
		d.Defect = &Defect{
			Title:       firstLine(bug, 120),
			Description: bug,
			Severity:    SeverityMajor,
		}
	}

	return d
}

func (r rawDecision) target() *Target {
	if len(r.Target) > 0 && string(r.Target) != "null" {
		var t Target
		if err := json.Unmarshal(r.Target, &t); err == nil {
			t.Selector = strings.TrimSpace(t.Selector)
			t.Text = strings.TrimSpace(t.Text)
			t.ID = strings.TrimSpace(t.ID)
			if !t.Empty() {
				return &t
			}
		}
		var s string
		if err := json.Unmarshal(r.Target, &s); err == nil {
			return targetFromSelector(s)
		}
	}
	return targetFromSelector(r.Selector)
}

// targetFromSelector interprets a flat selector string: "ref:12", "#submit", a CSS selector,
// or otherwise the element's visible text.
func targetFromSelector(s string) *Target {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if m := refPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return &Target{Ref: n}
		}
	}
	if strings.HasPrefix(s, "#") && !strings.ContainsAny(s[1:], " .[>:") {
		return &Target{ID: s[1:]}
	}
	if strings.HasPrefix(s, ".") || strings.HasPrefix(s, "[") || strings.ContainsAny(s, "#[>") {
		return &Target{Selector: s}
	}
	return &Target{Text: s}
}

// extractObject returns the first balanced JSON object in text that mentions key.
func extractObject(text, key string) (string, bool) {
	quoted := `"` + key + `"`
	for start := strings.IndexByte(text, '{'); start >= 0; {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if strings.Contains(candidate, quoted) {
						return candidate, true
					}
					i = len(text)
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func firstLine(s string, limit int) string {
	if i := strings.IndexAny(s, "\n.!?"); i > 0 {
		s = s[:i]
	}
	return truncate(strings.TrimSpace(s), limit)
}
