package oracle

import (
	"fmt"
	"strings"

	"github.com/hairizuanbinnoorazman/ui-sentinel/observation"
)

// Per-field caps for untrusted page content.
const (
	maxElementText = 80
	maxAttribute   = 60
	maxConsoleText = 300
	maxURL         = 200
	maxHistory     = 10
	maxTested      = 40
)

// Input is everything the oracle is told about the current iteration.
type Input struct {
	StartURL    string
	Observation observation.Observation
	Screenshot  []byte
	// History holds short descriptions of recent steps, oldest first.
	History []string
	// Tested lists target keys that were already clicked in this run.
	Tested []string
	// HasCandidate is the noise filter's verdict on the observation.
	HasCandidate bool
}

const systemPrompt = `You are an exploratory QA engineer testing a single web page through a real browser.
Each turn you receive the page's interactive elements, recent console messages and failed network requests.
Choose ONE next action and decide whether anything you see is a genuine product defect.

Rules:
- Only "click" and "none" are valid actions. Prefer elements that were not tested yet.
- Target elements by "ref" from the element list whenever possible.
- After a click that leaves the page the agent returns to the start page automatically.
- Report a defect only for real product bugs: uncaught JavaScript errors, failing API calls (5xx),
  broken UI behaviour. Do not report 404s for static assets, analytics or ad traffic, browser
  extension messages, or anything caused by the test environment.

Reply with a single JSON object and nothing else:
{"action": "click" | "none",
 "target": {"ref": <number>, "text": "<visible text>", "id": "<element id>", "selector": "<css selector>"} | null,
 "reason": "<one sentence>",
 "defect": {"title": "<short summary>", "description": "<what happened>", "severity": "blocker|critical|major|minor|trivial", "pattern": "<the error message or failing URL>"} | null}`

// SystemPrompt returns the fixed instruction sent with every request.
func SystemPrompt() string {
	return systemPrompt
}

// BuildPrompt renders the per-iteration prompt. All page-derived content is sanitized and
// wrapped in XML-style sections so it cannot be mistaken for instructions.
func BuildPrompt(in Input) string {
	var b strings.Builder
	obs := in.Observation

	fmt.Fprintf(&b, "<start_url>%s</start_url>\n", SanitizeText(in.StartURL, maxURL))
	fmt.Fprintf(&b, "<current_url>%s</current_url>\n", SanitizeText(obs.URL, maxURL))
	if obs.Partial {
		b.WriteString("<note>The page snapshot is incomplete; the page may still be loading.</note>\n")
	}

	tested := make(map[string]bool, len(in.Tested))
	for _, key := range in.Tested {
		tested[key] = true
	}
	b.WriteString("<elements>\n")
	for _, el := range obs.DOMElements {
		b.WriteString(formatElement(el, tested[el.Key()]))
		b.WriteByte('\n')
	}
	b.WriteString("</elements>\n")

	b.WriteString("<console>\n")
	for _, e := range obs.ConsoleEvents {
		fmt.Fprintf(&b, "[%s] %s\n", SanitizeText(e.Level, 16), SanitizeText(e.Text, maxConsoleText))
	}
	b.WriteString("</console>\n")

	b.WriteString("<network_failures>\n")
	for _, f := range obs.NetworkFailures {
		line := fmt.Sprintf("%d %s", f.Status, SanitizeText(f.URL, maxURL))
		if f.Method != "" {
			line = SanitizeText(f.Method, 10) + " " + line
		}
		if f.ErrorText != "" {
			line += " (" + SanitizeText(f.ErrorText, maxAttribute) + ")"
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("</network_failures>\n")

	if in.HasCandidate {
		b.WriteString("<anomaly>Errors above survived noise filtering. Decide whether they are a product defect.</anomaly>\n")
	}

	if len(in.Tested) > 0 {
		tested := in.Tested
		if len(tested) > maxTested {
			tested = tested[len(tested)-maxTested:]
		}
		b.WriteString("<already_tested>\n")
		for _, key := range tested {
			b.WriteString(SanitizeText(key, maxAttribute))
			b.WriteByte('\n')
		}
		b.WriteString("</already_tested>\n")
	}

	if len(in.History) > 0 {
		history := in.History
		if len(history) > maxHistory {
			history = history[len(history)-maxHistory:]
		}
		b.WriteString("<history>\n")
		for _, step := range history {
			b.WriteString(SanitizeText(step, maxConsoleText))
			b.WriteByte('\n')
		}
		b.WriteString("</history>\n")
	}

	b.WriteString("Respond with the JSON object only.")
	return b.String()
}

func formatElement(el observation.DOMElement, tested bool) string {
	parts := []string{fmt.Sprintf("ref=%d", el.Ref), "<" + SanitizeText(el.Tag, 16) + ">"}
	if el.Text != "" {
		parts = append(parts, fmt.Sprintf("%q", SanitizeText(el.Text, maxElementText)))
	}
	attr := func(name, value string) {
		if value != "" {
			parts = append(parts, name+"="+SanitizeText(value, maxAttribute))
		}
	}
	attr("id", el.ID)
	attr("class", el.Class)
	attr("href", el.Href)
	attr("role", el.Role)
	attr("aria-label", el.AriaLabel)
	if el.Disabled {
		parts = append(parts, "disabled")
	}
	if tested {
		parts = append(parts, "tested")
	}
	return strings.Join(parts, " ")
}
