package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hairizuanbinnoorazman/ui-sentinel/observation"
)

const confirmSystemPrompt = `You review defects reported by an automated website tester before they are filed.
Many reports are false alarms: third-party scripts, analytics, ads, chat widgets, cookie banners,
slow loading or the tester misreading the page. Confirm only a visible or functional product
problem a real user would hit.

Reply with one JSON object and nothing else:
{"confirmed": true or false, "reason": "one sentence"}`

// ConfirmInput is the evidence for a second look at a reported defect.
type ConfirmInput struct {
	Defect     Defect
	URL        string
	Console    []observation.ConsoleEvent
	Network    []observation.NetworkFailure
	Screenshot []byte
}

// Confirmation is the verdict of the second look.
type Confirmation struct {
	Confirmed bool
	Reason    string
}

type rawConfirmation struct {
	Confirmed *bool  `json:"confirmed"`
	Reason    string `json:"reason"`
}

// Confirm asks the backend whether d is really a product defect.
//
// An unparseable reply confirms the defect, so a confused model never hides a real one. Backend
// failures are returned wrapped in ErrBackendUnavailable.
func (c *Client) Confirm(ctx context.Context, in ConfirmInput) (Confirmation, error) {
	req := Request{
		System: confirmSystemPrompt,
		Prompt: BuildConfirmPrompt(in),
	}
	if c.backend.SupportsVision() && len(in.Screenshot) > 0 {
		req.Screenshot = in.Screenshot
	}

	text, err := c.complete(ctx, req)
	if err != nil {
		return Confirmation{}, err
	}

	verdict, err := ParseConfirmation(text)
	if err != nil {
		c.logger.Warn(ctx, "could not parse confirmation, keeping defect", map[string]interface{}{
			"error": err.Error(),
			"raw":   truncate(text, 2000),
		})
		return Confirmation{Confirmed: true}, nil
	}

	c.logger.Debug(ctx, "defect reviewed", map[string]interface{}{
		"title":     in.Defect.Title,
		"confirmed": verdict.Confirmed,
		"reason":    verdict.Reason,
	})
	return verdict, nil
}

// BuildConfirmPrompt renders the defect and its evidence. Page-derived text is sanitized.
func BuildConfirmPrompt(in ConfirmInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<page_url>%s</page_url>\n", SanitizeText(in.URL, maxURL))
	b.WriteString("<defect>\n")
	fmt.Fprintf(&b, "title: %s\n", SanitizeText(in.Defect.Title, maxConsoleText))
	if in.Defect.Description != "" {
		fmt.Fprintf(&b, "description: %s\n", SanitizeText(in.Defect.Description, maxConsoleText))
	}
	if in.Defect.Pattern != "" {
		fmt.Fprintf(&b, "pattern: %s\n", SanitizeText(in.Defect.Pattern, maxAttribute))
	}
	b.WriteString("</defect>\n")

	b.WriteString("<console>\n")
	for _, e := range in.Console {
		fmt.Fprintf(&b, "[%s] %s\n", SanitizeText(e.Level, 16), SanitizeText(e.Text, maxConsoleText))
	}
	b.WriteString("</console>\n")

	b.WriteString("<network_failures>\n")
	for _, f := range in.Network {
		line := fmt.Sprintf("%d %s", f.Status, SanitizeText(f.URL, maxURL))
		if f.ErrorText != "" {
			line += " (" + SanitizeText(f.ErrorText, maxAttribute) + ")"
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("</network_failures>\n")

	b.WriteString("Is this a real product defect? Respond with the JSON object only.")
	return b.String()
}

// ParseConfirmation extracts the verdict from model output. A reply without a "confirmed" field
// is ErrUnparseable.
func ParseConfirmation(text string) (Confirmation, error) {
	obj, ok := extractObject(text, "confirmed")
	if !ok {
		return Confirmation{}, ErrUnparseable
	}
	var raw rawConfirmation
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Confirmation{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if raw.Confirmed == nil {
		return Confirmation{}, ErrUnparseable
	}
	return Confirmation{Confirmed: *raw.Confirmed, Reason: strings.TrimSpace(raw.Reason)}, nil
}
