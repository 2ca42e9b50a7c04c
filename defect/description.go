package defect

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
)

const (
	maxProblemRunes   = 4000
	maxSteps          = 20
	maxInlineConsole  = 15
	maxInlineNetwork  = 15
	maxTitleRunes     = 255
	defaultTitleStart = "Problem detected on "
)

// buildTitle prefixes the defect title and caps it at the tracker's summary limit.
func buildTitle(prefix string, d oracle.Defect, pageURL string) string {
	title := strings.Join(strings.Fields(d.Title), " ")
	if title == "" {
		host := "page"
		if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
			host = u.Host
		}
		title = defaultTitleStart + host
	}
	if prefix != "" && !strings.HasPrefix(title, prefix) {
		title = prefix + " " + title
	}
	r := []rune(title)
	if len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes])
	}
	return title
}

type descriptionInput struct {
	Defect      oracle.Defect
	StartURL    string
	Backend     string
	Evidence    Evidence
	Attachments []Attachment
}

// buildDescription renders the ticket body in Jira wiki markup, which GitHub shows as plain text
// without losing structure.
func buildDescription(in descriptionInput) string {
	var b strings.Builder

	problem := strings.TrimSpace(in.Defect.Description)
	if problem == "" {
		problem = in.Defect.Title
	}
	if problem == "" {
		problem = "A problem was detected during automated exploration."
	}
	b.WriteString("h3. Problem\n{quote}\n")
	b.WriteString(truncateRunes(problem, maxProblemRunes))
	b.WriteString("\n{quote}\n")
	if in.Defect.Pattern != "" {
		fmt.Fprintf(&b, "Symptom: {noformat}%s{noformat}\n", in.Defect.Pattern)
	}
	fmt.Fprintf(&b, "Severity: %s\n\n", in.Defect.Severity)

	b.WriteString("h3. Steps to reproduce\n")
	fmt.Fprintf(&b, "# Open %s\n", in.StartURL)
	steps := tailOf(in.Evidence.Steps, maxSteps)
	if len(steps) == 0 {
		b.WriteString("# Wait for the page to load\n# Watch the browser console and network activity\n")
	}
	for _, s := range steps {
		fmt.Fprintf(&b, "# %s\n", s)
	}
	b.WriteString("\n")

	b.WriteString("h3. Expected result\nNo errors in the console or network requests beyond expected ones. Content renders correctly.\n\n")
	b.WriteString("h3. Actual result\n")
	b.WriteString(actualResult(in.Evidence))
	b.WriteString("\n\n")

	b.WriteString("h3. Environment\n")
	fmt.Fprintf(&b, "* URL: %s\n", in.Evidence.URL)
	fmt.Fprintf(&b, "* Date: %s\n", in.Evidence.CapturedAt.UTC().Format(time.RFC3339))
	if in.Backend != "" {
		fmt.Fprintf(&b, "* Decision backend: %s\n", in.Backend)
	}
	b.WriteString("\n")

	if len(in.Attachments) > 0 {
		b.WriteString("h3. Evidence\n")
		for _, a := range in.Attachments {
			fmt.Fprintf(&b, "* %s: %s\n", a.Name, a.Link)
		}
		b.WriteString("\n")
	}

	if len(in.Evidence.Console) > 0 {
		b.WriteString("h3. Console\n{noformat}\n")
		for _, e := range tailOf(in.Evidence.Console, maxInlineConsole) {
			fmt.Fprintf(&b, "[%s] %s\n", e.Level, truncateRunes(e.Text, 300))
		}
		b.WriteString("{noformat}\n")
	}
	if len(in.Evidence.Network) > 0 {
		b.WriteString("h3. Network failures\n{noformat}\n")
		for _, f := range tailOf(in.Evidence.Network, maxInlineNetwork) {
			b.WriteString(truncateRunes(networkLine(f), 300))
			b.WriteByte('\n')
		}
		b.WriteString("{noformat}\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func actualResult(ev Evidence) string {
	var errs int
	for _, e := range ev.Console {
		if e.IsError() {
			errs++
		}
	}
	switch {
	case errs > 0 && len(ev.Network) > 0:
		return fmt.Sprintf("%d console error(s) and %d failed network request(s).", errs, len(ev.Network))
	case errs > 0:
		return fmt.Sprintf("%d console error(s).", errs)
	case len(ev.Network) > 0:
		return fmt.Sprintf("%d failed network request(s).", len(ev.Network))
	}
	return "The page behaves differently from what the user is led to expect."
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
