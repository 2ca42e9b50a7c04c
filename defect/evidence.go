package defect

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/observation"
)

const (
	maxConsoleLines = 200
	maxNetworkLines = 100
)

// Evidence is the page state captured when the defect was observed.
type Evidence struct {
	URL        string
	Screenshot []byte
	Console    []observation.ConsoleEvent
	Network    []observation.NetworkFailure
	// Steps are the recent agent actions, oldest first.
	Steps      []string
	CapturedAt time.Time
}

// Attachment is an uploaded evidence artifact.
type Attachment struct {
	Name string
	Link string
}

func consoleLog(ev Evidence) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Console log\n# URL: %s\n# Date: %s\n\n", ev.URL, ev.CapturedAt.Format(time.RFC3339))
	for _, e := range tailOf(ev.Console, maxConsoleLines) {
		fmt.Fprintf(&b, "[%s] %s\n", e.Level, e.Text)
	}
	return b.Bytes()
}

func networkLog(ev Evidence) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Network failures\n# URL: %s\n# Date: %s\n\n", ev.URL, ev.CapturedAt.Format(time.RFC3339))
	for _, f := range tailOf(ev.Network, maxNetworkLines) {
		b.WriteString(networkLine(f))
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func networkLine(f observation.NetworkFailure) string {
	status := fmt.Sprint(f.Status)
	if f.Status == 0 {
		status = "ERR"
	}
	line := strings.TrimSpace(fmt.Sprintf("%s %s %s", status, f.Method, f.URL))
	if f.ErrorText != "" {
		line += " (" + f.ErrorText + ")"
	}
	return line
}

// uploadEvidence stores the artifacts under runs/<run>/<signature prefix>/. Individual upload
// failures are logged and skipped.
func (r *Reporter) uploadEvidence(ctx context.Context, sig string, ev Evidence) []Attachment {
	if r.store == nil {
		return nil
	}
	dir := path.Join("runs", r.opts.RunID, sig[:16])

	type artifact struct {
		name, contentType string
		data              []byte
	}
	artifacts := []artifact{
		{"screenshot.png", "image/png", ev.Screenshot},
		{"console.log", "text/plain; charset=utf-8", consoleLog(ev)},
		{"network.log", "text/plain; charset=utf-8", networkLog(ev)},
	}

	var out []Attachment
	for _, a := range artifacts {
		if len(a.data) == 0 {
			continue
		}
		key := path.Join(dir, a.name)
		if err := r.store.Upload(ctx, key, a.contentType, bytes.NewReader(a.data)); err != nil {
			r.logger.Warn(ctx, "evidence upload failed", map[string]interface{}{"artifact": key, "error": err.Error()})
			continue
		}
		link, err := r.store.GetURL(ctx, key)
		if err != nil {
			r.logger.Warn(ctx, "evidence link failed", map[string]interface{}{"artifact": key, "error": err.Error()})
			link = key
		}
		out = append(out, Attachment{Name: a.name, Link: link})
	}
	return out
}

func tailOf[T any](items []T, n int) []T {
	if len(items) > n {
		return items[len(items)-n:]
	}
	return items
}
