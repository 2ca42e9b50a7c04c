package observation

import (
	"strconv"
	"strings"
	"time"
)

// Console levels reported by the browser adapter. Levels outside this list are passed through
// unchanged.
const (
	LevelLog       = "log"
	LevelInfo      = "info"
	LevelWarning   = "warning"
	LevelError     = "error"
	LevelException = "exception"
	LevelAssert    = "assert"
)

// ConsoleEvent is a console message or uncaught exception seen on the page.
type ConsoleEvent struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// IsError reports whether the event is an error-class message.
func (e ConsoleEvent) IsError() bool {
	switch e.Level {
	case LevelError, LevelException, LevelAssert:
		return true
	}
	return false
}

// NetworkFailure is a response with a non-success status, or a request that failed outright
// (Status 0 with ErrorText set).
type NetworkFailure struct {
	URL       string `json:"url"`
	Status    int64  `json:"status"`
	Method    string `json:"method,omitempty"`
	ErrorText string `json:"error_text,omitempty"`
}

// DOMElement is a visible interactive element. Ref is the page-local handle assigned during the
// snapshot and can be used as a click target for the rest of the iteration.
type DOMElement struct {
	Ref       int    `json:"ref"`
	Tag       string `json:"tag"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Class     string `json:"class,omitempty"`
	Href      string `json:"href,omitempty"`
	Role      string `json:"role,omitempty"`
	AriaLabel string `json:"aria_label,omitempty"`
	Disabled  bool   `json:"disabled,omitempty"`
}

// Key identifies the element across snapshots, unlike Ref which is renumbered every time.
func (e DOMElement) Key() string {
	return ElementKey(e.Tag, e.ID, e.Href, e.Text, e.AriaLabel, e.Ref)
}

// maxKeyText caps the text part of an element key.
const maxKeyText = 60

// ElementKey builds a stable element key from, in order of preference, the element id, its href,
// or its tag and visible label. ref is used only when none of those are present.
func ElementKey(tag, id, href, text, ariaLabel string, ref int) string {
	if id = strings.TrimSpace(id); id != "" {
		return "#" + id
	}
	if href = strings.TrimSpace(href); href != "" && !strings.HasPrefix(href, "javascript:") && href != "#" {
		return "href:" + href
	}
	label := strings.Join(strings.Fields(text), " ")
	if label == "" {
		label = strings.Join(strings.Fields(ariaLabel), " ")
	}
	if label != "" {
		label = strings.ToLower(label)
		if r := []rune(label); len(r) > maxKeyText {
			label = string(r[:maxKeyText])
		}
		return strings.ToLower(tag) + ":" + label
	}
	return "ref:" + strconv.Itoa(ref)
}

// Observation is the per-iteration snapshot of page state. It is rebuilt every iteration.
type Observation struct {
	URL             string           `json:"url"`
	ConsoleEvents   []ConsoleEvent   `json:"console_events"`
	NetworkFailures []NetworkFailure `json:"network_failures"`
	DOMElements     []DOMElement     `json:"dom_elements"`

	// Partial is set when collection hit its deadline or the DOM query failed.
	Partial bool `json:"partial,omitempty"`
}

// ErrorCount returns the number of error-class console events.
func (o Observation) ErrorCount() int {
	n := 0
	for _, e := range o.ConsoleEvents {
		if e.IsError() {
			n++
		}
	}
	return n
}
