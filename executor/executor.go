// Package executor turns oracle decisions into visible page actions.
package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/browser"
	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
)

// Page is the subset of the browser session the executor drives.
type Page interface {
	CurrentURL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	WaitLoaded(ctx context.Context) error
	NavigationError(ctx context.Context) error
	Locate(ctx context.Context, q browser.Query) (browser.Element, error)
	MoveCursor(ctx context.Context, x, y float64) error
	Highlight(ctx context.Context, selector string) error
	ClearHighlight(ctx context.Context) error
	ClickAt(ctx context.Context, x, y float64, hold time.Duration) error
	HandlePopups(ctx context.Context) []browser.Popup
	// DiscardSignals drops console and network events buffered so far.
	DiscardSignals()
}

// ActionExecutor performs a decision on the page.
type ActionExecutor interface {
	Execute(ctx context.Context, d oracle.Decision) (Outcome, error)
}

// OutcomeKind classifies what happened.
type OutcomeKind string

const (
	OutcomeNoAction       OutcomeKind = "no_action"
	OutcomeTargetNotFound OutcomeKind = "target_not_found"
	OutcomeClicked        OutcomeKind = "clicked"
	// OutcomeNavigated means the click left the start page and the executor brought the page
	// back.
	OutcomeNavigated OutcomeKind = "navigated"
	// OutcomeOpenedTab means the click kept the page but opened a new tab, which was checked
	// and closed.
	OutcomeOpenedTab OutcomeKind = "opened_tab"
)

// Outcome describes the result of one Execute call.
type Outcome struct {
	Kind   OutcomeKind
	Target string
	// TargetKey identifies the clicked element across snapshots, see observation.ElementKey.
	TargetKey string
	// NavigatedTo is the URL the click led to, if it changed the page.
	NavigatedTo string
	// NavigationErr is set when the page reached by the click failed to load.
	NavigationErr error
	// Popups lists the tabs the click opened. They are closed by the time Execute returns.
	Popups []browser.Popup
}

func (o Outcome) String() string {
	var s string
	switch o.Kind {
	case OutcomeNavigated:
		if o.NavigationErr != nil {
			s = fmt.Sprintf("clicked %s, navigated to %s (failed: %v), returned", o.Target, o.NavigatedTo, o.NavigationErr)
		} else {
			s = fmt.Sprintf("clicked %s, navigated to %s, returned", o.Target, o.NavigatedTo)
		}
	case OutcomeClicked, OutcomeOpenedTab:
		s = "clicked " + o.Target
	case OutcomeTargetNotFound:
		return "target not found: " + o.Target
	default:
		return "no action"
	}
	for _, p := range o.Popups {
		if p.Err != nil {
			s += fmt.Sprintf(", opened tab %s (failed: %v), closed", p.URL, p.Err)
			continue
		}
		s += fmt.Sprintf(", opened tab %s, closed", p.URL)
	}
	return s
}

// PopupErr returns the first failure among the opened tabs.
func (o Outcome) PopupErr() error {
	for _, p := range o.Popups {
		if p.Err != nil {
			return p.Err
		}
	}
	return nil
}

// Options controls the visible feedback. Zero durations disable the pauses.
type Options struct {
	StartURL  string
	Highlight time.Duration
	SlowMo    time.Duration
	// SettleDelay is how long to wait after a click before checking for navigation.
	SettleDelay time.Duration
}

// Visible moves a cursor, highlights the target and clicks slowly, so a person watching the
// browser can follow what the agent does.
type Visible struct {
	page   Page
	opts   Options
	logger logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewVisible creates an executor.
func NewVisible(page Page, opts Options, log logger.Logger) *Visible {
	if log == nil {
		log = logger.Nop{}
	}
	return &Visible{
		page:   page,
		opts:   opts,
		logger: log.WithField("component", "executor"),
		sleep:  sleepContext,
	}
}

// Execute performs d. A target that cannot be found is reported as OutcomeTargetNotFound with a
// nil error. An error is returned only when the page could not be driven or could not be brought
// back to the start URL.
func (v *Visible) Execute(ctx context.Context, d oracle.Decision) (Outcome, error) {
	if d.Action != oracle.ActionClick || d.Target == nil || d.Target.Empty() {
		return Outcome{Kind: OutcomeNoAction}, nil
	}
	target := d.Target.String()

	before, err := v.page.CurrentURL(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("executor: read url before click: %w", err)
	}

	el, err := v.page.Locate(ctx, toQuery(*d.Target))
	if errors.Is(err, browser.ErrTargetNotFound) {
		v.logger.Info(ctx, "target not found", map[string]interface{}{"target": target})
		return Outcome{Kind: OutcomeTargetNotFound, Target: target, TargetKey: d.Target.Key()}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("executor: locate %s: %w", target, err)
	}

	if err := v.click(ctx, el); err != nil {
		return Outcome{}, fmt.Errorf("executor: click %s: %w", target, err)
	}

	if err := v.sleep(ctx, v.opts.SettleDelay); err != nil {
		return Outcome{}, err
	}

	popups := v.page.HandlePopups(ctx)
	for _, p := range popups {
		fields := map[string]interface{}{"target": target, "url": p.URL}
		if p.Err != nil {
			fields["error"] = p.Err.Error()
		}
		v.logger.Info(ctx, "click opened a new tab", fields)
	}

	after, err := v.page.CurrentURL(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("executor: read url after click: %w", err)
	}
	if SameURL(before, after) {
		kind := OutcomeClicked
		if len(popups) > 0 {
			kind = OutcomeOpenedTab
		}
		return Outcome{Kind: kind, Target: target, TargetKey: el.Key(), Popups: popups}, nil
	}

	out := Outcome{Kind: OutcomeNavigated, Target: target, TargetKey: el.Key(), NavigatedTo: after, Popups: popups}
	if err := v.page.WaitLoaded(ctx); err != nil {
		out.NavigationErr = err
	} else if err := v.page.NavigationError(ctx); err != nil {
		out.NavigationErr = err
	}
	v.logger.Info(ctx, "click navigated away, returning to start page", map[string]interface{}{
		"target":           target,
		"navigated_to":     after,
		"navigation_error": out.NavigationErr != nil,
	})

	if err := v.ReturnToStart(ctx); err != nil {
		return out, err
	}
	return out, nil
}

// ReturnToStart navigates back to the start URL unless the page is already there. Console and
// network events raised on the page being left are discarded first.
func (v *Visible) ReturnToStart(ctx context.Context) error {
	current, err := v.page.CurrentURL(ctx)
	if err == nil && SameURL(current, v.opts.StartURL) {
		return nil
	}
	v.page.DiscardSignals()
	if err := v.page.Navigate(ctx, v.opts.StartURL); err != nil {
		return fmt.Errorf("executor: return to start url: %w", err)
	}
	return nil
}

func (v *Visible) click(ctx context.Context, el browser.Element) error {
	if err := v.page.MoveCursor(ctx, el.X, el.Y); err != nil {
		v.logger.Debug(ctx, "cursor move failed", map[string]interface{}{"error": err.Error()})
	}

	if err := v.page.Highlight(ctx, el.Selector); err != nil {
		v.logger.Debug(ctx, "highlight failed", map[string]interface{}{"error": err.Error()})
	}
	defer func() {
		if err := v.page.ClearHighlight(context.WithoutCancel(ctx)); err != nil {
			v.logger.Debug(ctx, "clear highlight failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	if err := v.sleep(ctx, v.opts.Highlight); err != nil {
		return err
	}
	if err := v.sleep(ctx, v.opts.SlowMo); err != nil {
		return err
	}
	return v.page.ClickAt(ctx, el.X, el.Y, v.opts.SlowMo)
}

func toQuery(t oracle.Target) browser.Query {
	return browser.Query{Ref: t.Ref, ID: t.ID, Selector: t.Selector, Text: t.Text}
}

// SameURL compares two URLs ignoring the fragment and a trailing slash.
func SameURL(a, b string) bool {
	return normalizeURL(a) == normalizeURL(b)
}

func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
