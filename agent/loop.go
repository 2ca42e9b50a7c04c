// Package agent runs the observe, decide, act and report cycle against a single start page.
package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/defect"
	"github.com/hairizuanbinnoorazman/ui-sentinel/executor"
	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
	"github.com/hairizuanbinnoorazman/ui-sentinel/noise"
	"github.com/hairizuanbinnoorazman/ui-sentinel/observation"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
)

// Page is the part of the browser session the loop uses directly.
type Page interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// DiscardSignals drops console and network events buffered so far.
	DiscardSignals()
}

// Observer collects the current page state.
type Observer interface {
	Collect(ctx context.Context) observation.Observation
}

// Decider asks the oracle what to do next.
type Decider interface {
	Decide(ctx context.Context, in oracle.Input) (oracle.Decision, error)
}

// Reporter files a defect unless it was already seen or is excluded.
type Reporter interface {
	Report(ctx context.Context, seen *defect.SignatureSet, d oracle.Defect, ev defect.Evidence) defect.Result
}

// Deps are the components the loop drives. Reporter may be nil.
type Deps struct {
	Page     Page
	Observer Observer
	Decider  Decider
	Executor executor.ActionExecutor
	Reporter Reporter
}

// State is the loop phase currently running.
type State int32

const (
	StateInit State = iota
	StateObserve
	StateFilter
	StateDecide
	StateAct
	StateReport
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateObserve:
		return "observe"
	case StateFilter:
		return "filter"
	case StateDecide:
		return "decide"
	case StateAct:
		return "act"
	case StateReport:
		return "report"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// IterationResult summarizes one pass through the loop.
type IterationResult struct {
	Number    int
	Skipped   string
	Candidate bool
	Decision  oracle.Decision
	Outcome   executor.Outcome
	Defect    *defect.Result
}

// Loop is the agent state machine. It is driven from a single goroutine.
type Loop struct {
	cfg     Config
	deps    Deps
	logger  logger.Logger
	history *History
	seen    *defect.SignatureSet
	state   atomic.Int32
	now     func() time.Time
}

// NewLoop creates a loop. Zero config values take defaults.
func NewLoop(cfg Config, deps Deps, log logger.Logger) *Loop {
	if log == nil {
		log = logger.Nop{}
	}
	cfg = cfg.withDefaults()
	return &Loop{
		cfg:     cfg,
		deps:    deps,
		logger:  log.WithField("component", "agent"),
		history: NewHistory(cfg.TestedLimit, cfg.HistorySteps),
		seen:    defect.NewSignatureSet(),
		now:     time.Now,
	}
}

func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

func (l *Loop) History() *History { return l.history }

// Signatures exposes the defects already handled in this run.
func (l *Loop) Signatures() *defect.SignatureSet { return l.seen }

// Run iterates until ctx is cancelled or MaxIterations is reached. Cancellation is checked
// between iterations; an iteration in progress runs to completion. Run returns nil on a clean
// stop.
func (l *Loop) Run(ctx context.Context) error {
	work := context.WithoutCancel(ctx)
	l.logger.Info(ctx, "agent loop starting", map[string]interface{}{
		"start_url":      l.cfg.StartURL,
		"max_iterations": l.cfg.MaxIterations,
		"delay":          l.cfg.IterationDelay.String(),
	})

	l.setState(StateInit)
	if err := l.navigateStart(work); err != nil {
		l.logger.Warn(ctx, "initial navigation failed, will retry", map[string]interface{}{"error": err.Error()})
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	n := 0
	for {
		if ctx.Err() != nil {
			break
		}
		n++
		l.Iterate(work, n)

		if l.cfg.MaxIterations > 0 && n >= l.cfg.MaxIterations {
			l.logger.Info(ctx, "iteration limit reached", map[string]interface{}{"iterations": n})
			break
		}
		if l.cfg.IterationDelay <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(l.cfg.IterationDelay)
		} else {
			timer.Reset(l.cfg.IterationDelay)
		}
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	l.setState(StateStopped)
	l.logger.Info(context.WithoutCancel(ctx), "agent loop stopped", map[string]interface{}{
		"iterations":     n,
		"defects_seen":   l.seen.Len(),
		"targets_tested": len(l.history.Tested()),
	})
	return nil
}

// Iterate runs one OBSERVE, FILTER, DECIDE, ACT and optional REPORT pass. It never panics.
func (l *Loop) Iterate(ctx context.Context, n int) (res IterationResult) {
	res.Number = n
	log := l.logger.WithField("iteration", n)

	defer func() {
		if r := recover(); r != nil {
			res.Skipped = fmt.Sprintf("panic: %v", r)
			log.Error(ctx, "iteration panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
		}
	}()

	if err := l.ensureStart(ctx); err != nil {
		res.Skipped = "start page unavailable"
		log.Warn(ctx, "could not reach start page, skipping iteration", map[string]interface{}{"error": err.Error()})
		return res
	}

	l.setState(StateObserve)
	obs := l.deps.Observer.Collect(ctx)

	l.setState(StateFilter)
	filtered, candidate := noise.Filter(obs, l.cfg.Rules)
	res.Candidate = candidate

	var shot []byte
	if l.cfg.Screenshot {
		shot = l.screenshot(ctx, log)
	}

	l.setState(StateDecide)
	steps := l.history.Steps()
	decision, err := l.decide(ctx, oracle.Input{
		StartURL:     l.cfg.StartURL,
		Observation:  filtered,
		Screenshot:   shot,
		History:      steps,
		Tested:       l.history.Tested(),
		HasCandidate: candidate,
	})
	if err != nil {
		res.Skipped = "decision unavailable"
		log.Warn(ctx, "oracle unavailable, skipping iteration", map[string]interface{}{"error": err.Error()})
		return res
	}
	res.Decision = decision
	log.Info(ctx, "decision", map[string]interface{}{
		"action":    string(decision.Action),
		"target":    targetKey(decision.Target),
		"reason":    decision.Reason,
		"defect":    decision.Defect != nil,
		"candidate": candidate,
		"console":   len(filtered.ConsoleEvents),
		"network":   len(filtered.NetworkFailures),
		"elements":  len(filtered.DOMElements),
		"partial":   filtered.Partial,
	})

	l.setState(StateAct)
	res.Outcome = l.act(ctx, log, decision)

	if decision.Defect != nil && l.deps.Reporter != nil {
		l.setState(StateReport)
		result := l.deps.Reporter.Report(ctx, l.seen, *decision.Defect, defect.Evidence{
			URL:        filtered.URL,
			Screenshot: shot,
			Console:    filtered.ConsoleEvents,
			Network:    filtered.NetworkFailures,
			Steps:      steps,
			CapturedAt: l.now(),
		})
		res.Defect = &result
	}
	return res
}

func (l *Loop) decide(ctx context.Context, in oracle.Input) (oracle.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.DecideTimeout)
	defer cancel()
	return l.deps.Decider.Decide(ctx, in)
}

func (l *Loop) act(ctx context.Context, log logger.Logger, d oracle.Decision) executor.Outcome {
	if d.Action != oracle.ActionClick || d.Target == nil {
		return executor.Outcome{Kind: executor.OutcomeNoAction}
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StepTimeout)
	defer cancel()

	out, err := l.deps.Executor.Execute(ctx, d)
	if out.Kind != executor.OutcomeNoAction && out.Kind != "" {
		key := out.TargetKey
		if key == "" {
			key = d.Target.Key()
		}
		l.history.MarkTested(key)
		l.history.AddStep(out.String())
	}
	if err != nil {
		log.Error(ctx, "action failed", map[string]interface{}{
			"target": d.Target.Key(),
			"error":  err.Error(),
		})
		return out
	}
	if out.NavigationErr != nil {
		log.Warn(ctx, "click led to a failing page", map[string]interface{}{
			"target":       d.Target.Key(),
			"navigated_to": out.NavigatedTo,
			"error":        out.NavigationErr.Error(),
		})
	}
	if err := out.PopupErr(); err != nil {
		log.Warn(ctx, "click opened a failing tab", map[string]interface{}{
			"target": d.Target.Key(),
			"error":  err.Error(),
		})
	}
	return out
}

func (l *Loop) screenshot(ctx context.Context, log logger.Logger) []byte {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StepTimeout)
	defer cancel()
	shot, err := l.deps.Page.Screenshot(ctx)
	if err != nil {
		log.Warn(ctx, "screenshot failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return shot
}

// ensureStart navigates back to the start URL if the page drifted away from it. Signals raised
// on the page being left are dropped.
func (l *Loop) ensureStart(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StepTimeout)
	defer cancel()
	current, err := l.deps.Page.CurrentURL(ctx)
	if err == nil && current != "" && executor.SameURL(current, l.cfg.StartURL) {
		return nil
	}
	l.deps.Page.DiscardSignals()
	return l.deps.Page.Navigate(ctx, l.cfg.StartURL)
}

func (l *Loop) navigateStart(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StepTimeout)
	defer cancel()
	return l.deps.Page.Navigate(ctx, l.cfg.StartURL)
}

func targetKey(t *oracle.Target) string {
	if t == nil {
		return ""
	}
	return t.Key()
}
