// Package browser drives a single Chrome tab over the DevTools protocol. It buffers console
// and network signals for the observation collector and provides the visible-action primitives
// the executor uses.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
	"github.com/hairizuanbinnoorazman/ui-sentinel/observation"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/go-homedir"
)

var (
	// ErrTargetNotFound is returned by Locate when no visible element matches the query.
	ErrTargetNotFound = errors.New("browser: target not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("browser: session closed")
)

// maxBuffered bounds each signal buffer between two drains.
const maxBuffered = 1000

// Options configures the browser process.
type Options struct {
	Headless          bool
	Width             int
	Height            int
	UserDataDir       string
	ExecPath          string
	IgnoreCertErrors  bool
	NavigationTimeout time.Duration
	// OverlayIgnore lists case-insensitive substrings of id, class or aria-label that mark chat
	// widgets and similar overlays. Elements inside them are left out of the DOM snapshot.
	OverlayIgnore []string
}

type requestInfo struct {
	url    string
	method string
}

// Session owns one browser and one tab for the lifetime of a run.
type Session struct {
	opts   Options
	logger logger.Logger

	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	mu          sync.Mutex
	console     []observation.ConsoleEvent
	network     []observation.NetworkFailure
	requests    *lru.Cache[network.RequestID, requestInfo]
	popups      []target.ID
	docStatus   int64
	docURL      string
	mainFrameID string
	closed      bool
}

// New launches the browser and subscribes to console, log and network events.
func New(opts Options, lg logger.Logger) (*Session, error) {
	if opts.Width <= 0 {
		opts.Width = 1920
	}
	if opts.Height <= 0 {
		opts.Height = 1080
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.WindowSize(opts.Width, opts.Height),
		chromedp.Flag("disable-popup-blocking", true),
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Headless)
	}
	if opts.IgnoreCertErrors {
		allocOpts = append(allocOpts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		dir, err := homedir.Expand(opts.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("browser: invalid user data dir: %w", err)
		}
		allocOpts = append(allocOpts, chromedp.UserDataDir(dir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := newSession(opts, lg)
	s.ctx = tabCtx
	s.cancelTab = tabCancel
	s.cancelAlloc = allocCancel

	chromedp.ListenTarget(tabCtx, s.handleEvent)
	chromedp.ListenBrowser(tabCtx, s.handleBrowserEvent)

	if err := chromedp.Run(tabCtx, network.Enable(), runtime.Enable(), log.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("browser: failed to start: %w", err)
	}

	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		s.mu.Lock()
		s.mainFrameID = string(c.Target.TargetID)
		s.mu.Unlock()
	}

	s.logger.Info(context.Background(), "browser started", map[string]interface{}{
		"headless": opts.Headless,
		"width":    opts.Width,
		"height":   opts.Height,
	})
	return s, nil
}

func newSession(opts Options, lg logger.Logger) *Session {
	if lg == nil {
		lg = logger.Nop{}
	}
	// In-flight requests that never finish are evicted oldest first.
	requests, _ := lru.New[network.RequestID, requestInfo](maxBuffered)
	return &Session{
		opts:     opts,
		logger:   lg.WithField("component", "browser"),
		requests: requests,
	}
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.ctx != nil {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		err = chromedp.Cancel(ctx)
		cancel()
	}
	if s.cancelTab != nil {
		s.cancelTab()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}

// run executes actions on the tab, bounded by the caller's deadline and cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || s.ctx == nil {
		return ErrClosed
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// DrainConsole returns and clears buffered console events.
func (s *Session) DrainConsole() []observation.ConsoleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.console
	s.console = nil
	return out
}

// DrainNetworkFailures returns and clears buffered failed responses.
func (s *Session) DrainNetworkFailures() []observation.NetworkFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.network
	s.network = nil
	return out
}

// DiscardSignals drops buffered console events, network failures and in-flight requests. It is
// called before returning to the start page so nothing emitted elsewhere is attributed to it.
func (s *Session) DiscardSignals() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = nil
	s.network = nil
	s.requests.Purge()
}

// handleEvent runs on chromedp's event goroutine and must not block.
func (s *Session) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		s.addConsole(observation.ConsoleEvent{
			Level:     consoleLevel(string(e.Type)),
			Text:      consoleText(e.Args),
			Timestamp: timestamp(e.Timestamp),
			Source:    "console-api",
		})
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return
		}
		text := e.ExceptionDetails.Text
		if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
			text = e.ExceptionDetails.Exception.Description
		}
		s.addConsole(observation.ConsoleEvent{
			Level:     observation.LevelException,
			Text:      text,
			Timestamp: timestamp(e.Timestamp),
			Source:    "runtime",
		})
	case *log.EventEntryAdded:
		if e.Entry == nil {
			return
		}
		s.addConsole(observation.ConsoleEvent{
			Level:     consoleLevel(string(e.Entry.Level)),
			Text:      e.Entry.Text,
			Timestamp: timestamp(e.Entry.Timestamp),
			Source:    string(e.Entry.Source),
		})
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		s.mu.Lock()
		s.requests.Add(e.RequestID, requestInfo{url: e.Request.URL, method: e.Request.Method})
		s.mu.Unlock()
	case *network.EventResponseReceived:
		s.handleResponse(e)
	case *network.EventLoadingFinished:
		s.mu.Lock()
		s.requests.Remove(e.RequestID)
		s.mu.Unlock()
	case *network.EventLoadingFailed:
		s.handleLoadingFailed(e)
	case *target.EventTargetCreated:
		s.handleBrowserEvent(e)
	}
}

func (s *Session) handleResponse(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Type == network.ResourceTypeDocument && (s.mainFrameID == "" || string(e.FrameID) == s.mainFrameID) {
		s.docStatus = e.Response.Status
		s.docURL = e.Response.URL
	}
	info, _ := s.requests.Peek(e.RequestID)
	s.requests.Remove(e.RequestID)
	if e.Response.Status < 400 {
		return
	}
	s.appendNetwork(observation.NetworkFailure{
		URL:    e.Response.URL,
		Status: e.Response.Status,
		Method: info.method,
	})
}

func (s *Session) handleLoadingFailed(e *network.EventLoadingFailed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.requests.Peek(e.RequestID)
	s.requests.Remove(e.RequestID)
	if e.Canceled || !ok {
		return
	}
	s.appendNetwork(observation.NetworkFailure{
		URL:       info.url,
		Method:    info.method,
		ErrorText: e.ErrorText,
	})
}

// handleBrowserEvent records page targets opened by the agent's tab, e.g. by target="_blank".
// The same creation may arrive on both the browser and the tab connection.
func (s *Session) handleBrowserEvent(ev interface{}) {
	e, ok := ev.(*target.EventTargetCreated)
	if !ok || e.TargetInfo == nil || e.TargetInfo.Type != "page" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mainFrameID == "" || string(e.TargetInfo.OpenerID) != s.mainFrameID {
		return
	}
	for _, id := range s.popups {
		if id == e.TargetInfo.TargetID {
			return
		}
	}
	if len(s.popups) < maxBuffered {
		s.popups = append(s.popups, e.TargetInfo.TargetID)
	}
}

func (s *Session) addConsole(ev observation.ConsoleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.console) >= maxBuffered {
		s.console = s.console[1:]
	}
	s.console = append(s.console, ev)
}

// appendNetwork must be called with s.mu held.
func (s *Session) appendNetwork(f observation.NetworkFailure) {
	if len(s.network) >= maxBuffered {
		s.network = s.network[1:]
	}
	s.network = append(s.network, f)
}

func consoleLevel(level string) string {
	switch level {
	case "warn", "warning":
		return observation.LevelWarning
	case "error":
		return observation.LevelError
	case "assert":
		return observation.LevelAssert
	case "info":
		return observation.LevelInfo
	case "", "log", "verbose", "debug":
		return observation.LevelLog
	}
	return level
}

func consoleText(args []*runtime.RemoteObject) string {
	var sb strings.Builder
	for i, arg := range args {
		if arg == nil {
			continue
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch {
		case len(arg.Value) > 0:
			var str string
			if err := json.Unmarshal(arg.Value, &str); err == nil {
				sb.WriteString(str)
			} else {
				sb.Write(arg.Value)
			}
		case arg.Description != "":
			sb.WriteString(arg.Description)
		default:
			sb.WriteString("[" + string(arg.Type) + "]")
		}
	}
	return sb.String()
}

func timestamp(ts *runtime.Timestamp) time.Time {
	if ts == nil {
		return time.Now()
	}
	return ts.Time()
}
