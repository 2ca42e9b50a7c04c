package observation

import (
	"context"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
)

// Source is the page-side provider of signals. The browser session implements it.
type Source interface {
	// DrainConsole returns console events buffered since the previous call and clears the buffer.
	DrainConsole() []ConsoleEvent
	// DrainNetworkFailures returns failed responses buffered since the previous call.
	DrainNetworkFailures() []NetworkFailure
	InteractiveElements(ctx context.Context) ([]DOMElement, error)
	CurrentURL(ctx context.Context) (string, error)
}

// Limits caps how much of each signal goes into one Observation. The newest entries are kept.
type Limits struct {
	Console  int
	Network  int
	Elements int
}

// DefaultLimits mirrors the caps the agent has always used.
func DefaultLimits() Limits {
	return Limits{Console: 150, Network: 80, Elements: 120}
}

// Collector builds Observations from a Source within a bounded time.
type Collector struct {
	source  Source
	timeout time.Duration
	limits  Limits
	logger  logger.Logger
}

// NewCollector creates a collector. A non-positive timeout defaults to 10 seconds.
func NewCollector(source Source, timeout time.Duration, limits Limits, log logger.Logger) *Collector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Collector{
		source:  source,
		timeout: timeout,
		limits:  limits,
		logger:  log,
	}
}

// Collect gathers everything emitted since the previous collection plus a DOM snapshot.
// It never fails: on timeout or query error the Observation is returned with Partial set.
func (c *Collector) Collect(ctx context.Context) Observation {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	obs := Observation{
		ConsoleEvents:   tail(c.source.DrainConsole(), c.limits.Console),
		NetworkFailures: tail(c.source.DrainNetworkFailures(), c.limits.Network),
	}

	url, err := c.source.CurrentURL(ctx)
	if err != nil {
		obs.Partial = true
		c.logger.Warn(ctx, "could not read current url", map[string]interface{}{
			"error": err.Error(),
		})
	}
	obs.URL = url

	elements, err := c.source.InteractiveElements(ctx)
	if err != nil {
		obs.Partial = true
		c.logger.Warn(ctx, "dom snapshot incomplete", map[string]interface{}{
			"error":    err.Error(),
			"timedout": ctx.Err() != nil,
		})
	}
	if c.limits.Elements > 0 && len(elements) > c.limits.Elements {
		elements = elements[:c.limits.Elements]
	}
	obs.DOMElements = elements

	c.logger.Debug(ctx, "observation collected", map[string]interface{}{
		"url":      obs.URL,
		"console":  len(obs.ConsoleEvents),
		"network":  len(obs.NetworkFailures),
		"elements": len(obs.DOMElements),
		"partial":  obs.Partial,
	})

	return obs
}

func tail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}
