package agent

import (
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/noise"
)

// Config holds the loop configuration.
type Config struct {
	StartURL string
	// IterationDelay is the pause between iterations.
	IterationDelay time.Duration
	// MaxIterations stops the loop after that many iterations; 0 runs until cancelled.
	MaxIterations int
	// StepTimeout bounds navigation, screenshots and actions.
	StepTimeout time.Duration
	// DecideTimeout bounds one oracle call including its re-auth retry.
	DecideTimeout time.Duration
	// Screenshot captures the page each iteration, for vision backends or defect evidence.
	Screenshot   bool
	Rules        noise.RuleSet
	HistorySteps int
	TestedLimit  int
}

func (c Config) withDefaults() Config {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 45 * time.Second
	}
	if c.DecideTimeout <= 0 {
		c.DecideTimeout = 2 * time.Minute
	}
	if c.HistorySteps <= 0 {
		c.HistorySteps = 20
	}
	if c.TestedLimit <= 0 {
		c.TestedLimit = 200
	}
	return c
}
