package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
	"golang.org/x/time/rate"
)

// Client asks a Backend for the next decision. It paces requests, re-authenticates once on an
// expired credential and degrades unusable replies to a no-op decision.
type Client struct {
	backend Backend
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewClient creates a decision client. minInterval is the minimum spacing between backend calls;
// zero disables pacing.
func NewClient(backend Backend, minInterval time.Duration, log logger.Logger) *Client {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Client{
		backend: backend,
		limiter: rate.NewLimiter(limit, 1),
		logger:  log.WithField("backend", backend.Name()),
	}
}

// Backend returns the backend the client talks to.
func (c *Client) Backend() Backend {
	return c.backend
}

// Decide builds the prompt for in, queries the backend and parses the reply.
//
// An unparseable reply yields NoAction and a nil error. Backend failures are returned wrapped in
// ErrBackendUnavailable so the caller can skip the rest of the iteration.
func (c *Client) Decide(ctx context.Context, in Input) (Decision, error) {
	req := Request{
		System: SystemPrompt(),
		Prompt: BuildPrompt(in),
	}
	if c.backend.SupportsVision() && len(in.Screenshot) > 0 {
		req.Screenshot = in.Screenshot
	}

	text, err := c.complete(ctx, req)
	if err != nil {
		return NoAction(), err
	}

	decision, err := ParseDecision(text)
	if err != nil {
		c.logger.Warn(ctx, "could not parse oracle response", map[string]interface{}{
			"error": err.Error(),
			"raw":   truncate(text, 2000),
		})
		return NoAction(), nil
	}

	c.logger.Debug(ctx, "oracle decision", map[string]interface{}{
		"action":     string(decision.Action),
		"target":     targetString(decision.Target),
		"reason":     decision.Reason,
		"has_defect": decision.Defect != nil,
	})
	return decision, nil
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	text, err := c.backend.Complete(ctx, req)
	if err == nil {
		return text, nil
	}
	if !errors.Is(err, ErrUnauthorized) {
		return "", fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, c.backend.Name(), err)
	}

	reauth, ok := c.backend.(Reauthenticator)
	if !ok {
		return "", fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, c.backend.Name(), err)
	}

	c.logger.Info(ctx, "oracle credentials rejected, re-authenticating", nil)
	if rerr := reauth.Reauthenticate(ctx); rerr != nil {
		return "", fmt.Errorf("%w: %s: re-authentication failed: %v", ErrBackendUnavailable, c.backend.Name(), rerr)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	text, err = c.backend.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: retry after re-authentication: %v", ErrBackendUnavailable, c.backend.Name(), err)
	}
	return text, nil
}

func targetString(t *Target) string {
	if t == nil {
		return ""
	}
	return t.String()
}
