package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Navigate loads url and waits for the body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()

	s.mu.Lock()
	s.docStatus = 0
	s.docURL = ""
	s.mu.Unlock()

	if err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: navigate to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("browser: read location: %w", err)
	}
	return url, nil
}

// WaitLoaded waits until the document finished loading or the navigation timeout passes.
func (s *Session) WaitLoaded(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()

	var complete bool
	err := s.run(ctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Poll(`document.readyState === "complete"`, &complete,
			chromedp.WithPollingInterval(100*time.Millisecond)),
	)
	if err != nil {
		return fmt.Errorf("browser: wait for load: %w", err)
	}
	return nil
}

// NavigationError reports a fatal navigation: a main document status of 400 or above, or
// Chrome's own error page. It returns nil when the page loaded.
func (s *Session) NavigationError(ctx context.Context) error {
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if strings.HasPrefix(url, "chrome-error://") {
		return fmt.Errorf("browser: navigation failed, browser error page shown")
	}

	s.mu.Lock()
	status, docURL := s.docStatus, s.docURL
	s.mu.Unlock()
	if status >= 400 {
		return fmt.Errorf("browser: %s returned status %d", docURL, status)
	}
	return nil
}

// Screenshot captures the viewport as PNG with the agent's cursor and highlight hidden.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx,
		chromedp.Evaluate(setAgentUIVisibleJS(false), nil),
		chromedp.CaptureScreenshot(&buf),
		chromedp.Evaluate(setAgentUIVisibleJS(true), nil),
	)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return buf, nil
}
