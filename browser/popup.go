package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Popup is a tab the page opened by itself. Err is set when the tab did not load.
type Popup struct {
	URL string
	Err error
}

// HandlePopups waits for every tab opened since the previous call to load, records where it
// landed and closes it. The agent's own tab is never affected.
func (s *Session) HandlePopups(ctx context.Context) []Popup {
	s.mu.Lock()
	ids := s.popups
	s.popups = nil
	closed := s.closed
	s.mu.Unlock()
	if closed || len(ids) == 0 {
		return nil
	}

	out := make([]Popup, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.inspectPopup(ctx, id))
	}
	return out
}

// inspectPopup attaches to the tab and closes it afterwards. Cancelling an attached
// chromedp context closes its target; a tab that never attached is closed explicitly.
func (s *Session) inspectPopup(ctx context.Context, id target.ID) Popup {
	tabCtx, cancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(id))
	defer cancel()
	defer func() {
		if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
			return
		}
		if err := s.closeTarget(ctx, id); err != nil {
			s.logger.Warn(ctx, "could not close tab", map[string]interface{}{
				"target": string(id),
				"error":  err.Error(),
			})
		}
	}()
	runCtx, cancelTimeout := context.WithTimeout(tabCtx, s.opts.NavigationTimeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var url string
	err := chromedp.Run(runCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&url),
	)
	if err != nil {
		return Popup{URL: url, Err: fmt.Errorf("browser: new tab did not load: %w", err)}
	}
	return Popup{URL: url, Err: popupURLError(url)}
}

func (s *Session) closeTarget(ctx context.Context, id target.ID) error {
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Browser == nil {
		return ErrClosed
	}
	return target.CloseTarget(id).Do(cdp.WithExecutor(ctx, c.Browser))
}

// popupURLError classifies the landing URL of a new tab.
func popupURLError(url string) error {
	switch {
	case url == "", url == "about:blank", strings.HasPrefix(url, "about:blank#"):
		return fmt.Errorf("browser: new tab stayed blank")
	case strings.HasPrefix(url, "chrome-error://"):
		return fmt.Errorf("browser: new tab showed the browser error page")
	}
	return nil
}
