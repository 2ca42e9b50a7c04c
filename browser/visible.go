package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

const cursorJS = `(() => {
  let el = document.getElementById('__agent_cursor');
  if (!el) {
    el = document.createElement('div');
    el.id = '__agent_cursor';
    el.style.cssText = 'position:fixed;width:24px;height:24px;border:3px solid #e74c3c;border-radius:50%%;' +
      'background:rgba(231,76,60,0.3);pointer-events:none;z-index:2147483647;left:-100px;top:-100px;' +
      'transition:left 0.15s,top 0.15s;box-shadow:0 0 10px rgba(231,76,60,0.6);';
    (document.body || document.documentElement).appendChild(el);
  }
  el.style.left = (%f - 12) + 'px';
  el.style.top = (%f - 12) + 'px';
  return true;
})()`

const highlightJS = `(() => {
  const el = document.querySelector(%q);
  if (!el) return false;
  el.setAttribute('data-agent-highlight', el.style.outline || '');
  el.style.outline = '3px solid #f39c12';
  el.style.outlineOffset = '2px';
  return true;
})()`

const clearHighlightJS = `(() => {
  document.querySelectorAll('[data-agent-highlight]').forEach(el => {
    el.style.outline = el.getAttribute('data-agent-highlight');
    el.style.outlineOffset = '';
    el.removeAttribute('data-agent-highlight');
  });
  return true;
})()`

func setAgentUIVisibleJS(visible bool) string {
	display := "none"
	if visible {
		display = ""
	}
	return fmt.Sprintf(`(() => {
  const c = document.getElementById('__agent_cursor');
  if (c) c.style.display = %q;
  document.querySelectorAll('[data-agent-highlight]').forEach(el => {
    el.style.outline = %q === 'none' ? el.getAttribute('data-agent-highlight') : '3px solid #f39c12';
  });
  return true;
})()`, display, display)
}

// MoveCursor moves the on-page cursor marker and the real mouse pointer to (x, y).
func (s *Session) MoveCursor(ctx context.Context, x, y float64) error {
	err := s.run(ctx,
		chromedp.Evaluate(fmt.Sprintf(cursorJS, x, y), nil),
		input.DispatchMouseEvent(input.MouseMoved, x, y),
	)
	if err != nil {
		return fmt.Errorf("browser: move cursor: %w", err)
	}
	return nil
}

// Highlight outlines the element matching selector until ClearHighlight.
func (s *Session) Highlight(ctx context.Context, selector string) error {
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(highlightJS, selector), &ok)); err != nil {
		return fmt.Errorf("browser: highlight: %w", err)
	}
	if !ok {
		return ErrTargetNotFound
	}
	return nil
}

// ClearHighlight removes every outline added by Highlight.
func (s *Session) ClearHighlight(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Evaluate(clearHighlightJS, nil)); err != nil {
		return fmt.Errorf("browser: clear highlight: %w", err)
	}
	return nil
}

// ClickAt presses and releases the left button at (x, y), holding it for hold.
func (s *Session) ClickAt(ctx context.Context, x, y float64, hold time.Duration) error {
	press := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithButtons(1).
		WithClickCount(1)
	release := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithButtons(0).
		WithClickCount(1)

	actions := []chromedp.Action{press}
	if hold > 0 {
		actions = append(actions, chromedp.Sleep(hold))
	}
	actions = append(actions, release)

	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("browser: click at (%.0f, %.0f): %w", x, y, err)
	}
	return nil
}
