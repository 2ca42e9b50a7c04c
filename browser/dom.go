package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/hairizuanbinnoorazman/ui-sentinel/observation"
)

// RefAttribute carries the element handle assigned by the DOM snapshot.
const RefAttribute = "data-agent-ref"

// Query describes how to find an element. Ref wins over ID, ID over Selector, Selector over
// Text.
type Query struct {
	Ref      int    `json:"ref,omitempty"`
	ID       string `json:"id,omitempty"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Element is a located, scrolled-into-view element. X and Y are the centre in CSS pixels.
type Element struct {
	Selector  string  `json:"selector"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Ref       int     `json:"ref,omitempty"`
	Tag       string  `json:"tag,omitempty"`
	ID        string  `json:"id,omitempty"`
	Href      string  `json:"href,omitempty"`
	Text      string  `json:"text,omitempty"`
	AriaLabel string  `json:"aria_label,omitempty"`
}

// Key returns the same stable key the snapshot would give this element.
func (e Element) Key() string {
	return observation.ElementKey(e.Tag, e.ID, e.Href, e.Text, e.AriaLabel, e.Ref)
}

const interactiveSelector = `a[href], button, input:not([type=hidden]), select, textarea, summary, ` +
	`[role=button], [role=link], [role=tab], [role=menuitem], [role=checkbox], [onclick]`

// snapshotJS numbers every visible interactive element and returns their descriptions.
const snapshotJS = `(() => {
  const sel = %q;
  const attr = %q;
  const ignore = %s;
  document.querySelectorAll('[' + attr + ']').forEach(el => el.removeAttribute(attr));
  const overlay = el => {
    if (!ignore.length) return false;
    const hit = v => typeof v === 'string' && v !== '' && ignore.some(p => v.toLowerCase().includes(p));
    let cur = el;
    for (let i = 0; i < 10 && cur; i++) {
      if (hit(cur.id) || hit(typeof cur.className === 'string' ? cur.className : '') || hit(cur.getAttribute('aria-label'))) return true;
      cur = cur.parentElement;
    }
    return false;
  };
  const visible = el => {
    if (el.closest('[id^="__agent"]')) return false;
    if (overlay(el)) return false;
    const r = el.getBoundingClientRect();
    if (r.width < 1 || r.height < 1) return false;
    const st = getComputedStyle(el);
    return st.visibility !== 'hidden' && st.display !== 'none' && st.opacity !== '0';
  };
  const out = [];
  let ref = 0;
  for (const el of document.querySelectorAll(sel)) {
    if (!visible(el)) continue;
    ref++;
    el.setAttribute(attr, String(ref));
    const text = (el.innerText || el.value || el.getAttribute('placeholder') || el.getAttribute('title') || '').trim();
    out.push({
      ref: ref,
      tag: el.tagName.toLowerCase(),
      text: text.slice(0, 200),
      id: el.id || '',
      class: (typeof el.className === 'string' ? el.className : '').slice(0, 200),
      href: el.getAttribute('href') || '',
      role: el.getAttribute('role') || '',
      aria_label: el.getAttribute('aria-label') || '',
      disabled: !!el.disabled || el.getAttribute('aria-disabled') === 'true',
    });
    if (out.length >= %d) break;
  }
  return out;
})()`

// locateJS resolves a Query to an element, scrolls it into view and returns its box.
const locateJS = `((q) => {
  const attr = %q;
  const sel = %q;
  let el = null;
  if (q.ref) el = document.querySelector('[' + attr + '="' + q.ref + '"]');
  if (!el && q.id) el = document.getElementById(q.id);
  if (!el && q.selector) { try { el = document.querySelector(q.selector); } catch (e) { el = null; } }
  if (!el && q.text) {
    const want = q.text.trim().toLowerCase();
    const candidates = Array.from(document.querySelectorAll(sel));
    const label = c => (c.innerText || c.value || c.getAttribute('aria-label') || '').trim().toLowerCase();
    el = candidates.find(c => label(c) === want) || candidates.find(c => want && label(c).includes(want)) || null;
  }
  if (!el) return null;
  el.scrollIntoView({block: 'center', inline: 'center'});
  const r = el.getBoundingClientRect();
  if (r.width < 1 || r.height < 1) return null;
  let ref = el.getAttribute(attr);
  if (!ref) {
    ref = 'x' + Date.now();
    el.setAttribute(attr, ref);
  }
  return {
    selector: '[' + attr + '="' + ref + '"]',
    x: r.left + r.width / 2, y: r.top + r.height / 2, width: r.width, height: r.height,
    ref: /^\d+$/.test(ref) ? Number(ref) : 0,
    tag: el.tagName.toLowerCase(),
    id: el.id || '',
    href: el.getAttribute('href') || '',
    text: (el.innerText || el.value || el.getAttribute('placeholder') || el.getAttribute('title') || '').trim().slice(0, 200),
    aria_label: el.getAttribute('aria-label') || '',
  };
})(%s)`

// snapshotScript renders snapshotJS. Elements inside containers whose id, class or aria-label
// contains one of the overlay patterns are left out.
func snapshotScript(overlayIgnore []string, limit int) string {
	patterns, _ := json.Marshal(overlayPatterns(overlayIgnore))
	return fmt.Sprintf(snapshotJS, interactiveSelector, RefAttribute, patterns, limit)
}

func overlayPatterns(raw []string) []string {
	out := []string{}
	for _, p := range raw {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// InteractiveElements snapshots visible interactive elements and tags each with a ref.
func (s *Session) InteractiveElements(ctx context.Context) ([]observation.DOMElement, error) {
	var elements []observation.DOMElement
	script := snapshotScript(s.opts.OverlayIgnore, 500)
	if err := s.run(ctx, chromedp.Evaluate(script, &elements)); err != nil {
		return nil, fmt.Errorf("browser: dom snapshot: %w", err)
	}
	return elements, nil
}

// Locate finds the element described by q. It returns ErrTargetNotFound when nothing visible
// matches.
func (s *Session) Locate(ctx context.Context, q Query) (Element, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return Element{}, fmt.Errorf("browser: encode query: %w", err)
	}

	var found *Element
	script := fmt.Sprintf(locateJS, RefAttribute, interactiveSelector, payload)
	if err := s.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return Element{}, fmt.Errorf("browser: locate: %w", err)
	}
	if found == nil {
		return Element{}, ErrTargetNotFound
	}
	return *found, nil
}
