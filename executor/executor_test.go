package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/browser"
	"github.com/hairizuanbinnoorazman/ui-sentinel/logger"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startURL = "https://shop.example/"

type fakePage struct {
	url         string
	elements    map[int]browser.Element
	navigateTo  string
	navErr      error
	navigateErr error
	calls       []string
	holds       []time.Duration
	highlighted bool
	opened      []browser.Popup
	popups      []browser.Popup
}

func (p *fakePage) record(call string) { p.calls = append(p.calls, call) }

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.record("navigate")
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.url = url
	return nil
}

func (p *fakePage) WaitLoaded(ctx context.Context) error { p.record("wait"); return nil }

func (p *fakePage) NavigationError(ctx context.Context) error { return p.navErr }

func (p *fakePage) Locate(ctx context.Context, q browser.Query) (browser.Element, error) {
	p.record("locate")
	el, ok := p.elements[q.Ref]
	if !ok {
		return browser.Element{}, browser.ErrTargetNotFound
	}
	return el, nil
}

func (p *fakePage) MoveCursor(ctx context.Context, x, y float64) error {
	p.record("cursor")
	return nil
}

func (p *fakePage) Highlight(ctx context.Context, selector string) error {
	p.record("highlight")
	p.highlighted = true
	return nil
}

func (p *fakePage) ClearHighlight(ctx context.Context) error {
	p.record("clear")
	p.highlighted = false
	return nil
}

func (p *fakePage) ClickAt(ctx context.Context, x, y float64, hold time.Duration) error {
	p.record("click")
	p.holds = append(p.holds, hold)
	if p.navigateTo != "" {
		p.url = p.navigateTo
	}
	p.popups = append(p.popups, p.opened...)
	return nil
}

func (p *fakePage) HandlePopups(ctx context.Context) []browser.Popup {
	out := p.popups
	p.popups = nil
	return out
}

func (p *fakePage) DiscardSignals() { p.record("discard") }

func newPage() *fakePage {
	return &fakePage{
		url: startURL,
		elements: map[int]browser.Element{
			1: {Selector: `[data-agent-ref="1"]`, X: 50, Y: 20, Width: 100, Height: 40, Ref: 1, Tag: "a", Text: "Delivery"},
		},
	}
}

func click(ref int) oracle.Decision {
	return oracle.Decision{Action: oracle.ActionClick, Target: &oracle.Target{Ref: ref}}
}

func TestExecuteNoActionTouchesNothing(t *testing.T) {
	t.Parallel()

	page := newPage()
	ex := NewVisible(page, Options{StartURL: startURL}, nil)

	out, err := ex.Execute(context.Background(), oracle.NoAction())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoAction, out.Kind)
	assert.Empty(t, page.calls)
}

func TestExecuteTargetNotFound(t *testing.T) {
	t.Parallel()

	page := newPage()
	ex := NewVisible(page, Options{StartURL: startURL}, logger.NewTestLogger())

	out, err := ex.Execute(context.Background(), click(99))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTargetNotFound, out.Kind)
	assert.Equal(t, "ref:99", out.TargetKey)
	assert.NotContains(t, page.calls, "click")
}

func TestExecuteClickWithVisibleFeedback(t *testing.T) {
	t.Parallel()

	page := newPage()
	ex := NewVisible(page, Options{StartURL: startURL, Highlight: 800 * time.Millisecond, SlowMo: 300 * time.Millisecond}, nil)
	var slept []time.Duration
	ex.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	out, err := ex.Execute(context.Background(), click(1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeClicked, out.Kind)
	assert.Equal(t, "a:delivery", out.TargetKey)
	assert.Empty(t, out.Popups)
	assert.Equal(t, []string{"locate", "cursor", "highlight", "click", "clear"}, page.calls)
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, page.holds)
	assert.Equal(t, []time.Duration{800 * time.Millisecond, 300 * time.Millisecond, 0}, slept)
	assert.False(t, page.highlighted)
}

func TestExecuteReturnsToStartAfterNavigation(t *testing.T) {
	t.Parallel()

	page := newPage()
	page.navigateTo = "https://shop.example/delivery"
	ex := NewVisible(page, Options{StartURL: startURL}, nil)

	out, err := ex.Execute(context.Background(), click(1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNavigated, out.Kind)
	assert.Equal(t, "https://shop.example/delivery", out.NavigatedTo)
	assert.NoError(t, out.NavigationErr)
	assert.Equal(t, startURL, page.url)
	assert.Equal(t, []string{"locate", "cursor", "highlight", "click", "clear", "wait", "discard", "navigate"}, page.calls)
}

func TestExecuteRecordsFailedNavigation(t *testing.T) {
	t.Parallel()

	page := newPage()
	page.navigateTo = "https://shop.example/broken"
	page.navErr = errors.New("https://shop.example/broken returned status 500")
	ex := NewVisible(page, Options{StartURL: startURL}, nil)

	out, err := ex.Execute(context.Background(), click(1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNavigated, out.Kind)
	assert.Error(t, out.NavigationErr)
	assert.Equal(t, startURL, page.url)
}

func TestExecuteFailsWhenReturnFails(t *testing.T) {
	t.Parallel()

	page := newPage()
	page.navigateTo = "https://other.example/"
	page.navigateErr = errors.New("net::ERR_TIMED_OUT")
	ex := NewVisible(page, Options{StartURL: startURL}, nil)

	_, err := ex.Execute(context.Background(), click(1))
	require.Error(t, err)
}

func TestFragmentChangeIsNotNavigation(t *testing.T) {
	t.Parallel()

	page := newPage()
	page.navigateTo = "https://shop.example/#reviews"
	ex := NewVisible(page, Options{StartURL: startURL}, nil)

	out, err := ex.Execute(context.Background(), click(1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeClicked, out.Kind)
	assert.NotContains(t, page.calls, "navigate")
}

func TestExecuteChecksOpenedTabs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		navigateTo string
		opened     []browser.Popup
		wantKind   OutcomeKind
		wantErr    bool
		wantText   string
	}{
		{
			name:     "tab loaded",
			opened:   []browser.Popup{{URL: "https://partner.example/offer"}},
			wantKind: OutcomeOpenedTab,
			wantText: "clicked ref:1, opened tab https://partner.example/offer, closed",
		},
		{
			name:     "tab failed",
			opened:   []browser.Popup{{URL: "chrome-error://chromewebdata/", Err: errors.New("new tab showed the browser error page")}},
			wantKind: OutcomeOpenedTab,
			wantErr:  true,
			wantText: "clicked ref:1, opened tab chrome-error://chromewebdata/ (failed: new tab showed the browser error page), closed",
		},
		{
			name:       "tab and navigation",
			navigateTo: "https://shop.example/delivery",
			opened:     []browser.Popup{{URL: "https://partner.example/map"}},
			wantKind:   OutcomeNavigated,
			wantText:   "clicked ref:1, navigated to https://shop.example/delivery, returned, opened tab https://partner.example/map, closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			page := newPage()
			page.navigateTo = tt.navigateTo
			page.opened = tt.opened
			ex := NewVisible(page, Options{StartURL: startURL}, logger.NewTestLogger())

			out, err := ex.Execute(context.Background(), click(1))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.opened, out.Popups)
			assert.Equal(t, tt.wantText, out.String())
			if tt.wantErr {
				assert.Error(t, out.PopupErr())
			} else {
				assert.NoError(t, out.PopupErr())
			}
			assert.Equal(t, startURL, page.url)
		})
	}
}

func TestReturnToStartDiscardsForeignSignals(t *testing.T) {
	t.Parallel()

	page := newPage()
	page.url = "https://partner.example/"
	ex := NewVisible(page, Options{StartURL: startURL}, nil)

	require.NoError(t, ex.ReturnToStart(context.Background()))
	assert.Equal(t, []string{"discard", "navigate"}, page.calls)

	page.calls = nil
	require.NoError(t, ex.ReturnToStart(context.Background()))
	assert.Empty(t, page.calls)
}

func TestSameURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"https://shop.example/", "https://shop.example", true},
		{"https://shop.example/cart#top", "https://shop.example/cart/", true},
		{"https://SHOP.example/cart", "https://shop.example/cart", true},
		{"https://shop.example/cart?x=1", "https://shop.example/cart", false},
		{"https://shop.example/a", "https://shop.example/b", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SameURL(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}
