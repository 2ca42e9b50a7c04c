package noise

import (
	"testing"

	"github.com/hairizuanbinnoorazman/ui-sentinel/observation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		rules         RuleSet
		obs           observation.Observation
		wantConsole   []string
		wantNetwork   []string
		wantCandidate bool
	}{
		{
			name:  "compound rule drops ad tracker 404",
			rules: RuleSet{NetworkRules: []NetworkRule{{Status: 404, URLContains: "ads"}}},
			obs: observation.Observation{
				NetworkFailures: []observation.NetworkFailure{{URL: "https://ads.example/track", Status: 404}},
			},
			wantConsole:   []string{},
			wantNetwork:   []string{},
			wantCandidate: false,
		},
		{
			name:  "compound rule needs both fields",
			rules: RuleSet{NetworkRules: []NetworkRule{{Status: 404, URLContains: "ads"}}},
			obs: observation.Observation{
				NetworkFailures: []observation.NetworkFailure{
					{URL: "https://ads.example/track", Status: 500},
					{URL: "https://shop.example/api", Status: 404},
				},
			},
			wantConsole:   []string{},
			wantNetwork:   []string{"https://ads.example/track", "https://shop.example/api"},
			wantCandidate: true,
		},
		{
			name:  "failed to load resource is noise",
			rules: DefaultRuleSet(),
			obs: observation.Observation{
				ConsoleEvents: []observation.ConsoleEvent{
					{Level: observation.LevelError, Text: "Failed to load resource: the server responded with a status of 404"},
				},
			},
			wantConsole:   []string{},
			wantNetwork:   []string{},
			wantCandidate: false,
		},
		{
			name:  "order is preserved and warnings are not candidates",
			rules: DefaultRuleSet(),
			obs: observation.Observation{
				ConsoleEvents: []observation.ConsoleEvent{
					{Level: observation.LevelWarning, Text: "first"},
					{Level: observation.LevelLog, Text: "hotjar init"},
					{Level: observation.LevelInfo, Text: "second"},
				},
			},
			wantConsole:   []string{"first", "second"},
			wantNetwork:   []string{},
			wantCandidate: false,
		},
		{
			name:  "uncaught exception is a candidate",
			rules: DefaultRuleSet(),
			obs: observation.Observation{
				ConsoleEvents: []observation.ConsoleEvent{
					{Level: observation.LevelException, Text: "TypeError: cannot read properties of undefined"},
				},
			},
			wantConsole:   []string{"TypeError: cannot read properties of undefined"},
			wantNetwork:   []string{},
			wantCandidate: true,
		},
		{
			name:  "pattern match is case insensitive",
			rules: RuleSet{NetworkURLPatterns: []string{"GOOGLE-ANALYTICS"}},
			obs: observation.Observation{
				NetworkFailures: []observation.NetworkFailure{{URL: "https://www.google-analytics.com/collect", Status: 503}},
			},
			wantConsole:   []string{},
			wantNetwork:   []string{},
			wantCandidate: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, candidate := Filter(tt.obs, tt.rules)

			console := make([]string, 0, len(got.ConsoleEvents))
			for _, e := range got.ConsoleEvents {
				console = append(console, e.Text)
			}
			network := make([]string, 0, len(got.NetworkFailures))
			for _, f := range got.NetworkFailures {
				network = append(network, f.URL)
			}

			assert.Equal(t, tt.wantConsole, console)
			assert.Equal(t, tt.wantNetwork, network)
			assert.Equal(t, tt.wantCandidate, candidate)
		})
	}
}

func TestFilterIsIdempotent(t *testing.T) {
	t.Parallel()

	obs := observation.Observation{
		URL: "https://shop.example/",
		ConsoleEvents: []observation.ConsoleEvent{
			{Level: observation.LevelError, Text: "Uncaught ReferenceError: cart is not defined"},
			{Level: observation.LevelError, Text: "net::ERR_BLOCKED_BY_CLIENT"},
			{Level: observation.LevelLog, Text: "rendered"},
		},
		NetworkFailures: []observation.NetworkFailure{
			{URL: "https://shop.example/api/cart", Status: 500},
			{URL: "https://shop.example/favicon.ico", Status: 500},
			{URL: "https://shop.example/missing", Status: 404},
		},
		DOMElements: []observation.DOMElement{{Ref: 1, Tag: "button", Text: "Checkout"}},
	}
	rules := DefaultRuleSet()

	once, c1 := Filter(obs, rules)
	twice, c2 := Filter(once, rules)

	assert.Equal(t, once, twice)
	assert.Equal(t, c1, c2)
	assert.True(t, c1)
	require.Len(t, once.ConsoleEvents, 2)
	require.Len(t, once.NetworkFailures, 1)
	assert.Equal(t, obs.DOMElements, once.DOMElements)
	assert.Len(t, obs.ConsoleEvents, 3, "input is not modified")
}

func TestIgnoreDefect(t *testing.T) {
	t.Parallel()

	rules := DefaultRuleSet()

	tests := []struct {
		title       string
		description string
		want        bool
	}{
		{"Submit button throws JS error", "Clicking Submit raises TypeError", false},
		{"404 on product image", "", true},
		{"Checkout fails", "Only reproducible on a flaky test environment", true},
		{"Ошибки в консоль браузера", "", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, rules.IgnoreDefect(tt.title, tt.description), tt.title)
	}
}
