package noise

import "strings"

// NetworkRule ignores a network failure only when both fields match. A zero Status matches any
// status and an empty URLContains matches any URL.
type NetworkRule struct {
	Status      int64  `mapstructure:"status" json:"status"`
	URLContains string `mapstructure:"url_contains" json:"url_contains"`
}

// RuleSet lists what counts as noise. It is loaded once at startup and treated as read-only.
// All text matching is case-insensitive substring matching.
type RuleSet struct {
	ConsolePatterns    []string      `mapstructure:"console_patterns"`
	NetworkURLPatterns []string      `mapstructure:"network_url_patterns"`
	IgnoredStatuses    []int64       `mapstructure:"ignored_statuses"`
	NetworkRules       []NetworkRule `mapstructure:"network_rules"`
	DefectPatterns     []string      `mapstructure:"defect_patterns"`
}

// DefaultRuleSet returns the built-in noise lists: analytics and tracking hosts, browser
// extension traffic, local dev endpoints and plain 404s.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		ConsolePatterns: []string{
			"404",
			"net::ERR_",
			"Failed to load resource",
			"favicon",
			"chrome-extension",
			"localhost",
			"127.0.0.1",
			"analytics",
			"gtm",
			"google-analytics",
			"hotjar",
			"sentry",
			"ads.",
			"adservice",
		},
		NetworkURLPatterns: []string{
			"favicon",
			"analytics",
			"gtm",
			"google-analytics",
			"hotjar",
			"sentry",
			"ads.",
			"adservice",
			"chrome-extension",
			"localhost",
			"127.0.0.1",
		},
		IgnoredStatuses: []int64{404},
		DefectPatterns: []string{
			"404",
			"console",
			"консоль",
			"failed to load resource",
			"net::err_",
			"favicon",
			"chrome-extension",
			"analytics",
			"аналитик",
			"test environment",
			"тестовой сред",
			"flaky",
			"флак",
		},
	}
}

// IgnoreConsole reports whether a console message is noise.
func (r RuleSet) IgnoreConsole(text string) bool {
	return containsAny(text, r.ConsolePatterns)
}

// IgnoreNetwork reports whether a failed response is noise.
func (r RuleSet) IgnoreNetwork(url string, status int64) bool {
	for _, s := range r.IgnoredStatuses {
		if s == status {
			return true
		}
	}
	if containsAny(url, r.NetworkURLPatterns) {
		return true
	}
	for _, rule := range r.NetworkRules {
		if rule.matches(url, status) {
			return true
		}
	}
	return false
}

// IgnoreDefect reports whether a defect payload describes noise rather than a product bug,
// such as a console-only 404 or a flaky test environment.
func (r RuleSet) IgnoreDefect(title, description string) bool {
	return containsAny(title+"\n"+description, r.DefectPatterns)
}

func (n NetworkRule) matches(url string, status int64) bool {
	if n.Status == 0 && n.URLContains == "" {
		return false
	}
	if n.Status != 0 && n.Status != status {
		return false
	}
	if n.URLContains != "" && !strings.Contains(strings.ToLower(url), strings.ToLower(n.URLContains)) {
		return false
	}
	return true
}

func containsAny(text string, patterns []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
