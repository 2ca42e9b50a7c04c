package noise

import "github.com/hairizuanbinnoorazman/ui-sentinel/observation"

// Filter drops console events and network failures that match the rule set. Retained entries
// keep their order; the DOM snapshot is passed through untouched. The returned flag is true when
// a retained console event is error-class or any network failure survives.
//
// Filter is pure: filtering its own output yields the same result.
func Filter(obs observation.Observation, rules RuleSet) (observation.Observation, bool) {
	out := obs
	out.ConsoleEvents = make([]observation.ConsoleEvent, 0, len(obs.ConsoleEvents))
	out.NetworkFailures = make([]observation.NetworkFailure, 0, len(obs.NetworkFailures))

	candidate := false
	for _, e := range obs.ConsoleEvents {
		if rules.IgnoreConsole(e.Text) {
			continue
		}
		out.ConsoleEvents = append(out.ConsoleEvents, e)
		if e.IsError() {
			candidate = true
		}
	}
	for _, f := range obs.NetworkFailures {
		if rules.IgnoreNetwork(f.URL, f.Status) {
			continue
		}
		out.NetworkFailures = append(out.NetworkFailures, f)
		candidate = true
	}

	return out, candidate
}
