package agent

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// History remembers which targets were already clicked and the most recent step descriptions.
type History struct {
	tested   *lru.Cache[string, struct{}]
	steps    []string
	maxSteps int
}

func NewHistory(testedLimit, maxSteps int) *History {
	cache, err := lru.New[string, struct{}](testedLimit)
	if err != nil {
		// only fails for a non-positive size
		cache, _ = lru.New[string, struct{}](1)
	}
	return &History{tested: cache, maxSteps: maxSteps}
}

// MarkTested records a target key, evicting the oldest once the limit is reached.
func (h *History) MarkTested(key string) {
	if key == "" {
		return
	}
	h.tested.Add(key, struct{}{})
}

func (h *History) WasTested(key string) bool {
	return h.tested.Contains(key)
}

// Tested returns the remembered target keys, oldest first.
func (h *History) Tested() []string {
	return h.tested.Keys()
}

func (h *History) AddStep(step string) {
	h.steps = append(h.steps, step)
	if over := len(h.steps) - h.maxSteps; over > 0 {
		h.steps = append(h.steps[:0:0], h.steps[over:]...)
	}
}

// Steps returns a copy of the recent steps, oldest first.
func (h *History) Steps() []string {
	return append([]string(nil), h.steps...)
}
