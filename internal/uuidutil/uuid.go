package uuidutil

import (
	"time"

	"github.com/google/uuid"
)

// New generates a new random UUID v4
func New() uuid.UUID {
	return uuid.New()
}

// RunID returns a sortable identifier for one agent run, e.g. 20261017-142501-3f2a9c1e.
func RunID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}
