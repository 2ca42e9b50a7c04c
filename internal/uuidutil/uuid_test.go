package uuidutil

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunID(t *testing.T) {
	t.Parallel()

	id := RunID()
	assert.Regexp(t, regexp.MustCompile(`^\d{8}-\d{6}-[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, RunID())
}
