package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		logger := New(level)
		assert.NotNil(t, logger, "level %q", level)
		assert.NotNil(t, logger.Logger)
	}
}

func TestWithComponentReturnsChild(t *testing.T) {
	base := Default()
	child := base.WithComponent("assistant")
	assert.NotNil(t, child)
	assert.NotSame(t, base, child)
}
