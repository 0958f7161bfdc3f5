package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_NoopBeforeInitialize(t *testing.T) {
	l := Get(CategoryKernel)
	require.NotNil(t, l)
	// Must not panic.
	l.Infow("should vanish", "k", "v")
}

func TestInitializeAndGet(t *testing.T) {
	require.NoError(t, Initialize(Options{Debug: true, JSONFormat: true}))

	a := Get(CategoryPlanner)
	b := Get(CategoryPlanner)
	assert.Same(t, a, b, "category loggers are cached")

	r := WithRun(CategoryKernel, "run-123")
	require.NotNil(t, r)
	r.Debugw("run scoped line")

	Sync()
}
