package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticRegistry(t *testing.T) {
	r := NewStaticRegistry([]string{"search", "read_file", "search", ""})

	assert.Equal(t, []string{"read_file", "search"}, r.ListToolNames(), "sorted, deduplicated, empties dropped")
	assert.True(t, r.Has("search"))
	assert.False(t, r.Has("quantum_solver"))
	assert.False(t, r.Has(""))
}
