package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledConstructorsReturnNil(t *testing.T) {
	// Registry is process-global; these assertions only hold before
	// InitRegistry runs, so they come first.
	if IsEnabled() {
		t.Skip("registry already initialized by another test")
	}
	assert.Nil(t, GetRegistry())
	assert.Nil(t, NewDispatchMetrics())
	assert.Nil(t, NewReplayMetrics())

	_, err := NewServer("127.0.0.1:0")
	assert.Error(t, err)
}

func TestInitRegistryIdempotent(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())
	first := GetRegistry()

	InitRegistry()
	assert.Same(t, first, GetRegistry())
}
