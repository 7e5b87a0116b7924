package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_ReserveAndRelease(t *testing.T) {
	s := NewScopeWithLimit("frag-1", 100)

	require.NoError(t, s.Reserve(60))
	assert.Equal(t, int64(60), s.Used())

	require.NoError(t, s.Reserve(40))
	assert.Equal(t, int64(100), s.Used())

	s.Release(50)
	assert.Equal(t, int64(50), s.Used())
}

func TestScope_LimitExceeded(t *testing.T) {
	s := NewScopeWithLimit("frag-1", 100)
	require.NoError(t, s.Reserve(90))

	err := s.Reserve(20)
	require.Error(t, err)
	assert.True(t, IsLimitError(err))

	// Failed reservation must not change usage.
	assert.Equal(t, int64(90), s.Used())

	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "frag-1", le.Label)
	assert.Equal(t, int64(20), le.Requested)
}

func TestScope_LimitErrorWrapped(t *testing.T) {
	s := NewScopeWithLimit("frag-1", 1)
	err := s.Reserve(2)
	require.Error(t, err)

	wrapped := fmt.Errorf("materialize values: %w", err)
	assert.True(t, IsLimitError(wrapped))
}

func TestScope_ReleaseClampsToZero(t *testing.T) {
	s := NewScopeWithLimit("frag-1", 100)
	require.NoError(t, s.Reserve(10))

	s.Release(25)
	assert.Equal(t, int64(0), s.Used())
}

func TestNewScope_DefaultLimit(t *testing.T) {
	s := NewScope("frag-1")
	assert.Equal(t, int64(DefaultLimit), s.Limit())
	assert.Equal(t, "frag-1", s.Label())
}
