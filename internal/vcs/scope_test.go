package vcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScope(t *testing.T) {
	tests := []struct {
		in   string
		want Scope
	}{
		{"staged", ScopeStaged},
		{"", ScopeStaged},
		{"head", ScopeLastCommit},
		{"lastCommit", ScopeLastCommit},
		{"pr", ScopeUpstream},
		{"againstUpstream", ScopeUpstream},
		{" PR ", ScopeUpstream},
	}
	for _, tt := range tests {
		got, err := ParseScope(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, got.Valid())
	}

	_, err := ParseScope("yesterday")
	assert.ErrorIs(t, err, ErrUnknownScope)
	assert.False(t, Scope("yesterday").Valid())
}
