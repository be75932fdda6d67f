package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordChecker(t *testing.T) {
	c := NewKeywordChecker("Secret", "  ", "forbidden")

	tests := []struct {
		text    string
		allowed bool
	}{
		{"Hello, world.", true},
		{"this is a SECRET plan", false},
		{"forbiddenfruit", false},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v, err := c.Check(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, v.Allowed)
			if !tt.allowed {
				assert.NotEmpty(t, v.Reason)
			}
		})
	}
}

func TestKeywordChecker_Empty(t *testing.T) {
	v, err := NewKeywordChecker().Check(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}

func TestKeywordChecker_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewKeywordChecker("x").Check(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
