package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenCounter_RuneFallback(t *testing.T) {
	tc := &TokenCounter{}

	assert.Equal(t, 0, tc.Count(""))
	assert.Equal(t, 1, tc.Count("abc"))
	assert.Equal(t, 3, tc.Count("0123456789"))

	assert.Equal(t, "short", tc.Truncate("short", 10))
	assert.Equal(t, "01234567", tc.Truncate("0123456789abcdef", 2))
	assert.Equal(t, "", tc.Truncate("anything", 0))
	assert.Equal(t, "éééé", tc.Truncate("éééééééé", 1))
}
