package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, promptOverheadTokens, EstimateTokens(""))
	assert.Equal(t, promptOverheadTokens+1, EstimateTokens("abc"))
	assert.Equal(t, promptOverheadTokens+1, EstimateTokens("abcd"))
	assert.Equal(t, promptOverheadTokens+2, EstimateTokens("abcde"))
	assert.Equal(t, promptOverheadTokens+1000, EstimateTokens(strings.Repeat("x", 4000)))
}

func TestEstimateTokensMonotonic(t *testing.T) {
	short := EstimateTokens("short")
	long := EstimateTokens(strings.Repeat("long content ", 100))
	assert.Greater(t, long, short)
}
