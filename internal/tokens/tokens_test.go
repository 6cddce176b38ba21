package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("a"))
	assert.Equal(t, 1, Estimate("abcd"))
	assert.Equal(t, 2, Estimate("abcde"))
	assert.Equal(t, 25, Estimate(strings.Repeat("x", 100)))
}

func TestEstimate_MatchesCeilDiv(t *testing.T) {
	for n := 0; n <= 64; n++ {
		s := strings.Repeat("a", n)
		want := (n + 3) / 4
		assert.Equal(t, want, Estimate(s), "len %d", n)
	}
}

func TestEstimateAll(t *testing.T) {
	assert.Equal(t, 0, EstimateAll(nil))
	assert.Equal(t, 3, EstimateAll([]string{"abcd", "ab", "x"}))
}
