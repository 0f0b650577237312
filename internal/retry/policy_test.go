package retry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyTerminal(t *testing.T) {
	p := Default()

	assert.False(t, p.Terminal(1, 3))
	assert.False(t, p.Terminal(2, 3))
	assert.True(t, p.Terminal(3, 3))
	assert.True(t, p.Terminal(4, 3))

	// job-level ceiling wins over policy default
	assert.False(t, p.Terminal(3, 5))

	// unset ceiling falls back to the policy default
	assert.True(t, p.Terminal(3, 0))
}

func TestPolicyDelayGrowth(t *testing.T) {
	p := Default()
	rng := rand.New(rand.NewSource(42))

	// with ±20% jitter each delay stays inside [0.8, 1.2] of the nominal
	nominal := []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
	for i, want := range nominal {
		d := p.Delay(i+1, rng)
		lo := time.Duration(float64(want) * 0.8)
		hi := time.Duration(float64(want) * 1.2)
		assert.GreaterOrEqual(t, d, lo, "attempt %d", i+1)
		assert.LessOrEqual(t, d, hi, "attempt %d", i+1)
	}
}

func TestPolicyDelayCap(t *testing.T) {
	p := Policy{
		MaxAttempts:   10,
		BaseDelay:     30 * time.Second,
		Factor:        2,
		MaxDelay:      time.Hour,
		JitterPercent: 0,
	}

	// 30s * 2^9 would be 256m, well past the cap
	assert.Equal(t, time.Hour, p.Delay(10, rand.New(rand.NewSource(1))))
}

func TestPolicyDelayDeterministic(t *testing.T) {
	p := Default()

	a := p.Delay(2, rand.New(rand.NewSource(7)))
	b := p.Delay(2, rand.New(rand.NewSource(7)))
	assert.Equal(t, a, b)
}

func TestPolicyNextRunAt(t *testing.T) {
	p := Policy{BaseDelay: 30 * time.Second, Factor: 2, MaxDelay: time.Hour, MaxAttempts: 3, JitterPercent: 0}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	next := p.NextRunAt(now, 1, rand.New(rand.NewSource(1)))
	require.Equal(t, now.Add(30*time.Second), next)

	next = p.NextRunAt(now, 2, rand.New(rand.NewSource(1)))
	require.Equal(t, now.Add(60*time.Second), next)
}
