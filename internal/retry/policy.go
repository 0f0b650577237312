package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy maps (attempt just completed, failed) to either a terminal
// decision or the delay before the next run. Pure and stateless; the
// worker calls it synchronously inside the bookkeeping transaction.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration // e.g. 30s
	Factor        float64       // e.g. 2
	MaxDelay      time.Duration // cap, e.g. 1h
	JitterPercent int           // e.g. 20 => ±20%
}

func Default() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     30 * time.Second,
		Factor:        2,
		MaxDelay:      time.Hour,
		JitterPercent: 20,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 30 * time.Second
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Hour
	}
	if p.JitterPercent < 0 || p.JitterPercent >= 100 {
		p.JitterPercent = 20
	}
	return p
}

// Terminal reports whether a job that just failed its attempt-th try
// (against the given ceiling) has exhausted its retries.
func (p Policy) Terminal(attempt, maxAttempts int) bool {
	if maxAttempts < 1 {
		maxAttempts = p.normalized().MaxAttempts
	}
	return attempt >= maxAttempts
}

// Delay computes the backoff after the attempt-th failure (1-based):
// base * factor^(attempt-1), capped, with ±jitter%. Deterministic modulo
// the rng; pass nil for a time-seeded source.
func (p Policy) Delay(attempt int, rng *rand.Rand) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	// equal jitter: delay * (1 ± jitter%)
	if p.JitterPercent > 0 {
		span := d * float64(p.JitterPercent) / 100
		d = d - span + rng.Float64()*2*span
	}
	if d < 0 {
		d = 0
	}

	return time.Duration(d)
}

// NextRunAt is the convenience form used by the worker.
func (p Policy) NextRunAt(now time.Time, attempt int, rng *rand.Rand) time.Time {
	return now.Add(p.Delay(attempt, rng)).UTC()
}
