package circuit

import (
	"time"

	"github.com/jmehdipour/zoohub/internal/model"
)

type Config struct {
	FailThreshold int           // consecutive failures before opening, e.g. 5
	CoolDown      time.Duration // OPEN hold time before a probe is allowed
}

func DefaultConfig() Config {
	return Config{FailThreshold: 5, CoolDown: 30 * time.Second}
}

func (c Config) normalized() Config {
	if c.FailThreshold <= 0 {
		c.FailThreshold = 5
	}
	if c.CoolDown <= 0 {
		c.CoolDown = 30 * time.Second
	}
	return c
}

// Decision is the gate outcome for one webhook call.
type Decision struct {
	Allow   bool
	Probe   bool      // this call is the single HALF_OPEN trial
	RetryAt time.Time // reschedule hint when !Allow
}

// Evaluate decides whether a call to the circuit's target may proceed
// and applies the OPEN→HALF_OPEN transition in place. Pure state logic;
// the caller holds the row lock and persists the mutation.
func Evaluate(c *model.WebhookCircuit, now time.Time, cfg Config) Decision {
	cfg = cfg.normalized()

	switch c.State {
	case model.CircuitOpen:
		var until time.Time
		if c.OpenedAt != nil {
			until = c.OpenedAt.Add(cfg.CoolDown)
		}
		if now.Before(until) {
			return Decision{Allow: false, RetryAt: until}
		}
		// cool-down elapsed: this caller becomes the probe
		c.State = model.CircuitHalfOpen
		c.UpdatedAt = now
		return Decision{Allow: true, Probe: true}

	case model.CircuitHalfOpen:
		// one probe at a time; a probe whose owner died is re-admitted
		// after another cool-down
		stale := c.UpdatedAt.Add(cfg.CoolDown)
		if now.Before(stale) {
			return Decision{Allow: false, RetryAt: stale}
		}
		c.UpdatedAt = now
		return Decision{Allow: true, Probe: true}

	default: // CLOSED (or lazily-created zero value)
		return Decision{Allow: true}
	}
}

// ApplySuccess records a successful call: any state collapses to CLOSED
// with the failure streak reset. Returns true if the state changed.
func ApplySuccess(c *model.WebhookCircuit, now time.Time) bool {
	changed := c.State != model.CircuitClosed || c.FailureCount != 0
	c.State = model.CircuitClosed
	c.FailureCount = 0
	c.OpenedAt = nil
	c.LastFailureAt = nil
	c.UpdatedAt = now
	return changed
}

// ApplyFailure records a failed call. A HALF_OPEN probe failure reopens
// immediately; a CLOSED failure opens once the streak reaches the
// threshold. Returns true if the circuit transitioned to OPEN.
func ApplyFailure(c *model.WebhookCircuit, now time.Time, cfg Config) bool {
	cfg = cfg.normalized()

	c.FailureCount++
	c.LastFailureAt = &now
	c.UpdatedAt = now

	if c.State == model.CircuitHalfOpen || c.FailureCount >= cfg.FailThreshold {
		c.State = model.CircuitOpen
		opened := now
		c.OpenedAt = &opened
		return true
	}
	return false
}
