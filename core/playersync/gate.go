package playersync

import "time"

// gateState tracks whether a control is being manipulated.
type gateState int

const (
	gateIdle gateState = iota
	gateActive
	gateCooldown
)

// gate is the per-(device, field) interaction guard. While the gate is
// active, or in cooldown with an unexpired deadline, poll-driven reconciles
// must not overwrite the field.
type gate struct {
	state gateState
	until time.Time // cooldown deadline, valid when state == gateCooldown
}

// blocked reports whether the gate currently protects its field.
func (g *gate) blocked(now time.Time) bool {
	switch g.state {
	case gateActive:
		return true
	case gateCooldown:
		return now.Before(g.until)
	}
	return false
}

// expired reports whether the gate can be dropped from the gate map.
func (g *gate) expired(now time.Time) bool {
	return g.state == gateCooldown && !now.Before(g.until)
}

// gateKey addresses one gate.
type gateKey struct {
	deviceID string
	field    Field
}
