// Package gait estimates the wearer's gait phase from the conditioned
// joint state.
//
// The estimator is a finite state machine with an explicit transition table,
// evaluated exactly once per tick strictly after conditioning. Fault is
// absorbing: once entered, only an explicit operator Reset leaves it.
package gait

import "fmt"

// Phase is one discrete segment of the walking cycle.
type Phase int

const (
	// Stance is weight-bearing mid stance and the initial phase.
	Stance Phase = iota
	// EarlyStance covers loading response just after heel strike.
	EarlyStance
	// LateStance covers terminal stance leading into push-off.
	LateStance
	// Swing is the unloaded leg swinging forward.
	Swing
	// SwingFlexion is the peak-flexion portion of swing.
	SwingFlexion
	// Fault is the terminal safe state; absorbing until reset.
	Fault
)

var phaseNames = map[Phase]string{
	Stance:       "stance",
	EarlyStance:  "early_stance",
	LateStance:   "late_stance",
	Swing:        "swing",
	SwingFlexion: "swing_flexion",
	Fault:        "fault",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// MarshalText renders the phase name for JSON telemetry.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name produced by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	name := string(text)
	for phase, s := range phaseNames {
		if s == name {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown gait phase %q", name)
}

// InStance reports whether p is a weight-bearing phase.
func (p Phase) InStance() bool {
	return p == Stance || p == EarlyStance || p == LateStance
}

// InSwing reports whether p is an unloaded phase.
func (p Phase) InSwing() bool {
	return p == Swing || p == SwingFlexion
}
