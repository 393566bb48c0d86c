package gait

import (
	"errors"

	"github.com/opensourceleg/go-osl/pkg/estimate"
)

// ErrNotFaulted is returned by Reset when the estimator is not in Fault.
var ErrNotFaulted = errors.New("gait estimator is not in fault")

// Thresholds are the calibration values driving phase transitions. These are
// domain-calibration data and always come from configuration.
type Thresholds struct {
	// ContactLoadN: load at or above this while swinging means heel strike.
	ContactLoadN float64 `json:"contact_load"`
	// SettleLoadN: EarlyStance settles into Stance once load exceeds this.
	SettleLoadN float64 `json:"settle_load"`
	// ToeOffLoadN: stance load below this is a candidate toe-off.
	ToeOffLoadN float64 `json:"toe_off_load"`
	// ToeOffVelocity: velocity beyond this (plantarflexion negative) during
	// unloading confirms toe-off.
	ToeOffVelocity float64 `json:"toe_off_velocity"`
	// LateStanceAngle: joint angle beyond this in mid stance marks forward
	// progression into LateStance.
	LateStanceAngle float64 `json:"late_stance_angle"`
	// FlexionVelocity: swing velocity beyond this enters SwingFlexion.
	FlexionVelocity float64 `json:"flexion_velocity"`
	// ExtensionVelocity: swing velocity back below this returns to Swing.
	ExtensionVelocity float64 `json:"extension_velocity"`
	// MaxInvalidSamples: consecutive invalid estimates that trip Fault.
	MaxInvalidSamples int `json:"max_invalid_samples"`
}

// Input is everything a transition rule may inspect for one tick.
type Input struct {
	Estimate           estimate.StateEstimate
	ConsecutiveInvalid int
}

// rule is one row of the transition table.
type rule struct {
	from Phase
	to   Phase
	when func(th Thresholds, in Input) bool
}

// The transition table, in strict evaluation priority: fault detection
// first, then the stance family, then the swing family. The first matching
// row wins; at most one transition fires per tick.
var transitions = []rule{
	// Stance family.
	{from: EarlyStance, to: Stance, when: func(th Thresholds, in Input) bool {
		return in.Estimate.Load >= th.SettleLoadN
	}},
	{from: Stance, to: LateStance, when: func(th Thresholds, in Input) bool {
		return in.Estimate.Angle >= th.LateStanceAngle
	}},
	{from: Stance, to: Swing, when: func(th Thresholds, in Input) bool {
		return in.Estimate.Load < th.ToeOffLoadN && in.Estimate.Velocity <= th.ToeOffVelocity
	}},
	{from: LateStance, to: Swing, when: func(th Thresholds, in Input) bool {
		return in.Estimate.Load < th.ToeOffLoadN && in.Estimate.Velocity <= th.ToeOffVelocity
	}},

	// Swing family.
	{from: Swing, to: EarlyStance, when: func(th Thresholds, in Input) bool {
		return in.Estimate.Load >= th.ContactLoadN
	}},
	{from: SwingFlexion, to: EarlyStance, when: func(th Thresholds, in Input) bool {
		return in.Estimate.Load >= th.ContactLoadN
	}},
	{from: Swing, to: SwingFlexion, when: func(th Thresholds, in Input) bool {
		return in.Estimate.Velocity >= th.FlexionVelocity
	}},
	{from: SwingFlexion, to: Swing, when: func(th Thresholds, in Input) bool {
		return in.Estimate.Velocity <= th.ExtensionVelocity
	}},
}

// Estimator drives the gait phase state machine. It is owned by the control
// loop and never accessed concurrently.
type Estimator struct {
	th    Thresholds
	phase Phase

	// faultCause remembers why Fault latched, for status reporting.
	faultCause string
}

// NewEstimator creates an estimator starting in Stance.
func NewEstimator(th Thresholds) *Estimator {
	return &Estimator{th: th, phase: Stance}
}

// Phase returns the current phase.
func (e *Estimator) Phase() Phase {
	return e.phase
}

// FaultCause returns why the estimator latched Fault, or "".
func (e *Estimator) FaultCause() string {
	return e.faultCause
}

// Step evaluates the transition table for one tick and returns the active
// phase. Fault detection always preempts normal phase logic.
func (e *Estimator) Step(in Input) Phase {
	if e.phase == Fault {
		return Fault
	}

	// Fault row: repeated invalid samples from the conditioner.
	if e.th.MaxInvalidSamples > 0 && in.ConsecutiveInvalid >= e.th.MaxInvalidSamples {
		e.trip("sensor implausible")
		return Fault
	}

	for _, r := range transitions {
		if r.from == e.phase && r.when(e.th, in) {
			e.phase = r.to
			break
		}
	}
	return e.phase
}

// Trip forces the estimator into Fault from outside the transition table
// (deadline-miss or actuator escalation by the scheduler).
func (e *Estimator) Trip(cause string) {
	e.trip(cause)
}

func (e *Estimator) trip(cause string) {
	if e.phase == Fault {
		return
	}
	e.phase = Fault
	e.faultCause = cause
}

// Reset leaves Fault and returns to Stance. It is only valid after an
// operator has acknowledged the fault; calling it in any other phase is an
// error.
func (e *Estimator) Reset() error {
	if e.phase != Fault {
		return ErrNotFaulted
	}
	e.phase = Stance
	e.faultCause = ""
	return nil
}
