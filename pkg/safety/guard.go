// Package safety enforces the actuator safety envelope.
//
// The Guard is the last line of defense between control computation and the
// hardware: it is total (defined for every input, including NaN), never
// fails, and its output always satisfies the configured limits regardless of
// what upstream produced.
package safety

import (
	"fmt"
	"math"

	"github.com/opensourceleg/go-osl/pkg/estimate"
	"github.com/opensourceleg/go-osl/pkg/impedance"
)

// Limits is the read-only safety envelope, supplied at startup.
type Limits struct {
	MaxTorqueNm          float64 `json:"max_torque"`
	MaxVelocityRadPerSec float64 `json:"max_velocity"`
	MinAngleRad          float64 `json:"min_angle"`
	MaxAngleRad          float64 `json:"max_angle"`
	MaxStiffness         float64 `json:"max_stiffness"`
	MaxDamping           float64 `json:"max_damping"`

	// OverrideToleranceNm: if clamping moved the requested torque by more
	// than this, the command is not trusted at all and the guard substitutes
	// the safe-hold command.
	OverrideToleranceNm float64 `json:"override_tolerance"`
}

// Guard clamps commands to the envelope and overrides untrustworthy ones
// with a safe-hold command.
type Guard struct {
	limits   Limits
	safeHold impedance.Params
}

// NewGuard creates a guard for the given limits and safe-hold parameter set.
// The safe-hold parameters are themselves clamped once here so the override
// path can never emit an out-of-envelope command.
func NewGuard(limits Limits, safeHold impedance.Params) *Guard {
	safeHold.StiffnessNmPerRad = clamp(safeHold.StiffnessNmPerRad, 0, limits.MaxStiffness)
	safeHold.DampingNmPerRadPerSec = clamp(safeHold.DampingNmPerRadPerSec, 0, limits.MaxDamping)
	safeHold.EquilibriumRad = clamp(safeHold.EquilibriumRad, limits.MinAngleRad, limits.MaxAngleRad)
	safeHold.FeedforwardNm = clamp(safeHold.FeedforwardNm, -limits.MaxTorqueNm, limits.MaxTorqueNm)
	return &Guard{limits: limits, safeHold: safeHold}
}

// Limits returns the configured envelope.
func (g *Guard) Limits() Limits {
	return g.limits
}

// SafeHold returns the conservative hold command for a sequence number.
// Zero torque, gentle damping toward the configured equilibrium.
func (g *Guard) SafeHold(seq uint64) impedance.Command {
	return impedance.Command{
		Seq:         seq,
		TorqueNm:    clamp(g.safeHold.FeedforwardNm, -g.limits.MaxTorqueNm, g.limits.MaxTorqueNm),
		Stiffness:   g.safeHold.StiffnessNmPerRad,
		Damping:     g.safeHold.DampingNmPerRadPerSec,
		Equilibrium: g.safeHold.EquilibriumRad,
	}
}

// Check clamps cmd to the envelope. It returns the command to dispatch and,
// when the command had to be overridden, a FaultRecord describing why.
//
// Check never returns an error and never emits a command outside the
// envelope, whatever cmd and est contain.
func (g *Guard) Check(cmd impedance.Command, est estimate.StateEstimate) (impedance.Command, *FaultRecord) {
	// Non-finite upstream values mean the computation cannot be trusted.
	if !finite(cmd.TorqueNm, cmd.Stiffness, cmd.Damping, cmd.Equilibrium) {
		return g.override(cmd, est, "non-finite command")
	}

	// Estimate outside the plausible envelope: the state the command was
	// computed from is itself suspect.
	if math.Abs(est.Velocity) > g.limits.MaxVelocityRadPerSec ||
		est.Angle < g.limits.MinAngleRad || est.Angle > g.limits.MaxAngleRad ||
		!finite(est.Angle, est.Velocity) {
		return g.override(cmd, est, "estimate outside envelope")
	}

	out := cmd
	out.TorqueNm = clamp(cmd.TorqueNm, -g.limits.MaxTorqueNm, g.limits.MaxTorqueNm)
	out.Stiffness = clamp(cmd.Stiffness, 0, g.limits.MaxStiffness)
	out.Damping = clamp(cmd.Damping, 0, g.limits.MaxDamping)
	out.Equilibrium = clamp(cmd.Equilibrium, g.limits.MinAngleRad, g.limits.MaxAngleRad)

	// A clamp that moved the torque beyond the tolerance means upstream is
	// misbehaving badly enough that the whole command is suspect.
	if math.Abs(out.TorqueNm-cmd.TorqueNm) > g.limits.OverrideToleranceNm {
		return g.override(cmd, est, "clamp exceeded tolerance")
	}

	return out, nil
}

// override substitutes the safe-hold command and raises a fault record.
func (g *Guard) override(cmd impedance.Command, est estimate.StateEstimate, detail string) (impedance.Command, *FaultRecord) {
	hold := g.SafeHold(cmd.Seq)
	hold.Phase = cmd.Phase
	rec := NewFaultRecord(CauseSafetyViolation, cmd.Seq,
		fmt.Sprintf("guard override: %s", detail),
		map[string]float64{
			"requested_torque": jsonSafe(cmd.TorqueNm),
			"angle":            jsonSafe(est.Angle),
			"velocity":         jsonSafe(est.Velocity),
		})
	return hold, &rec
}

// jsonSafe zeroes non-finite values so fault records always marshal.
func jsonSafe(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
