// Package impedance maps gait phase and joint state to actuator commands.
//
// Each phase carries an impedance parameter set (virtual stiffness, damping
// and equilibrium angle, plus a feedforward torque). The control law itself
// is a pure function of phase and estimate; the only state carried across
// ticks is the sequence counter and the transition blend window.
package impedance

import (
	"github.com/opensourceleg/go-osl/pkg/estimate"
	"github.com/opensourceleg/go-osl/pkg/gait"
)

// Params is one phase's impedance parameter set.
type Params struct {
	StiffnessNmPerRad     float64 `json:"stiffness"`
	DampingNmPerRadPerSec float64 `json:"damping"`
	EquilibriumRad        float64 `json:"equilibrium"`
	FeedforwardNm         float64 `json:"feedforward"`
}

// Torque evaluates the impedance law for a joint state:
//
//	tau = -K(theta - theta_eq) - B*omega + ff
func (p Params) Torque(angle, velocity float64) float64 {
	return -p.StiffnessNmPerRad*(angle-p.EquilibriumRad) -
		p.DampingNmPerRadPerSec*velocity +
		p.FeedforwardNm
}

// Command is the per-tick actuator command. Produced once per tick and
// consumed once by the dispatcher; Seq increases monotonically.
type Command struct {
	Seq   uint64     `json:"seq"`
	Phase gait.Phase `json:"phase"`

	TorqueNm float64 `json:"torque"`

	// The impedance triple the torque was derived from, for sinks that run
	// their own impedance loop.
	Stiffness   float64 `json:"stiffness"`
	Damping     float64 `json:"damping"`
	Equilibrium float64 `json:"equilibrium"`
}

// Controller computes commands from phase-specific parameter sets, blending
// across phase transitions to avoid discontinuous torque.
type Controller struct {
	params     map[gait.Phase]Params
	blendTicks int

	seq       uint64
	lastPhase gait.Phase
	started   bool

	// Blend window state. When a transition occurs the controller
	// interpolates from the command last issued toward the new phase's
	// command over blendTicks ticks. A transition arriving mid-blend
	// restarts the window from the command last issued, never from the
	// pre-transition baseline.
	blendFrom Command
	blendStep int
	blending  bool

	last Command
}

// NewController creates a controller. params must cover every phase the
// estimator can produce; blendTicks <= 1 disables blending.
func NewController(params map[gait.Phase]Params, blendTicks int) *Controller {
	return &Controller{params: params, blendTicks: blendTicks}
}

// ParamsFor returns the parameter set for a phase.
func (c *Controller) ParamsFor(phase gait.Phase) Params {
	return c.params[phase]
}

// Control produces the tick's command for the active phase and estimate.
func (c *Controller) Control(phase gait.Phase, est estimate.StateEstimate) Command {
	p := c.params[phase]
	c.seq++

	target := Command{
		Seq:         c.seq,
		Phase:       phase,
		TorqueNm:    p.Torque(est.Angle, est.Velocity),
		Stiffness:   p.StiffnessNmPerRad,
		Damping:     p.DampingNmPerRadPerSec,
		Equilibrium: p.EquilibriumRad,
	}

	if !c.started {
		c.started = true
		c.lastPhase = phase
		c.last = target
		return target
	}

	if phase != c.lastPhase {
		c.lastPhase = phase
		if c.blendTicks > 1 {
			// Restart interpolation from the command last issued.
			c.blendFrom = c.last
			c.blendStep = 0
			c.blending = true
		}
	}

	out := target
	if c.blending {
		c.blendStep++
		if c.blendStep >= c.blendTicks {
			c.blending = false
		} else {
			alpha := float64(c.blendStep) / float64(c.blendTicks)
			out = lerpCommand(c.blendFrom, target, alpha)
			out.Seq = c.seq
			out.Phase = phase
		}
	}

	c.last = out
	return out
}

// LastCommand returns the command most recently issued.
func (c *Controller) LastCommand() Command {
	return c.last
}

func lerpCommand(from, to Command, alpha float64) Command {
	return Command{
		TorqueNm:    lerp(from.TorqueNm, to.TorqueNm, alpha),
		Stiffness:   lerp(from.Stiffness, to.Stiffness, alpha),
		Damping:     lerp(from.Damping, to.Damping, alpha),
		Equilibrium: lerp(from.Equilibrium, to.Equilibrium, alpha),
	}
}

func lerp(a, b, alpha float64) float64 {
	return a + (b-a)*alpha
}
