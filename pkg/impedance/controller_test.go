package impedance

import (
	"math"
	"testing"

	"github.com/opensourceleg/go-osl/pkg/estimate"
	"github.com/opensourceleg/go-osl/pkg/gait"
)

func testParams() map[gait.Phase]Params {
	return map[gait.Phase]Params{
		gait.Stance:       {StiffnessNmPerRad: 120, DampingNmPerRadPerSec: 4, EquilibriumRad: 0.05},
		gait.EarlyStance:  {StiffnessNmPerRad: 90, DampingNmPerRadPerSec: 6, EquilibriumRad: 0.10},
		gait.LateStance:   {StiffnessNmPerRad: 140, DampingNmPerRadPerSec: 3, EquilibriumRad: -0.05, FeedforwardNm: 8},
		gait.Swing:        {StiffnessNmPerRad: 20, DampingNmPerRadPerSec: 1.5, EquilibriumRad: 0.30},
		gait.SwingFlexion: {StiffnessNmPerRad: 15, DampingNmPerRadPerSec: 2, EquilibriumRad: 0.60},
		gait.Fault:        {StiffnessNmPerRad: 10, DampingNmPerRadPerSec: 8, EquilibriumRad: 0.0},
	}
}

func est(angle, velocity float64) estimate.StateEstimate {
	return estimate.StateEstimate{Angle: angle, Velocity: velocity, Valid: true}
}

func TestParams_Torque(t *testing.T) {
	p := Params{StiffnessNmPerRad: 100, DampingNmPerRadPerSec: 5, EquilibriumRad: 0.1, FeedforwardNm: 2}

	// tau = -100*(0.2-0.1) - 5*0.5 + 2 = -10 - 2.5 + 2
	got := p.Torque(0.2, 0.5)
	want := -10.5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Torque = %v, want %v", got, want)
	}
}

func TestController_PureWithinPhase(t *testing.T) {
	c := NewController(testParams(), 1)

	a := c.Control(gait.Stance, est(0.1, 0.2))
	b := c.Control(gait.Stance, est(0.1, 0.2))

	if a.TorqueNm != b.TorqueNm || a.Stiffness != b.Stiffness {
		t.Errorf("same phase and estimate produced different commands: %+v vs %+v", a, b)
	}
}

func TestController_SeqMonotonic(t *testing.T) {
	c := NewController(testParams(), 4)

	var prev uint64
	phases := []gait.Phase{gait.Stance, gait.Stance, gait.Swing, gait.Swing, gait.EarlyStance}
	for i, ph := range phases {
		cmd := c.Control(ph, est(0.1, 0))
		if cmd.Seq <= prev {
			t.Fatalf("step %d: Seq %d not monotonically increasing (prev %d)", i, cmd.Seq, prev)
		}
		prev = cmd.Seq
	}
}

func TestController_BlendCompletes(t *testing.T) {
	const blendTicks = 4
	c := NewController(testParams(), blendTicks)
	e := est(0.1, 0)

	start := c.Control(gait.Stance, e)
	target := testParams()[gait.Swing]
	wantFinal := target.Torque(e.Angle, e.Velocity)

	var cmds []Command
	for i := 0; i < blendTicks; i++ {
		cmds = append(cmds, c.Control(gait.Swing, e))
	}

	// Intermediate commands move monotonically from the old command toward
	// the new phase's command, reaching it when the window closes.
	last := cmds[len(cmds)-1]
	if math.Abs(last.TorqueNm-wantFinal) > 1e-9 {
		t.Errorf("final blended torque = %v, want %v", last.TorqueNm, wantFinal)
	}
	if math.Abs(cmds[0].TorqueNm-start.TorqueNm) > math.Abs(wantFinal-start.TorqueNm) {
		t.Error("first blended command stepped past the target")
	}
}

func TestController_BlendBoundedStep(t *testing.T) {
	const blendTicks = 10
	c := NewController(testParams(), blendTicks)
	e := est(0.1, 0)

	prev := c.Control(gait.Stance, e)
	full := math.Abs(testParams()[gait.Swing].Torque(e.Angle, e.Velocity) - prev.TorqueNm)
	maxStep := full/float64(blendTicks) + 1e-9

	for i := 0; i < blendTicks; i++ {
		cmd := c.Control(gait.Swing, e)
		if d := math.Abs(cmd.TorqueNm - prev.TorqueNm); d > maxStep {
			t.Fatalf("tick %d: torque step %v exceeds %v", i, d, maxStep)
		}
		prev = cmd
	}
}

func TestController_BlendRestartsFromLastIssued(t *testing.T) {
	const blendTicks = 6
	c := NewController(testParams(), blendTicks)
	e := est(0.1, 0)

	c.Control(gait.Stance, e)

	// Start blending toward Swing, then interrupt after one blended tick.
	mid := c.Control(gait.Swing, e)

	// New transition before the blend completes: interpolation must restart
	// from mid (the command last issued), not from the Stance baseline.
	next := c.Control(gait.EarlyStance, e)

	target := testParams()[gait.EarlyStance].Torque(e.Angle, e.Velocity)
	wantFirst := mid.TorqueNm + (target-mid.TorqueNm)/float64(blendTicks)
	if math.Abs(next.TorqueNm-wantFirst) > 1e-9 {
		t.Errorf("restarted blend torque = %v, want %v (from last issued %v)",
			next.TorqueNm, wantFirst, mid.TorqueNm)
	}

	// No discontinuity across the interruption.
	if d := math.Abs(next.TorqueNm - mid.TorqueNm); d > math.Abs(target-mid.TorqueNm) {
		t.Errorf("command jumped by %v across interrupted blend", d)
	}
}

func TestController_NoBlendWhenDisabled(t *testing.T) {
	c := NewController(testParams(), 1)
	e := est(0.1, 0)

	c.Control(gait.Stance, e)
	cmd := c.Control(gait.Swing, e)

	want := testParams()[gait.Swing].Torque(e.Angle, e.Velocity)
	if math.Abs(cmd.TorqueNm-want) > 1e-9 {
		t.Errorf("torque = %v, want immediate %v with blending disabled", cmd.TorqueNm, want)
	}
}
