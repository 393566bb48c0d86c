// Package estimate turns raw sensor frames into a filtered state estimate.
//
// The Conditioner is deterministic: the same frame and prior estimate always
// produce the same output. Its only memory beyond the prior estimate is the
// consecutive-invalid counter the gait estimator uses for fault detection.
package estimate

import (
	"math"

	"github.com/opensourceleg/go-osl/pkg/frame"
)

// Coefficients are the fixed filter coefficients and plausibility limits,
// supplied by configuration. Alphas are single-pole low-pass weights in
// (0, 1]; 1 disables filtering for that channel.
type Coefficients struct {
	AngleAlpha    float64 `json:"angle_alpha"`
	VelocityAlpha float64 `json:"velocity_alpha"`
	LoadAlpha     float64 `json:"load_alpha"`

	// MaxAccel is the physical plausibility limit (rad/s^2). A sample
	// implying a larger acceleration is rejected and extrapolated over.
	MaxAccel float64 `json:"max_accel"`

	// Ground-contact hysteresis thresholds (N). ContactOn must be above
	// ContactOff.
	ContactOnN  float64 `json:"contact_on"`
	ContactOffN float64 `json:"contact_off"`
}

// StateEstimate is the loop's filtered view of the joint, derived each tick
// from one SensorFrame and the prior estimate.
type StateEstimate struct {
	Tick          uint64  `json:"tick"`
	Angle         float64 `json:"angle"`
	Velocity      float64 `json:"velocity"`
	Load          float64 `json:"load"`
	GroundContact bool    `json:"contact"`

	// Valid is false when the tick's raw sample was stale or rejected.
	Valid bool `json:"valid"`
	// Extrapolated marks values carried forward instead of measured.
	Extrapolated bool `json:"extrapolated,omitempty"`
}

// Conditioner filters and sanity-checks raw frames.
type Conditioner struct {
	coef Coefficients
	dt   float64 // control period in seconds

	invalid     int
	initialized bool
}

// NewConditioner creates a Conditioner for the given coefficients and
// control period.
func NewConditioner(coef Coefficients, dt float64) *Conditioner {
	return &Conditioner{coef: coef, dt: dt}
}

// Condition produces the tick's state estimate from a frame and the prior
// estimate. Stale frames and implausible samples yield an extrapolated,
// invalid estimate; the velocity estimate's rate of change is always bounded
// by MaxAccel so downstream control never sees a discontinuity.
func (c *Conditioner) Condition(f frame.SensorFrame, prior StateEstimate) StateEstimate {
	if !c.initialized {
		c.initialized = true
		est := StateEstimate{
			Tick:     f.Tick,
			Angle:    f.JointAngle,
			Velocity: f.JointVelocity,
			Load:     f.AxialLoad,
			Valid:    !f.Stale,
		}
		est.GroundContact = f.AxialLoad >= c.coef.ContactOnN
		if f.Stale {
			c.invalid++
		} else {
			c.invalid = 0
		}
		return est
	}

	if f.Stale {
		c.invalid++
		return c.extrapolate(f.Tick, prior)
	}

	// Plausibility: reject a sample whose implied acceleration exceeds the
	// physical limit, substituting an extrapolation instead.
	impliedAccel := (f.JointVelocity - prior.Velocity) / c.dt
	if math.Abs(impliedAccel) > c.coef.MaxAccel || !finite(f.JointAngle, f.JointVelocity, f.AxialLoad) {
		c.invalid++
		return c.extrapolate(f.Tick, prior)
	}
	c.invalid = 0

	est := StateEstimate{
		Tick:     f.Tick,
		Angle:    lowpass(prior.Angle, f.JointAngle, c.coef.AngleAlpha),
		Velocity: lowpass(prior.Velocity, f.JointVelocity, c.coef.VelocityAlpha),
		Load:     lowpass(prior.Load, f.AxialLoad, c.coef.LoadAlpha),
		Valid:    true,
	}

	// Bounded rate of change on the velocity estimate, even for accepted
	// samples: the filter may not step faster than the plausibility limit.
	maxStep := c.coef.MaxAccel * c.dt
	est.Velocity = clampDelta(prior.Velocity, est.Velocity, maxStep)

	est.GroundContact = c.contact(prior.GroundContact, est.Load)
	return est
}

// ConsecutiveInvalid returns how many ticks in a row produced an invalid
// estimate (stale frame or rejected sample).
func (c *Conditioner) ConsecutiveInvalid() int {
	return c.invalid
}

// extrapolate carries the prior estimate forward one tick: angle advances at
// the prior velocity, velocity holds.
func (c *Conditioner) extrapolate(tick uint64, prior StateEstimate) StateEstimate {
	return StateEstimate{
		Tick:          tick,
		Angle:         prior.Angle + prior.Velocity*c.dt,
		Velocity:      prior.Velocity,
		Load:          prior.Load,
		GroundContact: prior.GroundContact,
		Valid:         false,
		Extrapolated:  true,
	}
}

// contact applies load hysteresis: switch on above ContactOn, off below
// ContactOff, hold in between.
func (c *Conditioner) contact(prior bool, load float64) bool {
	if load >= c.coef.ContactOnN {
		return true
	}
	if load <= c.coef.ContactOffN {
		return false
	}
	return prior
}

func lowpass(prior, raw, alpha float64) float64 {
	return alpha*raw + (1-alpha)*prior
}

// clampDelta limits next to within maxStep of prior.
func clampDelta(prior, next, maxStep float64) float64 {
	if next > prior+maxStep {
		return prior + maxStep
	}
	if next < prior-maxStep {
		return prior - maxStep
	}
	return next
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
