// Package drivers binds sensor hardware to the acquisition interface.
//
// Each device (IMU, loadcell, joint encoder) is wrapped behind a small
// reader interface; Source composes them into the per-channel view the
// control loop acquires from. The simulated source lives here too, so bench
// runs and tests exercise the same wiring as the leg.
package drivers

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/opensourceleg/go-osl/pkg/frame"
)

// IMU delivers shank orientation and sagittal angular rate.
type IMU interface {
	Sample() (roll, pitch, gyroY float64, err error)
}

// Loadcell delivers the axial load in newtons.
type Loadcell interface {
	Load() (float64, error)
}

// Encoder delivers the joint angle and velocity in radians.
type Encoder interface {
	Angle() (float64, error)
	Velocity() (float64, error)
}

// Source composes the device readers into a frame.Source.
//
// An IMU sample is cached per tick: the roll, pitch and gyro channels are
// read back to back, and one SPI transaction serves all three.
type Source struct {
	imu IMU
	lc  Loadcell
	enc Encoder

	mu        sync.Mutex
	roll      float64
	pitch     float64
	gyroY     float64
	imuAt     time.Time
	imuMaxAge time.Duration
}

// NewSource creates a hardware-backed source.
func NewSource(imu IMU, lc Loadcell, enc Encoder) *Source {
	return &Source{imu: imu, lc: lc, enc: enc, imuMaxAge: 500 * time.Microsecond}
}

// Read implements frame.Source.
func (s *Source) Read(ch frame.Channel, timeout time.Duration) (float64, error) {
	switch ch {
	case frame.ChannelJointAngle:
		return s.enc.Angle()
	case frame.ChannelJointVelocity:
		return s.enc.Velocity()
	case frame.ChannelAxialLoad:
		return s.lc.Load()
	case frame.ChannelIMURoll, frame.ChannelIMUPitch, frame.ChannelIMUGyroY:
		return s.readIMU(ch)
	default:
		return 0, fmt.Errorf("%w: unknown channel %q", frame.ErrSensorUnavailable, ch)
	}
}

func (s *Source) readIMU(ch frame.Channel) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.imuAt) > s.imuMaxAge {
		roll, pitch, gyroY, err := s.imu.Sample()
		if err != nil {
			return 0, fmt.Errorf("%w: imu: %v", frame.ErrSensorUnavailable, err)
		}
		s.roll, s.pitch, s.gyroY = roll, pitch, gyroY
		s.imuAt = time.Now()
	}

	switch ch {
	case frame.ChannelIMURoll:
		return s.roll, nil
	case frame.ChannelIMUPitch:
		return s.pitch, nil
	default:
		return s.gyroY, nil
	}
}

// SimSource synthesizes a walking gait for bench runs without hardware.
// One stride per SimPeriod: loaded stance with slow extension, then an
// unloaded swing with a flexion peak.
type SimSource struct {
	mu   sync.Mutex
	tick uint64

	// StridePeriod is the simulated stride duration in ticks.
	StridePeriod uint64
	// StanceLoadN is the body-weight load during stance.
	StanceLoadN float64
}

// NewSimSource creates a simulator with a 1200-tick stride and 600 N stance
// load, roughly a slow walk at 1 kHz.
func NewSimSource() *SimSource {
	return &SimSource{StridePeriod: 1200, StanceLoadN: 600}
}

// Read implements frame.Source. Each full channel sweep advances the stride
// on the joint-angle read, which the acquirer issues first.
func (s *SimSource) Read(ch frame.Channel, timeout time.Duration) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch == frame.ChannelJointAngle {
		s.tick++
	}

	// Phase through the stride in [0, 1): first 60% stance, rest swing.
	p := float64(s.tick%s.StridePeriod) / float64(s.StridePeriod)
	inStance := p < 0.6

	switch ch {
	case frame.ChannelJointAngle:
		if inStance {
			// Small flexion wave through stance.
			return 0.1 + 0.15*math.Sin(p/0.6*math.Pi), nil
		}
		// Swing flexes toward 1.0 rad and extends back.
		return 0.1 + 0.9*math.Sin((p-0.6)/0.4*math.Pi), nil
	case frame.ChannelJointVelocity:
		if inStance {
			return 0.15 * math.Pi / 0.6 * math.Cos(p/0.6*math.Pi) / float64(s.StridePeriod) * 1000, nil
		}
		return 0.9 * math.Pi / 0.4 * math.Cos((p-0.6)/0.4*math.Pi) / float64(s.StridePeriod) * 1000, nil
	case frame.ChannelAxialLoad:
		if inStance {
			return s.StanceLoadN, nil
		}
		return 5, nil
	case frame.ChannelIMURoll:
		return 0.02 * math.Sin(2*math.Pi*p), nil
	case frame.ChannelIMUPitch:
		return 0.3 * math.Sin(2*math.Pi*p), nil
	case frame.ChannelIMUGyroY:
		return 0.6 * math.Cos(2*math.Pi*p), nil
	default:
		return 0, fmt.Errorf("%w: unknown channel %q", frame.ErrSensorUnavailable, ch)
	}
}
