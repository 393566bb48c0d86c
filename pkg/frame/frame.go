// Package frame provides sensor frame acquisition for the control loop.
//
// A SensorFrame is a synchronized snapshot of every sensor channel the
// controller needs for one tick. Frames are created and consumed within a
// single tick; only the Acquirer holds the previous frame, for stale
// substitution when a channel read fails.
package frame

import (
	"errors"
	"time"
)

// ErrSensorUnavailable is returned when a required channel cannot be read
// within the bounded wait.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// Channel identifies a single sensor channel.
type Channel string

// Channels read each tick, in acquisition order.
const (
	ChannelJointAngle    Channel = "joint_angle"    // rad
	ChannelJointVelocity Channel = "joint_velocity" // rad/s
	ChannelAxialLoad     Channel = "axial_load"     // N
	ChannelIMURoll       Channel = "imu_roll"       // rad
	ChannelIMUPitch      Channel = "imu_pitch"      // rad
	ChannelIMUGyroY      Channel = "imu_gyro_y"     // rad/s, sagittal rate
)

// Channels returns all channels in acquisition order.
func Channels() []Channel {
	return []Channel{
		ChannelJointAngle,
		ChannelJointVelocity,
		ChannelAxialLoad,
		ChannelIMURoll,
		ChannelIMUPitch,
		ChannelIMUGyroY,
	}
}

// Source is anything that can read raw sensor channels. Hardware bindings
// (SPI, serial, shared memory) live outside the core; the loop only sees
// this bounded-timeout interface.
type Source interface {
	// Read returns the current value of the channel, or ErrSensorUnavailable
	// (possibly wrapped) if it cannot be read within timeout.
	Read(ch Channel, timeout time.Duration) (float64, error)
}

// IMUSample holds shank orientation and angular rate.
type IMUSample struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	GyroY float64 `json:"gyro_y"`
}

// SensorFrame is one synchronized snapshot of the joint and IMU state.
// Immutable once captured.
type SensorFrame struct {
	Tick          uint64    `json:"tick"`
	Timestamp     time.Time `json:"ts"`
	JointAngle    float64   `json:"joint_angle"`
	JointVelocity float64   `json:"joint_velocity"`
	AxialLoad     float64   `json:"axial_load"`
	IMU           IMUSample `json:"imu"`

	// Stale marks a substituted frame: acquisition failed and the previous
	// frame was reissued in its place.
	Stale bool `json:"stale,omitempty"`
}
