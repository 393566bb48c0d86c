package frame

import (
	"fmt"
	"time"
)

// Acquirer pulls a synchronized SensorFrame from a Source each tick.
//
// When any channel read fails the Acquirer substitutes the previous frame,
// marked stale, and counts consecutive substitutions. The scheduler watches
// ConsecutiveStale to escalate repeated failures to a fault.
type Acquirer struct {
	src     Source
	timeout time.Duration

	prev     SensorFrame
	havePrev bool
	stale    int
}

// NewAcquirer creates an Acquirer reading from src with a per-channel
// bounded wait.
func NewAcquirer(src Source, timeout time.Duration) *Acquirer {
	return &Acquirer{src: src, timeout: timeout}
}

// Acquire reads every channel and returns a frame stamped with tick and now.
//
// On failure it returns the previous frame marked stale together with the
// read error (wrapping ErrSensorUnavailable). The returned frame is always
// usable: before the first successful read a zero-valued stale frame is
// returned.
func (a *Acquirer) Acquire(tick uint64, now time.Time) (SensorFrame, error) {
	f := SensorFrame{Tick: tick, Timestamp: now}

	for _, ch := range Channels() {
		v, err := a.src.Read(ch, a.timeout)
		if err != nil {
			return a.substitute(tick, now), fmt.Errorf("read %s: %w", ch, err)
		}
		switch ch {
		case ChannelJointAngle:
			f.JointAngle = v
		case ChannelJointVelocity:
			f.JointVelocity = v
		case ChannelAxialLoad:
			f.AxialLoad = v
		case ChannelIMURoll:
			f.IMU.Roll = v
		case ChannelIMUPitch:
			f.IMU.Pitch = v
		case ChannelIMUGyroY:
			f.IMU.GyroY = v
		}
	}

	a.prev = f
	a.havePrev = true
	a.stale = 0
	return f, nil
}

// substitute reissues the previous frame as a stale stand-in.
func (a *Acquirer) substitute(tick uint64, now time.Time) SensorFrame {
	a.stale++
	f := a.prev // zero frame if nothing was ever read
	f.Tick = tick
	f.Timestamp = now
	f.Stale = true
	return f
}

// ConsecutiveStale returns how many frames in a row have been substituted.
func (a *Acquirer) ConsecutiveStale() int {
	return a.stale
}
