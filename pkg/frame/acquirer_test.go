package frame

import (
	"errors"
	"testing"
	"time"
)

// scriptedSource returns values from a per-channel script, failing a channel
// once its script is exhausted or when marked down.
type scriptedSource struct {
	values map[Channel]float64
	down   map[Channel]bool
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		values: map[Channel]float64{},
		down:   map[Channel]bool{},
	}
}

func (s *scriptedSource) Read(ch Channel, _ time.Duration) (float64, error) {
	if s.down[ch] {
		return 0, ErrSensorUnavailable
	}
	return s.values[ch], nil
}

func TestAcquirer_Acquire(t *testing.T) {
	src := newScriptedSource()
	src.values[ChannelJointAngle] = 0.1
	src.values[ChannelJointVelocity] = -0.5
	src.values[ChannelAxialLoad] = 420.0
	src.values[ChannelIMUPitch] = 0.02

	a := NewAcquirer(src, 500*time.Microsecond)

	f, err := a.Acquire(7, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if f.Tick != 7 {
		t.Errorf("Tick = %d, want 7", f.Tick)
	}
	if f.JointAngle != 0.1 || f.JointVelocity != -0.5 || f.AxialLoad != 420.0 {
		t.Errorf("frame = %+v, wrong channel values", f)
	}
	if f.IMU.Pitch != 0.02 {
		t.Errorf("IMU.Pitch = %v, want 0.02", f.IMU.Pitch)
	}
	if f.Stale {
		t.Error("fresh frame should not be stale")
	}
	if a.ConsecutiveStale() != 0 {
		t.Errorf("ConsecutiveStale = %d, want 0", a.ConsecutiveStale())
	}
}

func TestAcquirer_StaleSubstitution(t *testing.T) {
	src := newScriptedSource()
	src.values[ChannelJointAngle] = 0.3
	src.values[ChannelAxialLoad] = 100.0

	a := NewAcquirer(src, time.Millisecond)

	if _, err := a.Acquire(1, time.Unix(1, 0)); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	// Kill one channel: acquisition must fall back to the previous frame.
	src.down[ChannelAxialLoad] = true

	f, err := a.Acquire(2, time.Unix(2, 0))
	if !errors.Is(err, ErrSensorUnavailable) {
		t.Fatalf("error = %v, want ErrSensorUnavailable", err)
	}
	if !f.Stale {
		t.Error("substituted frame must be marked stale")
	}
	if f.Tick != 2 {
		t.Errorf("substituted frame Tick = %d, want 2", f.Tick)
	}
	if f.JointAngle != 0.3 || f.AxialLoad != 100.0 {
		t.Errorf("substituted frame = %+v, want previous channel values", f)
	}
	if a.ConsecutiveStale() != 1 {
		t.Errorf("ConsecutiveStale = %d, want 1", a.ConsecutiveStale())
	}
}

func TestAcquirer_StaleStreakAndRecovery(t *testing.T) {
	src := newScriptedSource()
	a := NewAcquirer(src, time.Millisecond)

	if _, err := a.Acquire(1, time.Unix(1, 0)); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	src.down[ChannelJointAngle] = true
	for i := 0; i < 3; i++ {
		if _, err := a.Acquire(uint64(2+i), time.Unix(int64(2+i), 0)); err == nil {
			t.Fatal("Acquire() should fail while channel is down")
		}
	}
	if a.ConsecutiveStale() != 3 {
		t.Errorf("ConsecutiveStale = %d, want 3", a.ConsecutiveStale())
	}

	// Recovery resets the streak.
	src.down[ChannelJointAngle] = false
	if _, err := a.Acquire(5, time.Unix(5, 0)); err != nil {
		t.Fatalf("Acquire() after recovery error = %v", err)
	}
	if a.ConsecutiveStale() != 0 {
		t.Errorf("ConsecutiveStale after recovery = %d, want 0", a.ConsecutiveStale())
	}
}

func TestAcquirer_FirstFrameFailure(t *testing.T) {
	src := newScriptedSource()
	src.down[ChannelJointAngle] = true

	a := NewAcquirer(src, time.Millisecond)

	f, err := a.Acquire(1, time.Unix(1, 0))
	if err == nil {
		t.Fatal("Acquire() should fail")
	}
	if !f.Stale {
		t.Error("substitute with no history must still be marked stale")
	}
	if f.JointAngle != 0 || f.AxialLoad != 0 {
		t.Errorf("substitute with no history = %+v, want zero values", f)
	}
}
