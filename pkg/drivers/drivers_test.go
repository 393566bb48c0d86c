package drivers

import (
	"errors"
	"testing"
	"time"

	"github.com/opensourceleg/go-osl/pkg/frame"
)

type fakeIMU struct {
	samples int
	err     error
}

func (f *fakeIMU) Sample() (float64, float64, float64, error) {
	f.samples++
	if f.err != nil {
		return 0, 0, 0, f.err
	}
	return 0.01, 0.2, 0.5, nil
}

type fakeLoadcell struct{ load float64 }

func (f *fakeLoadcell) Load() (float64, error) { return f.load, nil }

type fakeEncoder struct{ angle, vel float64 }

func (f *fakeEncoder) Angle() (float64, error)    { return f.angle, nil }
func (f *fakeEncoder) Velocity() (float64, error) { return f.vel, nil }

func TestSource_ReadsAllChannels(t *testing.T) {
	src := NewSource(&fakeIMU{}, &fakeLoadcell{load: 420}, &fakeEncoder{angle: 0.3, vel: -0.8})

	tests := []struct {
		ch   frame.Channel
		want float64
	}{
		{frame.ChannelJointAngle, 0.3},
		{frame.ChannelJointVelocity, -0.8},
		{frame.ChannelAxialLoad, 420},
		{frame.ChannelIMURoll, 0.01},
		{frame.ChannelIMUPitch, 0.2},
		{frame.ChannelIMUGyroY, 0.5},
	}
	for _, tt := range tests {
		got, err := src.Read(tt.ch, time.Millisecond)
		if err != nil {
			t.Fatalf("Read(%s): %v", tt.ch, err)
		}
		if got != tt.want {
			t.Errorf("Read(%s) = %v, want %v", tt.ch, got, tt.want)
		}
	}
}

func TestSource_CachesIMUSampleWithinTick(t *testing.T) {
	imu := &fakeIMU{}
	src := NewSource(imu, &fakeLoadcell{}, &fakeEncoder{})

	// Three IMU channels back to back: one transaction.
	for _, ch := range []frame.Channel{frame.ChannelIMURoll, frame.ChannelIMUPitch, frame.ChannelIMUGyroY} {
		if _, err := src.Read(ch, time.Millisecond); err != nil {
			t.Fatalf("Read(%s): %v", ch, err)
		}
	}
	if imu.samples != 1 {
		t.Errorf("IMU sampled %d times for one channel sweep, want 1", imu.samples)
	}
}

func TestSource_IMUFailureIsUnavailable(t *testing.T) {
	imu := &fakeIMU{err: errors.New("spi timeout")}
	src := NewSource(imu, &fakeLoadcell{}, &fakeEncoder{})

	_, err := src.Read(frame.ChannelIMUGyroY, time.Millisecond)
	if !errors.Is(err, frame.ErrSensorUnavailable) {
		t.Fatalf("err = %v, want ErrSensorUnavailable", err)
	}
}

func TestSimSource_WalksThroughStanceAndSwing(t *testing.T) {
	sim := NewSimSource()

	var sawLoaded, sawUnloaded bool
	for i := uint64(0); i < sim.StridePeriod; i++ {
		var load float64
		for _, ch := range frame.Channels() {
			v, err := sim.Read(ch, time.Millisecond)
			if err != nil {
				t.Fatalf("Read(%s): %v", ch, err)
			}
			if ch == frame.ChannelAxialLoad {
				load = v
			}
		}
		if load > 100 {
			sawLoaded = true
		} else {
			sawUnloaded = true
		}
	}

	if !sawLoaded || !sawUnloaded {
		t.Errorf("one stride should cover stance and swing (loaded=%v unloaded=%v)", sawLoaded, sawUnloaded)
	}
}
