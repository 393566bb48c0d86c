package drivers

import (
	"context"
	"sync"
	"time"
)

// AngleReader reads a joint angle from the drive's own encoder.
type AngleReader interface {
	Angle(ctx context.Context) (float64, error)
}

// ServoEncoder adapts a drive-side encoder into an Encoder, deriving
// velocity by finite difference between reads.
type ServoEncoder struct {
	reader  AngleReader
	timeout time.Duration

	mu       sync.Mutex
	angle    float64
	velocity float64
	at       time.Time
	have     bool
}

// NewServoEncoder wraps an angle reader with a per-read budget.
func NewServoEncoder(reader AngleReader, timeout time.Duration) *ServoEncoder {
	return &ServoEncoder{reader: reader, timeout: timeout}
}

// Angle reads the current joint angle and updates the velocity estimate.
func (e *ServoEncoder) Angle() (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	angle, err := e.reader.Angle(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	e.mu.Lock()
	if e.have {
		if dt := now.Sub(e.at).Seconds(); dt > 0 {
			e.velocity = (angle - e.angle) / dt
		}
	}
	e.angle = angle
	e.at = now
	e.have = true
	e.mu.Unlock()

	return angle, nil
}

// Velocity returns the finite-difference velocity from the last two reads.
func (e *ServoEncoder) Velocity() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.velocity, nil
}
