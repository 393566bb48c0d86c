// Package actuator delivers commands to the drive hardware.
//
// A Sink is the single point where a command leaves the control process. The
// dispatcher in pkg/loop sends exactly one command per tick; sinks report
// delivery with an Ack or fail with ErrActuatorUnreachable so the scheduler
// can retry on the next tick and escalate after repeated failures.
package actuator

import (
	"context"
	"errors"
	"time"

	"github.com/opensourceleg/go-osl/pkg/impedance"
)

// ErrActuatorUnreachable means the command could not be delivered. The drive
// holds its previous setpoint; the caller decides when repeated failures
// become a fault.
var ErrActuatorUnreachable = errors.New("actuator unreachable")

// Ack confirms delivery of one command.
type Ack struct {
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
}

// Sink delivers commands to a drive. Send must return promptly; callers pass
// a context bounded by the control period.
type Sink interface {
	Send(ctx context.Context, cmd impedance.Command) (Ack, error)
}

// Closer is implemented by sinks holding an OS resource (serial port,
// network connection).
type Closer interface {
	Close() error
}
