package safety

import (
	"time"

	"github.com/google/uuid"
)

// Cause classifies a fault record.
type Cause string

const (
	CauseSensorUnavailable   Cause = "sensor_unavailable"
	CauseSensorImplausible   Cause = "sensor_implausible"
	CauseDeadlineMiss        Cause = "deadline_miss"
	CauseActuatorUnreachable Cause = "actuator_unreachable"
	CauseSafetyViolation     Cause = "safety_violation"
)

// FaultRecord describes one fault event. Records are append-only: created
// once, never mutated.
type FaultRecord struct {
	ID     string             `json:"id"`
	Cause  Cause              `json:"cause"`
	Tick   uint64             `json:"tick"`
	Detail string             `json:"detail,omitempty"`
	Values map[string]float64 `json:"values,omitempty"`
	At     time.Time          `json:"at"`
}

// NewFaultRecord creates a record with a fresh ID and timestamp.
func NewFaultRecord(cause Cause, tick uint64, detail string, values map[string]float64) FaultRecord {
	return FaultRecord{
		ID:     uuid.NewString(),
		Cause:  cause,
		Tick:   tick,
		Detail: detail,
		Values: values,
		At:     time.Now(),
	}
}
