package telemetry

import (
	"github.com/opensourceleg/go-osl/pkg/estimate"
	"github.com/opensourceleg/go-osl/pkg/gait"
	"github.com/opensourceleg/go-osl/pkg/impedance"
)

// Sample is one tick's diagnostics: what the loop sensed, decided and sent.
type Sample struct {
	Tick  uint64     `json:"tick"`
	Phase gait.Phase `json:"phase"`

	Estimate estimate.StateEstimate `json:"estimate"`
	Command  impedance.Command      `json:"command"`

	// Overridden is set when the safety guard substituted the safe-hold
	// command; FaultID then names the record it raised.
	Overridden bool   `json:"overridden,omitempty"`
	FaultID    string `json:"fault_id,omitempty"`

	StaleFrame     bool  `json:"stale_frame,omitempty"`
	DeadlineMissed bool  `json:"deadline_missed,omitempty"`
	CycleMicros    int64 `json:"cycle_us"`
}
