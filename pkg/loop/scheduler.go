// Package loop runs the fixed-rate control cycle.
//
// The Scheduler owns the single control goroutine. Every period it runs the
// pipeline acquire -> condition -> gait -> impedance -> guard -> dispatch,
// exactly once, in that order. Everything the scheduler touches is
// single-threaded; the only concurrent surface is the Snapshot/RequestReset
// API, which is mutex-guarded.
package loop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensourceleg/go-osl/internal/log"
	"github.com/opensourceleg/go-osl/pkg/actuator"
	"github.com/opensourceleg/go-osl/pkg/estimate"
	"github.com/opensourceleg/go-osl/pkg/frame"
	"github.com/opensourceleg/go-osl/pkg/gait"
	"github.com/opensourceleg/go-osl/pkg/impedance"
	"github.com/opensourceleg/go-osl/pkg/safety"
	"github.com/opensourceleg/go-osl/pkg/telemetry"
)

// Config tunes the scheduler's timing and escalation thresholds.
type Config struct {
	// Period is the control period. 1ms gives the canonical 1 kHz loop.
	Period time.Duration

	// StaleLimit: consecutive substituted frames before the loop faults.
	StaleLimit int

	// MissLimit: consecutive deadline misses before the loop faults.
	MissLimit int

	// DispatchLimit: consecutive failed sends before the loop faults. A
	// single failure is retried implicitly by the next tick's send.
	DispatchLimit int
}

// DefaultConfig returns the canonical 1 kHz timing with 3-strike escalation.
func DefaultConfig() Config {
	return Config{
		Period:        time.Millisecond,
		StaleLimit:    3,
		MissLimit:     3,
		DispatchLimit: 3,
	}
}

// Snapshot is a point-in-time view of the loop for status reporting.
type Snapshot struct {
	Running bool       `json:"running"`
	Tick    uint64     `json:"tick"`
	Phase   gait.Phase `json:"phase"`

	FaultCause string              `json:"fault_cause,omitempty"`
	LastFault  *safety.FaultRecord `json:"last_fault,omitempty"`

	MissedDeadlines   uint64 `json:"missed_deadlines"`
	ConsecutiveMisses int    `json:"consecutive_misses"`
	StaleFrames       uint64 `json:"stale_frames"`
	Overrides         uint64 `json:"overrides"`

	LastCycleMicros  int64 `json:"last_cycle_us"`
	WorstCycleMicros int64 `json:"worst_cycle_us"`
}

// Scheduler drives the control pipeline at a fixed rate.
type Scheduler struct {
	cfg Config

	acq   *frame.Acquirer
	cond  *estimate.Conditioner
	gait  *gait.Estimator
	ctrl  *impedance.Controller
	guard *safety.Guard
	sink  actuator.Sink
	rec   *telemetry.Recorder

	// onFault, when set, is called off the hot path for every fault record.
	onFault func(safety.FaultRecord)

	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	running  bool
	stopping bool
	resetReq bool
	snap     Snapshot

	// Single-threaded loop state, touched only by the control goroutine.
	tick          uint64
	missStreak    int
	dispatchFails int
	missedTotal   uint64
	staleTotal    uint64
	overrides     uint64
	worstCycle    time.Duration
	lastFault     *safety.FaultRecord
	prior         estimate.StateEstimate
}

// New wires a scheduler. All collaborators are required except rec and
// onFault, which may be nil.
func New(cfg Config, acq *frame.Acquirer, cond *estimate.Conditioner, ge *gait.Estimator,
	ctrl *impedance.Controller, guard *safety.Guard, sink actuator.Sink,
	rec *telemetry.Recorder, onFault func(safety.FaultRecord)) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		acq:     acq,
		cond:    cond,
		gait:    ge,
		ctrl:    ctrl,
		guard:   guard,
		sink:    sink,
		rec:     rec,
		onFault: onFault,
	}
}

// Start launches the control goroutine. No-op if already running.
func (s *Scheduler) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run executes the loop until Stop is called or ctx is canceled. Blocks.
// A stopped scheduler can be run again; loop counters carry over.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopping = false
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Info("control loop starting", "period", s.cfg.Period)

	// time.Ticker coalesces missed ticks: a cycle that overruns sees at
	// most one pending tick, so overruns skip forward instead of
	// double-executing.
	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.stop:
			s.shutdown()
			return
		case now := <-ticker.C:
			s.cycle(ctx, now)
		}
	}
}

// Stop halts the loop at the next cycle boundary and waits for it to finish.
// A final safe-hold command is dispatched on the way out. No-op when the
// loop is not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if !s.stopping {
		s.stopping = true
		close(s.stop)
	}
	done := s.done
	s.mu.Unlock()
	<-done
}

// RequestReset asks the loop to leave Fault at the next cycle boundary.
func (s *Scheduler) RequestReset() {
	s.mu.Lock()
	s.resetReq = true
	s.mu.Unlock()
}

// Snapshot returns the current loop status.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.Running = s.running
	return snap
}

// cycle runs one control period end to end.
func (s *Scheduler) cycle(ctx context.Context, now time.Time) {
	start := time.Now()
	s.tick++

	s.mu.Lock()
	reset := s.resetReq
	s.resetReq = false
	s.mu.Unlock()
	if reset {
		if err := s.gait.Reset(); err == nil {
			s.missStreak = 0
			s.dispatchFails = 0
			s.lastFault = nil
			log.Info("fault reset", "tick", s.tick)
		}
	}

	// 1. Acquire. A failed read yields the previous frame marked stale.
	f, acqErr := s.acq.Acquire(s.tick, now)
	if f.Stale {
		s.staleTotal++
	}
	if s.acq.ConsecutiveStale() >= s.cfg.StaleLimit {
		s.trip(safety.CauseSensorUnavailable,
			fmt.Sprintf("%d consecutive stale frames", s.acq.ConsecutiveStale()), nil)
	} else if acqErr != nil {
		log.Debug("sensor read failed, substituting", "tick", s.tick, "error", acqErr)
	}

	// 2. Condition.
	est := s.cond.Condition(f, s.prior)
	s.prior = est

	// 3. Gait phase.
	phase := s.gait.Step(gait.Input{Estimate: est, ConsecutiveInvalid: s.cond.ConsecutiveInvalid()})

	// 4-5. Control and guard. In Fault the loop holds the joint safe and
	// skips the guard; the safe-hold command is in-envelope by construction.
	var out impedance.Command
	var guardRec *safety.FaultRecord
	cmd := s.ctrl.Control(phase, est)
	if phase == gait.Fault {
		out = s.guard.SafeHold(cmd.Seq)
		out.Phase = gait.Fault
	} else {
		out, guardRec = s.guard.Check(cmd, est)
		if guardRec != nil {
			s.overrides++
			s.raise(*guardRec)
		}
	}

	// 6. Dispatch. The send budget is the remainder of the period.
	sctx, cancel := context.WithTimeout(ctx, s.cfg.Period)
	_, sendErr := s.sink.Send(sctx, out)
	cancel()
	if sendErr != nil {
		s.dispatchFails++
		log.Warn("dispatch failed", "tick", s.tick, "failures", s.dispatchFails, "error", sendErr)
		if s.dispatchFails >= s.cfg.DispatchLimit {
			s.trip(safety.CauseActuatorUnreachable,
				fmt.Sprintf("%d consecutive dispatch failures", s.dispatchFails), nil)
		}
	} else {
		s.dispatchFails = 0
	}

	// Deadline accounting. The miss is recorded after the cycle completes;
	// the ticker handles skip-ahead.
	elapsed := time.Since(start)
	missed := elapsed > s.cfg.Period
	if missed {
		s.missedTotal++
		s.missStreak++
		log.Warn("deadline miss", "tick", s.tick, "elapsed", elapsed, "streak", s.missStreak)
		if s.missStreak >= s.cfg.MissLimit {
			s.trip(safety.CauseDeadlineMiss,
				fmt.Sprintf("%d consecutive deadline misses", s.missStreak),
				map[string]float64{"elapsed_us": float64(elapsed.Microseconds())})
		}
	} else {
		s.missStreak = 0
	}
	if elapsed > s.worstCycle {
		s.worstCycle = elapsed
	}

	if s.rec != nil {
		sample := telemetry.Sample{
			Tick:           s.tick,
			Phase:          phase,
			Estimate:       est,
			Command:        out,
			StaleFrame:     f.Stale,
			DeadlineMissed: missed,
			CycleMicros:    elapsed.Microseconds(),
		}
		if guardRec != nil {
			sample.Overridden = true
			sample.FaultID = guardRec.ID
		}
		s.rec.Publish(sample)
	}

	s.publishSnapshot(phase, elapsed)
}

// trip latches the gait estimator into Fault and raises a fault record.
// Once faulted, later causes are not re-raised.
func (s *Scheduler) trip(cause safety.Cause, detail string, values map[string]float64) {
	if s.gait.Phase() == gait.Fault {
		return
	}
	s.gait.Trip(string(cause))
	rec := safety.NewFaultRecord(cause, s.tick, detail, values)
	s.raise(rec)
	log.Error("control loop fault", "cause", cause, "tick", s.tick, "detail", detail)
}

// raise records a fault and hands it to the onFault callback.
func (s *Scheduler) raise(rec safety.FaultRecord) {
	s.lastFault = &rec
	if s.onFault != nil {
		go s.onFault(rec)
	}
}

// shutdown parks the joint in safe-hold before the loop exits.
func (s *Scheduler) shutdown() {
	hold := s.guard.SafeHold(s.ctrl.LastCommand().Seq + 1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := s.sink.Send(ctx, hold); err != nil {
		log.Error("safe-hold dispatch on shutdown failed", "error", err)
	}
	log.Info("control loop stopped", "ticks", s.tick, "missed_deadlines", s.missedTotal)
}

func (s *Scheduler) publishSnapshot(phase gait.Phase, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		Running:           true,
		Tick:              s.tick,
		Phase:             phase,
		FaultCause:        s.gait.FaultCause(),
		LastFault:         s.lastFault,
		MissedDeadlines:   s.missedTotal,
		ConsecutiveMisses: s.missStreak,
		StaleFrames:       s.staleTotal,
		Overrides:         s.overrides,
		LastCycleMicros:   elapsed.Microseconds(),
		WorstCycleMicros:  s.worstCycle.Microseconds(),
	}
}
