package actuator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/opensourceleg/go-osl/pkg/impedance"
)

// Counts per radian for the STS3215 in position mode: 4096 counts per
// revolution.
const countsPerRad = 4096.0 / (2 * math.Pi)

// FeetechConfig describes the serial drive a FeetechSink talks to.
type FeetechConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
	ServoID  int    `json:"servo_id"`

	// CenterCounts is the raw position corresponding to zero joint angle.
	CenterCounts int `json:"center_counts"`

	// TorqueConstant biases the position target by the commanded torque,
	// in rad/Nm, so the servo's own position loop renders the net torque.
	// Zero tracks the equilibrium angle only.
	TorqueConstant float64 `json:"torque_constant"`
}

// FeetechSink drives a single serial bus servo. The impedance triple is
// realized by commanding the equilibrium angle and letting the servo's own
// position loop pull the joint toward it.
type FeetechSink struct {
	cfg   FeetechConfig
	bus   *feetech.Bus
	group *feetech.ServoGroup
}

// NewFeetechSink opens the serial bus and enables torque on the servo.
func NewFeetechSink(cfg FeetechConfig) (*FeetechSink, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1_000_000
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, cfg.ServoID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable torque: %w", err)
	}

	return &FeetechSink{cfg: cfg, bus: bus, group: group}, nil
}

// Send writes the command's equilibrium angle, biased by the torque
// constant, as the servo position target.
func (s *FeetechSink) Send(ctx context.Context, cmd impedance.Command) (Ack, error) {
	target := cmd.Equilibrium + cmd.TorqueNm*s.cfg.TorqueConstant
	raw := s.cfg.CenterCounts + int(math.Round(target*countsPerRad))

	positions := feetech.PositionMap{s.cfg.ServoID: raw}
	if err := s.group.SetPositions(ctx, positions); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrActuatorUnreachable, err)
	}

	return Ack{Seq: cmd.Seq, At: time.Now()}, nil
}

// Angle reads the joint angle back from the servo encoder.
func (s *FeetechSink) Angle(ctx context.Context) (float64, error) {
	positions, err := s.group.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("read position: %w", err)
	}
	raw, ok := positions[s.cfg.ServoID]
	if !ok {
		return 0, fmt.Errorf("servo %d missing from position read", s.cfg.ServoID)
	}
	return float64(raw-s.cfg.CenterCounts) / countsPerRad, nil
}

// Close disables torque and releases the serial port. The servo goes limp;
// callers should send a safe-hold command first.
func (s *FeetechSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.group.DisableAll(ctx); err != nil {
		s.bus.Close()
		return fmt.Errorf("disable torque: %w", err)
	}
	return s.bus.Close()
}
