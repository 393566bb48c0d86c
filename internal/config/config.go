// Package config provides configuration for go-osl commands.
//
// Configuration is a JSON file plus a small set of environment overrides for
// the values that change between bench and leg (drive address, broker, log
// level). All calibration data lives in the file; there are no in-code
// defaults for thresholds or impedance parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/opensourceleg/go-osl/pkg/actuator"
	"github.com/opensourceleg/go-osl/pkg/estimate"
	"github.com/opensourceleg/go-osl/pkg/gait"
	"github.com/opensourceleg/go-osl/pkg/impedance"
	"github.com/opensourceleg/go-osl/pkg/safety"
)

const DefaultConfigFile = "osl.json"

// LoopConfig tunes the scheduler.
type LoopConfig struct {
	PeriodUS        int `json:"period_us"`
	SensorTimeoutUS int `json:"sensor_timeout_us"`
	StaleLimit      int `json:"stale_limit"`
	MissLimit       int `json:"miss_limit"`
	DispatchLimit   int `json:"dispatch_limit"`
	BlendTicks      int `json:"blend_ticks"`
}

// Period returns the control period as a duration.
func (l LoopConfig) Period() time.Duration {
	return time.Duration(l.PeriodUS) * time.Microsecond
}

// SensorTimeout returns the per-channel read budget as a duration.
func (l LoopConfig) SensorTimeout() time.Duration {
	return time.Duration(l.SensorTimeoutUS) * time.Microsecond
}

// DriveConfig selects the actuator sink.
type DriveConfig struct {
	// Kind is "mock", "http" or "feetech".
	Kind string `json:"kind"`

	// Addr is the drive daemon host:port for the http kind.
	Addr string `json:"addr,omitempty"`

	Feetech actuator.FeetechConfig `json:"feetech,omitempty"`
}

// SensorsConfig selects the frame source.
type SensorsConfig struct {
	// Kind is "mock" or "hardware".
	Kind string `json:"kind"`

	// IMUSPIPort is the periph.io SPI port name for the shank IMU, e.g.
	// "SPI0.0". Empty selects the first available port.
	IMUSPIPort string `json:"imu_spi_port,omitempty"`

	// LoadcellPort is the serial device of the strain gauge amplifier.
	LoadcellPort string `json:"loadcell_port,omitempty"`
	LoadcellBaud uint   `json:"loadcell_baud,omitempty"`

	// LoadcellGain converts amplifier counts to newtons.
	LoadcellGain float64 `json:"loadcell_gain,omitempty"`
}

// WebConfig tunes the HTTP/websocket server.
type WebConfig struct {
	Port int `json:"port"`
}

// MQTTConfig tunes the telemetry broker link.
type MQTTConfig struct {
	Enabled      bool   `json:"enabled"`
	Broker       string `json:"broker,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	TopicSamples string `json:"topic_samples,omitempty"`
	TopicFaults  string `json:"topic_faults,omitempty"`
	Decimate     int    `json:"decimate,omitempty"`
}

// Config is the full daemon configuration.
type Config struct {
	LogLevel string `json:"log_level"`

	Loop     LoopConfig            `json:"loop"`
	Filter   estimate.Coefficients `json:"filter"`
	Gait     gait.Thresholds       `json:"gait"`
	Limits   safety.Limits         `json:"limits"`
	SafeHold impedance.Params      `json:"safe_hold"`

	// Impedance holds the per-phase parameter sets, keyed by phase name.
	Impedance map[gait.Phase]impedance.Params `json:"impedance"`

	Drive   DriveConfig   `json:"drive"`
	Sensors SensorsConfig `json:"sensors"`
	Web     WebConfig     `json:"web"`
	MQTT    MQTTConfig    `json:"mqtt"`
}

// Load reads, overrides and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveTo writes the configuration to a file.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnv overrides deployment-specific values from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("OSL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("OSL_DRIVE_ADDR"); v != "" {
		c.Drive.Addr = v
	}
	if v := os.Getenv("OSL_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
		c.MQTT.Enabled = true
	}
}

// Validate rejects configurations the loop cannot run safely with.
func (c *Config) Validate() error {
	if c.Loop.PeriodUS <= 0 {
		return fmt.Errorf("loop.period_us must be positive, got %d", c.Loop.PeriodUS)
	}
	if c.Loop.SensorTimeoutUS <= 0 {
		return fmt.Errorf("loop.sensor_timeout_us must be positive, got %d", c.Loop.SensorTimeoutUS)
	}
	if c.Loop.StaleLimit < 1 || c.Loop.MissLimit < 1 || c.Loop.DispatchLimit < 1 {
		return fmt.Errorf("loop escalation limits must be at least 1")
	}
	if c.Loop.BlendTicks < 1 {
		return fmt.Errorf("loop.blend_ticks must be at least 1, got %d", c.Loop.BlendTicks)
	}

	for _, a := range []struct {
		name  string
		alpha float64
	}{
		{"filter.angle_alpha", c.Filter.AngleAlpha},
		{"filter.velocity_alpha", c.Filter.VelocityAlpha},
		{"filter.load_alpha", c.Filter.LoadAlpha},
	} {
		if a.alpha <= 0 || a.alpha > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", a.name, a.alpha)
		}
	}
	if c.Filter.MaxAccel <= 0 {
		return fmt.Errorf("filter.max_accel must be positive, got %v", c.Filter.MaxAccel)
	}
	if c.Filter.ContactOnN <= c.Filter.ContactOffN {
		return fmt.Errorf("filter.contact_on (%v) must exceed filter.contact_off (%v)",
			c.Filter.ContactOnN, c.Filter.ContactOffN)
	}

	// A zero invalid-sample limit would disable the implausible-sample
	// fault row entirely; zero load thresholds degenerate the phase table.
	if c.Gait.MaxInvalidSamples < 1 {
		return fmt.Errorf("gait.max_invalid_samples must be at least 1, got %d", c.Gait.MaxInvalidSamples)
	}
	if c.Gait.ContactLoadN <= c.Gait.ToeOffLoadN {
		return fmt.Errorf("gait.contact_load (%v) must exceed gait.toe_off_load (%v)",
			c.Gait.ContactLoadN, c.Gait.ToeOffLoadN)
	}
	if c.Gait.SettleLoadN < c.Gait.ContactLoadN {
		return fmt.Errorf("gait.settle_load (%v) must be at least gait.contact_load (%v)",
			c.Gait.SettleLoadN, c.Gait.ContactLoadN)
	}

	if c.Limits.MaxTorqueNm <= 0 {
		return fmt.Errorf("limits.max_torque must be positive, got %v", c.Limits.MaxTorqueNm)
	}
	if c.Limits.MinAngleRad >= c.Limits.MaxAngleRad {
		return fmt.Errorf("limits.min_angle (%v) must be below limits.max_angle (%v)",
			c.Limits.MinAngleRad, c.Limits.MaxAngleRad)
	}

	// Every phase the estimator can produce needs an impedance parameter
	// set; a missing entry would command zero stiffness at runtime.
	for _, phase := range []gait.Phase{
		gait.Stance, gait.EarlyStance, gait.LateStance,
		gait.Swing, gait.SwingFlexion, gait.Fault,
	} {
		if _, ok := c.Impedance[phase]; !ok {
			return fmt.Errorf("impedance parameters missing for phase %q", phase)
		}
	}

	switch c.Drive.Kind {
	case "mock":
	case "http":
		if c.Drive.Addr == "" {
			return fmt.Errorf("drive.addr required for http drive")
		}
	case "feetech":
		if c.Drive.Feetech.Port == "" {
			return fmt.Errorf("drive.feetech.port required for feetech drive")
		}
	default:
		return fmt.Errorf("unknown drive.kind %q", c.Drive.Kind)
	}

	switch c.Sensors.Kind {
	case "mock":
	case "hardware":
		if c.Sensors.LoadcellPort == "" {
			return fmt.Errorf("sensors.loadcell_port required for hardware sensors")
		}
	default:
		return fmt.Errorf("unknown sensors.kind %q", c.Sensors.Kind)
	}

	return nil
}
