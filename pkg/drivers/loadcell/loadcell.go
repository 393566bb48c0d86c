// Package loadcell reads the axial strain gauge through its serial
// amplifier.
//
// The amplifier streams one ASCII reading per line at a fixed rate. A
// background goroutine keeps the latest raw count; Load converts it with
// the calibration gain and the tare established by Zero.
package loadcell

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"

	"github.com/opensourceleg/go-osl/pkg/frame"
)

// Config describes the amplifier connection and calibration.
type Config struct {
	Port     string `json:"port"`
	BaudRate uint   `json:"baud_rate"`

	// NewtonsPerCount converts raw ADC counts to newtons.
	NewtonsPerCount float64 `json:"newtons_per_count"`

	// MaxAge: a reading older than this is reported unavailable.
	MaxAge time.Duration `json:"-"`
}

// Reader is one amplifier connection.
type Reader struct {
	cfg  Config
	port interface {
		Read(p []byte) (int, error)
		Close() error
	}

	mu     sync.Mutex
	raw    float64
	at     time.Time
	tare   float64
	closed bool
}

// Open connects to the amplifier and starts the read pump.
func Open(cfg Config) (*Reader, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 20 * time.Millisecond
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:        cfg.Port,
		BaudRate:        cfg.BaudRate,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("open loadcell port %q: %w", cfg.Port, err)
	}

	r := &Reader{cfg: cfg, port: port}
	go r.pump()
	return r, nil
}

// pump consumes amplifier lines until the port closes.
func (r *Reader) pump() {
	scanner := bufio.NewScanner(r.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		count, err := strconv.ParseFloat(line, 64)
		if err != nil {
			continue
		}
		r.mu.Lock()
		r.raw = count
		r.at = time.Now()
		r.mu.Unlock()
	}
}

// Load returns the current axial load in newtons.
func (r *Reader) Load() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.at.IsZero() || time.Since(r.at) > r.cfg.MaxAge {
		return 0, fmt.Errorf("%w: no loadcell reading within %v", frame.ErrSensorUnavailable, r.cfg.MaxAge)
	}
	return (r.raw - r.tare) * r.cfg.NewtonsPerCount, nil
}

// Zero tares the loadcell by averaging n fresh readings. Call unloaded,
// before the loop starts.
func (r *Reader) Zero(n int) error {
	if n < 1 {
		n = 1
	}

	var sum float64
	var got int
	deadline := time.Now().Add(time.Duration(n)*50*time.Millisecond + time.Second)
	var lastAt time.Time

	for got < n {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: collected %d/%d tare readings", frame.ErrSensorUnavailable, got, n)
		}
		r.mu.Lock()
		raw, at := r.raw, r.at
		r.mu.Unlock()
		if at.After(lastAt) {
			sum += raw
			got++
			lastAt = at
		}
		time.Sleep(time.Millisecond)
	}

	r.mu.Lock()
	r.tare = sum / float64(n)
	r.mu.Unlock()
	return nil
}

// Close stops the pump and releases the port.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	return r.port.Close()
}
