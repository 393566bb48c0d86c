package actuator

import (
	"context"
	"sync"
	"time"

	"github.com/opensourceleg/go-osl/pkg/impedance"
)

// MockSink accepts every command and remembers the last one. Used for bench
// runs without a drive attached.
type MockSink struct {
	mu   sync.Mutex
	last impedance.Command
	sent uint64
}

// NewMockSink creates an always-reachable sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// Send implements Sink.
func (m *MockSink) Send(ctx context.Context, cmd impedance.Command) (Ack, error) {
	m.mu.Lock()
	m.last = cmd
	m.sent++
	m.mu.Unlock()
	return Ack{Seq: cmd.Seq, At: time.Now()}, nil
}

// Last returns the most recently accepted command.
func (m *MockSink) Last() impedance.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Sent returns how many commands have been accepted.
func (m *MockSink) Sent() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}
