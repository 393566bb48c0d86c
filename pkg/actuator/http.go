package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opensourceleg/go-osl/internal/httpc"
	"github.com/opensourceleg/go-osl/pkg/impedance"
)

// HTTPSink delivers commands to a drive daemon over its HTTP API. Used when
// the motor controller runs as a separate process (bench rigs, simulators).
type HTTPSink struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPSink creates a sink for a drive daemon at host:port. The client
// timeout is a floor; per-call contexts tighten it further.
func NewHTTPSink(addr string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		BaseURL: fmt.Sprintf("http://%s", addr),
		client:  httpc.NewClient(timeout),
	}
}

// Send posts the command to /api/command and decodes the drive's ack.
func (s *HTTPSink) Send(ctx context.Context, cmd impedance.Command) (Ack, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return Ack{}, fmt.Errorf("marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.BaseURL+"/api/command", bytes.NewReader(data))
	if err != nil {
		return Ack{}, fmt.Errorf("build command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrActuatorUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Ack{}, fmt.Errorf("%w: drive returned %d", ErrActuatorUnreachable, resp.StatusCode)
	}

	var ack Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return Ack{}, fmt.Errorf("decode ack: %w", err)
	}
	if ack.At.IsZero() {
		ack.At = time.Now()
	}
	return ack, nil
}
