package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opensourceleg/go-osl/pkg/actuator"
	"github.com/opensourceleg/go-osl/pkg/estimate"
	"github.com/opensourceleg/go-osl/pkg/frame"
	"github.com/opensourceleg/go-osl/pkg/gait"
	"github.com/opensourceleg/go-osl/pkg/impedance"
	"github.com/opensourceleg/go-osl/pkg/loop"
	"github.com/opensourceleg/go-osl/pkg/safety"
	"github.com/opensourceleg/go-osl/pkg/telemetry"
)

type nullSource struct{}

func (nullSource) Read(ch frame.Channel, timeout time.Duration) (float64, error) {
	return 0, nil
}

type nullSink struct{}

func (nullSink) Send(ctx context.Context, cmd impedance.Command) (actuator.Ack, error) {
	return actuator.Ack{Seq: cmd.Seq, At: time.Now()}, nil
}

func testServer(t *testing.T) (*Server, *telemetry.Recorder) {
	t.Helper()

	rec := telemetry.NewRecorder(64)
	params := map[gait.Phase]impedance.Params{}
	for _, p := range []gait.Phase{
		gait.Stance, gait.EarlyStance, gait.LateStance,
		gait.Swing, gait.SwingFlexion, gait.Fault,
	} {
		params[p] = impedance.Params{StiffnessNmPerRad: 50, DampingNmPerRadPerSec: 2}
	}

	sched := loop.New(
		loop.DefaultConfig(),
		frame.NewAcquirer(nullSource{}, time.Millisecond),
		estimate.NewConditioner(estimate.Coefficients{
			AngleAlpha: 1, VelocityAlpha: 1, LoadAlpha: 1,
			MaxAccel: 1e6, ContactOnN: 100, ContactOffN: 50,
		}, 0.001),
		gait.NewEstimator(gait.Thresholds{ContactLoadN: 120, SettleLoadN: 300, ToeOffLoadN: 30}),
		impedance.NewController(params, 1),
		safety.NewGuard(safety.Limits{
			MaxTorqueNm: 80, MaxVelocityRadPerSec: 8,
			MinAngleRad: -0.5, MaxAngleRad: 1.6,
			MaxStiffness: 400, MaxDamping: 50, OverrideToleranceNm: 20,
		}, impedance.Params{StiffnessNmPerRad: 10, DampingNmPerRadPerSec: 8}),
		nullSink{},
		rec,
		nil,
	)

	return NewServer(0, sched, rec), rec
}

func TestServer_Status(t *testing.T) {
	s, _ := testServer(t)

	req := httptest.NewRequest("GET", "/api/status", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Loop loop.Snapshot `json:"loop"`
	}
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode status: %v (%s)", err, data)
	}
	if body.Loop.Running {
		t.Error("loop should not report running before start")
	}
	if body.Loop.Phase != gait.Stance {
		t.Errorf("phase = %v, want stance", body.Loop.Phase)
	}
}

func TestServer_Samples(t *testing.T) {
	s, rec := testServer(t)

	for i := uint64(1); i <= 20; i++ {
		rec.Publish(telemetry.Sample{Tick: i})
	}

	req := httptest.NewRequest("GET", "/api/samples?n=5", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	defer resp.Body.Close()

	var samples []telemetry.Sample
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &samples); err != nil {
		t.Fatalf("decode samples: %v (%s)", err, data)
	}
	if len(samples) != 5 {
		t.Fatalf("got %d samples, want 5", len(samples))
	}
	if samples[4].Tick != 20 {
		t.Errorf("newest sample tick = %d, want 20", samples[4].Tick)
	}
}

func TestServer_SamplesRejectsBadCount(t *testing.T) {
	s, _ := testServer(t)

	for _, q := range []string{"n=0", "n=-3", "n=abc"} {
		req := httptest.NewRequest("GET", "/api/samples?"+q, nil)
		resp, err := s.App().Test(req)
		if err != nil {
			t.Fatalf("Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != 400 {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestServer_StartStopLifecycle(t *testing.T) {
	s, _ := testServer(t)

	req := httptest.NewRequest("POST", "/api/start", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}

	// Give the loop a moment to spin up, then a second start conflicts.
	time.Sleep(20 * time.Millisecond)
	resp, err = s.App().Test(httptest.NewRequest("POST", "/api/start", nil))
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 409 {
		t.Errorf("second start status = %d, want 409", resp.StatusCode)
	}

	resp, err = s.App().Test(httptest.NewRequest("POST", "/api/stop", nil))
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("stop status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_FaultReset(t *testing.T) {
	s, _ := testServer(t)

	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/fault/reset", nil))
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("reset status = %d, want 200", resp.StatusCode)
	}
}
