package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensourceleg/go-osl/pkg/impedance"
)

func TestHTTPSink_SendDeliversCommand(t *testing.T) {
	var got impedance.Command
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/command" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode command: %v", err)
		}
		json.NewEncoder(w).Encode(Ack{Seq: got.Seq, At: time.Now()})
	}))
	defer srv.Close()

	sink := NewHTTPSink(strings.TrimPrefix(srv.URL, "http://"), time.Second)

	cmd := impedance.Command{Seq: 17, TorqueNm: -12.5, Stiffness: 120, Damping: 4, Equilibrium: 0.05}
	ack, err := sink.Send(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ack.Seq != cmd.Seq {
		t.Errorf("ack Seq = %d, want %d", ack.Seq, cmd.Seq)
	}
	if got.TorqueNm != cmd.TorqueNm {
		t.Errorf("drive received torque %v, want %v", got.TorqueNm, cmd.TorqueNm)
	}
}

func TestHTTPSink_UnreachableDrive(t *testing.T) {
	// Nothing listens here.
	sink := NewHTTPSink("127.0.0.1:1", 200*time.Millisecond)

	_, err := sink.Send(context.Background(), impedance.Command{Seq: 1})
	if !errors.Is(err, ErrActuatorUnreachable) {
		t.Fatalf("err = %v, want ErrActuatorUnreachable", err)
	}
}

func TestHTTPSink_DriveError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "drive fault", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(strings.TrimPrefix(srv.URL, "http://"), time.Second)

	_, err := sink.Send(context.Background(), impedance.Command{Seq: 2})
	if !errors.Is(err, ErrActuatorUnreachable) {
		t.Fatalf("err = %v, want ErrActuatorUnreachable", err)
	}
}

func TestHTTPSink_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	sink := NewHTTPSink(strings.TrimPrefix(srv.URL, "http://"), 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sink.Send(ctx, impedance.Command{Seq: 3})
	if !errors.Is(err, ErrActuatorUnreachable) {
		t.Fatalf("err = %v, want ErrActuatorUnreachable", err)
	}
}
