package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rad-security/clawkeeper-sub000/internal/remote"
)

func TestHeartbeat_Send(t *testing.T) {
	var body heartbeatBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != HeartbeatPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	h := NewHeartbeat(remote.NewClient(srv.URL, "ck_test", srv.Client()), "devbox", "1.0.0", zerolog.Nop())
	if err := h.Send(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Hostname != "devbox" || body.ShieldVersion != "1.0.0" {
		t.Errorf("unexpected body %+v", body)
	}
	if h.LastSuccess().IsZero() {
		t.Error("expected last success to be recorded")
	}
}

func TestHeartbeat_NoKeyIsNoop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	h := NewHeartbeat(remote.NewClient(srv.URL, "", srv.Client()), "devbox", "1.0.0", zerolog.Nop())
	if err := h.Send(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request without a key")
	}
}

func TestHeartbeat_FailureKeepsLastSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHeartbeat(remote.NewClient(srv.URL, "ck_test", srv.Client()), "devbox", "1.0.0", zerolog.Nop())
	if err := h.Send(context.Background()); err == nil {
		t.Error("expected an error on 500")
	}
	if !h.LastSuccess().IsZero() {
		t.Error("failed heartbeat must not count as success")
	}
}

func TestHeartbeat_RunSendsImmediatelyAndPeriodically(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	h := NewHeartbeat(remote.NewClient(srv.URL, "ck_test", srv.Client()), "devbox", "1.0.0", zerolog.Nop())
	h.SetInterval(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if n := calls.Load(); n < 3 {
		t.Errorf("expected at least 3 heartbeats, got %d", n)
	}
}
