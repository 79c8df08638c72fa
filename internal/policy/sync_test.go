package policy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rad-security/clawkeeper-sub000/internal/remote"
)

func seededStore() *Store {
	cfg := DefaultConfig()
	cfg.CustomBlacklist = []string{"exfiltrate the vault"}
	cfg.TrustedSources = []string{"docs.internal"}
	return NewStore(cfg)
}

func newTestSyncer(t *testing.T, store *Store, handler http.HandlerFunc) *Syncer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSyncer(store, remote.NewClient(srv.URL, "key", srv.Client()), zerolog.Nop())
}

func TestSync_PartialUpdate(t *testing.T) {
	store := seededStore()
	s := newTestSyncer(t, store, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shield/policy" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"security_level": "moderate"}`))
	})

	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := store.Snapshot()
	if cfg.SecurityLevel != LevelModerate {
		t.Errorf("level = %s, want moderate", cfg.SecurityLevel)
	}
	if len(cfg.CustomBlacklist) != 1 || cfg.CustomBlacklist[0] != "exfiltrate the vault" {
		t.Errorf("blacklist changed: %v", cfg.CustomBlacklist)
	}
	if len(cfg.TrustedSources) != 1 || cfg.EntropyThreshold != 4.5 || cfg.MaxInputLength != 10000 || !cfg.AutoBlock {
		t.Errorf("untouched fields changed: %+v", cfg)
	}
	if s.LastSync().IsZero() {
		t.Error("expected last sync time to be recorded")
	}
}

func TestSync_FullUpdate(t *testing.T) {
	store := seededStore()
	s := newTestSyncer(t, store, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"security_level": "paranoid",
			"custom_blacklist": ["one phrase", "two phrase"],
			"trusted_sources": [],
			"entropy_threshold": 5.25,
			"max_input_length": 2048,
			"auto_block": false
		}`))
	})

	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := store.Snapshot()
	if cfg.SecurityLevel != LevelParanoid || len(cfg.CustomBlacklist) != 2 || len(cfg.TrustedSources) != 0 ||
		cfg.EntropyThreshold != 5.25 || cfg.MaxInputLength != 2048 || cfg.AutoBlock {
		t.Errorf("unexpected config after sync: %+v", cfg)
	}
}

func TestSync_WrongTypesIgnored(t *testing.T) {
	store := seededStore()
	s := newTestSyncer(t, store, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"security_level": 3,
			"custom_blacklist": "not a list",
			"trusted_sources": ["ok", 7],
			"entropy_threshold": "high",
			"auto_block": "yes"
		}`))
	})

	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := store.Snapshot()
	want := seededStore().Snapshot()
	if cfg.SecurityLevel != want.SecurityLevel || len(cfg.CustomBlacklist) != 1 ||
		len(cfg.TrustedSources) != 1 || cfg.EntropyThreshold != want.EntropyThreshold || !cfg.AutoBlock {
		t.Errorf("wrongly typed fields were applied: %+v", cfg)
	}
}

func TestUpdateFromJSON_RejectsOutOfRangeNumbers(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"max length 2^62", map[string]any{"max_input_length": 4.611686018427388e18}},
		{"max length 1e20", map[string]any{"max_input_length": 1e20}},
		{"max length zero", map[string]any{"max_input_length": 0.0}},
		{"max length negative", map[string]any{"max_input_length": -100.0}},
		{"max length fractional", map[string]any{"max_input_length": 512.5}},
		{"threshold zero", map[string]any{"entropy_threshold": 0.0}},
		{"threshold negative", map[string]any{"entropy_threshold": -1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if u := UpdateFromJSON(tt.raw); !u.Empty() {
				t.Errorf("expected no update, got %+v", u)
			}
		})
	}

	u := UpdateFromJSON(map[string]any{"max_input_length": float64(MaxInputLengthLimit)})
	if u.MaxInputLength == nil || *u.MaxInputLength != MaxInputLengthLimit {
		t.Errorf("limit itself should be accepted, got %+v", u)
	}
}

func TestSync_OutOfRangeLengthKeepsLocalValue(t *testing.T) {
	store := seededStore()
	s := newTestSyncer(t, store, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"max_input_length": 4611686018427387904, "security_level": "moderate"}`))
	})

	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := store.Snapshot()
	if cfg.MaxInputLength != DefaultConfig().MaxInputLength {
		t.Errorf("max_input_length = %d, want local default kept", cfg.MaxInputLength)
	}
	if cfg.SecurityLevel != LevelModerate {
		t.Errorf("valid fields in the same document should still apply, level = %s", cfg.SecurityLevel)
	}
}

func TestSync_FailuresKeepLocalPolicy(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"security_level":"minimal"}`))
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"security_level":`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore()
			s := newTestSyncer(t, store, tt.handler)
			if err := s.Sync(context.Background()); err == nil {
				t.Error("expected error")
			}
			if store.Snapshot().SecurityLevel != LevelStrict {
				t.Error("local policy changed after failed sync")
			}
		})
	}
}

func TestSync_NoKeyIsNoop(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	s := NewSyncer(seededStore(), remote.NewClient(srv.URL, "", srv.Client()), zerolog.Nop())
	if err := s.ForceSync(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("no request should be sent without an API key")
	}
}

func TestForceSync_SharesInFlightRequest(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	store := seededStore()
	s := newTestSyncer(t, store, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write([]byte(`{}`))
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.ForceSync(context.Background())
		}()
	}
	// Let every caller join the in-flight request before releasing it.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	var hits int32
	s := newTestSyncer(t, seededStore(), func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{}`))
	})
	s.SetInterval(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(90 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if n := atomic.LoadInt32(&hits); n < 2 {
		t.Errorf("expected an immediate sync plus ticks, got %d", n)
	}
}
