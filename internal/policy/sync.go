package policy

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rad-security/clawkeeper-sub000/internal/remote"
)

// SyncInterval is how often the dashboard policy is pulled.
const SyncInterval = 5 * time.Minute

const policyPath = "/shield/policy"

// Syncer pulls policy from the dashboard into a Store.
type Syncer struct {
	store    *Store
	client   *remote.Client
	interval time.Duration
	log      zerolog.Logger
	group    singleflight.Group

	mu       sync.Mutex
	lastSync time.Time
}

// NewSyncer creates a syncer. A client without an API key makes every sync
// a no-op.
func NewSyncer(store *Store, client *remote.Client, log zerolog.Logger) *Syncer {
	return &Syncer{store: store, client: client, interval: SyncInterval, log: log}
}

// SetInterval overrides the periodic sync interval.
func (s *Syncer) SetInterval(d time.Duration) { s.interval = d }

// Run syncs immediately and then on every tick until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	s.syncAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncAndLog(ctx)
		}
	}
}

func (s *Syncer) syncAndLog(ctx context.Context) {
	if err := s.ForceSync(ctx); err != nil {
		s.log.Warn().Err(err).Msg("policy sync failed, keeping local policy")
	}
}

// ForceSync pulls policy now. Concurrent callers share one request.
func (s *Syncer) ForceSync(ctx context.Context) error {
	_, err, _ := s.group.Do("policy", func() (any, error) {
		return nil, s.Sync(ctx)
	})
	return err
}

// Sync fetches and applies the remote policy once. Only fields that are
// present with the expected JSON type are applied; on any error the store is
// left untouched. Without an API key it does nothing.
func (s *Syncer) Sync(ctx context.Context) error {
	if !s.client.HasKey() {
		return nil
	}

	var raw map[string]any
	if err := s.client.GetJSON(ctx, policyPath, &raw); err != nil {
		if errors.Is(err, remote.ErrNoAPIKey) {
			return nil
		}
		return err
	}

	u := UpdateFromJSON(raw)
	if !u.Empty() {
		s.store.Apply(u)
	}

	s.mu.Lock()
	s.lastSync = time.Now()
	s.mu.Unlock()
	s.log.Debug().Bool("changed", !u.Empty()).Msg("policy synced")
	return nil
}

// LastSync returns when the last successful sync completed.
func (s *Syncer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// UpdateFromJSON extracts the recognized, type-correct fields of a decoded
// policy document.
func UpdateFromJSON(raw map[string]any) Update {
	var u Update

	if v, ok := raw["security_level"].(string); ok && v != "" {
		l := SecurityLevel(v)
		u.SecurityLevel = &l
	}
	if list, ok := stringList(raw["custom_blacklist"]); ok {
		u.CustomBlacklist, u.SetBlacklist = list, true
	}
	if list, ok := stringList(raw["trusted_sources"]); ok {
		u.TrustedSources, u.SetTrusted = list, true
	}
	if v, ok := raw["entropy_threshold"].(float64); ok && v > 0 {
		u.EntropyThreshold = &v
	}
	// Checked as a float first: int() of an out-of-range float is undefined.
	if v, ok := raw["max_input_length"].(float64); ok && v == math.Trunc(v) &&
		v > 0 && v <= MaxInputLengthLimit {
		n := int(v)
		u.MaxInputLength = &n
	}
	if v, ok := raw["auto_block"].(bool); ok {
		u.AutoBlock = &v
	}
	return u
}

// stringList accepts a JSON array whose elements are all strings.
func stringList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
