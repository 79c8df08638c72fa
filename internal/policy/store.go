package policy

import "sync"

// Store owns the process-wide ShieldConfig. Detection reads snapshots; the
// command interface and policy sync mutate it.
type Store struct {
	mu  sync.RWMutex
	cfg ShieldConfig
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg ShieldConfig) *Store {
	return &Store{cfg: cfg.Clone()}
}

// Snapshot returns a deep copy of the current config. A change made after
// the snapshot is taken applies to the next call, not the one in flight.
func (s *Store) Snapshot() ShieldConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// SetLevel replaces the security level.
func (s *Store) SetLevel(l SecurityLevel) {
	s.mu.Lock()
	s.cfg.SecurityLevel = l
	s.mu.Unlock()
}

// AddBlacklist appends an entry. Duplicates are kept, matching the order in
// which entries are checked.
func (s *Store) AddBlacklist(entry string) {
	s.mu.Lock()
	s.cfg.CustomBlacklist = append(s.cfg.CustomBlacklist, entry)
	s.mu.Unlock()
}

// RemoveBlacklist removes the first occurrence of entry and reports whether
// it was present.
func (s *Store) RemoveBlacklist(entry string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.cfg.CustomBlacklist {
		if e == entry {
			s.cfg.CustomBlacklist = append(s.cfg.CustomBlacklist[:i:i], s.cfg.CustomBlacklist[i+1:]...)
			return true
		}
	}
	return false
}

// Update is a partial policy change. Nil fields are left untouched.
type Update struct {
	SecurityLevel    *SecurityLevel
	CustomBlacklist  []string
	TrustedSources   []string
	EntropyThreshold *float64
	MaxInputLength   *int
	AutoBlock        *bool

	// The slice fields are applied when their Set flag is true, so an
	// explicitly empty list can clear the current one.
	SetBlacklist bool
	SetTrusted   bool
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.SecurityLevel == nil && !u.SetBlacklist && !u.SetTrusted &&
		u.EntropyThreshold == nil && u.MaxInputLength == nil && u.AutoBlock == nil
}

// Apply merges u into the stored config under one lock.
func (s *Store) Apply(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ApplyTo(&s.cfg)
}

// ApplyTo merges u into cfg.
func (u Update) ApplyTo(cfg *ShieldConfig) {
	if u.SecurityLevel != nil {
		cfg.SecurityLevel = *u.SecurityLevel
	}
	if u.SetBlacklist {
		cfg.CustomBlacklist = append([]string{}, u.CustomBlacklist...)
	}
	if u.SetTrusted {
		cfg.TrustedSources = append([]string{}, u.TrustedSources...)
	}
	if u.EntropyThreshold != nil {
		cfg.EntropyThreshold = *u.EntropyThreshold
	}
	if u.MaxInputLength != nil {
		cfg.MaxInputLength = *u.MaxInputLength
	}
	if u.AutoBlock != nil {
		cfg.AutoBlock = *u.AutoBlock
	}
}
