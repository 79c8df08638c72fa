package policy

import (
	"fmt"
	"strings"

	"github.com/rad-security/clawkeeper-sub000/internal/analyzer"
)

// SecurityLevel selects how aggressively flagged layers escalate.
type SecurityLevel string

const (
	LevelParanoid SecurityLevel = "paranoid"
	LevelStrict   SecurityLevel = "strict"
	LevelModerate SecurityLevel = "moderate"
	LevelMinimal  SecurityLevel = "minimal"
)

// Levels lists the recognized levels from most to least restrictive.
var Levels = []SecurityLevel{LevelParanoid, LevelStrict, LevelModerate, LevelMinimal}

// ParseLevel validates s (case-insensitive) against the known levels.
func ParseLevel(s string) (SecurityLevel, error) {
	l := SecurityLevel(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Levels {
		if l == known {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown security level %q", s)
}

// restrictiveness ranks levels; unknown levels rank alongside strict since
// the fallback policy row behaves like it.
func (l SecurityLevel) restrictiveness() int {
	switch l {
	case LevelParanoid:
		return 4
	case LevelModerate:
		return 2
	case LevelMinimal:
		return 1
	default:
		return 3
	}
}

// Verdict is the final decision for a turn.
type Verdict string

const (
	VerdictBlocked Verdict = "blocked"
	VerdictWarned  Verdict = "warned"
	VerdictPassed  Verdict = "passed"
)

// ShieldConfig is the live policy plus the connection settings needed to
// sync and report it.
type ShieldConfig struct {
	APIKey   string `json:"-" yaml:"-"`
	APIURL   string `json:"api_url" yaml:"-"`
	LogDir   string `json:"log_dir" yaml:"-"`
	Hostname string `json:"hostname" yaml:"-"`

	SecurityLevel   SecurityLevel `json:"security_level"`
	CustomBlacklist []string      `json:"custom_blacklist"`
	// TrustedSources is synced and displayed but not consulted by any
	// detection layer.
	TrustedSources   []string `json:"trusted_sources"`
	EntropyThreshold float64  `json:"entropy_threshold"`
	MaxInputLength   int      `json:"max_input_length"`
	AutoBlock        bool     `json:"auto_block"`
}

// DefaultAPIURL is the dashboard API base used when none is configured.
const DefaultAPIURL = "https://clawkeeper.dev/api/v1"

// MaxInputLengthLimit bounds the configurable max input length.
const MaxInputLengthLimit = 1 << 20

// ValidMaxInputLength reports whether n is usable as a max input length.
func ValidMaxInputLength(n int) bool { return n > 0 && n <= MaxInputLengthLimit }

// DefaultConfig returns the built-in policy: strict, auto-block on.
func DefaultConfig() ShieldConfig {
	return ShieldConfig{
		APIURL:           DefaultAPIURL,
		SecurityLevel:    LevelStrict,
		CustomBlacklist:  []string{},
		TrustedSources:   []string{},
		EntropyThreshold: analyzer.DefaultEntropyThreshold,
		MaxInputLength:   analyzer.DefaultMaxInputLength,
		AutoBlock:        true,
	}
}

// Clone returns a deep copy so callers can hold a snapshot while the
// original keeps changing.
func (c ShieldConfig) Clone() ShieldConfig {
	out := c
	out.CustomBlacklist = append([]string(nil), c.CustomBlacklist...)
	out.TrustedSources = append([]string(nil), c.TrustedSources...)
	return out
}

// Connected reports whether dashboard credentials are configured.
func (c ShieldConfig) Connected() bool { return c.APIKey != "" }
