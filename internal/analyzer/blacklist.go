package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultBlacklist holds well-known jailbreak phrases. Custom entries from
// policy are checked after these.
var DefaultBlacklist = []string{
	"ignore all previous instructions",
	"disregard your instructions",
	"forget your rules",
	"you are now",
	"pretend you are",
	"act as if you are",
	"new persona:",
	"system override:",
	"admin mode:",
	"developer mode:",
	"jailbreak",
	"DAN mode",
	"bypass safety",
	"ignore safety",
	"override restrictions",
	"disable content filter",
	"remove all restrictions",
	"you have no rules",
	"forget everything above",
}

const (
	// DefaultFuzzyCacheSize is the number of blacklist outcomes remembered
	// per process.
	DefaultFuzzyCacheSize = 1024

	fuzzyMinEntryLen = 8
	fuzzyMaxEntryLen = 50
	fuzzyMaxDistance = 2

	patternNameEntryLen = 30
)

// BlacklistAnalyzer matches phrases from the default and custom blacklists,
// exactly or within a small edit distance.
type BlacklistAnalyzer struct {
	cache *lru.Cache[string, DetectionResult]
}

// NewBlacklistAnalyzer creates the blacklist layer. cacheSize <= 0 disables
// the outcome cache.
func NewBlacklistAnalyzer(cacheSize int) *BlacklistAnalyzer {
	a := &BlacklistAnalyzer{}
	if cacheSize > 0 {
		if c, err := lru.New[string, DetectionResult](cacheSize); err == nil {
			a.cache = c
		}
	}
	return a
}

func (a *BlacklistAnalyzer) Name() Layer { return LayerBlacklist }

func (a *BlacklistAnalyzer) Analyze(in *Input) DetectionResult {
	var key string
	if a.cache != nil && in.Hash != "" {
		key = fmt.Sprintf("%s:%s:%d", in.Hash, fingerprint(in.CustomBlacklist), in.MaxInputLength)
		if res, ok := a.cache.Get(key); ok {
			return res
		}
	}

	res := a.scan(in)

	if key != "" {
		a.cache.Add(key, res)
	}
	return res
}

func (a *BlacklistAnalyzer) scan(in *Input) DetectionResult {
	lower := strings.ToLower(in.Text)

	// Inputs over the max length are exact-matched only; the entropy layer
	// flags them as flooding.
	maxLen := in.MaxInputLength
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLength
	}
	var runes []rune
	fuzzy := utf8.RuneCountInString(lower) <= maxLen
	if fuzzy {
		runes = []rune(lower)
	}

	entries := make([]string, 0, len(DefaultBlacklist)+len(in.CustomBlacklist))
	entries = append(entries, DefaultBlacklist...)
	entries = append(entries, in.CustomBlacklist...)

	for _, entry := range entries {
		le := strings.ToLower(entry)
		if le == "" {
			continue
		}
		if strings.Contains(lower, le) {
			return blacklistHit(entry, true)
		}
		if fuzzy && withinEditDistance(runes, le) {
			return blacklistHit(entry, false)
		}
	}
	return clean(LayerBlacklist)
}

// withinEditDistance slides a window the size of entry across text and
// reports whether any window is within fuzzyMaxDistance edits of it.
//
// One edit changes the rune histogram of a window by at most two units, so
// only windows whose histogram is within 2*fuzzyMaxDistance of the entry's
// are handed to Levenshtein.
func withinEditDistance(text []rune, entry string) bool {
	want := []rune(entry)
	size := len(want)
	if size < fuzzyMinEntryLen || size > fuzzyMaxEntryLen || size > len(text) {
		return false
	}

	var h runeHistogram
	for _, r := range want {
		h.add(r, -1)
	}
	for _, r := range text[:size] {
		h.add(r, 1)
	}
	for i := 0; ; i++ {
		if h.diff <= 2*fuzzyMaxDistance &&
			levenshtein.ComputeDistance(string(text[i:i+size]), entry) <= fuzzyMaxDistance {
			return true
		}
		if i+size == len(text) {
			return false
		}
		h.add(text[i], -1)
		h.add(text[i+size], 1)
	}
}

// runeHistogram holds per-rune count differences between a window and an
// entry, plus the sum of their absolute values.
type runeHistogram struct {
	ascii [utf8.RuneSelf]int
	wide  map[rune]int
	diff  int
}

func (h *runeHistogram) add(r rune, delta int) {
	var before int
	if r >= 0 && r < utf8.RuneSelf {
		before = h.ascii[r]
		h.ascii[r] = before + delta
	} else {
		if h.wide == nil {
			h.wide = make(map[rune]int)
		}
		before = h.wide[r]
		h.wide[r] = before + delta
	}
	h.diff += abs(before+delta) - abs(before)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func blacklistHit(entry string, exact bool) DetectionResult {
	kind, conf := "fuzzy", 0.8
	if exact {
		kind, conf = "exact", 1.0
	}
	short := entry
	if utf8.RuneCountInString(short) > patternNameEntryLen {
		short = string([]rune(short)[:patternNameEntryLen])
	}
	return DetectionResult{
		Layer:       LayerBlacklist,
		Flagged:     true,
		Severity:    SeverityCritical,
		Confidence:  conf,
		PatternName: "blacklist:" + short,
		Detail:      fmt.Sprintf("Matched blacklist entry: %q (%s)", entry, kind),
	}
}

// fingerprint identifies a custom blacklist so cached outcomes are
// invalidated when policy changes it.
func fingerprint(entries []string) string {
	if len(entries) == 0 {
		return "-"
	}
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}
