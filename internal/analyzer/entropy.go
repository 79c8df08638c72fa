package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultEntropyThreshold is the bits-per-character ceiling for prose.
	DefaultEntropyThreshold = 4.5
	// DefaultMaxInputLength is the length, in characters, beyond which a
	// turn counts as context flooding.
	DefaultMaxInputLength = 10000

	lowDiversityMinLength = 200
	lowDiversityMaxUnique = 10
)

var longBase64Re = regexp.MustCompile(`[A-Za-z0-9+/]{64,}={0,2}`)

// EntropyAnalyzer applies statistical checks that do not depend on wording:
// character entropy, embedded base64, flooding and padding.
type EntropyAnalyzer struct{}

// NewEntropyAnalyzer creates the entropy/heuristic layer.
func NewEntropyAnalyzer() *EntropyAnalyzer { return &EntropyAnalyzer{} }

func (a *EntropyAnalyzer) Name() Layer { return LayerEntropy }

func (a *EntropyAnalyzer) Analyze(in *Input) DetectionResult {
	threshold := in.EntropyThreshold
	if threshold <= 0 {
		threshold = DefaultEntropyThreshold
	}
	maxLen := in.MaxInputLength
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLength
	}

	var flags []string
	severity := SeverityLow
	confidence := 0.0

	h, length, unique := ShannonEntropy(in.Text)
	if h > threshold {
		flags = append(flags, fmt.Sprintf("high_entropy:%.2f", h))
		severity = SeverityMedium
		confidence = maxf(confidence, minf(1, (h-threshold)/2))
	}

	if longBase64Re.MatchString(in.Text) {
		flags = append(flags, "base64_block")
		severity = SeverityMedium
		confidence = maxf(confidence, 0.7)
	}

	if length > maxLen {
		flags = append(flags, fmt.Sprintf("context_flooding:%d", length))
		if length > maxLen*2 {
			severity = SeverityHigh
			confidence = maxf(confidence, 0.9)
		} else {
			severity = MaxSeverity(severity, SeverityMedium)
			confidence = maxf(confidence, 0.6)
		}
	}

	if length > lowDiversityMinLength && unique < lowDiversityMaxUnique {
		flags = append(flags, "low_diversity")
		severity = MaxSeverity(severity, SeverityMedium)
		confidence = maxf(confidence, 0.65)
	}

	if len(flags) == 0 {
		return clean(LayerEntropy)
	}
	return DetectionResult{
		Layer:       LayerEntropy,
		Flagged:     true,
		Severity:    severity,
		Confidence:  confidence,
		PatternName: flags[0],
		Detail:      "Flags: " + strings.Join(flags, ", "),
	}
}

// ShannonEntropy returns the entropy in bits per character of s, along with
// its length and the number of distinct characters, all counted in runes.
func ShannonEntropy(s string) (bits float64, length, unique int) {
	if s == "" {
		return 0, 0, 0
	}
	var ascii [utf8.RuneSelf]int
	var wide map[rune]int

	for _, r := range s {
		length++
		if r < utf8.RuneSelf {
			ascii[r]++
			continue
		}
		if wide == nil {
			wide = make(map[rune]int)
		}
		wide[r]++
	}

	n := float64(length)
	add := func(count int) {
		if count == 0 {
			return
		}
		unique++
		p := float64(count) / n
		bits -= p * math.Log2(p)
	}
	for _, c := range ascii {
		add(c)
	}
	// Map order is random; sum in a fixed order so results are bit-identical.
	counts := make([]int, 0, len(wide))
	for _, c := range wide {
		counts = append(counts, c)
	}
	sort.Ints(counts)
	for _, c := range counts {
		add(c)
	}
	return bits, length, unique
}
