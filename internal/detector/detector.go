// Package detector combines the five detection layers into a verdict.
package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"

	"github.com/rad-security/clawkeeper-sub000/internal/analyzer"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
)

// ShieldVerdict is the outcome of inspecting one turn. It never carries the
// raw input, only its hash and length.
type ShieldVerdict struct {
	Verdict     policy.Verdict             `json:"verdict"`
	Severity    analyzer.Severity          `json:"severity"`
	Detections  []analyzer.DetectionResult `json:"detections"`
	Confidence  float64                    `json:"confidence"`
	InputHash   string                     `json:"input_hash"`
	InputLength int                        `json:"input_length"`
	Turn        analyzer.TurnType          `json:"turn_type"`
}

// Flagged returns the detections that flagged, in layer order.
func (v ShieldVerdict) Flagged() []analyzer.DetectionResult {
	var out []analyzer.DetectionResult
	for _, d := range v.Detections {
		if d.Flagged {
			out = append(out, d)
		}
	}
	return out
}

// Top returns the first flagged detection in layer order.
func (v ShieldVerdict) Top() (analyzer.DetectionResult, bool) {
	for _, d := range v.Detections {
		if d.Flagged {
			return d, true
		}
	}
	return analyzer.DetectionResult{}, false
}

// Detector runs every layer on a turn and applies the policy table.
type Detector struct {
	registry *analyzer.Registry
}

// New creates a detector over the given registry.
func New(registry *analyzer.Registry) *Detector {
	return &Detector{registry: registry}
}

// NewDefault creates a detector with the five built-in layers.
func NewDefault() *Detector {
	return New(analyzer.NewDefaultRegistry())
}

// Detect inspects text under cfg. It performs no I/O and never panics on any
// string input.
func (d *Detector) Detect(text string, cfg policy.ShieldConfig, turn analyzer.TurnType) ShieldVerdict {
	if turn == "" {
		turn = analyzer.TurnUser
	}
	sum := sha256.Sum256([]byte(text))
	hash := hex.EncodeToString(sum[:])

	results := d.registry.RunAll(&analyzer.Input{
		Text:             text,
		Turn:             turn,
		Hash:             hash,
		CustomBlacklist:  cfg.CustomBlacklist,
		EntropyThreshold: cfg.EntropyThreshold,
		MaxInputLength:   cfg.MaxInputLength,
	})

	flagCount := 0
	highest := analyzer.SeverityLow
	confidence := 0.0
	for _, r := range results {
		if !r.Flagged {
			continue
		}
		flagCount++
		highest = analyzer.MaxSeverity(highest, r.Severity)
		if r.Confidence > confidence {
			confidence = r.Confidence
		}
	}

	raw := policy.DetermineVerdict(cfg.SecurityLevel, flagCount, highest)

	return ShieldVerdict{
		Verdict:     policy.ApplyAutoBlock(raw, cfg.AutoBlock),
		Severity:    highest,
		Detections:  results,
		Confidence:  confidence,
		InputHash:   hash,
		InputLength: utf8.RuneCountInString(text),
		Turn:        turn,
	}
}
