package analyzer

import (
	"math"
	"strings"
	"testing"
)

// highEntropyText cycles through 47 distinct printable characters twice.
const highEntropyText = "aB3!cD4@eF5#gH6%iJ7^kL8*mN9(oP0)qR-sT_uV=wX+yZ." +
	"aB3!cD4@eF5#gH6%iJ7^kL8*mN9(oP0)qR-sT_uV=wX+yZ."

func TestShannonEntropy(t *testing.T) {
	tests := []struct {
		input      string
		wantBits   float64
		wantLen    int
		wantUnique int
	}{
		{"", 0, 0, 0},
		{"aaaa", 0, 4, 1},
		{"abcd", 2, 4, 4},
		{"ééaa", 1, 4, 2},
	}
	for _, tt := range tests {
		bits, n, u := ShannonEntropy(tt.input)
		if math.Abs(bits-tt.wantBits) > 1e-9 || n != tt.wantLen || u != tt.wantUnique {
			t.Errorf("ShannonEntropy(%q) = %f,%d,%d want %f,%d,%d",
				tt.input, bits, n, u, tt.wantBits, tt.wantLen, tt.wantUnique)
		}
	}
}

func TestEntropy_Checks(t *testing.T) {
	a := NewEntropyAnalyzer()

	tests := []struct {
		name        string
		input       string
		maxLen      int
		wantFlagged bool
		wantSev     Severity
		wantPattern string
		wantConf    float64
		wantDetail  string
		wantAbsent  string
	}{
		{
			name:        "prose",
			input:       "What's the weather like in Boston?",
			wantFlagged: false,
			wantSev:     SeverityLow,
		},
		{
			name:        "high entropy",
			input:       highEntropyText,
			wantFlagged: true,
			wantSev:     SeverityMedium,
			wantPattern: "high_entropy:5.55",
			wantConf:    (5.554588851677640 - 4.5) / 2,
		},
		{
			name:        "base64 block",
			input:       "payload " + strings.Repeat("QUFB", 16),
			wantFlagged: true,
			wantSev:     SeverityMedium,
			wantPattern: "base64_block",
			wantConf:    0.7,
		},
		{
			// A run of one letter has zero entropy but is still a base64 block.
			name:        "single char under 200",
			input:       strings.Repeat("a", 80),
			wantFlagged: true,
			wantSev:     SeverityMedium,
			wantPattern: "base64_block",
			wantConf:    0.7,
			wantAbsent:  "high_entropy",
		},
		{
			name:        "low diversity letters",
			input:       strings.Repeat("a", 250),
			wantFlagged: true,
			wantSev:     SeverityMedium,
			wantPattern: "base64_block",
			wantConf:    0.7,
			wantDetail:  "low_diversity",
		},
		{
			name:        "low diversity padding",
			input:       strings.Repeat("-", 250),
			wantFlagged: true,
			wantSev:     SeverityMedium,
			wantPattern: "low_diversity",
			wantConf:    0.65,
			wantAbsent:  "base64_block",
		},
		{
			name:        "short dash run",
			input:       strings.Repeat("-", 80),
			wantFlagged: false,
			wantSev:     SeverityLow,
		},
		{
			name:        "moderate flooding",
			input:       strings.Repeat("the quick brown fox ", 6),
			maxLen:      100,
			wantFlagged: true,
			wantSev:     SeverityMedium,
			wantPattern: "context_flooding:120",
			wantConf:    0.6,
		},
		{
			name:        "severe flooding",
			input:       strings.Repeat("hello world ", 20),
			maxLen:      100,
			wantFlagged: true,
			wantSev:     SeverityHigh,
			wantPattern: "context_flooding:240",
			wantConf:    0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Analyze(&Input{Text: tt.input, EntropyThreshold: 4.5, MaxInputLength: tt.maxLen})
			if res.Flagged != tt.wantFlagged {
				t.Fatalf("flagged = %v, want %v (%s)", res.Flagged, tt.wantFlagged, res.Detail)
			}
			if res.Severity != tt.wantSev {
				t.Errorf("severity = %s, want %s", res.Severity, tt.wantSev)
			}
			if res.PatternName != tt.wantPattern {
				t.Errorf("pattern = %q, want %q", res.PatternName, tt.wantPattern)
			}
			if math.Abs(res.Confidence-tt.wantConf) > 1e-6 {
				t.Errorf("confidence = %f, want %f", res.Confidence, tt.wantConf)
			}
			if tt.wantDetail != "" && !strings.Contains(res.Detail, tt.wantDetail) {
				t.Errorf("detail = %q, want it to contain %q", res.Detail, tt.wantDetail)
			}
			if tt.wantAbsent != "" && strings.Contains(res.Detail, tt.wantAbsent) {
				t.Errorf("detail = %q, should not contain %q", res.Detail, tt.wantAbsent)
			}
		})
	}
}

func TestEntropy_SevereFloodingListsAllFlags(t *testing.T) {
	a := NewEntropyAnalyzer()
	res := a.Analyze(&Input{Text: strings.Repeat("hello world ", 20), MaxInputLength: 100})
	want := "Flags: context_flooding:240, low_diversity"
	if res.Detail != want {
		t.Errorf("detail = %q, want %q", res.Detail, want)
	}
}

func TestEntropy_ThresholdIsConfigurable(t *testing.T) {
	a := NewEntropyAnalyzer()
	res := a.Analyze(&Input{Text: highEntropyText, EntropyThreshold: 6})
	if res.Flagged {
		t.Errorf("raised threshold should not flag, got %s", res.Detail)
	}
}
