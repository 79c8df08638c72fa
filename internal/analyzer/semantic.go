package analyzer

import (
	"fmt"
	"regexp"
)

// semanticSignal is a weighted group of soft natural-language cues. A group
// contributes its weight at most once no matter how many cues match.
type semanticSignal struct {
	name     string
	weight   float64
	severity Severity
	cues     []*regexp.Regexp
}

// semanticFlagThreshold is the anomaly score at which the layer flags.
const semanticFlagThreshold = 0.20

// SemanticAnalyzer scores combinations of individually weak signals.
type SemanticAnalyzer struct {
	signals []semanticSignal
}

// NewSemanticAnalyzer creates the semantic layer with the built-in groups.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{signals: buildSemanticSignals()}
}

func (a *SemanticAnalyzer) Name() Layer { return LayerSemantic }

func (a *SemanticAnalyzer) Analyze(in *Input) DetectionResult {
	score := 0.0
	highest := SeverityLow
	var top string
	topWeight := 0.0

	for _, sig := range a.signals {
		if !matchesAnyPattern(in.Text, sig.cues) {
			continue
		}
		score += sig.weight
		if sig.weight > topWeight {
			topWeight = sig.weight
			top = sig.name
		}
		highest = MaxSeverity(highest, sig.severity)
	}

	res := DetectionResult{
		Layer:       LayerSemantic,
		Flagged:     score >= semanticFlagThreshold,
		Severity:    highest,
		Confidence:  minf(1, score),
		PatternName: top,
	}
	if res.Flagged {
		res.Detail = fmt.Sprintf("Anomaly score: %.2f", score)
	}
	return res
}

func buildSemanticSignals() []semanticSignal {
	return []semanticSignal{
		{
			name:     "persona_hijack",
			weight:   0.30,
			severity: SeverityCritical,
			cues: compilePatterns(
				`(?i)you\s+(?:are|will be|shall be|must be)\s+(?:a|an|the|my)\s+\w+`,
				`(?i)(?:new|your new|changed?)\s+(?:role|persona|identity|character)`,
				`(?i)(?:from now|starting now|henceforth)\s+`,
				`(?i)role-?play\s+as`,
				`(?i)\bact\s+as\b`,
				`(?i)\b(?:DAN|developer|god)\s+mode\b`,
			),
		},
		{
			name:     "instruction_overwrite",
			weight:   0.25,
			severity: SeverityCritical,
			cues: compilePatterns(
				`(?i)(?:actual|real|true|correct)\s+(?:instructions?|task|purpose)`,
				`(?i)(?:original|underlying)\s+(?:purpose|goal|objective)`,
				`(?i)(?:instead|rather)\s+(?:you should|you must|do this)`,
				`(?i)(?:updated|new|revised|corrected)\s+(?:instructions?|guidelines?|rules?)`,
				`(?i)(?:ignore|disregard|forget)\s+(?:all\s+)?(?:previous|prior|above|earlier)\s+(?:instructions?|rules?|guidelines?)`,
			),
		},
		{
			name:     "boundary_escape",
			weight:   0.20,
			severity: SeverityHigh,
			cues: compilePatterns(
				`(?i)(?:end|close|terminate)\s+(?:the\s+)?(?:system|assistant|user)\s+(?:prompt|message|section)`,
				`(?i)(?:breaking|escaping|leaving)\s+(?:the\s+)?(?:context|sandbox|restrictions)`,
				`(?i)(?:outside|beyond|above)\s+(?:your|the)\s+(?:context|scope|boundaries)`,
			),
		},
		{
			name:     "social_engineering",
			weight:   0.15,
			severity: SeverityMedium,
			cues: compilePatterns(
				`(?i)(?:trust me|believe me|i promise)\s`,
				`(?i)(?:don'?t (?:tell|mention|reveal|share)|keep (?:this|it) (?:secret|private|between us))`,
				`(?i)(?:only you can|you'?re the only one|special exception)`,
				`(?i)(?:testing|debugging|auditing)\s+(?:your|the)\s+(?:safety|security|filters?)`,
			),
		},
		{
			name:     "encoding_obfuscation",
			weight:   0.10,
			severity: SeverityMedium,
			cues: compilePatterns(
				`(?i)(?:encode|decode|convert|translate)\s+(?:this|the following|it)\s+(?:to|from|in|into)\s+(?:base64|hex|binary|rot13)`,
				`(?i)(?:spell|write)\s+(?:it|this)\s+(?:backwards?|reversed?|in reverse)`,
				`(?i)(?:pig latin|caesar cipher|rot\d+)`,
			),
		},
	}
}

func compilePatterns(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func matchesAnyPattern(s string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
