package analyzer

import "regexp"

// structuralCheck is one priority tier of the context-integrity layer.
type structuralCheck struct {
	name     string
	detail   string
	userOnly bool
	patterns []*regexp.Regexp
}

// ContextAnalyzer detects turns that impersonate another conversation role.
// The checks run in priority order and the first match wins.
type ContextAnalyzer struct {
	checks []structuralCheck
}

// NewContextAnalyzer creates the context-integrity layer.
func NewContextAnalyzer() *ContextAnalyzer {
	return &ContextAnalyzer{checks: []structuralCheck{
		{
			name:     "tool_response_impersonation",
			detail:   "User message appears to impersonate a tool response",
			userOnly: true,
			patterns: compilePatterns(
				`(?s)^\s*\{.*"(?:result|output|response|data|status)".*\}\s*$`,
				`(?i)^\s*(?:tool_result|function_response|api_response)\s*[:=]`,
				`(?i)^\s*<tool_result>`,
				`(?i)^\s*\[(?:TOOL|FUNCTION|API)\s+(?:RESULT|RESPONSE|OUTPUT)\]`,
			),
		},
		{
			name:   "system_impersonation",
			detail: "Input contains system message markers",
			patterns: compilePatterns(
				`(?im)^\s*\[?system\]?\s*[:>]`,
				`(?i)^\s*<system>`,
				`(?im)^\s*assistant\s*[:>]\s`,
				`(?im)^\s*\[?(?:instruction|directive)\]?\s*[:>]`,
			),
		},
		{
			name:   "multi_role_injection",
			detail: "Input contains multiple conversation role markers",
			patterns: compilePatterns(
				`(?is)user\s*[:>].{5,}assistant\s*[:>]`,
				`(?is)human\s*[:>].{5,}(?:ai|assistant|bot)\s*[:>]`,
			),
		},
	}}
}

func (a *ContextAnalyzer) Name() Layer { return LayerContext }

func (a *ContextAnalyzer) Analyze(in *Input) DetectionResult {
	for _, c := range a.checks {
		if c.userOnly && in.Turn == TurnToolResult {
			continue
		}
		if matchesAnyPattern(in.Text, c.patterns) {
			return DetectionResult{
				Layer:       LayerContext,
				Flagged:     true,
				Severity:    SeverityHigh,
				Confidence:  0.85,
				PatternName: c.name,
				Detail:      c.detail,
			}
		}
	}
	return clean(LayerContext)
}
