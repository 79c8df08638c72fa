package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	unicheck "github.com/rad-security/clawkeeper-sub000/internal/unicode"
)

// signature is a single lexical detection rule. Most signatures are a
// compiled regex; a few need code (post-match exclusions, Unicode scan,
// shell parsing) and set match instead.
type signature struct {
	name     string
	severity Severity
	re       *regexp.Regexp
	match    func(text string, sc *scanCache) bool
}

func (s signature) matches(text string, sc *scanCache) bool {
	if s.match != nil {
		return s.match(text, sc)
	}
	return s.re.MatchString(text)
}

// scanCache holds per-call derived views of the text so signatures that
// share them (the Unicode report, the shell snippets) compute them once.
type scanCache struct {
	text    string
	uni     *unicheck.Report
	snippet []string
	parsed  bool
}

func (sc *scanCache) unicode() unicheck.Report {
	if sc.uni == nil {
		rep := unicheck.Scan(sc.text)
		sc.uni = &rep
	}
	return *sc.uni
}

func (sc *scanCache) shellSnippets() []string {
	if !sc.parsed {
		sc.snippet = extractShellSnippets(sc.text)
		sc.parsed = true
	}
	return sc.snippet
}

// LexicalAnalyzer matches known injection phrasings, encodings and
// command-injection shapes. It is the "regex" layer and the cheapest one.
type LexicalAnalyzer struct {
	signatures []signature
}

// NewLexicalAnalyzer creates the lexical layer with the built-in signatures.
func NewLexicalAnalyzer() *LexicalAnalyzer {
	return &LexicalAnalyzer{signatures: buildSignatures()}
}

func (a *LexicalAnalyzer) Name() Layer { return LayerRegex }

// Analyze counts matching signatures. Confidence saturates at four hits.
// PatternName is the first signature that reached the highest severity.
func (a *LexicalAnalyzer) Analyze(in *Input) DetectionResult {
	sc := &scanCache{text: in.Text}
	highest := SeverityLow
	var best string
	count := 0

	for _, sig := range a.signatures {
		if !sig.matches(in.Text, sc) {
			continue
		}
		count++
		if sig.severity.Rank() > highest.Rank() {
			highest = sig.severity
			best = sig.name
		}
	}

	if count == 0 {
		return clean(LayerRegex)
	}
	return DetectionResult{
		Layer:       LayerRegex,
		Flagged:     true,
		Severity:    highest,
		Confidence:  minf(1, float64(count)*0.3),
		PatternName: best,
		Detail:      fmt.Sprintf("%d pattern(s) matched", count),
	}
}

func buildSignatures() []signature {
	return []signature{
		// --- Persona hijack ---
		{name: "persona_hijack", severity: SeverityCritical, re: re(`(?i)(?:you are now|from now on you are|your new identity is|act as|pretend to be)\s`)},
		{name: "persona_reset", severity: SeverityCritical, re: re(`(?i)(?:forget (?:everything|all|your|what)|disregard (?:all|your|previous))`)},
		{name: "new_instructions", severity: SeverityCritical, re: re(`(?i)(?:new|updated|revised) instructions?:`)},

		// --- Instruction override ---
		{name: "ignore_previous", severity: SeverityCritical, re: re(`(?i)(?:ignore|disregard|forget|override)\s+(?:all\s+)?(?:previous|prior|above|earlier)\s+(?:instructions?|rules?|guidelines?|constraints?)`)},
		{name: "system_override", severity: SeverityCritical, re: re(`(?i)(?:system\s*(?:override|prompt|message)|admin\s*(?:mode|override)|developer\s*mode|debug\s*mode)`)},
		{name: "jailbreak", severity: SeverityCritical, re: re(`(?i)(?:jailbreak|DAN\s*mode|do anything now|evil\s*mode|uncensored\s*mode)`)},

		// --- Boundary / delimiter escape ---
		{name: "boundary_markers", severity: SeverityHigh, re: re("(?i)(?:```system|<\\|system\\|>|<\\|im_start\\|>|<\\|endoftext\\|>|\\[INST\\]|\\[/INST\\])")},
		{name: "xml_injection", severity: SeverityHigh, re: re(`(?i)<(?:system|assistant|user|tool_result|function_call)\s*>`)},
		{name: "markdown_escape", severity: SeverityHigh, re: re(`(?i)---\s*(?:system|instructions|prompt)\s*---`)},

		// --- Social engineering ---
		{name: "urgency_pressure", severity: SeverityMedium, re: re(`(?i)(?:this is (?:urgent|critical|an emergency)|you must (?:immediately|now)|failure to comply)`)},
		{name: "authority_claim", severity: SeverityMedium, re: re(`(?i)(?:i am (?:your|the) (?:admin|developer|creator|owner)|i have (?:admin|root|sudo) (?:access|privileges))`)},
		{name: "emotional_manipulation", severity: SeverityMedium, re: re(`(?i)if you don'?t .+ (?:people will|someone will|i will) (?:die|be hurt|suffer)`)},

		// --- Encoding / obfuscation ---
		{name: "base64_block", severity: SeverityMedium, re: re(`[A-Za-z0-9+/]{50,}={0,2}`)},
		{name: "hex_encoding", severity: SeverityMedium, re: re(`(?:\\x[0-9a-fA-F]{2}){8,}`)},
		{name: "unicode_escape", severity: SeverityMedium, re: re(`(?:\\u[0-9a-fA-F]{4}){4,}`)},
		{name: "zero_width_chars", severity: SeverityHigh, match: func(_ string, sc *scanCache) bool {
			return sc.unicode().LongestZeroWidthRun >= 2
		}},
		{name: "homoglyphs", severity: SeverityMedium, match: func(_ string, sc *scanCache) bool {
			return sc.unicode().MixedScript()
		}},
		{name: "bidi_override", severity: SeverityHigh, match: func(_ string, sc *scanCache) bool {
			return sc.unicode().Bidi > 0
		}},
		{name: "tag_chars", severity: SeverityHigh, match: func(_ string, sc *scanCache) bool {
			return sc.unicode().Tags > 0
		}},

		// --- Tool / data exfiltration ---
		{name: "exfil_curl", severity: SeverityHigh, match: matchRemoteFetch},
		{name: "exfil_webhook", severity: SeverityMedium, re: re(`(?i)(?:webhook|callback|notify).*https?://`)},
		{name: "data_extraction", severity: SeverityHigh, re: re(`(?i)(?:send|post|upload|transmit|exfiltrate)\s+(?:all|the|my|this)\s+(?:data|information|content|files|credentials)`)},

		// --- Prompt leak ---
		{name: "prompt_leak_request", severity: SeverityMedium, re: re(`(?i)(?:show|reveal|display|print|output|repeat)\s+(?:your|the)\s+(?:system\s*)?(?:prompt|instructions|rules|guidelines)`)},
		{name: "prompt_leak_indirect", severity: SeverityMedium, re: re(`(?i)(?:what (?:are|were) your (?:original\s+)?instructions|what is your (?:system\s+)?prompt)`)},

		// --- Command injection ---
		{name: "shell_injection", severity: SeverityCritical, re: re("(?i)(?:;\\s*(?:rm|cat|curl|wget|nc|bash|sh|python|perl|ruby)\\s|&&\\s*(?:rm|cat|curl)|`[^`]*(?:rm|cat|curl))")},
		{name: "shell_pipe_to_interpreter", severity: SeverityHigh, match: func(_ string, sc *scanCache) bool {
			for _, s := range sc.shellSnippets() {
				if dangerousShell(s) {
					return true
				}
			}
			return false
		}},
		{name: "path_traversal", severity: SeverityHigh, re: re(`(?i)(?:\.\./){3,}|/etc/(?:passwd|shadow|hosts)`)},

		// --- Skill-specific attacks ---
		{name: "skill_impersonation", severity: SeverityHigh, re: re(`(?i)(?:SKILL\.md|skill manifest|skill config)\s*:?\s*\n`)},
		{name: "tool_result_spoof", severity: SeverityHigh, re: re(`(?i)(?:tool_result|function_response|api_response)\s*[:{]`)},

		// --- Multi-step / chain ---
		{name: "chain_instructions", severity: SeverityHigh, re: re(`(?is)step\s*1[:\s].*(?:ignore|override|forget).*step\s*2[:\s]`)},
		{name: "nested_injection", severity: SeverityMedium, re: re(`(?i)when\s+(?:asked|prompted|queried)\s+about\s+.+?\s+(?:say|respond|answer|reply)`)},
	}
}

// remoteFetchPattern captures what follows the scheme so loopback targets
// can be excluded after the match (RE2 has no negative look-ahead).
var remoteFetchPattern = regexp.MustCompile(`(?i)(?:curl|wget|fetch)\s+(?:https?|ftp)://(\S*)`)

func matchRemoteFetch(text string, _ *scanCache) bool {
	for _, m := range remoteFetchPattern.FindAllStringSubmatch(text, -1) {
		target := strings.ToLower(m[1])
		if strings.HasPrefix(target, "localhost") || strings.HasPrefix(target, "127.0.0.1") {
			continue
		}
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func re(p string) *regexp.Regexp {
	return regexp.MustCompile(p)
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
