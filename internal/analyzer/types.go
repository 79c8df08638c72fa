package analyzer

// Analyzer is the interface every detection layer implements.
// Layers are pure: the same Input always yields the same DetectionResult.
type Analyzer interface {
	// Name returns the layer identifier (e.g., "regex", "blacklist").
	Name() Layer

	// Analyze inspects one turn and returns exactly one result,
	// flagged or not.
	Analyze(in *Input) DetectionResult
}

// Layer identifies one of the five detection layers. The string values are
// the names used in log records and telemetry payloads.
type Layer string

const (
	LayerRegex     Layer = "regex"
	LayerSemantic  Layer = "semantic"
	LayerContext   Layer = "context_integrity"
	LayerBlacklist Layer = "blacklist"
	LayerEntropy   Layer = "entropy_heuristic"
)

// AllLayers lists the layers in the order the registry runs them.
var AllLayers = []Layer{LayerRegex, LayerSemantic, LayerContext, LayerBlacklist, LayerEntropy}

// Severity is a ranked enum: low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the explicit ordering of a severity. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the higher-ranked of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// TurnType says who produced the turn being inspected.
type TurnType string

const (
	TurnUser       TurnType = "user"
	TurnToolResult TurnType = "tool_result"
)

// ParseTurnType maps a string to a TurnType, defaulting to TurnUser.
func ParseTurnType(s string) TurnType {
	if TurnType(s) == TurnToolResult {
		return TurnToolResult
	}
	return TurnUser
}

// Input carries one turn plus the slice of policy the layers need.
// Configuration travels with the call so layers never read global state.
type Input struct {
	Text string
	Turn TurnType

	// Hash is the SHA-256 hex digest of Text, computed once by the caller.
	// Layers may use it as a cache key.
	Hash string

	CustomBlacklist  []string
	EntropyThreshold float64
	MaxInputLength   int
}

// DetectionResult is the output of one layer for one turn.
type DetectionResult struct {
	Layer       Layer    `json:"layer"`
	Flagged     bool     `json:"flagged"`
	Severity    Severity `json:"severity"`
	Confidence  float64  `json:"confidence"`
	PatternName string   `json:"pattern_name,omitempty"`
	Detail      string   `json:"detail,omitempty"`
}

// clean returns the unflagged result for a layer.
func clean(layer Layer) DetectionResult {
	return DetectionResult{Layer: layer, Severity: SeverityLow}
}
