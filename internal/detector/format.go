package detector

import (
	"fmt"
	"math"
	"strings"

	"github.com/rad-security/clawkeeper-sub000/internal/policy"
)

// FormatMessage renders the text shown to the user for a blocked or warned
// turn. Passed turns produce an empty string.
func FormatMessage(v ShieldVerdict) string {
	if v.Verdict == policy.VerdictPassed {
		return ""
	}

	layer, pattern := "multiple", "unknown"
	if top, ok := v.Top(); ok {
		layer = string(top.Layer)
		if top.PatternName != "" {
			pattern = top.PatternName
		}
	}

	var b strings.Builder
	if v.Verdict == policy.VerdictBlocked {
		b.WriteString("[SHIELD BLOCKED] Potential prompt injection detected.\n")
	} else {
		b.WriteString("[SHIELD WARNING] Suspicious content detected.\n")
	}
	fmt.Fprintf(&b, "  Layer: %s\n", layer)
	fmt.Fprintf(&b, "  Pattern: %s\n", pattern)
	fmt.Fprintf(&b, "  Severity: %s\n", v.Severity)

	if v.Verdict == policy.VerdictBlocked {
		fmt.Fprintf(&b, "  Confidence: %d%%\n", int(math.Round(v.Confidence*100)))
		b.WriteString("\nThis message was blocked by Clawkeeper Runtime Shield.\n")
		b.WriteString("Use /shield status for more info.")
	} else {
		b.WriteString("\nProceeding with caution. Use /shield stats for details.")
	}
	return b.String()
}
