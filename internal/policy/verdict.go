package policy

import "github.com/rad-security/clawkeeper-sub000/internal/analyzer"

// DetermineVerdict maps the number of flagged layers and their highest
// severity to a verdict under the given level. It is a pure function of its
// arguments; auto-block is applied by the caller.
func DetermineVerdict(level SecurityLevel, flagCount int, highest analyzer.Severity) Verdict {
	if flagCount == 0 {
		return VerdictPassed
	}

	critical := highest == analyzer.SeverityCritical
	severe := critical || highest == analyzer.SeverityHigh

	switch level {
	case LevelParanoid:
		return VerdictBlocked

	case LevelStrict:
		if flagCount >= 2 || critical {
			return VerdictBlocked
		}
		return VerdictWarned

	case LevelModerate:
		if flagCount >= 2 && severe {
			return VerdictBlocked
		}
		if severe {
			return VerdictWarned
		}
		return VerdictPassed

	case LevelMinimal:
		if critical {
			return VerdictBlocked
		}
		if highest == analyzer.SeverityHigh {
			return VerdictWarned
		}
		return VerdictPassed

	default:
		// Unrecognized level: never pass something that flagged.
		if flagCount >= 2 {
			return VerdictBlocked
		}
		return VerdictWarned
	}
}

// ApplyAutoBlock downgrades a block to a warning when auto-block is off.
// It never turns a detection into a pass.
func ApplyAutoBlock(v Verdict, autoBlock bool) Verdict {
	if v == VerdictBlocked && !autoBlock {
		return VerdictWarned
	}
	return v
}
