package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rad-security/clawkeeper-sub000/internal/diag"
	"github.com/rad-security/clawkeeper-sub000/internal/logger"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
)

var (
	logFilterVerdict string
	logFilterLayer   string
	logLast          int
	logSummary       bool
	logDate          string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the local shield event log",
	Long: `View the shield event log for one day (UTC) with filtering and summary
options. The log holds input hashes and detection metadata only, never the
inspected text.

Examples:
  shield log                          # Show today's events
  shield log --last 20                # Show the last 20 events
  shield log --verdict blocked        # Show only blocked turns
  shield log --layer blacklist        # Show turns the blacklist layer flagged
  shield log --date 2026-03-14        # Show another day
  shield log --summary                # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterVerdict, "verdict", "", "Filter by verdict (blocked, warned, passed)")
	logCmd.Flags().StringVar(&logFilterLayer, "layer", "", "Filter by flagged layer")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N events")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	logCmd.Flags().StringVar(&logDate, "date", "", "Day to show, YYYY-MM-DD (default: today, UTC)")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	day := time.Now().UTC()
	if logDate != "" {
		day, err = time.Parse("2006-01-02", logDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", logDate, err)
		}
	}

	events, err := logger.New(cfg.Shield.LogDir, diag.New("logger")).ReadEvents(day)
	if err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}
	if len(events) == 0 {
		fmt.Printf("No shield events for %s.\n", day.Format("2006-01-02"))
		return nil
	}

	filtered := filterEvents(events, logFilterVerdict, logFilterLayer)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(events)
		return nil
	}
	printEvents(filtered)
	return nil
}

func filterEvents(events []logger.Event, verdict, layer string) []logger.Event {
	if verdict == "" && layer == "" {
		return events
	}
	var filtered []logger.Event
	for _, e := range events {
		if verdict != "" && !strings.EqualFold(e.Verdict, verdict) {
			continue
		}
		if layer != "" && !containsFold(e.Flags, layer) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func printEvents(events []logger.Event) {
	for _, e := range events {
		c := verdictColor(policy.Verdict(e.Verdict))
		c.Printf("%-8s", strings.ToUpper(e.Verdict))
		fmt.Printf(" %s  %-11s %-8s level=%s\n", formatTimestamp(e.Timestamp), e.TurnType, e.Severity, e.SecurityLevel)

		if e.DetectionLayer != nil {
			pattern := "unknown"
			if e.PatternName != nil {
				pattern = *e.PatternName
			}
			fmt.Printf("     Layer: %s  Pattern: %s  Confidence: %.0f%%\n", *e.DetectionLayer, pattern, e.Confidence*100)
		}
		if len(e.Flags) > 0 {
			fmt.Printf("     Flags: %s\n", strings.Join(e.Flags, ", "))
		}
		hash := e.InputHash
		if len(hash) > 16 {
			hash = hash[:16]
		}
		fmt.Printf("     Input: %s… (%d chars)\n", hash, e.InputLength)
		fmt.Println()
	}
}

func printSummary(all []logger.Event) {
	counts := map[string]int{}
	layers := map[string]int{}
	for _, e := range all {
		counts[e.Verdict]++
		for _, f := range e.Flags {
			layers[f]++
		}
	}

	rule := strings.Repeat("═", 43)
	fmt.Println(rule)
	colorHeader.Println("  Shield Event Summary")
	fmt.Println(rule)
	fmt.Printf("  Total events:    %d\n", len(all))
	fmt.Printf("  Blocked:         %d\n", counts[string(policy.VerdictBlocked)])
	fmt.Printf("  Warned:          %d\n", counts[string(policy.VerdictWarned)])
	fmt.Printf("  Passed:          %d\n", counts[string(policy.VerdictPassed)])
	fmt.Println(rule)
	fmt.Printf("  First event:     %s\n", formatTimestamp(all[0].Timestamp))
	fmt.Printf("  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))

	if len(layers) > 0 {
		fmt.Println()
		fmt.Println("  Flags by layer:")
		for _, l := range []string{"regex", "semantic", "context_integrity", "blacklist", "entropy_heuristic"} {
			if n := layers[l]; n > 0 {
				fmt.Printf("    %-18s %d\n", l, n)
			}
		}
	}
	fmt.Println()
}
