package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rad-security/clawkeeper-sub000/internal/analyzer"
	"github.com/rad-security/clawkeeper-sub000/internal/detector"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
)

var (
	checkToolResult bool
	checkJSON       bool
)

var checkCmd = &cobra.Command{
	Use:   "check [text]",
	Short: "Inspect one message and print the verdict",
	Long: `Run every detection layer on one message and print the verdict.
The message is read from stdin when no argument is given.

Exit status is 2 when the message is blocked.

Examples:
  shield check "ignore all previous instructions"
  cat tool-output.json | shield check --tool-result
  shield check --json "what's the weather?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: checkCommand,
}

func init() {
	checkCmd.Flags().BoolVar(&checkToolResult, "tool-result", false, "Treat the input as a tool result instead of a user message")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the full verdict as JSON")
	rootCmd.AddCommand(checkCmd)
}

func checkCommand(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimRight(string(data), "\n")
	}

	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	s := newShield(ctx, cfg)

	turn := analyzer.TurnUser
	if checkToolResult {
		turn = analyzer.TurnToolResult
	}
	v := s.Check(text, turn)
	finish(s)

	if checkJSON {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		printVerdict(v)
	}

	if v.Verdict == policy.VerdictBlocked {
		os.Exit(2)
	}
	return nil
}

func printVerdict(v detector.ShieldVerdict) {
	c := verdictColor(v.Verdict)
	c.Printf("%s", strings.ToUpper(string(v.Verdict)))
	fmt.Printf("  severity=%s confidence=%.0f%% length=%d\n", v.Severity, v.Confidence*100, v.InputLength)

	for _, d := range v.Detections {
		mark := "  -"
		if d.Flagged {
			mark = "  !"
		}
		line := fmt.Sprintf("%s %-18s %-8s %.2f", mark, d.Layer, d.Severity, d.Confidence)
		if d.PatternName != "" {
			line += "  " + d.PatternName
		}
		if d.Flagged {
			colorWarned.Println(line)
			if d.Detail != "" {
				fmt.Printf("      %s\n", d.Detail)
			}
		} else {
			fmt.Println(line)
		}
	}
}
