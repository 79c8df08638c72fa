package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rad-security/clawkeeper-sub000/internal/analyzer"
	"github.com/rad-security/clawkeeper-sub000/internal/detector"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
	"github.com/rad-security/clawkeeper-sub000/internal/shield"
)

// hookInput is the JSON payload a host sends for one turn.
//
//	{"turn_type": "user", "content": "..."}
//	{"turn_type": "tool_result", "content": "..."}
type hookInput struct {
	TurnType string `json:"turn_type"`
	Content  string `json:"content"`
}

// hookOutput is written to stdout for every hook call.
type hookOutput struct {
	Verdict        policy.Verdict    `json:"verdict,omitempty"`
	Severity       analyzer.Severity `json:"severity,omitempty"`
	Confidence     float64           `json:"confidence,omitempty"`
	DetectionLayer analyzer.Layer    `json:"detection_layer,omitempty"`
	PatternName    string            `json:"pattern_name,omitempty"`
	Message        string            `json:"message,omitempty"`
	InputHash      string            `json:"input_hash,omitempty"`
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Host hook handler: JSON turn on stdin, JSON verdict on stdout",
	Long: `Reads one turn as JSON from stdin, runs detection, and writes the
verdict as JSON to stdout. Messages starting with /shield are handled as
shield commands and their output is returned in "message".

Blocked turns exit with status 2 so hosts can refuse them without parsing
the output. Unparseable input is allowed through (fail open) with a
warning on stderr.

Input:
  {"turn_type": "user" | "tool_result", "content": "..."}`,
	RunE: hookCommand,
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

func hookCommand(cmd *cobra.Command, args []string) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}

	var input hookInput
	if err := json.Unmarshal(data, &input); err != nil {
		fmt.Fprintf(os.Stderr, "[shield] warning: could not parse hook input: %v\n", err)
		return writeHookOutput(hookOutput{Verdict: policy.VerdictPassed})
	}
	turn := analyzer.ParseTurnType(input.TurnType)

	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[shield] warning: %v\n", err)
		return writeHookOutput(hookOutput{Verdict: policy.VerdictPassed})
	}
	s := newShield(ctx, cfg)

	if turn == analyzer.TurnUser && strings.HasPrefix(input.Content, shield.CommandPrefix) {
		out := runHookCommand(ctx, s, input.Content)
		finish(s)
		return writeHookOutput(hookOutput{Message: out})
	}

	v := s.Check(input.Content, turn)
	finish(s)

	out := hookOutput{
		Verdict:    v.Verdict,
		Severity:   v.Severity,
		Confidence: v.Confidence,
		Message:    detector.FormatMessage(v),
		InputHash:  v.InputHash,
	}
	if top, ok := v.Top(); ok {
		out.DetectionLayer = top.Layer
		out.PatternName = top.PatternName
	}
	if err := writeHookOutput(out); err != nil {
		return err
	}
	if v.Verdict == policy.VerdictBlocked {
		os.Exit(2)
	}
	return nil
}

// runHookCommand answers a /shield message. A sync waits for the pull: the
// slash command would start it in the background and finish cancels it.
func runHookCommand(ctx context.Context, s *shield.Shield, content string) string {
	args := strings.Fields(strings.TrimPrefix(content, shield.CommandPrefix))
	if len(args) == 0 || !strings.EqualFold(args[0], "sync") {
		return s.OnMessage(content)
	}

	const ack = "Syncing policy from dashboard..."
	if err := s.SyncNow(ctx); err != nil {
		return ack + "\n  Policy sync failed: " + err.Error()
	}
	return ack + "\n  Security level: " + string(s.Store().Snapshot().SecurityLevel)
}

func writeHookOutput(out hookOutput) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
