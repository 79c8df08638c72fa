package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rad-security/clawkeeper-sub000/internal/shield"
)

// toolPrefix marks a line in the run loop as a tool result.
const toolPrefix = "@tool "

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the shield as a line-oriented host",
	Long: `Start the shield with its background workers (policy sync, telemetry,
heartbeat) and inspect every line read from stdin.

  - A plain line is a user message.
  - A line starting with "@tool " is a tool result.
  - A line starting with /shield is a shield command.

Passed turns print nothing; blocked and warned turns print the shield
message. Ctrl-D or Ctrl-C stops the shield and flushes telemetry.

Example:
  shield run --level paranoid`,
	RunE: runCommand,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	s := newShield(ctx, cfg)
	s.Start(ctx)
	defer s.Stop()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr, s.Banner())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		if interactive {
			colorHeader.Fprint(os.Stderr, "shield> ")
		}
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			handleLine(s, line)
		}
	}
}

func handleLine(s *shield.Shield, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	var out string
	if strings.HasPrefix(line, toolPrefix) {
		out = s.OnToolResult(strings.TrimPrefix(line, toolPrefix))
	} else {
		out = s.OnMessage(line)
	}
	if out == "" {
		return
	}
	switch {
	case strings.HasPrefix(out, "[SHIELD BLOCKED]"):
		colorBlocked.Println(out)
	case strings.HasPrefix(out, "[SHIELD WARNING]"):
		colorWarned.Println(out)
	default:
		fmt.Println(out)
	}
}
