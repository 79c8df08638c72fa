package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var commandCmd = &cobra.Command{
	Use:     "cmd [args...]",
	Aliases: []string{"command"},
	Short:   "Run one /shield command",
	Long: `Run one shield command and print its output, exactly as a host would
for "/shield <args>". Policy changes made this way (level, blacklist) last
only for this process; use "shield run" for a session, or the policy file
for persistent changes.

Examples:
  shield cmd status
  shield cmd log 20
  shield cmd sync`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		s := newShield(ctx, cfg)
		defer finish(s)

		if len(args) > 0 && strings.EqualFold(args[0], "sync") {
			// The slash command syncs in the background; a one-shot process
			// has to wait for the pull instead.
			fmt.Println("Syncing policy from dashboard...")
			if err := s.SyncNow(ctx); err != nil {
				return fmt.Errorf("policy sync failed: %w", err)
			}
			fmt.Printf("Security level: %s\n", s.Store().Snapshot().SecurityLevel)
			return nil
		}
		fmt.Println(s.Command(strings.Join(args, " ")))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commandCmd)
}
