package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rad-security/clawkeeper-sub000/internal/config"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
	"github.com/rad-security/clawkeeper-sub000/internal/remote"
	"github.com/rad-security/clawkeeper-sub000/internal/shield"
	"github.com/rad-security/clawkeeper-sub000/internal/telemetry"
)

var (
	configPath string
	logDir     string
	level      string
)

var (
	colorBlocked = color.New(color.FgRed, color.Bold)
	colorWarned  = color.New(color.FgYellow, color.Bold)
	colorPassed  = color.New(color.FgGreen)
	colorHeader  = color.New(color.FgCyan)
)

var rootCmd = &cobra.Command{
	Use:   "shield",
	Short: "Clawkeeper Runtime Shield - prompt-injection detection for AI agents",
	Long: `Clawkeeper Runtime Shield inspects every turn an agent receives (user
messages and tool results) for prompt-injection and jailbreak attempts.
Five independent detection layers are combined into one verdict
(blocked, warned or passed) under a configurable security level.

Events are logged locally to ~/.clawkeeper/shield-logs and, when
CLAWKEEPER_API_KEY is set, reported to the Clawkeeper dashboard.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to shield config YAML (default: ~/.clawkeeper/shield.yaml)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for shield event logs (default: ~/.clawkeeper/shield-logs)")
	rootCmd.PersistentFlags().StringVar(&level, "level", "", "Security level: paranoid, strict, moderate or minimal")
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, config.Options{ConfigFile: configPath, LogDir: logDir, Level: level})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newShield builds the runtime for cfg, routing telemetry to Pub/Sub when
// configured.
func newShield(ctx context.Context, cfg *config.Config) *shield.Shield {
	opts := shield.Options{Config: cfg.Shield}
	if cfg.UsePubSub() {
		sink, err := telemetry.NewPubSubSink(ctx, cfg.PubSubProject, cfg.PubSubTopic, cfg.Shield.Hostname)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[shield] warning: pubsub unavailable, using dashboard: %v\n", err)
		} else {
			opts.Sink = sink
		}
	}
	return shield.New(opts)
}

// finish flushes pending telemetry from a one-shot command and shuts the
// runtime down.
func finish(s *shield.Shield) {
	ctx, cancel := context.WithTimeout(context.Background(), remote.DefaultTimeout)
	defer cancel()
	if err := s.Reporter().Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[shield] warning: telemetry not delivered: %v\n", err)
	}
	s.Stop()
}

func verdictColor(v policy.Verdict) *color.Color {
	switch v {
	case policy.VerdictBlocked:
		return colorBlocked
	case policy.VerdictWarned:
		return colorWarned
	default:
		return colorPassed
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
