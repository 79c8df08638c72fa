package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rad-security/clawkeeper-sub000/internal/config"
	"github.com/rad-security/clawkeeper-sub000/internal/diag"
	"github.com/rad-security/clawkeeper-sub000/internal/logger"
	"github.com/rad-security/clawkeeper-sub000/internal/remote"
	"github.com/rad-security/clawkeeper-sub000/internal/shield"
	"github.com/rad-security/clawkeeper-sub000/internal/telemetry"
)

var statusPing bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show shield status: config, policy, packs, event log, dashboard",
	Long: `Show where the shield reads its configuration from, the effective policy,
installed packs, today's event log and whether the dashboard is reachable.

  shield status
  shield status --ping     # also send a heartbeat to the dashboard`,
	RunE: statusCommand,
}

func init() {
	statusCmd.Flags().BoolVar(&statusPing, "ping", false, "Send a heartbeat to verify dashboard connectivity")
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	sc := cfg.Shield

	rule := strings.Repeat("═", 55)
	fmt.Println(rule)
	colorHeader.Println("  Runtime Shield Status")
	fmt.Println(rule)
	fmt.Println()

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Printf("  Binary:    %s (v%s)\n", binPath, shield.Version)
	fmt.Printf("  Host:      %s\n", sc.Hostname)
	fmt.Printf("  Config:    %s\n", cfg.ConfigDir)
	fmt.Println()

	fmt.Println("─── Policy ────────────────────────────────────────────")
	checkFile("Config file", cfg.ConfigFile)
	checkFile("Policy file", cfg.PolicyPath)
	fmt.Printf("  Security level:    %s\n", sc.SecurityLevel)
	fmt.Printf("  Auto-block:        %t\n", sc.AutoBlock)
	fmt.Printf("  Entropy threshold: %.1f\n", sc.EntropyThreshold)
	fmt.Printf("  Max input length:  %d\n", sc.MaxInputLength)
	fmt.Printf("  Custom blacklist:  %d entries\n", len(sc.CustomBlacklist))
	printPackSummary(cfg)
	fmt.Println()

	fmt.Println("─── Event Log ─────────────────────────────────────────")
	checkEventLog(logger.New(sc.LogDir, diag.New("logger")).Path(time.Now()))
	fmt.Println()

	fmt.Println("─── Dashboard ─────────────────────────────────────────")
	if !sc.Connected() {
		fmt.Println("  ⬚  Not connected (local-only). Set CLAWKEEPER_API_KEY to connect.")
		fmt.Println()
		return nil
	}
	fmt.Printf("  ✅ API key configured (%s)\n", sc.APIURL)
	if cfg.UsePubSub() {
		fmt.Printf("  ✅ Events routed to Pub/Sub topic %s/%s\n", cfg.PubSubProject, cfg.PubSubTopic)
	}
	if statusPing {
		ping(cmd.Context(), cfg)
	}
	fmt.Println()
	return nil
}

func checkFile(name, path string) {
	if path == "" {
		fmt.Printf("  ⬚  %s: none (built-in defaults)\n", name)
		return
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  ✅ %s: %s\n", name, path)
	} else {
		fmt.Printf("  ⬚  %s: %s (not found, using defaults)\n", name, path)
	}
}

func printPackSummary(cfg *config.Config) {
	if len(cfg.Packs) == 0 {
		fmt.Printf("  ⬚  No policy packs installed (%s)\n", cfg.PacksDir)
		return
	}
	enabled, broken := 0, 0
	for _, p := range cfg.Packs {
		switch {
		case p.Err != nil:
			broken++
		case p.Enabled:
			enabled++
		}
	}
	fmt.Printf("  ✅ Policy packs: %d installed, %d enabled\n", len(cfg.Packs), enabled)
	if broken > 0 {
		fmt.Printf("  ⚠  %d pack(s) failed to load; see 'shield pack list'\n", broken)
	}
}

func checkEventLog(path string) {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("  ⬚  %s (not yet created, starts on first event)\n", path)
		return
	}
	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		fmt.Printf("  ✅ %s (<1 KB)\n", path)
	} else {
		fmt.Printf("  ✅ %s (%d KB)\n", path, sizeKB)
	}
}

func ping(ctx context.Context, cfg *config.Config) {
	client := remote.NewClient(cfg.Shield.APIURL, cfg.Shield.APIKey, nil)
	hb := telemetry.NewHeartbeat(client, cfg.Shield.Hostname, shield.Version, diag.New("heartbeat"))

	start := time.Now()
	if err := hb.Send(ctx); err != nil {
		colorBlocked.Printf("  ❌ Heartbeat failed: %v\n", err)
		return
	}
	colorPassed.Printf("  ✅ Heartbeat acknowledged in %s\n", time.Since(start).Round(time.Millisecond))
}
