// Package command implements the /shield slash commands a host exposes to
// the user. Every command returns text; none of them fail.
package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rad-security/clawkeeper-sub000/internal/analyzer"
	"github.com/rad-security/clawkeeper-sub000/internal/detector"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
	"github.com/rad-security/clawkeeper-sub000/internal/remote"
)

const (
	defaultLogCount = 10
	maxLogCount     = 50

	// SyncCooldown is the minimum time between user-triggered syncs.
	SyncCooldown = 30 * time.Second
)

// PolicySyncer pulls remote policy on demand.
type PolicySyncer interface {
	ForceSync(ctx context.Context) error
}

// EventReader returns recent raw event log lines.
type EventReader interface {
	ReadRecent(n int) []string
}

// RemoteHealth reports the state of the dashboard link.
type RemoteHealth interface {
	LastPolicySync() time.Time
	LastHeartbeat() time.Time
	QueuedEvents() int
	DroppedEvents() int
}

// Config wires a Handler to the shield runtime.
type Config struct {
	Store   *policy.Store
	Stats   *detector.Stats
	Events  EventReader
	Syncer  PolicySyncer
	Health  RemoteHealth
	Version string
	Log     zerolog.Logger
	// Context bounds background syncs started by the sync command.
	Context context.Context
}

// Handler dispatches /shield commands.
type Handler struct {
	store   *policy.Store
	stats   *detector.Stats
	events  EventReader
	syncer  PolicySyncer
	health  RemoteHealth
	version string
	log     zerolog.Logger
	ctx     context.Context
	limiter *rate.Limiter
}

// New creates a handler.
func New(cfg Config) *Handler {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &Handler{
		store:   cfg.Store,
		stats:   cfg.Stats,
		events:  cfg.Events,
		syncer:  cfg.Syncer,
		health:  cfg.Health,
		version: cfg.Version,
		log:     cfg.Log,
		ctx:     ctx,
		limiter: rate.NewLimiter(rate.Every(SyncCooldown), 1),
	}
}

// Handle runs the command in args (the text after "/shield"). Empty args
// show status.
func (h *Handler) Handle(args string) string {
	parts := strings.Fields(args)
	sub := "status"
	if len(parts) > 0 {
		sub = strings.ToLower(parts[0])
	}

	switch sub {
	case "status":
		return h.status()
	case "level":
		return h.level(parts[1:])
	case "blacklist":
		return h.blacklist(parts[1:])
	case "log":
		return h.recent(parts[1:])
	case "sync":
		return h.sync()
	case "stats":
		return h.statistics()
	default:
		return usage()
	}
}

func usage() string {
	return strings.Join([]string{
		"Usage: /shield <command>",
		"",
		"Commands:",
		"  status              Show current shield status",
		"  level <level>       Set security level",
		"  blacklist add/remove/list   Manage blacklist",
		"  log [count]         Show recent events",
		"  sync                Force policy sync",
		"  stats               Detection statistics",
	}, "\n")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (h *Handler) status() string {
	cfg := h.store.Snapshot()
	s := h.stats.Snapshot()
	dashboard := "disconnected"
	if cfg.Connected() {
		dashboard = "connected"
	}
	lines := []string{
		"Clawkeeper Runtime Shield v" + h.version,
		"  Security level: " + string(cfg.SecurityLevel),
		"  Auto-block: " + onOff(cfg.AutoBlock),
		"  Dashboard: " + dashboard,
		"  Hostname: " + cfg.Hostname,
		fmt.Sprintf("  Session: %d checked, %d blocked, %d warned", s.TotalChecked, s.Blocked, s.Warned),
		fmt.Sprintf("  Custom blacklist: %d entries", len(cfg.CustomBlacklist)),
	}
	if cfg.Connected() && h.health != nil {
		lines = append(lines,
			"  Last policy sync: "+sinceOrNever(h.health.LastPolicySync()),
			"  Last heartbeat: "+sinceOrNever(h.health.LastHeartbeat()),
			fmt.Sprintf("  Telemetry: %d queued, %d dropped", h.health.QueuedEvents(), h.health.DroppedEvents()),
		)
	}
	return strings.Join(lines, "\n")
}

func sinceOrNever(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}

func (h *Handler) level(args []string) string {
	if len(args) > 0 {
		if l, err := policy.ParseLevel(args[0]); err == nil {
			h.store.SetLevel(l)
			return "Security level set to: " + string(l)
		}
	}
	names := make([]string, len(policy.Levels))
	for i, l := range policy.Levels {
		names[i] = string(l)
	}
	return fmt.Sprintf("Usage: /shield level <%s>\nCurrent: %s",
		strings.Join(names, "|"), h.store.Snapshot().SecurityLevel)
}

func (h *Handler) blacklist(args []string) string {
	action := ""
	if len(args) > 0 {
		action = strings.ToLower(args[0])
	}
	entry := ""
	if len(args) > 1 {
		entry = strings.Join(args[1:], " ")
	}

	switch {
	case action == "add" && entry != "":
		h.store.AddBlacklist(entry)
		return fmt.Sprintf("Added to blacklist: %q", entry)
	case action == "remove" && entry != "":
		if h.store.RemoveBlacklist(entry) {
			return fmt.Sprintf("Removed from blacklist: %q", entry)
		}
		return fmt.Sprintf("Entry not found in blacklist: %q", entry)
	case action == "list":
		list := h.store.Snapshot().CustomBlacklist
		if len(list) == 0 {
			return "Custom blacklist is empty."
		}
		var b strings.Builder
		b.WriteString("Custom blacklist:")
		for _, e := range list {
			b.WriteString("\n  - ")
			b.WriteString(e)
		}
		return b.String()
	}
	return "Usage: /shield blacklist <add|remove|list> [entry]"
}

func (h *Handler) recent(args []string) string {
	count := defaultLogCount
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			count = n
		}
	}
	if count > maxLogCount {
		count = maxLogCount
	}

	var lines []string
	if h.events != nil {
		lines = h.events.ReadRecent(count)
	}
	if len(lines) == 0 {
		return "No local shield events yet."
	}
	return fmt.Sprintf("Last %d events:\n%s", len(lines), strings.Join(lines, "\n"))
}

// sync acknowledges immediately; the pull runs in the background.
func (h *Handler) sync() string {
	const ack = "Syncing policy from dashboard..."
	if h.syncer == nil {
		return ack
	}
	if !h.limiter.Allow() {
		return ack + "\n  (a sync was requested recently; skipping this one)"
	}
	go func() {
		ctx, cancel := context.WithTimeout(h.ctx, remote.DefaultTimeout)
		defer cancel()
		if err := h.syncer.ForceSync(ctx); err != nil {
			h.log.Warn().Err(err).Msg("on-demand policy sync failed")
		}
	}()
	return ack
}

func (h *Handler) statistics() string {
	s := h.stats.Snapshot()
	return strings.Join([]string{
		"Shield Detection Statistics",
		fmt.Sprintf("  Total checked: %d", s.TotalChecked),
		fmt.Sprintf("  Blocked: %d", s.Blocked),
		fmt.Sprintf("  Warned: %d", s.Warned),
		fmt.Sprintf("  Passed: %d", s.Passed),
		"",
		"By layer:",
		fmt.Sprintf("  Regex: %d", s.ByLayer[analyzer.LayerRegex]),
		fmt.Sprintf("  Semantic: %d", s.ByLayer[analyzer.LayerSemantic]),
		fmt.Sprintf("  Context: %d", s.ByLayer[analyzer.LayerContext]),
		fmt.Sprintf("  Blacklist: %d", s.ByLayer[analyzer.LayerBlacklist]),
		fmt.Sprintf("  Entropy: %d", s.ByLayer[analyzer.LayerEntropy]),
	}, "\n")
}
