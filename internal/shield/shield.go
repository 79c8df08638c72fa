// Package shield is the host-facing runtime: it wires detection, policy,
// logging and telemetry together and exposes the message hooks a host calls.
package shield

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rad-security/clawkeeper-sub000/internal/analyzer"
	"github.com/rad-security/clawkeeper-sub000/internal/command"
	"github.com/rad-security/clawkeeper-sub000/internal/detector"
	"github.com/rad-security/clawkeeper-sub000/internal/diag"
	"github.com/rad-security/clawkeeper-sub000/internal/logger"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
	"github.com/rad-security/clawkeeper-sub000/internal/remote"
	"github.com/rad-security/clawkeeper-sub000/internal/telemetry"
)

// Version is reported in status output and heartbeats.
const Version = "1.0.0"

// CommandPrefix marks a message as a shield command rather than a turn.
const CommandPrefix = "/shield"

// Options configures a Shield.
type Options struct {
	Config policy.ShieldConfig
	// Sink overrides the dashboard HTTP sink for telemetry.
	Sink       telemetry.Sink
	HTTPClient *http.Client
	Reporter   telemetry.ReporterOptions
}

// Shield owns all runtime state for one host process.
type Shield struct {
	store     *policy.Store
	stats     *detector.Stats
	checker   *detector.Checker
	events    *logger.EventLogger
	reporter  *telemetry.Reporter
	sink      telemetry.Sink
	syncer    *policy.Syncer
	heartbeat *telemetry.Heartbeat
	commands  *command.Handler
	log       zerolog.Logger

	base       context.Context
	cancelBase context.CancelFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New builds a shield from opts. Nothing runs in the background until Start.
func New(opts Options) *Shield {
	cfg := opts.Config.Clone()
	client := remote.NewClient(cfg.APIURL, cfg.APIKey, opts.HTTPClient)

	sink := opts.Sink
	if sink == nil {
		sink = telemetry.NewHTTPSink(client)
	}

	s := &Shield{
		store:     policy.NewStore(cfg),
		stats:     detector.NewStats(),
		events:    logger.New(cfg.LogDir, diag.New("logger")),
		sink:      sink,
		heartbeat: telemetry.NewHeartbeat(client, cfg.Hostname, Version, diag.New("heartbeat")),
		log:       diag.New("shield"),
	}
	s.base, s.cancelBase = context.WithCancel(context.Background())
	s.reporter = telemetry.NewReporter(sink, opts.Reporter, diag.New("telemetry"))
	s.syncer = policy.NewSyncer(s.store, client, diag.New("policy"))
	s.checker = detector.NewChecker(detector.NewDefault(), s.store, s.stats, s.events, s.reporter)
	s.commands = command.New(command.Config{
		Store:   s.store,
		Stats:   s.stats,
		Events:  s.events,
		Syncer:  s.syncer,
		Health:  s,
		Version: Version,
		Log:     diag.New("command"),
		Context: s.base,
	})
	return s
}

// Start launches policy sync, telemetry flushing and heartbeats. Calling it
// twice is a no-op.
func (s *Shield) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.spawn(ctx, "policy-sync", s.syncer.Run)
	s.spawn(ctx, "telemetry", s.reporter.Run)
	s.spawn(ctx, "heartbeat", s.heartbeat.Run)
}

// spawn runs fn in a goroutine that survives a panic in fn.
func (s *Shield) spawn(ctx context.Context, name string, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Str("worker", name).Interface("panic", r).Msg("background worker stopped")
			}
		}()
		fn(ctx)
	}()
}

// Stop cancels background work, waits for the final telemetry flush and
// closes the event log.
func (s *Shield) Stop() {
	s.mu.Lock()
	if s.running {
		s.cancel()
		s.running = false
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.cancelBase()
	if err := s.events.Close(); err != nil {
		s.log.Warn().Err(err).Msg("closing event log")
	}
	if c, ok := s.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing telemetry sink")
		}
	}
}

// Banner is the one-line startup notice.
func (s *Shield) Banner() string {
	cfg := s.store.Snapshot()
	mode := "local-only"
	if cfg.Connected() {
		mode = "connected"
	}
	return fmt.Sprintf("[shield] Runtime Shield v%s active (level: %s, dashboard: %s)", Version, cfg.SecurityLevel, mode)
}

// OnMessage handles a user message. Shield commands return their output;
// other messages are inspected and return the block or warning text, or ""
// when the message passed.
func (s *Shield) OnMessage(text string) string {
	if strings.HasPrefix(text, CommandPrefix) {
		return s.commands.Handle(strings.TrimPrefix(text, CommandPrefix))
	}
	return detector.FormatMessage(s.Check(text, analyzer.TurnUser))
}

// OnToolResult inspects a tool result and returns the block or warning
// text, or "" when it passed.
func (s *Shield) OnToolResult(text string) string {
	return detector.FormatMessage(s.Check(text, analyzer.TurnToolResult))
}

// Check inspects one turn and returns the full verdict.
func (s *Shield) Check(text string, turn analyzer.TurnType) detector.ShieldVerdict {
	return s.checker.Check(text, turn)
}

// SyncNow pulls remote policy and waits for the result.
func (s *Shield) SyncNow(ctx context.Context) error { return s.syncer.ForceSync(ctx) }

// Command runs a shield command directly (args without the prefix).
func (s *Shield) Command(args string) string { return s.commands.Handle(args) }

// LastPolicySync returns when remote policy was last applied.
func (s *Shield) LastPolicySync() time.Time { return s.syncer.LastSync() }

// LastHeartbeat returns when the dashboard last acknowledged a heartbeat.
func (s *Shield) LastHeartbeat() time.Time { return s.heartbeat.LastSuccess() }

// QueuedEvents returns the number of telemetry events awaiting delivery.
func (s *Shield) QueuedEvents() int { return s.reporter.Pending() }

// DroppedEvents returns how many telemetry events were dropped at the cap.
func (s *Shield) DroppedEvents() int { return s.reporter.Dropped() }

// Store exposes the live policy.
func (s *Shield) Store() *policy.Store { return s.store }

// Stats exposes the session counters.
func (s *Shield) Stats() *detector.Stats { return s.stats }

// Events exposes the local event log.
func (s *Shield) Events() *logger.EventLogger { return s.events }

// Reporter exposes the telemetry queue.
func (s *Shield) Reporter() *telemetry.Reporter { return s.reporter }
