// Package telemetry ships flagged shield events and liveness heartbeats to
// the dashboard. Everything here is best-effort: failures are logged and
// retried, never surfaced to the detection path.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rad-security/clawkeeper-sub000/internal/analyzer"
	"github.com/rad-security/clawkeeper-sub000/internal/detector"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
	"github.com/rad-security/clawkeeper-sub000/internal/remote"
)

// FlagSummary describes one flagged layer inside an event.
type FlagSummary struct {
	Layer    analyzer.Layer    `json:"layer"`
	Severity analyzer.Severity `json:"severity"`
	Pattern  string            `json:"pattern,omitempty"`
}

// EventContext carries the per-layer breakdown of an event.
type EventContext struct {
	Flags []FlagSummary `json:"flags"`
}

// EventPayload is the wire shape of one reported event.
type EventPayload struct {
	EventID        string            `json:"event_id"`
	Hostname       string            `json:"hostname"`
	DetectionLayer analyzer.Layer    `json:"detection_layer"`
	Verdict        policy.Verdict    `json:"verdict"`
	Severity       analyzer.Severity `json:"severity"`
	SecurityLevel  string            `json:"security_level"`
	PatternName    string            `json:"pattern_name,omitempty"`
	InputHash      string            `json:"input_hash"`
	InputLength    int               `json:"input_length"`
	Confidence     float64           `json:"confidence"`
	Context        EventContext      `json:"context"`
}

// NewEventPayload builds the report for a verdict computed under cfg.
func NewEventPayload(v detector.ShieldVerdict, cfg policy.ShieldConfig) EventPayload {
	p := EventPayload{
		EventID:        uuid.NewString(),
		Hostname:       cfg.Hostname,
		DetectionLayer: analyzer.LayerRegex,
		Verdict:        v.Verdict,
		Severity:       v.Severity,
		SecurityLevel:  string(cfg.SecurityLevel),
		InputHash:      v.InputHash,
		InputLength:    v.InputLength,
		Confidence:     v.Confidence,
		Context:        EventContext{Flags: []FlagSummary{}},
	}
	if top, ok := v.Top(); ok {
		p.DetectionLayer = top.Layer
		p.PatternName = top.PatternName
	}
	for _, d := range v.Flagged() {
		p.Context.Flags = append(p.Context.Flags, FlagSummary{
			Layer:    d.Layer,
			Severity: d.Severity,
			Pattern:  d.PatternName,
		})
	}
	return p
}

// ReporterOptions tunes the reporting queue.
type ReporterOptions struct {
	// MaxQueued bounds the in-memory queue; the oldest events are dropped.
	MaxQueued int
	// BatchSize triggers an early flush once this many events are queued.
	BatchSize int
	// FlushDrain is the most events sent in one flush.
	FlushDrain int
	// Interval between periodic flushes.
	Interval time.Duration
}

// DefaultReporterOptions returns the production tuning.
func DefaultReporterOptions() ReporterOptions {
	return ReporterOptions{
		MaxQueued:  200,
		BatchSize:  10,
		FlushDrain: 100,
		Interval:   30 * time.Second,
	}
}

func (o ReporterOptions) withDefaults() ReporterOptions {
	def := DefaultReporterOptions()
	if o.MaxQueued <= 0 {
		o.MaxQueued = def.MaxQueued
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.FlushDrain <= 0 {
		o.FlushDrain = def.FlushDrain
	}
	if o.Interval <= 0 {
		o.Interval = def.Interval
	}
	return o
}

// Reporter queues flagged verdicts and sends them to a Sink in batches.
type Reporter struct {
	sink Sink
	opts ReporterOptions
	log  zerolog.Logger

	mu       sync.Mutex
	queue    []EventPayload
	dropped  int
	reported int // dropped count already logged

	flushMu sync.Mutex
	kick    chan struct{}
}

// NewReporter creates a reporter sending to sink.
func NewReporter(sink Sink, opts ReporterOptions, log zerolog.Logger) *Reporter {
	return &Reporter{
		sink: sink,
		opts: opts.withDefaults(),
		log:  log,
		kick: make(chan struct{}, 1),
	}
}

// Record implements detector.Recorder.
func (r *Reporter) Record(v detector.ShieldVerdict, cfg policy.ShieldConfig) {
	r.Enqueue(v, cfg)
}

// Enqueue queues a verdict for reporting. It never blocks on I/O. Without an
// API key, or for a passed verdict with nothing flagged, it does nothing.
func (r *Reporter) Enqueue(v detector.ShieldVerdict, cfg policy.ShieldConfig) {
	if cfg.APIKey == "" {
		return
	}
	if _, flagged := v.Top(); !flagged && v.Verdict == policy.VerdictPassed {
		return
	}
	p := NewEventPayload(v, cfg)

	r.mu.Lock()
	r.queue = append(r.queue, p)
	r.trimLocked()
	full := len(r.queue) >= r.opts.BatchSize
	r.mu.Unlock()

	if full {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}
}

// trimLocked drops the oldest events beyond MaxQueued.
func (r *Reporter) trimLocked() {
	if over := len(r.queue) - r.opts.MaxQueued; over > 0 {
		r.queue = append([]EventPayload(nil), r.queue[over:]...)
		r.dropped += over
	}
}

// logDropsLocked reports drops since the previous flush in a single line.
func (r *Reporter) logDropsLocked() {
	if n := r.dropped - r.reported; n > 0 {
		r.reported = r.dropped
		r.log.Warn().Int("dropped", n).Int("total_dropped", r.dropped).Msg("telemetry queue full, dropped oldest events")
	}
}

// Flush sends up to FlushDrain queued events. On failure the batch is put
// back at the front of the queue.
func (r *Reporter) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	r.logDropsLocked()
	n := len(r.queue)
	if n > r.opts.FlushDrain {
		n = r.opts.FlushDrain
	}
	if n == 0 {
		r.mu.Unlock()
		return nil
	}
	batch := append([]EventPayload(nil), r.queue[:n]...)
	r.queue = r.queue[n:]
	r.mu.Unlock()

	if err := r.sink.Send(ctx, batch); err != nil {
		r.mu.Lock()
		r.queue = append(batch, r.queue...)
		r.trimLocked()
		r.mu.Unlock()
		return err
	}
	r.log.Debug().Int("events", n).Msg("telemetry batch sent")
	return nil
}

// Pending returns the number of queued events.
func (r *Reporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Reporter) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Run flushes every Interval, and early when a batch fills, until ctx is
// done. While the sink is failing only the ticker retries. A final flush
// runs on shutdown.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), remote.DefaultTimeout)
			if err := r.Flush(final); err != nil {
				r.log.Warn().Err(err).Int("pending", r.Pending()).Msg("final telemetry flush failed")
			}
			cancel()
			return
		case <-ticker.C:
		case <-r.kick:
			if failing {
				continue
			}
		}
		err := r.Flush(ctx)
		failing = err != nil
		if err != nil && ctx.Err() == nil {
			r.log.Warn().Err(err).Int("pending", r.Pending()).Msg("telemetry flush failed")
		}
	}
}
