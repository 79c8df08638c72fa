package detector

import (
	"github.com/rad-security/clawkeeper-sub000/internal/analyzer"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
)

// Recorder receives every verdict after detection, together with the config
// snapshot it was computed under. Implementations must not block on network
// I/O.
type Recorder interface {
	Record(v ShieldVerdict, cfg policy.ShieldConfig)
}

// Checker is the stateful entry point used by a host: it reads live policy
// from the store, runs detection, counts the verdict and hands it to the
// recorders (event log, telemetry).
type Checker struct {
	detector  *Detector
	store     *policy.Store
	stats     *Stats
	recorders []Recorder
}

// NewChecker wires a detector to its policy store, counters and recorders.
func NewChecker(d *Detector, store *policy.Store, stats *Stats, recorders ...Recorder) *Checker {
	return &Checker{detector: d, store: store, stats: stats, recorders: recorders}
}

// Check inspects one turn under the current policy.
func (c *Checker) Check(text string, turn analyzer.TurnType) ShieldVerdict {
	cfg := c.store.Snapshot()
	v := c.detector.Detect(text, cfg, turn)

	if c.stats != nil {
		c.stats.Record(v)
	}
	for _, r := range c.recorders {
		r.Record(v, cfg)
	}
	return v
}

// Stats returns the counters the checker updates.
func (c *Checker) Stats() *Stats { return c.stats }
