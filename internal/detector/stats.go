package detector

import (
	"sync"

	"github.com/rad-security/clawkeeper-sub000/internal/analyzer"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
)

// StatsSnapshot is a point-in-time copy of the session counters.
type StatsSnapshot struct {
	TotalChecked int                    `json:"total_checked"`
	Blocked      int                    `json:"blocked"`
	Warned       int                    `json:"warned"`
	Passed       int                    `json:"passed"`
	ByLayer      map[analyzer.Layer]int `json:"by_layer"`
}

// Stats counts verdicts for the lifetime of the process.
type Stats struct {
	mu sync.Mutex
	s  StatsSnapshot
}

// NewStats creates zeroed counters with every layer present.
func NewStats() *Stats {
	st := &Stats{}
	st.s.ByLayer = make(map[analyzer.Layer]int, len(analyzer.AllLayers))
	for _, l := range analyzer.AllLayers {
		st.s.ByLayer[l] = 0
	}
	return st
}

// Record counts one verdict and every layer that flagged in it.
func (st *Stats) Record(v ShieldVerdict) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.TotalChecked++
	switch v.Verdict {
	case policy.VerdictBlocked:
		st.s.Blocked++
	case policy.VerdictWarned:
		st.s.Warned++
	default:
		st.s.Passed++
	}
	for _, d := range v.Detections {
		if d.Flagged {
			st.s.ByLayer[d.Layer]++
		}
	}
}

// Snapshot returns a copy of the counters.
func (st *Stats) Snapshot() StatsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := st.s
	out.ByLayer = make(map[analyzer.Layer]int, len(st.s.ByLayer))
	for k, v := range st.s.ByLayer {
		out.ByLayer[k] = v
	}
	return out
}
