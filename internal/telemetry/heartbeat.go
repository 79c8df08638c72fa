package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rad-security/clawkeeper-sub000/internal/remote"
)

const (
	// HeartbeatPath is the dashboard liveness endpoint.
	HeartbeatPath = "/shield/heartbeat"
	// HeartbeatInterval is the time between heartbeats.
	HeartbeatInterval = 5 * time.Minute
)

type heartbeatBody struct {
	Hostname      string `json:"hostname"`
	ShieldVersion string `json:"shield_version"`
}

// Heartbeat tells the dashboard this shield is alive.
type Heartbeat struct {
	client   *remote.Client
	body     heartbeatBody
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	lastOK time.Time
}

// NewHeartbeat creates a heartbeat for hostname running version.
func NewHeartbeat(client *remote.Client, hostname, version string, log zerolog.Logger) *Heartbeat {
	return &Heartbeat{
		client:   client,
		body:     heartbeatBody{Hostname: hostname, ShieldVersion: version},
		interval: HeartbeatInterval,
		log:      log,
	}
}

// SetInterval overrides the heartbeat period.
func (h *Heartbeat) SetInterval(d time.Duration) { h.interval = d }

// Send posts one heartbeat. Without an API key it does nothing.
func (h *Heartbeat) Send(ctx context.Context) error {
	if !h.client.HasKey() {
		return nil
	}
	if err := h.client.PostJSON(ctx, HeartbeatPath, h.body); err != nil {
		return err
	}
	h.mu.Lock()
	h.lastOK = time.Now()
	h.mu.Unlock()
	return nil
}

// LastSuccess returns when the dashboard last acknowledged a heartbeat.
func (h *Heartbeat) LastSuccess() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastOK
}

// Run sends a heartbeat immediately and then every interval until ctx is done.
func (h *Heartbeat) Run(ctx context.Context) {
	h.beat(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	if err := h.Send(ctx); err != nil && ctx.Err() == nil {
		h.log.Debug().Err(err).Msg("heartbeat failed")
	}
}
