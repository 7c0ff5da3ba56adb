package netmon

import (
	"context"
	"sync/atomic"
	"time"

	"fieldsync/internal/worker"

	"github.com/rs/zerolog"
)

// Probe answers whether the server is reachable right now.
type Probe interface {
	Ping(ctx context.Context) error
}

// Drainer is the slice of the sync engine the monitor drives.
type Drainer interface {
	Drain(ctx context.Context, reason string) (worker.DrainResult, error)
	DrainOnReconnect(ctx context.Context) (worker.DrainResult, error)
	NextRetryAt() (time.Time, bool)
}

// Monitor watches connectivity and triggers drains: once on start, on every
// offline-to-online transition (edge-triggered), when the engine's earliest
// deferred retry comes due, and on a periodic timer as a backstop. No state
// survives a restart.
type Monitor struct {
	probe         Probe
	drainer       Drainer
	probeInterval time.Duration
	drainInterval time.Duration
	probeTimeout  time.Duration
	logger        zerolog.Logger

	online atomic.Bool
}

func NewMonitor(probe Probe, drainer Drainer, probeInterval, drainInterval time.Duration, logger *zerolog.Logger) *Monitor {
	if probeInterval <= 0 {
		probeInterval = 30 * time.Second
	}
	if drainInterval <= 0 {
		drainInterval = 5 * time.Minute
	}
	return &Monitor{
		probe:         probe,
		drainer:       drainer,
		probeInterval: probeInterval,
		drainInterval: drainInterval,
		probeTimeout:  5 * time.Second,
		logger:        logger.With().Str("component", "network-monitor").Logger(),
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Start runs the monitor loop until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info().
		Dur("probe_interval", m.probeInterval).
		Dur("drain_interval", m.drainInterval).
		Msg("Network monitor started")
	defer m.logger.Info().Msg("Network monitor stopped")

	// Cold start: an initial drain attempt is always triggered, whatever the
	// connectivity looks like.
	m.online.Store(m.check(ctx))
	if _, err := m.drainer.Drain(ctx, "startup"); err != nil && ctx.Err() == nil {
		m.logger.Warn().Err(err).Msg("Initial drain failed")
	}

	probeTicker := time.NewTicker(m.probeInterval)
	defer probeTicker.Stop()
	drainTicker := time.NewTicker(m.drainInterval)
	defer drainTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-probeTicker.C:
			m.observe(ctx)
			m.drainIfRetryDue(ctx)
		case <-drainTicker.C:
			if !m.online.Load() {
				continue
			}
			if _, err := m.drainer.Drain(ctx, "interval"); err != nil && ctx.Err() == nil {
				m.logger.Warn().Err(err).Msg("Periodic drain failed")
			}
		}
	}
}

// observe runs one probe and fires the reconnect drain only on the
// offline-to-online edge, never while simply remaining online.
func (m *Monitor) observe(ctx context.Context) {
	nowOnline := m.check(ctx)
	wasOnline := m.online.Swap(nowOnline)

	switch {
	case nowOnline && !wasOnline:
		m.logger.Info().Msg("Connectivity regained")
		if _, err := m.drainer.DrainOnReconnect(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn().Err(err).Msg("Reconnect drain failed")
		}
	case !nowOnline && wasOnline:
		m.logger.Info().Msg("Connectivity lost")
	}
}

// drainIfRetryDue checks the engine's retry schedule each probe tick so a
// deferred group is retried near its backoff deadline instead of waiting out
// the long periodic drain.
func (m *Monitor) drainIfRetryDue(ctx context.Context) {
	if !m.online.Load() {
		return
	}
	at, ok := m.drainer.NextRetryAt()
	if !ok || time.Now().Before(at) {
		return
	}
	if _, err := m.drainer.Drain(ctx, "retry-due"); err != nil && ctx.Err() == nil {
		m.logger.Warn().Err(err).Msg("Retry drain failed")
	}
}

func (m *Monitor) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()
	return m.probe.Ping(probeCtx) == nil
}
