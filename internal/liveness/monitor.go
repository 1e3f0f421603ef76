package liveness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openmural/signage-core/internal/fanout"
	"github.com/openmural/signage-core/internal/fleet"
	"github.com/openmural/signage-core/internal/store"
)

// OfflineReason tags sweep-initiated transitions in the synthetic
// status event, distinguishing them from device-asserted ones.
const OfflineReason = "heartbeat_timeout"

// statusEvent is the synthetic fan-out payload for a sweep transition.
type statusEvent struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// MetricsSink receives sweep-initiated status transitions.
// Satisfied by *influxdb.Client. Optional; nil disables metric writes.
type MetricsSink interface {
	WriteStatusTransition(deviceID, status, reason string)
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used until SetLogger is called.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Monitor is the heartbeat-absence sweeper.
//
// Thread Safety:
//   - Start and Stop are safe for concurrent use.
type Monitor struct {
	registry *fleet.Registry
	events   *fanout.Broker
	timeout  time.Duration
	interval time.Duration

	metrics MetricsSink

	logger   Logger
	loggerMu sync.RWMutex

	// now is the clock; replaced in tests.
	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor.
//
// Parameters:
//   - registry: The device registry to sweep
//   - events: Fan-out broker for synthetic offline events
//   - timeout: Silence duration after which a device is offline
//   - interval: How often the sweep runs
func New(registry *fleet.Registry, events *fanout.Broker, timeout, interval time.Duration) *Monitor {
	return &Monitor{
		registry: registry,
		events:   events,
		timeout:  timeout,
		interval: interval,
		logger:   noopLogger{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets a logger for sweep activity.
// If not set, transitions and skips are silent.
func (m *Monitor) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	defer m.loggerMu.Unlock()
	if logger != nil {
		m.logger = logger
	}
}

// SetMetrics attaches a metrics sink for offline transitions.
func (m *Monitor) SetMetrics(metrics MetricsSink) {
	m.metrics = metrics
}

func (m *Monitor) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

// Start launches the periodic sweep.
//
// Calling Start while a sweep loop is already running replaces it: the
// previous loop is stopped before the new one begins, so at most one
// loop exists per Monitor.
func (m *Monitor) Start(ctx context.Context) {
	m.Stop()

	m.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go m.run(runCtx, done)

	m.getLogger().Info("liveness monitor started",
		"timeout", m.timeout.String(),
		"sweep_interval", m.interval.String(),
	)
}

// Stop halts the sweep loop and waits for an in-flight sweep to
// finish. Stopping a monitor that is not running is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run is the sweep loop. Fixed interval via time.Ticker; a slow sweep
// delays the next tick rather than stacking sweeps.
func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				m.getLogger().Error("liveness sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass over all online devices, marking those silent
// past the timeout as offline.
//
// Per-device failures (conflicts with concurrent heartbeats, deleted
// devices) are logged and skipped; only a failure to enumerate the
// fleet is returned.
func (m *Monitor) Sweep(ctx context.Context) error {
	online, err := m.registry.DevicesByStatus(ctx, fleet.StatusOnline)
	if err != nil {
		return fmt.Errorf("liveness: listing online devices: %w", err)
	}

	now := m.now()
	for _, d := range online {
		if !m.expired(d, now) {
			continue
		}
		m.markOffline(ctx, d.ID, now)
	}
	return nil
}

// expired reports whether a device's last heartbeat is older than the
// timeout. A device that is online but has no heartbeat on record
// cannot prove liveness and counts as expired.
func (m *Monitor) expired(d *fleet.Device, now time.Time) bool {
	if d.LastHeartbeat == nil {
		return true
	}
	return now.Sub(*d.LastHeartbeat) > m.timeout
}

// markOffline re-reads a candidate and applies the revision-guarded
// offline write. Lost races are logged and skipped.
func (m *Monitor) markOffline(ctx context.Context, id string, now time.Time) {
	// Re-read: a heartbeat may have landed since the sweep listed
	// this device.
	d, err := m.registry.GetDevice(ctx, id)
	if err != nil {
		m.getLogger().Warn("skipping liveness candidate",
			"device_id", id, "error", err)
		return
	}
	if d.Status != fleet.StatusOnline || !m.expired(d, now) {
		return
	}

	d.Status = fleet.StatusOffline
	if err := m.registry.PutDevice(ctx, d); err != nil {
		if errors.Is(err, store.ErrConflict) {
			m.getLogger().Info("liveness transition lost race, skipping",
				"device_id", id)
		} else {
			m.getLogger().Warn("liveness transition failed",
				"device_id", id, "error", err)
		}
		return
	}

	m.getLogger().Info("device marked offline",
		"device_id", id,
		"last_heartbeat", formatHeartbeat(d.LastHeartbeat),
	)

	payload, _ := json.Marshal(statusEvent{
		Status: fleet.StatusOffline,
		Reason: OfflineReason,
	})
	m.events.Publish("device/"+id+"/status", payload)

	if m.metrics != nil {
		m.metrics.WriteStatusTransition(id, fleet.StatusOffline, OfflineReason)
	}
}

func formatHeartbeat(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
