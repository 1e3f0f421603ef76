package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openmural/signage-core/internal/fanout"
	"github.com/openmural/signage-core/internal/fleet"
	"github.com/openmural/signage-core/internal/infrastructure/config"
	"github.com/openmural/signage-core/internal/infrastructure/mqtt"
)

// Transport is the broker session the gateway runs over.
// Satisfied by *mqtt.Client.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MetricsSink receives fleet telemetry for time-series storage.
// Satisfied by *influxdb.Client. Optional; nil disables metric writes.
type MetricsSink interface {
	WriteHeartbeat(deviceID string, at time.Time)
	WriteStatusTransition(deviceID, status, reason string)
	WriteCommandDispatch(deviceID, command string)
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

// Gateway routes broker messages to the registry and fan-out, and
// publishes commands back out. Create one per process with New.
type Gateway struct {
	transport Transport
	registry  *fleet.Registry
	events    *fanout.Broker
	topics    mqtt.Topics
	qos       byte

	metrics MetricsSink

	logger   Logger
	loggerMu sync.RWMutex

	// baseCtx bounds registry operations triggered by inbound messages.
	baseCtx context.Context
}

// New creates a Gateway over an established transport.
//
// Parameters:
//   - transport: The broker session (typically *mqtt.Client)
//   - registry: The device and content registry to apply telemetry to
//   - events: The fan-out broker all inbound traffic is forwarded to
//   - cfg: MQTT settings (namespace and default QoS)
func New(transport Transport, registry *fleet.Registry, events *fanout.Broker, cfg config.MQTTConfig) *Gateway {
	return &Gateway{
		transport: transport,
		registry:  registry,
		events:    events,
		topics:    mqtt.NewTopics(cfg.Namespace),
		qos:       byte(cfg.QoS),
		logger:    noopLogger{},
		baseCtx:   context.Background(),
	}
}

// SetLogger sets a logger for inbound message handling.
// If not set, handler failures are dropped silently.
func (g *Gateway) SetLogger(logger Logger) {
	g.loggerMu.Lock()
	defer g.loggerMu.Unlock()
	if logger != nil {
		g.logger = logger
	}
}

// SetMetrics attaches a metrics sink for heartbeats, status
// transitions and command dispatches.
func (g *Gateway) SetMetrics(metrics MetricsSink) {
	g.metrics = metrics
}

func (g *Gateway) getLogger() Logger {
	g.loggerMu.RLock()
	defer g.loggerMu.RUnlock()
	return g.logger
}

// Start subscribes to the telemetry topics and the namespace catch-all.
//
// The catch-all subscription feeds the fan-out broker only; registry
// updates come exclusively from the specific telemetry handlers.
//
// Parameters:
//   - ctx: Bounds registry operations triggered by inbound messages
//
// Returns:
//   - error: nil on success, or the first failed subscription
func (g *Gateway) Start(ctx context.Context) error {
	if ctx != nil {
		g.baseCtx = ctx
	}

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{g.topics.AllDeviceStatus(), g.handleStatus},
		{g.topics.AllDeviceHeartbeats(), g.handleHeartbeat},
		{g.topics.AllDeviceErrors(), g.handleError},
		{g.topics.AllDeviceCurrentContent(), g.handleCurrentContent},
		{g.topics.AllTopics(), g.handleForward},
	}

	for _, s := range subs {
		if err := g.transport.Subscribe(s.topic, g.qos, s.handler); err != nil {
			return fmt.Errorf("gateway: subscribe %s: %w", s.topic, err)
		}
	}

	g.getLogger().Info("gateway started",
		"namespace", g.topics.Namespace,
		"subscriptions", len(subs),
	)
	return nil
}

// PublishCommand sends a command envelope to a device's command topic.
//
// The publish is fire-and-forget from the fleet's perspective: no
// acknowledgement is awaited beyond the broker handshake.
//
// Parameters:
//   - deviceID: Target device identifier
//   - command: One of the Command* constants
//   - payload: Command-specific body, or nil
//
// Returns:
//   - error: ErrUnknownCommand, mqtt.ErrNotConnected when the broker
//     session is down, or a publish failure
func (g *Gateway) PublishCommand(deviceID, command string, payload any) error {
	env, err := NewCommandEnvelope(command, payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("gateway: marshal command envelope: %w", err)
	}

	if err := g.transport.Publish(g.topics.DeviceCommand(deviceID), data, g.qos, false); err != nil {
		return err
	}

	if g.metrics != nil {
		g.metrics.WriteCommandDispatch(deviceID, command)
	}
	return nil
}

// === Inbound handlers ===

// handleStatus applies a device-asserted status transition.
// Unknown devices are auto-registered.
func (g *Gateway) handleStatus(topic string, payload []byte) error {
	deviceID, ok := g.deviceID(topic)
	if !ok {
		return nil
	}

	msg, err := ParseStatus(payload)
	if err != nil {
		g.getLogger().Warn("dropping malformed status message",
			"device_id", deviceID, "error", err)
		return err
	}

	_, created, err := g.registry.SetDeviceStatus(g.baseCtx, deviceID, msg.Status)
	if err != nil {
		g.getLogger().Error("status update failed",
			"device_id", deviceID, "status", msg.Status, "error", err)
		return err
	}
	if created {
		g.getLogger().Info("device registered from status message", "device_id", deviceID)
	}

	if g.metrics != nil {
		g.metrics.WriteStatusTransition(deviceID, msg.Status, "telemetry")
	}
	return nil
}

// handleHeartbeat refreshes a device's liveness timestamp and marks it
// online. Unknown devices are auto-registered.
func (g *Gateway) handleHeartbeat(topic string, payload []byte) error {
	deviceID, ok := g.deviceID(topic)
	if !ok {
		return nil
	}

	msg, err := ParseHeartbeat(payload)
	if err != nil {
		g.getLogger().Warn("dropping malformed heartbeat",
			"device_id", deviceID, "error", err)
		return err
	}

	at := time.Now().UTC()
	if msg.Timestamp != nil {
		at = *msg.Timestamp
	}

	if _, _, err := g.registry.RefreshHeartbeat(g.baseCtx, deviceID, at); err != nil {
		g.getLogger().Error("heartbeat update failed",
			"device_id", deviceID, "error", err)
		return err
	}

	if g.metrics != nil {
		g.metrics.WriteHeartbeat(deviceID, at)
	}
	return nil
}

// handleCurrentContent records what a device reports it is displaying.
// Unknown devices are NOT auto-registered here: a playback report from
// a device we have never seen is suspicious, unlike a first heartbeat.
func (g *Gateway) handleCurrentContent(topic string, payload []byte) error {
	deviceID, ok := g.deviceID(topic)
	if !ok {
		return nil
	}

	msg, err := ParseCurrentContent(payload)
	if err != nil {
		g.getLogger().Warn("dropping malformed content report",
			"device_id", deviceID, "error", err)
		return err
	}

	if _, err := g.registry.SetCurrentContent(g.baseCtx, deviceID, msg.ContentID); err != nil {
		g.getLogger().Warn("content report for unusable device",
			"device_id", deviceID, "content_id", msg.ContentID, "error", err)
		return err
	}
	return nil
}

// handleError surfaces a device-reported fault in the logs.
func (g *Gateway) handleError(topic string, payload []byte) error {
	deviceID, ok := g.deviceID(topic)
	if !ok {
		return nil
	}

	msg, err := ParseError(payload)
	if err != nil {
		g.getLogger().Warn("dropping malformed error report",
			"device_id", deviceID, "error", err)
		return err
	}

	g.getLogger().Warn("device reported error",
		"device_id", deviceID, "message", msg.Message)
	return nil
}

// handleForward mirrors every broker message to the fan-out broker.
// Topics are forwarded namespace-stripped so observers see stable
// paths regardless of deployment namespace.
func (g *Gateway) handleForward(topic string, payload []byte) error {
	g.events.Publish(g.stripNamespace(topic), payload)
	return nil
}

// === Topic helpers ===

// stripNamespace removes the configured namespace prefix from a topic.
func (g *Gateway) stripNamespace(topic string) string {
	return strings.TrimPrefix(topic, g.topics.Namespace+"/")
}

// deviceID extracts the device identifier from a per-device topic,
// e.g. "signage/device/lobby-display/status" -> "lobby-display".
func (g *Gateway) deviceID(topic string) (string, bool) {
	rel := g.stripNamespace(topic)
	rest, found := strings.CutPrefix(rel, "device/")
	if !found {
		return "", false
	}
	id, _, found := strings.Cut(rest, "/")
	if !found || id == "" {
		return "", false
	}
	return id, true
}
