package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openmural/signage-core/internal/fanout"
	"github.com/openmural/signage-core/internal/fleet"
	"github.com/openmural/signage-core/internal/infrastructure/config"
	"github.com/openmural/signage-core/internal/infrastructure/database"
	"github.com/openmural/signage-core/internal/infrastructure/mqtt"
	"github.com/openmural/signage-core/internal/store"
	_ "github.com/openmural/signage-core/migrations"
)

// fakeTransport is an in-process Transport. Delivered messages are
// routed to every subscription whose pattern matches, mirroring broker
// wildcard semantics.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	subs       map[string]mqtt.MessageHandler
	published  []publishedMessage
	publishErr error
}

type publishedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected: true,
		subs:      make(map[string]mqtt.MessageHandler),
	}
}

func (f *fakeTransport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = handler
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return mqtt.ErrNotConnected
	}
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{topic: topic, payload: payload, qos: qos})
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// deliver routes a message to all matching subscriptions, like a broker.
func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.mu.Lock()
	handlers := make([]mqtt.MessageHandler, 0, len(f.subs))
	for pattern, h := range f.subs {
		if topicMatches(pattern, topic) {
			handlers = append(handlers, h)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		_ = h(topic, payload)
	}
}

// topicMatches implements MQTT wildcard matching (+ one level, # rest).
func topicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")

	for i, seg := range pp {
		if seg == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if seg != "+" && seg != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}

// setupGateway wires a gateway over a fake transport and an in-memory
// registry.
func setupGateway(t *testing.T) (*Gateway, *fakeTransport, *fleet.Registry, *fanout.Broker) {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        ":memory:",
		WALMode:     false,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	registry := fleet.NewRegistry(store.New(db))
	transport := newFakeTransport()
	events := fanout.New()

	g := New(transport, registry, events, config.MQTTConfig{Namespace: "signage", QoS: 1})
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	return g, transport, registry, events
}

// =============================================================================
// Subscription Tests
// =============================================================================

func TestStartSubscribesTelemetryAndCatchAll(t *testing.T) {
	_, transport, _, _ := setupGateway(t)

	want := []string{
		"signage/device/+/status",
		"signage/device/+/heartbeat",
		"signage/device/+/error",
		"signage/device/+/content/current",
		"signage/#",
	}
	for _, topic := range want {
		if _, ok := transport.subs[topic]; !ok {
			t.Errorf("missing subscription for %s", topic)
		}
	}
	if len(transport.subs) != len(want) {
		t.Errorf("subscription count = %d, want %d", len(transport.subs), len(want))
	}
}

// =============================================================================
// Status Handler Tests
// =============================================================================

func TestStatusMessageAutoRegistersDevice(t *testing.T) {
	_, transport, registry, _ := setupGateway(t)

	transport.deliver("signage/device/lobby-display/status", []byte(`{"status":"online"}`))

	d, err := registry.GetDevice(context.Background(), "lobby-display")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.Status != fleet.StatusOnline {
		t.Errorf("Status = %q, want %q", d.Status, fleet.StatusOnline)
	}
}

func TestStatusMessageOfflineTransition(t *testing.T) {
	_, transport, registry, _ := setupGateway(t)
	ctx := context.Background()

	if _, _, err := registry.SetDeviceStatus(ctx, "d1", fleet.StatusOnline); err != nil {
		t.Fatalf("SetDeviceStatus() error = %v", err)
	}

	transport.deliver("signage/device/d1/status", []byte(`{"status":"offline"}`))

	d, err := registry.GetDevice(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.Status != fleet.StatusOffline {
		t.Errorf("Status = %q, want %q", d.Status, fleet.StatusOffline)
	}
}

func TestStatusMessageMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"invalid json", `{not json`},
		{"unknown status", `{"status":"rebooting"}`},
		{"missing status", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, transport, registry, _ := setupGateway(t)

			transport.deliver("signage/device/d1/status", []byte(tt.payload))

			_, err := registry.GetDevice(context.Background(), "d1")
			if !errors.Is(err, fleet.ErrDeviceNotFound) {
				t.Errorf("malformed status registered a device (err = %v)", err)
			}
		})
	}
}

// =============================================================================
// Heartbeat Handler Tests
// =============================================================================

func TestHeartbeatRefreshesDevice(t *testing.T) {
	_, transport, registry, _ := setupGateway(t)
	ctx := context.Background()

	if err := registry.RegisterDevice(ctx, &fleet.Device{ID: "d1"}); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	transport.deliver("signage/device/d1/heartbeat", []byte(`{}`))

	d, err := registry.GetDevice(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.Status != fleet.StatusOnline {
		t.Errorf("Status = %q, want %q after heartbeat", d.Status, fleet.StatusOnline)
	}
	if d.LastHeartbeat == nil {
		t.Fatal("LastHeartbeat = nil after heartbeat")
	}
	if time.Since(*d.LastHeartbeat) > time.Minute {
		t.Errorf("LastHeartbeat = %v, want recent", d.LastHeartbeat)
	}
}

func TestHeartbeatWithExplicitTimestamp(t *testing.T) {
	_, transport, registry, _ := setupGateway(t)

	sent := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	payload := fmt.Sprintf(`{"timestamp":%q}`, sent.Format(time.RFC3339))
	transport.deliver("signage/device/d1/heartbeat", []byte(payload))

	d, err := registry.GetDevice(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.LastHeartbeat == nil || !d.LastHeartbeat.Equal(sent) {
		t.Errorf("LastHeartbeat = %v, want %v", d.LastHeartbeat, sent)
	}
}

func TestHeartbeatMalformedTimestamp(t *testing.T) {
	_, transport, registry, _ := setupGateway(t)

	transport.deliver("signage/device/d1/heartbeat", []byte(`{"timestamp":"yesterday"}`))

	_, err := registry.GetDevice(context.Background(), "d1")
	if !errors.Is(err, fleet.ErrDeviceNotFound) {
		t.Errorf("malformed heartbeat registered a device (err = %v)", err)
	}
}

// =============================================================================
// Current Content Handler Tests
// =============================================================================

func TestCurrentContentSetsField(t *testing.T) {
	_, transport, registry, _ := setupGateway(t)
	ctx := context.Background()

	if err := registry.RegisterDevice(ctx, &fleet.Device{ID: "d1"}); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	transport.deliver("signage/device/d1/content/current", []byte(`{"content_id":"promo-1"}`))

	d, err := registry.GetDevice(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.CurrentContent == nil || *d.CurrentContent != "promo-1" {
		t.Errorf("CurrentContent = %v, want promo-1", d.CurrentContent)
	}

	// Empty content_id clears the field.
	transport.deliver("signage/device/d1/content/current", []byte(`{"content_id":""}`))

	d, err = registry.GetDevice(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.CurrentContent != nil {
		t.Errorf("CurrentContent = %v, want nil after clear", d.CurrentContent)
	}
}

func TestCurrentContentUnknownDeviceNotRegistered(t *testing.T) {
	_, transport, registry, _ := setupGateway(t)

	transport.deliver("signage/device/ghost/content/current", []byte(`{"content_id":"promo-1"}`))

	_, err := registry.GetDevice(context.Background(), "ghost")
	if !errors.Is(err, fleet.ErrDeviceNotFound) {
		t.Errorf("content report auto-registered a device (err = %v)", err)
	}
}

// =============================================================================
// Fan-out Forwarding Tests
// =============================================================================

func TestAllMessagesForwardedToFanout(t *testing.T) {
	_, transport, _, events := setupGateway(t)

	var mu sync.Mutex
	var got []fanout.Event
	events.AddSubscriber("conn-1", func(e fanout.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	transport.deliver("signage/device/d1/status", []byte(`{"status":"online"}`))
	transport.deliver("signage/system/status", []byte(`online`))
	transport.deliver("signage/device/d1/custom/diag", []byte(`raw-bytes`))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("forwarded %d events, want 3", len(got))
	}

	// Topics are forwarded namespace-stripped.
	wantTopics := []string{
		"device/d1/status",
		"system/status",
		"device/d1/custom/diag",
	}
	for i, want := range wantTopics {
		if got[i].Topic != want {
			t.Errorf("event[%d].Topic = %q, want %q", i, got[i].Topic, want)
		}
	}
}

func TestMalformedMessageStillForwarded(t *testing.T) {
	_, transport, _, events := setupGateway(t)

	forwarded := 0
	events.AddSubscriber("conn-1", func(fanout.Event) { forwarded++ })

	transport.deliver("signage/device/d1/status", []byte(`{not json`))

	if forwarded != 1 {
		t.Errorf("forwarded %d events, want 1 (malformed messages still fan out)", forwarded)
	}
}

// =============================================================================
// Command Publishing Tests
// =============================================================================

func TestPublishCommand(t *testing.T) {
	g, transport, _, _ := setupGateway(t)

	if err := g.PublishCommand("d1", CommandPlay, nil); err != nil {
		t.Fatalf("PublishCommand() error = %v", err)
	}

	if len(transport.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(transport.published))
	}

	msg := transport.published[0]
	if msg.topic != "signage/device/d1/command" {
		t.Errorf("topic = %q, want signage/device/d1/command", msg.topic)
	}

	var env CommandEnvelope
	if err := json.Unmarshal(msg.payload, &env); err != nil {
		t.Fatalf("unmarshalling envelope: %v", err)
	}
	if env.Command != CommandPlay {
		t.Errorf("Command = %q, want %q", env.Command, CommandPlay)
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC 3339: %v", env.Timestamp, err)
	}
}

func TestPublishCommandWithPayload(t *testing.T) {
	g, transport, _, _ := setupGateway(t)

	cfg := fleet.DefaultDeviceConfig()
	if err := g.PublishCommand("d1", CommandUpdateConfig, cfg); err != nil {
		t.Fatalf("PublishCommand() error = %v", err)
	}

	var env CommandEnvelope
	if err := json.Unmarshal(transport.published[0].payload, &env); err != nil {
		t.Fatalf("unmarshalling envelope: %v", err)
	}

	var decoded fleet.DeviceConfig
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatalf("unmarshalling payload: %v", err)
	}
	if decoded != cfg {
		t.Errorf("payload = %+v, want %+v", decoded, cfg)
	}
}

func TestPublishCommandUnknown(t *testing.T) {
	g, _, _, _ := setupGateway(t)

	err := g.PublishCommand("d1", "self-destruct", nil)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("PublishCommand() error = %v, want ErrUnknownCommand", err)
	}
}

func TestPublishCommandDisconnected(t *testing.T) {
	g, transport, _, _ := setupGateway(t)
	transport.connected = false

	err := g.PublishCommand("d1", CommandPause, nil)
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("PublishCommand() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Message Parsing Tests
// =============================================================================

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"online", `{"status":"online"}`, "online", false},
		{"offline", `{"status":"offline"}`, "offline", false},
		{"unknown value", `{"status":"sleeping"}`, "", true},
		{"empty object", `{}`, "", true},
		{"not json", `hello`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseStatus([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedMessage) {
					t.Errorf("ParseStatus() error = %v, want ErrMalformedMessage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatus() error = %v", err)
			}
			if msg.Status != tt.want {
				t.Errorf("Status = %q, want %q", msg.Status, tt.want)
			}
		})
	}
}

func TestParseHeartbeat(t *testing.T) {
	t.Run("bare heartbeat", func(t *testing.T) {
		msg, err := ParseHeartbeat(nil)
		if err != nil {
			t.Fatalf("ParseHeartbeat() error = %v", err)
		}
		if msg.Timestamp != nil {
			t.Errorf("Timestamp = %v, want nil", msg.Timestamp)
		}
	})

	t.Run("with timestamp", func(t *testing.T) {
		msg, err := ParseHeartbeat([]byte(`{"timestamp":"2026-01-15T10:30:00Z"}`))
		if err != nil {
			t.Fatalf("ParseHeartbeat() error = %v", err)
		}
		want := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
		if msg.Timestamp == nil || !msg.Timestamp.Equal(want) {
			t.Errorf("Timestamp = %v, want %v", msg.Timestamp, want)
		}
	})

	t.Run("bad timestamp", func(t *testing.T) {
		_, err := ParseHeartbeat([]byte(`{"timestamp":"noon"}`))
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("ParseHeartbeat() error = %v, want ErrMalformedMessage", err)
		}
	})
}

func TestParseError(t *testing.T) {
	msg, err := ParseError([]byte(`{"message":"display panel fault"}`))
	if err != nil {
		t.Fatalf("ParseError() error = %v", err)
	}
	if msg.Message != "display panel fault" {
		t.Errorf("Message = %q", msg.Message)
	}

	if _, err := ParseError([]byte(`{}`)); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("ParseError() on empty message error = %v, want ErrMalformedMessage", err)
	}
}

func TestValidCommand(t *testing.T) {
	for _, cmd := range []string{
		CommandPlay, CommandPause, CommandNext, CommandPrevious,
		CommandReboot, CommandUpdateConfig, CommandUpdateContent,
	} {
		if !ValidCommand(cmd) {
			t.Errorf("ValidCommand(%q) = false, want true", cmd)
		}
	}
	if ValidCommand("format-disk") {
		t.Error("ValidCommand(format-disk) = true, want false")
	}
}
