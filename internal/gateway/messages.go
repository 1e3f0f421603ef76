package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openmural/signage-core/internal/fleet"
)

// Device command names.
//
// These are the only commands a device accepts on its command topic.
const (
	CommandPlay          = "play"
	CommandPause         = "pause"
	CommandNext          = "next"
	CommandPrevious      = "previous"
	CommandReboot        = "reboot"
	CommandUpdateConfig  = "update_config"
	CommandUpdateContent = "update_content"
)

// knownCommands is the complete device command set.
var knownCommands = map[string]bool{
	CommandPlay:          true,
	CommandPause:         true,
	CommandNext:          true,
	CommandPrevious:      true,
	CommandReboot:        true,
	CommandUpdateConfig:  true,
	CommandUpdateContent: true,
}

// ValidCommand reports whether name is a recognised device command.
func ValidCommand(name string) bool {
	return knownCommands[name]
}

// CommandEnvelope is the wire format for outbound device commands.
//
// Example:
//
//	{"command":"play","payload":{},"timestamp":"2026-01-15T10:00:00Z"}
type CommandEnvelope struct {
	Command   string          `json:"command"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// NewCommandEnvelope builds a timestamped envelope for a device command.
//
// Parameters:
//   - command: One of the Command* constants
//   - payload: Command-specific body, or nil for commands without one
//
// Returns:
//   - *CommandEnvelope: The envelope, timestamped with the current UTC time
//   - error: ErrUnknownCommand, or a marshalling error for the payload
func NewCommandEnvelope(command string, payload any) (*CommandEnvelope, error) {
	if !ValidCommand(command) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	env := &CommandEnvelope{
		Command:   command,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("gateway: marshal command payload: %w", err)
		}
		env.Payload = data
	}

	return env, nil
}

// StatusMessage is the payload on a device's status topic.
type StatusMessage struct {
	Status string `json:"status"`
}

// ParseStatus parses a status topic payload.
//
// The status value must be "online" or "offline"; anything else is
// malformed.
func ParseStatus(payload []byte) (*StatusMessage, error) {
	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: status: %w", ErrMalformedMessage, err)
	}
	if msg.Status != fleet.StatusOnline && msg.Status != fleet.StatusOffline {
		return nil, fmt.Errorf("%w: status: unknown value %q", ErrMalformedMessage, msg.Status)
	}
	return &msg, nil
}

// HeartbeatMessage is the payload on a device's heartbeat topic.
//
// Timestamp is the device's own clock reading; nil when the device
// sent a bare heartbeat (receive time is used instead).
type HeartbeatMessage struct {
	Timestamp *time.Time
}

// ParseHeartbeat parses a heartbeat topic payload.
//
// The timestamp field is optional; when present it must be RFC 3339.
// An empty payload is a valid bare heartbeat.
func ParseHeartbeat(payload []byte) (*HeartbeatMessage, error) {
	if len(payload) == 0 {
		return &HeartbeatMessage{}, nil
	}

	var raw struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: heartbeat: %w", ErrMalformedMessage, err)
	}

	msg := &HeartbeatMessage{}
	if raw.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: heartbeat: bad timestamp %q", ErrMalformedMessage, raw.Timestamp)
		}
		msg.Timestamp = &ts
	}
	return msg, nil
}

// CurrentContentMessage is the payload on a device's content/current
// topic. An empty ContentID means the device is displaying nothing.
type CurrentContentMessage struct {
	ContentID string `json:"content_id"`
}

// ParseCurrentContent parses a content/current topic payload.
func ParseCurrentContent(payload []byte) (*CurrentContentMessage, error) {
	var msg CurrentContentMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: content/current: %w", ErrMalformedMessage, err)
	}
	return &msg, nil
}

// ErrorMessage is the payload on a device's error topic.
type ErrorMessage struct {
	Message string `json:"message"`
}

// ParseError parses an error topic payload.
func ParseError(payload []byte) (*ErrorMessage, error) {
	var msg ErrorMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: error: %w", ErrMalformedMessage, err)
	}
	if msg.Message == "" {
		return nil, fmt.Errorf("%w: error: missing message", ErrMalformedMessage)
	}
	return &msg, nil
}
