package mqtt

import "fmt"

// DefaultNamespace is the topic namespace used when none is configured.
const DefaultNamespace = "signage"

// Topics provides builders for Signage Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Device topics use the scheme: {namespace}/device/{device_id}/{suffix}
//
//	topics := mqtt.NewTopics("signage")
//	statusTopic := topics.DeviceStatus("lobby-display")
//	// Returns: "signage/device/lobby-display/status"
type Topics struct {
	Namespace string
}

// NewTopics returns a Topics builder for the given namespace.
// An empty namespace falls back to DefaultNamespace.
func NewTopics(namespace string) Topics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Topics{Namespace: namespace}
}

func (t Topics) ns() string {
	if t.Namespace == "" {
		return DefaultNamespace
	}
	return t.Namespace
}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceStatus returns the topic a device publishes status transitions to.
//
// Example: signage/device/lobby-display/status
func (t Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", t.ns(), deviceID)
}

// DeviceHeartbeat returns the topic a device publishes periodic heartbeats to.
//
// Example: signage/device/lobby-display/heartbeat
func (t Topics) DeviceHeartbeat(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/heartbeat", t.ns(), deviceID)
}

// DeviceError returns the topic a device publishes error reports to.
//
// Example: signage/device/lobby-display/error
func (t Topics) DeviceError(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/error", t.ns(), deviceID)
}

// DeviceCurrentContent returns the topic a device publishes its currently
// displayed content id to.
//
// Example: signage/device/lobby-display/content/current
func (t Topics) DeviceCurrentContent(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/content/current", t.ns(), deviceID)
}

// DeviceCommand returns the topic commands to a device are published on.
//
// Example: signage/device/lobby-display/command
func (t Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/command", t.ns(), deviceID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the topic the core announces its own availability on.
// The LWT is registered on this topic.
//
// Example: signage/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.ns())
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceStatus returns a pattern matching status from every device.
//
// Pattern: signage/device/+/status
func (t Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/device/+/status", t.ns())
}

// AllDeviceHeartbeats returns a pattern matching heartbeats from every device.
//
// Pattern: signage/device/+/heartbeat
func (t Topics) AllDeviceHeartbeats() string {
	return fmt.Sprintf("%s/device/+/heartbeat", t.ns())
}

// AllDeviceErrors returns a pattern matching error reports from every device.
//
// Pattern: signage/device/+/error
func (t Topics) AllDeviceErrors() string {
	return fmt.Sprintf("%s/device/+/error", t.ns())
}

// AllDeviceCurrentContent returns a pattern matching current-content reports
// from every device.
//
// Pattern: signage/device/+/content/current
func (t Topics) AllDeviceCurrentContent() string {
	return fmt.Sprintf("%s/device/+/content/current", t.ns())
}

// AllDeviceCommands returns a pattern matching commands to every device.
//
// Pattern: signage/device/+/command
func (t Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/device/+/command", t.ns())
}

// AllTopics returns a pattern matching every topic in the namespace.
// Use with caution - this receives ALL traffic.
//
// Pattern: signage/#
func (t Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", t.ns())
}
