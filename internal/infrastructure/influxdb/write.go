package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteHeartbeat records a device heartbeat observation.
//
// The write is non-blocking; data is batched and sent asynchronously.
// One point per heartbeat gives uptime and gap analysis for free in
// the dashboard.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "lobby-display")
//   - at: When the heartbeat was received
func (c *Client) WriteHeartbeat(deviceID string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"heartbeat",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"value": 1,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WriteStatusTransition records a device status change.
//
// Status is stored as a numeric field (online=1, offline=0) so the
// dashboard can graph availability directly.
//
// Parameters:
//   - deviceID: Device identifier
//   - status: The new status ("online" or "offline")
//   - reason: What caused the transition (e.g., "telemetry",
//     "heartbeat_timeout")
func (c *Client) WriteStatusTransition(deviceID, status, reason string) {
	if !c.IsConnected() {
		return
	}

	online := 0
	if status == "online" {
		online = 1
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
			"status":    status,
			"reason":    reason,
		},
		map[string]interface{}{
			"online": online,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandDispatch records an outbound command publish.
//
// Parameters:
//   - deviceID: Target device identifier
//   - command: The command name (e.g., "play", "update_content")
func (c *Client) WriteCommandDispatch(deviceID, command string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command_dispatch",
		map[string]string{
			"device_id": deviceID,
			"command":   command,
		},
		map[string]interface{}{
			"value": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
