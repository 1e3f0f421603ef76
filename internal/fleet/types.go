package fleet

import (
	"fmt"
	"sort"
	"time"
)

// Device status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Content status values.
const (
	ContentActive   = "active"
	ContentInactive = "inactive"
)

// Device configuration bounds and allowed sets.
const (
	MinDisplayDuration = 1000  // milliseconds
	MaxDisplayDuration = 60000 // milliseconds
)

// validTransitionEffects are the transition effects devices can render.
var validTransitionEffects = map[string]bool{
	"fade":     true,
	"slide":    true,
	"wipe":     true,
	"dissolve": true,
}

// validOrientations are the physical display orientations.
var validOrientations = map[string]bool{
	"landscape":          true,
	"portrait":           true,
	"inverted_landscape": true,
	"inverted_portrait":  true,
}

// Device is a managed remote display endpoint.
//
// ID and Rev are carried outside the JSON body - they live on the
// store document.
type Device struct {
	ID  string `json:"-"`
	Rev string `json:"-"`

	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Address  string `json:"address,omitempty"`

	// Status is online or offline. Online is asserted by inbound
	// telemetry; offline by telemetry or the liveness sweep.
	Status string `json:"status"`

	// CurrentContent is the content id the device reports it is
	// displaying. Nil until the device first reports.
	CurrentContent *string `json:"current_content,omitempty"`

	// LastHeartbeat is when the device last sent any liveness signal.
	// Nil for a device that has never been heard from.
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	Config DeviceConfig `json:"config"`
}

// DeviceConfig holds the rendering settings pushed to a device via the
// update_config command.
type DeviceConfig struct {
	TransitionEffect string `json:"transition_effect"`
	DisplayDuration  int    `json:"display_duration"`
	Resolution       string `json:"resolution"`
	Orientation      string `json:"orientation"`
}

// DefaultDeviceConfig returns the configuration applied to devices at
// registration, before an operator tunes them.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		TransitionEffect: "fade",
		DisplayDuration:  5000,
		Resolution:       "1920x1080",
		Orientation:      "landscape",
	}
}

// Validate checks the configuration against the accepted field sets.
//
// Returns:
//   - error: ErrInvalidConfig describing the first offending field, or nil
func (c DeviceConfig) Validate() error {
	if !validTransitionEffects[c.TransitionEffect] {
		return fmt.Errorf("%w: transition_effect %q", ErrInvalidConfig, c.TransitionEffect)
	}
	if c.DisplayDuration < MinDisplayDuration || c.DisplayDuration > MaxDisplayDuration {
		return fmt.Errorf("%w: display_duration %d out of range [%d, %d]",
			ErrInvalidConfig, c.DisplayDuration, MinDisplayDuration, MaxDisplayDuration)
	}
	if c.Resolution == "" {
		return fmt.Errorf("%w: resolution is required", ErrInvalidConfig)
	}
	if !validOrientations[c.Orientation] {
		return fmt.Errorf("%w: orientation %q", ErrInvalidConfig, c.Orientation)
	}
	return nil
}

// Content is an uploaded media asset with per-device assignment.
type Content struct {
	ID  string `json:"-"`
	Rev string `json:"-"`

	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MediaType string `json:"media_type"`

	// Status is active or inactive; only active content appears in
	// device playlists.
	Status string `json:"status"`

	// AssignedDevices is the set of device ids this content plays on.
	AssignedDevices []string `json:"assigned_devices"`

	// Order maps each assigned device id to this content's position in
	// that device's playlist. Key set always equals AssignedDevices.
	Order map[string]int `json:"order"`

	Metadata ContentMetadata `json:"metadata"`

	// Schedule optionally restricts when the content is shown.
	Schedule *ScheduleWindow `json:"schedule,omitempty"`
}

// ContentMetadata carries descriptive fields for dashboard display.
type ContentMetadata struct {
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ScheduleWindow restricts content display to a time range.
type ScheduleWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsAssigned reports whether the content is assigned to the device.
func (c *Content) IsAssigned(deviceID string) bool {
	for _, id := range c.AssignedDevices {
		if id == deviceID {
			return true
		}
	}
	return false
}

// checkOrderInvariant verifies the order key set equals the assigned set.
func (c *Content) checkOrderInvariant() error {
	if len(c.Order) != len(c.AssignedDevices) {
		return fmt.Errorf("%w: %d order entries, %d assigned devices",
			ErrOrderMismatch, len(c.Order), len(c.AssignedDevices))
	}
	for _, id := range c.AssignedDevices {
		if _, ok := c.Order[id]; !ok {
			return fmt.Errorf("%w: no order entry for device %s", ErrOrderMismatch, id)
		}
	}
	return nil
}

// normalize replaces nil collections with empty ones so the stored JSON
// carries [] and {} instead of null, and keeps the assigned set sorted
// for stable output.
func (c *Content) normalize() {
	if c.AssignedDevices == nil {
		c.AssignedDevices = []string{}
	}
	if c.Order == nil {
		c.Order = map[string]int{}
	}
	sort.Strings(c.AssignedDevices)
}
