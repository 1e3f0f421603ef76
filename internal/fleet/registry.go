package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openmural/signage-core/internal/store"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger discards all log output. Used until SetLogger is called.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Registry provides typed access to Device and Content documents.
//
// Every write carries the revision the caller read; a lost race
// surfaces as store.ErrConflict with no automatic retry.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	store  *store.Store
	logger Logger
}

// NewRegistry creates a Registry over the given document store.
func NewRegistry(s *store.Store) *Registry {
	return &Registry{
		store:  s,
		logger: noopLogger{},
	}
}

// SetLogger sets a logger for registry events (auto-registration,
// invariant warnings). If not set, output is discarded.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// =============================================================================
// Devices
// =============================================================================

// GetDevice retrieves a device by id.
//
// Returns:
//   - *Device: The device with its current revision
//   - error: ErrDeviceNotFound if no device has this id
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	doc, err := r.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if doc.Type != store.TypeDevice {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return decodeDevice(doc)
}

// ListDevices returns every registered device, ordered by id.
func (r *Registry) ListDevices(ctx context.Context) ([]*Device, error) {
	docs, err := r.store.ListByType(ctx, store.TypeDevice)
	if err != nil {
		return nil, err
	}
	return decodeDevices(docs)
}

// DevicesByStatus returns devices with the given status, ordered by id.
func (r *Registry) DevicesByStatus(ctx context.Context, status string) ([]*Device, error) {
	if err := validateDeviceStatus(status); err != nil {
		return nil, err
	}
	docs, err := r.store.Query(ctx, store.IndexDeviceByStatus, status)
	if err != nil {
		return nil, err
	}
	return decodeDevices(docs)
}

// RegisterDevice creates a new device. Missing fields get defaults:
// the id as display name, offline status, and DefaultDeviceConfig.
//
// Returns:
//   - error: store.ErrConflict if the id is already registered,
//     ErrInvalidConfig for a bad configuration
func (r *Registry) RegisterDevice(ctx context.Context, d *Device) error {
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Status == "" {
		d.Status = StatusOffline
	}
	if err := validateDeviceStatus(d.Status); err != nil {
		return err
	}
	if (d.Config == DeviceConfig{}) {
		d.Config = DefaultDeviceConfig()
	}
	if err := d.Config.Validate(); err != nil {
		return err
	}

	d.Rev = ""
	return r.putDevice(ctx, d)
}

// PutDevice writes a device update under its current revision.
//
// Returns:
//   - error: store.ErrConflict on revision mismatch, ErrDeviceNotFound
//     if the device was deleted underneath the caller
func (r *Registry) PutDevice(ctx context.Context, d *Device) error {
	if err := validateDeviceStatus(d.Status); err != nil {
		return err
	}
	if err := d.Config.Validate(); err != nil {
		return err
	}
	err := r.putDevice(ctx, d)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, d.ID)
	}
	return err
}

// UpdateDeviceConfig validates and persists a new configuration.
//
// Read-modify-write under the current revision; a concurrent writer
// surfaces as store.ErrConflict.
func (r *Registry) UpdateDeviceConfig(ctx context.Context, id string, cfg DeviceConfig) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d, err := r.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	d.Config = cfg
	if err := r.putDevice(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// SetDeviceStatus records a status transition reported by the device.
//
// An unknown device id is auto-registered: devices announce themselves
// by publishing status before any operator has created them.
//
// Returns:
//   - *Device: The device after the write
//   - bool: true when the device was auto-registered by this call
//   - error: store.ErrConflict when a concurrent write won
func (r *Registry) SetDeviceStatus(ctx context.Context, id, status string) (*Device, bool, error) {
	if err := validateDeviceStatus(status); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()

	d, err := r.GetDevice(ctx, id)
	if errors.Is(err, ErrDeviceNotFound) {
		d = &Device{ID: id, Status: status}
		if status == StatusOnline {
			d.LastHeartbeat = &now
		}
		if err := r.RegisterDevice(ctx, d); err != nil {
			return nil, false, err
		}
		r.logger.Info("auto-registered device", "device_id", id, "status", status)
		return d, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	d.Status = status
	if status == StatusOnline {
		d.LastHeartbeat = &now
	}
	if err := r.putDevice(ctx, d); err != nil {
		return nil, false, err
	}
	return d, false, nil
}

// RefreshHeartbeat records a heartbeat, bringing the device online.
//
// A heartbeat is the reverse transition out of offline: only inbound
// telemetry moves a device back online, never the liveness sweep.
// Unknown device ids are auto-registered.
func (r *Registry) RefreshHeartbeat(ctx context.Context, id string, at time.Time) (*Device, bool, error) {
	at = at.UTC()

	d, err := r.GetDevice(ctx, id)
	if errors.Is(err, ErrDeviceNotFound) {
		d = &Device{ID: id, Status: StatusOnline, LastHeartbeat: &at}
		if err := r.RegisterDevice(ctx, d); err != nil {
			return nil, false, err
		}
		r.logger.Info("auto-registered device", "device_id", id, "status", StatusOnline)
		return d, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	d.Status = StatusOnline
	d.LastHeartbeat = &at
	if err := r.putDevice(ctx, d); err != nil {
		return nil, false, err
	}
	return d, false, nil
}

// SetCurrentContent records which content the device reports displaying.
func (r *Registry) SetCurrentContent(ctx context.Context, id, contentID string) (*Device, error) {
	d, err := r.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	if contentID == "" {
		d.CurrentContent = nil
	} else {
		d.CurrentContent = &contentID
	}
	if err := r.putDevice(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// putDevice marshals and writes a device document.
func (r *Registry) putDevice(ctx context.Context, d *Device) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling device: %w", err)
	}

	doc := &store.Document{
		ID:   d.ID,
		Type: store.TypeDevice,
		Rev:  d.Rev,
		Body: body,
	}
	rev, err := r.store.Put(ctx, doc)
	if err != nil {
		return err
	}
	d.Rev = rev
	return nil
}

// =============================================================================
// Content
// =============================================================================

// GetContent retrieves a content item by id.
//
// Returns:
//   - *Content: The content with its current revision
//   - error: ErrContentNotFound if no content has this id
func (r *Registry) GetContent(ctx context.Context, id string) (*Content, error) {
	doc, err := r.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if doc.Type != store.TypeContent {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, id)
	}
	return decodeContent(doc)
}

// ListContent returns every content item, ordered by id.
func (r *Registry) ListContent(ctx context.Context) ([]*Content, error) {
	docs, err := r.store.ListByType(ctx, store.TypeContent)
	if err != nil {
		return nil, err
	}
	return decodeContents(docs)
}

// ActiveContent returns all content with active status, ordered by id.
func (r *Registry) ActiveContent(ctx context.Context) ([]*Content, error) {
	docs, err := r.store.Query(ctx, store.IndexContentByStatus, ContentActive)
	if err != nil {
		return nil, err
	}
	return decodeContents(docs)
}

// ContentForDevice returns the content assigned to a device, ascending
// by that device's order value. This is the device's playlist source.
func (r *Registry) ContentForDevice(ctx context.Context, deviceID string) ([]*Content, error) {
	docs, err := r.store.Query(ctx, store.IndexContentByDevice, deviceID)
	if err != nil {
		return nil, err
	}
	return decodeContents(docs)
}

// CreateContent creates a new content item with no assignments.
func (r *Registry) CreateContent(ctx context.Context, c *Content) error {
	if c.Status == "" {
		c.Status = ContentActive
	}
	c.Rev = ""
	return r.putContent(ctx, c)
}

// PutContent writes a content update under its current revision.
//
// The order-map invariant is enforced here: a body whose order keys do
// not match the assigned set is rejected with ErrOrderMismatch before
// touching the store.
func (r *Registry) PutContent(ctx context.Context, c *Content) error {
	err := r.putContent(ctx, c)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrContentNotFound, c.ID)
	}
	return err
}

// DeleteContentDoc removes a content document (and its attachment by
// cascade) under the given revision. Unassignment side effects are the
// assignment engine's responsibility.
func (r *Registry) DeleteContentDoc(ctx context.Context, id, rev string) error {
	err := r.store.Delete(ctx, id, rev)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrContentNotFound, id)
	}
	return err
}

// putContent normalizes, checks the invariant, and writes.
func (r *Registry) putContent(ctx context.Context, c *Content) error {
	c.normalize()
	if err := c.checkOrderInvariant(); err != nil {
		return err
	}

	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling content: %w", err)
	}

	doc := &store.Document{
		ID:   c.ID,
		Type: store.TypeContent,
		Rev:  c.Rev,
		Body: body,
	}
	rev, err := r.store.Put(ctx, doc)
	if err != nil {
		return err
	}
	c.Rev = rev
	return nil
}

// =============================================================================
// Attachments
// =============================================================================

// GetAttachment retrieves the binary payload of a content item.
func (r *Registry) GetAttachment(ctx context.Context, contentID string) (*store.Attachment, error) {
	att, err := r.store.GetAttachment(ctx, contentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, contentID)
	}
	return att, err
}

// PutAttachment stores the binary payload of a content item, bumping
// the content revision.
//
// Returns:
//   - string: The new content revision
//   - error: store.ErrConflict on revision mismatch
func (r *Registry) PutAttachment(ctx context.Context, contentID, rev, name, contentType string, data []byte) (string, error) {
	newRev, err := r.store.PutAttachment(ctx, contentID, rev, name, contentType, data)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrContentNotFound, contentID)
	}
	return newRev, err
}

// =============================================================================
// Decoding
// =============================================================================

func validateDeviceStatus(status string) error {
	if status != StatusOnline && status != StatusOffline {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return nil
}

func decodeDevice(doc *store.Document) (*Device, error) {
	var d Device
	if err := json.Unmarshal(doc.Body, &d); err != nil {
		return nil, fmt.Errorf("unmarshaling device %s: %w", doc.ID, err)
	}
	d.ID = doc.ID
	d.Rev = doc.Rev
	return &d, nil
}

func decodeDevices(docs []store.Document) ([]*Device, error) {
	devices := make([]*Device, 0, len(docs))
	for i := range docs {
		d, err := decodeDevice(&docs[i])
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func decodeContent(doc *store.Document) (*Content, error) {
	var c Content
	if err := json.Unmarshal(doc.Body, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling content %s: %w", doc.ID, err)
	}
	c.ID = doc.ID
	c.Rev = doc.Rev
	c.normalize()
	return &c, nil
}

func decodeContents(docs []store.Document) ([]*Content, error) {
	contents := make([]*Content, 0, len(docs))
	for i := range docs {
		c, err := decodeContent(&docs[i])
		if err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	return contents, nil
}
