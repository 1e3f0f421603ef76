package assignment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/openmural/signage-core/internal/fleet"
	"github.com/openmural/signage-core/internal/gateway"
)

// Commander publishes device commands. Satisfied by *gateway.Gateway.
type Commander interface {
	PublishCommand(deviceID, command string, payload any) error
}

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

// PlaylistEntry is one item in the update_content command payload.
// Attachment is the path the device fetches the binary from.
type PlaylistEntry struct {
	ContentID  string `json:"content_id"`
	Filename   string `json:"filename"`
	MediaType  string `json:"media_type"`
	Order      int    `json:"order"`
	Attachment string `json:"attachment"`
}

// PlaylistPayload is the update_content command payload: the device's
// complete playlist, ascending by order.
type PlaylistPayload struct {
	Playlist []PlaylistEntry `json:"playlist"`
}

// Engine applies assignment mutations and pushes playlist updates.
//
// Thread Safety:
//   - All methods are safe for concurrent use; conflicting writes to
//     the same content item surface as store.ErrConflict.
type Engine struct {
	registry  *fleet.Registry
	commander Commander

	logger   Logger
	loggerMu sync.RWMutex

	// now is the clock used for schedule-window filtering; replaced in
	// tests.
	now func() time.Time
}

// New creates an Engine.
//
// Parameters:
//   - registry: The device and content registry
//   - commander: Outbound command publisher (typically *gateway.Gateway)
func New(registry *fleet.Registry, commander Commander) *Engine {
	return &Engine{
		registry:  registry,
		commander: commander,
		logger:    noopLogger{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets a logger for mutation and push activity.
// If not set, failed playlist pushes are dropped silently.
func (e *Engine) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	defer e.loggerMu.Unlock()
	if logger != nil {
		e.logger = logger
	}
}

func (e *Engine) getLogger() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

// Assign adds content to the playlists of the given devices.
//
// Validation is all-or-nothing: every device id must exist before any
// write happens, so a typo in one id cannot leave a half-applied
// assignment. The assigned set grows by idempotent union; each device
// in deviceIDs receives order = startOrder + its index in the list,
// overwriting any position the content already held on that device.
// Repeating a call therefore converges to the same state.
//
// Returns:
//   - *fleet.Content: The content after the write
//   - error: fleet.ErrContentNotFound, fleet.ErrDeviceNotFound,
//     store.ErrConflict when a concurrent mutation won
func (e *Engine) Assign(ctx context.Context, contentID string, deviceIDs []string, startOrder int) (*fleet.Content, error) {
	c, err := e.registry.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	for _, id := range deviceIDs {
		if _, err := e.registry.GetDevice(ctx, id); err != nil {
			return nil, fmt.Errorf("assigning %s: %w", contentID, err)
		}
	}

	if c.Order == nil {
		c.Order = map[string]int{}
	}

	changed := false
	var affected []string
	for i, id := range deviceIDs {
		if contains(affected, id) {
			continue
		}
		affected = append(affected, id)

		if !c.IsAssigned(id) {
			c.AssignedDevices = append(c.AssignedDevices, id)
			changed = true
		}
		if pos, ok := c.Order[id]; !ok || pos != startOrder+i {
			c.Order[id] = startOrder + i
			changed = true
		}
	}

	if !changed {
		return c, nil
	}

	if err := e.registry.PutContent(ctx, c); err != nil {
		return nil, err
	}

	e.pushPlaylists(ctx, affected)
	return c, nil
}

// Unassign removes content from one device's playlist.
//
// Returns:
//   - *fleet.Content: The content after the write
//   - error: fleet.ErrContentNotFound, ErrNotAssigned, or
//     store.ErrConflict
func (e *Engine) Unassign(ctx context.Context, contentID, deviceID string) (*fleet.Content, error) {
	c, err := e.registry.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if !c.IsAssigned(deviceID) {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotAssigned, contentID, deviceID)
	}

	assigned := c.AssignedDevices[:0]
	for _, id := range c.AssignedDevices {
		if id != deviceID {
			assigned = append(assigned, id)
		}
	}
	c.AssignedDevices = assigned
	delete(c.Order, deviceID)

	if err := e.registry.PutContent(ctx, c); err != nil {
		return nil, err
	}

	e.pushPlaylists(ctx, []string{deviceID})
	return c, nil
}

// OrderPair names a playlist position for one content item.
type OrderPair struct {
	ContentID string `json:"content_id"`
	Order     int    `json:"order"`
}

// Reorder updates playlist positions on one device from explicit
// (content, order) pairs.
//
// Pairs that do not qualify - unknown content, or content not assigned
// to the device - are skipped without error. Content assigned to the
// device but absent from the list keeps its current position.
func (e *Engine) Reorder(ctx context.Context, deviceID string, pairs []OrderPair) error {
	applied := 0
	for _, p := range pairs {
		c, err := e.registry.GetContent(ctx, p.ContentID)
		if err != nil {
			e.getLogger().Warn("reorder pair skipped",
				"device_id", deviceID, "content_id", p.ContentID, "error", err)
			continue
		}
		if !c.IsAssigned(deviceID) {
			e.getLogger().Warn("reorder pair skipped",
				"device_id", deviceID, "content_id", p.ContentID, "error", ErrNotAssigned)
			continue
		}
		if c.Order[deviceID] == p.Order {
			continue
		}

		c.Order[deviceID] = p.Order
		if err := e.registry.PutContent(ctx, c); err != nil {
			return err
		}
		applied++
	}

	if applied > 0 {
		e.pushPlaylists(ctx, []string{deviceID})
	}
	return nil
}

// Shuffle applies a uniform random permutation to a device's playlist,
// assigning positions 0..n-1.
func (e *Engine) Shuffle(ctx context.Context, deviceID string) error {
	items, err := e.registry.ContentForDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	perm := rand.Perm(len(items))
	for i, c := range items {
		c.Order[deviceID] = perm[i]
		if err := e.registry.PutContent(ctx, c); err != nil {
			return err
		}
	}

	e.pushPlaylists(ctx, []string{deviceID})
	return nil
}

// DeleteContent removes a content item entirely: the document, its
// attachment (by cascade), and its presence in every device playlist.
//
// Returns:
//   - error: fleet.ErrContentNotFound, or store.ErrConflict when a
//     concurrent mutation won
func (e *Engine) DeleteContent(ctx context.Context, contentID string) error {
	c, err := e.registry.GetContent(ctx, contentID)
	if err != nil {
		return err
	}

	if err := e.registry.DeleteContentDoc(ctx, contentID, c.Rev); err != nil {
		return err
	}

	e.getLogger().Info("content deleted",
		"content_id", contentID, "devices", len(c.AssignedDevices))
	e.pushPlaylists(ctx, c.AssignedDevices)
	return nil
}

// Playlist computes a device's current playlist: active content
// assigned to the device, within its schedule window, ascending by
// the device's order values.
func (e *Engine) Playlist(ctx context.Context, deviceID string) ([]PlaylistEntry, error) {
	items, err := e.registry.ContentForDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	entries := make([]PlaylistEntry, 0, len(items))
	for _, c := range items {
		if c.Status != fleet.ContentActive {
			continue
		}
		if c.Schedule != nil && (now.Before(c.Schedule.Start) || !now.Before(c.Schedule.End)) {
			continue
		}
		entries = append(entries, PlaylistEntry{
			ContentID:  c.ID,
			Filename:   c.Filename,
			MediaType:  c.MediaType,
			Order:      c.Order[deviceID],
			Attachment: "content/" + c.ID + "/attachment",
		})
	}
	return entries, nil
}

// pushPlaylists recomputes and pushes the playlist of each device.
// Fire-and-forget: failures are logged, never returned - the registry
// write already succeeded and must not be rolled back.
func (e *Engine) pushPlaylists(ctx context.Context, deviceIDs []string) {
	for _, id := range deviceIDs {
		entries, err := e.Playlist(ctx, id)
		if err != nil {
			e.getLogger().Warn("playlist recompute failed",
				"device_id", id, "error", err)
			continue
		}
		payload := PlaylistPayload{Playlist: entries}
		if err := e.commander.PublishCommand(id, gateway.CommandUpdateContent, payload); err != nil {
			e.getLogger().Warn("playlist push failed",
				"device_id", id, "error", err)
		}
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
