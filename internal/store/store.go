package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openmural/signage-core/internal/infrastructure/database"
)

// Document type constants for the doc_type column.
const (
	TypeDevice  = "device"
	TypeContent = "content"
)

// Document is a single revisioned JSON document.
type Document struct {
	// ID uniquely identifies the document.
	ID string

	// Type categorises the document (TypeDevice, TypeContent).
	Type string

	// Rev is the revision token read from the store. A Put must present
	// the current revision; empty means "create".
	Rev string

	// Body is the JSON document body.
	Body json.RawMessage

	// UpdatedAt is when the document was last written (UTC).
	UpdatedAt time.Time
}

// Attachment is the binary payload carried by a document.
type Attachment struct {
	DocumentID  string
	Name        string
	ContentType string
	Data        []byte
	UpdatedAt   time.Time
}

// Store provides revisioned document persistence over SQLite.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The underlying pool is
//     limited to a single connection, so writes serialise at the driver.
type Store struct {
	db *database.DB
}

// New creates a Store backed by the given database.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Get retrieves a document by id.
//
// Returns:
//   - *Document: The document with its current revision
//   - error: ErrNotFound if no document has this id
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, doc_type, rev, body, updated_at
		FROM documents
		WHERE id = ?
	`, id)

	return scanDocument(row)
}

// Put creates or updates a document.
//
// An empty doc.Rev creates the document; a non-empty doc.Rev updates it
// and must match the stored revision exactly.
//
// Returns:
//   - string: The new revision token
//   - error: ErrConflict on revision mismatch (or create over an existing
//     id), ErrNotFound when updating a missing document,
//     ErrInvalidDocument for missing fields or malformed body
func (s *Store) Put(ctx context.Context, doc *Document) (string, error) {
	if err := validateDocument(doc); err != nil {
		return "", err
	}

	now := time.Now().UTC()

	if doc.Rev == "" {
		return s.create(ctx, doc, now)
	}
	return s.update(ctx, doc, now)
}

// Delete removes a document and its attachment (by cascade).
//
// The presented revision must match the stored revision.
//
// Returns:
//   - error: ErrNotFound if the document does not exist, ErrConflict on
//     revision mismatch
func (s *Store) Delete(ctx context.Context, id, rev string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE id = ? AND rev = ?", id, rev)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing deleted: distinguish missing document from stale revision.
	return s.classifyMiss(ctx, id)
}

// create inserts a new document with a generation-1 revision.
func (s *Store) create(ctx context.Context, doc *Document, now time.Time) (string, error) {
	rev := newRev(1)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, doc_type, rev, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, doc.ID, doc.Type, rev, string(doc.Body), now.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: document %q already exists", ErrConflict, doc.ID)
		}
		return "", fmt.Errorf("inserting document: %w", err)
	}

	doc.Rev = rev
	doc.UpdatedAt = now
	return rev, nil
}

// update replaces the body of an existing document, bumping the revision.
func (s *Store) update(ctx context.Context, doc *Document, now time.Time) (string, error) {
	rev := nextRev(doc.Rev)

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET rev = ?, body = ?, updated_at = ?
		WHERE id = ? AND rev = ?
	`, rev, string(doc.Body), now.Format(time.RFC3339Nano), doc.ID, doc.Rev)
	if err != nil {
		return "", fmt.Errorf("updating document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return "", s.classifyMiss(ctx, doc.ID)
	}

	doc.Rev = rev
	doc.UpdatedAt = now
	return rev, nil
}

// classifyMiss determines why a guarded write matched no rows.
func (s *Store) classifyMiss(ctx context.Context, id string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM documents WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("checking document existence: %w", err)
	}
	return fmt.Errorf("%w: %s", ErrConflict, id)
}

// validateDocument checks required fields and body syntax.
func validateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	if doc.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidDocument)
	}
	if !json.Valid(doc.Body) {
		return fmt.Errorf("%w: body is not valid JSON", ErrInvalidDocument)
	}
	return nil
}

// newRev builds a revision token for the given generation.
func newRev(generation int) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%d-%s", generation, suffix)
}

// nextRev builds the successor revision token for the given token.
// A token with an unparseable generation restarts the chain at 1;
// uniqueness of the suffix keeps the token distinct either way.
func nextRev(rev string) string {
	generation := 0
	if idx := strings.IndexByte(rev, '-'); idx > 0 {
		if n, err := strconv.Atoi(rev[:idx]); err == nil {
			generation = n
		}
	}
	return newRev(generation + 1)
}

// isUniqueViolation reports whether err is a primary key violation.
// The sqlite3 driver wraps these as "UNIQUE constraint failed".
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*Document, error) {
	var doc Document
	var body, updatedAt string

	err := row.Scan(&doc.ID, &doc.Type, &doc.Rev, &body, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Body = json.RawMessage(body)
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled
	return &doc, nil
}
