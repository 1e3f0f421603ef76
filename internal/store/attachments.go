package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetAttachment retrieves the binary attachment of a document.
//
// Returns:
//   - *Attachment: The attachment payload and metadata
//   - error: ErrNotFound if the document has no attachment
func (s *Store) GetAttachment(ctx context.Context, id string) (*Attachment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, name, content_type, data, updated_at
		FROM attachments
		WHERE document_id = ?
	`, id)

	var att Attachment
	var updatedAt string
	err := row.Scan(&att.DocumentID, &att.Name, &att.ContentType, &att.Data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no attachment on %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning attachment: %w", err)
	}

	att.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled
	return &att, nil
}

// PutAttachment stores (or replaces) the binary attachment of a document.
//
// Attachment writes share the document's revision chain: the presented
// revision must match the stored document revision, and a successful
// write bumps it. This keeps concurrent body and attachment writes from
// interleaving unnoticed.
//
// Parameters:
//   - id: Document id
//   - rev: Current document revision
//   - name: Attachment filename
//   - contentType: MIME type of the payload
//   - data: The binary payload
//
// Returns:
//   - string: The new document revision
//   - error: ErrNotFound if the document does not exist, ErrConflict on
//     revision mismatch
func (s *Store) PutAttachment(ctx context.Context, id, rev, name, contentType string, data []byte) (string, error) {
	if name == "" || contentType == "" {
		return "", fmt.Errorf("%w: attachment name and content type are required", ErrInvalidDocument)
	}

	now := time.Now().UTC()
	newRevision := nextRev(rev)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	// Bump the document revision under the optimistic guard.
	result, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET rev = ?, updated_at = ?
		WHERE id = ? AND rev = ?
	`, newRevision, now.Format(time.RFC3339Nano), id, rev)
	if err != nil {
		return "", fmt.Errorf("updating document revision: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return "", s.classifyMiss(ctx, id)
	}

	// Upsert the attachment row.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attachments (document_id, name, content_type, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (document_id) DO UPDATE SET
			name = excluded.name,
			content_type = excluded.content_type,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, id, name, contentType, data, now.Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("writing attachment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing attachment write: %w", err)
	}
	return newRevision, nil
}

// HasAttachment reports whether a document carries an attachment.
func (s *Store) HasAttachment(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM attachments WHERE document_id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking attachment existence: %w", err)
	}
	return true, nil
}
