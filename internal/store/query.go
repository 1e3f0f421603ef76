package store

import (
	"context"
	"fmt"
	"time"
)

// Index names the predefined query indexes served by Query.
type Index string

const (
	// IndexContentByStatus returns content documents with a given status.
	IndexContentByStatus Index = "content_by_status"

	// IndexContentByDevice returns content documents assigned to a given
	// device, ascending by that device's order value.
	IndexContentByDevice Index = "content_by_device"

	// IndexDeviceByStatus returns device documents with a given status.
	IndexDeviceByStatus Index = "device_by_status"
)

// Query runs a named index query with the given key.
//
// Parameters:
//   - index: One of the Index constants
//   - key: The index key (a status value or a device id)
//
// Returns:
//   - []Document: Matching documents in index order (empty slice when
//     nothing matches)
//   - error: ErrUnknownIndex for an unrecognised index name
func (s *Store) Query(ctx context.Context, index Index, key string) ([]Document, error) {
	query, args, err := buildIndexQuery(index, key)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying index %s: %w", index, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		var body, updatedAt string
		if err := rows.Scan(&doc.ID, &doc.Type, &doc.Rev, &body, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}
		doc.Body = []byte(body)
		doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index %s: %w", index, err)
	}
	return docs, nil
}

// buildIndexQuery maps an index name to its SQL.
//
// All indexes read the JSON body with SQLite's JSON1 functions; the
// content_by_device index additionally orders by the per-device order
// value stored under $.order.{deviceID}.
func buildIndexQuery(index Index, key string) (string, []interface{}, error) {
	const selectCols = "SELECT id, doc_type, rev, body, updated_at FROM documents"

	switch index {
	case IndexContentByStatus:
		return selectCols + `
			WHERE doc_type = ? AND json_extract(body, '$.status') = ?
			ORDER BY id`, []interface{}{TypeContent, key}, nil

	case IndexContentByDevice:
		return selectCols + `
			WHERE doc_type = ?
			  AND EXISTS (
			      SELECT 1 FROM json_each(documents.body, '$.assigned_devices')
			      WHERE json_each.value = ?
			  )
			ORDER BY CAST(json_extract(body, '$.order."' || ? || '"') AS INTEGER), id`,
			[]interface{}{TypeContent, key, key}, nil

	case IndexDeviceByStatus:
		return selectCols + `
			WHERE doc_type = ? AND json_extract(body, '$.status') = ?
			ORDER BY id`, []interface{}{TypeDevice, key}, nil

	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownIndex, index)
	}
}

// ListByType returns every document of the given type, ordered by id.
func (s *Store) ListByType(ctx context.Context, docType string) ([]Document, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT id, doc_type, rev, body, updated_at
		FROM documents
		WHERE doc_type = ?
		ORDER BY id
	`, docType)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		var body, updatedAt string
		if err := rows.Scan(&doc.ID, &doc.Type, &doc.Rev, &body, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		doc.Body = []byte(body)
		doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}
