package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/raahi-app/raahi/internal/domain"
)

// UploadedAsset is a stored object awaiting its report row. Rows are claimed
// (deleted) when the report commits; anything left behind is an orphan.
type UploadedAsset struct {
	ID         uuid.UUID
	ReportID   uuid.UUID
	StorageKey string
	CreatedAt  time.Time
}

// RecordUploadedAssets registers freshly uploaded storage keys before report
// persistence is attempted, so failed submissions can be swept up later.
func (s *Store) RecordUploadedAssets(ctx context.Context, reportID uuid.UUID, keys []string) error {
	const op = "repository.record_uploaded_assets"

	if len(keys) == 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploaded_assets (report_id, storage_key)
		SELECT $1, unnest($2::text[])
		ON CONFLICT (storage_key) DO NOTHING`,
		reportID, pq.Array(keys))
	if err != nil {
		return domain.Internal(err, op, "failed to record uploaded assets")
	}

	return nil
}

// ListOrphanedAssets returns unclaimed asset records older than age.
func (s *Store) ListOrphanedAssets(ctx context.Context, age time.Duration, limit int) ([]UploadedAsset, error) {
	const op = "repository.list_orphaned_assets"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, storage_key, created_at
		FROM uploaded_assets
		WHERE created_at < now() - ($1 * interval '1 second')
		ORDER BY created_at
		LIMIT $2`,
		age.Seconds(), limit)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query orphaned assets")
	}
	defer rows.Close()

	var assets []UploadedAsset
	for rows.Next() {
		var a UploadedAsset
		if err := rows.Scan(&a.ID, &a.ReportID, &a.StorageKey, &a.CreatedAt); err != nil {
			return nil, domain.Internal(err, op, "failed to scan asset")
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to iterate assets")
	}

	return assets, nil
}

// DeleteAssetRecord removes one bookkeeping row after its object has been
// deleted from storage.
func (s *Store) DeleteAssetRecord(ctx context.Context, id uuid.UUID) error {
	const op = "repository.delete_asset_record"

	if _, err := s.db.ExecContext(ctx, `DELETE FROM uploaded_assets WHERE id = $1`, id); err != nil {
		return domain.Internal(err, op, "failed to delete asset record")
	}

	return nil
}
