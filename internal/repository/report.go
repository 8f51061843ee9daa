package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/raahi-app/raahi/internal/domain"
)

// reportColumns is the select list shared by every report query. The left
// joins pull in the optional AI estimation and the reporter's name in one
// round trip; anonymous and unregistered reporters yield NULLs.
const reportColumns = `
	r.id, r.owner_id, u.name, r.address, r.description, r.latitude, r.longitude,
	r.severity, r.status, r.images, r.thumbnail, r.dimension, r.created_at,
	e.id, e.length_cm, e.width_cm, e.depth_cm, e.severity, e.reasoning, e.created_at
`

const reportFrom = `
	FROM reports r
	LEFT JOIN users u ON u.external_id = r.owner_id
	LEFT JOIN ai_estimations e ON e.report_id = r.id
`

// CreateReport inserts the report and its optional estimation in one
// transaction, and claims the uploaded asset records for claimKeys so the
// sweeper leaves those objects alone.
//
// Returns domain.ECONFLICT if a report with the same ID already exists;
// callers must not retry that.
func (s *Store) CreateReport(ctx context.Context, report *domain.Report, claimKeys []string) error {
	const op = "repository.create_report"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback()

	dimension := report.Dimension
	if dimension[0] == "" && dimension[1] == "" {
		dimension = [2]string{"0", "0"}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO reports (id, owner_id, address, description, latitude, longitude,
			severity, status, images, thumbnail, dimension)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		report.ID, report.OwnerID, report.Address, report.Description,
		report.Latitude, report.Longitude,
		string(report.Severity), string(report.Status),
		pq.Array(report.Images), report.Thumbnail, pq.Array(dimension[:]),
	).Scan(&report.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict(op, "A report with this ID already exists")
		}
		return domain.Internal(err, op, "failed to insert report")
	}

	if report.Estimation != nil {
		est := report.Estimation
		est.ReportID = report.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO ai_estimations (report_id, length_cm, width_cm, depth_cm, severity, reasoning)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`,
			report.ID, est.LengthCM, est.WidthCM, est.DepthCM,
			string(est.Severity), est.Reasoning,
		).Scan(&est.ID, &est.CreatedAt)
		if err != nil {
			return domain.Internal(err, op, "failed to insert estimation")
		}
	}

	if len(claimKeys) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM uploaded_assets WHERE storage_key = ANY($1)`,
			pq.Array(claimKeys),
		); err != nil {
			return domain.Internal(err, op, "failed to claim uploaded assets")
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Internal(err, op, "failed to commit transaction")
	}

	return nil
}

// GetReport fetches a single report with its estimation.
func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	const op = "repository.get_report"

	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+reportFrom+` WHERE r.id = $1`, id)

	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "report", id.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch report")
	}
	return report, nil
}

// ListReports returns reports newest first. When owner is non-nil only that
// reporter's submissions are returned; nil lists everything (admin view).
func (s *Store) ListReports(ctx context.Context, owner *string) ([]domain.Report, error) {
	const op = "repository.list_reports"

	query := `SELECT ` + reportColumns + reportFrom
	args := []interface{}{}
	if owner != nil {
		query += ` WHERE r.owner_id = $1`
		args = append(args, *owner)
	}
	query += ` ORDER BY r.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query reports")
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to scan report")
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to iterate reports")
	}

	return reports, nil
}

// UpdateReportStatus sets a report's status and returns the updated report.
func (s *Store) UpdateReportStatus(ctx context.Context, id uuid.UUID, status domain.ReportStatus) (*domain.Report, error) {
	const op = "repository.update_report_status"

	result, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to update status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read update result")
	}
	if affected == 0 {
		return nil, domain.NotFound(op, "report", id.String())
	}

	return s.GetReport(ctx, id)
}

// scanner abstracts *sql.Row and *sql.Rows for scanReport.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row scanner) (*domain.Report, error) {
	var (
		r            domain.Report
		ownerID      sql.NullString
		reporterName sql.NullString
		dims         []string

		estID        uuid.NullUUID
		estLength    sql.NullString
		estWidth     sql.NullString
		estDepth     sql.NullString
		estSeverity  sql.NullString
		estReasoning sql.NullString
		estCreatedAt sql.NullTime
	)

	err := row.Scan(
		&r.ID, &ownerID, &reporterName, &r.Address, &r.Description, &r.Latitude, &r.Longitude,
		&r.Severity, &r.Status, pq.Array(&r.Images), &r.Thumbnail, pq.Array(&dims), &r.CreatedAt,
		&estID, &estLength, &estWidth, &estDepth, &estSeverity, &estReasoning, &estCreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ownerID.Valid {
		r.OwnerID = &ownerID.String
	}
	r.ReporterName = reporterName.String

	// Severity is normalized on the way out so legacy rows with mixed-case
	// values read back canonically.
	r.Severity = domain.NormalizeSeverity(string(r.Severity))

	copy(r.Dimension[:], dims)

	if estID.Valid {
		r.Estimation = &domain.DimensionEstimate{
			ID:        estID.UUID,
			ReportID:  r.ID,
			LengthCM:  estLength.String,
			WidthCM:   estWidth.String,
			DepthCM:   estDepth.String,
			Severity:  domain.Severity(estSeverity.String),
			Reasoning: estReasoning.String,
			CreatedAt: estCreatedAt.Time,
		}
	}

	return &r, nil
}
