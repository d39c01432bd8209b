package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dj258255/tymee-sub001/internal/audit/domain"
)

const auditColumns = `id, event_id, user_id, device_id, action, source, metadata, created_at`

const defaultListLimit = 50

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
// A duplicate EventID is ignored and reported as inserted=false.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) (bool, error) {
	meta := a.Metadata
	if meta == "" {
		meta = "{}"
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (`+auditColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (event_id) DO NOTHING`,
		a.ID, a.EventID, a.UserID, a.DeviceID, a.Action, a.Source, meta, a.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("audit: create: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("audit: create: %w", err)
	}
	return n > 0, nil
}

// ListByUser returns audit logs for the user, newest first, paginated by limit and offset.
// A non-positive limit uses the default page size.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		if err := rows.Scan(&a.ID, &a.EventID, &a.UserID, &a.DeviceID, &a.Action, &a.Source, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return out, nil
}
