package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/session-bff/internal/domain"
)

// AuditRepository persists session lifecycle events.
type AuditRepository interface {
	Insert(ctx context.Context, record *domain.AuditRecord) error
	ListBySubject(ctx context.Context, subject string, limit int) ([]domain.AuditRecord, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository returns a Postgres-backed implementation.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Insert(ctx context.Context, record *domain.AuditRecord) error {
	const query = `
        INSERT INTO session_audit (id, event_type, subject, outcome, client_ip, request_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		record.ID,
		record.EventType,
		record.Subject,
		record.Outcome,
		record.ClientIP,
		record.RequestID,
		record.CreatedAt,
	)
	return err
}

func (r *auditRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, event_type, subject, outcome, client_ip, request_id, created_at
        FROM session_audit WHERE subject=$1
        ORDER BY created_at DESC
        LIMIT $2`

	rows, err := r.pool.Query(ctx, query, subject, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.EventType,
			&rec.Subject,
			&rec.Outcome,
			&rec.ClientIP,
			&rec.RequestID,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
