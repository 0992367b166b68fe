package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ballotbox/election-service/internal/domain"
)

// AuditRepository is an append-only ledger. Each authority has its own table
// in its own database.
type AuditRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
	ListByElection(ctx context.Context, electionID string) ([]domain.AuditEvent, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository instantiates repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func appendAudit(ctx context.Context, db execer, event *domain.AuditEvent) error {
	const query = `
        INSERT INTO audit_events (id, election_id, type, digest, actor, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := db.Exec(ctx, query, event.ID, event.ElectionID, event.Type, event.Digest, event.Actor, event.OccurredAt)
	return err
}

func (r *auditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	return appendAudit(ctx, r.pool, event)
}

func (r *auditRepository) ListByElection(ctx context.Context, electionID string) ([]domain.AuditEvent, error) {
	const query = `
        SELECT id, election_id, type, digest, actor, occurred_at
        FROM audit_events WHERE election_id=$1 ORDER BY occurred_at, id`
	rows, err := r.pool.Query(ctx, query, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEvent, error) {
		var event domain.AuditEvent
		err := row.Scan(&event.ID, &event.ElectionID, &event.Type, &event.Digest, &event.Actor, &event.OccurredAt)
		return event, err
	})
}
