package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ballotbox/election-service/internal/domain"
)

// RegisteredTokenRepository holds digests on the ballot side. No member
// attribute is ever stored here.
type RegisteredTokenRepository interface {
	// Register stores a digest once and appends the registered audit event.
	// Re-registering the same digest for the same election is a no-op.
	Register(ctx context.Context, token *domain.RegisteredToken, registered *domain.AuditEvent) error
	GetByDigest(ctx context.Context, digest string) (*domain.RegisteredToken, error)
	// Redeem atomically consumes digest and stores ballot. Exactly one
	// concurrent caller per digest succeeds; the rest get ErrTokenRedeemed.
	Redeem(ctx context.Context, digest string, ballot *domain.Ballot, redeemed *domain.AuditEvent, now time.Time) error
	ListByElection(ctx context.Context, electionID string) ([]domain.RegisteredToken, error)
}

type registeredTokenRepository struct {
	pool *pgxpool.Pool
}

// NewRegisteredTokenRepository instantiates repository.
func NewRegisteredTokenRepository(pool *pgxpool.Pool) RegisteredTokenRepository {
	return &registeredTokenRepository{pool: pool}
}

func (r *registeredTokenRepository) Register(ctx context.Context, token *domain.RegisteredToken, registered *domain.AuditEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var status domain.ElectionStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM ballot_elections WHERE id=$1 FOR SHARE`, token.ElectionID).Scan(&status); err != nil {
		return notFound(err)
	}
	if status != domain.ElectionStatusPublished {
		return ErrElectionNotOpen
	}

	const query = `
        INSERT INTO registered_tokens (digest, election_id, expires_at, redeemed, registered_at)
        VALUES ($1,$2,$3,FALSE,$4)
        ON CONFLICT (digest) DO NOTHING`
	cmd, err := tx.Exec(ctx, query, token.Digest, token.ElectionID, token.ExpiresAt, token.RegisteredAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var electionID string
		if err := tx.QueryRow(ctx, `SELECT election_id FROM registered_tokens WHERE digest=$1`, token.Digest).Scan(&electionID); err != nil {
			return err
		}
		if electionID != token.ElectionID {
			return ErrConflict
		}
		return tx.Commit(ctx)
	}
	if err := appendAudit(ctx, tx, registered); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *registeredTokenRepository) GetByDigest(ctx context.Context, digest string) (*domain.RegisteredToken, error) {
	const query = `
        SELECT digest, election_id, expires_at, redeemed, redeemed_at, registered_at
        FROM registered_tokens WHERE digest=$1`
	token, err := scanRegisteredToken(r.pool.QueryRow(ctx, query, digest))
	if err != nil {
		return nil, notFound(err)
	}
	return token, nil
}

func (r *registeredTokenRepository) Redeem(ctx context.Context, digest string, ballot *domain.Ballot, redeemed *domain.AuditEvent, now time.Time) error {
	content, err := json.Marshal(ballot.Content)
	if err != nil {
		return fmt.Errorf("encode ballot: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		status     domain.ElectionStatus
		start, end time.Time
	)
	const lockElection = `SELECT status, voting_start, voting_end FROM ballot_elections WHERE id=$1 FOR SHARE`
	if err := tx.QueryRow(ctx, lockElection, ballot.ElectionID).Scan(&status, &start, &end); err != nil {
		return notFound(err)
	}
	if status != domain.ElectionStatusPublished || !domain.WithinWindow(start, end, now) {
		return ErrElectionNotOpen
	}

	const consume = `
        UPDATE registered_tokens SET redeemed=TRUE, redeemed_at=$2
        WHERE digest=$1 AND election_id=$3 AND redeemed=FALSE AND expires_at > $2`
	cmd, err := tx.Exec(ctx, consume, digest, now, ballot.ElectionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return classifyUnredeemable(ctx, tx, digest, ballot.ElectionID, now)
	}

	const insertBallot = `INSERT INTO ballots (id, election_id, content, cast_at) VALUES ($1,$2,$3,$4)`
	if _, err := tx.Exec(ctx, insertBallot, ballot.ID, ballot.ElectionID, content, ballot.CastAt); err != nil {
		return err
	}
	if err := appendAudit(ctx, tx, redeemed); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func classifyUnredeemable(ctx context.Context, tx pgx.Tx, digest, electionID string, now time.Time) error {
	var (
		tokenElection string
		redeemed      bool
		expiresAt     time.Time
	)
	err := tx.QueryRow(ctx, `SELECT election_id, redeemed, expires_at FROM registered_tokens WHERE digest=$1`, digest).
		Scan(&tokenElection, &redeemed, &expiresAt)
	if err != nil {
		return notFound(err)
	}
	switch {
	case tokenElection != electionID:
		return ErrNotFound
	case redeemed:
		return ErrTokenRedeemed
	case !now.Before(expiresAt):
		return ErrTokenExpired
	default:
		return ErrConflict
	}
}

func (r *registeredTokenRepository) ListByElection(ctx context.Context, electionID string) ([]domain.RegisteredToken, error) {
	const query = `
        SELECT digest, election_id, expires_at, redeemed, redeemed_at, registered_at
        FROM registered_tokens WHERE election_id=$1 ORDER BY digest`
	rows, err := r.pool.Query(ctx, query, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.RegisteredToken
	for rows.Next() {
		token, err := scanRegisteredToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *token)
	}
	return tokens, rows.Err()
}

func scanRegisteredToken(row pgx.Row) (*domain.RegisteredToken, error) {
	var token domain.RegisteredToken
	if err := row.Scan(
		&token.Digest,
		&token.ElectionID,
		&token.ExpiresAt,
		&token.Redeemed,
		&token.RedeemedAt,
		&token.RegisteredAt,
	); err != nil {
		return nil, err
	}
	return &token, nil
}
