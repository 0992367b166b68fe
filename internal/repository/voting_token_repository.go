package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ballotbox/election-service/internal/domain"
)

// VotingTokenRepository holds the member -> digest mapping. It is the only
// place a member reference and a digest appear together.
type VotingTokenRepository interface {
	// Reserve claims (member, election) for token. An existing row is only
	// replaced when it is a reservation older than staleBefore, or an issued,
	// unused row expired at now whose digest equals retired. Callers pass
	// retired only after the ballot side confirmed that digest can no longer
	// be redeemed. Otherwise ErrAlreadyIssued.
	Reserve(ctx context.Context, token *domain.VotingToken, now, staleBefore time.Time, retired string) error
	// Confirm flips a reservation to issued and appends the issued audit event.
	Confirm(ctx context.Context, token *domain.VotingToken, issued *domain.AuditEvent) error
	// Release drops a reservation that could not be registered remotely.
	Release(ctx context.Context, memberRef, electionID, digest string) error
	Get(ctx context.Context, electionID, memberRef string) (*domain.VotingToken, error)
	// MarkUsed sets used=true once. It reports whether this call changed the row.
	MarkUsed(ctx context.Context, digest string, usedAt time.Time) (bool, error)
	ListByElection(ctx context.Context, electionID string) ([]domain.VotingToken, error)
}

type votingTokenRepository struct {
	pool *pgxpool.Pool
}

// NewVotingTokenRepository instantiates repository.
func NewVotingTokenRepository(pool *pgxpool.Pool) VotingTokenRepository {
	return &votingTokenRepository{pool: pool}
}

func (r *votingTokenRepository) Reserve(ctx context.Context, token *domain.VotingToken, now, staleBefore time.Time, retired string) error {
	// ON CONFLICT takes the row lock, so racing requests serialize here and
	// only one of them sees a replaceable row.
	const query = `
        INSERT INTO voting_tokens (member_ref, election_id, digest, state, issued_at, expires_at, used, used_at)
        VALUES ($1,$2,$3,'reserved',$4,$5,FALSE,NULL)
        ON CONFLICT (member_ref, election_id) DO UPDATE
            SET digest=EXCLUDED.digest, state='reserved', issued_at=EXCLUDED.issued_at,
                expires_at=EXCLUDED.expires_at, used=FALSE, used_at=NULL
            WHERE (voting_tokens.state='issued' AND voting_tokens.used=FALSE AND voting_tokens.expires_at <= $6
                   AND voting_tokens.digest = $8)
               OR (voting_tokens.state='reserved' AND voting_tokens.issued_at < $7)
        RETURNING state`
	var state domain.VotingTokenState
	err := r.pool.QueryRow(ctx, query,
		token.MemberRef,
		token.ElectionID,
		token.Digest,
		token.IssuedAt,
		token.ExpiresAt,
		now,
		staleBefore,
		retired,
	).Scan(&state)
	if err == pgx.ErrNoRows {
		return ErrAlreadyIssued
	}
	if err != nil {
		return err
	}
	token.State = state
	token.Used = false
	token.UsedAt = nil
	return nil
}

func (r *votingTokenRepository) Confirm(ctx context.Context, token *domain.VotingToken, issued *domain.AuditEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE voting_tokens SET state='issued'
        WHERE member_ref=$1 AND election_id=$2 AND digest=$3 AND state='reserved'`
	cmd, err := tx.Exec(ctx, query, token.MemberRef, token.ElectionID, token.Digest)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrConflict
	}
	if err := appendAudit(ctx, tx, issued); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	token.State = domain.VotingTokenIssued
	return nil
}

func (r *votingTokenRepository) Release(ctx context.Context, memberRef, electionID, digest string) error {
	const query = `DELETE FROM voting_tokens WHERE member_ref=$1 AND election_id=$2 AND digest=$3 AND state='reserved'`
	_, err := r.pool.Exec(ctx, query, memberRef, electionID, digest)
	return err
}

func (r *votingTokenRepository) Get(ctx context.Context, electionID, memberRef string) (*domain.VotingToken, error) {
	const query = `
        SELECT member_ref, election_id, digest, state, issued_at, expires_at, used, used_at
        FROM voting_tokens WHERE election_id=$1 AND member_ref=$2`
	token, err := scanVotingToken(r.pool.QueryRow(ctx, query, electionID, memberRef))
	if err != nil {
		return nil, notFound(err)
	}
	return token, nil
}

func (r *votingTokenRepository) MarkUsed(ctx context.Context, digest string, usedAt time.Time) (bool, error) {
	const query = `UPDATE voting_tokens SET used=TRUE, used_at=$2 WHERE digest=$1 AND used=FALSE`
	cmd, err := r.pool.Exec(ctx, query, digest, usedAt)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM voting_tokens WHERE digest=$1)`, digest).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *votingTokenRepository) ListByElection(ctx context.Context, electionID string) ([]domain.VotingToken, error) {
	const query = `
        SELECT member_ref, election_id, digest, state, issued_at, expires_at, used, used_at
        FROM voting_tokens WHERE election_id=$1 ORDER BY digest`
	rows, err := r.pool.Query(ctx, query, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.VotingToken
	for rows.Next() {
		token, err := scanVotingToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *token)
	}
	return tokens, rows.Err()
}

func scanVotingToken(row pgx.Row) (*domain.VotingToken, error) {
	var token domain.VotingToken
	if err := row.Scan(
		&token.MemberRef,
		&token.ElectionID,
		&token.Digest,
		&token.State,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.Used,
		&token.UsedAt,
	); err != nil {
		return nil, err
	}
	return &token, nil
}
