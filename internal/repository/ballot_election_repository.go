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

// BallotElectionRepository stores the ballot authority's copy of election definitions.
type BallotElectionRepository interface {
	// Upsert stores a published definition. A closed election is never reopened: ErrElectionClosed.
	Upsert(ctx context.Context, election *domain.BallotElection) error
	GetByID(ctx context.Context, id string) (*domain.BallotElection, error)
	// Close marks the election closed. It reports false when it was already closed.
	Close(ctx context.Context, id string, closedAt time.Time) (bool, error)
}

type ballotElectionRepository struct {
	pool *pgxpool.Pool
}

// NewBallotElectionRepository instantiates repository.
func NewBallotElectionRepository(pool *pgxpool.Pool) BallotElectionRepository {
	return &ballotElectionRepository{pool: pool}
}

func (r *ballotElectionRepository) Upsert(ctx context.Context, election *domain.BallotElection) error {
	answers, err := json.Marshal(election.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	const query = `
        INSERT INTO ballot_elections (id, voting_method, max_selections, seats_to_fill, answers, status, voting_start, voting_end)
        VALUES ($1,$2,$3,$4,$5,'published',$6,$7)
        ON CONFLICT (id) DO UPDATE
            SET voting_method=EXCLUDED.voting_method, max_selections=EXCLUDED.max_selections,
                seats_to_fill=EXCLUDED.seats_to_fill, answers=EXCLUDED.answers,
                voting_start=EXCLUDED.voting_start, voting_end=EXCLUDED.voting_end
            WHERE ballot_elections.status <> 'closed'`
	cmd, err := r.pool.Exec(ctx, query,
		election.ID,
		election.VotingMethod,
		election.MaxSelections,
		election.SeatsToFill,
		answers,
		election.VotingStart,
		election.VotingEnd,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrElectionClosed
	}
	election.Status = domain.ElectionStatusPublished
	return nil
}

func (r *ballotElectionRepository) GetByID(ctx context.Context, id string) (*domain.BallotElection, error) {
	const query = `
        SELECT id, voting_method, max_selections, seats_to_fill, answers, status, voting_start, voting_end, closed_at
        FROM ballot_elections WHERE id=$1`
	election, err := scanBallotElection(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return election, nil
}

func (r *ballotElectionRepository) Close(ctx context.Context, id string, closedAt time.Time) (bool, error) {
	// Redemptions hold FOR SHARE on this row, so the update waits for them to
	// commit and later redemptions observe the closed status.
	const query = `UPDATE ballot_elections SET status='closed', closed_at=$2 WHERE id=$1 AND status='published'`
	cmd, err := r.pool.Exec(ctx, query, id, closedAt)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func scanBallotElection(row pgx.Row) (*domain.BallotElection, error) {
	var (
		election domain.BallotElection
		answers  []byte
	)
	if err := row.Scan(
		&election.ID,
		&election.VotingMethod,
		&election.MaxSelections,
		&election.SeatsToFill,
		&answers,
		&election.Status,
		&election.VotingStart,
		&election.VotingEnd,
		&election.ClosedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &election.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return &election, nil
}
