package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ballotbox/election-service/internal/domain"
)

// BallotRepository reads stored ballots. Writes only happen inside Redeem.
type BallotRepository interface {
	// ListByElection returns ballots ordered by their random id, never by cast order.
	ListByElection(ctx context.Context, electionID string) ([]domain.Ballot, error)
	CountByElection(ctx context.Context, electionID string) (int, error)
}

type ballotRepository struct {
	pool *pgxpool.Pool
}

// NewBallotRepository instantiates repository.
func NewBallotRepository(pool *pgxpool.Pool) BallotRepository {
	return &ballotRepository{pool: pool}
}

func (r *ballotRepository) ListByElection(ctx context.Context, electionID string) ([]domain.Ballot, error) {
	const query = `SELECT id, election_id, content, cast_at FROM ballots WHERE election_id=$1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ballots []domain.Ballot
	for rows.Next() {
		var (
			ballot  domain.Ballot
			content []byte
		)
		if err := rows.Scan(&ballot.ID, &ballot.ElectionID, &content, &ballot.CastAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(content, &ballot.Content); err != nil {
			return nil, fmt.Errorf("decode ballot %s: %w", ballot.ID, err)
		}
		ballots = append(ballots, ballot)
	}
	return ballots, rows.Err()
}

func (r *ballotRepository) CountByElection(ctx context.Context, electionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ballots WHERE election_id=$1`, electionID).Scan(&count)
	return count, err
}
