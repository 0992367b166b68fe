package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ballotbox/election-service/internal/domain"
)

// ElectionFilter narrows election listings.
type ElectionFilter struct {
	Statuses      []domain.ElectionStatus
	IncludeHidden bool
	Limit         int
	Offset        int
}

// ElectionRepository encapsulates election persistence on the eligibility side.
type ElectionRepository interface {
	Create(ctx context.Context, election *domain.Election) error
	// Update rewrites the definition only while the stored status equals expected.
	Update(ctx context.Context, election *domain.Election, expected domain.ElectionStatus) error
	GetByID(ctx context.Context, id string) (*domain.Election, error)
	List(ctx context.Context, filter ElectionFilter) ([]domain.Election, error)
	// Transition moves from -> to atomically and returns ErrConflict if another writer got there first.
	Transition(ctx context.Context, id string, from, to domain.ElectionStatus, at time.Time) error
	SetHidden(ctx context.Context, id string, hidden bool) error
	ListDueForClosure(ctx context.Context, now time.Time) ([]domain.Election, error)
}

type electionRepository struct {
	pool *pgxpool.Pool
}

// NewElectionRepository instantiates repository.
func NewElectionRepository(pool *pgxpool.Pool) ElectionRepository {
	return &electionRepository{pool: pool}
}

const electionColumns = `id, title, description, question, voting_method, max_selections, seats_to_fill,
               status, hidden, voting_start, voting_end, answers, eligible_roles, created_by,
               published_at, closed_at, created_at, updated_at`

func (r *electionRepository) Create(ctx context.Context, election *domain.Election) error {
	answers, err := json.Marshal(election.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	const query = `
        INSERT INTO elections (id, title, description, question, voting_method, max_selections, seats_to_fill,
            status, hidden, voting_start, voting_end, answers, eligible_roles, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		election.ID,
		election.Title,
		election.Description,
		election.Question,
		election.VotingMethod,
		election.MaxSelections,
		election.SeatsToFill,
		election.Status,
		election.Hidden,
		election.VotingStart,
		election.VotingEnd,
		answers,
		nonNilStrings(election.EligibleRoles),
		election.CreatedBy,
	).Scan(&election.CreatedAt, &election.UpdatedAt)
}

func (r *electionRepository) Update(ctx context.Context, election *domain.Election, expected domain.ElectionStatus) error {
	answers, err := json.Marshal(election.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	const query = `
        UPDATE elections SET title=$1, description=$2, question=$3, voting_method=$4, max_selections=$5,
            seats_to_fill=$6, voting_start=$7, voting_end=$8, answers=$9, eligible_roles=$10, updated_at=NOW()
        WHERE id=$11 AND status=$12
        RETURNING updated_at`
	err = r.pool.QueryRow(ctx, query,
		election.Title,
		election.Description,
		election.Question,
		election.VotingMethod,
		election.MaxSelections,
		election.SeatsToFill,
		election.VotingStart,
		election.VotingEnd,
		answers,
		nonNilStrings(election.EligibleRoles),
		election.ID,
		expected,
	).Scan(&election.UpdatedAt)
	if err == pgx.ErrNoRows {
		return r.missingOrConflict(ctx, election.ID)
	}
	return err
}

func (r *electionRepository) GetByID(ctx context.Context, id string) (*domain.Election, error) {
	query := `SELECT ` + electionColumns + ` FROM elections WHERE id=$1`
	election, err := scanElection(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return election, nil
}

func (r *electionRepository) List(ctx context.Context, filter ElectionFilter) ([]domain.Election, error) {
	base := `SELECT ` + electionColumns + ` FROM elections`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if !filter.IncludeHidden {
		clauses = append(clauses, "hidden = FALSE")
	}

	query := fmt.Sprintf("%s WHERE %s ORDER BY voting_start DESC, id", base, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return r.collect(ctx, query, args...)
}

func (r *electionRepository) Transition(ctx context.Context, id string, from, to domain.ElectionStatus, at time.Time) error {
	var query string
	switch to {
	case domain.ElectionStatusPublished:
		query = `UPDATE elections SET status=$1, published_at=$2, updated_at=NOW() WHERE id=$3 AND status=$4`
	case domain.ElectionStatusClosed:
		query = `UPDATE elections SET status=$1, closed_at=$2, updated_at=NOW() WHERE id=$3 AND status=$4`
	default:
		return fmt.Errorf("unsupported transition to %s", to)
	}
	cmd, err := r.pool.Exec(ctx, query, to, at, id, from)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

func (r *electionRepository) SetHidden(ctx context.Context, id string, hidden bool) error {
	const query = `UPDATE elections SET hidden=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, hidden, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *electionRepository) ListDueForClosure(ctx context.Context, now time.Time) ([]domain.Election, error) {
	query := `SELECT ` + electionColumns + ` FROM elections WHERE status='published' AND voting_end <= $1 ORDER BY voting_end`
	return r.collect(ctx, query, now)
}

func (r *electionRepository) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM elections WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *electionRepository) collect(ctx context.Context, query string, args ...any) ([]domain.Election, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var elections []domain.Election
	for rows.Next() {
		election, err := scanElection(rows)
		if err != nil {
			return nil, err
		}
		elections = append(elections, *election)
	}
	return elections, rows.Err()
}

func scanElection(row pgx.Row) (*domain.Election, error) {
	var (
		election domain.Election
		answers  []byte
	)
	if err := row.Scan(
		&election.ID,
		&election.Title,
		&election.Description,
		&election.Question,
		&election.VotingMethod,
		&election.MaxSelections,
		&election.SeatsToFill,
		&election.Status,
		&election.Hidden,
		&election.VotingStart,
		&election.VotingEnd,
		&answers,
		&election.EligibleRoles,
		&election.CreatedBy,
		&election.PublishedAt,
		&election.ClosedAt,
		&election.CreatedAt,
		&election.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &election.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return &election, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
