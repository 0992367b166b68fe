package service

import (
	"context"
	"errors"

	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/repository"
	"github.com/ballotbox/election-service/internal/tally"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// ResultsService tabulates closed elections on the ballot side.
type ResultsService struct {
	elections repository.BallotElectionRepository
	ballots   repository.BallotRepository
	clock     Clock
}

func NewResultsService(elections repository.BallotElectionRepository, ballots repository.BallotRepository, clock Clock) *ResultsService {
	return &ResultsService{elections: elections, ballots: ballots, clock: clock}
}

// Tabulate counts a closed election. The ballot set is frozen once closed, so
// repeated calls return the same result.
func (s *ResultsService) Tabulate(ctx context.Context, electionID string) (*domain.ElectionResults, error) {
	election, err := s.elections.GetByID(ctx, electionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("election", nil)
	}
	if err != nil {
		return nil, err
	}
	if election.Status != domain.ElectionStatusClosed {
		return nil, apperrors.NewElectionNotOpen("results are available once the election is closed")
	}

	ballots, err := s.ballots.ListByElection(ctx, electionID)
	if err != nil {
		return nil, err
	}

	results := &domain.ElectionResults{
		ElectionID:   electionID,
		VotingMethod: election.VotingMethod,
		TotalBallots: len(ballots),
		ComputedAt:   s.clock.now(),
	}
	switch election.VotingMethod {
	case domain.VotingMethodRankedChoice:
		rc := tally.RankedChoice(election.Answers, ballots, election.SeatsToFill)
		results.RankedChoice = &rc
	default:
		p := tally.Plurality(election.Answers, ballots)
		results.Plurality = &p
	}
	return results, nil
}
