package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/repository"
)

// BallotDB is the ballot authority's state. One mutex covers elections,
// tokens and ballots so redemption and closure serialize.
type BallotDB struct {
	mu        sync.Mutex
	elections map[string]domain.BallotElection
	tokens    map[string]domain.RegisteredToken
	ballots   map[string][]domain.Ballot
	audit     []domain.AuditEvent
}

// NewBallotDB returns an empty store.
func NewBallotDB() *BallotDB {
	return &BallotDB{
		elections: map[string]domain.BallotElection{},
		tokens:    map[string]domain.RegisteredToken{},
		ballots:   map[string][]domain.Ballot{},
	}
}

func (db *BallotDB) Elections() repository.BallotElectionRepository { return ballotElectionStore{db} }
func (db *BallotDB) Tokens() repository.RegisteredTokenRepository   { return registeredTokenStore{db} }
func (db *BallotDB) Ballots() repository.BallotRepository           { return ballotStore{db} }
func (db *BallotDB) Audit() repository.AuditRepository              { return ballotAudit{db} }

type ballotElectionStore struct{ db *BallotDB }

func (s ballotElectionStore) Upsert(_ context.Context, election *domain.BallotElection) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if existing, ok := s.db.elections[election.ID]; ok && existing.Status == domain.ElectionStatusClosed {
		return repository.ErrElectionClosed
	}
	election.Status = domain.ElectionStatusPublished
	election.ClosedAt = nil
	stored := *election
	stored.Answers = append([]domain.Answer(nil), election.Answers...)
	s.db.elections[election.ID] = stored
	return nil
}

func (s ballotElectionStore) GetByID(_ context.Context, id string) (*domain.BallotElection, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stored, ok := s.db.elections[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	stored.Answers = append([]domain.Answer(nil), stored.Answers...)
	return &stored, nil
}

func (s ballotElectionStore) Close(_ context.Context, id string, closedAt time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stored, ok := s.db.elections[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if stored.Status == domain.ElectionStatusClosed {
		return false, nil
	}
	ts := closedAt
	stored.Status = domain.ElectionStatusClosed
	stored.ClosedAt = &ts
	s.db.elections[id] = stored
	return true, nil
}

type registeredTokenStore struct{ db *BallotDB }

func (s registeredTokenStore) Register(_ context.Context, token *domain.RegisteredToken, registered *domain.AuditEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	election, ok := s.db.elections[token.ElectionID]
	if !ok {
		return repository.ErrNotFound
	}
	if election.Status != domain.ElectionStatusPublished {
		return repository.ErrElectionNotOpen
	}
	if existing, ok := s.db.tokens[token.Digest]; ok {
		if existing.ElectionID != token.ElectionID {
			return repository.ErrConflict
		}
		return nil
	}
	s.db.tokens[token.Digest] = *token
	s.db.audit = append(s.db.audit, *registered)
	return nil
}

func (s registeredTokenStore) GetByDigest(_ context.Context, digest string) (*domain.RegisteredToken, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	token, ok := s.db.tokens[digest]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &token, nil
}

func (s registeredTokenStore) Redeem(_ context.Context, digest string, ballot *domain.Ballot, redeemed *domain.AuditEvent, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	election, ok := s.db.elections[ballot.ElectionID]
	if !ok {
		return repository.ErrNotFound
	}
	if !election.AcceptingVotes(now) {
		return repository.ErrElectionNotOpen
	}
	token, ok := s.db.tokens[digest]
	if !ok || token.ElectionID != ballot.ElectionID {
		return repository.ErrNotFound
	}
	if token.Redeemed {
		return repository.ErrTokenRedeemed
	}
	if !now.Before(token.ExpiresAt) {
		return repository.ErrTokenExpired
	}
	ts := now
	token.Redeemed = true
	token.RedeemedAt = &ts
	s.db.tokens[digest] = token
	s.db.ballots[ballot.ElectionID] = append(s.db.ballots[ballot.ElectionID], *ballot)
	s.db.audit = append(s.db.audit, *redeemed)
	return nil
}

func (s registeredTokenStore) ListByElection(_ context.Context, electionID string) ([]domain.RegisteredToken, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.RegisteredToken
	for _, t := range s.db.tokens {
		if t.ElectionID == electionID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Digest < out[j].Digest })
	return out, nil
}

type ballotStore struct{ db *BallotDB }

func (s ballotStore) ListByElection(_ context.Context, electionID string) ([]domain.Ballot, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := append([]domain.Ballot(nil), s.db.ballots[electionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s ballotStore) CountByElection(_ context.Context, electionID string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.ballots[electionID]), nil
}

type ballotAudit struct{ db *BallotDB }

func (s ballotAudit) Append(_ context.Context, event *domain.AuditEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.audit = append(s.db.audit, *event)
	return nil
}

func (s ballotAudit) ListByElection(_ context.Context, electionID string) ([]domain.AuditEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return filterAudit(s.db.audit, electionID), nil
}
