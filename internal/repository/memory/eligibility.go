// Package memory provides mutex-guarded stores with the same contracts as the
// Postgres repositories. They back tests and DSN-less local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/repository"
)

// EligibilityDB is the eligibility authority's state.
type EligibilityDB struct {
	mu        sync.Mutex
	elections map[string]domain.Election
	tokens    map[tokenKey]domain.VotingToken
	audit     []domain.AuditEvent
}

type tokenKey struct {
	electionID string
	memberRef  string
}

// NewEligibilityDB returns an empty store.
func NewEligibilityDB() *EligibilityDB {
	return &EligibilityDB{
		elections: map[string]domain.Election{},
		tokens:    map[tokenKey]domain.VotingToken{},
	}
}

func (db *EligibilityDB) Elections() repository.ElectionRepository { return electionStore{db} }
func (db *EligibilityDB) Tokens() repository.VotingTokenRepository { return votingTokenStore{db} }
func (db *EligibilityDB) Audit() repository.AuditRepository        { return eligibilityAudit{db} }

type electionStore struct{ db *EligibilityDB }

func (s electionStore) Create(_ context.Context, election *domain.Election) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.elections[election.ID]; ok {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	election.CreatedAt, election.UpdatedAt = now, now
	s.db.elections[election.ID] = cloneElection(*election)
	return nil
}

func (s electionStore) Update(_ context.Context, election *domain.Election, expected domain.ElectionStatus) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stored, ok := s.db.elections[election.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrConflict
	}
	stored.Title = election.Title
	stored.Description = election.Description
	stored.Question = election.Question
	stored.VotingMethod = election.VotingMethod
	stored.MaxSelections = election.MaxSelections
	stored.SeatsToFill = election.SeatsToFill
	stored.VotingStart = election.VotingStart
	stored.VotingEnd = election.VotingEnd
	stored.Answers = election.Answers
	stored.EligibleRoles = election.EligibleRoles
	stored.UpdatedAt = time.Now().UTC()
	election.UpdatedAt = stored.UpdatedAt
	s.db.elections[election.ID] = cloneElection(stored)
	return nil
}

func (s electionStore) GetByID(_ context.Context, id string) (*domain.Election, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stored, ok := s.db.elections[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneElection(stored)
	return &out, nil
}

func (s electionStore) List(_ context.Context, filter repository.ElectionFilter) ([]domain.Election, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.Election
	for _, e := range s.db.elections {
		if e.Hidden && !filter.IncludeHidden {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, e.Status) {
			continue
		}
		out = append(out, cloneElection(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].VotingStart.Equal(out[j].VotingStart) {
			return out[i].VotingStart.After(out[j].VotingStart)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s electionStore) Transition(_ context.Context, id string, from, to domain.ElectionStatus, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stored, ok := s.db.elections[id]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != from {
		return repository.ErrConflict
	}
	stored.Status = to
	ts := at
	switch to {
	case domain.ElectionStatusPublished:
		stored.PublishedAt = &ts
	case domain.ElectionStatusClosed:
		stored.ClosedAt = &ts
	}
	stored.UpdatedAt = time.Now().UTC()
	s.db.elections[id] = stored
	return nil
}

func (s electionStore) SetHidden(_ context.Context, id string, hidden bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stored, ok := s.db.elections[id]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Hidden = hidden
	stored.UpdatedAt = time.Now().UTC()
	s.db.elections[id] = stored
	return nil
}

func (s electionStore) ListDueForClosure(_ context.Context, now time.Time) ([]domain.Election, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.Election
	for _, e := range s.db.elections {
		if e.Status == domain.ElectionStatusPublished && !e.VotingEnd.After(now) {
			out = append(out, cloneElection(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VotingEnd.Before(out[j].VotingEnd) })
	return out, nil
}

type votingTokenStore struct{ db *EligibilityDB }

func (s votingTokenStore) Reserve(_ context.Context, token *domain.VotingToken, now, staleBefore time.Time, retired string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := tokenKey{electionID: token.ElectionID, memberRef: token.MemberRef}
	if existing, ok := s.db.tokens[key]; ok {
		expiredUnused := existing.State == domain.VotingTokenIssued && !existing.Used && !now.Before(existing.ExpiresAt) &&
			retired != "" && existing.Digest == retired
		staleReservation := existing.State == domain.VotingTokenReserved && existing.IssuedAt.Before(staleBefore)
		if !expiredUnused && !staleReservation {
			return repository.ErrAlreadyIssued
		}
	}
	token.State = domain.VotingTokenReserved
	token.Used = false
	token.UsedAt = nil
	s.db.tokens[key] = *token
	return nil
}

func (s votingTokenStore) Confirm(_ context.Context, token *domain.VotingToken, issued *domain.AuditEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := tokenKey{electionID: token.ElectionID, memberRef: token.MemberRef}
	existing, ok := s.db.tokens[key]
	if !ok || existing.Digest != token.Digest || existing.State != domain.VotingTokenReserved {
		return repository.ErrConflict
	}
	existing.State = domain.VotingTokenIssued
	s.db.tokens[key] = existing
	s.db.audit = append(s.db.audit, *issued)
	token.State = domain.VotingTokenIssued
	return nil
}

func (s votingTokenStore) Release(_ context.Context, memberRef, electionID, digest string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := tokenKey{electionID: electionID, memberRef: memberRef}
	if existing, ok := s.db.tokens[key]; ok && existing.Digest == digest && existing.State == domain.VotingTokenReserved {
		delete(s.db.tokens, key)
	}
	return nil
}

func (s votingTokenStore) Get(_ context.Context, electionID, memberRef string) (*domain.VotingToken, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	existing, ok := s.db.tokens[tokenKey{electionID: electionID, memberRef: memberRef}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &existing, nil
}

func (s votingTokenStore) MarkUsed(_ context.Context, digest string, usedAt time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for key, t := range s.db.tokens {
		if t.Digest != digest {
			continue
		}
		if t.Used {
			return false, nil
		}
		ts := usedAt
		t.Used = true
		t.UsedAt = &ts
		s.db.tokens[key] = t
		return true, nil
	}
	return false, repository.ErrNotFound
}

func (s votingTokenStore) ListByElection(_ context.Context, electionID string) ([]domain.VotingToken, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.VotingToken
	for key, t := range s.db.tokens {
		if key.electionID == electionID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Digest < out[j].Digest })
	return out, nil
}

type eligibilityAudit struct{ db *EligibilityDB }

func (s eligibilityAudit) Append(_ context.Context, event *domain.AuditEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.audit = append(s.db.audit, *event)
	return nil
}

func (s eligibilityAudit) ListByElection(_ context.Context, electionID string) ([]domain.AuditEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return filterAudit(s.db.audit, electionID), nil
}

func cloneElection(e domain.Election) domain.Election {
	e.Answers = append([]domain.Answer(nil), e.Answers...)
	e.EligibleRoles = append([]string(nil), e.EligibleRoles...)
	return e
}

func containsStatus(statuses []domain.ElectionStatus, status domain.ElectionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func filterAudit(events []domain.AuditEvent, electionID string) []domain.AuditEvent {
	var out []domain.AuditEvent
	for _, e := range events {
		if e.ElectionID == electionID {
			out = append(out, e)
		}
	}
	return out
}
