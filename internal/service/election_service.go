package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ballotbox/election-service/internal/cache"
	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/events"
	"github.com/ballotbox/election-service/internal/observability"
	"github.com/ballotbox/election-service/internal/repository"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// ElectionService owns the election lifecycle on the eligibility side.
type ElectionService struct {
	elections  repository.ElectionRepository
	audit      repository.AuditRepository
	ballot     BallotAuthority
	results    cache.ResultsCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	clock      Clock
}

// ElectionDependencies bundles collaborators for the election service.
type ElectionDependencies struct {
	ElectionRepo repository.ElectionRepository
	AuditRepo    repository.AuditRepository
	Ballot       BallotAuthority
	ResultsCache cache.ResultsCache
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Clock        Clock
}

// ElectionInput describes a new election.
type ElectionInput struct {
	Title         string
	Description   string
	Question      string
	VotingMethod  domain.VotingMethod
	MaxSelections int
	SeatsToFill   int
	VotingStart   time.Time
	VotingEnd     time.Time
	Answers       []domain.Answer
	EligibleRoles []string
}

// ElectionPatch lists optional edits. Title and description may change while
// published; everything else only in draft.
type ElectionPatch struct {
	Title         *string
	Description   *string
	Question      *string
	MaxSelections *int
	SeatsToFill   *int
	VotingStart   *time.Time
	VotingEnd     *time.Time
	EligibleRoles *[]string
}

func (p ElectionPatch) touchesDefinition() bool {
	return p.Question != nil || p.MaxSelections != nil || p.SeatsToFill != nil ||
		p.VotingStart != nil || p.VotingEnd != nil || p.EligibleRoles != nil
}

// MemberElection is an election as a particular member sees it.
type MemberElection struct {
	Election    domain.Election
	Eligibility Eligibility
}

// NewElectionService constructs the service.
func NewElectionService(deps ElectionDependencies) *ElectionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	results := deps.ResultsCache
	if results == nil {
		results = cache.NewMemoryResultsCache()
	}
	return &ElectionService{
		elections:  deps.ElectionRepo,
		audit:      deps.AuditRepo,
		ballot:     deps.Ballot,
		results:    results,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
	}
}

// Create stores a new draft election.
func (s *ElectionService) Create(ctx context.Context, actor string, input ElectionInput) (*domain.Election, error) {
	problems := map[string]any{}
	if strings.TrimSpace(input.Title) == "" {
		problems["title"] = "required"
	}
	if strings.TrimSpace(input.Question) == "" {
		problems["question"] = "required"
	}
	if !input.VotingMethod.Valid() {
		problems["voting_method"] = "unsupported"
	}
	if input.VotingStart.IsZero() || input.VotingEnd.IsZero() || !input.VotingStart.Before(input.VotingEnd) {
		problems["voting_window"] = "start must be before end"
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidationError("invalid election", problems)
	}

	election := &domain.Election{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(input.Title),
		Description:   input.Description,
		Question:      strings.TrimSpace(input.Question),
		VotingMethod:  input.VotingMethod,
		MaxSelections: input.MaxSelections,
		SeatsToFill:   input.SeatsToFill,
		Status:        domain.ElectionStatusDraft,
		VotingStart:   input.VotingStart.UTC(),
		VotingEnd:     input.VotingEnd.UTC(),
		Answers:       normalizeAnswers(input.Answers),
		EligibleRoles: input.EligibleRoles,
		CreatedBy:     actor,
	}
	if election.VotingMethod == domain.VotingMethodSingleChoice {
		election.MaxSelections = 1
	}
	if election.VotingMethod == domain.VotingMethodRankedChoice && election.SeatsToFill == 0 {
		election.SeatsToFill = 1
	}
	if err := s.elections.Create(ctx, election); err != nil {
		return nil, err
	}
	s.logger.Info("election created", zap.String("election_id", election.ID), zap.String("actor", actor))
	return election, nil
}

// UpdateMetadata applies patch subject to the status rules.
func (s *ElectionService) UpdateMetadata(ctx context.Context, id string, patch ElectionPatch) (*domain.Election, error) {
	election, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch election.Status {
	case domain.ElectionStatusDraft:
	case domain.ElectionStatusPublished:
		if patch.touchesDefinition() {
			return nil, apperrors.NewConflict("only title and description may change once published", nil)
		}
	default:
		return nil, apperrors.NewConflict("closed elections cannot be edited", nil)
	}

	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return nil, apperrors.NewValidationError("invalid election", map[string]any{"title": "required"})
		}
		election.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		election.Description = *patch.Description
	}
	if patch.Question != nil {
		election.Question = strings.TrimSpace(*patch.Question)
	}
	if patch.MaxSelections != nil {
		election.MaxSelections = *patch.MaxSelections
	}
	if patch.SeatsToFill != nil {
		election.SeatsToFill = *patch.SeatsToFill
	}
	if patch.VotingStart != nil {
		election.VotingStart = patch.VotingStart.UTC()
	}
	if patch.VotingEnd != nil {
		election.VotingEnd = patch.VotingEnd.UTC()
	}
	if patch.EligibleRoles != nil {
		election.EligibleRoles = *patch.EligibleRoles
	}
	if !election.VotingStart.Before(election.VotingEnd) {
		return nil, apperrors.NewValidationError("invalid election", map[string]any{"voting_window": "start must be before end"})
	}

	if err := s.elections.Update(ctx, election, election.Status); err != nil {
		return nil, s.storeError(err)
	}
	return election, nil
}

// ReplaceAnswers swaps the answer set. Answers are frozen once published.
func (s *ElectionService) ReplaceAnswers(ctx context.Context, id string, answers []domain.Answer) (*domain.Election, error) {
	election, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if election.Status != domain.ElectionStatusDraft {
		return nil, apperrors.NewConflict("answers are frozen once an election is published", nil)
	}
	election.Answers = normalizeAnswers(answers)
	if err := s.elections.Update(ctx, election, domain.ElectionStatusDraft); err != nil {
		return nil, s.storeError(err)
	}
	return election, nil
}

// Publish opens a draft. The ballot side receives the definition first so it
// can accept registrations as soon as the election is visible here.
func (s *ElectionService) Publish(ctx context.Context, actor, id string) (*domain.Election, error) {
	election, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(election.Status, domain.ElectionStatusPublished) {
		return nil, apperrors.NewConflict("only draft elections can be published", map[string]any{"status": election.Status})
	}
	now := s.clock.now()
	problems := election.ValidateDefinition()
	if len(problems) == 0 && !election.VotingEnd.After(now) {
		problems["voting_window"] = "voting window has already ended"
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidationError("election cannot be published", problems)
	}

	projected := *election
	projected.Status = domain.ElectionStatusPublished
	if err := s.ballot.SyncElection(ctx, domain.BallotElectionFrom(&projected)); err != nil {
		s.logger.Warn("publish sync failed", zap.String("election_id", id), zap.Error(err))
		return nil, apperrors.NewReconciliationFailed(err)
	}

	if err := s.elections.Transition(ctx, id, domain.ElectionStatusDraft, domain.ElectionStatusPublished, now); err != nil {
		return nil, s.storeError(err)
	}
	election.Status = domain.ElectionStatusPublished
	election.PublishedAt = &now

	s.publish(ctx, events.EventElectionPublished, id, actor, nil)
	s.logger.Info("election published", zap.String("election_id", id), zap.String("actor", actor))
	return election, nil
}

// Close ends voting. The ballot side closes first so no redemption can land
// after tabulation starts; then the local status flips and the closure is
// recorded. Closing an already closed election is a no-op.
func (s *ElectionService) Close(ctx context.Context, actor, id string) (*domain.Election, error) {
	election, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if election.Status == domain.ElectionStatusClosed {
		return election, nil
	}
	if !domain.CanTransition(election.Status, domain.ElectionStatusClosed) {
		return nil, apperrors.NewConflict("only published elections can be closed", map[string]any{"status": election.Status})
	}

	now := s.clock.now()
	if err := s.ballot.CloseElection(ctx, id, actor, now); err != nil {
		s.logger.Warn("close sync failed", zap.String("election_id", id), zap.Error(err))
		return nil, apperrors.NewReconciliationFailed(err)
	}

	err = s.elections.Transition(ctx, id, domain.ElectionStatusPublished, domain.ElectionStatusClosed, now)
	if errors.Is(err, repository.ErrConflict) {
		// lost the race with another closer
		return s.Get(ctx, id)
	}
	if err != nil {
		return nil, s.storeError(err)
	}
	election.Status = domain.ElectionStatusClosed
	election.ClosedAt = &now

	event := &domain.AuditEvent{
		ID:         uuid.NewString(),
		ElectionID: id,
		Type:       domain.AuditElectionClosed,
		Actor:      actor,
		OccurredAt: now,
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.Error("audit append failed", zap.String("election_id", id), zap.Error(err))
		return nil, apperrors.NewInternalError(err)
	}

	s.metrics.Inc(observability.MetricElectionsClosed)
	s.publish(ctx, events.EventElectionClosed, id, actor, events.ElectionClosedPayload{ClosedAt: now})
	s.logger.Info("election closed", zap.String("election_id", id), zap.String("actor", actor))
	return election, nil
}

// CloseDue closes every published election whose window has ended.
func (s *ElectionService) CloseDue(ctx context.Context) (int, error) {
	due, err := s.elections.ListDueForClosure(ctx, s.clock.now())
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, e := range due {
		if _, err := s.Close(ctx, domain.ActorSystem, e.ID); err != nil {
			s.logger.Warn("automatic close failed", zap.String("election_id", e.ID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

// SetHidden toggles the soft-delete flag. It never affects voting.
func (s *ElectionService) SetHidden(ctx context.Context, id string, hidden bool) (*domain.Election, error) {
	if err := s.elections.SetHidden(ctx, id, hidden); err != nil {
		return nil, s.storeError(err)
	}
	return s.Get(ctx, id)
}

// Get loads an election.
func (s *ElectionService) Get(ctx context.Context, id string) (*domain.Election, error) {
	election, err := s.elections.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError(err)
	}
	return election, nil
}

// List returns elections for administrators.
func (s *ElectionService) List(ctx context.Context, filter repository.ElectionFilter) ([]domain.Election, error) {
	return s.elections.List(ctx, filter)
}

// ListForMember returns visible, non-draft elections with the caller's eligibility.
func (s *ElectionService) ListForMember(ctx context.Context, caller domain.CallerAttributes) ([]MemberElection, error) {
	elections, err := s.elections.List(ctx, repository.ElectionFilter{
		Statuses: []domain.ElectionStatus{domain.ElectionStatusPublished, domain.ElectionStatusClosed},
	})
	if err != nil {
		return nil, err
	}
	out := make([]MemberElection, 0, len(elections))
	for i := range elections {
		out = append(out, MemberElection{Election: elections[i], Eligibility: EvaluateEligibility(&elections[i], caller)})
	}
	return out, nil
}

// Results returns tabulated results once the election is closed.
func (s *ElectionService) Results(ctx context.Context, id string) (*domain.ElectionResults, error) {
	election, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if election.Status != domain.ElectionStatusClosed {
		return nil, apperrors.NewElectionNotOpen("results are available once the election is closed")
	}
	if cached, ok := s.results.Get(ctx, id); ok {
		return cached, nil
	}
	results, err := s.ballot.FetchResults(ctx, id)
	if err != nil {
		return nil, apperrors.NewReconciliationFailed(err)
	}
	s.results.Set(ctx, results)
	return results, nil
}

func (s *ElectionService) publish(ctx context.Context, eventType events.EventType, electionID, actor string, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ElectionID: electionID,
		Actor:      actor,
		Timestamp:  s.clock.now(),
		Payload:    payload,
	})
}

func (s *ElectionService) storeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("election", nil)
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConflict("election changed concurrently; reload and retry", nil)
	default:
		return err
	}
}

// normalizeAnswers fills missing ids and renumbers display order densely.
func normalizeAnswers(in []domain.Answer) []domain.Answer {
	out := make([]domain.Answer, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	for i := range out {
		out[i].Text = strings.TrimSpace(out[i].Text)
		if strings.TrimSpace(out[i].ID) == "" {
			out[i].ID = uuid.NewString()
		}
		out[i].DisplayOrder = i + 1
	}
	return out
}
