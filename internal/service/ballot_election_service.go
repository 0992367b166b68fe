package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ballotbox/election-service/internal/credential"
	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/observability"
	"github.com/ballotbox/election-service/internal/repository"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// BallotElectionService is the ballot side's half of the lifecycle: it takes
// definitions, closures and digest registrations from the eligibility side.
type BallotElectionService struct {
	elections repository.BallotElectionRepository
	tokens    repository.RegisteredTokenRepository
	ballots   repository.BallotRepository
	audit     repository.AuditRepository
	logger    *zap.Logger
	clock     Clock
}

// BallotElectionDependencies bundles collaborators.
type BallotElectionDependencies struct {
	ElectionRepo repository.BallotElectionRepository
	TokenRepo    repository.RegisteredTokenRepository
	BallotRepo   repository.BallotRepository
	AuditRepo    repository.AuditRepository
	Logger       *zap.Logger
	Clock        Clock
}

// NewBallotElectionService constructs the service.
func NewBallotElectionService(deps BallotElectionDependencies) *BallotElectionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BallotElectionService{
		elections: deps.ElectionRepo,
		tokens:    deps.TokenRepo,
		ballots:   deps.BallotRepo,
		audit:     deps.AuditRepo,
		logger:    logger,
		clock:     deps.Clock,
	}
}

// Sync stores a published definition pushed by the eligibility side.
func (s *BallotElectionService) Sync(ctx context.Context, election domain.BallotElection) error {
	problems := map[string]any{}
	if election.ID == "" {
		problems["id"] = "required"
	}
	if !election.VotingMethod.Valid() {
		problems["voting_method"] = "unsupported"
	}
	if len(election.Answers) == 0 {
		problems["answers"] = "required"
	}
	if !election.VotingStart.Before(election.VotingEnd) {
		problems["voting_window"] = "start must be before end"
	}
	if election.VotingMethod == domain.VotingMethodMultiChoice && election.MaxSelections < 1 {
		problems["max_selections"] = "must be at least 1"
	}
	if election.VotingMethod == domain.VotingMethodRankedChoice && election.SeatsToFill < 1 {
		problems["seats_to_fill"] = "must be at least 1"
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid election definition", problems)
	}

	err := s.elections.Upsert(ctx, &election)
	if errors.Is(err, repository.ErrElectionClosed) {
		return apperrors.NewElectionNotOpen("election already closed")
	}
	if err != nil {
		return err
	}
	s.logger.Info("election definition synced", zap.String("election_id", election.ID))
	return nil
}

// Close stops redemptions. Repeated calls are no-ops.
func (s *BallotElectionService) Close(ctx context.Context, electionID, actor string, closedAt time.Time) error {
	if closedAt.IsZero() {
		closedAt = s.clock.now()
	}
	changed, err := s.elections.Close(ctx, electionID, closedAt)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("election", nil)
	}
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if actor == "" {
		actor = domain.ActorSystem
	}
	event := &domain.AuditEvent{
		ID:         uuid.NewString(),
		ElectionID: electionID,
		Type:       domain.AuditElectionClosed,
		Actor:      actor,
		OccurredAt: closedAt,
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.Error("audit append failed", zap.String("election_id", electionID), zap.Error(err))
		return err
	}
	s.logger.Info("election closed for voting", zap.String("election_id", electionID), zap.String("actor", actor))
	return nil
}

// RegisterToken records a digest. No member attribute ever arrives here.
func (s *BallotElectionService) RegisterToken(ctx context.Context, reg domain.TokenRegistration) error {
	if !credential.ValidDigest(reg.Digest) {
		return apperrors.NewValidationError("malformed digest", nil)
	}
	if reg.ElectionID == "" || reg.ExpiresAt.IsZero() {
		return apperrors.NewValidationError("election_id and expires_at required", nil)
	}
	now := s.clock.now()
	token := &domain.RegisteredToken{
		Digest:       reg.Digest,
		ElectionID:   reg.ElectionID,
		ExpiresAt:    reg.ExpiresAt.UTC(),
		RegisteredAt: now,
	}
	event := &domain.AuditEvent{
		ID:         uuid.NewString(),
		ElectionID: reg.ElectionID,
		Type:       domain.AuditRegistered,
		Digest:     reg.Digest,
		Actor:      domain.ActorSystem,
		OccurredAt: now,
	}
	err := s.tokens.Register(ctx, token, event)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("election", nil)
	case errors.Is(err, repository.ErrElectionNotOpen):
		return apperrors.NewElectionNotOpen("election is not accepting registrations")
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConflict("digest registered for another election", nil)
	case err != nil:
		return err
	}
	s.logger.Debug("digest registered", zap.String("election_id", reg.ElectionID), observability.Digest(reg.Digest))
	return nil
}

// TokenState reports whether a registered digest was redeemed or has expired.
// Expiry is judged by this side's clock, the one redemption checks against.
func (s *BallotElectionService) TokenState(ctx context.Context, digest string) (*domain.RedemptionState, error) {
	if !credential.ValidDigest(digest) {
		return nil, apperrors.NewValidationError("malformed digest", nil)
	}
	token, err := s.tokens.GetByDigest(ctx, digest)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInvalidToken()
	}
	if err != nil {
		return nil, err
	}
	return &domain.RedemptionState{
		Redeemed: token.Redeemed,
		Expired:  !s.clock.now().Before(token.ExpiresAt),
	}, nil
}

// Ledger exports registered digests and audit events for reconciliation.
func (s *BallotElectionService) Ledger(ctx context.Context, electionID string) (*domain.LedgerExport, error) {
	if _, err := s.elections.GetByID(ctx, electionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("election", nil)
		}
		return nil, err
	}
	tokens, err := s.tokens.ListByElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	events, err := s.audit.ListByElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	count, err := s.ballots.CountByElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	export := &domain.LedgerExport{
		ElectionID:  electionID,
		Tokens:      make([]domain.RegisteredTokenView, 0, len(tokens)),
		Events:      events,
		BallotCount: count,
	}
	for _, t := range tokens {
		export.Tokens = append(export.Tokens, domain.RegisteredTokenView{Digest: t.Digest, ExpiresAt: t.ExpiresAt, Redeemed: t.Redeemed})
	}
	if export.Events == nil {
		export.Events = []domain.AuditEvent{}
	}
	return export, nil
}
