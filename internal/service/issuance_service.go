package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ballotbox/election-service/internal/credential"
	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/events"
	"github.com/ballotbox/election-service/internal/observability"
	"github.com/ballotbox/election-service/internal/ratelimit"
	"github.com/ballotbox/election-service/internal/repository"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// TokenRegistrar is the part of the ballot side issuance depends on.
type TokenRegistrar interface {
	RegisterToken(ctx context.Context, reg domain.TokenRegistration) error
	TokenState(ctx context.Context, digest string) (*domain.RedemptionState, error)
}

// IssuedToken is returned to the member exactly once.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// IssuanceService mints voting tokens. The raw token exists only in the
// response; this side keeps member -> digest, the ballot side keeps digest.
type IssuanceService struct {
	elections      repository.ElectionRepository
	tokens         repository.VotingTokenRepository
	registrar      TokenRegistrar
	limiter        ratelimit.Limiter
	dispatcher     events.Dispatcher
	logger         *zap.Logger
	metrics        *observability.Metrics
	clock          Clock
	tokenTTL       time.Duration
	reservationTTL time.Duration
}

// IssuanceDependencies bundles collaborators for issuance.
type IssuanceDependencies struct {
	ElectionRepo   repository.ElectionRepository
	TokenRepo      repository.VotingTokenRepository
	Registrar      TokenRegistrar
	Limiter        ratelimit.Limiter
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Clock          Clock
	TokenTTL       time.Duration
	ReservationTTL time.Duration
}

// NewIssuanceService constructs the service.
func NewIssuanceService(deps IssuanceDependencies) *IssuanceService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	ttl := deps.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	reservationTTL := deps.ReservationTTL
	if reservationTTL <= 0 {
		reservationTTL = time.Minute
	}
	return &IssuanceService{
		elections:      deps.ElectionRepo,
		tokens:         deps.TokenRepo,
		registrar:      deps.Registrar,
		limiter:        limiter,
		dispatcher:     deps.Dispatcher,
		logger:         logger,
		metrics:        deps.Metrics,
		clock:          deps.Clock,
		tokenTTL:       ttl,
		reservationTTL: reservationTTL,
	}
}

// RequestToken issues a token for caller in electionID.
func (s *IssuanceService) RequestToken(ctx context.Context, electionID string, caller domain.CallerAttributes) (*IssuedToken, error) {
	if caller.MemberRef == "" {
		return nil, apperrors.NewUnauthorized("caller identity required")
	}
	if err := s.checkRate(ctx, caller.MemberRef); err != nil {
		return nil, err
	}

	election, err := s.elections.GetByID(ctx, electionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("election", nil)
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	if !election.AcceptingVotes(now) {
		s.metrics.Inc(observability.MetricTokensRejected)
		return nil, apperrors.NewElectionNotOpen("election is not accepting votes")
	}
	if verdict := EvaluateEligibility(election, caller); !verdict.Eligible {
		s.metrics.Inc(observability.MetricTokensRejected)
		return nil, apperrors.NewNotEligible(verdict.Reason)
	}

	raw, err := credential.Generate()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	expiresAt := now.Add(s.tokenTTL)
	if election.VotingEnd.Before(expiresAt) {
		expiresAt = election.VotingEnd
	}
	token := &domain.VotingToken{
		MemberRef:  caller.MemberRef,
		ElectionID: electionID,
		Digest:     credential.Digest(raw),
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}

	retired, err := s.retireExpired(ctx, electionID, caller.MemberRef, now)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Reserve(ctx, token, now, now.Add(-s.reservationTTL), retired); err != nil {
		if errors.Is(err, repository.ErrAlreadyIssued) {
			s.metrics.Inc(observability.MetricTokensRejected)
			return nil, apperrors.NewAlreadyIssued()
		}
		return nil, err
	}

	reg := domain.TokenRegistration{Digest: token.Digest, ElectionID: electionID, ExpiresAt: expiresAt}
	if err := s.registrar.RegisterToken(ctx, reg); err != nil {
		s.release(ctx, token)
		s.metrics.Inc(observability.MetricRegistrationFailures)
		s.logger.Warn("token registration failed",
			zap.String("election_id", electionID),
			observability.Digest(token.Digest),
			zap.Error(err))
		if PeerErrorCode(err) == apperrors.CodeElectionNotOpen {
			return nil, apperrors.NewElectionNotOpen("election is not accepting votes")
		}
		return nil, apperrors.NewRegistrationFailed(err)
	}

	issued := &domain.AuditEvent{
		ID:         uuid.NewString(),
		ElectionID: electionID,
		Type:       domain.AuditIssued,
		Digest:     token.Digest,
		Actor:      domain.ActorSystem,
		OccurredAt: now,
	}
	if err := s.tokens.Confirm(ctx, token, issued); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.NewConflict("token request superseded; try again", nil)
		}
		return nil, err
	}

	s.metrics.Inc(observability.MetricTokensIssued)
	s.logger.Info("voting token issued", zap.String("election_id", electionID), observability.Digest(token.Digest))
	s.publishIssued(ctx, token)
	return &IssuedToken{Token: raw, ExpiresAt: expiresAt}, nil
}

// retireExpired decides whether the member's expired, locally unused token may
// be replaced. The local used flag trails the ballot side, so the ballot side
// is asked directly; a redeemed digest is marked used here and blocks
// reissue. It returns the digest Reserve may replace, or "" when there is
// nothing to retire.
func (s *IssuanceService) retireExpired(ctx context.Context, electionID, memberRef string, now time.Time) (string, error) {
	existing, err := s.tokens.Get(ctx, electionID, memberRef)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if existing.State != domain.VotingTokenIssued || existing.Used || now.Before(existing.ExpiresAt) {
		return "", nil
	}

	state, err := s.registrar.TokenState(ctx, existing.Digest)
	switch {
	case err != nil && PeerErrorCode(err) == apperrors.CodeInvalidToken:
		// never registered remotely, so it cannot have been redeemed
		return existing.Digest, nil
	case err != nil:
		s.metrics.Inc(observability.MetricRegistrationFailures)
		s.logger.Warn("token state lookup failed",
			zap.String("election_id", electionID),
			observability.Digest(existing.Digest),
			zap.Error(err))
		return "", apperrors.NewRegistrationFailed(err)
	case state.Redeemed:
		if _, err := s.tokens.MarkUsed(ctx, existing.Digest, now); err != nil {
			s.logger.Warn("mark used failed", observability.Digest(existing.Digest), zap.Error(err))
		}
		s.metrics.Inc(observability.MetricTokensRejected)
		return "", apperrors.NewAlreadyIssued()
	case !state.Expired:
		// the ballot side's clock still accepts it
		s.metrics.Inc(observability.MetricTokensRejected)
		return "", apperrors.NewAlreadyIssued()
	}
	return existing.Digest, nil
}

func (s *IssuanceService) publishIssued(ctx context.Context, token *domain.VotingToken) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(context.WithoutCancel(ctx), events.Event{
		ID:         uuid.NewString(),
		Type:       events.EventTokenIssued,
		ElectionID: token.ElectionID,
		Actor:      domain.ActorSystem,
		Timestamp:  token.IssuedAt,
		Payload:    events.TokenIssuedPayload{Digest: token.Digest, ExpiresAt: token.ExpiresAt},
	})
}

// TokenStatus reports the member's own participation from local state only.
func (s *IssuanceService) TokenStatus(ctx context.Context, electionID, memberRef string) (*domain.TokenStatus, error) {
	if _, err := s.elections.GetByID(ctx, electionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("election", nil)
		}
		return nil, err
	}
	token, err := s.tokens.Get(ctx, electionID, memberRef)
	if errors.Is(err, repository.ErrNotFound) {
		return &domain.TokenStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	if token.State != domain.VotingTokenIssued {
		return &domain.TokenStatus{}, nil
	}
	expires := token.ExpiresAt
	return &domain.TokenStatus{TokenIssued: true, Voted: token.Used, ExpiresAt: &expires}, nil
}

// MarkUsed records a redemption reported by the ballot side. It is idempotent.
func (s *IssuanceService) MarkUsed(ctx context.Context, digest string) (bool, error) {
	if !credential.ValidDigest(digest) {
		return false, apperrors.NewValidationError("malformed digest", nil)
	}
	changed, err := s.tokens.MarkUsed(ctx, digest, s.clock.now())
	if errors.Is(err, repository.ErrNotFound) {
		return false, apperrors.NewInvalidToken()
	}
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *IssuanceService) checkRate(ctx context.Context, memberRef string) error {
	decision, err := s.limiter.Allow(ctx, memberRef)
	if err != nil {
		// fail open
		s.logger.Warn("rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !decision.Allowed {
		s.metrics.Inc(observability.MetricTokensRejected)
		return apperrors.NewRateLimited(int(math.Ceil(decision.RetryAfter.Seconds())))
	}
	return nil
}

func (s *IssuanceService) release(ctx context.Context, token *domain.VotingToken) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.tokens.Release(ctx, token.MemberRef, token.ElectionID, token.Digest); err != nil {
		// the reservation goes stale on its own
		s.logger.Warn("release reservation failed", zap.String("election_id", token.ElectionID), zap.Error(err))
	}
}
