package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ballotbox/election-service/internal/credential"
	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/events"
	"github.com/ballotbox/election-service/internal/observability"
	"github.com/ballotbox/election-service/internal/repository"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// VoteRecorder redeems tokens for ballots on the ballot side.
type VoteRecorder struct {
	elections  repository.BallotElectionRepository
	tokens     repository.RegisteredTokenRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	clock      Clock
}

// VoteRecorderDependencies bundles collaborators.
type VoteRecorderDependencies struct {
	ElectionRepo repository.BallotElectionRepository
	TokenRepo    repository.RegisteredTokenRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Clock        Clock
}

// NewVoteRecorder constructs the recorder.
func NewVoteRecorder(deps VoteRecorderDependencies) *VoteRecorder {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoteRecorder{
		elections:  deps.ElectionRepo,
		tokens:     deps.TokenRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
	}
}

// CastBallot stores content against rawToken and returns the ballot id. The
// redemption, the ballot and the redeemed audit entry commit together; the
// notification to the eligibility side happens afterwards and never undoes
// the ballot.
func (r *VoteRecorder) CastBallot(ctx context.Context, rawToken string, content domain.BallotContent) (string, error) {
	if !credential.WellFormed(rawToken) {
		return "", r.reject(apperrors.NewInvalidToken())
	}
	digest := credential.Digest(rawToken)
	now := r.clock.now()

	token, err := r.tokens.GetByDigest(ctx, digest)
	if errors.Is(err, repository.ErrNotFound) {
		return "", r.reject(apperrors.NewInvalidToken())
	}
	if err != nil {
		return "", err
	}
	if token.Redeemed {
		r.metrics.Inc(observability.MetricRedemptionConflicts)
		return "", r.reject(apperrors.NewAlreadyUsed())
	}
	if !now.Before(token.ExpiresAt) {
		return "", r.reject(apperrors.NewExpired())
	}

	election, err := r.elections.GetByID(ctx, token.ElectionID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", r.reject(apperrors.NewInvalidToken())
	}
	if err != nil {
		return "", err
	}
	if !election.AcceptingVotes(now) {
		return "", r.reject(apperrors.NewElectionNotOpen("election is not accepting votes"))
	}
	if err := domain.ValidateContent(election, content); err != nil {
		var contentErr *domain.ContentError
		if errors.As(err, &contentErr) {
			return "", r.reject(apperrors.NewInvalidContent(contentErr.Reason, nil))
		}
		return "", err
	}

	ballot := &domain.Ballot{
		ID:         uuid.NewString(),
		ElectionID: election.ID,
		Content:    content,
		CastAt:     now.Truncate(domain.CastAtGranularity),
	}
	redeemed := &domain.AuditEvent{
		ID:         uuid.NewString(),
		ElectionID: election.ID,
		Type:       domain.AuditRedeemed,
		Digest:     digest,
		Actor:      domain.ActorSystem,
		OccurredAt: now,
	}
	err = r.tokens.Redeem(ctx, digest, ballot, redeemed, now)
	switch {
	case errors.Is(err, repository.ErrTokenRedeemed):
		r.metrics.Inc(observability.MetricRedemptionConflicts)
		return "", r.reject(apperrors.NewAlreadyUsed())
	case errors.Is(err, repository.ErrTokenExpired):
		return "", r.reject(apperrors.NewExpired())
	case errors.Is(err, repository.ErrElectionNotOpen):
		return "", r.reject(apperrors.NewElectionNotOpen("election is not accepting votes"))
	case errors.Is(err, repository.ErrNotFound):
		return "", r.reject(apperrors.NewInvalidToken())
	case err != nil:
		return "", err
	}

	r.metrics.Inc(observability.MetricBallotsCast)
	r.logger.Info("token redeemed", zap.String("election_id", election.ID), observability.Digest(digest))

	if r.dispatcher != nil {
		_ = r.dispatcher.Publish(context.WithoutCancel(ctx), events.Event{
			ID:         uuid.NewString(),
			Type:       events.EventTokenRedeemed,
			ElectionID: election.ID,
			Actor:      domain.ActorSystem,
			Timestamp:  now,
			Payload:    events.TokenRedeemedPayload{Digest: digest},
		})
	}
	return ballot.ID, nil
}

func (r *VoteRecorder) reject(err error) error {
	r.metrics.Inc(observability.MetricBallotsRejected)
	return err
}
