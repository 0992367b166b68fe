package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ballotbox/election-service/internal/events"
	"github.com/ballotbox/election-service/internal/observability"
	"github.com/ballotbox/election-service/internal/outbox"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// NotificationService turns domain events into outbound work. On the ballot
// side a redeemed token becomes a notify-used job; everything else is logged.
type NotificationService struct {
	dispatcher events.Dispatcher
	queue      outbox.Queue
	logger     *zap.Logger
}

// NewNotificationService creates the service. queue may be nil on the
// eligibility side, which has nothing to forward.
func NewNotificationService(dispatcher events.Dispatcher, queue outbox.Queue, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		queue:      queue,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventElectionPublished, n.handleElectionPublished)
	n.dispatcher.Subscribe(events.EventElectionClosed, n.handleElectionClosed)
	n.dispatcher.Subscribe(events.EventTokenIssued, n.handleTokenIssued)
	n.dispatcher.Subscribe(events.EventTokenRedeemed, n.handleTokenRedeemed)
}

func (n *NotificationService) handleElectionPublished(_ context.Context, event events.Event) error {
	n.logger.Info("ElectionPublished", zap.String("election_id", event.ElectionID), zap.String("actor", event.Actor))
	return nil
}

func (n *NotificationService) handleElectionClosed(_ context.Context, event events.Event) error {
	n.logger.Info("ElectionClosed", zap.String("election_id", event.ElectionID), zap.String("actor", event.Actor))
	return nil
}

func (n *NotificationService) handleTokenIssued(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TokenIssuedPayload)
	if !ok {
		return nil
	}
	n.logger.Debug("TokenIssued", zap.String("election_id", event.ElectionID), observability.Digest(payload.Digest))
	return nil
}

func (n *NotificationService) handleTokenRedeemed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TokenRedeemedPayload)
	if !ok || n.queue == nil {
		return nil
	}
	job := outbox.Job{Digest: payload.Digest, ElectionID: event.ElectionID}
	if err := n.queue.Enqueue(ctx, job); err != nil {
		// The ballot is already stored; reconciliation repairs the missed flag.
		return apperrors.NewReconciliationFailed(err)
	}
	return nil
}
