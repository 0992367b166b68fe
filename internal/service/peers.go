package service

import (
	"context"
	"errors"
	"time"

	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/s2s"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// BallotAuthority is what the eligibility side needs from its peer.
type BallotAuthority interface {
	SyncElection(ctx context.Context, election domain.BallotElection) error
	CloseElection(ctx context.Context, electionID, actor string, closedAt time.Time) error
	RegisterToken(ctx context.Context, reg domain.TokenRegistration) error
	TokenState(ctx context.Context, digest string) (*domain.RedemptionState, error)
	FetchResults(ctx context.Context, electionID string) (*domain.ElectionResults, error)
	FetchLedger(ctx context.Context, electionID string) (*domain.LedgerExport, error)
}

// UsedNotifier reports redeemed digests back to the eligibility side.
type UsedNotifier interface {
	NotifyUsed(ctx context.Context, digest, electionID string) error
}

// Clock is injectable so window and expiry logic can be tested.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// PeerErrorCode returns the error code a peer call failed with, whether the
// peer was reached over HTTP or called in-process.
func PeerErrorCode(err error) string {
	if code := s2s.RemoteCode(err); code != "" {
		return code
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}
