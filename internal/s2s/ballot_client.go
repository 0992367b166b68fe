package s2s

import (
	"context"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ballotbox/election-service/internal/api/dto"
	"github.com/ballotbox/election-service/internal/domain"
)

// BallotClient is the eligibility authority's view of the ballot authority.
type BallotClient struct {
	*Client
}

func NewBallotClient(c *Client) *BallotClient {
	return &BallotClient{Client: c}
}

// SyncElection pushes a published definition. Idempotent, so retried.
func (c *BallotClient) SyncElection(ctx context.Context, election domain.BallotElection) error {
	return c.do(ctx, call{method: fiber.MethodPut, path: "/s2s/elections/" + url.PathEscape(election.ID), body: election, retry: true})
}

// CloseElection closes the election on the ballot side. Idempotent, so retried.
func (c *BallotClient) CloseElection(ctx context.Context, electionID, actor string, closedAt time.Time) error {
	body := dto.CloseElectionRequest{ClosedAt: closedAt, Actor: actor}
	return c.do(ctx, call{method: fiber.MethodPost, path: "/s2s/elections/" + url.PathEscape(electionID) + "/close", body: body, retry: true})
}

// RegisterToken sends a digest. It is tried once inside the member's request;
// the member retries on failure.
func (c *BallotClient) RegisterToken(ctx context.Context, reg domain.TokenRegistration) error {
	return c.do(ctx, call{method: fiber.MethodPost, path: "/s2s/tokens", body: reg})
}

// TokenState asks whether a digest was redeemed or has expired.
func (c *BallotClient) TokenState(ctx context.Context, digest string) (*domain.RedemptionState, error) {
	var out domain.RedemptionState
	if err := c.do(ctx, call{method: fiber.MethodGet, path: "/s2s/tokens/" + url.PathEscape(digest), out: &out, retry: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchResults pulls tabulated results of a closed election.
func (c *BallotClient) FetchResults(ctx context.Context, electionID string) (*domain.ElectionResults, error) {
	var out domain.ElectionResults
	if err := c.do(ctx, call{method: fiber.MethodGet, path: "/s2s/elections/" + url.PathEscape(electionID) + "/results", out: &out, retry: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchLedger pulls the ballot side's registered tokens and audit events.
func (c *BallotClient) FetchLedger(ctx context.Context, electionID string) (*domain.LedgerExport, error) {
	var out domain.LedgerExport
	if err := c.do(ctx, call{method: fiber.MethodGet, path: "/s2s/elections/" + url.PathEscape(electionID) + "/audit", out: &out, retry: true}); err != nil {
		return nil, err
	}
	return &out, nil
}
