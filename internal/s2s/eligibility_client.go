package s2s

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ballotbox/election-service/internal/api/dto"
)

// EligibilityClient is the ballot authority's view of the eligibility authority.
type EligibilityClient struct {
	*Client
}

func NewEligibilityClient(c *Client) *EligibilityClient {
	return &EligibilityClient{Client: c}
}

// NotifyUsed reports a redeemed digest. Idempotent, so retried.
func (c *EligibilityClient) NotifyUsed(ctx context.Context, digest, electionID string) error {
	body := dto.NotifyUsedRequest{Digest: digest, ElectionID: electionID}
	return c.do(ctx, call{method: fiber.MethodPost, path: "/s2s/tokens/used", body: body, out: &dto.NotifyUsedResponse{}, retry: true})
}
