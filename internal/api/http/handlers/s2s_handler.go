package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ballotbox/election-service/internal/api/dto"
	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/service"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// S2S responses are bare JSON objects, without the "data" envelope, so the
// peer client can decode them directly.

// BallotPeerHandler serves the ballot authority's S2S surface.
type BallotPeerHandler struct {
	elections *service.BallotElectionService
	results   *service.ResultsService
}

func NewBallotPeerHandler(elections *service.BallotElectionService, results *service.ResultsService) *BallotPeerHandler {
	return &BallotPeerHandler{elections: elections, results: results}
}

// SyncElection PUT /s2s/elections/:id.
func (h *BallotPeerHandler) SyncElection(c *fiber.Ctx) error {
	var election domain.BallotElection
	if err := c.BodyParser(&election); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if election.ID != c.Params("id") {
		return apperrors.NewValidationError("election id mismatch", nil)
	}
	if err := h.elections.Sync(c.UserContext(), election); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CloseElection POST /s2s/elections/:id/close.
func (h *BallotPeerHandler) CloseElection(c *fiber.Ctx) error {
	var req dto.CloseElectionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.elections.Close(c.UserContext(), c.Params("id"), req.Actor, req.ClosedAt); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RegisterToken POST /s2s/tokens.
func (h *BallotPeerHandler) RegisterToken(c *fiber.Ctx) error {
	var reg domain.TokenRegistration
	if err := c.BodyParser(&reg); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.elections.RegisterToken(c.UserContext(), reg); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusCreated)
}

// TokenState GET /s2s/tokens/:digest.
func (h *BallotPeerHandler) TokenState(c *fiber.Ctx) error {
	state, err := h.elections.TokenState(c.UserContext(), c.Params("digest"))
	if err != nil {
		return err
	}
	return c.JSON(state)
}

// Results GET /s2s/elections/:id/results.
func (h *BallotPeerHandler) Results(c *fiber.Ctx) error {
	results, err := h.results.Tabulate(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(results)
}

// Ledger GET /s2s/elections/:id/audit.
func (h *BallotPeerHandler) Ledger(c *fiber.Ctx) error {
	ledger, err := h.elections.Ledger(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ledger)
}

// EligibilityPeerHandler serves the eligibility authority's S2S surface.
type EligibilityPeerHandler struct {
	issuance *service.IssuanceService
}

func NewEligibilityPeerHandler(issuance *service.IssuanceService) *EligibilityPeerHandler {
	return &EligibilityPeerHandler{issuance: issuance}
}

// MarkUsed POST /s2s/tokens/used.
func (h *EligibilityPeerHandler) MarkUsed(c *fiber.Ctx) error {
	var req dto.NotifyUsedRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	changed, err := h.issuance.MarkUsed(c.UserContext(), req.Digest)
	if err != nil {
		return err
	}
	return c.JSON(dto.NotifyUsedResponse{Changed: changed})
}
