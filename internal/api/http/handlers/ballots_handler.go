package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ballotbox/election-service/internal/api/dto"
	"github.com/ballotbox/election-service/internal/service"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// BallotsHandler is the ballot authority's public endpoint. It never sees a
// member identity; the token is the only credential.
type BallotsHandler struct {
	recorder *service.VoteRecorder
}

// NewBallotsHandler constructs handler.
func NewBallotsHandler(recorder *service.VoteRecorder) *BallotsHandler {
	return &BallotsHandler{recorder: recorder}
}

// Cast POST /ballots.
func (h *BallotsHandler) Cast(c *fiber.Ctx) error {
	var req dto.CastBallotRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Token == "" {
		return apperrors.NewValidationError("token required", nil)
	}
	ballotID, err := h.recorder.CastBallot(c.UserContext(), req.Token, req.Content)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.CastBallotResponse{BallotID: ballotID}})
}
