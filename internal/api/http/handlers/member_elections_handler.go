package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ballotbox/election-service/internal/api/dto"
	"github.com/ballotbox/election-service/internal/auth"
	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/service"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// MemberElectionsHandler serves authenticated members.
type MemberElectionsHandler struct {
	elections *service.ElectionService
	issuance  *service.IssuanceService
}

// NewMemberElectionsHandler constructs handler.
func NewMemberElectionsHandler(elections *service.ElectionService, issuance *service.IssuanceService) *MemberElectionsHandler {
	return &MemberElectionsHandler{elections: elections, issuance: issuance}
}

// List GET /elections.
func (h *MemberElectionsHandler) List(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	elections, err := h.elections.ListForMember(c.UserContext(), *caller)
	if err != nil {
		return err
	}
	items := make([]dto.MemberElectionResponse, 0, len(elections))
	for _, me := range elections {
		e := me.Election
		items = append(items, dto.MemberElectionResponse{
			ID:            e.ID,
			Title:         e.Title,
			Description:   e.Description,
			Question:      e.Question,
			VotingMethod:  e.VotingMethod,
			MaxSelections: e.EffectiveMaxSelections(),
			SeatsToFill:   e.SeatsToFill,
			Status:        e.Status,
			VotingStart:   e.VotingStart,
			VotingEnd:     e.VotingEnd,
			Answers:       e.Answers,
			Eligible:      me.Eligibility.Eligible,
			Ineligibility: me.Eligibility.Reason,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// RequestToken POST /elections/:id/token. The raw token is in this response
// and nowhere else.
func (h *MemberElectionsHandler) RequestToken(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	issued, err := h.issuance.RequestToken(c.UserContext(), c.Params("id"), *caller)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.TokenResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt}})
}

// Status GET /elections/:id/status.
func (h *MemberElectionsHandler) Status(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	status, err := h.issuance.TokenStatus(c.UserContext(), c.Params("id"), caller.MemberRef)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": status})
}

func callerOf(c *fiber.Ctx) (*domain.CallerAttributes, error) {
	caller, ok := auth.PrincipalFromContext(c)
	if !ok || caller.MemberRef == "" {
		return nil, apperrors.NewUnauthorized("member required")
	}
	return caller, nil
}
