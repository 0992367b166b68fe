package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ballotbox/election-service/internal/api/dto"
	"github.com/ballotbox/election-service/internal/auth"
	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/repository"
	"github.com/ballotbox/election-service/internal/service"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// ElectionsAdminHandler serves the administrator endpoints.
type ElectionsAdminHandler struct {
	elections *service.ElectionService
	reconcile *service.ReconciliationService
}

// NewElectionsAdminHandler constructs handler.
func NewElectionsAdminHandler(elections *service.ElectionService, reconcile *service.ReconciliationService) *ElectionsAdminHandler {
	return &ElectionsAdminHandler{elections: elections, reconcile: reconcile}
}

// Create POST /admin/elections.
func (h *ElectionsAdminHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateElectionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.ElectionInput{
		Title:         req.Title,
		Description:   req.Description,
		Question:      req.Question,
		VotingMethod:  req.VotingMethod,
		MaxSelections: req.MaxSelections,
		SeatsToFill:   req.SeatsToFill,
		VotingStart:   req.VotingStart,
		VotingEnd:     req.VotingEnd,
		Answers:       toAnswers(req.Answers),
		EligibleRoles: req.EligibleRoles,
	}
	election, err := h.elections.Create(c.UserContext(), actorOf(c), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ToElectionResponse(election)})
}

// List GET /admin/elections.
func (h *ElectionsAdminHandler) List(c *fiber.Ctx) error {
	filter := repository.ElectionFilter{
		IncludeHidden: c.QueryBool("include_hidden", false),
		Limit:         queryInt(c, "limit", 50),
		Offset:        queryInt(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.ElectionStatus(strings.TrimSpace(s)))
		}
	}
	elections, err := h.elections.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.ElectionResponse, 0, len(elections))
	for i := range elections {
		items = append(items, dto.ToElectionResponse(&elections[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /admin/elections/:id.
func (h *ElectionsAdminHandler) Get(c *fiber.Ctx) error {
	election, err := h.elections.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToElectionResponse(election)})
}

// Update PATCH /admin/elections/:id.
func (h *ElectionsAdminHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateElectionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	patch := service.ElectionPatch{
		Title:         req.Title,
		Description:   req.Description,
		Question:      req.Question,
		MaxSelections: req.MaxSelections,
		SeatsToFill:   req.SeatsToFill,
		VotingStart:   req.VotingStart,
		VotingEnd:     req.VotingEnd,
		EligibleRoles: req.EligibleRoles,
	}
	election, err := h.elections.UpdateMetadata(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToElectionResponse(election)})
}

// ReplaceAnswers PUT /admin/elections/:id/answers.
func (h *ElectionsAdminHandler) ReplaceAnswers(c *fiber.Ctx) error {
	var req dto.ReplaceAnswersRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	election, err := h.elections.ReplaceAnswers(c.UserContext(), c.Params("id"), toAnswers(req.Answers))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToElectionResponse(election)})
}

// Publish POST /admin/elections/:id/publish.
func (h *ElectionsAdminHandler) Publish(c *fiber.Ctx) error {
	election, err := h.elections.Publish(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToElectionResponse(election)})
}

// Close POST /admin/elections/:id/close.
func (h *ElectionsAdminHandler) Close(c *fiber.Ctx) error {
	election, err := h.elections.Close(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToElectionResponse(election)})
}

// Hide POST /admin/elections/:id/hide.
func (h *ElectionsAdminHandler) Hide(c *fiber.Ctx) error {
	return h.setHidden(c, true)
}

// Unhide POST /admin/elections/:id/unhide.
func (h *ElectionsAdminHandler) Unhide(c *fiber.Ctx) error {
	return h.setHidden(c, false)
}

func (h *ElectionsAdminHandler) setHidden(c *fiber.Ctx, hidden bool) error {
	election, err := h.elections.SetHidden(c.UserContext(), c.Params("id"), hidden)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToElectionResponse(election)})
}

// Results GET /admin/elections/:id/results.
func (h *ElectionsAdminHandler) Results(c *fiber.Ctx) error {
	results, err := h.elections.Results(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": results})
}

// Reconcile GET /admin/elections/:id/reconciliation?repair=true.
func (h *ElectionsAdminHandler) Reconcile(c *fiber.Ctx) error {
	report, err := h.reconcile.Reconcile(c.UserContext(), c.Params("id"), c.QueryBool("repair", false))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

func toAnswers(in []dto.AnswerInput) []domain.Answer {
	out := make([]domain.Answer, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Answer{ID: a.ID, Text: a.Text, DisplayOrder: a.DisplayOrder})
	}
	return out
}

func actorOf(c *fiber.Ctx) string {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.ActorSystem
	}
	return principal.MemberRef
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
