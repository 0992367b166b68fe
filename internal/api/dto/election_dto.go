package dto

import (
	"time"

	"github.com/ballotbox/election-service/internal/domain"
)

// AnswerInput is one answer in a create or replace request.
type AnswerInput struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	DisplayOrder int    `json:"display_order"`
}

// CreateElectionRequest payload.
type CreateElectionRequest struct {
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Question      string              `json:"question"`
	VotingMethod  domain.VotingMethod `json:"voting_method"`
	MaxSelections int                 `json:"max_selections"`
	SeatsToFill   int                 `json:"seats_to_fill"`
	VotingStart   time.Time           `json:"voting_start"`
	VotingEnd     time.Time           `json:"voting_end"`
	Answers       []AnswerInput       `json:"answers"`
	EligibleRoles []string            `json:"eligible_roles"`
}

// UpdateElectionRequest payload. Absent fields are left unchanged.
type UpdateElectionRequest struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	Question      *string    `json:"question"`
	MaxSelections *int       `json:"max_selections"`
	SeatsToFill   *int       `json:"seats_to_fill"`
	VotingStart   *time.Time `json:"voting_start"`
	VotingEnd     *time.Time `json:"voting_end"`
	EligibleRoles *[]string  `json:"eligible_roles"`
}

// ReplaceAnswersRequest payload.
type ReplaceAnswersRequest struct {
	Answers []AnswerInput `json:"answers"`
}

// ElectionResponse is the administrator view.
type ElectionResponse struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Question      string                `json:"question"`
	VotingMethod  domain.VotingMethod   `json:"voting_method"`
	MaxSelections int                   `json:"max_selections"`
	SeatsToFill   int                   `json:"seats_to_fill"`
	Status        domain.ElectionStatus `json:"status"`
	Hidden        bool                  `json:"hidden"`
	VotingStart   time.Time             `json:"voting_start"`
	VotingEnd     time.Time             `json:"voting_end"`
	Answers       []domain.Answer       `json:"answers"`
	EligibleRoles []string              `json:"eligible_roles"`
	CreatedBy     string                `json:"created_by"`
	PublishedAt   *time.Time            `json:"published_at,omitempty"`
	ClosedAt      *time.Time            `json:"closed_at,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// MemberElectionResponse is what members see when browsing elections.
type MemberElectionResponse struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Question      string                `json:"question"`
	VotingMethod  domain.VotingMethod   `json:"voting_method"`
	MaxSelections int                   `json:"max_selections"`
	SeatsToFill   int                   `json:"seats_to_fill"`
	Status        domain.ElectionStatus `json:"status"`
	VotingStart   time.Time             `json:"voting_start"`
	VotingEnd     time.Time             `json:"voting_end"`
	Answers       []domain.Answer       `json:"answers"`
	Eligible      bool                  `json:"eligible"`
	Ineligibility string                `json:"ineligibility_reason,omitempty"`
}

// TokenResponse carries the raw token. It is returned exactly once.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ToElectionResponse maps the domain election.
func ToElectionResponse(e *domain.Election) ElectionResponse {
	return ElectionResponse{
		ID:            e.ID,
		Title:         e.Title,
		Description:   e.Description,
		Question:      e.Question,
		VotingMethod:  e.VotingMethod,
		MaxSelections: e.EffectiveMaxSelections(),
		SeatsToFill:   e.SeatsToFill,
		Status:        e.Status,
		Hidden:        e.Hidden,
		VotingStart:   e.VotingStart,
		VotingEnd:     e.VotingEnd,
		Answers:       e.Answers,
		EligibleRoles: e.EligibleRoles,
		CreatedBy:     e.CreatedBy,
		PublishedAt:   e.PublishedAt,
		ClosedAt:      e.ClosedAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
