package domain

import (
	"strings"
	"time"
)

// VotingMethod selects how ballots are shaped and counted.
type VotingMethod string

const (
	VotingMethodSingleChoice VotingMethod = "single-choice"
	VotingMethodMultiChoice  VotingMethod = "multi-choice"
	VotingMethodRankedChoice VotingMethod = "ranked-choice"
)

// Valid reports whether m is a supported method.
func (m VotingMethod) Valid() bool {
	switch m {
	case VotingMethodSingleChoice, VotingMethodMultiChoice, VotingMethodRankedChoice:
		return true
	}
	return false
}

// ElectionStatus enumerates lifecycle states. Hidden is tracked separately.
type ElectionStatus string

const (
	ElectionStatusDraft     ElectionStatus = "draft"
	ElectionStatusPublished ElectionStatus = "published"
	ElectionStatusClosed    ElectionStatus = "closed"
)

// Answer is one option on the ballot.
type Answer struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	DisplayOrder int    `json:"display_order"`
}

// Election is owned by the eligibility authority.
type Election struct {
	ID            string
	Title         string
	Description   string
	Question      string
	VotingMethod  VotingMethod
	MaxSelections int
	SeatsToFill   int
	Status        ElectionStatus
	Hidden        bool
	VotingStart   time.Time
	VotingEnd     time.Time
	Answers       []Answer
	EligibleRoles []string
	CreatedBy     string
	PublishedAt   *time.Time
	ClosedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AcceptingVotes reports whether tokens may be issued or redeemed at now.
func (e *Election) AcceptingVotes(now time.Time) bool {
	return e.Status == ElectionStatusPublished && WithinWindow(e.VotingStart, e.VotingEnd, now)
}

// WithinWindow is start <= now < end.
func WithinWindow(start, end, now time.Time) bool {
	return !now.Before(start) && now.Before(end)
}

// ValidateDefinition checks the parts of an election that must hold before publishing.
// It returns a field -> problem map, empty when valid.
func (e *Election) ValidateDefinition() map[string]any {
	problems := map[string]any{}
	if strings.TrimSpace(e.Title) == "" {
		problems["title"] = "required"
	}
	if strings.TrimSpace(e.Question) == "" {
		problems["question"] = "required"
	}
	if !e.VotingMethod.Valid() {
		problems["voting_method"] = "unsupported"
	}
	if e.VotingStart.IsZero() || e.VotingEnd.IsZero() || !e.VotingStart.Before(e.VotingEnd) {
		problems["voting_window"] = "start must be before end"
	}
	seen := make(map[string]struct{}, len(e.Answers))
	for _, a := range e.Answers {
		if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.Text) == "" {
			problems["answers"] = "every answer needs an id and text"
			break
		}
		if _, dup := seen[a.ID]; dup {
			problems["answers"] = "duplicate answer id " + a.ID
			break
		}
		seen[a.ID] = struct{}{}
	}
	switch e.VotingMethod {
	case VotingMethodSingleChoice:
		if len(e.Answers) < 2 {
			problems["answers"] = "at least two answers required"
		}
	case VotingMethodMultiChoice:
		if len(e.Answers) < 2 {
			problems["answers"] = "at least two answers required"
		}
		if e.MaxSelections < 1 || e.MaxSelections > len(e.Answers) {
			problems["max_selections"] = "must be between 1 and the number of answers"
		}
	case VotingMethodRankedChoice:
		if e.SeatsToFill < 1 {
			problems["seats_to_fill"] = "must be at least 1"
		} else if len(e.Answers) < e.SeatsToFill+1 {
			problems["answers"] = "ranked-choice needs at least seats_to_fill+1 candidates"
		}
	}
	return problems
}

// EffectiveMaxSelections is 1 for single-choice and MaxSelections otherwise.
func (e *Election) EffectiveMaxSelections() int {
	if e.VotingMethod == VotingMethodSingleChoice {
		return 1
	}
	return e.MaxSelections
}

var allowedTransitions = map[ElectionStatus][]ElectionStatus{
	ElectionStatusDraft:     {ElectionStatusPublished},
	ElectionStatusPublished: {ElectionStatusClosed},
	ElectionStatusClosed:    {},
}

// CanTransition reports whether the lifecycle permits current -> next.
func CanTransition(current, next ElectionStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
