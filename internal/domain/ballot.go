package domain

import (
	"fmt"
	"sort"
	"time"
)

// BallotElection is the ballot authority's copy of an election: just enough to
// validate content, enforce the window and count.
type BallotElection struct {
	ID            string         `json:"id"`
	VotingMethod  VotingMethod   `json:"voting_method"`
	MaxSelections int            `json:"max_selections"`
	SeatsToFill   int            `json:"seats_to_fill"`
	Answers       []Answer       `json:"answers"`
	Status        ElectionStatus `json:"status"`
	VotingStart   time.Time      `json:"voting_start"`
	VotingEnd     time.Time      `json:"voting_end"`
	ClosedAt      *time.Time     `json:"closed_at,omitempty"`
}

// AcceptingVotes reports whether a ballot may be cast at now.
func (e *BallotElection) AcceptingVotes(now time.Time) bool {
	return e.Status == ElectionStatusPublished && WithinWindow(e.VotingStart, e.VotingEnd, now)
}

// BallotElectionFrom projects an election onto what the ballot side needs.
// Text and metadata stay on the eligibility side.
func BallotElectionFrom(e *Election) BallotElection {
	answers := make([]Answer, len(e.Answers))
	for i, a := range e.Answers {
		answers[i] = Answer{ID: a.ID, DisplayOrder: a.DisplayOrder}
	}
	return BallotElection{
		ID:            e.ID,
		VotingMethod:  e.VotingMethod,
		MaxSelections: e.EffectiveMaxSelections(),
		SeatsToFill:   e.SeatsToFill,
		Answers:       answers,
		Status:        e.Status,
		VotingStart:   e.VotingStart,
		VotingEnd:     e.VotingEnd,
		ClosedAt:      e.ClosedAt,
	}
}

// RankedChoice is one position on a ranked ballot.
type RankedChoice struct {
	AnswerID string `json:"answer_id"`
	Rank     int    `json:"rank"`
}

// BallotContent holds either selections or a ranking, never both.
type BallotContent struct {
	Selections []string       `json:"selections,omitempty"`
	Ranking    []RankedChoice `json:"ranking,omitempty"`
}

// Preferences returns the ranked answer ids ordered by rank.
func (c BallotContent) Preferences() []string {
	ranking := append([]RankedChoice(nil), c.Ranking...)
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].Rank < ranking[j].Rank })
	out := make([]string, len(ranking))
	for i, r := range ranking {
		out[i] = r.AnswerID
	}
	return out
}

// Ballot is immutable once written and is not linkable to a token or member.
type Ballot struct {
	ID         string        `json:"id"`
	ElectionID string        `json:"election_id"`
	Content    BallotContent `json:"content"`
	CastAt     time.Time     `json:"cast_at"`
}

// CastAtGranularity coarsens ballot timestamps so they cannot be matched
// against a token's redemption time.
const CastAtGranularity = time.Hour

// ContentError describes a ballot shape mismatch.
type ContentError struct {
	Reason string
}

func (e *ContentError) Error() string { return e.Reason }

func contentErrorf(format string, args ...any) error {
	return &ContentError{Reason: fmt.Sprintf(format, args...)}
}

// ValidateContent checks content against the election's voting method.
func ValidateContent(e *BallotElection, content BallotContent) error {
	known := make(map[string]struct{}, len(e.Answers))
	for _, a := range e.Answers {
		known[a.ID] = struct{}{}
	}

	switch e.VotingMethod {
	case VotingMethodSingleChoice:
		if len(content.Ranking) > 0 {
			return contentErrorf("single-choice ballots take selections, not a ranking")
		}
		if len(content.Selections) != 1 {
			return contentErrorf("exactly one selection required")
		}
		if _, ok := known[content.Selections[0]]; !ok {
			return contentErrorf("unknown answer %q", content.Selections[0])
		}
	case VotingMethodMultiChoice:
		if len(content.Ranking) > 0 {
			return contentErrorf("multi-choice ballots take selections, not a ranking")
		}
		if len(content.Selections) < 1 || len(content.Selections) > e.MaxSelections {
			return contentErrorf("between 1 and %d selections required", e.MaxSelections)
		}
		seen := make(map[string]struct{}, len(content.Selections))
		for _, id := range content.Selections {
			if _, ok := known[id]; !ok {
				return contentErrorf("unknown answer %q", id)
			}
			if _, dup := seen[id]; dup {
				return contentErrorf("answer %q selected twice", id)
			}
			seen[id] = struct{}{}
		}
	case VotingMethodRankedChoice:
		if len(content.Selections) > 0 {
			return contentErrorf("ranked-choice ballots take a ranking, not selections")
		}
		if len(content.Ranking) == 0 {
			return contentErrorf("at least one ranked answer required")
		}
		answers := make(map[string]struct{}, len(content.Ranking))
		ranks := make(map[int]struct{}, len(content.Ranking))
		for _, rc := range content.Ranking {
			if _, ok := known[rc.AnswerID]; !ok {
				return contentErrorf("unknown answer %q", rc.AnswerID)
			}
			if _, dup := answers[rc.AnswerID]; dup {
				return contentErrorf("answer %q ranked twice", rc.AnswerID)
			}
			if _, dup := ranks[rc.Rank]; dup {
				return contentErrorf("rank %d used twice", rc.Rank)
			}
			answers[rc.AnswerID] = struct{}{}
			ranks[rc.Rank] = struct{}{}
		}
		// ranks must be exactly 1..n
		for r := 1; r <= len(content.Ranking); r++ {
			if _, ok := ranks[r]; !ok {
				return contentErrorf("ranks must run densely from 1 to %d", len(content.Ranking))
			}
		}
	default:
		return contentErrorf("unsupported voting method %q", e.VotingMethod)
	}
	return nil
}
