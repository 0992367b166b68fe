package domain

import "time"

// AnswerCount is one line of a plurality result.
type AnswerCount struct {
	AnswerID string `json:"answer_id"`
	Votes    int    `json:"votes"`
}

// PluralityResult reports counts and every answer sharing the top count.
type PluralityResult struct {
	Counts  []AnswerCount `json:"counts"`
	Winners []string      `json:"winners"`
	Tie     bool          `json:"tie"`
}

// RoundAction says what happened at the end of a counting round.
type RoundAction string

const (
	RoundActionElected    RoundAction = "elected"
	RoundActionEliminated RoundAction = "eliminated"
	RoundActionFilled     RoundAction = "elected-remaining"
)

// CandidateTotal is one candidate's weighted vote total in a round.
type CandidateTotal struct {
	AnswerID string  `json:"answer_id"`
	Votes    float64 `json:"votes"`
}

// Round is an inspectable snapshot of one ranked-choice counting round.
type Round struct {
	Number     int              `json:"number"`
	Totals     []CandidateTotal `json:"totals"`
	Exhausted  float64          `json:"exhausted"`
	Action     RoundAction      `json:"action"`
	Candidates []string         `json:"candidates"`
	Surplus    float64          `json:"surplus,omitempty"`
}

// RankedChoiceResult is the audit-ready output of a single-transferable-vote count.
type RankedChoiceResult struct {
	Seats            int      `json:"seats"`
	Quota            int      `json:"quota"`
	Elected          []string `json:"elected"`
	Rounds           []Round  `json:"rounds"`
	ExhaustedBallots int      `json:"exhausted_ballots"`
}

// ElectionResults is what the ballot authority returns for a closed election.
type ElectionResults struct {
	ElectionID   string              `json:"election_id"`
	VotingMethod VotingMethod        `json:"voting_method"`
	TotalBallots int                 `json:"total_ballots"`
	Plurality    *PluralityResult    `json:"plurality,omitempty"`
	RankedChoice *RankedChoiceResult `json:"ranked_choice,omitempty"`
	ComputedAt   time.Time           `json:"computed_at"`
}
