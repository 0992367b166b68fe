package tally

import (
	"math"
	"sort"

	"github.com/ballotbox/election-service/internal/domain"
)

const epsilon = 1e-9

type candidateState int

const (
	continuing candidateState = iota
	elected
	eliminated
)

// stvBallot is a ranking plus a pointer to its current preference and the
// fraction of the vote it still carries.
type stvBallot struct {
	prefs  []string
	pos    int
	weight float64
}

// advance moves the pointer past candidates that are no longer continuing and
// reports whether the ballot still has a live preference.
func (b *stvBallot) advance(state map[string]candidateState) bool {
	for b.pos < len(b.prefs) {
		if s, ok := state[b.prefs[b.pos]]; ok && s == continuing {
			return true
		}
		b.pos++
	}
	return false
}

// DroopQuota is floor(votes/(seats+1))+1.
func DroopQuota(votes, seats int) int {
	return votes/(seats+1) + 1
}

// RankedChoice runs a single-transferable-vote count with Droop quota and
// fractional surplus transfer. Each loop iteration is one recorded round.
func RankedChoice(answers []domain.Answer, ballots []domain.Ballot, seats int) domain.RankedChoiceResult {
	ordered := orderedAnswers(answers)
	order := make(map[string]int, len(ordered))
	state := make(map[string]candidateState, len(ordered))
	for i, a := range ordered {
		order[a.ID] = i
		state[a.ID] = continuing
	}

	pile := make([]*stvBallot, 0, len(ballots))
	for _, b := range ballots {
		prefs := b.Content.Preferences()
		if len(prefs) == 0 {
			continue
		}
		pile = append(pile, &stvBallot{prefs: prefs, weight: 1})
	}

	result := domain.RankedChoiceResult{
		Seats:   seats,
		Quota:   DroopQuota(len(pile), seats),
		Elected: []string{},
		Rounds:  []domain.Round{},
	}
	if len(pile) == 0 || seats < 1 {
		return result
	}
	quota := float64(result.Quota)

	for number := 1; ; number++ {
		totals := make(map[string]float64, len(ordered))
		holders := make(map[string][]*stvBallot, len(ordered))
		exhausted := 0.0
		result.ExhaustedBallots = 0
		for _, b := range pile {
			if !b.advance(state) {
				exhausted += b.weight
				result.ExhaustedBallots++
				continue
			}
			c := b.prefs[b.pos]
			totals[c] += b.weight
			holders[c] = append(holders[c], b)
		}

		live := continuingCandidates(ordered, state)
		round := domain.Round{
			Number:    number,
			Totals:    make([]domain.CandidateTotal, 0, len(live)),
			Exhausted: roundVotes(exhausted),
		}
		for _, id := range live {
			round.Totals = append(round.Totals, domain.CandidateTotal{AnswerID: id, Votes: roundVotes(totals[id])})
		}

		remaining := seats - len(result.Elected)

		reached := make([]string, 0)
		for _, id := range live {
			if totals[id]+epsilon >= quota {
				reached = append(reached, id)
			}
		}
		if len(reached) > 0 {
			sort.SliceStable(reached, func(i, j int) bool {
				if math.Abs(totals[reached[i]]-totals[reached[j]]) > epsilon {
					return totals[reached[i]] > totals[reached[j]]
				}
				return order[reached[i]] < order[reached[j]]
			})
			if len(reached) > remaining {
				reached = reached[:remaining]
			}
			surplusTotal := 0.0
			for _, id := range reached {
				state[id] = elected
				result.Elected = append(result.Elected, id)
				surplus := totals[id] - quota
				if surplus < 0 {
					surplus = 0
				}
				surplusTotal += surplus
				factor := 0.0
				if totals[id] > 0 {
					factor = surplus / totals[id]
				}
				for _, b := range holders[id] {
					b.weight *= factor
				}
			}
			round.Action = domain.RoundActionElected
			round.Candidates = reached
			round.Surplus = roundVotes(surplusTotal)
			result.Rounds = append(result.Rounds, round)
			if len(result.Elected) >= seats {
				break
			}
			continue
		}

		if len(live) <= remaining {
			for _, id := range live {
				state[id] = elected
				result.Elected = append(result.Elected, id)
			}
			round.Action = domain.RoundActionFilled
			round.Candidates = live
			result.Rounds = append(result.Rounds, round)
			break
		}

		loser := lowestCandidate(live, totals, order, result.Rounds)
		state[loser] = eliminated
		round.Action = domain.RoundActionEliminated
		round.Candidates = []string{loser}
		result.Rounds = append(result.Rounds, round)
	}

	return result
}

func continuingCandidates(ordered []domain.Answer, state map[string]candidateState) []string {
	out := make([]string, 0, len(ordered))
	for _, a := range ordered {
		if state[a.ID] == continuing {
			out = append(out, a.ID)
		}
	}
	return out
}

// lowestCandidate picks who to eliminate. Ties are broken by the most recent
// earlier round in which the tied candidates differed, then by eliminating the
// candidate listed last on the ballot.
func lowestCandidate(live []string, totals map[string]float64, order map[string]int, history []domain.Round) string {
	lowest := math.Inf(1)
	for _, id := range live {
		if totals[id] < lowest {
			lowest = totals[id]
		}
	}
	tied := make([]string, 0, len(live))
	for _, id := range live {
		if math.Abs(totals[id]-lowest) <= epsilon {
			tied = append(tied, id)
		}
	}

	for r := len(history) - 1; r >= 0 && len(tied) > 1; r-- {
		past := make(map[string]float64, len(history[r].Totals))
		for _, ct := range history[r].Totals {
			past[ct.AnswerID] = ct.Votes
		}
		min := math.Inf(1)
		for _, id := range tied {
			if past[id] < min {
				min = past[id]
			}
		}
		narrowed := tied[:0:0]
		for _, id := range tied {
			if math.Abs(past[id]-min) <= epsilon {
				narrowed = append(narrowed, id)
			}
		}
		tied = narrowed
	}

	loser := tied[0]
	for _, id := range tied[1:] {
		if order[id] > order[loser] {
			loser = id
		}
	}
	return loser
}

func roundVotes(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
