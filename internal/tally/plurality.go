// Package tally counts ballots. It is pure: callers hand it a frozen ballot set.
package tally

import (
	"sort"

	"github.com/ballotbox/election-service/internal/domain"
)

// Plurality counts every selected answer once per ballot. Ties at the top are
// reported, never broken.
func Plurality(answers []domain.Answer, ballots []domain.Ballot) domain.PluralityResult {
	ordered := orderedAnswers(answers)
	counts := make(map[string]int, len(ordered))
	for _, a := range ordered {
		counts[a.ID] = 0
	}
	for _, b := range ballots {
		for _, id := range b.Content.Selections {
			if _, ok := counts[id]; ok {
				counts[id]++
			}
		}
	}

	result := domain.PluralityResult{Counts: make([]domain.AnswerCount, 0, len(ordered)), Winners: []string{}}
	top := 0
	for _, a := range ordered {
		result.Counts = append(result.Counts, domain.AnswerCount{AnswerID: a.ID, Votes: counts[a.ID]})
		if counts[a.ID] > top {
			top = counts[a.ID]
		}
	}
	if top == 0 {
		return result
	}
	for _, c := range result.Counts {
		if c.Votes == top {
			result.Winners = append(result.Winners, c.AnswerID)
		}
	}
	result.Tie = len(result.Winners) > 1
	return result
}

func orderedAnswers(answers []domain.Answer) []domain.Answer {
	out := append([]domain.Answer(nil), answers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}
