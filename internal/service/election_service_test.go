package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/repository"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

func draftInput() ElectionInput {
	return ElectionInput{
		Title:        "Chair",
		Question:     "Who chairs?",
		VotingMethod: domain.VotingMethodRankedChoice,
		VotingStart:  testStart,
		VotingEnd:    testStart.Add(time.Hour),
		Answers:      []domain.Answer{{Text: " Ann ", DisplayOrder: 5}, {Text: "Bob", DisplayOrder: 2}},
	}
}

func TestCreateNormalizesDraft(t *testing.T) {
	h := newHarness(t)
	election, err := h.elections.Create(context.Background(), "admin-1", draftInput())
	require.NoError(t, err)

	assert.Equal(t, domain.ElectionStatusDraft, election.Status)
	assert.Equal(t, 1, election.SeatsToFill)
	require.Len(t, election.Answers, 2)
	assert.Equal(t, "Bob", election.Answers[0].Text)
	assert.Equal(t, 1, election.Answers[0].DisplayOrder)
	assert.Equal(t, "Ann", election.Answers[1].Text)
	assert.Equal(t, 2, election.Answers[1].DisplayOrder)
	assert.NotEmpty(t, election.Answers[0].ID)

	_, err = h.elections.Create(context.Background(), "admin-1", ElectionInput{VotingMethod: "approval"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestPublishValidatesDefinition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election, err := h.elections.Create(ctx, "admin-1", draftInput())
	require.NoError(t, err)

	// ranked-choice with one seat needs at least two candidates; give it one
	_, err = h.elections.ReplaceAnswers(ctx, election.ID, answers("A"))
	require.NoError(t, err)
	_, err = h.elections.Publish(ctx, "admin-1", election.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	_, err = h.ballotDB.Elections().GetByID(ctx, election.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPublishRejectsEndedWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	input := draftInput()
	input.VotingStart = testStart.Add(-2 * time.Hour)
	input.VotingEnd = testStart.Add(-time.Hour)
	election, err := h.elections.Create(ctx, "admin-1", input)
	require.NoError(t, err)

	_, err = h.elections.Publish(ctx, "admin-1", election.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestPublishSyncsBallotSide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election := h.publishedElection(t, domain.VotingMethodMultiChoice)
	assert.Equal(t, domain.ElectionStatusPublished, election.Status)
	assert.NotNil(t, election.PublishedAt)

	remote, err := h.ballotDB.Elections().GetByID(ctx, election.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ElectionStatusPublished, remote.Status)
	assert.Equal(t, 2, remote.MaxSelections)
	require.Len(t, remote.Answers, 4)
	assert.Empty(t, remote.Answers[0].Text)

	_, err = h.elections.Publish(ctx, "admin-1", election.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestEditingRulesFollowStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election := h.publishedElection(t, domain.VotingMethodSingleChoice)

	title := "Renamed"
	updated, err := h.elections.UpdateMetadata(ctx, election.ID, ElectionPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	end := election.VotingEnd.Add(time.Hour)
	_, err = h.elections.UpdateMetadata(ctx, election.ID, ElectionPatch{VotingEnd: &end})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = h.elections.ReplaceAnswers(ctx, election.ID, answers("X", "Y"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = h.elections.Close(ctx, "admin-1", election.ID)
	require.NoError(t, err)
	_, err = h.elections.UpdateMetadata(ctx, election.ID, ElectionPatch{Title: &title})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestCloseIsIdempotentAndAudited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election := h.publishedElection(t, domain.VotingMethodSingleChoice)

	closed, err := h.elections.Close(ctx, "admin-1", election.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ElectionStatusClosed, closed.Status)
	again, err := h.elections.Close(ctx, "admin-2", election.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ElectionStatusClosed, again.Status)

	local, err := h.eligDB.Audit().ListByElection(ctx, election.ID)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, domain.AuditElectionClosed, local[0].Type)
	assert.Equal(t, "admin-1", local[0].Actor)

	remote, err := h.ballotDB.Audit().ListByElection(ctx, election.ID)
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, domain.AuditElectionClosed, remote[0].Type)

	// a closed election is never reopened on the ballot side
	err = h.peer.elections.Sync(ctx, domain.BallotElectionFrom(election))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeElectionNotOpen))
}

func TestCloseDraftIsConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election, err := h.elections.Create(ctx, "admin-1", draftInput())
	require.NoError(t, err)

	_, err = h.elections.Close(ctx, "admin-1", election.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestCloseDueClosesEndedElections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	short := h.publishedElection(t, domain.VotingMethodSingleChoice, func(in *ElectionInput) {
		in.VotingEnd = testStart.Add(time.Hour)
	})
	long := h.publishedElection(t, domain.VotingMethodSingleChoice)

	h.clock.Advance(2 * time.Hour)
	closed, err := h.elections.CloseDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, err := h.elections.Get(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ElectionStatusClosed, got.Status)
	got, err = h.elections.Get(ctx, long.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ElectionStatusPublished, got.Status)

	local, err := h.eligDB.Audit().ListByElection(ctx, short.ID)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, domain.ActorSystem, local[0].Actor)
}

func TestHiddenElectionsLeaveMemberListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	visible := h.publishedElection(t, domain.VotingMethodSingleChoice, func(in *ElectionInput) {
		in.EligibleRoles = []string{"delegate"}
	})
	hidden := h.publishedElection(t, domain.VotingMethodSingleChoice)
	_, err := h.elections.Create(ctx, "admin-1", draftInput())
	require.NoError(t, err)

	_, err = h.elections.SetHidden(ctx, hidden.ID, true)
	require.NoError(t, err)

	listed, err := h.elections.ListForMember(ctx, member("m-1"))
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, visible.ID, listed[0].Election.ID)
	assert.False(t, listed[0].Eligibility.Eligible)
	assert.Equal(t, ReasonRoleMissing, listed[0].Eligibility.Reason)

	all, err := h.elections.List(ctx, repository.ElectionFilter{IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestResultsOnlyAfterClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election := h.publishedElection(t, domain.VotingMethodSingleChoice)
	for i, choice := range []string{"A", "A", "B"} {
		token := h.issue(t, election.ID, string(rune('a'+i)))
		_, err := h.recorder.CastBallot(ctx, token, domain.BallotContent{Selections: []string{choice}})
		require.NoError(t, err)
	}

	_, err := h.elections.Results(ctx, election.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeElectionNotOpen))
	_, err = h.peer.results.Tabulate(ctx, election.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeElectionNotOpen))

	_, err = h.elections.Close(ctx, "admin-1", election.ID)
	require.NoError(t, err)
	results, err := h.elections.Results(ctx, election.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, results.TotalBallots)
	require.NotNil(t, results.Plurality)
	assert.Equal(t, []string{"A"}, results.Plurality.Winners)
	assert.False(t, results.Plurality.Tie)

	cached, err := h.elections.Results(ctx, election.ID)
	require.NoError(t, err)
	assert.Equal(t, results, cached)
}

func TestRankedChoiceResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election := h.publishedElection(t, domain.VotingMethodRankedChoice)
	rank := func(ids ...string) domain.BallotContent {
		out := domain.BallotContent{}
		for i, id := range ids {
			out.Ranking = append(out.Ranking, domain.RankedChoice{AnswerID: id, Rank: i + 1})
		}
		return out
	}
	contents := []domain.BallotContent{
		rank("A", "B"), rank("A", "B"), rank("A", "B"),
		rank("B", "A"), rank("B", "A"),
		rank("C", "B"),
	}
	for i, content := range contents {
		token := h.issue(t, election.ID, string(rune('a'+i)))
		_, err := h.recorder.CastBallot(ctx, token, content)
		require.NoError(t, err)
	}
	_, err := h.elections.Close(ctx, "admin-1", election.ID)
	require.NoError(t, err)

	results, err := h.elections.Results(ctx, election.ID)
	require.NoError(t, err)
	require.NotNil(t, results.RankedChoice)
	assert.Nil(t, results.Plurality)
	assert.Equal(t, 4, results.RankedChoice.Quota)
	assert.Equal(t, []string{"A"}, results.RankedChoice.Elected)
	assert.NotEmpty(t, results.RankedChoice.Rounds)
}

func TestEvaluateEligibility(t *testing.T) {
	open := &domain.Election{}
	restricted := &domain.Election{EligibleRoles: []string{"delegate", "board"}}
	inactive := member("m-1", "board")
	inactive.MembershipStatus = domain.MembershipInactive

	tests := []struct {
		name     string
		election *domain.Election
		caller   domain.CallerAttributes
		want     Eligibility
	}{
		{"active member, open election", open, member("m-1"), Eligibility{Eligible: true}},
		{"inactive member", open, inactive, Eligibility{Reason: ReasonMembershipInactive}},
		{"role matches", restricted, member("m-1", "board"), Eligibility{Eligible: true}},
		{"role missing", restricted, member("m-1", "observer"), Eligibility{Reason: ReasonRoleMissing}},
		{"inactive outranks role", restricted, inactive, Eligibility{Reason: ReasonMembershipInactive}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateEligibility(tt.election, tt.caller))
		})
	}
}
