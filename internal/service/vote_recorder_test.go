package service

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ballotbox/election-service/internal/credential"
	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/observability"
	"github.com/ballotbox/election-service/internal/repository"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

func (h *harness) issue(t *testing.T, electionID, memberRef string) string {
	t.Helper()
	issued, err := h.issuance.RequestToken(context.Background(), electionID, member(memberRef))
	require.NoError(t, err)
	return issued.Token
}

func TestCastBallotStoresUnlinkableBallot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election := h.publishedElection(t, domain.VotingMethodSingleChoice)
	token := h.issue(t, election.ID, "m-1")

	ballotID, err := h.recorder.CastBallot(ctx, token, domain.BallotContent{Selections: []string{"B"}})
	require.NoError(t, err)
	assert.NotEmpty(t, ballotID)

	ballots, err := h.ballotDB.Ballots().ListByElection(ctx, election.ID)
	require.NoError(t, err)
	require.Len(t, ballots, 1)
	assert.Equal(t, ballotID, ballots[0].ID)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), ballots[0].CastAt)

	registered, err := h.ballotDB.Tokens().GetByDigest(ctx, credential.Digest(token))
	require.NoError(t, err)
	assert.True(t, registered.Redeemed)

	events, err := h.ballotDB.Audit().ListByElection(ctx, election.ID)
	require.NoError(t, err)
	for _, e := range events {
		assert.NotContains(t, e.Digest, ballotID)
		assert.NotEqual(t, "m-1", e.Actor)
	}

	pending, err := h.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	job, err := h.queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, credential.Digest(token), job.Digest)
	assert.Equal(t, election.ID, job.ElectionID)
	assert.Equal(t, int64(1), h.metrics.Counter(observability.MetricBallotsCast))
}

func TestBallotRecordCarriesNoCredential(t *testing.T) {
	forbidden := []string{"digest", "token", "member"}
	for _, typ := range []reflect.Type{reflect.TypeOf(domain.Ballot{}), reflect.TypeOf(domain.BallotContent{})} {
		for i := 0; i < typ.NumField(); i++ {
			field := strings.ToLower(typ.Field(i).Name)
			for _, word := range forbidden {
				assert.NotContains(t, field, word, "%s.%s", typ.Name(), typ.Field(i).Name)
			}
		}
	}
	registered := reflect.TypeOf(domain.RegisteredToken{})
	for i := 0; i < registered.NumField(); i++ {
		assert.NotContains(t, strings.ToLower(registered.Field(i).Name), "member")
	}
}

func TestCastBallotRedeemsExactlyOnceUnderContention(t *testing.T) {
	h := newHarness(t)
	election := h.publishedElection(t, domain.VotingMethodSingleChoice)
	token := h.issue(t, election.ID, "m-1")

	const voters = 40
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		used      int
	)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.recorder.CastBallot(context.Background(), token, domain.BallotContent{Selections: []string{"A"}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.HasCode(err, apperrors.CodeAlreadyUsed):
				used++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, voters-1, used)
	count, err := h.ballotDB.Ballots().CountByElection(context.Background(), election.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCastBallotRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	single := h.publishedElection(t, domain.VotingMethodSingleChoice)
	multi := h.publishedElection(t, domain.VotingMethodMultiChoice)
	ranked := h.publishedElection(t, domain.VotingMethodRankedChoice)

	spent := h.issue(t, single.ID, "m-spent")
	_, err := h.recorder.CastBallot(ctx, spent, domain.BallotContent{Selections: []string{"A"}})
	require.NoError(t, err)

	unknown, err := credential.Generate()
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   func() string
		content domain.BallotContent
		code    string
	}{
		{"malformed token", func() string { return "abc" }, domain.BallotContent{Selections: []string{"A"}}, apperrors.CodeInvalidToken},
		{"unknown token", func() string { return unknown }, domain.BallotContent{Selections: []string{"A"}}, apperrors.CodeInvalidToken},
		{"used token", func() string { return spent }, domain.BallotContent{Selections: []string{"A"}}, apperrors.CodeAlreadyUsed},
		{"single choice needs one", func() string { return h.issue(t, single.ID, "m-1") }, domain.BallotContent{Selections: []string{"A", "B"}}, apperrors.CodeInvalidContent},
		{"unknown answer", func() string { return h.issue(t, single.ID, "m-2") }, domain.BallotContent{Selections: []string{"Z"}}, apperrors.CodeInvalidContent},
		{"too many selections", func() string { return h.issue(t, multi.ID, "m-3") }, domain.BallotContent{Selections: []string{"A", "B", "C"}}, apperrors.CodeInvalidContent},
		{"ranking on multi choice", func() string { return h.issue(t, multi.ID, "m-4") }, domain.BallotContent{Ranking: []domain.RankedChoice{{AnswerID: "A", Rank: 1}}}, apperrors.CodeInvalidContent},
		{"sparse ranks", func() string { return h.issue(t, ranked.ID, "m-5") }, domain.BallotContent{Ranking: []domain.RankedChoice{{AnswerID: "A", Rank: 1}, {AnswerID: "B", Rank: 3}}}, apperrors.CodeInvalidContent},
		{"duplicate ranked answer", func() string { return h.issue(t, ranked.ID, "m-6") }, domain.BallotContent{Ranking: []domain.RankedChoice{{AnswerID: "A", Rank: 1}, {AnswerID: "A", Rank: 2}}}, apperrors.CodeInvalidContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.recorder.CastBallot(ctx, tt.token(), tt.content)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestInvalidContentLeavesTokenUsable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election := h.publishedElection(t, domain.VotingMethodSingleChoice)
	token := h.issue(t, election.ID, "m-1")

	_, err := h.recorder.CastBallot(ctx, token, domain.BallotContent{Selections: []string{"nope"}})
	require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidContent))
	_, err = h.recorder.CastBallot(ctx, token, domain.BallotContent{Selections: []string{"A"}})
	assert.NoError(t, err)
}

func TestCastBallotExpiredToken(t *testing.T) {
	h := newHarness(t)
	election := h.publishedElection(t, domain.VotingMethodSingleChoice)
	token := h.issue(t, election.ID, "m-1")

	h.clock.Advance(24 * time.Hour)
	_, err := h.recorder.CastBallot(context.Background(), token, domain.BallotContent{Selections: []string{"A"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeExpired))
}

func TestCastBallotAfterClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election := h.publishedElection(t, domain.VotingMethodSingleChoice)
	token := h.issue(t, election.ID, "m-1")

	_, err := h.elections.Close(ctx, "admin-1", election.ID)
	require.NoError(t, err)

	_, err = h.recorder.CastBallot(ctx, token, domain.BallotContent{Selections: []string{"A"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeElectionNotOpen))
	count, err := h.ballotDB.Ballots().CountByElection(ctx, election.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// closingElections closes the election right after the recorder has read it,
// so the close lands between the precheck and the redemption.
type closingElections struct {
	repository.BallotElectionRepository
	closer *BallotElectionService
}

func (c closingElections) GetByID(ctx context.Context, id string) (*domain.BallotElection, error) {
	election, err := c.BallotElectionRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.closer.Close(ctx, id, "admin-1", time.Time{}); err != nil {
		return nil, err
	}
	return election, nil
}

func TestCloseDuringRedemptionRejectsInFlightBallot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	election := h.publishedElection(t, domain.VotingMethodSingleChoice)
	early := h.issue(t, election.ID, "m-1")
	late := h.issue(t, election.ID, "m-2")

	_, err := h.recorder.CastBallot(ctx, early, domain.BallotContent{Selections: []string{"A"}})
	require.NoError(t, err)

	racing := NewVoteRecorder(VoteRecorderDependencies{
		ElectionRepo: closingElections{BallotElectionRepository: h.ballotDB.Elections(), closer: h.peer.elections},
		TokenRepo:    h.ballotDB.Tokens(),
		Clock:        h.clock.Now,
	})
	_, err = racing.CastBallot(ctx, late, domain.BallotContent{Selections: []string{"B"}})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeElectionNotOpen), "got %v", err)

	registered, err := h.ballotDB.Tokens().GetByDigest(ctx, credential.Digest(late))
	require.NoError(t, err)
	assert.False(t, registered.Redeemed)

	results, err := h.peer.results.Tabulate(ctx, election.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, results.TotalBallots)
}
