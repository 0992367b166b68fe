package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestReserveRejectsLiveToken(t *testing.T) {
	ctx := context.Background()
	tokens := NewEligibilityDB().Tokens()

	first := &domain.VotingToken{MemberRef: "m1", ElectionID: "e1", Digest: "d1", IssuedAt: t0, ExpiresAt: t0.Add(time.Hour)}
	require.NoError(t, tokens.Reserve(ctx, first, t0, t0.Add(-time.Minute), ""))
	require.NoError(t, tokens.Confirm(ctx, first, &domain.AuditEvent{ID: "a1", ElectionID: "e1", Type: domain.AuditIssued}))

	second := &domain.VotingToken{MemberRef: "m1", ElectionID: "e1", Digest: "d2", IssuedAt: t0, ExpiresAt: t0.Add(time.Hour)}
	assert.ErrorIs(t, tokens.Reserve(ctx, second, t0.Add(time.Minute), t0, ""), repository.ErrAlreadyIssued)
}

func TestReserveReplacesExpiredAndStale(t *testing.T) {
	ctx := context.Background()
	tokens := NewEligibilityDB().Tokens()

	expired := &domain.VotingToken{MemberRef: "m1", ElectionID: "e1", Digest: "d1", IssuedAt: t0, ExpiresAt: t0.Add(time.Hour)}
	require.NoError(t, tokens.Reserve(ctx, expired, t0, t0, ""))
	require.NoError(t, tokens.Confirm(ctx, expired, &domain.AuditEvent{ID: "a1"}))

	later := t0.Add(2 * time.Hour)
	replacement := &domain.VotingToken{MemberRef: "m1", ElectionID: "e1", Digest: "d2", IssuedAt: later, ExpiresAt: later.Add(time.Hour)}
	// an expired issued row needs its digest retired first
	assert.ErrorIs(t, tokens.Reserve(ctx, replacement, later, later.Add(-time.Minute), ""), repository.ErrAlreadyIssued)
	assert.ErrorIs(t, tokens.Reserve(ctx, replacement, later, later.Add(-time.Minute), "other"), repository.ErrAlreadyIssued)
	require.NoError(t, tokens.Reserve(ctx, replacement, later, later.Add(-time.Minute), "d1"))

	// an unconfirmed reservation blocks until it goes stale
	retry := &domain.VotingToken{MemberRef: "m1", ElectionID: "e1", Digest: "d3", IssuedAt: later, ExpiresAt: later.Add(time.Hour)}
	assert.ErrorIs(t, tokens.Reserve(ctx, retry, later, later.Add(-time.Minute), ""), repository.ErrAlreadyIssued)
	require.NoError(t, tokens.Reserve(ctx, retry, later.Add(2*time.Minute), later.Add(time.Minute), ""))

	got, err := tokens.Get(ctx, "e1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "d3", got.Digest)
	assert.Equal(t, domain.VotingTokenReserved, got.State)
}

func TestReserveUsedTokenIsNeverReplaced(t *testing.T) {
	ctx := context.Background()
	tokens := NewEligibilityDB().Tokens()

	tok := &domain.VotingToken{MemberRef: "m1", ElectionID: "e1", Digest: "d1", IssuedAt: t0, ExpiresAt: t0.Add(time.Hour)}
	require.NoError(t, tokens.Reserve(ctx, tok, t0, t0, ""))
	require.NoError(t, tokens.Confirm(ctx, tok, &domain.AuditEvent{ID: "a1"}))
	changed, err := tokens.MarkUsed(ctx, "d1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = tokens.MarkUsed(ctx, "d1", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	again := &domain.VotingToken{MemberRef: "m1", ElectionID: "e1", Digest: "d2", IssuedAt: t0, ExpiresAt: t0.Add(time.Hour)}
	assert.ErrorIs(t, tokens.Reserve(ctx, again, t0.Add(3*time.Hour), t0.Add(3*time.Hour), "d1"), repository.ErrAlreadyIssued)

	_, err = tokens.MarkUsed(ctx, "unknown", t0)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReleaseOnlyDropsMatchingReservation(t *testing.T) {
	ctx := context.Background()
	tokens := NewEligibilityDB().Tokens()

	tok := &domain.VotingToken{MemberRef: "m1", ElectionID: "e1", Digest: "d1", IssuedAt: t0, ExpiresAt: t0.Add(time.Hour)}
	require.NoError(t, tokens.Reserve(ctx, tok, t0, t0, ""))
	require.NoError(t, tokens.Release(ctx, "m1", "e1", "other"))
	_, err := tokens.Get(ctx, "e1", "m1")
	require.NoError(t, err)

	require.NoError(t, tokens.Release(ctx, "m1", "e1", "d1"))
	_, err = tokens.Get(ctx, "e1", "m1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestElectionTransitionIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	elections := NewEligibilityDB().Elections()
	require.NoError(t, elections.Create(ctx, &domain.Election{ID: "e1", Status: domain.ElectionStatusDraft}))

	require.NoError(t, elections.Transition(ctx, "e1", domain.ElectionStatusDraft, domain.ElectionStatusPublished, t0))
	assert.ErrorIs(t, elections.Transition(ctx, "e1", domain.ElectionStatusDraft, domain.ElectionStatusPublished, t0), repository.ErrConflict)
	assert.ErrorIs(t, elections.Transition(ctx, "nope", domain.ElectionStatusDraft, domain.ElectionStatusPublished, t0), repository.ErrNotFound)

	got, err := elections.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got.PublishedAt)
	assert.Equal(t, t0, *got.PublishedAt)
}

func TestElectionListFiltersHidden(t *testing.T) {
	ctx := context.Background()
	elections := NewEligibilityDB().Elections()
	require.NoError(t, elections.Create(ctx, &domain.Election{ID: "a", Status: domain.ElectionStatusPublished, VotingStart: t0}))
	require.NoError(t, elections.Create(ctx, &domain.Election{ID: "b", Status: domain.ElectionStatusPublished, VotingStart: t0.Add(time.Hour)}))
	require.NoError(t, elections.SetHidden(ctx, "a", true))

	visible, err := elections.List(ctx, repository.ElectionFilter{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "b", visible[0].ID)

	all, err := elections.List(ctx, repository.ElectionFilter{IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func seedBallotElection(t *testing.T, db *BallotDB) {
	t.Helper()
	require.NoError(t, db.Elections().Upsert(context.Background(), &domain.BallotElection{
		ID:            "e1",
		VotingMethod:  domain.VotingMethodSingleChoice,
		MaxSelections: 1,
		Answers:       []domain.Answer{{ID: "yes"}, {ID: "no"}},
		VotingStart:   t0.Add(-time.Hour),
		VotingEnd:     t0.Add(time.Hour),
	}))
}

func TestRedeemExactlyOnceUnderContention(t *testing.T) {
	ctx := context.Background()
	db := NewBallotDB()
	seedBallotElection(t, db)
	require.NoError(t, db.Tokens().Register(ctx, &domain.RegisteredToken{Digest: "d1", ElectionID: "e1", ExpiresAt: t0.Add(time.Hour)}, &domain.AuditEvent{ID: "r"}))

	var wins, used int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ballot := &domain.Ballot{ID: fmt.Sprintf("b%02d", i), ElectionID: "e1", Content: domain.BallotContent{Selections: []string{"yes"}}}
			err := db.Tokens().Redeem(ctx, "d1", ballot, &domain.AuditEvent{ID: ballot.ID}, t0)
			switch err {
			case nil:
				atomic.AddInt32(&wins, 1)
			case repository.ErrTokenRedeemed:
				atomic.AddInt32(&used, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(49), used)
	count, err := db.Ballots().CountByElection(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRedeemRejectsAfterClose(t *testing.T) {
	ctx := context.Background()
	db := NewBallotDB()
	seedBallotElection(t, db)
	require.NoError(t, db.Tokens().Register(ctx, &domain.RegisteredToken{Digest: "d1", ElectionID: "e1", ExpiresAt: t0.Add(time.Hour)}, &domain.AuditEvent{ID: "r"}))

	closed, err := db.Elections().Close(ctx, "e1", t0)
	require.NoError(t, err)
	assert.True(t, closed)

	err = db.Tokens().Redeem(ctx, "d1", &domain.Ballot{ID: "b1", ElectionID: "e1"}, &domain.AuditEvent{ID: "x"}, t0)
	assert.ErrorIs(t, err, repository.ErrElectionNotOpen)

	assert.ErrorIs(t, db.Elections().Upsert(ctx, &domain.BallotElection{ID: "e1"}), repository.ErrElectionClosed)
	again, err := db.Elections().Close(ctx, "e1", t0)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := NewBallotDB()
	seedBallotElection(t, db)
	tok := &domain.RegisteredToken{Digest: "d1", ElectionID: "e1", ExpiresAt: t0.Add(time.Hour)}

	require.NoError(t, db.Tokens().Register(ctx, tok, &domain.AuditEvent{ID: "r1", ElectionID: "e1", Type: domain.AuditRegistered}))
	require.NoError(t, db.Tokens().Register(ctx, tok, &domain.AuditEvent{ID: "r2", ElectionID: "e1", Type: domain.AuditRegistered}))

	events, err := db.Audit().ListByElection(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRedeemExpiredToken(t *testing.T) {
	ctx := context.Background()
	db := NewBallotDB()
	seedBallotElection(t, db)
	require.NoError(t, db.Tokens().Register(ctx, &domain.RegisteredToken{Digest: "d1", ElectionID: "e1", ExpiresAt: t0}, &domain.AuditEvent{ID: "r"}))

	err := db.Tokens().Redeem(ctx, "d1", &domain.Ballot{ID: "b1", ElectionID: "e1"}, &domain.AuditEvent{ID: "x"}, t0)
	assert.ErrorIs(t, err, repository.ErrTokenExpired)
}
