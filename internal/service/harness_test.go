package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/events"
	"github.com/ballotbox/election-service/internal/observability"
	"github.com/ballotbox/election-service/internal/outbox"
	"github.com/ballotbox/election-service/internal/repository/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// loopback serves the ballot side's S2S surface in-process.
type loopback struct {
	elections *BallotElectionService
	results   *ResultsService
	// failRegister makes RegisterToken fail while set.
	failRegister atomic.Bool
	// failLookup makes TokenState fail while set.
	failLookup atomic.Bool
}

func (l *loopback) SyncElection(ctx context.Context, election domain.BallotElection) error {
	return l.elections.Sync(ctx, election)
}

func (l *loopback) CloseElection(ctx context.Context, electionID, actor string, closedAt time.Time) error {
	return l.elections.Close(ctx, electionID, actor, closedAt)
}

func (l *loopback) RegisterToken(ctx context.Context, reg domain.TokenRegistration) error {
	if l.failRegister.Load() {
		return errors.New("connection refused")
	}
	return l.elections.RegisterToken(ctx, reg)
}

func (l *loopback) TokenState(ctx context.Context, digest string) (*domain.RedemptionState, error) {
	if l.failLookup.Load() {
		return nil, errors.New("connection refused")
	}
	return l.elections.TokenState(ctx, digest)
}

func (l *loopback) FetchResults(ctx context.Context, electionID string) (*domain.ElectionResults, error) {
	return l.results.Tabulate(ctx, electionID)
}

func (l *loopback) FetchLedger(ctx context.Context, electionID string) (*domain.LedgerExport, error) {
	return l.elections.Ledger(ctx, electionID)
}

type harness struct {
	clock    *testClock
	eligDB   *memory.EligibilityDB
	ballotDB *memory.BallotDB
	peer     *loopback
	queue    *outbox.MemoryQueue
	metrics  *observability.Metrics
	// eligEvents is the eligibility side's dispatcher.
	eligEvents events.Dispatcher

	elections *ElectionService
	issuance  *IssuanceService
	recorder  *VoteRecorder
	reconcile *ReconciliationService
}

var testStart = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: testStart}
	h := &harness{
		clock:    clock,
		eligDB:   memory.NewEligibilityDB(),
		ballotDB: memory.NewBallotDB(),
		queue:    outbox.NewMemoryQueue(),
		metrics:  observability.NewMetrics(),
	}
	now := Clock(clock.Now)
	h.eligEvents = events.NewInMemoryDispatcher(nil)

	ballotDispatcher := events.NewInMemoryDispatcher(nil)
	NewNotificationService(ballotDispatcher, h.queue, nil).RegisterHandlers()

	h.peer = &loopback{
		elections: NewBallotElectionService(BallotElectionDependencies{
			ElectionRepo: h.ballotDB.Elections(),
			TokenRepo:    h.ballotDB.Tokens(),
			BallotRepo:   h.ballotDB.Ballots(),
			AuditRepo:    h.ballotDB.Audit(),
			Clock:        now,
		}),
		results: NewResultsService(h.ballotDB.Elections(), h.ballotDB.Ballots(), now),
	}
	h.recorder = NewVoteRecorder(VoteRecorderDependencies{
		ElectionRepo: h.ballotDB.Elections(),
		TokenRepo:    h.ballotDB.Tokens(),
		Dispatcher:   ballotDispatcher,
		Metrics:      h.metrics,
		Clock:        now,
	})
	h.elections = NewElectionService(ElectionDependencies{
		ElectionRepo: h.eligDB.Elections(),
		AuditRepo:    h.eligDB.Audit(),
		Ballot:       h.peer,
		Dispatcher:   h.eligEvents,
		Metrics:      h.metrics,
		Clock:        now,
	})
	h.issuance = NewIssuanceService(IssuanceDependencies{
		ElectionRepo: h.eligDB.Elections(),
		TokenRepo:    h.eligDB.Tokens(),
		Registrar:    h.peer,
		Dispatcher:   h.eligEvents,
		Metrics:      h.metrics,
		Clock:        now,
		TokenTTL:     24 * time.Hour,
	})
	h.reconcile = NewReconciliationService(ReconciliationDependencies{
		ElectionRepo: h.eligDB.Elections(),
		TokenRepo:    h.eligDB.Tokens(),
		Ballot:       h.peer,
		Clock:        now,
	})
	return h
}

func answers(ids ...string) []domain.Answer {
	out := make([]domain.Answer, len(ids))
	for i, id := range ids {
		out[i] = domain.Answer{ID: id, Text: "Option " + id, DisplayOrder: i + 1}
	}
	return out
}

func (h *harness) publishedElection(t *testing.T, method domain.VotingMethod, opts ...func(*ElectionInput)) *domain.Election {
	t.Helper()
	input := ElectionInput{
		Title:        "Board election",
		Question:     "Who should serve?",
		VotingMethod: method,
		VotingStart:  testStart.Add(-time.Hour),
		VotingEnd:    testStart.Add(48 * time.Hour),
		Answers:      answers("A", "B", "C", "D"),
	}
	if method == domain.VotingMethodMultiChoice {
		input.MaxSelections = 2
	}
	for _, opt := range opts {
		opt(&input)
	}
	ctx := context.Background()
	election, err := h.elections.Create(ctx, "admin-1", input)
	require.NoError(t, err)
	election, err = h.elections.Publish(ctx, "admin-1", election.ID)
	require.NoError(t, err)
	return election
}

func member(ref string, roles ...string) domain.CallerAttributes {
	return domain.CallerAttributes{MemberRef: ref, MembershipStatus: domain.MembershipActive, Roles: roles}
}
