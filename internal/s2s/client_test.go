package s2s

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ballotbox/election-service/internal/api/dto"
	"github.com/ballotbox/election-service/internal/auth"
	"github.com/ballotbox/election-service/internal/config"
	"github.com/ballotbox/election-service/internal/domain"
)

func startPeer(t *testing.T, register func(app *fiber.App)) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	register(app)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func newTestClient(base string, retries int) *Client {
	c := NewClient(config.S2SConfig{PeerURL: base, APIKey: "k", TimeoutMs: 500, MaxRetries: retries}, zap.NewNop())
	c.backoff = time.Millisecond
	return c
}

func TestRegisterTokenSendsKeyAndBody(t *testing.T) {
	var got domain.TokenRegistration
	var key string
	base := startPeer(t, func(app *fiber.App) {
		app.Post("/s2s/tokens", func(c *fiber.Ctx) error {
			key = c.Get(auth.ServiceKeyHeader)
			if err := c.BodyParser(&got); err != nil {
				return err
			}
			return c.SendStatus(fiber.StatusCreated)
		})
	})

	err := NewBallotClient(newTestClient(base, 0)).RegisterToken(context.Background(), domain.TokenRegistration{Digest: "abc", ElectionID: "e1"})

	require.NoError(t, err)
	assert.Equal(t, "k", key)
	assert.Equal(t, "abc", got.Digest)
}

func TestRetriesTemporaryFailures(t *testing.T) {
	var calls int32
	base := startPeer(t, func(app *fiber.App) {
		app.Post("/s2s/tokens/used", func(c *fiber.Ctx) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": fiber.Map{"code": "X"}})
			}
			return c.JSON(dto.NotifyUsedResponse{Changed: true})
		})
	})

	err := NewEligibilityClient(newTestClient(base, 3)).NotifyUsed(context.Background(), "d", "e")

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetriesErrorsFlaggedRetryable(t *testing.T) {
	var calls int32
	base := startPeer(t, func(app *fiber.App) {
		app.Get("/s2s/tokens/:digest", func(c *fiber.Ctx) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorEnvelope{Error: dto.ErrorBody{Code: "RATE_LIMITED", Retryable: true}})
			}
			return c.JSON(domain.RedemptionState{Redeemed: true})
		})
	})

	state, err := NewBallotClient(newTestClient(base, 2)).TokenState(context.Background(), "d1")

	require.NoError(t, err)
	assert.True(t, state.Redeemed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRemoteErrorTemporary(t *testing.T) {
	cases := []struct {
		name string
		err  RemoteError
		want bool
	}{
		{"flagged retryable", RemoteError{Status: 409, Code: "X", Retryable: true}, true},
		{"local validation", RemoteError{Status: 400, Code: "VALIDATION_FAILED"}, false},
		{"server failure", RemoteError{Status: 500, Code: "INTERNAL_ERROR"}, true},
		{"bare 429", RemoteError{Status: 429}, true},
		{"enveloped 429 without flag", RemoteError{Status: 429, Code: "X"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Temporary())
		})
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	base := startPeer(t, func(app *fiber.App) {
		app.Post("/s2s/elections/:id/close", func(c *fiber.Ctx) error {
			atomic.AddInt32(&calls, 1)
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "election not found"}})
		})
	})

	err := NewBallotClient(newTestClient(base, 3)).CloseElection(context.Background(), "e1", "system", time.Now())

	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", RemoteCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUnreachablePeer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = NewBallotClient(newTestClient("http://"+addr, 1)).RegisterToken(context.Background(), domain.TokenRegistration{Digest: "d"})

	require.Error(t, err)
	assert.Empty(t, RemoteCode(err))
}

func TestFetchResultsDecodes(t *testing.T) {
	base := startPeer(t, func(app *fiber.App) {
		app.Get("/s2s/elections/:id/results", func(c *fiber.Ctx) error {
			return c.JSON(domain.ElectionResults{ElectionID: c.Params("id"), TotalBallots: 7})
		})
	})

	res, err := NewBallotClient(newTestClient(base, 0)).FetchResults(context.Background(), "e9")

	require.NoError(t, err)
	assert.Equal(t, "e9", res.ElectionID)
	assert.Equal(t, 7, res.TotalBallots)
}
