package main

import (
	"github.com/spf13/cobra"

	httptransport "github.com/ballotbox/election-service/internal/api/http"
	"github.com/ballotbox/election-service/internal/api/http/handlers"
	"github.com/ballotbox/election-service/internal/events"
	"github.com/ballotbox/election-service/internal/outbox"
	"github.com/ballotbox/election-service/internal/repository"
	"github.com/ballotbox/election-service/internal/repository/memory"
	"github.com/ballotbox/election-service/internal/s2s"
	"github.com/ballotbox/election-service/internal/service"
	"github.com/ballotbox/election-service/internal/worker"
)

const notifyQueueKey = "outbox:notify-used"

func ballotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ballot",
		Short: "Run the ballot authority",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := bootstrap(ctx, "ballot")
			if err != nil {
				return err
			}
			defer rt.close()
			cfg, logger := rt.cfg, rt.logger

			var (
				electionRepo repository.BallotElectionRepository
				tokenRepo    repository.RegisteredTokenRepository
				ballotRepo   repository.BallotRepository
				auditRepo    repository.AuditRepository
			)
			if rt.postgres.Enabled() {
				pool := rt.postgres.PoolHandle()
				electionRepo = repository.NewBallotElectionRepository(pool)
				tokenRepo = repository.NewRegisteredTokenRepository(pool)
				ballotRepo = repository.NewBallotRepository(pool)
				auditRepo = repository.NewAuditRepository(pool)
			} else {
				db := memory.NewBallotDB()
				electionRepo, tokenRepo, ballotRepo, auditRepo = db.Elections(), db.Tokens(), db.Ballots(), db.Audit()
			}

			var queue outbox.Queue = outbox.NewMemoryQueue()
			if rt.redis.Enabled() {
				queue = outbox.NewRedisQueue(rt.redis.Client, notifyQueueKey)
			}

			dispatcher := events.NewInMemoryDispatcher(logger)
			service.NewNotificationService(dispatcher, queue, logger).RegisterHandlers()

			ballotElections := service.NewBallotElectionService(service.BallotElectionDependencies{
				ElectionRepo: electionRepo,
				TokenRepo:    tokenRepo,
				BallotRepo:   ballotRepo,
				AuditRepo:    auditRepo,
				Logger:       logger,
			})
			recorder := service.NewVoteRecorder(service.VoteRecorderDependencies{
				ElectionRepo: electionRepo,
				TokenRepo:    tokenRepo,
				Dispatcher:   dispatcher,
				Logger:       logger,
				Metrics:      rt.metrics,
			})
			results := service.NewResultsService(electionRepo, ballotRepo, nil)

			app := rt.newApp()
			httptransport.RegisterBallotRoutes(app, httptransport.BallotRoutes{
				Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, rt.postgres, rt.redis),
				Ballots:     handlers.NewBallotsHandler(recorder),
				Peer:        handlers.NewBallotPeerHandler(ballotElections, results),
				ServiceKeys: cfg.S2S.AcceptedKeys,
			})

			eligibility := s2s.NewEligibilityClient(s2s.NewClient(cfg.S2S, logger))
			notifier := worker.NewNotifyUsedWorker(queue, eligibility, logger, rt.metrics, worker.NotifyUsedOptions{
				Interval: cfg.Workers.NotifyPollInterval(),
			})
			go notifier.Run(ctx)

			return rt.serve(ctx, app)
		},
	}
}
