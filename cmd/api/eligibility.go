package main

import (
	"time"

	"github.com/spf13/cobra"

	httptransport "github.com/ballotbox/election-service/internal/api/http"
	"github.com/ballotbox/election-service/internal/api/http/handlers"
	"github.com/ballotbox/election-service/internal/auth"
	"github.com/ballotbox/election-service/internal/cache"
	"github.com/ballotbox/election-service/internal/events"
	"github.com/ballotbox/election-service/internal/ratelimit"
	"github.com/ballotbox/election-service/internal/repository"
	"github.com/ballotbox/election-service/internal/repository/memory"
	"github.com/ballotbox/election-service/internal/s2s"
	"github.com/ballotbox/election-service/internal/service"
	"github.com/ballotbox/election-service/internal/worker"
)

func eligibilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eligibility",
		Short: "Run the eligibility & token authority",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := bootstrap(ctx, "eligibility")
			if err != nil {
				return err
			}
			defer rt.close()
			cfg, logger := rt.cfg, rt.logger

			var (
				electionRepo repository.ElectionRepository
				tokenRepo    repository.VotingTokenRepository
				auditRepo    repository.AuditRepository
			)
			if rt.postgres.Enabled() {
				pool := rt.postgres.PoolHandle()
				electionRepo = repository.NewElectionRepository(pool)
				tokenRepo = repository.NewVotingTokenRepository(pool)
				auditRepo = repository.NewAuditRepository(pool)
			} else {
				db := memory.NewEligibilityDB()
				electionRepo, tokenRepo, auditRepo = db.Elections(), db.Tokens(), db.Audit()
			}

			var (
				limiter ratelimit.Limiter
				results cache.ResultsCache
			)
			if rt.redis.Enabled() {
				limiter = ratelimit.NewRedisLimiter(rt.redis.Client, "ratelimit:token", cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window())
				results = cache.NewRedisResultsCache(rt.redis.Client, 24*time.Hour)
			} else {
				limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window())
				results = cache.NewMemoryResultsCache()
			}

			ballot := s2s.NewBallotClient(s2s.NewClient(cfg.S2S, logger))
			dispatcher := events.NewInMemoryDispatcher(logger)
			service.NewNotificationService(dispatcher, nil, logger).RegisterHandlers()

			elections := service.NewElectionService(service.ElectionDependencies{
				ElectionRepo: electionRepo,
				AuditRepo:    auditRepo,
				Ballot:       ballot,
				ResultsCache: results,
				Dispatcher:   dispatcher,
				Logger:       logger,
				Metrics:      rt.metrics,
			})
			issuance := service.NewIssuanceService(service.IssuanceDependencies{
				ElectionRepo:   electionRepo,
				TokenRepo:      tokenRepo,
				Registrar:      ballot,
				Limiter:        limiter,
				Dispatcher:     dispatcher,
				Logger:         logger,
				Metrics:        rt.metrics,
				TokenTTL:       cfg.Tokens.TTL(),
				ReservationTTL: cfg.Tokens.ReservationTTL(),
			})
			reconcile := service.NewReconciliationService(service.ReconciliationDependencies{
				ElectionRepo: electionRepo,
				TokenRepo:    tokenRepo,
				Ballot:       ballot,
				Logger:       logger,
			})

			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes)
			app := rt.newApp()
			httptransport.RegisterEligibilityRoutes(app, httptransport.EligibilityRoutes{
				Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, rt.postgres, rt.redis),
				Admin:          handlers.NewElectionsAdminHandler(elections, reconcile),
				Member:         handlers.NewMemberElectionsHandler(elections, issuance),
				Peer:           handlers.NewEligibilityPeerHandler(issuance),
				AuthMiddleware: auth.NewAuthMiddleware(tokens),
				ServiceKeys:    cfg.S2S.AcceptedKeys,
			})

			go worker.NewElectionCloser(elections, cfg.Workers.CloserInterval(), logger).Run(ctx)

			return rt.serve(ctx, app)
		},
	}
}
