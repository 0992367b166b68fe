package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ballotbox/election-service/internal/api/http/handlers"
	"github.com/ballotbox/election-service/internal/auth"
)

// EligibilityRoutes bundles dependencies for the eligibility authority.
type EligibilityRoutes struct {
	Health         *handlers.HealthHandler
	Admin          *handlers.ElectionsAdminHandler
	Member         *handlers.MemberElectionsHandler
	Peer           *handlers.EligibilityPeerHandler
	AuthMiddleware *auth.AuthMiddleware
	ServiceKeys    []string
}

// RegisterEligibilityRoutes wires the eligibility authority's HTTP routes.
func RegisterEligibilityRoutes(app *fiber.App, cfg EligibilityRoutes) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	admin := app.Group("/admin/elections", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Post("/", cfg.Admin.Create)
	admin.Get("/", cfg.Admin.List)
	admin.Get("/:id", cfg.Admin.Get)
	admin.Patch("/:id", cfg.Admin.Update)
	admin.Put("/:id/answers", cfg.Admin.ReplaceAnswers)
	admin.Post("/:id/publish", cfg.Admin.Publish)
	admin.Post("/:id/close", cfg.Admin.Close)
	admin.Post("/:id/hide", cfg.Admin.Hide)
	admin.Post("/:id/unhide", cfg.Admin.Unhide)
	admin.Get("/:id/results", cfg.Admin.Results)
	admin.Get("/:id/reconciliation", cfg.Admin.Reconcile)

	member := app.Group("/elections", cfg.AuthMiddleware.Handle, auth.RequireCaller())
	member.Get("/", cfg.Member.List)
	member.Post("/:id/token", cfg.Member.RequestToken)
	member.Get("/:id/status", cfg.Member.Status)

	peer := app.Group("/s2s", auth.RequireServiceKey(cfg.ServiceKeys))
	peer.Post("/tokens/used", cfg.Peer.MarkUsed)
}

// BallotRoutes bundles dependencies for the ballot authority.
type BallotRoutes struct {
	Health      *handlers.HealthHandler
	Ballots     *handlers.BallotsHandler
	Peer        *handlers.BallotPeerHandler
	ServiceKeys []string
}

// RegisterBallotRoutes wires the ballot authority's HTTP routes. There is no
// identity middleware here: the voting token is the only credential.
func RegisterBallotRoutes(app *fiber.App, cfg BallotRoutes) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/ballots", cfg.Ballots.Cast)

	peer := app.Group("/s2s", auth.RequireServiceKey(cfg.ServiceKeys))
	peer.Put("/elections/:id", cfg.Peer.SyncElection)
	peer.Post("/elections/:id/close", cfg.Peer.CloseElection)
	peer.Post("/tokens", cfg.Peer.RegisterToken)
	peer.Get("/tokens/:digest", cfg.Peer.TokenState)
	peer.Get("/elections/:id/results", cfg.Peer.Results)
	peer.Get("/elections/:id/audit", cfg.Peer.Ledger)
}
