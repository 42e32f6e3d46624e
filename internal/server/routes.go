package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type,X-Tenant-ID,X-User-ID",
		ExposeHeaders:    "Retry-After,X-Request-ID",
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	fairness := api.Group("/fairness")
	fairness.Post("/commit", identity, s.commitHandler)
	fairness.Post("/rotate", identity, s.rotateHandler)
	fairness.Post("/verify", s.verifyHandler)
	fairness.Post("/replay", s.replayHandler)
	fairness.Get("/commitments/:hash", s.commitmentHandler)

	rounds := api.Group("/rounds")
	rounds.Post("/", identity, s.startRoundHandler)
	rounds.Get("/:id", identity, s.getRoundHandler)
	rounds.Post("/:id/actions", identity, s.actHandler)
	rounds.Post("/:id/cashout", identity, s.cashOutHandler)

	s.RegisterGameRoutes(api)

	crash := api.Group("/crash")
	crash.Get("/current", s.crashCurrentHandler)
	crash.Get("/history", s.crashHistoryHandler)
	crash.Post("/join", identity, s.crashJoinHandler)
	crash.Post("/:id/cashout", identity, s.crashCashOutHandler)

	wallets := api.Group("/wallets")
	wallets.Post("/transfer", identity, s.transferHandler)
	wallets.Get("/:bucket", identity, s.balanceHandler)
	wallets.Post("/:bucket/deposit", identity, s.depositHandler)
	wallets.Post("/:bucket/withdraw", identity, s.withdrawHandler)
	wallets.Get("/:bucket/entries", identity, s.entriesHandler)

	contests := api.Group("/contests")
	contests.Get("/", s.listContestsHandler)
	contests.Post("/", identity, s.createContestHandler)
	contests.Get("/:id", s.getContestHandler)
	contests.Post("/:id/entries", identity, s.enterContestHandler)
	contests.Post("/:id/live", identity, s.contestLiveHandler)
	contests.Post("/:id/stats", identity, s.contestStatsHandler)
	contests.Post("/:id/settle", identity, s.settleContestHandler)
	contests.Post("/:id/cancel", identity, s.cancelContestHandler)
	contests.Get("/:id/leaderboard", s.leaderboardHandler)

	s.App.Use("/ws", upgradeOnly)
	s.App.Get("/ws", websocket.New(s.crashWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{"status": "ok"}
	for name, check := range s.health {
		stats := check(c.UserContext())
		if stats["status"] != "up" {
			health["status"] = "degraded"
		}
		health[name] = stats
	}
	if s.hub != nil {
		health["ws"] = fiber.Map{"connected_clients": s.hub.GetClientCount()}
	}
	return c.JSON(health)
}
