package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"fairplay/internal/apperr"
	"fairplay/internal/game"
)

// RegisterGameRoutes adds the per-variant information routes.
func (s *FiberServer) RegisterGameRoutes(api fiber.Router) {
	api.Get("/games", s.gamesHandler)
	api.Get("/dice/multiplier", s.diceMultiplierHandler)
	api.Get("/roulette/table", s.rouletteTableHandler)
	api.Get("/slots/symbols", s.slotsSymbolsHandler)
}

func (s *FiberServer) gamesHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"games": s.svc.Games()})
}

func (s *FiberServer) diceMultiplierHandler(c *fiber.Ctx) error {
	e, ok := s.svc.Engine(game.GameTypeDice)
	if !ok {
		return fiber.ErrNotFound
	}
	target, err := decimal.NewFromString(c.Query("target"))
	if err != nil {
		return apperr.Validation("dice.multiplier", "target must be a number, got %q", c.Query("target"))
	}
	p := game.DiceParams{Target: target, RollOver: c.QueryBool("roll_over", false)}
	mult, chance, err := e.(*game.DiceEngine).CalculateMultiplier(p)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"target":     p.Target,
		"roll_over":  p.RollOver,
		"multiplier": mult,
		"win_chance": chance,
	})
}

func (s *FiberServer) rouletteTableHandler(c *fiber.Ctx) error {
	e, ok := s.svc.Engine(game.GameTypeRoulette)
	if !ok {
		return fiber.ErrNotFound
	}
	return c.JSON(e.(*game.RouletteEngine).TableInfo())
}

func (s *FiberServer) slotsSymbolsHandler(c *fiber.Ctx) error {
	e, ok := s.svc.Engine(game.GameTypeSlots)
	if !ok {
		return fiber.ErrNotFound
	}
	pt := e.(*game.SlotsEngine).Paytable()
	return c.JSON(fiber.Map{"rows": pt.Rows, "cols": pt.Cols, "symbols": pt.Symbols})
}
