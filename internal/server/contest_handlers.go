package server

import (
	"github.com/gofiber/fiber/v2"

	"fairplay/internal/fantasy"
)

func (s *FiberServer) listContestsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"contests": s.svc.Contests()})
}

func (s *FiberServer) createContestHandler(c *fiber.Ctx) error {
	var spec fantasy.ContestSpec
	if err := parseBody(c, &spec); err != nil {
		return err
	}
	view, err := s.svc.CreateContest(spec)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (s *FiberServer) getContestHandler(c *fiber.Ctx) error {
	view, err := s.svc.Contest(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *FiberServer) enterContestHandler(c *fiber.Ctx) error {
	b, err := bucket(c)
	if err != nil {
		return err
	}
	var req fantasy.RosterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	r, err := s.svc.EnterContest(c.UserContext(), caller(c), b, c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (s *FiberServer) contestLiveHandler(c *fiber.Ctx) error {
	view, err := s.svc.GoLive(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

type statsRequest struct {
	Stats map[string]fantasy.PlayerStats `json:"stats"`
}

func (s *FiberServer) contestStatsHandler(c *fiber.Ctx) error {
	var req statsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := s.svc.RecordStats(c.Params("id"), req.Stats); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": len(req.Stats)})
}

func (s *FiberServer) settleContestHandler(c *fiber.Ctx) error {
	st, err := s.svc.SettleContest(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *FiberServer) cancelContestHandler(c *fiber.Ctx) error {
	view, err := s.svc.CancelContest(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *FiberServer) leaderboardHandler(c *fiber.Ctx) error {
	board, err := s.svc.Leaderboard(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"leaderboard": board})
}
