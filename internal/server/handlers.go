package server

import (
	"github.com/gofiber/fiber/v2"

	"fairplay/internal/fair"
	"fairplay/internal/game"
)

type seedRequest struct {
	ClientSeed string `json:"client_seed"`
}

func (s *FiberServer) commitHandler(c *fiber.Ctx) error {
	var req seedRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	commitment, err := s.svc.Commit(c.UserContext(), caller(c), req.ClientSeed)
	if err != nil {
		return err
	}
	return c.JSON(commitment)
}

func (s *FiberServer) rotateHandler(c *fiber.Ctx) error {
	var req seedRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	revealed, next, err := s.svc.Rotate(c.UserContext(), caller(c), req.ClientSeed)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"revealed": revealed, "next": next})
}

type verifyRequest struct {
	Variant game.GameType `json:"variant"`
	fair.SeedPair
	Result float64 `json:"result"`
}

func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	var req verifyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.svc.VerifyFairness(req.Variant, req.SeedPair, req.Result)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *FiberServer) replayHandler(c *fiber.Ctx) error {
	var req verifyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	out, err := s.svc.Replay(req.Variant, req.SeedPair)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"variant": req.Variant, "fairness": req.SeedPair, "replay": out})
}

func (s *FiberServer) commitmentHandler(c *fiber.Ctx) error {
	commitment, err := s.svc.Commitment(c.UserContext(), c.Params("hash"))
	if err != nil {
		return err
	}
	return c.JSON(commitment)
}

func (s *FiberServer) startRoundHandler(c *fiber.Ctx) error {
	b, err := bucket(c)
	if err != nil {
		return err
	}
	var req game.StartRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	st, err := s.svc.StartRound(c.UserContext(), caller(c), b, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(st)
}

func (s *FiberServer) getRoundHandler(c *fiber.Ctx) error {
	st, err := s.svc.Round(c.UserContext(), caller(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *FiberServer) actHandler(c *fiber.Ctx) error {
	var a game.Action
	if err := parseBody(c, &a); err != nil {
		return err
	}
	st, err := s.svc.Act(c.UserContext(), caller(c), c.Params("id"), a)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *FiberServer) cashOutHandler(c *fiber.Ctx) error {
	res, err := s.svc.CashOut(c.UserContext(), caller(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}
