package server

import (
	"github.com/gofiber/fiber/v2"

	"fairplay/internal/money"
	"fairplay/internal/wallet"
)

type amountRequest struct {
	Amount    money.Amount `json:"amount"`
	Reference string       `json:"reference,omitempty"`
}

func (s *FiberServer) balanceHandler(c *fiber.Ctx) error {
	b, err := bucket(c)
	if err != nil {
		return err
	}
	bal, err := s.svc.Balance(c.UserContext(), caller(c), b)
	if err != nil {
		return err
	}
	return c.JSON(bal)
}

func (s *FiberServer) depositHandler(c *fiber.Ctx) error {
	b, err := bucket(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	e, err := s.svc.Deposit(c.UserContext(), caller(c), b, req.Amount, req.Reference)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (s *FiberServer) withdrawHandler(c *fiber.Ctx) error {
	b, err := bucket(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	e, err := s.svc.Withdraw(c.UserContext(), caller(c), b, req.Amount, req.Reference)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (s *FiberServer) entriesHandler(c *fiber.Ctx) error {
	b, err := bucket(c)
	if err != nil {
		return err
	}
	limit, err := queryLimit(c, 50)
	if err != nil {
		return err
	}
	entries, err := s.svc.Entries(c.UserContext(), caller(c), b, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"entries": entries})
}

type transferRequest struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Amount money.Amount `json:"amount"`
}

func (s *FiberServer) transferHandler(c *fiber.Ctx) error {
	var req transferRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	from, err := wallet.ParseBucket(req.From)
	if err != nil {
		return err
	}
	to, err := wallet.ParseBucket(req.To)
	if err != nil {
		return err
	}
	res, err := s.svc.Transfer(c.UserContext(), caller(c), from, to, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}
