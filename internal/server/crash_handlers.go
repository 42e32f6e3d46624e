package server

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"fairplay/internal/settlement"
)

func (s *FiberServer) crashCurrentHandler(c *fiber.Ctx) error {
	snap, err := s.svc.CrashCurrent()
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

func (s *FiberServer) crashHistoryHandler(c *fiber.Ctx) error {
	n, err := queryLimit(c, 20)
	if err != nil {
		return err
	}
	hist, err := s.svc.CrashHistory(c.UserContext(), n)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"rounds": hist})
}

func (s *FiberServer) crashJoinHandler(c *fiber.Ctx) error {
	b, err := bucket(c)
	if err != nil {
		return err
	}
	var req settlement.JoinRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	snap, err := s.svc.JoinCrash(c.UserContext(), caller(c), b, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(snap)
}

func (s *FiberServer) crashCashOutHandler(c *fiber.Ctx) error {
	res, err := s.svc.CrashCashOut(c.UserContext(), caller(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

type wsMessage struct {
	Type string `json:"type"`
}

// crashWebSocketHandler streams crash events. Bets and cashouts go through
// the HTTP routes, where identity is enforced; the socket only answers pings.
func (s *FiberServer) crashWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")
	client := s.hub.RegisterClient(conn, userID)
	defer s.hub.UnregisterClient(client)

	if snap, err := s.svc.CrashCurrent(); err == nil {
		client.SendInitialState(snap)
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("component", "ws").Str("user_id", userID).Msg("read failed")
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			client.Pong()
		}
	}
}
