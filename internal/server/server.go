// Package server exposes the settlement surface over HTTP and streams crash
// events over a websocket.
package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/config"
	"fairplay/internal/game"
	"fairplay/internal/settlement"
)

// HealthFunc reports the state of one collaborator.
type HealthFunc func(ctx context.Context) map[string]string

type FiberServer struct {
	*fiber.App

	cfg    config.ServerConfig
	svc    *settlement.Service
	hub    *game.Hub
	health map[string]HealthFunc
}

func New(cfg config.ServerConfig, svc *settlement.Service, hub *game.Hub, health map[string]HealthFunc) *FiberServer {
	if health == nil {
		health = map[string]HealthFunc{}
	}
	s := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:          cfg.AppName,
			AppName:               cfg.AppName,
			ReadTimeout:           cfg.ReadTimeout,
			WriteTimeout:          cfg.WriteTimeout,
			IdleTimeout:           cfg.IdleTimeout,
			ErrorHandler:          errorHandler,
			DisableStartupMessage: true,
		}),
		cfg:    cfg,
		svc:    svc,
		hub:    hub,
		health: health,
	}

	s.App.Use(recover.New())
	s.App.Use(requestid.New())
	if cfg.RateLimitMax > 0 {
		s.App.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimitMax,
			Expiration: 1 * time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/health" || c.Path() == "/ws"
			},
		}))
	}
	s.App.Use(requestLogger)

	s.RegisterFiberRoutes()
	return s
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			status = fe.Code
		default:
			status = statusFor(err)
		}
	}
	ev := log.Debug()
	if status >= fiber.StatusInternalServerError {
		ev = log.Error().Err(err)
	}
	ev.Str("component", "server").
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("took", time.Since(start)).
		Msg("request")
	return err
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ErrValidation:
		return fiber.StatusBadRequest
	case apperr.ErrInsufficientFunds:
		return fiber.StatusPaymentRequired
	case apperr.ErrIllegalState:
		return fiber.StatusConflict
	case apperr.ErrNotFound:
		return fiber.StatusNotFound
	case apperr.ErrConflict:
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	status := statusFor(err)
	body := fiber.Map{"error": err.Error()}
	if kind := apperr.KindOf(err); kind != nil {
		body["kind"] = kind.Error()
		var ae *apperr.Error
		if errors.As(err, &ae) {
			body["error"] = ae.Msg
		}
	}
	if errors.Is(err, apperr.ErrConflict) {
		c.Set(fiber.HeaderRetryAfter, "0")
		body["retryable"] = true
	}
	if status == fiber.StatusInternalServerError {
		body["error"] = "internal error"
	}
	return c.Status(status).JSON(body)
}

func badRequest(format string, err error) error {
	return apperr.Validation("server", format, strings.TrimSpace(err.Error()))
}
