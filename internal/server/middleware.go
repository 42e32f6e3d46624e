package server

import (
	"strconv"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"fairplay/internal/apperr"
	"fairplay/internal/settlement"
	"fairplay/internal/wallet"
)

const (
	HEADER_TENANT = "X-Tenant-ID"
	HEADER_USER   = "X-User-ID"
	identityKey   = "identity"
)

// identity reads the caller from the headers set by the identity gateway in
// front of this service.
func identity(c *fiber.Ctx) error {
	id := settlement.Identity{TenantID: c.Get(HEADER_TENANT), UserID: c.Get(HEADER_USER)}
	if id.TenantID == "" || id.UserID == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing "+HEADER_TENANT+" or "+HEADER_USER)
	}
	if strings.Contains(id.TenantID, settlement.IDENTITY_SEPARATOR) || strings.Contains(id.UserID, settlement.IDENTITY_SEPARATOR) {
		return fiber.NewError(fiber.StatusBadRequest, HEADER_TENANT+" and "+HEADER_USER+" may not contain "+settlement.IDENTITY_SEPARATOR)
	}
	c.Locals(identityKey, id)
	return c.Next()
}

func caller(c *fiber.Ctx) settlement.Identity {
	id, _ := c.Locals(identityKey).(settlement.Identity)
	return id
}

// bucket reads the wallet bucket from the route or the query string, cash by
// default.
func bucket(c *fiber.Ctx) (wallet.Bucket, error) {
	raw := c.Params("bucket", c.Query("bucket"))
	if raw == "" {
		return wallet.BucketCash, nil
	}
	return wallet.ParseBucket(raw)
}

func queryLimit(c *fiber.Ctx, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperr.Validation("server", "limit must be a positive integer, got %q", raw)
	}
	return n, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return badRequest("invalid request body: %s", err)
	}
	return nil
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
