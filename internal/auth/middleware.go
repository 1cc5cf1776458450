package auth

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
)

const identityKey = "identity"

type Middleware struct {
	verifier Verifier
	log      *zap.Logger
}

func NewMiddleware(v Verifier, log *zap.Logger) *Middleware {
	return &Middleware{verifier: v, log: log}
}

// Handler rejects requests without a valid bearer token and stores the
// caller identity for downstream handlers.
func (m *Middleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok, err := ParseBearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return reject(c, err)
		}
		id, err := m.verifier.Verify(tok)
		if err != nil {
			m.log.Debug("jwt invalid", zap.Error(err))
			return reject(c, err)
		}
		c.Locals(identityKey, id)
		return c.Next()
	}
}

// RequireAdmin must run after Handler.
func (m *Middleware) RequireAdmin() fiber.Handler {
	return m.require((*Identity).CanAdminister, "admin capability required")
}

// RequireBroadcaster allows admins and clinics.
func (m *Middleware) RequireBroadcaster() fiber.Handler {
	return m.require((*Identity).CanBroadcast, "broadcast capability required")
}

func (m *Middleware) require(allowed func(*Identity) bool, msg string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := IdentityFrom(c)
		if id == nil {
			return reject(c, apperr.Unauthenticated("missing identity", nil))
		}
		if !allowed(id) {
			m.log.Debug("capability denied", zap.String("user_id", id.UserID), zap.String("role", id.Role))
			return reject(c, apperr.Forbidden(msg))
		}
		return c.Next()
	}
}

func IdentityFrom(c *fiber.Ctx) *Identity {
	id, _ := c.Locals(identityKey).(*Identity)
	return id
}

func reject(c *fiber.Ctx, err error) error {
	return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
		"error": apperr.MessageOf(err),
		"code":  apperr.CodeOf(err),
	})
}
