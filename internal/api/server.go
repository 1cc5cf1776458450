package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
	"github.com/peteat123/Peteat-sub001/internal/auth"
	"github.com/peteat123/Peteat-sub001/internal/domain"
	"github.com/peteat123/Peteat-sub001/internal/metrics"
	"github.com/peteat123/Peteat-sub001/internal/middleware"
	"github.com/peteat123/Peteat-sub001/internal/presence"
	"github.com/peteat123/Peteat-sub001/internal/push"
	"github.com/peteat123/Peteat-sub001/internal/reminder"
	"github.com/peteat123/Peteat-sub001/internal/repository"
)

type PushTokenStore interface {
	Upsert(ctx context.Context, userID, token, platform string) (*domain.PushToken, error)
	Delete(ctx context.Context, token, ownerID string) error
}

type ConversationReader interface {
	ListFor(ctx context.Context, userID string, limit int64) ([]*domain.Conversation, error)
}

type MessageReader interface {
	History(ctx context.Context, a, b string, limit int64, before time.Time) ([]*domain.Message, error)
}

type NotificationStore interface {
	ListFor(ctx context.Context, userID string, limit int64) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type ReminderRunner interface {
	RunOnce(ctx context.Context) (reminder.Result, error)
}

type PresenceReader interface {
	Get(ctx context.Context, userID string) (*presence.Status, error)
}

type WSHandler interface {
	Upgrade() fiber.Handler
	Serve() fiber.Handler
}

// Deps are the collaborators behind the REST and websocket routes. Reminders
// and Presence may be nil when the feature is disabled.
type Deps struct {
	Auth          *auth.Middleware
	WS            WSHandler
	PushTokens    PushTokenStore
	Conversations ConversationReader
	Messages      MessageReader
	Notifications NotificationStore
	Pusher        push.Sender
	Reminders     ReminderRunner
	Presence      PresenceReader
	RateLimiter   *middleware.RateLimiter
	Log           *zap.Logger
}

type Server struct {
	deps Deps
	log  *zap.Logger
}

func NewServer(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "peteat-realtime",
		UnescapePath: true,
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(middleware.Metrics())

	s := &Server{deps: deps, log: deps.Log}

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/v1")
	v1.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	v1.Get("/ws", deps.WS.Upgrade(), deps.WS.Serve())

	authed := v1.Group("", deps.Auth.Handler())
	if deps.RateLimiter != nil {
		authed.Use(deps.RateLimiter.MiddlewareByKey(func(c *fiber.Ctx) string {
			return auth.IdentityFrom(c).UserID
		}))
	}

	authed.Post("/push-tokens", s.registerPushToken)
	authed.Delete("/push-tokens/:token", s.deletePushToken)

	authed.Get("/conversations", s.listConversations)
	authed.Get("/conversations/:peer/messages", s.listMessages)

	authed.Get("/notifications", s.listNotifications)
	authed.Post("/notifications/:id/read", s.markNotificationRead)

	authed.Get("/presence/:user", s.getPresence)

	authed.Post("/reminders/run", deps.Auth.RequireAdmin(), s.runReminders)
	authed.Post("/alerts/broadcast", deps.Auth.RequireBroadcaster(), s.broadcastAlert)

	return app
}

// errorHandler renders apperr and fiber errors as {"error","code"}.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message, "code": apperr.CodeUnknown})
	}
	return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
		"error": apperr.MessageOf(err),
		"code":  apperr.CodeOf(err),
	})
}

// mapErr converts store sentinels into taxonomy errors.
func mapErr(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(what + " not found")
	case errors.Is(err, reminder.ErrAlreadyRunning):
		return apperr.Conflict(err.Error())
	default:
		return err
	}
}
