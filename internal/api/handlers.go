package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
	"github.com/peteat123/Peteat-sub001/internal/auth"
	"github.com/peteat123/Peteat-sub001/internal/push"
	"github.com/peteat123/Peteat-sub001/internal/reminder"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

var platforms = map[string]bool{"ios": true, "android": true, "web": true}

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (s *Server) registerPushToken(c *fiber.Ctx) error {
	id := auth.IdentityFrom(c)
	var req pushTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidArgument("invalid body")
	}
	req.Token = strings.TrimSpace(req.Token)
	req.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
	if req.Token == "" {
		return apperr.InvalidArgument("token required")
	}
	if !platforms[req.Platform] {
		return apperr.InvalidArgument("platform must be ios, android or web")
	}

	// Malformed tokens are stored too; dispatch skips them for sending but
	// still records the owner's inbox notification.
	rec, err := s.deps.PushTokens.Upsert(c.UserContext(), id.UserID, req.Token, req.Platform)
	if err != nil {
		s.log.Error("push token upsert failed", zap.String("user_id", id.UserID), zap.Error(err))
		return err
	}
	if !push.IsValidToken(req.Token) {
		s.log.Debug("registered token is not an expo push token", zap.String("user_id", id.UserID))
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (s *Server) deletePushToken(c *fiber.Ctx) error {
	id := auth.IdentityFrom(c)
	if err := s.deps.PushTokens.Delete(c.UserContext(), c.Params("token"), id.UserID); err != nil {
		return mapErr(err, "push token")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	id := auth.IdentityFrom(c)
	limit, err := pageSize(c)
	if err != nil {
		return err
	}
	convs, err := s.deps.Conversations.ListFor(c.UserContext(), id.UserID, limit)
	if err != nil {
		s.log.Error("list conversations failed", zap.String("user_id", id.UserID), zap.Error(err))
		return err
	}
	return c.JSON(fiber.Map{"data": convs})
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	id := auth.IdentityFrom(c)
	limit, err := pageSize(c)
	if err != nil {
		return err
	}
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		if before, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return apperr.InvalidArgument("before must be an RFC3339 timestamp")
		}
	}
	msgs, err := s.deps.Messages.History(c.UserContext(), id.UserID, c.Params("peer"), limit, before)
	if err != nil {
		s.log.Error("message history failed", zap.String("user_id", id.UserID), zap.Error(err))
		return err
	}
	return c.JSON(fiber.Map{"data": msgs})
}

func (s *Server) listNotifications(c *fiber.Ctx) error {
	id := auth.IdentityFrom(c)
	limit, err := pageSize(c)
	if err != nil {
		return err
	}
	ns, err := s.deps.Notifications.ListFor(c.UserContext(), id.UserID, limit)
	if err != nil {
		s.log.Error("list notifications failed", zap.String("user_id", id.UserID), zap.Error(err))
		return err
	}
	return c.JSON(fiber.Map{"data": ns})
}

func (s *Server) markNotificationRead(c *fiber.Ctx) error {
	id := auth.IdentityFrom(c)
	if err := s.deps.Notifications.MarkRead(c.UserContext(), id.UserID, c.Params("id")); err != nil {
		return mapErr(err, "notification")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) getPresence(c *fiber.Ctx) error {
	if s.deps.Presence == nil {
		return fiber.ErrNotImplemented
	}
	st, err := s.deps.Presence.Get(c.UserContext(), c.Params("user"))
	if err != nil {
		s.log.Warn("presence lookup failed", zap.Error(err))
		return err
	}
	return c.JSON(st)
}

func (s *Server) runReminders(c *fiber.Ctx) error {
	if s.deps.Reminders == nil {
		return fiber.ErrNotImplemented
	}
	res, err := s.deps.Reminders.RunOnce(c.UserContext())
	if err != nil {
		if !errors.Is(err, reminder.ErrAlreadyRunning) {
			s.log.Error("manual reminder run failed", zap.Error(err))
		}
		return mapErr(err, "")
	}
	return c.JSON(res)
}

type broadcastRequest struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

func (s *Server) broadcastAlert(c *fiber.Ctx) error {
	id := auth.IdentityFrom(c)
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidArgument("invalid body")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		return apperr.InvalidArgument("title and body are required")
	}
	rep := s.deps.Pusher.BroadcastExcept(c.UserContext(), id.UserID, push.Payload{
		Title: req.Title,
		Body:  req.Body,
		Data:  req.Data,
	})
	return c.Status(fiber.StatusAccepted).JSON(rep)
}

func pageSize(c *fiber.Ctx) (int64, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultPageSize, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, apperr.InvalidArgument("limit must be a positive integer")
	}
	if n > maxPageSize {
		n = maxPageSize
	}
	return n, nil
}
