// Package server exposes the HTTP surface: the Telegram webhook, the
// authenticated sync trigger, and a health check.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"

	"feedrelay/internal/bot"
	"feedrelay/internal/engine"
)

// Syncer runs one feed-sync pass.
type Syncer interface {
	Run(ctx context.Context) (*engine.Summary, error)
}

// Server is the HTTP front of the bot.
type Server struct {
	app    *fiber.App
	router *bot.Router
	syncer Syncer
	secret string
	log    *slog.Logger
}

// New creates a Server with its routes registered.
func New(router *bot.Router, syncer Syncer, cronSecret string, log *slog.Logger) *Server {
	s := &Server{
		app:    fiber.New(fiber.Config{DisableStartupMessage: true}),
		router: router,
		syncer: syncer,
		secret: cronSecret,
		log:    log,
	}

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	s.app.Get("/sync", s.handleSync)
	s.app.Post("/sync", s.handleSync)
	s.app.Post("/telegram", s.handleWebhook)

	return s
}

// App returns the underlying fiber application (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr, blocking until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handleSync is the scheduled trigger: bearer-authenticated, runs one sync
// pass, and reports the per-run summary.
func (s *Server) handleSync(c *fiber.Ctx) error {
	if c.Get(fiber.HeaderAuthorization) != "Bearer "+s.secret {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"ok":    false,
			"error": "unauthorized",
		})
	}

	summary, err := s.syncer.Run(c.UserContext())
	if err != nil {
		s.log.Error("sync run failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"ok":     true,
		"at":     time.Now().UTC().Format(time.RFC3339),
		"result": summary,
	})
}

// handleWebhook receives the Telegram update envelope. It always
// acknowledges with success so Telegram does not re-deliver on internal
// failures; those are only observable in logs.
func (s *Server) handleWebhook(c *fiber.Ctx) error {
	ack := func() error { return c.JSON(fiber.Map{"ok": true}) }

	var update tgbotapi.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		s.log.Error("decode update", "error", err)
		return ack()
	}

	ctx := c.UserContext()

	if m := update.MyChatMember; m != nil {
		s.router.HandleMemberUpdate(ctx,
			strconv.FormatInt(m.Chat.ID, 10),
			m.NewChatMember.Status)
	}

	if msg := update.Message; msg != nil && msg.Text != "" {
		var senderID int64
		if msg.From != nil {
			senderID = msg.From.ID
		}
		s.router.HandleMessage(ctx, normalizeMessage(msg, senderID))
	}

	if post := update.ChannelPost; post != nil && post.Text != "" {
		// Channel posts carry no from user; the sender falls back to
		// sender_chat and finally a zero-ID sentinel.
		var senderID int64
		switch {
		case post.SenderChat != nil:
			senderID = post.SenderChat.ID
		case post.From != nil:
			senderID = post.From.ID
		}
		s.router.HandleMessage(ctx, normalizeMessage(post, senderID))
	}

	return ack()
}

func normalizeMessage(msg *tgbotapi.Message, senderID int64) bot.Message {
	return bot.Message{
		ChatID:   strconv.FormatInt(msg.Chat.ID, 10),
		ChatType: msg.Chat.Type,
		SenderID: senderID,
		Text:     msg.Text,
	}
}
