// Package telegram wraps the Telegram Bot API calls the rest of the
// application depends on: sending HTML messages, resolving chats, and
// checking an operator's membership role.
package telegram

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Verdict is the tri-state outcome of a membership role check.
//
// VerdictUndetermined means the check itself could not be performed, for
// example when the bot cannot see the target's member list. Callers are
// allowed to let an undetermined check proceed; this is an accepted
// trade-off, not an oversight.
type Verdict int

// Role check outcomes.
const (
	VerdictAuthorized Verdict = iota
	VerdictDenied
	VerdictUndetermined
)

// Chat is a resolved chat, channel, or group.
type Chat struct {
	ID    string
	Title string
}

// Client talks to the Telegram Bot API.
type Client struct {
	api telegramAPI
	log *slog.Logger
}

// New creates a Client with the given bot token.
func New(token string, log *slog.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Client{api: api, log: log}, nil
}

// NewWithAPI creates a Client on top of an existing API implementation
// (useful for testing).
func NewWithAPI(api telegramAPI, log *slog.Logger) *Client {
	return &Client{api: api, log: log}
}

// SendMessage sends an HTML-formatted message to the destination. Web
// page previews are left enabled so the title link renders a preview.
func (c *Client) SendMessage(destinationID, html string) error {
	chatID, err := strconv.ParseInt(destinationID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid destination ID %q: %w", destinationID, err)
	}

	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %s: %w", destinationID, err)
	}
	return nil
}

// ResolveChat looks up a chat by @username or numeric ID.
func (c *Client) ResolveChat(identifier string) (Chat, error) {
	var cfg tgbotapi.ChatConfig
	if strings.HasPrefix(identifier, "@") {
		cfg.SuperGroupUsername = identifier
	} else {
		id, err := strconv.ParseInt(identifier, 10, 64)
		if err != nil {
			return Chat{}, fmt.Errorf("invalid chat identifier %q", identifier)
		}
		cfg.ChatID = id
	}

	chat, err := c.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: cfg})
	if err != nil {
		return Chat{}, fmt.Errorf("get chat %s: %w", identifier, err)
	}

	resolved := Chat{ID: strconv.FormatInt(chat.ID, 10)}
	switch {
	case chat.Title != "":
		resolved.Title = chat.Title
	case chat.UserName != "":
		resolved.Title = chat.UserName
	default:
		resolved.Title = resolved.ID
	}
	return resolved, nil
}

// CheckAdmin reports whether the user is an administrator or creator of
// the destination.
func (c *Client) CheckAdmin(destinationID string, userID int64) Verdict {
	chatID, err := strconv.ParseInt(destinationID, 10, 64)
	if err != nil {
		return VerdictUndetermined
	}

	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		c.log.Debug("role check failed", "destination", destinationID, "user_id", userID, "error", err)
		return VerdictUndetermined
	}

	if member.Status == "administrator" || member.Status == "creator" {
		return VerdictAuthorized
	}
	return VerdictDenied
}
