// Package bot routes operator commands and membership events to the
// subscription store.
package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"feedrelay/internal/store"
	"feedrelay/internal/telegram"
)

// Transport is the subset of the Telegram client the router depends on.
type Transport interface {
	SendMessage(destinationID, html string) error
	ResolveChat(identifier string) (telegram.Chat, error)
	CheckAdmin(destinationID string, userID int64) telegram.Verdict
}

// Message is one inbound text event, normalized from the update envelope.
type Message struct {
	ChatID   string
	ChatType string // private, group, supergroup, channel
	SenderID int64
	Text     string
}

// Router parses operator commands, resolves the effective target
// destination, and mutates the subscription store.
type Router struct {
	store *store.Store
	tg    Transport
	log   *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(st *store.Store, tg Transport, log *slog.Logger) *Router {
	return &Router{store: st, tg: tg, log: log}
}

// HandleMessage processes one inbound message. Text that is not a command
// is ignored. Replies always go to the origin chat.
func (r *Router) HandleMessage(ctx context.Context, msg Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	cmd, arg := parseCommand(text)
	r.log.Debug("command", "chat_id", msg.ChatID, "sender_id", msg.SenderID, "text", text)

	if cmd == cmdUnknown {
		r.reply(msg, "Unknown command. See /help for details.")
		return
	}

	spec := specs[cmd]

	if spec.directOnly && msg.ChatType != "private" {
		r.reply(msg, "This command only works in a private chat with the bot.")
		return
	}

	if spec.usage != "" && arg == "" {
		r.reply(msg, spec.usage)
		return
	}

	target := ""
	if spec.needsTarget {
		target = r.resolveTarget(ctx, msg)
		if target == "" {
			r.reply(msg, "No target chat. Use <code>/bind @channel</code> first.")
			return
		}
	}

	switch cmd {
	case cmdStart, cmdHelp:
		r.handleHelp(msg)
	case cmdBind:
		r.handleBind(ctx, msg, arg)
	case cmdUnbind:
		r.handleUnbind(ctx, msg)
	case cmdAddFeed:
		r.handleAddFeed(ctx, msg, target, arg)
	case cmdRemoveFeed:
		r.handleRemoveFeed(ctx, msg, target, arg)
	case cmdListFeeds:
		r.handleListFeeds(ctx, msg, target)
	case cmdReset:
		r.handleReset(ctx, msg, target)
	}
}

// resolveTarget returns the destination a command acts on: the origin chat
// itself outside private chats, otherwise the operator's session binding.
func (r *Router) resolveTarget(ctx context.Context, msg Message) string {
	if msg.ChatType != "private" {
		return msg.ChatID
	}
	target, err := r.store.BoundTarget(ctx, operatorID(msg))
	if err != nil {
		r.log.Error("get bound target", "sender_id", msg.SenderID, "error", err)
		return ""
	}
	return target
}

func (r *Router) reply(msg Message, html string) {
	if err := r.tg.SendMessage(msg.ChatID, html); err != nil {
		r.log.Error("send reply", "chat_id", msg.ChatID, "error", err)
	}
}

func operatorID(msg Message) string {
	return strconv.FormatInt(msg.SenderID, 10)
}
