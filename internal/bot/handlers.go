package bot

import (
	"context"
	"fmt"
	"strings"

	"feedrelay/internal/format"
	"feedrelay/internal/store"
	"feedrelay/internal/telegram"
)

func (r *Router) handleHelp(msg Message) {
	r.reply(msg, strings.Join([]string{
		"<b>Feed Relay Commands</b>",
		"In a group or channel, commands apply to that chat.",
		"In a private chat, <b>/bind</b> a target chat first.",
		"<b>/bind</b> @channel_username or -100xxxx (private chat only)",
		"<b>/unbind</b> (private chat only)",
		"<b>/addfeed</b> https://example.com/rss",
		"<b>/removefeed</b> https://example.com/rss",
		"<b>/listfeeds</b>",
		"<b>/reset</b> (delete this chat's subscriptions)",
	}, "\n"))
}

func (r *Router) handleUnbind(ctx context.Context, msg Message) {
	if err := r.store.ClearBoundTarget(ctx, operatorID(msg)); err != nil {
		r.log.Error("clear bound target", "sender_id", msg.SenderID, "error", err)
		r.reply(msg, "Failed to unbind, try again.")
		return
	}
	r.reply(msg, "OK, unbound.")
}

func (r *Router) handleBind(ctx context.Context, msg Message, arg string) {
	chat, err := r.tg.ResolveChat(arg)
	if err != nil {
		r.reply(msg, "Chat or channel not found: "+format.Esc(arg))
		return
	}

	// Only admins of the target may bind it. An undetermined check (the
	// bot cannot see the member list) is allowed to proceed.
	if r.tg.CheckAdmin(chat.ID, msg.SenderID) == telegram.VerdictDenied {
		r.reply(msg, "You are not an admin or creator of that chat, bind rejected.")
		return
	}

	if err := r.store.BindSession(ctx, operatorID(msg), chat.ID); err != nil {
		r.log.Error("bind session", "sender_id", msg.SenderID, "error", err)
		r.reply(msg, "Failed to bind, try again.")
		return
	}

	r.reply(msg, fmt.Sprintf("OK, bound to <b>%s</b>.\nYou can use /addfeed, /listfeeds...", format.Esc(chat.Title)))
}

func (r *Router) handleAddFeed(ctx context.Context, msg Message, target, arg string) {
	cfg, err := r.store.AddFeed(ctx, target, strings.TrimSpace(arg))
	if err != nil {
		r.log.Error("add feed", "destination", target, "error", err)
		r.reply(msg, "Failed to add feed, try again.")
		return
	}
	r.reply(msg, "Added feed.\n\n<b>Feeds:</b>\n"+formatFeedList(cfg))
}

func (r *Router) handleRemoveFeed(ctx context.Context, msg Message, target, arg string) {
	cfg, err := r.store.RemoveFeed(ctx, target, strings.TrimSpace(arg))
	if err != nil {
		r.log.Error("remove feed", "destination", target, "error", err)
		r.reply(msg, "Failed to remove feed, try again.")
		return
	}
	r.reply(msg, "Removed feed.\n\n<b>Feeds:</b>\n"+formatFeedList(cfg))
}

func (r *Router) handleListFeeds(ctx context.Context, msg Message, target string) {
	cfg, err := r.store.GetConfig(ctx, target)
	if err != nil {
		r.log.Error("get config", "destination", target, "error", err)
		r.reply(msg, "Failed to list feeds, try again.")
		return
	}
	r.reply(msg, "<b>Feeds:</b>\n"+formatFeedList(cfg))
}

func (r *Router) handleReset(ctx context.Context, msg Message, target string) {
	if err := r.store.DeleteDestination(ctx, target); err != nil {
		r.log.Error("delete destination", "destination", target, "error", err)
		r.reply(msg, "Failed to reset, try again.")
		return
	}
	r.reply(msg, "Reset done, all subscriptions removed.")
}

// formatFeedList renders a 1-indexed feed list, one line per feed.
func formatFeedList(cfg store.Config) string {
	if len(cfg.Feeds) == 0 {
		return "No feeds yet."
	}
	var b strings.Builder
	for i, u := range cfg.Feeds {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d) %s", i+1, format.Esc(u))
	}
	return b.String()
}
