package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"feedrelay/internal/kv"
	"feedrelay/internal/store"
	"feedrelay/internal/telegram"
)

// --- mocks ---

type sentMsg struct {
	DestinationID string
	Body          string
}

type mockTransport struct {
	mu         sync.Mutex
	sent       []sentMsg
	chats      map[string]telegram.Chat
	verdict    telegram.Verdict
	resolveErr error
}

func (m *mockTransport) SendMessage(destinationID, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMsg{DestinationID: destinationID, Body: html})
	return nil
}

func (m *mockTransport) ResolveChat(identifier string) (telegram.Chat, error) {
	if m.resolveErr != nil {
		return telegram.Chat{}, m.resolveErr
	}
	if chat, ok := m.chats[identifier]; ok {
		return chat, nil
	}
	return telegram.Chat{}, errors.New("chat not found")
}

func (m *mockTransport) CheckAdmin(string, int64) telegram.Verdict {
	return m.verdict
}

func (m *mockTransport) lastMsg() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockTransport) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// --- helpers ---

func newTestRouter(t *testing.T) (*Router, *mockTransport, *store.Store) {
	t.Helper()
	backing, err := kv.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = backing.Close() })

	st := store.New(backing)
	tg := &mockTransport{
		chats: map[string]telegram.Chat{
			"@chan": {ID: "-100999", Title: "My Channel"},
		},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(st, tg, log), tg, st
}

func privateMsg(text string) Message {
	return Message{ChatID: "700", ChatType: "private", SenderID: 7, Text: text}
}

func groupMsg(text string) Message {
	return Message{ChatID: "-100555", ChatType: "supergroup", SenderID: 7, Text: text}
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

// --- command parsing ---

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text    string
		wantCmd command
		wantArg string
	}{
		{"/help", cmdHelp, ""},
		{"/start", cmdStart, ""},
		{"/addfeed https://a.example/rss", cmdAddFeed, "https://a.example/rss"},
		{"/addfeed@relaybot https://a.example/rss", cmdAddFeed, "https://a.example/rss"},
		{"/bind   @chan", cmdBind, "@chan"},
		{"/LISTFEEDS", cmdUnknown, ""},
		{"/nope", cmdUnknown, ""},
		{"", cmdUnknown, ""},
	}

	for _, tt := range tests {
		cmd, arg := parseCommand(tt.text)
		if cmd != tt.wantCmd || arg != tt.wantArg {
			t.Errorf("parseCommand(%q) = (%v, %q), want (%v, %q)",
				tt.text, cmd, arg, tt.wantCmd, tt.wantArg)
		}
	}
}

// --- router flows ---

func TestHelpListsCommands(t *testing.T) {
	ctx := context.Background()
	r, tg, _ := newTestRouter(t)

	r.HandleMessage(ctx, privateMsg("/help"))

	reply := tg.lastMsg()
	if diff := cmp.Diff("700", reply.DestinationID); diff != "" {
		t.Errorf("reply destination mismatch (-want +got):\n%s", diff)
	}
	requireContains(t, reply.Body, "/addfeed")
	requireContains(t, reply.Body, "/bind")
}

func TestNonCommandTextIgnored(t *testing.T) {
	ctx := context.Background()
	r, tg, _ := newTestRouter(t)

	r.HandleMessage(ctx, privateMsg("just chatting"))
	r.HandleMessage(ctx, groupMsg("http://not.a.command"))

	if got := tg.count(); got != 0 {
		t.Errorf("expected no replies, got %d", got)
	}
}

func TestUnknownCommandPointsToHelp(t *testing.T) {
	ctx := context.Background()
	r, tg, _ := newTestRouter(t)

	r.HandleMessage(ctx, privateMsg("/frobnicate"))
	requireContains(t, tg.lastMsg().Body, "/help")
}

func TestBindThenAddFeedMutatesBoundTarget(t *testing.T) {
	ctx := context.Background()
	r, tg, st := newTestRouter(t)

	r.HandleMessage(ctx, privateMsg("/bind @chan"))
	requireContains(t, tg.lastMsg().Body, "My Channel")

	r.HandleMessage(ctx, privateMsg("/addfeed https://a.example/rss"))

	// The bound channel's record changed, not the private chat's own.
	bound, _ := st.GetConfig(ctx, "-100999")
	if diff := cmp.Diff([]string{"https://a.example/rss"}, bound.Feeds); diff != "" {
		t.Errorf("bound config mismatch (-want +got):\n%s", diff)
	}
	own, _ := st.GetConfig(ctx, "700")
	if len(own.Feeds) != 0 {
		t.Errorf("private chat record should be untouched, got %v", own.Feeds)
	}

	// The reply still goes to the origin chat.
	if diff := cmp.Diff("700", tg.lastMsg().DestinationID); diff != "" {
		t.Errorf("reply destination mismatch (-want +got):\n%s", diff)
	}
}

func TestUnbindThenListFeedsRequiresBind(t *testing.T) {
	ctx := context.Background()
	r, tg, st := newTestRouter(t)

	r.HandleMessage(ctx, privateMsg("/bind @chan"))
	r.HandleMessage(ctx, privateMsg("/unbind"))
	requireContains(t, tg.lastMsg().Body, "unbound")

	r.HandleMessage(ctx, privateMsg("/listfeeds"))
	requireContains(t, tg.lastMsg().Body, "/bind")

	// No store mutation happened.
	ids, _ := st.ListDestinationIDs(ctx)
	if len(ids) != 0 {
		t.Errorf("expected no destinations, got %v", ids)
	}
}

func TestBindRejectedOutsidePrivateChat(t *testing.T) {
	ctx := context.Background()
	r, tg, st := newTestRouter(t)

	r.HandleMessage(ctx, groupMsg("/bind @chan"))
	requireContains(t, tg.lastMsg().Body, "private chat")

	target, _ := st.BoundTarget(ctx, "7")
	if target != "" {
		t.Errorf("expected no binding, got %q", target)
	}
}

func TestBindRequiresArgument(t *testing.T) {
	ctx := context.Background()
	r, tg, _ := newTestRouter(t)

	r.HandleMessage(ctx, privateMsg("/bind"))
	requireContains(t, tg.lastMsg().Body, "/bind @channel")
}

func TestBindNotFound(t *testing.T) {
	ctx := context.Background()
	r, tg, st := newTestRouter(t)
	tg.resolveErr = errors.New("chat not found")

	r.HandleMessage(ctx, privateMsg("/bind @whoknows"))
	requireContains(t, tg.lastMsg().Body, "not found")

	target, _ := st.BoundTarget(ctx, "7")
	if target != "" {
		t.Errorf("expected no binding, got %q", target)
	}
}

func TestBindDeniedForNonAdmin(t *testing.T) {
	ctx := context.Background()
	r, tg, st := newTestRouter(t)
	tg.verdict = telegram.VerdictDenied

	r.HandleMessage(ctx, privateMsg("/bind @chan"))
	requireContains(t, tg.lastMsg().Body, "not an admin")

	target, _ := st.BoundTarget(ctx, "7")
	if target != "" {
		t.Errorf("expected no binding, got %q", target)
	}
}

func TestBindProceedsWhenRoleCheckUndetermined(t *testing.T) {
	ctx := context.Background()
	r, tg, st := newTestRouter(t)
	tg.verdict = telegram.VerdictUndetermined

	r.HandleMessage(ctx, privateMsg("/bind @chan"))

	target, _ := st.BoundTarget(ctx, "7")
	if diff := cmp.Diff("-100999", target); diff != "" {
		t.Errorf("binding mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupCommandsTargetOriginChat(t *testing.T) {
	ctx := context.Background()
	r, tg, st := newTestRouter(t)

	r.HandleMessage(ctx, groupMsg("/addfeed https://a.example/rss"))
	requireContains(t, tg.lastMsg().Body, "Added feed")
	requireContains(t, tg.lastMsg().Body, "1) https://a.example/rss")

	cfg, _ := st.GetConfig(ctx, "-100555")
	if diff := cmp.Diff([]string{"https://a.example/rss"}, cfg.Feeds); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestAddFeedTwiceKeepsOneOccurrence(t *testing.T) {
	ctx := context.Background()
	r, _, st := newTestRouter(t)

	r.HandleMessage(ctx, groupMsg("/addfeed https://a.example/rss"))
	r.HandleMessage(ctx, groupMsg("/addfeed https://a.example/rss"))

	cfg, _ := st.GetConfig(ctx, "-100555")
	if diff := cmp.Diff([]string{"https://a.example/rss"}, cfg.Feeds); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestAddFeedRequiresArgument(t *testing.T) {
	ctx := context.Background()
	r, tg, _ := newTestRouter(t)

	r.HandleMessage(ctx, groupMsg("/addfeed"))
	requireContains(t, tg.lastMsg().Body, "/addfeed https://site/rss")
}

func TestRemoveFeedUpdatesList(t *testing.T) {
	ctx := context.Background()
	r, tg, st := newTestRouter(t)

	r.HandleMessage(ctx, groupMsg("/addfeed https://a.example/rss"))
	r.HandleMessage(ctx, groupMsg("/addfeed https://b.example/rss"))
	r.HandleMessage(ctx, groupMsg("/removefeed https://a.example/rss"))

	requireContains(t, tg.lastMsg().Body, "Removed feed")
	requireContains(t, tg.lastMsg().Body, "1) https://b.example/rss")

	cfg, _ := st.GetConfig(ctx, "-100555")
	if diff := cmp.Diff([]string{"https://b.example/rss"}, cfg.Feeds); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestListFeedsEmpty(t *testing.T) {
	ctx := context.Background()
	r, tg, _ := newTestRouter(t)

	r.HandleMessage(ctx, groupMsg("/listfeeds"))
	requireContains(t, tg.lastMsg().Body, "No feeds yet")
}

func TestResetDeletesDestination(t *testing.T) {
	ctx := context.Background()
	r, tg, st := newTestRouter(t)

	r.HandleMessage(ctx, groupMsg("/addfeed https://a.example/rss"))
	r.HandleMessage(ctx, groupMsg("/reset"))
	requireContains(t, tg.lastMsg().Body, "Reset done")

	ids, _ := st.ListDestinationIDs(ctx)
	if len(ids) != 0 {
		t.Errorf("expected empty index, got %v", ids)
	}
}

// --- membership events ---

func TestMembershipKickThenRejoinIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	r, _, st := newTestRouter(t)

	seed := store.Config{
		Feeds:   []string{"https://a.example/rss"},
		Cursors: map[string]string{"https://a.example/rss": "link1"},
	}
	if err := st.SaveConfig(ctx, "-100555", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r.HandleMemberUpdate(ctx, "-100555", "kicked")

	ids, _ := st.ListDestinationIDs(ctx)
	if len(ids) != 0 {
		t.Fatalf("expected destination removed from index, got %v", ids)
	}

	r.HandleMemberUpdate(ctx, "-100555", "member")

	ids, _ = st.ListDestinationIDs(ctx)
	if diff := cmp.Diff([]string{"-100555"}, ids); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}

	// Deletion was authoritative: the old feeds did not come back.
	cfg, _ := st.GetConfig(ctx, "-100555")
	want := store.Config{Feeds: []string{}, Cursors: map[string]string{}}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestMembershipPromotionKeepsFeeds(t *testing.T) {
	ctx := context.Background()
	r, _, st := newTestRouter(t)

	seed := store.Config{Feeds: []string{"https://a.example/rss"}, Cursors: map[string]string{}}
	if err := st.SaveConfig(ctx, "-100555", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r.HandleMemberUpdate(ctx, "-100555", "administrator")

	cfg, _ := st.GetConfig(ctx, "-100555")
	if diff := cmp.Diff(seed, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}
