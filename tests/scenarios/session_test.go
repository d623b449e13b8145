package scenarios

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"roomsync/internal/app"
	"roomsync/internal/config"
	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
	"roomsync/tests/fixtures"
)

// newEnv starts a fake backend and returns a config factory bound to it.
func newEnv(t *testing.T) (*fixtures.Backend, func(userID string) *config.Config) {
	t.Helper()

	backend := fixtures.NewBackend()
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	build := func(userID string) *config.Config {
		cfg := config.DefaultConfig()
		cfg.API.BaseURL = server.URL + "/api"
		cfg.WebSocket.URL = "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
		cfg.Journal.Path = filepath.Join(t.TempDir(), userID+".db")
		cfg.Room.RedirectDelay = 50 * time.Millisecond
		cfg.Reconnect.InitialInterval = 20 * time.Millisecond
		cfg.Auth.AccessToken = fixtures.Token(userID, userID)
		return cfg
	}
	return backend, build
}

func startApp(t *testing.T, cfg *config.Config, sessionID string, navigateHome func()) *app.Application {
	t.Helper()

	application, err := app.New(cfg, sessionID, navigateHome)
	if err != nil {
		t.Fatalf("Failed to build application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		application.Stop()
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() { application.Stop() })
	return application
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func activeSession(id, createdBy string) *types.Session {
	return &types.Session{
		ID:              id,
		Name:            "Evening practice",
		Type:            "language_exchange",
		TargetLanguage:  "es",
		MaxParticipants: 8,
		CreatedBy:       createdBy,
		Status:          types.SessionStatusActive,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestJoinFlow_NewUserBecomesMember(t *testing.T) {
	backend, build := newEnv(t)
	backend.AddSession(activeSession("sess-1", "alice"))

	application := startApp(t, build("bob"), "sess-1", nil)

	waitFor(t, "join flow to finish", func() bool {
		return application.Room().Status().String() == "ready"
	})

	participants := application.Room().Participants()
	if len(participants) != 1 {
		t.Fatalf("Expected 1 participant, got %d", len(participants))
	}
	if participants[0].UserID != "bob" {
		t.Errorf("Expected participant bob, got %s", participants[0].UserID)
	}
	if application.Room().Role() != types.RoleMember {
		t.Errorf("Expected member role, got %s", application.Room().Role())
	}
}

func TestJoinFlow_CreatorAlreadyMemberSkipsJoin(t *testing.T) {
	backend, build := newEnv(t)
	backend.AddSession(activeSession("sess-2", "alice"))
	backend.AddParticipant("sess-2", &types.Participant{
		ID:        "p-1",
		UserID:    "alice",
		SessionID: "sess-2",
		Role:      types.RoleCreator,
		IsActive:  true,
		JoinedAt:  time.Now().UTC(),
		User:      types.UserSummary{ID: "alice", Name: "alice"},
	})

	application := startApp(t, build("alice"), "sess-2", nil)

	waitFor(t, "join flow to finish", func() bool {
		return application.Room().Status().String() == "ready"
	})

	if got := len(application.Room().Participants()); got != 1 {
		t.Fatalf("Expected the roster to stay at 1 participant, got %d", got)
	}
	if !application.Room().IsCreator() {
		t.Error("Expected alice to keep her creator role")
	}
}

func TestChat_MessageReachesBothSides(t *testing.T) {
	backend, build := newEnv(t)
	backend.AddSession(activeSession("sess-3", "alice"))

	alice := startApp(t, build("alice"), "sess-3", nil)
	bob := startApp(t, build("bob"), "sess-3", nil)

	waitFor(t, "both channels to open", func() bool {
		return alice.Channel().IsOpen() && bob.Channel().IsOpen()
	})

	alice.Chat().SetDraft("hola bob")
	if err := alice.Chat().Send(context.Background()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if alice.Chat().Draft() != "" {
		t.Error("Expected the draft to be cleared on send")
	}

	waitFor(t, "message to reach both clients", func() bool {
		return alice.Chat().Len() == 1 && bob.Chat().Len() == 1
	})

	msgs := bob.Chat().Messages()
	if msgs[0].Content != "hola bob" {
		t.Errorf("Expected 'hola bob', got %q", msgs[0].Content)
	}
	if msgs[0].UserID != "alice" {
		t.Errorf("Expected sender alice, got %s", msgs[0].UserID)
	}
	if len(backend.Messages("sess-3")) != 1 {
		t.Errorf("Expected the backend to store exactly one message, got %d", len(backend.Messages("sess-3")))
	}
}

func TestWhiteboard_ElementPropagatesAndConfirms(t *testing.T) {
	backend, build := newEnv(t)
	backend.AddSession(activeSession("sess-4", "alice"))

	alice := startApp(t, build("alice"), "sess-4", nil)
	bob := startApp(t, build("bob"), "sess-4", nil)

	waitFor(t, "both channels to open", func() bool {
		return alice.Channel().IsOpen() && bob.Channel().IsOpen()
	})

	el := alice.Whiteboard().HandleClick(100, 200)
	if err := alice.Whiteboard().UpdateDraft(el.ID, "conjugations"); err != nil {
		t.Fatalf("UpdateDraft failed: %v", err)
	}
	committed, err := alice.Whiteboard().CommitEdit(el.ID)
	if err != nil {
		t.Fatalf("CommitEdit failed: %v", err)
	}
	if committed == nil {
		t.Fatal("Expected a committed element")
	}

	waitFor(t, "element to reach bob", func() bool {
		return bob.Whiteboard().Len() == 1
	})
	got := bob.Whiteboard().Elements()[0]
	if got.Text != "conjugations" {
		t.Errorf("Expected 'conjugations', got %q", got.Text)
	}
	if got.OwnerID != "alice" {
		t.Errorf("Expected owner alice, got %s", got.OwnerID)
	}

	waitFor(t, "backend acknowledgement", func() bool {
		stored, ok := alice.Whiteboard().Get(committed.ID)
		return ok && stored.Confirmed
	})
	if len(backend.Operations("sess-4")) == 0 {
		t.Error("Expected the backend to have stored the operation")
	}
}

func TestWhiteboard_LateJoinerRehydratesFromLog(t *testing.T) {
	backend, build := newEnv(t)
	backend.AddSession(activeSession("sess-5", "alice"))

	alice := startApp(t, build("alice"), "sess-5", nil)
	waitFor(t, "alice's channel to open", func() bool {
		return alice.Channel().IsOpen()
	})

	el := alice.Whiteboard().HandleClick(10, 20)
	if err := alice.Whiteboard().UpdateDraft(el.ID, "ser vs estar"); err != nil {
		t.Fatalf("UpdateDraft failed: %v", err)
	}
	if _, err := alice.Whiteboard().CommitEdit(el.ID); err != nil {
		t.Fatalf("CommitEdit failed: %v", err)
	}
	waitFor(t, "operation to persist", func() bool {
		return len(backend.Operations("sess-5")) > 0
	})

	bob := startApp(t, build("bob"), "sess-5", nil)
	waitFor(t, "bob to rehydrate the canvas", func() bool {
		return bob.Whiteboard().Len() == 1
	})
	if got := bob.Whiteboard().Elements()[0].Text; got != "ser vs estar" {
		t.Errorf("Expected 'ser vs estar', got %q", got)
	}
}

func TestEndedSession_FailsJoinAndNavigatesHome(t *testing.T) {
	backend, build := newEnv(t)
	backend.AddSession(activeSession("sess-6", "alice"))
	backend.EndSession("sess-6")

	navigated := make(chan struct{})
	application, err := app.New(build("bob"), "sess-6", func() { close(navigated) })
	if err != nil {
		t.Fatalf("Failed to build application: %v", err)
	}
	defer application.Stop()

	err = application.Start(context.Background())
	if !errors.Is(err, interfaces.ErrSessionEnded) {
		t.Fatalf("Expected ErrSessionEnded, got %v", err)
	}

	select {
	case <-navigated:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected navigation home after the redirect delay")
	}
}

func TestEndSession_CreatorOnly(t *testing.T) {
	backend, build := newEnv(t)
	backend.AddSession(activeSession("sess-7", "alice"))

	alice := startApp(t, build("alice"), "sess-7", nil)
	bob := startApp(t, build("bob"), "sess-7", nil)

	waitFor(t, "both join flows to finish", func() bool {
		return alice.Room().Status().String() == "ready" && bob.Room().Status().String() == "ready"
	})

	if err := bob.Room().End(context.Background()); !errors.Is(err, interfaces.ErrForbidden) {
		t.Errorf("Expected ErrForbidden for non-creator end, got %v", err)
	}
	if err := alice.Room().End(context.Background()); err != nil {
		t.Errorf("Expected the creator to end the session, got %v", err)
	}
}

func TestTranslate_PerMessageWithCache(t *testing.T) {
	backend, build := newEnv(t)
	backend.AddSession(activeSession("sess-8", "alice"))
	backend.AddMessage("sess-8", &types.SessionMessage{
		ID:        "m-1",
		SessionID: "sess-8",
		UserID:    "alice",
		Content:   "buenos dias",
		Type:      types.MessageTypeText,
		CreatedAt: time.Now().UTC(),
		User:      types.UserSummary{ID: "alice", Name: "alice"},
	})

	bob := startApp(t, build("bob"), "sess-8", nil)
	waitFor(t, "history to load", func() bool {
		return bob.Chat().Len() == 1
	})

	msg := bob.Chat().Messages()[0]
	got, err := bob.Translator().TranslateMessage(context.Background(), msg, "en")
	if err != nil {
		t.Fatalf("TranslateMessage failed: %v", err)
	}
	if got != "[en] buenos dias" {
		t.Errorf("Expected '[en] buenos dias', got %q", got)
	}

	// Second request is served from the cache.
	again, err := bob.Translator().TranslateMessage(context.Background(), msg, "en")
	if err != nil {
		t.Fatalf("Cached TranslateMessage failed: %v", err)
	}
	if again != got {
		t.Errorf("Expected cached translation %q, got %q", got, again)
	}
}

func TestImprove_QuotaExhaustionIsAnOutcome(t *testing.T) {
	backend, build := newEnv(t)
	backend.AddSession(activeSession("sess-9", "alice"))
	backend.SetImproveLimit(1)

	alice := startApp(t, build("alice"), "sess-9", nil)

	first, err := alice.Translator().ImproveDraft(context.Background(), "i has a question")
	if err != nil {
		t.Fatalf("ImproveDraft failed: %v", err)
	}
	if first.UpgradeRequired {
		t.Fatal("Expected the first improvement to succeed")
	}
	if first.ImprovedText == "" {
		t.Error("Expected improved text")
	}

	second, err := alice.Translator().ImproveDraft(context.Background(), "another one")
	if err != nil {
		t.Fatalf("ImproveDraft failed: %v", err)
	}
	if !second.UpgradeRequired {
		t.Fatal("Expected the quota to be exhausted")
	}
	if second.UsedCount != 1 || second.Limit != 1 {
		t.Errorf("Expected usage counters 1/1, got %d/%d", second.UsedCount, second.Limit)
	}
}
