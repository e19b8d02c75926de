package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/akarpov/botconsole/internal/errors"
	"github.com/akarpov/botconsole/internal/feed"
	"github.com/akarpov/botconsole/internal/registry"
)

type fakeRegistry struct {
	listFn     func(ctx context.Context, identity string) ([]registry.Bot, error)
	registerFn func(ctx context.Context, identity, token, welcomeText string) (*registry.Bot, error)
	updateFn   func(ctx context.Context, identity string, botID int64, welcomeText string) error
	deleteFn   func(ctx context.Context, identity string, botID int64) error
}

func (f *fakeRegistry) ListBots(ctx context.Context, identity string) ([]registry.Bot, error) {
	if f.listFn == nil {
		return []registry.Bot{}, nil
	}
	return f.listFn(ctx, identity)
}

func (f *fakeRegistry) RegisterBot(ctx context.Context, identity, token, welcomeText string) (*registry.Bot, error) {
	if f.registerFn == nil {
		return nil, errors.New("unexpected RegisterBot call")
	}
	return f.registerFn(ctx, identity, token, welcomeText)
}

func (f *fakeRegistry) UpdateWelcomeText(ctx context.Context, identity string, botID int64, welcomeText string) error {
	if f.updateFn == nil {
		return nil
	}
	return f.updateFn(ctx, identity, botID, welcomeText)
}

func (f *fakeRegistry) DeleteBot(ctx context.Context, identity string, botID int64) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, identity, botID)
}

type fakeFeed struct {
	fetchFn func(ctx context.Context, identity string, botID int64) ([]feed.Message, error)
}

func (f *fakeFeed) FetchMessages(ctx context.Context, identity string, botID int64) ([]feed.Message, error) {
	if f.fetchFn == nil {
		return []feed.Message{}, nil
	}
	return f.fetchFn(ctx, identity, botID)
}

type fakeActivator struct {
	mu     sync.Mutex
	calls  []string
	bases  []string
	result error
}

func (f *fakeActivator) Activate(_ context.Context, token, callbackBaseURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, token)
	f.bases = append(f.bases, callbackBaseURL)
	return f.result
}

func (f *fakeActivator) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeIdentity struct {
	id  string
	err error
}

func (f *fakeIdentity) GetOrCreateIdentity(context.Context) (string, error) {
	return f.id, f.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func (r *recordingNotifier) hasKind(kind NoticeKind) bool {
	for _, n := range r.all() {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

const testToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"

func newTestController(t *testing.T, deps Deps) (*Controller, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	deps.Notifier = notifier
	if deps.Registry == nil {
		deps.Registry = &fakeRegistry{}
	}
	if deps.Feed == nil {
		deps.Feed = &fakeFeed{}
	}
	if deps.Webhook == nil {
		deps.Webhook = &fakeActivator{}
	}
	if deps.Identity == nil {
		deps.Identity = &fakeIdentity{id: "user_abc"}
	}
	return NewController(deps), notifier
}

func TestBootstrapNoBots(t *testing.T) {
	t.Parallel()

	c, notifier := newTestController(t, Deps{})
	c.Bootstrap(context.Background())

	if got := c.Screen(); got != ScreenHome {
		t.Errorf("screen = %s, want home", got)
	}
	if c.CurrentBot() != nil {
		t.Error("expected no current bot")
	}
	if got := c.Identity(); got != "user_abc" {
		t.Errorf("identity = %q, want user_abc", got)
	}
	if notifier.hasKind(NoticeError) {
		t.Errorf("unexpected error notice: %+v", notifier.all())
	}
}

func TestBootstrapWithRegisteredBot(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		listFn: func(_ context.Context, identity string) ([]registry.Bot, error) {
			if identity != "user_abc" {
				t.Errorf("list identity = %q, want user_abc", identity)
			}
			return []registry.Bot{{ID: 7, Username: "mybot", WelcomeText: "Hello!", Active: true}}, nil
		},
	}
	var fetchedBot int64
	fd := &fakeFeed{
		fetchFn: func(_ context.Context, _ string, botID int64) ([]feed.Message, error) {
			fetchedBot = botID
			return []feed.Message{{ID: 1, BotID: botID, Text: "hi"}}, nil
		},
	}

	c, _ := newTestController(t, Deps{Registry: reg, Feed: fd})
	c.Bootstrap(context.Background())

	bot := c.CurrentBot()
	if bot == nil || bot.ID != 7 {
		t.Fatalf("current bot = %+v, want id 7", bot)
	}
	if fetchedBot != 7 {
		t.Errorf("fetched bot id = %d, want 7", fetchedBot)
	}
	if msgs := c.Messages(); len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Errorf("messages = %+v, want the fetched message", msgs)
	}
}

func TestBootstrapStorageFailureDegradesSession(t *testing.T) {
	t.Parallel()

	var listedIdentity string
	reg := &fakeRegistry{
		listFn: func(_ context.Context, identity string) ([]registry.Bot, error) {
			listedIdentity = identity
			return []registry.Bot{}, nil
		},
	}
	ident := &fakeIdentity{err: apperrors.NewStorageError("identity lookup failed", errors.New("disk gone"))}

	c, notifier := newTestController(t, Deps{Registry: reg, Identity: ident})
	c.Bootstrap(context.Background())

	if got := c.Identity(); got != "" {
		t.Errorf("identity = %q, want empty (unidentified session)", got)
	}
	if listedIdentity != "" {
		t.Errorf("list identity = %q, want empty", listedIdentity)
	}
	if !notifier.hasKind(NoticeError) {
		t.Error("expected a storage error notice")
	}
	if got := c.Screen(); got != ScreenHome {
		t.Errorf("screen = %s, want home (session keeps running)", got)
	}
}

func TestBootstrapListFailureNotifiesAndStops(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		listFn: func(context.Context, string) ([]registry.Bot, error) {
			return nil, apperrors.NewNetworkError("connection refused", nil)
		},
	}
	fetched := false
	fd := &fakeFeed{
		fetchFn: func(context.Context, string, int64) ([]feed.Message, error) {
			fetched = true
			return nil, nil
		},
	}

	c, notifier := newTestController(t, Deps{Registry: reg, Feed: fd})
	c.Bootstrap(context.Background())

	if !notifier.hasKind(NoticeError) {
		t.Error("expected an error notice")
	}
	if fetched {
		t.Error("messages must not be fetched when the list call fails")
	}
	if c.CurrentBot() != nil {
		t.Error("expected no current bot")
	}
}

func TestConnectSuccess(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		registerFn: func(_ context.Context, identity, token, welcomeText string) (*registry.Bot, error) {
			if token != testToken {
				t.Errorf("token = %q, want %q", token, testToken)
			}
			if welcomeText != "Welcome aboard" {
				t.Errorf("welcome text = %q", welcomeText)
			}
			return &registry.Bot{ID: 1, Username: "mybot", WelcomeText: welcomeText, Active: true}, nil
		},
	}
	hook := &fakeActivator{}

	c, notifier := newTestController(t, Deps{
		Registry:        reg,
		Webhook:         hook,
		CallbackBaseURL: "https://relay.example.com/webhook",
		WelcomeText:     "Welcome aboard",
	})
	if err := c.OpenCreate(); err != nil {
		t.Fatalf("OpenCreate: %v", err)
	}

	if err := c.Connect(context.Background(), testToken); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	bot := c.CurrentBot()
	if bot == nil || bot.Username != "mybot" {
		t.Fatalf("current bot = %+v, want mybot", bot)
	}
	if got := c.Screen(); got != ScreenHome {
		t.Errorf("screen = %s, want home", got)
	}
	if tokens := hook.tokens(); len(tokens) != 1 || tokens[0] != testToken {
		t.Errorf("activator calls = %v, want one call with the token", tokens)
	}
	if !notifier.hasKind(NoticeSuccess) {
		t.Error("expected a success notice")
	}
}

func TestConnectSucceedsDespiteWebhookFailure(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		registerFn: func(context.Context, string, string, string) (*registry.Bot, error) {
			return &registry.Bot{ID: 2, Username: "flaky"}, nil
		},
	}
	hook := &fakeActivator{result: errors.New("telegram unreachable")}

	c, notifier := newTestController(t, Deps{Registry: reg, Webhook: hook})
	_ = c.OpenCreate()

	if err := c.Connect(context.Background(), testToken); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.CurrentBot() == nil {
		t.Fatal("expected a current bot despite webhook failure")
	}
	if !notifier.hasKind(NoticeSuccess) {
		t.Error("webhook failure must not suppress the success notice")
	}
	if notifier.hasKind(NoticeError) {
		t.Errorf("webhook failure must not surface as an error notice: %+v", notifier.all())
	}
}

func TestConnectRejectionKeepsCreateScreen(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		registerFn: func(context.Context, string, string, string) (*registry.Bot, error) {
			return nil, apperrors.NewRegistrationRejectedError("invalid token", nil)
		},
	}

	c, notifier := newTestController(t, Deps{Registry: reg})
	_ = c.OpenCreate()

	if err := c.Connect(context.Background(), testToken); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := c.Screen(); got != ScreenCreate {
		t.Errorf("screen = %s, want create (stay for another attempt)", got)
	}
	if c.CurrentBot() != nil {
		t.Error("expected no current bot after rejection")
	}
	if !notifier.hasKind(NoticeError) {
		t.Error("expected an error notice")
	}
}

func TestConnectWhileBusy(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	reg := &fakeRegistry{
		registerFn: func(context.Context, string, string, string) (*registry.Bot, error) {
			close(entered)
			<-release
			return &registry.Bot{ID: 3, Username: "slowbot"}, nil
		},
	}

	c, _ := newTestController(t, Deps{Registry: reg})
	_ = c.OpenCreate()

	done := make(chan error, 1)
	go func() {
		done <- c.Connect(context.Background(), testToken)
	}()

	<-entered
	if !c.InFlight() {
		t.Error("InFlight() = false while a mutation is pending")
	}
	if err := c.Connect(context.Background(), testToken); !errors.Is(err, ErrBusy) {
		t.Errorf("second Connect = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if c.InFlight() {
		t.Error("InFlight() = true after the mutation completed")
	}
}

func TestSaveWelcome(t *testing.T) {
	t.Parallel()

	var saved []string
	reg := &fakeRegistry{
		listFn: func(context.Context, string) ([]registry.Bot, error) {
			return []registry.Bot{{ID: 5, Username: "mybot", WelcomeText: "old"}}, nil
		},
		updateFn: func(_ context.Context, _ string, botID int64, welcomeText string) error {
			if botID != 5 {
				t.Errorf("update bot id = %d, want 5", botID)
			}
			saved = append(saved, welcomeText)
			return nil
		},
	}

	c, notifier := newTestController(t, Deps{Registry: reg})
	c.Bootstrap(context.Background())

	// Saving the same text twice must land in the same state both times.
	for i := 0; i < 2; i++ {
		if err := c.OpenSettings(); err != nil {
			t.Fatalf("OpenSettings: %v", err)
		}
		if err := c.SaveWelcome(context.Background(), "new text"); err != nil {
			t.Fatalf("SaveWelcome: %v", err)
		}
		if got := c.Screen(); got != ScreenHome {
			t.Errorf("screen = %s, want home", got)
		}
		if bot := c.CurrentBot(); bot == nil || bot.WelcomeText != "new text" {
			t.Errorf("current bot = %+v, want welcome text %q", bot, "new text")
		}
	}
	if len(saved) != 2 {
		t.Errorf("update calls = %d, want 2", len(saved))
	}
	if !notifier.hasKind(NoticeSuccess) {
		t.Error("expected a success notice")
	}
}

func TestSaveWelcomeFailureKeepsState(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		listFn: func(context.Context, string) ([]registry.Bot, error) {
			return []registry.Bot{{ID: 5, Username: "mybot", WelcomeText: "old"}}, nil
		},
		updateFn: func(context.Context, string, int64, string) error {
			return apperrors.NewNetworkError("timeout", nil)
		},
	}

	c, notifier := newTestController(t, Deps{Registry: reg})
	c.Bootstrap(context.Background())
	_ = c.OpenSettings()

	if err := c.SaveWelcome(context.Background(), "new text"); err != nil {
		t.Fatalf("SaveWelcome: %v", err)
	}
	if bot := c.CurrentBot(); bot == nil || bot.WelcomeText != "old" {
		t.Errorf("welcome text = %+v, want unchanged", bot)
	}
	if got := c.Screen(); got != ScreenSettings {
		t.Errorf("screen = %s, want settings (stay on failure)", got)
	}
	if !notifier.hasKind(NoticeError) {
		t.Error("expected an error notice")
	}
}

func TestDisconnect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		deleteErr error
		cleared   bool
	}{
		{"success", nil, true},
		{"already gone counts as success", apperrors.NewNotFoundError("no such bot", nil), true},
		{"network failure keeps state", apperrors.NewNetworkError("timeout", nil), false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			reg := &fakeRegistry{
				listFn: func(context.Context, string) ([]registry.Bot, error) {
					return []registry.Bot{{ID: 9, Username: "mybot"}}, nil
				},
				deleteFn: func(context.Context, string, int64) error {
					return tc.deleteErr
				},
			}
			fd := &fakeFeed{
				fetchFn: func(context.Context, string, int64) ([]feed.Message, error) {
					return []feed.Message{{ID: 1, BotID: 9, Text: "hi"}}, nil
				},
			}

			c, _ := newTestController(t, Deps{Registry: reg, Feed: fd})
			c.Bootstrap(context.Background())

			if err := c.Disconnect(context.Background()); err != nil {
				t.Fatalf("Disconnect: %v", err)
			}

			if tc.cleared {
				if c.CurrentBot() != nil {
					t.Error("expected current bot cleared")
				}
				if msgs := c.Messages(); len(msgs) != 0 {
					t.Errorf("messages = %+v, want cleared", msgs)
				}
			} else {
				if c.CurrentBot() == nil {
					t.Error("expected current bot kept on failure")
				}
				if msgs := c.Messages(); len(msgs) != 1 {
					t.Errorf("messages = %+v, want kept", msgs)
				}
			}
		})
	}
}

func TestNavigationRequiresBot(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, Deps{})
	c.Bootstrap(context.Background())

	if err := c.OpenSettings(); !errors.Is(err, ErrNoCurrentBot) {
		t.Errorf("OpenSettings = %v, want ErrNoCurrentBot", err)
	}
	if err := c.OpenMessages(); !errors.Is(err, ErrNoCurrentBot) {
		t.Errorf("OpenMessages = %v, want ErrNoCurrentBot", err)
	}
	if err := c.OpenCreate(); err != nil {
		t.Errorf("OpenCreate: %v", err)
	}
	if err := c.OpenSettings(); err == nil || errors.Is(err, ErrNoCurrentBot) {
		t.Errorf("OpenSettings from create = %v, want a transition error", err)
	}
	if err := c.Back(); err != nil {
		t.Errorf("Back: %v", err)
	}
	if got := c.Screen(); got != ScreenHome {
		t.Errorf("screen = %s, want home", got)
	}
}

func TestMutationsRequireBot(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, Deps{})
	if err := c.SaveWelcome(context.Background(), "x"); !errors.Is(err, ErrNoCurrentBot) {
		t.Errorf("SaveWelcome = %v, want ErrNoCurrentBot", err)
	}
	if err := c.Disconnect(context.Background()); !errors.Is(err, ErrNoCurrentBot) {
		t.Errorf("Disconnect = %v, want ErrNoCurrentBot", err)
	}
}

func TestRefreshReplacesMessages(t *testing.T) {
	t.Parallel()

	batches := [][]feed.Message{
		{{ID: 1, BotID: 4, Text: "first"}},
		{{ID: 1, BotID: 4, Text: "first"}, {ID: 2, BotID: 4, Text: "second"}},
	}
	var call int
	fd := &fakeFeed{
		fetchFn: func(context.Context, string, int64) ([]feed.Message, error) {
			batch := batches[call]
			if call < len(batches)-1 {
				call++
			}
			return batch, nil
		},
	}
	reg := &fakeRegistry{
		listFn: func(context.Context, string) ([]registry.Bot, error) {
			return []registry.Bot{{ID: 4, Username: "mybot"}}, nil
		},
	}

	c, _ := newTestController(t, Deps{Registry: reg, Feed: fd})
	c.Bootstrap(context.Background())
	if msgs := c.Messages(); len(msgs) != 1 {
		t.Fatalf("messages after bootstrap = %+v, want 1", msgs)
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	msgs := c.Messages()
	if len(msgs) != 2 || msgs[1].Text != "second" {
		t.Errorf("messages after refresh = %+v, want the full replacement", msgs)
	}
}

func TestRefreshRequiresBot(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, Deps{})
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrNoCurrentBot) {
		t.Errorf("Refresh = %v, want ErrNoCurrentBot", err)
	}
}

// A message fetch that resolves after the bot it was issued for has been
// replaced must be discarded, never applied to the successor's state.
func TestStaleFetchIsDiscarded(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	fd := &fakeFeed{
		fetchFn: func(_ context.Context, _ string, botID int64) ([]feed.Message, error) {
			if botID == 9 {
				close(entered)
				<-release
				return []feed.Message{{ID: 1, BotID: 9, Text: "stale"}}, nil
			}
			return []feed.Message{}, nil
		},
	}
	reg := &fakeRegistry{
		listFn: func(context.Context, string) ([]registry.Bot, error) {
			return []registry.Bot{{ID: 9, Username: "oldbot"}}, nil
		},
	}

	c, _ := newTestController(t, Deps{Registry: reg, Feed: fd})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Bootstrap(context.Background())
	}()

	// Wait until the fetch for bot 9 is in flight, then replace the bot.
	<-entered
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("bootstrap did not finish")
	}

	if c.CurrentBot() != nil {
		t.Error("expected no current bot after disconnect")
	}
	if msgs := c.Messages(); len(msgs) != 0 {
		t.Errorf("messages = %+v, want the stale response discarded", msgs)
	}
}

func TestDescribeMapsErrorCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", apperrors.NewValidationError("bad token", nil), "valid bot token"},
		{"rejected", apperrors.NewRegistrationRejectedError("nope", nil), "rejected"},
		{"not found", apperrors.NewNotFoundError("gone", nil), "no longer registered"},
		{"unauthorized", apperrors.NewUnauthorizedError("other device"), "different device"},
		{"storage", apperrors.NewStorageError("disk", nil), "storage is unavailable"},
		{"network", apperrors.NewNetworkError("refused", nil), "network error"},
		{"plain", errors.New("mystery"), "network error"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := describe(tc.err); !strings.Contains(got, tc.want) {
				t.Errorf("describe() = %q, want it to mention %q", got, tc.want)
			}
		})
	}
}
