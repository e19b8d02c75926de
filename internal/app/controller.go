// Package app holds the application state machine: the single source of
// truth for the current bot and its message list, and the sequencing of
// remote calls relative to user actions and screen transitions.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/akarpov/botconsole/internal/errors"
	"github.com/akarpov/botconsole/internal/feed"
	"github.com/akarpov/botconsole/internal/registry"
)

// ErrBusy is returned when a mutating action is requested while another
// mutation is still in flight. The triggering control should be treated as
// disabled until the pending call finishes.
var ErrBusy = errors.New("another change is still in progress")

// ErrNoCurrentBot is returned when a screen or action that requires a
// connected bot is requested without one.
var ErrNoCurrentBot = errors.New("no bot is connected")

// RegistryClient is the controller's view of the bot registry.
type RegistryClient interface {
	ListBots(ctx context.Context, identity string) ([]registry.Bot, error)
	RegisterBot(ctx context.Context, identity, token, welcomeText string) (*registry.Bot, error)
	UpdateWelcomeText(ctx context.Context, identity string, botID int64, welcomeText string) error
	DeleteBot(ctx context.Context, identity string, botID int64) error
}

// FeedClient fetches relayed messages for a bot.
type FeedClient interface {
	FetchMessages(ctx context.Context, identity string, botID int64) ([]feed.Message, error)
}

// Activator performs webhook activation after a successful registration.
type Activator interface {
	Activate(ctx context.Context, token, callbackBaseURL string) error
}

// IdentitySource is the narrow capability the controller uses to obtain the
// persistent device identity.
type IdentitySource interface {
	GetOrCreateIdentity(ctx context.Context) (string, error)
}

// Deps carries the controller's collaborators and settings.
type Deps struct {
	Logger   *slog.Logger
	Registry RegistryClient
	Feed     FeedClient
	Webhook  Activator
	Identity IdentitySource
	Notifier Notifier

	// CallbackBaseURL is the fixed address inbound bot events are delivered
	// to; the bot token is attached to it on webhook activation.
	CallbackBaseURL string

	// WelcomeText is the greeting assigned to a newly registered bot.
	WelcomeText string
}

// Controller owns the in-memory application state. All mutation happens
// through its methods; reads return copies. Remote-call failures are
// converted into notifications at this boundary and never propagate.
type Controller struct {
	logger   *slog.Logger
	reg      RegistryClient
	feed     FeedClient
	hook     Activator
	ident    IdentitySource
	notifier Notifier

	callbackBaseURL string
	welcomeText     string

	// mutationGate serializes mutating actions. Weight 1: a second
	// mutation is refused, not queued. Reads are never gated.
	mutationGate *semaphore.Weighted

	mu       sync.Mutex
	screen   Screen
	identity string
	current  *registry.Bot
	messages []feed.Message
}

// NewController creates the application controller in its initial state:
// Home screen, no current bot, empty message list.
func NewController(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Controller{
		logger:          logger.With("component", "app"),
		reg:             deps.Registry,
		feed:            deps.Feed,
		hook:            deps.Webhook,
		ident:           deps.Identity,
		notifier:        notifier,
		callbackBaseURL: deps.CallbackBaseURL,
		welcomeText:     deps.WelcomeText,
		mutationGate:    semaphore.NewWeighted(1),
		screen:          ScreenHome,
	}
}

// Screen returns the current screen.
func (c *Controller) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// Identity returns the device identity for this session. Empty when the
// local store was unavailable and the session runs unidentified.
func (c *Controller) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// CurrentBot returns a copy of the current bot, or nil when none is
// connected.
func (c *Controller) CurrentBot() *registry.Bot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	bot := *c.current
	return &bot
}

// Messages returns a copy of the current message list.
func (c *Controller) Messages() []feed.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]feed.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// InFlight reports whether a mutating remote call is pending. While true,
// controls that trigger mutations should render disabled.
func (c *Controller) InFlight() bool {
	if !c.mutationGate.TryAcquire(1) {
		return true
	}
	c.mutationGate.Release(1)
	return false
}

// Bootstrap establishes the device identity and reconciles local state with
// the registry. If a bot is already registered it becomes current and its
// messages are fetched; the fetch is only issued after the list call has
// completed, as a reaction to its result. A storage failure degrades the
// session to an unidentified device instead of aborting.
func (c *Controller) Bootstrap(ctx context.Context) {
	identity, err := c.ident.GetOrCreateIdentity(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "Device identity unavailable", "error", err)
		c.notifier.Notify(Notice{Kind: NoticeError, Title: "Storage unavailable", Detail: describe(err)})
		identity = ""
	}

	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	bots, err := c.reg.ListBots(ctx, identity)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to list bots", "error", err)
		c.notifier.Notify(Notice{Kind: NoticeError, Title: "Could not reach the registry", Detail: describe(err)})
		return
	}
	if len(bots) == 0 {
		c.logger.InfoContext(ctx, "No bot registered for this device")
		return
	}

	// The registry holds at most one active bot per device in this scope.
	bot := bots[0]
	c.mu.Lock()
	c.current = &bot
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "Found registered bot", "bot_id", bot.ID, "bot_username", bot.Username)

	c.fetchAndApply(ctx, bot.ID)
}

// OpenCreate navigates from Home to the bot creation screen.
func (c *Controller) OpenCreate() error {
	return c.navigate(ScreenCreate, false)
}

// OpenSettings navigates from Home to the settings screen.
// Requires a connected bot.
func (c *Controller) OpenSettings() error {
	return c.navigate(ScreenSettings, true)
}

// OpenMessages navigates from Home to the inbox screen.
// Requires a connected bot.
func (c *Controller) OpenMessages() error {
	return c.navigate(ScreenMessages, true)
}

// Back returns to the Home screen from any other screen.
func (c *Controller) Back() error {
	return c.navigate(ScreenHome, false)
}

func (c *Controller) navigate(to Screen, needBot bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if needBot && c.current == nil {
		return ErrNoCurrentBot
	}
	if !canTransition(c.screen, to) {
		return fmt.Errorf("cannot go from %s to %s", c.screen, to)
	}
	c.screen = to
	return nil
}

// Connect registers the supplied bot token. On success the registry's
// returned bot becomes current, the webhook is activated best-effort, and
// the screen returns to Home. On failure nothing changes and the owner
// stays on the creation screen. The token itself is not retained.
func (c *Controller) Connect(ctx context.Context, token string) error {
	if !c.mutationGate.TryAcquire(1) {
		return ErrBusy
	}
	defer c.mutationGate.Release(1)

	bot, err := c.reg.RegisterBot(ctx, c.Identity(), token, c.welcomeText)
	if err != nil {
		c.logger.ErrorContext(ctx, "Bot registration failed", "error", err)
		c.notifier.Notify(Notice{Kind: NoticeError, Title: "❌ Could not connect the bot", Detail: describe(err)})
		return nil
	}

	// Best-effort: registration has already succeeded, and a registered
	// bot that is not yet receiving events beats rolling it back over a
	// notification step. Failure is logged and never surfaced.
	if err := c.hook.Activate(ctx, token, c.callbackBaseURL); err != nil {
		c.logger.WarnContext(ctx, "Webhook activation failed", "bot_id", bot.ID, "error", err)
	}

	c.mu.Lock()
	c.current = bot
	c.messages = nil
	c.screen = ScreenHome
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Bot connected", "bot_id", bot.ID, "bot_username", bot.Username)
	c.notifier.Notify(Notice{
		Kind:   NoticeSuccess,
		Title:  "🎉 Bot connected!",
		Detail: fmt.Sprintf("@%s is activated and ready to receive messages", bot.Username),
	})

	c.fetchAndApply(ctx, bot.ID)
	return nil
}

// SaveWelcome updates the welcome text of the current bot and returns to
// Home on success. Saving the same text twice is a no-op success upstream.
func (c *Controller) SaveWelcome(ctx context.Context, text string) error {
	bot := c.CurrentBot()
	if bot == nil {
		return ErrNoCurrentBot
	}
	if !c.mutationGate.TryAcquire(1) {
		return ErrBusy
	}
	defer c.mutationGate.Release(1)

	if err := c.reg.UpdateWelcomeText(ctx, c.Identity(), bot.ID, text); err != nil {
		c.logger.ErrorContext(ctx, "Failed to update welcome text", "bot_id", bot.ID, "error", err)
		c.notifier.Notify(Notice{Kind: NoticeError, Title: "❌ Could not save settings", Detail: describe(err)})
		return nil
	}

	c.mu.Lock()
	if c.current != nil && c.current.ID == bot.ID {
		c.current.WelcomeText = text
	}
	if canTransition(c.screen, ScreenHome) {
		c.screen = ScreenHome
	}
	c.mu.Unlock()

	c.notifier.Notify(Notice{Kind: NoticeSuccess, Title: "✅ Settings saved", Detail: "Welcome text updated"})
	return nil
}

// Disconnect deletes the current bot's registration. On success the current
// bot and all cached messages are cleared and the screen returns to Home.
// A bot that is already gone counts as success.
func (c *Controller) Disconnect(ctx context.Context) error {
	bot := c.CurrentBot()
	if bot == nil {
		return ErrNoCurrentBot
	}
	if !c.mutationGate.TryAcquire(1) {
		return ErrBusy
	}
	defer c.mutationGate.Release(1)

	err := c.reg.DeleteBot(ctx, c.Identity(), bot.ID)
	if err != nil && apperrors.Code(err) != apperrors.CodeNotFound {
		c.logger.ErrorContext(ctx, "Failed to delete bot", "bot_id", bot.ID, "error", err)
		c.notifier.Notify(Notice{Kind: NoticeError, Title: "❌ Could not disconnect the bot", Detail: describe(err)})
		return nil
	}

	c.mu.Lock()
	c.current = nil
	c.messages = nil
	c.screen = ScreenHome
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Bot disconnected", "bot_id", bot.ID)
	c.notifier.Notify(Notice{Kind: NoticeInfo, Title: "Bot disconnected", Detail: "You can connect a new bot"})
	return nil
}

// Refresh reloads the message list for the current bot. Fetching is a read
// and is not serialized by the mutation gate.
func (c *Controller) Refresh(ctx context.Context) error {
	bot := c.CurrentBot()
	if bot == nil {
		return ErrNoCurrentBot
	}
	c.fetchAndApply(ctx, bot.ID)
	return nil
}

// fetchAndApply loads the message list for the given bot and replaces the
// local collection wholesale. The result is only applied if the same bot is
// still current when it arrives; a response for a superseded bot is
// discarded rather than overwriting another bot's state.
func (c *Controller) fetchAndApply(ctx context.Context, botID int64) {
	msgs, err := c.feed.FetchMessages(ctx, c.Identity(), botID)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fetch messages", "bot_id", botID, "error", err)
		c.notifier.Notify(Notice{Kind: NoticeError, Title: "Could not load messages", Detail: describe(err)})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.ID != botID {
		c.logger.DebugContext(ctx, "Discarding stale message fetch", "bot_id", botID)
		return
	}
	c.messages = msgs
}
