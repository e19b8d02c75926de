// Package webhook instructs the Telegram platform where to deliver inbound
// events for a freshly registered bot. Activation is a best-effort,
// fire-and-forget step: the bot registration has already succeeded by the
// time it runs, and a registered-but-not-yet-receiving bot is preferable to
// rolling back a successful registration. The Activator interface exists so
// a stricter two-phase variant (activate, verify, compensating delete) can
// be substituted without touching the application layer.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	tgbot "github.com/go-telegram/bot"
)

// Activator tells the external messaging platform to deliver future inbound
// events for the given credential to the callback address.
type Activator interface {
	Activate(ctx context.Context, token, callbackBaseURL string) error
}

// TelegramActivator activates webhooks through the Telegram Bot API.
type TelegramActivator struct {
	logger *slog.Logger

	// serverURL overrides the Telegram API server. Empty means production.
	serverURL string
}

// NewTelegramActivator creates an activator against the production Telegram
// API. serverURL may be set to point at a test server.
func NewTelegramActivator(logger *slog.Logger, serverURL string) *TelegramActivator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramActivator{
		logger:    logger.With("component", "webhook_activator"),
		serverURL: serverURL,
	}
}

// Activate builds the callback address by attaching the bot token as a
// query parameter to the fixed base URL and registers it with Telegram.
// The response is not inspected beyond the API-level ok flag.
func (a *TelegramActivator) Activate(ctx context.Context, token, callbackBaseURL string) error {
	callback, err := buildCallbackURL(token, callbackBaseURL)
	if err != nil {
		return fmt.Errorf("failed to build callback url: %w", err)
	}

	opts := []tgbot.Option{tgbot.WithSkipGetMe()}
	if a.serverURL != "" {
		opts = append(opts, tgbot.WithServerURL(a.serverURL))
	}

	b, err := tgbot.New(token, opts...)
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}

	ok, err := b.SetWebhook(ctx, &tgbot.SetWebhookParams{URL: callback})
	if err != nil {
		return fmt.Errorf("setWebhook call failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("setWebhook was not confirmed by telegram")
	}

	a.logger.InfoContext(ctx, "Webhook activated")
	return nil
}

func buildCallbackURL(token, callbackBaseURL string) (string, error) {
	u, err := url.Parse(callbackBaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("bot_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
