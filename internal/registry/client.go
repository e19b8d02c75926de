// Package registry is a typed client for the remote bot registry service,
// the service of record for bot configuration and ownership. Every call is
// scoped by the device identity, sent out-of-band as a request header. The
// client keeps no state across calls and never retries.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/akarpov/botconsole/internal/errors"
	"github.com/akarpov/botconsole/internal/httpapi"
)

// Header carrying the device identity on every registry call.
const identityHeader = "X-User-Id"

// Tokens shorter than this are obviously malformed and rejected locally
// before any network call. Real validation happens server-side against the
// messaging platform.
const minTokenLength = 10

// Client wraps the four registry operations.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a registry client for the given endpoint.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With("component", "registry_client"),
	}
}

func identityHeaders(identity string) http.Header {
	h := http.Header{}
	h.Set(identityHeader, identity)
	return h
}

// ListBots fetches the bots currently registered for this identity.
// An empty result is valid and means no bot has been connected yet.
func (c *Client) ListBots(ctx context.Context, identity string) ([]Bot, error) {
	var out struct {
		Bots []Bot `json:"bots"`
	}
	err := httpapi.Do(ctx, c.httpClient, http.MethodGet, c.baseURL, identityHeaders(identity), nil, &out)
	if err != nil {
		return nil, c.wireError("list bots", err)
	}
	if out.Bots == nil {
		return []Bot{}, nil
	}
	return out.Bots, nil
}

// RegisterBot submits a bot token for registration and activation. The
// token is checked locally for obvious malformation first; a short or
// colon-less token never reaches the network. On success the registry's
// view of the new bot is returned, including its assigned identifier and
// the platform-reported handle.
func (c *Client) RegisterBot(ctx context.Context, identity, token, welcomeText string) (*Bot, error) {
	if err := checkTokenShape(token); err != nil {
		return nil, err
	}

	body := struct {
		BotToken    string `json:"bot_token"`
		WelcomeText string `json:"welcome_text"`
	}{BotToken: token, WelcomeText: welcomeText}

	var out struct {
		Success bool `json:"success"`
		Bot     *Bot `json:"bot"`
	}
	err := httpapi.Do(ctx, c.httpClient, http.MethodPost, c.baseURL, identityHeaders(identity), body, &out)
	if err != nil {
		var statusErr *httpapi.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest {
			msg := statusErr.Message
			if msg == "" {
				msg = "registry rejected the bot token"
			}
			return nil, apperrors.NewRegistrationRejectedError(msg, statusErr)
		}
		return nil, c.wireError("register bot", err)
	}
	if !out.Success || out.Bot == nil {
		return nil, apperrors.NewNetworkError("registry returned no bot", nil)
	}

	c.logger.InfoContext(ctx, "Bot registered", "bot_id", out.Bot.ID, "bot_username", out.Bot.Username)
	return out.Bot, nil
}

// UpdateWelcomeText changes the welcome text of the given bot. Repeating
// the same text is a no-op success upstream.
func (c *Client) UpdateWelcomeText(ctx context.Context, identity string, botID int64, welcomeText string) error {
	body := struct {
		BotID       int64  `json:"bot_id"`
		WelcomeText string `json:"welcome_text"`
	}{BotID: botID, WelcomeText: welcomeText}

	err := httpapi.Do(ctx, c.httpClient, http.MethodPut, c.baseURL, identityHeaders(identity), body, nil)
	if err != nil {
		return c.wireError("update welcome text", err)
	}
	return nil
}

// DeleteBot removes the bot registration for this identity.
// A NotFound result is returned as such; the caller decides whether a
// missing bot counts as success.
func (c *Client) DeleteBot(ctx context.Context, identity string, botID int64) error {
	q := url.Values{}
	q.Set("bot_id", strconv.FormatInt(botID, 10))

	err := httpapi.Do(ctx, c.httpClient, http.MethodDelete, c.baseURL+"?"+q.Encode(), identityHeaders(identity), nil, nil)
	if err != nil {
		return c.wireError("delete bot", err)
	}
	return nil
}

// checkTokenShape rejects obviously malformed tokens. The platform issues
// tokens of the form "<numeric id>:<secret>".
func checkTokenShape(token string) error {
	token = strings.TrimSpace(token)
	if len(token) < minTokenLength {
		return apperrors.NewValidationError("bot token is too short", nil)
	}
	if !strings.Contains(token, ":") {
		return apperrors.NewValidationError("bot token is malformed", nil)
	}
	return nil
}

// wireError maps transport results onto the application error taxonomy.
func (c *Client) wireError(op string, err error) error {
	var statusErr *httpapi.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound:
			return apperrors.NewNotFoundError(fmt.Sprintf("%s: bot not found", op), statusErr)
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.NewUnauthorizedError(fmt.Sprintf("%s: identity does not own this bot", op))
		}
	}
	return apperrors.NewNetworkError(fmt.Sprintf("%s failed", op), err)
}
