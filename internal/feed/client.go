// Package feed is a read-only client for the relayed-message feed. Messages
// are created upstream by the webhook pipeline; this client only
// materializes what the registry reports, never creating, editing, or
// deleting anything.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/akarpov/botconsole/internal/errors"
	"github.com/akarpov/botconsole/internal/httpapi"
)

const identityHeader = "X-User-Id"

// Message is one relayed communication from an end user to the bot.
// Immutable once fetched; the creation timestamp is assigned upstream.
type Message struct {
	ID        int64             `json:"id"`
	BotID     int64             `json:"bot_id"`
	ChatID    int64             `json:"chat_id"`
	Username  string            `json:"username"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Text      string            `json:"message_text"`
	CreatedAt httpapi.Timestamp `json:"created_at"`
}

// Sender returns the best available display name for the message sender:
// the handle when present, otherwise the name parts.
func (m Message) Sender() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := strings.TrimSpace(m.FirstName + " " + m.LastName)
	if name != "" {
		return name
	}
	return "unknown"
}

// Client fetches relayed messages for a bot.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a message feed client for the given endpoint.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With("component", "feed_client"),
	}
}

// FetchMessages returns the relayed messages for the given bot, in the
// order the feed reports them. A bot with no messages yet yields an empty
// sequence, not an error.
func (c *Client) FetchMessages(ctx context.Context, identity string, botID int64) ([]Message, error) {
	q := url.Values{}
	q.Set("bot_id", strconv.FormatInt(botID, 10))

	header := http.Header{}
	header.Set(identityHeader, identity)

	var out struct {
		Messages []Message `json:"messages"`
	}
	err := httpapi.Do(ctx, c.httpClient, http.MethodGet, c.baseURL+"?"+q.Encode(), header, nil, &out)
	if err != nil {
		var statusErr *httpapi.StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.StatusCode {
			case http.StatusNotFound:
				return nil, apperrors.NewNotFoundError("fetch messages: bot not found", statusErr)
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, apperrors.NewUnauthorizedError("fetch messages: identity does not own this bot")
			}
		}
		return nil, apperrors.NewNetworkError("fetch messages failed", err)
	}

	if out.Messages == nil {
		return []Message{}, nil
	}

	c.logger.DebugContext(ctx, "Fetched messages", "bot_id", botID, "count", len(out.Messages))
	return out.Messages, nil
}
