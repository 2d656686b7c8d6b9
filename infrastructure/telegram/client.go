package telegram

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"

	"secret-santa/contract"
	"secret-santa/domain"
	"secret-santa/errors"
)

var _ contract.Notifier = (*Client)(nil)

// apiError is a failed Bot API call.
type apiError struct {
	method      string
	code        int
	description string
	retryAfter  int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.method, e.code, e.description)
}

func (e *apiError) Unwrap() error {
	if e.code == http.StatusTooManyRequests {
		return errors.ErrRateLimited
	}
	return errors.ErrTransport
}

// transient tells whether the same call may succeed later.
func (e *apiError) transient() bool {
	return e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

// Client calls the Bot API. Sends are retried on rate limiting and server errors,
// waiting retry_after seconds when Telegram says so.
type Client struct {
	http       *http.Client
	baseURL    string
	retries    int
	retryDelay time.Duration
	log        *slog.Logger
}

type ClientOption func(*Client)

// WithRetryDelay sets the first delay between retries of a failed send.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = d }
}

// WithHTTPClient replaces the default HTTP client, e.g. to size its connection pool.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func NewClient(apiURL, token string, retries int, log *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		http:       &http.Client{},
		baseURL:    fmt.Sprintf("%s/bot%s", strings.TrimSuffix(apiURL, "/"), token),
		retries:    retries,
		retryDelay: 500 * time.Millisecond,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMe checks the token and returns the bot account.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	if err := c.do(ctx, "getMe", struct{}{}, &me); err != nil {
		return User{}, err
	}
	return me, nil
}

// GetUpdates long polls for updates after offset. It is never retried here; the poller backs off.
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	var updates []Update
	err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Limit:          limit,
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	return updates, err
}

func (c *Client) SendText(ctx context.Context, userID domain.UserID, msg domain.Message) (domain.MessageRef, error) {
	var sent Message
	err := c.do(ctx, "sendMessage", sendMessageRequest{
		ChatID:                int64(userID),
		Text:                  msg.Text,
		ParseMode:             string(msg.ParseMode),
		DisableWebPagePreview: true,
		ReplyMarkup:           toMarkup(msg.Keyboard),
	}, &sent)
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: sent.Chat.ID, MessageID: sent.MessageID}, nil
}

// EditText replaces a message in place. Only inline keyboards can be attached to an edited message.
func (c *Client) EditText(ctx context.Context, ref domain.MessageRef, msg domain.Message) error {
	req := editMessageTextRequest{
		ChatID:                ref.ChatID,
		MessageID:             ref.MessageID,
		Text:                  msg.Text,
		ParseMode:             string(msg.ParseMode),
		DisableWebPagePreview: true,
	}
	if markup, ok := toMarkup(msg.Keyboard).(*InlineKeyboardMarkup); ok {
		req.ReplyMarkup = markup
	}
	return c.do(ctx, "editMessageText", req, nil)
}

func (c *Client) AcknowledgeInteraction(ctx context.Context, interactionID string, text string) error {
	return c.do(ctx, "answerCallbackQuery", answerCallbackQueryRequest{
		CallbackQueryID: interactionID,
		Text:            text,
	}, nil)
}

// do calls method, retrying transient failures up to the configured number of times.
func (c *Client) do(ctx context.Context, method string, payload any, result any) error {
	var last error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.call(ctx, method, payload, result)
		if err == nil {
			return struct{}{}, nil
		}
		last = err
		var apiErr *apiError
		switch {
		case stderrors.As(err, &apiErr) && apiErr.retryAfter > 0:
			c.log.Debug("Rate limited", "method", method, "retry_after", apiErr.retryAfter)
			return struct{}{}, backoff.RetryAfter(apiErr.retryAfter)
		case stderrors.As(err, &apiErr) && !apiErr.transient():
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.retries+1)),
	)
	if err != nil && last != nil {
		return last
	}
	return err
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	return b
}

// call performs a single Bot API request.
func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errors.ErrTransport, method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: reading response: %w", errors.ErrTransport, method, err)
	}
	var envelope response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &apiError{method: method, code: resp.StatusCode, description: "unreadable response"}
	}
	if !envelope.OK {
		apiErr := &apiError{method: method, code: envelope.ErrorCode, description: envelope.Description}
		if apiErr.code == 0 {
			apiErr.code = resp.StatusCode
		}
		if envelope.Parameters != nil {
			apiErr.retryAfter = envelope.Parameters.RetryAfter
		}
		return apiErr
	}
	if result == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("%w: %s: decoding result: %w", errors.ErrTransport, method, err)
	}
	return nil
}

func toMarkup(keyboard *domain.Keyboard) any {
	if keyboard == nil || len(keyboard.Rows) == 0 {
		return nil
	}
	if !keyboard.Inline {
		rows := make([][]KeyboardButton, len(keyboard.Rows))
		for i, row := range keyboard.Rows {
			for _, b := range row {
				rows[i] = append(rows[i], KeyboardButton{Text: b.Text})
			}
		}
		return &ReplyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
	}
	rows := make([][]InlineKeyboardButton, len(keyboard.Rows))
	for i, row := range keyboard.Rows {
		for _, b := range row {
			rows[i] = append(rows[i], InlineKeyboardButton{Text: b.Text, CallbackData: b.Payload})
		}
	}
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}
