package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-commercebot/core"
)

// DefaultBaseURL is the public Bot API origin.
const DefaultBaseURL = "https://api.telegram.org"

const defaultClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 1 << 20 // 1 MiB

const defaultRetryAfter = time.Second

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the Bot API client settings.
type Config struct {
	Token   string
	BaseURL string
	Client  HTTPDoer
	Logger  core.Logger
}

// Client talks to the Telegram Bot API. A 429 from the API surfaces as a
// typed throttle error carrying the advertised retry-after, so the
// delivery channel can decide how to back off; the client itself never
// retries.
type Client struct {
	token   string
	baseURL string
	client  HTTPDoer
	logger  core.Logger
}

// NewClient builds a Client from cfg, applying defaults.
func NewClient(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, core.ConfigMissingError{Field: "bot_token"}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		client:  client,
		logger:  cfg.Logger,
	}, nil
}

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode,omitempty"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type sendPhotoRequest struct {
	ChatID      int64        `json:"chat_id"`
	Photo       string       `json:"photo"`
	Caption     string       `json:"caption"`
	ParseMode   string       `json:"parse_mode,omitempty"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
}

type setWebhookRequest struct {
	URL string `json:"url"`
}

// SendText delivers a plain message, with an inline action menu when the
// payload carries one.
func (c *Client) SendText(ctx context.Context, conversationID int64, payload core.Payload) error {
	req := sendMessageRequest{
		ChatID:      conversationID,
		Text:        payload.Text,
		ReplyMarkup: menuMarkup(payload.Menu),
	}
	if req.ReplyMarkup != nil {
		req.ParseMode = "Markdown"
	}
	return c.call(ctx, "sendMessage", conversationID, req)
}

// SendPhoto delivers the payload image with its text as a Markdown
// caption.
func (c *Client) SendPhoto(ctx context.Context, conversationID int64, payload core.Payload) error {
	req := sendPhotoRequest{
		ChatID:      conversationID,
		Photo:       payload.ImageURL,
		Caption:     payload.Text,
		ParseMode:   "Markdown",
		ReplyMarkup: menuMarkup(payload.Menu),
	}
	return c.call(ctx, "sendPhoto", conversationID, req)
}

// AnswerCallback acknowledges a button press so the client stops showing
// its progress spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if strings.TrimSpace(callbackID) == "" {
		return core.BadInputError{Reason: "callback id is empty"}
	}
	return c.call(ctx, "answerCallbackQuery", 0, answerCallbackRequest{CallbackQueryID: callbackID})
}

// RegisterWebhook points the bot's webhook at url.
func (c *Client) RegisterWebhook(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return core.BadInputError{Reason: "webhook url is empty"}
	}
	return c.call(ctx, "setWebhook", 0, setWebhookRequest{URL: strings.TrimSpace(url)})
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) call(ctx context.Context, method string, conversationID int64, body any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "telegram: encode "+method+" request").
			WithTextCode(core.RelayErrorInternal)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "telegram: create "+method+" request").
			WithTextCode(core.RelayErrorInternal)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpRes, err := c.client.Do(httpReq)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "telegram: execute "+method).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.RelayErrorDeliveryFailed).
			WithMetadata(map[string]any{"method": method})
	}
	defer httpRes.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpRes.Body, defaultResponseBodyLimit))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "telegram: read "+method+" response").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.RelayErrorDeliveryFailed).
			WithMetadata(map[string]any{"method": method, "status_code": httpRes.StatusCode})
	}

	var parsed apiResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, "telegram: decode "+method+" response").
				WithCode(http.StatusBadGateway).
				WithTextCode(core.RelayErrorDeliveryFailed).
				WithMetadata(map[string]any{"method": method, "status_code": httpRes.StatusCode})
		}
	}
	if parsed.OK && httpRes.StatusCode < http.StatusBadRequest {
		return nil
	}

	if httpRes.StatusCode == http.StatusTooManyRequests || parsed.ErrorCode == http.StatusTooManyRequests {
		retryAfter := defaultRetryAfter
		if parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
			retryAfter = time.Duration(parsed.Parameters.RetryAfter) * time.Second
		}
		return core.ThrottledError{ConversationID: conversationID, RetryAfter: retryAfter}
	}

	return goerrors.New(
		fmt.Sprintf("telegram: %s rejected: %s", method, strings.TrimSpace(parsed.Description)),
		goerrors.CategoryExternal,
	).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.RelayErrorDeliveryFailed).
		WithMetadata(map[string]any{"method": method, "status_code": httpRes.StatusCode})
}

func menuMarkup(menu []core.MenuButton) *replyMarkup {
	if len(menu) == 0 {
		return nil
	}
	rows := make([][]inlineKeyboardButton, 0, len(menu))
	for _, button := range menu {
		rows = append(rows, []inlineKeyboardButton{{
			Text:         button.Label,
			CallbackData: button.Action,
		}})
	}
	return &replyMarkup{InlineKeyboard: rows}
}

var _ core.Transport = (*Client)(nil)
