package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/buhgalteriya/buhgalteriya/internal/notification"
)

const defaultAPIURL = "https://api.telegram.org"

// APIError is a non-ok Bot API response.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client talks to the Telegram Bot API over HTTPS using fiber's HTTP client.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

// NewClient builds a Bot API client. An empty apiURL uses the public endpoint.
func NewClient(apiURL, token string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: strings.TrimRight(apiURL, "/"), token: token, timeout: timeout}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, payload any, timeout time.Duration, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(c.baseURL + "/bot" + c.token + "/" + method)
	agent.Timeout(timeout)
	if payload != nil {
		agent.JSON(payload)
	}
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	_, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("telegram %s: %w", method, errors.Join(errs...))
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !resp.OK {
		return &APIError{Method: method, Code: resp.ErrorCode, Description: resp.Description}
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func markup(rows [][]notification.Button) *replyMarkup {
	if len(rows) == 0 {
		return nil
	}
	m := &replyMarkup{InlineKeyboard: make([][]inlineButton, 0, len(rows))}
	for _, row := range rows {
		buttons := make([]inlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, inlineButton{Text: b.Text, CallbackData: b.Data})
		}
		m.InlineKeyboard = append(m.InlineKeyboard, buttons)
	}
	return m
}

type sendMessageRequest struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type sendPhotoRequest struct {
	ChatID      int64        `json:"chat_id"`
	Photo       string       `json:"photo"`
	Caption     string       `json:"caption,omitempty"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

// Send delivers a notification as a text or photo message. It implements
// notification.Notifier.
func (c *Client) Send(ctx context.Context, m notification.Message) error {
	if m.PhotoFileID != "" {
		return c.call(ctx, "sendPhoto", sendPhotoRequest{
			ChatID:      m.ChatID,
			Photo:       m.PhotoFileID,
			Caption:     m.Text,
			ReplyMarkup: markup(m.Buttons),
		}, c.timeout, nil)
	}
	return c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      m.ChatID,
		Text:        m.Text,
		ReplyMarkup: markup(m.Buttons),
	}, c.timeout, nil)
}

// AnswerCallback acknowledges a button press, optionally with a toast.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
		"text":              text,
	}, c.timeout, nil)
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(wait.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}, wait+c.timeout, &updates)
	return updates, err
}

// DeleteWebhook switches the bot to polling delivery.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", nil, c.timeout, nil)
}

type file struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// FetchFile downloads a file sent to the bot.
func (c *Client) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	var f file
	if err := c.call(ctx, "getFile", map[string]string{"file_id": fileID}, c.timeout, &f); err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile: no path for %s", fileID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agent := fiber.Get(c.baseURL + "/file/bot" + c.token + "/" + f.FilePath)
	agent.Timeout(c.timeout)
	if err := agent.Parse(); err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("download %s: %w", fileID, errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", fileID, code)
	}
	return body, nil
}
