// Package telegram is a thin Telegram Bot API client covering the handful
// of moderation calls the engine issues: deleting messages, muting and
// banning members, posting notices, and probing member status. It satisfies
// the engine's ChatAPI interface.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Config holds client settings.
type Config struct {
	Token       string        // bot token, required
	BaseURL     string        // override for tests; DefaultBaseURL when empty
	CallTimeout time.Duration // per-call HTTP timeout
}

// Client issues Bot API calls over HTTP. Safe for concurrent use.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Client from config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Client{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.CallTimeout},
	}, nil
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// call POSTs a JSON body to one Bot API method and decodes the envelope.
// result may be nil when the caller only cares about success.
func (c *Client) call(ctx context.Context, method string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: request %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("telegram: decode %s: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("telegram: %s: api error %d: %s", method, env.ErrorCode, env.Description)
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

// DeleteMessage removes a message from a chat.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// MuteUser restricts a member from sending messages until the given time.
func (c *Client) MuteUser(ctx context.Context, chatID, userID int64, until time.Time) error {
	return c.call(ctx, "restrictChatMember", map[string]any{
		"chat_id":    chatID,
		"user_id":    userID,
		"until_date": until.Unix(),
		"permissions": map[string]bool{
			"can_send_messages":       false,
			"can_send_other_messages": false,
			"can_add_web_page_previews": false,
		},
	}, nil)
}

// BanUser permanently removes a member from a chat.
func (c *Client) BanUser(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "banChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil)
}

// SendMessage posts HTML-formatted text and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}, &msg)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// IsUserAdmin reports whether the user is the chat's creator or an
// administrator.
func (c *Client) IsUserAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := c.getChatMember(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	return member.Status == "creator" || member.Status == "administrator", nil
}

// IsUserBanned reports whether the user has already been kicked or left.
func (c *Client) IsUserBanned(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := c.getChatMember(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	return member.Status == "kicked" || member.Status == "left", nil
}

func (c *Client) getChatMember(ctx context.Context, chatID, userID int64) (*chatMember, error) {
	var member chatMember
	err := c.call(ctx, "getChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, &member)
	if err != nil {
		return nil, err
	}
	return &member, nil
}
