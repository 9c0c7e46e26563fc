// Package discord is the outbound notification channel: a thin REST
// client for creating, editing and deleting chat messages. It carries
// no reconciliation logic; its one interesting job is classifying
// failures into "message is gone" versus "try again later".
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/gridline/gridline/internal/model"
)

// DefaultBaseURL is the production chat API endpoint.
const DefaultBaseURL = "https://discord.com/api/v10"

// Discord error codes that mean the referenced entity no longer exists.
const (
	codeUnknownChannel = 10003
	codeUnknownMessage = 10008
)

// Client talks to the chat API for one bot identity.
// Safe for concurrent use: resty clients are goroutine-safe and the
// Client itself holds no mutable state.
type Client struct {
	http *resty.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used by tests to point the
// client at a local server.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(url)
	}
}

// New creates a Client authenticating with the given bot token.
func New(token string, opts ...Option) *Client {
	http := resty.New().
		SetBaseURL(DefaultBaseURL).
		SetHeader("Authorization", "Bot "+token).
		SetHeader("User-Agent", "gridline")

	c := &Client{http: http}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// messageRef is the slice of the API message object we care about.
type messageRef struct {
	ID string `json:"id"`
}

// apiError is the error body the chat API returns on failure.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send posts a message to a channel and returns its external handle.
// A non-nil attachment is uploaded alongside the content as a
// multipart request.
func (c *Client) Send(ctx context.Context, channelID, content string, attachment *model.Attachment) (string, error) {
	var out messageRef

	req := c.http.R().SetContext(ctx).SetResult(&out)
	if attachment != nil {
		payload, err := json.Marshal(map[string]string{"content": content})
		if err != nil {
			return "", fmt.Errorf("marshal payload: %w", err)
		}
		req.SetMultipartFormData(map[string]string{"payload_json": string(payload)}).
			SetMultipartField("files[0]", attachment.Name, "application/octet-stream",
				bytes.NewReader(attachment.Data))
	} else {
		req.SetBody(map[string]string{"content": content})
	}

	resp, err := req.Post(fmt.Sprintf("/channels/%s/messages", channelID))
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if err := classify(resp); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return out.ID, nil
}

// Edit replaces the content of an existing message.
// Returns the not-found class when the message no longer exists, which
// the reconciler treats as "must recreate".
func (c *Client) Edit(ctx context.Context, channelID, messageID, content string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"content": content}).
		Patch(fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID))
	if err != nil {
		return fmt.Errorf("edit message %s: %w", messageID, err)
	}
	if err := classify(resp); err != nil {
		return fmt.Errorf("edit message %s: %w", messageID, err)
	}
	return nil
}

// Delete removes a message. Returns the not-found class when it is
// already gone, which callers treat as an idempotent no-op.
func (c *Client) Delete(ctx context.Context, channelID, messageID string) error {
	resp, err := c.http.R().SetContext(ctx).
		Delete(fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID))
	if err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	if err := classify(resp); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return nil
}

// classify maps an API response onto the error taxonomy: 2xx is
// success, a missing entity is the not-found class, everything else
// (rate limits, 5xx) is transient and surfaces as a plain error for
// the next loop iteration to retry.
func classify(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	var body apiError
	_ = json.Unmarshal(resp.Body(), &body)

	if resp.StatusCode() == 404 || body.Code == codeUnknownMessage || body.Code == codeUnknownChannel {
		return fmt.Errorf("http %d (code %d): %w", resp.StatusCode(), body.Code, model.ErrNotFound)
	}
	if body.Message != "" {
		return fmt.Errorf("http %d: %s (code %d)", resp.StatusCode(), body.Message, body.Code)
	}
	return fmt.Errorf("http %d", resp.StatusCode())
}
