package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Slack Block Kit payload fragments, limited to what the approval
// messages need.

type SlackTextObject struct {
	Type  string `json:"type"` // plain_text, mrkdwn
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type SlackBlock struct {
	Type     string           `json:"type"` // header, section, actions, context
	Text     *SlackTextObject `json:"text,omitempty"`
	Elements []SlackElement   `json:"elements,omitempty"`
}

type SlackElement struct {
	Type     string           `json:"type"` // button, mrkdwn
	Text     *SlackTextObject `json:"text,omitempty"`
	ActionID string           `json:"action_id,omitempty"`
	Value    string           `json:"value,omitempty"`
	Style    string           `json:"style,omitempty"` // primary, danger
}

// SlackAPIError is returned when the Slack Web API answered but refused
// the call. Transport failures surface as plain wrapped errors, so
// callers can distinguish the two.
type SlackAPIError struct {
	Method string
	Reason string
}

func (e *SlackAPIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Reason)
}

// SlackNotifier posts and edits interactive messages.
type SlackNotifier interface {
	PostMessage(ctx context.Context, channel string, text string, blocks []SlackBlock) (ts string, err error)
	UpdateMessage(ctx context.Context, channel, ts string, text string, blocks []SlackBlock) error
}

// SlackClient is a minimal Slack Web API client (chat.postMessage and
// chat.update).
type SlackClient struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewSlackClient creates a client with a bounded request timeout and
// traced outbound transport.
func NewSlackClient(baseURL, botToken string, timeout time.Duration, logger *logrus.Logger) *SlackClient {
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SlackClient{
		baseURL:  baseURL,
		botToken: botToken,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type slackMessageRequest struct {
	Channel string       `json:"channel"`
	TS      string       `json:"ts,omitempty"`
	Text    string       `json:"text"`
	Blocks  []SlackBlock `json:"blocks,omitempty"`
}

type slackAPIResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
}

// PostMessage sends a message and returns the Slack message timestamp,
// which is the handle needed to edit the message in place later.
func (c *SlackClient) PostMessage(ctx context.Context, channel string, text string, blocks []SlackBlock) (string, error) {
	resp, err := c.call(ctx, "chat.postMessage", slackMessageRequest{Channel: channel, Text: text, Blocks: blocks})
	if err != nil {
		return "", err
	}
	return resp.TS, nil
}

// UpdateMessage edits a previously posted message in place.
func (c *SlackClient) UpdateMessage(ctx context.Context, channel, ts string, text string, blocks []SlackBlock) error {
	_, err := c.call(ctx, "chat.update", slackMessageRequest{Channel: channel, TS: ts, Text: text, Blocks: blocks})
	return err
}

func (c *SlackClient) call(ctx context.Context, method string, payload slackMessageRequest) (*slackAPIResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slack %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	var apiResp slackAPIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		reason := apiResp.Error
		if reason == "" {
			reason = fmt.Sprintf("http status %d", resp.StatusCode)
		}
		return nil, &SlackAPIError{Method: method, Reason: reason}
	}
	return &apiResp, nil
}
