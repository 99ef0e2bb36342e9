package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDuty Events API v2 payload.

type PagerDutyEvent struct {
	RoutingKey  string           `json:"routing_key"`
	EventAction string           `json:"event_action"` // trigger, resolve
	DedupKey    string           `json:"dedup_key,omitempty"`
	Payload     PagerDutyPayload `json:"payload"`
}

type PagerDutyPayload struct {
	Summary       string                 `json:"summary"`
	Source        string                 `json:"source"`
	Severity      string                 `json:"severity"` // critical, error, warning, info
	Timestamp     string                 `json:"timestamp,omitempty"`
	CustomDetails map[string]interface{} `json:"custom_details,omitempty"`
}

type pagerDutyResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DedupKey string `json:"dedup_key"`
}

// PagerDutyClient sends trigger/resolve events for heartbeat alerts.
type PagerDutyClient struct {
	url        string
	routingKey string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewPagerDutyClient(url, routingKey string, timeout time.Duration, logger *logrus.Logger) *PagerDutyClient {
	if url == "" {
		url = pagerDutyEventsURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PagerDutyClient{
		url:        url,
		routingKey: routingKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Configured reports whether a routing key is present.
func (c *PagerDutyClient) Configured() bool {
	return c.routingKey != ""
}

// Trigger opens (or re-notifies) an incident keyed by dedupKey.
func (c *PagerDutyClient) Trigger(ctx context.Context, dedupKey, summary, source string, details map[string]interface{}) error {
	return c.send(ctx, PagerDutyEvent{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    dedupKey,
		Payload: PagerDutyPayload{
			Summary:       summary,
			Source:        source,
			Severity:      "critical",
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	})
}

// Resolve closes the incident keyed by dedupKey.
func (c *PagerDutyClient) Resolve(ctx context.Context, dedupKey, summary, source string) error {
	return c.send(ctx, PagerDutyEvent{
		RoutingKey:  c.routingKey,
		EventAction: "resolve",
		DedupKey:    dedupKey,
		Payload: PagerDutyPayload{
			Summary:  summary,
			Source:   source,
			Severity: "info",
		},
	})
}

func (c *PagerDutyClient) send(ctx context.Context, event PagerDutyEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal pagerduty event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var apiResp pagerDutyResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiResp)
		return fmt.Errorf("pagerduty rejected event: status %d %s", resp.StatusCode, apiResp.Message)
	}
	return nil
}
