package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/rs/zerolog"
)

// HTTPGateway talks to a hosted SMS gateway: outbound messages are
// POSTed to the send endpoint, inbound device replies are polled from
// the receive endpoint.
type HTTPGateway struct {
	sendURL      string
	receiveURL   string
	apiKey       string
	pollInterval time.Duration
	client       *http.Client
	logger       zerolog.Logger
}

// NewHTTPGateway builds a gateway client for the given endpoints.
func NewHTTPGateway(sendURL, receiveURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		sendURL:      sendURL,
		receiveURL:   receiveURL,
		apiKey:       apiKey,
		pollInterval: 2 * time.Second,
		client:       &http.Client{Timeout: timeout},
		logger:       logger.With().Str("component", "sms-http-gateway").Logger(),
	}
}

type outboundMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type inboundMessage struct {
	From       string    `json:"from"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Send POSTs one outbound message to the gateway.
func (g *HTTPGateway) Send(ctx context.Context, to string, body string) error {
	payload, err := json.Marshal(outboundMessage{To: to, Body: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.sendURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransportUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: gateway returned status %d", models.ErrTransportUnreachable, resp.StatusCode)
	}
	return nil
}

// AwaitReply polls the receive endpoint until a message from the number
// arrives or the context expires.
func (g *HTTPGateway) AwaitReply(ctx context.Context, from string) (string, error) {
	since := time.Now().UTC()
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		body, ok, err := g.poll(ctx, from, since)
		if err != nil {
			return "", err
		}
		if ok {
			return body, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", fmt.Errorf("%w: no SMS reply from %s", models.ErrTransportTimeout, from)
		}
	}
}

func (g *HTTPGateway) poll(ctx context.Context, from string, since time.Time) (string, bool, error) {
	endpoint := fmt.Sprintf("%s?from=%s&since=%s", g.receiveURL,
		url.QueryEscape(from), url.QueryEscape(since.Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, fmt.Errorf("%w: no SMS reply from %s", models.ErrTransportTimeout, from)
		}
		return "", false, fmt.Errorf("%w: %v", models.ErrTransportUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("%w: gateway returned status %d", models.ErrTransportUnreachable, resp.StatusCode)
	}

	var result struct {
		Messages []inboundMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false, fmt.Errorf("%w: %v", models.ErrParse, err)
	}

	for _, msg := range result.Messages {
		if msg.From == from {
			return msg.Body, true, nil
		}
	}
	return "", false, nil
}

// Close is a no-op for the stateless HTTP gateway.
func (g *HTTPGateway) Close() error {
	return nil
}
