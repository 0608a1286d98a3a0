package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/layer-3/promox/paygate"
)

const (
	// DefaultURL is the public x402 facilitator
	DefaultURL = "https://x402.org/facilitator"

	headerContentType   = "Content-Type"
	mimeApplicationJSON = "application/json"
)

// Client talks to an x402 facilitator over HTTP
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a facilitator client. An empty url selects DefaultURL.
// A zero timeout leaves requests bounded only by the caller's context.
func NewClient(url, apiKey string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}

	return &Client{
		url:        strings.TrimRight(url, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ paygate.Facilitator = (*Client)(nil)

// Verify asks the facilitator whether payload satisfies requirements
func (c *Client) Verify(ctx context.Context, payload *paygate.PaymentPayload, requirements *paygate.PaymentRequirements) (*paygate.VerifyResponse, error) {
	var resp paygate.VerifyResponse
	if err := c.post(ctx, "verify", payload, requirements, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Settle asks the facilitator to settle payload on chain
func (c *Client) Settle(ctx context.Context, payload *paygate.PaymentPayload, requirements *paygate.PaymentRequirements) (*paygate.SettleResponse, error) {
	var resp paygate.SettleResponse
	if err := c.post(ctx, "settle", payload, requirements, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload *paygate.PaymentPayload, requirements *paygate.PaymentRequirements, out any) error {
	version := payload.X402Version
	if version == 0 {
		version = paygate.X402Version
	}

	jsonBody, err := json.Marshal(map[string]any{
		"x402Version":         version,
		"paymentPayload":      payload,
		"paymentRequirements": requirements,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/%s", c.url, endpoint), bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator %s returned %s", endpoint, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return nil
}
