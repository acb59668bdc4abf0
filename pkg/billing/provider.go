package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SubscriptionFetcher retrieves the full subscription object from the
// billing provider. The checkout payload alone lacks billing period
// bounds, so checkout completion needs this second round trip.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}

// ProviderClient is an HTTP client for the billing provider API.
type ProviderClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProviderClient creates a provider API client with a bounded request
// timeout.
func NewProviderClient(baseURL, apiKey string, timeout time.Duration) *ProviderClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProviderClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchSubscription retrieves a subscription by its provider id. Any
// failure here is transient from the webhook's point of view; the
// delivery fails with a 500 and the provider redelivers.
func (c *ProviderClient) FetchSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("subscription id is required")
	}

	url := fmt.Sprintf("%s/v1/subscriptions/%s", c.baseURL, subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var subscription ProviderSubscription
	if err := json.NewDecoder(resp.Body).Decode(&subscription); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	return &subscription, nil
}
