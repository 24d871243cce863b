// Package delivery defines the outbound endpoint contracts and the HTTP
// client that posts event batches to them.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mozilla/fxa-amplitude-send/internal/domain/event"
)

// deliveryTimeout bounds one outbound call. The destination enforces this
// budget; treat it as a hard requirement, not advisory.
const deliveryTimeout = 5 * time.Second

// Endpoint is one physical outbound destination.
type Endpoint struct {
	// Name labels the endpoint in logs and metrics, e.g. "httpapi".
	Name string

	// URL is the destination address.
	URL string

	// Identify marks endpoints speaking the identify form protocol rather
	// than the JSON events protocol.
	Identify bool
}

// Client posts a batch of events to an endpoint as one atomic network
// operation. A nil error means the whole batch was accepted.
type Client interface {
	Post(ctx context.Context, endpoint Endpoint, events []event.Event) error
}

// HTTPClient implements Client against the analytics HTTP APIs.
type HTTPClient struct {
	apiKey string
	client *http.Client
}

// NewHTTPClient creates an HTTPClient authenticating with apiKey.
func NewHTTPClient(apiKey string) *HTTPClient {
	return &HTTPClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: deliveryTimeout},
	}
}

// Post sends the batch. Events are serialized in slice order; the
// destination treats within-batch order as the event timeline.
func (c *HTTPClient) Post(ctx context.Context, endpoint Endpoint, events []event.Event) error {
	var req *http.Request
	var err error
	if endpoint.Identify {
		req, err = c.identifyRequest(ctx, endpoint, events)
	} else {
		req, err = c.eventsRequest(ctx, endpoint, events)
	}
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, endpoint.Name, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: status %d", ErrDeliveryFailed, endpoint.Name, resp.StatusCode)
	}
	return nil
}

// eventsRequest builds the JSON events call used by the httpapi and batch
// endpoints.
func (c *HTTPClient) eventsRequest(ctx context.Context, endpoint Endpoint, events []event.Event) (*http.Request, error) {
	body, err := json.Marshal(map[string]any{
		"api_key": c.apiKey,
		"events":  events,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, endpoint.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, endpoint.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// identifyRequest builds the form-encoded identification call used by the
// identify endpoint.
func (c *HTTPClient) identifyRequest(ctx context.Context, endpoint Endpoint, events []event.Event) (*http.Request, error) {
	identification, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, endpoint.Name, err)
	}

	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("identification", string(identification))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, endpoint.Name, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}
