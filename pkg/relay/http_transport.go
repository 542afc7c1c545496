package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notesync-be/pkg/events"
)

// HTTPTransport posts events to the central relay server.
type HTTPTransport struct {
	client   *http.Client
	baseURL  string
	resource string
	timeout  time.Duration
}

func NewHTTPTransport(baseURL, resource string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client:   &http.Client{},
		baseURL:  strings.TrimRight(baseURL, "/"),
		resource: resource,
		timeout:  timeout,
	}
}

func (t *HTTPTransport) Name() string {
	return "http"
}

// URL is {base}/{resource}/{category}/broadcast-event.
func (t *HTTPTransport) URL(category string) string {
	return fmt.Sprintf("%s/%s/%s/broadcast-event", t.baseURL, t.resource, category)
}

func (t *HTTPTransport) Publish(ctx context.Context, event events.Event) error {
	body, err := event.Marshal()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL(event.Category), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to relay: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("relay responded with status %d", resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
