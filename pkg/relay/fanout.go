package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
)

// Fanout is the relay server side: every event it receives is re-posted
// to each registered backend webhook.
type Fanout struct {
	client   *http.Client
	webhooks []string
	timeout  time.Duration
}

func NewFanout(webhooks []string, timeout time.Duration) *Fanout {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fanout{client: &http.Client{}, webhooks: webhooks, timeout: timeout}
}

// Forward posts body to every webhook concurrently, tagging it with
// category. Failing webhooks do not stop delivery to the others; their
// errors are joined in the result.
func (f *Fanout) Forward(ctx context.Context, category string, body []byte) error {
	errs := make([]error, len(f.webhooks))
	g, gctx := errgroup.WithContext(ctx)
	for i, hook := range f.webhooks {
		g.Go(func() error {
			errs[i] = f.post(gctx, hook, category, body)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (f *Fanout) post(ctx context.Context, hook, category string, body []byte) error {
	target, err := url.Parse(hook)
	if err != nil {
		return fmt.Errorf("webhook %q: %w", hook, err)
	}
	q := target.Query()
	q.Set("category", category)
	target.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", hook, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s responded with status %d", hook, resp.StatusCode)
	}
	return nil
}

// Webhooks lists the configured targets.
func (f *Fanout) Webhooks() []string {
	return f.webhooks
}
