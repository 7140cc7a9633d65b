package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is returned by HTTPClient.DoJSON for non-2xx responses so
// callers can map specific statuses (429, 503) to typed errors.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("http %d: %s", e.Status, body)
}

// HTTPClient is a small JSON HTTP helper with retries and exponential backoff.
// Only transport errors and 5xx responses are retried; 4xx responses are
// returned to the caller immediately.
type HTTPClient struct {
	client  *http.Client
	retries int
	backoff time.Duration
}

// NewHTTPClient creates a new HTTPClient.
func NewHTTPClient(timeout time.Duration, retries int, backoff time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		backoff: backoff,
	}
}

// DoJSON performs an HTTP request with a JSON body and decodes a JSON
// response into out (out may be nil).
func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, headers map[string]string, body interface{}, out interface{}) error {
	var payload []byte
	var err error
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(1<<uint(attempt-1))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read body: %w", err)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			se := &StatusError{Status: resp.StatusCode, Body: string(data)}
			if resp.StatusCode >= 500 {
				lastErr = se
				continue
			}
			return se
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
		}
		return nil
	}
	return lastErr
}
