package http_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stockscore/types"

	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (compatible; stockscore/1.0)"

// NewHTTPClient returns the client shared by the upstream providers.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// getJSON performs a GET and decodes the JSON body into out.
func getJSON(ctx context.Context, client *http.Client, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return do(client, req, out)
}

// postJSON sends body as JSON and decodes the JSON response into out.
func postJSON(ctx context.Context, client *http.Client, endpoint string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return do(client, req, out)
}

func do(client *http.Client, req *http.Request, out interface{}) error {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", req.Method, req.URL.Host, err, types.ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %v: %w", err, types.ErrUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, types.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		zap.L().Warn("Upstream returned non-2xx",
			zap.String("host", req.URL.Host),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s %s: status code %d: %w", req.Method, req.URL.Path, resp.StatusCode, types.ErrUnavailable)
	}

	if err := json.Unmarshal(body, out); err != nil {
		zap.L().Error("Failed to unmarshal upstream response", zap.String("host", req.URL.Host), zap.Error(err))
		return fmt.Errorf("decode response: %v: %w", err, types.ErrUnavailable)
	}
	return nil
}
