package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tokenwatch/internal/market"
)

// Source normalizes one upstream data source into the common market.Record
// shape. Implementations own their health state and never let a transport
// error escape undecorated.
type Source interface {
	// Name identifies the source in logs and records.
	Name() string
	// Healthy reports whether the source should be dispatched to right now.
	Healthy() bool
	// SupportsAddress reports whether the source can resolve contract
	// addresses (as opposed to ticker symbols only).
	SupportsAddress() bool
	// Lookup resolves a query. Returns market.ErrNotFound when the upstream
	// answered but knows no such token.
	Lookup(ctx context.Context, q market.Query) (*market.Record, error)
}

// getJSON issues a GET with the supplied headers and decodes a JSON body.
// Non-2xx statuses and decode failures are returned as errors so the caller
// can feed them into its health tracker.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, body: body}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type statusError struct {
	status int
	body   []byte
}

func (e *statusError) Error() string {
	if len(e.body) > 0 {
		return fmt.Sprintf("upstream status %d: %s", e.status, strings.TrimSpace(truncate(string(e.body), 200)))
	}
	return fmt.Sprintf("upstream status %d", e.status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
