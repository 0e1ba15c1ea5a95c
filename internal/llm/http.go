package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	maxResponseBytes = 4 << 20
	maxErrorBody     = 512
)

// Endpoint is one provider URL and the headers every call to it carries.
type Endpoint struct {
	Provider string
	URL      string
	Header   http.Header
	Client   *http.Client // nil means a client with a 45s timeout
}

// PostJSON sends body as JSON and returns the response body.
// Responses outside 2xx come back as *StatusError alongside the body.
func (e Endpoint) PostJSON(ctx context.Context, body any, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}
	log := logger.With("req_id", uuid.NewString(), "provider", e.Provider)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", e.Provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", e.Provider, err)
	}
	for k, vs := range e.Header {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	log.Debug("llm.http.request", "url", e.URL, "content_length", len(payload))

	resp, err := client.Do(req)
	if err != nil {
		log.Warn("llm.http.send_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", e.Provider, err)
	}
	log.Info("llm.http.response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := raw
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return raw, &StatusError{Provider: e.Provider, Status: resp.StatusCode, Body: string(snippet)}
	}
	return raw, nil
}
