package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kopfenjager/Vision-crm-agent/internal/llm"
)

const systemPrompt = "You convert identity document text into JSON records. Reply with a single JSON object only."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Temperature    float32         `json:"temperature"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client calls chat/completions.
type Client struct {
	cfg      Config
	endpoint llm.Endpoint
	logger   *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	return &Client{
		cfg: cfg,
		endpoint: llm.Endpoint{
			Provider: "openai",
			URL:      strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
			Header:   header,
			Client:   &http.Client{Timeout: cfg.Timeout},
		},
		logger: logger,
	}
}

func (c *Client) Name() string { return "openai" }

// Complete implements llm.Completer with one chat/completions call.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("openai: api key is empty")
	}
	req := chatRequest{
		Model:       c.cfg.Model,
		Temperature: temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	if supportsJSONMode(c.cfg.Model) {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	raw, err := c.endpoint.PostJSON(ctx, req, c.logger)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Error("openai.decode_error", "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in openai response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// supportsJSONMode is false for the original gpt-4 snapshots, which reject response_format.
func supportsJSONMode(model string) bool {
	return model != "gpt-4" && !strings.HasPrefix(model, "gpt-4-0")
}
