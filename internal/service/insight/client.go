package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrAnalysisFailed = errors.New("website analysis failed")
	ErrEmptyPayload   = errors.New("analysis returned an empty payload")
)

const maxEnvelopeBytes = 1 << 20

// Client calls the remote analysis endpoint.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an analysis client for baseURL. The token is sent as a bearer credential.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

type analyzeRequest struct {
	Website string `json:"website"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Analyze posts the website and returns the data field of a success envelope.
func (c *Client) Analyze(ctx context.Context, website string) (string, error) {
	body, err := json.Marshal(analyzeRequest{Website: website})
	if err != nil {
		return "", fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze-website", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrAnalysisFailed, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && env.Error != "" {
			return "", fmt.Errorf("%w: status %d: %s", ErrAnalysisFailed, resp.StatusCode, env.Error)
		}
		return "", fmt.Errorf("%w: status %d", ErrAnalysisFailed, resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode envelope: %v", ErrAnalysisFailed, decodeErr)
	}
	if !env.Success {
		if env.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrAnalysisFailed, env.Error)
		}
		return "", fmt.Errorf("%w: unsuccessful response", ErrAnalysisFailed)
	}

	return dataText(env.Data), nil
}

// dataText unwraps a JSON string; any other JSON value is passed on as its literal text.
func dataText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}
