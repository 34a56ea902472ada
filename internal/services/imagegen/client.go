// Package imagegen wraps the image-generation API. Calls are single-shot;
// rate limiting and throttle retries belong to the governor, the linear
// per-call retry policy belongs to the asset resolver.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"postforge/internal/services"
)

const (
	defaultBaseURL     = "https://imageforge.example.com/v1"
	defaultModel       = "imageforge-xl"
	defaultHTTPTimeout = 120 * time.Second

	qualityStandard = "standard"
	qualityDraft    = "draft"
)

// Config captures the runtime settings for the image service.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client talks to the image-generation service.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an image-generation client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// Request describes one image to generate. Degraded requests trade quality
// for a higher chance of acceptance on constrained capacity.
type Request struct {
	Prompt       string
	Palette      []string
	ArtDirection string
	Degraded     bool
}

type generateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Quality string `json:"quality"`
}

type generateResponse struct {
	Images []struct {
		URL  string `json:"url"`
		B64  string `json:"b64_data"`
		MIME string `json:"mime_type"`
	} `json:"images"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate produces one image for the request and returns a displayable
// reference, either an https URL or a data URI.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("image generate: prompt required")
	}
	if c.cfg.APIKey == "" {
		return "", errors.New("image generate: api key required")
	}

	quality := qualityStandard
	if req.Degraded {
		quality = qualityDraft
	}
	payload := generateRequest{
		Model:   c.cfg.Model,
		Prompt:  composePrompt(prompt, req.Palette, req.ArtDirection),
		Quality: quality,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("image generate: encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/images", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("image generate: new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("image generate: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("image generate: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("image generate: %w", &services.StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("image generate: decode response: %w", err)
	}
	if decoded.Error != nil {
		message := strings.TrimSpace(decoded.Error.Message)
		if decoded.Error.Code == "content_policy" || strings.Contains(strings.ToLower(message), "safety") {
			return "", services.Wrap(services.ErrContentPolicy, "image generate", errors.New(message))
		}
		return "", fmt.Errorf("image generate: api error: %s", message)
	}

	for _, image := range decoded.Images {
		if url := strings.TrimSpace(image.URL); url != "" {
			return url, nil
		}
		if data := strings.TrimSpace(image.B64); data != "" {
			mime := strings.TrimSpace(image.MIME)
			if mime == "" {
				mime = "image/png"
			}
			return "data:" + mime + ";base64," + data, nil
		}
	}
	return "", fmt.Errorf("image generate: empty result (snippet: %s)", services.SummarizeSnippet(string(body)))
}

func composePrompt(prompt string, palette []string, artDirection string) string {
	var b strings.Builder
	b.WriteString(prompt)
	if direction := strings.TrimSpace(artDirection); direction != "" {
		b.WriteString(". Art direction: ")
		b.WriteString(direction)
	}
	colors := make([]string, 0, len(palette))
	for _, color := range palette {
		if trimmed := strings.TrimSpace(color); trimmed != "" {
			colors = append(colors, trimmed)
		}
	}
	if len(colors) > 0 {
		b.WriteString(". Brand palette: ")
		b.WriteString(strings.Join(colors, ", "))
	}
	return b.String()
}
