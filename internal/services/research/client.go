// Package research wraps the grounded text-generation API used for brand
// research, schema-constrained profile extraction, and content idea seeding.
// Calls are single-shot; admission and retry policy belong to the governor.
package research

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

	"postforge/internal/brand"
	"postforge/internal/services"
)

const (
	defaultBaseURL     = "https://generativetext.example.com/v1"
	defaultModel       = "ground-researcher-2"
	defaultHTTPTimeout = 60 * time.Second
)

// Config captures the runtime settings for the text service.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client talks to the grounded text-generation service.
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

// NewClient constructs a research client using the supplied configuration.
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

// Research performs open-ended, web-grounded research about the business at
// the supplied URL and returns the raw findings as free text.
func (c *Client) Research(ctx context.Context, siteURL string) (string, error) {
	siteURL = strings.TrimSpace(siteURL)
	if siteURL == "" {
		return "", errors.New("research: url required")
	}
	payload := generateRequest{
		Model:    c.cfg.Model,
		System:   researchPrompt,
		Input:    fmt.Sprintf("Research the business at %s.", siteURL),
		Grounded: true,
	}
	content, err := c.generate(ctx, payload, "research")
	if err != nil {
		return "", err
	}
	return content, nil
}

// ExtractProfile structures raw research findings into a brand profile via a
// schema-constrained extraction call. When findings are empty the model
// answers from direct knowledge of the URL alone.
func (c *Client) ExtractProfile(ctx context.Context, siteURL, findings string) (brand.Profile, error) {
	var empty brand.Profile
	siteURL = strings.TrimSpace(siteURL)
	if siteURL == "" {
		return empty, errors.New("extract profile: url required")
	}

	input := fmt.Sprintf("Business URL: %s", siteURL)
	if trimmed := strings.TrimSpace(findings); trimmed != "" {
		input = fmt.Sprintf("Business URL: %s\n\nResearch findings:\n%s", siteURL, trimmed)
	}
	payload := generateRequest{
		Model:          c.cfg.Model,
		System:         extractionPrompt,
		Input:          input,
		ResponseFormat: jsonResponseFormat,
	}
	content, err := c.generate(ctx, payload, "extract profile")
	if err != nil {
		return empty, err
	}

	var parsed profilePayload
	if err := services.DecodeModelJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("extract profile: parse payload: %w", err)
	}
	return parsed.toProfile(siteURL), nil
}

// SeedIdeas generates a batch of post candidates from the profile. Idea
// identifiers and brand ownership are assigned by the caller.
func (c *Client) SeedIdeas(ctx context.Context, profile brand.Profile, count int) ([]brand.Idea, error) {
	if count <= 0 {
		return nil, errors.New("seed ideas: count must be positive")
	}
	payload := generateRequest{
		Model:          c.cfg.Model,
		System:         seedingPrompt,
		Input:          seedingInput(profile, count),
		ResponseFormat: jsonResponseFormat,
	}
	content, err := c.generate(ctx, payload, "seed ideas")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Ideas []ideaPayload `json:"ideas"`
	}
	if err := services.DecodeModelJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("seed ideas: parse payload: %w", err)
	}

	ideas := make([]brand.Idea, 0, len(parsed.Ideas))
	for _, raw := range parsed.Ideas {
		idea, ok := raw.toIdea()
		if !ok {
			continue
		}
		ideas = append(ideas, idea)
	}
	if len(ideas) == 0 {
		return nil, fmt.Errorf("seed ideas: no usable ideas in payload (snippet: %s)", services.SummarizeSnippet(content))
	}
	return ideas, nil
}

type generateRequest struct {
	Model          string            `json:"model"`
	System         string            `json:"system"`
	Input          string            `json:"input"`
	Grounded       bool              `json:"grounded,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

var jsonResponseFormat = map[string]string{"type": "json_object"}

type generateResponse struct {
	Output string `json:"output"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) generate(ctx context.Context, payload generateRequest, op string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%s: api key required", op)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: encode body: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/generate", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: http error: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%s: %w", op, &services.StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", op, err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("%s: api error: %s", op, strings.TrimSpace(decoded.Error.Message))
	}
	output := strings.TrimSpace(decoded.Output)
	if output == "" {
		return "", fmt.Errorf("%s: empty output (snippet: %s)", op, services.SummarizeSnippet(string(body)))
	}
	return output, nil
}

type profilePayload struct {
	Name       string   `json:"name"`
	Industry   string   `json:"industry"`
	Essence    string   `json:"essence"`
	Strategy   string   `json:"strategy"`
	Vibe       string   `json:"vibe"`
	Colors     []string `json:"colors"`
	Services   []string `json:"services"`
	Handles    []string `json:"handles"`
	LogoURL    string   `json:"logo_url"`
	Confidence int      `json:"confidence"`
}

func (p profilePayload) toProfile(siteURL string) brand.Profile {
	confidence := p.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return brand.Profile{
		SourceURL:  siteURL,
		Name:       strings.TrimSpace(p.Name),
		Industry:   strings.TrimSpace(p.Industry),
		Essence:    strings.TrimSpace(p.Essence),
		Strategy:   strings.TrimSpace(p.Strategy),
		Vibe:       strings.TrimSpace(p.Vibe),
		Colors:     trimAll(p.Colors),
		Services:   trimAll(p.Services),
		Handles:    trimAll(p.Handles),
		LogoURL:    strings.TrimSpace(p.LogoURL),
		Confidence: confidence,
	}
}

type ideaPayload struct {
	Platform     string   `json:"platform"`
	Caption      string   `json:"caption"`
	Hashtags     []string `json:"hashtags"`
	VisualPrompt string   `json:"visual_prompt"`
}

func (p ideaPayload) toIdea() (brand.Idea, bool) {
	platform, ok := brand.ParsePlatform(p.Platform)
	if !ok {
		platform = brand.PlatformInstagram
	}
	caption := strings.TrimSpace(p.Caption)
	prompt := strings.TrimSpace(p.VisualPrompt)
	if caption == "" || prompt == "" {
		return brand.Idea{}, false
	}
	return brand.Idea{
		Platform:     platform,
		Caption:      caption,
		Hashtags:     trimAll(p.Hashtags),
		VisualPrompt: prompt,
		VideoStatus:  brand.VideoNone,
		Status:       brand.IdeaPending,
	}, true
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
