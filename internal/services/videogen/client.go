// Package videogen wraps the video-rendering API. Submissions may complete
// synchronously or return an operation handle that the poller tracks to a
// terminal state.
package videogen

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
	defaultBaseURL     = "https://motionforge.example.com/v1"
	defaultModel       = "motionforge-1"
	defaultHTTPTimeout = 120 * time.Second
)

// State is the rendering state reported by the service.
type State string

const (
	StateSucceeded State = "succeeded"
	StatePending   State = "pending"
	StateFailed    State = "failed"
)

// Result is the outcome of a submission or a poll.
type Result struct {
	State     State
	Reference string
	Operation string
	Reason    string
}

// Terminal reports whether the result ends the rendering lifecycle.
func (r Result) Terminal() bool {
	return r.State == StateSucceeded || r.State == StateFailed
}

// Config captures the runtime settings for the video service.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client talks to the video-rendering service.
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

// NewClient constructs a video-rendering client.
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

// Request describes one rendering job: a motion instruction applied to an
// already-resolved source visual.
type Request struct {
	Instruction string
	SourceImage string
}

type renderRequest struct {
	Model       string `json:"model"`
	Instruction string `json:"instruction"`
	SourceImage string `json:"source_image"`
}

type renderResponse struct {
	Status      string `json:"status"`
	OperationID string `json:"operation_id"`
	Video       struct {
		URL string `json:"url"`
	} `json:"video"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Submit starts a rendering job. The service may answer with a finished
// video, a failure, or an operation handle for polling.
func (c *Client) Submit(ctx context.Context, req Request) (Result, error) {
	var empty Result
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return empty, errors.New("video submit: instruction required")
	}
	source := strings.TrimSpace(req.SourceImage)
	if source == "" {
		return empty, errors.New("video submit: source image required")
	}
	payload := renderRequest{
		Model:       c.cfg.Model,
		Instruction: instruction,
		SourceImage: source,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return empty, fmt.Errorf("video submit: encode body: %w", err)
	}
	return c.send(ctx, http.MethodPost, c.cfg.BaseURL+"/renders", encoded, "video submit")
}

// Poll checks the status of a previously submitted rendering operation.
// A missing or expired operation maps to a not-found error.
func (c *Client) Poll(ctx context.Context, operationID string) (Result, error) {
	var empty Result
	operationID = strings.TrimSpace(operationID)
	if operationID == "" {
		return empty, errors.New("video poll: operation id required")
	}
	result, err := c.send(ctx, http.MethodGet, c.cfg.BaseURL+"/operations/"+operationID, nil, "video poll")
	if err != nil {
		var statusErr *services.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return empty, services.Wrap(services.ErrNotFound, "video poll", err)
		}
		return empty, err
	}
	if result.Operation == "" {
		result.Operation = operationID
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body []byte, op string) (Result, error) {
	var empty Result
	if c.cfg.APIKey == "" {
		return empty, fmt.Errorf("%s: api key required", op)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return empty, fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("%s: http error: %w", op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, fmt.Errorf("%s: %w", op, &services.StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		})
	}

	var decoded renderResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return empty, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if decoded.Error != nil && decoded.Status == "" {
		return empty, fmt.Errorf("%s: api error: %s", op, strings.TrimSpace(decoded.Error.Message))
	}
	return decoded.toResult(op, raw)
}

func (r renderResponse) toResult(op string, raw []byte) (Result, error) {
	result := Result{Operation: strings.TrimSpace(r.OperationID)}
	if r.Error != nil {
		result.Reason = strings.TrimSpace(r.Error.Message)
	}

	switch normalizeState(r.Status) {
	case StateSucceeded:
		reference := strings.TrimSpace(r.Video.URL)
		if reference == "" {
			return Result{}, fmt.Errorf("%s: succeeded without a video reference (snippet: %s)", op, services.SummarizeSnippet(string(raw)))
		}
		result.State = StateSucceeded
		result.Reference = reference
	case StateFailed:
		result.State = StateFailed
		if result.Reason == "" {
			result.Reason = "rendering failed"
		}
	default:
		if result.Operation == "" {
			return Result{}, fmt.Errorf("%s: pending without an operation handle (snippet: %s)", op, services.SummarizeSnippet(string(raw)))
		}
		result.State = StatePending
	}
	return result, nil
}

func normalizeState(status string) State {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded", "completed", "complete", "done":
		return StateSucceeded
	case "failed", "error", "cancelled", "canceled":
		return StateFailed
	default:
		return StatePending
	}
}
