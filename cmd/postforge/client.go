package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"postforge/internal/config"
)

// apiClient is a thin typed wrapper over the daemon's HTTP API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(cfg *config.Config) *apiClient {
	return &apiClient{
		baseURL: "http://" + cfg.Paths.APIBind + "/api/v1",
		token:   cfg.Paths.APIToken,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

type jobView struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress"`
	Error       string     `json:"error"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Consumed    bool       `json:"consumed"`
}

type brandView struct {
	ID         int64    `json:"id"`
	SourceURL  string   `json:"source_url"`
	Name       string   `json:"name"`
	Industry   string   `json:"industry"`
	Essence    string   `json:"essence"`
	Vibe       string   `json:"vibe"`
	Colors     []string `json:"colors"`
	Confidence int      `json:"confidence"`
}

type ideaView struct {
	ID           string     `json:"id"`
	BrandID      int64      `json:"brand_id"`
	Platform     string     `json:"platform"`
	Caption      string     `json:"caption"`
	Hashtags     []string   `json:"hashtags"`
	VisualURL    string     `json:"visual_url"`
	VisualSource string     `json:"visual_source"`
	VideoURL     string     `json:"video_url"`
	VideoStatus  string     `json:"video_status"`
	Status       string     `json:"status"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
}

type notificationView struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is postforged running? %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) startAnalysis(siteURL string) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	err := c.do(http.MethodPost, "/analyses", map[string]string{"url": siteURL}, &out)
	return out.JobID, err
}

func (c *apiClient) analysisStatus(siteURL string) (*jobView, error) {
	var out jobView
	err := c.do(http.MethodGet, "/analyses?url="+url.QueryEscape(siteURL), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) listJobs() ([]jobView, error) {
	var out struct {
		Jobs []jobView `json:"jobs"`
	}
	err := c.do(http.MethodGet, "/jobs", nil, &out)
	return out.Jobs, err
}

func (c *apiClient) consumeJob(id string) (*brandView, error) {
	var out brandView
	if err := c.do(http.MethodPost, "/jobs/"+id+"/consume", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) dismissJob(id string) error {
	return c.do(http.MethodDelete, "/jobs/"+id, nil, nil)
}

func (c *apiClient) listBrands() ([]brandView, error) {
	var out struct {
		Brands []brandView `json:"brands"`
	}
	err := c.do(http.MethodGet, "/brands", nil, &out)
	return out.Brands, err
}

func (c *apiClient) switchBrand(id int64) (*brandView, error) {
	var out brandView
	if err := c.do(http.MethodPost, "/brands/"+formatID(id)+"/switch", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) refreshBrand(id int64, hard bool) ([]ideaView, error) {
	var out struct {
		Ideas []ideaView `json:"ideas"`
	}
	err := c.do(http.MethodPost, "/brands/"+formatID(id)+"/refresh", map[string]bool{"hard": hard}, &out)
	return out.Ideas, err
}

func (c *apiClient) mergeBrand(id int64, jobID string) (*brandView, error) {
	var out brandView
	err := c.do(http.MethodPost, "/brands/"+formatID(id)+"/merge", map[string]string{"job_id": jobID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) fetchIdeas(id int64, force bool) ([]ideaView, error) {
	path := "/brands/" + formatID(id) + "/ideas"
	if force {
		path += "?force=true"
	}
	var out struct {
		Ideas []ideaView `json:"ideas"`
	}
	err := c.do(http.MethodPost, path, nil, &out)
	return out.Ideas, err
}

func (c *apiClient) listLiked(id int64) ([]ideaView, error) {
	var out struct {
		Ideas []ideaView `json:"ideas"`
	}
	err := c.do(http.MethodGet, "/brands/"+formatID(id)+"/liked", nil, &out)
	return out.Ideas, err
}

func (c *apiClient) likeIdea(brandID int64, ideaID string) (*ideaView, error) {
	var out ideaView
	if err := c.do(http.MethodPost, "/brands/"+formatID(brandID)+"/ideas/"+ideaID+"/like", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) rejectIdea(brandID int64, ideaID string) error {
	return c.do(http.MethodPost, "/brands/"+formatID(brandID)+"/ideas/"+ideaID+"/reject", nil, nil)
}

func (c *apiClient) unlikeIdea(ideaID string) error {
	return c.do(http.MethodDelete, "/ideas/"+ideaID, nil, nil)
}

func (c *apiClient) scheduleIdea(ideaID string, at *time.Time) error {
	return c.do(http.MethodPost, "/ideas/"+ideaID+"/schedule", map[string]*time.Time{"scheduled_at": at}, nil)
}

func (c *apiClient) requestMotion(ideaID, instruction string) (string, error) {
	var out struct {
		VideoStatus string `json:"video_status"`
	}
	err := c.do(http.MethodPost, "/ideas/"+ideaID+"/motion", map[string]string{"instruction": instruction}, &out)
	return out.VideoStatus, err
}

func (c *apiClient) listNotifications() ([]notificationView, error) {
	var out struct {
		Notifications []notificationView `json:"notifications"`
	}
	err := c.do(http.MethodGet, "/notifications", nil, &out)
	return out.Notifications, err
}

func (c *apiClient) readNotification(id string) error {
	return c.do(http.MethodPost, "/notifications/"+id+"/read", nil, nil)
}

func (c *apiClient) clearNotifications() error {
	return c.do(http.MethodDelete, "/notifications", nil, nil)
}

func (c *apiClient) status() (map[string]any, error) {
	out := map[string]any{}
	err := c.do(http.MethodGet, "/status", nil, &out)
	return out, err
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
