// Package notifications records user-facing events durably and pushes them
// over ntfy when a topic is configured.
package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"postforge/internal/brand"
	"postforge/internal/config"
	"postforge/internal/logging"
	"postforge/internal/store"
)

const userAgent = "Postforge-Go/0.1.0"

// Service publishes notifications: one durable row per event, plus a
// best-effort push. Pushing never fails a publish.
type Service struct {
	store  *store.Store
	pusher pusher
	logger *slog.Logger
}

// NewService builds the notification service. Without an ntfy topic the push
// transport is a noop and only durable records are written.
func NewService(cfg config.Notifications, st *store.Store, logger *slog.Logger) *Service {
	svc := &Service{
		store:  st,
		pusher: noopPusher{},
		logger: logging.NewComponentLogger(logger, "notifications"),
	}
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic != "" {
		timeout := time.Duration(cfg.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		svc.pusher = &ntfyPusher{endpoint: topic, client: &http.Client{Timeout: timeout}}
	}
	return svc
}

// Payload is the presentation content of one event.
type Payload struct {
	Title     string
	Message   string
	SourceURL string
}

// Publish records the event and pushes it. The durable record is the source
// of truth; a failed push is logged and dropped.
func (s *Service) Publish(ctx context.Context, kind brand.NotificationKind, p Payload) (brand.Notification, error) {
	notification := brand.Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     strings.TrimSpace(p.Title),
		Message:   strings.TrimSpace(p.Message),
		SourceURL: strings.TrimSpace(p.SourceURL),
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertNotification(ctx, notification); err != nil {
		return brand.Notification{}, fmt.Errorf("publish notification: %w", err)
	}

	if err := s.pusher.push(ctx, pushData{
		title:    notification.Title,
		message:  notification.Message,
		tags:     tagsFor(kind),
		priority: priorityFor(kind),
	}); err != nil {
		s.logger.Warn("push failed",
			logging.String(logging.FieldEventType, string(kind)),
			logging.Error(err))
	}
	return notification, nil
}

// List returns all recorded notifications, newest first.
func (s *Service) List(ctx context.Context) ([]brand.Notification, error) {
	return s.store.ListNotifications(ctx)
}

// MarkRead flips one notification's read flag.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.store.MarkNotificationRead(ctx, id)
}

// Clear removes every notification.
func (s *Service) Clear(ctx context.Context) error {
	return s.store.ClearNotifications(ctx)
}

func tagsFor(kind brand.NotificationKind) []string {
	switch kind {
	case brand.NotifyAnalysisComplete:
		return []string{"postforge", "analysis", "completed"}
	case brand.NotifyAnalysisFailed:
		return []string{"postforge", "analysis", "failed"}
	case brand.NotifyVideoReady:
		return []string{"postforge", "video", "ready"}
	default:
		return []string{"postforge"}
	}
}

func priorityFor(kind brand.NotificationKind) string {
	if kind == brand.NotifyAnalysisFailed {
		return "high"
	}
	return ""
}

type pushData struct {
	title    string
	message  string
	tags     []string
	priority string
}

type pusher interface {
	push(ctx context.Context, data pushData) error
}

type ntfyPusher struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyPusher) push(ctx context.Context, data pushData) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopPusher struct{}

func (noopPusher) push(context.Context, pushData) error { return nil }
