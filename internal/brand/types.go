package brand

import (
	"strings"
	"time"
)

// Platform identifies the social network a content idea targets.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformX         Platform = "x"
	PlatformFacebook  Platform = "facebook"
)

var allPlatforms = []Platform{
	PlatformInstagram,
	PlatformTikTok,
	PlatformLinkedIn,
	PlatformX,
	PlatformFacebook,
}

var platformSet = func() map[Platform]struct{} {
	set := make(map[Platform]struct{}, len(allPlatforms))
	for _, platform := range allPlatforms {
		set[platform] = struct{}{}
	}
	return set
}()

// AllPlatforms returns the ordered list of supported platforms.
func AllPlatforms() []Platform {
	cp := make([]Platform, len(allPlatforms))
	copy(cp, allPlatforms)
	return cp
}

// ParsePlatform converts a string into a known Platform.
func ParsePlatform(value string) (Platform, bool) {
	normalized := Platform(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := platformSet[normalized]
	return normalized, ok
}

// IdeaStatus represents the lifecycle of a content idea.
type IdeaStatus string

const (
	IdeaPending   IdeaStatus = "pending"
	IdeaLiked     IdeaStatus = "liked"
	IdeaDiscarded IdeaStatus = "discarded"
)

// VideoStatus tracks the motion rendering state of an idea.
type VideoStatus string

const (
	VideoNone       VideoStatus = "none"
	VideoGenerating VideoStatus = "generating"
	VideoReady      VideoStatus = "ready"
	VideoFailed     VideoStatus = "failed"
)

// VisualSource records which resolution tier produced an idea's visual.
type VisualSource string

const (
	SourceOwned       VisualSource = "owned"
	SourceGenerated   VisualSource = "generated"
	SourceDegraded    VisualSource = "degraded"
	SourcePlaceholder VisualSource = "placeholder"
)

// Profile is the structured style and identity descriptor for a business.
// Confidence reflects how much real data the research step found (0-100).
type Profile struct {
	ID         int64
	SourceURL  string
	Name       string
	Industry   string
	Essence    string
	Strategy   string
	Vibe       string
	Colors     []string
	Services   []string
	Handles    []string
	LogoURL    string
	Confidence int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Merge extends services and handles from an additional research source
// without discarding prior data. Scalar fields are only filled when empty.
func (p *Profile) Merge(other Profile) {
	if p.Name == "" {
		p.Name = other.Name
	}
	if p.Industry == "" {
		p.Industry = other.Industry
	}
	if p.Essence == "" {
		p.Essence = other.Essence
	}
	if p.Strategy == "" {
		p.Strategy = other.Strategy
	}
	if p.Vibe == "" {
		p.Vibe = other.Vibe
	}
	if p.LogoURL == "" {
		p.LogoURL = other.LogoURL
	}
	if len(p.Colors) == 0 {
		p.Colors = append(p.Colors, other.Colors...)
	}
	p.Services = appendMissing(p.Services, other.Services)
	p.Handles = appendMissing(p.Handles, other.Handles)
	if other.Confidence > p.Confidence {
		p.Confidence = other.Confidence
	}
}

func appendMissing(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, value := range dst {
		seen[strings.ToLower(strings.TrimSpace(value))] = struct{}{}
	}
	for _, value := range src {
		key := strings.ToLower(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, strings.TrimSpace(value))
	}
	return dst
}

// Idea is one generated post candidate.
type Idea struct {
	ID           string
	BrandID      int64
	Platform     Platform
	Caption      string
	Hashtags     []string
	VisualPrompt string
	VisualURL    string
	VisualSource VisualSource
	VideoURL     string
	VideoStatus  VideoStatus
	ScheduledAt  *time.Time
	Status       IdeaStatus
	CreatedAt    time.Time
}

// Protected reports whether cache maintenance must never remove the idea.
// Liked and scheduled ideas are only removed by explicit user action.
func (i Idea) Protected() bool {
	return i.Status == IdeaLiked || i.ScheduledAt != nil
}

// HasVisual reports whether a visual reference has been resolved.
func (i Idea) HasVisual() bool {
	return strings.TrimSpace(i.VisualURL) != ""
}

// Asset is a catalogued brand-owned image keyed by label.
type Asset struct {
	BrandID int64
	URL     string
	Label   string
}

// JobStatus represents the lifecycle of a background analysis job.
type JobStatus string

const (
	JobQueued      JobStatus = "queued"
	JobResearching JobStatus = "researching"
	JobComplete    JobStatus = "complete"
	JobFailed      JobStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed
}

// Job tracks one detached analysis run keyed by normalized source URL.
type Job struct {
	ID          string
	URL         string
	Name        string
	Status      JobStatus
	Progress    float64
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Profile     *Profile
	Ideas       []Idea
	Consumed    bool
}

// NotificationKind classifies a user-facing notification.
type NotificationKind string

const (
	NotifyAnalysisComplete NotificationKind = "analysis_complete"
	NotifyAnalysisFailed   NotificationKind = "analysis_failed"
	NotifyVideoReady       NotificationKind = "video_ready"
)

// Notification is a user-facing event record. Only the read flag mutates.
type Notification struct {
	ID        string
	Kind      NotificationKind
	Title     string
	Message   string
	SourceURL string
	CreatedAt time.Time
	Read      bool
}

// VideoJob tracks one asynchronous rendering operation. Status is derived by
// polling the operation handle, so nothing else is stored.
type VideoJob struct {
	IdeaID    string
	Operation string
	CreatedAt time.Time
}
