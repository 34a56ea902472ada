// Package api exposes the daemon over a local HTTP surface. Handlers are
// thin: they translate requests into session and registry calls and map the
// error taxonomy onto status codes.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"postforge/internal/brand"
	"postforge/internal/cache"
	"postforge/internal/governor"
	"postforge/internal/jobs"
	"postforge/internal/logging"
	"postforge/internal/notifications"
	"postforge/internal/session"
	"postforge/internal/store"
)

// Server wires the HTTP routes to the composed subsystems.
type Server struct {
	session  *session.Session
	registry *jobs.Registry
	notifier *notifications.Service
	cache    *cache.Cache
	gov      *governor.Governor
	store    *store.Store
	token    string
	logger   *slog.Logger
	engine   *gin.Engine
}

// Deps are the subsystems the API fronts.
type Deps struct {
	Session  *session.Session
	Registry *jobs.Registry
	Notifier *notifications.Service
	Cache    *cache.Cache
	Governor *governor.Governor
	Store    *store.Store
	APIToken string
	Logger   *slog.Logger
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	s := &Server{
		session:  deps.Session,
		registry: deps.Registry,
		notifier: deps.Notifier,
		cache:    deps.Cache,
		gov:      deps.Governor,
		store:    deps.Store,
		token:    strings.TrimSpace(deps.APIToken),
		logger:   logging.NewComponentLogger(deps.Logger, "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", s.handleHealth)

	v1 := engine.Group("/api/v1")
	if s.token != "" {
		v1.Use(s.requireToken)
	}

	v1.POST("/analyses", s.handleStartAnalysis)
	v1.GET("/analyses", s.handleAnalysisStatus)

	v1.GET("/jobs", s.handleListJobs)
	v1.POST("/jobs/:id/consume", s.handleConsumeJob)
	v1.DELETE("/jobs/:id", s.handleDismissJob)

	v1.GET("/brands", s.handleListBrands)
	v1.GET("/brands/:id", s.handleGetBrand)
	v1.POST("/brands/:id/switch", s.handleSwitchBrand)
	v1.POST("/brands/:id/refresh", s.handleRefreshBrand)
	v1.POST("/brands/:id/merge", s.handleMergeBrand)
	// POST on the collection generates (or serves the cached) feed; a param
	// sibling like /ideas/fetch would conflict in gin's route tree.
	v1.POST("/brands/:id/ideas", s.handleFetchIdeas)
	v1.GET("/brands/:id/liked", s.handleListLiked)
	v1.POST("/brands/:id/ideas/:ideaID/like", s.handleLikeIdea)
	v1.POST("/brands/:id/ideas/:ideaID/reject", s.handleRejectIdea)

	v1.DELETE("/ideas/:id", s.handleUnlikeIdea)
	v1.POST("/ideas/:id/schedule", s.handleScheduleIdea)
	v1.POST("/ideas/:id/motion", s.handleRequestMotion)

	v1.GET("/notifications", s.handleListNotifications)
	v1.POST("/notifications/:id/read", s.handleReadNotification)
	v1.DELETE("/notifications", s.handleClearNotifications)

	v1.GET("/status", s.handleStatus)

	s.engine = engine
	return s
}

// Handler returns the root http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requireToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header != "Bearer "+s.token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type startAnalysisRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) handleStartAnalysis(c *gin.Context) {
	var req startAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	jobID, err := s.session.StartAnalysis(c.Request.Context(), req.URL, nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (s *Server) handleAnalysisStatus(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter is required"})
		return
	}
	job, err := s.registry.Status(c.Request.Context(), url)
	if err != nil {
		s.fail(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis tracked for url"})
		return
	}
	c.JSON(http.StatusOK, jobView(job))
}

func (s *Server) handleListJobs(c *gin.Context) {
	list, err := s.registry.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]gin.H, 0, len(list))
	for _, job := range list {
		views = append(views, jobView(job))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": views})
}

func (s *Server) handleConsumeJob(c *gin.Context) {
	profile, err := s.session.PromoteJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, profileView(profile))
}

func (s *Server) handleDismissJob(c *gin.Context) {
	if err := s.registry.Dismiss(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListBrands(c *gin.Context) {
	list, err := s.store.ListBrands(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]gin.H, 0, len(list))
	for _, profile := range list {
		views = append(views, profileView(profile))
	}
	c.JSON(http.StatusOK, gin.H{"brands": views})
}

func (s *Server) handleGetBrand(c *gin.Context) {
	id, ok := s.brandID(c)
	if !ok {
		return
	}
	profile, err := s.store.GetBrand(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileView(profile))
}

func (s *Server) handleSwitchBrand(c *gin.Context) {
	id, ok := s.brandID(c)
	if !ok {
		return
	}
	profile, err := s.session.SwitchBrand(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileView(profile))
}

type refreshRequest struct {
	Hard bool `json:"hard"`
}

func (s *Server) handleRefreshBrand(c *gin.Context) {
	id, ok := s.brandID(c)
	if !ok {
		return
	}
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	ideas, err := s.session.RefreshBrand(c.Request.Context(), id, req.Hard)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ideas": ideaViews(ideas)})
}

type mergeRequest struct {
	JobID string `json:"job_id" binding:"required"`
}

func (s *Server) handleMergeBrand(c *gin.Context) {
	id, ok := s.brandID(c)
	if !ok {
		return
	}
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id is required"})
		return
	}
	profile, err := s.session.MergeJob(c.Request.Context(), id, req.JobID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileView(profile))
}

func (s *Server) handleFetchIdeas(c *gin.Context) {
	id, ok := s.brandID(c)
	if !ok {
		return
	}
	force := c.Query("force") == "true"
	ideas, err := s.session.FetchIdeas(c.Request.Context(), id, force)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ideas": ideaViews(ideas)})
}

func (s *Server) handleListLiked(c *gin.Context) {
	id, ok := s.brandID(c)
	if !ok {
		return
	}
	ideas, err := s.session.ListLiked(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ideas": ideaViews(ideas)})
}

func (s *Server) handleLikeIdea(c *gin.Context) {
	id, ok := s.brandID(c)
	if !ok {
		return
	}
	idea, err := s.session.LikeIdea(c.Request.Context(), id, c.Param("ideaID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ideaView(*idea))
}

func (s *Server) handleRejectIdea(c *gin.Context) {
	id, ok := s.brandID(c)
	if !ok {
		return
	}
	if err := s.session.RejectIdea(c.Request.Context(), id, c.Param("ideaID")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnlikeIdea(c *gin.Context) {
	if err := s.session.UnlikeIdea(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type scheduleRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (s *Server) handleScheduleIdea(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule payload"})
		return
	}
	if err := s.session.ScheduleIdea(c.Request.Context(), c.Param("id"), req.ScheduledAt); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type motionRequest struct {
	Instruction string `json:"instruction" binding:"required"`
}

func (s *Server) handleRequestMotion(c *gin.Context) {
	var req motionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instruction is required"})
		return
	}
	status, err := s.session.RequestMotion(c.Request.Context(), c.Param("id"), req.Instruction)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"video_status": string(status)})
}

func (s *Server) handleListNotifications(c *gin.Context) {
	list, err := s.notifier.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]gin.H, 0, len(list))
	for _, n := range list {
		views = append(views, gin.H{
			"id":         n.ID,
			"kind":       string(n.Kind),
			"title":      n.Title,
			"message":    n.Message,
			"source_url": n.SourceURL,
			"created_at": n.CreatedAt,
			"read":       n.Read,
		})
	}
	c.JSON(http.StatusOK, gin.H{"notifications": views})
}

func (s *Server) handleReadNotification(c *gin.Context) {
	if err := s.notifier.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearNotifications(c *gin.Context) {
	if err := s.notifier.Clear(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	state, current, err := s.session.Current(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	jobList, err := s.registry.List(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	active := 0
	for _, job := range jobList {
		if !job.Status.Terminal() {
			active++
		}
	}

	payload := gin.H{
		"governor": s.gov.Stats(),
		"jobs":     gin.H{"total": len(jobList), "active": active},
	}
	if current != nil {
		payload["current_brand"] = profileView(current)
		if decision, err := s.cache.ShouldUseCache(ctx, state.CurrentBrandID); err == nil {
			payload["cache"] = gin.H{
				"fresh":          decision.UseCache,
				"age_seconds":    int(decision.Age.Seconds()),
				"item_count":     decision.ItemCount,
				"resolved_count": decision.ResolvedCount,
			}
		}
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) brandID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid brand id"})
		return 0, false
	}
	return id, true
}

// fail maps internal errors onto status codes. Unclassified errors are 500s
// with the message passed through; this surface is local-only.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrIdeaNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrNotFinished):
		status = http.StatusConflict
	case errors.Is(err, governor.ErrDrained), errors.Is(err, governor.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			logging.String("path", c.FullPath()),
			logging.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func jobView(job *brand.Job) gin.H {
	view := gin.H{
		"id":         job.ID,
		"url":        job.URL,
		"name":       job.Name,
		"status":     string(job.Status),
		"progress":   job.Progress,
		"started_at": job.StartedAt,
		"consumed":   job.Consumed,
	}
	if job.Error != "" {
		view["error"] = job.Error
	}
	if job.CompletedAt != nil {
		view["completed_at"] = job.CompletedAt
	}
	return view
}

func profileView(p *brand.Profile) gin.H {
	return gin.H{
		"id":         p.ID,
		"source_url": p.SourceURL,
		"name":       p.Name,
		"industry":   p.Industry,
		"essence":    p.Essence,
		"strategy":   p.Strategy,
		"vibe":       p.Vibe,
		"colors":     p.Colors,
		"services":   p.Services,
		"handles":    p.Handles,
		"logo_url":   p.LogoURL,
		"confidence": p.Confidence,
	}
}

func ideaView(idea brand.Idea) gin.H {
	view := gin.H{
		"id":            idea.ID,
		"brand_id":      idea.BrandID,
		"platform":      string(idea.Platform),
		"caption":       idea.Caption,
		"hashtags":      idea.Hashtags,
		"visual_prompt": idea.VisualPrompt,
		"visual_url":    idea.VisualURL,
		"visual_source": string(idea.VisualSource),
		"video_status":  string(idea.VideoStatus),
		"status":        string(idea.Status),
		"created_at":    idea.CreatedAt,
	}
	if idea.VideoURL != "" {
		view["video_url"] = idea.VideoURL
	}
	if idea.ScheduledAt != nil {
		view["scheduled_at"] = idea.ScheduledAt
	}
	return view
}

func ideaViews(ideas []brand.Idea) []gin.H {
	views := make([]gin.H, 0, len(ideas))
	for _, idea := range ideas {
		views = append(views, ideaView(idea))
	}
	return views
}
