// Package api serves the network over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/user/wonderland/internal/leveling"
	"github.com/user/wonderland/internal/network"
	"github.com/user/wonderland/internal/newsroom"
	"github.com/user/wonderland/internal/state"
	"github.com/user/wonderland/internal/types"
)

type Options struct {
	// Decisions, when set, serves the approval history of each citizen.
	Decisions *state.DecisionLog
	Hub       *Hub
}

// Server is the HTTP front of a network.
type Server struct {
	net       *network.Network
	decisions *state.DecisionLog
	hub       *Hub
	engine    *gin.Engine
}

// NewServer builds the router. Telemetry is pushed to websocket clients
// through the hub, which is subscribed to the network here.
func NewServer(net *network.Network, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	hub := opts.Hub
	if hub == nil {
		hub = NewHub()
	}
	s := &Server{net: net, decisions: opts.Decisions, hub: hub, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger())
	net.OnTelemetryUpdate(hub.Broadcast)
	s.routes()
	return s
}

// ServeHTTP delegates to the gin engine, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.handleHealth)
	r.GET("/ws/telemetry", s.handleTelemetryStream)

	api := r.Group("/api")
	{
		api.GET("/stats", s.handleStats)
		api.GET("/feed", s.handleFeed)
		api.GET("/posts/:postId", s.handlePost)
		api.POST("/posts/:postId/engagement", s.handleEngagement)
		api.POST("/tips", s.handleTip)
		api.GET("/enclaves", s.handleEnclaves)
		api.GET("/citizens", s.handleCitizens)
		api.GET("/citizens/:seedId", s.handleCitizen)
		api.GET("/citizens/:seedId/telemetry", s.handleCitizenTelemetry)
		api.POST("/citizens/:seedId/browse", s.handleBrowse)
		api.GET("/citizens/:seedId/sessions", s.handleSessions)
		api.GET("/telemetry", s.handleTelemetry)
		api.GET("/approvals", s.handleApprovalQueue)
		api.GET("/approvals/:seedId/history", s.handleApprovalHistory)
		api.POST("/approvals/:seedId/:queueId/approve", s.handleApprove)
		api.POST("/approvals/:seedId/:queueId/reject", s.handleReject)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "duration", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "networkId": s.net.ID()})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.net.Stats())
}

func (s *Server) handleFeed(c *gin.Context) {
	opts := network.FeedOptions{SeedID: c.Query("seedId")}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		opts.Limit = n
	}
	if v := c.Query("minLevel"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "minLevel must be a non-negative integer"})
			return
		}
		opts.MinLevel = types.Level(n)
	}
	c.JSON(http.StatusOK, gin.H{"posts": nonNil(s.net.Feed(opts))})
}

func (s *Server) handlePost(c *gin.Context) {
	post := s.net.Post(c.Param("postId"))
	if post == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	c.JSON(http.StatusOK, post)
}

type engagementRequest struct {
	ActorSeedID string                   `json:"actorSeedId" binding:"required"`
	Action      network.EngagementAction `json:"action" binding:"required"`
}

func (s *Server) handleEngagement(c *gin.Context) {
	var req engagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actorSeedId and action are required"})
		return
	}
	if !req.Action.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown engagement action"})
		return
	}
	if !s.net.RecordEngagement(c.Request.Context(), c.Param("postId"), req.ActorSeedID, req.Action) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	c.JSON(http.StatusOK, s.net.Post(c.Param("postId")))
}

func (s *Server) handleTip(c *gin.Context) {
	var tip types.Tip
	if err := c.ShouldBindJSON(&tip); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tip"})
		return
	}
	id, err := s.net.SubmitTip(c.Request.Context(), tip)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"eventId": id})
}

type enclaveView struct {
	*types.EnclaveConfig
	Members int `json:"members"`
}

func (s *Server) handleEnclaves(c *gin.Context) {
	reg := s.net.Enclaves()
	list := reg.List()
	out := make([]enclaveView, 0, len(list))
	for _, e := range list {
		out = append(out, enclaveView{EnclaveConfig: e, Members: len(reg.Members(e.Name))})
	}
	c.JSON(http.StatusOK, gin.H{"enclaves": out})
}

func (s *Server) handleCitizens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"citizens": nonNil(s.net.ListCitizens())})
}

type citizenView struct {
	Citizen       *types.CitizenProfile `json:"citizen"`
	Progress      leveling.Progress     `json:"progress"`
	Mood          *types.PADState       `json:"mood,omitempty"`
	MoodLabel     types.MoodLabel       `json:"moodLabel,omitempty"`
	Subscriptions []string              `json:"subscriptions"`
}

func (s *Server) handleCitizen(c *gin.Context) {
	seedID := c.Param("seedId")
	citizen := s.net.Citizen(seedID)
	if citizen == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "citizen not found"})
		return
	}
	view := citizenView{
		Citizen:       citizen,
		Progress:      s.net.Leveling().Progress(citizen),
		Subscriptions: nonNil(s.net.Enclaves().Subscriptions(seedID)),
	}
	if st, ok := s.net.MoodEngine().GetState(seedID); ok {
		view.Mood = &st
		view.MoodLabel = s.net.MoodEngine().GetMoodLabel(seedID)
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleCitizenTelemetry(c *gin.Context) {
	t := s.net.AgentBehaviorTelemetry(c.Param("seedId"))
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "citizen not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleTelemetry(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"telemetry": s.net.ListBehaviorTelemetry()})
}

func (s *Server) handleBrowse(c *gin.Context) {
	rec := s.net.RunBrowsingSession(c.Request.Context(), c.Param("seedId"))
	if rec == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "browsing unavailable: enclave system not initialized or citizen inactive"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	list, err := s.net.BrowsingHistory(c.Request.Context(), c.Param("seedId"), limit)
	if err != nil {
		slog.Error("browsing history failed", "seed_id", c.Param("seedId"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": nonNil(list)})
}

func (s *Server) handleApprovalQueue(c *gin.Context) {
	owner := c.Query("ownerId")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ownerId is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": nonNil(s.net.ApprovalQueue(owner))})
}

func (s *Server) handleApprovalHistory(c *gin.Context) {
	if s.decisions == nil {
		c.JSON(http.StatusOK, gin.H{"decisions": []*state.Decision{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := s.decisions.Tail(c.Request.Context(), c.Param("seedId"), limit)
	if err != nil {
		slog.Error("approval history failed", "seed_id", c.Param("seedId"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": nonNil(list)})
}

func (s *Server) handleApprove(c *gin.Context) {
	post, err := s.net.ApprovePost(c.Request.Context(), c.Param("seedId"), c.Param("queueId"))
	switch {
	case errors.Is(err, newsroom.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case err != nil:
		slog.Error("approve failed", "seed_id", c.Param("seedId"), "queue_id", c.Param("queueId"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	case post == nil:
		c.JSON(http.StatusNotFound, gin.H{"error": "pending entry not found"})
	default:
		c.JSON(http.StatusOK, post)
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(c *gin.Context) {
	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
			return
		}
	}
	entry := s.net.RejectPost(c.Param("seedId"), c.Param("queueId"), req.Reason)
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "pending entry not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleTelemetryStream(c *gin.Context) {
	s.hub.Serve(c.Writer, c.Request, c.Query("seedId"))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
