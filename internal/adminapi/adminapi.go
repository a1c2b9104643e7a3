// Package adminapi exposes a small gin HTTP API for inspecting and
// operating the stream registry: listing live streams, issuing publish
// tokens, and serving Prometheus metrics.
package adminapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chunkcast/internal/auth"
	"chunkcast/internal/metrics"
	"chunkcast/internal/registry"
	"chunkcast/internal/session"
)

// Server wraps the HTTP server with its dependencies.
type Server struct {
	router      *gin.Engine
	reg         *registry.Registry
	tokens      *auth.Manager    // nil if publish tokens are not required
	sessions    *session.Tracker // nil disables the sessions endpoint
	m           *metrics.Metrics // nil disables request instrumentation
	rtmpAddr    string           // advertised in generated publish URLs, e.g. "rtmp://localhost:1935"
	metricsPath string
}

// Config configures New.
type Config struct {
	Registry       *registry.Registry
	Tokens         *auth.Manager    // nil disables the publish-token endpoint
	Sessions       *session.Tracker // nil disables the sessions endpoint
	Metrics        *metrics.Metrics // nil disables request instrumentation
	RTMPAddr       string
	MetricsEnabled bool
}

// New builds the admin API's router. Call Run to start serving.
func New(cfg Config) *Server {
	s := &Server{
		reg:      cfg.Registry,
		tokens:   cfg.Tokens,
		sessions: cfg.Sessions,
		m:        cfg.Metrics,
		rtmpAddr: cfg.RTMPAddr,
	}
	s.setupRoutes(cfg.MetricsEnabled)
	return s
}

func (s *Server) setupRoutes(metricsEnabled bool) {
	router := gin.Default()
	router.Use(s.instrumentRequests)

	api := router.Group("/api/v1")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/streams", s.handleListStreams)
		api.GET("/streams/:app/:name", s.handleGetStream)
		api.GET("/sessions", s.handleListSessions)
		if s.tokens != nil {
			api.POST("/publish-tokens", s.handleIssueToken)
		}
	}

	if metricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	s.router = router
}

// instrumentRequests records every request's method, route, status, and
// latency, the way C13's promauto collectors are registered to be used.
func (s *Server) instrumentRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	if s.m == nil {
		return
	}
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	s.m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Seconds())
}

// Run starts the HTTP server, blocking until it stops or errors.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong", "time": time.Now().Unix()})
}

// streamInfo is the JSON shape returned for one stream.
type streamInfo struct {
	App             string `json:"app"`
	Name            string `json:"name"`
	State           string `json:"state"`
	HasPublisher    bool   `json:"hasPublisher"`
	SubscriberCount int    `json:"subscriberCount"`
	CreatedAt       string `json:"createdAt"`
	GopReady        bool   `json:"gopReady"`
}

func toStreamInfo(s registry.Stats) streamInfo {
	return streamInfo{
		App:             s.Key.App,
		Name:            s.Key.Name,
		State:           s.State,
		HasPublisher:    s.HasPublisher,
		SubscriberCount: s.SubscriberCount,
		CreatedAt:       s.CreatedAt.Format(time.RFC3339),
		GopReady:        s.GopReady,
	}
}

func (s *Server) handleListStreams(c *gin.Context) {
	stats := s.reg.AllStats()
	infos := make([]streamInfo, len(stats))
	for i, st := range stats {
		infos[i] = toStreamInfo(st)
	}
	c.JSON(http.StatusOK, gin.H{"streams": infos, "total": len(infos)})
}

func (s *Server) handleGetStream(c *gin.Context) {
	key := registry.Key{App: c.Param("app"), Name: c.Param("name")}
	stats, ok := s.reg.StatsFor(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}
	c.JSON(http.StatusOK, toStreamInfo(stats))
}

// sessionInfo is the JSON shape returned for one tracked connection.
type sessionInfo struct {
	ID          uint64 `json:"id"`
	ConnID      string `json:"connId"`
	PeerAddr    string `json:"peerAddr"`
	ConnectedAt string `json:"connectedAt"`
}

func (s *Server) handleListSessions(c *gin.Context) {
	var infos []session.Info
	if s.sessions != nil {
		infos = s.sessions.Snapshot()
	}
	out := make([]sessionInfo, len(infos))
	for i, info := range infos {
		out[i] = sessionInfo{
			ID:          info.ID,
			ConnID:      info.ConnID.String(),
			PeerAddr:    info.PeerAddr,
			ConnectedAt: info.ConnectedAt.Format(time.RFC3339),
		}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "total": len(out)})
}

type publishTokenRequest struct {
	App       string `json:"app" binding:"required"`
	Name      string `json:"name" binding:"required"`
	ExpiresIn int    `json:"expiresIn"` // seconds; 0 uses the manager default
}

type publishTokenResponse struct {
	PublishURL string `json:"publishUrl"`
	App        string `json:"app"`
	Name       string `json:"name"`
	Token      string `json:"token"`
	ExpiresAt  string `json:"expiresAt"`
}

func (s *Server) handleIssueToken(c *gin.Context) {
	var req publishTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := registry.Key{App: req.App, Name: req.Name}
	token, err := s.tokens.Issue(key, time.Duration(req.ExpiresIn)*time.Second, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, publishTokenResponse{
		PublishURL: fmt.Sprintf("%s/%s/%s?token=%s", s.rtmpAddr, key.App, key.Name, token.Token),
		App:        key.App,
		Name:       key.Name,
		Token:      token.Token,
		ExpiresAt:  token.ExpiresAt.Format(time.RFC3339),
	})
}
