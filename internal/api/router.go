package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/metrics"
)

const identityKey = "admin"

// AdminAuth admits requests carrying a bearer token listed in tokens and
// records the identity it maps to.
func AdminAuth(tokens map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		for known, identity := range tokens {
			if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
				c.Set(identityKey, identity)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
	}
}

func adminIdentity(c *gin.Context) string {
	if v := c.GetString(identityKey); v != "" {
		return v
	}
	return "admin"
}

// NewRouter wires every route. m may be nil, which drops /metrics.
func NewRouter(h *Handler, tokens map[string]string, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	public := r.Group("/api/public")
	{
		public.GET("/events", h.PublicEvents)
	}

	admin := r.Group("/api/admin", AdminAuth(tokens))
	{
		admin.GET("/test", h.Ping)
		admin.POST("/scrape-events", h.TriggerScrape)
		admin.GET("/scraped-events", h.ListStaging)
		admin.GET("/scraped-events/:id", h.GetStaging)
		admin.PUT("/scraped-events/:id", h.SetStatus)
		admin.POST("/approve-all-pending", h.ApproveAll)
		admin.GET("/unpublished", h.Unpublished)
		admin.GET("/scrape-history", h.History)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

// Server is the HTTP front of the pipeline.
type Server struct {
	server *http.Server
}

func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{server: &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}}
}

func (s *Server) Addr() string                       { return s.server.Addr }
func (s *Server) Serve() error                       { return s.server.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }
