// Package diag is a read-only local HTTP status server over a live
// Cluster: device info, power state, and a Close endpoint. It is wired
// in SPEC_FULL.md as this repo's home for the teacher's gin-gonic
// control-plane dependency (cmd/driver/hasher-host/main.go's
// Orchestrator), repurposed from inference-serving endpoints to
// device/cluster introspection endpoints.
package diag

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"umd/cluster"
	"umd/topology"
)

// Server exposes /health, /device-info, and /shutdown over a *cluster.Cluster,
// the same route shape as the teacher's Orchestrator (health/metrics/device/
// shutdown), trimmed to what a device driver's status server needs rather
// than an inference server's.
type Server struct {
	engine    *gin.Engine
	startTime time.Time

	mu      sync.RWMutex
	cl      *cluster.Cluster
	closing bool
}

// NewServer builds a diag.Server fronting cl. gin.ReleaseMode is set the
// way the teacher's main.go does before building its router, so a debug
// build doesn't dump gin's request log over a device driver's stdout.
func NewServer(cl *cluster.Cluster) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: gin.New(), startTime: time.Now(), cl: cl}
	s.engine.Use(gin.Recovery())

	api := s.engine.Group("/api/v1")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/device-info", s.handleDeviceInfo)
		api.POST("/shutdown", s.handleShutdown)
	}
	return s
}

// Handler returns the underlying http.Handler for use with http.Server,
// httptest, or similar.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks serving the diag API on addr.
func (s *Server) ListenAndServe(addr string) error {
	return s.engine.Run(addr)
}

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Chips   int    `json:"chip_count"`
	Closing bool   `json:"closing"`
}

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := "healthy"
	if s.closing {
		status = "closing"
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:  status,
		Uptime:  time.Since(s.startTime).String(),
		Chips:   len(s.cl.Chips()),
		Closing: s.closing,
	})
}

type chipInfoResponse struct {
	ID        int    `json:"id"`
	MMIO      bool   `json:"mmio"`
	Arch      string `json:"arch"`
	Power     string `json:"power"`
}

func (s *Server) handleDeviceInfo(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	desc := s.cl.Descriptor()
	out := make([]chipInfoResponse, 0, len(s.cl.Chips()))
	for _, ch := range s.cl.Chips() {
		power, _ := s.cl.PowerState(ch.ID())
		out = append(out, chipInfoResponse{
			ID:    ch.ID(),
			MMIO:  desc.IsMMIO(topology.ChipId(ch.ID())),
			Arch:  ch.Soc().Arch.String(),
			Power: power.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"chips": out})
}

// handleShutdown closes the cluster and marks the server closing; it
// does not stop the HTTP listener itself (the caller's main loop owns
// that), matching the teacher's handleShutdown which signals its own
// orchestrator rather than killing the HTTP server mid-response.
func (s *Server) handleShutdown(c *gin.Context) {
	s.mu.Lock()
	s.closing = true
	err := s.cl.CloseDevice()
	s.mu.Unlock()

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closing"})
}
