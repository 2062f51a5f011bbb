package fulfiller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Server exposes the ingest and inspection API. Inbound device traffic
// (SMS text, USSD screen text, health samples) arrives here; everything
// else is read-only reporting.
type Server struct {
	fulfiller *Fulfiller
}

func NewServer(f *Fulfiller) *Server {
	return &Server{fulfiller: f}
}

func (s *Server) RunWithContext(ctx context.Context, addr string) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// Setup routes
	router.POST("/ingest/sms", s.postIngestSMS)
	router.POST("/ingest/ussd", s.postIngestUSSD)
	router.POST("/ingest/health", s.postIngestHealth)
	router.POST("/maintenance", s.postMaintenance)
	router.GET("/orders/pending", s.getPendingOrders)
	router.GET("/stats/fulfillment", s.getFulfillmentStats)
	router.GET("/fulfillments/recent", s.getRecentFulfillments)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful server shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.fulfiller.logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	// Start server
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

type inboundSMSRequest struct {
	Sender string `json:"sender" binding:"required"`
	Body   string `json:"body" binding:"required"`
}

func (s *Server) postIngestSMS(c *gin.Context) {
	var req inboundSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender and body are required"})
		return
	}

	if s.fulfiller.IngestSMS(req.Sender, req.Body) {
		c.JSON(http.StatusAccepted, gin.H{"status": "published"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ignored"})
}

type dialTextRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) postIngestUSSD(c *gin.Context) {
	var req dialTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	status := s.fulfiller.IngestDialText(req.Text)
	if status == DialUnknown {
		c.JSON(http.StatusOK, gin.H{"status": "inconclusive"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": status.String()})
}

func (s *Server) postIngestHealth(c *gin.Context) {
	var report HealthReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "battery_pct and temp_c are required"})
		return
	}

	s.fulfiller.IngestHealth(report)
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

type maintenanceRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

func (s *Server) postMaintenance(c *gin.Context) {
	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paused is required"})
		return
	}

	if *req.Paused {
		s.fulfiller.queue.Pause()
	} else {
		s.fulfiller.queue.Resume()
	}
	c.JSON(http.StatusOK, gin.H{"paused": s.fulfiller.queue.Paused()})
}

func (s *Server) getPendingOrders(c *gin.Context) {
	orders, err := s.fulfiller.store.PendingOrders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get pending orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":          orders,
		"active_watchers": s.fulfiller.registry.Active(),
		"queue_depth":     s.fulfiller.queue.Depth(),
	})
}

func (s *Server) getFulfillmentStats(c *gin.Context) {
	stats, err := s.fulfiller.store.GetFulfillmentStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"fulfillment": stats})
}

func (s *Server) getRecentFulfillments(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := s.fulfiller.store.RecentFulfillments(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get fulfillments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"fulfillments": records})
}
