package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskoracle/internal/auth"
	"github.com/mbd888/riskoracle/internal/logging"
	"github.com/mbd888/riskoracle/internal/metrics"
	"github.com/mbd888/riskoracle/internal/oracle"
	"github.com/mbd888/riskoracle/internal/pagination"
	"github.com/mbd888/riskoracle/internal/validation"
)

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/", s.infoHandler)

	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	signed := auth.RequireSignature(s.verifier)

	v1 := s.router.Group("/v1")
	{
		v1.GET("/risk", s.listRisksHandler)
		v1.GET("/risk/:validator", s.getRiskHandler)
		v1.PUT("/risk/:validator", validation.ValidatorParamMiddleware(), signed, s.updateRiskHandler)

		v1.GET("/oracle", s.statusHandler)
		v1.POST("/oracle/initialize", signed, s.initializeHandler)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Route not found",
		})
	})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "riskoracle",
		"description": "Validator risk score registry",
		"version":     s.version,
	})
}

// -----------------------------------------------------------------------------
// Risk
// -----------------------------------------------------------------------------

// UpdateRiskRequest is the body of PUT /v1/risk/:validator.
type UpdateRiskRequest struct {
	Score *int `json:"score"`
}

// getRiskHandler answers for any id; ids that were never scored read as 0.
func (s *Server) getRiskHandler(c *gin.Context) {
	id := c.Param("validator")
	c.JSON(http.StatusOK, gin.H{
		"validator": id,
		"score":     s.registry.GetRisk(id),
	})
}

// listRisksHandler returns every score, or one page of them when limit or
// cursor is given. count is always the total number of scored validators.
func (s *Server) listRisksHandler(c *gin.Context) {
	v := s.registry.View()
	resp := gin.H{
		"entries":    v.Entries,
		"count":      len(v.Entries),
		"lastUpdate": timeOrNil(v.LastUpdate),
	}

	limitParam, cursor := c.Query("limit"), c.Query("cursor")
	if limitParam != "" || cursor != "" {
		limit, err := pagination.ParseLimit(limitParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}
		page, next, err := pagination.Page(v.Entries, cursor, limit, func(e oracle.Entry) string { return e.ValidatorID })
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}
		resp["entries"] = page
		resp["nextCursor"] = next
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) updateRiskHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("validator")

	var req UpdateRiskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.RiskUpdatesTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be JSON like {\"score\": 42}",
		})
		return
	}
	if errs := validation.Validate(validation.ValidScore("score", req.Score)); len(errs) > 0 {
		metrics.RiskUpdatesTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	score := uint8(*req.Score)

	caller, _ := auth.Caller(c)
	accepted, err := s.registry.Record(ctx, caller, id, score)
	if err != nil {
		s.writeUpdateError(c, id, err)
		return
	}

	logging.L(ctx).Info("risk score updated", "validator", id, "score", score)
	c.JSON(http.StatusOK, gin.H{
		"validator":  id,
		"score":      score,
		"lastUpdate": timeOrNil(accepted.At),
	})
}

func (s *Server) writeUpdateError(c *gin.Context, id string, err error) {
	logger := logging.L(c.Request.Context())

	switch {
	case errors.Is(err, oracle.ErrUnauthorized):
		metrics.RiskUpdatesTotal.WithLabelValues(metrics.ResultUnauthorized).Inc()
		logger.Warn("risk update rejected", "validator", id, "reason", err.Error())
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Only the registry admin may update risk scores",
		})
	case errors.Is(err, oracle.ErrInvalidValidator):
		metrics.RiskUpdatesTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	default:
		metrics.RiskUpdatesTotal.WithLabelValues(metrics.ResultError).Inc()
		logger.Error("risk update failed", "validator", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to record risk score",
		})
	}
}

// -----------------------------------------------------------------------------
// Oracle
// -----------------------------------------------------------------------------

func (s *Server) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.statusBody())
}

func (s *Server) statusBody() gin.H {
	v := s.registry.View()
	admin := ""
	if v.Initialized {
		admin = v.Admin.Hex()
	}
	return gin.H{
		"admin":       admin,
		"initialized": v.Initialized,
		"count":       len(v.Entries),
		"lastUpdate":  timeOrNil(v.LastUpdate),
	}
}

func (s *Server) initializeHandler(c *gin.Context) {
	ctx := c.Request.Context()
	caller, _ := auth.Caller(c)

	err := s.registry.Initialize(ctx, caller)
	switch {
	case err == nil:
	case errors.Is(err, oracle.ErrAlreadyInitialized):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_initialized",
			"message": "Registry already has an admin",
		})
		return
	case errors.Is(err, oracle.ErrInvalidCaller):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	default:
		logging.L(ctx).Error("initialize failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to initialize registry",
		})
		return
	}

	logging.L(ctx).Info("registry initialized", "admin", caller.Hex())
	s.realtimeHub.BroadcastInitialized(caller.Hex())
	c.JSON(http.StatusOK, s.statusBody())
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	report := s.health.Check(c.Request.Context())

	checks := make(map[string]string, len(report.Checks))
	for _, st := range report.Checks {
		state := "healthy"
		if !st.Healthy {
			state = "unhealthy"
		}
		if st.Detail != "" {
			state += ": " + st.Detail
		}
		checks[st.Name] = state
	}

	httpStatus := http.StatusOK
	if !report.OK() {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    string(report.State),
		Version:   s.version,
		Checks:    checks,
		Timestamp: report.CheckedAt.Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
