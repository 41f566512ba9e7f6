package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"todolist/internal/adapter/database"
	"todolist/internal/core/model/response"
	"todolist/pkg/logger"
)

type HealthHandler struct {
	db     *database.DB
	logger *logger.Logger
	now    func() time.Time
}

// NewHealthHandler accepts a nil db; Ready then reports on the process only.
func NewHealthHandler(db *database.DB, log *logger.Logger) *HealthHandler {
	if log == nil {
		log = logger.NewNop()
	}

	return &HealthHandler{
		db:     db,
		logger: log,
		now:    time.Now,
	}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, response.HealthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	})
}

// Ready also checks that the database answers.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.ErrorWithTrace(ctx, "Database ping failed", err)

			c.JSON(http.StatusServiceUnavailable, response.HealthResponse{
				Status:    "unavailable",
				Timestamp: h.now().UTC().Format(time.RFC3339Nano),
			})

			return
		}
	}

	h.Health(c)
}
