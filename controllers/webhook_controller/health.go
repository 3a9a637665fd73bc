package webhook_controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wanderstay/platform/logger"
)

// ActionCounter aggregates audit actions over a window.
type ActionCounter interface {
	ActionCounts(ctx context.Context, since time.Time) (map[string]int64, error)
	LastEntryAt(ctx context.Context) (*time.Time, error)
}

// HealthController reports recent webhook processing activity so operators can
// spot a gateway going quiet or failure actions spiking.
type HealthController struct {
	Counts ActionCounter
}

func NewHealthController(counts ActionCounter) *HealthController {
	return &HealthController{Counts: counts}
}

// WebhookHealth handles GET /admin/webhooks/health. The window defaults to the
// last 24 hours; override with ?hours=N.
func (hc *HealthController) WebhookHealth(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
			return
		}
		hours = parsed
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	counts, err := hc.Counts.ActionCounts(c.Request.Context(), since)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to aggregate webhook health: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate webhook activity"})
		return
	}

	lastSeen, err := hc.Counts.LastEntryAt(c.Request.Context())
	if err != nil {
		logger.WarnLogger.Warnf("Failed to read last webhook activity: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"window_hours":  hours,
		"actions":       counts,
		"last_event_at": lastSeen,
	})
}
