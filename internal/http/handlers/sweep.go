package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mnemos-app/mnemos-backend/internal/linker"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
	"github.com/mnemos-app/mnemos-backend/internal/platform/redislock"
)

const sweepLockKey = "mnemos:sweep:lock"

// SweepHandler triggers the orphan sweep from the cron scheduler. When a
// redis locker is configured, overlapping triggers return 409 instead of
// running twice.
type SweepHandler struct {
	sweep   *linker.Sweep
	locker  *redislock.Locker
	log     *logger.Logger
	lockTTL time.Duration
}

func NewSweepHandler(sweep *linker.Sweep, locker *redislock.Locker, log *logger.Logger) *SweepHandler {
	return &SweepHandler{
		sweep:   sweep,
		locker:  locker,
		log:     log.With("service", "SweepHandler"),
		lockTTL: 30 * time.Minute,
	}
}

func (h *SweepHandler) Run(c *gin.Context) {
	ctx := c.Request.Context()

	if h.locker != nil {
		lease, err := h.locker.TryAcquire(ctx, sweepLockKey, h.lockTTL)
		if err != nil {
			h.log.Warn("Sweep lock unavailable, running unguarded", "error", err.Error())
		} else if lease == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "sweep already running"})
			return
		} else {
			defer func() {
				if relErr := lease.Release(ctx); relErr != nil {
					h.log.Warn("Sweep lock release failed", "error", relErr.Error())
				}
			}()
		}
	}

	summary := h.sweep.Run(ctx)
	c.JSON(http.StatusOK, summary)
}
