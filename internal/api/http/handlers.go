// Package http contains the gin handlers for the submission, result-lookup
// and health boundaries.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/queueworks/taskgate/internal/cache"
	"github.com/queueworks/taskgate/internal/infrastructure/logging"
	"github.com/queueworks/taskgate/internal/infrastructure/resilience"
	"github.com/queueworks/taskgate/internal/pool"
	"github.com/queueworks/taskgate/internal/result"
)

const cacheTTL = 5 * time.Second

// Handlers bundles the request handlers and their dependencies
type Handlers struct {
	pool       *pool.Pool
	results    result.Store
	cache      *cache.TTLCache
	logger     *logging.Logger
	admission  pool.AdmissionMode
	retryAfter time.Duration
	startTime  time.Time
}

// NewHandlers creates the handler set
func NewHandlers(p *pool.Pool, results result.Store, logger *logging.Logger, admission pool.AdmissionMode, retryAfter time.Duration) *Handlers {
	return &Handlers{
		pool:       p,
		results:    results,
		cache:      cache.New(),
		logger:     logger,
		admission:  admission,
		retryAfter: retryAfter,
		startTime:  time.Now(),
	}
}

type processRequest struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// SubmitTask accepts a payload into the queue. 202 on admission; 429 with a
// Retry-After hint when the queue is full; 503 with a Retry-After hint while
// the circuit is open. Completion is never reported here; poll GetResult.
func (h *Handlers) SubmitTask(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	taskID, err := h.pool.Submit(c.Request.Context(), req.Payload, h.admission)
	switch {
	case errors.Is(err, pool.ErrQueueFull):
		h.reject(c, http.StatusTooManyRequests, "queue_full", "backlog full, backpressure applied")
		return
	case errors.Is(err, resilience.ErrCircuitOpen):
		h.reject(c, http.StatusServiceUnavailable, "circuit_open", "downstream unavailable")
		return
	case errors.Is(err, pool.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	case err != nil:
		h.logger.Error("submission failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":             taskID.String(),
		"status":         "accepted",
		"queue_depth":    h.pool.QueueDepth(),
		"queue_capacity": h.pool.QueueCapacity(),
	})
}

// GetResult returns the current status of a task, and its result once done
func (h *Handlers) GetResult(c *gin.Context) {
	taskID := c.Param("id")

	r, err := h.results.Get(c.Request.Context(), taskID)
	if errors.Is(err, result.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.logger.Error("result lookup failed", zap.String("task_id", taskID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, r)
}

// Health reports liveness plus queue and breaker visibility
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"queue_depth":    h.pool.QueueDepth(),
		"queue_capacity": h.pool.QueueCapacity(),
		"active_workers": h.pool.ActiveWorkers(),
		"circuit_state":  h.pool.BreakerState().String(),
	})
}

// Ready reports whether the worker pool is accepting work
func (h *Handlers) Ready(c *gin.Context) {
	if !h.pool.Started() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// Cached serves a cheap computed value through the TTL cache. Concurrent
// misses on one key run the loader once; the rest wait for its value.
func (h *Handlers) Cached(c *gin.Context) {
	key := c.DefaultQuery("key", "time")

	loaded := false
	value, err := h.cache.GetOrSet(c.Request.Context(), key, cacheTTL, func(context.Context) (interface{}, error) {
		loaded = true
		return gin.H{
			"ts":   time.Now().UTC().Format(time.RFC3339Nano),
			"rand": rand.Float64(),
		}, nil
	})
	if err != nil {
		h.logger.Error("cache load failed", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key, "value": value, "cached": !loaded})
}

func (h *Handlers) reject(c *gin.Context, status int, reason, detail string) {
	retryAfter := int(h.retryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
	c.JSON(status, gin.H{
		"error":       detail,
		"reason":      reason,
		"retry_after": retryAfter,
	})
}
