package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"commission-service/internal/models"
	"commission-service/internal/service"
	"commission-service/internal/store"
	"commission-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	engine        *service.Engine
	relationships *service.Relationships
	treeBuilder   *service.TreeBuilder
	ledger        *service.Ledger
	store         *store.Store
}

// NewHandler creates a new HTTP handler
func NewHandler(
	engine *service.Engine,
	relationships *service.Relationships,
	treeBuilder *service.TreeBuilder,
	ledger *service.Ledger,
	st *store.Store,
) *Handler {
	return &Handler{
		engine:        engine,
		relationships: relationships,
		treeBuilder:   treeBuilder,
		ledger:        ledger,
		store:         st,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/relationships", h.createRelationship)
		v1.GET("/accounts/:id/upline", h.getUpline)
		v1.GET("/accounts/:id/network", h.getNetwork)
		v1.GET("/accounts/:id/commissions", h.getAccountCommissions)
		v1.GET("/accounts/:id/commissions/stats", h.getAccountStats)
		v1.GET("/commissions/summary", h.getGlobalSummary)
		v1.POST("/commissions/mark-paid", h.markPaid)
		v1.GET("/orders/:id/commissions", h.getOrderCommissions)
		v1.POST("/orders/:id/commissions", h.processOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type createRelationshipRequest struct {
	ChildID  int64 `json:"child_id" binding:"required"`
	ParentID int64 `json:"parent_id" binding:"required"`
}

// createRelationship links a child account to its upline, once.
func (h *Handler) createRelationship(c *gin.Context) {
	var req createRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	edge, err := h.relationships.Link(c.Request.Context(), req.ChildID, req.ParentID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCycleDetected), errors.Is(err, store.ErrAlreadyLinked):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to create relationship",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, edge)
}

// getUpline returns the ancestor chain of an account, nearest first.
func (h *Handler) getUpline(c *gin.Context) {
	accountID, ok := pathID(c)
	if !ok {
		return
	}
	depth := queryInt(c, "depth", models.MaxCommissionLevels)

	ancestors, err := h.relationships.Upline(c.Request.Context(), accountID, depth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to walk upline",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id": accountID,
		"upline":     ancestors,
	})
}

// getNetwork returns the downline tree of an account plus aggregate stats.
func (h *Handler) getNetwork(c *gin.Context) {
	accountID, ok := pathID(c)
	if !ok {
		return
	}
	// Zero lets the tree builder apply its configured default.
	depth := queryInt(c, "depth", 0)

	tree, err := h.treeBuilder.BuildTree(c.Request.Context(), accountID, depth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to build network tree",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tree":  tree,
		"stats": service.Stats(tree),
	})
}

// getAccountStats returns the per-account commission aggregates. An optional
// as_of query (RFC 3339) anchors the month windows.
func (h *Handler) getAccountStats(c *gin.Context) {
	accountID, ok := pathID(c)
	if !ok {
		return
	}

	var asOf time.Time
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid as_of timestamp"})
			return
		}
		asOf = parsed
	}

	stats, err := h.ledger.StatsForAccount(c.Request.Context(), accountID, asOf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to aggregate commissions",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// getGlobalSummary returns ledger-wide aggregates, optionally windowed by
// from/to (RFC 3339).
func (h *Handler) getGlobalSummary(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from timestamp"})
			return
		}
		from = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to timestamp"})
			return
		}
		to = &parsed
	}

	summary, err := h.ledger.GlobalSummary(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to compute summary",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

type markPaidRequest struct {
	EntryIDs []int64 `json:"entry_ids" binding:"required,min=1"`
}

// markPaid transitions a batch of entries to PAID. Strict: any unknown or
// already-paid id rejects the whole batch.
func (h *Handler) markPaid(c *gin.Context) {
	var req markPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	entries, err := h.ledger.MarkPaid(c.Request.Context(), req.EntryIDs)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to mark entries paid",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// getOrderCommissions lists every ledger entry generated for one order.
func (h *Handler) getOrderCommissions(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	entries, err := h.ledger.EntriesByOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load commission entries",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"entries":  entries,
	})
}

// getAccountCommissions lists an account's most recent ledger entries.
func (h *Handler) getAccountCommissions(c *gin.Context) {
	accountID, ok := pathID(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 0)

	entries, err := h.ledger.EntriesByRecipient(c.Request.Context(), accountID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load commission entries",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id": accountID,
		"entries":    entries,
	})
}

type processOrderRequest struct {
	BuyerID int64                    `json:"buyer_id" binding:"required"`
	Lines   []service.OrderLineInput `json:"lines" binding:"omitempty,min=1"`
}

// processOrder runs the commission engine synchronously for one finalized
// order. Lines may be omitted, in which case they are loaded from the order
// store. Operator-facing: the caller is responsible for not submitting an
// order that was already processed.
func (h *Handler) processOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req processOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if len(req.Lines) == 0 {
		lines, err := h.store.GetOrderLinesByOrderID(c.Request.Context(), orderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to load order lines",
				"details": err.Error(),
			})
			return
		}
		if len(lines) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order has no lines"})
			return
		}
		for _, line := range lines {
			req.Lines = append(req.Lines, service.OrderLineInput{
				OrderLineID: line.ID,
				ProductID:   line.ProductID,
				Quantity:    line.Quantity,
			})
		}
	}

	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Line quantity must be positive"})
			return
		}
	}

	result, err := h.engine.ProcessOrder(c.Request.Context(), orderID, req.BuyerID, req.Lines)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to process order commissions",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, result)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, defaultVal int) int {
	raw := c.Query(key)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return defaultVal
	}
	return val
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
