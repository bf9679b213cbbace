package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/auditlog"
)

const maxLedgerPage = 500

// LedgerHandler exposes read-only endpoints for the audit ledger.
type LedgerHandler struct {
	ledger auditlog.Ledger
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger auditlog.Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries", h.Recent)
		l.GET("/entries/:seq", h.GetEntry)
	}
}

// Overview handles GET /ledger. It returns the chain length and head hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	head, err := h.ledger.Head(ctx)
	if err != nil {
		h.logger.Error("ledger Head", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger head"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"head":    head,
	})
}

// Verify handles GET /ledger/verify.
func (h *LedgerHandler) Verify(c *gin.Context) {
	err := h.ledger.Verify(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"valid": true})
		return
	}

	var ce *auditlog.ChainError
	if !errors.As(err, &ce) {
		h.logger.Error("ledger verify", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify ledger"})
		return
	}
	h.logger.Warn("ledger integrity check failed", zap.Error(err))
	c.JSON(http.StatusOK, gin.H{
		"valid":    false,
		"brokenAt": ce.Seq,
		"error":    ce.Reason,
	})
}

// Recent handles GET /ledger/entries?limit=N, newest first.
func (h *LedgerHandler) Recent(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLedgerPage)
	}

	entries, err := h.ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("ledger Recent", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// GetEntry handles GET /ledger/entries/:seq.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil || seq < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seq must be a non-negative integer"})
		return
	}

	entry, err := h.ledger.Get(c.Request.Context(), seq)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}
