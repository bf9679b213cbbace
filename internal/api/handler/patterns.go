package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/analysis"
	"github.com/jmerrifield20/threatlens/internal/auditlog"
	"github.com/jmerrifield20/threatlens/internal/identity"
	"github.com/jmerrifield20/threatlens/internal/pattern"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// PatternHandler exposes the shared pattern catalog. Reads are public;
// changes need an admin token when auth is configured.
type PatternHandler struct {
	svc    *analysis.Service
	tokens *identity.TokenIssuer // nil = mutations unauthenticated
	logger *zap.Logger
}

// NewPatternHandler creates a PatternHandler. tokens may be nil.
func NewPatternHandler(svc *analysis.Service, tokens *identity.TokenIssuer, logger *zap.Logger) *PatternHandler {
	return &PatternHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the pattern routes on rg.
func (h *PatternHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/patterns")
	{
		p.GET("", h.List)
		p.GET("/:id", h.Get)
		p.POST("", identity.RequireAdmin(h.tokens), h.Create)
		p.PATCH("/:id", identity.RequireAdmin(h.tokens), h.Update)
		p.DELETE("/:id", identity.RequireAdmin(h.tokens), h.Delete)
	}
}

// List handles GET /patterns. ?category= and ?componentType= filter.
func (h *PatternHandler) List(c *gin.Context) {
	category := tm.Category(c.Query("category"))
	ctype := tm.ComponentType(c.Query("componentType"))

	out := []pattern.Pattern{}
	for _, p := range h.svc.Matcher().Patterns() {
		if category != "" && p.Category != category {
			continue
		}
		if ctype != "" && !p.AppliesTo(ctype) {
			continue
		}
		out = append(out, p)
	}
	c.JSON(http.StatusOK, gin.H{"patterns": out, "total": len(out)})
}

// Get handles GET /patterns/:id.
func (h *PatternHandler) Get(c *gin.Context) {
	p, err := h.svc.Matcher().Catalog().Get(c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create handles POST /patterns.
func (h *PatternHandler) Create(c *gin.Context) {
	var p pattern.Pattern
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.AddPattern(c.Request.Context(), actor(c), p); err != nil {
		writeError(c, h.logger, err)
		return
	}
	SetPatternsGauge(h.svc.Matcher().Catalog().Len())
	created, err := h.svc.Matcher().Catalog().Get(p.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Update handles PATCH /patterns/:id.
func (h *PatternHandler) Update(c *gin.Context) {
	var u pattern.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.UpdatePattern(c.Request.Context(), actor(c), c.Param("id"), u)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /patterns/:id.
func (h *PatternHandler) Delete(c *gin.Context) {
	if err := h.svc.RemovePattern(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	SetPatternsGauge(h.svc.Matcher().Catalog().Len())
	c.Status(http.StatusNoContent)
}

// actor names the caller for audit entries.
func actor(c *gin.Context) string {
	if id := identity.UserIDFromCtx(c); id != "" {
		return id
	}
	return auditlog.SystemActor
}
