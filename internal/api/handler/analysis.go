package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/analysis"
	"github.com/jmerrifield20/threatlens/internal/dread"
	"github.com/jmerrifield20/threatlens/internal/identity"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// AnalysisHandler serves threat model analyses and standalone DREAD scoring.
type AnalysisHandler struct {
	svc    *analysis.Service
	tokens *identity.TokenIssuer // nil = anonymous only
	logger *zap.Logger
}

// NewAnalysisHandler creates an AnalysisHandler. tokens may be nil.
func NewAnalysisHandler(svc *analysis.Service, tokens *identity.TokenIssuer, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the analysis routes on rg.
func (h *AnalysisHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/analyses", identity.OptionalUser(h.tokens), h.Analyze)
	rg.GET("/methodologies", h.Methodologies)
	rg.POST("/dread", h.ScoreDread)
}

// Analyze handles POST /analyses.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req tm.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.AnalyzeThreatModel(c.Request.Context(), &req, identity.UserIDFromCtx(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Methodologies handles GET /methodologies.
func (h *AnalysisHandler) Methodologies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"methodologies": h.svc.Methodologies()})
}

type dreadRequest struct {
	Threat     tm.IdentifiedThreat `json:"threat"`
	Components []tm.Component      `json:"components"`
}

type dreadResponse struct {
	Dread     tm.DreadScore       `json:"dread"`
	RiskLevel tm.Severity         `json:"riskLevel"`
	Threat    tm.IdentifiedThreat `json:"threat"`
}

// ScoreDread handles POST /dread. It rescores a single threat against the
// supplied components without running a full analysis.
func (h *AnalysisHandler) ScoreDread(c *gin.Context) {
	var req dreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Threat.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threat.category is required"})
		return
	}

	updated, err := h.svc.Dread().UpdateThreat(req.Threat, req.Components)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dreadResponse{
		Dread:     *updated.Dread,
		RiskLevel: dread.RiskLevel(updated.Dread.OverallScore),
		Threat:    updated,
	})
}
