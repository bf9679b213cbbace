// Package events announces completed analyses to downstream consumers.
package events

import (
	"context"
	"time"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// TypeAnalysisCompleted is the Type of every AnalysisCompleted event.
const TypeAnalysisCompleted = "threatlens.analysis.completed"

// AnalysisCompleted summarises one finished analysis. Threat bodies are not
// included; consumers fetch them through the API if they need them.
type AnalysisCompleted struct {
	Type             string              `json:"type"`
	AnalysisID       string              `json:"analysisId"`
	ThreatModelID    string              `json:"threatModelId"`
	Methodology      tm.Methodology      `json:"methodology"`
	UserID           string              `json:"userId,omitempty"`
	ThreatCount      int                 `json:"threatCount"`
	RiskLevel        tm.RiskLevel        `json:"riskLevel"`
	OverallRiskScore float64             `json:"overallRiskScore"`
	Distribution     map[tm.Severity]int `json:"distribution"`
	CriticalThreats  []string            `json:"criticalThreats"`
	Confidence       float64             `json:"confidence"`
	CompletedAt      time.Time           `json:"completedAt"`
}

// NewAnalysisCompleted builds the event for resp.
func NewAnalysisCompleted(resp *tm.Response) AnalysisCompleted {
	crit := make([]string, 0, len(resp.RiskAssessment.CriticalThreats))
	for _, th := range resp.RiskAssessment.CriticalThreats {
		crit = append(crit, th.ID)
	}
	return AnalysisCompleted{
		Type:             TypeAnalysisCompleted,
		AnalysisID:       resp.AnalysisMetadata.AnalysisID,
		ThreatModelID:    resp.ThreatModelID,
		Methodology:      resp.Methodology,
		UserID:           resp.AnalysisMetadata.UserID,
		ThreatCount:      len(resp.Threats),
		RiskLevel:        resp.RiskAssessment.RiskLevel,
		OverallRiskScore: resp.RiskAssessment.OverallRiskScore,
		Distribution:     resp.RiskAssessment.RiskDistribution,
		CriticalThreats:  crit,
		Confidence:       resp.Confidence,
		CompletedAt:      resp.AnalysisMetadata.CompletedAt,
	}
}

// Publisher delivers analysis events.
type Publisher interface {
	PublishAnalysis(ctx context.Context, ev AnalysisCompleted) error
	Close() error
}
