package threat

import (
	"context"

	"github.com/google/uuid"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// Engine runs one threat-modeling methodology over a request.
type Engine interface {
	Analyze(ctx context.Context, req *tm.Request) (*tm.Response, error)
}

// Draft holds the fields of a threat before it is given an id and score.
type Draft struct {
	Title       string
	Description string
	Category    tm.Category
	// Also lists STRIDE categories beyond Category that the threat spans.
	Also       []tm.Category
	Severity   tm.Severity
	Likelihood tm.Likelihood
	Impact     tm.Impact
	Components []string
	DataFlows  []string
	Vectors    []tm.AttackVector
	Confidence float64
	Source     tm.Source
	PatternID  string
}

// Build turns a draft into an IdentifiedThreat with a fresh id and a
// riskScore from CalculateRiskScore.
func Build(d Draft) tm.IdentifiedThreat {
	cats := append([]tm.Category{d.Category}, d.Also...)
	comps := d.Components
	if comps == nil {
		comps = []string{}
	}
	flows := d.DataFlows
	if flows == nil {
		flows = []string{}
	}
	vectors := d.Vectors
	if vectors == nil {
		vectors = []tm.AttackVector{}
	}
	return tm.IdentifiedThreat{
		ID:                 uuid.NewString(),
		Title:              d.Title,
		Description:        d.Description,
		Category:           d.Category,
		StrideCategories:   cats,
		Severity:           d.Severity,
		Likelihood:         d.Likelihood,
		Impact:             d.Impact,
		RiskScore:          CalculateRiskScore(d.Severity, d.Likelihood),
		AffectedComponents: comps,
		AffectedDataFlows:  flows,
		AttackVectors:      vectors,
		Confidence:         ClampConfidence(d.Confidence),
		Source:             d.Source,
		PatternID:          d.PatternID,
	}
}
