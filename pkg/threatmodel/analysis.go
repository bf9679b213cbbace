package threatmodel

import "time"

// Options tunes a single analysis. Every field is optional.
type Options struct {
	EnablePatternMatching  *bool   `json:"enablePatternMatching,omitempty"  yaml:"enablePatternMatching,omitempty"`
	EnableDreadScoring     *bool   `json:"enableDreadScoring,omitempty"     yaml:"enableDreadScoring,omitempty"`
	IncludeCommonThreats   *bool   `json:"includeCommonThreats,omitempty"   yaml:"includeCommonThreats,omitempty"`
	ConfidenceThreshold    float64 `json:"confidenceThreshold,omitempty"    yaml:"confidenceThreshold,omitempty"`
	MaxThreatsPerComponent int     `json:"maxThreatsPerComponent,omitempty" yaml:"maxThreatsPerComponent,omitempty"`
	// RiskCalculationMethod is "standard" (default) or "dread".
	RiskCalculationMethod string `json:"riskCalculationMethod,omitempty" yaml:"riskCalculationMethod,omitempty"`
}

// PatternMatchingEnabled defaults to true.
func (o Options) PatternMatchingEnabled() bool {
	return o.EnablePatternMatching == nil || *o.EnablePatternMatching
}

// CommonThreatsIncluded defaults to true.
func (o Options) CommonThreatsIncluded() bool {
	return o.IncludeCommonThreats == nil || *o.IncludeCommonThreats
}

// DreadScoringEnabled is true when explicitly enabled or when the risk
// calculation method is "dread".
func (o Options) DreadScoringEnabled() bool {
	if o.EnableDreadScoring != nil && *o.EnableDreadScoring {
		return true
	}
	return o.RiskCalculationMethod == "dread"
}

// Bool returns a pointer to b, for building Options literals.
func Bool(b bool) *bool { return &b }

// Request is the normalised architecture description handed to the core.
type Request struct {
	ThreatModelID        string                `json:"threatModelId"                  yaml:"threatModelId"`
	Methodology          Methodology           `json:"methodology"                    yaml:"methodology"`
	Components           []Component           `json:"components"                     yaml:"components"`
	DataFlows            []DataFlow            `json:"dataFlows,omitempty"            yaml:"dataFlows,omitempty"`
	SecurityRequirements []SecurityRequirement `json:"securityRequirements,omitempty" yaml:"securityRequirements,omitempty"`
	Options              Options               `json:"options,omitempty"              yaml:"options,omitempty"`
}

// ComponentByID returns the component with the given id, or nil.
func (r *Request) ComponentByID(id string) *Component {
	for i := range r.Components {
		if r.Components[i].ID == id {
			return &r.Components[i]
		}
	}
	return nil
}

// RiskAssessment aggregates all threats of one analysis.
type RiskAssessment struct {
	OverallRiskScore float64            `json:"overallRiskScore"`
	RiskLevel        RiskLevel          `json:"riskLevel"`
	RiskDistribution map[Severity]int   `json:"riskDistribution"`
	CriticalThreats  []IdentifiedThreat `json:"criticalThreats"`
	RiskFactors      []string           `json:"riskFactors"`
	ComplianceGaps   []string           `json:"complianceGaps"`
}

// ProcessingStep is one timed stage of an analysis pipeline.
type ProcessingStep struct {
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt time.Time  `json:"completedAt,omitempty"`
	DurationMs  int64      `json:"durationMs"`
	Error       string     `json:"error,omitempty"`
}

// Throughput reports processing rates for one analysis.
type Throughput struct {
	ThreatsPerSecond    float64 `json:"threatsPerSecond"`
	ComponentsPerSecond float64 `json:"componentsPerSecond"`
}

// AnalysisMetadata describes how an analysis was produced.
type AnalysisMetadata struct {
	AnalysisID      string           `json:"analysisId"`
	UserID          string           `json:"userId,omitempty"`
	StartedAt       time.Time        `json:"startedAt"`
	CompletedAt     time.Time        `json:"completedAt"`
	ProcessingSteps []ProcessingStep `json:"processingSteps"`
	Warnings        []string         `json:"warnings"`
	Recommendations []string         `json:"recommendations"`
	Throughput      Throughput       `json:"throughput"`
	Cached          bool             `json:"cached,omitempty"`
	Pasta           *PastaReport     `json:"pasta,omitempty"`
}

// Response is the complete result of one analysis.
type Response struct {
	ThreatModelID             string                     `json:"threatModelId"`
	Methodology               Methodology                `json:"methodology"`
	Threats                   []IdentifiedThreat         `json:"threats"`
	RiskAssessment            RiskAssessment             `json:"riskAssessment"`
	MitigationRecommendations []MitigationRecommendation `json:"mitigationRecommendations"`
	AnalysisMetadata          AnalysisMetadata           `json:"analysisMetadata"`
	Confidence                float64                    `json:"confidence"`
	ProcessingTimeMs          int64                      `json:"processingTimeMs"`
}
