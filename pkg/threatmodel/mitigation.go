package threatmodel

// MitigationType classifies how a mitigation acts on a threat.
type MitigationType string

const (
	MitigationPreventive   MitigationType = "preventive"
	MitigationDetective    MitigationType = "detective"
	MitigationCorrective   MitigationType = "corrective"
	MitigationCompensating MitigationType = "compensating"
)

// Level is a coarse low/medium/high rating used for cost and effort.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ImplementationStep is one numbered step of a mitigation plan.
type ImplementationStep struct {
	Order       int    `json:"order"`
	Description string `json:"description"`
}

// MitigationRecommendation is a remediation plan for one or more threats.
type MitigationRecommendation struct {
	ID                   string               `json:"id"`
	ThreatIDs            []string             `json:"threatIds"`
	Title                string               `json:"title"`
	Description          string               `json:"description"`
	Category             Category             `json:"category"`
	Type                 MitigationType       `json:"type"`
	Priority             Priority             `json:"priority"`
	PriorityScore        float64              `json:"priorityScore"`
	Effectiveness        float64              `json:"effectiveness"`
	Cost                 Level                `json:"cost"`
	Effort               Level                `json:"effort"`
	ImplementationSteps  []ImplementationStep `json:"implementationSteps"`
	Alternatives         []string             `json:"alternatives,omitempty"`
	ComplianceFrameworks []string             `json:"complianceFrameworks,omitempty"`
	AffectedComponents   []string             `json:"affectedComponents"`
	// RuleID names the declarative rule or general template that produced it.
	RuleID string `json:"ruleId"`
}
