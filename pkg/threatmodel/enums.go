package threatmodel

// ComponentType classifies a node in the architecture graph.
type ComponentType string

const (
	ComponentProcess        ComponentType = "process"
	ComponentDataStore      ComponentType = "data_store"
	ComponentExternalEntity ComponentType = "external_entity"
	ComponentTrustBoundary  ComponentType = "trust_boundary"
)

// Valid reports whether t is one of the known component types.
func (t ComponentType) Valid() bool {
	switch t {
	case ComponentProcess, ComponentDataStore, ComponentExternalEntity, ComponentTrustBoundary:
		return true
	}
	return false
}

// Category is a STRIDE threat category.
type Category string

const (
	CategorySpoofing              Category = "spoofing"
	CategoryTampering             Category = "tampering"
	CategoryRepudiation           Category = "repudiation"
	CategoryInformationDisclosure Category = "information_disclosure"
	CategoryDenialOfService       Category = "denial_of_service"
	CategoryElevationOfPrivilege  Category = "elevation_of_privilege"
)

// AllCategories lists the STRIDE categories in canonical order.
var AllCategories = []Category{
	CategorySpoofing,
	CategoryTampering,
	CategoryRepudiation,
	CategoryInformationDisclosure,
	CategoryDenialOfService,
	CategoryElevationOfPrivilege,
}

// Valid reports whether c is a STRIDE category.
func (c Category) Valid() bool {
	switch c {
	case CategorySpoofing, CategoryTampering, CategoryRepudiation,
		CategoryInformationDisclosure, CategoryDenialOfService, CategoryElevationOfPrivilege:
		return true
	}
	return false
}

// Title returns the human-readable category name.
func (c Category) Title() string {
	switch c {
	case CategorySpoofing:
		return "Spoofing"
	case CategoryTampering:
		return "Tampering"
	case CategoryRepudiation:
		return "Repudiation"
	case CategoryInformationDisclosure:
		return "Information Disclosure"
	case CategoryDenialOfService:
		return "Denial of Service"
	case CategoryElevationOfPrivilege:
		return "Elevation of Privilege"
	}
	return string(c)
}

// Severity is the four-level threat severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight maps a severity to its numeric weight: low=1 … critical=4.
// Unknown values weigh 0.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Weight() > 0 }

// Likelihood is the five-level probability of exploitation.
type Likelihood string

const (
	LikelihoodVeryLow  Likelihood = "very_low"
	LikelihoodLow      Likelihood = "low"
	LikelihoodMedium   Likelihood = "medium"
	LikelihoodHigh     Likelihood = "high"
	LikelihoodVeryHigh Likelihood = "very_high"
)

// Weight maps a likelihood to 1 (very_low) … 5 (very_high).
func (l Likelihood) Weight() int {
	switch l {
	case LikelihoodVeryLow:
		return 1
	case LikelihoodLow:
		return 2
	case LikelihoodMedium:
		return 3
	case LikelihoodHigh:
		return 4
	case LikelihoodVeryHigh:
		return 5
	}
	return 0
}

// Valid reports whether l is a known likelihood.
func (l Likelihood) Valid() bool { return l.Weight() > 0 }

// Impact is the five-level business impact of a successful attack.
type Impact string

const (
	ImpactVeryLow  Impact = "very_low"
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactVeryHigh Impact = "very_high"
)

// Weight maps an impact to 1 (very_low) … 5 (very_high).
func (i Impact) Weight() int {
	switch i {
	case ImpactVeryLow:
		return 1
	case ImpactLow:
		return 2
	case ImpactMedium:
		return 3
	case ImpactHigh:
		return 4
	case ImpactVeryHigh:
		return 5
	}
	return 0
}

// RiskLevel is the aggregate level of a risk assessment.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels from 1 (low) to 5 (critical); unknown levels are 0.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskVeryHigh:
		return 4
	case RiskCritical:
		return 5
	}
	return 0
}

// Source records which mechanism produced a threat.
type Source string

const (
	SourcePatternMatching Source = "pattern_matching"
	SourceRuleBased       Source = "rule_based"
	SourceMLPrediction    Source = "ml_prediction"
	SourceKnowledgeBase   Source = "knowledge_base"
	SourceUserInput       Source = "user_input"
)

// Methodology selects the analysis engine.
type Methodology string

const (
	MethodologySTRIDE  Methodology = "stride"
	MethodologyPASTA   Methodology = "pasta"
	MethodologyVAST    Methodology = "vast"
	MethodologyTRIKE   Methodology = "trike"
	MethodologyOCTAVE  Methodology = "octave"
	MethodologyLINDDUN Methodology = "linddun"
	MethodologyCustom  Methodology = "custom"
)

// Valid reports whether m is a recognised methodology name. Recognised
// does not imply implemented; only STRIDE and PASTA have engines.
func (m Methodology) Valid() bool {
	switch m {
	case MethodologySTRIDE, MethodologyPASTA, MethodologyVAST, MethodologyTRIKE,
		MethodologyOCTAVE, MethodologyLINDDUN, MethodologyCustom:
		return true
	}
	return false
}

// Complexity rates how hard an attack vector is to execute.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Weight maps complexity to 1 (low) … 3 (high). Unknown values count as medium.
func (c Complexity) Weight() int {
	switch c {
	case ComplexityLow:
		return 1
	case ComplexityHigh:
		return 3
	}
	return 2
}

// Priority is the urgency of a mitigation recommendation.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityImmediate Priority = "immediate"
)

// Weight maps priority to 1 (low) … 4 (immediate).
func (p Priority) Weight() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityImmediate:
		return 4
	}
	return 0
}

// StepStatus is the lifecycle state of a processing step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)
