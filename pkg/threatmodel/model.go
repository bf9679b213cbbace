// Package threatmodel defines the wire schema shared by the threat analysis
// engines, the HTTP and gRPC APIs, and the Go SDK.
//
// An architecture is described as components (nodes) joined by data flows
// (directed edges). Analysis produces IdentifiedThreats, a RiskAssessment and
// MitigationRecommendations. Inputs are never mutated by the engines.
package threatmodel

// Component is a node in the architecture graph.
type Component struct {
	ID          string              `json:"id"                    yaml:"id"`
	Name        string              `json:"name"                  yaml:"name"`
	Type        ComponentType       `json:"type"                  yaml:"type"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  ComponentProperties `json:"properties"            yaml:"properties"`
	// Position is layout-only and never analysed.
	Position    *Position `json:"position,omitempty"    yaml:"position,omitempty"`
	Connections []string  `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// ComponentProperties are the declared security properties of a component.
//
// A nil list means the property was not declared; an empty list means it was
// declared with no entries. Pattern conditions distinguish the two, so the
// list tags carry no omitempty.
type ComponentProperties struct {
	Protocols      []string `json:"protocols"      yaml:"protocols"`
	Authentication []string `json:"authentication" yaml:"authentication"`
	Authorization  []string `json:"authorization"  yaml:"authorization"`
	Encryption     []string `json:"encryption"     yaml:"encryption"`
	Logging        []string `json:"logging"        yaml:"logging"`
	Sensitive      bool     `json:"sensitive"                yaml:"sensitive"`
	InternetFacing bool     `json:"internetFacing"           yaml:"internetFacing"`
	Privileged     bool     `json:"privileged"               yaml:"privileged"`
	Technology     string   `json:"technology,omitempty"     yaml:"technology,omitempty"`
}

// Position is the diagram location of a component.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// DataFlow is a directed communication edge between two components.
type DataFlow struct {
	ID             string `json:"id"                 yaml:"id"`
	Name           string `json:"name"               yaml:"name"`
	SourceID       string `json:"sourceId"           yaml:"sourceId"`
	TargetID       string `json:"targetId"           yaml:"targetId"`
	DataType       string `json:"dataType,omitempty" yaml:"dataType,omitempty"`
	Protocol       string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Authentication bool   `json:"authentication"     yaml:"authentication"`
	Encryption     bool   `json:"encryption"         yaml:"encryption"`
	Sensitive      bool   `json:"sensitive"          yaml:"sensitive"`
	Bidirectional  bool   `json:"bidirectional"      yaml:"bidirectional"`
}

// RequirementCategory is the security property a requirement protects.
type RequirementCategory string

const (
	RequirementConfidentiality RequirementCategory = "confidentiality"
	RequirementIntegrity       RequirementCategory = "integrity"
	RequirementAvailability    RequirementCategory = "availability"
	RequirementAuthentication  RequirementCategory = "authentication"
	RequirementAuthorization   RequirementCategory = "authorization"
	RequirementNonRepudiation  RequirementCategory = "non_repudiation"
	RequirementAccountability  RequirementCategory = "accountability"
)

// SecurityRequirement is a declared non-functional requirement. It is input
// context only (PASTA objective derivation).
type SecurityRequirement struct {
	ID                   string              `json:"id"                             yaml:"id"`
	Category             RequirementCategory `json:"category"                       yaml:"category"`
	Requirement          string              `json:"requirement"                    yaml:"requirement"`
	Priority             Severity            `json:"priority"                       yaml:"priority"`
	ComplianceFrameworks []string            `json:"complianceFrameworks,omitempty" yaml:"complianceFrameworks,omitempty"`
}

// AttackVector describes one way a threat can be realised.
type AttackVector struct {
	Vector       string     `json:"vector"`
	Complexity   Complexity `json:"complexity"`
	Requirements []string   `json:"requirements,omitempty"`
	Mitigations  []string   `json:"mitigations,omitempty"`
}

// DreadScore is the five-dimension DREAD rating of a threat, each on 1–10.
type DreadScore struct {
	Damage          float64 `json:"damage"`
	Reproducibility float64 `json:"reproducibility"`
	Exploitability  float64 `json:"exploitability"`
	AffectedUsers   float64 `json:"affectedUsers"`
	Discoverability float64 `json:"discoverability"`
	OverallScore    float64 `json:"overallScore"`
}

// IdentifiedThreat is a single threat produced by an analysis.
type IdentifiedThreat struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Category           Category       `json:"category"`
	StrideCategories   []Category     `json:"strideCategories"`
	Severity           Severity       `json:"severity"`
	Likelihood         Likelihood     `json:"likelihood"`
	Impact             Impact         `json:"impact"`
	RiskScore          float64        `json:"riskScore"`
	AffectedComponents []string       `json:"affectedComponents"`
	AffectedDataFlows  []string       `json:"affectedDataFlows"`
	AttackVectors      []AttackVector `json:"attackVectors"`
	Confidence         float64        `json:"confidence"`
	Source             Source         `json:"source"`
	// PatternID is set when Source is pattern_matching.
	PatternID string      `json:"patternId,omitempty"`
	Dread     *DreadScore `json:"dread,omitempty"`
}

// Clone returns a deep copy of t.
func (t IdentifiedThreat) Clone() IdentifiedThreat {
	out := t
	out.StrideCategories = append([]Category(nil), t.StrideCategories...)
	out.AffectedComponents = append([]string(nil), t.AffectedComponents...)
	out.AffectedDataFlows = append([]string(nil), t.AffectedDataFlows...)
	if t.AttackVectors != nil {
		out.AttackVectors = make([]AttackVector, len(t.AttackVectors))
		for i, v := range t.AttackVectors {
			v.Requirements = append([]string(nil), v.Requirements...)
			v.Mitigations = append([]string(nil), v.Mitigations...)
			out.AttackVectors[i] = v
		}
	}
	if t.Dread != nil {
		d := *t.Dread
		out.Dread = &d
	}
	return out
}
