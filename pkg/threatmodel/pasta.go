package threatmodel

// PastaReport carries the intermediate artifacts of the seven PASTA stages.
type PastaReport struct {
	Objectives               []BusinessObjective `json:"objectives"`
	Scope                    TechnicalScope      `json:"scope"`
	Decomposition            Decomposition       `json:"decomposition"`
	Weaknesses               []Weakness          `json:"weaknesses"`
	AttackScenarios          []AttackScenario    `json:"attackScenarios"`
	BusinessImpactMultiplier float64             `json:"businessImpactMultiplier"`
}

// BusinessObjective is a stage-one objective with its business impact.
type BusinessObjective struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	BusinessImpact       Severity `json:"businessImpact"`
	ComplianceFrameworks []string `json:"complianceFrameworks,omitempty"`
}

// TrustBoundaryKind names an inferred trust boundary.
type TrustBoundaryKind string

const (
	BoundaryInternetInternal TrustBoundaryKind = "internet-internal"
	BoundaryUserAdmin        TrustBoundaryKind = "user-admin"
	BoundaryPublicSensitive  TrustBoundaryKind = "public-sensitive"
)

// TechnicalScope is the stage-two summary of the architecture surface.
type TechnicalScope struct {
	Technologies        []string            `json:"technologies"`
	Protocols           []string            `json:"protocols"`
	DataClassifications []string            `json:"dataClassifications"`
	NetworkSegments     []string            `json:"networkSegments"`
	TrustBoundaries     []TrustBoundaryKind `json:"trustBoundaries"`
}

// EntryPoint is an externally reachable interface of a component.
type EntryPoint struct {
	ID          string `json:"id"`
	ComponentID string `json:"componentId"`
	Name        string `json:"name"`
	// Type is ui, api or service.
	Type string `json:"type"`
	// AccessLevel is public, authenticated or privileged.
	AccessLevel string   `json:"accessLevel"`
	Protocols   []string `json:"protocols"`
}

// Asset is a sensitive component worth protecting.
type Asset struct {
	ID             string   `json:"id"`
	ComponentID    string   `json:"componentId"`
	Name           string   `json:"name"`
	Classification string   `json:"classification"`
	Value          Severity `json:"value"`
}

// Service is a process component and the components it depends on.
type Service struct {
	ID           string   `json:"id"`
	ComponentID  string   `json:"componentId"`
	Name         string   `json:"name"`
	Privilege    string   `json:"privilege"`
	Dependencies []string `json:"dependencies"`
}

// Dependency is a service-to-component edge derived from data flows and
// declared connections.
type Dependency struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Decomposition is the stage-three application breakdown.
type Decomposition struct {
	EntryPoints  []EntryPoint `json:"entryPoints"`
	Assets       []Asset      `json:"assets"`
	Services     []Service    `json:"services"`
	Dependencies []Dependency `json:"dependencies"`
}

// Weakness is a CWE-tagged flaw flagged on a component in stage five.
type Weakness struct {
	ID          string   `json:"id"`
	CWE         string   `json:"cwe"`
	Name        string   `json:"name"`
	ComponentID string   `json:"componentId"`
	Severity    Severity `json:"severity"`
}

// AttackStep is one step of an attack chain.
type AttackStep struct {
	Order       int    `json:"order"`
	Phase       string `json:"phase"`
	Description string `json:"description"`
}

// AttackScenario is a stage-six simulation of a high-severity threat.
type AttackScenario struct {
	ID         string       `json:"id"`
	ThreatID   string       `json:"threatId"`
	Actor      string       `json:"actor"`
	Motivation string       `json:"motivation"`
	Capability string       `json:"capability"`
	Chain      []AttackStep `json:"chain"`
}
