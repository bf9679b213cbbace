package pattern

import tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"

// BuiltinPatterns returns the default catalog contents. Each call returns
// fresh values.
func BuiltinPatterns() []Pattern {
	return []Pattern{
		{
			ID:                   "web-sql-injection",
			Name:                 "SQL Injection",
			Description:          "Internet-facing HTTP process without input validation",
			Category:             tm.CategoryTampering,
			ApplicableComponents: []tm.ComponentType{tm.ComponentProcess},
			Conditions: []Condition{
				{Type: "property", Property: PropProtocols, Operator: OpContains, Value: "http", Weight: 0.4},
				{Type: "property", Property: PropInternetFacing, Operator: OpEquals, Value: true, Weight: 0.3},
				{Type: "property", Property: PropAuthentication, Operator: OpNotContains, Value: "input_validation", Weight: 0.3},
			},
			Template: Template{
				Title:       "SQL Injection in {component}",
				Description: "{component} accepts HTTP input from the internet without input validation; crafted input may alter backend queries.",
				Severity:    tm.SeverityHigh,
				Likelihood:  tm.LikelihoodMedium,
				Impact:      tm.ImpactHigh,
				AttackVectors: []tm.AttackVector{{
					Vector:       "Malicious SQL in request parameters",
					Complexity:   tm.ComplexityLow,
					Requirements: []string{"Network access to the endpoint"},
					Mitigations:  []string{"Parameterized queries", "Input validation", "Least-privilege database accounts"},
				}},
			},
			Confidence: 0.85,
		},
		{
			ID:                   "web-xss",
			Name:                 "Cross-Site Scripting",
			Description:          "Internet-facing HTTP process without output encoding",
			Category:             tm.CategoryTampering,
			ApplicableComponents: []tm.ComponentType{tm.ComponentProcess},
			Conditions: []Condition{
				{Type: "property", Property: PropProtocols, Operator: OpContains, Value: "http", Weight: 0.5},
				{Type: "property", Property: PropInternetFacing, Operator: OpEquals, Value: true, Weight: 0.25},
				{Type: "property", Property: PropAuthorization, Operator: OpNotContains, Value: "output_encoding", Weight: 0.25},
			},
			Template: Template{
				Title:       "Cross-Site Scripting in {component}",
				Description: "{component} renders user-controlled content over HTTP without output encoding, allowing script injection into client sessions.",
				Severity:    tm.SeverityMedium,
				Likelihood:  tm.LikelihoodHigh,
				Impact:      tm.ImpactMedium,
				AttackVectors: []tm.AttackVector{{
					Vector:       "Stored or reflected script payload",
					Complexity:   tm.ComplexityLow,
					Requirements: []string{"Ability to submit content"},
					Mitigations:  []string{"Context-aware output encoding", "Content Security Policy"},
				}},
			},
			Confidence: 0.75,
		},
		{
			ID:                   "db-unauthorized-access",
			Name:                 "Unauthorized Database Access",
			Description:          "Sensitive data store without authentication or authorization",
			Category:             tm.CategoryElevationOfPrivilege,
			ApplicableComponents: []tm.ComponentType{tm.ComponentDataStore},
			Conditions: []Condition{
				{Type: "property", Property: PropAuthentication, Operator: OpEmpty, Weight: 0.5},
				{Type: "property", Property: PropAuthorization, Operator: OpEmpty, Weight: 0.3},
				{Type: "property", Property: PropSensitive, Operator: OpEquals, Value: true, Weight: 0.2},
			},
			Template: Template{
				Title:       "Unauthorized Access to {component}",
				Description: "{component} has no authentication or authorization controls; any reachable client can read or modify its data.",
				Severity:    tm.SeverityCritical,
				Likelihood:  tm.LikelihoodMedium,
				Impact:      tm.ImpactVeryHigh,
				AttackVectors: []tm.AttackVector{{
					Vector:       "Direct connection to the data store",
					Complexity:   tm.ComplexityLow,
					Requirements: []string{"Network reachability"},
					Mitigations:  []string{"Database authentication", "Role-based access control", "Network segmentation"},
				}},
			},
			Confidence: 0.8,
		},
		{
			ID:                   "sensitive-data-unencrypted",
			Name:                 "Sensitive Data Without Encryption",
			Description:          "Component holds sensitive data with no encryption",
			Category:             tm.CategoryInformationDisclosure,
			ApplicableComponents: []tm.ComponentType{tm.ComponentDataStore, tm.ComponentProcess},
			Conditions: []Condition{
				{Type: "property", Property: PropSensitive, Operator: OpEquals, Value: true, Weight: 0.6},
				{Type: "property", Property: PropEncryption, Operator: OpEmpty, Weight: 0.4},
			},
			Template: Template{
				Title:       "Unencrypted Sensitive Data in {component}",
				Description: "{component} stores or processes sensitive data without encryption, exposing it to anyone with storage or memory access.",
				Severity:    tm.SeverityCritical,
				Likelihood:  tm.LikelihoodMedium,
				Impact:      tm.ImpactVeryHigh,
				AttackVectors: []tm.AttackVector{{
					Vector:       "Read access to storage media or backups",
					Complexity:   tm.ComplexityMedium,
					Requirements: []string{"Access to host, disk or backup"},
					Mitigations:  []string{"Encryption at rest", "Key management service"},
				}},
			},
			Confidence: 0.9,
		},
		{
			ID:                   "api-unauthenticated",
			Name:                 "Unauthenticated API",
			Description:          "Internet-facing process with no authentication",
			Category:             tm.CategorySpoofing,
			ApplicableComponents: []tm.ComponentType{tm.ComponentProcess},
			Conditions: []Condition{
				{Type: "property", Property: PropAuthentication, Operator: OpEmpty, Weight: 0.6},
				{Type: "property", Property: PropInternetFacing, Operator: OpEquals, Value: true, Weight: 0.4},
			},
			Template: Template{
				Title:       "Unauthenticated API Access to {component}",
				Description: "{component} exposes an internet-facing interface without authentication; callers cannot be identified.",
				Severity:    tm.SeverityHigh,
				Likelihood:  tm.LikelihoodHigh,
				Impact:      tm.ImpactHigh,
				AttackVectors: []tm.AttackVector{{
					Vector:       "Anonymous API requests",
					Complexity:   tm.ComplexityLow,
					Requirements: []string{"Knowledge of the API surface"},
					Mitigations:  []string{"API authentication (OAuth2, API keys)", "Gateway enforcement"},
				}},
			},
			Confidence: 0.85,
		},
		{
			ID:                   "network-unencrypted-transport",
			Name:                 "Unencrypted Network Transport",
			Description:          "HTTP traffic without TLS",
			Category:             tm.CategoryInformationDisclosure,
			ApplicableComponents: []tm.ComponentType{tm.ComponentProcess, tm.ComponentDataStore, tm.ComponentExternalEntity},
			Conditions: []Condition{
				{Type: "property", Property: PropProtocols, Operator: OpContains, Value: "http", Weight: 0.5},
				{Type: "property", Property: PropEncryption, Operator: OpNotContains, Value: "tls", Weight: 0.5},
			},
			Template: Template{
				Title:       "Unencrypted Network Traffic to {component}",
				Description: "{component} communicates over plain HTTP; traffic can be intercepted or modified in transit.",
				Severity:    tm.SeverityHigh,
				Likelihood:  tm.LikelihoodMedium,
				Impact:      tm.ImpactHigh,
				AttackVectors: []tm.AttackVector{{
					Vector:       "Network eavesdropping or man-in-the-middle",
					Complexity:   tm.ComplexityMedium,
					Requirements: []string{"Position on the network path"},
					Mitigations:  []string{"TLS 1.2+", "HSTS"},
				}},
			},
			Confidence: 0.8,
		},
		{
			ID:                   "missing-audit-logging",
			Name:                 "Missing Audit Logging",
			Description:          "Component declares no logging",
			Category:             tm.CategoryRepudiation,
			ApplicableComponents: []tm.ComponentType{tm.ComponentProcess, tm.ComponentDataStore},
			Conditions: []Condition{
				{Type: "property", Property: PropLogging, Operator: OpEmpty, Weight: 0.7},
				{Type: "property", Property: PropPrivileged, Operator: OpEquals, Value: true, Weight: 0.3},
			},
			Template: Template{
				Title:       "Missing Audit Trail for {component}",
				Description: "{component} keeps no audit log; actions against it cannot be attributed or reconstructed.",
				Severity:    tm.SeverityMedium,
				Likelihood:  tm.LikelihoodHigh,
				Impact:      tm.ImpactMedium,
				AttackVectors: []tm.AttackVector{{
					Vector:       "Deniable malicious action",
					Complexity:   tm.ComplexityLow,
					Requirements: []string{"Any authorised or unauthorised access"},
					Mitigations:  []string{"Centralised audit logging", "Tamper-evident log storage"},
				}},
			},
			Confidence: 0.75,
		},
		{
			ID:                   "privileged-weak-authorization",
			Name:                 "Privileged Component Without Authorization",
			Description:          "Privileged component with no authorization controls",
			Category:             tm.CategoryElevationOfPrivilege,
			ApplicableComponents: []tm.ComponentType{tm.ComponentProcess, tm.ComponentDataStore},
			Conditions: []Condition{
				{Type: "property", Property: PropPrivileged, Operator: OpEquals, Value: true, Weight: 0.6},
				{Type: "property", Property: PropAuthorization, Operator: OpEmpty, Weight: 0.4},
			},
			Template: Template{
				Title:       "Privilege Abuse via {component}",
				Description: "{component} runs with elevated privileges but enforces no authorization; any caller inherits its rights.",
				Severity:    tm.SeverityHigh,
				Likelihood:  tm.LikelihoodMedium,
				Impact:      tm.ImpactVeryHigh,
				AttackVectors: []tm.AttackVector{{
					Vector:       "Invoking privileged operations directly",
					Complexity:   tm.ComplexityMedium,
					Requirements: []string{"Access to the component interface"},
					Mitigations:  []string{"Role-based access control", "Least privilege"},
				}},
			},
			Confidence: 0.8,
		},
	}
}

// DefaultCatalog returns a catalog loaded with BuiltinPatterns.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(BuiltinPatterns()...)
	if err != nil {
		panic("pattern: invalid builtin catalog: " + err.Error())
	}
	return c
}
