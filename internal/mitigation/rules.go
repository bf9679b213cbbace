package mitigation

import (
	"github.com/jmerrifield20/threatlens/internal/pattern"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// Template is the recommendation a rule or general template produces.
// "{components}" in Title and Description is replaced by the names of the
// affected components.
type Template struct {
	Title                string
	Description          string
	Type                 tm.MitigationType
	Effectiveness        float64
	Cost                 tm.Level
	Effort               tm.Level
	Steps                []string
	Alternatives         []string
	ComplianceFrameworks []string
}

// Rule maps threats of one category to a recommendation when at least one
// affected component of an applicable type satisfies every condition.
type Rule struct {
	ID                   string
	Category             tm.Category
	ApplicableComponents []tm.ComponentType
	Conditions           []pattern.Condition
	Template             Template
}

func (r Rule) appliesTo(t tm.ComponentType) bool {
	if len(r.ApplicableComponents) == 0 {
		return true
	}
	for _, a := range r.ApplicableComponents {
		if a == t {
			return true
		}
	}
	return false
}

// matches reports whether the rule applies to a threat of category cat
// affecting comps.
func (r Rule) matches(cat tm.Category, comps []tm.Component) bool {
	if r.Category != cat {
		return false
	}
	if len(comps) == 0 {
		return len(r.Conditions) == 0 && len(r.ApplicableComponents) == 0
	}
	for i := range comps {
		if r.appliesTo(comps[i].Type) && r.holds(&comps[i]) {
			return true
		}
	}
	return false
}

func (r Rule) holds(c *tm.Component) bool {
	for _, cond := range r.Conditions {
		if !cond.Evaluate(c) {
			return false
		}
	}
	return true
}

// BuiltinRules returns the default declarative mitigation rules.
func BuiltinRules() []Rule {
	return []Rule{
		{
			ID:                   "mfa-internet-facing",
			Category:             tm.CategorySpoofing,
			ApplicableComponents: []tm.ComponentType{tm.ComponentProcess},
			Conditions: []pattern.Condition{
				{Property: pattern.PropInternetFacing, Operator: pattern.OpEquals, Value: true, Weight: 1},
			},
			Template: Template{
				Title:         "Add Multi-Factor Authentication to {components}",
				Description:   "Require a second authentication factor for every interactive and privileged login to {components}.",
				Type:          tm.MitigationPreventive,
				Effectiveness: 0.9,
				Cost:          tm.LevelMedium,
				Effort:        tm.LevelMedium,
				Steps: []string{
					"Select a TOTP or WebAuthn provider",
					"Enrol administrators first, then all users",
					"Enforce MFA at the identity provider for {components}",
					"Monitor and alert on MFA bypass attempts",
				},
				Alternatives:         []string{"Client certificates", "Hardware security keys"},
				ComplianceFrameworks: []string{"NIST SP 800-63B", "PCI DSS 8.4"},
			},
		},
		{
			ID:                   "db-authentication",
			Category:             tm.CategoryElevationOfPrivilege,
			ApplicableComponents: []tm.ComponentType{tm.ComponentDataStore},
			Conditions: []pattern.Condition{
				{Property: pattern.PropAuthentication, Operator: pattern.OpEmpty, Weight: 1},
			},
			Template: Template{
				Title:         "Require Authentication on {components}",
				Description:   "Disable anonymous access to {components} and issue per-service credentials.",
				Type:          tm.MitigationPreventive,
				Effectiveness: 0.9,
				Cost:          tm.LevelLow,
				Effort:        tm.LevelLow,
				Steps: []string{
					"Disable anonymous and default accounts",
					"Create one credential per consuming service",
					"Store credentials in a secrets manager",
					"Rotate credentials on a schedule",
				},
				Alternatives:         []string{"IAM database authentication", "Network-level isolation only"},
				ComplianceFrameworks: []string{"CIS Controls 5", "ISO 27001 A.9.2"},
			},
		},
		{
			ID:                   "input-validation",
			Category:             tm.CategoryTampering,
			ApplicableComponents: []tm.ComponentType{tm.ComponentProcess},
			Conditions: []pattern.Condition{
				{Property: pattern.PropProtocols, Operator: pattern.OpContains, Value: "http", Weight: 1},
			},
			Template: Template{
				Title:         "Validate and Sanitize Input for {components}",
				Description:   "Validate every request to {components} against a schema and use parameterized queries downstream.",
				Type:          tm.MitigationPreventive,
				Effectiveness: 0.85,
				Cost:          tm.LevelLow,
				Effort:        tm.LevelMedium,
				Steps: []string{
					"Define request schemas for every endpoint",
					"Reject requests that fail validation",
					"Replace string-built queries with parameterized queries",
					"Add fuzz tests for input handling",
				},
				Alternatives:         []string{"Web application firewall rules"},
				ComplianceFrameworks: []string{"OWASP ASVS V5", "PCI DSS 6.2"},
			},
		},
		{
			ID:                   "encryption-at-rest",
			Category:             tm.CategoryInformationDisclosure,
			ApplicableComponents: []tm.ComponentType{tm.ComponentDataStore},
			Conditions: []pattern.Condition{
				{Property: pattern.PropSensitive, Operator: pattern.OpEquals, Value: true, Weight: 1},
			},
			Template: Template{
				Title:         "Enable Encryption at Rest for {components}",
				Description:   "Encrypt the storage backing {components} with keys held in a key management service.",
				Type:          tm.MitigationPreventive,
				Effectiveness: 0.9,
				Cost:          tm.LevelMedium,
				Effort:        tm.LevelMedium,
				Steps: []string{
					"Provision a KMS key for the data store",
					"Enable transparent or volume encryption",
					"Encrypt existing backups and snapshots",
					"Restrict key usage to the data store role",
				},
				Alternatives:         []string{"Application-level field encryption", "Tokenization"},
				ComplianceFrameworks: []string{"GDPR Art. 32", "PCI DSS 3.5", "HIPAA 164.312(a)(2)(iv)"},
			},
		},
		{
			ID:       "tls-in-transit",
			Category: tm.CategoryInformationDisclosure,
			ApplicableComponents: []tm.ComponentType{
				tm.ComponentProcess, tm.ComponentDataStore, tm.ComponentExternalEntity,
			},
			Conditions: []pattern.Condition{
				{Property: pattern.PropProtocols, Operator: pattern.OpContains, Value: "http", Weight: 1},
			},
			Template: Template{
				Title:         "Enforce TLS for {components}",
				Description:   "Serve {components} over TLS 1.2 or later only and redirect or refuse plaintext HTTP.",
				Type:          tm.MitigationPreventive,
				Effectiveness: 0.85,
				Cost:          tm.LevelLow,
				Effort:        tm.LevelLow,
				Steps: []string{
					"Issue certificates from a managed CA",
					"Disable plaintext listeners",
					"Enable HSTS",
				},
				Alternatives:         []string{"Mutual TLS via a service mesh"},
				ComplianceFrameworks: []string{"PCI DSS 4.2", "NIST SP 800-52"},
			},
		},
		{
			ID:       "siem-forwarding",
			Category: tm.CategoryRepudiation,
			Conditions: []pattern.Condition{
				{Property: pattern.PropPrivileged, Operator: pattern.OpEquals, Value: true, Weight: 1},
			},
			Template: Template{
				Title:         "Forward {components} Audit Events to a SIEM",
				Description:   "Ship privileged actions on {components} to an append-only SIEM with alerting.",
				Type:          tm.MitigationDetective,
				Effectiveness: 0.8,
				Cost:          tm.LevelMedium,
				Effort:        tm.LevelLow,
				Steps: []string{
					"Emit structured audit events for privileged actions",
					"Forward events to the SIEM",
					"Alert on anomalous privileged activity",
				},
				ComplianceFrameworks: []string{"SOC 2 CC7.2", "PCI DSS 10.2"},
			},
		},
		{
			ID:                   "edge-protection",
			Category:             tm.CategoryDenialOfService,
			ApplicableComponents: []tm.ComponentType{tm.ComponentProcess},
			Conditions: []pattern.Condition{
				{Property: pattern.PropInternetFacing, Operator: pattern.OpEquals, Value: true, Weight: 1},
			},
			Template: Template{
				Title:         "Deploy WAF and DDoS Protection for {components}",
				Description:   "Front {components} with a CDN or WAF that absorbs volumetric attacks.",
				Type:          tm.MitigationPreventive,
				Effectiveness: 0.8,
				Cost:          tm.LevelMedium,
				Effort:        tm.LevelLow,
				Steps: []string{
					"Route public traffic through a CDN or WAF",
					"Enable volumetric and application-layer DDoS rules",
					"Lock the origin to accept traffic from the edge only",
				},
				Alternatives:         []string{"Cloud provider shield service"},
				ComplianceFrameworks: []string{"ISO 27001 A.13.1"},
			},
		},
		{
			ID:                   "rbac-privileged",
			Category:             tm.CategoryElevationOfPrivilege,
			ApplicableComponents: []tm.ComponentType{tm.ComponentProcess, tm.ComponentDataStore},
			Conditions: []pattern.Condition{
				{Property: pattern.PropPrivileged, Operator: pattern.OpEquals, Value: true, Weight: 1},
			},
			Template: Template{
				Title:         "Apply Role-Based Access Control to {components}",
				Description:   "Gate every privileged operation on {components} behind explicit role checks.",
				Type:          tm.MitigationPreventive,
				Effectiveness: 0.85,
				Cost:          tm.LevelMedium,
				Effort:        tm.LevelMedium,
				Steps: []string{
					"Inventory privileged operations",
					"Define roles with the minimum permissions each needs",
					"Enforce role checks at every privileged entry point",
					"Review role assignments quarterly",
				},
				Alternatives:         []string{"Attribute-based access control"},
				ComplianceFrameworks: []string{"NIST SP 800-53 AC-6", "ISO 27001 A.9.2"},
			},
		},
	}
}

// generalTemplates are appended for every threat group regardless of rule
// matches, one per STRIDE category.
var generalTemplates = map[tm.Category]Template{
	tm.CategorySpoofing: {
		Title:         "Implement Strong Authentication",
		Description:   "Authenticate every principal interacting with {components} using strong, phishing-resistant credentials.",
		Type:          tm.MitigationPreventive,
		Effectiveness: 0.85,
		Cost:          tm.LevelMedium,
		Effort:        tm.LevelMedium,
		Steps: []string{
			"Centralise authentication in an identity provider",
			"Enable multi-factor authentication for all users",
			"Enforce strong password and credential rotation policies",
			"Use mutual TLS or signed tokens for service-to-service calls",
		},
		Alternatives:         []string{"Certificate-based authentication", "Passwordless WebAuthn"},
		ComplianceFrameworks: []string{"NIST SP 800-63B", "PCI DSS 8.3", "ISO 27001 A.9.4"},
	},
	tm.CategoryTampering: {
		Title:         "Enforce Data Integrity Controls",
		Description:   "Detect and prevent unauthorised modification of data handled by {components}.",
		Type:          tm.MitigationPreventive,
		Effectiveness: 0.8,
		Cost:          tm.LevelMedium,
		Effort:        tm.LevelMedium,
		Steps: []string{
			"Sign or HMAC messages that cross trust boundaries",
			"Validate all input at the boundary",
			"Restrict write access to the owning service",
			"Verify integrity of stored data with checksums",
		},
		Alternatives:         []string{"Immutable storage", "Append-only event logs"},
		ComplianceFrameworks: []string{"SOC 2 CC6.1", "PCI DSS 11.5"},
	},
	tm.CategoryRepudiation: {
		Title:         "Implement Comprehensive Audit Logging",
		Description:   "Record security-relevant actions on {components} in tamper-evident audit logs.",
		Type:          tm.MitigationDetective,
		Effectiveness: 0.75,
		Cost:          tm.LevelLow,
		Effort:        tm.LevelLow,
		Steps: []string{
			"Log authentication, authorization and data changes with actor identity",
			"Synchronise clocks across hosts",
			"Ship logs to write-once storage",
			"Define retention and review procedures",
		},
		Alternatives:         []string{"Hash-chained application ledger"},
		ComplianceFrameworks: []string{"SOC 2 CC7.2", "PCI DSS 10", "HIPAA 164.312(b)"},
	},
	tm.CategoryInformationDisclosure: {
		Title:         "Encrypt Sensitive Data",
		Description:   "Protect data handled by {components} with encryption in transit and at rest.",
		Type:          tm.MitigationPreventive,
		Effectiveness: 0.9,
		Cost:          tm.LevelMedium,
		Effort:        tm.LevelMedium,
		Steps: []string{
			"Classify the data handled by each component",
			"Enable TLS 1.2+ for all connections",
			"Encrypt sensitive data at rest with managed keys",
			"Minimise sensitive fields in logs and responses",
		},
		Alternatives:         []string{"Tokenization", "Data masking"},
		ComplianceFrameworks: []string{"GDPR Art. 32", "PCI DSS 3-4", "HIPAA 164.312(e)"},
	},
	tm.CategoryDenialOfService: {
		Title:         "Implement Rate Limiting and Redundancy",
		Description:   "Keep {components} available under load and component failure.",
		Type:          tm.MitigationPreventive,
		Effectiveness: 0.7,
		Cost:          tm.LevelMedium,
		Effort:        tm.LevelMedium,
		Steps: []string{
			"Apply per-client rate limits",
			"Set timeouts and resource quotas",
			"Run redundant instances behind a load balancer",
			"Add health checks and automatic failover",
		},
		Alternatives:         []string{"Autoscaling", "Queue-based load levelling"},
		ComplianceFrameworks: []string{"SOC 2 A1.2", "ISO 27001 A.17.2"},
	},
	tm.CategoryElevationOfPrivilege: {
		Title:         "Enforce Least Privilege Access Control",
		Description:   "Ensure {components} and their callers hold only the permissions they need.",
		Type:          tm.MitigationPreventive,
		Effectiveness: 0.85,
		Cost:          tm.LevelMedium,
		Effort:        tm.LevelHigh,
		Steps: []string{
			"Run services under dedicated low-privilege accounts",
			"Enforce authorization checks on every request",
			"Separate administrative interfaces from public ones",
			"Review and revoke unused permissions",
		},
		Alternatives:         []string{"Just-in-time privileged access"},
		ComplianceFrameworks: []string{"NIST SP 800-53 AC-6", "ISO 27001 A.9.2", "CIS Controls 6"},
	},
}

// GeneralTemplate returns the fallback template for a category.
func GeneralTemplate(c tm.Category) (Template, bool) {
	t, ok := generalTemplates[c]
	return t, ok
}
