package stride

import (
	"strings"

	"github.com/jmerrifield20/threatlens/internal/threat"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// ruleFunc inspects one component and returns zero or more threat drafts.
// The engine fills in the affected component, source and confidence.
type ruleFunc func(c *tm.Component) []threat.Draft

// defaultRules is the fixed rule set per STRIDE category.
func defaultRules() map[tm.Category][]ruleFunc {
	return map[tm.Category][]ruleFunc{
		tm.CategorySpoofing:              {ruleMissingAuthentication, ruleRemoteSpoofing},
		tm.CategoryTampering:             {ruleMissingIntegrity, ruleUnauthorizedPrivilegedWrite},
		tm.CategoryRepudiation:           {ruleMissingAuditLog},
		tm.CategoryInformationDisclosure: {ruleUnencryptedSensitiveData, rulePublicSensitiveData},
		tm.CategoryDenialOfService:       {rulePublicExposure, ruleSinglePointOfFailure},
		tm.CategoryElevationOfPrivilege:  {ruleWeakPrivilegedAuthorization},
	}
}

// applicableCategories returns the STRIDE categories examined for a
// component type, in canonical order.
func applicableCategories(c *tm.Component) []tm.Category {
	switch c.Type {
	case tm.ComponentProcess, tm.ComponentTrustBoundary:
		return tm.AllCategories
	case tm.ComponentDataStore:
		cats := []tm.Category{tm.CategoryTampering}
		if !hasAuditLogging(c) {
			cats = append(cats, tm.CategoryRepudiation)
		}
		return append(cats, tm.CategoryInformationDisclosure, tm.CategoryDenialOfService)
	case tm.ComponentExternalEntity:
		return []tm.Category{tm.CategorySpoofing, tm.CategoryRepudiation}
	}
	return nil
}

// ── Property helpers ──────────────────────────────────────────────────────────

var (
	mfaMarkers       = []string{"mfa", "2fa", "multi_factor", "multi-factor", "totp", "webauthn"}
	integrityMarkers = []string{"hmac", "integrity"}
	atRestMarkers    = []string{"at_rest", "at-rest", "aes", "tde", "kms", "disk"}
	inTransitMarkers = []string{"tls", "ssl", "https", "in_transit", "in-transit"}
	weakAuthzMarkers = []string{"basic", "none", "weak"}
)

func anyMarker(items, markers []string) bool {
	for _, it := range items {
		lower := strings.ToLower(it)
		for _, m := range markers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return false
}

func hasAuditLogging(c *tm.Component) bool {
	return anyMarker(c.Properties.Logging, []string{"audit"})
}

// weakAuthorization is true for no authorization or only basic/none/weak.
func weakAuthorization(c *tm.Component) bool {
	for _, a := range c.Properties.Authorization {
		if !anyMarker([]string{a}, weakAuthzMarkers) {
			return false
		}
	}
	return true
}

// ── Rules ─────────────────────────────────────────────────────────────────────

func ruleMissingAuthentication(c *tm.Component) []threat.Draft {
	if len(c.Properties.Authentication) > 0 {
		return nil
	}
	return []threat.Draft{{
		Title:       "Missing Authentication on " + c.Name,
		Description: c.Name + " declares no authentication mechanism; any caller can claim any identity.",
		Category:    tm.CategorySpoofing,
		Severity:    tm.SeverityHigh,
		Likelihood:  tm.LikelihoodMedium,
		Impact:      tm.ImpactHigh,
		Vectors: []tm.AttackVector{{
			Vector:       "Unauthenticated requests impersonating a legitimate user",
			Complexity:   tm.ComplexityLow,
			Requirements: []string{"Network access to " + c.Name},
			Mitigations:  []string{"Require authentication", "Use an identity provider"},
		}},
	}}
}

func ruleRemoteSpoofing(c *tm.Component) []threat.Draft {
	if !c.Properties.InternetFacing || anyMarker(c.Properties.Authentication, mfaMarkers) {
		return nil
	}
	return []threat.Draft{{
		Title:       "Remote Identity Spoofing of " + c.Name,
		Description: c.Name + " is reachable from the internet without multi-factor authentication; stolen or guessed credentials grant full access.",
		Category:    tm.CategorySpoofing,
		Severity:    tm.SeverityCritical,
		Likelihood:  tm.LikelihoodHigh,
		Impact:      tm.ImpactHigh,
		Vectors: []tm.AttackVector{{
			Vector:       "Credential stuffing or phishing against the public interface",
			Complexity:   tm.ComplexityLow,
			Requirements: []string{"Leaked or guessable credentials"},
			Mitigations:  []string{"Multi-factor authentication", "Login rate limiting"},
		}},
	}}
}

func ruleMissingIntegrity(c *tm.Component) []threat.Draft {
	if anyMarker(c.Properties.Encryption, integrityMarkers) {
		return nil
	}
	return []threat.Draft{{
		Title:       "Data Tampering in " + c.Name,
		Description: c.Name + " has no integrity protection (HMAC or signatures); data can be modified without detection.",
		Category:    tm.CategoryTampering,
		Severity:    tm.SeverityHigh,
		Likelihood:  tm.LikelihoodMedium,
		Impact:      tm.ImpactHigh,
		Vectors: []tm.AttackVector{{
			Vector:       "Modification of data in transit or at rest",
			Complexity:   tm.ComplexityMedium,
			Requirements: []string{"Write or network access"},
			Mitigations:  []string{"HMAC or digital signatures", "Integrity monitoring"},
		}},
	}}
}

func ruleUnauthorizedPrivilegedWrite(c *tm.Component) []threat.Draft {
	if !c.Properties.Privileged || len(c.Properties.Authorization) > 0 {
		return nil
	}
	return []threat.Draft{{
		Title:       "Unauthorized Modification via Privileged " + c.Name,
		Description: c.Name + " runs with elevated privileges and enforces no authorization; callers can alter protected state.",
		Category:    tm.CategoryTampering,
		Severity:    tm.SeverityCritical,
		Likelihood:  tm.LikelihoodMedium,
		Impact:      tm.ImpactVeryHigh,
		Vectors: []tm.AttackVector{{
			Vector:       "Invoking privileged write operations without authorization",
			Complexity:   tm.ComplexityLow,
			Requirements: []string{"Access to the component interface"},
			Mitigations:  []string{"Authorization checks", "Least privilege"},
		}},
	}}
}

func ruleMissingAuditLog(c *tm.Component) []threat.Draft {
	if hasAuditLogging(c) {
		return nil
	}
	return []threat.Draft{{
		Title:       "Insufficient Audit Logging in " + c.Name,
		Description: c.Name + " keeps no audit log; users can deny actions and incidents cannot be reconstructed.",
		Category:    tm.CategoryRepudiation,
		Severity:    tm.SeverityMedium,
		Likelihood:  tm.LikelihoodHigh,
		Impact:      tm.ImpactMedium,
		Vectors: []tm.AttackVector{{
			Vector:       "Performing actions that leave no attributable record",
			Complexity:   tm.ComplexityLow,
			Mitigations:  []string{"Audit logging with actor identity", "Tamper-evident log storage"},
		}},
	}}
}

func ruleUnencryptedSensitiveData(c *tm.Component) []threat.Draft {
	enc := c.Properties.Encryption
	if !c.Properties.Sensitive || anyMarker(enc, atRestMarkers) || anyMarker(enc, inTransitMarkers) {
		return nil
	}
	return []threat.Draft{{
		Title:       "Sensitive Data Exposure in " + c.Name,
		Description: c.Name + " handles sensitive data without encryption at rest or in transit.",
		Category:    tm.CategoryInformationDisclosure,
		Severity:    tm.SeverityCritical,
		Likelihood:  tm.LikelihoodMedium,
		Impact:      tm.ImpactVeryHigh,
		Vectors: []tm.AttackVector{{
			Vector:       "Reading unencrypted storage, backups or traffic",
			Complexity:   tm.ComplexityMedium,
			Requirements: []string{"Access to storage or the network path"},
			Mitigations:  []string{"Encryption at rest", "TLS for all connections"},
		}},
	}}
}

func rulePublicSensitiveData(c *tm.Component) []threat.Draft {
	if !c.Properties.InternetFacing || !c.Properties.Sensitive {
		return nil
	}
	return []threat.Draft{{
		Title:       "Internet Exposure of Sensitive Data in " + c.Name,
		Description: c.Name + " is internet-facing and handles sensitive data; any flaw leaks that data to the public.",
		Category:    tm.CategoryInformationDisclosure,
		Severity:    tm.SeverityCritical,
		Likelihood:  tm.LikelihoodHigh,
		Impact:      tm.ImpactVeryHigh,
		Vectors: []tm.AttackVector{{
			Vector:       "Exploiting public endpoints to extract data",
			Complexity:   tm.ComplexityMedium,
			Requirements: []string{"Internet access"},
			Mitigations:  []string{"Data minimisation", "Move sensitive data behind an internal service"},
		}},
	}}
}

func rulePublicExposure(c *tm.Component) []threat.Draft {
	if !c.Properties.InternetFacing {
		return nil
	}
	return []threat.Draft{{
		Title:       "Denial of Service Against " + c.Name,
		Description: c.Name + " is internet-facing and can be flooded with traffic until it is unavailable.",
		Category:    tm.CategoryDenialOfService,
		Severity:    tm.SeverityHigh,
		Likelihood:  tm.LikelihoodHigh,
		Impact:      tm.ImpactHigh,
		Vectors: []tm.AttackVector{{
			Vector:       "Volumetric or application-layer flooding",
			Complexity:   tm.ComplexityLow,
			Requirements: []string{"Botnet or traffic amplification"},
			Mitigations:  []string{"Rate limiting", "DDoS protection"},
		}},
	}}
}

func ruleSinglePointOfFailure(c *tm.Component) []threat.Draft {
	if c.Type != tm.ComponentDataStore && c.Type != tm.ComponentProcess {
		return nil
	}
	return []threat.Draft{{
		Title:       "Resource Exhaustion of " + c.Name,
		Description: c.Name + " may be a single point of failure; exhausting its resources stops dependent services.",
		Category:    tm.CategoryDenialOfService,
		Severity:    tm.SeverityMedium,
		Likelihood:  tm.LikelihoodMedium,
		Impact:      tm.ImpactHigh,
		Vectors: []tm.AttackVector{{
			Vector:       "Exhausting connections, memory or storage",
			Complexity:   tm.ComplexityMedium,
			Mitigations:  []string{"Redundancy", "Resource quotas"},
		}},
	}}
}

func ruleWeakPrivilegedAuthorization(c *tm.Component) []threat.Draft {
	if !c.Properties.Privileged || !weakAuthorization(c) {
		return nil
	}
	return []threat.Draft{{
		Title:       "Privilege Escalation via " + c.Name,
		Description: c.Name + " holds elevated privileges behind weak or missing authorization; attackers can inherit its rights.",
		Category:    tm.CategoryElevationOfPrivilege,
		Severity:    tm.SeverityCritical,
		Likelihood:  tm.LikelihoodMedium,
		Impact:      tm.ImpactVeryHigh,
		Vectors: []tm.AttackVector{{
			Vector:       "Abusing privileged functionality without proper authorization",
			Complexity:   tm.ComplexityMedium,
			Requirements: []string{"Any access to " + c.Name},
			Mitigations:  []string{"Role-based access control", "Least privilege"},
		}},
	}}
}

// ── Data flow and cross-component rules ───────────────────────────────────────

func flowRules(f *tm.DataFlow) []threat.Draft {
	var out []threat.Draft
	name := f.Name
	if name == "" {
		name = f.SourceID + " -> " + f.TargetID
	}
	if f.Sensitive && !f.Encryption {
		out = append(out, threat.Draft{
			Title:       "Unencrypted Sensitive Data Flow " + name,
			Description: "Sensitive data on " + name + " travels without encryption and can be intercepted.",
			Category:    tm.CategoryInformationDisclosure,
			Severity:    tm.SeverityHigh,
			Likelihood:  tm.LikelihoodMedium,
			Impact:      tm.ImpactHigh,
			Vectors: []tm.AttackVector{{
				Vector:       "Eavesdropping on the data flow",
				Complexity:   tm.ComplexityMedium,
				Requirements: []string{"Position on the network path"},
				Mitigations:  []string{"TLS", "Payload encryption"},
			}},
		})
	}
	if !f.Authentication {
		out = append(out, threat.Draft{
			Title:       "Unauthenticated Data Flow " + name,
			Description: "Endpoints of " + name + " do not authenticate each other; either side can be impersonated.",
			Category:    tm.CategorySpoofing,
			Severity:    tm.SeverityMedium,
			Likelihood:  tm.LikelihoodHigh,
			Impact:      tm.ImpactMedium,
			Vectors: []tm.AttackVector{{
				Vector:       "Injecting or replaying messages as a trusted peer",
				Complexity:   tm.ComplexityMedium,
				Mitigations:  []string{"Mutual TLS", "Signed requests"},
			}},
		})
	}
	return out
}

func crossRules(f *tm.DataFlow, src, dst *tm.Component) []threat.Draft {
	var out []threat.Draft
	if src.Properties.InternetFacing && !dst.Properties.InternetFacing {
		out = append(out, threat.Draft{
			Title:       "Trust Boundary Violation from " + src.Name + " to " + dst.Name,
			Description: "Internet-facing " + src.Name + " sends data directly to internal " + dst.Name + "; a compromise of the edge reaches the interior.",
			Category:    tm.CategoryTampering,
			Also:        []tm.Category{tm.CategoryElevationOfPrivilege},
			Severity:    tm.SeverityHigh,
			Likelihood:  tm.LikelihoodMedium,
			Impact:      tm.ImpactHigh,
			Vectors: []tm.AttackVector{{
				Vector:       "Pivoting from the public component into the internal network",
				Complexity:   tm.ComplexityMedium,
				Requirements: []string{"Compromise of " + src.Name},
				Mitigations:  []string{"Validate data at the boundary", "Network segmentation"},
			}},
		})
	}
	if !src.Properties.Privileged && dst.Properties.Privileged {
		out = append(out, threat.Draft{
			Title:       "Privilege Escalation Path from " + src.Name + " to " + dst.Name,
			Description: "Non-privileged " + src.Name + " can reach privileged " + dst.Name + " over " + flowLabel(f) + ".",
			Category:    tm.CategoryElevationOfPrivilege,
			Severity:    tm.SeverityHigh,
			Likelihood:  tm.LikelihoodLow,
			Impact:      tm.ImpactVeryHigh,
			Vectors: []tm.AttackVector{{
				Vector:       "Sending crafted requests to privileged operations",
				Complexity:   tm.ComplexityHigh,
				Requirements: []string{"Control of " + src.Name},
				Mitigations:  []string{"Authorization at the privileged component", "Request validation"},
			}},
		})
	}
	return out
}

func flowLabel(f *tm.DataFlow) string {
	if f.Name != "" {
		return f.Name
	}
	return "flow " + f.ID
}
