package pasta

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jmerrifield20/threatlens/internal/threat"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// ── Stage 1: objectives ───────────────────────────────────────────────────────

func defineObjectives(reqs []tm.SecurityRequirement) []tm.BusinessObjective {
	if len(reqs) == 0 {
		return []tm.BusinessObjective{
			{ID: "obj-confidentiality", Name: "Confidentiality", Description: "Protect sensitive data from unauthorised disclosure", BusinessImpact: tm.SeverityHigh},
			{ID: "obj-availability", Name: "Availability", Description: "Keep business services available to legitimate users", BusinessImpact: tm.SeverityMedium},
			{ID: "obj-integrity", Name: "Integrity", Description: "Prevent unauthorised modification of data and systems", BusinessImpact: tm.SeverityHigh},
		}
	}
	out := make([]tm.BusinessObjective, 0, len(reqs))
	for _, r := range reqs {
		impact := r.Priority
		if !impact.Valid() {
			impact = tm.SeverityMedium
		}
		out = append(out, tm.BusinessObjective{
			ID:                   "obj-" + r.ID,
			Name:                 objectiveName(r.Category),
			Description:          r.Requirement,
			BusinessImpact:       impact,
			ComplianceFrameworks: slices.Clone(r.ComplianceFrameworks),
		})
	}
	return out
}

func objectiveName(c tm.RequirementCategory) string {
	s := strings.ReplaceAll(string(c), "_", " ")
	if s == "" {
		return "Security"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// businessImpactMultiplier is 1.5 when any objective has high or critical
// business impact.
func businessImpactMultiplier(objs []tm.BusinessObjective) float64 {
	for _, o := range objs {
		if o.BusinessImpact == tm.SeverityCritical || o.BusinessImpact == tm.SeverityHigh {
			return 1.5
		}
	}
	return 1.0
}

// ── Stage 2: technical scope ──────────────────────────────────────────────────

func defineScope(comps []tm.Component) tm.TechnicalScope {
	var (
		techs, protos, classes []string
		anyPublic, anyInternal bool
		anyPriv, anyUnpriv     bool
		anySensitive           bool
	)
	for _, c := range comps {
		p := c.Properties
		if p.Technology != "" {
			techs = appendUnique(techs, p.Technology)
		}
		for _, pr := range p.Protocols {
			protos = appendUnique(protos, strings.ToLower(pr))
		}
		switch {
		case p.Sensitive:
			classes = appendUnique(classes, "sensitive")
			anySensitive = true
		case p.InternetFacing:
			classes = appendUnique(classes, "public")
		default:
			classes = appendUnique(classes, "internal")
		}
		if p.InternetFacing {
			anyPublic = true
		} else {
			anyInternal = true
		}
		if p.Privileged {
			anyPriv = true
		} else {
			anyUnpriv = true
		}
	}
	sort.Strings(techs)
	sort.Strings(protos)
	sort.Strings(classes)

	scope := tm.TechnicalScope{
		Technologies:        orEmpty(techs),
		Protocols:           orEmpty(protos),
		DataClassifications: orEmpty(classes),
		NetworkSegments:     []string{},
		TrustBoundaries:     []tm.TrustBoundaryKind{},
	}
	if anyPublic {
		scope.NetworkSegments = append(scope.NetworkSegments, "public")
	}
	if anyInternal {
		scope.NetworkSegments = append(scope.NetworkSegments, "internal")
	}
	if anyPublic && anyInternal {
		scope.TrustBoundaries = append(scope.TrustBoundaries, tm.BoundaryInternetInternal)
	}
	if anyPriv && anyUnpriv {
		scope.TrustBoundaries = append(scope.TrustBoundaries, tm.BoundaryUserAdmin)
	}
	if anyPublic && anySensitive {
		scope.TrustBoundaries = append(scope.TrustBoundaries, tm.BoundaryPublicSensitive)
	}
	return scope
}

// ── Stage 3: decomposition ────────────────────────────────────────────────────

var (
	apiProtocols = []string{"rest", "graphql", "grpc", "soap", "json"}
	uiProtocols  = []string{"http", "https", "websocket", "wss"}
)

func decompose(req *tm.Request) tm.Decomposition {
	d := tm.Decomposition{
		EntryPoints:  []tm.EntryPoint{},
		Assets:       []tm.Asset{},
		Services:     []tm.Service{},
		Dependencies: []tm.Dependency{},
	}
	for _, c := range req.Components {
		p := c.Properties
		if p.InternetFacing {
			d.EntryPoints = append(d.EntryPoints, tm.EntryPoint{
				ID:          "ep-" + c.ID,
				ComponentID: c.ID,
				Name:        c.Name,
				Type:        entryPointType(p.Protocols),
				AccessLevel: accessLevel(&c),
				Protocols:   slices.Clone(p.Protocols),
			})
		}
		if p.Sensitive {
			d.Assets = append(d.Assets, tm.Asset{
				ID:             "asset-" + c.ID,
				ComponentID:    c.ID,
				Name:           c.Name,
				Classification: assetClassification(&c),
				Value:          assetValue(&c),
			})
		}
		if c.Type == tm.ComponentProcess {
			deps := dependenciesOf(c.ID, req)
			priv := "user"
			if p.Privileged {
				priv = "admin"
			}
			d.Services = append(d.Services, tm.Service{
				ID:           "svc-" + c.ID,
				ComponentID:  c.ID,
				Name:         c.Name,
				Privilege:    priv,
				Dependencies: deps,
			})
			for _, to := range deps {
				d.Dependencies = append(d.Dependencies, tm.Dependency{From: c.ID, To: to})
			}
		}
	}
	return d
}

func entryPointType(protocols []string) string {
	lower := make([]string, len(protocols))
	for i, p := range protocols {
		lower[i] = strings.ToLower(p)
	}
	for _, p := range lower {
		if slices.Contains(apiProtocols, p) {
			return "api"
		}
	}
	for _, p := range lower {
		if slices.Contains(uiProtocols, p) {
			return "ui"
		}
	}
	return "service"
}

func accessLevel(c *tm.Component) string {
	p := c.Properties
	if len(p.Authentication) == 0 {
		return "public"
	}
	if p.Privileged {
		return "privileged"
	}
	for _, a := range p.Authorization {
		if strings.Contains(strings.ToLower(a), "admin") {
			return "privileged"
		}
	}
	return "authenticated"
}

func assetClassification(c *tm.Component) string {
	if c.Properties.InternetFacing {
		return "confidential"
	}
	return "restricted"
}

// assetValue rates a component by its sensitive and privileged flags.
func assetValue(c *tm.Component) tm.Severity {
	p := c.Properties
	switch {
	case p.Sensitive && p.Privileged:
		return tm.SeverityCritical
	case p.Sensitive:
		return tm.SeverityHigh
	case p.Privileged:
		return tm.SeverityMedium
	default:
		return tm.SeverityLow
	}
}

// dependenciesOf lists the components id sends data to or declares a
// connection to, in first-seen order.
func dependenciesOf(id string, req *tm.Request) []string {
	deps := []string{}
	for _, f := range req.DataFlows {
		if f.SourceID == id && f.TargetID != id {
			deps = appendUnique(deps, f.TargetID)
		}
	}
	if c := req.ComponentByID(id); c != nil {
		for _, to := range c.Connections {
			if to != id {
				deps = appendUnique(deps, to)
			}
		}
	}
	return deps
}

// ── Stage 4: threat analysis ──────────────────────────────────────────────────

func analyzeThreats(req *tm.Request, scope tm.TechnicalScope, d tm.Decomposition) []tm.IdentifiedThreat {
	var drafts []threat.Draft

	for _, ep := range d.EntryPoints {
		if ep.AccessLevel == "public" {
			drafts = append(drafts, threat.Draft{
				Title:       "Unauthenticated Access via " + ep.Name,
				Description: ep.Name + " is a public entry point with no authentication; attackers can act as any user.",
				Category:    tm.CategorySpoofing,
				Severity:    tm.SeverityHigh,
				Likelihood:  tm.LikelihoodMedium,
				Impact:      tm.ImpactHigh,
				Components:  []string{ep.ComponentID},
				Vectors:     vector("Anonymous requests to the public entry point", tm.ComplexityLow),
			})
		}
		if containsFold(ep.Protocols, "http") {
			drafts = append(drafts, threat.Draft{
				Title:       "Cleartext Traffic at " + ep.Name,
				Description: ep.Name + " accepts plain HTTP; credentials and data can be observed in transit.",
				Category:    tm.CategoryInformationDisclosure,
				Severity:    tm.SeverityMedium,
				Likelihood:  tm.LikelihoodMedium,
				Impact:      tm.ImpactMedium,
				Components:  []string{ep.ComponentID},
				Vectors:     vector("Passive interception of HTTP traffic", tm.ComplexityMedium),
			})
		}
	}

	for _, a := range d.Assets {
		if a.Classification == "confidential" || a.Classification == "restricted" {
			drafts = append(drafts, threat.Draft{
				Title:       "Data Breach of " + a.Name,
				Description: a.Name + " holds " + a.Classification + " data whose disclosure would harm the business.",
				Category:    tm.CategoryInformationDisclosure,
				Severity:    tm.SeverityCritical,
				Likelihood:  tm.LikelihoodMedium,
				Impact:      tm.ImpactVeryHigh,
				Components:  []string{a.ComponentID},
				Vectors:     vector("Exfiltration of stored records", tm.ComplexityMedium),
			})
		}
		if a.Value == tm.SeverityCritical {
			drafts = append(drafts, threat.Draft{
				Title:       "Integrity Compromise of " + a.Name,
				Description: "Unauthorised modification of critical asset " + a.Name + " would corrupt business decisions.",
				Category:    tm.CategoryTampering,
				Severity:    tm.SeverityHigh,
				Likelihood:  tm.LikelihoodLow,
				Impact:      tm.ImpactVeryHigh,
				Components:  []string{a.ComponentID},
				Vectors:     vector("Targeted modification of high-value records", tm.ComplexityHigh),
			})
		}
	}

	for _, s := range d.Services {
		if s.Privilege == "admin" {
			drafts = append(drafts, threat.Draft{
				Title:       "Administrative Privilege Abuse in " + s.Name,
				Description: s.Name + " runs with administrative privilege; a compromise yields control over everything it manages.",
				Category:    tm.CategoryElevationOfPrivilege,
				Severity:    tm.SeverityHigh,
				Likelihood:  tm.LikelihoodLow,
				Impact:      tm.ImpactVeryHigh,
				Components:  []string{s.ComponentID},
				Vectors:     vector("Exploiting the service to run privileged operations", tm.ComplexityHigh),
			})
		}
		if len(s.Dependencies) > 0 {
			drafts = append(drafts, threat.Draft{
				Title:       "Cascading Failure of " + s.Name,
				Description: fmt.Sprintf("%s depends on %d components; failure of any of them degrades the service.", s.Name, len(s.Dependencies)),
				Category:    tm.CategoryDenialOfService,
				Severity:    tm.SeverityMedium,
				Likelihood:  tm.LikelihoodMedium,
				Impact:      tm.ImpactMedium,
				Components:  []string{s.ComponentID},
				Vectors:     vector("Overloading a downstream dependency", tm.ComplexityMedium),
			})
		}
	}

	threats := threat.LimitByComponent(build(drafts), req.Options.MaxThreatsPerComponent)

	var boundary []threat.Draft
	for _, b := range scope.TrustBoundaries {
		boundary = append(boundary, threat.Draft{
			Title:       "Trust Boundary Bypass: " + string(b),
			Description: "Controls at the " + string(b) + " boundary can be bypassed to reach more trusted components.",
			Category:    tm.CategoryElevationOfPrivilege,
			Severity:    tm.SeverityMedium,
			Likelihood:  tm.LikelihoodLow,
			Impact:      tm.ImpactHigh,
			Components:  boundaryComponents(b, req.Components),
			Vectors:     vector("Crossing the boundary through an exposed component", tm.ComplexityHigh),
		})
	}
	return append(threats, build(boundary)...)
}

func vector(desc string, c tm.Complexity) []tm.AttackVector {
	return []tm.AttackVector{{Vector: desc, Complexity: c}}
}

func build(drafts []threat.Draft) []tm.IdentifiedThreat {
	out := make([]tm.IdentifiedThreat, 0, len(drafts))
	for _, d := range drafts {
		d.Confidence = ThreatConfidence
		d.Source = tm.SourceRuleBased
		out = append(out, threat.Build(d))
	}
	return out
}

func boundaryComponents(b tm.TrustBoundaryKind, comps []tm.Component) []string {
	ids := []string{}
	for _, c := range comps {
		p := c.Properties
		var in bool
		switch b {
		case tm.BoundaryInternetInternal:
			in = p.InternetFacing
		case tm.BoundaryUserAdmin:
			in = p.Privileged
		case tm.BoundaryPublicSensitive:
			in = p.Sensitive
		}
		if in {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// ── Stage 5: weaknesses ───────────────────────────────────────────────────────

func analyzeWeaknesses(comps []tm.Component) []tm.Weakness {
	out := []tm.Weakness{}
	for _, c := range comps {
		p := c.Properties
		if len(p.Authentication) == 0 {
			out = append(out, tm.Weakness{ID: "weak-306-" + c.ID, CWE: "CWE-306", Name: "Missing Authentication for Critical Function", ComponentID: c.ID, Severity: tm.SeverityHigh})
		}
		if p.Sensitive && len(p.Encryption) == 0 {
			out = append(out, tm.Weakness{ID: "weak-311-" + c.ID, CWE: "CWE-311", Name: "Missing Encryption of Sensitive Data", ComponentID: c.ID, Severity: tm.SeverityHigh})
		}
		if p.InternetFacing && len(p.Authorization) == 0 {
			out = append(out, tm.Weakness{ID: "weak-862-" + c.ID, CWE: "CWE-862", Name: "Missing Authorization", ComponentID: c.ID, Severity: tm.SeverityCritical})
		}
	}
	return out
}

// ── Stage 6: attack modeling ──────────────────────────────────────────────────

var motivations = map[tm.Category]string{
	tm.CategorySpoofing:              "account takeover",
	tm.CategoryTampering:             "fraud or sabotage",
	tm.CategoryRepudiation:           "evading accountability",
	tm.CategoryInformationDisclosure: "data theft",
	tm.CategoryDenialOfService:       "disruption or extortion",
	tm.CategoryElevationOfPrivilege:  "system control",
}

func modelAttacks(threats []tm.IdentifiedThreat, comps []tm.Component) []tm.AttackScenario {
	out := []tm.AttackScenario{}
	for _, t := range threats {
		if t.Severity != tm.SeverityHigh && t.Severity != tm.SeverityCritical {
			continue
		}
		target := targetName(t.AffectedComponents, comps)
		out = append(out, tm.AttackScenario{
			ID:         uuid.NewString(),
			ThreatID:   t.ID,
			Actor:      threatActor(t),
			Motivation: motivations[t.Category],
			Capability: requiredCapability(t.AttackVectors),
			Chain: []tm.AttackStep{
				{Order: 1, Phase: "Reconnaissance", Description: "Enumerate " + target + " and its exposed interfaces"},
				{Order: 2, Phase: "Initial Access", Description: "Gain a foothold on " + target},
				{Order: 3, Phase: "Exploit", Description: t.Title},
			},
		})
	}
	return out
}

func threatActor(t tm.IdentifiedThreat) string {
	switch {
	case t.Severity == tm.SeverityCritical:
		return "advanced_persistent_threat"
	case t.Category == tm.CategoryElevationOfPrivilege:
		return "insider"
	default:
		return "external_attacker"
	}
}

// requiredCapability rates the attacker skill implied by the average
// attack vector complexity.
func requiredCapability(vectors []tm.AttackVector) string {
	if len(vectors) == 0 {
		return "medium"
	}
	var sum int
	for _, v := range vectors {
		sum += v.Complexity.Weight()
	}
	avg := float64(sum) / float64(len(vectors))
	switch {
	case avg <= 1.5:
		return "low"
	case avg <= 2.5:
		return "medium"
	default:
		return "high"
	}
}

func targetName(ids []string, comps []tm.Component) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name := id
		for _, c := range comps {
			if c.ID == id {
				name = c.Name
				break
			}
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "the system"
	}
	return strings.Join(names, ", ")
}

// ── helpers ───────────────────────────────────────────────────────────────────

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func containsFold(list []string, s string) bool {
	for _, it := range list {
		if strings.EqualFold(it, s) {
			return true
		}
	}
	return false
}
