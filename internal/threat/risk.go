// Package threat holds the scoring primitives shared by every analysis
// engine: risk score lookup, confidence helpers, risk aggregation, the
// processing-step recorder and the error taxonomy.
package threat

import (
	"fmt"
	"math"
	"sort"
	"strings"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// CriticalRiskScore is the riskScore at or above which a threat is listed
// among the critical threats regardless of severity.
const CriticalRiskScore = 15

// maxCriticalThreats caps RiskAssessment.CriticalThreats.
const maxCriticalThreats = 10

// CalculateRiskScore returns severity weight × likelihood weight.
// critical × medium = 4 × 3 = 12; the range is 1–20 for known values.
func CalculateRiskScore(s tm.Severity, l tm.Likelihood) float64 {
	return float64(s.Weight() * l.Weight())
}

// ClampConfidence bounds v to [0,1]. NaN becomes 0.
func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// WeightedConfidence scales base by the fraction of condition weight that
// matched. With no weight declared the base is returned unchanged.
func WeightedConfidence(matched, total, base float64) float64 {
	if total <= 0 {
		return ClampConfidence(base)
	}
	return ClampConfidence(matched / total * base)
}

// MeanConfidence is the arithmetic mean of the threats' confidences, or 0.
func MeanConfidence(threats []tm.IdentifiedThreat) float64 {
	if len(threats) == 0 {
		return 0
	}
	var sum float64
	for _, t := range threats {
		sum += t.Confidence
	}
	return ClampConfidence(sum / float64(len(threats)))
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AssessRisk aggregates threats into a RiskAssessment.
//
// Level: critical if any critical threat; very_high if more than 3 high;
// high if any high; medium if more than 5 medium; otherwise low.
func AssessRisk(threats []tm.IdentifiedThreat) tm.RiskAssessment {
	dist := Distribution(threats)
	level := tm.RiskLow
	switch {
	case dist[tm.SeverityCritical] > 0:
		level = tm.RiskCritical
	case dist[tm.SeverityHigh] > 3:
		level = tm.RiskVeryHigh
	case dist[tm.SeverityHigh] > 0:
		level = tm.RiskHigh
	case dist[tm.SeverityMedium] > 5:
		level = tm.RiskMedium
	}
	return assemble(threats, dist, meanRisk(threats), level)
}

// AssessRiskWeighted is AssessRisk scaled by a business impact multiplier.
// The overall score is multiplied, and the two top levels are only reached
// when the multiplier exceeds 1.2.
func AssessRiskWeighted(threats []tm.IdentifiedThreat, multiplier float64) tm.RiskAssessment {
	if multiplier <= 0 {
		multiplier = 1
	}
	dist := Distribution(threats)
	amplified := multiplier > 1.2
	level := tm.RiskLow
	switch {
	case dist[tm.SeverityCritical] > 0 && amplified:
		level = tm.RiskCritical
	case dist[tm.SeverityCritical] > 0, dist[tm.SeverityHigh] > 3 && amplified:
		level = tm.RiskVeryHigh
	case dist[tm.SeverityHigh] > 0:
		level = tm.RiskHigh
	case dist[tm.SeverityMedium] > 5:
		level = tm.RiskMedium
	}
	return assemble(threats, dist, meanRisk(threats)*multiplier, level)
}

// Distribution counts threats by severity. All four severities are present.
func Distribution(threats []tm.IdentifiedThreat) map[tm.Severity]int {
	dist := map[tm.Severity]int{
		tm.SeverityLow:      0,
		tm.SeverityMedium:   0,
		tm.SeverityHigh:     0,
		tm.SeverityCritical: 0,
	}
	for _, t := range threats {
		dist[t.Severity]++
	}
	return dist
}

func meanRisk(threats []tm.IdentifiedThreat) float64 {
	if len(threats) == 0 {
		return 0
	}
	var sum float64
	for _, t := range threats {
		sum += t.RiskScore
	}
	return sum / float64(len(threats))
}

func assemble(threats []tm.IdentifiedThreat, dist map[tm.Severity]int, overall float64, level tm.RiskLevel) tm.RiskAssessment {
	return tm.RiskAssessment{
		OverallRiskScore: Round2(overall),
		RiskLevel:        level,
		RiskDistribution: dist,
		CriticalThreats:  CriticalThreats(threats),
		RiskFactors:      riskFactors(threats, dist),
		ComplianceGaps:   complianceGaps(threats),
	}
}

// CriticalThreats returns threats with critical severity or a riskScore of
// at least CriticalRiskScore, highest score first, at most ten.
func CriticalThreats(threats []tm.IdentifiedThreat) []tm.IdentifiedThreat {
	out := []tm.IdentifiedThreat{}
	for _, t := range threats {
		if t.Severity == tm.SeverityCritical || t.RiskScore >= CriticalRiskScore {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	if len(out) > maxCriticalThreats {
		out = out[:maxCriticalThreats]
	}
	return out
}

func riskFactors(threats []tm.IdentifiedThreat, dist map[tm.Severity]int) []string {
	factors := []string{}
	if n := dist[tm.SeverityCritical]; n > 0 {
		factors = append(factors, fmt.Sprintf("%d critical-severity threats identified", n))
	}
	if n := dist[tm.SeverityHigh]; n > 0 {
		factors = append(factors, fmt.Sprintf("%d high-severity threats identified", n))
	}
	serious := seriousCategories(threats)
	for _, c := range tm.AllCategories {
		if serious[c] {
			factors = append(factors, "Elevated "+c.Title()+" exposure")
		}
	}
	flows := 0
	for _, t := range threats {
		if len(t.AffectedDataFlows) > 0 {
			flows++
		}
	}
	if flows > 0 {
		factors = append(factors, fmt.Sprintf("%d threats affect data flows in transit", flows))
	}
	return factors
}

// complianceControls names the control family a serious threat in each
// category leaves unsatisfied.
var complianceControls = map[tm.Category]string{
	tm.CategorySpoofing:              "Identification and authentication controls (ISO 27001 A.9, PCI DSS Req. 8)",
	tm.CategoryTampering:             "Data integrity controls (SOC 2 CC6.1, PCI DSS Req. 11)",
	tm.CategoryRepudiation:           "Audit logging controls (SOC 2 CC7.2, PCI DSS Req. 10)",
	tm.CategoryInformationDisclosure: "Data protection controls (GDPR Art. 32, PCI DSS Req. 3-4)",
	tm.CategoryDenialOfService:       "Availability controls (SOC 2 A1.2, ISO 27001 A.17)",
	tm.CategoryElevationOfPrivilege:  "Access control and least privilege (ISO 27001 A.9.2, NIST AC-6)",
}

func complianceGaps(threats []tm.IdentifiedThreat) []string {
	gaps := []string{}
	serious := seriousCategories(threats)
	for _, c := range tm.AllCategories {
		if serious[c] {
			gaps = append(gaps, complianceControls[c])
		}
	}
	return gaps
}

func seriousCategories(threats []tm.IdentifiedThreat) map[tm.Category]bool {
	out := make(map[tm.Category]bool)
	for _, t := range threats {
		if t.Severity == tm.SeverityHigh || t.Severity == tm.SeverityCritical {
			out[t.Category] = true
		}
	}
	return out
}

// LimitPerComponent keeps at most n threats, preferring the highest
// riskScore and preserving input order among the survivors. n <= 0 keeps all.
func LimitPerComponent(threats []tm.IdentifiedThreat, n int) []tm.IdentifiedThreat {
	if n <= 0 || len(threats) <= n {
		return threats
	}
	idx := make([]int, len(threats))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return threats[idx[a]].RiskScore > threats[idx[b]].RiskScore })
	keep := make(map[int]bool, n)
	for _, i := range idx[:n] {
		keep[i] = true
	}
	out := make([]tm.IdentifiedThreat, 0, n)
	for i, t := range threats {
		if keep[i] {
			out = append(out, t)
		}
	}
	return out
}

// LimitByComponent applies LimitPerComponent separately to each group of
// threats sharing the same affected components. Survivors keep their input
// order. n <= 0 keeps all.
func LimitByComponent(threats []tm.IdentifiedThreat, n int) []tm.IdentifiedThreat {
	if n <= 0 {
		return threats
	}
	groups := make(map[string][]int)
	for i, t := range threats {
		key := strings.Join(t.AffectedComponents, ",")
		groups[key] = append(groups[key], i)
	}
	keep := make([]bool, len(threats))
	for _, idx := range groups {
		if len(idx) <= n {
			for _, i := range idx {
				keep[i] = true
			}
			continue
		}
		sorted := append([]int(nil), idx...)
		sort.SliceStable(sorted, func(a, b int) bool { return threats[sorted[a]].RiskScore > threats[sorted[b]].RiskScore })
		for _, i := range sorted[:n] {
			keep[i] = true
		}
	}
	out := make([]tm.IdentifiedThreat, 0, len(threats))
	for i, t := range threats {
		if keep[i] {
			out = append(out, t)
		}
	}
	return out
}
