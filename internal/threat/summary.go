package threat

import (
	"fmt"
	"time"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// Advice returns the top-level recommendations reported in analysis
// metadata for a risk assessment.
func Advice(ra tm.RiskAssessment, mitigations []tm.MitigationRecommendation) []string {
	out := []string{}
	if n := ra.RiskDistribution[tm.SeverityCritical]; n > 0 {
		out = append(out, fmt.Sprintf("Remediate the %d critical threats before release", n))
	}
	if n := ra.RiskDistribution[tm.SeverityHigh]; n > 0 {
		out = append(out, fmt.Sprintf("Schedule fixes for the %d high-severity threats", n))
	}
	immediate := 0
	for _, m := range mitigations {
		if m.Priority == tm.PriorityImmediate {
			immediate++
		}
	}
	if immediate > 0 {
		out = append(out, fmt.Sprintf("Start with the %d immediate-priority mitigations", immediate))
	}
	if len(ra.ComplianceGaps) > 0 {
		out = append(out, "Review compliance gaps with the control owners")
	}
	if len(out) == 0 {
		out = append(out, "No significant threats found; re-run the analysis when the architecture changes")
	}
	return out
}

// Rates returns threats and components processed per second over elapsed.
func Rates(threats, components int, elapsed time.Duration) tm.Throughput {
	secs := elapsed.Seconds()
	if secs <= 0 {
		secs = 1e-3
	}
	return tm.Throughput{
		ThreatsPerSecond:    Round2(float64(threats) / secs),
		ComponentsPerSecond: Round2(float64(components) / secs),
	}
}
