package threat

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

func th(sev tm.Severity, lik tm.Likelihood, cat tm.Category) tm.IdentifiedThreat {
	return Build(Draft{
		Title:      "t",
		Category:   cat,
		Severity:   sev,
		Likelihood: lik,
		Impact:     tm.ImpactMedium,
		Confidence: 0.8,
		Source:     tm.SourceRuleBased,
	})
}

func TestCalculateRiskScore_criticalMedium(t *testing.T) {
	if got := CalculateRiskScore(tm.SeverityCritical, tm.LikelihoodMedium); got != 12 {
		t.Errorf("critical x medium: got %v, want 12", got)
	}
}

func TestCalculateRiskScore_monotonic(t *testing.T) {
	sevs := []tm.Severity{tm.SeverityLow, tm.SeverityMedium, tm.SeverityHigh, tm.SeverityCritical}
	liks := []tm.Likelihood{tm.LikelihoodVeryLow, tm.LikelihoodLow, tm.LikelihoodMedium, tm.LikelihoodHigh, tm.LikelihoodVeryHigh}

	for _, l := range liks {
		prev := -1.0
		for _, s := range sevs {
			got := CalculateRiskScore(s, l)
			if got < prev {
				t.Errorf("severity %s with likelihood %s decreased score: %v < %v", s, l, got, prev)
			}
			prev = got
		}
	}
	for _, s := range sevs {
		prev := -1.0
		for _, l := range liks {
			got := CalculateRiskScore(s, l)
			if got < prev {
				t.Errorf("likelihood %s with severity %s decreased score: %v < %v", l, s, got, prev)
			}
			prev = got
		}
	}
}

func TestClampConfidence(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0.4: 0.4, 1.7: 1, math.NaN(): 0}
	for in, want := range cases {
		if got := ClampConfidence(in); got != want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestWeightedConfidence(t *testing.T) {
	if got := WeightedConfidence(1, 1, 0.85); got != 0.85 {
		t.Errorf("full match: got %v, want 0.85", got)
	}
	if got := WeightedConfidence(0, 0, 0.7); got != 0.7 {
		t.Errorf("no conditions: got %v, want 0.7", got)
	}
	if got := WeightedConfidence(0.5, 1, 0.8); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("half match: got %v, want 0.4", got)
	}
}

func TestAssessRisk_empty(t *testing.T) {
	ra := AssessRisk(nil)
	if ra.OverallRiskScore != 0 {
		t.Errorf("overall: got %v, want 0", ra.OverallRiskScore)
	}
	if ra.RiskLevel != tm.RiskLow {
		t.Errorf("level: got %q, want low", ra.RiskLevel)
	}
	if len(ra.RiskDistribution) != 4 {
		t.Errorf("distribution should list all severities, got %v", ra.RiskDistribution)
	}
	if ra.CriticalThreats == nil {
		t.Error("critical threats should be an empty slice, not nil")
	}
}

func TestAssessRisk_levels(t *testing.T) {
	repeat := func(n int, sev tm.Severity) []tm.IdentifiedThreat {
		var out []tm.IdentifiedThreat
		for i := 0; i < n; i++ {
			out = append(out, th(sev, tm.LikelihoodMedium, tm.CategoryTampering))
		}
		return out
	}

	cases := []struct {
		name    string
		threats []tm.IdentifiedThreat
		want    tm.RiskLevel
	}{
		{"one critical", repeat(1, tm.SeverityCritical), tm.RiskCritical},
		{"four high", repeat(4, tm.SeverityHigh), tm.RiskVeryHigh},
		{"three high", repeat(3, tm.SeverityHigh), tm.RiskHigh},
		{"six medium", repeat(6, tm.SeverityMedium), tm.RiskMedium},
		{"five medium", repeat(5, tm.SeverityMedium), tm.RiskLow},
		{"low only", repeat(8, tm.SeverityLow), tm.RiskLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AssessRisk(tc.threats).RiskLevel; got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAssessRisk_meanAndDistribution(t *testing.T) {
	threats := []tm.IdentifiedThreat{
		th(tm.SeverityCritical, tm.LikelihoodMedium, tm.CategoryInformationDisclosure), // 12
		th(tm.SeverityLow, tm.LikelihoodLow, tm.CategoryRepudiation),                   // 2
	}
	ra := AssessRisk(threats)
	if ra.OverallRiskScore != 7 {
		t.Errorf("overall: got %v, want 7", ra.OverallRiskScore)
	}
	if ra.RiskDistribution[tm.SeverityCritical] != 1 || ra.RiskDistribution[tm.SeverityLow] != 1 {
		t.Errorf("distribution: got %v", ra.RiskDistribution)
	}
	if len(ra.CriticalThreats) != 1 {
		t.Errorf("critical threats: got %d, want 1", len(ra.CriticalThreats))
	}
	if len(ra.ComplianceGaps) != 1 {
		t.Errorf("compliance gaps: got %v, want one", ra.ComplianceGaps)
	}
}

func TestCriticalThreats_sortedAndCapped(t *testing.T) {
	var threats []tm.IdentifiedThreat
	for i := 0; i < 12; i++ {
		threats = append(threats, th(tm.SeverityHigh, tm.LikelihoodVeryHigh, tm.CategorySpoofing)) // 15
	}
	threats = append(threats, th(tm.SeverityCritical, tm.LikelihoodVeryHigh, tm.CategorySpoofing)) // 20
	threats = append(threats, th(tm.SeverityHigh, tm.LikelihoodHigh, tm.CategorySpoofing))         // 12, excluded

	got := CriticalThreats(threats)
	if len(got) != 10 {
		t.Fatalf("expected 10 critical threats, got %d", len(got))
	}
	if got[0].RiskScore != 20 {
		t.Errorf("first critical threat score: got %v, want 20", got[0].RiskScore)
	}
	for i := 1; i < len(got); i++ {
		if got[i].RiskScore > got[i-1].RiskScore {
			t.Fatalf("not sorted descending at %d", i)
		}
	}
}

func TestAssessRiskWeighted(t *testing.T) {
	crit := []tm.IdentifiedThreat{th(tm.SeverityCritical, tm.LikelihoodMedium, tm.CategoryTampering)}

	if got := AssessRiskWeighted(crit, 1.0).RiskLevel; got != tm.RiskVeryHigh {
		t.Errorf("critical without amplification: got %q, want very_high", got)
	}
	ra := AssessRiskWeighted(crit, 1.5)
	if ra.RiskLevel != tm.RiskCritical {
		t.Errorf("critical with amplification: got %q, want critical", ra.RiskLevel)
	}
	if ra.OverallRiskScore != 18 {
		t.Errorf("overall: got %v, want 18", ra.OverallRiskScore)
	}

	var high []tm.IdentifiedThreat
	for i := 0; i < 4; i++ {
		high = append(high, th(tm.SeverityHigh, tm.LikelihoodMedium, tm.CategoryTampering))
	}
	if got := AssessRiskWeighted(high, 1.0).RiskLevel; got != tm.RiskHigh {
		t.Errorf("four high without amplification: got %q, want high", got)
	}
	if got := AssessRiskWeighted(high, 1.5).RiskLevel; got != tm.RiskVeryHigh {
		t.Errorf("four high with amplification: got %q, want very_high", got)
	}
}

func TestLimitPerComponent(t *testing.T) {
	threats := []tm.IdentifiedThreat{
		th(tm.SeverityLow, tm.LikelihoodLow, tm.CategorySpoofing),         // 2
		th(tm.SeverityCritical, tm.LikelihoodHigh, tm.CategorySpoofing),   // 16
		th(tm.SeverityMedium, tm.LikelihoodMedium, tm.CategorySpoofing),   // 6
		th(tm.SeverityHigh, tm.LikelihoodVeryHigh, tm.CategorySpoofing),   // 15
	}
	got := LimitPerComponent(threats, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if got[0].RiskScore != 16 || got[1].RiskScore != 15 {
		t.Errorf("kept scores %v, %v; want 16, 15", got[0].RiskScore, got[1].RiskScore)
	}
	if len(LimitPerComponent(threats, 0)) != 4 {
		t.Error("n=0 should keep every threat")
	}
}

func TestLimitByComponent(t *testing.T) {
	threats := []tm.IdentifiedThreat{
		{Title: "a-low", RiskScore: 2, AffectedComponents: []string{"a"}},
		{Title: "b-only", RiskScore: 1, AffectedComponents: []string{"b"}},
		{Title: "a-high", RiskScore: 12, AffectedComponents: []string{"a"}},
		{Title: "flow", RiskScore: 6, AffectedComponents: []string{"a", "b"}},
	}
	got := LimitByComponent(threats, 1)
	var titles []string
	for _, th := range got {
		titles = append(titles, th.Title)
	}
	if want := "b-only,a-high,flow"; strings.Join(titles, ",") != want {
		t.Errorf("kept %v, want %s", titles, want)
	}
}

func TestStepRecorder(t *testing.T) {
	r := NewStepRecorder("stride", "one", "two", "three")

	if err := r.Run(context.Background(), "one", func() error { return nil }); err != nil {
		t.Fatalf("stage one: %v", err)
	}
	boom := errors.New("boom")
	err := r.Run(context.Background(), "two", func() error { return boom })

	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StageError, got %T", err)
	}
	if se.Stage != "two" || !errors.Is(err, boom) {
		t.Errorf("stage error: got %+v", se)
	}

	steps := r.Steps()
	want := []tm.StepStatus{tm.StepCompleted, tm.StepFailed, tm.StepPending}
	for i, s := range steps {
		if s.Status != want[i] {
			t.Errorf("step %q: got %q, want %q", s.Name, s.Status, want[i])
		}
	}
	if steps[1].Error != "boom" {
		t.Errorf("step error text: got %q", steps[1].Error)
	}
}

func TestStepRecorder_panicFailsStage(t *testing.T) {
	r := NewStepRecorder("pasta", "explode")
	err := r.Run(context.Background(), "explode", func() error { panic("bad heuristic") })
	if err == nil {
		t.Fatal("expected error from panicking stage")
	}
	if r.Steps()[0].Status != tm.StepFailed {
		t.Errorf("status: got %q, want failed", r.Steps()[0].Status)
	}
}

func TestStepRecorder_cancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	r := NewStepRecorder("stride", "stage")
	err := r.Run(ctx, "stage", func() error { called = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("stage should not run on a cancelled context")
	}
}
