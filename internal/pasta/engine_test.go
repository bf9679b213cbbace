package pasta

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/mitigation"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

func newTestEngine() *Engine {
	return NewEngine(mitigation.NewEngine(mitigation.BuiltinRules(), zap.NewNop()), zap.NewNop())
}

func shopRequest() *tm.Request {
	return &tm.Request{
		ThreatModelID: "tm-shop",
		Methodology:   tm.MethodologyPASTA,
		Components: []tm.Component{
			{ID: "web", Name: "Storefront", Type: tm.ComponentProcess,
				Properties: tm.ComponentProperties{InternetFacing: true, Protocols: []string{"http"}, Technology: "nginx"}},
			{ID: "admin", Name: "Back Office", Type: tm.ComponentProcess,
				Properties: tm.ComponentProperties{Privileged: true, Authentication: []string{"sso"}, Protocols: []string{"grpc"}}},
			{ID: "db", Name: "Orders DB", Type: tm.ComponentDataStore,
				Properties: tm.ComponentProperties{Sensitive: true, Authentication: []string{"password"}, Technology: "postgres"}},
		},
		DataFlows: []tm.DataFlow{
			{ID: "f1", SourceID: "web", TargetID: "db"},
			{ID: "f2", SourceID: "admin", TargetID: "db"},
		},
	}
}

func TestAnalyze_sevenStages(t *testing.T) {
	resp, err := newTestEngine().Analyze(context.Background(), shopRequest())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	steps := resp.AnalysisMetadata.ProcessingSteps
	want := []string{StageObjectives, StageScope, StageDecomposition, StageThreats, StageWeaknesses, StageAttacks, StageRisk}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
	for i, s := range steps {
		if s.Name != want[i] || s.Status != tm.StepCompleted {
			t.Errorf("step %d: got %q/%q, want %q/completed", i, s.Name, s.Status, want[i])
		}
	}
	if resp.Methodology != tm.MethodologyPASTA {
		t.Errorf("methodology: got %q", resp.Methodology)
	}
	if resp.Confidence != ThreatConfidence {
		t.Errorf("confidence: got %v, want %v", resp.Confidence, ThreatConfidence)
	}
	if resp.AnalysisMetadata.Pasta == nil {
		t.Fatal("expected PASTA artifacts in metadata")
	}
}

func TestAnalyze_defaultObjectivesAndMultiplier(t *testing.T) {
	resp, err := newTestEngine().Analyze(context.Background(), shopRequest())
	if err != nil {
		t.Fatal(err)
	}
	rep := resp.AnalysisMetadata.Pasta
	if len(rep.Objectives) != 3 {
		t.Fatalf("expected 3 default objectives, got %d", len(rep.Objectives))
	}
	if rep.BusinessImpactMultiplier != 1.5 {
		t.Errorf("multiplier: got %v, want 1.5", rep.BusinessImpactMultiplier)
	}
	// Critical data breach threat with amplification.
	if resp.RiskAssessment.RiskLevel != tm.RiskCritical {
		t.Errorf("risk level: got %q, want critical", resp.RiskAssessment.RiskLevel)
	}
}

func TestAnalyze_lowImpactObjectivesDampenLevel(t *testing.T) {
	req := shopRequest()
	req.SecurityRequirements = []tm.SecurityRequirement{
		{ID: "r1", Category: tm.RequirementAvailability, Requirement: "Best-effort uptime", Priority: tm.SeverityLow},
	}
	resp, err := newTestEngine().Analyze(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	rep := resp.AnalysisMetadata.Pasta
	if len(rep.Objectives) != 1 || rep.Objectives[0].BusinessImpact != tm.SeverityLow {
		t.Fatalf("objectives: got %+v", rep.Objectives)
	}
	if rep.BusinessImpactMultiplier != 1.0 {
		t.Errorf("multiplier: got %v, want 1.0", rep.BusinessImpactMultiplier)
	}
	if resp.RiskAssessment.RiskLevel != tm.RiskVeryHigh {
		t.Errorf("risk level: got %q, want very_high without amplification", resp.RiskAssessment.RiskLevel)
	}
}

func TestDefineScope(t *testing.T) {
	scope := defineScope(shopRequest().Components)
	if len(scope.NetworkSegments) != 2 {
		t.Errorf("network segments: got %v", scope.NetworkSegments)
	}
	want := map[tm.TrustBoundaryKind]bool{
		tm.BoundaryInternetInternal: true,
		tm.BoundaryUserAdmin:        true,
		tm.BoundaryPublicSensitive:  true,
	}
	if len(scope.TrustBoundaries) != len(want) {
		t.Fatalf("trust boundaries: got %v", scope.TrustBoundaries)
	}
	for _, b := range scope.TrustBoundaries {
		if !want[b] {
			t.Errorf("unexpected boundary %q", b)
		}
	}
	if len(scope.Technologies) != 2 || scope.Technologies[0] != "nginx" {
		t.Errorf("technologies: got %v", scope.Technologies)
	}
}

func TestAssetValue(t *testing.T) {
	tests := []struct {
		sensitive, privileged bool
		want                  tm.Severity
	}{
		{true, true, tm.SeverityCritical},
		{true, false, tm.SeverityHigh},
		{false, true, tm.SeverityMedium},
		{false, false, tm.SeverityLow},
	}
	for _, tt := range tests {
		c := &tm.Component{Properties: tm.ComponentProperties{Sensitive: tt.sensitive, Privileged: tt.privileged}}
		if got := assetValue(c); got != tt.want {
			t.Errorf("assetValue(sensitive=%v, privileged=%v) = %q, want %q", tt.sensitive, tt.privileged, got, tt.want)
		}
	}

	// An internal, unprivileged sensitive store is still a high-value asset.
	store := &tm.Component{Properties: tm.ComponentProperties{Sensitive: true, InternetFacing: false}}
	if got := assetValue(store); got != tm.SeverityHigh {
		t.Errorf("internal sensitive store = %q, want high", got)
	}
}

func TestDecompose(t *testing.T) {
	d := decompose(shopRequest())

	if len(d.EntryPoints) != 1 {
		t.Fatalf("entry points: got %d, want 1", len(d.EntryPoints))
	}
	ep := d.EntryPoints[0]
	if ep.Type != "ui" || ep.AccessLevel != "public" {
		t.Errorf("entry point: got type %q access %q", ep.Type, ep.AccessLevel)
	}
	if len(d.Assets) != 1 || d.Assets[0].Classification != "restricted" || d.Assets[0].Value != tm.SeverityHigh {
		t.Errorf("assets: got %+v", d.Assets)
	}
	if len(d.Services) != 2 {
		t.Fatalf("services: got %d, want 2", len(d.Services))
	}
	if d.Services[1].Privilege != "admin" || len(d.Services[1].Dependencies) != 1 {
		t.Errorf("admin service: got %+v", d.Services[1])
	}
	if len(d.Dependencies) != 2 {
		t.Errorf("dependencies: got %v", d.Dependencies)
	}
}

func TestAnalyzeThreats_perArtifact(t *testing.T) {
	req := shopRequest()
	scope := defineScope(req.Components)
	threats := analyzeThreats(req, scope, decompose(req))

	seen := map[string]tm.Severity{}
	for _, th := range threats {
		seen[th.Title] = th.Severity
		if th.Confidence != ThreatConfidence {
			t.Errorf("%q confidence %v", th.Title, th.Confidence)
		}
	}
	expect := map[string]tm.Severity{
		"Unauthenticated Access via Storefront":                   tm.SeverityHigh,
		"Cleartext Traffic at Storefront":                         tm.SeverityMedium,
		"Data Breach of Orders DB":                                tm.SeverityCritical,
		"Administrative Privilege Abuse in Back Office":           tm.SeverityHigh,
		"Cascading Failure of Storefront":                         tm.SeverityMedium,
		"Trust Boundary Bypass: " + string(tm.BoundaryUserAdmin): tm.SeverityMedium,
	}
	for title, sev := range expect {
		got, ok := seen[title]
		if !ok {
			t.Errorf("missing threat %q", title)
			continue
		}
		if got != sev {
			t.Errorf("%q severity: got %q, want %q", title, got, sev)
		}
	}
}

func TestAnalyzeWeaknesses(t *testing.T) {
	ws := analyzeWeaknesses(shopRequest().Components)
	cwes := map[string]int{}
	for _, w := range ws {
		cwes[w.CWE]++
	}
	if cwes["CWE-306"] != 1 { // storefront
		t.Errorf("CWE-306: got %d, want 1", cwes["CWE-306"])
	}
	if cwes["CWE-311"] != 1 { // orders db
		t.Errorf("CWE-311: got %d, want 1", cwes["CWE-311"])
	}
	if cwes["CWE-862"] != 1 { // storefront
		t.Errorf("CWE-862: got %d, want 1", cwes["CWE-862"])
	}
}

func TestModelAttacks(t *testing.T) {
	req := shopRequest()
	threats := analyzeThreats(req, defineScope(req.Components), decompose(req))
	scenarios := modelAttacks(threats, req.Components)

	highOrCritical := 0
	for _, th := range threats {
		if th.Severity == tm.SeverityHigh || th.Severity == tm.SeverityCritical {
			highOrCritical++
		}
	}
	if len(scenarios) != highOrCritical {
		t.Fatalf("expected one scenario per high/critical threat (%d), got %d", highOrCritical, len(scenarios))
	}
	for _, s := range scenarios {
		if len(s.Chain) != 3 || s.Chain[0].Phase != "Reconnaissance" || s.Chain[2].Phase != "Exploit" {
			t.Errorf("attack chain: got %+v", s.Chain)
		}
	}

	crit := tm.IdentifiedThreat{Severity: tm.SeverityCritical, Category: tm.CategoryElevationOfPrivilege}
	if a := threatActor(crit); a != "advanced_persistent_threat" {
		t.Errorf("critical actor: got %q", a)
	}
	eop := tm.IdentifiedThreat{Severity: tm.SeverityHigh, Category: tm.CategoryElevationOfPrivilege}
	if a := threatActor(eop); a != "insider" {
		t.Errorf("EoP actor: got %q", a)
	}
	spoof := tm.IdentifiedThreat{Severity: tm.SeverityHigh, Category: tm.CategorySpoofing}
	if a := threatActor(spoof); a != "external_attacker" {
		t.Errorf("spoofing actor: got %q", a)
	}
}

func TestAnalyze_cancelledContextFailsFirstStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestEngine().Analyze(ctx, shopRequest()); err == nil {
		t.Fatal("expected error")
	}
}
