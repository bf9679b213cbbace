package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jmerrifield20/threatlens/internal/pattern"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// stubAnalyzer maps threat model ids to a fixed risk level; "broken" fails.
type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, req *tm.Request) (*tm.Response, error) {
	if req.ThreatModelID == "broken" {
		return nil, errors.New("boom")
	}
	level := tm.RiskLow
	if req.ThreatModelID == "exposed" {
		level = tm.RiskVeryHigh
	}
	return &tm.Response{
		ThreatModelID:  req.ThreatModelID,
		Methodology:    tm.MethodologySTRIDE,
		RiskAssessment: tm.RiskAssessment{RiskLevel: level, OverallRiskScore: 3},
		Threats: []tm.IdentifiedThreat{
			{Title: "Minor", Severity: tm.SeverityLow, RiskScore: 2, Category: tm.CategoryRepudiation},
			{Title: "Major", Severity: tm.SeverityHigh, RiskScore: 8, Category: tm.CategorySpoofing, AffectedComponents: []string{"api"}},
		},
	}, nil
}

func TestAnalyzeAll_keepsInputOrder(t *testing.T) {
	ids := []string{"internal", "exposed", "broken", "internal-2"}
	reqs := make([]*tm.Request, len(ids))
	for i, id := range ids {
		reqs[i] = &tm.Request{ThreatModelID: id}
	}

	rows := analyzeAll(context.Background(), stubAnalyzer{}, ids, reqs, 2)
	for i, r := range rows {
		if r.path != ids[i] {
			t.Errorf("row %d path = %q, want %q", i, r.path, ids[i])
		}
	}
	if rows[2].err == nil || rows[2].resp != nil {
		t.Errorf("broken row = %+v, want error", rows[2])
	}

	if got := exceeding(rows, tm.RiskHigh); len(got) != 1 || got[0] != "exposed" {
		t.Errorf("exceeding(high) = %v", got)
	}
	if got := exceeding(rows, tm.RiskLow); len(got) != 3 {
		t.Errorf("exceeding(low) = %v, want the three successful rows", got)
	}
}

func TestPrintAnalysisText(t *testing.T) {
	resp, _ := stubAnalyzer{}.Analyze(context.Background(), &tm.Request{ThreatModelID: "exposed"})
	rows := []analysisRow{
		{path: "a.yaml", resp: resp},
		{path: "b.yaml", err: errors.New("boom")},
	}

	var buf bytes.Buffer
	if err := printAnalysisText(&buf, rows); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Risk:        very_high", "b.yaml: error: boom", "SEVERITY"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Major") > strings.Index(out, "Minor") {
		t.Error("threats should be listed highest score first")
	}
}

func TestPrintAnalysisStructured_singleUnwrapped(t *testing.T) {
	resp, _ := stubAnalyzer{}.Analyze(context.Background(), &tm.Request{ThreatModelID: "internal"})

	var buf bytes.Buffer
	if err := printAnalysisStructured(&buf, []analysisRow{{path: "a.json", resp: resp}}, "json"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"threatModelId": "internal"`) || strings.Contains(buf.String(), `"file"`) {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	rows := []analysisRow{{path: "a.yaml", resp: resp}, {path: "b.yaml", err: errors.New("boom")}}
	if err := printAnalysisStructured(&buf, rows, "yaml"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "file: b.yaml") || !strings.Contains(buf.String(), "error: boom") {
		t.Errorf("unexpected yaml:\n%s", buf.String())
	}
}

func TestFilterPatterns(t *testing.T) {
	ps := pattern.BuiltinPatterns()

	all := filterPatterns(ps, "", "")
	if len(all) != len(ps) {
		t.Errorf("unfiltered = %d, want %d", len(all), len(ps))
	}
	for _, p := range filterPatterns(ps, tm.CategoryTampering, tm.ComponentProcess) {
		if p.Category != tm.CategoryTampering {
			t.Errorf("pattern %s has category %s", p.ID, p.Category)
		}
	}
}
