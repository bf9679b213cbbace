package analysis

import (
	"testing"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

func TestTitleSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"Sensitive Data Exposure in DB", "Sensitive Data Exposure in Db", 1},
		{"SQL Injection in API", "Cross-Site Scripting in API", 2.0 / 6.0},
		{"a b c d", "a b c e", 3.0 / 5.0},
		{"", "", 1},
		{"x", "", 0},
	}
	for _, tc := range cases {
		if got := TitleSimilarity(tc.a, tc.b); got != tc.want {
			t.Errorf("TitleSimilarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestIsDuplicate(t *testing.T) {
	base := tm.IdentifiedThreat{
		Title:              "Sensitive Data Exposure in DB",
		Category:           tm.CategoryInformationDisclosure,
		AffectedComponents: []string{"c1", "c2"},
	}

	same := base
	same.Title = "sensitive data exposure in db"
	same.AffectedComponents = []string{"c2", "c1"}
	if !IsDuplicate(base, same) {
		t.Error("reordered components with matching title should be a duplicate")
	}

	otherCat := same
	otherCat.Category = tm.CategoryTampering
	if IsDuplicate(base, otherCat) {
		t.Error("different category must not be a duplicate")
	}

	otherComps := same
	otherComps.AffectedComponents = []string{"c1"}
	if IsDuplicate(base, otherComps) {
		t.Error("different component set must not be a duplicate")
	}

	// Jaccard of exactly 0.7 does not exceed the threshold.
	a := tm.IdentifiedThreat{Title: "a b c d e f g h", Category: tm.CategorySpoofing}
	b := tm.IdentifiedThreat{Title: "a b c d e f g i j", Category: tm.CategorySpoofing}
	if got := TitleSimilarity(a.Title, b.Title); got != 0.7 {
		t.Fatalf("fixture similarity: got %v", got)
	}
	if IsDuplicate(a, b) {
		t.Error("similarity of 0.7 must not count as duplicate")
	}
}

func TestDeduplicate_mergesIntoFirstSeen(t *testing.T) {
	dread := &tm.DreadScore{OverallScore: 9}
	threats := []tm.IdentifiedThreat{
		{ID: "t1", Title: "Sensitive Data Exposure in DB", Category: tm.CategoryInformationDisclosure,
			AffectedComponents: []string{"c1"}, Confidence: 0.7, RiskScore: 8, Severity: tm.SeverityHigh},
		{ID: "t2", Title: "Unrelated", Category: tm.CategorySpoofing, AffectedComponents: []string{"c1"}},
		{ID: "t3", Title: "Sensitive Data Exposure in Db", Category: tm.CategoryInformationDisclosure,
			AffectedComponents: []string{"c1"}, Confidence: 0.9, RiskScore: 12, Severity: tm.SeverityCritical, Dread: dread},
	}

	got := Deduplicate(threats)
	if len(got) != 2 {
		t.Fatalf("expected 2 threats, got %d", len(got))
	}
	kept := got[0]
	if kept.ID != "t1" {
		t.Errorf("survivor should be first seen, got %q", kept.ID)
	}
	if kept.Confidence != 0.9 {
		t.Errorf("confidence: got %v, want 0.9", kept.Confidence)
	}
	if kept.RiskScore != 12 || kept.Severity != tm.SeverityCritical {
		t.Errorf("expected higher risk adopted, got %v/%q", kept.RiskScore, kept.Severity)
	}
	if kept.Dread == nil || kept.Dread.OverallScore != 9 {
		t.Errorf("expected DREAD breakdown adopted, got %+v", kept.Dread)
	}
	if threats[0].Confidence != 0.7 {
		t.Error("input slice must not be modified")
	}
}

func TestDeduplicate_lowerRiskDuplicateKeepsSeverity(t *testing.T) {
	threats := []tm.IdentifiedThreat{
		{Title: "Weak Auth on API", Category: tm.CategorySpoofing, AffectedComponents: []string{"api"},
			Confidence: 0.6, RiskScore: 12, Severity: tm.SeverityCritical},
		{Title: "weak auth on api", Category: tm.CategorySpoofing, AffectedComponents: []string{"api"},
			Confidence: 0.8, RiskScore: 6, Severity: tm.SeverityMedium},
	}
	got := Deduplicate(threats)
	if len(got) != 1 {
		t.Fatalf("expected 1 threat, got %d", len(got))
	}
	if got[0].Severity != tm.SeverityCritical || got[0].RiskScore != 12 || got[0].Confidence != 0.8 {
		t.Errorf("merge result: %+v", got[0])
	}
}

func TestDeduplicate_idempotent(t *testing.T) {
	threats := []tm.IdentifiedThreat{
		{Title: "a b c d e", Category: tm.CategoryTampering, AffectedComponents: []string{"x"}, Confidence: 0.5},
		{Title: "a b c d e f", Category: tm.CategoryTampering, AffectedComponents: []string{"x"}, Confidence: 0.7},
		{Title: "a b c d e f g h", Category: tm.CategoryTampering, AffectedComponents: []string{"x"}},
		{Title: "z", Category: tm.CategoryTampering, AffectedComponents: []string{"x"}},
	}
	once := Deduplicate(threats)
	twice := Deduplicate(once)
	if len(once) != len(twice) {
		t.Fatalf("second pass merged further: %d -> %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Title != twice[i].Title || once[i].Confidence != twice[i].Confidence {
			t.Errorf("threat %d changed on second pass", i)
		}
	}
}
