// Package dread rates threats on the five DREAD dimensions (Damage,
// Reproducibility, Exploitability, Affected users, Discoverability) using
// additive heuristics over the threat's affected components.
package dread

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/threat"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

const (
	minScore = 1
	maxScore = 10
	// maxDamageContribution caps the category contributions before the
	// base of 1 is added.
	maxDamageContribution = 9
)

// Calculator computes DREAD scores.
type Calculator struct {
	logger *zap.Logger
}

// NewCalculator returns a Calculator.
func NewCalculator(logger *zap.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// Score computes the DREAD rating of t. components is the full component
// list of the analysis; only those t affects are considered.
func (c *Calculator) Score(t tm.IdentifiedThreat, components []tm.Component) (tm.DreadScore, error) {
	tr := collectTraits(affected(t, components))
	complexity := averageComplexity(t.AttackVectors)

	s := tm.DreadScore{
		Damage:          damage(t.Category, tr),
		Reproducibility: reproducibility(complexity, tr),
		Exploitability:  exploitability(complexity, tr),
		AffectedUsers:   affectedUsers(tr),
		Discoverability: discoverability(tr),
	}
	dims := []struct {
		name string
		v    float64
	}{
		{"damage", s.Damage},
		{"reproducibility", s.Reproducibility},
		{"exploitability", s.Exploitability},
		{"affected_users", s.AffectedUsers},
		{"discoverability", s.Discoverability},
	}
	var sum float64
	for _, d := range dims {
		if math.IsNaN(d.v) || d.v < minScore || d.v > maxScore {
			return tm.DreadScore{}, &threat.DreadRangeError{Dimension: d.name, Value: d.v}
		}
		sum += d.v
	}
	s.OverallScore = sum / float64(len(dims))
	return s, nil
}

// UpdateThreat returns a copy of t rescored from its DREAD rating: the
// severity becomes RiskLevel(overall), the riskScore overall × 2 and the
// breakdown is attached.
func (c *Calculator) UpdateThreat(t tm.IdentifiedThreat, components []tm.Component) (tm.IdentifiedThreat, error) {
	s, err := c.Score(t, components)
	if err != nil {
		return tm.IdentifiedThreat{}, fmt.Errorf("score threat %q: %w", t.Title, err)
	}
	out := t.Clone()
	out.Dread = &s
	out.Severity = RiskLevel(s.OverallScore)
	out.RiskScore = threat.Round2(s.OverallScore * 2)
	return out, nil
}

// UpdateAll rescores every threat independently.
func (c *Calculator) UpdateAll(threats []tm.IdentifiedThreat, components []tm.Component) ([]tm.IdentifiedThreat, error) {
	out := make([]tm.IdentifiedThreat, 0, len(threats))
	for _, t := range threats {
		u, err := c.UpdateThreat(t, components)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	c.logger.Debug("dread rescoring complete", zap.Int("threats", len(out)))
	return out, nil
}

// RiskLevel maps an overall DREAD score to a severity.
func RiskLevel(score float64) tm.Severity {
	switch {
	case score >= 8.5:
		return tm.SeverityCritical
	case score >= 6.5:
		return tm.SeverityHigh
	case score >= 4.5:
		return tm.SeverityMedium
	default:
		return tm.SeverityLow
	}
}

func affected(t tm.IdentifiedThreat, components []tm.Component) []tm.Component {
	var out []tm.Component
	for _, c := range components {
		for _, id := range t.AffectedComponents {
			if c.ID == id {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// averageComplexity is the mean complexity weight of the attack vectors,
// 2 (medium) when there are none.
func averageComplexity(vectors []tm.AttackVector) float64 {
	if len(vectors) == 0 {
		return 2
	}
	var sum int
	for _, v := range vectors {
		sum += v.Complexity.Weight()
	}
	return float64(sum) / float64(len(vectors))
}

func clamp(v float64) float64 {
	return math.Max(minScore, math.Min(maxScore, v))
}

// ── Dimensions ────────────────────────────────────────────────────────────────

func damage(cat tm.Category, tr traits) float64 {
	var d float64
	switch cat {
	case tm.CategoryInformationDisclosure:
		d += when(tr.sensitive, 3) + when(tr.regulatory, 4) + when(tr.internetFacing, 2) + when(tr.dataStore, 1)
	case tm.CategoryTampering:
		d += when(tr.sensitive, 2) + when(tr.privileged, 3) + when(tr.dataStore, 2) + when(tr.noIntegrity, 2)
	case tm.CategoryDenialOfService:
		d += when(tr.coreBusiness, 4) + when(tr.shared, 3) + when(tr.internetFacing, 2)
	case tm.CategoryElevationOfPrivilege:
		d += when(tr.privileged, 5) + when(tr.privileged && tr.internetFacing, 3) + when(tr.sensitive, 1)
	case tm.CategorySpoofing:
		d += when(tr.privileged, 4) + when(tr.sensitive, 3) + when(tr.internetFacing, 2)
	case tm.CategoryRepudiation:
		d += when(tr.sensitive, 2) + when(tr.privileged, 2) + when(tr.noLogging, 3)
	default:
		d += 3
	}
	return 1 + math.Min(maxDamageContribution, d)
}

func reproducibility(complexity float64, tr traits) float64 {
	base := complexityBase(complexity, 7, 5, 3)
	base += when(tr.internetFacing, 2) + when(tr.weakAuth, 2) + when(tr.noEncryption, 1) + when(tr.documentedProtocol, 1)
	base -= when(tr.custom, 1)
	return clamp(base)
}

func exploitability(complexity float64, tr traits) float64 {
	base := complexityBase(complexity, 8, 5, 2)
	base += when(tr.internetFacing, 2) + when(tr.weakAuth, 3) + when(tr.noEncryption, 1) + when(tr.documentedProtocol, 1)
	base -= when(tr.custom, 2)
	return clamp(base)
}

func affectedUsers(tr traits) float64 {
	u := 1.0
	u += when(tr.internetFacing, 4) + when(tr.coreBusiness, 3) + when(tr.shared, 2) + when(tr.dataStore, 2)
	return clamp(u)
}

func discoverability(tr traits) float64 {
	d := 5.0
	d += when(tr.internetFacing, 3) + when(tr.wellKnownTech, 2) + when(tr.defaultConfig, 2)
	d -= when(tr.hidden, 3) + when(tr.obscurity, 1)
	return clamp(d)
}

// complexityBase picks the base for low, medium or high average complexity.
func complexityBase(avg, low, medium, high float64) float64 {
	switch {
	case avg <= 1.5:
		return low
	case avg <= 2.5:
		return medium
	default:
		return high
	}
}

func when(cond bool, v float64) float64 {
	if cond {
		return v
	}
	return 0
}
