package pattern

import (
	"strings"

	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/threat"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// ConfidenceFloor is the minimum confidence at which a pattern match is
// surfaced as a threat.
const ConfidenceFloor = 0.6

// Matcher evaluates a pattern catalog against components.
type Matcher struct {
	catalog *Catalog
	logger  *zap.Logger
}

// NewMatcher returns a Matcher reading from catalog.
func NewMatcher(catalog *Catalog, logger *zap.Logger) *Matcher {
	return &Matcher{catalog: catalog, logger: logger}
}

// Catalog returns the matcher's pattern catalog.
func (m *Matcher) Catalog() *Catalog { return m.catalog }

// FindThreats returns a threat for every applicable pattern whose confidence
// reaches ConfidenceFloor. An empty category matches every category.
func (m *Matcher) FindThreats(c *tm.Component, category tm.Category) []tm.IdentifiedThreat {
	var out []tm.IdentifiedThreat
	for _, p := range m.candidates(c, category) {
		conf := Score(p, c)
		if conf < ConfidenceFloor {
			continue
		}
		out = append(out, instantiate(p, c, conf))
	}
	if len(out) > 0 {
		m.logger.Debug("pattern matches",
			zap.String("component", c.ID),
			zap.String("category", string(category)),
			zap.Int("threats", len(out)),
		)
	}
	return out
}

// candidates filters the snapshot by component type, category and the
// existence pre-filter.
func (m *Matcher) candidates(c *tm.Component, category tm.Category) []Pattern {
	var out []Pattern
	for _, p := range m.catalog.Snapshot() {
		if !p.AppliesTo(c.Type) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if !matchable(p, c) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchable(p Pattern, c *tm.Component) bool {
	for _, cond := range p.Conditions {
		if !cond.Matchable(c) {
			return false
		}
	}
	return true
}

// Score is (matched weight / total weight) × base confidence. A pattern
// without conditions scores its base confidence.
func Score(p Pattern, c *tm.Component) float64 {
	var matched, total float64
	for _, cond := range p.Conditions {
		total += cond.Weight
		if cond.Evaluate(c) {
			matched += cond.Weight
		}
	}
	return threat.WeightedConfidence(matched, total, p.Confidence)
}

func instantiate(p Pattern, c *tm.Component, conf float64) tm.IdentifiedThreat {
	vectors := make([]tm.AttackVector, len(p.Template.AttackVectors))
	for i, v := range p.Template.AttackVectors {
		v.Requirements = append([]string(nil), v.Requirements...)
		v.Mitigations = append([]string(nil), v.Mitigations...)
		vectors[i] = v
	}
	impact := p.Template.Impact
	if impact == "" {
		impact = tm.ImpactMedium
	}
	return threat.Build(threat.Draft{
		Title:       fill(p.Template.Title, c),
		Description: fill(p.Template.Description, c),
		Category:    p.Category,
		Severity:    p.Template.Severity,
		Likelihood:  p.Template.Likelihood,
		Impact:      impact,
		Components:  []string{c.ID},
		Vectors:     vectors,
		Confidence:  conf,
		Source:      tm.SourcePatternMatching,
		PatternID:   p.ID,
	})
}

func fill(s string, c *tm.Component) string {
	return strings.ReplaceAll(s, "{component}", c.Name)
}

// Patterns returns a copy of every pattern in the catalog.
func (m *Matcher) Patterns() []Pattern { return m.catalog.List() }

// AddPattern adds p to the catalog.
func (m *Matcher) AddPattern(p Pattern) error {
	if err := m.catalog.Add(p); err != nil {
		return err
	}
	m.logger.Info("pattern added", zap.String("id", p.ID))
	return nil
}

// RemovePattern deletes the pattern with the given id.
func (m *Matcher) RemovePattern(id string) error {
	if err := m.catalog.Remove(id); err != nil {
		return err
	}
	m.logger.Info("pattern removed", zap.String("id", id))
	return nil
}

// UpdatePattern applies a partial update to the pattern with the given id.
func (m *Matcher) UpdatePattern(id string, u Update) (Pattern, error) {
	p, err := m.catalog.Update(id, u)
	if err != nil {
		return Pattern{}, err
	}
	m.logger.Info("pattern updated", zap.String("id", id))
	return p, nil
}
