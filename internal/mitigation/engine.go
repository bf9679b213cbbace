// Package mitigation turns identified threats into prioritised
// remediation plans.
package mitigation

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/threat"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// Engine generates mitigation recommendations.
type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

// NewEngine returns an Engine using rules. Pass BuiltinRules() for the
// default rule set.
func NewEngine(rules []Rule, logger *zap.Logger) *Engine {
	return &Engine{rules: rules, logger: logger}
}

type group struct {
	rep       tm.IdentifiedThreat
	threatIDs []string
}

// Generate groups threats by category and affected components, then emits
// the matching rule recommendations and the category's general template for
// each group. The result is sorted by priority, priority score,
// effectiveness and title.
func (e *Engine) Generate(threats []tm.IdentifiedThreat, components []tm.Component) []tm.MitigationRecommendation {
	byID := make(map[string]tm.Component, len(components))
	for _, c := range components {
		byID[c.ID] = c
	}

	var scored []scoredRec
	for _, g := range groupThreats(threats) {
		comps := resolve(g.rep.AffectedComponents, byID)
		for _, r := range e.rules {
			if r.matches(g.rep.Category, comps) {
				scored = append(scored, instantiate(r.ID, r.Template, g, comps))
			}
		}
		if tpl, ok := GeneralTemplate(g.rep.Category); ok {
			scored = append(scored, instantiate("general-"+string(g.rep.Category), tpl, g, comps))
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if pa, pb := a.rec.Priority.Weight(), b.rec.Priority.Weight(); pa != pb {
			return pa > pb
		}
		if a.score != b.score {
			return a.score > b.score
		}
		if a.rec.Effectiveness != b.rec.Effectiveness {
			return a.rec.Effectiveness > b.rec.Effectiveness
		}
		return a.rec.Title < b.rec.Title
	})

	out := make([]tm.MitigationRecommendation, len(scored))
	for i, s := range scored {
		out[i] = s.rec
	}
	e.logger.Debug("mitigations generated",
		zap.Int("threats", len(threats)),
		zap.Int("recommendations", len(out)),
	)
	return out
}

// Priority derives a priority from severity weight × effectiveness.
func Priority(sev tm.Severity, effectiveness float64) (tm.Priority, float64) {
	score := float64(sev.Weight()) * effectiveness
	switch {
	case score >= 3.2:
		return tm.PriorityImmediate, score
	case score >= 2.4:
		return tm.PriorityHigh, score
	case score >= 1.6:
		return tm.PriorityMedium, score
	default:
		return tm.PriorityLow, score
	}
}

// groupThreats keys threats by category and sorted affected components.
// The representative is the most severe threat of the group.
func groupThreats(threats []tm.IdentifiedThreat) []*group {
	var order []*group
	index := make(map[string]*group)
	for _, t := range threats {
		comps := append([]string(nil), t.AffectedComponents...)
		sort.Strings(comps)
		key := string(t.Category) + "|" + strings.Join(comps, ",")

		g, ok := index[key]
		if !ok {
			g = &group{rep: t}
			index[key] = g
			order = append(order, g)
		} else if t.Severity.Weight() > g.rep.Severity.Weight() {
			g.rep = t
		}
		g.threatIDs = append(g.threatIDs, t.ID)
	}
	return order
}

func resolve(ids []string, byID map[string]tm.Component) []tm.Component {
	out := make([]tm.Component, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

type scoredRec struct {
	rec   tm.MitigationRecommendation
	score float64
}

func instantiate(ruleID string, tpl Template, g *group, comps []tm.Component) scoredRec {
	names := componentNames(g.rep.AffectedComponents, comps)
	prio, score := Priority(g.rep.Severity, tpl.Effectiveness)

	steps := make([]tm.ImplementationStep, len(tpl.Steps))
	for i, s := range tpl.Steps {
		steps[i] = tm.ImplementationStep{Order: i + 1, Description: fill(s, names)}
	}
	affected := append([]string{}, g.rep.AffectedComponents...)

	return scoredRec{
		score: score,
		rec: tm.MitigationRecommendation{
			ID:                   uuid.NewString(),
			ThreatIDs:            append([]string(nil), g.threatIDs...),
			Title:                fill(tpl.Title, names),
			Description:          fill(tpl.Description, names),
			Category:             g.rep.Category,
			Type:                 tpl.Type,
			Priority:             prio,
			PriorityScore:        threat.Round2(score),
			Effectiveness:        tpl.Effectiveness,
			Cost:                 tpl.Cost,
			Effort:               tpl.Effort,
			ImplementationSteps:  steps,
			Alternatives:         append([]string(nil), tpl.Alternatives...),
			ComplianceFrameworks: append([]string(nil), tpl.ComplianceFrameworks...),
			AffectedComponents:   affected,
			RuleID:               ruleID,
		},
	}
}

// componentNames lists the names of the affected components, falling back
// to the id for components missing from the request.
func componentNames(ids []string, comps []tm.Component) string {
	if len(ids) == 0 {
		return "the affected components"
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name := id
		for _, c := range comps {
			if c.ID == id && c.Name != "" {
				name = c.Name
				break
			}
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func fill(s, names string) string {
	return strings.ReplaceAll(s, "{components}", names)
}
