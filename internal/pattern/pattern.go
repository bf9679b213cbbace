// Package pattern recognises recurring vulnerability shapes in component
// metadata. A Pattern is a set of weighted conditions plus a threat
// template; the Matcher scores every applicable pattern against a
// component and emits threats for those that reach ConfidenceFloor.
package pattern

import (
	"errors"
	"fmt"
	"slices"
	"time"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

var (
	// ErrPatternNotFound is returned when no pattern has the requested id.
	ErrPatternNotFound = errors.New("pattern not found")
	// ErrDuplicatePattern is returned when adding a pattern whose id exists.
	ErrDuplicatePattern = errors.New("pattern already exists")
	// ErrInvalidPattern wraps validation failures from catalog mutations.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// Template is the parameterised threat a pattern emits. "{component}" in
// Title and Description is replaced by the component name.
type Template struct {
	Title         string            `json:"title"                   yaml:"title"`
	Description   string            `json:"description"             yaml:"description"`
	Severity      tm.Severity       `json:"severity"                yaml:"severity"`
	Likelihood    tm.Likelihood     `json:"likelihood"              yaml:"likelihood"`
	Impact        tm.Impact         `json:"impact"                  yaml:"impact"`
	AttackVectors []tm.AttackVector `json:"attackVectors,omitempty" yaml:"attackVectors,omitempty"`
}

// Pattern is a declarative threat detection rule.
type Pattern struct {
	ID                   string             `json:"id"                   yaml:"id"`
	Name                 string             `json:"name"                 yaml:"name"`
	Description          string             `json:"description"          yaml:"description"`
	Category             tm.Category        `json:"category"             yaml:"category"`
	ApplicableComponents []tm.ComponentType `json:"applicableComponents" yaml:"applicableComponents"`
	Conditions           []Condition        `json:"conditions"           yaml:"conditions"`
	Template             Template           `json:"threatTemplate"       yaml:"threatTemplate"`
	// Confidence is the base confidence reached when every condition holds.
	Confidence  float64   `json:"confidence"  yaml:"confidence"`
	LastUpdated time.Time `json:"lastUpdated" yaml:"lastUpdated,omitempty"`
}

// Validate checks a pattern before it enters a catalog.
func (p Pattern) Validate() error {
	if p.ID == "" {
		return errors.New("pattern id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("pattern %s: name is required", p.ID)
	}
	if !p.Category.Valid() {
		return fmt.Errorf("pattern %s: unknown category %q", p.ID, p.Category)
	}
	if p.Confidence <= 0 || p.Confidence > 1 {
		return fmt.Errorf("pattern %s: confidence must be in (0,1]", p.ID)
	}
	for _, t := range p.ApplicableComponents {
		if !t.Valid() {
			return fmt.Errorf("pattern %s: unknown component type %q", p.ID, t)
		}
	}
	for _, c := range p.Conditions {
		if err := c.validate(); err != nil {
			return fmt.Errorf("pattern %s: %w", p.ID, err)
		}
	}
	if p.Template.Title == "" {
		return fmt.Errorf("pattern %s: template title is required", p.ID)
	}
	if !p.Template.Severity.Valid() || !p.Template.Likelihood.Valid() {
		return fmt.Errorf("pattern %s: template severity and likelihood are required", p.ID)
	}
	return nil
}

// AppliesTo reports whether the pattern covers components of type t. An
// empty applicability list covers every type.
func (p Pattern) AppliesTo(t tm.ComponentType) bool {
	return len(p.ApplicableComponents) == 0 || slices.Contains(p.ApplicableComponents, t)
}

func (p Pattern) clone() Pattern {
	out := p
	out.ApplicableComponents = slices.Clone(p.ApplicableComponents)
	out.Conditions = slices.Clone(p.Conditions)
	if p.Template.AttackVectors != nil {
		out.Template.AttackVectors = make([]tm.AttackVector, len(p.Template.AttackVectors))
		for i, v := range p.Template.AttackVectors {
			v.Requirements = slices.Clone(v.Requirements)
			v.Mitigations = slices.Clone(v.Mitigations)
			out.Template.AttackVectors[i] = v
		}
	}
	return out
}

// Update is a partial pattern update. Nil fields are left unchanged.
type Update struct {
	Name                 *string            `json:"name,omitempty"`
	Description          *string            `json:"description,omitempty"`
	Category             *tm.Category       `json:"category,omitempty"`
	ApplicableComponents []tm.ComponentType `json:"applicableComponents,omitempty"`
	Conditions           []Condition        `json:"conditions,omitempty"`
	Template             *Template          `json:"threatTemplate,omitempty"`
	Confidence           *float64           `json:"confidence,omitempty"`
}

func (u Update) apply(p Pattern) Pattern {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.ApplicableComponents != nil {
		p.ApplicableComponents = slices.Clone(u.ApplicableComponents)
	}
	if u.Conditions != nil {
		p.Conditions = slices.Clone(u.Conditions)
	}
	if u.Template != nil {
		p.Template = *u.Template
	}
	if u.Confidence != nil {
		p.Confidence = *u.Confidence
	}
	return p.clone()
}
