package pattern

import (
	"fmt"
	"strconv"
	"strings"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// Property is a component property path a condition can reference.
type Property string

const (
	PropType           Property = "type"
	PropName           Property = "name"
	PropConnections    Property = "connections"
	PropProtocols      Property = "properties.protocols"
	PropAuthentication Property = "properties.authentication"
	PropAuthorization  Property = "properties.authorization"
	PropEncryption     Property = "properties.encryption"
	PropLogging        Property = "properties.logging"
	PropSensitive      Property = "properties.sensitive"
	PropInternetFacing Property = "properties.internetFacing"
	PropPrivileged     Property = "properties.privileged"
	PropTechnology     Property = "properties.technology"
)

// Valid reports whether p is a known property path.
func (p Property) Valid() bool {
	switch p {
	case PropType, PropName, PropConnections, PropProtocols, PropAuthentication,
		PropAuthorization, PropEncryption, PropLogging, PropSensitive,
		PropInternetFacing, PropPrivileged, PropTechnology:
		return true
	}
	return false
}

// value is the resolved value of a property: exactly one of list, str or
// flag is meaningful depending on kind.
type value struct {
	kind   valueKind
	list   []string
	str    string
	flag   bool
	exists bool
}

type valueKind int

const (
	kindList valueKind = iota
	kindString
	kindBool
)

// resolve reads p from c. Lists exist when declared (non-nil), strings when
// non-empty, and booleans always.
func (p Property) resolve(c *tm.Component) value {
	pr := c.Properties
	switch p {
	case PropType:
		return value{kind: kindString, str: string(c.Type), exists: c.Type != ""}
	case PropName:
		return value{kind: kindString, str: c.Name, exists: c.Name != ""}
	case PropConnections:
		return listValue(c.Connections)
	case PropProtocols:
		return listValue(pr.Protocols)
	case PropAuthentication:
		return listValue(pr.Authentication)
	case PropAuthorization:
		return listValue(pr.Authorization)
	case PropEncryption:
		return listValue(pr.Encryption)
	case PropLogging:
		return listValue(pr.Logging)
	case PropSensitive:
		return value{kind: kindBool, flag: pr.Sensitive, exists: true}
	case PropInternetFacing:
		return value{kind: kindBool, flag: pr.InternetFacing, exists: true}
	case PropPrivileged:
		return value{kind: kindBool, flag: pr.Privileged, exists: true}
	case PropTechnology:
		return value{kind: kindString, str: pr.Technology, exists: pr.Technology != ""}
	}
	return value{}
}

func listValue(l []string) value {
	return value{kind: kindList, list: l, exists: l != nil}
}

// Operator is a condition comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
	OpEmpty       Operator = "empty"
	OpNotEmpty    Operator = "not_empty"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpExists, OpNotExists,
		OpEmpty, OpNotEmpty, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// Condition is a weighted predicate over one component property.
type Condition struct {
	// Type is "property" for properties.* paths and "component" for the
	// top-level fields. It is informational.
	Type     string   `json:"type,omitempty"  yaml:"type,omitempty"`
	Property Property `json:"property"        yaml:"property"`
	Operator Operator `json:"operator"        yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
	Weight   float64  `json:"weight"          yaml:"weight"`
}

func (c Condition) validate() error {
	if !c.Property.Valid() {
		return fmt.Errorf("unknown property %q", c.Property)
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	if c.Weight < 0 {
		return fmt.Errorf("condition on %s has negative weight", c.Property)
	}
	return nil
}

// Matchable is the cheap pre-filter: the referenced property must exist on
// the component, except for not_exists which asks the opposite.
func (c Condition) Matchable(comp *tm.Component) bool {
	if c.Operator == OpNotExists {
		return true
	}
	return c.Property.resolve(comp).exists
}

// Evaluate reports whether the condition holds for comp.
func (c Condition) Evaluate(comp *tm.Component) bool {
	v := c.Property.resolve(comp)
	switch c.Operator {
	case OpExists:
		return v.exists
	case OpNotExists:
		return !v.exists
	}
	if !v.exists && v.kind != kindBool {
		// Absent lists and strings still answer empty checks.
		return c.Operator == OpEmpty
	}
	switch c.Operator {
	case OpEquals:
		return v.equals(c.Value)
	case OpNotEquals:
		return !v.equals(c.Value)
	case OpContains:
		return v.contains(c.Value)
	case OpNotContains:
		return !v.contains(c.Value)
	case OpEmpty:
		return v.empty()
	case OpNotEmpty:
		return !v.empty()
	case OpGreaterThan:
		n, ok := toFloat(c.Value)
		return ok && v.number() > n
	case OpLessThan:
		n, ok := toFloat(c.Value)
		return ok && v.number() < n
	}
	return false
}

func (v value) equals(want any) bool {
	switch v.kind {
	case kindBool:
		b, ok := toBool(want)
		return ok && v.flag == b
	case kindString:
		return strings.EqualFold(v.str, toString(want))
	case kindList:
		items, ok := toStrings(want)
		if !ok || len(items) != len(v.list) {
			return false
		}
		for _, it := range items {
			if !containsFold(v.list, it) {
				return false
			}
		}
		return true
	}
	return false
}

func (v value) contains(want any) bool {
	needle := toString(want)
	switch v.kind {
	case kindList:
		return containsFold(v.list, needle)
	case kindString:
		return strings.Contains(strings.ToLower(v.str), strings.ToLower(needle))
	}
	return false
}

func (v value) empty() bool {
	switch v.kind {
	case kindList:
		return len(v.list) == 0
	case kindString:
		return v.str == ""
	}
	return !v.flag
}

// number is the numeric reading used by greater_than and less_than: list
// length, string length, or 0/1 for booleans.
func (v value) number() float64 {
	switch v.kind {
	case kindList:
		return float64(len(v.list))
	case kindString:
		if f, err := strconv.ParseFloat(v.str, 64); err == nil {
			return f
		}
		return float64(len(v.str))
	}
	if v.flag {
		return 1
	}
	return 0
}

func containsFold(list []string, s string) bool {
	for _, it := range list {
		if strings.EqualFold(it, s) {
			return true
		}
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(x)
		return b, err == nil
	}
	return false, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			out = append(out, toString(it))
		}
		return out, true
	}
	return nil, false
}
