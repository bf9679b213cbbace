package analysis

import (
	"fmt"
	"strings"

	"github.com/jmerrifield20/threatlens/internal/threat"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// Validate checks the structural requirements of an analysis request. It
// returns a *threat.ValidationError naming the first problem found.
func Validate(req *tm.Request) error {
	if req == nil {
		return invalid("request is required")
	}
	if strings.TrimSpace(req.ThreatModelID) == "" {
		return invalid("threatModelId is required")
	}
	if !req.Methodology.Valid() {
		return invalid("unknown methodology %q", req.Methodology)
	}
	if len(req.Components) == 0 {
		return invalid("at least one component is required")
	}

	seen := make(map[string]bool, len(req.Components))
	for i, c := range req.Components {
		switch {
		case c.ID == "":
			return invalid("components[%d]: id is required", i)
		case c.Name == "":
			return invalid("component %s: name is required", c.ID)
		case !c.Type.Valid():
			return invalid("component %s: unknown type %q", c.ID, c.Type)
		case seen[c.ID]:
			return invalid("component %s: duplicate id", c.ID)
		}
		seen[c.ID] = true
	}

	for i, f := range req.DataFlows {
		switch {
		case f.ID == "":
			return invalid("dataFlows[%d]: id is required", i)
		case f.SourceID == "":
			return invalid("data flow %s: sourceId is required", f.ID)
		case f.TargetID == "":
			return invalid("data flow %s: targetId is required", f.ID)
		}
	}

	o := req.Options
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		return invalid("options.confidenceThreshold must be within [0,1]")
	}
	if o.MaxThreatsPerComponent < 0 {
		return invalid("options.maxThreatsPerComponent must not be negative")
	}
	switch o.RiskCalculationMethod {
	case "", "standard", "dread":
	default:
		return invalid("unknown options.riskCalculationMethod %q", o.RiskCalculationMethod)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return &threat.ValidationError{Msg: fmt.Sprintf(format, args...)}
}
