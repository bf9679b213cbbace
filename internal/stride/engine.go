// Package stride implements rule-based STRIDE threat analysis. Each
// component is examined for the STRIDE categories that apply to its type;
// data flows and component pairs are then checked for transport and trust
// boundary threats.
package stride

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/mitigation"
	"github.com/jmerrifield20/threatlens/internal/pattern"
	"github.com/jmerrifield20/threatlens/internal/threat"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// RuleConfidence is the confidence assigned to rule-based STRIDE threats.
const RuleConfidence = 0.8

// Stage names, in pipeline order.
const (
	StageComponents  = "Component Analysis"
	StageDataFlows   = "Data Flow Analysis"
	StageCross       = "Cross-Component Analysis"
	StageRisk        = "Risk Assessment"
	StageMitigations = "Mitigation Generation"
)

// Engine is the STRIDE threat.Engine.
type Engine struct {
	matcher     *pattern.Matcher
	mitigations *mitigation.Engine
	rules       map[tm.Category][]ruleFunc
	logger      *zap.Logger
}

var _ threat.Engine = (*Engine)(nil)

// NewEngine returns a STRIDE engine. matcher may be nil, in which case
// common pattern threats are never pulled in.
func NewEngine(matcher *pattern.Matcher, mitigations *mitigation.Engine, logger *zap.Logger) *Engine {
	return &Engine{
		matcher:     matcher,
		mitigations: mitigations,
		rules:       defaultRules(),
		logger:      logger,
	}
}

// Analyze implements threat.Engine.
func (e *Engine) Analyze(ctx context.Context, req *tm.Request) (*tm.Response, error) {
	started := time.Now()
	rec := threat.NewStepRecorder(string(tm.MethodologySTRIDE),
		StageComponents, StageDataFlows, StageCross, StageRisk, StageMitigations)

	var (
		threats  []tm.IdentifiedThreat
		warnings = []string{}
		risk     tm.RiskAssessment
		mits     []tm.MitigationRecommendation
	)

	err := rec.Run(ctx, StageComponents, func() error {
		for i := range req.Components {
			threats = append(threats, e.analyzeComponent(&req.Components[i], req.Options)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = rec.Run(ctx, StageDataFlows, func() error {
		for i := range req.DataFlows {
			f := &req.DataFlows[i]
			for _, d := range flowRules(f) {
				d.Components = flowComponents(f)
				d.DataFlows = []string{f.ID}
				threats = append(threats, e.build(d))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = rec.Run(ctx, StageCross, func() error {
		for i := range req.DataFlows {
			f := &req.DataFlows[i]
			src, dst := req.ComponentByID(f.SourceID), req.ComponentByID(f.TargetID)
			if src == nil || dst == nil {
				warnings = append(warnings, "data flow "+f.ID+" references an unknown component")
				continue
			}
			for _, d := range crossRules(f, src, dst) {
				d.Components = []string{src.ID, dst.ID}
				d.DataFlows = []string{f.ID}
				threats = append(threats, e.build(d))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if threats == nil {
		threats = []tm.IdentifiedThreat{}
	}

	err = rec.Run(ctx, StageRisk, func() error {
		risk = threat.AssessRisk(threats)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = rec.Run(ctx, StageMitigations, func() error {
		mits = e.mitigations.Generate(threats, req.Components)
		return nil
	})
	if err != nil {
		return nil, err
	}

	completed := time.Now()
	elapsed := completed.Sub(started)
	e.logger.Debug("stride analysis complete",
		zap.String("threat_model_id", req.ThreatModelID),
		zap.Int("threats", len(threats)),
		zap.Duration("elapsed", elapsed),
	)

	return &tm.Response{
		ThreatModelID:             req.ThreatModelID,
		Methodology:               tm.MethodologySTRIDE,
		Threats:                   threats,
		RiskAssessment:            risk,
		MitigationRecommendations: mits,
		AnalysisMetadata: tm.AnalysisMetadata{
			AnalysisID:      uuid.NewString(),
			StartedAt:       started.UTC(),
			CompletedAt:     completed.UTC(),
			ProcessingSteps: rec.Steps(),
			Warnings:        warnings,
			Recommendations: threat.Advice(risk, mits),
			Throughput:      threat.Rates(len(threats), len(req.Components), elapsed),
		},
		Confidence:       threat.MeanConfidence(threats),
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

// analyzeComponent runs the applicable category rules, plus pattern matches
// when common threats are included, and applies the per-component limit.
func (e *Engine) analyzeComponent(c *tm.Component, opts tm.Options) []tm.IdentifiedThreat {
	var out []tm.IdentifiedThreat
	for _, cat := range applicableCategories(c) {
		if e.matcher != nil && opts.CommonThreatsIncluded() {
			out = append(out, e.matcher.FindThreats(c, cat)...)
		}
		for _, rule := range e.rules[cat] {
			for _, d := range rule(c) {
				d.Components = []string{c.ID}
				out = append(out, e.build(d))
			}
		}
	}
	return threat.LimitPerComponent(out, opts.MaxThreatsPerComponent)
}

func (e *Engine) build(d threat.Draft) tm.IdentifiedThreat {
	d.Source = tm.SourceRuleBased
	d.Confidence = RuleConfidence
	return threat.Build(d)
}

func flowComponents(f *tm.DataFlow) []string {
	if f.SourceID == f.TargetID {
		return []string{f.SourceID}
	}
	return []string{f.SourceID, f.TargetID}
}
