// Package pasta implements the seven-stage PASTA (Process for Attack
// Simulation and Threat Analysis) methodology. The stage artifacts are
// returned alongside the threats in the response metadata.
package pasta

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/mitigation"
	"github.com/jmerrifield20/threatlens/internal/threat"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// ThreatConfidence is the confidence assigned to PASTA-generated threats.
const ThreatConfidence = 0.75

// Stage names, in pipeline order.
const (
	StageObjectives    = "Define Objectives"
	StageScope         = "Define Technical Scope"
	StageDecomposition = "Application Decomposition"
	StageThreats       = "Threat Analysis"
	StageWeaknesses    = "Weakness Analysis"
	StageAttacks       = "Attack Modeling"
	StageRisk          = "Risk and Impact Analysis"
)

// Engine is the PASTA threat.Engine.
type Engine struct {
	mitigations *mitigation.Engine
	logger      *zap.Logger
}

var _ threat.Engine = (*Engine)(nil)

// NewEngine returns a PASTA engine.
func NewEngine(mitigations *mitigation.Engine, logger *zap.Logger) *Engine {
	return &Engine{mitigations: mitigations, logger: logger}
}

// Analyze implements threat.Engine.
func (e *Engine) Analyze(ctx context.Context, req *tm.Request) (*tm.Response, error) {
	started := time.Now()
	rec := threat.NewStepRecorder(string(tm.MethodologyPASTA),
		StageObjectives, StageScope, StageDecomposition, StageThreats,
		StageWeaknesses, StageAttacks, StageRisk)

	var (
		report  tm.PastaReport
		threats []tm.IdentifiedThreat
		risk    tm.RiskAssessment
		mits    []tm.MitigationRecommendation
	)

	stages := []struct {
		name string
		fn   func() error
	}{
		{StageObjectives, func() error {
			report.Objectives = defineObjectives(req.SecurityRequirements)
			report.BusinessImpactMultiplier = businessImpactMultiplier(report.Objectives)
			return nil
		}},
		{StageScope, func() error {
			report.Scope = defineScope(req.Components)
			return nil
		}},
		{StageDecomposition, func() error {
			report.Decomposition = decompose(req)
			return nil
		}},
		{StageThreats, func() error {
			threats = analyzeThreats(req, report.Scope, report.Decomposition)
			return nil
		}},
		{StageWeaknesses, func() error {
			report.Weaknesses = analyzeWeaknesses(req.Components)
			return nil
		}},
		{StageAttacks, func() error {
			report.AttackScenarios = modelAttacks(threats, req.Components)
			return nil
		}},
		{StageRisk, func() error {
			risk = threat.AssessRiskWeighted(threats, report.BusinessImpactMultiplier)
			mits = e.mitigations.Generate(threats, req.Components)
			return nil
		}},
	}
	for _, s := range stages {
		if err := rec.Run(ctx, s.name, s.fn); err != nil {
			e.logger.Warn("pasta stage failed",
				zap.String("threat_model_id", req.ThreatModelID),
				zap.String("stage", s.name),
				zap.Error(err),
			)
			return nil, err
		}
	}

	completed := time.Now()
	elapsed := completed.Sub(started)
	e.logger.Debug("pasta analysis complete",
		zap.String("threat_model_id", req.ThreatModelID),
		zap.Int("threats", len(threats)),
		zap.Float64("multiplier", report.BusinessImpactMultiplier),
	)

	return &tm.Response{
		ThreatModelID:             req.ThreatModelID,
		Methodology:               tm.MethodologyPASTA,
		Threats:                   threats,
		RiskAssessment:            risk,
		MitigationRecommendations: mits,
		AnalysisMetadata: tm.AnalysisMetadata{
			AnalysisID:      uuid.NewString(),
			StartedAt:       started.UTC(),
			CompletedAt:     completed.UTC(),
			ProcessingSteps: rec.Steps(),
			Warnings:        weaknessWarnings(report.Weaknesses),
			Recommendations: threat.Advice(risk, mits),
			Throughput:      threat.Rates(len(threats), len(req.Components), elapsed),
			Pasta:           &report,
		},
		Confidence:       threat.MeanConfidence(threats),
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

// weaknessWarnings surfaces critical weaknesses as metadata warnings.
func weaknessWarnings(ws []tm.Weakness) []string {
	out := []string{}
	for _, w := range ws {
		if w.Severity == tm.SeverityCritical {
			out = append(out, w.CWE+" "+w.Name+" on "+w.ComponentID)
		}
	}
	return out
}
