// Package analysis orchestrates a threat model analysis: it validates the
// request, dispatches to the methodology engine, then enriches, rescores,
// deduplicates and aggregates the result. Completed analyses are recorded
// in the audit ledger and announced to the event publisher when configured.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmerrifield20/threatlens/internal/auditlog"
	"github.com/jmerrifield20/threatlens/internal/dread"
	"github.com/jmerrifield20/threatlens/internal/events"
	"github.com/jmerrifield20/threatlens/internal/mitigation"
	"github.com/jmerrifield20/threatlens/internal/pasta"
	"github.com/jmerrifield20/threatlens/internal/pattern"
	"github.com/jmerrifield20/threatlens/internal/stride"
	"github.com/jmerrifield20/threatlens/internal/threat"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// ErrMethodologyNotImplemented is returned for methodologies that validate
// but have no engine.
var ErrMethodologyNotImplemented = errors.New("methodology not implemented")

// AnonymousActor tags ledger entries of unauthenticated analyses.
const AnonymousActor = "anonymous"

// Orchestrator stage names, recorded after the engine's own steps.
const (
	StageEnrichment  = "Pattern Enrichment"
	StageDread       = "DREAD Scoring"
	StageDedup       = "Deduplication"
	StageThreshold   = "Confidence Filtering"
	StageAggregation = "Risk Aggregation"
	StageMitigations = "Mitigation Generation"
)

// Outcome labels passed to MetricsRecordFunc.
const (
	OutcomeOK       = "ok"
	OutcomeCached   = "cached"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "not_implemented"
	OutcomeFailed   = "failed"
)

// MetricsRecordFunc is an optional callback invoked once per analysis.
// resp is nil unless the outcome is OutcomeOK or OutcomeCached.
type MetricsRecordFunc func(m tm.Methodology, outcome string, elapsed time.Duration, resp *tm.Response)

// Service runs analyses. It is safe for concurrent use once configured.
type Service struct {
	engines     map[tm.Methodology]threat.Engine
	matcher     *pattern.Matcher
	dread       *dread.Calculator
	mitigations *mitigation.Engine
	ledger      auditlog.Ledger  // nil = no audit entries
	publisher   events.Publisher // nil = no events
	cache       *resultCache     // nil = no result caching
	onMetrics   MetricsRecordFunc
	logger      *zap.Logger
}

// NewService wires the STRIDE and PASTA engines around a shared pattern
// matcher and mitigation engine.
func NewService(matcher *pattern.Matcher, calc *dread.Calculator, mits *mitigation.Engine, logger *zap.Logger) *Service {
	return &Service{
		engines: map[tm.Methodology]threat.Engine{
			tm.MethodologySTRIDE: stride.NewEngine(matcher, mits, logger),
			tm.MethodologyPASTA:  pasta.NewEngine(mits, logger),
		},
		matcher:     matcher,
		dread:       calc,
		mitigations: mits,
		logger:      logger,
	}
}

// SetEngine registers or replaces the engine for m.
func (s *Service) SetEngine(m tm.Methodology, e threat.Engine) {
	s.engines[m] = e
}

// SetLedger configures the audit ledger. Ledger failures are logged and
// never fail an analysis.
func (s *Service) SetLedger(l auditlog.Ledger) {
	s.ledger = l
}

// SetPublisher configures the event publisher. Publish failures are logged
// and never fail an analysis.
func (s *Service) SetPublisher(p events.Publisher) {
	s.publisher = p
}

// SetCacheTTL enables result caching for ttl. A zero ttl disables it.
func (s *Service) SetCacheTTL(ttl time.Duration) {
	if ttl <= 0 {
		s.cache = nil
		return
	}
	s.cache = newResultCache(ttl)
}

// SetMetricsRecord configures the metrics recording callback.
func (s *Service) SetMetricsRecord(fn MetricsRecordFunc) {
	s.onMetrics = fn
}

// Matcher returns the shared pattern matcher.
func (s *Service) Matcher() *pattern.Matcher { return s.matcher }

// Dread returns the DREAD calculator.
func (s *Service) Dread() *dread.Calculator { return s.dread }

// Ledger returns the configured audit ledger, or nil.
func (s *Service) Ledger() auditlog.Ledger { return s.ledger }

// Methodologies lists the methodologies with a registered engine.
func (s *Service) Methodologies() []tm.Methodology {
	out := make([]tm.Methodology, 0, len(s.engines))
	for m := range s.engines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AnalyzeThreatModel validates req, runs its methodology engine and the
// orchestration stages, and returns the complete response. userID is
// optional and only tags the audit entry and the event.
func (s *Service) AnalyzeThreatModel(ctx context.Context, req *tm.Request, userID string) (*tm.Response, error) {
	started := time.Now()

	if err := Validate(req); err != nil {
		s.record(methodologyOf(req), OutcomeInvalid, started, nil)
		return nil, err
	}

	var (
		key string
		gen uint64
	)
	if s.cache != nil {
		if k, err := requestKey(req); err == nil {
			key = k
			gen = s.cache.generation()
			if resp, ok := s.cache.get(key); ok {
				// A hit is a new analysis as far as the ledger and events go.
				now := time.Now().UTC()
				meta := &resp.AnalysisMetadata
				meta.AnalysisID = uuid.NewString()
				meta.Cached = true
				meta.UserID = userID
				meta.StartedAt = started.UTC()
				meta.CompletedAt = now
				resp.ProcessingTimeMs = now.Sub(started).Milliseconds()
				s.finish(ctx, resp, userID)
				s.record(req.Methodology, OutcomeCached, started, resp)
				return resp, nil
			}
		}
	}

	engine, ok := s.engines[req.Methodology]
	if !ok {
		s.record(req.Methodology, OutcomeRejected, started, nil)
		return nil, fmt.Errorf("%w: %s", ErrMethodologyNotImplemented, req.Methodology)
	}

	resp, err := engine.Analyze(ctx, req)
	if err != nil {
		s.logger.Warn("methodology engine failed",
			zap.String("threat_model_id", req.ThreatModelID),
			zap.String("methodology", string(req.Methodology)),
			zap.Error(err),
		)
		s.record(req.Methodology, OutcomeFailed, started, nil)
		return nil, err
	}

	if err := s.orchestrate(ctx, req, resp); err != nil {
		s.logger.Warn("analysis orchestration failed",
			zap.String("threat_model_id", req.ThreatModelID),
			zap.Error(err),
		)
		s.record(req.Methodology, OutcomeFailed, started, nil)
		return nil, err
	}

	completed := time.Now()
	elapsed := completed.Sub(started)
	meta := &resp.AnalysisMetadata
	meta.UserID = userID
	meta.StartedAt = started.UTC()
	meta.CompletedAt = completed.UTC()
	meta.Recommendations = threat.Advice(resp.RiskAssessment, resp.MitigationRecommendations)
	meta.Throughput = threat.Rates(len(resp.Threats), len(req.Components), elapsed)
	resp.Confidence = threat.MeanConfidence(resp.Threats)
	resp.ProcessingTimeMs = elapsed.Milliseconds()

	if key != "" {
		// set is a no-op when the catalog changed while this analysis ran.
		if err := s.cache.set(key, gen, resp); err != nil {
			s.logger.Warn("cache store failed", zap.Error(err))
		}
	}

	s.logger.Info("analysis complete",
		zap.String("analysis_id", meta.AnalysisID),
		zap.String("threat_model_id", resp.ThreatModelID),
		zap.String("methodology", string(resp.Methodology)),
		zap.Int("threats", len(resp.Threats)),
		zap.String("risk_level", string(resp.RiskAssessment.RiskLevel)),
		zap.Duration("elapsed", elapsed),
	)

	s.finish(ctx, resp, userID)
	s.record(req.Methodology, OutcomeOK, started, resp)
	return resp, nil
}

// orchestrate runs the post-engine stages over resp in place. On failure
// the returned *threat.StageError carries the engine and orchestrator steps.
func (s *Service) orchestrate(ctx context.Context, req *tm.Request, resp *tm.Response) error {
	opts := req.Options
	engineSteps := resp.AnalysisMetadata.ProcessingSteps

	names := []string{}
	if opts.PatternMatchingEnabled() && s.matcher != nil {
		names = append(names, StageEnrichment)
	}
	if opts.DreadScoringEnabled() {
		names = append(names, StageDread)
	}
	names = append(names, StageDedup)
	if opts.ConfidenceThreshold > 0 {
		names = append(names, StageThreshold)
	}
	names = append(names, StageAggregation, StageMitigations)

	rec := threat.NewStepRecorder("orchestrator", names...)
	threats := resp.Threats

	stages := map[string]func() error{
		StageEnrichment: func() error {
			found, err := s.enrich(ctx, req.Components)
			if err != nil {
				return err
			}
			for _, t := range found {
				if indexOfDuplicate(threats, t) < 0 {
					threats = append(threats, t)
				}
			}
			return nil
		},
		StageDread: func() error {
			rescored, err := s.dread.UpdateAll(threats, req.Components)
			if err != nil {
				return err
			}
			threats = rescored
			return nil
		},
		StageDedup: func() error {
			// Enrichment can push a component past the engine's cap again.
			threats = threat.LimitByComponent(Deduplicate(threats), opts.MaxThreatsPerComponent)
			return nil
		},
		StageThreshold: func() error {
			threats = aboveThreshold(threats, opts.ConfidenceThreshold)
			return nil
		},
		StageAggregation: func() error {
			if p := resp.AnalysisMetadata.Pasta; p != nil {
				resp.RiskAssessment = threat.AssessRiskWeighted(threats, p.BusinessImpactMultiplier)
			} else {
				resp.RiskAssessment = threat.AssessRisk(threats)
			}
			return nil
		},
		StageMitigations: func() error {
			resp.MitigationRecommendations = s.mitigations.Generate(threats, req.Components)
			return nil
		},
	}

	for _, name := range names {
		if err := rec.Run(ctx, name, stages[name]); err != nil {
			var se *threat.StageError
			if errors.As(err, &se) {
				se.Steps = append(append([]tm.ProcessingStep{}, engineSteps...), se.Steps...)
			}
			return err
		}
	}

	resp.Threats = threats
	resp.AnalysisMetadata.ProcessingSteps = append(engineSteps, rec.Steps()...)
	return nil
}

// enrich runs the pattern matcher over every component in parallel. Results
// are collected per component index so their order matches the request.
func (s *Service) enrich(ctx context.Context, components []tm.Component) ([]tm.IdentifiedThreat, error) {
	results := make([][]tm.IdentifiedThreat, len(components))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range components {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.matcher.FindThreats(&components[i], "")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []tm.IdentifiedThreat
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func aboveThreshold(threats []tm.IdentifiedThreat, min float64) []tm.IdentifiedThreat {
	out := make([]tm.IdentifiedThreat, 0, len(threats))
	for _, t := range threats {
		if t.Confidence >= min {
			out = append(out, t)
		}
	}
	return out
}

// finish performs the non-fatal side effects of a completed analysis.
func (s *Service) finish(ctx context.Context, resp *tm.Response, userID string) {
	ev := events.NewAnalysisCompleted(resp)

	if s.ledger != nil {
		actor := userID
		if actor == "" {
			actor = AnonymousActor
		}
		summary := fmt.Sprintf("%s: %d threats, risk %s",
			resp.Methodology, len(resp.Threats), resp.RiskAssessment.RiskLevel)
		if resp.AnalysisMetadata.Cached {
			summary += " (cached)"
		}
		_, err := s.ledger.Append(ctx, auditlog.Record{
			ThreatModelID: resp.ThreatModelID,
			Subject:       resp.AnalysisMetadata.AnalysisID,
			Action:        auditlog.ActionAnalysis,
			Actor:         actor,
			Summary:       summary,
			Payload:       ev,
		})
		if err != nil {
			s.logger.Error("ledger append failed (non-fatal)",
				zap.String("threat_model_id", resp.ThreatModelID),
				zap.Error(err),
			)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishAnalysis(ctx, ev); err != nil {
			s.logger.Error("event publish failed (non-fatal)",
				zap.String("analysis_id", ev.AnalysisID),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) record(m tm.Methodology, outcome string, started time.Time, resp *tm.Response) {
	if s.onMetrics != nil {
		s.onMetrics(m, outcome, time.Since(started), resp)
	}
}

func methodologyOf(req *tm.Request) tm.Methodology {
	if req == nil {
		return ""
	}
	return req.Methodology
}
