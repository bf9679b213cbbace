package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/auditlog"
	"github.com/jmerrifield20/threatlens/internal/pattern"
)

// Catalog changes alter analysis results, so each one drops cached results
// and is written to the audit ledger.

// AddPattern adds p to the shared catalog.
func (s *Service) AddPattern(ctx context.Context, actor string, p pattern.Pattern) error {
	if err := s.matcher.AddPattern(p); err != nil {
		return err
	}
	s.catalogChanged(ctx, actor, auditlog.ActionPatternAdded, p.ID, p)
	return nil
}

// UpdatePattern applies u to the pattern with the given id.
func (s *Service) UpdatePattern(ctx context.Context, actor, id string, u pattern.Update) (pattern.Pattern, error) {
	p, err := s.matcher.UpdatePattern(id, u)
	if err != nil {
		return pattern.Pattern{}, err
	}
	s.catalogChanged(ctx, actor, auditlog.ActionPatternUpdated, id, p)
	return p, nil
}

// RemovePattern deletes the pattern with the given id.
func (s *Service) RemovePattern(ctx context.Context, actor, id string) error {
	if err := s.matcher.RemovePattern(id); err != nil {
		return err
	}
	s.catalogChanged(ctx, actor, auditlog.ActionPatternRemoved, id, map[string]string{"id": id})
	return nil
}

func (s *Service) catalogChanged(ctx context.Context, actor, action, id string, payload any) {
	if s.cache != nil {
		s.cache.purge()
	}
	if s.ledger == nil {
		return
	}
	if _, err := s.ledger.Append(ctx, auditlog.Record{
		Subject: id,
		Action:  action,
		Actor:   actor,
		Payload: payload,
	}); err != nil {
		s.logger.Error("ledger append failed (non-fatal)",
			zap.String("action", action),
			zap.String("pattern_id", id),
			zap.Error(err),
		)
	}
}

// RunCacheJanitor evicts expired cached results every interval until ctx
// is cancelled. It returns immediately when caching is disabled.
func (s *Service) RunCacheJanitor(ctx context.Context, interval time.Duration) {
	if s.cache == nil {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.cache.evict(); n > 0 {
				s.logger.Debug("evicted cached analyses", zap.Int("count", n))
			}
		}
	}
}
