package service

import (
	"context"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"go.uber.org/zap"
)

// SweepReport counts what one sweep pass did.
type SweepReport struct {
	Scanned int
	Applied int
	Failed  int
}

// SweepService confirms pending orders nobody is watching any more, by
// querying the gateway the same way the poll loop does.
type SweepService struct {
	store     *repository.Store
	querier   Querier
	reconcile Observer
	log       *zap.Logger
}

func NewSweepService(store *repository.Store, q Querier, o Observer, log *zap.Logger) *SweepService {
	return &SweepService{store: store, querier: q, reconcile: o, log: log.Named("sweep")}
}

// Sweep looks at up to limit pending orders created before olderThan ago.
func (s *SweepService) Sweep(ctx context.Context, olderThan time.Duration, limit int, tickTimeout time.Duration) (*SweepReport, error) {
	orders, err := s.store.WithContext(ctx).Orders.ListPendingBefore(time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}
	rep := &SweepReport{}
	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Scanned++
		qctx, cancel := context.WithTimeout(ctx, tickTimeout)
		resp, err := s.querier.Query(qctx, o.OutTradeNo)
		cancel()
		if err != nil {
			rep.Failed++
			s.log.Warn("sweep query failed", zap.String("out_trade_no", o.OutTradeNo), zap.Error(err))
			continue
		}
		outcome, err := s.reconcile.Observe(ctx, Observation{
			OutTradeNo: o.OutTradeNo,
			TradeNo:    resp.TradeNo,
			Status:     resp.Status,
			Raw:        resp.Raw,
			Source:     domain.SourceSweep,
		})
		if err != nil {
			rep.Failed++
			continue
		}
		if outcome == OutcomeApplied {
			rep.Applied++
		}
	}
	s.log.Info("sweep finished",
		zap.Int("scanned", rep.Scanned),
		zap.Int("applied", rep.Applied),
		zap.Int("failed", rep.Failed),
	)
	return rep, nil
}
