package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/pkg/payment"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Outcome is what reconciliation did with one observation.
type Outcome string

const (
	OutcomeUndecided       Outcome = "undecided"
	OutcomeOrphan          Outcome = "orphan"
	OutcomeApplied         Outcome = "applied"
	OutcomeAlreadyTerminal Outcome = "already_terminal"
	OutcomeError           Outcome = "error"
)

// Observation is one report of a trade's gateway status, from any channel.
type Observation struct {
	OutTradeNo string              `json:"out_trade_no"`
	TradeNo    string              `json:"trade_no,omitempty"`
	Status     payment.TradeStatus `json:"trade_status"`
	Raw        string              `json:"raw,omitempty"`
	Source     domain.Source       `json:"source"`
}

// SettleListener is told about an order after its terminal transition has
// been committed. Listeners must not fail the caller. They run before the
// webhook reply, so remote work belongs in the background.
type SettleListener interface {
	OrderSettled(ctx context.Context, order *models.Order)
}

// TargetStatus is the fixed gateway-to-order mapping. ok is false when no
// transition should be attempted.
func TargetStatus(ts payment.TradeStatus) (status domain.OrderStatus, ok bool) {
	switch ts {
	case payment.TradeSuccess, payment.TradeFinished:
		return domain.OrderStatusSuccess, true
	case payment.TradeClosed:
		return domain.OrderStatusClosed, true
	case payment.WaitBuyerPay:
		return domain.OrderStatusPending, false
	}
	return "", false
}

// ReconcileService is the single place gateway observations turn into order
// state. The store's conditional update is its only synchronization point.
type ReconcileService struct {
	store     *repository.Store
	granter   *EntitlementService
	listeners []SettleListener
	log       *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewReconcileService(store *repository.Store, granter *EntitlementService, log *zap.Logger, listeners ...SettleListener) *ReconcileService {
	return &ReconcileService{
		store:     store,
		granter:   granter,
		listeners: listeners,
		log:       log.Named("reconcile"),
		tracer:    otel.Tracer("storefront/reconcile"),
		now:       time.Now,
	}
}

// AddListener registers l for orders settled from now on.
func (s *ReconcileService) AddListener(l SettleListener) {
	s.listeners = append(s.listeners, l)
}

// Observe applies obs at most once per order. Repeats, late arrivals and the
// losing side of a race come back as OutcomeAlreadyTerminal with a nil error.
// A non-nil error means nothing was written and the sender should retry.
func (s *ReconcileService) Observe(ctx context.Context, obs Observation) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.Observe", trace.WithAttributes(
		attribute.String("out_trade_no", obs.OutTradeNo),
		attribute.String("source", string(obs.Source)),
		attribute.String("trade_status", string(obs.Status)),
	))
	defer span.End()

	outcome, order, err := s.apply(ctx, obs)
	if err != nil {
		outcome = OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	metrics.ReconcileObservations.WithLabelValues(string(obs.Source), string(outcome)).Inc()
	s.record(ctx, obs, outcome, err)

	switch outcome {
	case OutcomeError:
		s.log.Error("observation not applied",
			zap.String("out_trade_no", obs.OutTradeNo),
			zap.String("source", string(obs.Source)),
			zap.String("trade_status", string(obs.Status)),
			zap.Error(err),
		)
		return outcome, err
	case OutcomeOrphan:
		s.log.Warn("orphan notification",
			zap.String("out_trade_no", obs.OutTradeNo),
			zap.String("source", string(obs.Source)),
			zap.String("trade_status", string(obs.Status)),
		)
	case OutcomeAlreadyTerminal:
		s.log.Debug("order already terminal",
			zap.String("out_trade_no", obs.OutTradeNo),
			zap.String("source", string(obs.Source)),
		)
	case OutcomeApplied:
		s.log.Info("order settled",
			zap.String("out_trade_no", order.OutTradeNo),
			zap.String("status", string(order.Status)),
			zap.String("source", string(obs.Source)),
		)
		if order.Status == domain.OrderStatusSuccess {
			metrics.EntitlementGrants.WithLabelValues(string(order.OrderType)).Inc()
		}
		for _, l := range s.listeners {
			l.OrderSettled(ctx, order)
		}
	}
	return outcome, nil
}

func (s *ReconcileService) apply(ctx context.Context, obs Observation) (Outcome, *models.Order, error) {
	target, ok := TargetStatus(obs.Status)
	if !ok {
		return OutcomeUndecided, nil, nil
	}
	outcome := OutcomeUndecided
	var settled *models.Order
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.Orders.GetByOutTradeNo(obs.OutTradeNo); err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				outcome = OutcomeOrphan
				return nil
			}
			return err
		}
		res, err := tx.Orders.TryTransition(obs.OutTradeNo, domain.OrderStatusPending, target, obs.TradeNo, obs.Raw, s.now())
		if err != nil {
			return err
		}
		if !res.Applied {
			outcome = OutcomeAlreadyTerminal
			return nil
		}
		if target == domain.OrderStatusSuccess {
			if err := s.granter.Grant(ctx, tx, res.Order); err != nil {
				return err
			}
		}
		outcome = OutcomeApplied
		settled = res.Order
		return nil
	})
	if err != nil {
		return OutcomeError, nil, err
	}
	return outcome, settled, nil
}

// record keeps an audit row per observation. It runs outside the
// transaction so rejected attempts are kept too.
func (s *ReconcileService) record(ctx context.Context, obs Observation, outcome Outcome, obsErr error) {
	payload, _ := json.Marshal(obs)
	entry := &models.PaymentNotifyLog{
		Source:      obs.Source,
		OutTradeNo:  obs.OutTradeNo,
		TradeNo:     obs.TradeNo,
		TradeStatus: string(obs.Status),
		Outcome:     string(outcome),
		Payload:     datatypes.JSON(payload),
	}
	if obsErr != nil {
		msg := obsErr.Error()
		if len(msg) > 512 {
			msg = msg[:512]
		}
		entry.Error = msg
	}
	if err := s.store.WithContext(context.WithoutCancel(ctx)).NotifyLogs.Create(entry); err != nil {
		s.log.Warn("write notify log", zap.String("out_trade_no", obs.OutTradeNo), zap.Error(err))
	}
}
