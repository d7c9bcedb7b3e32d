package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/pkg/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var outTradeNoPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type PrecreateInput struct {
	OutTradeNo string
	OrderType  domain.OrderType
	ProductID  uint
	Amount     decimal.Decimal
	Subject    string
}

type PrecreateResult struct {
	OutTradeNo string `json:"out_trade_no"`
	QRCode     string `json:"qr_code"`
}

// OrderService is the purchase initiation flow plus the client facing
// order reads.
type OrderService struct {
	store     *repository.Store
	gateway   payment.Gateway
	reconcile *ReconcileService
	poller    *PollCoordinator
	log       *zap.Logger
}

// NewOrderService wires the flow. poller may be nil, in which case confirmation
// relies on the webhook, client queries and the sweeper.
func NewOrderService(store *repository.Store, gateway payment.Gateway, reconcile *ReconcileService, poller *PollCoordinator, log *zap.Logger) *OrderService {
	return &OrderService{
		store:     store,
		gateway:   gateway,
		reconcile: reconcile,
		poller:    poller,
		log:       log.Named("order"),
	}
}

// NewOutTradeNo returns a fresh merchant order number.
func NewOutTradeNo(now time.Time) string {
	return "SF" + now.Format("20060102150405") + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Precreate creates the payment intent at the gateway and, only once the
// gateway has confirmed it, the pending order row.
func (s *OrderService) Precreate(ctx context.Context, userID uint, in PrecreateInput) (*PrecreateResult, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	if !in.OrderType.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownOrderType, in.OrderType)
	}
	amount, err := payment.ValidateAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	store := s.store.WithContext(ctx)
	subject := in.Subject
	switch in.OrderType {
	case domain.OrderTypeMember:
		plan, err := store.Plans.GetByID(in.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: plan %d: %v", ErrInvalidProduct, in.ProductID, err)
		}
		if !plan.IsActive {
			return nil, fmt.Errorf("%w: plan %d is not on sale", ErrInvalidProduct, in.ProductID)
		}
		if !plan.Price.Round(2).Equal(amount) {
			return nil, fmt.Errorf("%w: got %s, want %s", ErrAmountMismatch, amount.StringFixed(2), plan.Price.StringFixed(2))
		}
		if strings.TrimSpace(subject) == "" {
			subject = plan.Name
		}
	case domain.OrderTypeCourse:
		if in.ProductID == 0 {
			return nil, fmt.Errorf("%w: resource id is required", ErrInvalidProduct)
		}
	}
	subject, err = payment.SanitizeSubject(subject)
	if err != nil {
		return nil, err
	}

	outTradeNo := in.OutTradeNo
	if outTradeNo == "" {
		outTradeNo = NewOutTradeNo(time.Now())
	} else if !outTradeNoPattern.MatchString(outTradeNo) {
		return nil, ErrInvalidOutTradeNo
	}
	exists, err := store.Orders.Exists(outTradeNo)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, repository.ErrDuplicateOrder
	}

	owned := false
	if s.poller != nil {
		if owned, err = s.poller.Begin(outTradeNo); err != nil {
			s.log.Warn("poll session not started", zap.String("out_trade_no", outTradeNo), zap.Error(err))
		}
	}

	resp, err := s.gateway.Precreate(ctx, payment.PrecreateRequest{
		OutTradeNo: outTradeNo,
		Amount:     amount,
		Subject:    subject,
	})
	if err != nil {
		s.abandonPoll(owned, outTradeNo)
		s.log.Warn("precreate failed", zap.String("out_trade_no", outTradeNo), zap.Error(err))
		return nil, err
	}

	uid := userID
	order := &models.Order{
		OutTradeNo: outTradeNo,
		OrderType:  in.OrderType,
		ProductID:  in.ProductID,
		Amount:     amount,
		Subject:    subject,
		UserID:     &uid,
		PayChannel: domain.PayChannelAlipay,
		QRCode:     resp.QRCode,
	}
	if err := store.Orders.Create(order); err != nil {
		s.abandonPoll(owned, outTradeNo)
		return nil, err
	}

	if s.poller != nil {
		if err := s.poller.Start(outTradeNo); err != nil {
			s.log.Warn("poll session not started", zap.String("out_trade_no", outTradeNo), zap.Error(err))
		}
	}
	s.log.Info("order created",
		zap.String("out_trade_no", outTradeNo),
		zap.String("order_type", string(in.OrderType)),
		zap.Uint("product_id", in.ProductID),
		zap.Uint("user_id", userID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return &PrecreateResult{OutTradeNo: outTradeNo, QRCode: resp.QRCode}, nil
}

// Query asks the gateway for the trade status and feeds the answer through
// reconciliation before returning it.
func (s *OrderService) Query(ctx context.Context, userID uint, outTradeNo string) (payment.TradeStatus, error) {
	if _, err := s.Get(ctx, userID, outTradeNo); err != nil {
		return "", err
	}
	resp, err := s.gateway.Query(ctx, outTradeNo)
	if err != nil {
		return "", err
	}
	if _, err := s.reconcile.Observe(ctx, Observation{
		OutTradeNo: outTradeNo,
		TradeNo:    resp.TradeNo,
		Status:     resp.Status,
		Raw:        resp.Raw,
		Source:     domain.SourcePoll,
	}); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Get returns the order if userID owns it.
func (s *OrderService) Get(ctx context.Context, userID uint, outTradeNo string) (*models.Order, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	if !outTradeNoPattern.MatchString(outTradeNo) {
		return nil, ErrInvalidOutTradeNo
	}
	order, err := s.store.WithContext(ctx).Orders.GetByOutTradeNo(outTradeNo)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	return order, nil
}

// Cancel stops the server side poll session for the order. The order itself
// is left pending; the gateway closes unpaid trades on its own.
func (s *OrderService) Cancel(ctx context.Context, userID uint, outTradeNo string, reason CancelReason) (bool, error) {
	if _, err := s.Get(ctx, userID, outTradeNo); err != nil {
		return false, err
	}
	return s.cancelPoll(outTradeNo, reason), nil
}

// PollState reports the poll session state for an order the user owns.
func (s *OrderService) PollState(ctx context.Context, userID uint, outTradeNo string) (PollState, error) {
	if _, err := s.Get(ctx, userID, outTradeNo); err != nil {
		return "", err
	}
	if s.poller == nil {
		return PollIdle, nil
	}
	st, _ := s.poller.State(outTradeNo)
	return st, nil
}

func (s *OrderService) cancelPoll(outTradeNo string, reason CancelReason) bool {
	if s.poller == nil {
		return false
	}
	return s.poller.Cancel(outTradeNo, reason)
}

// abandonPoll drops a session this call began and nobody has started yet.
// A concurrent precreate with the same number may already be polling it.
func (s *OrderService) abandonPoll(owned bool, outTradeNo string) {
	if s.poller == nil || !owned {
		return
	}
	s.poller.Abandon(outTradeNo, CancelPrecreateFailed)
}

// CancelPoll is Cancel with a client supplied reason string.
func (s *OrderService) CancelPoll(ctx context.Context, userID uint, outTradeNo, reason string) (bool, error) {
	return s.Cancel(ctx, userID, outTradeNo, ParseCancelReason(reason))
}
