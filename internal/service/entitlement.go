package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/models"
	"storefront/internal/repository"

	"go.uber.org/zap"
)

// RenewPolicy decides the new expiry when a VIP buys again.
type RenewPolicy int

const (
	// RenewOverwrite sets expiry to now + duration, discarding unused time.
	RenewOverwrite RenewPolicy = iota
	// RenewExtend adds the duration to max(now, current expiry) and never
	// downgrades a lifetime membership.
	RenewExtend
)

type grantFunc func(tx *repository.Store, order *models.Order, now time.Time) error

// EntitlementService turns a successful order into its durable benefit.
type EntitlementService struct {
	store    *repository.Store
	policy   RenewPolicy
	handlers map[domain.OrderType]grantFunc
	log      *zap.Logger
	now      func() time.Time
}

func NewEntitlementService(store *repository.Store, policy RenewPolicy, log *zap.Logger) *EntitlementService {
	s := &EntitlementService{
		store:  store,
		policy: policy,
		log:    log.Named("entitlement"),
		now:    time.Now,
	}
	s.handlers = map[domain.OrderType]grantFunc{
		domain.OrderTypeMember: s.grantMembership,
		domain.OrderTypeCourse: s.grantCourse,
	}
	return s
}

// Grant applies the order's entitlement using tx, which must be the
// transaction that moved the order to success. Every failure wraps
// ErrEntitlement so the caller rolls the transition back.
func (s *EntitlementService) Grant(ctx context.Context, tx *repository.Store, order *models.Order) error {
	h, ok := s.handlers[order.OrderType]
	if !ok {
		return fmt.Errorf("%w: %w %q", ErrEntitlement, ErrUnknownOrderType, order.OrderType)
	}
	if order.UserID == nil || *order.UserID == 0 {
		return fmt.Errorf("%w: order %s has no user", ErrEntitlement, order.OutTradeNo)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEntitlement, err)
	}
	if err := h(tx, order, s.now()); err != nil {
		return fmt.Errorf("%w: %s order %s: %v", ErrEntitlement, order.OrderType, order.OutTradeNo, err)
	}
	return nil
}

func (s *EntitlementService) grantMembership(tx *repository.Store, order *models.Order, now time.Time) error {
	plan, err := tx.Plans.GetByID(order.ProductID)
	if err != nil {
		return err
	}
	user, err := tx.Users.GetByID(*order.UserID)
	if err != nil {
		return err
	}
	expire := s.expiry(user, plan, now)
	if err := tx.Users.SetVIP(user.ID, plan.ID, expire); err != nil {
		return err
	}
	s.log.Info("vip granted",
		zap.Uint("user_id", user.ID),
		zap.Uint("plan_id", plan.ID),
		zap.String("out_trade_no", order.OutTradeNo),
		zap.Timep("expire_at", expire),
	)
	return nil
}

func (s *EntitlementService) expiry(user *models.User, plan *models.MembershipPlan, now time.Time) *time.Time {
	if plan.Lifetime() {
		return nil
	}
	base := now
	if s.policy == RenewExtend && user.EffectiveVIP(now) {
		if user.LifetimeVIP() {
			return nil
		}
		base = *user.VipExpireAt
	}
	t := base.AddDate(0, 0, plan.DurationDays)
	return &t
}

func (s *EntitlementService) grantCourse(tx *repository.Store, order *models.Order, now time.Time) error {
	created, err := tx.Access.Grant(*order.UserID, order.ProductID, order.OutTradeNo)
	if err != nil {
		return err
	}
	s.log.Info("resource access granted",
		zap.Uint("user_id", *order.UserID),
		zap.Uint("resource_id", order.ProductID),
		zap.String("out_trade_no", order.OutTradeNo),
		zap.Bool("created", created),
	)
	return nil
}

// Summary is a user's effective entitlements at a point in time.
type Summary struct {
	UserID      uint       `json:"user_id"`
	VIP         bool       `json:"vip"`
	Lifetime    bool       `json:"lifetime"`
	VipPlanID   *uint      `json:"vip_plan_id,omitempty"`
	VipExpireAt *time.Time `json:"vip_expire_at,omitempty"`
	ResourceIDs []uint     `json:"resource_ids"`
}

func (s *EntitlementService) Summary(ctx context.Context, userID uint) (*Summary, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	st := s.store.WithContext(ctx)
	user, err := st.Users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	ids, err := st.Access.ResourceIDs(userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint{}
	}
	now := s.now()
	sum := &Summary{UserID: userID, ResourceIDs: ids}
	if user.EffectiveVIP(now) {
		sum.VIP = true
		sum.Lifetime = user.LifetimeVIP()
		sum.VipPlanID = user.VipPlanID
		sum.VipExpireAt = user.VipExpireAt
	}
	return sum, nil
}

// HasAccess is true for an effective VIP or an explicit resource grant.
func (s *EntitlementService) HasAccess(ctx context.Context, userID, resourceID uint) (bool, error) {
	if userID == 0 {
		return false, ErrUnauthenticated
	}
	st := s.store.WithContext(ctx)
	user, err := st.Users.GetByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	if user.EffectiveVIP(s.now()) {
		return true, nil
	}
	return st.Access.Has(userID, resourceID)
}
