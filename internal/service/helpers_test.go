package service_test

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/testutil"
	"storefront/pkg/payment"

	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// settled records SettleListener calls.
type settled struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (s *settled) OrderSettled(_ context.Context, o *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o)
}

func (s *settled) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type fixture struct {
	db           *gorm.DB
	store        *repository.Store
	entitlements *service.EntitlementService
	reconcile    *service.ReconcileService
	settled      *settled
}

func newFixture(t *testing.T, policy service.RenewPolicy) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	store := repository.NewStore(db)
	log := zaptest.NewLogger(t)
	ent := service.NewEntitlementService(store, policy, log)
	rec := &settled{}
	return &fixture{
		db:           db,
		store:        store,
		entitlements: ent,
		reconcile:    service.NewReconcileService(store, ent, log, rec),
		settled:      rec,
	}
}

func (f *fixture) order(t *testing.T, outTradeNo string) *models.Order {
	t.Helper()
	o, err := f.store.Orders.GetByOutTradeNo(outTradeNo)
	if err != nil {
		t.Fatalf("get order %s: %v", outTradeNo, err)
	}
	return o
}

func (f *fixture) user(t *testing.T, id uint) *models.User {
	t.Helper()
	u, err := f.store.Users.GetByID(id)
	if err != nil {
		t.Fatalf("get user %d: %v", id, err)
	}
	return u
}

// fakeGateway is a scriptable payment.Gateway.
type fakeGateway struct {
	mu           sync.Mutex
	precreateErr error
	queryErr     error
	precreates   int
	queries      int
	status       map[string]payment.TradeStatus
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{status: make(map[string]payment.TradeStatus)}
}

func (g *fakeGateway) Precreate(ctx context.Context, req payment.PrecreateRequest) (*payment.PrecreateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.precreates++
	if g.precreateErr != nil {
		return nil, g.precreateErr
	}
	g.status[req.OutTradeNo] = payment.WaitBuyerPay
	return &payment.PrecreateResponse{OutTradeNo: req.OutTradeNo, QRCode: "qr://" + req.OutTradeNo}, nil
}

func (g *fakeGateway) Query(ctx context.Context, outTradeNo string) (*payment.QueryResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries++
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	st, ok := g.status[outTradeNo]
	if !ok {
		st = payment.Unknown
	}
	return &payment.QueryResponse{OutTradeNo: outTradeNo, TradeNo: "T-" + outTradeNo, Status: st, Raw: string(st)}, nil
}

func (g *fakeGateway) VerifyNotification(url.Values) bool { return true }

func (g *fakeGateway) set(outTradeNo string, st payment.TradeStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status[outTradeNo] = st
}

func (g *fakeGateway) calls() (precreates, queries int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.precreates, g.queries
}
