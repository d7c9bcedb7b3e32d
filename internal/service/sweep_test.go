package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/testutil"
	"storefront/pkg/payment"

	"go.uber.org/zap/zaptest"
)

func TestSweep_SettlesStalePendingOrders(t *testing.T) {
	f := newFixture(t, service.RenewOverwrite)
	u := testutil.CreateUser(t, f.db, "forgetful")
	old := time.Now().Add(-time.Hour)
	for _, no := range []string{"PAID", "GONE", "WAITING", "FRESH"} {
		testutil.CreatePendingOrder(t, f.db, no, domain.OrderTypeCourse, 42, u.ID, "9.99")
		if no != "FRESH" {
			f.db.Model(&models.Order{}).Where("out_trade_no = ?", no).Update("created_at", old)
		}
	}
	gw := newFakeGateway()
	gw.set("PAID", payment.TradeSuccess)
	gw.set("GONE", payment.TradeClosed)
	gw.set("WAITING", payment.WaitBuyerPay)
	gw.set("FRESH", payment.TradeSuccess)

	sweeper := service.NewSweepService(f.store, gw, f.reconcile, zaptest.NewLogger(t))
	rep, err := sweeper.Sweep(context.Background(), 5*time.Minute, 100, time.Second)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Scanned != 3 || rep.Applied != 2 || rep.Failed != 0 {
		t.Errorf("report = %+v, want 3 scanned, 2 applied", rep)
	}

	want := map[string]domain.OrderStatus{
		"PAID":    domain.OrderStatusSuccess,
		"GONE":    domain.OrderStatusClosed,
		"WAITING": domain.OrderStatusPending,
		"FRESH":   domain.OrderStatusPending,
	}
	for no, st := range want {
		if got := f.order(t, no).Status; got != st {
			t.Errorf("%s = %s, want %s", no, got, st)
		}
	}
	logs, _ := f.store.NotifyLogs.ListByOutTradeNo("PAID")
	if len(logs) != 1 || logs[0].Source != domain.SourceSweep {
		t.Errorf("notify logs = %+v, want one sweep entry", logs)
	}
}

func TestSweep_CountsGatewayFailures(t *testing.T) {
	f := newFixture(t, service.RenewOverwrite)
	u := testutil.CreateUser(t, f.db, "forgetful")
	testutil.CreatePendingOrder(t, f.db, "X1", domain.OrderTypeCourse, 42, u.ID, "9.99")
	f.db.Model(&models.Order{}).Where("out_trade_no = ?", "X1").Update("created_at", time.Now().Add(-time.Hour))
	gw := newFakeGateway()
	gw.queryErr = payment.ErrGateway

	rep, err := service.NewSweepService(f.store, gw, f.reconcile, zaptest.NewLogger(t)).Sweep(context.Background(), time.Minute, 10, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Scanned != 1 || rep.Failed != 1 {
		t.Errorf("report = %+v, want the failure counted", rep)
	}
}

func TestNotificationService_AnnouncesSuccessOnly(t *testing.T) {
	f := newFixture(t, service.RenewOverwrite)
	notes := service.NewNotificationService(f.store, zaptest.NewLogger(t))
	f.reconcile.AddListener(notes)
	u := testutil.CreateUser(t, f.db, "buyer")
	testutil.CreatePendingOrder(t, f.db, "OK", domain.OrderTypeCourse, 42, u.ID, "9.99")
	testutil.CreatePendingOrder(t, f.db, "NO", domain.OrderTypeCourse, 43, u.ID, "9.99")
	ctx := context.Background()

	if _, err := f.reconcile.Observe(ctx, service.Observation{OutTradeNo: "OK", TradeNo: "T1", Status: payment.TradeSuccess, Source: domain.SourceWebhook}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reconcile.Observe(ctx, service.Observation{OutTradeNo: "NO", Status: payment.TradeClosed, Source: domain.SourcePoll}); err != nil {
		t.Fatal(err)
	}
	page, err := notes.List(ctx, u.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Notifications) != 1 || page.Unread != 1 {
		t.Fatalf("page = %+v, want one unread notification", page)
	}
	n := page.Notifications[0]
	if n.Type != service.NotificationPaymentConfirmed || n.OutTradeNo != "OK" {
		t.Errorf("notification = %+v", n)
	}
	for i := 0; i < 2; i++ {
		if err := notes.MarkRead(ctx, n.ID, u.ID); err != nil {
			t.Errorf("MarkRead #%d: %v", i, err)
		}
	}
	if page, _ = notes.List(ctx, u.ID, 10, 0); page.Unread != 0 {
		t.Errorf("unread = %d after MarkRead", page.Unread)
	}
	if err := notes.MarkRead(ctx, n.ID, u.ID+1); !errors.Is(err, repository.ErrNotificationNotFound) {
		t.Errorf("MarkRead by another user: %v", err)
	}
}
