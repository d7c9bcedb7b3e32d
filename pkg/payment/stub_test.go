package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStubGateway_Lifecycle(t *testing.T) {
	g := NewStubGateway("secret")
	ctx := context.Background()

	resp, err := g.Precreate(ctx, PrecreateRequest{OutTradeNo: "SF1", Amount: decimal.RequireFromString("1.00"), Subject: "Course"})
	if err != nil {
		t.Fatalf("Precreate: %v", err)
	}
	if resp.QRCode == "" {
		t.Error("empty qr code")
	}

	q, err := g.Query(ctx, "SF1")
	if err != nil || q.Status != WaitBuyerPay {
		t.Fatalf("Query = %+v, %v; want WAIT_BUYER_PAY", q, err)
	}

	g.SetStatus("SF1", TradeSuccess, "T1")
	q, _ = g.Query(ctx, "SF1")
	if q.Status != TradeSuccess || q.TradeNo != "T1" {
		t.Errorf("Query after pay = %+v", q)
	}

	if q, _ := g.Query(ctx, "missing"); q.Status != Unknown {
		t.Errorf("unknown trade status = %s", q.Status)
	}
}

func TestStubGateway_VerifyNotification(t *testing.T) {
	g := NewStubGateway("secret")
	form := g.Notification("SF1", "T1", TradeSuccess)
	if !g.VerifyNotification(form) {
		t.Fatal("own notification rejected")
	}
	form.Set("trade_status", string(TradeClosed))
	if g.VerifyNotification(form) {
		t.Error("tampered notification accepted")
	}
	if NewStubGateway("other").VerifyNotification(g.Notification("SF1", "T1", TradeSuccess)) {
		t.Error("notification verified with a different secret")
	}
	if NewStubGateway("").VerifyNotification(g.Notification("SF1", "T1", TradeSuccess)) {
		t.Error("empty secret must reject everything")
	}
}
