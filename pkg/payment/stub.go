package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// StubGateway is an in-process gateway for development. Trades start in
// WAIT_BUYER_PAY and move with SetStatus; notifications are signed with an
// HMAC-SHA256 over the canonical form.
type StubGateway struct {
	secret string
	mu     sync.Mutex
	trades map[string]*stubTrade
}

type stubTrade struct {
	status  TradeStatus
	tradeNo string
}

func NewStubGateway(secret string) *StubGateway {
	return &StubGateway{secret: secret, trades: make(map[string]*stubTrade)}
}

func (s *StubGateway) Precreate(ctx context.Context, req PrecreateRequest) (*PrecreateResponse, error) {
	if _, err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	if _, err := SanitizeSubject(req.Subject); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	s.mu.Lock()
	s.trades[req.OutTradeNo] = &stubTrade{status: WaitBuyerPay}
	s.mu.Unlock()
	return &PrecreateResponse{
		OutTradeNo: req.OutTradeNo,
		QRCode:     "stub://pay/" + req.OutTradeNo,
	}, nil
}

func (s *StubGateway) Query(ctx context.Context, outTradeNo string) (*QueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[outTradeNo]
	if !ok {
		return &QueryResponse{OutTradeNo: outTradeNo, Status: Unknown}, nil
	}
	return &QueryResponse{
		OutTradeNo: outTradeNo,
		TradeNo:    t.tradeNo,
		Status:     t.status,
		Raw:        fmt.Sprintf(`{"out_trade_no":%q,"trade_status":%q}`, outTradeNo, t.status),
	}, nil
}

// SetStatus moves a stub trade, as the buyer's wallet app would.
func (s *StubGateway) SetStatus(outTradeNo string, status TradeStatus, tradeNo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[outTradeNo]
	if !ok {
		t = &stubTrade{}
		s.trades[outTradeNo] = t
	}
	t.status = status
	if tradeNo != "" {
		t.tradeNo = tradeNo
	}
}

// Notification builds a signed notify form like the real gateway would push.
func (s *StubGateway) Notification(outTradeNo, tradeNo string, status TradeStatus) url.Values {
	form := url.Values{}
	form.Set("notify_time", time.Now().Format(timestampLayout))
	form.Set("notify_type", "trade_status_sync")
	form.Set("out_trade_no", outTradeNo)
	form.Set("trade_no", tradeNo)
	form.Set("trade_status", string(status))
	form.Set("sign_type", "HMAC-SHA256")
	form.Set("sign", s.sign(form))
	return form
}

func (s *StubGateway) VerifyNotification(form url.Values) bool {
	sig := form.Get("sign")
	if sig == "" || s.secret == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(s.sign(form)))
}

func (s *StubGateway) sign(form url.Values) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(signContent(form, "sign", "sign_type")))
	return hex.EncodeToString(mac.Sum(nil))
}
