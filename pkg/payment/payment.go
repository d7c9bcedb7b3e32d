package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidSubject = errors.New("subject is empty after sanitizing")
	ErrGateway        = errors.New("payment gateway error")
)

// MinAmount is the smallest chargeable amount.
var MinAmount = decimal.RequireFromString("0.01")

const MaxSubjectRunes = 128

// TradeStatus is the gateway's trade state vocabulary; values are sent and
// received verbatim.
type TradeStatus string

const (
	WaitBuyerPay  TradeStatus = "WAIT_BUYER_PAY"
	TradeSuccess  TradeStatus = "TRADE_SUCCESS"
	TradeFinished TradeStatus = "TRADE_FINISHED"
	TradeClosed   TradeStatus = "TRADE_CLOSED"
	Unknown       TradeStatus = "UNKNOWN"
)

// ParseTradeStatus maps anything outside the vocabulary to Unknown.
func ParseTradeStatus(s string) TradeStatus {
	switch ts := TradeStatus(s); ts {
	case WaitBuyerPay, TradeSuccess, TradeFinished, TradeClosed:
		return ts
	}
	return Unknown
}

type PrecreateRequest struct {
	OutTradeNo string
	Amount     decimal.Decimal
	Subject    string
}

type PrecreateResponse struct {
	OutTradeNo string
	QRCode     string
}

type QueryResponse struct {
	OutTradeNo string
	TradeNo    string
	Status     TradeStatus
	Raw        string
}

// Gateway creates payment intents, reports their status and authenticates
// pushed notifications.
type Gateway interface {
	Precreate(ctx context.Context, req PrecreateRequest) (*PrecreateResponse, error)
	Query(ctx context.Context, outTradeNo string) (*QueryResponse, error)
	VerifyNotification(form url.Values) bool
}

// ValidateAmount rejects amounts below MinAmount or with fractions of a cent.
// The result is normalized to two decimal places.
func ValidateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThan(MinAmount) {
		return decimal.Zero, fmt.Errorf("%w: must be at least %s", ErrInvalidAmount, MinAmount)
	}
	a := amount.Round(2)
	if !a.Equal(amount) {
		return decimal.Zero, fmt.Errorf("%w: at most two decimal places", ErrInvalidAmount)
	}
	return a, nil
}

// SanitizeSubject strips characters that break the gateway's signed
// key=value encoding and caps the length.
func SanitizeSubject(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		switch r {
		case '&', '=', '/', '\\', '"', '\'', '?', '#', '%', '+':
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if utf8.RuneCountInString(out) > MaxSubjectRunes {
		out = strings.TrimSpace(string([]rune(out)[:MaxSubjectRunes]))
	}
	if out == "" {
		return "", ErrInvalidSubject
	}
	return out, nil
}
