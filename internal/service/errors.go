package service

import "errors"

var (
	ErrUnauthenticated   = errors.New("no authenticated user")
	ErrForbidden         = errors.New("order belongs to another user")
	ErrUnknownOrderType  = errors.New("unknown order type")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrAmountMismatch    = errors.New("amount does not match plan price")
	ErrInvalidOutTradeNo = errors.New("out_trade_no must be 1-64 characters of [A-Za-z0-9_-]")
	ErrEntitlement       = errors.New("entitlement grant failed")
)
