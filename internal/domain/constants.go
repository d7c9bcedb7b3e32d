package domain

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

const PayChannelAlipay = "alipay"

// OrderType selects which entitlement a successful order grants.
type OrderType string

const (
	OrderTypeMember OrderType = "member"
	OrderTypeCourse OrderType = "course"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeMember || t == OrderTypeCourse
}

// OrderStatus moves from pending to exactly one terminal value.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusSuccess OrderStatus = "success"
	OrderStatusClosed  OrderStatus = "closed"
	OrderStatusFailed  OrderStatus = "failed"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusSuccess || s == OrderStatusClosed || s == OrderStatusFailed
}

// Source identifies the channel a gateway status observation arrived on.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceSweep   Source = "sweep"
)
