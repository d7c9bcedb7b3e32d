package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"storefront/internal/models"
)

// Client represents a single WebSocket connection with user context.
type Client struct {
	UserID  uint
	Send    chan []byte
	Hub     *Hub // set by Register so Close can unregister
	mu      sync.Mutex
	closed  bool
	watched map[string]struct{}
}

func NewClient(userID uint) *Client {
	return &Client{
		UserID:  userID,
		Send:    make(chan []byte, 64),
		watched: make(map[string]struct{}),
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	if c.Hub != nil {
		c.Hub.unregister(c)
	}
}

// Watch records that this connection is following an order's payment.
func (c *Client) Watch(outTradeNo string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watched[outTradeNo] = struct{}{}
}

func (c *Client) Unwatch(outTradeNo string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.watched, outTradeNo)
}

func (c *Client) Watched() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.watched))
	for no := range c.watched {
		out = append(out, no)
	}
	return out
}

func (c *Client) deliver(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// OrderEvent is pushed to a buyer's connections when an order settles.
type OrderEvent struct {
	Type       string     `json:"type"`
	OutTradeNo string     `json:"out_trade_no"`
	Status     string     `json:"status"`
	OrderType  string     `json:"order_type"`
	ProductID  uint       `json:"product_id"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

// Hub maintains the set of active clients, indexed by user.
type Hub struct {
	mu     sync.RWMutex
	byUser map[uint]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{byUser: make(map[uint]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Hub = h
	if h.byUser[c.UserID] == nil {
		h.byUser[c.UserID] = make(map[*Client]struct{})
	}
	h.byUser[c.UserID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byUser[c.UserID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
}

func (h *Hub) BroadcastToUser(userID uint, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.mu.RLock()
	m := h.byUser[userID]
	clients := make([]*Client, 0, len(m))
	for c := range m {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.deliver(data)
	}
}

// OrderSettled pushes the committed order state to its owner.
func (h *Hub) OrderSettled(_ context.Context, order *models.Order) {
	if order.UserID == nil {
		return
	}
	h.BroadcastToUser(*order.UserID, OrderEvent{
		Type:       "order_settled",
		OutTradeNo: order.OutTradeNo,
		Status:     string(order.Status),
		OrderType:  string(order.OrderType),
		ProductID:  order.ProductID,
		PaidAt:     order.PaidAt,
	})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byUser {
		n += len(m)
	}
	return n
}
