package ws

import (
	"context"
	"encoding/json"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/models"
)

func TestHub_OrderSettledReachesOwnerOnly(t *testing.T) {
	h := NewHub()
	buyer := NewClient(1)
	second := NewClient(1)
	stranger := NewClient(2)
	for _, c := range []*Client{buyer, second, stranger} {
		h.Register(c)
	}

	uid := uint(1)
	h.OrderSettled(context.Background(), &models.Order{
		OutTradeNo: "SF1",
		Status:     domain.OrderStatusSuccess,
		OrderType:  domain.OrderTypeCourse,
		ProductID:  42,
		UserID:     &uid,
	})

	for _, c := range []*Client{buyer, second} {
		select {
		case data := <-c.Send:
			var ev OrderEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatal(err)
			}
			if ev.Type != "order_settled" || ev.OutTradeNo != "SF1" || ev.Status != "success" {
				t.Errorf("event = %+v", ev)
			}
		default:
			t.Error("owner connection got nothing")
		}
	}
	select {
	case <-stranger.Send:
		t.Error("event leaked to another user")
	default:
	}
}

func TestClient_CloseUnregisters(t *testing.T) {
	h := NewHub()
	c := NewClient(7)
	h.Register(c)
	if h.ClientCount() != 1 {
		t.Fatalf("count = %d", h.ClientCount())
	}
	c.Close()
	c.Close()
	if h.ClientCount() != 0 {
		t.Errorf("count = %d after close", h.ClientCount())
	}
	// Delivering to a closed client must not panic.
	c.deliver([]byte("late"))
}

func TestClient_Watched(t *testing.T) {
	c := NewClient(1)
	c.Watch("A")
	c.Watch("B")
	c.Watch("A")
	c.Unwatch("B")
	if got := c.Watched(); len(got) != 1 || got[0] != "A" {
		t.Errorf("watched = %v", got)
	}
}
