package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/config"
	"storefront/internal/auth"
	"storefront/internal/domain"
	"storefront/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

type cancelCall struct {
	userID uint
	no     string
	reason string
}

type recordingCanceller struct {
	mu    sync.Mutex
	calls []cancelCall
}

func (r *recordingCanceller) CancelPoll(_ context.Context, userID uint, no, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cancelCall{userID, no, reason})
	return true, nil
}

func (r *recordingCanceller) snapshot() []cancelCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cancelCall(nil), r.calls...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUpgradeOrdersWS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.JWTConfig{AccessSecret: "s", AccessExpiry: time.Hour}
	hub := NewHub()
	polls := &recordingCanceller{}

	r := gin.New()
	r.GET("/ws/orders", UpgradeOrdersWS(cfg, hub, polls, zaptest.NewLogger(t)))
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/orders"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without token: %v", err)
	}

	tok, _ := auth.GenerateAccessToken(cfg, 3, "b@example.com", domain.RoleUser)
	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+tok, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 1 })

	for _, msg := range []string{
		`{"type":"watch","out_trade_no":"A"}`,
		`{"type":"watch","out_trade_no":"B"}`,
		`{"type":"hidden","out_trade_no":"B"}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "hidden cancel", func() bool { return len(polls.snapshot()) == 1 })

	uid := uint(3)
	hub.OrderSettled(context.Background(), &models.Order{OutTradeNo: "A", Status: domain.OrderStatusSuccess, UserID: &uid})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"out_trade_no":"A"`) {
		t.Errorf("pushed %s", data)
	}

	conn.Close()
	waitFor(t, "teardown cancel", func() bool { return len(polls.snapshot()) == 2 })
	calls := polls.snapshot()
	if calls[0] != (cancelCall{3, "B", "hidden"}) {
		t.Errorf("first cancel = %+v", calls[0])
	}
	if calls[1] != (cancelCall{3, "A", "teardown"}) {
		t.Errorf("teardown cancel = %+v", calls[1])
	}
	waitFor(t, "unregister", func() bool { return hub.ClientCount() == 0 })
}
