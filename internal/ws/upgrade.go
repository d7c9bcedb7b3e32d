package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"storefront/config"
	"storefront/internal/auth"
	"storefront/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PollCanceller stops the poll session of an order the user owns. reason is
// one of user, navigation, hidden or teardown.
type PollCanceller interface {
	CancelPoll(ctx context.Context, userID uint, outTradeNo, reason string) (bool, error)
}

// ClientMessage is what the page sends: watch an order, or report that the
// user cancelled, navigated away or hid the tab.
type ClientMessage struct {
	Type       string `json:"type"`
	OutTradeNo string `json:"out_trade_no"`
}

// UpgradeOrdersWS serves GET /ws/orders?token= (or a bearer header). Settled orders are pushed to
// the user; orders the connection watched are cancelled when it closes.
func UpgradeOrdersWS(cfg *config.JWTConfig, hub *Hub, polls PollCanceller, log *zap.Logger) gin.HandlerFunc {
	log = log.Named("ws")
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client := NewClient(claims.UserID)
		hub.Register(client)
		defer func() {
			client.Close()
			for _, no := range client.Watched() {
				if _, err := polls.CancelPoll(context.Background(), client.UserID, no, "teardown"); err != nil {
					log.Debug("teardown cancel", zap.String("out_trade_no", no), zap.Error(err))
				}
			}
		}()

		go writePump(client, conn)
		readPump(c.Request.Context(), client, conn, polls, log)
	}
}

// writePump copies messages from client.Send to the connection.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(ctx context.Context, c *Client, conn *websocket.Conn, polls PollCanceller, log *zap.Logger) {
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.OutTradeNo == "" {
			continue
		}
		switch msg.Type {
		case "watch":
			c.Watch(msg.OutTradeNo)
		case "cancel", "user", "navigation", "hidden":
			reason := msg.Type
			if reason == "cancel" {
				reason = "user"
			}
			c.Unwatch(msg.OutTradeNo)
			if _, err := polls.CancelPoll(ctx, c.UserID, msg.OutTradeNo, reason); err != nil {
				log.Debug("client cancel", zap.String("out_trade_no", msg.OutTradeNo), zap.Error(err))
			}
		}
	}
}
