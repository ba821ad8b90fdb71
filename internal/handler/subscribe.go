package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cexgate/cexgate/internal/middleware"
	"github.com/cexgate/cexgate/internal/model"
	"github.com/cexgate/cexgate/internal/pkg/logger"
	"github.com/cexgate/cexgate/internal/service"
)

const (
	writeTimeout     = 10 * time.Second
	firstMsgTimeout  = 15 * time.Second
	closeGracePeriod = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The IP gate has already vetted the peer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type SubscribeHandler struct {
	manager *service.SubscriptionManager
}

func NewSubscribeHandler(manager *service.SubscriptionManager) *SubscribeHandler {
	return &SubscribeHandler{manager: manager}
}

// Subscribe handles GET /v1/subscribe. The subscription is described either
// by query parameters or, when those are absent, by the first JSON message
// on the socket. One connection carries one subscription.
func (h *SubscribeHandler) Subscribe(c *gin.Context) {
	sel := middleware.SelectorFrom(c)
	adhoc := middleware.AdhocFrom(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Warn("websocket upgrade failed", "error", err, "client_ip", c.ClientIP())
		return
	}
	defer conn.Close()

	req, err := h.subscribeRequest(c, conn)
	if err != nil {
		h.writeEvent(conn, model.StreamEvent{
			Error: &model.StreamError{Code: "invalid-argument", Message: err.Error()},
		})
		return
	}

	middleware.AddAuditContext(c, "exchange", req.Exchange)
	middleware.AddAuditContext(c, "subscription_type", req.Type)
	middleware.AddAuditContext(c, "symbol", req.Symbol)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reader goroutine: its only job is to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sub := h.manager.Run(ctx, req, sel, adhoc, func(event model.StreamEvent) error {
		return h.writeEvent(conn, event)
	})

	middleware.AddAuditContext(c, "termination_reason", string(sub.Reason()))
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(sub.Reason())),
		time.Now().Add(closeGracePeriod))
}

func (h *SubscribeHandler) subscribeRequest(c *gin.Context, conn *websocket.Conn) (*model.SubscribeRequest, error) {
	if c.Query("type") != "" || c.Query("exchange") != "" {
		req := &model.SubscribeRequest{
			Exchange: c.Query("exchange"),
			Symbol:   c.Query("symbol"),
			Type:     c.Query("type"),
		}
		if timeframe := c.Query("timeframe"); timeframe != "" {
			req.Options = map[string]string{"timeframe": timeframe}
		}
		return req, nil
	}

	conn.SetReadDeadline(time.Now().Add(firstMsgTimeout))
	var req model.SubscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})
	return &req, nil
}

func (h *SubscribeHandler) writeEvent(conn *websocket.Conn, event model.StreamEvent) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(event)
}
