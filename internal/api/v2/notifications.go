package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/facilityops/watchpost/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	defaultNotificationLimit = 50

	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamMaxMsgSize = 1024
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers send Origin on upgrade; it must match Host to block
		// cross-site websocket hijacking. Non-browser clients omit it.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// initNotificationRoutes registers the notification endpoints.
func (c *Controller) initNotificationRoutes() {
	n := c.Group.Group("/notifications")
	n.GET("", c.GetNotifications)
	n.GET("/ws", c.StreamNotifications)
}

// GetNotifications returns the most recent notifications, newest first.
func (c *Controller) GetNotifications(ctx echo.Context) error {
	limit := defaultNotificationLimit
	if v := ctx.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return badRequest(ctx, "Invalid limit")
		}
		limit = parsed
	}

	items := c.notifications.Recent(limit)
	return ctx.JSON(http.StatusOK, map[string]any{
		"notifications": items,
		"count":         len(items),
		"limit":         limit,
	})
}

// StreamNotifications pushes every new notification to a websocket client
// as a JSON text message.
func (c *Controller) StreamNotifications(ctx echo.Context) error {
	// Subscribe before the handshake completes so nothing delivered after
	// the client sees the upgrade is missed.
	updates, unsubscribe := c.notifications.Subscribe()
	defer unsubscribe()

	conn, err := streamUpgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.log.Warn("failed to upgrade notification websocket", logger.Error(err))
		// Upgrade already wrote the HTTP error.
		return nil
	}
	defer func() { _ = conn.Close() }()

	clientIP := ctx.RealIP()
	c.log.Info("notification stream connected", logger.String("ip", clientIP))
	defer c.log.Info("notification stream disconnected", logger.String("ip", clientIP))

	// The read loop only handles control frames and notices the client
	// going away.
	closed := make(chan struct{})
	conn.SetReadLimit(streamMaxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Only this goroutine writes to conn.
	write := func(fn func() error) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return fn()
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case n, ok := <-updates:
			if !ok {
				_ = write(func() error {
					return conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "notification service closed"))
				})
				return nil
			}
			if err := write(func() error { return conn.WriteJSON(n) }); err != nil {
				return nil
			}
		case <-ping.C:
			if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				return nil
			}
		case <-closed:
			return nil
		case <-c.ctx.Done():
			_ = write(func() error {
				return conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			})
			return nil
		}
	}
}
