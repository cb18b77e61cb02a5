package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"glacierguard-api/logger"
	"glacierguard-api/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

type liveMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// LiveWebSocket streams every detection published on services.LiveChannel.
// A nil authService leaves the feed open; otherwise ?token= must hold a
// valid JWT. allowOrigin decides the upgrade origin check.
func LiveWebSocket(cache *services.CacheService, authService *services.AuthService, allowOrigin func(string) bool) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin(origin)
		},
	}

	return func(c *gin.Context) {
		if authService != nil {
			tokenStr := c.Query("token")
			if tokenStr == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token query parameter"})
				return
			}
			if _, err := authService.ValidateToken(tokenStr); err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
				return
			}
		}

		if !cache.Available() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed unavailable"})
			return
		}

		log := logger.C(c.Request.Context())

		// Confirm the subscription before the upgrade so nothing published
		// after the handshake is missed.
		pubsub := cache.Subscribe(c.Request.Context(), services.LiveChannel)
		defer pubsub.Close()
		if _, err := pubsub.Receive(c.Request.Context()); err != nil {
			log.Warn().Err(err).Msg("live feed subscribe failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed unavailable"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// Read pump: detect client disconnect
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				err := conn.WriteJSON(liveMessage{
					Type: "detection_created",
					Data: json.RawMessage(msg.Payload),
				})
				if err != nil {
					log.Debug().Err(err).Msg("websocket write failed")
					return
				}
			}
		}
	}
}
