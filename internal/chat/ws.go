package chat

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 50 * time.Second
	maxFrameSize = 4096
)

// Authenticator resolves a bearer token to a user id.
type Authenticator func(token string) (userID string, err error)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type hello struct {
	Kind string `json:"kind"`
	Data struct {
		UserID string `json:"user_id"`
	} `json:"data"`
}

// Handler upgrades GET /ws?token=<jwt> and keeps the connection registered in
// hub until the client goes away. Inbound frames are ignored; the channel is
// push-only.
func Handler(hub *Hub, authenticate Authenticator, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		userID, err := authenticate(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		hub.Add(userID, ws)
		logger.Info("live connection opened", "user_id", userID)
		defer func() {
			if hub.Remove(userID, ws) {
				_ = ws.Close()
			}
			logger.Info("live connection closed", "user_id", userID)
		}()

		var h hello
		h.Kind = "hello"
		h.Data.UserID = userID
		if hub.Send(userID, h) == 0 {
			return
		}

		done := make(chan struct{})
		defer close(done)
		go ping(ws, done)

		ws.SetReadLimit(maxFrameSize)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func ping(ws *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
