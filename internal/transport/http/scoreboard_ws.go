package http

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quiz-admin-service/internal/app"
)

// ScoreboardWSHandler streams the public scoreboard snapshot to event
// screens. The feed carries only unconditionally readable data, so no
// principal is required and none is checked.
type ScoreboardWSHandler struct {
	service  *app.AdminService
	interval time.Duration
	upgrader websocket.Upgrader
}

func NewScoreboardWSHandler(service *app.AdminService, interval time.Duration) *ScoreboardWSHandler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ScoreboardWSHandler{
		service:  service,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the connection and pushes a snapshot immediately, then on
// every tick until the client goes away.
func (h *ScoreboardWSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("scoreboard ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	// Reader goroutine: we never expect inbound messages, but reading is
	// required to notice the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !h.push(r, conn, quizID) {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !h.push(r, conn, quizID) {
				return
			}
		}
	}
}

func (h *ScoreboardWSHandler) push(r *http.Request, conn *websocket.Conn, quizID int64) bool {
	sb, err := h.service.Scoreboard(r.Context(), quizID)
	if err != nil {
		log.Printf("scoreboard load: %v", err)
		return false
	}
	if err := conn.WriteJSON(sb); err != nil {
		return false
	}
	return true
}
