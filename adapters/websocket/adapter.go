package websocket

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"scoreboard/core"
	"scoreboard/realtime"
)

// Handler returns an http.Handler that upgrades to WebSocket and streams
// events from the hub. An `actor` query parameter scopes the stream to that
// actor's personal events plus global leaderboard changes.
func Handler(hub *realtime.Hub) http.Handler {
	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var id int
		var ch <-chan core.Event
		if actor := r.URL.Query().Get("actor"); actor != "" {
			normalized, err := core.NormalizeActorID(core.ActorID(actor))
			if err != nil {
				return
			}
			id, ch = hub.SubscribeActor(normalized, 256)
		} else {
			id, ch = hub.Subscribe(256)
		}
		defer hub.Unsubscribe(id)

		for ev := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
				return
			}
		}
	})
}
