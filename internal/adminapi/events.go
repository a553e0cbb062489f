package adminapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Operator tool accessed from a local admin UI or curl, not a
	// browser page served cross-origin — no origin restriction needed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsPingInterval = 30 * time.Second

// ServeWS upgrades the request to a websocket and streams every
// wireEvent the hub observes until the client disconnects or a write
// fails.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("admin event stream websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, cancel := h.subscribe()
	defer cancel()

	log := hlog.FromRequest(r)
	log.Info().Msg("admin event stream client connected")

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				log.Info().Err(err).Msg("admin event stream client disconnected")
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
