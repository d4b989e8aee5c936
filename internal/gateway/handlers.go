package gateway

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// ServeWS upgrades the request and registers the connection. A client that
// reconnects may pass ?channel=X&after_seq=N to be backfilled from the replay
// buffer instead of receiving only the latest envelopes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	afterSeq := int64(-1)
	if v := r.URL.Query().Get("after_seq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "after_seq must be a non-negative integer", http.StatusBadRequest)
			return
		}
		afterSeq = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	h.Register(conn, r.URL.Query().Get("channel"), afterSeq)
}
