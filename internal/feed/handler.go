package feed

import (
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// OriginChecker accepts same-host origins, requests without an Origin
// header, and anything listed in allowed (full origins or bare hosts).
func OriginChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := neturl.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			a = strings.TrimSpace(a)
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
			if au, err2 := neturl.Parse(a); err2 == nil && au.Host != "" {
				if strings.EqualFold(au.Host, u.Host) {
					return true
				}
			} else if strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}

// Handler upgrades feed requests. A "since" query parameter replays history
// newer than that message id before live delivery starts.
func (b *Broadcaster) Handler(allowedOrigins []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: OriginChecker(allowedOrigins)}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied.
			return
		}

		var backlog []Message
		if raw := r.URL.Query().Get("since"); raw != "" {
			if cursor, perr := strconv.ParseUint(raw, 10, 64); perr == nil {
				backlog, _, _ = b.FetchSince(cursor, 0)
			}
		}
		for _, msg := range backlog {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				_ = conn.Close()
				return
			}
		}

		if err := b.AddClient(conn); err != nil {
			_ = conn.WriteJSON(map[string]string{"error": "Maximum connections reached"})
			_ = conn.Close()
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			b.touch(conn)
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		for {
			if _, _, err := conn.NextReader(); err != nil {
				log.Debugf("feed reader closed: %v", err)
				b.RemoveClient(conn)
				return
			}
			b.touch(conn)
		}
	}
}
