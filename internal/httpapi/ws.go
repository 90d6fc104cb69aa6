package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// handleAuditWS streams audit events as JSON text frames. The feed is
// one-way; client frames other than control frames close the connection.
func (s *Server) handleAuditWS(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sub, ok := s.subscribe(filters, "ws")
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.unsubscribe(sub)

	conn, err := websocket.Accept(baseWriter(w), r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Printf("http: ws accept: %v", err)
		return
	}
	defer conn.CloseNow()

	s.opts.Metrics.IncWSClients(1)
	defer s.opts.Metrics.IncWSClients(-1)

	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case ev, ok := <-sub.ch:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
