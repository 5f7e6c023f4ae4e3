package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/logsift/logsift/pkg/config"
	"github.com/logsift/logsift/pkg/obs"
	"github.com/logsift/logsift/pkg/query"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleStream handles GET /api/v1/search/stream: a websocket session
// that replays a search as a sequence of JSON events (init, pages,
// incremental histograms, done). Closing the connection cancels the
// underlying search.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.PageSize <= 0 {
		req.PageSize = config.StreamPageSize
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	obs.Get().StreamSessionsOpen.Inc()
	defer obs.Get().StreamSessionsOpen.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client sends nothing meaningful; the read loop exists to
	// observe the close frame and cancel the search.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := h.executor.Stream(ctx, req)
	ping := time.NewTicker(config.WSPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				deadline := time.Now().Add(config.WSWriteDeadline)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.WithError(err).Debug("stream write failed, closing")
				return
			}
			if ev.Type == query.EventError {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(config.WSWriteDeadline)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
