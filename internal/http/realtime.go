package httpx

import (
	"net/http"
	"time"

	"github.com/splax/athlink/internal/dispatch"
	"github.com/splax/athlink/internal/gate"
	"github.com/splax/athlink/internal/presence"
	"github.com/splax/athlink/internal/ws"
)

const sseHeartbeatInterval = 25 * time.Second

const (
	transportWebsocket = "websocket"
	transportSSE       = "sse"
)

type realtimeChannel interface {
	presence.Channel
	ws.Subscriber
}

func (r *Router) handlePresence(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	entries := r.registry.Entries()
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": entries,
		"count":     len(entries),
	})
}

// admitChannel runs the gate before any upgrade so refused callers get a
// plain HTTP error.
func (r *Router) admitChannel(w http.ResponseWriter, req *http.Request) (string, bool) {
	userID, err := r.gate.Admit(req.Context(), gate.CredentialFromRequest(req))
	if err != nil {
		r.rejectAuth(w, req, err)
		return "", false
	}
	if setter, ok := w.(contextSetter); ok {
		setter.SetContext(withAuthInfo(req.Context(), authInfo{UserID: userID}))
	}
	return userID, true
}

func (r *Router) attach(userID, transport string, ch realtimeChannel) {
	r.registry.Register(userID, ch)
	r.hub.Register(dispatch.Group(userID), ch)
	r.metrics.ChannelOpened(transport)
	r.logger.Info("channel connected", "user_id", userID, "channel_id", ch.ID(), "transport", transport)
}

func (r *Router) detach(userID, transport string, ch realtimeChannel) {
	r.registry.UnregisterChannel(userID, ch)
	r.hub.Unregister(dispatch.Group(userID), ch)
	ch.Close()
	r.metrics.ChannelClosed(transport)
	r.logger.Info("channel disconnected", "user_id", userID, "channel_id", ch.ID(), "transport", transport)
}

func (r *Router) handleWebsocket(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	userID, ok := r.admitChannel(w, req)
	if !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}
	client := ws.NewClient(conn, userID, r.logger)
	r.attach(userID, transportWebsocket, client)
	defer r.detach(userID, transportWebsocket, client)
	client.ReadLoop()
}

func (r *Router) handleEventStream(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	userID, ok := r.admitChannel(w, req)
	if !ok {
		return
	}
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.attach(userID, transportSSE, client)
	defer r.detach(userID, transportSSE, client)

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
