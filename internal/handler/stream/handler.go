// Package stream pushes live drawer state to the presentation layer over
// Server-Sent Events and WebSocket, and accepts gestures over the socket.
package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	drawerservice "github.com/zhouzirui/chat-drawer/backend/internal/service/drawer"
	"github.com/zhouzirui/chat-drawer/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Option configures a Handler.
type Option func(*Handler)

// WithHeartbeat sets the SSE heartbeat and WebSocket ping period.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// Handler serves the live event endpoints of open drawers.
type Handler struct {
	drawers   *drawerservice.Service
	conns     *ConnectionManager
	upgrader  websocket.Upgrader
	heartbeat time.Duration
}

// New creates a new stream handler
func New(drawers *drawerservice.Service, opts ...Option) *Handler {
	h := &Handler{
		drawers: drawers,
		conns:   NewConnectionManager(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		heartbeat: defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes 注册SSE与WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

// Close drops every live socket.
func (h *Handler) Close() {
	h.conns.CloseAll()
}

// handleEvents streams chat and recording snapshots until the client leaves
// or the drawer is closed.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	panel, err := h.drawers.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	chatUpdates, stopChat := panel.Session().Subscribe()
	defer stopChat()
	recordingUpdates, stopRecording := panel.Recorder().Subscribe()
	defer stopRecording()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	log.Printf("[sse] opening event stream for session=%s", sessionID)

	if err := utils.SendSSEEvent(w, flusher, eventChat, panel.ChatSnapshot()); err != nil {
		log.Printf("[sse] session=%s initial write failed: %v", sessionID, err)
		return
	}
	if err := utils.SendSSEEvent(w, flusher, eventRecording, panel.RecordingSnapshot()); err != nil {
		log.Printf("[sse] session=%s initial write failed: %v", sessionID, err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			log.Printf("[sse] client left session=%s", sessionID)
			return
		case snap, ok := <-chatUpdates:
			if !ok {
				utils.SendSSEChunk(w, flusher, map[string]any{
					"event":     "closed",
					"sessionId": sessionID,
				})
				log.Printf("[sse] session=%s closed, ending stream", sessionID)
				return
			}
			err = utils.SendSSEEvent(w, flusher, eventChat, snap)
		case snap, ok := <-recordingUpdates:
			if !ok {
				recordingUpdates = nil
				continue
			}
			err = utils.SendSSEEvent(w, flusher, eventRecording, snap)
		case t := <-ticker.C:
			err = utils.SendSSEChunk(w, flusher, map[string]any{
				"event": "heartbeat",
				"time":  t.UTC().Format(time.RFC3339),
			})
		}
		if err != nil {
			log.Printf("[sse] session=%s write failed: %v", sessionID, err)
			return
		}
	}
}
