package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	myMiddleware "roomcast/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the fronting proxy
	},
}

type Handler struct {
	// ctx bounds store work started by connections; it ends at shutdown.
	ctx        context.Context
	hub        *Hub
	service    *Service
	bufferSize int
	log        *slog.Logger
}

func NewHandler(ctx context.Context, hub *Hub, service *Service, bufferSize int, log *slog.Logger) *Handler {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	hub.OnSlowConsumer(func(s Subscriber) {
		if c, ok := s.(*Client); ok {
			c.Close()
		}
	})
	return &Handler{
		ctx:        ctx,
		hub:        hub,
		service:    service,
		bufferSize: bufferSize,
		log:        log,
	}
}

// ServeWs upgrades an authenticated request. The auth middleware has already
// refused requests without a valid credential.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, newError(ErrAuthentication, "Unauthorized"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := newClient(h.ctx, conn, userID, h.bufferSize, h.service, h.log)
	if err := h.service.Register(h.ctx, client.session); err != nil {
		client.warn(err)
	}
	h.log.Info("Socket connected", "user_id", userID, "username", client.session.Username)

	go client.writePump()
	go client.readPump()
}

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	userID, _ := myMiddleware.UserIDFrom(r.Context())
	rooms, err := h.service.ListRooms(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rooms": rooms})
}

func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := myMiddleware.UserIDFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")

	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, newError(ErrValidation, "before must be an RFC3339 timestamp"))
			return
		}
		before = t
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, newError(ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	messages, err := h.service.History(r.Context(), userID, roomID, before, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": messages})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	payload := ToPayload(err)
	writeJSON(w, payload.Code, payload)
}
