package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mediaforge/mediaforge/internal/http/middleware"
	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/progress"
	"github.com/mediaforge/mediaforge/internal/service"
)

// wsWriteTimeout bounds a single progress frame write.
const wsWriteTimeout = 10 * time.Second

// ProgressHandler streams live task progress over WebSocket.
type ProgressHandler struct {
	tasks    *service.TaskService
	tokens   middleware.TokenParser
	users    middleware.UserLoader
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(tasks *service.TaskService, tokens middleware.TokenParser, users middleware.UserLoader, logger *slog.Logger) *ProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressHandler{
		tasks:  tasks,
		tokens: tokens,
		users:  users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin access is governed by the CORS configuration; the
			// upgrade itself is open.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// RegisterRaw mounts the WebSocket route on the router. Authentication is
// handled inside the handler so browsers can pass the token as a query
// parameter.
func (h *ProgressHandler) RegisterRaw(router chi.Router) {
	router.Get("/ws/progress/{id}", h.HandleProgress)
}

// HandleProgress upgrades the connection and pushes progress frames until
// the task reaches a terminal state or the client goes away.
func (h *ProgressHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.ResolveUser(r, h.tokens, h.users)
	if err != nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	id, err := models.ParseULID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}

	task, err := h.tasks.GetOwned(r.Context(), user.ID, id)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			http.Error(w, "task not found", http.StatusNotFound)
		case errors.Is(err, models.ErrForbidden):
			http.Error(w, "forbidden", http.StatusForbidden)
		default:
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer conn.Close()

	// A task that finished before the observer arrived gets one final frame.
	if task.IsTerminal() {
		h.writeFrame(conn, progress.Update{Progress: task.Progress, Status: string(task.Status)})
		h.writeClose(conn)
		return
	}

	hub := h.tasks.Hub()
	updates := hub.Attach(id)

	// Drain client frames purely to notice disconnects.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				// Terminal update delivered (or observer displaced).
				h.writeClose(conn)
				return
			}
			if !h.writeFrame(conn, update) {
				hub.Detach(id)
				return
			}
		case <-clientGone:
			hub.Detach(id)
			return
		}
	}
}

func (h *ProgressHandler) writeFrame(conn *websocket.Conn, update progress.Update) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(update); err != nil {
		h.logger.Debug("progress frame write failed", slog.Any("error", err))
		return false
	}
	return true
}

func (h *ProgressHandler) writeClose(conn *websocket.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
