// Package progress fans live task progress out to attached observers,
// typically one WebSocket per task.
package progress

import (
	"sync"
	"time"

	"github.com/mediaforge/mediaforge/internal/models"
)

// Update is one progress frame pushed to an observer.
type Update struct {
	Progress int    `json:"progress"`
	Status   string `json:"status,omitempty"`
}

// Terminal reports whether the update carries a terminal status.
func (u Update) Terminal() bool {
	return u.Status == string(models.TaskStatusCompleted) || u.Status == string(models.TaskStatusFailed)
}

// observerBuffer is the per-observer channel capacity. Progress is
// idempotent, so a full buffer just drops the tick.
const observerBuffer = 16

// terminalSendTimeout bounds the synchronous delivery of a terminal update
// to an observer that has stopped reading.
const terminalSendTimeout = 5 * time.Second

// observer wraps a channel so that concurrent displacement and publishing
// cannot send on a closed channel.
type observer struct {
	mu     sync.Mutex
	ch     chan Update
	closed bool
}

func newObserver() *observer {
	return &observer{ch: make(chan Update, observerBuffer)}
}

// send delivers an update; blocking sends wait up to the terminal timeout.
func (o *observer) send(update Update, block bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if block {
		select {
		case o.ch <- update:
		case <-time.After(terminalSendTimeout):
		}
		return
	}
	select {
	case o.ch <- update:
	default:
	}
}

func (o *observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// Hub maps task ids to at most one observer channel each.
type Hub struct {
	mu        sync.Mutex
	observers map[models.ULID]*observer
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{observers: make(map[models.ULID]*observer)}
}

// Attach registers an observer for a task and returns its channel. An
// existing observer is displaced: its channel is closed and replaced.
func (h *Hub) Attach(taskID models.ULID) <-chan Update {
	obs := newObserver()

	h.mu.Lock()
	old, had := h.observers[taskID]
	h.observers[taskID] = obs
	h.mu.Unlock()

	if had {
		old.close()
	}
	return obs.ch
}

// Detach removes and closes a task's observer. Detaching a task with no
// observer is a no-op, as is detaching twice.
func (h *Hub) Detach(taskID models.ULID) {
	h.mu.Lock()
	obs, ok := h.observers[taskID]
	delete(h.observers, taskID)
	h.mu.Unlock()

	if ok {
		obs.close()
	}
}

// Publish pushes an update to the task's observer. With no observer attached
// it is a silent drop. Non-terminal updates never block: a full observer
// buffer drops the tick (the next one supersedes it). Terminal updates are
// delivered synchronously, bounded by a timeout, and detach the observer
// afterwards.
func (h *Hub) Publish(taskID models.ULID, update Update) {
	h.mu.Lock()
	obs, ok := h.observers[taskID]
	h.mu.Unlock()
	if !ok {
		return
	}

	if !update.Terminal() {
		obs.send(update, false)
		return
	}

	obs.send(update, true)
	h.Detach(taskID)
}

// Observers returns the number of attached observers.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}
