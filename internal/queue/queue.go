// Package queue implements per-user FIFO task queues and the fair
// round-robin dispatcher that drains them.
package queue

import (
	"sync"

	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/transcode"
)

// Item is one queued unit of transcoding work.
type Item struct {
	TaskID        models.ULID
	OwnerID       models.ULID
	Plan          transcode.Plan
	TotalDuration float64
}

// Set maps owners to FIFO queues. A task appears in at most one queue and is
// removed strictly before it starts processing.
type Set struct {
	mu     sync.Mutex
	queues map[models.ULID][]*Item
}

// NewSet creates an empty queue set.
func NewSet() *Set {
	return &Set{queues: make(map[models.ULID][]*Item)}
}

// Enqueue appends an item to its owner's queue, creating the queue on first
// use. Never blocks, never fails.
func (s *Set) Enqueue(item *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[item.OwnerID] = append(s.queues[item.OwnerID], item)
}

// Dequeue pops the head of an owner's queue without blocking.
func (s *Set) Dequeue(ownerID models.ULID) (*Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[ownerID]
	if len(q) == 0 {
		return nil, false
	}
	item := q[0]
	if len(q) == 1 {
		delete(s.queues, ownerID)
	} else {
		s.queues[ownerID] = q[1:]
	}
	return item, true
}

// Remove deletes a task from its owner's queue if still pending there.
// Returns true when the task was found and removed.
func (s *Set) Remove(taskID models.ULID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for owner, q := range s.queues {
		for i, item := range q {
			if item.TaskID != taskID {
				continue
			}
			q = append(q[:i], q[i+1:]...)
			if len(q) == 0 {
				delete(s.queues, owner)
			} else {
				s.queues[owner] = q
			}
			return true
		}
	}
	return false
}

// Owners returns a snapshot of owners with non-empty queues. The snapshot is
// taken under the lock; iteration happens outside it.
func (s *Set) Owners() []models.ULID {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := make([]models.ULID, 0, len(s.queues))
	for owner := range s.queues {
		owners = append(owners, owner)
	}
	return owners
}

// Len returns the total number of queued items.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, q := range s.queues {
		total += len(q)
	}
	return total
}
