package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/models"
)

func testDispatcherConfig() config.DispatcherConfig {
	return config.DispatcherConfig{
		IdleSleep:           5 * time.Millisecond,
		PassYield:           time.Millisecond,
		ProgressStepPercent: 10,
		ProgressInterval:    3 * time.Second,
	}
}

func TestSet_EnqueueDequeueFIFO(t *testing.T) {
	set := NewSet()
	owner := models.NewULID()

	first := &Item{TaskID: models.NewULID(), OwnerID: owner}
	second := &Item{TaskID: models.NewULID(), OwnerID: owner}
	set.Enqueue(first)
	set.Enqueue(second)

	assert.Equal(t, 2, set.Len())

	got, ok := set.Dequeue(owner)
	require.True(t, ok)
	assert.Equal(t, first.TaskID, got.TaskID)

	got, ok = set.Dequeue(owner)
	require.True(t, ok)
	assert.Equal(t, second.TaskID, got.TaskID)

	_, ok = set.Dequeue(owner)
	assert.False(t, ok)
	assert.Equal(t, 0, set.Len())
}

func TestSet_DequeueEmptyOwner(t *testing.T) {
	set := NewSet()
	_, ok := set.Dequeue(models.NewULID())
	assert.False(t, ok)
}

func TestSet_Remove(t *testing.T) {
	set := NewSet()
	owner := models.NewULID()

	keep := &Item{TaskID: models.NewULID(), OwnerID: owner}
	drop := &Item{TaskID: models.NewULID(), OwnerID: owner}
	set.Enqueue(keep)
	set.Enqueue(drop)

	assert.True(t, set.Remove(drop.TaskID))
	assert.False(t, set.Remove(drop.TaskID), "second remove is a no-op")
	assert.Equal(t, 1, set.Len())

	got, ok := set.Dequeue(owner)
	require.True(t, ok)
	assert.Equal(t, keep.TaskID, got.TaskID)
}

func TestSet_RemoveLastItemDropsOwner(t *testing.T) {
	set := NewSet()
	owner := models.NewULID()
	item := &Item{TaskID: models.NewULID(), OwnerID: owner}
	set.Enqueue(item)

	require.True(t, set.Remove(item.TaskID))
	assert.Empty(t, set.Owners())
}

func TestSet_OwnersSnapshot(t *testing.T) {
	set := NewSet()
	a := models.NewULID()
	b := models.NewULID()
	set.Enqueue(&Item{TaskID: models.NewULID(), OwnerID: a})
	set.Enqueue(&Item{TaskID: models.NewULID(), OwnerID: b})

	owners := set.Owners()
	assert.Len(t, owners, 2)
	assert.ElementsMatch(t, []models.ULID{a, b}, owners)
}

func TestDispatcher_RunsQueuedTasks(t *testing.T) {
	set := NewSet()
	owner := models.NewULID()

	var mu sync.Mutex
	var ran []models.ULID
	handler := func(ctx context.Context, item *Item) {
		mu.Lock()
		ran = append(ran, item.TaskID)
		mu.Unlock()
	}

	first := &Item{TaskID: models.NewULID(), OwnerID: owner}
	second := &Item{TaskID: models.NewULID(), OwnerID: owner}
	set.Enqueue(first)
	set.Enqueue(second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(set, handler, testDispatcherConfig(), nil)
	go d.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ran) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.ULID{first.TaskID, second.TaskID}, ran, "FIFO within one owner")
}

func TestDispatcher_FairRoundRobin(t *testing.T) {
	set := NewSet()
	userA := models.NewULID()
	userB := models.NewULID()

	// A has a long backlog; B enqueues one task.
	var aTasks []models.ULID
	for i := 0; i < 5; i++ {
		item := &Item{TaskID: models.NewULID(), OwnerID: userA}
		aTasks = append(aTasks, item.TaskID)
		set.Enqueue(item)
	}
	bTask := &Item{TaskID: models.NewULID(), OwnerID: userB}
	set.Enqueue(bTask)

	var mu sync.Mutex
	var order []models.ULID
	handler := func(ctx context.Context, item *Item) {
		mu.Lock()
		order = append(order, item.TaskID)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(set, handler, testDispatcherConfig(), nil)
	go d.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 6
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	// B's single task must start before A's second: no monopolization.
	posB := indexOf(order, bTask.TaskID)
	posA2 := indexOf(order, aTasks[1])
	assert.Less(t, posB, posA2, "user B starved by user A's backlog")
}

func TestDispatcher_CancelWhileQueuedNeverRuns(t *testing.T) {
	set := NewSet()
	owner := models.NewULID()

	item := &Item{TaskID: models.NewULID(), OwnerID: owner}
	set.Enqueue(item)
	require.True(t, set.Remove(item.TaskID))

	var mu sync.Mutex
	ran := 0
	handler := func(ctx context.Context, item *Item) {
		mu.Lock()
		ran++
		mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	d := NewDispatcher(set, handler, testDispatcherConfig(), nil)
	d.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, ran, "removed task must never reach the handler")
}

func TestDispatcher_PanicInHandlerDoesNotKillLoop(t *testing.T) {
	set := NewSet()
	owner := models.NewULID()

	bad := &Item{TaskID: models.NewULID(), OwnerID: owner}
	good := &Item{TaskID: models.NewULID(), OwnerID: owner}
	set.Enqueue(bad)
	set.Enqueue(good)

	var mu sync.Mutex
	var ran []models.ULID
	handler := func(ctx context.Context, item *Item) {
		if item.TaskID == bad.TaskID {
			panic("boom")
		}
		mu.Lock()
		ran = append(ran, item.TaskID)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(set, handler, testDispatcherConfig(), nil)
	go d.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ran) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcher_StopsOnContextCancel(t *testing.T) {
	set := NewSet()
	d := NewDispatcher(set, func(context.Context, *Item) {}, testDispatcherConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on cancel")
	}
}

func indexOf(order []models.ULID, id models.ULID) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
