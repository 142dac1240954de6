package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type removals struct {
	mu  sync.Mutex
	ids []string
}

func (r *removals) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *removals) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestCleanupService_RemovesAfterDelay(t *testing.T) {
	r := &removals{}
	cs := NewCleanupService(CleanupConfig{Delay: 20 * time.Millisecond}, r.remove)

	cs.Schedule("a")
	assert.Equal(t, 1, cs.GetPendingCount())

	require.Eventually(t, func() bool {
		return len(r.get()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a"}, r.get())
	assert.Equal(t, 0, cs.GetPendingCount())
}

func TestCleanupService_Disabled(t *testing.T) {
	r := &removals{}
	cs := NewCleanupService(CleanupConfig{Disabled: true, Delay: time.Millisecond}, r.remove)

	cs.Schedule("a")
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, r.get())
	assert.Equal(t, 0, cs.GetPendingCount())
}

func TestCleanupService_CancelAndReschedule(t *testing.T) {
	r := &removals{}
	cs := NewCleanupService(CleanupConfig{Delay: 30 * time.Millisecond}, r.remove)

	cs.Schedule("cancelled")
	cs.Cancel("cancelled")

	cs.Schedule("twice")
	cs.Schedule("twice")
	assert.Equal(t, 1, cs.GetPendingCount())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"twice"}, r.get(), "rescheduling replaces the timer and cancel disarms it")
}

func TestCleanupService_Stop(t *testing.T) {
	r := &removals{}
	cs := NewCleanupService(CleanupConfig{Delay: 20 * time.Millisecond}, r.remove)

	cs.Schedule("a")
	cs.Schedule("b")
	cs.Stop()
	assert.Equal(t, 0, cs.GetPendingCount())

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, r.get())
}

func TestCleanupService_DefaultDelay(t *testing.T) {
	cs := NewCleanupService(CleanupConfig{}, func(string) {})
	assert.Equal(t, DefaultCleanupDelay, cs.config.Delay)

	cs.Schedule("a")
	assert.Equal(t, 1, cs.GetPendingCount(), "the zero config schedules removal")
	cs.Stop()
}

func TestTransferQueue_CleanupSkipsRetriedItem(t *testing.T) {
	q := newTestQueue(t, QueueConfig{Cleanup: CleanupConfig{Delay: time.Hour}})
	q.writeLocal(t, "/local/a.txt", 10)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	added, err := q.EnqueueUploads(ctx, []string{"/local/a.txt"}, "/remote", nil)
	require.NoError(t, err)
	q.waitIdle(t)
	require.Equal(t, 1, q.cleanup.GetPendingCount())

	// the timer fires after the item was touched again
	q.mu.Lock()
	q.find(added[0].ID).item.Status = StatusFailed
	q.mu.Unlock()
	q.removeIfCompleted(added[0].ID)

	_, ok := q.Item(added[0].ID)
	assert.True(t, ok, "only items still completed are removed")

	q.removeIfCompleted("unknown")
	assert.Equal(t, 1, q.GetQueueSize())
}
