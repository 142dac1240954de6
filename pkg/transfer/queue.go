package transfer

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"
	"time"

	"sshmanager/pkg/utils"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// entry is the queue-owned record behind a TransferItem snapshot.
type entry struct {
	item    TransferItem
	cancel  context.CancelFunc
	running bool
}

// TransferQueue owns the list of transfers and runs them one at a time in
// the order they were appended. Only one network transfer is ever active so
// the session's channel is never shared.
type TransferQueue struct {
	config   QueueConfig
	resolver *ConflictResolver
	executor *Executor
	cleanup  *CleanupService
	journal  Journal
	events   *emitter
	stats    *QueueStats
	clock    TimeProvider

	items      []*entry
	processing bool
	idle       chan struct{}
	mu         sync.Mutex
}

func NewTransferQueue(config QueueConfig, session RemoteSession, local LocalFS) *TransferQueue {
	tq := &TransferQueue{
		config:   config,
		resolver: NewConflictResolver(session, local, config.KeepBothLimit),
		events:   newEmitter(),
		stats:    &QueueStats{},
		clock:    DefaultTimeProvider{},
		items:    make([]*entry, 0),
	}
	tq.cleanup = NewCleanupService(config.Cleanup, tq.removeIfCompleted)
	tq.executor = NewExecutor(session, tq.resolver, tq)

	return tq
}

// SetJournal makes every status change durable. Call before enqueueing.
func (tq *TransferQueue) SetJournal(j Journal) {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	tq.journal = j
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (tq *TransferQueue) SetTimeProvider(tp TimeProvider) {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	tq.clock = tp
}

// Subscribe registers l for change notifications. Listeners run on the
// goroutine that caused the change, never under the queue lock.
func (tq *TransferQueue) Subscribe(l Listener) (unsubscribe func()) {
	return tq.events.subscribe(l)
}

func (tq *TransferQueue) EnqueueUploads(ctx context.Context, localPaths []string, remoteDirectory string, onConflict ConflictFunc) ([]TransferItem, error) {
	pairs := make([]transferPair, 0, len(localPaths))
	for _, localPath := range localPaths {
		remotePath := utils.RemoteJoin(remoteDirectory, filepath.Base(localPath))
		pairs = append(pairs, transferPair{
			localPath:  localPath,
			remotePath: remotePath,
			totalBytes: tq.resolver.sourceSize(ctx, DirectionUpload, localPath, remotePath),
		})
	}

	return tq.enqueue(ctx, DirectionUpload, pairs, onConflict)
}

func (tq *TransferQueue) EnqueueDownloads(ctx context.Context, remotePaths []string, localDirectory string, onConflict ConflictFunc) ([]TransferItem, error) {
	pairs := make([]transferPair, 0, len(remotePaths))
	for _, remotePath := range remotePaths {
		localPath := filepath.Join(localDirectory, path.Base(remotePath))
		pairs = append(pairs, transferPair{
			localPath:  localPath,
			remotePath: remotePath,
			totalBytes: tq.resolver.sourceSize(ctx, DirectionDownload, localPath, remotePath),
		})
	}

	return tq.enqueue(ctx, DirectionDownload, pairs, onConflict)
}

func (tq *TransferQueue) enqueue(ctx context.Context, direction Direction, pairs []transferPair, onConflict ConflictFunc) ([]TransferItem, error) {
	resolved, err := tq.resolver.resolveBatch(ctx, direction, pairs, onConflict)

	added := tq.appendItems(direction, resolved)
	if len(added) > 0 {
		tq.drain()
	}

	logrus.WithFields(logrus.Fields{
		"function":  "enqueue",
		"direction": direction,
		"requested": len(pairs),
		"queued":    len(added),
	}).Info("Enqueued transfer batch")

	if err != nil {
		return added, fmt.Errorf("enqueue %s batch: %w", direction, err)
	}
	return added, nil
}

func (tq *TransferQueue) appendItems(direction Direction, pairs []transferPair) []TransferItem {
	if len(pairs) == 0 {
		return nil
	}

	tq.mu.Lock()
	now := tq.clock.Now()
	added := make([]TransferItem, 0, len(pairs))
	for _, pair := range pairs {
		item := TransferItem{
			ID:           uuid.NewString(),
			LocalPath:    pair.localPath,
			RemotePath:   pair.remotePath,
			Direction:    direction,
			TotalBytes:   pair.totalBytes,
			Status:       StatusPending,
			ResumeOffset: pair.resumeOffset,
			CreatedAt:    now,
		}
		if direction == DirectionUpload {
			item.FileName = filepath.Base(pair.localPath)
		} else {
			item.FileName = path.Base(pair.remotePath)
		}
		seedProgress(&item, pair.resumeOffset)

		tq.items = append(tq.items, &entry{item: item})
		tq.stats.IncrementAdded()
		added = append(added, item)
	}
	tq.mu.Unlock()

	tq.notify(lo.Map(added, func(item TransferItem, _ int) Event {
		return Event{Type: EventItemAdded, Item: item, StatusChanged: true}
	})...)

	return added
}

// drain starts the processing loop unless one is already running. The
// running loop rescans the list after every item, so callers that lose the
// race can return immediately.
func (tq *TransferQueue) drain() {
	tq.mu.Lock()
	if tq.processing {
		tq.mu.Unlock()
		return
	}
	tq.processing = true
	tq.idle = make(chan struct{})
	tq.mu.Unlock()

	go tq.processQueue()
}

func (tq *TransferQueue) processQueue() {
	for {
		tq.mu.Lock()
		e, found := lo.Find(tq.items, func(e *entry) bool {
			return e.item.Status == StatusPending
		})
		if !found {
			tq.processing = false
			close(tq.idle)
			tq.mu.Unlock()
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		e.running = true
		tq.executor.begin(&e.item, tq.clock.Now())
		started := e.item
		tq.mu.Unlock()

		tq.notify(Event{Type: EventItemUpdated, Item: started, StatusChanged: true})

		tq.executor.Run(ctx, e)
		cancel()

		tq.mu.Lock()
		e.running = false
		e.cancel = nil
		tq.mu.Unlock()
	}
}

// WaitIdle blocks until no item is pending or running, or ctx ends.
func (tq *TransferQueue) WaitIdle(ctx context.Context) error {
	for {
		tq.mu.Lock()
		if !tq.processing {
			tq.mu.Unlock()
			return nil
		}
		idle := tq.idle
		tq.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CancelAll stops the running transfer and cancels everything pending.
func (tq *TransferQueue) CancelAll() {
	tq.mu.Lock()
	events := make([]Event, 0)
	for _, e := range tq.items {
		if ev, changed := tq.cancelEntry(e); changed {
			events = append(events, ev)
		}
	}
	tq.mu.Unlock()

	tq.notify(events...)

	logrus.WithFields(logrus.Fields{
		"function":  "CancelAll",
		"cancelled": len(events),
	}).Info("Cancelled all active transfers")
}

func (tq *TransferQueue) CancelOne(id string) error {
	tq.mu.Lock()
	e := tq.find(id)
	if e == nil {
		tq.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", id, ErrItemNotFound)
	}
	ev, changed := tq.cancelEntry(e)
	tq.mu.Unlock()

	if changed {
		tq.notify(ev)
	}
	return nil
}

// cancelEntry must be called with tq.mu held. A running entry only gets its
// status flipped and its signal fired; the executor finishes the bookkeeping.
func (tq *TransferQueue) cancelEntry(e *entry) (Event, bool) {
	switch e.item.Status {
	case StatusInProgress:
		if e.cancel != nil {
			e.cancel()
		}
		e.item.Status = StatusCancelled
	case StatusPending:
		e.item.Status = StatusCancelled
		e.item.CompletedAt = tq.clock.Now()
		tq.stats.IncrementCancelled()
	default:
		return Event{}, false
	}
	return Event{Type: EventItemUpdated, Item: e.item, StatusChanged: true}, true
}

// busyError must be called with tq.mu held. It reports why e cannot be
// requeued yet.
func busyError(e *entry) error {
	switch {
	case e.running && e.item.Status == StatusCancelled:
		return ErrCancelPending
	case e.running || e.item.Status == StatusInProgress:
		return ErrTransferActive
	default:
		return nil
	}
}

// Retry restarts an item from byte zero.
func (tq *TransferQueue) Retry(id string) error {
	tq.mu.Lock()
	e := tq.find(id)
	if e == nil {
		tq.mu.Unlock()
		return fmt.Errorf("retry %s: %w", id, ErrItemNotFound)
	}
	if err := busyError(e); err != nil {
		tq.mu.Unlock()
		return fmt.Errorf("retry %s: %w", id, err)
	}

	e.item.Status = StatusPending
	e.item.ErrorMessage = ""
	e.item.Progress = 0
	e.item.TransferredBytes = 0
	e.item.ResumeOffset = 0
	e.item.CanResume = false
	e.item.StartedAt = time.Time{}
	e.item.CompletedAt = time.Time{}
	snapshot := e.item
	tq.mu.Unlock()

	tq.cleanup.Cancel(id)
	tq.notify(Event{Type: EventItemUpdated, Item: snapshot, StatusChanged: true})
	tq.drain()

	return nil
}

// Resume re-probes the destination and, when a partial file is still
// there, requeues the item from its current length.
func (tq *TransferQueue) Resume(ctx context.Context, id string) error {
	tq.mu.Lock()
	e := tq.find(id)
	if e == nil {
		tq.mu.Unlock()
		return fmt.Errorf("resume %s: %w", id, ErrItemNotFound)
	}
	if err := busyError(e); err != nil {
		tq.mu.Unlock()
		return fmt.Errorf("resume %s: %w", id, err)
	}
	item := e.item
	tq.mu.Unlock()

	existingSize, err := tq.resolver.destinationSize(ctx, item)
	if err != nil {
		return fmt.Errorf("resume %s: %w: %w", id, ErrNotResumable, err)
	}
	if !CanResume(existingSize, item.TotalBytes) {
		return fmt.Errorf("resume %s: %w", id, ErrNotResumable)
	}

	tq.mu.Lock()
	if tq.find(id) == nil {
		tq.mu.Unlock()
		return fmt.Errorf("resume %s: %w", id, ErrItemNotFound)
	}
	if err := busyError(e); err != nil {
		tq.mu.Unlock()
		return fmt.Errorf("resume %s: %w", id, err)
	}
	e.item.Status = StatusPending
	e.item.ErrorMessage = ""
	e.item.CanResume = false
	e.item.ResumeOffset = existingSize
	e.item.StartedAt = time.Time{}
	e.item.CompletedAt = time.Time{}
	seedProgress(&e.item, existingSize)
	snapshot := e.item
	tq.mu.Unlock()

	tq.cleanup.Cancel(id)
	tq.notify(Event{Type: EventItemUpdated, Item: snapshot, StatusChanged: true})
	tq.drain()

	logrus.WithFields(logrus.Fields{
		"function":  "Resume",
		"id":        id,
		"file_name": snapshot.FileName,
		"offset":    existingSize,
	}).Info("Transfer requeued for resume")

	return nil
}

// ClearCompleted drops every finished item and returns how many were removed.
func (tq *TransferQueue) ClearCompleted() int {
	tq.mu.Lock()
	removed := lo.Filter(tq.items, func(e *entry, _ int) bool {
		return e.item.IsTerminal() && !e.running
	})
	tq.items = lo.Reject(tq.items, func(e *entry, _ int) bool {
		return e.item.IsTerminal() && !e.running
	})
	tq.mu.Unlock()

	events := make([]Event, 0, len(removed))
	for _, e := range removed {
		tq.cleanup.Cancel(e.item.ID)
		events = append(events, Event{Type: EventItemRemoved, Item: e.item, StatusChanged: true})
	}
	tq.notify(events...)

	return len(removed)
}

// removeIfCompleted is the auto-cleanup callback. Anything that touched the
// item since it completed wins.
func (tq *TransferQueue) removeIfCompleted(id string) {
	tq.mu.Lock()
	_, index, found := lo.FindIndexOf(tq.items, func(e *entry) bool {
		return e.item.ID == id
	})
	if !found || tq.items[index].item.Status != StatusCompleted || tq.items[index].running {
		tq.mu.Unlock()
		return
	}
	removed := tq.items[index].item
	tq.items = append(tq.items[:index], tq.items[index+1:]...)
	tq.mu.Unlock()

	tq.notify(Event{Type: EventItemRemoved, Item: removed, StatusChanged: true})
}

// Restore re-adds journaled items after a restart. Work that was pending or
// running when the process stopped comes back as cancelled.
func (tq *TransferQueue) Restore(items []TransferItem) int {
	tq.mu.Lock()
	restored := make([]TransferItem, 0, len(items))
	for _, item := range items {
		if item.Status == StatusCompleted || tq.find(item.ID) != nil {
			continue
		}
		if !item.IsTerminal() {
			item.Status = StatusCancelled
			item.ErrorMessage = "interrupted"
			item.CanResume = false
		}
		tq.items = append(tq.items, &entry{item: item})
		restored = append(restored, item)
	}
	tq.mu.Unlock()

	tq.notify(lo.Map(restored, func(item TransferItem, _ int) Event {
		return Event{Type: EventItemAdded, Item: item, StatusChanged: true}
	})...)

	return len(restored)
}

// Items returns a snapshot of every visible transfer in queue order.
func (tq *TransferQueue) Items() []TransferItem {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	return lo.Map(tq.items, func(e *entry, _ int) TransferItem {
		return e.item
	})
}

func (tq *TransferQueue) Item(id string) (TransferItem, bool) {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	if e := tq.find(id); e != nil {
		return e.item, true
	}
	return TransferItem{}, false
}

// ActiveCount is the number of pending or in-progress transfers. A cancelled
// item still counts until its transport has returned.
func (tq *TransferQueue) ActiveCount() int {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	return lo.CountBy(tq.items, func(e *entry) bool {
		return e.running || e.item.Status == StatusPending || e.item.Status == StatusInProgress
	})
}

func (tq *TransferQueue) HasActiveTransfer() bool {
	return tq.ActiveCount() > 0
}

func (tq *TransferQueue) GetStats() (int, int, int, int, int64) {
	return tq.stats.GetStats()
}

func (tq *TransferQueue) GetQueueSize() int {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	return len(tq.items)
}

// Shutdown cancels all work, waits for the running transfer to stop and
// disarms cleanup timers.
func (tq *TransferQueue) Shutdown(ctx context.Context) error {
	tq.CancelAll()
	err := tq.WaitIdle(ctx)
	tq.cleanup.Stop()
	return err
}

func (tq *TransferQueue) snapshot(e *entry) TransferItem {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	return e.item
}

// update applies fn to a live entry and publishes the result.
func (tq *TransferQueue) update(e *entry, statusChanged bool, fn func(*TransferItem)) TransferItem {
	tq.mu.Lock()
	fn(&e.item)
	snapshot := e.item
	tq.mu.Unlock()

	tq.notify(Event{Type: EventItemUpdated, Item: snapshot, StatusChanged: statusChanged})
	return snapshot
}

// onFinished records stats for a terminal item and arms auto-cleanup for
// completed ones.
func (tq *TransferQueue) onFinished(item TransferItem) {
	switch item.Status {
	case StatusCompleted:
		tq.stats.IncrementCompleted(item.TotalBytes)
		tq.cleanup.Schedule(item.ID)
	case StatusFailed:
		tq.stats.IncrementFailed()
	case StatusCancelled:
		tq.stats.IncrementCancelled()
	}
}

func (tq *TransferQueue) now() time.Time {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	return tq.clock.Now()
}

// notify journals status changes and fans events out to listeners.
func (tq *TransferQueue) notify(events ...Event) {
	if len(events) == 0 {
		return
	}

	tq.mu.Lock()
	journal := tq.journal
	tq.mu.Unlock()

	if journal != nil {
		for _, ev := range events {
			tq.journalEvent(journal, ev)
		}
	}

	tq.events.emit(events...)
}

func (tq *TransferQueue) journalEvent(journal Journal, ev Event) {
	var err error
	switch {
	case ev.Type == EventItemRemoved:
		err = journal.Delete(ev.Item.ID)
	case ev.Type == EventDestinationChanged, !ev.StatusChanged:
		return
	default:
		err = journal.Save(ev.Item)
	}

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "journalEvent",
			"id":       ev.Item.ID,
			"event":    ev.Type,
			"error":    err.Error(),
		}).Warn("Failed to journal transfer change")
	}
}

// find must be called with tq.mu held.
func (tq *TransferQueue) find(id string) *entry {
	e, found := lo.Find(tq.items, func(e *entry) bool {
		return e.item.ID == id
	})
	if !found {
		return nil
	}
	return e
}

// seedProgress sets the visible progress to where a transfer will start.
func seedProgress(item *TransferItem, offset int64) {
	item.TransferredBytes = offset
	if offset > 0 && item.TotalBytes > 0 {
		item.Progress = float64(offset) / float64(item.TotalBytes) * 100
	} else {
		item.Progress = 0
	}
}
