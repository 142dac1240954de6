package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultStatsInterval = 30 * time.Second

// disconnectNotifier is implemented by sessions that can report a dropped
// connection.
type disconnectNotifier interface {
	Done() <-chan struct{}
}

type ServiceConfig struct {
	Queue         QueueConfig
	Watch         *WatchConfig
	StatsInterval time.Duration
}

// TransferService wires the queue to its journal, the optional watch folder
// and the session's disconnect signal.
type TransferService struct {
	config  ServiceConfig
	queue   *TransferQueue
	watcher *FileWatcher
	session RemoteSession
	journal Journal
}

func NewTransferService(config ServiceConfig, session RemoteSession, local LocalFS, journal Journal) (*TransferService, error) {
	if config.StatsInterval <= 0 {
		config.StatsInterval = DefaultStatsInterval
	}

	queue := NewTransferQueue(config.Queue, session, local)
	ts := &TransferService{
		config:  config,
		queue:   queue,
		session: session,
		journal: journal,
	}

	if journal != nil {
		items, err := journal.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to load transfer journal: %w", err)
		}
		queue.SetJournal(journal)
		restored := queue.Restore(items)

		logrus.WithFields(logrus.Fields{
			"function": "NewTransferService",
			"journal":  len(items),
			"restored": restored,
		}).Info("Restored transfer queue from journal")
	}

	if config.Watch != nil {
		watcher, err := NewFileWatcher(*config.Watch, queue)
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		ts.watcher = watcher
	}

	return ts, nil
}

func (ts *TransferService) Queue() *TransferQueue {
	return ts.queue
}

// Start runs the background parts of the service until ctx is done.
func (ts *TransferService) Start(ctx context.Context) error {
	var wg sync.WaitGroup

	if ts.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ts.watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithFields(logrus.Fields{
					"function": "Start",
					"error":    err.Error(),
				}).Error("Watcher stopped")
			}
		}()
	}

	if notifier, ok := ts.session.(disconnectNotifier); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts.watchDisconnect(ctx, notifier.Done())
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ts.reportStats(ctx)
	}()

	logrus.WithField("function", "Start").Info("Transfer service started")
	wg.Wait()

	return nil
}

// watchDisconnect cancels all work once the session drops; nothing queued
// could make progress without it.
func (ts *TransferService) watchDisconnect(ctx context.Context, done <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-done:
		logrus.WithFields(logrus.Fields{
			"function": "watchDisconnect",
			"active":   ts.queue.ActiveCount(),
		}).Warn("Session disconnected, cancelling transfers")
		ts.queue.CancelAll()
	}
}

func (ts *TransferService) reportStats(ctx context.Context) {
	ticker := time.NewTicker(ts.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.logStats()
		}
	}
}

func (ts *TransferService) logStats() {
	added, completed, failed, cancelled, bytes := ts.queue.GetStats()
	logrus.WithFields(logrus.Fields{
		"function":        "reportStats",
		"added":           added,
		"completed":       completed,
		"failed":          failed,
		"cancelled":       cancelled,
		"bytes":           bytes,
		"queue_size":      ts.queue.GetQueueSize(),
		"active":          ts.queue.ActiveCount(),
		"cleanup_pending": ts.queue.cleanup.GetPendingCount(),
	}).Info("Transfer stats")
}

// Shutdown cancels outstanding transfers and waits for the running one to
// stop. Unfinished items stay in the journal as cancelled.
func (ts *TransferService) Shutdown(ctx context.Context) error {
	logrus.WithField("function", "Shutdown").Info("Shutting down transfer service")

	if err := ts.queue.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop transfer queue: %w", err)
	}
	ts.logStats()

	logrus.WithField("function", "Shutdown").Info("Transfer service shut down")
	return nil
}
