package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// probeTimeout bounds the resumability re-probe that runs after the
// transfer's own context has already been cancelled.
const probeTimeout = 10 * time.Second

// itemUpdater is the queue side of the single-writer rule: the executor
// changes its item only through it.
type itemUpdater interface {
	snapshot(e *entry) TransferItem
	update(e *entry, statusChanged bool, fn func(*TransferItem)) TransferItem
	notify(events ...Event)
	now() time.Time
	onFinished(item TransferItem)
}

// Executor runs exactly one TransferItem to a terminal status.
type Executor struct {
	session  RemoteSession
	resolver *ConflictResolver
	queue    itemUpdater
}

func NewExecutor(session RemoteSession, resolver *ConflictResolver, queue itemUpdater) *Executor {
	return &Executor{
		session:  session,
		resolver: resolver,
		queue:    queue,
	}
}

// begin marks item as running. The caller holds the queue lock.
func (ex *Executor) begin(item *TransferItem, now time.Time) {
	item.Status = StatusInProgress
	item.StartedAt = now
	item.CompletedAt = time.Time{}
	item.ErrorMessage = ""
	item.CanResume = false
	seedProgress(item, item.ResumeOffset)
}

func (ex *Executor) Run(ctx context.Context, e *entry) {
	item := ex.queue.snapshot(e)

	logrus.WithFields(logrus.Fields{
		"function":  "Run",
		"id":        item.ID,
		"file_name": item.FileName,
		"direction": item.Direction,
		"offset":    item.ResumeOffset,
		"total":     item.TotalBytes,
	}).Info("Starting transfer")

	if item.TotalBytes == 0 {
		if size := ex.resolver.sourceSize(ctx, item.Direction, item.LocalPath, item.RemotePath); size > 0 {
			item = ex.queue.update(e, false, func(it *TransferItem) {
				it.TotalBytes = size
				if it.ResumeOffset > size {
					it.ResumeOffset = 0
				}
				seedProgress(it, it.ResumeOffset)
			})
		}
	}

	onProgress := func(percent float64) {
		ex.queue.update(e, false, func(it *TransferItem) {
			applyProgress(it, percent)
		})
	}

	var err error
	if item.Direction == DirectionUpload {
		err = ex.session.UploadRange(ctx, item.LocalPath, item.RemotePath, item.ResumeOffset, onProgress)
	} else {
		err = ex.session.DownloadRange(ctx, item.RemotePath, item.LocalPath, item.ResumeOffset, onProgress)
	}

	ex.finish(ctx, e, err)
}

func (ex *Executor) finish(ctx context.Context, e *entry, err error) {
	current := ex.queue.snapshot(e)
	cancelled := current.Status == StatusCancelled ||
		(err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil))

	fields := logrus.Fields{
		"function":  "finish",
		"id":        current.ID,
		"file_name": current.FileName,
		"direction": current.Direction,
	}

	now := ex.queue.now()
	if err == nil && !cancelled {
		finished := ex.queue.update(e, true, func(it *TransferItem) {
			it.Status = StatusCompleted
			it.Progress = 100
			it.TransferredBytes = it.TotalBytes
			it.CanResume = false
			it.ErrorMessage = ""
			it.CompletedAt = now
		})
		logrus.WithFields(fields).Info("Transfer completed")

		ex.queue.notify(Event{Type: EventDestinationChanged, Item: finished})
		ex.queue.onFinished(finished)
		return
	}

	// The transfer context may already be done; the probe gets its own.
	probeCtx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	existingSize, probeErr := ex.resolver.destinationSize(probeCtx, current)
	if probeErr != nil {
		logrus.WithFields(fields).WithField("error", probeErr.Error()).Debug("Resume probe failed, transfer not resumable")
	}

	finished := ex.queue.update(e, true, func(it *TransferItem) {
		if cancelled {
			it.Status = StatusCancelled
		} else {
			it.Status = StatusFailed
			it.ErrorMessage = err.Error()
		}
		it.CompletedAt = now
		applyResumeProbe(it, existingSize, probeErr)
	})

	if cancelled {
		logrus.WithFields(fields).WithField("can_resume", finished.CanResume).Info("Transfer cancelled")
	} else {
		logrus.WithFields(fields).WithFields(logrus.Fields{
			"error":      err.Error(),
			"can_resume": finished.CanResume,
		}).Error("Transfer failed")
	}
	ex.queue.onFinished(finished)
}

// applyProgress maps a percentage reported by the transport onto item.
func applyProgress(it *TransferItem, percent float64) {
	if it.Status != StatusInProgress {
		return
	}
	percent = max(0, min(100, percent))
	transferred := int64(float64(it.TotalBytes) * percent / 100)
	if transferred < it.ResumeOffset {
		return
	}
	it.Progress = percent
	it.TransferredBytes = min(transferred, it.TotalBytes)
}

// applyResumeProbe records what a later Resume could continue from.
func applyResumeProbe(it *TransferItem, existingSize int64, probeErr error) {
	if probeErr != nil || !CanResume(existingSize, it.TotalBytes) {
		it.CanResume = false
		it.ResumeOffset = 0
		return
	}
	it.CanResume = true
	it.ResumeOffset = existingSize
	seedProgress(it, existingSize)
}
