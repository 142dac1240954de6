package transfer

import "errors"

var (
	ErrItemNotFound      = errors.New("transfer item not found")
	ErrTransferActive    = errors.New("transfer is in progress")
	ErrNotResumable      = errors.New("transfer cannot be resumed")
	ErrUnknownResolution = errors.New("unknown conflict resolution")

	// ErrCancelPending is returned for an item that shows Cancelled while its
	// transport has not returned yet.
	ErrCancelPending = errors.New("transfer is still stopping after cancel")

	// ErrBatchAborted marks a batch the conflict callback declined to continue.
	// It never reaches callers of Enqueue*; it only stops the batch loop.
	ErrBatchAborted = errors.New("batch aborted by conflict callback")
)
