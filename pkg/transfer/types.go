package transfer

import (
	"context"
	"path"
	"path/filepath"
	"sync"
	"time"
)

type TransferItem struct {
	ID               string
	FileName         string
	LocalPath        string
	RemotePath       string
	Direction        Direction
	TotalBytes       int64
	Status           TransferStatus
	TransferredBytes int64
	Progress         float64
	ResumeOffset     int64
	CanResume        bool
	ErrorMessage     string
	CreatedAt        time.Time
	StartedAt        time.Time
	CompletedAt      time.Time
}

// SourcePath is the side bytes are read from.
func (ti TransferItem) SourcePath() string {
	if ti.Direction == DirectionUpload {
		return ti.LocalPath
	}
	return ti.RemotePath
}

// DestinationPath is the side bytes are written to.
func (ti TransferItem) DestinationPath() string {
	if ti.Direction == DirectionUpload {
		return ti.RemotePath
	}
	return ti.LocalPath
}

// DestinationDir is the directory whose listing a completed item changed.
func (ti TransferItem) DestinationDir() string {
	if ti.Direction == DirectionUpload {
		return path.Dir(ti.RemotePath)
	}
	return filepath.Dir(ti.LocalPath)
}

func (ti TransferItem) IsTerminal() bool {
	return ti.Status.IsTerminal()
}

type Direction int

const (
	DirectionUpload Direction = iota
	DirectionDownload
)

func (d Direction) String() string {
	switch d {
	case DirectionUpload:
		return "Upload"
	case DirectionDownload:
		return "Download"
	default:
		return "Unknown"
	}
}

type TransferStatus int

const (
	StatusPending TransferStatus = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s TransferStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

func (s TransferStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Resolution is the answer to a destination conflict.
type Resolution int

const (
	ResolutionOverwrite Resolution = iota
	ResolutionSkip
	ResolutionResume
	ResolutionKeepBoth
)

func (r Resolution) String() string {
	switch r {
	case ResolutionOverwrite:
		return "overwrite"
	case ResolutionSkip:
		return "skip"
	case ResolutionResume:
		return "resume"
	case ResolutionKeepBoth:
		return "keep-both"
	default:
		return "unknown"
	}
}

// ParseResolution accepts the names produced by Resolution.String.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "overwrite":
		return ResolutionOverwrite, nil
	case "skip":
		return ResolutionSkip, nil
	case "resume":
		return ResolutionResume, nil
	case "keep-both", "keepboth", "rename":
		return ResolutionKeepBoth, nil
	default:
		return 0, ErrUnknownResolution
	}
}

// Conflict describes a destination that already has content.
type Conflict struct {
	Direction    Direction
	LocalPath    string
	RemotePath   string
	ExistingSize int64
	TotalBytes   int64
	CanResume    bool
}

type ConflictDecision struct {
	Resolution Resolution
	ApplyToAll bool
}

// ConflictFunc is asked once per conflict unless an apply-to-all decision is
// active. Returning ok == false stops the remainder of the batch.
type ConflictFunc func(ctx context.Context, c Conflict) (decision ConflictDecision, ok bool)

// WithPolicy answers every conflict of a batch with r.
func WithPolicy(r Resolution) ConflictFunc {
	return func(context.Context, Conflict) (ConflictDecision, bool) {
		return ConflictDecision{Resolution: r, ApplyToAll: true}, true
	}
}

// LocalFS answers existence and length questions about local paths.
// Size returns an error satisfying errors.Is(err, fs.ErrNotExist) for missing files.
type LocalFS interface {
	Size(path string) (int64, error)
	Exists(path string) (bool, error)
}

// Journal persists queue items so unfinished work survives a restart.
type Journal interface {
	Save(item TransferItem) error
	Delete(id string) error
	LoadAll() ([]TransferItem, error)
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

type DefaultTimeProvider struct{}

func (DefaultTimeProvider) Now() time.Time { return time.Now() }

type QueueConfig struct {
	// KeepBothLimit caps the numbered "name (N).ext" candidates tried before
	// falling back to a random suffix. Zero means DefaultKeepBothLimit.
	KeepBothLimit int
	Cleanup       CleanupConfig
}

// CleanupConfig controls the delayed removal of completed items. The zero
// value removes them after DefaultCleanupDelay.
type CleanupConfig struct {
	Disabled bool
	Delay    time.Duration
}

type QueueStats struct {
	mu               sync.Mutex
	TotalAdded       int
	TotalCompleted   int
	TotalFailed      int
	TotalCancelled   int
	BytesTransferred int64
}

func (qs *QueueStats) IncrementAdded() {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.TotalAdded++
}

func (qs *QueueStats) IncrementCompleted(bytes int64) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.TotalCompleted++
	qs.BytesTransferred += bytes
}

func (qs *QueueStats) IncrementFailed() {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.TotalFailed++
}

func (qs *QueueStats) IncrementCancelled() {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.TotalCancelled++
}

func (qs *QueueStats) GetStats() (int, int, int, int, int64) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.TotalAdded, qs.TotalCompleted, qs.TotalFailed, qs.TotalCancelled, qs.BytesTransferred
}
