package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sshmanager/pkg/utils"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const DefaultSettlingDelay = 5 * time.Second

// uploader is the part of TransferQueue the watcher feeds.
type uploader interface {
	EnqueueUploads(ctx context.Context, localPaths []string, remoteDirectory string, onConflict ConflictFunc) ([]TransferItem, error)
}

type WatchConfig struct {
	Dir       string
	RemoteDir string
	// Patterns are matched against the file's base name. Empty matches everything.
	Patterns      []string
	SettlingDelay time.Duration
	Policy        Resolution
}

// FileWatcher uploads files that appear under a local directory once they
// have stopped changing for SettlingDelay.
type FileWatcher struct {
	config       WatchConfig
	queue        uploader
	watcher      *fsnotify.Watcher
	pendingFiles map[string]*time.Timer
	ctx          context.Context
	mu           sync.Mutex
}

func NewFileWatcher(config WatchConfig, queue uploader) (*FileWatcher, error) {
	if config.SettlingDelay <= 0 {
		config.SettlingDelay = DefaultSettlingDelay
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		config:       config,
		queue:        queue,
		watcher:      watcher,
		pendingFiles: make(map[string]*time.Timer),
		ctx:          context.Background(),
	}, nil
}

// Start blocks until ctx is done or the watcher fails.
func (fw *FileWatcher) Start(ctx context.Context) error {
	defer fw.stop()

	fw.mu.Lock()
	fw.ctx = ctx
	fw.mu.Unlock()

	if err := fw.addWatchRecursive(fw.config.Dir); err != nil {
		return fmt.Errorf("failed to add watch paths: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Start",
		"dir":        fw.config.Dir,
		"remote_dir": fw.config.RemoteDir,
		"policy":     fw.config.Policy,
	}).Info("Starting file watcher")

	for {
		select {
		case <-ctx.Done():
			logrus.WithField("function", "Start").Info("File watcher shutting down")
			return ctx.Err()

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			fw.handleFileEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logrus.WithFields(logrus.Fields{
				"function": "Start",
				"error":    err.Error(),
			}).Warn("Watcher error")
		}
	}
}

func (fw *FileWatcher) addWatchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := fw.watcher.Add(path); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "addWatchRecursive",
					"dir":      path,
					"error":    err.Error(),
				}).Warn("Failed to watch directory")
			}
		}
		return nil
	})
}

func (fw *FileWatcher) handleFileEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.addWatchRecursive(event.Name); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "handleFileEvent",
					"dir":      event.Name,
					"error":    err.Error(),
				}).Warn("Failed to watch new directory")
			}
			return
		}
	}

	if !fw.matches(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		fw.scheduleUpload(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		fw.cancelPendingUpload(event.Name)
	}
}

func (fw *FileWatcher) matches(filePath string) bool {
	if len(fw.config.Patterns) == 0 {
		return true
	}
	base := strings.ToLower(filepath.Base(filePath))
	for _, pattern := range fw.config.Patterns {
		if ok, _ := filepath.Match(strings.ToLower(pattern), base); ok {
			return true
		}
	}
	return false
}

func (fw *FileWatcher) scheduleUpload(filePath string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if timer, exists := fw.pendingFiles[filePath]; exists {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(fw.config.SettlingDelay, func() {
		fw.mu.Lock()
		if fw.pendingFiles[filePath] != timer {
			fw.mu.Unlock()
			return
		}
		delete(fw.pendingFiles, filePath)
		ctx := fw.ctx
		fw.mu.Unlock()

		fw.processFile(ctx, filePath)
	})
	fw.pendingFiles[filePath] = timer
}

func (fw *FileWatcher) cancelPendingUpload(filePath string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if timer, exists := fw.pendingFiles[filePath]; exists {
		timer.Stop()
		delete(fw.pendingFiles, filePath)
		logrus.WithFields(logrus.Fields{
			"function": "cancelPendingUpload",
			"path":     filePath,
		}).Debug("Cancelled pending upload")
	}
}

func (fw *FileWatcher) processFile(ctx context.Context, filePath string) {
	if ctx.Err() != nil {
		return
	}
	fields := logrus.Fields{
		"function": "processFile",
		"path":     filePath,
	}

	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		logrus.WithFields(fields).Debug("Settled path is gone or not a file")
		return
	}

	relDir, err := utils.GetRelativePath(fw.config.Dir, filepath.Dir(filePath))
	if err != nil {
		logrus.WithFields(fields).WithField("error", err.Error()).Warn("File outside watched directory")
		return
	}
	remoteDir := fw.config.RemoteDir
	if relDir != "." {
		remoteDir = utils.RemoteJoin(remoteDir, relDir)
	}

	added, err := fw.queue.EnqueueUploads(ctx, []string{filePath}, remoteDir, WithPolicy(fw.config.Policy))
	if err != nil {
		logrus.WithFields(fields).WithField("error", err.Error()).Error("Failed to queue watched file")
		return
	}
	logrus.WithFields(fields).WithFields(logrus.Fields{
		"remote_dir": remoteDir,
		"queued":     len(added),
	}).Info("Queued watched file")
}

// PendingCount is the number of files still settling.
func (fw *FileWatcher) PendingCount() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.pendingFiles)
}

func (fw *FileWatcher) stop() {
	fw.mu.Lock()
	for filePath, timer := range fw.pendingFiles {
		timer.Stop()
		delete(fw.pendingFiles, filePath)
	}
	fw.mu.Unlock()
	fw.watcher.Close()
}
