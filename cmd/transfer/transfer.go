package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"

	"sshmanager/pkg/config"
	"sshmanager/pkg/constants"
	"sshmanager/pkg/localfs"
	"sshmanager/pkg/remote"
	"sshmanager/pkg/store"
	"sshmanager/pkg/transfer"
	"sshmanager/pkg/utils"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Uploads    []string
	Downloads  []string
	RemoteDir  string
	LocalDir   string
	OnConflict string
	Watch      bool
}

func Run(opts Options) {
	cfg := constants.MustGetConfig()
	setupLogging(cfg.Log)

	if err := run(cfg, opts); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Run",
			"error":    err.Error(),
		}).Fatal("Transfer run failed")
	}
}

func run(cfg *config.Config, opts Options) error {
	if len(opts.Uploads) > 0 && opts.RemoteDir == "" {
		return errors.New("-remote-dir is required for uploads")
	}
	watch := opts.Watch || cfg.Watch.Enabled
	if len(opts.Uploads) == 0 && len(opts.Downloads) == 0 && !watch {
		return errors.New("nothing to do: pass -upload, -download or -watch")
	}

	policy := opts.OnConflict
	if policy == "" {
		policy = cfg.Transfer.ConflictPolicy
	}
	onConflict, err := conflictHandler(policy, newPrompter(os.Stdin, os.Stdout))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	local := localfs.NewOS()
	session, err := remote.Dial(ctx, remote.Config{
		Host:                  cfg.SSH.Host,
		Port:                  cfg.SSH.Port,
		Username:              cfg.SSH.Username,
		Password:              cfg.SSH.Password,
		KeyPath:               cfg.SSH.KeyPath,
		KeyPassphrase:         cfg.SSH.KeyPassphrase,
		KnownHostsPath:        cfg.SSH.KnownHostsPath,
		InsecureIgnoreHostKey: cfg.SSH.InsecureIgnoreHostKey,
		DialTimeout:           cfg.SSH.DialTimeout,
		BufferSize:            cfg.Transfer.BufferSize,
	}, local)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.GetAddress(), err)
	}
	defer session.Close()

	if err := session.TestConnection(); err != nil {
		return err
	}

	journal, err := store.Open(cfg.Paths.JournalDir)
	if err != nil {
		return err
	}
	defer journal.Close()

	serviceConfig := transfer.ServiceConfig{
		Queue: transfer.QueueConfig{
			KeepBothLimit: constants.DefaultKeepBothLimit,
			Cleanup: transfer.CleanupConfig{
				Disabled: !cfg.Cleanup.Enabled,
				Delay:    cfg.Cleanup.Delay,
			},
		},
		StatsInterval: cfg.Transfer.StatsInterval,
	}
	if watch {
		watchPolicy := transfer.ResolutionKeepBoth
		if r, err := transfer.ParseResolution(policy); err == nil {
			watchPolicy = r
		}
		serviceConfig.Watch = &transfer.WatchConfig{
			Dir:           cfg.Watch.Dir,
			RemoteDir:     cfg.Watch.RemoteDir,
			Patterns:      cfg.GetWatchPatterns(),
			SettlingDelay: cfg.Watch.SettlingDelay,
			Policy:        watchPolicy,
		}
	}

	service, err := transfer.NewTransferService(serviceConfig, session, local, journal)
	if err != nil {
		return err
	}
	queue := service.Queue()

	results := newResultSet()
	unsubscribe := queue.Subscribe(results.record)
	defer unsubscribe()

	serviceCtx, stopService := context.WithCancel(ctx)
	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		service.Start(serviceCtx)
	}()

	if len(opts.Uploads) > 0 {
		uploads := lo.Map(opts.Uploads, func(p string, _ int) string {
			return utils.NormalizePath(p)
		})
		if _, err := queue.EnqueueUploads(ctx, uploads, opts.RemoteDir, onConflict); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"error":    err.Error(),
			}).Warn("Upload batch stopped")
		}
	}

	if len(opts.Downloads) > 0 {
		localDir := opts.LocalDir
		if localDir == "" {
			localDir = cfg.GetDownloadPath(path.Dir(opts.Downloads[0]))
		}
		if _, err := queue.EnqueueDownloads(ctx, opts.Downloads, localDir, onConflict); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"error":    err.Error(),
			}).Warn("Download batch stopped")
		}
	}

	if watch {
		logrus.WithFields(logrus.Fields{
			"function": "run",
			"dir":      cfg.Watch.Dir,
		}).Info("Watching for new files, press Ctrl+C to stop")
		<-ctx.Done()
	} else if err := queue.WaitIdle(ctx); err != nil {
		logrus.WithField("function", "run").Warn("Interrupted, cancelling transfers")
	}

	stopService()
	<-serviceDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer shutdownCancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "run",
			"error":    err.Error(),
		}).Error("Shutdown did not finish cleanly")
	}

	printResults(os.Stdout, results.items())
	return nil
}

func setupLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// resultSet keeps the last known state of every item seen this run, so the
// summary still shows items the auto-cleanup already removed.
type resultSet struct {
	mu    sync.Mutex
	order []string
	last  map[string]transfer.TransferItem
}

func newResultSet() *resultSet {
	return &resultSet{last: make(map[string]transfer.TransferItem)}
}

func (r *resultSet) record(ev transfer.Event) {
	if ev.Type == transfer.EventDestinationChanged {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.last[ev.Item.ID]; !seen {
		r.order = append(r.order, ev.Item.ID)
	}
	r.last[ev.Item.ID] = ev.Item

	if ev.StatusChanged && ev.Type == transfer.EventItemUpdated {
		fields := logrus.Fields{
			"function":  "record",
			"file_name": ev.Item.FileName,
			"direction": ev.Item.Direction.String(),
			"status":    ev.Item.Status.String(),
		}
		if ev.Item.ErrorMessage != "" {
			fields["error"] = ev.Item.ErrorMessage
		}
		logrus.WithFields(fields).Info("Transfer status changed")
	}
}

func (r *resultSet) items() []transfer.TransferItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]transfer.TransferItem, 0, len(r.order))
	for _, id := range r.order {
		if item, ok := r.last[id]; ok {
			items = append(items, item)
		}
	}
	return items
}
