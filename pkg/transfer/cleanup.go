package transfer

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCleanupDelay is how long a completed item stays visible.
const DefaultCleanupDelay = 5 * time.Second

// CleanupService removes completed items from the visible list after a
// delay. Timers are keyed by item id so a retry or an explicit clear can
// disarm them.
type CleanupService struct {
	config CleanupConfig
	remove func(id string)
	timers map[string]*time.Timer
	mu     sync.Mutex
}

func NewCleanupService(config CleanupConfig, remove func(id string)) *CleanupService {
	if config.Delay <= 0 {
		config.Delay = DefaultCleanupDelay
	}
	return &CleanupService{
		config: config,
		remove: remove,
		timers: make(map[string]*time.Timer),
	}
}

func (cs *CleanupService) Schedule(id string) {
	if cs.config.Disabled {
		return
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if timer, exists := cs.timers[id]; exists {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(cs.config.Delay, func() {
		cs.mu.Lock()
		// A newer Schedule or a Cancel replaced this timer.
		if cs.timers[id] != timer {
			cs.mu.Unlock()
			return
		}
		delete(cs.timers, id)
		cs.mu.Unlock()

		cs.remove(id)
	})
	cs.timers[id] = timer

	logrus.WithFields(logrus.Fields{
		"function": "Schedule",
		"id":       id,
		"delay":    cs.config.Delay,
	}).Debug("Scheduled completed transfer for cleanup")
}

func (cs *CleanupService) Cancel(id string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if timer, exists := cs.timers[id]; exists {
		timer.Stop()
		delete(cs.timers, id)
	}
}

func (cs *CleanupService) GetPendingCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.timers)
}

// Stop disarms every pending timer.
func (cs *CleanupService) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for id, timer := range cs.timers {
		timer.Stop()
		delete(cs.timers, id)
	}
}
