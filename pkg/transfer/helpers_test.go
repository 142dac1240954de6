package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"sshmanager/pkg/localfs"

	"github.com/stretchr/testify/require"
)

type rangeCall struct {
	source      string
	destination string
	offset      int64
}

// fakeSession is an in-memory remote side. Remote files are only sizes;
// local files live in the shared localfs.
type fakeSession struct {
	mu     sync.Mutex
	local  *localfs.FS
	remote map[string]int64
	// statErr forces Stat on a path to fail with something other than not-found.
	statErr map[string]error

	uploads   []rangeCall
	downloads []rangeCall

	// gate, when set, holds every transfer until it is closed or ctx ends.
	gate chan struct{}
	// linger, when set, keeps a cancelled transfer from returning until it
	// is closed, like a channel still flushing after the cancel.
	linger chan struct{}
	// failAt makes the next transfers stop at that percentage with an error.
	failAt  float64
	failErr error

	active    int
	maxActive int
	started   chan rangeCall
}

func newFakeSession(local *localfs.FS) *fakeSession {
	return &fakeSession{
		local:   local,
		remote:  make(map[string]int64),
		statErr: make(map[string]error),
		started: make(chan rangeCall, 64),
	}
}

func (f *fakeSession) setRemote(p string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote[p] = size
}

func (f *fakeSession) remoteSize(p string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.remote[p]
	return size, ok
}

func (f *fakeSession) Stat(ctx context.Context, remotePath string) (RemoteFileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statErr[remotePath]; err != nil {
		return RemoteFileInfo{}, err
	}
	size, ok := f.remote[remotePath]
	if !ok {
		return RemoteFileInfo{}, fmt.Errorf("stat %s: %w", remotePath, fs.ErrNotExist)
	}
	return RemoteFileInfo{Size: size}, nil
}

func (f *fakeSession) UploadRange(ctx context.Context, localPath, remotePath string, offset int64, onProgress ProgressFunc) error {
	total, err := f.local.Size(localPath)
	if err != nil {
		return err
	}

	call := rangeCall{source: localPath, destination: remotePath, offset: offset}
	f.begin(call, func() { f.uploads = append(f.uploads, call) })
	defer f.end()

	return f.move(ctx, offset, total, onProgress, func(size int64) error {
		f.setRemote(remotePath, size)
		return nil
	})
}

func (f *fakeSession) DownloadRange(ctx context.Context, remotePath, localPath string, offset int64, onProgress ProgressFunc) error {
	total, ok := f.remoteSize(remotePath)
	if !ok {
		return fmt.Errorf("open %s: %w", remotePath, fs.ErrNotExist)
	}

	call := rangeCall{source: remotePath, destination: localPath, offset: offset}
	f.begin(call, func() { f.downloads = append(f.downloads, call) })
	defer f.end()

	return f.move(ctx, offset, total, onProgress, func(size int64) error {
		return f.local.WriteFile(localPath, make([]byte, size))
	})
}

func (f *fakeSession) begin(call rangeCall, record func()) {
	f.mu.Lock()
	record()
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	f.mu.Unlock()
	f.started <- call
}

func (f *fakeSession) end() {
	f.mu.Lock()
	f.active--
	f.mu.Unlock()
}

// move simulates the copy: half way, then either the gate, a failure or the
// rest of the file. write receives the destination length after each step.
func (f *fakeSession) move(ctx context.Context, offset, total int64, onProgress ProgressFunc, write func(size int64) error) error {
	f.mu.Lock()
	gate, linger, failAt, failErr := f.gate, f.linger, f.failAt, f.failErr
	f.mu.Unlock()

	half := offset + (total-offset)/2
	if err := write(half); err != nil {
		return err
	}
	if total > 0 {
		onProgress(float64(half) * 100 / float64(total))
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			if linger != nil {
				<-linger
			}
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if failErr != nil {
		size := int64(float64(total) * failAt / 100)
		if size > 0 {
			if err := write(size); err != nil {
				return err
			}
		}
		onProgress(failAt)
		return failErr
	}

	if err := write(total); err != nil {
		return err
	}
	onProgress(100)
	return nil
}

func (f *fakeSession) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func (f *fakeSession) setLinger(linger chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linger = linger
}

func (f *fakeSession) setFailure(at float64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt = at
	f.failErr = err
}

func (f *fakeSession) uploadCalls() []rangeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rangeCall(nil), f.uploads...)
}

func (f *fakeSession) downloadCalls() []rangeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rangeCall(nil), f.downloads...)
}

func (f *fakeSession) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

// waitStarted blocks until a transfer towards destination begins. Earlier
// starts are discarded.
func (f *fakeSession) waitStarted(t *testing.T, destination string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case call := <-f.started:
			if call.destination == destination {
				return
			}
		case <-timeout:
			t.Fatalf("transfer to %s did not start", destination)
		}
	}
}

var errConnectionReset = errors.New("connection reset by peer")

type fakeJournal struct {
	mu    sync.Mutex
	saved map[string]TransferItem
	saves int
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{saved: make(map[string]TransferItem)}
}

func (j *fakeJournal) Save(item TransferItem) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.saved[item.ID] = item
	j.saves++
	return nil
}

func (j *fakeJournal) Delete(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.saved, id)
	return nil
}

func (j *fakeJournal) LoadAll() ([]TransferItem, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	items := make([]TransferItem, 0, len(j.saved))
	for _, item := range j.saved {
		items = append(items, item)
	}
	return items, nil
}

func (j *fakeJournal) get(id string) (TransferItem, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	item, ok := j.saved[id]
	return item, ok
}

type fixedTime struct {
	now time.Time
}

func (f fixedTime) Now() time.Time { return f.now }

type testQueue struct {
	*TransferQueue
	session *fakeSession
	local   *localfs.FS
}

func newTestQueue(t *testing.T, config QueueConfig) *testQueue {
	t.Helper()
	local := localfs.NewInMemory()
	session := newFakeSession(local)
	tq := NewTransferQueue(config, session, local)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		tq.Shutdown(ctx)
	})
	return &testQueue{TransferQueue: tq, session: session, local: local}
}

func (q *testQueue) writeLocal(t *testing.T, p string, size int) {
	t.Helper()
	require.NoError(t, q.local.WriteFile(p, make([]byte, size)))
}

func (q *testQueue) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))
}

func (q *testQueue) mustItem(t *testing.T, id string) TransferItem {
	t.Helper()
	item, ok := q.Item(id)
	require.True(t, ok, "item %s not in queue", id)
	return item
}

// answers returns a ConflictFunc that replays decisions in order and
// records every conflict it was shown.
func answers(seen *[]Conflict, decisions ...ConflictDecision) ConflictFunc {
	var mu sync.Mutex
	return func(_ context.Context, c Conflict) (ConflictDecision, bool) {
		mu.Lock()
		defer mu.Unlock()
		*seen = append(*seen, c)
		if len(decisions) == 0 {
			return ConflictDecision{}, false
		}
		d := decisions[0]
		decisions = decisions[1:]
		return d, true
	}
}
