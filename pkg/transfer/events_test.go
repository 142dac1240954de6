package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_SubscribeAndUnsubscribe(t *testing.T) {
	e := newEmitter()

	var first, second []EventType
	unsubscribe := e.subscribe(func(ev Event) { first = append(first, ev.Type) })
	e.subscribe(func(ev Event) { second = append(second, ev.Type) })

	e.emit(Event{Type: EventItemAdded}, Event{Type: EventItemUpdated})
	unsubscribe()
	e.emit(Event{Type: EventItemRemoved})
	e.emit()

	assert.Equal(t, []EventType{EventItemAdded, EventItemUpdated}, first)
	assert.Equal(t, []EventType{EventItemAdded, EventItemUpdated, EventItemRemoved}, second)
}

func TestEmitter_CallsListenersInSubscriptionOrder(t *testing.T) {
	e := newEmitter()

	var order []int
	unsubscribers := make([]func(), 0, 8)
	for i := 0; i < 8; i++ {
		i := i
		unsubscribers = append(unsubscribers, e.subscribe(func(Event) { order = append(order, i) }))
	}
	unsubscribers[3]()

	for round := 0; round < 5; round++ {
		order = nil
		e.emit(Event{Type: EventItemUpdated})
		assert.Equal(t, []int{0, 1, 2, 4, 5, 6, 7}, order)
	}
}

func TestEmitter_ListenerMaySubscribe(t *testing.T) {
	e := newEmitter()
	calls := 0
	e.subscribe(func(Event) {
		calls++
		e.subscribe(func(Event) {})
	})

	assert.NotPanics(t, func() { e.emit(Event{Type: EventItemAdded}) })
	assert.Equal(t, 1, calls)
}

func TestTypeStrings(t *testing.T) {
	assert.Equal(t, "destination-changed", EventDestinationChanged.String())
	assert.Equal(t, "In Progress", StatusInProgress.String())
	assert.Equal(t, "Download", DirectionDownload.String())
	assert.Equal(t, "keep-both", ResolutionKeepBoth.String())

	for _, r := range []Resolution{ResolutionOverwrite, ResolutionSkip, ResolutionResume, ResolutionKeepBoth} {
		parsed, err := ParseResolution(r.String())
		assert.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := ParseResolution("maybe")
	assert.ErrorIs(t, err, ErrUnknownResolution)
}

func TestTransferItem_Paths(t *testing.T) {
	up := TransferItem{Direction: DirectionUpload, LocalPath: "/local/a.txt", RemotePath: "/remote/x/a.txt"}
	assert.Equal(t, "/local/a.txt", up.SourcePath())
	assert.Equal(t, "/remote/x/a.txt", up.DestinationPath())
	assert.Equal(t, "/remote/x", up.DestinationDir())

	down := TransferItem{Direction: DirectionDownload, LocalPath: "/downloads/a.txt", RemotePath: "/remote/a.txt"}
	assert.Equal(t, "/remote/a.txt", down.SourcePath())
	assert.Equal(t, "/downloads/a.txt", down.DestinationPath())
	assert.False(t, down.IsTerminal())
}
