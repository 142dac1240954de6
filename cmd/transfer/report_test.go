package transfer

import (
	"bytes"
	"testing"

	"sshmanager/pkg/transfer"

	"github.com/stretchr/testify/assert"
)

func TestPrintResults(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, []transfer.TransferItem{
		{FileName: "a.txt", RemotePath: "/srv/a.txt", Direction: transfer.DirectionUpload, Status: transfer.StatusCompleted, Progress: 100, TotalBytes: 2048},
		{FileName: "b.txt", LocalPath: "/tmp/b.txt", Direction: transfer.DirectionDownload, Status: transfer.StatusFailed, ErrorMessage: "permission denied"},
	})

	text := out.String()
	assert.Contains(t, text, "a.txt")
	assert.Contains(t, text, "/srv/a.txt")
	assert.Contains(t, text, "2.0 KiB")
	assert.Contains(t, text, "/tmp/b.txt")
	assert.Contains(t, text, "permission denied")
}

func TestPrintResults_Empty(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, nil)
	assert.Equal(t, "No transfers.\n", out.String())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "3.0 MiB", formatBytes(3*1024*1024))
}

func TestResultSet_KeepsRemovedCompletedItems(t *testing.T) {
	r := newResultSet()
	item := transfer.TransferItem{ID: "1", FileName: "a.txt", Status: transfer.StatusPending}
	r.record(transfer.Event{Type: transfer.EventItemAdded, Item: item, StatusChanged: true})

	item.Status = transfer.StatusCompleted
	r.record(transfer.Event{Type: transfer.EventItemUpdated, Item: item, StatusChanged: true})
	r.record(transfer.Event{Type: transfer.EventItemRemoved, Item: item, StatusChanged: true})
	r.record(transfer.Event{Type: transfer.EventDestinationChanged, Item: item})

	items := r.items()
	if assert.Len(t, items, 1) {
		assert.Equal(t, transfer.StatusCompleted, items[0].Status)
	}
}
