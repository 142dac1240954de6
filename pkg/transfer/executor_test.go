package transfer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyProgress(t *testing.T) {
	tests := []struct {
		name            string
		item            TransferItem
		percent         float64
		wantProgress    float64
		wantTransferred int64
	}{
		{
			name:            "derives transferred bytes",
			item:            TransferItem{Status: StatusInProgress, TotalBytes: 1000},
			percent:         25,
			wantProgress:    25,
			wantTransferred: 250,
		},
		{
			name:            "clamps above 100",
			item:            TransferItem{Status: StatusInProgress, TotalBytes: 1000},
			percent:         180,
			wantProgress:    100,
			wantTransferred: 1000,
		},
		{
			name:            "ignores values behind the resume offset",
			item:            TransferItem{Status: StatusInProgress, TotalBytes: 1000, ResumeOffset: 400, Progress: 40, TransferredBytes: 400},
			percent:         10,
			wantProgress:    40,
			wantTransferred: 400,
		},
		{
			name:            "ignored once cancelled",
			item:            TransferItem{Status: StatusCancelled, TotalBytes: 1000, Progress: 10, TransferredBytes: 100},
			percent:         90,
			wantProgress:    10,
			wantTransferred: 100,
		},
		{
			name:            "unknown total keeps bytes at zero",
			item:            TransferItem{Status: StatusInProgress},
			percent:         50,
			wantProgress:    50,
			wantTransferred: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := tt.item
			applyProgress(&item, tt.percent)
			assert.Equal(t, tt.wantProgress, item.Progress)
			assert.Equal(t, tt.wantTransferred, item.TransferredBytes)
			assert.LessOrEqual(t, item.TransferredBytes, max(item.TotalBytes, 0))
		})
	}
}

func TestApplyResumeProbe(t *testing.T) {
	t.Run("partial destination", func(t *testing.T) {
		item := TransferItem{Status: StatusFailed, TotalBytes: 1000}
		applyResumeProbe(&item, 600, nil)
		assert.True(t, item.CanResume)
		assert.Equal(t, int64(600), item.ResumeOffset)
		assert.Equal(t, float64(60), item.Progress)
		assert.Equal(t, int64(600), item.TransferredBytes)
	})

	t.Run("probe failure is not resumable", func(t *testing.T) {
		item := TransferItem{Status: StatusCancelled, TotalBytes: 1000, CanResume: true, ResumeOffset: 300}
		applyResumeProbe(&item, 0, errors.New("stat failed"))
		assert.False(t, item.CanResume)
		assert.Equal(t, int64(0), item.ResumeOffset)
	})

	t.Run("complete destination is not resumable", func(t *testing.T) {
		item := TransferItem{Status: StatusFailed, TotalBytes: 1000}
		applyResumeProbe(&item, 1000, nil)
		assert.False(t, item.CanResume)
		assert.Equal(t, int64(0), item.ResumeOffset)
	})
}

func TestExecutor_BeginSeedsFromOffset(t *testing.T) {
	ex := &Executor{}
	item := TransferItem{
		Status:       StatusFailed,
		TotalBytes:   200,
		ResumeOffset: 50,
		CanResume:    true,
		ErrorMessage: "old failure",
	}

	ex.begin(&item, fixedTime{}.Now())

	assert.Equal(t, StatusInProgress, item.Status)
	assert.Equal(t, float64(25), item.Progress)
	assert.Equal(t, int64(50), item.TransferredBytes)
	assert.False(t, item.CanResume)
	assert.Empty(t, item.ErrorMessage)
	assert.True(t, item.CompletedAt.IsZero())
}
