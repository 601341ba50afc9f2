package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"queued", StatusQueued, true},
		{"progress", StatusProgress, true},
		{"success", StatusSuccess, true},
		{"deleted marker", StatusDeleted, true},
		{"download finished", StatusDownloadEnd, true},
		{"unknown numeric", Status("999"), false},
		{"empty", Status(""), false},
		{"word", Status("queued"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Valid())
		})
	}
}

func TestSystemTerminalSet(t *testing.T) {
	terminal := []Status{StatusUploadEnd, StatusUploadError, StatusDownloadEnd, StatusDownloadError}
	for _, s := range terminal {
		assert.True(t, s.SystemTerminal(), "expected %s to be system-terminal", s)
	}

	others := []Status{StatusQueued, StatusProgress, StatusSuccess, StatusDeleted, StatusError, StatusUploadURLAsked}
	for _, s := range others {
		assert.False(t, s.SystemTerminal(), "expected %s not to be system-terminal", s)
	}
}

func TestKnownStatusCodes(t *testing.T) {
	codes := KnownStatusCodes()
	require.NotEmpty(t, codes)
	assert.Contains(t, codes, string(StatusQueued))
	assert.Contains(t, codes, string(StatusDownloadError))
	assert.IsIncreasing(t, codes)
}

func TestParseService(t *testing.T) {
	tests := []struct {
		in      string
		want    Service
		wantErr bool
	}{
		{"storage", ServiceStorage, false},
		{"compute", ServiceCompute, false},
		{" Storage ", ServiceStorage, false},
		{"status", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseService(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownService)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewTask(t *testing.T) {
	now := time.Now().UTC()
	task := NewTask(42, "alice", ServiceStorage, now)

	assert.Equal(t, int64(42), task.ID)
	assert.Equal(t, "42", task.PublicID)
	assert.Equal(t, StatusQueued, task.Status)
	assert.Equal(t, StatusQueued.Message(), task.Message)
	assert.Equal(t, now, task.CreatedAt)
	assert.Equal(t, now, task.UpdatedAt)

	restored := task.Record().Task()
	assert.Equal(t, task, restored)
}

func TestRetryable(t *testing.T) {
	storeErr := &StoreError{Op: "save task:1", Err: errors.New("connection refused")}

	assert.True(t, Retryable(storeErr))
	assert.True(t, Retryable(errors.Join(errors.New("wrapped"), storeErr)))
	assert.False(t, Retryable(ErrNotOwner))
	assert.False(t, Retryable(ErrUnknownStatus))
	assert.False(t, Retryable(nil))
}
