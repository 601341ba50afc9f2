package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/simonbray/firecrest/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(id int64, owner string, svc domain.Service) domain.Task {
	return domain.NewTask(id, owner, svc, time.Now().UTC())
}

func TestInsertAndGet(t *testing.T) {
	reg := New()

	task := newTask(1, "alice", domain.ServiceStorage)
	require.NoError(t, reg.Insert(task))

	got, ok := reg.Get("1")
	require.True(t, ok)
	assert.Equal(t, task, got)

	_, ok = reg.Get("2")
	assert.False(t, ok)
}

func TestInsertDuplicatePublicID(t *testing.T) {
	reg := New()

	require.NoError(t, reg.Insert(newTask(1, "alice", domain.ServiceStorage)))
	err := reg.Insert(newTask(1, "bob", domain.ServiceCompute))
	require.Error(t, err)

	// first insert wins
	got, ok := reg.Get("1")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Owner)
}

func TestListByOwner(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(newTask(1, "alice", domain.ServiceStorage)))
	require.NoError(t, reg.Insert(newTask(2, "bob", domain.ServiceStorage)))
	require.NoError(t, reg.Insert(newTask(3, "alice", domain.ServiceCompute)))

	alice := reg.ListByOwner("alice")
	assert.Len(t, alice, 2)
	assert.Contains(t, alice, "1")
	assert.Contains(t, alice, "3")

	assert.Empty(t, reg.ListByOwner("carol"))
}

func TestListByService(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(newTask(1, "alice", domain.ServiceStorage)))
	require.NoError(t, reg.Insert(newTask(2, "alice", domain.ServiceCompute)))

	storage := reg.ListByService(domain.ServiceStorage)
	require.Len(t, storage, 1)
	assert.Contains(t, storage, "1")
}

func TestSetStatus(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(newTask(1, "alice", domain.ServiceStorage)))

	now := time.Now().UTC()
	updated, err := reg.SetStatus("1", domain.StatusProgress, "compiling", now)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProgress, updated.Status)
	assert.Equal(t, "compiling", updated.Message)
	assert.Equal(t, now, updated.UpdatedAt)

	got, _ := reg.Get("1")
	assert.Equal(t, updated, got)
}

func TestSetStatusRejectsUnknownCode(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(newTask(1, "alice", domain.ServiceStorage)))

	_, err := reg.SetStatus("1", domain.Status("999"), "", time.Now())
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)

	got, _ := reg.Get("1")
	assert.Equal(t, domain.StatusQueued, got.Status, "rejected update must not mutate")
}

func TestSetStatusRejectsDeletedMarker(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(newTask(1, "alice", domain.ServiceStorage)))

	_, err := reg.SetStatus("1", domain.StatusDeleted, "", time.Now())
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)
}

func TestSetStatusUnknownTask(t *testing.T) {
	reg := New()
	_, err := reg.SetStatus("7", domain.StatusProgress, "", time.Now())
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestMarkDeleted(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(newTask(1, "alice", domain.ServiceStorage)))

	_, err := reg.MarkDeleted("1", time.Now().UTC())
	require.NoError(t, err)

	// entry survives with the deleted marker, it is not evicted yet
	got, ok := reg.Get("1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusDeleted, got.Status)

	// a deleted task never becomes live and mutable again
	_, err = reg.SetStatus("1", domain.StatusProgress, "", time.Now())
	assert.ErrorIs(t, err, domain.ErrTaskDeleted)
}

func TestEvictDeleted(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(newTask(1, "alice", domain.ServiceStorage)))
	require.NoError(t, reg.Insert(newTask(2, "alice", domain.ServiceStorage)))

	now := time.Now().UTC()
	_, err := reg.MarkDeleted("1", now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = reg.MarkDeleted("2", now)
	require.NoError(t, err)

	evicted := reg.EvictDeleted(10*time.Minute, now)
	assert.Equal(t, 1, evicted)

	_, ok := reg.Get("1")
	assert.False(t, ok, "entry past retention must be gone")
	_, ok = reg.Get("2")
	assert.True(t, ok, "entry inside retention must survive")
}

func TestConcurrentStatusUpdates(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert(newTask(1, "alice", domain.ServiceStorage)))

	writers := []struct {
		status  domain.Status
		message string
	}{
		{domain.StatusProgress, "worker a"},
		{domain.StatusSuccess, "worker b"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, w := range writers {
			wg.Add(1)
			go func(status domain.Status, msg string) {
				defer wg.Done()
				_, err := reg.SetStatus("1", status, msg, time.Now().UTC())
				assert.NoError(t, err)
			}(w.status, w.message)
		}
	}
	wg.Wait()

	// last writer wins, but the record is never a mix of both writers
	got, ok := reg.Get("1")
	require.True(t, ok)
	switch got.Status {
	case domain.StatusProgress:
		assert.Equal(t, "worker a", got.Message)
	case domain.StatusSuccess:
		assert.Equal(t, "worker b", got.Message)
	default:
		t.Fatalf("unexpected final status %s", got.Status)
	}
}
