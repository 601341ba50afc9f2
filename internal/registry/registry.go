package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/simonbray/firecrest/internal/domain"
)

// Registry is the authoritative in-memory index of live tasks, keyed by public
// id. It answers all reads; the durable store is only consulted at bootstrap
// and for the cross-service reconciliation listing. All access goes through
// the methods here, which serialize mutation.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
}

func New() *Registry {
	return &Registry{tasks: make(map[string]domain.Task)}
}

// Insert adds a task under its public id. It serves both the create path and
// the bootstrap restore path (where the id is already allocated). Public ids
// are unique across live tasks, so a duplicate is a hard error.
func (r *Registry) Insert(t domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.PublicID]; exists {
		return fmt.Errorf("registry: duplicate public id %s", t.PublicID)
	}
	r.tasks[t.PublicID] = t
	return nil
}

// Get returns a copy of the task; readers never observe a partially mutated
// record.
func (r *Registry) Get(publicID string) (domain.Task, bool) {
	r.mu.RLock()
	t, ok := r.tasks[publicID]
	r.mu.RUnlock()
	return t, ok
}

func (r *Registry) ListByOwner(owner string) map[string]domain.TaskSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.TaskSummary)
	for id, t := range r.tasks {
		if t.Owner == owner {
			out[id] = t.Summary()
		}
	}
	return out
}

func (r *Registry) ListByService(service domain.Service) map[string]domain.TaskSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.TaskSummary)
	for id, t := range r.tasks {
		if t.Service == service {
			out[id] = t.Summary()
		}
	}
	return out
}

// SetStatus applies a validated status to the task and returns the updated
// copy. The deleted marker is not reachable through here; only MarkDeleted
// sets it.
func (r *Registry) SetStatus(publicID string, status domain.Status, message string, now time.Time) (domain.Task, error) {
	if !status.Valid() {
		return domain.Task{}, fmt.Errorf("%w: %q", domain.ErrUnknownStatus, status)
	}
	if status == domain.StatusDeleted {
		return domain.Task{}, fmt.Errorf("%w: %q is set by the delete operation only", domain.ErrUnknownStatus, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[publicID]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if t.Status == domain.StatusDeleted {
		return domain.Task{}, domain.ErrTaskDeleted
	}

	t.Status = status
	t.Message = message
	t.UpdatedAt = now
	r.tasks[publicID] = t
	return t, nil
}

// MarkDeleted stamps the task with the deleted marker but keeps the entry, so
// follow-up polls by the former owner resolve until the janitor evicts it.
func (r *Registry) MarkDeleted(publicID string, now time.Time) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[publicID]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}

	t.Status = domain.StatusDeleted
	t.Message = domain.StatusDeleted.Message()
	t.UpdatedAt = now
	r.tasks[publicID] = t
	return t, nil
}

// EvictDeleted removes deleted entries whose marker is older than the
// retention window and reports how many were dropped.
func (r *Registry) EvictDeleted(retention time.Duration, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, t := range r.tasks {
		if t.Status == domain.StatusDeleted && now.Sub(t.UpdatedAt) >= retention {
			delete(r.tasks, id)
			evicted++
		}
	}
	return evicted
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
