package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simonbray/firecrest/internal/domain"
	"github.com/simonbray/firecrest/internal/registry"
)

// TaskStore is the durable key-value capability the facade persists through.
// Implementations must distinguish store unavailability (*domain.StoreError)
// from a record that is merely absent.
type TaskStore interface {
	EnsureCounter(ctx context.Context) error
	AllocateID(ctx context.Context) (int64, error)
	Save(ctx context.Context, rec domain.TaskRecord) error
	Load(ctx context.Context, taskID int64) (domain.TaskRecord, bool, error)
	Delete(ctx context.Context, taskID int64) (bool, error)
	LoadAll(ctx context.Context) (map[int64]domain.TaskRecord, error)
	LoadByService(ctx context.Context, service domain.Service) (map[int64]domain.TaskRecord, error)
	SetExpiry(ctx context.Context, taskID int64, ttl time.Duration) (bool, error)
}

// Events receives applied lifecycle changes. Publishing is best effort and
// never fails an operation.
type Events interface {
	Publish(ctx context.Context, ev domain.TaskEvent) error
}

// Service combines registry, durable store and event publishing into the task
// lifecycle operations the transport layer calls.
//
// Writes follow a persist-first discipline: validate everything, write the
// durable record, then apply to the registry. A persistence failure therefore
// leaves the in-memory view untouched, and the registry can never hold a task
// that was not durably recorded. writeMu serializes the whole sequence, so
// concurrent updates to one task resolve last-writer-wins with the persisted
// record always matching the most recently applied in-memory state.
type Service struct {
	registry *registry.Registry
	store    TaskStore
	events   Events

	taskExpiry time.Duration

	writeMu sync.Mutex
}

func New(reg *registry.Registry, store TaskStore, events Events, taskExpiry time.Duration) *Service {
	return &Service{
		registry:   reg,
		store:      store,
		events:     events,
		taskExpiry: taskExpiry,
	}
}

// Bootstrap rebuilds the registry from the durable store. Called once before
// serving; a store failure here must abort startup, there is no safe way to
// serve a registry whose durability cannot be established.
func (s *Service) Bootstrap(ctx context.Context) (int, error) {
	records, err := s.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("bootstrap: %w", err)
	}

	for _, rec := range records {
		if err := s.registry.Insert(rec.Task()); err != nil {
			return 0, fmt.Errorf("bootstrap: %w", err)
		}
	}

	return len(records), nil
}

// CreateTask allocates a fresh id, persists the initial record and registers
// the task with status queued. If allocation or the durable write fails, no
// task is registered; a skipped id is harmless, ids only need to be unique
// and increasing.
func (s *Service) CreateTask(ctx context.Context, owner string, svc domain.Service) (domain.Task, error) {
	if svc != domain.ServiceStorage && svc != domain.ServiceCompute {
		return domain.Task{}, fmt.Errorf("%w: %q", domain.ErrUnknownService, svc)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.EnsureCounter(ctx); err != nil {
		return domain.Task{}, err
	}
	taskID, err := s.store.AllocateID(ctx)
	if err != nil {
		return domain.Task{}, err
	}

	t := domain.NewTask(taskID, owner, svc, time.Now().UTC())

	if err := s.store.Save(ctx, t.Record()); err != nil {
		return domain.Task{}, err
	}
	if err := s.registry.Insert(t); err != nil {
		return domain.Task{}, err
	}

	s.notify(ctx, t)
	slog.Info("task created",
		slog.String("task_id", t.PublicID),
		slog.String("service", string(t.Service)),
	)

	return t, nil
}

func (s *Service) GetTask(ctx context.Context, publicID, caller string) (domain.Task, error) {
	t, ok := s.registry.Get(publicID)
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if !canAccess(t, caller) {
		return domain.Task{}, domain.ErrNotOwner
	}
	return t, nil
}

// ListTasksForOwner answers from the registry only.
func (s *Service) ListTasksForOwner(ctx context.Context, caller string) map[string]domain.TaskSummary {
	return s.registry.ListByOwner(caller)
}

// ListTasksForService reads the durable store, not the registry: a restarting
// collaborator uses this to rebuild its own view, including records written by
// other replicas.
func (s *Service) ListTasksForService(ctx context.Context, svc domain.Service) (map[string]domain.TaskSummary, error) {
	records, err := s.store.LoadByService(ctx, svc)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.TaskSummary, len(records))
	for _, rec := range records {
		t := rec.Task()
		out[t.PublicID] = t.Summary()
	}
	return out, nil
}

// UpdateTaskStatus applies a reported status. Ownership is enforced unless the
// code is system-terminal (see access.go). An empty message defaults to the
// code's canonical message. Validation happens in full before anything is
// persisted or mutated.
func (s *Service) UpdateTaskStatus(ctx context.Context, publicID, caller string, status domain.Status, message string) (domain.Task, error) {
	if !status.Valid() {
		return domain.Task{}, fmt.Errorf("%w: %q", domain.ErrUnknownStatus, status)
	}
	if status == domain.StatusDeleted {
		return domain.Task{}, fmt.Errorf("%w: %q is set by the delete operation only", domain.ErrUnknownStatus, status)
	}

	if message == "" {
		message = status.Message()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	t, ok := s.registry.Get(publicID)
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if t.Status == domain.StatusDeleted {
		return domain.Task{}, domain.ErrTaskDeleted
	}
	if !status.SystemTerminal() && !canAccess(t, caller) {
		return domain.Task{}, domain.ErrNotOwner
	}

	now := time.Now().UTC()

	updated := t
	updated.Status = status
	updated.Message = message
	updated.UpdatedAt = now

	if err := s.store.Save(ctx, updated.Record()); err != nil {
		return domain.Task{}, err
	}

	applied, err := s.registry.SetStatus(publicID, status, message, now)
	if err != nil {
		return domain.Task{}, err
	}

	s.notify(ctx, applied)
	slog.Info("task status updated",
		slog.String("task_id", publicID),
		slog.String("status", string(status)),
	)

	return applied, nil
}

// DeleteTask removes the durable record and stamps the registry entry with the
// deleted marker. The entry survives in memory for the retention window, so
// the former owner's polls still resolve instead of flapping to not-found.
func (s *Service) DeleteTask(ctx context.Context, publicID, caller string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	t, ok := s.registry.Get(publicID)
	if !ok {
		return domain.ErrTaskNotFound
	}
	if !canAccess(t, caller) {
		return domain.ErrNotOwner
	}

	removed, err := s.store.Delete(ctx, t.ID)
	if err != nil {
		return err
	}
	if !removed {
		// record already expired on the store side; soft-delete proceeds
		slog.Warn("no durable record to delete", slog.String("task_id", publicID))
	}

	deleted, err := s.registry.MarkDeleted(publicID, time.Now().UTC())
	if err != nil {
		return err
	}

	s.notify(ctx, deleted)
	slog.Info("task deleted", slog.String("task_id", publicID))

	return nil
}

// SetTaskExpiry puts the configured TTL on the task's durable record. The
// in-memory entry is untouched; the next restart reconciles.
func (s *Service) SetTaskExpiry(ctx context.Context, publicID, caller string) (time.Duration, error) {
	t, ok := s.registry.Get(publicID)
	if !ok {
		return 0, domain.ErrTaskNotFound
	}
	if !canAccess(t, caller) {
		return 0, domain.ErrNotOwner
	}

	ok, err := s.store.SetExpiry(ctx, t.ID, s.taskExpiry)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("task %s: no durable record to expire", publicID)
	}

	slog.Info("task expiry set",
		slog.String("task_id", publicID),
		slog.Duration("ttl", s.taskExpiry),
	)

	return s.taskExpiry, nil
}

// EvictDeleted drops deleted registry entries older than the retention
// window. Called by the app janitor.
func (s *Service) EvictDeleted(retention time.Duration) int {
	return s.registry.EvictDeleted(retention, time.Now().UTC())
}

func (s *Service) notify(ctx context.Context, t domain.Task) {
	if s.events == nil {
		return
	}
	ev := domain.TaskEvent{
		TaskID:    t.PublicID,
		Status:    t.Status,
		Service:   t.Service,
		Message:   t.Message,
		UpdatedAt: t.UpdatedAt,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		slog.Warn("publish task event",
			slog.String("task_id", t.PublicID),
			slog.String("error", err.Error()),
		)
	}
}
