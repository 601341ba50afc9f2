package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/simonbray/firecrest/internal/domain"

	"github.com/google/uuid"
)

const serviceHeader = "X-Task-Service"

type Usecase interface {
	CreateTask(ctx context.Context, owner string, svc domain.Service) (domain.Task, error)
	GetTask(ctx context.Context, publicID, caller string) (domain.Task, error)
	ListTasksForOwner(ctx context.Context, caller string) map[string]domain.TaskSummary
	ListTasksForService(ctx context.Context, svc domain.Service) (map[string]domain.TaskSummary, error)
	UpdateTaskStatus(ctx context.Context, publicID, caller string, status domain.Status, message string) (domain.Task, error)
	DeleteTask(ctx context.Context, publicID, caller string) error
	SetTaskExpiry(ctx context.Context, publicID, caller string) (time.Duration, error)
}

// Origins holds the pre-configured internal service addresses. Mutating calls
// must come from the storage or compute service; the health probe and the
// service listing each have a single designated caller.
type Origins struct {
	Storage string
	Compute string
	Status  string
}

type handler struct {
	usecase     Usecase
	taskBaseURL string
	origins     Origins
}

func NewHandler(uc Usecase, taskBaseURL string, origins Origins) *handler {
	return &handler{
		usecase:     uc,
		taskBaseURL: strings.TrimRight(taskBaseURL, "/"),
		origins:     origins,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type createdResponse struct {
	TaskID  string `json:"task_id"`
	TaskURL string `json:"task_url"`
}

type taskResponse struct {
	Task domain.Task `json:"task"`
}

type listResponse struct {
	Tasks map[string]domain.TaskSummary `json:"tasks"`
}

type updateRequest struct {
	Status  string `json:"status"`
	Message string `json:"msg"`
}

// GET / — every live task owned by the caller.
func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "list")

	caller, err := username(r)
	if err != nil {
		logger.Warn("auth", slog.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	tasks := h.usecase.ListTasksForOwner(r.Context(), caller)
	writeJSON(w, http.StatusOK, listResponse{Tasks: tasks})
}

// POST / — create a task for the calling service family.
func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "create")

	if !h.fromInternalService(r) {
		logger.Warn("invalid request address")
		writeError(w, http.StatusForbidden, "invalid request address")
		return
	}

	svc, err := domain.ParseService(r.Header.Get(serviceHeader))
	if err != nil {
		logger.Warn("service header", slog.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	caller, err := username(r)
	if err != nil {
		logger.Warn("auth", slog.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	t, err := h.usecase.CreateTask(r.Context(), caller, svc)
	if err != nil {
		logger.Error("create task", slog.String("error", err.Error()))
		h.writeUsecaseError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createdResponse{
		TaskID:  t.PublicID,
		TaskURL: h.taskURL(t.PublicID),
	})
}

// GET /{id} — full status view, owner only.
func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "get")
	publicID := r.PathValue("id")

	caller, err := username(r)
	if err != nil {
		logger.Warn("auth", slog.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	t, err := h.usecase.GetTask(r.Context(), publicID, caller)
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, taskResponse{Task: t})
}

// PUT /{id} — status report from the owner or, for system-terminal codes,
// from a transfer worker with no end-user credential. The body is read before
// the identity: whether an identity is required at all depends on the status.
func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "update")
	publicID := r.PathValue("id")

	if !h.fromInternalService(r) {
		logger.Warn("invalid request address")
		writeError(w, http.StatusForbidden, "invalid request address")
		return
	}

	req, err := decodeUpdate(r)
	if err != nil {
		logger.Warn("decode", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := domain.Status(req.Status)

	caller := ""
	if !status.SystemTerminal() {
		caller, err = username(r)
		if err != nil {
			logger.Warn("auth", slog.String("error", err.Error()))
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
	}

	t, err := h.usecase.UpdateTaskStatus(r.Context(), publicID, caller, status, req.Message)
	if err != nil {
		logger.Warn("update task", slog.String("error", err.Error()))
		h.writeUsecaseError(w, err)
		return
	}

	logger.Info("status updated",
		slog.String("task_id", publicID),
		slog.String("status", string(t.Status)),
	)
	writeJSON(w, http.StatusOK, map[string]string{"success": "task updated"})
}

// DELETE /{id} — soft delete, owner only.
func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "delete")
	publicID := r.PathValue("id")

	if !h.fromInternalService(r) {
		logger.Warn("invalid request address")
		writeError(w, http.StatusForbidden, "invalid request address")
		return
	}

	caller, err := username(r)
	if err != nil {
		logger.Warn("auth", slog.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if err := h.usecase.DeleteTask(r.Context(), publicID, caller); err != nil {
		logger.Warn("delete task", slog.String("error", err.Error()))
		h.writeUsecaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"success": "task deleted"})
}

// POST /task-expire/{id} — set the durable record's TTL, owner only.
func (h *handler) expire(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "expire")
	publicID := r.PathValue("id")

	if !h.fromInternalService(r) {
		logger.Warn("invalid request address")
		writeError(w, http.StatusForbidden, "invalid request address")
		return
	}

	caller, err := username(r)
	if err != nil {
		logger.Warn("auth", slog.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	ttl, err := h.usecase.SetTaskExpiry(r.Context(), publicID, caller)
	if err != nil {
		logger.Warn("expire task", slog.String("error", err.Error()))
		h.writeUsecaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"success": fmt.Sprintf("task expiration time set to %.0f secs", ttl.Seconds()),
	})
}

// GET /status — liveness probe for the designated status service.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if remoteHost(r) != h.origins.Status {
		slog.Warn("health probe from invalid address", slog.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusForbidden, "invalid access")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"success": "ack"})
}

// GET /taskslist — the storage service's own tasks, straight from the durable
// store, used to rehydrate its view after a restart.
func (h *handler) serviceTasks(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "service_tasks")

	if remoteHost(r) != h.origins.Storage {
		logger.Warn("invalid request address")
		writeError(w, http.StatusForbidden, "invalid access")
		return
	}

	tasks, err := h.usecase.ListTasksForService(r.Context(), domain.ServiceStorage)
	if err != nil {
		logger.Error("service listing", slog.String("error", err.Error()))
		h.writeUsecaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Tasks: tasks})
}

func (h *handler) fromInternalService(r *http.Request) bool {
	host := remoteHost(r)
	return host == h.origins.Storage || host == h.origins.Compute
}

func (h *handler) taskURL(publicID string) string {
	return h.taskBaseURL + "/tasks/" + publicID
}

func (h *handler) writeUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrUnknownService):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, fmt.Sprintf(
			"%v; recognized codes: %s", err, strings.Join(domain.KnownStatusCodes(), ", ")))
	case errors.Is(err, domain.ErrTaskDeleted):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.Retryable(err):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "persistence server unavailable, retry later")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func decodeUpdate(r *http.Request) (updateRequest, error) {
	var req updateRequest

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid json body: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("invalid form body: %w", err)
		}
		req.Status = r.PostFormValue("status")
		req.Message = r.PostFormValue("msg")
	}

	if req.Status == "" {
		return req, errors.New("field `status` is required")
	}
	return req, nil
}

func requestLogger(r *http.Request, name string) *slog.Logger {
	return slog.With(
		slog.String("request_id", uuid.NewString()),
		slog.String("handler", name),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
