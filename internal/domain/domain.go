package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Status is a task lifecycle code. Codes follow the gateway-wide numeric
// scheme: 1xx in flight, 2xx success, 3xx retired, 4xx failed. Status reports
// arrive from loosely coordinated workers, so any recognized code may follow
// any other; only StatusDeleted is restricted to the delete operation.
type Status string

const (
	StatusQueued   Status = "100"
	StatusProgress Status = "101"
	StatusSuccess  Status = "200"
	StatusDeleted  Status = "300"
	StatusExpired  Status = "301"
	StatusError    Status = "400"

	// storage transfer flow
	StatusUploadURLAsked Status = "111"
	StatusUploadURLReady Status = "112"
	StatusUploadEnd      Status = "114"
	StatusUploadError    Status = "115"
	StatusDownloadBegin  Status = "116"
	StatusDownloadEnd    Status = "117"
	StatusDownloadError  Status = "118"
)

var statusMessages = map[Status]string{
	StatusQueued:         "queued",
	StatusProgress:       "in progress",
	StatusSuccess:        "finished successfully",
	StatusDeleted:        "deleted",
	StatusExpired:        "expired",
	StatusError:          "error",
	StatusUploadURLAsked: "upload URL requested",
	StatusUploadURLReady: "upload URL ready",
	StatusUploadEnd:      "upload finished",
	StatusUploadError:    "upload failed",
	StatusDownloadBegin:  "download started",
	StatusDownloadEnd:    "download finished",
	StatusDownloadError:  "download failed",
}

// systemTerminal codes are reported by internal transfer workers that carry no
// end-user credential. Updates to these codes skip the ownership check and are
// gated by origin allow-listing in the transport layer instead.
var systemTerminal = map[Status]struct{}{
	StatusUploadEnd:     {},
	StatusUploadError:   {},
	StatusDownloadEnd:   {},
	StatusDownloadError: {},
}

func (s Status) Valid() bool {
	_, ok := statusMessages[s]
	return ok
}

func (s Status) SystemTerminal() bool {
	_, ok := systemTerminal[s]
	return ok
}

// Message returns the canonical description for the code, used when an update
// supplies no message of its own.
func (s Status) Message() string {
	return statusMessages[s]
}

// KnownStatusCodes lists every recognized code in ascending order, for
// validation error responses.
func KnownStatusCodes() []string {
	out := make([]string, 0, len(statusMessages))
	for s := range statusMessages {
		out = append(out, string(s))
	}
	sort.Strings(out)
	return out
}

// Service is the internal caller family a task belongs to.
type Service string

const (
	ServiceStorage Service = "storage"
	ServiceCompute Service = "compute"
)

func ParseService(s string) (Service, error) {
	switch Service(strings.ToLower(strings.TrimSpace(s))) {
	case ServiceStorage:
		return ServiceStorage, nil
	case ServiceCompute:
		return ServiceCompute, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownService, s)
}

// Task is the tracked unit of work. Owner and ID never change after creation.
type Task struct {
	ID       int64   `json:"task_id"`
	PublicID string  `json:"hash_id"`
	Owner    string  `json:"user"`
	Service  Service `json:"service"`

	Status  Status `json:"status"`
	Message string `json:"data"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublicID derives the externally exposed identifier from a task id. It is a
// deliberate 1:1 alias of the sequential id; callers are authenticated and
// ownership-checked, so opacity buys nothing here.
func PublicID(taskID int64) string {
	return strconv.FormatInt(taskID, 10)
}

func NewTask(taskID int64, owner string, service Service, now time.Time) Task {
	return Task{
		ID:        taskID,
		PublicID:  PublicID(taskID),
		Owner:     owner,
		Service:   service,
		Status:    StatusQueued,
		Message:   StatusQueued.Message(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TaskSummary is the per-task view returned by listings.
type TaskSummary struct {
	ID      string  `json:"task_id"`
	Status  Status  `json:"status"`
	Message string  `json:"data"`
	Service Service `json:"service"`
}

func (t Task) Summary() TaskSummary {
	return TaskSummary{
		ID:      t.PublicID,
		Status:  t.Status,
		Message: t.Message,
		Service: t.Service,
	}
}

// TaskRecord is the durable representation of a task in the store.
type TaskRecord struct {
	TaskID    int64
	Status    Status
	Owner     string
	Service   Service
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t Task) Record() TaskRecord {
	return TaskRecord{
		TaskID:    t.ID,
		Status:    t.Status,
		Owner:     t.Owner,
		Service:   t.Service,
		Message:   t.Message,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// Task reconstructs the in-memory task from a durable record (bootstrap path;
// the id is already allocated).
func (r TaskRecord) Task() Task {
	return Task{
		ID:        r.TaskID,
		PublicID:  PublicID(r.TaskID),
		Owner:     r.Owner,
		Service:   r.Service,
		Status:    r.Status,
		Message:   r.Message,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// TaskEvent is published on every applied lifecycle change so collaborating
// services get push updates in addition to polling.
type TaskEvent struct {
	TaskID    string    `json:"task_id"`
	Status    Status    `json:"status"`
	Service   Service   `json:"service"`
	Message   string    `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Failure taxonomy. Authorization, validation and not-found failures are
// final: retrying the same request cannot succeed. Store failures are the one
// retryable class, see StoreError.
var (
	ErrTaskNotFound   = errors.New("task does not exist")
	ErrNotOwner       = errors.New("operation not permitted: invalid task owner")
	ErrUnknownStatus  = errors.New("unknown status code")
	ErrUnknownService = errors.New("unknown service")
	ErrTaskDeleted    = errors.New("task is deleted")
)

// StoreError reports that the durable store was unreachable or rejected an
// operation. It is distinct from a record that is merely absent.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("task store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Retryable reports whether a failure might succeed on retry. Only store
// unavailability qualifies; everything else is a definitive rejection.
func Retryable(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
