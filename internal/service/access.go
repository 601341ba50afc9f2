package service

import "github.com/simonbray/firecrest/internal/domain"

// canAccess decides whether a caller identity may act on a task: the verified
// identity must equal the task owner. It never consults the durable store.
//
// The one exemption lives in UpdateTaskStatus: system-terminal codes are
// reported by internal transfer workers with no end-user identity, and those
// requests are gated by origin allow-listing in the transport layer instead.
func canAccess(t domain.Task, caller string) bool {
	return caller != "" && t.Owner == caller
}
