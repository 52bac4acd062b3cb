// Package store defines the state-store contract: durable, atomic
// persistence for job status, step status, and TTL locks. The
// interface-segregation shape — small single-purpose interfaces plus a
// composite Store — follows the teacher's
// internal/controller/backend.Backend design, which itself segregates
// RunStore/RunLister/CheckpointStore/StepResultStore so a caller can
// type-assert for optional capability rather than requiring every
// backend to implement everything.
package store

import (
	"context"
	"io"
)

// JobStatus is the lifecycle status of one job within one run.
type JobStatus string

const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
	JobStatusBlocked JobStatus = "BLOCKED"
	JobStatusSkipped JobStatus = "SKIPPED"
)

// StepStatus is the lifecycle status of one step within one run. Per the
// data model, a step that failed or never completed has no row at all —
// there is no StepStatusFailed.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "SUCCESS"
	StepStatusSkipped StepStatus = "SKIPPED"
)

// JobStatusStore persists and retrieves JobRun records.
type JobStatusStore interface {
	GetJobStatus(ctx context.Context, jobID, runID string) (status JobStatus, found bool, err error)
	SetJobStatus(ctx context.Context, jobID, runID string, status JobStatus) error
}

// StepStatusStore persists and retrieves StepRun records.
type StepStatusStore interface {
	GetStepStatus(ctx context.Context, jobID, runID, stepID string) (status StepStatus, found bool, err error)
	SetStepStatus(ctx context.Context, jobID, runID, stepID string, status StepStatus) error
}

// LockStore implements the TTL mutex primitive with_lock relies on.
type LockStore interface {
	// TryAcquireLock returns true when the row was absent, expired, or
	// already owned by owner, atomically writing {owner, now+ttl} in
	// that case. It returns false when a different owner holds a
	// non-expired row.
	TryAcquireLock(ctx context.Context, key, owner string, ttlSeconds int) (bool, error)

	// ReleaseLock deletes the row if and only if it is owned by owner.
	ReleaseLock(ctx context.Context, key, owner string) error
}

// Store is the full state-store contract a runner depends on.
type Store interface {
	JobStatusStore
	StepStatusStore
	LockStore
	io.Closer
}
