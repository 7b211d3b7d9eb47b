// Package store is the durable record of schedules, recipients and execution
// history, and the single source of truth for whether a job has run. All
// cross-caller coordination happens through one conditional claim update.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/journalpost/internal/models"
)

var (
	// ErrNotFound covers both unknown IDs and IDs owned by someone else.
	ErrNotFound = errors.New("schedule not found")
	// ErrUnavailable wraps transport/storage failures; callers treat it as transient.
	ErrUnavailable = errors.New("store unavailable")
	// ErrAlreadyClaimed is returned when a claim, reset or update loses to a
	// concurrent claimer or targets an executed schedule.
	ErrAlreadyClaimed = errors.New("schedule already running or executed")
)

// ScheduleUpdate carries the mutable fields of a pre-execution schedule.
// Nil fields are left untouched.
type ScheduleUpdate struct {
	Name       *string
	DurationMS *int64
	Recipients []models.Recipient
}

type ScheduleStore interface {
	Create(ctx context.Context, sched *models.Schedule) error
	Get(ctx context.Context, ownerID, id string) (*models.Schedule, error)
	List(ctx context.Context, ownerID string) ([]models.Schedule, error)
	Update(ctx context.Context, ownerID, id string, upd ScheduleUpdate, now time.Time) (*models.Schedule, error)

	// Delete removes a schedule and its logs. If the schedule is mid-execution
	// the deletion is deferred until the running attempt writes its log;
	// deferred reports which path was taken.
	Delete(ctx context.Context, ownerID, id string) (deferred bool, err error)

	// ClaimDue atomically claims the earliest due, unexecuted, unclaimed
	// schedule. Returns (nil, nil) when nothing is due.
	ClaimDue(ctx context.Context, now time.Time) (*models.Schedule, error)

	// Claim claims a specific schedule regardless of its execution time
	// (manual "execute now"). Loses cleanly to concurrent claimers.
	Claim(ctx context.Context, ownerID, id string) (*models.Schedule, error)

	// Release clears the running flag of an unexecuted schedule, making it
	// claimable again. Used when a claimed attempt could not start or finish
	// against the store.
	Release(ctx context.Context, id string) error

	// Reset re-arms a not-currently-running schedule to fire after its
	// original duration from now, preserving execution history.
	Reset(ctx context.Context, ownerID, id string, now time.Time) (*models.Schedule, error)

	AppendLog(ctx context.Context, log *models.ExecutionLog) error
	CompleteLog(ctx context.Context, log *models.ExecutionLog) error

	// MarkExecuted flips the terminal marker, clears the running flag and
	// honors any deletion deferred during the attempt.
	MarkExecuted(ctx context.Context, id string, at time.Time) error

	CountActive(ctx context.Context) (int64, error)
}
