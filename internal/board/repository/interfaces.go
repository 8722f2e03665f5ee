package repository

import (
	"context"
	"time"

	"github.com/kanbanlab/kanban-client/internal/board/domain"
)

// ProjectPatch carries the fields UpdateProject writes. All fields
// are always written, matching the update form of the board client.
type ProjectPatch struct {
	Name        string
	Description string
	Color       string
	UpdatedAt   time.Time
}

// TaskPatch carries a partial task update. Nil pointer fields are
// left untouched; ClearDueDate removes the due date.
type TaskPatch struct {
	Title        *string
	Description  *string
	DueDate      *time.Time
	ClearDueDate bool
	Status       *string
	Completed    *bool
	UpdatedAt    time.Time
}

// BoardStore abstracts the remote document service holding the
// projects collection and its tasks sub-collections. The Firestore
// implementation is the only production one; tests use fakes.
type BoardStore interface {
	// FetchProjects runs a one-shot query filtered by userId
	// equality. No ordering is requested from the server.
	FetchProjects(ctx context.Context, userID string) ([]domain.Project, error)

	// WatchProjects blocks, invoking onUpdate with the full current
	// result set on every change notification, until ctx is cancelled
	// (returns nil) or the listener fails (returns the error).
	WatchProjects(ctx context.Context, userID string, onUpdate func([]domain.Project)) error

	CreateProject(ctx context.Context, p domain.Project) (string, error)
	UpdateProject(ctx context.Context, id string, patch ProjectPatch) error
	DeleteProject(ctx context.Context, id string) error

	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	WatchTasks(ctx context.Context, projectID string, onUpdate func([]domain.Task)) error

	CreateTask(ctx context.Context, projectID string, t domain.Task) (string, error)
	UpdateTask(ctx context.Context, projectID, taskID string, patch TaskPatch) error
	DeleteTask(ctx context.Context, projectID, taskID string) error

	// ListTaskIDs enumerates the task documents of a project, used by
	// the cascade delete.
	ListTaskIDs(ctx context.Context, projectID string) ([]string, error)

	// AdjustProjectCounters applies relative increments to the
	// denormalized task counters on the project document.
	AdjustProjectCounters(ctx context.Context, projectID string, taskDelta, completedDelta int64) error

	// SetProjectCounters overwrites the denormalized counters with
	// recomputed absolute values.
	SetProjectCounters(ctx context.Context, projectID string, taskCount, completedCount int64) error
}
