package domain

import (
	"sort"
	"time"
)

// DefaultColor is applied to projects created without a color.
const DefaultColor = "#667eea"

// Task status values. Completed is derived: true iff status is done.
const (
	StatusTodo  = "todo"
	StatusDoing = "doing"
	StatusDone  = "done"
)

// ValidStatus reports whether s is one of the three board columns.
func ValidStatus(s string) bool {
	return s == StatusTodo || s == StatusDoing || s == StatusDone
}

// Project is a document in the projects collection. The ID is
// assigned by the document store on creation. TaskCount and
// CompletedCount are denormalized from the tasks sub-collection.
type Project struct {
	ID             string    `json:"id" firestore:"-"`
	Name           string    `json:"name" firestore:"name"`
	Description    string    `json:"description" firestore:"description"`
	Color          string    `json:"color" firestore:"color"`
	UserID         string    `json:"user_id" firestore:"userId"`
	TaskCount      int64     `json:"task_count" firestore:"taskCount"`
	CompletedCount int64     `json:"completed_count" firestore:"completedCount"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt      time.Time `json:"updated_at" firestore:"updatedAt"`
}

// Task is a document in the projects/{id}/tasks sub-collection.
type Task struct {
	ID          string     `json:"id" firestore:"-"`
	Title       string     `json:"title" firestore:"title"`
	Description string     `json:"description" firestore:"description"`
	DueDate     *time.Time `json:"due_date,omitempty" firestore:"dueDate"`
	Status      string     `json:"status" firestore:"status"`
	Completed   bool       `json:"completed" firestore:"completed"`
	CreatedAt   time.Time  `json:"created_at" firestore:"createdAt"`
	UpdatedAt   time.Time  `json:"updated_at" firestore:"updatedAt"`
}

// SortProjectsByCreatedDesc orders newest-first. Documents without a
// creation timestamp are treated as epoch and end up last. The sort
// happens client-side because the query deliberately requests no
// server-side ordering (no composite index is guaranteed to exist).
func SortProjectsByCreatedDesc(projects []Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
}

// SortTasksByCreatedDesc mirrors SortProjectsByCreatedDesc for tasks.
func SortTasksByCreatedDesc(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// FilterTasksByStatus returns the tasks whose status equals status.
// The result is a fresh slice; the input is never mutated.
func FilterTasksByStatus(tasks []Task, status string) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}
