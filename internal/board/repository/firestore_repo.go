package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/kanbanlab/kanban-client/internal/board/domain"
)

const (
	projectsCollection = "projects"
	tasksCollection    = "tasks"
)

// FirestoreRepository implements BoardStore on Cloud Firestore.
type FirestoreRepository struct {
	client *firestore.Client
}

func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{client: client}
}

// projectsQuery filters by userId equality only. OrderBy is left off
// deliberately: ordering with an equality filter needs a composite
// index the project cannot assume exists, so callers sort client-side.
func (r *FirestoreRepository) projectsQuery(userID string) firestore.Query {
	return r.client.Collection(projectsCollection).Where("userId", "==", userID)
}

func (r *FirestoreRepository) tasks(projectID string) *firestore.CollectionRef {
	return r.client.Collection(projectsCollection).Doc(projectID).Collection(tasksCollection)
}

func (r *FirestoreRepository) FetchProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	it := r.projectsQuery(userID).Documents(ctx)
	defer it.Stop()

	var projects []domain.Project
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch projects: %w", err)
		}

		var p domain.Project
		if err := doc.DataTo(&p); err != nil {
			return nil, fmt.Errorf("failed to parse project %s: %w", doc.Ref.ID, err)
		}
		p.ID = doc.Ref.ID
		projects = append(projects, p)
	}
	return projects, nil
}

func (r *FirestoreRepository) WatchProjects(ctx context.Context, userID string, onUpdate func([]domain.Project)) error {
	snaps := r.projectsQuery(userID).Snapshots(ctx)
	defer snaps.Stop()

	for {
		snap, err := snaps.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("projects snapshot listener failed: %w", err)
		}

		var projects []domain.Project
		docs := snap.Documents
		for {
			doc, err := docs.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read projects snapshot: %w", err)
			}

			var p domain.Project
			if err := doc.DataTo(&p); err != nil {
				return fmt.Errorf("failed to parse project %s: %w", doc.Ref.ID, err)
			}
			p.ID = doc.Ref.ID
			projects = append(projects, p)
		}

		onUpdate(projects)
	}
}

func (r *FirestoreRepository) CreateProject(ctx context.Context, p domain.Project) (string, error) {
	ref, _, err := r.client.Collection(projectsCollection).Add(ctx, p)
	if err != nil {
		return "", fmt.Errorf("failed to create project: %w", err)
	}
	return ref.ID, nil
}

func (r *FirestoreRepository) UpdateProject(ctx context.Context, id string, patch ProjectPatch) error {
	updates := []firestore.Update{
		{Path: "name", Value: patch.Name},
		{Path: "description", Value: patch.Description},
		{Path: "color", Value: patch.Color},
		{Path: "updatedAt", Value: patch.UpdatedAt},
	}

	if _, err := r.client.Collection(projectsCollection).Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	return nil
}

func (r *FirestoreRepository) DeleteProject(ctx context.Context, id string) error {
	if _, err := r.client.Collection(projectsCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	return nil
}

func (r *FirestoreRepository) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	it := r.tasks(projectID).Documents(ctx)
	defer it.Stop()

	var tasks []domain.Task
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tasks for %s: %w", projectID, err)
		}

		var t domain.Task
		if err := doc.DataTo(&t); err != nil {
			return nil, fmt.Errorf("failed to parse task %s: %w", doc.Ref.ID, err)
		}
		t.ID = doc.Ref.ID
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (r *FirestoreRepository) WatchTasks(ctx context.Context, projectID string, onUpdate func([]domain.Task)) error {
	snaps := r.tasks(projectID).Query.Snapshots(ctx)
	defer snaps.Stop()

	for {
		snap, err := snaps.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tasks snapshot listener failed: %w", err)
		}

		var tasks []domain.Task
		docs := snap.Documents
		for {
			doc, err := docs.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read tasks snapshot: %w", err)
			}

			var t domain.Task
			if err := doc.DataTo(&t); err != nil {
				return fmt.Errorf("failed to parse task %s: %w", doc.Ref.ID, err)
			}
			t.ID = doc.Ref.ID
			tasks = append(tasks, t)
		}

		onUpdate(tasks)
	}
}

func (r *FirestoreRepository) CreateTask(ctx context.Context, projectID string, t domain.Task) (string, error) {
	ref, _, err := r.tasks(projectID).Add(ctx, t)
	if err != nil {
		return "", fmt.Errorf("failed to create task in %s: %w", projectID, err)
	}
	return ref.ID, nil
}

func (r *FirestoreRepository) UpdateTask(ctx context.Context, projectID, taskID string, patch TaskPatch) error {
	updates := []firestore.Update{
		{Path: "updatedAt", Value: patch.UpdatedAt},
	}
	if patch.Title != nil {
		updates = append(updates, firestore.Update{Path: "title", Value: *patch.Title})
	}
	if patch.Description != nil {
		updates = append(updates, firestore.Update{Path: "description", Value: *patch.Description})
	}
	if patch.DueDate != nil {
		updates = append(updates, firestore.Update{Path: "dueDate", Value: *patch.DueDate})
	} else if patch.ClearDueDate {
		updates = append(updates, firestore.Update{Path: "dueDate", Value: nil})
	}
	if patch.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: *patch.Status})
	}
	if patch.Completed != nil {
		updates = append(updates, firestore.Update{Path: "completed", Value: *patch.Completed})
	}

	if _, err := r.tasks(projectID).Doc(taskID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update task %s: %w", taskID, err)
	}
	return nil
}

func (r *FirestoreRepository) DeleteTask(ctx context.Context, projectID, taskID string) error {
	if _, err := r.tasks(projectID).Doc(taskID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

func (r *FirestoreRepository) ListTaskIDs(ctx context.Context, projectID string) ([]string, error) {
	it := r.tasks(projectID).Documents(ctx)
	defer it.Stop()

	var ids []string
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks for %s: %w", projectID, err)
		}
		ids = append(ids, doc.Ref.ID)
	}
	return ids, nil
}

func (r *FirestoreRepository) AdjustProjectCounters(ctx context.Context, projectID string, taskDelta, completedDelta int64) error {
	updates := make([]firestore.Update, 0, 2)
	if taskDelta != 0 {
		updates = append(updates, firestore.Update{Path: "taskCount", Value: firestore.Increment(taskDelta)})
	}
	if completedDelta != 0 {
		updates = append(updates, firestore.Update{Path: "completedCount", Value: firestore.Increment(completedDelta)})
	}
	if len(updates) == 0 {
		return nil
	}

	if _, err := r.client.Collection(projectsCollection).Doc(projectID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to adjust counters for %s: %w", projectID, err)
	}
	return nil
}

func (r *FirestoreRepository) SetProjectCounters(ctx context.Context, projectID string, taskCount, completedCount int64) error {
	updates := []firestore.Update{
		{Path: "taskCount", Value: taskCount},
		{Path: "completedCount", Value: completedCount},
	}

	if _, err := r.client.Collection(projectsCollection).Doc(projectID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to set counters for %s: %w", projectID, err)
	}
	return nil
}

// compile-time interface check
var _ BoardStore = (*FirestoreRepository)(nil)
