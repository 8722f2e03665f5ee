package store

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbanlab/kanban-client/internal/board/domain"
	"github.com/kanbanlab/kanban-client/internal/board/repository"
)

// --- fakes ---

type fakeSession struct {
	uid string
}

func (f fakeSession) UID() string { return f.uid }

type fakeBoardStore struct {
	mu       sync.Mutex
	projects map[string]domain.Project
	tasks    map[string]map[string]domain.Task
	nextID   int

	createProjectErr error
	updateProjectErr error
	deleteTaskErr    map[string]error
	watchProjectsErr error
	watchTasksErr    error
	adjustErr        error

	fetchProjectCalls int
	counterLog        []string
	setCounterLog     []string
}

func newFakeBoardStore() *fakeBoardStore {
	return &fakeBoardStore{
		projects:      make(map[string]domain.Project),
		tasks:         make(map[string]map[string]domain.Task),
		deleteTaskErr: make(map[string]error),
	}
}

func (f *fakeBoardStore) seedProject(p domain.Project) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
	if f.tasks[p.ID] == nil {
		f.tasks[p.ID] = make(map[string]domain.Task)
	}
}

func (f *fakeBoardStore) seedTask(projectID string, t domain.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tasks[projectID] == nil {
		f.tasks[projectID] = make(map[string]domain.Task)
	}
	f.tasks[projectID][t.ID] = t
}

func (f *fakeBoardStore) projectsFor(userID string) []domain.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Project
	for _, p := range f.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeBoardStore) FetchProjects(_ context.Context, userID string) ([]domain.Project, error) {
	f.mu.Lock()
	f.fetchProjectCalls++
	f.mu.Unlock()
	return f.projectsFor(userID), nil
}

func (f *fakeBoardStore) WatchProjects(ctx context.Context, userID string, onUpdate func([]domain.Project)) error {
	if f.watchProjectsErr != nil {
		return f.watchProjectsErr
	}
	onUpdate(f.projectsFor(userID))
	<-ctx.Done()
	return nil
}

func (f *fakeBoardStore) CreateProject(_ context.Context, p domain.Project) (string, error) {
	if f.createProjectErr != nil {
		return "", f.createProjectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("proj-%d", f.nextID)
	p.ID = id
	f.projects[id] = p
	f.tasks[id] = make(map[string]domain.Task)
	return id, nil
}

func (f *fakeBoardStore) UpdateProject(_ context.Context, id string, patch repository.ProjectPatch) error {
	if f.updateProjectErr != nil {
		return f.updateProjectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return fmt.Errorf("project %s not found", id)
	}
	p.Name = patch.Name
	p.Description = patch.Description
	p.Color = patch.Color
	p.UpdatedAt = patch.UpdatedAt
	f.projects[id] = p
	return nil
}

func (f *fakeBoardStore) DeleteProject(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.projects, id)
	return nil
}

func (f *fakeBoardStore) FetchTasks(_ context.Context, projectID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for _, t := range f.tasks[projectID] {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeBoardStore) WatchTasks(ctx context.Context, projectID string, onUpdate func([]domain.Task)) error {
	if f.watchTasksErr != nil {
		return f.watchTasksErr
	}
	tasks, _ := f.FetchTasks(ctx, projectID)
	onUpdate(tasks)
	<-ctx.Done()
	return nil
}

func (f *fakeBoardStore) CreateTask(_ context.Context, projectID string, t domain.Task) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("task-%d", f.nextID)
	t.ID = id
	if f.tasks[projectID] == nil {
		f.tasks[projectID] = make(map[string]domain.Task)
	}
	f.tasks[projectID][id] = t
	return id, nil
}

func (f *fakeBoardStore) UpdateTask(_ context.Context, projectID, taskID string, patch repository.TaskPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[projectID][taskID]
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	t.UpdatedAt = patch.UpdatedAt
	f.tasks[projectID][taskID] = t
	return nil
}

func (f *fakeBoardStore) DeleteTask(_ context.Context, projectID, taskID string) error {
	if err := f.deleteTaskErr[taskID]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	// Deleting a missing document succeeds, like the real store.
	delete(f.tasks[projectID], taskID)
	return nil
}

func (f *fakeBoardStore) ListTaskIDs(_ context.Context, projectID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.tasks[projectID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeBoardStore) AdjustProjectCounters(_ context.Context, projectID string, taskDelta, completedDelta int64) error {
	if f.adjustErr != nil {
		return f.adjustErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counterLog = append(f.counterLog, fmt.Sprintf("%s:%+d/%+d", projectID, taskDelta, completedDelta))
	return nil
}

func (f *fakeBoardStore) SetProjectCounters(_ context.Context, projectID string, taskCount, completedCount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCounterLog = append(f.setCounterLog, fmt.Sprintf("%s:%d/%d", projectID, taskCount, completedCount))
	return nil
}

var _ repository.BoardStore = (*fakeBoardStore)(nil)

// --- helpers ---

func newTestStore(t *testing.T, docs *fakeBoardStore, uid string, opts ...StoreOption) (*Store, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts = append(opts, WithLogger(log.New(&buf, "", 0)))
	return New(docs, fakeSession{uid: uid}, opts...), &buf
}

// --- tests ---

func TestLoadProjects(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "older", UserID: "U1", CreatedAt: t1})
	docs.seedProject(domain.Project{ID: "newer", UserID: "U1", CreatedAt: t2})
	docs.seedProject(domain.Project{ID: "other", UserID: "U2", CreatedAt: t2})

	s, _ := newTestStore(t, docs, "U1")

	res := s.LoadProjects(context.Background())
	require.True(t, res.Success)

	projects := s.Projects()
	require.Len(t, projects, 2)
	assert.Equal(t, "newer", projects[0].ID)
	assert.Equal(t, "older", projects[1].ID)
}

func TestLoadProjectsRequiresUser(t *testing.T) {
	s, _ := newTestStore(t, newFakeBoardStore(), "")

	res := s.LoadProjects(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, "not signed in", res.Error)
}

func TestCreateProject(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "existing", UserID: "U1", CreatedAt: time.Now().Add(-time.Hour)})

	s, _ := newTestStore(t, docs, "U1")
	require.True(t, s.LoadProjects(context.Background()).Success)

	res := s.CreateProject(context.Background(), ProjectInput{Name: "launch"})
	require.True(t, res.Success)
	require.NotEmpty(t, res.ID)

	t.Run("new project appears at index 0 before any refresh", func(t *testing.T) {
		projects := s.Projects()
		require.NotEmpty(t, projects)
		assert.Equal(t, res.ID, projects[0].ID)
	})

	t.Run("defaults applied", func(t *testing.T) {
		p := s.Projects()[0]
		assert.Equal(t, domain.DefaultColor, p.Color)
		assert.Equal(t, "", p.Description)
		assert.Equal(t, "U1", p.UserID)
		assert.False(t, p.CreatedAt.IsZero())
	})
}

func TestCreateProjectFailureLeavesMirrorUntouched(t *testing.T) {
	docs := newFakeBoardStore()
	docs.createProjectErr = fmt.Errorf("permission denied")

	s, buf := newTestStore(t, docs, "U1")

	res := s.CreateProject(context.Background(), ProjectInput{Name: "nope"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "permission denied")
	assert.Empty(t, s.Projects())
	assert.Contains(t, buf.String(), "failed to create project")
}

func TestUpdateProjectPatchesMirror(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1", Name: "old", CreatedAt: time.Now()})

	s, _ := newTestStore(t, docs, "U1")
	require.True(t, s.LoadProjects(context.Background()).Success)

	res := s.UpdateProject(context.Background(), "p1", ProjectInput{Name: "new", Color: "#000000"})
	require.True(t, res.Success)

	p := s.Projects()[0]
	assert.Equal(t, "new", p.Name)
	assert.Equal(t, "#000000", p.Color)
}

func TestDeleteProjectCascade(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1", CreatedAt: time.Now()})
	docs.seedTask("p1", domain.Task{ID: "t1", Status: domain.StatusTodo})
	docs.seedTask("p1", domain.Task{ID: "t2", Status: domain.StatusTodo})
	docs.deleteTaskErr["t2"] = fmt.Errorf("simulated fault")

	s, buf := newTestStore(t, docs, "U1")
	require.True(t, s.LoadProjects(context.Background()).Success)

	res := s.DeleteProject(context.Background(), "p1")
	require.True(t, res.Success, "a failing child delete must not block the project delete")

	_, t1Left := docs.tasks["p1"]["t1"]
	_, t2Left := docs.tasks["p1"]["t2"]
	assert.False(t, t1Left, "t1 should have been deleted")
	assert.True(t, t2Left, "t2 delete failed and stays")

	_, projLeft := docs.projects["p1"]
	assert.False(t, projLeft, "project document deleted regardless")

	assert.Contains(t, buf.String(), "t2")
	assert.Empty(t, s.Projects())
}

func TestDeleteProjectDeclinedConfirmation(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1", CreatedAt: time.Now()})

	decline := ConfirmFunc(func(string) bool { return false })
	s, _ := newTestStore(t, docs, "U1", WithConfirmer(decline))
	require.True(t, s.LoadProjects(context.Background()).Success)

	res := s.DeleteProject(context.Background(), "p1")
	assert.False(t, res.Success)
	assert.Equal(t, "cancelled by user", res.Error)

	_, stillThere := docs.projects["p1"]
	assert.True(t, stillThere, "declining must make no network call")
	require.Len(t, s.Projects(), 1)
}

func TestLoadTasksAndPartitions(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1"})
	docs.seedTask("p1", domain.Task{ID: "a", Status: domain.StatusTodo, CreatedAt: time.Now()})
	docs.seedTask("p1", domain.Task{ID: "b", Status: domain.StatusDoing})
	docs.seedTask("p1", domain.Task{ID: "c", Status: domain.StatusDone, Completed: true})

	s, _ := newTestStore(t, docs, "U1")

	res := s.LoadTasks(context.Background(), "p1")
	require.True(t, res.Success)
	assert.Equal(t, "p1", s.ActiveProjectID())
	assert.Len(t, s.Tasks(), 3)

	assert.Len(t, s.TodoTasks(), 1)
	assert.Len(t, s.DoingTasks(), 1)
	assert.Len(t, s.DoneTasks(), 1)
	assert.Equal(t, "a", s.TodoTasks()[0].ID)
}

func TestCreateTask(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1"})

	s, _ := newTestStore(t, docs, "U1")
	require.True(t, s.LoadTasks(context.Background(), "p1").Success)

	t.Run("defaults status to todo", func(t *testing.T) {
		res := s.CreateTask(context.Background(), "p1", TaskInput{Title: "write docs"})
		require.True(t, res.Success)
		require.NotNil(t, res.Task)
		assert.Equal(t, domain.StatusTodo, res.Task.Status)
		assert.False(t, res.Task.Completed)
		assert.Equal(t, res.ID, s.Tasks()[0].ID)
	})

	t.Run("done tasks start completed and bump both counters", func(t *testing.T) {
		res := s.CreateTask(context.Background(), "p1", TaskInput{Title: "done already", Status: domain.StatusDone})
		require.True(t, res.Success)
		assert.True(t, res.Task.Completed)
		assert.Contains(t, docs.counterLog, "p1:+1/+1")
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		res := s.CreateTask(context.Background(), "p1", TaskInput{Title: "bad", Status: "blocked"})
		assert.False(t, res.Success)
	})
}

func TestCreateTaskOutsideActiveProject(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1"})
	docs.seedProject(domain.Project{ID: "p2", UserID: "U1"})

	s, _ := newTestStore(t, docs, "U1")
	require.True(t, s.LoadTasks(context.Background(), "p1").Success)

	var events []Event
	unsub := s.OnChange(func(ev Event) { events = append(events, ev) })
	defer unsub()

	res := s.CreateTask(context.Background(), "p2", TaskInput{Title: "elsewhere"})
	require.True(t, res.Success)

	assert.Empty(t, events, "an untouched mirror publishes no event")
	assert.Empty(t, s.Tasks())
	assert.Contains(t, docs.counterLog, "p2:+1/+0", "counters still track the write")

	res = s.CreateTask(context.Background(), "p1", TaskInput{Title: "here"})
	require.True(t, res.Success)
	require.Len(t, events, 1)
	assert.Equal(t, ScopeTasks, events[0].Scope)
	assert.False(t, events[0].Wholesale)
}

func TestUpdateTaskStatus(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1"})
	docs.seedTask("p1", domain.Task{ID: "t1", Status: domain.StatusTodo})

	s, _ := newTestStore(t, docs, "U1")
	require.True(t, s.LoadTasks(context.Background(), "p1").Success)

	t.Run("done derives completed true", func(t *testing.T) {
		res := s.UpdateTaskStatus(context.Background(), "p1", "t1", domain.StatusDone)
		require.True(t, res.Success)

		task := s.Tasks()[0]
		assert.Equal(t, domain.StatusDone, task.Status)
		assert.True(t, task.Completed)
		assert.Contains(t, docs.counterLog, "p1:+0/+1")
	})

	t.Run("any other status derives completed false", func(t *testing.T) {
		res := s.UpdateTaskStatus(context.Background(), "p1", "t1", domain.StatusDoing)
		require.True(t, res.Success)

		task := s.Tasks()[0]
		assert.Equal(t, domain.StatusDoing, task.Status)
		assert.False(t, task.Completed)
		assert.Contains(t, docs.counterLog, "p1:+0/-1")
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		res := s.UpdateTaskStatus(context.Background(), "p1", "t1", "later")
		assert.False(t, res.Success)
	})
}

func TestDeleteTaskIdempotent(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1"})
	docs.seedTask("p1", domain.Task{ID: "t1", Status: domain.StatusTodo})

	s, _ := newTestStore(t, docs, "U1")
	require.True(t, s.LoadTasks(context.Background(), "p1").Success)

	first := s.DeleteTask(context.Background(), "p1", "t1")
	require.True(t, first.Success)
	assert.Empty(t, s.Tasks())

	second := s.DeleteTask(context.Background(), "p1", "t1")
	require.True(t, second.Success, "deleting an already-deleted id must not fail")
	assert.Empty(t, s.Tasks())
}

func TestWatchProjectsFallsBackOnError(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1", CreatedAt: time.Now()})
	docs.watchProjectsErr = fmt.Errorf("listener rejected")

	s, buf := newTestStore(t, docs, "U1")

	sub, res := s.WatchProjects(context.Background())
	require.True(t, res.Success)
	require.NotNil(t, sub)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not terminate")
	}

	// Fallback is one one-shot fetch, no retry loop.
	assert.Equal(t, 1, docs.fetchProjectCalls)
	require.Len(t, s.Projects(), 1)
	assert.Contains(t, buf.String(), "falling back to one-shot fetch")
}

func TestWatchProjectsStops(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1", CreatedAt: time.Now()})

	s, _ := newTestStore(t, docs, "U1")

	events := make(chan Event, 4)
	unsub := s.OnChange(func(ev Event) { events <- ev })
	defer unsub()

	sub, res := s.WatchProjects(context.Background())
	require.True(t, res.Success)

	select {
	case ev := <-events:
		assert.Equal(t, ScopeProjects, ev.Scope)
		assert.True(t, ev.Wholesale)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	sub.Stop()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}

	assert.Len(t, s.Projects(), 1)
}

func TestWholesaleReplaceSupersedesOptimisticPatch(t *testing.T) {
	docs := newFakeBoardStore()
	s, _ := newTestStore(t, docs, "U1")

	res := s.CreateProject(context.Background(), ProjectInput{Name: "optimistic"})
	require.True(t, res.Success)
	require.Len(t, s.Projects(), 1)

	// The authoritative refresh does not contain the optimistic entry
	// (e.g. the write landed after the snapshot was cut). The replace
	// wins unconditionally, regardless of timestamps.
	server := []domain.Project{
		{ID: "srv-1", UserID: "U1", CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	s.replaceProjects(server)

	projects := s.Projects()
	require.Len(t, projects, 1)
	assert.Equal(t, "srv-1", projects[0].ID)
}

func TestStaleTaskSnapshotIgnoredAfterProjectSwitch(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1"})
	docs.seedProject(domain.Project{ID: "p2", UserID: "U1"})
	docs.seedTask("p2", domain.Task{ID: "t2", Status: domain.StatusTodo})

	s, _ := newTestStore(t, docs, "U1")
	require.True(t, s.LoadTasks(context.Background(), "p2").Success)

	// A late notification from the p1 subscription must not clobber
	// the p2 mirror.
	s.replaceTasks("p1", []domain.Task{{ID: "stale", Status: domain.StatusTodo}})

	require.Len(t, s.Tasks(), 1)
	assert.Equal(t, "t2", s.Tasks()[0].ID)
}

func TestOnChangeUnsubscribe(t *testing.T) {
	docs := newFakeBoardStore()
	docs.seedProject(domain.Project{ID: "p1", UserID: "U1"})

	s, _ := newTestStore(t, docs, "U1")

	var calls int
	unsub := s.OnChange(func(Event) { calls++ })

	require.True(t, s.LoadProjects(context.Background()).Success)
	assert.Equal(t, 1, calls)

	unsub()
	require.True(t, s.LoadProjects(context.Background()).Success)
	assert.Equal(t, 1, calls)
}
