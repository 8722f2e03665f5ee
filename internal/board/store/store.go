package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kanbanlab/kanban-client/internal/board/domain"
	"github.com/kanbanlab/kanban-client/internal/board/repository"
)

// cancelledByUser is returned when a destructive operation's
// confirmation is declined. No network call is made in that case.
const cancelledByUser = "cancelled by user"

const notSignedIn = "not signed in"

// SessionContext supplies the current user's identifier. The session
// object is injected at construction; the store holds no globals.
type SessionContext interface {
	UID() string
}

// Confirmer gates destructive operations behind an interactive
// confirmation step.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a func to the Confirmer interface.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// AutoConfirm approves every destructive operation; callers that do
// their own confirmation upstream inject it.
var AutoConfirm = ConfirmFunc(func(string) bool { return true })

// Result is what every store operation returns. Failures carry a
// message; they are never surfaced as panics or Go errors.
type Result struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	ID      string       `json:"id,omitempty"`
	Task    *domain.Task `json:"task,omitempty"`
}

func fail(msg string) Result { return Result{Success: false, Error: msg} }

// Scope identifies which mirror an Event refers to.
type Scope string

const (
	ScopeProjects Scope = "projects"
	ScopeTasks    Scope = "tasks"
)

// Event is published to observers on every mirror mutation. Wholesale
// marks a full replace from the authoritative source; Seq is the
// local sequence the mirror had when the event was published.
type Event struct {
	Scope     Scope
	Wholesale bool
	Seq       uint64
}

// ProjectInput is the caller-supplied data for project writes. Only
// defaulting is applied: empty description stays empty, a missing
// color becomes domain.DefaultColor.
type ProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// TaskInput is the caller-supplied data for task creation.
type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status"`
}

// Subscription is the handle returned by the watch operations.
// Cancellation is mandatory: the listener stops when Stop is called
// or the subscribing context is cancelled, whichever happens first.
type Subscription struct {
	ID     string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Stop() {
	s.once.Do(s.cancel)
}

// Done is closed once the listener goroutine has fully exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Store mirrors the signed-in user's projects and the selected
// project's tasks into local state. The mirror is a cache of the
// last-known server state, never authoritative: live notifications
// replace it wholesale, local writes patch it optimistically.
//
// Reconciliation rule: every optimistic patch advances localSeq; a
// wholesale replace records the localSeq it supersedes and overwrites
// the mirror unconditionally, regardless of document timestamps.
type Store struct {
	docs    repository.BoardStore
	session SessionContext
	confirm Confirmer
	logger  *log.Logger

	mu              sync.Mutex
	projects        []domain.Project
	tasks           []domain.Task
	activeProjectID string
	loading         bool

	localSeq     uint64
	supersededAt uint64 // localSeq covered by the last wholesale replace

	observers map[int]func(Event)
	nextObs   int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithConfirmer(c Confirmer) StoreOption {
	return func(s *Store) { s.confirm = c }
}

func WithLogger(l *log.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func New(docs repository.BoardStore, session SessionContext, opts ...StoreOption) *Store {
	s := &Store{
		docs:      docs,
		session:   session,
		confirm:   AutoConfirm,
		logger:    log.Default(),
		observers: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers an observer invoked after every mirror mutation
// and returns its unsubscribe func.
func (s *Store) OnChange(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// publish is called with s.mu NOT held.
func (s *Store) publish(ev Event) {
	s.mu.Lock()
	ev.Seq = s.localSeq
	fns := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// LoadProjects one-shot fetches the user's projects, sorts them
// client-side newest-first and replaces the mirror.
func (s *Store) LoadProjects(ctx context.Context) Result {
	uid := s.session.UID()
	if uid == "" {
		return fail(notSignedIn)
	}

	s.setLoading(true)
	defer s.setLoading(false)

	projects, err := s.docs.FetchProjects(ctx, uid)
	if err != nil {
		s.logger.Printf("failed to load projects: %v", err)
		return fail(err.Error())
	}

	s.replaceProjects(projects)
	return Result{Success: true}
}

// WatchProjects starts the live mirror. Each notification delivers
// the full result set; the mirror is replaced wholesale and
// re-sorted. If the listener itself fails, the store logs the
// failure and falls back to a single one-shot fetch; it does not
// retry the listener.
func (s *Store) WatchProjects(ctx context.Context) (*Subscription, Result) {
	uid := s.session.UID()
	if uid == "" {
		return nil, fail(notSignedIn)
	}

	wctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ID:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		err := s.docs.WatchProjects(wctx, uid, s.replaceProjects)
		if err != nil {
			s.logger.Printf("projects subscription %s failed, falling back to one-shot fetch: %v", sub.ID, err)
			s.LoadProjects(wctx)
		}
	}()

	return sub, Result{Success: true, ID: sub.ID}
}

func (s *Store) replaceProjects(projects []domain.Project) {
	domain.SortProjectsByCreatedDesc(projects)

	s.mu.Lock()
	s.projects = projects
	s.supersededAt = s.localSeq
	s.mu.Unlock()

	s.publish(Event{Scope: ScopeProjects, Wholesale: true})
}

// CreateProject stamps owner and timestamps, writes through, and
// optimistically unshifts the new record to the mirror front. A
// transient duplicate with an in-flight subscription refresh is
// tolerated: the next wholesale replace reconciles it.
func (s *Store) CreateProject(ctx context.Context, input ProjectInput) Result {
	uid := s.session.UID()
	if uid == "" {
		return fail(notSignedIn)
	}

	now := time.Now()
	project := domain.Project{
		Name:        input.Name,
		Description: input.Description,
		Color:       input.Color,
		UserID:      uid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if project.Color == "" {
		project.Color = domain.DefaultColor
	}

	id, err := s.docs.CreateProject(ctx, project)
	if err != nil {
		s.logger.Printf("failed to create project: %v", err)
		return fail(err.Error())
	}
	project.ID = id

	s.mu.Lock()
	s.projects = append([]domain.Project{project}, s.projects...)
	s.localSeq++
	s.mu.Unlock()

	s.publish(Event{Scope: ScopeProjects})
	return Result{Success: true, ID: id}
}

// UpdateProject writes through, then patches the matching mirror
// entry by identifier.
func (s *Store) UpdateProject(ctx context.Context, id string, input ProjectInput) Result {
	patch := repository.ProjectPatch{
		Name:        input.Name,
		Description: input.Description,
		Color:       input.Color,
		UpdatedAt:   time.Now(),
	}
	if patch.Color == "" {
		patch.Color = domain.DefaultColor
	}

	if err := s.docs.UpdateProject(ctx, id, patch); err != nil {
		s.logger.Printf("failed to update project %s: %v", id, err)
		return fail(err.Error())
	}

	s.mu.Lock()
	for i := range s.projects {
		if s.projects[i].ID == id {
			s.projects[i].Name = patch.Name
			s.projects[i].Description = patch.Description
			s.projects[i].Color = patch.Color
			s.projects[i].UpdatedAt = patch.UpdatedAt
			break
		}
	}
	s.localSeq++
	s.mu.Unlock()

	s.publish(Event{Scope: ScopeProjects})
	return Result{Success: true}
}

// DeleteProject cascades to the project's tasks first, tolerating and
// logging per-child failures, then deletes the project document and
// removes the mirror entry.
func (s *Store) DeleteProject(ctx context.Context, id string) Result {
	if !s.confirm.Confirm("Delete this project and all of its tasks?") {
		return fail(cancelledByUser)
	}

	taskIDs, err := s.docs.ListTaskIDs(ctx, id)
	if err != nil {
		// The cascade is best-effort: the project is deleted anyway.
		s.logger.Printf("could not enumerate tasks of project %s: %v", id, err)
	}
	for _, taskID := range taskIDs {
		if err := s.docs.DeleteTask(ctx, id, taskID); err != nil {
			s.logger.Printf("could not delete task %s of project %s: %v", taskID, id, err)
		}
	}

	if err := s.docs.DeleteProject(ctx, id); err != nil {
		s.logger.Printf("failed to delete project %s: %v", id, err)
		return fail(err.Error())
	}

	s.mu.Lock()
	kept := s.projects[:0]
	for _, p := range s.projects {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.projects = kept
	if s.activeProjectID == id {
		s.activeProjectID = ""
		s.tasks = nil
	}
	s.localSeq++
	s.mu.Unlock()

	s.publish(Event{Scope: ScopeProjects})
	return Result{Success: true}
}

// LoadTasks one-shot fetches the tasks of projectID into the task
// mirror, which is scoped to one selected project at a time.
func (s *Store) LoadTasks(ctx context.Context, projectID string) Result {
	if projectID == "" {
		return fail("project id required")
	}

	s.setLoading(true)
	defer s.setLoading(false)

	tasks, err := s.docs.FetchTasks(ctx, projectID)
	if err != nil {
		s.logger.Printf("failed to load tasks for %s: %v", projectID, err)
		return fail(err.Error())
	}

	s.mu.Lock()
	s.activeProjectID = projectID
	s.mu.Unlock()

	s.replaceTasks(projectID, tasks)
	return Result{Success: true}
}

// WatchTasks starts the live task mirror for projectID, with the
// same fallback contract as WatchProjects.
func (s *Store) WatchTasks(ctx context.Context, projectID string) (*Subscription, Result) {
	if projectID == "" {
		return nil, fail("project id required")
	}

	s.mu.Lock()
	s.activeProjectID = projectID
	s.mu.Unlock()

	wctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ID:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		err := s.docs.WatchTasks(wctx, projectID, func(tasks []domain.Task) {
			s.replaceTasks(projectID, tasks)
		})
		if err != nil {
			s.logger.Printf("tasks subscription %s failed, falling back to one-shot fetch: %v", sub.ID, err)
			s.LoadTasks(wctx, projectID)
		}
	}()

	return sub, Result{Success: true, ID: sub.ID}
}

// replaceTasks drops notifications from a subscription whose project
// is no longer the selected one.
func (s *Store) replaceTasks(projectID string, tasks []domain.Task) {
	domain.SortTasksByCreatedDesc(tasks)

	s.mu.Lock()
	if s.activeProjectID != projectID {
		s.mu.Unlock()
		return
	}
	s.tasks = tasks
	s.supersededAt = s.localSeq
	s.mu.Unlock()

	s.publish(Event{Scope: ScopeTasks, Wholesale: true})
}

// CreateTask writes through to the sub-collection and optimistically
// unshifts the task. The parent project's denormalized counters are
// adjusted best-effort.
func (s *Store) CreateTask(ctx context.Context, projectID string, input TaskInput) Result {
	if projectID == "" {
		return fail("project id required")
	}

	status := input.Status
	if status == "" {
		status = domain.StatusTodo
	}
	if !domain.ValidStatus(status) {
		return fail("invalid status: " + status)
	}

	now := time.Now()
	task := domain.Task{
		Title:       input.Title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Status:      status,
		Completed:   status == domain.StatusDone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	id, err := s.docs.CreateTask(ctx, projectID, task)
	if err != nil {
		s.logger.Printf("failed to create task in %s: %v", projectID, err)
		return fail(err.Error())
	}
	task.ID = id

	s.mu.Lock()
	mirrored := s.activeProjectID == projectID
	if mirrored {
		s.tasks = append([]domain.Task{task}, s.tasks...)
		s.localSeq++
	}
	s.mu.Unlock()

	completedDelta := int64(0)
	if task.Completed {
		completedDelta = 1
	}
	s.adjustCounters(ctx, projectID, 1, completedDelta)

	// Observers only hear about mutations of the mirror itself.
	if mirrored {
		s.publish(Event{Scope: ScopeTasks})
	}
	return Result{Success: true, ID: id, Task: &task}
}

// UpdateTask applies a partial update to a task, then patches the
// mirror entry.
func (s *Store) UpdateTask(ctx context.Context, projectID, taskID string, patch repository.TaskPatch) Result {
	if patch.Status != nil && !domain.ValidStatus(*patch.Status) {
		return fail("invalid status: " + *patch.Status)
	}
	patch.UpdatedAt = time.Now()

	if err := s.docs.UpdateTask(ctx, projectID, taskID, patch); err != nil {
		s.logger.Printf("failed to update task %s: %v", taskID, err)
		return fail(err.Error())
	}

	s.mu.Lock()
	for i := range s.tasks {
		if s.tasks[i].ID != taskID {
			continue
		}
		if patch.Title != nil {
			s.tasks[i].Title = *patch.Title
		}
		if patch.Description != nil {
			s.tasks[i].Description = *patch.Description
		}
		if patch.DueDate != nil {
			s.tasks[i].DueDate = patch.DueDate
		} else if patch.ClearDueDate {
			s.tasks[i].DueDate = nil
		}
		if patch.Status != nil {
			s.tasks[i].Status = *patch.Status
		}
		if patch.Completed != nil {
			s.tasks[i].Completed = *patch.Completed
		}
		s.tasks[i].UpdatedAt = patch.UpdatedAt
		break
	}
	s.localSeq++
	s.mu.Unlock()

	s.publish(Event{Scope: ScopeTasks})
	return Result{Success: true}
}

// UpdateTaskStatus moves a task between board columns, deriving and
// writing the completed flag from the new status.
func (s *Store) UpdateTaskStatus(ctx context.Context, projectID, taskID, status string) Result {
	if !domain.ValidStatus(status) {
		return fail("invalid status: " + status)
	}

	completed := status == domain.StatusDone
	wasCompleted := s.taskCompleted(taskID)

	res := s.UpdateTask(ctx, projectID, taskID, repository.TaskPatch{
		Status:    &status,
		Completed: &completed,
	})
	if !res.Success {
		return res
	}

	var completedDelta int64
	if completed && !wasCompleted {
		completedDelta = 1
	} else if !completed && wasCompleted {
		completedDelta = -1
	}
	s.adjustCounters(ctx, projectID, 0, completedDelta)

	return res
}

// DeleteTask writes through and removes the mirror entry. Deleting an
// already-deleted identifier succeeds: the remote delete is
// idempotent and the mirror simply has nothing to remove.
func (s *Store) DeleteTask(ctx context.Context, projectID, taskID string) Result {
	if !s.confirm.Confirm("Delete this task?") {
		return fail(cancelledByUser)
	}

	wasCompleted := s.taskCompleted(taskID)
	existed := s.taskInMirror(taskID)

	if err := s.docs.DeleteTask(ctx, projectID, taskID); err != nil {
		s.logger.Printf("failed to delete task %s: %v", taskID, err)
		return fail(err.Error())
	}

	s.mu.Lock()
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.ID != taskID {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
	s.localSeq++
	s.mu.Unlock()

	if existed {
		completedDelta := int64(0)
		if wasCompleted {
			completedDelta = -1
		}
		s.adjustCounters(ctx, projectID, -1, completedDelta)
	}

	s.publish(Event{Scope: ScopeTasks})
	return Result{Success: true}
}

// adjustCounters is best-effort: counter drift is repaired by the
// maintenance recount, so failures are only logged.
func (s *Store) adjustCounters(ctx context.Context, projectID string, taskDelta, completedDelta int64) {
	if taskDelta == 0 && completedDelta == 0 {
		return
	}
	if err := s.docs.AdjustProjectCounters(ctx, projectID, taskDelta, completedDelta); err != nil {
		s.logger.Printf("could not adjust counters for project %s: %v", projectID, err)
	}
}

func (s *Store) taskCompleted(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == taskID {
			return t.Completed
		}
	}
	return false
}

func (s *Store) taskInMirror(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == taskID {
			return true
		}
	}
	return false
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Loading reports whether a one-shot load is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Projects returns a copy of the project mirror.
func (s *Store) Projects() []domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Project, len(s.projects))
	copy(out, s.projects)
	return out
}

// Tasks returns a copy of the task mirror.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// ActiveProjectID returns the project the task mirror is scoped to.
func (s *Store) ActiveProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeProjectID
}

// TodoTasks filters the task mirror to the todo column.
func (s *Store) TodoTasks() []domain.Task {
	return domain.FilterTasksByStatus(s.Tasks(), domain.StatusTodo)
}

// DoingTasks filters the task mirror to the doing column.
func (s *Store) DoingTasks() []domain.Task {
	return domain.FilterTasksByStatus(s.Tasks(), domain.StatusDoing)
}

// DoneTasks filters the task mirror to the done column.
func (s *Store) DoneTasks() []domain.Task {
	return domain.FilterTasksByStatus(s.Tasks(), domain.StatusDone)
}
