package service

import (
	"context"
	"fmt"
	"log"

	"github.com/kanbanlab/kanban-client/internal/board/domain"
	"github.com/kanbanlab/kanban-client/internal/board/repository"
)

// MaintenanceService repairs the denormalized task counters on
// project documents. The counters are adjusted best-effort on every
// task write, so they drift when an adjustment fails; the recount
// recomputes them from the actual task documents.
type MaintenanceService struct {
	docs   repository.BoardStore
	logger *log.Logger
}

func NewMaintenanceService(docs repository.BoardStore, logger *log.Logger) *MaintenanceService {
	if logger == nil {
		logger = log.Default()
	}
	return &MaintenanceService{docs: docs, logger: logger}
}

// RecountProjects walks every project of the user and overwrites its
// counters with values counted from the tasks sub-collection. A
// failing project is logged and skipped; the walk continues.
func (m *MaintenanceService) RecountProjects(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id required")
	}

	projects, err := m.docs.FetchProjects(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to fetch projects for recount: %w", err)
	}

	var repaired int
	for _, p := range projects {
		tasks, err := m.docs.FetchTasks(ctx, p.ID)
		if err != nil {
			m.logger.Printf("recount: could not fetch tasks of project %s: %v", p.ID, err)
			continue
		}

		taskCount := int64(len(tasks))
		completedCount := int64(len(domain.FilterTasksByStatus(tasks, domain.StatusDone)))

		if taskCount == p.TaskCount && completedCount == p.CompletedCount {
			continue
		}

		if err := m.docs.SetProjectCounters(ctx, p.ID, taskCount, completedCount); err != nil {
			m.logger.Printf("recount: could not set counters of project %s: %v", p.ID, err)
			continue
		}
		repaired++
	}

	if repaired > 0 {
		m.logger.Printf("recount: repaired counters on %d project(s)", repaired)
	}
	return nil
}
