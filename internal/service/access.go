package service

import (
	"context"
	"errors"
	"fmt"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/repository"
)

// Access is the level of permission a user holds on a task.
type Access int

const (
	AccessView Access = iota + 1
	AccessEdit
)

func (a Access) String() string {
	if a == AccessEdit {
		return "edit"
	}
	return "view"
}

func errDepthExceeded(taskID string, max int) error {
	return fmt.Errorf("task %s: tree deeper than %d levels", taskID, max)
}

func errCycle(taskID string) error {
	return fmt.Errorf("task %s: cycle in parent chain", taskID)
}

// Resolver answers whether a user may view or edit a task by walking the
// task's ancestor chain. Grants on an ancestor apply to every descendant,
// never the other way round.
type Resolver struct {
	maxDepth int
}

func NewResolver(maxDepth int) Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return Resolver{maxDepth: maxDepth}
}

// CanEdit reports whether userID may edit taskID. A missing task is NotFound.
func (r Resolver) CanEdit(ctx context.Context, st Stores, userID, taskID string) (bool, error) {
	return r.resolve(ctx, st, userID, taskID, AccessEdit)
}

// CanView reports whether userID may view taskID. A missing task is NotFound.
func (r Resolver) CanView(ctx context.Context, st Stores, userID, taskID string) (bool, error) {
	return r.resolve(ctx, st, userID, taskID, AccessView)
}

func (r Resolver) resolve(ctx context.Context, st Stores, userID, taskID string, want Access) (bool, error) {
	task, err := st.Tasks.FindByID(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, apperr.NotFound("access", "task %s not found", taskID)
	}
	if err != nil {
		return false, apperr.Internal("access", err)
	}
	return r.Check(ctx, st, userID, task, want)
}

// Check walks from an already loaded task towards the root.
func (r Resolver) Check(ctx context.Context, st Stores, userID string, task *model.Task, want Access) (bool, error) {
	const op = "access"
	if userID == "" {
		return false, nil
	}
	visited := make(map[string]bool)
	start := task.ID
	for depth := 0; ; depth++ {
		if depth >= r.maxDepth {
			return false, apperr.Internal(op, errDepthExceeded(start, r.maxDepth))
		}
		if visited[task.ID] {
			return false, apperr.Internal(op, errCycle(task.ID))
		}
		visited[task.ID] = true

		if want == AccessView && task.IsPublic {
			return true, nil
		}
		if task.CreatorID == userID {
			return true, nil
		}
		assigned, err := st.Relations.HasAssignment(ctx, task.ID, userID)
		if err != nil {
			return false, apperr.Internal(op, err)
		}
		if assigned {
			return true, nil
		}
		if want == AccessView {
			subscribed, err := st.Relations.HasSubscription(ctx, task.ID, userID)
			if err != nil {
				return false, apperr.Internal(op, err)
			}
			if subscribed {
				return true, nil
			}
		}

		if !task.HasParent() {
			return false, nil
		}
		parent, err := st.Tasks.FindByID(ctx, *task.ParentTaskID)
		if errors.Is(err, repository.ErrNotFound) {
			return false, apperr.Internal(op, fmt.Errorf("task %s: dangling parent %s", task.ID, *task.ParentTaskID))
		}
		if err != nil {
			return false, apperr.Internal(op, err)
		}
		task = parent
	}
}
