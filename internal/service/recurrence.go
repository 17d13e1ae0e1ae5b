package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskhub/internal/model"
	"taskhub/internal/repository"
)

// RecurrenceEngine creates the successor of a completed recurring task
// together with its collaborators and subtask tree.
type RecurrenceEngine struct {
	maxDepth int
}

func NewRecurrenceEngine(maxDepth int) RecurrenceEngine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return RecurrenceEngine{maxDepth: maxDepth}
}

// EffectiveSchedule resolves PARENT-typed tasks to the schedule of the
// nearest ancestor with a concrete type. The zero Schedule means the task
// does not recur.
func (e RecurrenceEngine) EffectiveSchedule(ctx context.Context, st Stores, task *model.Task) (model.Schedule, error) {
	visited := make(map[string]bool)
	cur := task
	for depth := 0; ; depth++ {
		if depth >= e.maxDepth {
			return model.Schedule{}, errDepthExceeded(task.ID, e.maxDepth)
		}
		if visited[cur.ID] {
			return model.Schedule{}, errCycle(cur.ID)
		}
		visited[cur.ID] = true

		if cur.RecurrenceType == nil {
			return model.Schedule{}, nil
		}
		if cur.RecurrenceType.IsConcrete() {
			return cur.Schedule(), nil
		}
		if *cur.RecurrenceType != model.RecurrenceParent {
			return model.Schedule{}, fmt.Errorf("task %s: %w: %q", cur.ID, model.ErrInvalidRecurrenceType, *cur.RecurrenceType)
		}
		if !cur.HasParent() {
			return model.Schedule{}, fmt.Errorf("task %s: PARENT recurrence without a parent", cur.ID)
		}
		parent, err := st.Tasks.FindByID(ctx, *cur.ParentTaskID)
		if errors.Is(err, repository.ErrNotFound) {
			return model.Schedule{}, fmt.Errorf("task %s: dangling parent %s", cur.ID, *cur.ParentTaskID)
		}
		if err != nil {
			return model.Schedule{}, err
		}
		cur = parent
	}
}

// Spawn creates the next occurrence of task, which was completed at
// completedAt. It returns nil when the task does not recur or its schedule
// is exhausted.
func (e RecurrenceEngine) Spawn(ctx context.Context, st Stores, task *model.Task, completedAt time.Time) (*model.Task, error) {
	sched, err := e.EffectiveSchedule(ctx, st, task)
	if err != nil || sched.IsZero() {
		return nil, err
	}

	anchor := completedAt
	if task.Deadline != nil {
		anchor = *task.Deadline
	}
	next, err := sched.Type.Next(anchor)
	if err != nil {
		return nil, err
	}
	cont, ok, err := sched.Continue(next)
	if err != nil || !ok {
		return nil, err
	}

	successor := &model.Task{
		Title:        task.Title,
		Description:  task.Description,
		Deadline:     &next,
		Status:       model.StatusOpen,
		IsPublic:     task.IsPublic,
		CreatorID:    task.CreatorID,
		ParentTaskID: task.ParentTaskID,
	}
	if *task.RecurrenceType == model.RecurrenceParent {
		successor.RecurrenceType = recurrencePtr(model.RecurrenceParent)
	} else {
		successor.RecurrenceType = recurrencePtr(cont.Type)
		successor.RecurrenceExpiresAt = cont.ExpiresAt
		successor.Recurrences = cont.Remaining
	}
	if err := st.Tasks.Create(ctx, successor); err != nil {
		return nil, fmt.Errorf("create successor: %w", err)
	}
	if err := copyEdges(ctx, st, task.ID, successor.ID); err != nil {
		return nil, err
	}

	visited := map[string]bool{task.ID: true}
	if err := e.replicateChildren(ctx, st, task.ID, successor.ID, sched.Type, 1, visited); err != nil {
		return nil, err
	}
	return successor, nil
}

// replicateChildren copies the subtree under fromID beneath toID as fresh
// PARENT-typed subtasks, stepping their deadlines by one occurrence.
func (e RecurrenceEngine) replicateChildren(ctx context.Context, st Stores, fromID, toID string, step model.RecurrenceType, depth int, visited map[string]bool) error {
	if depth >= e.maxDepth {
		return errDepthExceeded(fromID, e.maxDepth)
	}
	children, err := st.Tasks.FindChildren(ctx, fromID)
	if err != nil {
		return fmt.Errorf("find children: %w", err)
	}
	for _, child := range children {
		if visited[child.ID] {
			return errCycle(child.ID)
		}
		visited[child.ID] = true

		parentID := toID
		copyTask := &model.Task{
			Title:          child.Title,
			Description:    child.Description,
			Status:         model.StatusOpen,
			IsPublic:       child.IsPublic,
			CreatorID:      child.CreatorID,
			ParentTaskID:   &parentID,
			RecurrenceType: recurrencePtr(model.RecurrenceParent),
		}
		if child.Deadline != nil {
			d, err := step.Next(*child.Deadline)
			if err != nil {
				return err
			}
			copyTask.Deadline = &d
		}
		if err := st.Tasks.Create(ctx, copyTask); err != nil {
			return fmt.Errorf("create successor subtask: %w", err)
		}
		if err := copyEdges(ctx, st, child.ID, copyTask.ID); err != nil {
			return err
		}
		if err := e.replicateChildren(ctx, st, child.ID, copyTask.ID, step, depth+1, visited); err != nil {
			return err
		}
	}
	return nil
}

// copyEdges replicates Assignments and Subscriptions. Pending applications
// and invitations stay with the completed occurrence.
func copyEdges(ctx context.Context, st Stores, fromID, toID string) error {
	assignments, err := st.Relations.ListAssignments(ctx, fromID)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	for _, a := range assignments {
		if err := st.Relations.CreateAssignment(ctx, &model.Assignment{TaskID: toID, UserID: a.UserID}); err != nil {
			return fmt.Errorf("copy assignment: %w", err)
		}
	}
	subscriptions, err := st.Relations.ListSubscriptions(ctx, fromID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	for _, sub := range subscriptions {
		if err := st.Relations.CreateSubscription(ctx, &model.Subscription{TaskID: toID, UserID: sub.UserID}); err != nil {
			return fmt.Errorf("copy subscription: %w", err)
		}
	}
	return nil
}

func recurrencePtr(r model.RecurrenceType) *model.RecurrenceType {
	return &r
}
