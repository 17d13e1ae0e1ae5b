package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title               string
	Description         string
	Deadline            *time.Time
	IsPublic            bool
	ParentID            *string
	RecurrenceType      *model.RecurrenceType
	RecurrenceExpiresAt *time.Time
	Recurrences         *int
}

// TaskPatch lists the fields to change. Nil fields are left untouched.
type TaskPatch struct {
	Title               *string
	Description         *string
	Deadline            *time.Time
	ClearDeadline       bool
	Status              *model.Status
	IsPublic            *bool
	RecurrenceType      *model.RecurrenceType
	RecurrenceExpiresAt *time.Time
	Recurrences         *int
	ClearRecurrence     bool
}

// Completion is the result of completing a task. Successor is set when the
// task recurred.
type Completion struct {
	Task      *model.Task
	Successor *model.Task
}

// TaskView is what a caller may see of a task. Without view access only
// Summary is populated.
type TaskView struct {
	Summary model.Summary
	Task    *model.Task
}

// Full reports whether the caller received the whole task.
func (v TaskView) Full() bool {
	return v.Task != nil
}

// TaskService wraps task-related business logic.
type TaskService struct {
	core
	recurrence RecurrenceEngine
}

func NewTaskService(tx Transactor, opts Options) *TaskService {
	return &TaskService{
		core:       newCore(tx, opts),
		recurrence: NewRecurrenceEngine(opts.MaxDepth),
	}
}

// CreateTask adds a top-level task owned by actor, or a subtask of an
// editable parent owned by the parent's creator.
func (s *TaskService) CreateTask(ctx context.Context, actor *model.User, input TaskInput) (*model.Task, error) {
	const op = "create task"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var task *model.Task
	err := s.tx.InTx(ctx, func(st Stores) error {
		t, err := s.create(ctx, st, op, actor, input)
		task = t
		return err
	})
	s.observe(op, logrus.Fields{"user_id": actor.ID}, err)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) create(ctx context.Context, st Stores, op string, actor *model.User, input TaskInput) (*model.Task, error) {
	task := &model.Task{
		Title:               strings.TrimSpace(input.Title),
		Description:         strings.TrimSpace(input.Description),
		Deadline:            input.Deadline,
		Status:              model.StatusOpen,
		IsPublic:            input.IsPublic,
		CreatorID:           actor.ID,
		RecurrenceType:      input.RecurrenceType,
		RecurrenceExpiresAt: input.RecurrenceExpiresAt,
		Recurrences:         input.Recurrences,
	}
	if input.ParentID != nil && *input.ParentID != "" {
		parent, err := s.loadWithAccess(ctx, st, op, actor, *input.ParentID, AccessEdit)
		if err != nil {
			return nil, err
		}
		parentID := parent.ID
		task.ParentTaskID = &parentID
		task.CreatorID = parent.CreatorID
	}
	if err := task.Validate(); err != nil {
		return nil, apperr.Invalid(op, "%s", strings.TrimPrefix(err.Error(), "model: "))
	}
	if err := st.Tasks.Create(ctx, task); err != nil {
		return nil, storeErr(op, err)
	}
	return task, nil
}

// UpdateTask applies patch to taskID. Moving the status to DONE completes the
// task, moving it away from DONE reopens it.
func (s *TaskService) UpdateTask(ctx context.Context, actor *model.User, taskID string, patch TaskPatch) (*model.Task, error) {
	const op = "update task"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var (
		task      *model.Task
		completed bool
	)
	err := s.tx.InTx(ctx, func(st Stores) error {
		t, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessEdit)
		if err != nil {
			return err
		}
		if patch.Status != nil && *patch.Status == model.StatusDone && t.IsDone() {
			return apperr.Conflict(op, "task is already completed")
		}
		applyPatch(t, patch)
		if patch.Status != nil && *patch.Status != t.Status {
			switch *patch.Status {
			case model.StatusDone:
				if err := s.complete(ctx, st, op, t, actor); err != nil {
					return err
				}
				completed = true
			case model.StatusOpen:
				unmark(t)
			default:
				return apperr.Invalid(op, "unknown status %q", *patch.Status)
			}
		}
		if err := t.Validate(); err != nil {
			return apperr.Invalid(op, "%s", strings.TrimPrefix(err.Error(), "model: "))
		}
		if err := st.Tasks.Update(ctx, t); err != nil {
			return storeErr(op, err)
		}
		task = t
		return nil
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": actor.ID}, err)
	if err != nil {
		return nil, err
	}
	if completed {
		s.spawnSuccessor(ctx, task)
	}
	return task, nil
}

func applyPatch(t *model.Task, p TaskPatch) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.ClearDeadline {
		t.Deadline = nil
	} else if p.Deadline != nil {
		t.Deadline = p.Deadline
	}
	if p.IsPublic != nil {
		t.IsPublic = *p.IsPublic
	}
	if p.ClearRecurrence {
		t.RecurrenceType = nil
		t.RecurrenceExpiresAt = nil
		t.Recurrences = nil
		return
	}
	if p.RecurrenceType != nil {
		t.RecurrenceType = p.RecurrenceType
	}
	if p.RecurrenceExpiresAt != nil {
		t.RecurrenceExpiresAt = p.RecurrenceExpiresAt
	}
	if p.Recurrences != nil {
		t.Recurrences = p.Recurrences
	}
}

// MarkCompleted closes taskID on behalf of actor. When the task recurs its
// successor is generated afterwards in a separate transaction; a failure
// there is logged and does not undo the completion.
func (s *TaskService) MarkCompleted(ctx context.Context, actor *model.User, taskID string) (*Completion, error) {
	const op = "complete task"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var task *model.Task
	err := s.tx.InTx(ctx, func(st Stores) error {
		t, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessEdit)
		if err != nil {
			return err
		}
		if t.IsDone() {
			return apperr.Conflict(op, "task is already completed")
		}
		if err := s.complete(ctx, st, op, t, actor); err != nil {
			return err
		}
		if err := st.Tasks.Update(ctx, t); err != nil {
			return storeErr(op, err)
		}
		task = t
		return nil
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": actor.ID}, err)
	if err != nil {
		return nil, err
	}
	return &Completion{Task: task, Successor: s.spawnSuccessor(ctx, task)}, nil
}

// complete sets the completion fields on t and credits actor. The caller
// persists t.
func (s *TaskService) complete(ctx context.Context, st Stores, op string, t *model.Task, actor *model.User) error {
	now := s.now()
	actorID := actor.ID
	t.Status = model.StatusDone
	t.CompletedByID = &actorID
	t.CompletedAt = &now
	if err := st.Users.IncrementStat(ctx, actor.ID, model.StatTasksCompleted); err != nil {
		return storeErr(op, err)
	}
	return nil
}

func unmark(t *model.Task) {
	t.Status = model.StatusOpen
	t.CompletedByID = nil
	t.CompletedAt = nil
}

// spawnSuccessor runs the recurrence engine for a freshly completed task.
func (s *TaskService) spawnSuccessor(ctx context.Context, task *model.Task) *model.Task {
	if task.RecurrenceType == nil {
		return nil
	}
	var successor *model.Task
	err := s.tx.InTx(ctx, func(st Stores) error {
		next, err := s.recurrence.Spawn(ctx, st, task, *task.CompletedAt)
		successor = next
		return err
	})
	entry := s.log.WithFields(logrus.Fields{"task_id": task.ID, "op": "recurrence"})
	switch {
	case err != nil:
		s.metrics.ObserveRecurrence("failed")
		entry.WithError(err).Warn("successor not generated")
		return nil
	case successor == nil:
		s.metrics.ObserveRecurrence("exhausted")
		entry.Info("schedule exhausted")
		return nil
	default:
		s.metrics.ObserveRecurrence("spawned")
		entry.WithField("successor_id", successor.ID).Info("successor generated")
		return successor
	}
}

// Reopen moves a completed task back to OPEN.
func (s *TaskService) Reopen(ctx context.Context, actor *model.User, taskID string) (*model.Task, error) {
	const op = "reopen task"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var task *model.Task
	err := s.tx.InTx(ctx, func(st Stores) error {
		t, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessEdit)
		if err != nil {
			return err
		}
		if !t.IsDone() {
			return apperr.Conflict(op, "task is not completed")
		}
		unmark(t)
		if err := st.Tasks.Update(ctx, t); err != nil {
			return storeErr(op, err)
		}
		task = t
		return nil
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": actor.ID}, err)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task, its subtasks and all their relationships. It
// returns the number of tasks removed.
func (s *TaskService) DeleteTask(ctx context.Context, actor *model.User, taskID string) (int, error) {
	const op = "delete task"
	if err := requireActor(op, actor); err != nil {
		return 0, err
	}
	var removed int
	err := s.tx.InTx(ctx, func(st Stores) error {
		t, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessEdit)
		if err != nil {
			return err
		}
		removed, err = s.deleteTree(ctx, st, op, t)
		return err
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": actor.ID}, err)
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// CloneTask deep-copies a viewable task and its subtasks for actor. When
// parentID is set the copy is placed under that editable task. No
// relationships are copied.
func (s *TaskService) CloneTask(ctx context.Context, actor *model.User, taskID string, parentID *string) (*model.Task, error) {
	const op = "clone task"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var clone *model.Task
	err := s.tx.InTx(ctx, func(st Stores) error {
		src, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessView)
		if err != nil {
			return err
		}
		// Snapshot first so that cloning into the source's own subtree
		// does not pick up the copies.
		tree, err := s.subtree(ctx, st, op, src)
		if err != nil {
			return err
		}
		copies := make(map[string]string, len(tree))
		for i, t := range tree {
			parent := parentID
			if i > 0 {
				id := copies[*t.ParentTaskID]
				parent = &id
			}
			dst, err := s.create(ctx, st, op, actor, cloneInput(t, parent))
			if err != nil {
				return err
			}
			copies[t.ID] = dst.ID
			if i == 0 {
				clone = dst
			}
		}
		return nil
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": actor.ID}, err)
	if err != nil {
		return nil, err
	}
	return clone, nil
}

func cloneInput(t model.Task, parentID *string) TaskInput {
	input := TaskInput{
		Title:               t.Title,
		Description:         t.Description,
		Deadline:            t.Deadline,
		IsPublic:            t.IsPublic,
		ParentID:            parentID,
		RecurrenceType:      t.RecurrenceType,
		RecurrenceExpiresAt: t.RecurrenceExpiresAt,
		Recurrences:         t.Recurrences,
	}
	topLevel := parentID == nil || *parentID == ""
	if topLevel && input.RecurrenceType != nil && *input.RecurrenceType == model.RecurrenceParent {
		input.RecurrenceType = nil
	}
	return input
}

// GetTask returns the full task when actor may view it and only its
// summary otherwise.
func (s *TaskService) GetTask(ctx context.Context, actor *model.User, taskID string) (TaskView, error) {
	const op = "get task"
	if err := requireActor(op, actor); err != nil {
		return TaskView{}, err
	}
	var view TaskView
	err := s.tx.InTx(ctx, func(st Stores) error {
		t, err := s.loadTask(ctx, st, op, taskID)
		if err != nil {
			return err
		}
		view.Summary = t.Summary()
		ok, err := s.access.Check(ctx, st, actor.ID, t, AccessView)
		if err != nil {
			return err
		}
		if ok {
			view.Task = t
		}
		return nil
	})
	return view, err
}

// Subtasks lists the direct children of a viewable task.
func (s *TaskService) Subtasks(ctx context.Context, actor *model.User, taskID string) ([]model.Task, error) {
	const op = "list subtasks"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var out []model.Task
	err := s.tx.InTx(ctx, func(st Stores) error {
		if _, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessView); err != nil {
			return err
		}
		children, err := st.Tasks.FindChildren(ctx, taskID)
		out = children
		return storeErr(op, err)
	})
	return out, err
}

// CanEdit exposes the access decision for front ends.
func (s *TaskService) CanEdit(ctx context.Context, actor *model.User, taskID string) (bool, error) {
	if err := requireActor("access", actor); err != nil {
		return false, err
	}
	var ok bool
	err := s.tx.InTx(ctx, func(st Stores) error {
		var err error
		ok, err = s.access.CanEdit(ctx, st, actor.ID, taskID)
		return err
	})
	return ok, err
}

// CanView exposes the access decision for front ends.
func (s *TaskService) CanView(ctx context.Context, actor *model.User, taskID string) (bool, error) {
	if err := requireActor("access", actor); err != nil {
		return false, err
	}
	var ok bool
	err := s.tx.InTx(ctx, func(st Stores) error {
		var err error
		ok, err = s.access.CanView(ctx, st, actor.ID, taskID)
		return err
	})
	return ok, err
}

func (s *TaskService) OwnedTasks(ctx context.Context, actor *model.User) ([]model.Task, error) {
	return s.list(ctx, "owned tasks", actor, func(st Stores) ([]model.Task, error) {
		return st.Tasks.ListByCreator(ctx, actor.ID)
	})
}

func (s *TaskService) AssignedTasks(ctx context.Context, actor *model.User) ([]model.Task, error) {
	return s.list(ctx, "assigned tasks", actor, func(st Stores) ([]model.Task, error) {
		return st.Tasks.ListAssignedTo(ctx, actor.ID)
	})
}

func (s *TaskService) SubscribedTasks(ctx context.Context, actor *model.User) ([]model.Task, error) {
	return s.list(ctx, "subscribed tasks", actor, func(st Stores) ([]model.Task, error) {
		return st.Tasks.ListSubscribedBy(ctx, actor.ID)
	})
}

func (s *TaskService) list(ctx context.Context, op string, actor *model.User, fn func(Stores) ([]model.Task, error)) ([]model.Task, error) {
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var out []model.Task
	err := s.tx.InTx(ctx, func(st Stores) error {
		tasks, err := fn(st)
		out = tasks
		return storeErr(op, err)
	})
	return out, err
}
