package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/repository"
)

// DefaultMaxDepth bounds every walk over the task tree.
const DefaultMaxDepth = 64

// Recorder receives operation outcomes. Implemented by metrics.Collector.
type Recorder interface {
	ObserveTransition(op, outcome string)
	ObserveRecurrence(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransition(string, string) {}
func (nopRecorder) ObserveRecurrence(string)         {}

// Options carries the ambient dependencies shared by the services.
type Options struct {
	Logger   logrus.FieldLogger
	Metrics  Recorder
	Now      func() time.Time
	MaxDepth int
}

// core holds what every service needs: the unit of work, the access
// resolver and the ambient dependencies.
type core struct {
	tx      Transactor
	access  Resolver
	log     logrus.FieldLogger
	metrics Recorder
	now     func() time.Time
}

func newCore(tx Transactor, opts Options) core {
	c := core{
		tx:      tx,
		access:  NewResolver(opts.MaxDepth),
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if c.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		c.log = l
	}
	if c.metrics == nil {
		c.metrics = nopRecorder{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// observe logs and counts the outcome of a state-changing operation.
func (c core) observe(op string, fields logrus.Fields, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	c.metrics.ObserveTransition(op, outcome)

	entry := c.log.WithFields(fields).WithField("op", op)
	switch {
	case err == nil:
		entry.Info("transition applied")
	case apperr.Is(err, apperr.KindInternal):
		entry.WithError(err).Error("transition failed")
	default:
		entry.WithError(err).Debug("transition rejected")
	}
}

func requireActor(op string, actor *model.User) error {
	if actor == nil || actor.ID == "" {
		return apperr.Unauthorized(op, "authentication required")
	}
	return nil
}

// storeErr classifies a store failure that the caller did not handle.
func storeErr(op string, err error) error {
	var classified *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &classified):
		return err
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict(op, "a concurrent change already created this record")
	default:
		return apperr.Internal(op, err)
	}
}

func (c core) loadTask(ctx context.Context, st Stores, op, taskID string) (*model.Task, error) {
	if taskID == "" {
		return nil, apperr.Invalid(op, "task id is required")
	}
	task, err := st.Tasks.FindByID(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(op, "task %s not found", taskID)
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return task, nil
}

func (c core) loadUser(ctx context.Context, st Stores, op, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperr.Invalid(op, "user id is required")
	}
	user, err := st.Users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(op, "user %s not found", userID)
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return user, nil
}

// loadWithAccess loads the task and fails with Forbidden unless actor holds
// the wanted access level on it.
func (c core) loadWithAccess(ctx context.Context, st Stores, op string, actor *model.User, taskID string, want Access) (*model.Task, error) {
	task, err := c.loadTask(ctx, st, op, taskID)
	if err != nil {
		return nil, err
	}
	ok, err := c.access.Check(ctx, st, actor.ID, task, want)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden(op, "you have no %s access to this task", want)
	}
	return task, nil
}

// hasResolved reports whether userID holds an Assignment or Subscription
// directly on taskID.
func hasResolved(ctx context.Context, st Stores, taskID, userID string) (bool, error) {
	ok, err := st.Relations.HasAssignment(ctx, taskID, userID)
	if err != nil || ok {
		return ok, err
	}
	return st.Relations.HasSubscription(ctx, taskID, userID)
}

// subtree collects root and all its descendants in breadth first order.
func (c core) subtree(ctx context.Context, st Stores, op string, root *model.Task) ([]model.Task, error) {
	out := []model.Task{*root}
	seen := map[string]bool{root.ID: true}
	level := []model.Task{*root}
	for depth := 0; len(level) > 0; depth++ {
		if depth >= c.access.maxDepth {
			return nil, apperr.Internal(op, errDepthExceeded(root.ID, c.access.maxDepth))
		}
		var next []model.Task
		for _, t := range level {
			children, err := st.Tasks.FindChildren(ctx, t.ID)
			if err != nil {
				return nil, apperr.Internal(op, err)
			}
			for _, child := range children {
				if seen[child.ID] {
					return nil, apperr.Internal(op, errCycle(child.ID))
				}
				seen[child.ID] = true
				next = append(next, child)
			}
		}
		out = append(out, next...)
		level = next
	}
	return out, nil
}

// deleteTree removes root, its descendants and every relationship row
// attached to them.
func (c core) deleteTree(ctx context.Context, st Stores, op string, root *model.Task) (int, error) {
	tasks, err := c.subtree(ctx, st, op, root)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	if err := st.Relations.DeleteByTasks(ctx, ids); err != nil {
		return 0, apperr.Internal(op, err)
	}
	for i := len(ids) - 1; i >= 0; i-- {
		if err := st.Tasks.Delete(ctx, ids[i]); err != nil {
			return 0, apperr.Internal(op, err)
		}
	}
	return len(ids), nil
}
