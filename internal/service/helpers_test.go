package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskhub/internal/model"
	"taskhub/internal/repository"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type recorder struct {
	transitions map[string]int
	recurrences map[string]int
}

func newRecorder() *recorder {
	return &recorder{transitions: map[string]int{}, recurrences: map[string]int{}}
}

func (r *recorder) ObserveTransition(op, outcome string) { r.transitions[op+":"+outcome]++ }
func (r *recorder) ObserveRecurrence(outcome string)     { r.recurrences[outcome]++ }

type env struct {
	store     *repository.Store
	tx        Transactor
	metrics   *recorder
	tasks     *TaskService
	relations *RelationService
	users     *UserService
	digests   *DigestService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "service.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	store := repository.NewStore(db)
	tx := NewTransactor(store)
	rec := newRecorder()
	opts := Options{Metrics: rec, Now: func() time.Time { return fixedNow }, MaxDepth: 16}
	return &env{
		store:     store,
		tx:        tx,
		metrics:   rec,
		tasks:     NewTaskService(tx, opts),
		relations: NewRelationService(tx, opts),
		users:     NewUserService(tx, opts),
		digests:   NewDigestService(tx, opts),
	}
}

func (e *env) user(t *testing.T, name string) *model.User {
	t.Helper()
	email := name + "@example.com"
	u := &model.User{Name: name, Email: &email}
	require.NoError(t, e.store.Users.Create(context.Background(), u))
	return u
}

func (e *env) admin(t *testing.T, name string) *model.User {
	t.Helper()
	u := &model.User{Name: name, Role: model.RoleAdmin}
	require.NoError(t, e.store.Users.Create(context.Background(), u))
	return u
}

func (e *env) task(t *testing.T, actor *model.User, title string, parent *model.Task) *model.Task {
	t.Helper()
	input := TaskInput{Title: title}
	if parent != nil {
		input.ParentID = &parent.ID
	}
	task, err := e.tasks.CreateTask(context.Background(), actor, input)
	require.NoError(t, err)
	return task
}

func (e *env) reload(t *testing.T, taskID string) *model.Task {
	t.Helper()
	task, err := e.store.Tasks.FindByID(context.Background(), taskID)
	require.NoError(t, err)
	return task
}

func (e *env) canEdit(t *testing.T, u *model.User, taskID string) bool {
	t.Helper()
	ok, err := e.tasks.CanEdit(context.Background(), u, taskID)
	require.NoError(t, err)
	return ok
}

func (e *env) canView(t *testing.T, u *model.User, taskID string) bool {
	t.Helper()
	ok, err := e.tasks.CanView(context.Background(), u, taskID)
	require.NoError(t, err)
	return ok
}

func ptr[T any](v T) *T {
	return &v
}

// racingTransactor simulates a concurrent writer that inserted the same
// relationship row first: creates fail with repository.ErrDuplicate.
type racingTransactor struct {
	inner Transactor
}

func (r racingTransactor) InTx(ctx context.Context, fn func(st Stores) error) error {
	return r.inner.InTx(ctx, func(st Stores) error {
		st.Relations = racingRelations{RelationStore: st.Relations}
		return fn(st)
	})
}

type racingRelations struct {
	RelationStore
}

func (racingRelations) CreateApplication(context.Context, *model.Application) error {
	return fmt.Errorf("create application: %w", repository.ErrDuplicate)
}

func (racingRelations) CreateAssignment(context.Context, *model.Assignment) error {
	return fmt.Errorf("create assignment: %w", repository.ErrDuplicate)
}
