package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
)

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.user(t, "owner")
	stranger := e.user(t, "stranger")

	_, err := e.tasks.CreateTask(ctx, owner, TaskInput{Title: "   "})
	requireKind(t, apperr.KindInvalidInput, err)

	_, err = e.tasks.CreateTask(ctx, owner, TaskInput{Title: "x", RecurrenceType: ptr(model.RecurrenceParent)})
	requireKind(t, apperr.KindInvalidInput, err)

	root := e.task(t, owner, "root", nil)
	_, err = e.tasks.CreateTask(ctx, stranger, TaskInput{Title: "sneaky", ParentID: &root.ID})
	requireKind(t, apperr.KindForbidden, err)

	_, err = e.tasks.CreateTask(ctx, owner, TaskInput{Title: "child", ParentID: ptr("missing")})
	requireKind(t, apperr.KindNotFound, err)

	_, err = e.tasks.CreateTask(ctx, nil, TaskInput{Title: "x"})
	requireKind(t, apperr.KindUnauthorized, err)
}

func TestEndToEndInvitationScenario(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.user(t, "a")
	b := e.user(t, "b")
	c := e.user(t, "c")

	t1 := e.task(t, a, "T1", nil)
	assert.False(t, t1.IsPublic)

	_, err := e.relations.Invite(ctx, a, t1.ID, "b@example.com")
	require.NoError(t, err)
	require.NoError(t, e.relations.AcceptInvitation(ctx, b, t1.ID))

	ok, err := e.store.Relations.HasAssignment(ctx, t1.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.store.Relations.HasInvitation(ctx, t1.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	t2, err := e.tasks.CreateTask(ctx, b, TaskInput{Title: "T2", ParentID: &t1.ID})
	require.NoError(t, err)
	assert.Equal(t, a.ID, t2.CreatorID, "subtasks belong to the tree owner")
	assert.True(t, e.canEdit(t, b, t2.ID))

	view, err := e.tasks.GetTask(ctx, c, t1.ID)
	require.NoError(t, err)
	assert.False(t, view.Full())
	assert.Nil(t, view.Task)
	assert.Equal(t, model.Summary{ID: t1.ID, Title: "T1"}, view.Summary)

	view, err = e.tasks.GetTask(ctx, b, t1.ID)
	require.NoError(t, err)
	assert.True(t, view.Full())
}

func TestMarkCompleted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.user(t, "owner")
	viewer := e.user(t, "viewer")
	task := e.task(t, owner, "t", nil)
	require.NoError(t, e.relations.Assign(ctx, owner, task.ID, viewer.ID, model.RoleViewer))

	_, err := e.tasks.MarkCompleted(ctx, viewer, task.ID)
	requireKind(t, apperr.KindForbidden, err)

	res, err := e.tasks.MarkCompleted(ctx, owner, task.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Successor)
	assert.Equal(t, model.StatusDone, res.Task.Status)

	got := e.reload(t, task.ID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, fixedNow.Equal(*got.CompletedAt))
	assert.Equal(t, owner.ID, *got.CompletedByID)

	_, err = e.tasks.MarkCompleted(ctx, owner, task.ID)
	requireKind(t, apperr.KindConflict, err)

	stats, err := e.users.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TasksCompleted)
	assert.Equal(t, int64(1), stats.CurrentlyDone)

	reopened, err := e.tasks.Reopen(ctx, owner, task.ID)
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
	assert.Nil(t, reopened.CompletedByID)
	_, err = e.tasks.Reopen(ctx, owner, task.ID)
	requireKind(t, apperr.KindConflict, err)
}

func TestUpdateTaskPatch(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.user(t, "owner")
	task, err := e.tasks.CreateTask(ctx, owner, TaskInput{Title: "draft", Description: "keep me"})
	require.NoError(t, err)

	deadline := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	updated, err := e.tasks.UpdateTask(ctx, owner, task.ID, TaskPatch{Title: ptr("final"), Deadline: &deadline})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, "keep me", updated.Description)

	_, err = e.tasks.UpdateTask(ctx, owner, task.ID, TaskPatch{Title: ptr(" ")})
	requireKind(t, apperr.KindInvalidInput, err)
	assert.Equal(t, "final", e.reload(t, task.ID).Title, "failed update leaves the row alone")

	done, err := e.tasks.UpdateTask(ctx, owner, task.ID, TaskPatch{Status: ptr(model.StatusDone)})
	require.NoError(t, err)
	assert.True(t, done.IsDone())
	require.NotNil(t, done.CompletedAt)

	_, err = e.tasks.UpdateTask(ctx, owner, task.ID, TaskPatch{Status: ptr(model.StatusDone), Title: ptr("again")})
	requireKind(t, apperr.KindConflict, err)
	assert.Equal(t, "final", e.reload(t, task.ID).Title)
	assert.True(t, fixedNow.Equal(*e.reload(t, task.ID).CompletedAt))

	open, err := e.tasks.UpdateTask(ctx, owner, task.ID, TaskPatch{Status: ptr(model.StatusOpen), ClearDeadline: true})
	require.NoError(t, err)
	assert.False(t, open.IsDone())
	assert.Nil(t, open.CompletedAt)
	assert.Nil(t, open.Deadline)

	_, err = e.tasks.UpdateTask(ctx, owner, task.ID, TaskPatch{Status: ptr(model.Status("LATER"))})
	requireKind(t, apperr.KindInvalidInput, err)

	u, err := e.store.Users.FindByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.TasksCompleted)
}

func TestDeleteTaskCascades(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.user(t, "owner")
	editor := e.user(t, "editor")
	viewer := e.user(t, "viewer")
	stranger := e.user(t, "stranger")

	root := e.task(t, owner, "root", nil)
	child := e.task(t, owner, "child", root)
	grandchild := e.task(t, owner, "grandchild", child)
	keep := e.task(t, owner, "keep", nil)
	require.NoError(t, e.relations.Assign(ctx, owner, child.ID, editor.ID, model.RoleAssignee))
	require.NoError(t, e.relations.Assign(ctx, owner, grandchild.ID, viewer.ID, model.RoleViewer))
	require.NoError(t, e.relations.Apply(ctx, stranger, root.ID))

	_, err := e.tasks.DeleteTask(ctx, stranger, root.ID)
	requireKind(t, apperr.KindForbidden, err)

	removed, err := e.tasks.DeleteTask(ctx, owner, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	for _, id := range []string{root.ID, child.ID, grandchild.ID} {
		_, err := e.tasks.GetTask(ctx, owner, id)
		requireKind(t, apperr.KindNotFound, err)
	}
	assigned, err := e.tasks.AssignedTasks(ctx, editor)
	require.NoError(t, err)
	assert.Empty(t, assigned)
	subscribed, err := e.tasks.SubscribedTasks(ctx, viewer)
	require.NoError(t, err)
	assert.Empty(t, subscribed)

	owned, err := e.tasks.OwnedTasks(ctx, owner)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, keep.ID, owned[0].ID)
}

func TestCloneTask(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.user(t, "owner")
	cloner := e.user(t, "cloner")
	helper := e.user(t, "helper")

	root := e.task(t, owner, "template", nil)
	e.task(t, owner, "step one", root)
	e.task(t, owner, "step two", root)
	require.NoError(t, e.relations.Assign(ctx, owner, root.ID, helper.ID, model.RoleAssignee))

	_, err := e.tasks.CloneTask(ctx, cloner, root.ID, nil)
	requireKind(t, apperr.KindForbidden, err)

	_, err = e.tasks.UpdateTask(ctx, owner, root.ID, TaskPatch{IsPublic: ptr(true)})
	require.NoError(t, err)

	clone, err := e.tasks.CloneTask(ctx, cloner, root.ID, nil)
	require.NoError(t, err)
	assert.NotEqual(t, root.ID, clone.ID)
	assert.Equal(t, cloner.ID, clone.CreatorID)
	assert.Equal(t, "template", clone.Title)

	children, err := e.tasks.Subtasks(ctx, cloner, clone.ID)
	require.NoError(t, err)
	titles := []string{}
	for _, c := range children {
		titles = append(titles, c.Title)
		assert.Equal(t, cloner.ID, c.CreatorID)
	}
	sort.Strings(titles)
	assert.Equal(t, []string{"step one", "step two"}, titles)

	for _, id := range append([]string{clone.ID}, children[0].ID, children[1].ID) {
		assignments, err := e.store.Relations.ListAssignments(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, assignments)
		subs, err := e.store.Relations.ListSubscriptions(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, subs)
	}
}

func TestCloneIntoOwnSubtree(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.user(t, "owner")
	root := e.task(t, owner, "root", nil)
	child := e.task(t, owner, "child", root)

	clone, err := e.tasks.CloneTask(ctx, owner, root.ID, &child.ID)
	require.NoError(t, err)
	assert.Equal(t, child.ID, *clone.ParentTaskID)

	copies, err := e.tasks.Subtasks(ctx, owner, clone.ID)
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.Equal(t, "child", copies[0].Title)

	nested, err := e.tasks.Subtasks(ctx, owner, copies[0].ID)
	require.NoError(t, err)
	assert.Empty(t, nested)
}
