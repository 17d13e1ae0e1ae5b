package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/repository"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	u, err := e.users.Register(ctx, repository.TelegramProfile{TelegramID: 7, Name: "Ann", Admin: true})
	require.NoError(t, err)
	assert.True(t, u.CanManageUsers())

	again, err := e.users.Register(ctx, repository.TelegramProfile{TelegramID: 7, Name: "Ann B"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
}

func TestUserDirectoryRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	admin := e.admin(t, "root")
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	_, err := e.users.ListUsers(ctx, alice)
	requireKind(t, apperr.KindForbidden, err)
	users, err := e.users.ListUsers(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	view, err := e.users.GetUser(ctx, alice, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, view.User)
	assert.Equal(t, model.Profile{ID: bob.ID, Name: "bob", Email: "bob@example.com"}, view.Profile)

	view, err = e.users.GetUser(ctx, admin, bob.ID)
	require.NoError(t, err)
	assert.NotNil(t, view.User)
	view, err = e.users.GetUser(ctx, bob, bob.ID)
	require.NoError(t, err)
	assert.NotNil(t, view.User)

	_, err = e.users.GetUser(ctx, bob, "missing")
	requireKind(t, apperr.KindNotFound, err)

	requireKind(t, apperr.KindForbidden, e.users.DeleteUser(ctx, alice, bob.ID))
}

func TestUpdateEmail(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	admin := e.admin(t, "root")
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	requireKind(t, apperr.KindForbidden, e.users.UpdateEmail(ctx, alice, bob.ID, "x@example.com"))
	requireKind(t, apperr.KindInvalidInput, e.users.UpdateEmail(ctx, alice, alice.ID, ""))
	requireKind(t, apperr.KindInvalidInput, e.users.UpdateEmail(ctx, alice, alice.ID, "not an email"))
	requireKind(t, apperr.KindConflict, e.users.UpdateEmail(ctx, alice, alice.ID, "bob@example.com"))
	requireKind(t, apperr.KindNotFound, e.users.UpdateEmail(ctx, admin, "missing", "ghost@example.com"))

	require.NoError(t, e.users.UpdateEmail(ctx, alice, alice.ID, "Alice@Work.example"))
	found, err := e.store.Users.FindByEmail(ctx, "alice@work.example")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)

	require.NoError(t, e.users.UpdateEmail(ctx, admin, bob.ID, "bob@work.example"))
}

func TestDeleteUserRemovesOwnedTreesAndEdges(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	admin := e.admin(t, "root")
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	aliceTask := e.task(t, alice, "alice task", nil)
	e.task(t, alice, "alice sub", aliceTask)
	bobTask := e.task(t, bob, "bob task", nil)
	require.NoError(t, e.relations.Assign(ctx, bob, bobTask.ID, alice.ID, model.RoleAssignee))
	require.NoError(t, e.relations.Apply(ctx, bob, aliceTask.ID))

	require.NoError(t, e.users.DeleteUser(ctx, admin, alice.ID))

	_, err := e.store.Users.FindByID(ctx, alice.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = e.store.Tasks.FindByID(ctx, aliceTask.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assignments, err := e.store.Relations.ListAssignments(ctx, bobTask.ID)
	require.NoError(t, err)
	assert.Empty(t, assignments)
	assert.True(t, e.canEdit(t, bob, bobTask.ID))

	requireKind(t, apperr.KindNotFound, e.users.DeleteUser(ctx, admin, alice.ID))
}
