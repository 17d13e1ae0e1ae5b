package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewStore(db)
}

func seedUser(t *testing.T, s *Store, name, email string) *model.User {
	t.Helper()
	u := &model.User{Name: name}
	if email != "" {
		u.Email = &email
	}
	require.NoError(t, s.Users.Create(context.Background(), u))
	return u
}

func seedTask(t *testing.T, s *Store, title, creatorID string, parentID *string) *model.Task {
	t.Helper()
	task := &model.Task{Title: title, CreatorID: creatorID, ParentTaskID: parentID}
	require.NoError(t, s.Tasks.Create(context.Background(), task))
	return task
}

func TestTaskRepository(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := seedUser(t, s, "owner", "owner@example.com")

	t.Run("create assigns id and default status", func(t *testing.T) {
		task := seedTask(t, s, "root", owner.ID, nil)
		assert.NotEmpty(t, task.ID)
		assert.Equal(t, model.StatusOpen, task.Status)

		found, err := s.Tasks.FindByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "root", found.Title)
	})

	t.Run("find missing", func(t *testing.T) {
		_, err := s.Tasks.FindByID(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("children", func(t *testing.T) {
		root := seedTask(t, s, "parent", owner.ID, nil)
		seedTask(t, s, "a", owner.ID, &root.ID)
		seedTask(t, s, "b", owner.ID, &root.ID)

		children, err := s.Tasks.FindChildren(ctx, root.ID)
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, "a", children[0].Title)
		assert.Equal(t, "b", children[1].Title)
	})

	t.Run("update writes zero values", func(t *testing.T) {
		task := seedTask(t, s, "update me", owner.ID, nil)
		task.IsPublic = true
		require.NoError(t, s.Tasks.Update(ctx, task))

		task.IsPublic = false
		task.Description = ""
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		task.Status = model.StatusDone
		task.CompletedAt = &now
		task.CompletedByID = &owner.ID
		require.NoError(t, s.Tasks.Update(ctx, task))

		found, err := s.Tasks.FindByID(ctx, task.ID)
		require.NoError(t, err)
		assert.False(t, found.IsPublic)
		assert.Equal(t, model.StatusDone, found.Status)
		require.NotNil(t, found.CompletedAt)
		assert.True(t, now.Equal(*found.CompletedAt))

		n, err := s.Tasks.CountCompletedBy(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("update missing", func(t *testing.T) {
		err := s.Tasks.Update(ctx, &model.Task{ID: "missing", Title: "x", Status: model.StatusOpen})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		task := seedTask(t, s, "gone", owner.ID, nil)
		require.NoError(t, s.Tasks.Delete(ctx, task.ID))
		assert.ErrorIs(t, s.Tasks.Delete(ctx, task.ID), ErrNotFound)
	})
}

func TestTaskListings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := seedUser(t, s, "owner", "")
	other := seedUser(t, s, "other", "")

	late := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	early := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	a := &model.Task{Title: "late", CreatorID: owner.ID, Deadline: &late}
	b := &model.Task{Title: "early", CreatorID: owner.ID, Deadline: &early}
	c := &model.Task{Title: "none", CreatorID: owner.ID}
	for _, task := range []*model.Task{a, b, c} {
		require.NoError(t, s.Tasks.Create(ctx, task))
	}

	open, err := s.Tasks.ListOpenByCreator(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, []string{"early", "late", "none"}, []string{open[0].Title, open[1].Title, open[2].Title})

	require.NoError(t, s.Relations.CreateAssignment(ctx, &model.Assignment{TaskID: a.ID, UserID: other.ID}))
	require.NoError(t, s.Relations.CreateSubscription(ctx, &model.Subscription{TaskID: b.ID, UserID: other.ID}))

	assigned, err := s.Tasks.ListAssignedTo(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, a.ID, assigned[0].ID)

	subscribed, err := s.Tasks.ListSubscribedBy(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, subscribed, 1)
	assert.Equal(t, b.ID, subscribed[0].ID)

	owned, err := s.Tasks.ListByCreator(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("upsert from telegram", func(t *testing.T) {
		u, err := s.Users.UpsertFromTelegram(ctx, TelegramProfile{TelegramID: 42, Name: "Ann", Username: "ann"})
		require.NoError(t, err)
		assert.Equal(t, model.RoleUser, u.Role)

		again, err := s.Users.UpsertFromTelegram(ctx, TelegramProfile{TelegramID: 42, Name: "Anna", Username: "ann", Admin: true})
		require.NoError(t, err)
		assert.Equal(t, u.ID, again.ID)

		found, err := s.Users.FindByTelegramID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "Anna", found.Name)
		assert.Equal(t, model.RoleAdmin, found.Role)
	})

	t.Run("email is unique", func(t *testing.T) {
		a := seedUser(t, s, "a", "a@example.com")
		b := seedUser(t, s, "b", "")

		err := s.Users.UpdateEmail(ctx, b.ID, "a@example.com")
		assert.ErrorIs(t, err, ErrDuplicate)

		require.NoError(t, s.Users.UpdateEmail(ctx, b.ID, "b@example.com"))
		found, err := s.Users.FindByEmail(ctx, "b@example.com")
		require.NoError(t, err)
		assert.Equal(t, b.ID, found.ID)

		_, err = s.Users.FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotEqual(t, a.ID, found.ID)
	})

	t.Run("increment stat", func(t *testing.T) {
		u := seedUser(t, s, "stats", "")
		require.NoError(t, s.Users.IncrementStat(ctx, u.ID, model.StatTasksCompleted))
		require.NoError(t, s.Users.IncrementStat(ctx, u.ID, model.StatTasksCompleted))
		require.NoError(t, s.Users.IncrementStat(ctx, u.ID, model.StatTasksAccepted))
		assert.Error(t, s.Users.IncrementStat(ctx, u.ID, model.Stat("bogus")))
		assert.ErrorIs(t, s.Users.IncrementStat(ctx, "missing", model.StatTasksCompleted), ErrNotFound)

		found, err := s.Users.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, found.TasksCompleted)
		assert.Equal(t, 1, found.TasksAccepted)
	})

	t.Run("delete", func(t *testing.T) {
		u := seedUser(t, s, "gone", "")
		require.NoError(t, s.Users.Delete(ctx, u.ID))
		_, err := s.Users.FindByID(ctx, u.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRelationRepository(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := seedUser(t, s, "owner", "")
	user := seedUser(t, s, "user", "")
	task := seedTask(t, s, "shared", owner.ID, nil)

	t.Run("application lifecycle", func(t *testing.T) {
		require.NoError(t, s.Relations.CreateApplication(ctx, &model.Application{TaskID: task.ID, UserID: user.ID}))
		err := s.Relations.CreateApplication(ctx, &model.Application{TaskID: task.ID, UserID: user.ID})
		assert.ErrorIs(t, err, ErrDuplicate)

		ok, err := s.Relations.HasApplication(ctx, task.ID, user.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		pending, err := s.Relations.ListApplicationsForOwner(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, user.ID, pending[0].UserID)

		require.NoError(t, s.Relations.DeleteApplication(ctx, task.ID, user.ID))
		assert.ErrorIs(t, s.Relations.DeleteApplication(ctx, task.ID, user.ID), ErrNotFound)
	})

	t.Run("invitation inbox", func(t *testing.T) {
		require.NoError(t, s.Relations.CreateInvitation(ctx, &model.Invitation{TaskID: task.ID, InvitedID: user.ID, InviterID: owner.ID}))
		inbox, err := s.Relations.ListInvitationsForUser(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, "shared", inbox[0].TaskTitle)
		assert.Equal(t, owner.ID, inbox[0].InviterID)

		require.NoError(t, s.Relations.DeleteInvitation(ctx, task.ID, user.ID))
		ok, err := s.Relations.HasInvitation(ctx, task.ID, user.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unlink removes both edges", func(t *testing.T) {
		require.NoError(t, s.Relations.CreateAssignment(ctx, &model.Assignment{TaskID: task.ID, UserID: user.ID}))
		require.NoError(t, s.Relations.CreateSubscription(ctx, &model.Subscription{TaskID: task.ID, UserID: user.ID}))

		require.NoError(t, s.Relations.Unlink(ctx, task.ID, user.ID))
		assert.ErrorIs(t, s.Relations.Unlink(ctx, task.ID, user.ID), ErrNotFound)

		assignments, err := s.Relations.ListAssignments(ctx, task.ID)
		require.NoError(t, err)
		assert.Empty(t, assignments)
	})

	t.Run("unlink with a single edge", func(t *testing.T) {
		require.NoError(t, s.Relations.CreateSubscription(ctx, &model.Subscription{TaskID: task.ID, UserID: user.ID}))
		require.NoError(t, s.Relations.Unlink(ctx, task.ID, user.ID))

		assert.ErrorIs(t, s.Relations.DeleteAssignment(ctx, task.ID, user.ID), ErrNotFound)
		assert.ErrorIs(t, s.Relations.DeleteSubscription(ctx, task.ID, user.ID), ErrNotFound)
	})

	t.Run("delete by tasks", func(t *testing.T) {
		require.NoError(t, s.Relations.CreateApplication(ctx, &model.Application{TaskID: task.ID, UserID: user.ID}))
		require.NoError(t, s.Relations.CreateSubscription(ctx, &model.Subscription{TaskID: task.ID, UserID: user.ID}))
		require.NoError(t, s.Relations.DeleteByTasks(ctx, []string{task.ID}))

		apps, err := s.Relations.ListApplications(ctx, task.ID)
		require.NoError(t, err)
		assert.Empty(t, apps)
		subs, err := s.Relations.ListSubscriptions(ctx, task.ID)
		require.NoError(t, err)
		assert.Empty(t, subs)
	})
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := seedUser(t, s, "owner", "")

	boom := errors.New("boom")
	var created string
	err := s.Transaction(ctx, func(tx *Store) error {
		task := &model.Task{Title: "temp", CreatorID: owner.ID}
		if err := tx.Tasks.Create(ctx, task); err != nil {
			return err
		}
		created = task.ID
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Tasks.FindByID(ctx, created)
	assert.ErrorIs(t, err, ErrNotFound)
}
