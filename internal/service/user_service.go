package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/sirupsen/logrus"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/repository"
)

// UserView is what a caller may see of a user. Only the user themselves and
// user managers receive the full record.
type UserView struct {
	Profile model.Profile
	User    *model.User
}

// Stats are the counters kept for a user.
type Stats struct {
	TasksCompleted int
	ReviewsGiven   int
	TasksAccepted  int
	// CurrentlyDone counts tasks still in DONE state that the user closed.
	CurrentlyDone int64
}

// UserService manages the user directory.
type UserService struct {
	core
}

func NewUserService(tx Transactor, opts Options) *UserService {
	return &UserService{core: newCore(tx, opts)}
}

// Register finds or creates the user behind a Telegram account.
func (s *UserService) Register(ctx context.Context, p repository.TelegramProfile) (*model.User, error) {
	const op = "register user"
	var user *model.User
	err := s.tx.InTx(ctx, func(st Stores) error {
		u, err := st.Users.UpsertFromTelegram(ctx, p)
		user = u
		return storeErr(op, err)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns every user. Requires the user management capability.
func (s *UserService) ListUsers(ctx context.Context, actor *model.User) ([]model.User, error) {
	const op = "list users"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	if !actor.CanManageUsers() {
		return nil, apperr.Forbidden(op, "only administrators can list users")
	}
	var out []model.User
	err := s.tx.InTx(ctx, func(st Stores) error {
		users, err := st.Users.ListAll(ctx)
		out = users
		return storeErr(op, err)
	})
	return out, err
}

// GetUser returns the full record for the user themselves and for
// managers, the reduced profile for everyone else.
func (s *UserService) GetUser(ctx context.Context, actor *model.User, userID string) (UserView, error) {
	const op = "get user"
	if err := requireActor(op, actor); err != nil {
		return UserView{}, err
	}
	var view UserView
	err := s.tx.InTx(ctx, func(st Stores) error {
		u, err := s.loadUser(ctx, st, op, userID)
		if err != nil {
			return err
		}
		view.Profile = u.Profile()
		if actor.ID == u.ID || actor.CanManageUsers() {
			view.User = u
		}
		return nil
	})
	return view, err
}

// UpdateEmail changes the email of userID. Users may change their own
// address, managers anyone's.
func (s *UserService) UpdateEmail(ctx context.Context, actor *model.User, userID, email string) error {
	const op = "update email"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if actor.ID != userID && !actor.CanManageUsers() {
		return apperr.Forbidden(op, "you can only change your own email")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperr.Invalid(op, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Invalid(op, "%q is not a valid email address", email)
	}
	err = s.tx.InTx(ctx, func(st Stores) error {
		err := st.Users.UpdateEmail(ctx, userID, email)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return apperr.NotFound(op, "user %s not found", userID)
		case errors.Is(err, repository.ErrDuplicate):
			return apperr.Conflict(op, "email %s is already taken", email)
		}
		return storeErr(op, err)
	})
	s.observe(op, logrus.Fields{"user_id": userID, "actor_id": actor.ID}, err)
	return err
}

// DeleteUser removes a user, the task trees they own and every relationship
// they hold. Requires the user management capability.
func (s *UserService) DeleteUser(ctx context.Context, actor *model.User, userID string) error {
	const op = "delete user"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if !actor.CanManageUsers() {
		return apperr.Forbidden(op, "only administrators can delete users")
	}
	err := s.tx.InTx(ctx, func(st Stores) error {
		u, err := s.loadUser(ctx, st, op, userID)
		if err != nil {
			return err
		}
		owned, err := st.Tasks.ListByCreator(ctx, u.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		gone := make(map[string]bool)
		for i := range owned {
			if gone[owned[i].ID] {
				continue
			}
			tree, err := s.subtree(ctx, st, op, &owned[i])
			if err != nil {
				return err
			}
			for _, t := range tree {
				gone[t.ID] = true
			}
			if _, err := s.deleteTree(ctx, st, op, &owned[i]); err != nil {
				return err
			}
		}
		if err := st.Relations.DeleteByUser(ctx, u.ID); err != nil {
			return apperr.Internal(op, err)
		}
		return storeErr(op, st.Users.Delete(ctx, u.ID))
	})
	s.observe(op, logrus.Fields{"user_id": userID, "actor_id": actor.ID}, err)
	return err
}

// Stats returns actor's counters.
func (s *UserService) Stats(ctx context.Context, actor *model.User) (Stats, error) {
	const op = "stats"
	if err := requireActor(op, actor); err != nil {
		return Stats{}, err
	}
	var out Stats
	err := s.tx.InTx(ctx, func(st Stores) error {
		u, err := s.loadUser(ctx, st, op, actor.ID)
		if err != nil {
			return err
		}
		done, err := st.Tasks.CountCompletedBy(ctx, u.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		out = Stats{
			TasksCompleted: u.TasksCompleted,
			ReviewsGiven:   u.ReviewsGiven,
			TasksAccepted:  u.TasksAccepted,
			CurrentlyDone:  done,
		}
		return nil
	})
	return out, err
}
