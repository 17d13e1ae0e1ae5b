package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/repository"
)

// RelationService drives a user's relationship to a task through
// applied/invited, assigned/subscribed and removed. Every operation runs in
// one transaction and fails closed.
type RelationService struct {
	core
}

func NewRelationService(tx Transactor, opts Options) *RelationService {
	return &RelationService{core: newCore(tx, opts)}
}

// Apply records actor's request to be included on taskID.
func (s *RelationService) Apply(ctx context.Context, actor *model.User, taskID string) error {
	const op = "apply"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	err := s.tx.InTx(ctx, func(st Stores) error {
		task, err := s.loadTask(ctx, st, op, taskID)
		if err != nil {
			return err
		}
		if task.CreatorID == actor.ID {
			return apperr.Conflict(op, "you already own this task")
		}
		resolved, err := hasResolved(ctx, st, task.ID, actor.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if resolved {
			return apperr.Conflict(op, "you are already a member of this task")
		}
		applied, err := st.Relations.HasApplication(ctx, task.ID, actor.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if applied {
			return apperr.Conflict(op, "you have already applied to this task")
		}
		invited, err := st.Relations.HasInvitation(ctx, task.ID, actor.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if invited {
			return apperr.Conflict(op, "you already have an invitation to this task")
		}
		return storeErr(op, st.Relations.CreateApplication(ctx, &model.Application{TaskID: task.ID, UserID: actor.ID}))
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": actor.ID}, err)
	return err
}

// AcceptApplication turns userID's application into a Subscription.
func (s *RelationService) AcceptApplication(ctx context.Context, actor *model.User, taskID, userID string) error {
	const op = "accept application"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if userID == "" {
		return apperr.Invalid(op, "user id is required")
	}
	err := s.tx.InTx(ctx, func(st Stores) error {
		task, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessEdit)
		if err != nil {
			return err
		}
		applied, err := st.Relations.HasApplication(ctx, task.ID, userID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if !applied {
			return apperr.NotFound(op, "no application from this user")
		}
		resolved, err := hasResolved(ctx, st, task.ID, userID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if resolved {
			return apperr.Conflict(op, "user is already a member of this task")
		}
		if err := st.Relations.DeleteApplication(ctx, task.ID, userID); err != nil {
			return storeErr(op, err)
		}
		return storeErr(op, st.Relations.CreateSubscription(ctx, &model.Subscription{TaskID: task.ID, UserID: userID}))
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": userID, "actor_id": actor.ID}, err)
	return err
}

// RejectApplication drops userID's application. Only the task creator may do this.
func (s *RelationService) RejectApplication(ctx context.Context, actor *model.User, taskID, userID string) error {
	const op = "reject application"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if userID == "" {
		return apperr.Invalid(op, "user id is required")
	}
	err := s.tx.InTx(ctx, func(st Stores) error {
		task, err := s.loadTask(ctx, st, op, taskID)
		if err != nil {
			return err
		}
		if task.CreatorID != actor.ID {
			return apperr.Forbidden(op, "only the task owner can reject applications")
		}
		err = st.Relations.DeleteApplication(ctx, task.ID, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(op, "no application from this user")
		}
		return storeErr(op, err)
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": userID, "actor_id": actor.ID}, err)
	return err
}

// Invite asks the user registered under email to join taskID.
func (s *RelationService) Invite(ctx context.Context, actor *model.User, taskID, email string) (*model.Invitation, error) {
	const op = "invite"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.Invalid(op, "email is required")
	}
	var inv *model.Invitation
	err := s.tx.InTx(ctx, func(st Stores) error {
		task, err := s.loadTask(ctx, st, op, taskID)
		if err != nil {
			return err
		}
		if task.CreatorID != actor.ID {
			return apperr.Forbidden(op, "only the task owner can invite")
		}
		invited, err := st.Users.FindByEmail(ctx, email)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(op, "no user with email %s", email)
		}
		if err != nil {
			return apperr.Internal(op, err)
		}
		if invited.ID == task.CreatorID {
			return apperr.Conflict(op, "the owner cannot be invited to their own task")
		}
		pending, err := st.Relations.HasInvitation(ctx, task.ID, invited.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if pending {
			return apperr.Conflict(op, "user is already invited")
		}
		applied, err := st.Relations.HasApplication(ctx, task.ID, invited.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if applied {
			return apperr.Conflict(op, "user has already applied, accept the application instead")
		}
		resolved, err := hasResolved(ctx, st, task.ID, invited.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if resolved {
			return apperr.Conflict(op, "user is already a member of this task")
		}
		inv = &model.Invitation{TaskID: task.ID, InvitedID: invited.ID, InviterID: actor.ID}
		return storeErr(op, st.Relations.CreateInvitation(ctx, inv))
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "actor_id": actor.ID}, err)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// AcceptInvitation turns actor's invitation into an Assignment.
func (s *RelationService) AcceptInvitation(ctx context.Context, actor *model.User, taskID string) error {
	const op = "accept invitation"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	err := s.tx.InTx(ctx, func(st Stores) error {
		task, err := s.loadTask(ctx, st, op, taskID)
		if err != nil {
			return err
		}
		invited, err := st.Relations.HasInvitation(ctx, task.ID, actor.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if !invited {
			return apperr.NotFound(op, "you have no invitation to this task")
		}
		resolved, err := hasResolved(ctx, st, task.ID, actor.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if resolved {
			return apperr.Conflict(op, "you are already a member of this task")
		}
		if err := st.Relations.DeleteInvitation(ctx, task.ID, actor.ID); err != nil {
			return storeErr(op, err)
		}
		if err := dropApplication(ctx, st, task.ID, actor.ID); err != nil {
			return apperr.Internal(op, err)
		}
		if err := st.Relations.CreateAssignment(ctx, &model.Assignment{TaskID: task.ID, UserID: actor.ID}); err != nil {
			return storeErr(op, err)
		}
		return storeErr(op, st.Users.IncrementStat(ctx, actor.ID, model.StatTasksAccepted))
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": actor.ID}, err)
	return err
}

// RejectInvitation drops actor's invitation to taskID.
func (s *RelationService) RejectInvitation(ctx context.Context, actor *model.User, taskID string) error {
	const op = "reject invitation"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if taskID == "" {
		return apperr.Invalid(op, "task id is required")
	}
	err := s.tx.InTx(ctx, func(st Stores) error {
		err := st.Relations.DeleteInvitation(ctx, taskID, actor.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(op, "you have no invitation to this task")
		}
		return storeErr(op, err)
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": actor.ID}, err)
	return err
}

// Assign grants userID the given role on taskID. Editors may assign anyone;
// an invited user may assign themselves, which consumes the invitation.
func (s *RelationService) Assign(ctx context.Context, actor *model.User, taskID, userID string, role model.RelationRole) error {
	const op = "assign"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if role != model.RoleAssignee && role != model.RoleViewer {
		return apperr.Invalid(op, "unknown role %q", role)
	}
	err := s.tx.InTx(ctx, func(st Stores) error {
		task, err := s.loadTask(ctx, st, op, taskID)
		if err != nil {
			return err
		}
		canEdit, err := s.access.Check(ctx, st, actor.ID, task, AccessEdit)
		if err != nil {
			return err
		}
		if !canEdit {
			invited, err := st.Relations.HasInvitation(ctx, task.ID, actor.ID)
			if err != nil {
				return apperr.Internal(op, err)
			}
			if !invited || userID != actor.ID {
				return apperr.Forbidden(op, "you have no edit access to this task")
			}
		}
		target, err := s.loadUser(ctx, st, op, userID)
		if err != nil {
			return err
		}
		if target.ID == task.CreatorID {
			return apperr.Conflict(op, "the owner already has full access")
		}
		resolved, err := hasResolved(ctx, st, task.ID, target.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if resolved {
			return apperr.Conflict(op, "user is already a member of this task")
		}
		if err := dropApplication(ctx, st, task.ID, target.ID); err != nil {
			return apperr.Internal(op, err)
		}
		if err := dropInvitation(ctx, st, task.ID, target.ID); err != nil {
			return apperr.Internal(op, err)
		}
		if role == model.RoleAssignee {
			return storeErr(op, st.Relations.CreateAssignment(ctx, &model.Assignment{TaskID: task.ID, UserID: target.ID}))
		}
		return storeErr(op, st.Relations.CreateSubscription(ctx, &model.Subscription{TaskID: task.ID, UserID: target.ID}))
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": userID, "actor_id": actor.ID, "role": role}, err)
	return err
}

// Unlink removes userID's Assignment and Subscription on taskID.
func (s *RelationService) Unlink(ctx context.Context, actor *model.User, taskID, userID string) error {
	const op = "unlink"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if userID == "" {
		return apperr.Invalid(op, "user id is required")
	}
	err := s.tx.InTx(ctx, func(st Stores) error {
		task, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessEdit)
		if err != nil {
			return err
		}
		if userID == task.CreatorID {
			return apperr.Forbidden(op, "the task owner cannot be removed")
		}
		err = st.Relations.Unlink(ctx, task.ID, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(op, "user is not a member of this task")
		}
		return storeErr(op, err)
	})
	s.observe(op, logrus.Fields{"task_id": taskID, "user_id": userID, "actor_id": actor.ID}, err)
	return err
}

// ListApplications returns the pending applications on taskID. Requires edit access.
func (s *RelationService) ListApplications(ctx context.Context, actor *model.User, taskID string) ([]model.Application, error) {
	const op = "list applications"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var out []model.Application
	err := s.tx.InTx(ctx, func(st Stores) error {
		if _, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessEdit); err != nil {
			return err
		}
		apps, err := st.Relations.ListApplications(ctx, taskID)
		out = apps
		return storeErr(op, err)
	})
	return out, err
}

// ListAssignments returns the assignees of taskID. Requires view access.
func (s *RelationService) ListAssignments(ctx context.Context, actor *model.User, taskID string) ([]model.Assignment, error) {
	const op = "list assignments"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var out []model.Assignment
	err := s.tx.InTx(ctx, func(st Stores) error {
		if _, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessView); err != nil {
			return err
		}
		rows, err := st.Relations.ListAssignments(ctx, taskID)
		out = rows
		return storeErr(op, err)
	})
	return out, err
}

// ListSubscriptions returns the viewers of taskID. Requires view access.
func (s *RelationService) ListSubscriptions(ctx context.Context, actor *model.User, taskID string) ([]model.Subscription, error) {
	const op = "list subscriptions"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var out []model.Subscription
	err := s.tx.InTx(ctx, func(st Stores) error {
		if _, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessView); err != nil {
			return err
		}
		rows, err := st.Relations.ListSubscriptions(ctx, taskID)
		out = rows
		return storeErr(op, err)
	})
	return out, err
}

// Members lists every user holding a direct resolved relationship on taskID.
func (s *RelationService) Members(ctx context.Context, actor *model.User, taskID string) ([]model.Member, error) {
	const op = "list members"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var out []model.Member
	err := s.tx.InTx(ctx, func(st Stores) error {
		if _, err := s.loadWithAccess(ctx, st, op, actor, taskID, AccessView); err != nil {
			return err
		}
		assignments, err := st.Relations.ListAssignments(ctx, taskID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		subscriptions, err := st.Relations.ListSubscriptions(ctx, taskID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		for _, a := range assignments {
			out = append(out, model.Member{UserID: a.UserID, Role: model.RoleAssignee})
		}
		for _, sub := range subscriptions {
			out = append(out, model.Member{UserID: sub.UserID, Role: model.RoleViewer})
		}
		return nil
	})
	return out, err
}

// ListInvitations returns actor's pending invitations.
func (s *RelationService) ListInvitations(ctx context.Context, actor *model.User) ([]model.InvitationView, error) {
	const op = "list invitations"
	if err := requireActor(op, actor); err != nil {
		return nil, err
	}
	var out []model.InvitationView
	err := s.tx.InTx(ctx, func(st Stores) error {
		rows, err := st.Relations.ListInvitationsForUser(ctx, actor.ID)
		out = rows
		return storeErr(op, err)
	})
	return out, err
}

func dropApplication(ctx context.Context, st Stores, taskID, userID string) error {
	err := st.Relations.DeleteApplication(ctx, taskID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func dropInvitation(ctx context.Context, st Stores, taskID, userID string) error {
	err := st.Relations.DeleteInvitation(ctx, taskID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}
