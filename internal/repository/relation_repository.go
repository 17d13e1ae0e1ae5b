package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"taskhub/internal/model"
)

// RelationRepository stores the four relationship kinds between users and
// tasks. Each kind lives in its own table keyed by (task_id, user).
type RelationRepository struct {
	db *gorm.DB
}

func NewRelationRepository(db *gorm.DB) *RelationRepository {
	return &RelationRepository{db: db}
}

// Applications

func (r *RelationRepository) CreateApplication(ctx context.Context, a *model.Application) error {
	return translate("create application", r.db.WithContext(ctx).Create(a).Error)
}

func (r *RelationRepository) HasApplication(ctx context.Context, taskID, userID string) (bool, error) {
	ok, err := exists(ctx, r.db, &model.Application{}, "task_id = ? AND user_id = ?", taskID, userID)
	return ok, translate("find application", err)
}

func (r *RelationRepository) DeleteApplication(ctx context.Context, taskID, userID string) error {
	res := r.db.WithContext(ctx).Where("task_id = ? AND user_id = ?", taskID, userID).Delete(&model.Application{})
	return checkRowsAffected("delete application", res)
}

func (r *RelationRepository) ListApplications(ctx context.Context, taskID string) ([]model.Application, error) {
	var out []model.Application
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at, user_id").Find(&out).Error
	return out, translate("list applications", err)
}

// ListApplicationsForOwner returns applications pending on tasks created by ownerID.
func (r *RelationRepository) ListApplicationsForOwner(ctx context.Context, ownerID string) ([]model.Application, error) {
	var out []model.Application
	err := r.db.WithContext(ctx).
		Joins("JOIN tasks ON tasks.id = applications.task_id").
		Where("tasks.creator_id = ?", ownerID).
		Order("applications.created_at, applications.user_id").
		Find(&out).Error
	return out, translate("list owner applications", err)
}

// Invitations

func (r *RelationRepository) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	return translate("create invitation", r.db.WithContext(ctx).Create(inv).Error)
}

func (r *RelationRepository) HasInvitation(ctx context.Context, taskID, userID string) (bool, error) {
	ok, err := exists(ctx, r.db, &model.Invitation{}, "task_id = ? AND invited_id = ?", taskID, userID)
	return ok, translate("find invitation", err)
}

func (r *RelationRepository) DeleteInvitation(ctx context.Context, taskID, userID string) error {
	res := r.db.WithContext(ctx).Where("task_id = ? AND invited_id = ?", taskID, userID).Delete(&model.Invitation{})
	return checkRowsAffected("delete invitation", res)
}

// ListInvitationsForUser returns the pending invitations addressed to userID
// together with the invited task titles.
func (r *RelationRepository) ListInvitationsForUser(ctx context.Context, userID string) ([]model.InvitationView, error) {
	var out []model.InvitationView
	err := r.db.WithContext(ctx).Model(&model.Invitation{}).
		Select("invitations.task_id, tasks.title AS task_title, invitations.inviter_id, invitations.created_at").
		Joins("JOIN tasks ON tasks.id = invitations.task_id").
		Where("invitations.invited_id = ?", userID).
		Order("invitations.created_at").
		Scan(&out).Error
	return out, translate("list user invitations", err)
}

// Assignments

func (r *RelationRepository) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	return translate("create assignment", r.db.WithContext(ctx).Create(a).Error)
}

func (r *RelationRepository) HasAssignment(ctx context.Context, taskID, userID string) (bool, error) {
	ok, err := exists(ctx, r.db, &model.Assignment{}, "task_id = ? AND user_id = ?", taskID, userID)
	return ok, translate("find assignment", err)
}

func (r *RelationRepository) DeleteAssignment(ctx context.Context, taskID, userID string) error {
	res := r.db.WithContext(ctx).Where("task_id = ? AND user_id = ?", taskID, userID).Delete(&model.Assignment{})
	return checkRowsAffected("delete assignment", res)
}

func (r *RelationRepository) ListAssignments(ctx context.Context, taskID string) ([]model.Assignment, error) {
	var out []model.Assignment
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at, user_id").Find(&out).Error
	return out, translate("list assignments", err)
}

// Subscriptions

func (r *RelationRepository) CreateSubscription(ctx context.Context, s *model.Subscription) error {
	return translate("create subscription", r.db.WithContext(ctx).Create(s).Error)
}

func (r *RelationRepository) HasSubscription(ctx context.Context, taskID, userID string) (bool, error) {
	ok, err := exists(ctx, r.db, &model.Subscription{}, "task_id = ? AND user_id = ?", taskID, userID)
	return ok, translate("find subscription", err)
}

func (r *RelationRepository) DeleteSubscription(ctx context.Context, taskID, userID string) error {
	res := r.db.WithContext(ctx).Where("task_id = ? AND user_id = ?", taskID, userID).Delete(&model.Subscription{})
	return checkRowsAffected("delete subscription", res)
}

func (r *RelationRepository) ListSubscriptions(ctx context.Context, taskID string) ([]model.Subscription, error) {
	var out []model.Subscription
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at, user_id").Find(&out).Error
	return out, translate("list subscriptions", err)
}

// Unlink removes both resolved relationships of userID on taskID. It reports
// ErrNotFound when neither existed.
func (r *RelationRepository) Unlink(ctx context.Context, taskID, userID string) error {
	removed := false
	for _, del := range []func(context.Context, string, string) error{r.DeleteAssignment, r.DeleteSubscription} {
		err := del(ctx, taskID, userID)
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("unlink: %w", err)
		}
	}
	if !removed {
		return fmt.Errorf("unlink: %w", ErrNotFound)
	}
	return nil
}

// DeleteByTasks removes every relationship row attached to the given tasks.
func (r *RelationRepository) DeleteByTasks(ctx context.Context, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("task_id IN ?", taskIDs).Delete(&model.Application{}).Error; err != nil {
		return translate("delete applications", err)
	}
	if err := db.Where("task_id IN ?", taskIDs).Delete(&model.Invitation{}).Error; err != nil {
		return translate("delete invitations", err)
	}
	if err := db.Where("task_id IN ?", taskIDs).Delete(&model.Assignment{}).Error; err != nil {
		return translate("delete assignments", err)
	}
	if err := db.Where("task_id IN ?", taskIDs).Delete(&model.Subscription{}).Error; err != nil {
		return translate("delete subscriptions", err)
	}
	return nil
}

// DeleteByUser removes every relationship row held by or issued by userID.
func (r *RelationRepository) DeleteByUser(ctx context.Context, userID string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&model.Application{}).Error; err != nil {
		return translate("delete applications", err)
	}
	if err := db.Where("invited_id = ? OR inviter_id = ?", userID, userID).Delete(&model.Invitation{}).Error; err != nil {
		return translate("delete invitations", err)
	}
	if err := db.Where("user_id = ?", userID).Delete(&model.Assignment{}).Error; err != nil {
		return translate("delete assignments", err)
	}
	if err := db.Where("user_id = ?", userID).Delete(&model.Subscription{}).Error; err != nil {
		return translate("delete subscriptions", err)
	}
	return nil
}
