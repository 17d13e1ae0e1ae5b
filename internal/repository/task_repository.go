package repository

import (
	"context"

	"gorm.io/gorm"

	"taskhub/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	return translate("create task", r.db.WithContext(ctx).Create(task).Error)
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("id = ?", taskID).First(&task).Error; err != nil {
		return nil, translate("find task", err)
	}
	return &task, nil
}

// FindChildren returns the direct subtasks of parentID in creation order.
func (r *TaskRepository) FindChildren(ctx context.Context, parentID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("parent_task_id = ?", parentID).
		Order("created_at, id").
		Find(&tasks).Error; err != nil {
		return nil, translate("find children", err)
	}
	return tasks, nil
}

// Update writes every column of task except its id and creation time.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	res := r.db.WithContext(ctx).Model(&model.Task{ID: task.ID}).
		Select("*").Omit("id", "created_at").
		Updates(task)
	return checkRowsAffected("update task", res)
}

func (r *TaskRepository) Delete(ctx context.Context, taskID string) error {
	res := r.db.WithContext(ctx).Where("id = ?", taskID).Delete(&model.Task{})
	return checkRowsAffected("delete task", res)
}

func (r *TaskRepository) CountCompletedBy(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("completed_by_id = ? AND status = ?", userID, model.StatusDone).
		Count(&n).Error; err != nil {
		return 0, translate("count completed", err)
	}
	return n, nil
}

// ListByCreator returns every task owned by userID, open ones first.
func (r *TaskRepository) ListByCreator(ctx context.Context, userID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("creator_id = ?", userID).
		Order("status DESC, deadline NULLS LAST, created_at").
		Find(&tasks).Error; err != nil {
		return nil, translate("list owned tasks", err)
	}
	return tasks, nil
}

// ListOpenByCreator returns the open tasks owned by userID ordered by deadline.
func (r *TaskRepository) ListOpenByCreator(ctx context.Context, userID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("creator_id = ? AND status = ?", userID, model.StatusOpen).
		Order("deadline NULLS LAST, created_at").
		Find(&tasks).Error; err != nil {
		return nil, translate("list open tasks", err)
	}
	return tasks, nil
}

// ListAssignedTo returns the tasks on which userID holds an Assignment.
func (r *TaskRepository) ListAssignedTo(ctx context.Context, userID string) ([]model.Task, error) {
	return r.listJoined(ctx, "assignments", userID, "list assigned tasks")
}

// ListSubscribedBy returns the tasks on which userID holds a Subscription.
func (r *TaskRepository) ListSubscribedBy(ctx context.Context, userID string) ([]model.Task, error) {
	return r.listJoined(ctx, "subscriptions", userID, "list subscribed tasks")
}

func (r *TaskRepository) listJoined(ctx context.Context, table, userID, op string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Joins("JOIN "+table+" rel ON rel.task_id = tasks.id").
		Where("rel.user_id = ?", userID).
		Order("tasks.status DESC, tasks.deadline NULLS LAST, tasks.created_at").
		Find(&tasks).Error; err != nil {
		return nil, translate(op, err)
	}
	return tasks, nil
}
