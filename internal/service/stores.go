package service

import (
	"context"

	"taskhub/internal/model"
	"taskhub/internal/repository"
)

// TaskStore is the durable task storage consumed by the core.
type TaskStore interface {
	FindByID(ctx context.Context, taskID string) (*model.Task, error)
	FindChildren(ctx context.Context, parentID string) ([]model.Task, error)
	Create(ctx context.Context, task *model.Task) error
	Update(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, taskID string) error
	CountCompletedBy(ctx context.Context, userID string) (int64, error)
	ListByCreator(ctx context.Context, userID string) ([]model.Task, error)
	ListOpenByCreator(ctx context.Context, userID string) ([]model.Task, error)
	ListAssignedTo(ctx context.Context, userID string) ([]model.Task, error)
	ListSubscribedBy(ctx context.Context, userID string) ([]model.Task, error)
}

// RelationStore keeps the four relationship kinds.
type RelationStore interface {
	CreateApplication(ctx context.Context, a *model.Application) error
	HasApplication(ctx context.Context, taskID, userID string) (bool, error)
	DeleteApplication(ctx context.Context, taskID, userID string) error
	ListApplications(ctx context.Context, taskID string) ([]model.Application, error)
	ListApplicationsForOwner(ctx context.Context, ownerID string) ([]model.Application, error)

	CreateInvitation(ctx context.Context, inv *model.Invitation) error
	HasInvitation(ctx context.Context, taskID, userID string) (bool, error)
	DeleteInvitation(ctx context.Context, taskID, userID string) error
	ListInvitationsForUser(ctx context.Context, userID string) ([]model.InvitationView, error)

	CreateAssignment(ctx context.Context, a *model.Assignment) error
	HasAssignment(ctx context.Context, taskID, userID string) (bool, error)
	ListAssignments(ctx context.Context, taskID string) ([]model.Assignment, error)

	CreateSubscription(ctx context.Context, s *model.Subscription) error
	HasSubscription(ctx context.Context, taskID, userID string) (bool, error)
	ListSubscriptions(ctx context.Context, taskID string) ([]model.Subscription, error)

	Unlink(ctx context.Context, taskID, userID string) error
	DeleteByTasks(ctx context.Context, taskIDs []string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// UserDirectory resolves and maintains users.
type UserDirectory interface {
	UpsertFromTelegram(ctx context.Context, p repository.TelegramProfile) (*model.User, error)
	FindByID(ctx context.Context, userID string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	ListAll(ctx context.Context) ([]model.User, error)
	UpdateEmail(ctx context.Context, userID, email string) error
	IncrementStat(ctx context.Context, userID string, stat model.Stat) error
	Delete(ctx context.Context, userID string) error
}

// Stores is the set of collaborators bound to one unit of work.
type Stores struct {
	Tasks     TaskStore
	Relations RelationStore
	Users     UserDirectory
}

// Transactor runs fn against Stores bound to a single transaction. Any error
// returned by fn discards every write made through those Stores.
type Transactor interface {
	InTx(ctx context.Context, fn func(st Stores) error) error
}

// NewTransactor adapts the gorm-backed store.
func NewTransactor(store *repository.Store) Transactor {
	return storeTransactor{store: store}
}

type storeTransactor struct {
	store *repository.Store
}

func (t storeTransactor) InTx(ctx context.Context, fn func(st Stores) error) error {
	return t.store.Transaction(ctx, func(tx *repository.Store) error {
		return fn(Stores{Tasks: tx.Tasks, Relations: tx.Relations, Users: tx.Users})
	})
}
