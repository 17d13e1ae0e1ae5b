package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("repository: record not found")
	ErrDuplicate = errors.New("repository: duplicate record")
)

// Store groups the repositories that share one database handle.
type Store struct {
	db        *gorm.DB
	Tasks     *TaskRepository
	Users     *UserRepository
	Relations *RelationRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		Tasks:     NewTaskRepository(db),
		Users:     NewUserRepository(db),
		Relations: NewRelationRepository(db),
	}
}

// Transaction runs fn against a Store bound to a single transaction. The
// transaction is rolled back when fn returns an error.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// translate maps gorm errors onto the package sentinels.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func checkRowsAffected(op string, res *gorm.DB) error {
	if res.Error != nil {
		return translate(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func exists(ctx context.Context, db *gorm.DB, m any, query string, args ...any) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(m).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
