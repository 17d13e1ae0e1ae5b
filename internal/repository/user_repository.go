package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"taskhub/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// TelegramProfile is the identity data delivered with every Telegram update.
type TelegramProfile struct {
	TelegramID int64
	Name       string
	Username   string
	Admin      bool
}

// UpsertFromTelegram finds or creates a user based on TelegramID and updates basic profile info.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, p TelegramProfile) (*model.User, error) {
	role := model.RoleUser
	if p.Admin {
		role = model.RoleAdmin
	}

	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", p.TelegramID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"name":     p.Name,
			"username": p.Username,
			"role":     role,
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		id := p.TelegramID
		user = model.User{
			TelegramID: &id,
			Name:       p.Name,
			Username:   p.Username,
			Role:       role,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, translate("create user", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return translate("create user", r.db.WithContext(ctx).Create(user).Error)
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (*model.User, error) {
	return r.findOne(ctx, "find user", "id = ?", userID)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "find user by email", "email = ?", email)
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return r.findOne(ctx, "find user by telegram id", "telegram_id = ?", telegramID)
}

func (r *UserRepository) findOne(ctx context.Context, op, query string, args ...any) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		return nil, translate(op, err)
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("created_at, id").Find(&users).Error; err != nil {
		return nil, translate("list users", err)
	}
	return users, nil
}

// UpdateEmail sets the email of userID. A taken address yields ErrDuplicate.
func (r *UserRepository) UpdateEmail(ctx context.Context, userID, email string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("email", email)
	return checkRowsAffected("update email", res)
}

// IncrementStat adds one to the named counter of userID.
func (r *UserRepository) IncrementStat(ctx context.Context, userID string, stat model.Stat) error {
	if !stat.IsValid() {
		return fmt.Errorf("increment stat: unknown stat %q", stat)
	}
	col := string(stat)
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		UpdateColumn(col, gorm.Expr(col+" + ?", 1))
	return checkRowsAffected("increment stat", res)
}

func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	res := r.db.WithContext(ctx).Where("id = ?", userID).Delete(&model.User{})
	return checkRowsAffected("delete user", res)
}
