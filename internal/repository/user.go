package repository

import (
	"context"

	"socialfeed/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	// SQLite has no row locks; its single writer serialises instead.
	FindByIDForUpdate(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Save(ctx context.Context, user *models.User) error
	// SetPostIDs and SetStatus write a single column, leaving concurrent
	// changes to the rest of the row intact.
	SetPostIDs(ctx context.Context, userID string, postIDs []string) error
	SetStatus(ctx context.Context, userID, status string) error
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, classify(err, "user")
	}
	return &user, nil
}

func (r *userRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, classify(err, "user")
	}
	return &user, nil
}

// FindByEmail returns gorm-level NotFound as a NotFound AppError; callers that
// treat absence as normal check models.HasCode(err, models.CodeNotFound).
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, classify(err, "user")
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return classify(r.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error, "user")
}

func (r *userRepository) Save(ctx context.Context, user *models.User) error {
	return classify(r.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error, "user")
}

func (r *userRepository) SetPostIDs(ctx context.Context, userID string, postIDs []string) error {
	if postIDs == nil {
		postIDs = []string{}
	}
	return r.updateColumn(ctx, userID, "PostIDs", &models.User{PostIDs: postIDs})
}

func (r *userRepository) SetStatus(ctx context.Context, userID, status string) error {
	return r.updateColumn(ctx, userID, "Status", &models.User{Status: status})
}

// updateColumn goes through a struct so field serializers apply.
func (r *userRepository) updateColumn(ctx context.Context, userID, field string, values *models.User) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{ID: userID}).
		Select(field).
		Updates(values)
	if res.Error != nil {
		return classify(res.Error, "user")
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("user")
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	var users []*models.User
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, classify(err, "user")
	}
	return users, nil
}
