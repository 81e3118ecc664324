package repository

import (
	"context"

	"socialfeed/internal/cache"
	"socialfeed/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	FindByID(ctx context.Context, id string) (*models.Post, error)
	FindByIDWithCreator(ctx context.Context, id string) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	Save(ctx context.Context, post *models.Post) error
	DeleteByID(ctx context.Context, id string) error
	CountAll(ctx context.Context) (int64, error)
	FindPage(ctx context.Context, skip, limit int) ([]*models.Post, error)
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
	IDsByCreator(ctx context.Context, userID string) ([]string, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
	// tx is non-nil when bound to a transaction; cache keys are queued until commit.
	tx *txState
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	load := func() error {
		return classify(r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error, "post")
	}

	var err error
	if r.tx != nil {
		err = load()
	} else {
		err = cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, load)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) FindByIDWithCreator(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Preload("Creator").
		Where("id = ?", id).
		First(&post).Error
	if err != nil {
		return nil, classify(err, "post")
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return classify(r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error, "post")
}

func (r *postRepository) Save(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(post).Error; err != nil {
		return classify(err, "post")
	}
	r.invalidate(ctx, post.ID)
	return nil
}

func (r *postRepository) DeleteByID(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Post{})
	if res.Error != nil {
		return classify(res.Error, "post")
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("post")
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *postRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Count(&count).Error; err != nil {
		return 0, classify(err, "post")
	}
	return count, nil
}

// FindPage returns posts newest first with their creators loaded.
func (r *postRepository) FindPage(ctx context.Context, skip, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Preload("Creator").
		Order("created_at DESC").
		Order("id DESC").
		Offset(skip).
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, classify(err, "post")
	}
	return posts, nil
}

// ExistingIDs returns the subset of ids that still resolve to a post.
func (r *postRepository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []string
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, classify(err, "post")
	}
	return found, nil
}

// IDsByCreator returns the ids of every post authored by userID, oldest first.
func (r *postRepository) IDsByCreator(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("creator_id = ?", userID).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, classify(err, "post")
	}
	return ids, nil
}

func (r *postRepository) invalidate(ctx context.Context, id string) {
	if r.tx != nil {
		r.tx.queue(cache.PostKey(id))
		return
	}
	cache.InvalidatePost(ctx, id)
}
