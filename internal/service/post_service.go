// Package service holds the post lifecycle, account and reference-repair logic.
package service

import (
	"context"
	"errors"
	"io"
	"math"

	"socialfeed/internal/middleware"
	"socialfeed/internal/models"
	"socialfeed/internal/notifications"
	"socialfeed/internal/observability"
	"socialfeed/internal/repository"
	"socialfeed/internal/storage"
	"socialfeed/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultPerPage is the feed page size when none is configured.
const DefaultPerPage = 2

const postServiceName = "PostService"

// Broadcaster pushes post events to connected clients.
type Broadcaster interface {
	BroadcastPosts(ctx context.Context, ev notifications.PostEvent) error
}

// ImageUpload is an uploaded file that has not been stored yet.
type ImageUpload struct {
	Name string
	Body io.Reader
}

type CreatePostInput struct {
	Title    string
	Content  string
	Image    *ImageUpload
	CallerID string
}

type UpdatePostInput struct {
	PostID           string
	Title            string
	Content          string
	Image            *ImageUpload
	ExistingImageURL string
	CallerID         string
}

type PostService struct {
	store   repository.Store
	images  storage.ImageStore
	hub     Broadcaster
	perPage int
}

func NewPostService(store repository.Store, images storage.ImageStore, hub Broadcaster, perPage int) *PostService {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &PostService{
		store:   store,
		images:  images,
		hub:     hub,
		perPage: perPage,
	}
}

// PerPage returns the configured page size.
func (s *PostService) PerPage() int { return s.perPage }

// List returns one page of the feed, newest first, and the total post count.
// page is 1-based; callers normalise anything below 1.
func (s *PostService) List(ctx context.Context, page int) (posts []*models.Post, total int64, err error) {
	ctx, finish := observability.StartServiceSpan(ctx, postServiceName, "List", attribute.Int("page", page))
	defer func() { finish(err) }()

	if page < 1 {
		page = 1
	}

	total, err = s.store.Posts().CountAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	// Pages whose offset does not fit in an int, or lies past the last post, are empty.
	if page-1 > math.MaxInt/s.perPage || int64(page-1)*int64(s.perPage) >= total {
		return []*models.Post{}, total, nil
	}
	posts, err = s.store.Posts().FindPage(ctx, (page-1)*s.perPage, s.perPage)
	if err != nil {
		return nil, 0, err
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return posts, total, nil
}

// Create stores a new post owned by the caller and announces it.
func (s *PostService) Create(ctx context.Context, in CreatePostInput) (post *models.Post, creator models.CreatorSummary, err error) {
	ctx, finish := observability.StartServiceSpan(ctx, postServiceName, "Create")
	defer func() {
		record("create", err)
		finish(err)
	}()

	fields, fieldErrs := validation.NormalizePost(in.Title, in.Content)
	if len(fieldErrs) > 0 {
		return nil, creator, models.NewValidationFailedError("Entered data is incorrect.", fieldErrs)
	}
	if in.Image == nil {
		return nil, creator, models.NewMissingImageError("No image provided.")
	}

	imageURL, err := s.ingest(ctx, in.Image)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			return nil, creator, models.NewMissingImageError("No image provided.")
		}
		return nil, creator, err
	}

	post = &models.Post{
		Title:     fields.Title,
		Content:   fields.Content,
		ImageURL:  imageURL,
		CreatorID: in.CallerID,
	}

	var owner *models.User
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		user, err := tx.Users().FindByIDForUpdate(ctx, in.CallerID)
		if err != nil {
			if models.HasCode(err, models.CodeNotFound) {
				return models.NewUnauthenticatedError("")
			}
			return err
		}
		if err := tx.Posts().Create(ctx, post); err != nil {
			return err
		}
		user.AddPost(post.ID)
		if err := tx.Users().SetPostIDs(ctx, user.ID, user.PostIDs); err != nil {
			return err
		}
		owner = user
		return nil
	})
	if err != nil {
		s.removeImage(ctx, imageURL)
		return nil, creator, err
	}

	post.Creator = owner
	creator = owner.Summary()
	s.broadcast(ctx, notifications.ActionCreate, post)
	return post, creator, nil
}

// Get returns a single post. Any authenticated caller may read any post.
func (s *PostService) Get(ctx context.Context, postID string) (post *models.Post, err error) {
	ctx, finish := observability.StartServiceSpan(ctx, postServiceName, "Get", attribute.String("post.id", postID))
	defer func() { finish(err) }()

	return s.store.Posts().FindByID(ctx, postID)
}

// Update replaces the title, content and image of a post the caller owns.
func (s *PostService) Update(ctx context.Context, in UpdatePostInput) (post *models.Post, err error) {
	ctx, finish := observability.StartServiceSpan(ctx, postServiceName, "Update", attribute.String("post.id", in.PostID))
	defer func() {
		record("update", err)
		finish(err)
	}()

	fields, fieldErrs := validation.NormalizePost(in.Title, in.Content)
	if len(fieldErrs) > 0 {
		return nil, models.NewValidationFailedError("Validation failed, entered data is incorrect.", fieldErrs)
	}
	if in.Image == nil && in.ExistingImageURL == "" {
		return nil, models.NewMissingImageError("No file picked.")
	}

	post, err = s.store.Posts().FindByIDWithCreator(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if post.CreatorID != in.CallerID {
		return nil, models.NewForbiddenError()
	}

	imageURL, uploaded := "", ""
	if in.Image != nil {
		url, err := s.ingest(ctx, in.Image)
		switch {
		case err == nil:
			imageURL, uploaded = url, url
		case errors.Is(err, storage.ErrUnsupportedType):
			// Fall back to the current image, if the form carried it.
		default:
			return nil, err
		}
	}
	// The new file is only kept once the post points at it.
	defer func() {
		if err != nil && uploaded != "" {
			s.removeImage(ctx, uploaded)
		}
	}()

	if imageURL == "" {
		switch in.ExistingImageURL {
		case "":
			return nil, models.NewMissingImageError("No file picked.")
		case post.ImageURL:
			imageURL = post.ImageURL
		default:
			// Only the post's own image may be kept.
			return nil, models.NewValidationFailedError("Validation failed, entered data is incorrect.", []models.FieldError{
				{Field: "image", Message: "must be the post's current image", Value: in.ExistingImageURL},
			})
		}
	}

	oldImage := post.ImageURL
	post.Title = fields.Title
	post.Content = fields.Content
	post.ImageURL = imageURL
	if err = s.store.Posts().Save(ctx, post); err != nil {
		return nil, err
	}

	if oldImage != imageURL {
		s.removeImage(ctx, oldImage)
	}
	s.broadcast(ctx, notifications.ActionUpdate, post)
	return post, nil
}

// Delete removes a post the caller owns along with its owner reference and image.
func (s *PostService) Delete(ctx context.Context, postID, callerID string) (err error) {
	ctx, finish := observability.StartServiceSpan(ctx, postServiceName, "Delete", attribute.String("post.id", postID))
	defer func() {
		record("delete", err)
		finish(err)
	}()

	post, err := s.store.Posts().FindByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.CreatorID != callerID {
		return models.NewForbiddenError()
	}

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Posts().DeleteByID(ctx, postID); err != nil {
			return err
		}
		owner, err := tx.Users().FindByIDForUpdate(ctx, post.CreatorID)
		if err != nil {
			if models.HasCode(err, models.CodeNotFound) {
				// Owner is gone; nothing left to unlink.
				return nil
			}
			return err
		}
		if owner.RemovePost(postID) {
			return tx.Users().SetPostIDs(ctx, owner.ID, owner.PostIDs)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.removeImage(ctx, post.ImageURL)
	s.broadcast(ctx, notifications.ActionDelete, postID)
	return nil
}

// ListUserPosts resolves a user's post references in order, skipping any that no longer exist.
func (s *PostService) ListUserPosts(ctx context.Context, userID string) (posts []*models.Post, err error) {
	ctx, finish := observability.StartServiceSpan(ctx, postServiceName, "ListUserPosts", attribute.String("user.id", userID))
	defer func() { finish(err) }()

	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	posts = make([]*models.Post, 0, len(user.PostIDs))
	for _, id := range user.PostIDs {
		post, err := s.store.Posts().FindByID(ctx, id)
		if err != nil {
			if models.HasCode(err, models.CodeNotFound) {
				middleware.Logger.WarnContext(ctx, "dangling post reference", "user_id", userID, "post_id", id)
				continue
			}
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (s *PostService) ingest(ctx context.Context, img *ImageUpload) (string, error) {
	if s.images == nil {
		return "", errors.New("image storage not configured")
	}
	return storage.Ingest(ctx, s.images, img.Name, img.Body)
}

// removeImage deletes a stored image. Failures are logged and counted, never returned.
func (s *PostService) removeImage(ctx context.Context, url string) {
	if s.images == nil || url == "" {
		return
	}
	if err := s.images.Delete(ctx, url); err != nil {
		observability.ImageCleanupFailures.Inc()
		middleware.Logger.WarnContext(ctx, "image cleanup failed", "image_url", url, "error", err)
	}
}

func (s *PostService) broadcast(ctx context.Context, action string, post any) {
	if s.hub == nil {
		return
	}
	if err := s.hub.BroadcastPosts(ctx, notifications.PostEvent{Action: action, Post: post}); err != nil {
		middleware.Logger.ErrorContext(ctx, "post broadcast failed", "action", action, "error", err)
	}
}

func record(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if appErr, ok := models.AsAppError(err); ok {
			outcome = appErr.Code
		}
	}
	observability.PostOperationsTotal.WithLabelValues(operation, outcome).Inc()
}
