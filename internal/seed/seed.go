// Package seed provides helpers to create demo users and posts for development
// and testing only.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"socialfeed/internal/middleware"
	"socialfeed/internal/models"
	"socialfeed/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded user.
const DefaultPassword = "password123"

// Options configuration for the seeder
type Options struct {
	NumUsers int
	NumPosts int
	// MaxDays spreads createdAt over the last N days.
	MaxDays int
	// SkipBcrypt stores a cheap hash; seeded users can then not log in.
	SkipBcrypt bool
}

// Seeder fills the database with fake users and posts.
type Seeder struct {
	db    *gorm.DB
	store repository.Store
	opts  Options
	rng   *rand.Rand
	faker *gofakeit.Faker
}

// NewSeeder creates a Seeder bound to db. A zero seed uses the current time.
func NewSeeder(db *gorm.DB, opts Options, seed int64) *Seeder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 90
	}
	return &Seeder{
		db:    db,
		store: repository.NewStore(db),
		opts:  opts,
		rng:   rand.New(rand.NewSource(seed)),
		faker: gofakeit.New(seed),
	}
}

// ClearAll removes every post and user.
func (s *Seeder) ClearAll() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Post{}).Error; err != nil {
			return fmt.Errorf("clear posts: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("clear users: %w", err)
		}
		return nil
	})
}

// Run creates the configured number of users, then posts spread randomly across them.
func (s *Seeder) Run(ctx context.Context) ([]*models.User, []*models.Post, error) {
	hash := DefaultPassword
	if !s.opts.SkipBcrypt {
		h, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hash seed password: %w", err)
		}
		hash = string(h)
	}

	users := make([]*models.User, 0, s.opts.NumUsers)
	for i := 0; i < s.opts.NumUsers; i++ {
		u := s.buildUser(i, hash)
		if err := s.store.Users().Create(ctx, u); err != nil {
			return nil, nil, fmt.Errorf("create user %d: %w", i, err)
		}
		users = append(users, u)
	}
	if len(users) == 0 {
		return users, nil, nil
	}

	posts := make([]*models.Post, 0, s.opts.NumPosts)
	for i := 0; i < s.opts.NumPosts; i++ {
		owner := users[s.rng.Intn(len(users))]
		p := s.buildPost(owner)
		err := s.store.InTx(ctx, func(tx repository.Store) error {
			if err := tx.Posts().Create(ctx, p); err != nil {
				return err
			}
			owner.AddPost(p.ID)
			return tx.Users().Save(ctx, owner)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create post %d: %w", i, err)
		}
		posts = append(posts, p)
	}

	middleware.Logger.Info("seed complete", "users", len(users), "posts", len(posts))
	return users, posts, nil
}

func (s *Seeder) buildUser(i int, hash string) *models.User {
	first, last := s.faker.FirstName(), s.faker.LastName()
	return &models.User{
		// The index keeps emails unique even when the faker repeats a name.
		Email:        fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), i),
		PasswordHash: hash,
		Name:         first + " " + last,
		Status:       s.faker.Sentence(4),
		PostIDs:      []string{},
	}
}

func (s *Seeder) buildPost(owner *models.User) *models.Post {
	back := time.Duration(s.rng.Intn(s.opts.MaxDays*24*60)) * time.Minute
	created := time.Now().Add(-back)
	return &models.Post{
		Title:     strings.TrimSuffix(s.faker.Sentence(5), "."),
		Content:   s.faker.Paragraph(1, 3, 8, "\n"),
		ImageURL:  fmt.Sprintf("https://picsum.photos/seed/%s/800/800", s.faker.UUID()),
		CreatorID: owner.ID,
		CreatedAt: created,
		UpdatedAt: created,
	}
}
