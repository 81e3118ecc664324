package repository

import (
	"context"
	"sync"

	"socialfeed/internal/cache"

	"gorm.io/gorm"
)

// Store groups the post and user adapters and runs multi-record writes atomically.
type Store interface {
	Posts() PostRepository
	Users() UserRepository
	// InTx runs fn with adapters bound to a single transaction. fn returning an
	// error rolls the transaction back. Nested calls reuse the outer transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

type gormStore struct {
	db    *gorm.DB
	posts *postRepository
	users *userRepository
	tx    *txState
}

// NewStore returns a Store backed by db.
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:    db,
		posts: &postRepository{db: db},
		users: &userRepository{db: db},
	}
}

func (s *gormStore) Posts() PostRepository { return s.posts }

func (s *gormStore) Users() UserRepository { return s.users }

func (s *gormStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	state := &txState{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{
			db:    tx,
			posts: &postRepository{db: tx, tx: state},
			users: &userRepository{db: tx},
			tx:    state,
		})
	})
	if err != nil {
		return classify(err, "record")
	}

	for _, key := range state.keys() {
		cache.Invalidate(ctx, key)
	}
	return nil
}

// txState collects cache keys touched inside a transaction.
type txState struct {
	mu      sync.Mutex
	pending []string
}

func (t *txState) queue(key string) {
	t.mu.Lock()
	t.pending = append(t.pending, key)
	t.mu.Unlock()
}

func (t *txState) keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.pending...)
}
