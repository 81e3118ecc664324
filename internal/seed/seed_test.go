package seed

import (
	"context"
	"testing"
	"unicode/utf8"

	"socialfeed/internal/models"
	"socialfeed/internal/testutil"
	"socialfeed/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeeder_RunLinksPostsToOwners(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, Options{NumUsers: 3, NumPosts: 10, SkipBcrypt: true}, 42)

	users, posts, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	require.Len(t, posts, 10)

	linked := 0
	for _, u := range users {
		var stored models.User
		require.NoError(t, db.First(&stored, "id = ?", u.ID).Error)
		linked += len(stored.PostIDs)
		for _, id := range stored.PostIDs {
			var p models.Post
			require.NoError(t, db.First(&p, "id = ?", id).Error)
			assert.Equal(t, u.ID, p.CreatorID)
		}
	}
	assert.Equal(t, 10, linked)

	for _, p := range posts {
		assert.GreaterOrEqual(t, utf8.RuneCountInString(p.Title), validation.MinTextLength)
		assert.NotEmpty(t, p.ImageURL)
	}
}

func TestSeeder_ClearAll(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, Options{NumUsers: 2, NumPosts: 2, SkipBcrypt: true}, 7)
	_, _, err := s.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.ClearAll())

	var users, posts int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	assert.Zero(t, users)
	assert.Zero(t, posts)
}

func TestSeeder_NoUsersNoPosts(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	users, posts, err := NewSeeder(db, Options{NumPosts: 5, SkipBcrypt: true}, 1).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Empty(t, posts)
}
