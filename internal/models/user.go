package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultStatus is assigned to newly registered users.
const DefaultStatus = "I am new!"

// User represents an account that can author posts.
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `gorm:"not null" json:"name"`
	Status       string    `gorm:"not null;default:'I am new!'" json:"status"`
	PostIDs      []string  `gorm:"serializer:json;type:text" json:"postIds"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a UUID and the default status.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = DefaultStatus
	}
	return nil
}

// AddPost appends postID to the user's post list unless already present.
func (u *User) AddPost(postID string) {
	if !slices.Contains(u.PostIDs, postID) {
		u.PostIDs = append(u.PostIDs, postID)
	}
}

// RemovePost drops every occurrence of postID and reports whether one was found.
func (u *User) RemovePost(postID string) bool {
	before := len(u.PostIDs)
	u.PostIDs = slices.DeleteFunc(u.PostIDs, func(id string) bool { return id == postID })
	return len(u.PostIDs) != before
}
