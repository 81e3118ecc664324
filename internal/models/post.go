// Package models contains data structures for the application's domain models.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post is a single feed entry owned by its creator.
type Post struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ImageURL  string    `gorm:"not null" json:"imageUrl"`
	CreatorID string    `gorm:"not null;index;size:36" json:"creatorId"`
	Creator   *User     `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarshalJSON renders Creator as its public summary so account fields never leak.
func (p Post) MarshalJSON() ([]byte, error) {
	type alias Post
	out := struct {
		alias
		Creator *CreatorSummary `json:"creator,omitempty"`
	}{alias: alias(p)}
	if p.Creator != nil {
		s := p.Creator.Summary()
		out.Creator = &s
	}
	return json.Marshal(out)
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (p *Post) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// CreatorSummary is the public projection of a post's creator.
type CreatorSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Summary returns the public projection of u.
func (u *User) Summary() CreatorSummary {
	return CreatorSummary{ID: u.ID, Name: u.Name}
}
