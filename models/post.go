package models

import (
	"time"

	"gorm.io/gorm"
)

// Author is the denormalized snapshot of the user who created a post. It is a
// copy taken at creation time, not a live reference, so display names stay as
// they were when the post was written.
type Author struct {
	ID   string `gorm:"size:64;not null;index" json:"id"`
	Name string `gorm:"size:128;not null" json:"name"`
}

// Post represents an idea shared on the platform.
type Post struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ExternalID string     `gorm:"size:64;not null" json:"external_id"`
	Title      string     `gorm:"size:255;not null" json:"title"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	Author     Author     `gorm:"embedded;embeddedPrefix:author_" json:"author"`
	Tags       StringList `gorm:"type:text" json:"tags"`
	Business   StringList `gorm:"type:text" json:"business"`
	Status     string     `gorm:"size:32;default:'draft'" json:"status"`
	Timestamp  time.Time  `json:"timestamp"`
	Upvotes    int        `gorm:"default:0" json:"upvotes"`
	Downvotes  int        `gorm:"default:0" json:"downvotes"`
	Likes      StringList `gorm:"type:text" json:"likes"`
	Resource   string     `gorm:"size:1024" json:"resource,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Comments   []Comment  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments"`
}

// BeforeCreate fills defaults the caller may omit.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	if p.Status == "" {
		p.Status = "draft"
	}
	if p.Tags == nil {
		p.Tags = StringList{}
	}
	if p.Business == nil {
		p.Business = StringList{}
	}
	if p.Likes == nil {
		p.Likes = StringList{}
	}
	return nil
}
