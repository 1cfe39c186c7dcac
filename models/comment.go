package models

import (
	"time"

	"gorm.io/gorm"
)

// Comment is a reply embedded in a post's lifecycle: it has no API surface of
// its own and is removed together with its parent.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	PostID    uint      `gorm:"index;not null" json:"post_id"`
	CommentID string    `gorm:"size:64;not null" json:"id"`
	Author    string    `gorm:"size:128;not null" json:"author"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Upvotes   int       `gorm:"default:0" json:"upvotes"`
	Downvotes int       `gorm:"default:0" json:"downvotes"`
}

// BeforeCreate stamps the comment with the server time.
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	return nil
}
