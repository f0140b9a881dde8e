package model

import (
	"time"

	"gorm.io/gorm"
)

// Category is a policy category (health, funeral, ...). Administration of
// categories lives outside this service; rows are read-only here.
type Category struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	Name        string         `json:"name" gorm:"not null"`
	Slug        string         `json:"slug" gorm:"not null;uniqueIndex"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
