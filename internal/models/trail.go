package models

import "time"

// Trail groups an ordered set of modules into a learning track.
type Trail struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Module is a single unit of study inside a trail.
type Module struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TrailID      uint      `gorm:"not null;index" json:"trail_id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	Type         string    `gorm:"size:32" json:"type"`
	Content      string    `gorm:"type:text" json:"content"`
	Requirements string    `gorm:"type:text" json:"requirements"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Trail        Trail     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"trail"`
}
