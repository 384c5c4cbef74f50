package models

import (
	"strings"
	"time"
)

// Submission represents work a student handed in for a module.
type Submission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ModuleID  uint      `gorm:"not null;index" json:"module_id"`
	StudentID uint      `gorm:"not null;index" json:"student_id"`
	Comment   string    `gorm:"type:text" json:"comment"`
	FileURL   string    `gorm:"size:512" json:"file_url"`
	GithubURL string    `gorm:"size:512" json:"github_url"`
	DeployURL string    `gorm:"size:512" json:"deploy_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Module    Module    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"module"`
}

// HasComment reports whether the student supplied non-blank free text.
func (s Submission) HasComment() bool {
	return strings.TrimSpace(s.Comment) != ""
}

// HasLink reports whether at least one artefact link was supplied.
func (s Submission) HasLink() bool {
	return s.FileURL != "" || s.GithubURL != "" || s.DeployURL != ""
}
