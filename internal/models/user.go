package models

import "time"

// Roles a user account can hold.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User is an account that teaches or attends courses.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Username      string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash  string    `gorm:"size:255;not null" json:"-"`
	Email         string    `gorm:"size:255" json:"email,omitempty"`
	EmailVerified bool      `gorm:"not null;default:false" json:"email_verified"`
	Role          string    `gorm:"size:16;index;not null" json:"role"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
