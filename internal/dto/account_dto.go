package dto

import (
	"time"

	"github.com/samg2014/VirtualHand/internal/models"
)

// SignupRequest is the payload to create an account.
type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
	Role     string `json:"role" validate:"required,oneof=teacher student"`
}

// LoginRequest is the payload to obtain an access token.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

// ChangePasswordRequest is the payload for a user changing their own password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required,max=128"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=128"`
}

// ChangeStudentPasswordRequest is the payload for a teacher resetting a student's password.
type ChangeStudentPasswordRequest struct {
	CourseID  uint   `json:"courseId" validate:"required"`
	StudentID uint   `json:"studentId" validate:"required"`
	Password  string `json:"password" validate:"required,min=6,max=128"`
}

// RecoverPasswordRequest is the payload to reset a forgotten password by email.
type RecoverPasswordRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

// OperationResponse reports the outcome of an account operation.
type OperationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID            uint      `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewUserResponse converts a user model into a DTO.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Role:          user.Role,
		CreatedAt:     user.CreatedAt,
	}
}
