package dto

import (
	"time"

	"github.com/samg2014/VirtualHand/internal/models"
)

// CourseCreateRequest is the payload for creating a course.
type CourseCreateRequest struct {
	CourseName string `json:"courseName" validate:"max=255"`
}

// CourseRenameRequest is the payload for renaming a course.
type CourseRenameRequest struct {
	CourseID   uint   `json:"courseId"`
	CourseName string `json:"courseName" validate:"max=255"`
}

// CourseJoinRequest carries the join key a student received from the teacher.
type CourseJoinRequest struct {
	CourseKey string `json:"courseKey" validate:"required,max=32"`
}

// CourseActionResponse reports the outcome of a course mutation.
type CourseActionResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	CourseID   uint   `json:"courseId,omitempty"`
	CourseName string `json:"courseName,omitempty"`
}

// CourseKeyResponse carries the join key of a course.
type CourseKeyResponse struct {
	CID uint   `json:"cid"`
	Key string `json:"key"`
}

// CourseResponse is the serialized representation of a course.
type CourseResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"courseName"`
	TeacherID uint      `json:"teacherId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewCourseResponse converts a course model into a DTO.
func NewCourseResponse(course models.Course) CourseResponse {
	return CourseResponse{
		ID:        course.ID,
		Name:      course.Name,
		TeacherID: course.TeacherID,
		CreatedAt: course.CreatedAt,
	}
}

// NewCourseResponseSlice converts course models into DTOs.
func NewCourseResponseSlice(courses []models.Course) []CourseResponse {
	out := make([]CourseResponse, 0, len(courses))
	for _, course := range courses {
		out = append(out, NewCourseResponse(course))
	}
	return out
}

// EnrollmentResponse describes a student's membership in a course.
type EnrollmentResponse struct {
	ID          uint           `json:"id"`
	Course      CourseResponse `json:"course"`
	Admitted    bool           `json:"admitted"`
	RequestTime time.Time      `json:"requestTime"`
}

// NewEnrollmentResponse converts an enrollment with its preloaded course into a DTO.
func NewEnrollmentResponse(enrollment models.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:          enrollment.ID,
		Course:      NewCourseResponse(enrollment.Course),
		Admitted:    enrollment.Admitted,
		RequestTime: enrollment.RequestTime,
	}
}

// NewEnrollmentResponseSlice converts enrollments into DTOs.
func NewEnrollmentResponseSlice(enrollments []models.Enrollment) []EnrollmentResponse {
	out := make([]EnrollmentResponse, 0, len(enrollments))
	for _, enrollment := range enrollments {
		out = append(out, NewEnrollmentResponse(enrollment))
	}
	return out
}
