package models

import "time"

// Who closed a request.
const (
	ResolvedByStudent = "student"
	ResolvedByTeacher = "teacher"
)

// Request kinds tracked by the lifecycle engine.
const (
	KindAssistance = "assistance"
	KindHallPass   = "hallpass"
)

// AssistanceRequest is a student's raised hand in a course. At most one unresolved
// request exists per (student, course).
type AssistanceRequest struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	StudentID    uint       `gorm:"not null;uniqueIndex:idx_assistance_open_pair,where:resolved = false" json:"student_id"`
	Student      User       `gorm:"foreignKey:StudentID" json:"-"`
	CourseID     uint       `gorm:"not null;index;uniqueIndex:idx_assistance_open_pair,where:resolved = false" json:"course_id"`
	Course       Course     `gorm:"foreignKey:CourseID" json:"-"`
	RequestTime  time.Time  `gorm:"not null;index" json:"request_time"`
	Resolved     bool       `gorm:"not null;default:false" json:"resolved"`
	ResolvedType string     `gorm:"size:16" json:"resolved_type,omitempty"`
	ResolvedTime *time.Time `json:"resolved_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HallPassRequest is a student's request to leave the room. A teacher may grant it before
// it is resolved.
type HallPassRequest struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	StudentID    uint       `gorm:"not null;uniqueIndex:idx_hallpass_open_pair,where:resolved = false" json:"student_id"`
	Student      User       `gorm:"foreignKey:StudentID" json:"-"`
	CourseID     uint       `gorm:"not null;index;uniqueIndex:idx_hallpass_open_pair,where:resolved = false" json:"course_id"`
	Course       Course     `gorm:"foreignKey:CourseID" json:"-"`
	RequestTime  time.Time  `gorm:"not null;index" json:"request_time"`
	Granted      bool       `gorm:"not null;default:false" json:"granted"`
	GrantedTime  *time.Time `json:"granted_time,omitempty"`
	Resolved     bool       `gorm:"not null;default:false" json:"resolved"`
	ResolvedType string     `gorm:"size:16" json:"resolved_type,omitempty"`
	ResolvedTime *time.Time `json:"resolved_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RequestSnapshot is the kind-independent view of a lifecycle request.
type RequestSnapshot struct {
	ID           uint
	Kind         string
	Student      User
	CourseID     uint
	RequestTime  time.Time
	Granted      bool
	GrantedTime  *time.Time
	Resolved     bool
	ResolvedType string
	ResolvedTime *time.Time
}

// LifecycleRequest constrains the record types handled by the lifecycle engine.
type LifecycleRequest interface {
	AssistanceRequest | HallPassRequest
	Snapshot() RequestSnapshot
}

// Snapshot returns the kind-independent view of the request.
func (r AssistanceRequest) Snapshot() RequestSnapshot {
	return RequestSnapshot{
		ID:           r.ID,
		Kind:         KindAssistance,
		Student:      r.Student,
		CourseID:     r.CourseID,
		RequestTime:  r.RequestTime,
		Resolved:     r.Resolved,
		ResolvedType: r.ResolvedType,
		ResolvedTime: r.ResolvedTime,
	}
}

// Snapshot returns the kind-independent view of the request.
func (r HallPassRequest) Snapshot() RequestSnapshot {
	return RequestSnapshot{
		ID:           r.ID,
		Kind:         KindHallPass,
		Student:      r.Student,
		CourseID:     r.CourseID,
		RequestTime:  r.RequestTime,
		Granted:      r.Granted,
		GrantedTime:  r.GrantedTime,
		Resolved:     r.Resolved,
		ResolvedType: r.ResolvedType,
		ResolvedTime: r.ResolvedTime,
	}
}
