package models

import "time"

// Course is a class taught by a teacher. Deleting a course only clears Valid.
type Course struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	TeacherID uint      `gorm:"index;not null" json:"teacher_id"`
	Teacher   User      `gorm:"foreignKey:TeacherID" json:"-"`
	CourseKey string    `gorm:"size:32;index" json:"-"`
	Valid     bool      `gorm:"not null;default:true" json:"valid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Enrollment links a student to a course. At most one valid enrollment exists per pair.
type Enrollment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StudentID   uint      `gorm:"not null;uniqueIndex:idx_enrollment_valid_pair,where:valid = true" json:"student_id"`
	Student     User      `gorm:"foreignKey:StudentID" json:"-"`
	CourseID    uint      `gorm:"not null;index;uniqueIndex:idx_enrollment_valid_pair,where:valid = true" json:"course_id"`
	Course      Course    `gorm:"foreignKey:CourseID" json:"-"`
	Admitted    bool      `gorm:"not null;default:false" json:"admitted"`
	Valid       bool      `gorm:"not null;default:true" json:"valid"`
	RequestTime time.Time `gorm:"not null" json:"request_time"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
