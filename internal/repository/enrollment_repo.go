package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/samg2014/VirtualHand/internal/models"
)

// EnrollmentRepository persists course memberships.
type EnrollmentRepository interface {
	FindOrCreate(ctx context.Context, courseID, studentID uint, admitted bool) (models.Enrollment, error)
	CountValid(ctx context.Context, studentID, courseID uint) (int64, error)
	ListEnrolled(ctx context.Context, studentID uint) ([]models.Enrollment, error)
	InvalidateByCourse(ctx context.Context, courseID uint) (int64, error)
}

type enrollmentRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewEnrollmentRepository constructs a GORM-backed enrollment repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db, now: time.Now}
}

// FindOrCreate returns the valid enrollment for the pair, inserting one when none exists.
// The partial unique index on valid pairs makes concurrent calls converge on one row.
func (r *enrollmentRepository) FindOrCreate(ctx context.Context, courseID, studentID uint, admitted bool) (models.Enrollment, error) {
	enrollment := models.Enrollment{
		StudentID:   studentID,
		CourseID:    courseID,
		Admitted:    admitted,
		Valid:       true,
		RequestTime: r.now().UTC(),
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&enrollment).Error; err != nil {
		return models.Enrollment{}, err
	}

	var stored models.Enrollment
	if err := r.db.WithContext(ctx).
		Where("course_id = ? AND student_id = ? AND valid = ?", courseID, studentID, true).
		First(&stored).Error; err != nil {
		return models.Enrollment{}, err
	}
	return stored, nil
}

func (r *enrollmentRepository) CountValid(ctx context.Context, studentID, courseID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ? AND valid = ?", studentID, courseID, true).
		Count(&count).Error
	return count, err
}

func (r *enrollmentRepository) ListEnrolled(ctx context.Context, studentID uint) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := r.db.WithContext(ctx).
		Joins("JOIN courses ON courses.id = enrollments.course_id AND courses.valid = ?", true).
		Where("enrollments.student_id = ? AND enrollments.valid = ?", studentID, true).
		Preload("Course").
		Order("courses.name ASC").
		Find(&enrollments).Error; err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *enrollmentRepository) InvalidateByCourse(ctx context.Context, courseID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ? AND valid = ?", courseID, true).
		Update("valid", false)
	return result.RowsAffected, result.Error
}
