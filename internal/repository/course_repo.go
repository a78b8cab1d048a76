package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/samg2014/VirtualHand/internal/models"
)

// CourseRepository persists courses.
type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByID(ctx context.Context, id uint) (models.Course, error)
	GetValidByKey(ctx context.Context, key string) (models.Course, error)
	CountTaughtBy(ctx context.Context, courseID, teacherID uint) (int64, error)
	ListTaughtBy(ctx context.Context, teacherID uint) ([]models.Course, error)
	UpdateName(ctx context.Context, id uint, name string) error
	UpdateKey(ctx context.Context, id uint, key string) error
	Invalidate(ctx context.Context, id uint) error
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository constructs a GORM-backed course repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

func (r *courseRepository) GetByID(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) GetValidByKey(ctx context.Context, key string) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).
		Where("course_key = ? AND valid = ?", key, true).
		First(&course).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) CountTaughtBy(ctx context.Context, courseID, teacherID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ? AND teacher_id = ? AND valid = ?", courseID, teacherID, true).
		Count(&count).Error
	return count, err
}

func (r *courseRepository) ListTaughtBy(ctx context.Context, teacherID uint) ([]models.Course, error) {
	var courses []models.Course
	if err := r.db.WithContext(ctx).
		Where("teacher_id = ? AND valid = ?", teacherID, true).
		Order("name ASC").
		Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *courseRepository) UpdateName(ctx context.Context, id uint, name string) error {
	return r.updateColumn(ctx, id, "name", name)
}

func (r *courseRepository) UpdateKey(ctx context.Context, id uint, key string) error {
	return r.updateColumn(ctx, id, "course_key", key)
}

func (r *courseRepository) Invalidate(ctx context.Context, id uint) error {
	return r.updateColumn(ctx, id, "valid", false)
}

func (r *courseRepository) updateColumn(ctx context.Context, id uint, column string, value interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ?", id).
		Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
