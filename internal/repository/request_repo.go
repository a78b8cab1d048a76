package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/samg2014/VirtualHand/internal/models"
)

const defaultHistoryLimit = 200

// RequestRepository persists one kind of lifecycle request.
type RequestRepository[T models.LifecycleRequest] interface {
	// CreateOpen inserts an open request unless one already exists for the pair and
	// reports whether a row was written.
	CreateOpen(ctx context.Context, studentID, courseID uint, requestTime time.Time) (bool, error)
	CountOpen(ctx context.Context, studentID, courseID uint) (int64, error)
	GetByID(ctx context.Context, id uint) (T, error)
	ResolveOpenByStudent(ctx context.Context, studentID, courseID uint, at time.Time) (int64, error)
	ResolveByID(ctx context.Context, id uint, at time.Time) error
	ResolveOpenByCourse(ctx context.Context, courseID uint, at time.Time) (int64, error)
	ListOpen(ctx context.Context, courseIDs []uint) ([]T, error)
	History(ctx context.Context, courseID uint, limit int) ([]T, error)
}

// HallPassRepository adds the granted sub-state on top of the shared lifecycle.
type HallPassRepository interface {
	RequestRepository[models.HallPassRequest]
	Grant(ctx context.Context, id uint, at time.Time) error
}

type requestRepository[T models.LifecycleRequest] struct {
	db      *gorm.DB
	newOpen func(studentID, courseID uint, requestTime time.Time) T
}

type hallPassRepository struct {
	*requestRepository[models.HallPassRequest]
}

// NewAssistanceRepository constructs a GORM-backed repository for assistance requests.
func NewAssistanceRepository(db *gorm.DB) RequestRepository[models.AssistanceRequest] {
	return &requestRepository[models.AssistanceRequest]{
		db: db,
		newOpen: func(studentID, courseID uint, requestTime time.Time) models.AssistanceRequest {
			return models.AssistanceRequest{StudentID: studentID, CourseID: courseID, RequestTime: requestTime}
		},
	}
}

// NewHallPassRepository constructs a GORM-backed repository for hall pass requests.
func NewHallPassRepository(db *gorm.DB) HallPassRepository {
	return &hallPassRepository{
		requestRepository: &requestRepository[models.HallPassRequest]{
			db: db,
			newOpen: func(studentID, courseID uint, requestTime time.Time) models.HallPassRequest {
				return models.HallPassRequest{StudentID: studentID, CourseID: courseID, RequestTime: requestTime}
			},
		},
	}
}

func (r *requestRepository[T]) CreateOpen(ctx context.Context, studentID, courseID uint, requestTime time.Time) (bool, error) {
	record := r.newOpen(studentID, courseID, requestTime)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *requestRepository[T]) CountOpen(ctx context.Context, studentID, courseID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(new(T)).
		Where("student_id = ? AND course_id = ? AND resolved = ?", studentID, courseID, false).
		Count(&count).Error
	return count, err
}

func (r *requestRepository[T]) GetByID(ctx context.Context, id uint) (T, error) {
	var record T
	if err := r.db.WithContext(ctx).First(&record, id).Error; err != nil {
		var zero T
		return zero, err
	}
	return record, nil
}

func (r *requestRepository[T]) ResolveOpenByStudent(ctx context.Context, studentID, courseID uint, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(new(T)).
		Where("student_id = ? AND course_id = ? AND resolved = ?", studentID, courseID, false).
		Updates(resolution(models.ResolvedByStudent, at))
	return result.RowsAffected, result.Error
}

func (r *requestRepository[T]) ResolveByID(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(new(T)).
		Where("id = ?", id).
		Updates(resolution(models.ResolvedByTeacher, at))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *requestRepository[T]) ResolveOpenByCourse(ctx context.Context, courseID uint, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(new(T)).
		Where("course_id = ? AND resolved = ?", courseID, false).
		Updates(resolution(models.ResolvedByTeacher, at))
	return result.RowsAffected, result.Error
}

func (r *requestRepository[T]) ListOpen(ctx context.Context, courseIDs []uint) ([]T, error) {
	if len(courseIDs) == 0 {
		return []T{}, nil
	}

	var records []T
	if err := r.db.WithContext(ctx).
		Preload("Student").
		Where("course_id IN ? AND resolved = ?", courseIDs, false).
		Order("request_time ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *requestRepository[T]) History(ctx context.Context, courseID uint, limit int) ([]T, error) {
	if limit <= 0 || limit > 1000 {
		limit = defaultHistoryLimit
	}

	var records []T
	if err := r.db.WithContext(ctx).
		Preload("Student").
		Where("course_id = ?", courseID).
		Order("request_time DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *hallPassRepository) Grant(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.HallPassRequest{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{"granted": true, "granted_time": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func resolution(resolvedType string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"resolved":      true,
		"resolved_type": resolvedType,
		"resolved_time": at,
	}
}
