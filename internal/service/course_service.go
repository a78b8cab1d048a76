package service

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/samg2014/VirtualHand/internal/dto"
	"github.com/samg2014/VirtualHand/internal/models"
	"github.com/samg2014/VirtualHand/internal/observability"
	"github.com/samg2014/VirtualHand/internal/repository"
	appErrors "github.com/samg2014/VirtualHand/pkg/errors"
)

// Course registry messages shown to users.
const (
	MsgCourseCreated        = "Class created successfully."
	MsgCourseBlankName      = "Class not created: Name must not be blank!"
	MsgCourseInvalidOwner   = "Class not created: user ID is invalid"
	MsgCourseRenamed        = "Class renamed successfully."
	MsgCourseRenameBlank    = "Class not renamed: Name must not be blank!"
	MsgCourseRenameNotFound = "Class not renamed: Invalid course ID"
	MsgCourseDeleted        = "Successfully deleted class"
	MsgCourseNotTaught      = "Teacher does not teach class!"
	MsgCourseNotFound       = "Invalid course ID"
	MsgCourseKeyInvalid     = "Invalid course key"
	MsgCourseKeyAssigned    = "New course key assigned"
	MsgCourseJoined         = "Successfully joined class"
	MsgStudentNotInClass    = "Student not in class!"
)

// CourseService exposes the course and enrollment registry.
type CourseService interface {
	Create(ctx context.Context, ownerID uint, req dto.CourseCreateRequest) (dto.CourseActionResponse, error)
	Rename(ctx context.Context, teacherID uint, req dto.CourseRenameRequest) (dto.CourseActionResponse, error)
	Delete(ctx context.Context, teacherID, courseID uint) (dto.CourseActionResponse, error)
	RetrieveKey(ctx context.Context, teacherID, courseID uint) (dto.CourseKeyResponse, error)
	RotateKey(ctx context.Context, teacherID, courseID uint) error
	Join(ctx context.Context, studentID uint, req dto.CourseJoinRequest) (dto.EnrollmentResponse, error)
	ListTaught(ctx context.Context, teacherID uint) ([]dto.CourseResponse, error)
	ListEnrolled(ctx context.Context, studentID uint) ([]dto.EnrollmentResponse, error)
	VerifyCourseTaughtBy(ctx context.Context, courseID, teacherID uint) error
	ConfirmStudentInClass(ctx context.Context, studentID, courseID uint) error
}

type courseService struct {
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	users       repository.UserRepository
	keys        KeyGenerator
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewCourseService constructs the course registry service.
func NewCourseService(courses repository.CourseRepository, enrollments repository.EnrollmentRepository, users repository.UserRepository, keys KeyGenerator, logger zerolog.Logger) CourseService {
	if keys == nil {
		keys = NewCourseKeyGenerator()
	}

	return &courseService{
		courses:     courses,
		enrollments: enrollments,
		users:       users,
		keys:        keys,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "course_service").Logger(),
		tracer:      otel.Tracer("github.com/samg2014/VirtualHand/internal/service/course"),
	}
}

func (s *courseService) Create(ctx context.Context, ownerID uint, req dto.CourseCreateRequest) (dto.CourseActionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "course.create", trace.WithAttributes(attribute.Int64("course.owner_id", int64(ownerID))))
	defer span.End()

	ownerFound := true
	if _, err := s.users.GetByID(ctx, ownerID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(err)
			return dto.CourseActionResponse{}, err
		}
		ownerFound = false
	}

	name := s.cleanName(req.CourseName)
	if name == "" {
		span.SetStatus(codes.Error, "blank name")
		observability.CourseOperations().WithLabelValues("create", "rejected").Inc()
		return dto.CourseActionResponse{}, appErrors.Clone(appErrors.ErrValidation, MsgCourseBlankName)
	}
	if !ownerFound {
		span.SetStatus(codes.Error, "unknown owner")
		observability.CourseOperations().WithLabelValues("create", "rejected").Inc()
		return dto.CourseActionResponse{}, appErrors.Clone(appErrors.ErrValidation, MsgCourseInvalidOwner)
	}

	course := models.Course{Name: name, TeacherID: ownerID, Valid: true}
	if err := s.courses.Create(ctx, &course); err != nil {
		span.RecordError(err)
		return dto.CourseActionResponse{}, err
	}

	observability.CourseOperations().WithLabelValues("create", "ok").Inc()
	s.logger.Info().Uint("course_id", course.ID).Uint("teacher_id", ownerID).Msg("course created")

	return dto.CourseActionResponse{
		Success:    true,
		Message:    MsgCourseCreated,
		CourseID:   course.ID,
		CourseName: course.Name,
	}, nil
}

func (s *courseService) Rename(ctx context.Context, teacherID uint, req dto.CourseRenameRequest) (dto.CourseActionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "course.rename", trace.WithAttributes(attribute.Int64("course.id", int64(req.CourseID))))
	defer span.End()

	name := s.cleanName(req.CourseName)
	if name == "" {
		span.SetStatus(codes.Error, "blank name")
		observability.CourseOperations().WithLabelValues("rename", "rejected").Inc()
		return dto.CourseActionResponse{}, appErrors.Clone(appErrors.ErrValidation, MsgCourseRenameBlank)
	}

	course, err := s.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.CourseOperations().WithLabelValues("rename", "rejected").Inc()
			return dto.CourseActionResponse{}, appErrors.Clone(appErrors.ErrNotFound, MsgCourseRenameNotFound)
		}
		span.RecordError(err)
		return dto.CourseActionResponse{}, err
	}
	if course.TeacherID != teacherID {
		observability.CourseOperations().WithLabelValues("rename", "forbidden").Inc()
		return dto.CourseActionResponse{}, appErrors.Clone(appErrors.ErrForbidden, MsgCourseNotTaught)
	}

	if err := s.courses.UpdateName(ctx, course.ID, name); err != nil {
		span.RecordError(err)
		return dto.CourseActionResponse{}, err
	}

	observability.CourseOperations().WithLabelValues("rename", "ok").Inc()
	return dto.CourseActionResponse{
		Success:    true,
		Message:    MsgCourseRenamed,
		CourseID:   course.ID,
		CourseName: name,
	}, nil
}

// Delete invalidates the course and then its enrollments. The two updates are not
// transactional; a failure between them leaves enrollments pointing at an invalid course.
func (s *courseService) Delete(ctx context.Context, teacherID, courseID uint) (dto.CourseActionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "course.delete", trace.WithAttributes(attribute.Int64("course.id", int64(courseID))))
	defer span.End()

	if err := s.VerifyCourseTaughtBy(ctx, courseID, teacherID); err != nil {
		observability.CourseOperations().WithLabelValues("delete", "forbidden").Inc()
		return dto.CourseActionResponse{}, err
	}

	if err := s.courses.Invalidate(ctx, courseID); err != nil {
		span.RecordError(err)
		return dto.CourseActionResponse{}, err
	}

	affected, err := s.enrollments.InvalidateByCourse(ctx, courseID)
	if err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Uint("course_id", courseID).Msg("course invalidated but enrollments were not")
		return dto.CourseActionResponse{}, err
	}

	observability.CourseOperations().WithLabelValues("delete", "ok").Inc()
	s.logger.Info().Uint("course_id", courseID).Int64("enrollments", affected).Msg("course deleted")

	return dto.CourseActionResponse{Success: true, Message: MsgCourseDeleted}, nil
}

func (s *courseService) RetrieveKey(ctx context.Context, teacherID, courseID uint) (dto.CourseKeyResponse, error) {
	ctx, span := s.tracer.Start(ctx, "course.retrieve_key", trace.WithAttributes(attribute.Int64("course.id", int64(courseID))))
	defer span.End()

	course, err := s.ownedCourse(ctx, teacherID, courseID)
	if err != nil {
		return dto.CourseKeyResponse{}, err
	}

	if course.CourseKey != "" {
		return dto.CourseKeyResponse{CID: course.ID, Key: course.CourseKey}, nil
	}

	key, err := s.keys.Generate()
	if err != nil {
		span.RecordError(err)
		return dto.CourseKeyResponse{}, err
	}
	if err := s.courses.UpdateKey(ctx, course.ID, key); err != nil {
		span.RecordError(err)
		return dto.CourseKeyResponse{}, err
	}

	observability.CourseOperations().WithLabelValues("issue_key", "ok").Inc()
	return dto.CourseKeyResponse{CID: course.ID, Key: key}, nil
}

func (s *courseService) RotateKey(ctx context.Context, teacherID, courseID uint) error {
	ctx, span := s.tracer.Start(ctx, "course.rotate_key", trace.WithAttributes(attribute.Int64("course.id", int64(courseID))))
	defer span.End()

	course, err := s.ownedCourse(ctx, teacherID, courseID)
	if err != nil {
		return err
	}

	key, err := s.keys.Generate()
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.courses.UpdateKey(ctx, course.ID, key); err != nil {
		span.RecordError(err)
		return err
	}

	observability.CourseOperations().WithLabelValues("rotate_key", "ok").Inc()
	return nil
}

func (s *courseService) Join(ctx context.Context, studentID uint, req dto.CourseJoinRequest) (dto.EnrollmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "course.join", trace.WithAttributes(attribute.Int64("course.student_id", int64(studentID))))
	defer span.End()

	key := strings.ToUpper(strings.TrimSpace(req.CourseKey))
	if key == "" {
		return dto.EnrollmentResponse{}, appErrors.Clone(appErrors.ErrNotFound, MsgCourseKeyInvalid)
	}

	course, err := s.courses.GetValidByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.CourseOperations().WithLabelValues("join", "rejected").Inc()
			return dto.EnrollmentResponse{}, appErrors.Clone(appErrors.ErrNotFound, MsgCourseKeyInvalid)
		}
		span.RecordError(err)
		return dto.EnrollmentResponse{}, err
	}

	enrollment, err := s.enrollments.FindOrCreate(ctx, course.ID, studentID, true)
	if err != nil {
		span.RecordError(err)
		return dto.EnrollmentResponse{}, err
	}
	enrollment.Course = course

	observability.CourseOperations().WithLabelValues("join", "ok").Inc()
	return dto.NewEnrollmentResponse(enrollment), nil
}

func (s *courseService) ListTaught(ctx context.Context, teacherID uint) ([]dto.CourseResponse, error) {
	courses, err := s.courses.ListTaughtBy(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	return dto.NewCourseResponseSlice(courses), nil
}

func (s *courseService) ListEnrolled(ctx context.Context, studentID uint) ([]dto.EnrollmentResponse, error) {
	enrollments, err := s.enrollments.ListEnrolled(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return dto.NewEnrollmentResponseSlice(enrollments), nil
}

func (s *courseService) VerifyCourseTaughtBy(ctx context.Context, courseID, teacherID uint) error {
	count, err := s.courses.CountTaughtBy(ctx, courseID, teacherID)
	if err != nil {
		return err
	}
	if count == 0 {
		return appErrors.Clone(appErrors.ErrForbidden, MsgCourseNotTaught)
	}
	return nil
}

func (s *courseService) ConfirmStudentInClass(ctx context.Context, studentID, courseID uint) error {
	count, err := s.enrollments.CountValid(ctx, studentID, courseID)
	if err != nil {
		return err
	}
	if count == 0 {
		return appErrors.Clone(appErrors.ErrValidation, MsgStudentNotInClass)
	}
	return nil
}

func (s *courseService) ownedCourse(ctx context.Context, teacherID, courseID uint) (models.Course, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Course{}, appErrors.Clone(appErrors.ErrNotFound, MsgCourseNotFound)
		}
		return models.Course{}, err
	}
	if course.TeacherID != teacherID {
		return models.Course{}, appErrors.Clone(appErrors.ErrForbidden, MsgCourseNotTaught)
	}
	return course, nil
}

func (s *courseService) cleanName(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(raw)))
}
