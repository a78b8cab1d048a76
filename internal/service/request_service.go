package service

import (
	"context"
	"errors"

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

// Broadcast event names emitted when requests change.
const (
	EventAssistanceModified = "Broadcast_AssistanceRequestModified"
	EventHallPassModified   = "Broadcast_HallPassRequestModified"
)

// Request lifecycle messages shown to users.
const (
	MsgRequestNotFound       = "Request not found"
	MsgHallPassAlreadyClosed = "Hall pass request already resolved"
)

// Broadcaster fans a notification out to every connected client.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload interface{})
}

// CourseVerifier confirms a teacher is the teacher of record for a course.
type CourseVerifier interface {
	VerifyCourseTaughtBy(ctx context.Context, courseID, teacherID uint) error
}

// RequestService drives the open/resolved lifecycle of one request kind.
type RequestService interface {
	Initiate(ctx context.Context, studentID, courseID uint) error
	ResolveByStudent(ctx context.Context, studentID, courseID uint) error
	ResolveByID(ctx context.Context, teacherID, requestID uint) error
	ResolveAllForCourse(ctx context.Context, teacherID, courseID uint) error
	Status(ctx context.Context, studentID, courseID uint) (bool, error)
	ListOpen(ctx context.Context, courseIDs []uint) ([]dto.RequestResponse, error)
	History(ctx context.Context, teacherID, courseID uint) ([]dto.RequestResponse, error)
}

// HallPassService adds the granted state to the request lifecycle.
type HallPassService interface {
	RequestService
	Grant(ctx context.Context, teacherID, requestID uint) error
}

type requestService[T models.LifecycleRequest] struct {
	repo        repository.RequestRepository[T]
	courses     CourseVerifier
	broadcaster Broadcaster
	clock       Clock
	kind        string
	event       string
	logger      zerolog.Logger
	tracer      trace.Tracer
}

type hallPassService struct {
	*requestService[models.HallPassRequest]
	passes repository.HallPassRepository
}

// NewAssistanceService constructs the lifecycle service for assistance requests.
func NewAssistanceService(repo repository.RequestRepository[models.AssistanceRequest], courses CourseVerifier, broadcaster Broadcaster, clock Clock, logger zerolog.Logger) RequestService {
	return newRequestService(repo, courses, broadcaster, clock, models.KindAssistance, EventAssistanceModified, logger)
}

// NewHallPassService constructs the lifecycle service for hall pass requests.
func NewHallPassService(repo repository.HallPassRepository, courses CourseVerifier, broadcaster Broadcaster, clock Clock, logger zerolog.Logger) HallPassService {
	return &hallPassService{
		requestService: newRequestService[models.HallPassRequest](repo, courses, broadcaster, clock, models.KindHallPass, EventHallPassModified, logger),
		passes:         repo,
	}
}

func newRequestService[T models.LifecycleRequest](repo repository.RequestRepository[T], courses CourseVerifier, broadcaster Broadcaster, clock Clock, kind, event string, logger zerolog.Logger) *requestService[T] {
	if clock == nil {
		clock = SystemClock{}
	}

	return &requestService[T]{
		repo:        repo,
		courses:     courses,
		broadcaster: broadcaster,
		clock:       clock,
		kind:        kind,
		event:       event,
		logger:      logger.With().Str("component", kind+"_service").Logger(),
		tracer:      otel.Tracer("github.com/samg2014/VirtualHand/internal/service/" + kind),
	}
}

// Initiate opens a request for the pair unless one is already open. Only a newly
// created request is announced.
func (s *requestService[T]) Initiate(ctx context.Context, studentID, courseID uint) error {
	ctx, span := s.start(ctx, "initiate", attribute.Int64("request.student_id", int64(studentID)), attribute.Int64("request.course_id", int64(courseID)))
	defer span.End()

	created, err := s.repo.CreateOpen(ctx, studentID, courseID, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return err
	}
	if !created {
		return nil
	}

	s.changed(ctx, "opened")
	return nil
}

func (s *requestService[T]) ResolveByStudent(ctx context.Context, studentID, courseID uint) error {
	ctx, span := s.start(ctx, "resolve_by_student", attribute.Int64("request.student_id", int64(studentID)), attribute.Int64("request.course_id", int64(courseID)))
	defer span.End()

	affected, err := s.repo.ResolveOpenByStudent(ctx, studentID, courseID, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return err
	}

	span.SetAttributes(attribute.Int64("request.affected", affected))
	s.changed(ctx, "resolved_by_student")
	return nil
}

func (s *requestService[T]) ResolveByID(ctx context.Context, teacherID, requestID uint) error {
	ctx, span := s.start(ctx, "resolve_by_id", attribute.Int64("request.id", int64(requestID)))
	defer span.End()

	record, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if err := s.courses.VerifyCourseTaughtBy(ctx, record.Snapshot().CourseID, teacherID); err != nil {
		span.SetStatus(codes.Error, "not teacher of record")
		return err
	}

	if err := s.repo.ResolveByID(ctx, requestID, s.clock.Now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, MsgRequestNotFound)
		}
		span.RecordError(err)
		return err
	}

	s.changed(ctx, "resolved_by_teacher")
	return nil
}

func (s *requestService[T]) ResolveAllForCourse(ctx context.Context, teacherID, courseID uint) error {
	ctx, span := s.start(ctx, "resolve_all", attribute.Int64("request.course_id", int64(courseID)))
	defer span.End()

	if err := s.courses.VerifyCourseTaughtBy(ctx, courseID, teacherID); err != nil {
		span.SetStatus(codes.Error, "not teacher of record")
		return err
	}

	affected, err := s.repo.ResolveOpenByCourse(ctx, courseID, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Info().Uint("course_id", courseID).Int64("resolved", affected).Msg("resolved all open requests")
	s.changed(ctx, "resolved_all")
	return nil
}

func (s *requestService[T]) Status(ctx context.Context, studentID, courseID uint) (bool, error) {
	count, err := s.repo.CountOpen(ctx, studentID, courseID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *requestService[T]) ListOpen(ctx context.Context, courseIDs []uint) ([]dto.RequestResponse, error) {
	records, err := s.repo.ListOpen(ctx, courseIDs)
	if err != nil {
		return nil, err
	}
	return snapshots(records), nil
}

func (s *requestService[T]) History(ctx context.Context, teacherID, courseID uint) ([]dto.RequestResponse, error) {
	if err := s.courses.VerifyCourseTaughtBy(ctx, courseID, teacherID); err != nil {
		return nil, err
	}

	records, err := s.repo.History(ctx, courseID, 0)
	if err != nil {
		return nil, err
	}
	return snapshots(records), nil
}

// Grant lets the teacher of record approve an open hall pass.
func (s *hallPassService) Grant(ctx context.Context, teacherID, requestID uint) error {
	ctx, span := s.start(ctx, "grant", attribute.Int64("request.id", int64(requestID)))
	defer span.End()

	record, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if err := s.courses.VerifyCourseTaughtBy(ctx, record.CourseID, teacherID); err != nil {
		span.SetStatus(codes.Error, "not teacher of record")
		return err
	}
	if record.Resolved {
		return appErrors.Clone(appErrors.ErrValidation, MsgHallPassAlreadyClosed)
	}

	if err := s.passes.Grant(ctx, requestID, s.clock.Now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErrors.Clone(appErrors.ErrValidation, MsgHallPassAlreadyClosed)
		}
		span.RecordError(err)
		return err
	}

	s.changed(ctx, "granted")
	return nil
}

func (s *requestService[T]) load(ctx context.Context, requestID uint) (T, error) {
	record, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return record, appErrors.Clone(appErrors.ErrNotFound, MsgRequestNotFound)
		}
		return record, err
	}
	return record, nil
}

func (s *requestService[T]) changed(ctx context.Context, transition string) {
	observability.LifecycleTransitions().WithLabelValues(s.kind, transition).Inc()
	s.broadcaster.Broadcast(ctx, s.event, nil)
}

func (s *requestService[T]) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("request.kind", s.kind))
	return s.tracer.Start(ctx, s.kind+"."+operation, trace.WithAttributes(attrs...))
}

func snapshots[T models.LifecycleRequest](records []T) []dto.RequestResponse {
	out := make([]dto.RequestResponse, 0, len(records))
	for _, record := range records {
		out = append(out, dto.NewRequestResponse(record.Snapshot()))
	}
	return out
}
