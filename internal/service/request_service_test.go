package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/samg2014/VirtualHand/internal/models"
	"github.com/samg2014/VirtualHand/internal/repository"
	appErrors "github.com/samg2014/VirtualHand/pkg/errors"
)

type lifecycleFixture struct {
	db          *gorm.DB
	broadcaster *recordingBroadcaster
	assistance  RequestService
	hallPass    HallPassService
	clock       fixedClock
	teacher     models.User
	student     models.User
	course      models.Course
}

func newLifecycleFixture(t *testing.T) lifecycleFixture {
	t.Helper()
	db := setupServiceDB(t)
	broadcaster := &recordingBroadcaster{}
	clock := fixedClock{at: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}

	courses := NewCourseService(
		repository.NewCourseRepository(db),
		repository.NewEnrollmentRepository(db),
		repository.NewUserRepository(db),
		nil,
		testLogger(),
	)

	teacher := createUser(t, db, "teacher", models.RoleTeacher)
	student := createUser(t, db, "student", models.RoleStudent)
	course := createCourse(t, db, "Biology", teacher.ID)
	enroll(t, db, student.ID, course.ID)

	return lifecycleFixture{
		db:          db,
		broadcaster: broadcaster,
		assistance:  NewAssistanceService(repository.NewAssistanceRepository(db), courses, broadcaster, clock, testLogger()),
		hallPass:    NewHallPassService(repository.NewHallPassRepository(db), courses, broadcaster, clock, testLogger()),
		clock:       clock,
		teacher:     teacher,
		student:     student,
		course:      course,
	}
}

func TestInitiateCreatesSingleOpenRequest(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	require.NoError(t, f.assistance.Initiate(ctx, f.student.ID, f.course.ID))
	require.NoError(t, f.assistance.Initiate(ctx, f.student.ID, f.course.ID))

	var requests []models.AssistanceRequest
	require.NoError(t, f.db.Find(&requests).Error)
	require.Len(t, requests, 1)
	require.Equal(t, f.student.ID, requests[0].StudentID)
	require.Equal(t, f.course.ID, requests[0].CourseID)
	require.False(t, requests[0].Resolved)

	require.Equal(t, 1, f.broadcaster.count())
	require.Equal(t, EventAssistanceModified, f.broadcaster.events[0].event)
	require.Nil(t, f.broadcaster.events[0].payload)
}

func TestStatusTracksLifecycle(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	open, err := f.assistance.Status(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	require.False(t, open)

	require.NoError(t, f.assistance.Initiate(ctx, f.student.ID, f.course.ID))
	open, err = f.assistance.Status(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	require.True(t, open)

	require.NoError(t, f.assistance.ResolveByStudent(ctx, f.student.ID, f.course.ID))
	open, err = f.assistance.Status(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	require.False(t, open)

	var request models.AssistanceRequest
	require.NoError(t, f.db.First(&request).Error)
	require.Equal(t, models.ResolvedByStudent, request.ResolvedType)
	require.NotNil(t, request.ResolvedTime)
	require.True(t, request.ResolvedTime.Equal(f.clock.at))
	require.True(t, request.RequestTime.Equal(f.clock.at))

	// a new request can be opened once the previous one is closed
	require.NoError(t, f.assistance.Initiate(ctx, f.student.ID, f.course.ID))
	var count int64
	require.NoError(t, f.db.Model(&models.AssistanceRequest{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestResolveAllRequiresTeacherOfRecord(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	other := createUser(t, f.db, "other", models.RoleTeacher)

	require.NoError(t, f.hallPass.Initiate(ctx, f.student.ID, f.course.ID))
	before := f.broadcaster.count()

	err := f.hallPass.ResolveAllForCourse(ctx, other.ID, f.course.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	require.Equal(t, MsgCourseNotTaught, appErrors.FromError(err).Message)
	require.Equal(t, before, f.broadcaster.count())

	open, err := f.hallPass.Status(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	require.True(t, open)

	require.NoError(t, f.hallPass.ResolveAllForCourse(ctx, f.teacher.ID, f.course.ID))
	open, err = f.hallPass.Status(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	require.False(t, open)
}

func TestResolveByIDAndHistory(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	require.NoError(t, f.assistance.Initiate(ctx, f.student.ID, f.course.ID))
	open, err := f.assistance.ListOpen(ctx, []uint{f.course.ID})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "student", open[0].Student.Username)

	other := createUser(t, f.db, "other", models.RoleTeacher)
	err = f.assistance.ResolveByID(ctx, other.ID, open[0].ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	err = f.assistance.ResolveByID(ctx, f.teacher.ID, 9999)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	require.NoError(t, f.assistance.ResolveByID(ctx, f.teacher.ID, open[0].ID))

	open, err = f.assistance.ListOpen(ctx, []uint{f.course.ID})
	require.NoError(t, err)
	require.Empty(t, open)

	history, err := f.assistance.History(ctx, f.teacher.ID, f.course.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].Resolved)
	require.Equal(t, models.ResolvedByTeacher, history[0].ResolvedType)
	require.NotNil(t, history[0].ResolvedTime)
	require.True(t, history[0].ResolvedTime.Equal(f.clock.at))

	_, err = f.assistance.History(ctx, other.ID, f.course.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestGrantHallPass(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	require.NoError(t, f.hallPass.Initiate(ctx, f.student.ID, f.course.ID))
	var request models.HallPassRequest
	require.NoError(t, f.db.First(&request).Error)

	require.NoError(t, f.hallPass.Grant(ctx, f.teacher.ID, request.ID))
	require.NoError(t, f.db.First(&request, request.ID).Error)
	require.True(t, request.Granted)
	require.NotNil(t, request.GrantedTime)
	require.True(t, request.GrantedTime.Equal(f.clock.at))
	require.False(t, request.Resolved)

	require.NoError(t, f.hallPass.ResolveByStudent(ctx, f.student.ID, f.course.ID))
	err := f.hallPass.Grant(ctx, f.teacher.ID, request.ID)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Equal(t, MsgHallPassAlreadyClosed, appErrors.FromError(err).Message)
}

func TestGrantHallPassChecksTeacherBeforeState(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	other := createUser(t, f.db, "other", models.RoleTeacher)

	require.NoError(t, f.hallPass.Initiate(ctx, f.student.ID, f.course.ID))
	var request models.HallPassRequest
	require.NoError(t, f.db.First(&request).Error)
	require.NoError(t, f.hallPass.ResolveByStudent(ctx, f.student.ID, f.course.ID))
	before := f.broadcaster.count()

	err := f.hallPass.Grant(ctx, other.ID, request.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	require.Equal(t, MsgCourseNotTaught, appErrors.FromError(err).Message)
	require.Equal(t, before, f.broadcaster.count())
}
