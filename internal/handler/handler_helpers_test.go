package handler_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/samg2014/VirtualHand/internal/database"
	"github.com/samg2014/VirtualHand/internal/models"
	"github.com/samg2014/VirtualHand/internal/repository"
	"github.com/samg2014/VirtualHand/internal/service"
)

const testJWTSecret = "handler-secret"

type testStack struct {
	db         *gorm.DB
	logger     zerolog.Logger
	validate   *validator.Validate
	hub        *service.RealtimeHub
	courses    service.CourseService
	assistance service.RequestService
	hallPass   service.HallPassService
	accounts   service.AccountService
}

func newTestStack(t *testing.T) testStack {
	t.Helper()
	dsn := fmt.Sprintf("file:handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	logger := zerolog.New(io.Discard)
	validate := validator.New()
	hub := service.NewRealtimeHub(nil, "", nil, logger)
	users := repository.NewUserRepository(db)
	courses := service.NewCourseService(repository.NewCourseRepository(db), repository.NewEnrollmentRepository(db), users, nil, logger)

	return testStack{
		db:         db,
		logger:     logger,
		validate:   validate,
		hub:        hub,
		courses:    courses,
		assistance: service.NewAssistanceService(repository.NewAssistanceRepository(db), courses, hub, nil, logger),
		hallPass:   service.NewHallPassService(repository.NewHallPassRepository(db), courses, hub, nil, logger),
		accounts: service.NewAccountService(users, courses, service.NewLogMailer(logger), nil, validate, service.AccountConfig{
			JWTSecret: testJWTSecret,
			JWTTTL:    time.Hour,
		}, logger),
	}
}

func (s testStack) user(t *testing.T, username, role string) models.User {
	t.Helper()
	user := models.User{Username: username, PasswordHash: "hash", Role: role}
	require.NoError(t, s.db.Create(&user).Error)
	return user
}

func (s testStack) course(t *testing.T, name string, teacherID uint) models.Course {
	t.Helper()
	course := models.Course{Name: name, TeacherID: teacherID, Valid: true}
	require.NoError(t, s.db.Create(&course).Error)
	return course
}

func (s testStack) enroll(t *testing.T, studentID, courseID uint) {
	t.Helper()
	enrollment := models.Enrollment{StudentID: studentID, CourseID: courseID, Admitted: true, Valid: true, RequestTime: time.Now().UTC()}
	require.NoError(t, s.db.Create(&enrollment).Error)
}

// asUser stands in for the JWT middleware in handler tests.
func asUser(user models.User) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", user.ID)
		c.Locals("user_role", user.Role)
		return c.Next()
	}
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
