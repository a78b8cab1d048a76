package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/samg2014/VirtualHand/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time {
	return c.at
}

type broadcastRecord struct {
	event   string
	payload interface{}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastRecord
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastRecord{event: event, payload: payload})
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Enrollment{},
		&models.AssistanceRequest{},
		&models.HallPassRequest{},
	))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username, role string) models.User {
	t.Helper()
	user := models.User{Username: username, PasswordHash: "hash", Role: role, Email: username + "@example.com"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createCourse(t *testing.T, db *gorm.DB, name string, teacherID uint) models.Course {
	t.Helper()
	course := models.Course{Name: name, TeacherID: teacherID, Valid: true}
	require.NoError(t, db.Create(&course).Error)
	return course
}

func enroll(t *testing.T, db *gorm.DB, studentID, courseID uint) models.Enrollment {
	t.Helper()
	enrollment := models.Enrollment{StudentID: studentID, CourseID: courseID, Admitted: true, Valid: true, RequestTime: time.Now().UTC()}
	require.NoError(t, db.Create(&enrollment).Error)
	return enrollment
}
