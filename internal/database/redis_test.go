package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/samg2014/VirtualHand/internal/models"
)

func TestConnectRedisPingsServer(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client, err := ConnectRedis(context.Background(), "redis://"+server.Addr())
	require.NoError(t, err)
	defer client.Close()
}

func TestConnectRedisRejectsEmptyURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "")
	require.Error(t, err)
}

func TestConnectPostgresRejectsEmptyDSN(t *testing.T) {
	_, err := ConnectPostgres("", PoolOptions{})
	require.Error(t, err)
}

func TestConnectNATSRejectsEmptyURL(t *testing.T) {
	_, err := ConnectNATS("", "test")
	require.Error(t, err)
}

func TestAutoMigrateEnforcesSingleOpenRequest(t *testing.T) {
	dsn := fmt.Sprintf("file:migrate_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	teacher := models.User{Username: "t", PasswordHash: "x", Role: models.RoleTeacher}
	require.NoError(t, db.Create(&teacher).Error)
	course := models.Course{Name: "c", TeacherID: teacher.ID, Valid: true}
	require.NoError(t, db.Create(&course).Error)

	first := models.AssistanceRequest{StudentID: teacher.ID, CourseID: course.ID, RequestTime: time.Now()}
	require.NoError(t, db.Create(&first).Error)
	second := models.AssistanceRequest{StudentID: teacher.ID, CourseID: course.ID, RequestTime: time.Now()}
	require.Error(t, db.Create(&second).Error)
}
