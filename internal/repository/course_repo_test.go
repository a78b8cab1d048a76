package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/samg2014/VirtualHand/internal/models"
)

func TestCourseRepositoryTeacherQueriesExcludeInvalidCourses(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCourseRepository(db)
	ctx := context.Background()

	teacher := seedUser(t, db, "teacher", models.RoleTeacher)
	other := seedUser(t, db, "other", models.RoleTeacher)
	zoology := seedCourse(t, db, "Zoology", teacher.ID)
	algebra := seedCourse(t, db, "Algebra", teacher.ID)

	count, err := repo.CountTaughtBy(ctx, zoology.ID, teacher.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	count, err = repo.CountTaughtBy(ctx, zoology.ID, other.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	courses, err := repo.ListTaughtBy(ctx, teacher.ID)
	require.NoError(t, err)
	require.Len(t, courses, 2)
	require.Equal(t, "Algebra", courses[0].Name)

	require.NoError(t, repo.Invalidate(ctx, algebra.ID))

	count, err = repo.CountTaughtBy(ctx, algebra.ID, teacher.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	courses, err = repo.ListTaughtBy(ctx, teacher.ID)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, "Zoology", courses[0].Name)
}

func TestCourseRepositoryKeyLookupAndUpdates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCourseRepository(db)
	ctx := context.Background()

	teacher := seedUser(t, db, "teacher", models.RoleTeacher)
	course := seedCourse(t, db, "Physics", teacher.ID)

	require.NoError(t, repo.UpdateKey(ctx, course.ID, "ABCD2345"))
	require.NoError(t, repo.UpdateName(ctx, course.ID, "Physics II"))

	found, err := repo.GetValidByKey(ctx, "ABCD2345")
	require.NoError(t, err)
	require.Equal(t, course.ID, found.ID)
	require.Equal(t, "Physics II", found.Name)

	require.ErrorIs(t, repo.UpdateName(ctx, 4242, "missing"), gorm.ErrRecordNotFound)

	require.NoError(t, repo.Invalidate(ctx, course.ID))
	_, err = repo.GetValidByKey(ctx, "ABCD2345")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	stored, err := repo.GetByID(ctx, course.ID)
	require.NoError(t, err)
	require.False(t, stored.Valid)
}

func TestEnrollmentRepositoryFindOrCreateAndInvalidate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEnrollmentRepository(db)
	ctx := context.Background()

	teacher := seedUser(t, db, "teacher", models.RoleTeacher)
	student := seedUser(t, db, "student", models.RoleStudent)
	music := seedCourse(t, db, "Music", teacher.ID)
	drama := seedCourse(t, db, "Drama", teacher.ID)

	first, err := repo.FindOrCreate(ctx, music.ID, student.ID, true)
	require.NoError(t, err)
	second, err := repo.FindOrCreate(ctx, music.ID, student.ID, true)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	_, err = repo.FindOrCreate(ctx, drama.ID, student.ID, true)
	require.NoError(t, err)

	enrolled, err := repo.ListEnrolled(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, enrolled, 2)
	require.Equal(t, "Drama", enrolled[0].Course.Name)
	require.Equal(t, "Music", enrolled[1].Course.Name)

	affected, err := repo.InvalidateByCourse(ctx, music.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	count, err := repo.CountValid(ctx, student.ID, music.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	rejoined, err := repo.FindOrCreate(ctx, music.ID, student.ID, true)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, rejoined.ID, "an invalidated enrollment must not be reused")
}

func TestUserRepositoryLookupsAndPasswordUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := models.User{Username: "casey", PasswordHash: "old", Role: models.RoleStudent}
	require.NoError(t, repo.Create(ctx, &user))

	found, err := repo.GetByUsername(ctx, "casey")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	require.NoError(t, repo.UpdatePassword(ctx, user.ID, "new"))
	updated, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "new", updated.PasswordHash)

	require.ErrorIs(t, repo.UpdatePassword(ctx, 999, "x"), gorm.ErrRecordNotFound)
	_, err = repo.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
