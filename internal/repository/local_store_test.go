package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/canvas-sync/internal/database"
	"github.com/noah-isme/canvas-sync/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupStoreTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.ConnectSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestStore(t *testing.T) (*LocalStore, *fakeClock, *gorm.DB) {
	t.Helper()
	db := setupStoreTestDB(t)
	clock := &fakeClock{now: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)}
	return NewLocalStore(db, WithClock(clock.Now)), clock, db
}

func TestCourseUpsertIsIdempotentAndStampsSyncTime(t *testing.T) {
	store, clock, _ := newTestStore(t)
	ctx := context.Background()

	stored, err := store.Courses.Upsert(ctx, models.Course{ID: "101", Name: "Biology"})
	require.NoError(t, err)
	require.NotNil(t, stored.LastSyncedAt)
	require.True(t, clock.Now().Equal(*stored.LastSyncedAt))

	clock.Advance(time.Minute)
	_, err = store.Courses.Upsert(ctx, models.Course{ID: "101", Name: "Biology II"})
	require.NoError(t, err)

	total, err := store.Courses.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	course, found, err := store.Courses.FindByID(ctx, "101")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Biology II", course.Name)
	require.True(t, clock.Now().Equal(*course.LastSyncedAt))
}

func TestCallerCannotChooseSyncTime(t *testing.T) {
	store, clock, _ := newTestStore(t)
	forged := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	stored, err := store.Courses.Upsert(context.Background(), models.Course{ID: "1", LastSyncedAt: &forged})
	require.NoError(t, err)
	require.True(t, clock.Now().Equal(*stored.LastSyncedAt))
}

func TestChildUpsertCreatesStubCourse(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Assignments.Upsert(ctx, models.Assignment{ID: "a1", CourseID: "77", Name: "Essay", SubmissionTypes: []string{"online_upload"}})
	require.NoError(t, err)

	stub, found, err := store.Courses.FindByID(ctx, "77")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, stub.IsStub)
	require.Nil(t, stub.LastSyncedAt)

	_, err = store.Courses.Upsert(ctx, models.Course{ID: "77", Name: "History"})
	require.NoError(t, err)

	filled, _, err := store.Courses.FindByID(ctx, "77")
	require.NoError(t, err)
	require.False(t, filled.IsStub)
	require.Equal(t, "History", filled.Name)

	assignments, err := store.Assignments.FindByParent(ctx, "77")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, []string{"online_upload"}, []string(assignments[0].SubmissionTypes))
}

func TestStubDoesNotOverwriteExistingCourse(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Courses.Upsert(ctx, models.Course{ID: "5", Name: "Chemistry"})
	require.NoError(t, err)
	_, err = store.Discussions.Upsert(ctx, models.Discussion{ID: "d1", CourseID: "5", Title: "Week 1"})
	require.NoError(t, err)

	course, _, err := store.Courses.FindByID(ctx, "5")
	require.NoError(t, err)
	require.False(t, course.IsStub)
	require.Equal(t, "Chemistry", course.Name)
}

func TestUpsertRejectsRecordsWithoutIDs(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Courses.Upsert(ctx, models.Course{Name: "nameless"})
	require.ErrorIs(t, err, ErrInvalidRecord)
	require.ErrorIs(t, err, ErrLocalStore)

	_, err = store.Grades.Upsert(ctx, models.Grade{ID: "g1", AssignmentID: "a1"})
	require.ErrorIs(t, err, ErrInvalidRecord)

	var storeError *StoreError
	require.True(t, errors.As(err, &storeError))
	require.Equal(t, models.EntityGrade, storeError.Entity)
}

func TestTouchRefreshesOnlySyncTime(t *testing.T) {
	store, clock, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Grades.Upsert(ctx, models.Grade{ID: "s1", AssignmentID: "a1", CourseID: "c1", WorkflowState: models.GradeStateGraded})
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	require.NoError(t, store.Grades.Touch(ctx, "s1"))

	grade, found, err := store.Grades.FindByAssignment(ctx, "a1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, models.GradeStateGraded, grade.WorkflowState)
	require.True(t, clock.Now().Equal(*grade.LastSyncedAt))
}

func TestProfileIsSingleton(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Profiles.Upsert(ctx, models.UserProfile{ID: "u1", DisplayName: "Ada"})
	require.NoError(t, err)
	_, err = store.Profiles.Upsert(ctx, models.UserProfile{ID: "u2", DisplayName: "Grace"})
	require.NoError(t, err)

	total, err := store.Profiles.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	current, found, err := store.Profiles.Current(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Grace", current.DisplayName)
}

func TestDeleteAllAndClearCache(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Assignments.UpsertMany(ctx, []models.Assignment{
		{ID: "a1", CourseID: "c1"},
		{ID: "a2", CourseID: "c1"},
		{ID: "a3", CourseID: "c2"},
	})
	require.NoError(t, err)
	_, err = store.Profiles.Upsert(ctx, models.UserProfile{ID: "u1"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteAll(ctx, models.EntityAssignment))
	total, err := store.Count(ctx, models.EntityAssignment)
	require.NoError(t, err)
	require.Zero(t, total)

	courses, err := store.Count(ctx, models.EntityCourse)
	require.NoError(t, err)
	require.Equal(t, int64(2), courses)

	require.NoError(t, store.ClearCache(ctx))
	for _, entity := range models.EntityTypes() {
		total, err := store.Count(ctx, entity)
		require.NoError(t, err)
		require.Zero(t, total, "entity %s", entity)
	}

	require.ErrorIs(t, store.DeleteAll(ctx, "widgets"), ErrUnknownEntity)
}

func TestConcurrentUpsertsOfSameRecord(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Assignments.Upsert(ctx, models.Assignment{ID: "shared", CourseID: "c1", Name: "Quiz"})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	total, err := store.Assignments.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestUpsertManyCollapsesDuplicateIDs(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	stored, err := store.Assignments.UpsertMany(ctx, []models.Assignment{
		{ID: "1001", CourseID: "101", Name: "Cells"},
		{ID: "1002", CourseID: "101", Name: "Mitosis"},
		{ID: "1001", CourseID: "101", Name: "Cells (revised)"},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "1001", stored[0].ID)
	require.Equal(t, "Cells (revised)", stored[0].Name)

	assignments, err := store.Assignments.FindByParent(ctx, "101")
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	saved, found, err := store.Assignments.FindByID(ctx, "1001")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Cells (revised)", saved.Name)

	courses, err := store.Courses.UpsertMany(ctx, []models.Course{{ID: "7", Name: "Art"}, {ID: "7", Name: "Art History"}})
	require.NoError(t, err)
	require.Len(t, courses, 1)

	grades, err := store.Grades.UpsertMany(ctx, []models.Grade{
		{ID: "g1", AssignmentID: "1001", CourseID: "101"},
		{ID: "g1", AssignmentID: "1001", CourseID: "101", LetterGrade: "B"},
	})
	require.NoError(t, err)
	require.Len(t, grades, 1)
	require.Equal(t, "B", grades[0].LetterGrade)
}

func TestDedupeByIDKeepsFirstPositionAndLastValue(t *testing.T) {
	rows := dedupeByID([]models.Discussion{
		{ID: "a", Title: "first"},
		{ID: "b", Title: "only"},
		{ID: "a", Title: "second"},
		{ID: "a", Title: "third"},
	})
	require.Len(t, rows, 2)
	require.Equal(t, "a", rows[0].ID)
	require.Equal(t, "third", rows[0].Title)
	require.Equal(t, "b", rows[1].ID)
}
