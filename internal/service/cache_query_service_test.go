package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canvas-sync/internal/database"
	"github.com/noah-isme/canvas-sync/internal/dto"
	"github.com/noah-isme/canvas-sync/internal/models"
	"github.com/noah-isme/canvas-sync/internal/repository"
)

type recordingSyncer struct {
	mu        sync.Mutex
	status    dto.SyncStatus
	needsSync bool
	calls     chan string
	release   chan struct{}
}

func newRecordingSyncer() *recordingSyncer {
	return &recordingSyncer{calls: make(chan string, 16)}
}

func (r *recordingSyncer) record(name string) error {
	r.calls <- name
	if r.release != nil {
		<-r.release
	}
	return nil
}

func (r *recordingSyncer) SyncAll(context.Context) error { return r.record("all") }

func (r *recordingSyncer) SyncIfNeeded(context.Context) (bool, error) {
	return true, r.record("if_needed")
}

func (r *recordingSyncer) SyncCourses(context.Context) error { return r.record("courses") }

func (r *recordingSyncer) SyncAssignments(_ context.Context, courseID string) error {
	return r.record("assignments:" + courseID)
}

func (r *recordingSyncer) SyncGrades(_ context.Context, courseID string) error {
	return r.record("grades:" + courseID)
}

func (r *recordingSyncer) SyncDiscussions(_ context.Context, courseID string) error {
	return r.record("discussions:" + courseID)
}

func (r *recordingSyncer) SyncUserProfile(context.Context) error { return r.record("profile") }

func (r *recordingSyncer) ResolveConflicts(context.Context) error { return r.record("conflicts") }

func (r *recordingSyncer) Status() dto.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.Clone()
}

func (r *recordingSyncer) NeedsSync() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.needsSync
}

func (r *recordingSyncer) ClearError() {}

func (r *recordingSyncer) ClearCache(context.Context) error { return nil }

func (r *recordingSyncer) Subscribe() (<-chan dto.SyncStatusEvent, func()) {
	ch := make(chan dto.SyncStatusEvent)
	return ch, func() {}
}

func (r *recordingSyncer) Start(context.Context) {}

func expectRefresh(t *testing.T, syncer *recordingSyncer, want string) {
	t.Helper()
	select {
	case got := <-syncer.calls:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("expected background refresh %q", want)
	}
}

func expectNoRefresh(t *testing.T, syncer *recordingSyncer) {
	t.Helper()
	select {
	case got := <-syncer.calls:
		t.Fatalf("unexpected background refresh %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func newCacheQueryTestEnv(t *testing.T) (CacheQueryService, *repository.LocalStore, *syncTestClock, *recordingSyncer) {
	t.Helper()
	svc, store, _, clock, syncer := newCacheQueryTestEnvWithState(t)
	return svc, store, clock, syncer
}

func newCacheQueryTestEnvWithState(t *testing.T) (CacheQueryService, *repository.LocalStore, repository.SyncStateStore, *syncTestClock, *recordingSyncer) {
	t.Helper()

	db, err := database.ConnectSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	clock := &syncTestClock{now: time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)}
	store := repository.NewLocalStore(db, repository.WithClock(clock.Now))
	state := repository.NewSyncStateRepository(db)
	syncer := newRecordingSyncer()
	svc := NewCacheQueryService(store, state, syncer, StalenessPolicy{MaxAge: 5 * time.Minute, Now: clock.Now}, zerolog.Nop())
	return svc, store, state, clock, syncer
}

func TestListCoursesFreshDoesNotRefresh(t *testing.T) {
	svc, store, clock, syncer := newCacheQueryTestEnv(t)
	ctx := context.Background()

	_, err := store.Courses.UpsertMany(ctx, []models.Course{{ID: "1", Name: "Art"}, {ID: "2", Name: "Music"}})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	resp, err := svc.ListCourses(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	require.False(t, resp.Stale)
	require.False(t, resp.Refreshing)
	require.NotNil(t, resp.SyncedAt)
	expectNoRefresh(t, syncer)
}

func TestListCoursesStaleTriggersBackgroundRefresh(t *testing.T) {
	svc, store, clock, syncer := newCacheQueryTestEnv(t)
	ctx := context.Background()

	_, err := store.Courses.UpsertMany(ctx, []models.Course{{ID: "1", Name: "Art"}})
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)

	resp, err := svc.ListCourses(ctx)
	require.NoError(t, err)
	require.True(t, resp.Stale)
	require.True(t, resp.Refreshing)
	require.Len(t, resp.Items, 1)
	expectRefresh(t, syncer, "courses")

	syncer.mu.Lock()
	syncer.needsSync = true
	syncer.mu.Unlock()

	_, err = svc.ListCourses(ctx)
	require.NoError(t, err)
	expectRefresh(t, syncer, "if_needed")
}

func TestListCoursesHidesStubsAndIgnoresThemForFreshness(t *testing.T) {
	svc, store, _, syncer := newCacheQueryTestEnv(t)
	ctx := context.Background()

	_, err := store.Courses.Upsert(ctx, models.Course{ID: "1", Name: "Art"})
	require.NoError(t, err)
	_, err = store.Assignments.Upsert(ctx, models.Assignment{ID: "a1", CourseID: "99", Name: "Orphan"})
	require.NoError(t, err)

	resp, err := svc.ListCourses(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Equal(t, "1", resp.Items[0].ID)

	require.NotNil(t, resp.SyncedAt)
	require.False(t, resp.Stale)
	expectNoRefresh(t, syncer)
}

func TestListCoursesPrefersCollectionStampOverRowStamps(t *testing.T) {
	svc, store, state, clock, syncer := newCacheQueryTestEnvWithState(t)
	ctx := context.Background()

	// The row keeps its first stamp, as a course Canvas stopped returning would.
	_, err := store.Courses.Upsert(ctx, models.Course{ID: "1", Name: "Art"})
	require.NoError(t, err)
	clock.Advance(6 * time.Minute)
	require.NoError(t, state.MarkCollectionSynced(ctx, models.CollectionKey(models.EntityCourse, ""), clock.Now()))

	resp, err := svc.ListCourses(ctx)
	require.NoError(t, err)
	require.False(t, resp.Stale)
	require.True(t, resp.SyncedAt.Equal(clock.Now()))
	expectNoRefresh(t, syncer)

	detail, err := svc.GetCourse(ctx, "1")
	require.NoError(t, err)
	require.False(t, detail.Stale)

	clock.Advance(6 * time.Minute)
	resp, err = svc.ListCourses(ctx)
	require.NoError(t, err)
	require.True(t, resp.Stale)
	expectRefresh(t, syncer, "courses")
}

func TestChildListsPreferCollectionStamp(t *testing.T) {
	svc, store, state, clock, syncer := newCacheQueryTestEnvWithState(t)
	ctx := context.Background()

	_, err := store.Courses.Upsert(ctx, models.Course{ID: "1", Name: "Art"})
	require.NoError(t, err)
	_, err = store.Grades.Upsert(ctx, models.Grade{ID: "g1", AssignmentID: "a1", CourseID: "1"})
	require.NoError(t, err)
	clock.Advance(time.Hour)

	require.NoError(t, state.MarkCollectionSynced(ctx, models.CollectionKey(models.EntityGrade, "1"), clock.Now()))
	grades, err := svc.ListGrades(ctx, "1")
	require.NoError(t, err)
	require.False(t, grades.Stale)
	expectNoRefresh(t, syncer)

	// Another course's stamp does not leak into this one.
	require.NoError(t, state.MarkCollectionSynced(ctx, models.CollectionKey(models.EntityDiscussion, "2"), clock.Now()))
	discussions, err := svc.ListDiscussions(ctx, "1")
	require.NoError(t, err)
	require.True(t, discussions.Stale)
	expectRefresh(t, syncer, "discussions:1")
}

func TestConcurrentStaleReadsShareOneRefresh(t *testing.T) {
	svc, store, clock, syncer := newCacheQueryTestEnv(t)
	syncer.release = make(chan struct{})
	ctx := context.Background()

	_, err := store.Assignments.Upsert(ctx, models.Assignment{ID: "a1", CourseID: "5", Name: "Essay"})
	require.NoError(t, err)
	clock.Advance(time.Hour)

	_, err = svc.ListAssignments(ctx, "5")
	require.NoError(t, err)
	expectRefresh(t, syncer, "assignments:5")

	for i := 0; i < 5; i++ {
		resp, err := svc.ListAssignments(ctx, "5")
		require.NoError(t, err)
		require.True(t, resp.Refreshing)
	}
	expectNoRefresh(t, syncer)
	close(syncer.release)
}

func TestChildListsRequireKnownCourse(t *testing.T) {
	svc, _, _, syncer := newCacheQueryTestEnv(t)
	ctx := context.Background()

	_, err := svc.ListAssignments(ctx, "404")
	require.ErrorIs(t, err, ErrCourseNotCached)
	_, err = svc.ListGrades(ctx, "404")
	require.ErrorIs(t, err, ErrCourseNotCached)
	_, err = svc.ListDiscussions(ctx, "404")
	require.ErrorIs(t, err, ErrCourseNotCached)
	_, err = svc.GetCourse(ctx, "404")
	require.ErrorIs(t, err, ErrCourseNotCached)
	expectNoRefresh(t, syncer)
}

func TestEmptyChildCollectionUsesLastFullSync(t *testing.T) {
	svc, store, clock, syncer := newCacheQueryTestEnv(t)
	ctx := context.Background()

	_, err := store.Courses.Upsert(ctx, models.Course{ID: "1", Name: "Art"})
	require.NoError(t, err)
	last := clock.Now()
	syncer.status.LastFullSyncAt = &last

	resp, err := svc.ListDiscussions(ctx, "1")
	require.NoError(t, err)
	require.Empty(t, resp.Items)
	require.False(t, resp.Stale)
	expectNoRefresh(t, syncer)

	clock.Advance(time.Hour)
	resp, err = svc.ListDiscussions(ctx, "1")
	require.NoError(t, err)
	require.True(t, resp.Stale)
	expectRefresh(t, syncer, "discussions:1")
}

func TestGetCourseCountsChildren(t *testing.T) {
	svc, store, _, _ := newCacheQueryTestEnv(t)
	ctx := context.Background()

	_, err := store.Courses.Upsert(ctx, models.Course{ID: "1", Name: "Art"})
	require.NoError(t, err)
	_, err = store.Assignments.UpsertMany(ctx, []models.Assignment{{ID: "a1", CourseID: "1"}, {ID: "a2", CourseID: "1"}})
	require.NoError(t, err)
	_, err = store.Grades.Upsert(ctx, models.Grade{ID: "g1", AssignmentID: "a1", CourseID: "1"})
	require.NoError(t, err)

	resp, err := svc.GetCourse(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "Art", resp.Course.Name)
	require.Equal(t, 2, resp.AssignmentCount)
	require.Equal(t, 1, resp.GradeCount)
	require.Zero(t, resp.DiscussionCount)
	require.False(t, resp.Stale)
}

func TestCurrentUserBeforeFirstSync(t *testing.T) {
	svc, store, _, syncer := newCacheQueryTestEnv(t)
	ctx := context.Background()

	_, err := svc.CurrentUser(ctx)
	require.ErrorIs(t, err, ErrProfileNotCached)
	expectRefresh(t, syncer, "profile")

	_, err = store.Profiles.Upsert(ctx, models.UserProfile{ID: "7", DisplayName: "Ada"})
	require.NoError(t, err)

	resp, err := svc.CurrentUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "Ada", resp.DisplayName)
	require.False(t, resp.Stale)
}

func TestStatisticsStatusText(t *testing.T) {
	svc, store, clock, syncer := newCacheQueryTestEnv(t)
	ctx := context.Background()

	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, "Not synced", stats.StatusText)

	_, err = store.Courses.Upsert(ctx, models.Course{ID: "1", Name: "Art"})
	require.NoError(t, err)
	last := clock.Now().Add(-2 * time.Hour)
	syncer.status.LastFullSyncAt = &last

	stats, err = svc.Statistics(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Courses)
	require.Equal(t, "Last synced: Today at 6:00 AM", stats.StatusText)

	syncer.status.IsSyncing = true
	syncer.status.Progress = 0.5
	stats, err = svc.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, "Syncing... 50%", stats.StatusText)
	require.True(t, stats.IsSyncing)
}

func TestFormatLastSync(t *testing.T) {
	now := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

	require.Equal(t, "Today at 7:30 AM", formatLastSync(now.Add(-30*time.Minute), now))
	require.Equal(t, "Yesterday at 11:15 PM", formatLastSync(time.Date(2024, 9, 1, 23, 15, 0, 0, time.UTC), now))
	require.Equal(t, "Aug 3, 2024 at 1:05 PM", formatLastSync(time.Date(2024, 8, 3, 13, 5, 0, 0, time.UTC), now))
}
