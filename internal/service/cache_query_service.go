package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/canvas-sync/internal/dto"
	"github.com/noah-isme/canvas-sync/internal/models"
	"github.com/noah-isme/canvas-sync/internal/observability"
	"github.com/noah-isme/canvas-sync/internal/repository"
)

var (
	// ErrCourseNotCached is returned for course ids the cache has never seen.
	ErrCourseNotCached = errors.New("course not cached")
	// ErrProfileNotCached is returned before the first profile sync.
	ErrProfileNotCached = errors.New("user profile not cached")
)

const backgroundRefreshTimeout = 2 * time.Minute

// CacheQueryService serves reads from the local cache only. Stale collections schedule a background
// refresh; reads never wait on the network.
type CacheQueryService interface {
	ListCourses(ctx context.Context) (dto.CourseListResponse, error)
	GetCourse(ctx context.Context, id string) (dto.CourseDetailResponse, error)
	ListAssignments(ctx context.Context, courseID string) (dto.AssignmentListResponse, error)
	ListGrades(ctx context.Context, courseID string) (dto.GradeListResponse, error)
	ListDiscussions(ctx context.Context, courseID string) (dto.DiscussionListResponse, error)
	CurrentUser(ctx context.Context) (dto.UserProfileResponse, error)
	Statistics(ctx context.Context) (dto.StatisticsResponse, error)
}

type cacheQueryService struct {
	store   *repository.LocalStore
	state   repository.SyncStateStore
	syncer  SyncService
	policy  StalenessPolicy
	group   singleflight.Group
	logger  zerolog.Logger
	timeout time.Duration
}

// NewCacheQueryService constructs the read service. A nil syncer disables background refresh; a nil
// state store derives freshness from row stamps alone.
func NewCacheQueryService(store *repository.LocalStore, state repository.SyncStateStore, syncer SyncService, policy StalenessPolicy, logger zerolog.Logger) CacheQueryService {
	if policy.MaxAge <= 0 {
		policy.MaxAge = DefaultMaxAge
	}
	if policy.Now == nil {
		policy.Now = time.Now
	}

	return &cacheQueryService{
		store:   store,
		state:   state,
		syncer:  syncer,
		policy:  policy,
		logger:  logger.With().Str("component", "cache_query_service").Logger(),
		timeout: backgroundRefreshTimeout,
	}
}

// ListCourses hides stub rows. Freshness comes from the last successful course list fetch.
func (s *cacheQueryService) ListCourses(ctx context.Context) (dto.CourseListResponse, error) {
	courses, err := s.store.Courses.List(ctx)
	if err != nil {
		return dto.CourseListResponse{}, err
	}

	syncedAt, err := s.collectionSyncedAt(ctx, models.EntityCourse, "", CollectionSyncedAt(courses))
	if err != nil {
		return dto.CourseListResponse{}, err
	}
	meta := s.meta(syncedAt, models.EntityCourse, "courses", s.refreshCourses)
	return dto.CourseListResponse{CacheMeta: meta, Items: dto.NewCourseResponseSlice(courses)}, nil
}

func (s *cacheQueryService) GetCourse(ctx context.Context, id string) (dto.CourseDetailResponse, error) {
	course, err := s.cachedCourse(ctx, id)
	if err != nil {
		return dto.CourseDetailResponse{}, err
	}

	assignments, err := s.store.Assignments.FindByParent(ctx, id)
	if err != nil {
		return dto.CourseDetailResponse{}, err
	}
	grades, err := s.store.Grades.FindByParent(ctx, id)
	if err != nil {
		return dto.CourseDetailResponse{}, err
	}
	discussions, err := s.store.Discussions.FindByParent(ctx, id)
	if err != nil {
		return dto.CourseDetailResponse{}, err
	}

	// A stub stays stale until Canvas returns the course itself.
	var syncedAt *time.Time
	if !course.IsStub {
		listed, err := s.collectionSyncedAt(ctx, models.EntityCourse, "", nil)
		if err != nil {
			return dto.CourseDetailResponse{}, err
		}
		syncedAt = latest(listed, course.LastSyncedAt)
	}
	meta := s.meta(syncedAt, models.EntityCourse, "courses", s.refreshCourses)

	return dto.CourseDetailResponse{
		CacheMeta:       meta,
		Course:          dto.NewCourseResponse(course),
		AssignmentCount: len(assignments),
		GradeCount:      len(grades),
		DiscussionCount: len(discussions),
	}, nil
}

func (s *cacheQueryService) ListAssignments(ctx context.Context, courseID string) (dto.AssignmentListResponse, error) {
	if _, err := s.cachedCourse(ctx, courseID); err != nil {
		return dto.AssignmentListResponse{}, err
	}

	assignments, err := s.store.Assignments.FindByParent(ctx, courseID)
	if err != nil {
		return dto.AssignmentListResponse{}, err
	}

	syncedAt, err := s.collectionSyncedAt(ctx, models.EntityAssignment, courseID, s.childSyncedAt(CollectionSyncedAt(assignments), len(assignments)))
	if err != nil {
		return dto.AssignmentListResponse{}, err
	}
	meta := s.meta(syncedAt, models.EntityAssignment, "assignments:"+courseID, func(ctx context.Context) error {
		return s.syncer.SyncAssignments(ctx, courseID)
	})
	return dto.AssignmentListResponse{
		CacheMeta: meta,
		CourseID:  courseID,
		Items:     dto.NewAssignmentResponseSlice(assignments, s.policy.Now()),
	}, nil
}

func (s *cacheQueryService) ListGrades(ctx context.Context, courseID string) (dto.GradeListResponse, error) {
	if _, err := s.cachedCourse(ctx, courseID); err != nil {
		return dto.GradeListResponse{}, err
	}

	grades, err := s.store.Grades.FindByParent(ctx, courseID)
	if err != nil {
		return dto.GradeListResponse{}, err
	}

	syncedAt, err := s.collectionSyncedAt(ctx, models.EntityGrade, courseID, s.childSyncedAt(CollectionSyncedAt(grades), len(grades)))
	if err != nil {
		return dto.GradeListResponse{}, err
	}
	meta := s.meta(syncedAt, models.EntityGrade, "grades:"+courseID, func(ctx context.Context) error {
		return s.syncer.SyncGrades(ctx, courseID)
	})
	return dto.GradeListResponse{CacheMeta: meta, CourseID: courseID, Items: dto.NewGradeResponseSlice(grades)}, nil
}

func (s *cacheQueryService) ListDiscussions(ctx context.Context, courseID string) (dto.DiscussionListResponse, error) {
	if _, err := s.cachedCourse(ctx, courseID); err != nil {
		return dto.DiscussionListResponse{}, err
	}

	discussions, err := s.store.Discussions.FindByParent(ctx, courseID)
	if err != nil {
		return dto.DiscussionListResponse{}, err
	}

	syncedAt, err := s.collectionSyncedAt(ctx, models.EntityDiscussion, courseID, s.childSyncedAt(CollectionSyncedAt(discussions), len(discussions)))
	if err != nil {
		return dto.DiscussionListResponse{}, err
	}
	meta := s.meta(syncedAt, models.EntityDiscussion, "discussions:"+courseID, func(ctx context.Context) error {
		return s.syncer.SyncDiscussions(ctx, courseID)
	})
	return dto.DiscussionListResponse{
		CacheMeta: meta,
		CourseID:  courseID,
		Items:     dto.NewDiscussionResponseSlice(discussions),
	}, nil
}

func (s *cacheQueryService) CurrentUser(ctx context.Context) (dto.UserProfileResponse, error) {
	profile, found, err := s.store.Profiles.Current(ctx)
	if err != nil {
		return dto.UserProfileResponse{}, err
	}

	var rowSyncedAt *time.Time
	if found {
		rowSyncedAt = profile.LastSyncedAt
	}
	syncedAt, err := s.collectionSyncedAt(ctx, models.EntityUserProfile, "", rowSyncedAt)
	if err != nil {
		return dto.UserProfileResponse{}, err
	}
	meta := s.meta(syncedAt, models.EntityUserProfile, "profile", func(ctx context.Context) error {
		if s.syncer.NeedsSync() {
			_, err := s.syncer.SyncIfNeeded(ctx)
			return err
		}
		return s.syncer.SyncUserProfile(ctx)
	})

	if !found {
		return dto.UserProfileResponse{}, ErrProfileNotCached
	}

	return dto.UserProfileResponse{
		CacheMeta:   meta,
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		AvatarURL:   profile.AvatarURL,
	}, nil
}

func (s *cacheQueryService) Statistics(ctx context.Context) (dto.StatisticsResponse, error) {
	var counts [4]int64
	for i, entity := range []models.EntityType{models.EntityCourse, models.EntityAssignment, models.EntityGrade, models.EntityDiscussion} {
		total, err := s.store.Count(ctx, entity)
		if err != nil {
			return dto.StatisticsResponse{}, err
		}
		counts[i] = total
	}

	var status dto.SyncStatus
	if s.syncer != nil {
		status = s.syncer.Status()
	}

	return dto.StatisticsResponse{
		Courses:     counts[0],
		Assignments: counts[1],
		Grades:      counts[2],
		Discussions: counts[3],
		LastSyncAt:  status.LastFullSyncAt,
		IsSyncing:   status.IsSyncing,
		Progress:    status.Progress,
		StatusText:  syncStatusText(status, s.policy.Now()),
	}, nil
}

func (s *cacheQueryService) cachedCourse(ctx context.Context, id string) (models.Course, error) {
	course, found, err := s.store.Courses.FindByID(ctx, id)
	if err != nil {
		return models.Course{}, err
	}
	if !found {
		return models.Course{}, fmt.Errorf("%w: %s", ErrCourseNotCached, id)
	}
	return course, nil
}

// collectionSyncedAt returns the stamp written when the collection was last fetched as a whole, or
// fallback when no such stamp exists yet.
func (s *cacheQueryService) collectionSyncedAt(ctx context.Context, entity models.EntityType, parentID string, fallback *time.Time) (*time.Time, error) {
	if s.state == nil {
		return fallback, nil
	}
	stamp, err := s.state.CollectionSyncedAt(ctx, models.CollectionKey(entity, parentID))
	if err != nil {
		return nil, err
	}
	if stamp == nil {
		return fallback, nil
	}
	return stamp, nil
}

// childSyncedAt treats an empty child collection as fresh as the last full pass, since a pass that
// found nothing leaves no rows to stamp.
func (s *cacheQueryService) childSyncedAt(syncedAt *time.Time, rows int) *time.Time {
	if syncedAt != nil || rows > 0 || s.syncer == nil {
		return syncedAt
	}
	return s.syncer.Status().LastFullSyncAt
}

func (s *cacheQueryService) refreshCourses(ctx context.Context) error {
	if s.syncer.NeedsSync() {
		_, err := s.syncer.SyncIfNeeded(ctx)
		return err
	}
	return s.syncer.SyncCourses(ctx)
}

func (s *cacheQueryService) meta(syncedAt *time.Time, entity models.EntityType, key string, refresh func(context.Context) error) dto.CacheMeta {
	meta := dto.CacheMeta{SyncedAt: syncedAt, Stale: s.policy.IsStale(syncedAt)}
	if s.syncer == nil {
		return meta
	}
	if meta.Stale {
		s.refreshInBackground(entity, key, refresh)
		meta.Refreshing = true
	}
	if s.syncer.Status().IsSyncing {
		meta.Refreshing = true
	}
	return meta
}

// refreshInBackground runs refresh detached from the request. Concurrent reads of the same stale
// collection share one refresh.
func (s *cacheQueryService) refreshInBackground(entity models.EntityType, key string, refresh func(context.Context) error) {
	go func() {
		_, err, shared := s.group.Do(key, func() (interface{}, error) {
			observability.CacheRefreshes().WithLabelValues(string(entity)).Inc()

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			return nil, refresh(ctx)
		})
		if err != nil && !shared && !errors.Is(err, ErrSyncInProgress) {
			s.logger.Warn().Err(err).Str("key", key).Msg("background cache refresh failed")
		}
	}()
}

func syncStatusText(status dto.SyncStatus, now time.Time) string {
	switch {
	case status.IsSyncing:
		return fmt.Sprintf("Syncing... %d%%", int(status.Progress*100))
	case status.LastFullSyncAt != nil:
		return "Last synced: " + formatLastSync(*status.LastFullSyncAt, now)
	default:
		return "Not synced"
	}
}

func formatLastSync(at, now time.Time) string {
	at = at.UTC()
	now = now.UTC()

	y, m, d := at.Date()
	ny, nm, nd := now.Date()
	switch {
	case y == ny && m == nm && d == nd:
		return "Today at " + at.Format("3:04 PM")
	case at.Add(24*time.Hour).Format("2006-01-02") == now.Format("2006-01-02"):
		return "Yesterday at " + at.Format("3:04 PM")
	default:
		return at.Format("Jan 2, 2006") + " at " + at.Format("3:04 PM")
	}
}
