package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/noah-isme/canvas-sync/internal/dto"
	"github.com/noah-isme/canvas-sync/internal/models"
	"github.com/noah-isme/canvas-sync/internal/observability"
	"github.com/noah-isme/canvas-sync/internal/repository"
	"github.com/noah-isme/canvas-sync/pkg/canvas"
)

// ErrSyncInProgress is returned to a caller of SyncAll while another full pass is running.
var ErrSyncInProgress = errors.New("sync already in progress")

const (
	stageCourses     = "Syncing courses..."
	stageAssignments = "Syncing assignments..."
	stageGrades      = "Syncing grades..."
	stageDiscussions = "Syncing discussions..."
	stageProfile     = "Syncing user profile..."
	stageCompleted   = "Sync completed successfully"

	syncKindFull    = "full"
	syncKindPartial = "partial"
)

// CanvasAPI is the remote surface the coordinator consumes.
type CanvasAPI interface {
	ListCourses(ctx context.Context) ([]canvas.Course, error)
	GetCourse(ctx context.Context, id string) (canvas.Course, error)
	ListAssignments(ctx context.Context, courseID string) ([]canvas.Assignment, error)
	GetOwnSubmission(ctx context.Context, courseID, assignmentID string) (canvas.Submission, bool, error)
	ListDiscussions(ctx context.Context, courseID string) ([]canvas.Discussion, error)
	GetCurrentUser(ctx context.Context) (canvas.User, error)
}

// SyncService reconciles Canvas data into the local cache.
type SyncService interface {
	SyncAll(ctx context.Context) error
	SyncIfNeeded(ctx context.Context) (bool, error)
	SyncCourses(ctx context.Context) error
	SyncAssignments(ctx context.Context, courseID string) error
	SyncGrades(ctx context.Context, courseID string) error
	SyncDiscussions(ctx context.Context, courseID string) error
	SyncUserProfile(ctx context.Context) error
	ResolveConflicts(ctx context.Context) error
	Status() dto.SyncStatus
	NeedsSync() bool
	ClearError()
	ClearCache(ctx context.Context) error
	Subscribe() (<-chan dto.SyncStatusEvent, func())
	Start(ctx context.Context)
}

// SyncOptions tunes the coordinator. Zero values fall back to defaults.
type SyncOptions struct {
	MaxAge        time.Duration
	CheckInterval time.Duration

	// Concurrency bounds in-flight Canvas requests across the whole pass.
	Concurrency int

	RetryAttempts int
	RetryDelay    time.Duration

	// ConflictWindow is the age after which ResolveConflicts re-fetches a cached course.
	ConflictWindow time.Duration

	Resolver ConflictResolver
	Now      func() time.Time
}

type syncService struct {
	api      CanvasAPI
	store    *repository.LocalStore
	state    repository.SyncStateStore
	events   *SyncEventHub
	mapper   *dto.CanvasMapper
	resolver ConflictResolver
	policy   StalenessPolicy
	opts     SyncOptions
	sem      *semaphore.Weighted
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	status  dto.SyncStatus
}

// NewSyncService constructs the coordinator and loads the persisted last full sync time.
func NewSyncService(api CanvasAPI, store *repository.LocalStore, state repository.SyncStateStore, events *SyncEventHub, opts SyncOptions, logger zerolog.Logger) SyncService {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 6
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.ConflictWindow <= 0 {
		opts.ConflictWindow = time.Hour
	}
	if opts.Resolver == nil {
		opts.Resolver = ServerWins{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if events == nil {
		events = NewSyncEventHub(nil, nil, "", logger)
	}

	s := &syncService{
		api:      api,
		store:    store,
		state:    state,
		events:   events,
		mapper:   dto.NewCanvasMapper(),
		resolver: opts.Resolver,
		policy:   StalenessPolicy{MaxAge: opts.MaxAge, Now: opts.Now},
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		logger:   logger.With().Str("component", "sync_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/canvas-sync/internal/service/sync"),
		now:      opts.Now,
		status: dto.SyncStatus{
			State:    dto.SyncStateIdle,
			Failures: []dto.SyncFailure{},
		},
	}

	if state != nil {
		last, err := state.LastFullSyncAt(context.Background())
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load last full sync time; cache will be treated as stale")
		} else {
			s.status.LastFullSyncAt = last
		}
	}

	return s
}

// passRecorder collects isolated child failures of one operation. Only the recorder of a full pass
// is live: its failures are mirrored into the status while the pass runs.
type passRecorder struct {
	live     bool
	mu       sync.Mutex
	failures []dto.SyncFailure
	errs     []error
}

func (r *passRecorder) add(failure dto.SyncFailure, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure)
	r.errs = append(r.errs, err)
}

func (r *passRecorder) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

// SyncAll runs one full pass. Only one pass runs at a time; concurrent callers get ErrSyncInProgress
// without touching the network. Isolated child failures do not fail the pass but are summarised in
// the status last error.
func (s *syncService) SyncAll(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer s.running.Store(false)

	runID := uuid.NewString()
	started := s.now()
	s.begin(ctx, runID, started)

	observability.SyncInProgress().Set(1)
	defer observability.SyncInProgress().Set(0)

	spanCtx, span := s.tracer.Start(ctx, "sync.full", trace.WithAttributes(attribute.String("sync.run_id", runID)))
	defer span.End()

	logger := s.logger.With().Str("run_id", runID).Logger()
	logger.Info().Msg("full sync started")

	err := s.runFullPass(spanCtx, runID)
	duration := s.now().Sub(started)
	observability.SyncDuration().WithLabelValues(syncKindFull).Observe(duration.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.SyncRuns().WithLabelValues(syncKindFull, "failure").Inc()
		logger.Error().Err(err).Str("kind", errorKind(err)).Dur("duration", duration).Msg("full sync failed")
		s.fail(ctx, err)
		return err
	}

	status := s.Status()
	observability.SyncRuns().WithLabelValues(syncKindFull, "success").Inc()
	logger.Info().Int("failures", len(status.Failures)).Dur("duration", duration).Msg("full sync completed")
	return nil
}

func (s *syncService) runFullPass(ctx context.Context, runID string) error {
	recorder := &passRecorder{live: true}

	s.advance(ctx, stageCourses, 0)
	if err := s.syncCourses(ctx); err != nil {
		return fmt.Errorf("sync courses: %w", err)
	}
	s.advance(ctx, stageAssignments, 0.2)

	courses, err := s.store.Courses.List(ctx)
	if err != nil {
		return err
	}
	// Stubs are included so their cached children keep refreshing until Canvas returns the course.
	courseIDs := make([]string, 0, len(courses))
	for _, course := range courses {
		courseIDs = append(courseIDs, course.ID)
	}

	if err := s.forEachCourse(ctx, courseIDs, models.EntityAssignment, recorder, s.syncCourseAssignments); err != nil {
		return err
	}
	s.advance(ctx, stageGrades, 0.5)

	if err := s.forEachCourse(ctx, courseIDs, models.EntityGrade, recorder, func(ctx context.Context, courseID string) error {
		return s.syncCourseGrades(ctx, courseID, recorder)
	}); err != nil {
		return err
	}
	s.advance(ctx, stageDiscussions, 0.7)

	if err := s.forEachCourse(ctx, courseIDs, models.EntityDiscussion, recorder, s.syncCourseDiscussions); err != nil {
		return err
	}
	s.advance(ctx, stageProfile, 0.9)

	if err := s.syncProfile(ctx); err != nil {
		return fmt.Errorf("sync user profile: %w", err)
	}

	return s.complete(ctx, recorder)
}

// forEachCourse fans fn out over courses. Remote failures are recorded and swallowed; local store
// failures and cancellation abort the pass.
func (s *syncService) forEachCourse(ctx context.Context, courseIDs []string, entity models.EntityType, recorder *passRecorder, fn func(context.Context, string) error) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.Concurrency)

	for _, courseID := range courseIDs {
		courseID := courseID
		group.Go(func() error {
			err := fn(groupCtx, courseID)
			if err == nil {
				return nil
			}
			if isFatal(groupCtx, err) {
				return err
			}
			s.recordFailure(recorder, entity, courseID, "", err)
			return nil
		})
	}

	return group.Wait()
}

func (s *syncService) recordFailure(recorder *passRecorder, entity models.EntityType, courseID, assignmentID string, err error) {
	kind := errorKind(err)
	failure := dto.SyncFailure{
		Entity:       string(entity),
		CourseID:     courseID,
		AssignmentID: assignmentID,
		Kind:         kind,
		Message:      err.Error(),
		OccurredAt:   s.now().UTC(),
	}
	recorder.add(failure, err)
	observability.SyncFailures().WithLabelValues(string(entity), kind).Inc()

	s.logger.Warn().Err(err).
		Str("entity", string(entity)).
		Str("course_id", courseID).
		Str("assignment_id", assignmentID).
		Str("kind", kind).
		Msg("child sync failed; continuing with remaining records")

	if !recorder.live {
		return
	}
	s.mu.Lock()
	s.status.Failures = append(s.status.Failures, failure)
	s.mu.Unlock()
}

// markCollectionSynced stamps a whole collection as fetched. Row stamps cannot express this: a
// record removed remotely keeps its old stamp forever.
func (s *syncService) markCollectionSynced(ctx context.Context, entity models.EntityType, parentID string) error {
	if s.state == nil {
		return nil
	}
	return s.state.MarkCollectionSynced(ctx, models.CollectionKey(entity, parentID), s.now().UTC())
}

// SyncIfNeeded runs a full pass when the last one is older than the max age.
func (s *syncService) SyncIfNeeded(ctx context.Context) (bool, error) {
	if !s.NeedsSync() {
		return false, nil
	}
	err := s.SyncAll(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		return false, nil
	}
	return true, err
}

func (s *syncService) NeedsSync() bool {
	s.mu.RLock()
	last := s.status.LastFullSyncAt
	s.mu.RUnlock()
	return s.policy.IsStale(last)
}

func (s *syncService) SyncCourses(ctx context.Context) error {
	return s.partial(ctx, "sync.courses", "", s.syncCourses)
}

func (s *syncService) SyncAssignments(ctx context.Context, courseID string) error {
	return s.partial(ctx, "sync.assignments", courseID, func(ctx context.Context) error {
		return s.syncCourseAssignments(ctx, courseID)
	})
}

// SyncGrades refreshes one course's grades, fetching its assignments first when none are cached.
func (s *syncService) SyncGrades(ctx context.Context, courseID string) error {
	return s.partial(ctx, "sync.grades", courseID, func(ctx context.Context) error {
		cached, err := s.store.Assignments.FindByParent(ctx, courseID)
		if err != nil {
			return err
		}
		if len(cached) == 0 {
			if err := s.syncCourseAssignments(ctx, courseID); err != nil {
				return err
			}
		}

		recorder := &passRecorder{}
		if err := s.syncCourseGrades(ctx, courseID, recorder); err != nil {
			return err
		}
		return recorder.err()
	})
}

func (s *syncService) SyncDiscussions(ctx context.Context, courseID string) error {
	return s.partial(ctx, "sync.discussions", courseID, func(ctx context.Context) error {
		return s.syncCourseDiscussions(ctx, courseID)
	})
}

func (s *syncService) SyncUserProfile(ctx context.Context) error {
	return s.partial(ctx, "sync.profile", "", s.syncProfile)
}

// ResolveConflicts re-fetches cached courses that are stubs or older than the conflict window and
// applies the resolver to each.
func (s *syncService) ResolveConflicts(ctx context.Context) error {
	return s.partial(ctx, "sync.resolve_conflicts", "", func(ctx context.Context) error {
		courses, err := s.store.Courses.List(ctx)
		if err != nil {
			return err
		}

		var pending []models.Course
		for _, course := range courses {
			if course.IsStub || s.policy.IsStaleFor(course.LastSyncedAt, s.opts.ConflictWindow) {
				pending = append(pending, course)
			}
		}

		recorder := &passRecorder{}
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(s.opts.Concurrency)
		for _, local := range pending {
			local := local
			group.Go(func() error {
				var remote canvas.Course
				err := s.remote(groupCtx, func(ctx context.Context) error {
					var err error
					remote, err = s.api.GetCourse(ctx, local.ID)
					return err
				})
				if err != nil {
					if isFatal(groupCtx, err) {
						return err
					}
					s.recordFailure(recorder, models.EntityCourse, local.ID, "", err)
					return nil
				}
				return s.applyCourses(groupCtx, []models.Course{local}, []models.Course{s.mapper.Course(remote)})
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		s.logger.Info().Int("checked", len(pending)).Msg("conflict resolution finished")
		return recorder.err()
	})
}

func (s *syncService) partial(ctx context.Context, name, courseID string, fn func(context.Context) error) error {
	attrs := []attribute.KeyValue{attribute.String("sync.kind", syncKindPartial)}
	if courseID != "" {
		attrs = append(attrs, attribute.String("course.id", courseID))
	}
	spanCtx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	started := s.now()
	err := fn(spanCtx)
	observability.SyncDuration().WithLabelValues(syncKindPartial).Observe(s.now().Sub(started).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.SyncRuns().WithLabelValues(syncKindPartial, "failure").Inc()
		s.logger.Warn().Err(err).Str("operation", name).Str("course_id", courseID).Msg("partial sync failed")
		return err
	}

	observability.SyncRuns().WithLabelValues(syncKindPartial, "success").Inc()
	return nil
}

func (s *syncService) syncCourses(ctx context.Context) error {
	var remote []canvas.Course
	err := s.remote(ctx, func(ctx context.Context) error {
		var err error
		remote, err = s.api.ListCourses(ctx)
		return err
	})
	if err != nil {
		return err
	}

	rows := make([]models.Course, 0, len(remote))
	for _, course := range remote {
		rows = append(rows, s.mapper.Course(course))
	}

	locals, err := s.store.Courses.List(ctx)
	if err != nil {
		return err
	}
	if err := s.applyCourses(ctx, locals, rows); err != nil {
		return err
	}
	return s.markCollectionSynced(ctx, models.EntityCourse, "")
}

func (s *syncService) applyCourses(ctx context.Context, locals, remotes []models.Course) error {
	upserts, touched := partitionByResolver(s.resolver, locals, remotes)
	if _, err := s.store.Courses.UpsertMany(ctx, upserts); err != nil {
		return err
	}
	if err := s.store.Courses.Touch(ctx, touched...); err != nil {
		return err
	}
	observability.SyncUpserts().WithLabelValues(string(models.EntityCourse)).Add(float64(len(upserts)))
	return nil
}

func (s *syncService) syncCourseAssignments(ctx context.Context, courseID string) error {
	var remote []canvas.Assignment
	err := s.remote(ctx, func(ctx context.Context) error {
		var err error
		remote, err = s.api.ListAssignments(ctx, courseID)
		return err
	})
	if err != nil {
		return err
	}

	rows := make([]models.Assignment, 0, len(remote))
	for _, assignment := range remote {
		rows = append(rows, s.mapper.Assignment(courseID, assignment))
	}

	locals, err := s.store.Assignments.FindByParent(ctx, courseID)
	if err != nil {
		return err
	}

	upserts, touched := partitionByResolver(s.resolver, locals, rows)
	if _, err := s.store.Assignments.UpsertMany(ctx, upserts); err != nil {
		return err
	}
	if err := s.store.Assignments.Touch(ctx, touched...); err != nil {
		return err
	}
	observability.SyncUpserts().WithLabelValues(string(models.EntityAssignment)).Add(float64(len(upserts)))
	return s.markCollectionSynced(ctx, models.EntityAssignment, courseID)
}

// syncCourseGrades fetches the user's submission for every cached assignment of the course.
// A missing submission yields no grade; other per-assignment failures go to recorder and leave the
// course's grade collection unstamped.
func (s *syncService) syncCourseGrades(ctx context.Context, courseID string, recorder *passRecorder) error {
	assignments, err := s.store.Assignments.FindByParent(ctx, courseID)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		rows   = make([]models.Grade, 0, len(assignments))
		failed atomic.Bool
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.Concurrency)
	for _, assignment := range assignments {
		assignment := assignment
		group.Go(func() error {
			var (
				submission canvas.Submission
				found      bool
			)
			err := s.remote(groupCtx, func(ctx context.Context) error {
				var err error
				submission, found, err = s.api.GetOwnSubmission(ctx, courseID, assignment.ID)
				return err
			})
			if err != nil {
				if isFatal(groupCtx, err) {
					return err
				}
				failed.Store(true)
				s.recordFailure(recorder, models.EntityGrade, courseID, assignment.ID, err)
				return nil
			}
			if !found {
				return nil
			}

			grade := s.mapper.Grade(assignment, submission)
			mu.Lock()
			rows = append(rows, grade)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	locals, err := s.store.Grades.FindByParent(ctx, courseID)
	if err != nil {
		return err
	}

	upserts, touched := partitionByResolver(s.resolver, locals, rows)
	if _, err := s.store.Grades.UpsertMany(ctx, upserts); err != nil {
		return err
	}
	if err := s.store.Grades.Touch(ctx, touched...); err != nil {
		return err
	}
	observability.SyncUpserts().WithLabelValues(string(models.EntityGrade)).Add(float64(len(upserts)))
	if failed.Load() {
		return nil
	}
	return s.markCollectionSynced(ctx, models.EntityGrade, courseID)
}

func (s *syncService) syncCourseDiscussions(ctx context.Context, courseID string) error {
	var remote []canvas.Discussion
	err := s.remote(ctx, func(ctx context.Context) error {
		var err error
		remote, err = s.api.ListDiscussions(ctx, courseID)
		return err
	})
	if err != nil {
		return err
	}

	rows := make([]models.Discussion, 0, len(remote))
	for _, discussion := range remote {
		rows = append(rows, s.mapper.Discussion(courseID, discussion))
	}

	locals, err := s.store.Discussions.FindByParent(ctx, courseID)
	if err != nil {
		return err
	}

	upserts, touched := partitionByResolver(s.resolver, locals, rows)
	if _, err := s.store.Discussions.UpsertMany(ctx, upserts); err != nil {
		return err
	}
	if err := s.store.Discussions.Touch(ctx, touched...); err != nil {
		return err
	}
	observability.SyncUpserts().WithLabelValues(string(models.EntityDiscussion)).Add(float64(len(upserts)))
	return s.markCollectionSynced(ctx, models.EntityDiscussion, courseID)
}

func (s *syncService) syncProfile(ctx context.Context) error {
	var user canvas.User
	err := s.remote(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.api.GetCurrentUser(ctx)
		return err
	})
	if err != nil {
		return err
	}

	remote := s.mapper.UserProfile(user)

	var local models.SyncRecord
	cached, found, err := s.store.Profiles.FindByID(ctx, remote.ID)
	if err != nil {
		return err
	}
	if found {
		local = cached
	}

	if s.resolver.Resolve(local, remote) == WinnerLocal {
		if err := s.store.Profiles.Touch(ctx, remote.ID); err != nil {
			return err
		}
	} else {
		if _, err := s.store.Profiles.Upsert(ctx, remote); err != nil {
			return err
		}
		observability.SyncUpserts().WithLabelValues(string(models.EntityUserProfile)).Inc()
	}
	return s.markCollectionSynced(ctx, models.EntityUserProfile, "")
}

// remote runs one Canvas call under the shared concurrency limit, retrying retryable failures with
// linear backoff. The limit is not held while backing off.
func (s *syncService) remote(ctx context.Context, call func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= s.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if delay := s.opts.RetryDelay * time.Duration(attempt); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}

		if acquireErr := s.sem.Acquire(ctx, 1); acquireErr != nil {
			return acquireErr
		}
		err = call(ctx)
		s.sem.Release(1)

		if err == nil || !canvas.IsRetryable(err) {
			return err
		}
		s.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying canvas request")
	}
	return err
}

func (s *syncService) begin(ctx context.Context, runID string, started time.Time) {
	s.mu.Lock()
	startedAt := started.UTC()
	s.status.State = dto.SyncStateSyncing
	s.status.IsSyncing = true
	s.status.Progress = 0
	s.status.Stage = stageCourses
	s.status.LastError = nil
	s.status.LastErrorKind = ""
	s.status.Failures = []dto.SyncFailure{}
	s.status.RunID = runID
	s.status.StartedAt = &startedAt
	s.status.FinishedAt = nil
	snapshot := s.status.Clone()
	s.mu.Unlock()

	s.events.Emit(ctx, dto.SyncEventStarted, snapshot)
}

func (s *syncService) advance(ctx context.Context, stage string, progress float64) {
	s.mu.Lock()
	s.status.Stage = stage
	if progress > s.status.Progress {
		s.status.Progress = progress
	}
	snapshot := s.status.Clone()
	s.mu.Unlock()

	s.events.Emit(ctx, dto.SyncEventProgress, snapshot)
}

// complete stamps and persists the pass completion time. The stamp never moves backwards.
func (s *syncService) complete(ctx context.Context, recorder *passRecorder) error {
	finished := s.now().UTC()

	s.mu.RLock()
	previous := s.status.LastFullSyncAt
	s.mu.RUnlock()
	if previous != nil && previous.After(finished) {
		finished = *previous
	}

	if s.state != nil {
		if err := s.state.SetLastFullSyncAt(ctx, finished); err != nil {
			return fmt.Errorf("persist last full sync: %w", err)
		}
	}

	recorder.mu.Lock()
	failures := append([]dto.SyncFailure(nil), recorder.failures...)
	recorder.mu.Unlock()

	s.mu.Lock()
	s.status.State = dto.SyncStateIdle
	s.status.IsSyncing = false
	s.status.Progress = 1
	s.status.Stage = stageCompleted
	s.status.LastFullSyncAt = &finished
	s.status.FinishedAt = &finished
	if len(failures) > 0 {
		summary := summarizeFailures(failures)
		s.status.LastError = &summary
		s.status.LastErrorKind = failures[0].Kind
	}
	snapshot := s.status.Clone()
	s.mu.Unlock()

	if len(failures) > 0 {
		s.logger.Warn().Int("failures", len(failures)).Msg("full sync completed with isolated failures")
	}
	s.events.Emit(ctx, dto.SyncEventCompleted, snapshot)
	return nil
}

// fail records err, reports the Failed state, then returns the machine to Idle.
func (s *syncService) fail(ctx context.Context, err error) {
	finished := s.now().UTC()
	message := err.Error()

	s.mu.Lock()
	s.status.State = dto.SyncStateFailed
	s.status.IsSyncing = false
	s.status.Stage = "Sync failed: " + message
	s.status.LastError = &message
	s.status.LastErrorKind = errorKind(err)
	s.status.FinishedAt = &finished
	snapshot := s.status.Clone()
	s.status.State = dto.SyncStateIdle
	s.mu.Unlock()

	s.events.Emit(context.WithoutCancel(ctx), dto.SyncEventFailed, snapshot)
}

func (s *syncService) Status() dto.SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := s.status.Clone()
	status.IsSyncing = s.running.Load()
	if status.IsSyncing {
		status.State = dto.SyncStateSyncing
	}
	return status
}

func (s *syncService) ClearError() {
	s.mu.Lock()
	s.status.LastError = nil
	s.status.LastErrorKind = ""
	s.status.Failures = []dto.SyncFailure{}
	if s.status.State == dto.SyncStateFailed {
		s.status.State = dto.SyncStateIdle
	}
	snapshot := s.status.Clone()
	s.mu.Unlock()

	s.events.Emit(context.Background(), dto.SyncEventErrorCleared, snapshot)
}

// ClearCache wipes every cached row and forgets the last full sync. It refuses to run during a pass.
func (s *syncService) ClearCache(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer s.running.Store(false)

	if err := s.store.ClearCache(ctx); err != nil {
		return err
	}
	if s.state != nil {
		if err := s.state.Reset(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.status.LastFullSyncAt = nil
	s.status.Progress = 0
	s.status.Stage = ""
	snapshot := s.status.Clone()
	s.mu.Unlock()

	s.logger.Info().Msg("local cache cleared")
	s.events.Emit(ctx, dto.SyncEventCacheCleared, snapshot)
	return nil
}

func (s *syncService) Subscribe() (<-chan dto.SyncStatusEvent, func()) {
	return s.events.Subscribe()
}

// Start relays remote events and checks staleness every CheckInterval until ctx is done.
func (s *syncService) Start(ctx context.Context) {
	s.events.Start(ctx)

	go func() {
		ticker := time.NewTicker(s.opts.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SyncIfNeeded(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Error().Err(err).Msg("scheduled sync failed")
				}
			}
		}
	}()
}

// summarizeFailures names the first failed record so the error is actionable without the failure list.
func summarizeFailures(failures []dto.SyncFailure) string {
	first := failures[0]
	target := "course " + first.CourseID
	if first.AssignmentID != "" {
		target += " assignment " + first.AssignmentID
	}
	return fmt.Sprintf("%d record(s) failed to sync; first %s for %s: %s", len(failures), first.Entity, target, first.Message)
}

// isFatal reports errors that must abort a pass instead of being isolated to one course. A request
// timeout is not fatal; only the pass context ending is.
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, repository.ErrLocalStore) || ctx.Err() != nil
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, repository.ErrLocalStore):
		return "local_store"
	case errors.Is(err, ErrSyncInProgress):
		return "sync_in_progress"
	default:
		return canvas.KindOf(err)
	}
}
