package performance_test

import (
	"bufio"
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/noah-isme/canvas-sync/internal/dto"
	"github.com/noah-isme/canvas-sync/internal/handler"
	"github.com/noah-isme/canvas-sync/internal/middleware"
	"github.com/noah-isme/canvas-sync/internal/service"
)

func newStatusStreamApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	syncHandler := handler.NewSyncHandler(newHubSyncService(), validator.New(), zerolog.Nop(), time.Second, nil)
	syncHandler.Register(app.Group("/api/v1"))
	return app
}

func TestSyncStatusWebsocketP95Under250ms(t *testing.T) {
	baseURL, shutdown := startFiberServer(t, newStatusStreamApp())
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v1/sync/ws"
	clients := 200
	durations := make([]time.Duration, 0, clients)

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	for i := 0; i < clients; i++ {
		start := time.Now()
		conn, resp, err := dialer.Dial(url, http.Header{"X-Correlation-ID": {"perf-" + strconv.Itoa(i)}})
		if err != nil {
			t.Fatalf("websocket dial failed: %v", err)
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("failed to read snapshot: %v", err)
		}
		_ = conn.Close()

		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)

	if p95 > 250*time.Millisecond {
		t.Fatalf("expected websocket P95 <= 250ms, got %s", p95)
	}
}

func TestSyncStatusSSEP95Under300ms(t *testing.T) {
	baseURL, shutdown := startFiberServer(t, newStatusStreamApp())
	defer shutdown()

	client := &http.Client{Timeout: 5 * time.Second}
	clients := 100
	durations := make([]time.Duration, 0, clients)

	for i := 0; i < clients; i++ {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/sync/events", nil)
		if err != nil {
			t.Fatalf("build request failed: %v", err)
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("sse request failed: %v", err)
		}

		reader := bufio.NewReader(resp.Body)
		deadline := time.Now().Add(2 * time.Second)

		for {
			if time.Now().After(deadline) {
				t.Fatalf("sse response timed out for client %d", i)
			}
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("failed to read sse line: %v", err)
			}
			if strings.HasPrefix(line, "data:") {
				durations = append(durations, time.Since(start))
				break
			}
		}

		resp.Body.Close()
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)

	if p95 > 300*time.Millisecond {
		t.Fatalf("expected SSE P95 <= 300ms, got %s", p95)
	}
}

func percentile(values []time.Duration, pct float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	index := int(math.Ceil(pct*float64(len(values)))) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(values) {
		index = len(values) - 1
	}
	return values[index]
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}

// hubSyncService serves a fixed status and fans events out through a real hub.
type hubSyncService struct {
	hub *service.SyncEventHub
}

func newHubSyncService() *hubSyncService {
	return &hubSyncService{hub: service.NewSyncEventHub(nil, nil, "", zerolog.Nop())}
}

func (s *hubSyncService) SyncAll(context.Context) error                 { return nil }
func (s *hubSyncService) SyncIfNeeded(context.Context) (bool, error)    { return false, nil }
func (s *hubSyncService) SyncCourses(context.Context) error             { return nil }
func (s *hubSyncService) SyncAssignments(context.Context, string) error { return nil }
func (s *hubSyncService) SyncGrades(context.Context, string) error      { return nil }
func (s *hubSyncService) SyncDiscussions(context.Context, string) error { return nil }
func (s *hubSyncService) SyncUserProfile(context.Context) error         { return nil }
func (s *hubSyncService) ResolveConflicts(context.Context) error        { return nil }
func (s *hubSyncService) NeedsSync() bool                               { return false }
func (s *hubSyncService) ClearError()                                   {}
func (s *hubSyncService) ClearCache(context.Context) error              { return nil }
func (s *hubSyncService) Start(ctx context.Context)                     { s.hub.Start(ctx) }

func (s *hubSyncService) Status() dto.SyncStatus {
	return dto.SyncStatus{State: dto.SyncStateIdle, Progress: 1, Failures: []dto.SyncFailure{}}
}

func (s *hubSyncService) Subscribe() (<-chan dto.SyncStatusEvent, func()) {
	return s.hub.Subscribe()
}
