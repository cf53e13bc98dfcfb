package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/domain"
	"taskboard/records"
	"taskboard/service"
	"taskboard/storage"
)

type flushRecorder struct{ *httptest.ResponseRecorder }

func (flushRecorder) Flush() {}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newBoardStream(t *testing.T) (*Stream, *service.TaskService) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	tasks := service.NewTaskService(records.NewMemoryStore(), nil)
	s := NewStream(tasks, logger)
	s.now = func() time.Time { return boardNow }
	return s, tasks
}

func TestStreamHandlerPushesBoardOnEvents(t *testing.T) {
	s, tasks := newBoardStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := flushRecorder{httptest.NewRecorder()}
	c := e.NewContext(req, rec)

	done := make(chan error, 1)
	go func() { done <- s.Handler()(c) }()
	waitFor(t, "stream subscriber", func() bool { return s.clients() == 1 })

	if _, err := tasks.Create(context.Background(), domain.TaskInput{Title: "Streamed"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Publish(context.Background(), domain.TaskEvent{Type: domain.TaskCreated}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// Give the handler a moment to write the pushed board.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("handler returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not stop after cancel")
	}

	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	events := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	if len(events) != 2 {
		t.Fatalf("expected initial and pushed board, got %q", rec.Body.String())
	}
	var board boardResponse
	if err := sonic.UnmarshalString(strings.TrimPrefix(events[1], "data: "), &board); err != nil {
		t.Fatalf("decode pushed board: %v", err)
	}
	if len(board.Tasks) != 1 || board.Tasks[0].Title != "Streamed" || board.Stats.Total != 1 {
		t.Fatalf("unexpected pushed board %+v", board)
	}
	if s.clients() != 0 {
		t.Fatal("expected subscriber to be removed")
	}
}

func TestStreamBroadcastKeepsNewestBoard(t *testing.T) {
	s, _ := newBoardStream(t)
	ch := s.subscribe()
	s.broadcast([]byte("old"))
	s.broadcast([]byte("new"))
	if got := string(<-ch); got != "new" {
		t.Fatalf("expected newest board, got %q", got)
	}
	s.unsubscribe(ch)
	s.broadcast([]byte("gone"))
	select {
	case <-ch:
		t.Fatal("received board after unsubscribe")
	default:
	}
}

func TestStreamRefreshWithoutClientsSkipsFetch(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewStream(brokenTasks{err: records.ErrConflict}, logger)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("expected no fetch without clients, got %v", err)
	}
}

func TestStreamListenRefreshesOnRedisEvents(t *testing.T) {
	m, client := setupRedis(t)
	s, tasks := newBoardStream(t)
	pub := storage.NewRedisPublisher(client, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Listen(ctx, client, pub.Channel())
	waitFor(t, "redis subscription", func() bool {
		return m.PubSubNumSub(pub.Channel())[pub.Channel()] == 1
	})

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	task, err := tasks.Create(context.Background(), domain.TaskInput{Title: "From redis", Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := pub.Publish(context.Background(), domain.TaskEvent{ID: "e1", Type: domain.TaskCreated, TaskID: task.ID}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-ch:
		var board boardResponse
		if err := sonic.Unmarshal(data, &board); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(board.Tasks) != 1 || board.Tasks[0].ID != task.ID || board.Stats.Urgent != 1 {
			t.Fatalf("unexpected board %+v", board)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no board pushed after redis event")
	}
}
