package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const streamHeartbeat = 25 * time.Second

// BoardSource lists every task on the board.
type BoardSource interface {
	GetAll(ctx context.Context) ([]domain.Task, error)
}

// Stream pushes the sorted board to server-sent event clients whenever a
// task event arrives, either published in process or received from Redis.
type Stream struct {
	tasks  BoardSource
	logger *log.Logger
	now    func() time.Time

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewStream(tasks BoardSource, logger *log.Logger) *Stream {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Stream{tasks: tasks, logger: logger, now: time.Now, subs: make(map[chan []byte]struct{})}
}

func (s *Stream) subscribe() chan []byte {
	ch := make(chan []byte, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Stream) unsubscribe(ch chan []byte) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

func (s *Stream) clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// broadcast hands data to every client. A slow client keeps only the newest
// board.
func (s *Stream) broadcast(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- data:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}
}

func (s *Stream) board(ctx context.Context) ([]byte, error) {
	tasks, err := s.tasks.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(boardResponse{
		Tasks: domain.SortTasks(tasks),
		Stats: domain.ComputeStats(tasks, tasks, s.now()),
	})
}

// Refresh reloads the board and sends it to every client.
func (s *Stream) Refresh(ctx context.Context) error {
	if s.clients() == 0 {
		return nil
	}
	data, err := s.board(ctx)
	if err != nil {
		return err
	}
	s.broadcast(data)
	return nil
}

// Publish lets the stream act as an in-process event sink.
func (s *Stream) Publish(ctx context.Context, ev domain.TaskEvent) error {
	return s.Refresh(ctx)
}

// Listen refreshes clients for every event on the Redis channel until ctx is
// done, resubscribing when the channel closes.
func (s *Stream) Listen(ctx context.Context, rc *redis.Client, channel string) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.TaskEvent
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
					s.logger.Errorf("unable to parse task event: %v", err)
					continue
				}
				s.logger.WithFields(log.Fields{"event": ev.Type, "task": ev.TaskID}).Debug("task event received")
				if err := s.Refresh(ctx); err != nil {
					s.logger.Errorf("refresh board: %v", err)
				}
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// Handler serves GET /api/stream.
func (s *Stream) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		ctx := c.Request().Context()
		ch := s.subscribe()
		defer s.unsubscribe(ch)

		data, err := s.board(ctx)
		if err != nil {
			return failure(c, err, noticeLoadFailed)
		}

		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set(echo.HeaderCacheControl, "no-cache")
		h.Set(echo.HeaderConnection, "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()
		for {
			if data != nil {
				if err := writeEvent(c.Response(), data); err != nil {
					s.logger.WithError(err).Debug("stream client gone")
					return nil
				}
				flusher.Flush()
				data = nil
			}
			select {
			case <-ctx.Done():
				return nil
			case data = <-ch:
			case <-heartbeat.C:
				if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, data []byte) error {
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
