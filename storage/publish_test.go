package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

type fakeQueue struct {
	messages []string
	err      error
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	if f.err != nil {
		return azqueue.EnqueueMessagesResponse{}, f.err
	}
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestQueuePublisherEnqueuesJSON(t *testing.T) {
	q := &fakeQueue{}
	p := &QueuePublisher{queue: q}
	ev := domain.TaskEvent{ID: "e1", Type: domain.TaskCreated, TaskID: 4, Time: 10}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(q.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(q.messages))
	}
	var got domain.TaskEvent
	if err := sonic.UnmarshalString(q.messages[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "e1" || got.TaskID != 4 || got.Type != domain.TaskCreated {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestRedisPublisherPublishes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub := client.Subscribe(ctx, DefaultEventsChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p := NewRedisPublisher(client, "")
	if err := p.Publish(ctx, domain.TaskEvent{ID: "e2", Type: domain.TaskDeleted, TaskID: 9}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-sub.Channel():
		var got domain.TaskEvent
		if err := sonic.UnmarshalString(msg.Payload, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != "e2" || got.Type != domain.TaskDeleted {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for event")
	}
}

func TestMultiPublisherJoinsErrors(t *testing.T) {
	ok := &fakeQueue{}
	bad := &fakeQueue{err: errors.New("queue down")}
	m := MultiPublisher{&QueuePublisher{queue: bad}, nil, &QueuePublisher{queue: ok}}
	err := m.Publish(context.Background(), domain.TaskEvent{ID: "e3"})
	if err == nil || err.Error() != "queue down" {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.messages) != 1 {
		t.Fatalf("healthy publishers must still receive the event")
	}
}
