package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return m, client
}

func TestRedisDeduperReserveComplete(t *testing.T) {
	_, client := setupRedis(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	owned, err := deduper.Reserve(ctx, "user", "k1")
	if err != nil || !owned {
		t.Fatalf("expected first reserve to own the key, got %v, %v", owned, err)
	}
	owned, err = deduper.Reserve(ctx, "user", "k1")
	if err != nil || owned {
		t.Fatalf("expected second reserve to be rejected, got %v, %v", owned, err)
	}

	if _, done, err := deduper.Lookup(ctx, "user", "k1"); err != nil || done {
		t.Fatalf("expected pending key, got done=%v err=%v", done, err)
	}
	if err := deduper.Complete(ctx, "user", "k1", 42); err != nil {
		t.Fatalf("complete: %v", err)
	}
	id, done, err := deduper.Lookup(ctx, "user", "k1")
	if err != nil || !done || id != 42 {
		t.Fatalf("expected task 42, got %d done=%v err=%v", id, done, err)
	}
}

func TestRedisDeduperKeyNamespacing(t *testing.T) {
	m, client := setupRedis(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	if _, err := deduper.Reserve(ctx, "user", "k1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !m.Exists("idem:user:k1") {
		t.Fatalf("expected namespaced key, have %v", m.Keys())
	}
	if ttl := m.TTL("idem:user:k1"); ttl != time.Minute {
		t.Fatalf("expected ttl of one minute, got %v", ttl)
	}
	owned, err := deduper.Reserve(ctx, "other", "k1")
	if err != nil || !owned {
		t.Fatalf("keys must be scoped per user, got %v, %v", owned, err)
	}

	if err := deduper.Remove(ctx, "user", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m.Exists("idem:user:k1") {
		t.Fatal("expected key to be removed")
	}
}

func TestRedisDeduperCorruptEntry(t *testing.T) {
	m, client := setupRedis(t)
	deduper := NewRedisDeduper(client, time.Minute)
	if err := m.Set("idem:user:bad", "not-a-number"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := deduper.Lookup(context.Background(), "user", "bad"); err == nil {
		t.Fatal("expected error for corrupt entry")
	}
}

func TestCreateTaskReplaysIdempotencyKey(t *testing.T) {
	_, client := setupRedis(t)
	s := newTestServer(t, func(d *Deps) { d.Deduper = NewRedisDeduper(client, time.Minute) })

	first := s.do(t, http.MethodPost, "/api/tasks", `{"title":"Once"}`, idempotencyHdr, "abc")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := s.do(t, http.MethodPost, "/api/tasks", `{"title":"Once"}`, idempotencyHdr, "abc")
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d: %s", second.Code, second.Body.String())
	}
	a := decode[taskResponse](t, first).Task
	b := decode[taskResponse](t, second).Task
	if a.ID != b.ID {
		t.Fatalf("replay created a new task: %d vs %d", a.ID, b.ID)
	}

	board := decode[boardResponse](t, s.do(t, http.MethodGet, "/api/tasks", ""))
	if len(board.Tasks) != 1 {
		t.Fatalf("expected a single task, got %d", len(board.Tasks))
	}
}

func TestCreateTaskFailureReleasesKey(t *testing.T) {
	m, client := setupRedis(t)
	s := newTestServer(t, func(d *Deps) { d.Deduper = NewRedisDeduper(client, time.Minute) })

	rec := s.do(t, http.MethodPost, "/api/tasks", `{"title":""}`, idempotencyHdr, "retry-me")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if m.Exists("idem:" + AnonymousUser + ":retry-me") {
		t.Fatal("expected key to be released after failed create")
	}
	rec = s.do(t, http.MethodPost, "/api/tasks", `{"title":"fixed"}`, idempotencyHdr, "retry-me")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected retry to create, got %d", rec.Code)
	}
}

func TestCreateTaskPendingKeyConflicts(t *testing.T) {
	m, client := setupRedis(t)
	s := newTestServer(t, func(d *Deps) { d.Deduper = NewRedisDeduper(client, time.Minute) })
	if err := m.Set("idem:"+AnonymousUser+":busy", pendingMarker); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec := s.do(t, http.MethodPost, "/api/tasks", `{"title":"x"}`, idempotencyHdr, "busy")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCreateTaskWithoutRedisStillWorks(t *testing.T) {
	m, client := setupRedis(t)
	s := newTestServer(t, func(d *Deps) { d.Deduper = NewRedisDeduper(client, time.Minute) })
	m.Close()
	rec := s.do(t, http.MethodPost, "/api/tasks", `{"title":"x"}`, idempotencyHdr, "k")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 when redis is down, got %d", rec.Code)
	}
}
