package redisstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/teemtee/tmtweb/internal/config"
	"github.com/teemtee/tmtweb/internal/domain"
	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/domain/task"
)

// testConnect connects to Redis or skips the test if REDIS_ADDR is not set.
func testConnect(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("requires REDIS_ADDR")
	}

	s, err := Connect(context.Background(), config.Redis{Addr: addr, TaskTTL: time.Minute})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func testDescriptors() []metadata.Descriptor {
	return []metadata.Descriptor{
		{Kind: metadata.KindTest, URL: "https://example.com/repo", Name: "/tests/smoke"},
	}
}

func TestCreateAndGet(t *testing.T) {
	s := testConnect(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testDescriptors())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.Status != task.StatusPending {
		t.Fatalf("created = %+v, want pending with id", created)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != created.ID || got.Status != task.StatusPending {
		t.Errorf("got = %+v", got)
	}
	if len(got.Descriptors) != 1 || got.Descriptors[0].Name != "/tests/smoke" {
		t.Errorf("descriptors = %+v", got.Descriptors)
	}
}

func TestGetMissing(t *testing.T) {
	s := testConnect(t)

	_, err := s.Get(context.Background(), "no-such-task")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTransitionLifecycle(t *testing.T) {
	s := testConnect(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testDescriptors())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Transition(ctx, created.ID, task.StatusRunning, nil, ""); err != nil {
		t.Fatalf("Transition to running: %v", err)
	}

	res := &metadata.Result{Outcomes: []metadata.Outcome{{
		Record: &metadata.Record{Descriptor: testDescriptors()[0], Data: map[string]any{"summary": "x"}},
	}}}
	if err := s.Transition(ctx, created.ID, task.StatusSuccess, res, ""); err != nil {
		t.Fatalf("Transition to success: %v", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != task.StatusSuccess || got.CompletedAt == nil {
		t.Errorf("got = %+v, want completed success", got)
	}
	if got.Result == nil || len(got.Result.Outcomes) != 1 {
		t.Errorf("result = %+v", got.Result)
	}
}

func TestTransitionStale(t *testing.T) {
	s := testConnect(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testDescriptors())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Transition(ctx, created.ID, task.StatusFailure, nil, "no descriptor resolved"); err != nil {
		t.Fatalf("Transition to failure: %v", err)
	}

	err = s.Transition(ctx, created.ID, task.StatusRunning, nil, "")
	if !errors.Is(err, domain.ErrStaleTransition) {
		t.Fatalf("err = %v, want ErrStaleTransition", err)
	}

	// The stored record must be untouched by the refused transition.
	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != task.StatusFailure || got.Error != "no descriptor resolved" {
		t.Errorf("got = %+v, want unchanged failure record", got)
	}
}

func TestTransitionMissing(t *testing.T) {
	s := testConnect(t)

	err := s.Transition(context.Background(), "no-such-task", task.StatusRunning, nil, "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
