package feed

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"choreboard/domain"
)

func newFeedFixture(t *testing.T) (*redis.Client, *Feed[domain.Task]) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return rc, New[domain.Task](Config{Client: rc}, domain.EntityTasks)
}

func subscribeAndWait(t *testing.T, f *Feed[domain.Task], scope string, events chan domain.ChangeEvent[domain.Task]) func() {
	t.Helper()
	health := make(chan bool, 4)
	sub, err := f.Subscribe(scope,
		func(ev domain.ChangeEvent[domain.Task]) { events <- ev },
		func(ok bool) { health <- ok })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	select {
	case ok := <-health:
		if !ok {
			t.Fatal("first health report should be up")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no health report")
	}
	return func() { _ = sub.Close() }
}

func TestFeedDeliversNormalizedEvents(t *testing.T) {
	rc, f := newFeedFixture(t)
	events := make(chan domain.ChangeEvent[domain.Task], 4)
	closeSub := subscribeAndWait(t, f, "fam-1", events)
	defer closeSub()

	ctx := context.Background()
	payload := `{"kind":"INSERT","entityType":"tasks","id":"srv-1","row":{"title":"dishes","lane":"TODO"}}`
	if err := rc.Publish(ctx, "changes:fam-1:tasks", payload).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != domain.ChangeInsert || ev.ID != "srv-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Row.ID != "srv-1" || ev.Row.Title != "dishes" || ev.Row.Lane != domain.LaneTodo {
			t.Fatalf("row not normalized: %+v", ev.Row)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestFeedDeleteEventNeedsNoRow(t *testing.T) {
	rc, f := newFeedFixture(t)
	events := make(chan domain.ChangeEvent[domain.Task], 4)
	closeSub := subscribeAndWait(t, f, "fam-1", events)
	defer closeSub()

	payload := `{"kind":"DELETE","entityType":"tasks","id":"srv-1"}`
	if err := rc.Publish(context.Background(), "changes:fam-1:tasks", payload).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != domain.ChangeDelete || ev.ID != "srv-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestFeedDropsMalformedEvents(t *testing.T) {
	rc, f := newFeedFixture(t)
	events := make(chan domain.ChangeEvent[domain.Task], 4)
	closeSub := subscribeAndWait(t, f, "fam-1", events)
	defer closeSub()

	ctx := context.Background()
	bad := []string{
		`not json at all`,
		`{"kind":"TRUNCATE","id":"x"}`,
		`{"kind":"INSERT","id":""}`,
		`{"kind":"INSERT","id":"x"}`,
		`{"kind":"INSERT","entityType":"members","id":"m-1","row":{}}`,
	}
	for _, payload := range bad {
		if err := rc.Publish(ctx, "changes:fam-1:tasks", payload).Err(); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	good := `{"kind":"INSERT","entityType":"tasks","id":"srv-1","row":{"title":"dishes","lane":"TODO"}}`
	if err := rc.Publish(ctx, "changes:fam-1:tasks", good).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-events:
		if ev.ID != "srv-1" {
			t.Fatalf("malformed event leaked through: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid event not delivered")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFeedScopesAreIsolated(t *testing.T) {
	rc, f := newFeedFixture(t)
	events := make(chan domain.ChangeEvent[domain.Task], 4)
	closeSub := subscribeAndWait(t, f, "fam-1", events)
	defer closeSub()

	payload := `{"kind":"INSERT","entityType":"tasks","id":"srv-1","row":{"title":"dishes","lane":"TODO"}}`
	if err := rc.Publish(context.Background(), "changes:fam-2:tasks", payload).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-events:
		t.Fatalf("event from another scope delivered: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPublisherFeedRoundTrip(t *testing.T) {
	rc, f := newFeedFixture(t)
	events := make(chan domain.ChangeEvent[domain.Task], 4)
	closeSub := subscribeAndWait(t, f, "fam-1", events)
	defer closeSub()

	pub := NewPublisher(rc, nil)
	task := domain.Task{ID: "srv-1", Title: "dishes", Lane: domain.LaneTodo}
	pub.Notify(context.Background(), "fam-1", domain.EntityTasks, domain.ChangeUpdate, "srv-1", task)

	select {
	case ev := <-events:
		if ev.Kind != domain.ChangeUpdate || ev.Row.Title != "dishes" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("published event not delivered")
	}
}
