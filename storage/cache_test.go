package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"choreboard/domain"
)

func newSnapshotFixture(t *testing.T) (*miniredis.Miniredis, *Snapshot[domain.Task]) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return mr, NewSnapshot[domain.Task](domain.EntityTasks, rc, time.Hour)
}

func TestSnapshotRoundTrip(t *testing.T) {
	_, snap := newSnapshotFixture(t)
	ctx := context.Background()

	if _, ok := snap.Load(ctx, "fam-1"); ok {
		t.Fatal("empty cache must miss")
	}

	tasks := []domain.Task{{ID: "a", Title: "dishes", Lane: domain.LaneTodo}}
	snap.Store(ctx, "fam-1", tasks)

	got, ok := snap.Load(ctx, "fam-1")
	if !ok || len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("Load = %+v/%v", got, ok)
	}

	if _, ok := snap.Load(ctx, "fam-2"); ok {
		t.Fatal("snapshots must be per scope")
	}

	snap.Evict(ctx, "fam-1")
	if _, ok := snap.Load(ctx, "fam-1"); ok {
		t.Fatal("evicted snapshot still served")
	}
}

func TestSnapshotDropsCorruptData(t *testing.T) {
	mr, snap := newSnapshotFixture(t)
	ctx := context.Background()

	if err := mr.Set("snapshot:tasks:fam-1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := snap.Load(ctx, "fam-1"); ok {
		t.Fatal("corrupt snapshot must miss")
	}
	if mr.Exists("snapshot:tasks:fam-1") {
		t.Fatal("corrupt snapshot must be evicted")
	}
}

func TestSnapshotNilReceivers(t *testing.T) {
	ctx := context.Background()
	var nilSnap *Snapshot[domain.Task]
	nilSnap.Store(ctx, "fam-1", nil)
	if _, ok := nilSnap.Load(ctx, "fam-1"); ok {
		t.Fatal("nil snapshot must miss")
	}

	noRedis := NewSnapshot[domain.Task](domain.EntityTasks, nil, time.Hour)
	noRedis.Store(ctx, "fam-1", nil)
	if _, ok := noRedis.Load(ctx, "fam-1"); ok {
		t.Fatal("snapshot without redis must miss")
	}
}
