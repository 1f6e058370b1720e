package docstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMemStoreSetMergeAndUpdate(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	s := NewMemStore(WithClock(fixedClock(now)))
	ctx := context.Background()

	if err := s.Update(ctx, "conversations/general", Fields{"messageCount": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update on missing doc: got %v, want ErrNotFound", err)
	}

	err := s.Set(ctx, "conversations/general", Fields{
		"messageCount":  Increment(1),
		"readCounts.u1": Increment(1),
		"lastMessageAt": ServerTimestamp(),
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Set(ctx, "conversations/general", Fields{
		"messageCount": Increment(2),
		"readCounts":   map[string]any{"u2": 1},
	}, true)
	if err != nil {
		t.Fatal(err)
	}

	doc, err := s.Get(ctx, "conversations/general")
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Fields.Int64("messageCount"); got != 3 {
		t.Errorf("messageCount = %d, want 3", got)
	}
	if got := doc.Fields.Int64("readCounts.u1"); got != 1 {
		t.Errorf("readCounts.u1 = %d, want 1 (deep merge kept it)", got)
	}
	if got := doc.Fields.Int64("readCounts.u2"); got != 1 {
		t.Errorf("readCounts.u2 = %d, want 1", got)
	}
	if got := doc.Fields.Time("lastMessageAt"); !got.Equal(now) {
		t.Errorf("lastMessageAt = %v, want %v", got, now)
	}

	if err := s.Update(ctx, "conversations/general", Fields{"readCounts": map[string]any{"u3": 2}}); err != nil {
		t.Fatal(err)
	}
	doc, _ = s.Get(ctx, "conversations/general")
	if doc.Fields.Has("readCounts.u1") {
		t.Errorf("update with a map value should replace the map")
	}
}

func TestMemStoreSubscribeOrderingAndLimit(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d"} {
		_ = s.Set(ctx, Join("rooms", "r", "messages", id), Fields{"createdAt": time.UnixMilli(int64(i))}, false)
	}

	var got [][]string
	cancel, err := s.Subscribe(ctx, Query{Collection: "rooms/r/messages", OrderBy: "createdAt", Desc: true, Limit: 2},
		func(docs []Document) {
			ids := make([]string, len(docs))
			for i, d := range docs {
				ids[i] = d.ID
			}
			got = append(got, ids)
		})
	if err != nil {
		t.Fatal(err)
	}

	_ = s.Set(ctx, "rooms/r/messages/e", Fields{"createdAt": time.UnixMilli(10)}, false)
	cancel()
	_ = s.Set(ctx, "rooms/r/messages/f", Fields{"createdAt": time.UnixMilli(11)}, false)

	want := [][]string{{"d", "c"}, {"e", "d"}}
	if len(got) != len(want) {
		t.Fatalf("got %d snapshots, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i][0] != want[i][0] || got[i][1] != want[i][1] {
			t.Errorf("snapshot %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMemStoreCallbacksDoNotReenter(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	depth, maxDepth := 0, 0
	var seen []int64
	_, _ = s.Watch(ctx, "counters/c", func(doc Document, exists bool) {
		depth++
		if depth > maxDepth {
			maxDepth = depth
		}
		n := doc.Fields.Int64("n")
		seen = append(seen, n)
		if exists && n < 3 {
			_ = s.Set(ctx, "counters/c", Fields{"n": Increment(1)}, true)
		}
		depth--
	})
	_ = s.Set(ctx, "counters/c", Fields{"n": 1}, false)

	if maxDepth != 1 {
		t.Errorf("callbacks nested %d deep", maxDepth)
	}
	want := []int64{0, 1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("seen %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen %v, want %v", seen, want)
			break
		}
	}
}

func TestMemStorePauseDuplicateAndFailures(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	calls := 0
	_, _ = s.Watch(ctx, "users/u1", func(Document, bool) { calls++ })
	if calls != 1 {
		t.Fatalf("initial delivery: calls = %d", calls)
	}

	s.Pause()
	_ = s.Set(ctx, "users/u1", Fields{"name": "Ann"}, true)
	if calls != 1 {
		t.Fatalf("delivered while paused")
	}
	s.SetDuplicateDelivery(true)
	_ = s.Set(ctx, "users/u1", Fields{"name": "Bo"}, true)
	s.Resume()
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (one queued + one duplicated pair)", calls)
	}

	boom := errors.New("permission denied")
	s.FailWrites("users/", boom)
	if err := s.Set(ctx, "users/u1", Fields{"name": "Cy"}, true); !errors.Is(err, boom) {
		t.Errorf("got %v, want injected failure", err)
	}
	s.FailWrites("users/", nil)
	if err := s.Set(ctx, "users/u1", Fields{"name": "Cy"}, true); err != nil {
		t.Errorf("failure not cleared: %v", err)
	}
}

func TestEvaluateSkipsDocsWithoutOrderField(t *testing.T) {
	docs := []Document{
		{ID: "a", Fields: Fields{"order": int64(2)}},
		{ID: "b", Fields: Fields{}},
		{ID: "c", Fields: Fields{"order": 1}},
	}
	out := Evaluate(docs, Query{OrderBy: "order"})
	if len(out) != 2 || out[0].ID != "c" || out[1].ID != "a" {
		t.Errorf("got %+v", out)
	}
}
