package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openomni/omni/schema"
)

// storeUnderTest builds each backend against temporary storage.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	file, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sqlite, err := NewSQLStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlite.Close() })

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   file,
		"sqlite": sqlite,
	}
	if addr := os.Getenv("OMNI_TEST_REDIS_ADDR"); addr != "" {
		redis, err := NewRedisStore(addr, WithKeyPrefix("omnitest:"+t.Name()+":"))
		if err != nil {
			t.Fatalf("redis store: %v", err)
		}
		t.Cleanup(func() { redis.Close() })
		stores["redis"] = redis
	}
	return stores
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := NewSession("s1")
			sess.UserID = "u1"
			sess.Name = "support chat"
			sess.Runs = append(sess.Runs, NewRunRecord(RunnerAgent, "helper", "hello", "hi there", true, 1))

			if err := store.Save(ctx, sess); err != nil {
				t.Fatal(err)
			}
			got, err := store.Get(ctx, "s1")
			if err != nil {
				t.Fatal(err)
			}
			if got.UserID != "u1" || got.Name != "support chat" {
				t.Fatalf("session fields lost: %+v", got)
			}
			if len(got.Runs) != 1 || got.Runs[0].Task != "hello" || !got.Runs[0].Success {
				t.Fatalf("runs lost: %+v", got.Runs)
			}

			if _, err := store.Get(ctx, "missing"); !errors.Is(err, schema.ErrSessionNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}

			if err := store.Delete(ctx, "s1"); err != nil {
				t.Fatal(err)
			}
			if _, err := store.Get(ctx, "s1"); !errors.Is(err, schema.ErrSessionNotFound) {
				t.Fatalf("delete did not remove session: %v", err)
			}
		})
	}
}

func TestAddRunCreatesAndAppends(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := store.AddRun(ctx, "s2", NewRunRecord(RunnerAgent, "a", "t1", "r1", true, 2)); err != nil {
				t.Fatal(err)
			}
			if err := store.AddRun(ctx, "s2", NewRunRecord(RunnerAgent, "a", "t2", "r2", false, 3)); err != nil {
				t.Fatal(err)
			}

			got, err := store.Get(ctx, "s2")
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Runs) != 2 {
				t.Fatalf("expected 2 runs, got %d", len(got.Runs))
			}
			if got.Runs[0].Task != "t1" || got.Runs[1].Task != "t2" {
				t.Fatalf("run order wrong: %+v", got.Runs)
			}
		})
	}
}

func TestAddRunConcurrent(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const writers = 10

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					run := NewRunRecord(RunnerAgent, "a", "task", "resp", true, 1)
					if err := store.AddRun(ctx, "s3", run); err != nil {
						t.Errorf("writer %d: %v", i, err)
					}
				}(i)
			}
			wg.Wait()

			got, err := store.Get(ctx, "s3")
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Runs) != writers {
				t.Fatalf("lost runs under concurrency: %d of %d", len(got.Runs), writers)
			}
		})
	}
}

func TestListAndCleanup(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			old := NewSession("old")
			if err := store.Save(ctx, old); err != nil {
				t.Fatal(err)
			}
			time.Sleep(100 * time.Millisecond)
			fresh := NewSession("fresh")
			if err := store.Save(ctx, fresh); err != nil {
				t.Fatal(err)
			}

			ids, err := store.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(ids) != 2 {
				t.Fatalf("expected 2 sessions, got %v", ids)
			}

			removed, err := store.CleanupExpired(ctx, 50*time.Millisecond)
			if err != nil {
				t.Fatal(err)
			}
			if removed != 1 {
				t.Fatalf("expected 1 expired session, removed %d", removed)
			}
			if _, err := store.Get(ctx, "fresh"); err != nil {
				t.Fatalf("fresh session removed by cleanup: %v", err)
			}
		})
	}
}

func TestHistoryFlattening(t *testing.T) {
	sess := NewSession("h")
	for _, pair := range [][2]string{{"q1", "a1"}, {"q2", "a2"}, {"q3", "a3"}} {
		sess.Runs = append(sess.Runs, NewRunRecord(RunnerAgent, "a", pair[0], pair[1], true, 1))
	}

	msgs := sess.History(2)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != schema.RoleUser || msgs[0].Content != "q2" {
		t.Fatalf("first flattened message wrong: %+v", msgs[0])
	}
	if msgs[3].Role != schema.RoleAssistant || msgs[3].Content != "a3" {
		t.Fatalf("last flattened message wrong: %+v", msgs[3])
	}

	block := sess.HistoryContext(1)
	if !strings.Contains(block, "<session_history>") || !strings.Contains(block, "User: q3") {
		t.Fatalf("history context wrong:\n%s", block)
	}
	if strings.Contains(block, "q2") {
		t.Fatal("history context window not applied")
	}
}
