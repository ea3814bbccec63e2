package worker_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pacelane/stride/internal/adapters/mq/queue"
	"github.com/pacelane/stride/internal/adapters/mq/worker"
	"github.com/pacelane/stride/internal/domain/model"
	"github.com/pacelane/stride/internal/domain/scoring"
	"github.com/pacelane/stride/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// Mock implementations for testing.

type mockScorer struct {
	mu     sync.RWMutex
	scores map[string]float64 // key.String()+"/"+memberID -> points
	errs   map[string]error
}

func newMockScorer() *mockScorer {
	return &mockScorer{
		scores: make(map[string]float64),
		errs:   make(map[string]error),
	}
}

func scoreKey(key model.LeaderboardKey, memberID string) string {
	return key.String() + "/" + memberID
}

func (ms *mockScorer) MemberScore(_ context.Context, key model.LeaderboardKey, memberID string, _ model.DateRange) (scoring.Score, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if err, ok := ms.errs[scoreKey(key, memberID)]; ok {
		return scoring.Score{}, err
	}
	return scoring.Score{Points: ms.scores[scoreKey(key, memberID)]}, nil
}

func (ms *mockScorer) set(key model.LeaderboardKey, memberID string, points float64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.scores[scoreKey(key, memberID)] = points
}

func (ms *mockScorer) fail(key model.LeaderboardKey, memberID string, err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.errs[scoreKey(key, memberID)] = err
}

type mockUpdater struct {
	mu      sync.Mutex
	upserts map[string]float64 // key.String()+"/"+memberID -> points
	err     error
}

func newMockUpdater() *mockUpdater {
	return &mockUpdater{upserts: make(map[string]float64)}
}

func (mu *mockUpdater) Upsert(_ context.Context, key model.LeaderboardKey, memberID string, score float64) error {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	if mu.err != nil {
		return mu.err
	}
	mu.upserts[scoreKey(key, memberID)] = score
	return nil
}

func (mu *mockUpdater) get(key model.LeaderboardKey, memberID string) (float64, bool) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	v, ok := mu.upserts[scoreKey(key, memberID)]
	return v, ok
}

func (mu *mockUpdater) count() int {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	return len(mu.upserts)
}

type mockClubs struct {
	clubs map[string][]string
	err   error
}

func (mc *mockClubs) ListMemberClubs(_ context.Context, memberID string) ([]string, error) {
	if mc.err != nil {
		return nil, mc.err
	}
	return mc.clubs[memberID], nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWorker_ActivityJob(t *testing.T) {
	convey.Convey("Given a worker over a member with two clubs", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		scorer := newMockScorer()
		updater := newMockUpdater()
		clubs := &mockClubs{clubs: map[string][]string{"member-a": {"club-1", "club-2"}}}

		runC1 := model.LeaderboardKey{Scope: model.ScopeClub, ScopeID: "club-1", ActivityType: "run"}
		runC2 := model.LeaderboardKey{Scope: model.ScopeClub, ScopeID: "club-2", ActivityType: "run"}
		scorer.set(runC1, "member-a", 8000)
		scorer.set(runC1.Overall(), "member-a", 80)
		scorer.set(runC2, "member-a", 8000)
		scorer.set(runC2.Overall(), "member-a", 80)

		w := worker.NewInMemoryWorker(q, scorer, updater, clubs, worker.WithName("test-worker"))
		go w.Run(ctx)

		convey.Convey("When an activity job is processed", func() {
			q.Enqueue(ctx, queue.Job{Kind: queue.JobActivity, MemberID: "member-a", ActivityType: "run"})

			convey.Convey("Then all four affected boards are refreshed", func() {
				waitFor(t, func() bool { return updater.count() == 4 })
				for _, key := range []model.LeaderboardKey{runC1, runC1.Overall(), runC2, runC2.Overall()} {
					got, ok := updater.get(key, "member-a")
					convey.So(ok, convey.ShouldBeTrue)
					if key.IsOverall() {
						convey.So(got, convey.ShouldEqual, 80)
					} else {
						convey.So(got, convey.ShouldEqual, 8000)
					}
				}
			})
		})
	})
}

func TestWorker_ProgressJob(t *testing.T) {
	convey.Convey("Given a worker and a challenge participant", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		scorer := newMockScorer()
		updater := newMockUpdater()
		clubs := &mockClubs{}

		chKey := model.LeaderboardKey{Scope: model.ScopeChallenge, ScopeID: "ch-9", ActivityType: model.OverallActivityType}
		scorer.set(chKey, "member-b", 42.5)

		w := worker.NewInMemoryWorker(q, scorer, updater, clubs)
		go w.Run(ctx)

		convey.Convey("When a progress job is processed", func() {
			q.Enqueue(ctx, queue.Job{Kind: queue.JobProgress, MemberID: "member-b", ChallengeID: "ch-9"})

			convey.Convey("Then only the challenge board is refreshed", func() {
				waitFor(t, func() bool { return updater.count() == 1 })
				got, ok := updater.get(chKey, "member-b")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(got, convey.ShouldEqual, 42.5)
			})
		})
	})
}

func TestWorker_PartialFailure(t *testing.T) {
	convey.Convey("Given a scorer that fails for one board only", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		scorer := newMockScorer()
		updater := newMockUpdater()
		clubs := &mockClubs{clubs: map[string][]string{"member-a": {"club-1"}}}

		runKey := model.LeaderboardKey{Scope: model.ScopeClub, ScopeID: "club-1", ActivityType: "run"}
		scorer.fail(runKey, "member-a", errors.New("source timeout"))
		scorer.set(runKey.Overall(), "member-a", 80)

		w := worker.NewInMemoryWorker(q, scorer, updater, clubs)
		go w.Run(ctx)

		convey.Convey("When the activity job is processed", func() {
			q.Enqueue(ctx, queue.Job{Kind: queue.JobActivity, MemberID: "member-a", ActivityType: "run"})

			convey.Convey("Then the healthy board still gets its update", func() {
				waitFor(t, func() bool { return updater.count() == 1 })
				got, ok := updater.get(runKey.Overall(), "member-a")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(got, convey.ShouldEqual, 80)
				_, ok = updater.get(runKey, "member-a")
				convey.So(ok, convey.ShouldBeFalse)
			})
		})
	})
}

func TestPool_StartAndShutdown(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		ctx := context.Background()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		scorer := newMockScorer()
		updater := newMockUpdater()
		clubs := &mockClubs{clubs: map[string][]string{
			"member-a": {"club-1"},
			"member-b": {"club-1"},
		}}

		pool := worker.NewPool(4, q, scorer, updater, clubs)
		pool.Start(ctx)

		convey.Convey("When jobs are enqueued and the pool shuts down", func() {
			q.Enqueue(ctx, queue.Job{Kind: queue.JobActivity, MemberID: "member-a", ActivityType: "run"})
			q.Enqueue(ctx, queue.Job{Kind: queue.JobActivity, MemberID: "member-b", ActivityType: "swim"})

			err := pool.Shutdown(ctx)

			convey.Convey("Then pending jobs are drained before the workers stop", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(updater.count(), convey.ShouldEqual, 4)
			})
		})
	})
}
