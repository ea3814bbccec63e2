package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/pacelane/stride/internal/adapters/http/api"
	service "github.com/pacelane/stride/internal/app"
	"github.com/pacelane/stride/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// waitForResult polls the leaderboard until cond holds or the deadline
// passes, covering the asynchronous update pipeline.
func waitForResult(t *testing.T, read func() (bool, error)) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ok, err := read()
		if err == nil && ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestService_ActivityPipeline(t *testing.T) {
	Convey("Given a running service with warm club leaderboards", t, func() {
		ctx := context.Background()
		store := newStubStore()
		store.addMember(model.ScopeClub, "club-1", "member-a")
		store.addMember(model.ScopeClub, "club-1", "member-b")
		svc := startService(t, store, service.WithWorkerCount(2), service.WithQueueSize(64))

		// Warm the typed and overall boards so incremental updates land on
		// live cached entries instead of triggering full rebuilds.
		for _, at := range []string{"run", "overall"} {
			_, err := svc.Leaderboard(ctx, api.LeaderboardQuery{
				Scope: "club", ScopeID: "club-1", ActivityType: at, Limit: 10,
			})
			So(err, ShouldBeNil)
		}

		Convey("When a member records an activity", func() {
			ack, err := svc.RecordActivity(ctx, api.ActivitySubmission{
				MemberID:   "member-a",
				Type:       "run",
				Value:      5,
				Unit:       "km",
				RecordedAt: time.Now().UTC(),
				ClientID:   "pipeline-1",
			})
			So(err, ShouldBeNil)
			So(ack.ID, ShouldNotBeEmpty)

			Convey("Then the cached typed board converges without a rebuild", func() {
				waitForResult(t, func() (bool, error) {
					res, err := svc.Leaderboard(ctx, api.LeaderboardQuery{
						Scope: "club", ScopeID: "club-1", ActivityType: "run", Limit: 10,
					})
					if err != nil {
						return false, err
					}
					return len(res.Entries) > 0 &&
						res.Entries[0].MemberID == "member-a" &&
						res.Entries[0].Score == 5_000, nil
				})
			})

			Convey("And the overall board converges to the rate-table points", func() {
				waitForResult(t, func() (bool, error) {
					res, err := svc.Leaderboard(ctx, api.LeaderboardQuery{
						Scope: "club", ScopeID: "club-1", Limit: 10,
					})
					if err != nil {
						return false, err
					}
					return len(res.Entries) > 0 &&
						res.Entries[0].MemberID == "member-a" &&
						res.Entries[0].Score == 50, nil
				})
			})
		})
	})
}

func TestService_ProgressPipeline(t *testing.T) {
	Convey("Given a running service with a warm challenge board", t, func() {
		ctx := context.Background()
		store := newStubStore()
		store.addMember(model.ScopeChallenge, "ch-1", "member-a")
		store.addMember(model.ScopeChallenge, "ch-1", "member-b")
		store.progress["ch-1/member-a"] = model.ParticipantProgress{}
		store.progress["ch-1/member-b"] = model.ParticipantProgress{}
		svc := startService(t, store, service.WithWorkerCount(2))

		_, err := svc.Leaderboard(ctx, api.LeaderboardQuery{
			Scope: "challenge", ScopeID: "ch-1", Limit: 10,
		})
		So(err, ShouldBeNil)

		Convey("When participants report progress", func() {
			So(svc.UpdateProgress(ctx, "ch-1", "member-a", 42.5), ShouldBeNil)
			So(svc.UpdateProgress(ctx, "ch-1", "member-b", 50), ShouldBeNil)

			Convey("Then the cached standings follow the latest values", func() {
				waitForResult(t, func() (bool, error) {
					res, err := svc.Leaderboard(ctx, api.LeaderboardQuery{
						Scope: "challenge", ScopeID: "ch-1", Limit: 10,
					})
					if err != nil {
						return false, err
					}
					return len(res.Entries) == 2 &&
						res.Entries[0].MemberID == "member-b" &&
						res.Entries[0].Score == 50 &&
						res.Entries[1].Score == 42.5, nil
				})
			})
		})
	})
}
