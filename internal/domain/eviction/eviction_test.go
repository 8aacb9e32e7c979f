package eviction

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/trending/internal/adapters/repository"
)

type countingTarget struct {
	runs   atomic.Int32
	err    error
	cutoff time.Time
}

func (c *countingTarget) TrimToSize(context.Context, int) (int, error) {
	c.runs.Add(1)
	return 0, c.err
}

func (c *countingTarget) RemoveOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	c.cutoff = cutoff
	return 0, c.err
}

func TestPolicy(t *testing.T) {
	Convey("Given eviction policies", t, func() {
		So(Policy{}.Enabled(), ShouldBeFalse)
		So(Policy{MaxItems: 1}.Enabled(), ShouldBeTrue)
		So(Policy{MaxAge: time.Second}.Enabled(), ShouldBeTrue)

		So(Policy{}.Validate(), ShouldBeNil)
		So(errors.Is(Policy{MaxItems: -1}.Validate(), ErrInvalidPolicy), ShouldBeTrue)
		So(errors.Is(Policy{MaxAge: -time.Second}.Validate(), ErrInvalidPolicy), ShouldBeTrue)

		_, err := NewEvictor(&countingTarget{}, Policy{MaxItems: -5})
		So(errors.Is(err, ErrInvalidPolicy), ShouldBeTrue)
	})
}

func TestEvictorRun(t *testing.T) {
	Convey("Given a populated store", t, func() {
		ctx := context.Background()
		store := repository.NewTreapStore(ctx, repository.WithSeed(9))
		Reset(func() { _ = store.Close() })

		base := time.Unix(10_000, 0)
		for i := 0; i < 10; i++ {
			// item0 is the oldest and the highest scored.
			So(store.Upsert(ctx, fmt.Sprintf("item%d", i), float64(10-i), base.Add(time.Duration(i)*time.Minute)), ShouldBeNil)
		}
		now := func() time.Time { return base.Add(10 * time.Minute) }

		Convey("When no bound is configured", func() {
			e, err := NewEvictor(store, Policy{}, WithClock(now))
			So(err, ShouldBeNil)
			res, err := e.Run(ctx)

			Convey("Then nothing is removed", func() {
				So(err, ShouldBeNil)
				So(res.Total(), ShouldEqual, 0)
				n, _ := store.Count(ctx)
				So(n, ShouldEqual, 10)
			})
		})

		Convey("When only a size bound is configured", func() {
			e, _ := NewEvictor(store, Policy{MaxItems: 3}, WithClock(now))
			res, err := e.Run(ctx)

			Convey("Then the lowest-ranked items go", func() {
				So(err, ShouldBeNil)
				So(res.Trimmed, ShouldEqual, 7)
				top, _ := store.TopN(ctx, 10)
				So(len(top), ShouldEqual, 3)
				So(top[0].ItemID, ShouldEqual, "item0")
			})
		})

		Convey("When only an age bound is configured", func() {
			e, _ := NewEvictor(store, Policy{MaxAge: 5 * time.Minute}, WithClock(now))
			res, err := e.Run(ctx)

			Convey("Then entries written before the cutoff go", func() {
				So(err, ShouldBeNil)
				So(res.Expired, ShouldEqual, 5)
				_, err := store.Rank(ctx, "item0")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				_, err = store.Rank(ctx, "item5")
				So(err, ShouldBeNil)
			})
		})

		Convey("When both bounds are configured", func() {
			e, _ := NewEvictor(store, Policy{MaxItems: 2, MaxAge: 5 * time.Minute}, WithClock(now))
			res, err := e.Run(ctx)

			Convey("Then age applies first and size trims the rest", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, Result{Expired: 5, Trimmed: 3})
				top, _ := store.TopN(ctx, 10)
				So(top[0].ItemID, ShouldEqual, "item5")
				So(top[1].ItemID, ShouldEqual, "item6")
			})
		})
	})

	Convey("Given a failing target", t, func() {
		target := &countingTarget{err: errors.New("boom")}
		e, _ := NewEvictor(target, Policy{MaxItems: 1, MaxAge: time.Minute})
		_, err := e.Run(context.Background())

		Convey("Then the error is reported with context", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "expire entries")
		})
	})
}

func TestScheduler(t *testing.T) {
	Convey("Given an evictor", t, func() {
		target := &countingTarget{}
		e, _ := NewEvictor(target, Policy{MaxItems: 100})

		Convey("Then an invalid schedule is rejected", func() {
			_, err := NewScheduler(e, "every now and then", nil)
			So(errors.Is(err, ErrInvalidPolicy), ShouldBeTrue)
		})

		Convey("When scheduled every second", func() {
			s, err := NewScheduler(e, "@every 1s", nil)
			So(err, ShouldBeNil)
			So(s.Start(context.Background()), ShouldBeNil)
			// Starting twice is a no-op.
			So(s.Start(context.Background()), ShouldBeNil)

			deadline := time.Now().Add(3 * time.Second)
			for target.runs.Load() == 0 && time.Now().Before(deadline) {
				time.Sleep(50 * time.Millisecond)
			}
			s.Stop()
			s.Stop()

			Convey("Then the evictor ran", func() {
				So(target.runs.Load(), ShouldBeGreaterThan, 0)
			})
		})
	})
}
