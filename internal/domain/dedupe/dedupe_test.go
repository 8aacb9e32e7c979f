package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/trending/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When an event id is reserved twice before it is committed", func() {
			d := dedupe.NewInMemoryDeduper()
			first := d.Reserve(ctx, "evt-1")
			second := d.Reserve(ctx, "evt-1")

			Convey("Then the repeat sees it pending", func() {
				So(first, ShouldEqual, dedupe.New)
				So(second, ShouldEqual, dedupe.Pending)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a reserved id is committed", func() {
			d := dedupe.NewInMemoryDeduper()
			d.Reserve(ctx, "evt-1")
			d.Commit(ctx, "evt-1")

			Convey("Then later reservations see it applied and Release keeps it", func() {
				So(d.Reserve(ctx, "evt-1"), ShouldEqual, dedupe.Applied)
				d.Release(ctx, "evt-1")
				So(d.Reserve(ctx, "evt-1"), ShouldEqual, dedupe.Applied)
			})
		})

		Convey("When a reserved id is released", func() {
			d := dedupe.NewInMemoryDeduper()
			d.Reserve(ctx, "evt-1")
			d.Release(ctx, "evt-1")
			d.Release(ctx, "never-seen")

			Convey("Then it can be reserved again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.Reserve(ctx, "evt-1"), ShouldEqual, dedupe.New)
			})
		})

		Convey("When an unknown id is committed", func() {
			d := dedupe.NewInMemoryDeduper()
			d.Commit(ctx, "ghost")

			Convey("Then nothing is remembered", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a bounded deduper overflows", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for _, id := range []string{"e1", "e2", "e3", "e4"} {
				So(d.Reserve(ctx, id), ShouldEqual, dedupe.New)
				d.Commit(ctx, id)
			}

			Convey("Then the oldest id is forgotten first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.Reserve(ctx, "e4"), ShouldEqual, dedupe.Applied)
				So(d.Reserve(ctx, "e3"), ShouldEqual, dedupe.Applied)
				So(d.Reserve(ctx, "e1"), ShouldEqual, dedupe.New)

				// Re-adding e1 pushed out e2.
				So(d.Reserve(ctx, "e2"), ShouldEqual, dedupe.New)
				So(d.Size(), ShouldEqual, 3)
			})
		})

		Convey("When an id is released and re-added before its slot is reused", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
			d.Reserve(ctx, "a")
			d.Release(ctx, "a")
			d.Reserve(ctx, "a")
			d.Reserve(ctx, "b")

			Convey("Then the stale slot does not evict the fresh entry", func() {
				So(d.Reserve(ctx, "a"), ShouldEqual, dedupe.Pending)
				So(d.Reserve(ctx, "b"), ShouldEqual, dedupe.Pending)
			})
		})

		Convey("When the size is unbounded", func() {
			for _, size := range []int{0, -1} {
				d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(size))
				for i := 0; i < 1000; i++ {
					d.Reserve(ctx, fmt.Sprintf("evt-%d", i))
				}

				So(d.Size(), ShouldEqual, 1000)
				So(d.Reserve(ctx, "evt-0"), ShouldEqual, dedupe.Pending)
			}
		})

		Convey("When the empty id is reserved", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1))

			Convey("Then it behaves like any other id", func() {
				So(d.Reserve(ctx, ""), ShouldEqual, dedupe.New)
				So(d.Reserve(ctx, ""), ShouldEqual, dedupe.Pending)
			})
		})

		Convey("Then states have readable names", func() {
			So(dedupe.New.String(), ShouldEqual, "new")
			So(dedupe.Pending.String(), ShouldEqual, "pending")
			So(dedupe.Applied.String(), ShouldEqual, "applied")
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given a deduper shared by many goroutines", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		const workers = 10

		Convey("When each goroutine races on the same ids", func() {
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				fresh int
			)
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 100; j++ {
						id := fmt.Sprintf("evt-%d", j)
						if d.Reserve(context.Background(), id) == dedupe.New {
							d.Commit(context.Background(), id)
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then every id is claimed exactly once", func() {
				So(fresh, ShouldEqual, 100)
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}
