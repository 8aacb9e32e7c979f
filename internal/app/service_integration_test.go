package service_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/trending/internal/app"
	"github.com/okian/trending/internal/config"
	"github.com/okian/trending/internal/domain/model"
)

type movableClock struct{ now int64 }

func (c *movableClock) Now() time.Time { return time.Unix(c.now, 0) }

// backendConfigs builds a fresh backend per call so Convey paths do not share state.
var backendConfigs = map[string]func(t *testing.T) *config.Config{
	"memory": func(*testing.T) *config.Config { return testConfig() },
	"redis": func(t *testing.T) *config.Config {
		cfg := testConfig()
		cfg.StoreBackend = "redis"
		cfg.RedisAddr = miniredis.RunT(t).Addr()
		cfg.RedisNamespace = "it"
		return cfg
	},
	"sqlite": func(t *testing.T) *config.Config {
		cfg := testConfig()
		cfg.StoreBackend = "sqlite"
		cfg.SQLitePath = filepath.Join(t.TempDir(), "trending.db")
		return cfg
	},
}

func TestServiceIntegration(t *testing.T) {
	for name, build := range backendConfigs {
		t.Run(name, func(t *testing.T) {
			Convey("Given a service on the "+name+" backend", t, func() {
				clock := &movableClock{now: 1000}
				svc := service.New(build(t), service.WithClock(clock.Now))
				ctx := context.Background()
				So(svc.Start(ctx), ShouldBeNil)
				Reset(func() { svc.Stop(ctx) })

				Convey("When A is ingested at 1000 and B at 2000", func() {
					_, err := svc.Submit(ctx, model.Event{ItemID: "A", EventTime: 1000, Weight: 1.0})
					So(err, ShouldBeNil)
					clock.now = 2000
					_, err = svc.Submit(ctx, model.Event{ItemID: "B", EventTime: 1000, Weight: 0.5})
					So(err, ShouldBeNil)

					Convey("Then trending lists A then a decayed B", func() {
						top, err := svc.Trending(ctx, 2)
						So(err, ShouldBeNil)
						So(top, ShouldHaveLength, 2)
						So(top[0].ItemID, ShouldEqual, "A")
						So(top[0].Score, ShouldEqual, 1.0)
						So(top[1].ItemID, ShouldEqual, "B")
						So(top[1].Score, ShouldAlmostEqual, 0.5*math.Exp(-0.1), 1e-9)
					})

					Convey("And scores do not move as time passes", func() {
						clock.now = 50_000
						item, err := svc.Rank(ctx, "A")
						So(err, ShouldBeNil)
						So(item.Rank, ShouldEqual, 1)
						So(item.Score, ShouldEqual, 1.0)
					})
				})

				Convey("When X is ingested twice", func() {
					clock.now = 100
					_, err := svc.Submit(ctx, model.Event{ItemID: "X", EventTime: 100, Weight: 2.0})
					So(err, ShouldBeNil)
					clock.now = 200
					_, err = svc.Submit(ctx, model.Event{ItemID: "X", EventTime: 200, Weight: 1.0})
					So(err, ShouldBeNil)

					Convey("Then only the second write is visible", func() {
						top, err := svc.Trending(ctx, 1)
						So(err, ShouldBeNil)
						So(top, ShouldHaveLength, 1)
						So(top[0].Score, ShouldEqual, 1.0)
					})
				})

				Convey("Then the store is healthy", func() {
					So(svc.Health(ctx), ShouldBeNil)
					So(svc.GetStats()["storeBackend"], ShouldEqual, name)
				})
			})
		})
	}
}

func TestServiceIntegration_ReadMode(t *testing.T) {
	Convey("Given a read-mode service", t, func() {
		cfg := testConfig()
		cfg.DecayMode = "read"
		clock := &movableClock{now: 1000}
		svc := service.New(cfg, service.WithClock(clock.Now))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { svc.Stop(ctx) })

		_, err := svc.Submit(ctx, model.Event{ItemID: "A", EventTime: 1000, Weight: 1})
		So(err, ShouldBeNil)

		Convey("When the clock advances", func() {
			clock.now = 2000

			Convey("Then scores are decayed at query time", func() {
				top, err := svc.Trending(ctx, 1)
				So(err, ShouldBeNil)
				So(top[0].Score, ShouldAlmostEqual, math.Exp(-0.1), 1e-9)
			})
		})
	})
}
