package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/trending/internal/config"
	"github.com/okian/trending/pkg/logger"
)

func TestRun(t *testing.T) {
	convey.Convey("Given the server running on a free port", t, func() {
		cfg := config.New()
		cfg.WorkerCount = 1

		lis, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		base := "http://" + lis.Addr().String()

		ctx, cancel := context.WithCancel(context.Background())
		var runErr error
		finished := make(chan struct{})
		go func() {
			runErr = run(ctx, cfg, lis, logger.Nop())
			close(finished)
		}()

		client := &http.Client{Timeout: 2 * time.Second}

		convey.Convey("When an event is posted and trending queried", func() {
			resp, err := client.Post(base+"/add_event", "application/json",
				strings.NewReader(`{"item_id":"A","event_time":`+strconv.FormatInt(time.Now().Unix(), 10)+`}`))
			convey.So(err, convey.ShouldBeNil)
			resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			resp, err = client.Get(base + "/trending")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()

			var items []map[string]any
			convey.So(json.NewDecoder(resp.Body).Decode(&items), convey.ShouldBeNil)

			convey.Convey("Then the item is listed", func() {
				convey.So(items, convey.ShouldHaveLength, 1)
				convey.So(items[0]["item_id"], convey.ShouldEqual, "A")
			})
		})

		convey.Convey("When the context is cancelled", func() {
			resp, err := client.Get(base + "/healthz")
			convey.So(err, convey.ShouldBeNil)
			resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			cancel()

			convey.Convey("Then run returns cleanly", func() {
				select {
				case <-finished:
					convey.So(runErr, convey.ShouldBeNil)
				case <-time.After(5 * time.Second):
					t.Fatal("run did not return")
				}
			})
		})

		convey.Reset(func() {
			cancel()
			<-finished
		})
	})
}

func TestRunInvalidConfig(t *testing.T) {
	convey.Convey("Given a config the service rejects", t, func() {
		cfg := config.New()
		cfg.StoreBackend = "mongo"
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then run fails before serving and releases the listener", func() {
			err := run(context.Background(), cfg, lis, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)

			_, acceptErr := lis.Accept()
			convey.So(acceptErr, convey.ShouldNotBeNil)
		})
	})
}

func TestTick(t *testing.T) {
	convey.Convey("Given a ticker loop", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		calls := make(chan struct{}, 10)
		finished := make(chan struct{})
		go func() {
			tick(ctx, time.Millisecond, func() {
				select {
				case calls <- struct{}{}:
				default:
				}
			})
			close(finished)
		}()

		convey.Convey("Then it calls fn until cancelled", func() {
			<-calls
			cancel()
			<-finished
		})
	})
}
