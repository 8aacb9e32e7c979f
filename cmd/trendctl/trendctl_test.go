package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/trending/internal/adapters/http/api"
	service "github.com/okian/trending/internal/app"
	"github.com/okian/trending/internal/config"
	"github.com/okian/trending/internal/testevents"
)

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrendctl(t *testing.T) {
	convey.Convey("Given a running trending service", t, func() {
		svc := service.New(config.New())
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		srv := httptest.NewServer(api.NewServer(context.Background(), svc, api.DefaultLimits))
		convey.Reset(func() {
			srv.Close()
			svc.Stop(context.Background())
		})

		convey.Convey("When two items are ingested", func() {
			out, err := execute("--url", srv.URL, "ingest", "a", "--weight", "2", "--gen-id")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldStartWith, "accepted")

			_, err = execute("--url", srv.URL, "ingest", "b")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then top lists them best first", func() {
				out, err := execute("--url", srv.URL, "top", "-n", "5")
				convey.So(err, convey.ShouldBeNil)
				lines := strings.Split(strings.TrimSpace(out), "\n")
				convey.So(lines, convey.ShouldHaveLength, 3)
				convey.So(lines[1], convey.ShouldContainSubstring, "a")
				convey.So(lines[2], convey.ShouldContainSubstring, "b")
			})

			convey.Convey("And top --json is machine readable", func() {
				out, err := execute("--url", srv.URL, "top", "--json")
				convey.So(err, convey.ShouldBeNil)
				var entries []testevents.Entry
				convey.So(json.Unmarshal([]byte(out), &entries), convey.ShouldBeNil)
				convey.So(entries, convey.ShouldHaveLength, 2)
			})

			convey.Convey("And rank reports the position", func() {
				out, err := execute("--url", srv.URL, "rank", "b")
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldStartWith, "#2 b ")
			})
		})

		convey.Convey("When an unknown item is ranked", func() {
			_, err := execute("--url", srv.URL, "rank", "zzz")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When a small load run is executed", func() {
			out, err := execute("--url", srv.URL, "load", "--events", "50", "--items", "10", "--top", "5", "--seed", "3", "--log-level", "error")

			convey.Convey("Then it verifies and reports", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "submitted 50 events")
			})
		})
	})

	convey.Convey("Given missing arguments", t, func() {
		_, err := execute("ingest")
		convey.So(err, convey.ShouldNotBeNil)
	})
}
