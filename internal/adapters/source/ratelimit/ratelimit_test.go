package ratelimit_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/jobrank/internal/adapters/source/ratelimit"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHostLimiter(t *testing.T) {
	Convey("Given a limiter of 20 rps with burst 1", t, func() {
		hl := ratelimit.NewHostLimiter(20, 1)
		ctx := context.Background()

		Convey("When three requests hit the same host", func() {
			start := time.Now()
			for range 3 {
				So(hl.WaitURL(ctx, "https://api.lever.co/v0/postings/acme"), ShouldBeNil)
			}

			Convey("Then they are spaced out", func() {
				So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 80*time.Millisecond)
				So(hl.Hosts(), ShouldEqual, 1)
			})
		})

		Convey("When requests hit different hosts", func() {
			So(hl.WaitURL(ctx, "https://a.example.com/x"), ShouldBeNil)
			So(hl.WaitURL(ctx, "https://b.example.com/x"), ShouldBeNil)
			So(hl.WaitURL(ctx, "::not a url"), ShouldBeNil)

			Convey("Then each host gets its own bucket", func() {
				So(hl.Hosts(), ShouldEqual, 3)
			})
		})

		Convey("When the context is already cancelled", func() {
			So(hl.WaitURL(ctx, "https://c.example.com"), ShouldBeNil)
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then waiting fails", func() {
				So(hl.WaitURL(cctx, "https://c.example.com"), ShouldNotBeNil)
			})
		})
	})
}

func TestClient(t *testing.T) {
	Convey("Given a test server", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/missing" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
		}))
		defer srv.Close()
		c := ratelimit.NewClient(srv.Client(), nil)

		Convey("When fetching an existing path", func() {
			body, err := c.Get(context.Background(), srv.URL+"/ok")

			Convey("Then the body is returned and the agent is set", func() {
				So(err, ShouldBeNil)
				So(string(body), ShouldStartWith, "jobrank/")
			})
		})

		Convey("When the server answers 404", func() {
			_, err := c.Get(context.Background(), srv.URL+"/missing")

			Convey("Then a StatusError is returned", func() {
				var se *ratelimit.StatusError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
