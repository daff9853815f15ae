package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/jobrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func records(n int) []model.RawRecord {
	out := make([]model.RawRecord, n)
	for i := range out {
		out[i] = model.RawRecord{"id": i}
	}
	return out
}

func TestAdapter(t *testing.T) {
	Convey("Given a paginated memory adapter", t, func() {
		a := New("mem", WithPages(Paginate(records(5), 2)...))
		ctx := context.Background()

		Convey("Then pages are chained through the cursor", func() {
			p0, err := a.FetchPage(ctx, "")
			So(err, ShouldBeNil)
			So(p0.Records, ShouldHaveLength, 2)
			So(p0.Next, ShouldEqual, "1")

			p2, err := a.FetchPage(ctx, "2")
			So(err, ShouldBeNil)
			So(p2.Records, ShouldHaveLength, 1)
			So(p2.Next, ShouldBeEmpty)
			So(a.Calls(), ShouldEqual, 2)
		})

		Convey("And a malformed cursor is an error", func() {
			_, err := a.FetchPage(ctx, "x")
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given an adapter failing on its first page", t, func() {
		boom := errors.New("boom")
		a := New("mem", WithRecords(records(3)...), WithFailure(0, boom))

		Convey("Then the partial page comes back with the error", func() {
			p, err := a.FetchPage(context.Background(), "")
			So(errors.Is(err, boom), ShouldBeTrue)
			So(p.Records, ShouldHaveLength, 3)
		})
	})

	Convey("Given a slow adapter", t, func() {
		a := New("slow", WithDelay(time.Second), WithRecords(records(1)...))

		Convey("Then cancellation interrupts the delay", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			_, err := a.FetchPage(ctx, "")
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

func TestPaginate(t *testing.T) {
	Convey("Paginate splits records into bounded pages", t, func() {
		So(Paginate(records(5), 2), ShouldHaveLength, 3)
		So(Paginate(records(4), 0), ShouldHaveLength, 1)
		So(Paginate(nil, 3), ShouldBeEmpty)
	})
}
