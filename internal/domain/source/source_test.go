package source_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/jobrank/internal/adapters/source/memory"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/source"
	. "github.com/smartystreets/goconvey/convey"
)

func records(prefix string, n int) []model.RawRecord {
	out := make([]model.RawRecord, n)
	for i := range out {
		out[i] = model.RawRecord{"id": prefix + string(rune('a'+i))}
	}
	return out
}

type panicky struct{}

func (panicky) ID() string { return "panicky" }
func (panicky) FetchPage(context.Context, string) (source.Page, error) {
	panic("boom")
}

func TestDrain(t *testing.T) {
	Convey("Given a paged adapter", t, func() {
		ctx := context.Background()
		a := memory.New("mem", memory.WithPages(records("p0", 3), records("p1", 3), records("p2", 2)))
		var got []model.RawRecord
		yield := func(r model.RawRecord) { got = append(got, r) }

		Convey("When drained without limits", func() {
			res := source.Drain(ctx, a, source.Limits{}, yield)

			Convey("Then every record is yielded and completion is ok", func() {
				So(res.Completion, ShouldEqual, source.CompletionOK)
				So(res.Records, ShouldEqual, 8)
				So(res.Pages, ShouldEqual, 3)
				So(got, ShouldHaveLength, 8)
				So(res.Err, ShouldBeNil)
				So(res.SourceID, ShouldEqual, "mem")
			})
		})

		Convey("When max_records cuts the stream mid-page", func() {
			res := source.Drain(ctx, a, source.Limits{MaxRecords: 4}, yield)

			Convey("Then it stops at the limit without error", func() {
				So(res.Completion, ShouldEqual, source.CompletionLimitReached)
				So(res.Records, ShouldEqual, 4)
				So(got, ShouldHaveLength, 4)
				So(res.Err, ShouldBeNil)
			})
		})

		Convey("When max_records equals a page boundary", func() {
			res := source.Drain(ctx, a, source.Limits{MaxRecords: 3}, yield)

			Convey("Then the next page is never requested", func() {
				So(res.Completion, ShouldEqual, source.CompletionLimitReached)
				So(a.Calls(), ShouldEqual, 1)
			})
		})

		Convey("When max_pages is set", func() {
			res := source.Drain(ctx, a, source.Limits{MaxPages: 2}, yield)

			Convey("Then only that many pages are fetched", func() {
				So(res.Completion, ShouldEqual, source.CompletionLimitReached)
				So(res.Pages, ShouldEqual, 2)
				So(res.Records, ShouldEqual, 6)
			})
		})

		Convey("When the limit exactly matches the source size", func() {
			res := source.Drain(ctx, a, source.Limits{MaxRecords: 8}, yield)

			Convey("Then completion is ok", func() {
				So(res.Completion, ShouldEqual, source.CompletionOK)
				So(res.Records, ShouldEqual, 8)
			})
		})
	})

	Convey("Given an adapter that fails on its second page", t, func() {
		boom := errors.New("http 503")
		a := memory.New("flaky", memory.WithPages(records("p0", 2), records("p1", 1)), memory.WithFailure(1, boom))
		var got []model.RawRecord

		res := source.Drain(context.Background(), a, source.Limits{}, func(r model.RawRecord) { got = append(got, r) })

		Convey("Then the records before the failure are kept", func() {
			So(res.Completion, ShouldEqual, source.CompletionError)
			So(got, ShouldHaveLength, 3)
			So(errors.Is(res.Err, source.ErrSource), ShouldBeTrue)
			So(errors.Is(res.Err, boom), ShouldBeTrue)
			So(res.Completion.Degraded(), ShouldBeTrue)

			var se *source.Error
			So(errors.As(res.Err, &se), ShouldBeTrue)
			So(se.SourceID, ShouldEqual, "flaky")
		})
	})

	Convey("Given a slow adapter and a short timeout", t, func() {
		a := memory.New("slow", memory.WithPages(records("p0", 2), records("p1", 2)), memory.WithDelay(200*time.Millisecond))

		res := source.Drain(context.Background(), a, source.Limits{Timeout: 50 * time.Millisecond}, func(model.RawRecord) {})

		Convey("Then it completes with timeout and no error", func() {
			So(res.Completion, ShouldEqual, source.CompletionTimeout)
			So(res.Err, ShouldBeNil)
			So(res.Records, ShouldEqual, 0)
		})
	})

	Convey("Given an already cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		a := memory.New("mem", memory.WithRecords(records("p0", 1)...))

		res := source.Drain(ctx, a, source.Limits{}, func(model.RawRecord) {})

		Convey("Then nothing is fetched", func() {
			So(res.Completion, ShouldEqual, source.CompletionTimeout)
			So(a.Calls(), ShouldEqual, 0)
		})
	})

	Convey("Given an adapter that panics", t, func() {
		res := source.Drain(context.Background(), panicky{}, source.Limits{}, func(model.RawRecord) {})

		Convey("Then the panic becomes a source error", func() {
			So(res.Completion, ShouldEqual, source.CompletionError)
			So(errors.Is(res.Err, source.ErrPanic), ShouldBeTrue)
		})
	})
}
