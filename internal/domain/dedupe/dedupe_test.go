package dedupe_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	dedupe "github.com/okian/jobrank/internal/domain/dedupe"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func at(day int) *time.Time {
	t := time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
	return &t
}

// variants returns postings of one job as different sources report it.
func variants() []model.JobPosting {
	return []model.JobPosting{
		{SourceID: "a", ExternalID: "1", Title: "Data Engineer", Company: "Acme", ApplyURL: "https://acme.io/j/1",
			Description: "short", Skills: []string{"python", "sql"}, PostedAt: at(5), SeenOn: []string{"a"}},
		{SourceID: "b", ExternalID: "x9", Title: "Data Engineer II", Company: "Acme", ApplyURL: "https://acme.io/j/1",
			Description: "a much longer description", Skills: []string{"sql"}, PostedAt: at(7), SeenOn: []string{"b"}},
		{SourceID: "c", ExternalID: "77", Title: "Data Engineer", Company: "Acme", ApplyURL: "https://acme.io/j/1",
			Description: "", Skills: []string{"airflow"}, PostedAt: nil, SeenOn: []string{"c"}},
		{SourceID: "d", ExternalID: "2", Title: "Data Engineer", Company: "Acme", ApplyURL: "https://acme.io/j/1",
			Description: "zzz", Skills: nil, PostedAt: at(3), SeenOn: []string{"d"}},
	}
}

func sameJob(model.JobPosting) model.Fingerprint { return "fp" }

func TestMerge(t *testing.T) {
	Convey("Given two reports of the same job", t, func() {
		vs := variants()
		a, b := vs[0], vs[1]

		Convey("When merged", func() {
			m := dedupe.Merge(a, b)

			Convey("Then the richer description wins", func() {
				So(m.Title, ShouldEqual, "Data Engineer II")
				So(m.SourceID, ShouldEqual, "b")
				So(m.Description, ShouldEqual, "a much longer description")
			})

			Convey("Then the earliest posted_at is kept", func() {
				So(m.PostedAt.Equal(*at(5)), ShouldBeTrue)
			})

			Convey("Then skills and sources are unioned", func() {
				So(m.Skills, ShouldResemble, []string{"python", "sql"})
				So(m.SeenOn, ShouldResemble, []string{"a", "b"})
			})

			Convey("Then the inputs are not modified", func() {
				So(a.SeenOn, ShouldResemble, []string{"a"})
			})
		})

		Convey("When one side has no posted_at", func() {
			m := dedupe.Merge(vs[2], vs[0])
			So(m.PostedAt.Equal(*at(5)), ShouldBeTrue)
		})

		Convey("When descriptions have equal length", func() {
			x := vs[0]
			y := vs[0]
			y.SourceID = "z"
			y.Description = "shorT"

			Convey("Then the result does not depend on argument order", func() {
				So(dedupe.Merge(x, y), ShouldResemble, dedupe.Merge(y, x))
			})
		})
	})
}

func TestMergeCommutativity(t *testing.T) {
	Convey("Given every permutation of four reports of one job", t, func() {
		vs := variants()
		rng := rand.New(rand.NewPCG(1, 2))

		reference := func() model.JobPosting {
			d := dedupe.New(dedupe.WithFingerprinter(sameJob))
			for _, p := range vs {
				_, _, err := d.Add(context.Background(), p)
				So(err, ShouldBeNil)
			}
			return d.Snapshot()[0].Posting
		}()

		Convey("Then the canonical posting is identical for each order", func() {
			for range 200 {
				perm := rng.Perm(len(vs))
				d := dedupe.New(dedupe.WithFingerprinter(sameJob))
				for _, i := range perm {
					_, _, _ = d.Add(context.Background(), vs[i])
				}
				snap := d.Snapshot()
				So(snap, ShouldHaveLength, 1)
				So(snap[0].Posting, ShouldResemble, reference)
			}

			So(reference.SourceID, ShouldEqual, "b")
			So(reference.PostedAt.Equal(*at(3)), ShouldBeTrue)
			So(reference.Skills, ShouldResemble, []string{"airflow", "python", "sql"})
			So(reference.SeenOn, ShouldResemble, []string{"a", "b", "c", "d"})
		})

		Convey("Then pairwise grouping does not matter", func() {
			left := dedupe.Merge(dedupe.Merge(vs[0], vs[1]), vs[2])
			right := dedupe.Merge(vs[0], dedupe.Merge(vs[1], vs[2]))
			So(left, ShouldResemble, right)
		})
	})
}

func TestDeduplicator(t *testing.T) {
	Convey("Given a deduplicator with the real fingerprint", t, func() {
		ctx := context.Background()
		d := dedupe.New()

		Convey("When the same job arrives from two sources", func() {
			vs := variants()
			fp1, merged1, err1 := d.Add(ctx, vs[0])
			fp2, merged2, err2 := d.Add(ctx, vs[1])

			Convey("Then it collapses into one entry", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(fp1, ShouldEqual, fp2)
				So(merged1, ShouldBeFalse)
				So(merged2, ShouldBeTrue)
				So(d.Len(), ShouldEqual, 1)
				So(d.Merged(), ShouldEqual, 1)
			})
		})

		Convey("When different jobs arrive", func() {
			for i := range 5 {
				_, _, err := d.Add(ctx, model.JobPosting{
					SourceID: "a", ExternalID: fmt.Sprint(i), Title: "Role", Company: "Acme",
					ApplyURL: fmt.Sprintf("https://acme.io/j/%d", i),
				})
				So(err, ShouldBeNil)
			}

			Convey("Then each keeps its own entry in fingerprint order", func() {
				snap := d.Snapshot()
				So(snap, ShouldHaveLength, 5)
				for i := 1; i < len(snap); i++ {
					So(snap[i-1].Fingerprint < snap[i].Fingerprint, ShouldBeTrue)
				}
			})
		})

		Convey("When sealed", func() {
			d.Seal()
			_, _, err := d.Add(ctx, variants()[0])

			Convey("Then late postings are rejected", func() {
				So(err, ShouldEqual, dedupe.ErrSealed)
				So(d.Len(), ShouldEqual, 0)
			})
		})

		Convey("When many goroutines add overlapping postings", func() {
			vs := variants()
			var wg sync.WaitGroup
			for w := range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := range 50 {
						_, _, _ = d.Add(ctx, vs[(w+i)%len(vs)])
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one canonical posting remains", func() {
				So(d.Len(), ShouldEqual, 1)
				So(d.Merged(), ShouldEqual, 8*50-1)
				So(d.Snapshot()[0].Posting.SeenOn, ShouldResemble, []string{"a", "b", "c", "d"})
			})
		})
	})
}
