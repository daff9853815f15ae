package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/jobrank/internal/app"
	"github.com/okian/jobrank/internal/adapters/source/memory"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/scoring"
	"github.com/okian/jobrank/internal/domain/source"
	"github.com/okian/jobrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func job(id, title, company, url string) model.RawRecord {
	return model.RawRecord{
		"external_id": id,
		"title":       title,
		"company":     company,
		"apply_url":   url,
	}
}

func spec(a source.Adapter) service.SourceSpec {
	return service.SourceSpec{Adapter: a}
}

func runConfig() service.RunConfig {
	return service.RunConfig{
		GlobalDeadline:        5 * time.Second,
		MaxScoringConcurrency: 4,
		ScoringRetryBudget:    2,
		ScoringTimeout:        time.Second,
		BackoffBase:           time.Millisecond,
		BackoffMax:            5 * time.Millisecond,
	}
}

func candidate(t *testing.T) *model.CandidateProfile {
	t.Helper()
	p, err := model.NewCandidateProfile([]string{"python", "sql"}, []string{"Data Engineer"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func noSleep(context.Context, time.Duration) error { return nil }

// byTitle scores postings from a fixed table and counts calls.
type byTitle struct {
	scores map[string]float64
	calls  atomic.Int64
}

func (s *byTitle) Score(_ context.Context, p model.JobPosting, _ *model.CandidateProfile) (scoring.Result, error) { //nolint:gocritic // postings are values
	s.calls.Add(1)
	return scoring.Result{Score: s.scores[p.Title], Rationale: "table"}, nil
}

func externalIDs(ranked []model.ScoredPosting) []string {
	out := make([]string, 0, len(ranked))
	for _, sp := range ranked {
		out = append(out, sp.Posting.ExternalID)
	}
	return out
}

func TestRunConfiguration(t *testing.T) {
	Convey("Given an orchestrator that records state transitions", t, func() {
		var states []model.RunState
		o := service.NewOrchestrator(service.WithStateHook(func(_ string, s model.RunState) {
			states = append(states, s)
		}))
		ctx := context.Background()
		profile := candidate(t)
		specs := []service.SourceSpec{spec(memory.New("a", memory.WithRecords(job("1", "Data Engineer", "Acme", "https://acme.io/1"))))}
		scorer := scoring.NewKeywordScorer()

		Convey("When the profile is missing", func() {
			res, err := o.Run(ctx, nil, specs, scorer, runConfig())

			Convey("Then the run fails with a configuration error", func() {
				So(errors.Is(err, service.ErrConfiguration), ShouldBeTrue)
				So(res.State, ShouldEqual, model.StateFailed)
				So(res.Ranked, ShouldBeEmpty)
				So(states, ShouldResemble, []model.RunState{model.StateIdle, model.StateFailed})
			})
		})

		Convey("When no sources are configured", func() {
			_, err := o.Run(ctx, profile, nil, scorer, runConfig())
			So(errors.Is(err, service.ErrConfiguration), ShouldBeTrue)
		})

		Convey("When the scorer is missing", func() {
			_, err := o.Run(ctx, profile, specs, nil, runConfig())
			So(errors.Is(err, service.ErrConfiguration), ShouldBeTrue)
		})

		Convey("When two sources share an id", func() {
			dup := append(specs, spec(memory.New("a")))
			_, err := o.Run(ctx, profile, dup, scorer, runConfig())
			So(errors.Is(err, service.ErrConfiguration), ShouldBeTrue)
		})

		Convey("When scoring concurrency is zero", func() {
			cfg := runConfig()
			cfg.MaxScoringConcurrency = 0
			_, err := o.Run(ctx, profile, specs, scorer, cfg)
			So(errors.Is(err, service.ErrConfiguration), ShouldBeTrue)
		})

		Convey("When the run is well formed", func() {
			res, err := o.Run(ctx, profile, specs, scorer, runConfig())

			Convey("Then it walks every state to Done", func() {
				So(err, ShouldBeNil)
				So(res.State, ShouldEqual, model.StateDone)
				So(res.RunID, ShouldNotBeEmpty)
				So(res.FinishedAt.Before(res.StartedAt), ShouldBeFalse)
				So(states, ShouldResemble, []model.RunState{
					model.StateIdle,
					model.StateFetchingAndNormalizing,
					model.StateDeduplicating,
					model.StateScoring,
					model.StateRanking,
					model.StateDone,
				})
			})
		})
	})
}

func TestRunFailSoft(t *testing.T) {
	Convey("Given three sources of which one fails", t, func() {
		ctx := context.Background()
		specs := []service.SourceSpec{
			spec(memory.New("lever", memory.WithRecords(job("l1", "Data Engineer", "Acme", "https://acme.io/de")))),
			spec(memory.New("broken", memory.WithFailure(0, errors.New("503 service unavailable")))),
			spec(memory.New("rss", memory.WithRecords(job("r1", "Analytics Engineer", "Beta", "https://beta.io/ae")))),
		}
		scorer := &byTitle{scores: map[string]float64{"Data Engineer": 0.9, "Analytics Engineer": 0.5}}

		Convey("When the run completes", func() {
			res, err := service.Run(ctx, candidate(t), specs, scorer, runConfig())

			Convey("Then the healthy sources are still ranked", func() {
				So(err, ShouldBeNil)
				So(res.State, ShouldEqual, model.StateDone)
				So(externalIDs(res.Ranked), ShouldResemble, []string{"l1", "r1"})
				So(res.DegradedSources, ShouldResemble, []string{"broken"})
			})

			Convey("And the failing source is reported with its error", func() {
				So(res.Sources, ShouldHaveLength, 3)
				So(res.Sources[1].SourceID, ShouldEqual, "broken")
				So(res.Sources[1].Completion, ShouldEqual, string(source.CompletionError))
				So(res.Sources[1].Error, ShouldContainSubstring, "503")
			})
		})
	})

	Convey("Given a source cut short by its record limit", t, func() {
		specs := []service.SourceSpec{{
			Adapter: memory.New("big", memory.WithRecords(
				job("1", "Data Engineer", "Acme", "https://acme.io/1"),
				job("2", "Data Engineer", "Beta", "https://beta.io/2"),
				job("3", "Data Engineer", "Gamma", "https://gamma.io/3"),
			)),
			Limits: source.Limits{MaxRecords: 2},
		}}

		Convey("When the run completes", func() {
			res, err := service.Run(context.Background(), candidate(t), specs, scoring.NewKeywordScorer(), runConfig())

			Convey("Then the limit is not treated as degradation", func() {
				So(err, ShouldBeNil)
				So(res.Ranked, ShouldHaveLength, 2)
				So(res.Sources[0].Completion, ShouldEqual, string(source.CompletionLimitReached))
				So(res.DegradedSources, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a source with a malformed record", t, func() {
		specs := []service.SourceSpec{spec(memory.New("mixed", memory.WithRecords(
			job("1", "Data Engineer", "Acme", "https://acme.io/1"),
			job("2", "Data Engineer", "", "https://acme.io/2"),
			job("3", "Data Engineer", "Acme", "mailto:jobs@acme.io"),
		)))}

		Convey("When the run completes", func() {
			res, err := service.Run(context.Background(), candidate(t), specs, scoring.NewKeywordScorer(), runConfig())

			Convey("Then bad records are dropped and counted", func() {
				So(err, ShouldBeNil)
				So(res.Ranked, ShouldHaveLength, 1)
				So(res.NormalizationDrops, ShouldEqual, 2)
				So(res.Sources[0].Dropped, ShouldEqual, 2)
				So(res.Sources[0].Normalized, ShouldEqual, 1)
				So(res.DegradedSources, ShouldBeEmpty)
			})
		})
	})
}

func TestRunScoringFailures(t *testing.T) {
	Convey("Given a scorer that always fails transiently", t, func() {
		var calls atomic.Int64
		scorer := scoring.ScorerFunc(func(context.Context, model.JobPosting, *model.CandidateProfile) (scoring.Result, error) {
			calls.Add(1)
			return scoring.Result{}, scoring.Transient(errors.New("429 too many requests"))
		})
		specs := []service.SourceSpec{spec(memory.New("a", memory.WithRecords(
			job("1", "Data Engineer", "Acme", "https://acme.io/1"),
			job("2", "Platform Engineer", "Acme", "https://acme.io/2"),
		)))}
		o := service.NewOrchestrator(service.WithPolicyOptions(scoring.WithSleep(noSleep)))

		Convey("When the run completes", func() {
			res, err := o.Run(context.Background(), candidate(t), specs, scorer, runConfig())

			Convey("Then every posting is kept and marked failed", func() {
				So(err, ShouldBeNil)
				So(res.State, ShouldEqual, model.StateDone)
				So(res.Ranked, ShouldHaveLength, 2)
				So(res.ScoringFailures, ShouldEqual, 2)
				for _, sp := range res.Ranked {
					So(sp.ScoringFailed, ShouldBeTrue)
					So(sp.Score, ShouldBeNil)
					So(sp.Attempts, ShouldEqual, 3)
					So(sp.FailureReason, ShouldStartWith, "exhausted")
				}
				So(calls.Load(), ShouldEqual, int64(6))
			})
		})
	})

	Convey("Given a scorer that rejects one posting permanently", t, func() {
		scorer := scoring.ScorerFunc(func(_ context.Context, p model.JobPosting, _ *model.CandidateProfile) (scoring.Result, error) { //nolint:gocritic // postings are values
			if p.Title == "Chef" {
				return scoring.Result{}, scoring.Permanent(errors.New("unsupported posting"))
			}
			return scoring.Result{Score: 0.1}, nil
		})
		specs := []service.SourceSpec{spec(memory.New("a", memory.WithRecords(
			job("1", "Chef", "Bistro", "https://bistro.io/1"),
			job("2", "Data Engineer", "Acme", "https://acme.io/2"),
		)))}

		Convey("When the run completes", func() {
			res, err := service.Run(context.Background(), candidate(t), specs, scorer, runConfig())

			Convey("Then the failed posting ranks after every scored one", func() {
				So(err, ShouldBeNil)
				So(externalIDs(res.Ranked), ShouldResemble, []string{"2", "1"})
				So(res.Ranked[1].FailureReason, ShouldStartWith, "permanent")
				So(res.Ranked[1].Attempts, ShouldEqual, 1)
				So(res.ScoringFailures, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a scorer that panics", t, func() {
		scorer := scoring.ScorerFunc(func(context.Context, model.JobPosting, *model.CandidateProfile) (scoring.Result, error) {
			panic("boom")
		})
		specs := []service.SourceSpec{spec(memory.New("a", memory.WithRecords(job("1", "Data Engineer", "Acme", "https://acme.io/1"))))}

		Convey("Then the run still completes with the posting marked failed", func() {
			res, err := service.Run(context.Background(), candidate(t), specs, scorer, runConfig())
			So(err, ShouldBeNil)
			So(res.Ranked, ShouldHaveLength, 1)
			So(res.Ranked[0].ScoringFailed, ShouldBeTrue)
			So(res.Ranked[0].FailureReason, ShouldContainSubstring, "panic")
		})
	})
}

func TestRunScoringTimeouts(t *testing.T) {
	Convey("Given a scorer slower than the per-call timeout", t, func() {
		var calls atomic.Int64
		scorer := scoring.ScorerFunc(func(ctx context.Context, _ model.JobPosting, _ *model.CandidateProfile) (scoring.Result, error) {
			calls.Add(1)
			<-ctx.Done()
			return scoring.Result{}, ctx.Err()
		})
		specs := []service.SourceSpec{spec(memory.New("a", memory.WithRecords(job("1", "Data Engineer", "Acme", "https://acme.io/1"))))}
		cfg := runConfig()
		cfg.ScoringTimeout = 20 * time.Millisecond
		cfg.ScoringRetryBudget = 1
		o := service.NewOrchestrator(service.WithPolicyOptions(scoring.WithSleep(noSleep)))

		Convey("When every attempt times out well before the run deadline", func() {
			res, err := o.Run(context.Background(), candidate(t), specs, scorer, cfg)

			Convey("Then the posting is reported as exhausted, not cancelled", func() {
				So(err, ShouldBeNil)
				So(res.Ranked, ShouldHaveLength, 1)
				sp := res.Ranked[0]
				So(sp.ScoringFailed, ShouldBeTrue)
				So(sp.Attempts, ShouldEqual, 2)
				So(sp.FailureReason, ShouldStartWith, "exhausted")
				So(calls.Load(), ShouldEqual, int64(2))
			})
		})
	})
}

func TestRunExternalIDCollision(t *testing.T) {
	Convey("Given a source that reuses an external id for a different posting", t, func() {
		specs := []service.SourceSpec{spec(memory.New("a", memory.WithRecords(
			job("1", "Data Engineer", "Acme", "https://acme.io/1"),
			job("1", "Chef", "Bistro", "https://bistro.io/1"),
			job("1", "Data Engineer", "Acme", "https://acme.io/1"),
		)))}

		Convey("When the run completes", func() {
			res, err := service.Run(context.Background(), candidate(t), specs, scoring.NewKeywordScorer(), runConfig())

			Convey("Then the colliding record is dropped and the repeat is absorbed", func() {
				So(err, ShouldBeNil)
				So(externalIDs(res.Ranked), ShouldResemble, []string{"1"})
				So(res.Ranked[0].Posting.Title, ShouldEqual, "Data Engineer")
				So(res.NormalizationDrops, ShouldEqual, 1)
				So(res.Sources[0].Dropped, ShouldEqual, 1)
				So(res.Sources[0].Normalized, ShouldEqual, 2)
			})
		})
	})
}

func TestRunLogFields(t *testing.T) {
	Convey("Given a JSON logger capturing run output", t, func() {
		var buf bytes.Buffer
		So(logger.Init(logger.WithOutput(&buf), logger.WithFormat("json"), logger.WithLevel("info")), ShouldBeNil)
		defer func() { _ = logger.Init() }()

		o := service.NewOrchestrator(service.WithRunLogger(logger.Get()))
		specs := []service.SourceSpec{spec(memory.New("a", memory.WithRecords(job("1", "Data Engineer", "Acme", "https://acme.io/1"))))}

		Convey("When a run completes", func() {
			_, err := o.Run(context.Background(), candidate(t), specs, scoring.NewKeywordScorer(), runConfig())
			So(err, ShouldBeNil)

			Convey("Then the source id and the caller location use separate keys", func() {
				var drained map[string]any
				for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
					var rec map[string]any
					So(json.Unmarshal([]byte(line), &rec), ShouldBeNil)
					if rec["msg"] == "source drained" {
						drained = rec
					}
				}
				So(drained, ShouldNotBeNil)
				So(drained["source_id"], ShouldEqual, "a")
				So(drained["source"], ShouldContainSubstring, "orchestrator.go")
			})
		})
	})
}

func TestRunConcurrencyBound(t *testing.T) {
	Convey("Given twelve postings and a concurrency cap of two", t, func() {
		var (
			mu             sync.Mutex
			inFlight, peak int
			calls          atomic.Int64
		)
		scorer := scoring.ScorerFunc(func(context.Context, model.JobPosting, *model.CandidateProfile) (scoring.Result, error) {
			calls.Add(1)
			mu.Lock()
			inFlight++
			peak = max(peak, inFlight)
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return scoring.Result{Score: 0.5}, nil
		})

		var records []model.RawRecord
		for _, c := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
			records = append(records, job(c, "Data Engineer", "Company "+c, "https://"+c+".io/job"))
		}
		specs := []service.SourceSpec{spec(memory.New("a", memory.WithPages(memory.Paginate(records, 5)...)))}
		cfg := runConfig()
		cfg.MaxScoringConcurrency = 2

		Convey("When the run completes", func() {
			res, err := service.Run(context.Background(), candidate(t), specs, scorer, cfg)

			Convey("Then no more than two scorer calls overlap and each posting is scored once", func() {
				So(err, ShouldBeNil)
				So(res.Ranked, ShouldHaveLength, 12)
				So(calls.Load(), ShouldEqual, int64(12))
				So(peak, ShouldBeLessThanOrEqualTo, 2)
				So(peak, ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestRunDeadline(t *testing.T) {
	Convey("Given a source slower than the run deadline", t, func() {
		specs := []service.SourceSpec{
			spec(memory.New("fast", memory.WithRecords(job("f1", "Data Engineer", "Acme", "https://acme.io/1")))),
			spec(memory.New("slow", memory.WithDelay(5*time.Second), memory.WithRecords(job("s1", "Data Engineer", "Beta", "https://beta.io/1")))),
		}
		cfg := runConfig()
		cfg.GlobalDeadline = 150 * time.Millisecond
		o := service.NewOrchestrator(service.WithDrainGrace(50 * time.Millisecond))

		Convey("When the run completes", func() {
			start := time.Now()
			res, err := o.Run(context.Background(), candidate(t), specs, scoring.NewKeywordScorer(), cfg)

			Convey("Then it finishes promptly with the slow source degraded", func() {
				So(err, ShouldBeNil)
				So(time.Since(start), ShouldBeLessThan, 2*time.Second)
				So(res.State, ShouldEqual, model.StateDone)
				So(res.DegradedSources, ShouldResemble, []string{"slow"})
				So(res.Sources[1].Completion, ShouldEqual, string(source.CompletionTimeout))
			})

			Convey("And the fast source's posting is kept, its scoring cancelled", func() {
				So(externalIDs(res.Ranked), ShouldResemble, []string{"f1"})
				So(res.Ranked[0].ScoringFailed, ShouldBeTrue)
				So(res.Ranked[0].FailureReason, ShouldEqual, "cancelled")
			})
		})
	})
}

func TestRunDeterminism(t *testing.T) {
	Convey("Given the same postings spread over sources in different orders", t, func() {
		a := []model.RawRecord{
			job("a1", "Data Engineer", "Acme", "https://acme.io/1"),
			job("a2", "Backend Engineer", "Acme", "https://acme.io/2"),
		}
		b := []model.RawRecord{
			job("b1", "Analytics Engineer", "Beta", "https://beta.io/1"),
			job("b2", "Data Engineer II", "Acme", "https://acme.io/1"),
		}
		scores := map[string]float64{"Data Engineer": 0.8, "Data Engineer II": 0.8, "Backend Engineer": 0.3, "Analytics Engineer": 0.3}

		run := func(specs ...service.SourceSpec) model.RunResult {
			res, err := service.Run(context.Background(), candidate(t), specs, &byTitle{scores: scores}, runConfig())
			So(err, ShouldBeNil)
			return res
		}

		Convey("When the source order is reversed", func() {
			first := run(spec(memory.New("x", memory.WithRecords(a...))), spec(memory.New("y", memory.WithRecords(b...))))
			second := run(spec(memory.New("y", memory.WithRecords(b...))), spec(memory.New("x", memory.WithRecords(a...))))

			Convey("Then the ranking is identical", func() {
				So(externalIDs(first.Ranked), ShouldResemble, externalIDs(second.Ranked))
				So(first.Ranked, ShouldHaveLength, 3)
				So(first.DuplicatesMerged, ShouldEqual, 1)
				for i := range first.Ranked {
					So(first.Ranked[i].Fingerprint, ShouldEqual, second.Ranked[i].Fingerprint)
					So(first.Ranked[i].Posting.SeenOn, ShouldResemble, second.Ranked[i].Posting.SeenOn)
				}
			})
		})
	})
}
