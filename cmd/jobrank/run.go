package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/jobrank/internal/adapters/export/excel"
	"github.com/okian/jobrank/internal/adapters/profile"
	service "github.com/okian/jobrank/internal/app"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/ranking"
	"github.com/okian/jobrank/pkg/logger"
)

const defaultTop = 20

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		profilePath string
		out         string
		top         int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, deduplicate, score and rank postings once, then export them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logger.Get().Named("run")

			p, err := profile.Load(profilePath)
			if err != nil {
				return err
			}

			svc, err := service.New(ctx, root.cfg)
			if err != nil {
				return err
			}

			res, err := svc.Rank(ctx, p)
			if err != nil {
				return err
			}

			if out == "" {
				out = root.cfg.ExportPath
			}
			written, err := excel.Save(out, &res)
			if err != nil {
				return err
			}
			log.Info(ctx, "results exported", logger.String("path", written))

			return printSummary(cmd.OutOrStdout(), &res, top)
		},
	}

	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "candidate profile (YAML or JSON)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "spreadsheet path (default export_path from config)")
	cmd.Flags().IntVarP(&top, "top", "n", defaultTop, "number of postings to print")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func printSummary(w io.Writer, res *model.RunResult, top int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tTITLE\tCOMPANY\tSEEN ON")
	for i, sp := range ranking.Top(res.Ranked, top) {
		score := "failed"
		if sp.Score != nil {
			score = fmt.Sprintf("%.2f", *sp.Score)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, score, sp.Posting.Title, sp.Posting.Company, strings.Join(sp.Posting.SeenOn, ","))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	fmt.Fprintf(w, "\n%d postings ranked, %d scoring failures, %d duplicates merged\n",
		len(res.Ranked), res.ScoringFailures, res.DuplicatesMerged)
	if len(res.DegradedSources) > 0 {
		fmt.Fprintf(w, "degraded sources: %s\n", strings.Join(res.DegradedSources, ", "))
	}
	return nil
}
