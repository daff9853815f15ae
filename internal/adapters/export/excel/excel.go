// Package excel writes a ranked run to an .xlsx workbook.
package excel

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/okian/jobrank/internal/domain/model"
)

// Sheet names.
const (
	MatchesSheet = "Job Matches"
	SummarySheet = "Summary"
)

const (
	maxColumnWidth = 50
	columnPadding  = 2
)

// MatchesHeader lists the columns of the matches sheet.
var MatchesHeader = []string{ //nolint:gochecknoglobals // column layout
	"Rank", "Job Title", "Company", "Required Skills", "Relevance Score",
	"Rationale", "Apply Link", "Source", "Seen On", "Posted", "Status",
}

// Save writes res to path, appending .xlsx when missing, and returns the
// path written.
func Save(path string, res *model.RunResult) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	path = filepath.Clean(path)

	f, err := build(res)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // nothing to flush after SaveAs

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

// Write streams the workbook for res to w.
func Write(w io.Writer, res *model.RunResult) error {
	f, err := build(res)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // nothing to flush after Write

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func build(res *model.RunResult) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", MatchesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	if err := writeMatches(f, header, res.Ranked); err != nil {
		return nil, fmt.Errorf("failed to create matches sheet: %w", err)
	}
	if err := writeSummary(f, header, res); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	return f, nil
}

func writeMatches(f *excelize.File, header int, ranked []model.ScoredPosting) error {
	rows := make([][]any, 0, len(ranked)+1)
	head := make([]any, len(MatchesHeader))
	for i, h := range MatchesHeader {
		head[i] = h
	}
	rows = append(rows, head)

	for i := range ranked {
		sp := &ranked[i]
		score, status := "", "scored"
		if sp.Score != nil {
			score = fmt.Sprintf("%.2f", *sp.Score)
		}
		if sp.ScoringFailed {
			status = "scoring failed"
			if sp.FailureReason != "" {
				status += ": " + sp.FailureReason
			}
		}
		posted := ""
		if sp.Posting.PostedAt != nil {
			posted = sp.Posting.PostedAt.UTC().Format(time.DateOnly)
		}
		rows = append(rows, []any{
			i + 1,
			sp.Posting.Title,
			sp.Posting.Company,
			strings.Join(sp.Posting.Skills, ", "),
			score,
			sp.Rationale,
			sp.Posting.ApplyURL,
			sp.Posting.SourceID,
			strings.Join(sp.Posting.SeenOn, ", "),
			posted,
			status,
		})
	}

	if err := writeRows(f, MatchesSheet, rows); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(MatchesHeader))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(MatchesSheet, "A1", last+"1", header); err != nil {
		return err
	}

	linkCol := indexOf(MatchesHeader, "Apply Link") + 1
	for r := 2; r <= len(rows); r++ {
		cell, err := excelize.CoordinatesToCellName(linkCol, r)
		if err != nil {
			return err
		}
		if link := ranked[r-2].Posting.ApplyURL; link != "" {
			if err := f.SetCellHyperLink(MatchesSheet, cell, link, "External"); err != nil {
				return err
			}
		}
	}
	return fitColumns(f, MatchesSheet, rows)
}

func writeSummary(f *excelize.File, header int, res *model.RunResult) error {
	scored := len(res.Ranked) - res.ScoringFailures
	rows := [][]any{
		{"Field", "Value"},
		{"Run ID", res.RunID},
		{"State", string(res.State)},
		{"Started", res.StartedAt.UTC().Format(time.RFC3339)},
		{"Finished", res.FinishedAt.UTC().Format(time.RFC3339)},
		{"Postings Ranked", len(res.Ranked)},
		{"Postings Scored", scored},
		{"Scoring Failures", res.ScoringFailures},
		{"Duplicates Merged", res.DuplicatesMerged},
		{"Normalization Drops", res.NormalizationDrops},
		{"Degraded Sources", strings.Join(res.DegradedSources, ", ")},
		{},
		{"Source", "Completion", "Records", "Normalized", "Dropped", "Error"},
	}
	sourceHeaderRow := len(rows)
	for _, s := range res.Sources {
		rows = append(rows, []any{s.SourceID, s.Completion, s.Records, s.Normalized, s.Dropped, s.Error})
	}

	if err := writeRows(f, SummarySheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", header); err != nil {
		return err
	}
	from, _ := excelize.CoordinatesToCellName(1, sourceHeaderRow) //nolint:errcheck // constant coordinates
	to, _ := excelize.CoordinatesToCellName(6, sourceHeaderRow)   //nolint:errcheck // constant coordinates
	if err := f.SetCellStyle(SummarySheet, from, to, header); err != nil {
		return err
	}
	return fitColumns(f, SummarySheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// fitColumns sizes each column to its longest value plus padding, capped at 50.
func fitColumns(f *excelize.File, sheet string, rows [][]any) error {
	widths := map[int]int{}
	for _, row := range rows {
		for c, v := range row {
			widths[c] = max(widths[c], utf8.RuneCountInString(fmt.Sprint(v)))
		}
	}
	for c, w := range widths {
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, float64(min(w+columnPadding, maxColumnWidth))); err != nil {
			return err
		}
	}
	return nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
