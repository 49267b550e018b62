package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/repository"
	"github.com/joseph-ayodele/docintake/internal/utils"
)

// JobLister is the read side the export needs.
type JobLister interface {
	List(ctx context.Context, f repository.JobFilter) ([]*entity.ProcessingJob, error)
}

// Service produces XLSX bytes for job reports.
type Service struct {
	jobs   JobLister
	logger *slog.Logger
}

func NewService(jobs JobLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// ExportJobsXLSX returns a workbook of the jobs matching f, newest first.
func (s *Service) ExportJobsXLSX(ctx context.Context, f repository.JobFilter) ([]byte, error) {
	start := time.Now()
	jobs, err := s.jobs.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	buf, err := JobsWorkbook(jobs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"owner", f.OwnerUserID,
		"agency", f.AgencyID,
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

const sheetName = "Jobs"

var headers = []string{
	"Uploaded",
	"Filename",
	"Status",
	"Classification",
	"Title",
	"Issue Date",
	"Next Due",
	"Compliance Asset",
	"Reminder Date",
	"Confidence",
	"OCR Needed",
	"Possible Duplicate",
	"Error",
}

// JobsWorkbook renders jobs into a single-sheet workbook.
func JobsWorkbook(jobs []*entity.ProcessingJob) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheetName, 1, 1, style)
	}

	row := 2
	for _, j := range jobs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		var res entity.ExtractionResult
		if len(j.Extraction) > 0 {
			_ = json.Unmarshal(j.Extraction, &res)
		}
		var sum entity.JobSummary
		if len(j.Summary) > 0 {
			_ = json.Unmarshal(j.Summary, &sum)
		}

		write(1, j.CreatedAt.UTC().Format("2006-01-02 15:04"))
		write(2, j.Filename)
		write(3, string(j.Status))
		write(4, res.Classification)
		write(5, truncate(res.Title, 120))
		write(6, utils.StrOrEmpty(res.InspectionOrIssueDate))
		write(7, utils.StrOrEmpty(res.NextDueDate))
		if sum.Compliance != nil {
			write(8, sum.Compliance.AssetName)
			if sum.Compliance.Reminder != nil {
				write(9, sum.Compliance.Reminder.Date)
			}
		}
		if len(j.Extraction) > 0 {
			write(10, res.Confidence)
			write(11, yesNo(res.OCRNeeded))
			write(12, yesNo(res.PossibleDuplicate))
		}
		if j.ErrorCode != nil {
			write(13, *j.ErrorCode+": "+truncate(utils.StrOrEmpty(j.ErrorMessage), 140))
		}
		row++
	}

	_ = f.SetColWidth(sheetName, "A", "A", 17)
	_ = f.SetColWidth(sheetName, "B", "B", 32)
	_ = f.SetColWidth(sheetName, "C", "D", 20)
	_ = f.SetColWidth(sheetName, "E", "E", 40)
	_ = f.SetColWidth(sheetName, "F", "G", 12)
	_ = f.SetColWidth(sheetName, "H", "H", 30)
	_ = f.SetColWidth(sheetName, "I", "L", 12)
	_ = f.SetColWidth(sheetName, "M", "M", 60)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
