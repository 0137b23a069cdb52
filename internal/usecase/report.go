package usecase

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"stream-prober/internal/domain"
)

// ReportService retains completed runs and renders the terminal report.
type ReportService struct {
	runs RunRepository
}

func NewReportService(runs RunRepository) *ReportService {
	return &ReportService{runs: runs}
}

func (s *ReportService) Record(ctx context.Context, r domain.RunRecord) error {
	return s.runs.AppendRun(ctx, r)
}

func (s *ReportService) Runs(ctx context.Context) ([]domain.RunRecord, error) {
	return s.runs.ListRuns(ctx)
}

// WriteReport renders all retained runs as an indented JSON document.
func (s *ReportService) WriteReport(ctx context.Context, w io.Writer) error {
	runs, err := s.runs.ListRuns(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Runs []domain.RunRecord `json:"runs"`
	}{Runs: runs})
}

// WriteReportFile writes the report to path, or stdout when path is "-" or
// empty.
func (s *ReportService) WriteReportFile(ctx context.Context, path string) error {
	if path == "" || path == "-" {
		return s.WriteReport(ctx, os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.WriteReport(ctx, f)
}
