package usecase

import (
	"context"

	"stream-prober/internal/domain"
)

type RunRepository interface {
	AppendRun(ctx context.Context, r domain.RunRecord) error
	ListRuns(ctx context.Context) ([]domain.RunRecord, error)
	ClearRuns(ctx context.Context) error
}
