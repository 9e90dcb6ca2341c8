package repository

import (
	"context"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

// RunRepository is the observer log of pipeline runs and user feedback.
// It never stores summary or transcript text.
type RunRepository interface {
	SaveRun(ctx context.Context, run *models.SummaryRun) error
	FindRun(ctx context.Context, id string) (*models.SummaryRun, error)
	SaveFeedback(ctx context.Context, fb *models.Feedback) error
	ModelStats(ctx context.Context) ([]models.ModelStat, error)
}
