package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

const maxReasonLength = 500

// Repository stores pipeline run metadata and user feedback.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveRun(ctx context.Context, run *models.SummaryRun) error {
	const op = "SQLiteRepository.SaveRun"

	if run == nil || run.ID == "" {
		return errors.InvalidInput(op, nil, "Run ID is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	err := withRetry(ctx, r.db.config, func(ctx context.Context) error {
		_, err := r.db.statements.insertRun.ExecContext(ctx,
			run.ID,
			run.CallerKey,
			run.Source,
			string(run.State),
			run.Model,
			run.Chunks,
			run.ProcessedChunks,
			run.OriginalLength,
			run.SummaryLength,
			run.SourceLanguage,
			run.Error,
			run.CreatedAt,
		)
		return err
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to save run")
	}
	return nil
}

func (r *Repository) FindRun(ctx context.Context, id string) (*models.SummaryRun, error) {
	const op = "SQLiteRepository.FindRun"

	run := &models.SummaryRun{}
	var state string

	err := r.db.statements.getRun.QueryRowContext(ctx, id).Scan(
		&run.ID,
		&run.CallerKey,
		&run.Source,
		&state,
		&run.Model,
		&run.Chunks,
		&run.ProcessedChunks,
		&run.OriginalLength,
		&run.SummaryLength,
		&run.SourceLanguage,
		&run.Error,
		&run.CreatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(op, nil, "Run not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query run")
	}

	run.State = models.SummaryState(state)
	return run, nil
}

// SaveFeedback records a verdict. A missing model is taken from the run.
func (r *Repository) SaveFeedback(ctx context.Context, fb *models.Feedback) error {
	const op = "SQLiteRepository.SaveFeedback"

	if fb == nil {
		return errors.InvalidInput(op, nil, "Feedback is required")
	}
	fb.Model = strings.TrimSpace(fb.Model)
	fb.RunID = strings.TrimSpace(fb.RunID)
	if fb.Model == "" && fb.RunID == "" {
		return errors.InvalidInput(op, nil, "Either a run ID or a model is required")
	}
	fb.Reason = truncate(strings.TrimSpace(fb.Reason), maxReasonLength)
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}

	err := withRetry(ctx, r.db.config, func(ctx context.Context) error {
		_, err := r.db.statements.insertFeedback.ExecContext(ctx,
			fb.ID,
			fb.RunID,
			fb.Model,
			fb.RunID,
			fb.Satisfied,
			fb.Reason,
			fb.CreatedAt,
		)
		return err
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to save feedback")
	}
	return nil
}

// ModelStats aggregates runs and feedback per model, busiest model first.
func (r *Repository) ModelStats(ctx context.Context) ([]models.ModelStat, error) {
	const op = "SQLiteRepository.ModelStats"

	rows, err := r.db.statements.modelStats.QueryContext(ctx)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query model stats")
	}
	defer rows.Close()

	var stats []models.ModelStat
	for rows.Next() {
		var s models.ModelStat
		if err := rows.Scan(&s.Model, &s.Runs, &s.DegradedRuns, &s.FailedRuns, &s.Positive, &s.Negative); err != nil {
			return nil, errors.Internal(op, err, "Failed to scan model stats")
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "Failed to read model stats")
	}
	return stats, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
