package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
)

const (
	insertRunQuery = `
        INSERT INTO summary_runs (
            id, caller_key, source, state, model, chunks, processed_chunks,
            original_length, summary_length, source_language, error, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            state = excluded.state,
            model = excluded.model,
            processed_chunks = excluded.processed_chunks,
            summary_length = excluded.summary_length,
            error = excluded.error
    `

	getRunQuery = `
        SELECT id, caller_key, source, state, model, chunks, processed_chunks,
               original_length, summary_length, source_language, error, created_at
        FROM summary_runs WHERE id = ?
    `

	// The model falls back to the one recorded for the run.
	insertFeedbackQuery = `
        INSERT INTO feedback (id, run_id, model, satisfied, reason, created_at)
        VALUES (?, ?, COALESCE(NULLIF(?, ''), (SELECT model FROM summary_runs WHERE id = ?), ''), ?, ?, ?)
    `

	modelStatsQuery = `
        SELECT model,
               SUM(runs), SUM(degraded), SUM(failed), SUM(positive), SUM(negative)
        FROM (
            SELECT model, 1 AS runs,
                   CASE WHEN state = 'degraded' THEN 1 ELSE 0 END AS degraded,
                   CASE WHEN state = 'failed' THEN 1 ELSE 0 END AS failed,
                   0 AS positive, 0 AS negative
            FROM summary_runs WHERE model <> ''
            UNION ALL
            SELECT model, 0, 0, 0,
                   CASE WHEN satisfied = 1 THEN 1 ELSE 0 END,
                   CASE WHEN satisfied = 1 THEN 0 ELSE 1 END
            FROM feedback WHERE model <> ''
        )
        GROUP BY model
        ORDER BY SUM(runs) DESC, model ASC
    `
)

type PreparedStatements struct {
	insertRun      *sql.Stmt
	getRun         *sql.Stmt
	insertFeedback *sql.Stmt
	modelStats     *sql.Stmt
}

func (stmts *PreparedStatements) Prepare(ctx context.Context, db *sql.DB) error {
	const op = "PreparedStatements.Prepare"

	var err error

	if stmts.insertRun, err = db.PrepareContext(ctx, insertRunQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare insertRun statement")
	}

	if stmts.getRun, err = db.PrepareContext(ctx, getRunQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare getRun statement")
	}

	if stmts.insertFeedback, err = db.PrepareContext(ctx, insertFeedbackQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare insertFeedback statement")
	}

	if stmts.modelStats, err = db.PrepareContext(ctx, modelStatsQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare modelStats statement")
	}

	return nil
}

func (stmts *PreparedStatements) Close() error {
	var errs []error

	statements := [...]*sql.Stmt{
		stmts.insertRun,
		stmts.getRun,
		stmts.insertFeedback,
		stmts.modelStats,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close prepared statements: %v", errs)
	}
	return nil
}
