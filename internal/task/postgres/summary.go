package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/task"
)

const (
	statusCountsQuery = `SELECT status, COUNT(*) AS count FROM tasks GROUP BY status`

	assigneeStatusCountsQuery = `SELECT status, COUNT(*) AS count FROM tasks WHERE assignee_id = $1 GROUP BY status`
)

// SummaryRepository answers the dashboard counts with plain SQL.
type SummaryRepository struct {
	db *sqlx.DB
}

func NewSummaryRepository(db *sqlx.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

type statusCount struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

func (r *SummaryRepository) StatusCounts(ctx context.Context, assigneeID *int64) (task.Summary, error) {
	var rows []statusCount
	var err error

	if assigneeID != nil {
		err = r.db.SelectContext(ctx, &rows, assigneeStatusCountsQuery, *assigneeID)
	} else {
		err = r.db.SelectContext(ctx, &rows, statusCountsQuery)
	}
	if err != nil {
		return task.Summary{}, fmt.Errorf("task status counts: %w", err)
	}

	var summary task.Summary
	for _, row := range rows {
		summary.Add(task.Status(row.Status), row.Count)
	}
	return summary, nil
}
