package postgres

import (
	"context"
	"fmt"
	"time"

	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
)

func (s *Store) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	now := s.now()
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	query, args, err := dialect.Insert(tableSyncQueue).
		Rows(goqu.Record{
			"task_type":     task.TaskType,
			"booking_id":    task.BookingID,
			"payload":       task.Payload,
			"status":        task.Status,
			"retry_count":   task.RetryCount,
			"last_error":    task.LastError,
			"created_at":    now,
			"next_retry_at": task.NextRetryAt,
		}).
		Returning("id").
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if err := s.queryRow(ctx, query, args).Scan(&task.ID); err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}
	task.CreatedAt = now
	return nil
}

func (s *Store) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	query, args, err := pendingTasksQuery(s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := s.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func pendingTasksQuery(now time.Time, limit int) (string, []any, error) {
	return dialect.From(tableSyncQueue).
		Select("id", "task_type", "booking_id", "payload", "status", "retry_count",
			"last_error", "created_at", "processed_at", "next_retry_at").
		Where(
			goqu.C("status").In(models.SyncStatusPending, models.SyncStatusRetry),
			goqu.Or(
				goqu.C("next_retry_at").IsNull(),
				goqu.C("next_retry_at").Lte(now),
			),
		).
		Order(goqu.C("created_at").Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
}

func (s *Store) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	query, args, err := updateTaskQuery(id, status, errMsg, nextRetryAt, s.now())
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}
	if _, err := s.exec(ctx, query, args); err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	return nil
}

func updateTaskQuery(id int64, status, errMsg string, nextRetryAt *time.Time, now time.Time) (string, []any, error) {
	if nextRetryAt != nil {
		utc := nextRetryAt.UTC()
		nextRetryAt = &utc
	}

	record := goqu.Record{
		"status":        status,
		"last_error":    errMsg,
		"next_retry_at": nextRetryAt,
	}
	switch status {
	case models.SyncStatusRetry:
		record["retry_count"] = goqu.L("retry_count + 1")
	case models.SyncStatusCompleted, models.SyncStatusFailed:
		record["processed_at"] = now
	}

	return dialect.Update(tableSyncQueue).
		Set(record).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
}
