package repo

import (
	"context"
	"database/sql"
	"strings"

	"dawin/internal/domain"
)

const taskColumns = `id,tenant_id,occurrence_id,event_type,task_type,title,description,priority,due_at,assign_kind,assign_value,assignee_id,unassigned,unassigned_reason,status,created_at,updated_at,completed_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var assigneeID, unassignedReason, completedAt sql.NullString
	err := scan(&t.ID, &t.TenantID, &t.OccurrenceID, &t.EventType, &t.TaskType, &t.Title, &t.Description,
		&t.Priority, &t.DueAt, &t.AssignKind, &t.AssignValue, &assigneeID, &t.Unassigned, &unassignedReason,
		&t.Status, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err != nil {
		return t, err
	}
	if assigneeID.Valid {
		t.AssigneeID = &assigneeID.String
	}
	if unassignedReason.Valid {
		t.UnassignedReason = &unassignedReason.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TenantID, t.OccurrenceID, t.EventType, t.TaskType, t.Title, t.Description,
		t.Priority, t.DueAt, t.AssignKind, t.AssignValue, nullableStringPtr(t.AssigneeID), t.Unassigned,
		nullableStringPtr(t.UnassignedReason), t.Status, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET assignee_id=?, unassigned=?, unassigned_reason=?, status=?, updated_at=?, completed_at=? WHERE id=?`,
		nullableStringPtr(t.AssigneeID), t.Unassigned, nullableStringPtr(t.UnassignedReason), t.Status, t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	return err
}

func (r Repo) GetTask(ctx context.Context, tenantID, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE tenant_id=? AND id=?`, tenantID, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, tenantID, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE tenant_id=? AND id=?`, tenantID, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

type TaskFilters struct {
	TenantID        string
	OccurrenceID    string
	EventType       string
	TaskType        string
	Status          string
	Priority        string
	AssigneeID      string
	Unassigned      *bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"tenant_id=?"}
	args := []any{f.TenantID}
	if f.OccurrenceID != "" {
		clauses = append(clauses, "occurrence_id=?")
		args = append(args, f.OccurrenceID)
	}
	if f.EventType != "" {
		clauses = append(clauses, "event_type=?")
		args = append(args, f.EventType)
	}
	if f.TaskType != "" {
		clauses = append(clauses, "task_type=?")
		args = append(args, f.TaskType)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Unassigned != nil {
		clauses = append(clauses, "unassigned=?")
		args = append(args, *f.Unassigned)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

type NextTaskFilters struct {
	TenantID          string
	AssigneeID        string
	IncludeUnassigned bool
}

// NextTask picks the most pressing open task: highest priority first, then
// the earliest due date.
func (r Repo) NextTask(ctx context.Context, f NextTaskFilters) (domain.Task, error) {
	var t domain.Task
	if f.TenantID == "" {
		return t, ErrNotFound
	}
	clauses := []string{"tenant_id=?", "status='open'"}
	args := []any{f.TenantID}
	if f.AssigneeID != "" {
		if f.IncludeUnassigned {
			clauses = append(clauses, "(assignee_id=? OR assignee_id IS NULL)")
		} else {
			clauses = append(clauses, "assignee_id=?")
		}
		args = append(args, f.AssigneeID)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + `
ORDER BY
	CASE priority WHEN 'P0' THEN 0 WHEN 'P1' THEN 1 WHEN 'P2' THEN 2 ELSE 3 END,
	due_at ASC,
	created_at ASC,
	id ASC
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, args...)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) CountTasksByStatus(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE tenant_id=? GROUP BY status`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
