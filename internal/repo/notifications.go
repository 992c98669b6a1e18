package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"dawin/internal/domain"
)

const notificationColumns = `id,tenant_id,occurrence_id,event_type,template,channels_json,recipients_json,status,created_at,dispatched_at`

func scanNotification(scan func(dest ...any) error) (domain.Notification, error) {
	var n domain.Notification
	var channelsJSON string
	var dispatchedAt sql.NullString
	err := scan(&n.ID, &n.TenantID, &n.OccurrenceID, &n.EventType, &n.Template, &channelsJSON, &n.RecipientsJSON,
		&n.Status, &n.CreatedAt, &dispatchedAt)
	if err != nil {
		return n, err
	}
	if channelsJSON != "" {
		if err := json.Unmarshal([]byte(channelsJSON), &n.Channels); err != nil {
			return n, err
		}
	}
	if dispatchedAt.Valid {
		n.DispatchedAt = &dispatchedAt.String
	}
	return n, nil
}

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	channels, err := json.Marshal(n.Channels)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO notifications(`+notificationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.TenantID, n.OccurrenceID, n.EventType, n.Template, string(channels), n.RecipientsJSON,
		n.Status, n.CreatedAt, nullableStringPtr(n.DispatchedAt))
	return err
}

func (r Repo) GetNotification(ctx context.Context, tenantID, id string) (domain.Notification, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE tenant_id=? AND id=?`, tenantID, id)
	n, err := scanNotification(row.Scan)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	return n, err
}

// MarkNotificationDispatched updates delivery state after the hand-off
// attempt. Status is sent or failed.
func (r Repo) MarkNotificationDispatched(ctx context.Context, tx *sql.Tx, id, status, dispatchedAt string) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	res, err := exec(ctx, `UPDATE notifications SET status=?, dispatched_at=? WHERE id=?`, status, nullable(dispatchedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type NotificationFilters struct {
	TenantID        string
	OccurrenceID    string
	EventType       string
	Template        string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListNotifications(ctx context.Context, f NotificationFilters) ([]domain.Notification, error) {
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
	if f.Template != "" {
		clauses = append(clauses, "template=?")
		args = append(args, f.Template)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
