// Package audit appends platform activity to the audit log. Every state
// change the engine makes lands here inside the same transaction, and the
// webhook forwarder tails the log to push entries to subscribers.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Entry types written by the engine.
const (
	TenantCreated          = "tenant_created"
	ConfigUpdated          = "config_updated"
	OccurrenceRecorded     = "occurrence_recorded"
	TaskCreated            = "task_created"
	TaskStatusChanged      = "task_status_changed"
	TaskReassigned         = "task_reassigned"
	NotificationRecorded   = "notification_recorded"
	NotificationDispatched = "notification_dispatched"
	UserUpserted           = "user_upserted"
	UserRemoved            = "user_removed"
	APIKeyCreated          = "api_key_created"
	APIKeyRevoked          = "api_key_revoked"
	RetentionSwept         = "retention_swept"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Append writes one entry within the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, entryType, tenantID, entityKind, entityID, actorID string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_log(ts,type,tenant_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, entryType, nullable(tenantID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
