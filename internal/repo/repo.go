package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dawin/internal/config"
	"dawin/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func (r Repo) InsertTenant(ctx context.Context, tx *sql.Tx, t domain.Tenant) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO tenants(id,name,status,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Name, t.Status, t.CreatedAt)
	return err
}

func (r Repo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	var t domain.Tenant
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_at FROM tenants WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// SingleTenant returns the only tenant in the workspace, ErrNotFound when
// none exist and an error when several do.
func (r Repo) SingleTenant(ctx context.Context) (domain.Tenant, error) {
	tenants, err := r.ListTenants(ctx)
	if err != nil {
		return domain.Tenant{}, err
	}
	if len(tenants) == 0 {
		return domain.Tenant{}, ErrNotFound
	}
	if len(tenants) > 1 {
		return domain.Tenant{}, fmt.Errorf("multiple tenants exist; specify --tenant")
	}
	return tenants[0], nil
}

func (r Repo) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpsertTenantConfig(ctx context.Context, tenantID string, cfg *config.Config) error {
	return upsertTenantConfig(ctx, r.DB, nil, tenantID, cfg)
}

func (r Repo) UpsertTenantConfigTx(ctx context.Context, tx *sql.Tx, tenantID string, cfg *config.Config) error {
	return upsertTenantConfig(ctx, nil, tx, tenantID, cfg)
}

func upsertTenantConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, tenantID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Tenant.ID = tenantID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO tenant_configs(tenant_id,config_json,updated_at) VALUES (?,?,?)
ON CONFLICT(tenant_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, tenantID, string(payload), now)
	return err
}

func (r Repo) GetTenantConfig(ctx context.Context, tenantID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM tenant_configs WHERE tenant_id=?`, tenantID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Tenant.ID == "" {
		cfg.Tenant.ID = tenantID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) InsertOccurrence(ctx context.Context, tx *sql.Tx, o domain.Occurrence) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO occurrences(id,tenant_id,event_type,category,payload_json,occurred_at,actor_id,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		o.ID, o.TenantID, o.EventType, o.Category, o.PayloadJSON, o.OccurredAt, o.ActorID, o.CreatedAt)
	return err
}

func (r Repo) GetOccurrence(ctx context.Context, tenantID, id string) (domain.Occurrence, error) {
	var o domain.Occurrence
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,event_type,category,payload_json,occurred_at,actor_id,created_at FROM occurrences WHERE tenant_id=? AND id=?`, tenantID, id).
		Scan(&o.ID, &o.TenantID, &o.EventType, &o.Category, &o.PayloadJSON, &o.OccurredAt, &o.ActorID, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

type OccurrenceFilters struct {
	TenantID        string
	EventType       string
	Category        string
	ActorID         string
	Since           string
	Until           string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListOccurrences(ctx context.Context, f OccurrenceFilters) ([]domain.Occurrence, error) {
	clauses := []string{"tenant_id=?"}
	args := []any{f.TenantID}
	if f.EventType != "" {
		clauses = append(clauses, "event_type=?")
		args = append(args, f.EventType)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.Since != "" {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, f.Since)
	}
	if f.Until != "" {
		clauses = append(clauses, "occurred_at < ?")
		args = append(args, f.Until)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT id,tenant_id,event_type,category,payload_json,occurred_at,actor_id,created_at FROM occurrences WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Occurrence
	for rows.Next() {
		var o domain.Occurrence
		if err := rows.Scan(&o.ID, &o.TenantID, &o.EventType, &o.Category, &o.PayloadJSON, &o.OccurredAt, &o.ActorID, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// CountOccurrencesByType groups a tenant's occurrences by event type.
func (r Repo) CountOccurrencesByType(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT event_type, count(*) FROM occurrences WHERE tenant_id=? GROUP BY event_type`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		res[eventType] = count
	}
	return res, rows.Err()
}

// ArchiveOccurrencesBefore copies occurrences of one event type older than
// the cutoff into the archive table. Returns the number of rows copied.
func (r Repo) ArchiveOccurrencesBefore(ctx context.Context, tx *sql.Tx, tenantID, eventType, cutoff, archivedAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO occurrences_archive(id,tenant_id,event_type,category,payload_json,occurred_at,actor_id,created_at,archived_at)
SELECT id,tenant_id,event_type,category,payload_json,occurred_at,actor_id,created_at,? FROM occurrences WHERE tenant_id=? AND event_type=? AND occurred_at < ?`,
		archivedAt, tenantID, eventType, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOccurrencesBefore removes occurrences of one event type older than
// the cutoff. Returns the number of rows deleted.
func (r Repo) DeleteOccurrencesBefore(ctx context.Context, tx *sql.Tx, tenantID, eventType, cutoff string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM occurrences WHERE tenant_id=? AND event_type=? AND occurred_at < ?`, tenantID, eventType, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
