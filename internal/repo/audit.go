package repo

import (
	"context"
	"strings"

	"dawin/internal/domain"
)

type AuditFilters struct {
	TenantID   string
	Type       string
	EntityKind string
	EntityID   string
	ActorID    string
	Limit      int
}

const auditColumns = `id, ts, type, COALESCE(tenant_id,''), entity_kind, COALESCE(entity_id,''), actor_id, payload_json`

// LatestAudit returns audit entries newest first.
func (r Repo) LatestAudit(ctx context.Context, f AuditFilters) ([]domain.AuditEntry, error) {
	clauses := []string{}
	args := []any{}
	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, f.TenantID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	query := `SELECT ` + auditColumns + ` FROM audit_log`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id DESC`
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	return r.queryAudit(ctx, query, args...)
}

// AuditAfter returns a tenant's audit entries with id greater than afterID,
// oldest first. Webhook delivery tails the log through this.
func (r Repo) AuditAfter(ctx context.Context, tenantID string, afterID int64, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + auditColumns + ` FROM audit_log WHERE tenant_id=? AND id > ? ORDER BY id ASC LIMIT ?`
	return r.queryAudit(ctx, query, tenantID, afterID, limit)
}

// LatestAuditID returns the highest audit entry id for a tenant, 0 when none.
func (r Repo) LatestAuditID(ctx context.Context, tenantID string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM audit_log WHERE tenant_id=?`, tenantID).Scan(&id)
	return id, err
}

func (r Repo) queryAudit(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.TenantID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
