package repo

import (
	"context"
	"database/sql"

	"dawin/internal/domain"
)

func (r Repo) UpsertUser(ctx context.Context, tx *sql.Tx, u domain.User, now string) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO users(tenant_id, id, name, email, department, manager_id, active, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name=excluded.name,
			email=excluded.email,
			department=excluded.department,
			manager_id=excluded.manager_id,
			active=excluded.active,
			updated_at=excluded.updated_at`,
		u.TenantID, u.ID, u.Name, u.Email, u.Department, nullableStringPtr(u.ManagerID), u.Active, now, now)
	return err
}

func (r Repo) GetUser(ctx context.Context, tenantID, id string) (domain.User, error) {
	var u domain.User
	var managerID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT tenant_id, id, name, email, department, manager_id, active, created_at, updated_at
		FROM users WHERE tenant_id=? AND id=?`, tenantID, id).
		Scan(&u.TenantID, &u.ID, &u.Name, &u.Email, &u.Department, &managerID, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if managerID.Valid {
		u.ManagerID = &managerID.String
	}
	roles, err := r.UserRoles(ctx, tenantID, id)
	if err != nil {
		return domain.User{}, err
	}
	u.Roles = roles
	return u, nil
}

type UserFilters struct {
	TenantID   string
	Department string
	Role       string
	ActiveOnly bool
}

func (r Repo) ListUsers(ctx context.Context, f UserFilters) ([]domain.User, error) {
	query := `SELECT u.tenant_id, u.id, u.name, u.email, u.department, u.manager_id, u.active, u.created_at, u.updated_at FROM users u`
	args := []any{}
	if f.Role != "" {
		query += ` JOIN user_roles ur ON ur.tenant_id=u.tenant_id AND ur.user_id=u.id AND ur.role=?`
		args = append(args, f.Role)
	}
	query += ` WHERE u.tenant_id=?`
	args = append(args, f.TenantID)
	if f.Department != "" {
		query += ` AND u.department=?`
		args = append(args, f.Department)
	}
	if f.ActiveOnly {
		query += ` AND u.active=1`
	}
	query += ` ORDER BY u.id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		var u domain.User
		var managerID sql.NullString
		if err := rows.Scan(&u.TenantID, &u.ID, &u.Name, &u.Email, &u.Department, &managerID, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if managerID.Valid {
			u.ManagerID = &managerID.String
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return users, nil
	}
	byID := make(map[string]int, len(users))
	for i := range users {
		byID[users[i].ID] = i
	}
	rows, err = r.DB.QueryContext(ctx, `SELECT user_id, role FROM user_roles WHERE tenant_id=? ORDER BY role ASC`, f.TenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var userID, role string
		if err := rows.Scan(&userID, &role); err != nil {
			return nil, err
		}
		if i, ok := byID[userID]; ok {
			users[i].Roles = append(users[i].Roles, role)
		}
	}
	return users, rows.Err()
}

func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, tenantID, id string) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	res, err := exec(ctx, `DELETE FROM users WHERE tenant_id=? AND id=?`, tenantID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetUserRoles(ctx context.Context, tx *sql.Tx, tenantID, userID string, roles []string) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	if _, err := exec(ctx, `DELETE FROM user_roles WHERE tenant_id=? AND user_id=?`, tenantID, userID); err != nil {
		return err
	}
	for _, role := range roles {
		if _, err := exec(ctx, `INSERT OR IGNORE INTO user_roles(tenant_id, user_id, role) VALUES (?,?,?)`, tenantID, userID, role); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) UserRoles(ctx context.Context, tenantID, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role FROM user_roles WHERE tenant_id=? AND user_id=? ORDER BY role ASC`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r Repo) UsersWithRole(ctx context.Context, tenantID, role string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT u.id FROM users u
		JOIN user_roles ur ON ur.tenant_id=u.tenant_id AND ur.user_id=u.id
		WHERE u.tenant_id=? AND ur.role=? AND u.active=1 ORDER BY u.id ASC`, tenantID, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) UsersInDepartment(ctx context.Context, tenantID, department string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM users WHERE tenant_id=? AND department=? AND active=1 ORDER BY id ASC`, tenantID, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) ManagerOf(ctx context.Context, tenantID, userID string) (string, error) {
	var managerID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT manager_id FROM users WHERE tenant_id=? AND id=?`, tenantID, userID).Scan(&managerID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !managerID.Valid || managerID.String == "" {
		return "", ErrNotFound
	}
	return managerID.String, nil
}

func (r Repo) CountUsersWithRole(ctx context.Context, tenantID, role string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u
		JOIN user_roles ur ON ur.tenant_id=u.tenant_id AND ur.user_id=u.id
		WHERE u.tenant_id=? AND ur.role=? AND u.active=1`, tenantID, role).Scan(&n)
	return n, err
}

func (r Repo) CountUsersInDepartment(ctx context.Context, tenantID, department string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE tenant_id=? AND department=? AND active=1`, tenantID, department).Scan(&n)
	return n, err
}
