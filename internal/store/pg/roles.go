package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"

	"himmel.app/internal/auth"
)

var _ auth.RoleStore = (*RoleStore)(nil)

// RoleStore persists roles with their permission grants as a jsonb document,
// mirroring the shape the auth package evaluates in memory.
type RoleStore struct {
	db *sql.DB
}

func (s *Store) Roles() *RoleStore { return &RoleStore{db: s.db} }

func (s *RoleStore) Create(ctx context.Context, role *auth.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into roles (id, name, description, permissions, sensitivity_level, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, role.ID, role.Name, role.Description, perms, role.SensitivityLevel, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgerrcode.UniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *RoleStore) ByID(ctx context.Context, id string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, description, permissions, sensitivity_level, created_at, updated_at
		from roles where id = $1
	`, id)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s *RoleStore) Update(ctx context.Context, role *auth.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update roles
		set name = $2, description = $3, permissions = $4, sensitivity_level = $5, updated_at = $6
		where id = $1
	`, role.ID, role.Name, role.Description, perms, role.SensitivityLevel, role.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgerrcode.UniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *RoleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// List filters on the jsonb grant document directly so paging totals stay
// consistent with the returned slice.
func (s *RoleStore) List(ctx context.Context, q auth.RoleQuery) ([]*auth.Role, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Query != "" {
		p := arg("%" + strings.ToLower(q.Query) + "%")
		where = append(where, fmt.Sprintf("(lower(name) like %s or lower(description) like %s)", p, p))
	}
	if q.SensitivityLevel != "" {
		where = append(where, fmt.Sprintf("sensitivity_level = %s", arg(q.SensitivityLevel)))
	}
	if q.HasPermission != nil {
		op := "="
		if *q.HasPermission {
			op = ">"
		}
		where = append(where, fmt.Sprintf("jsonb_array_length(permissions) %s 0", op))
	}
	if q.Resource != "" && q.Action != "" {
		where = append(where, fmt.Sprintf(`exists (
			select 1 from jsonb_array_elements(permissions) p
			where p->>'resource' = %s and p->'actions' ? %s
		)`, arg(q.Resource), arg(q.Action)))
	} else if q.Resource != "" {
		where = append(where, fmt.Sprintf(`exists (
			select 1 from jsonb_array_elements(permissions) p
			where p->>'resource' = %s
		)`, arg(q.Resource)))
	} else if q.Action != "" {
		where = append(where, fmt.Sprintf(`exists (
			select 1 from jsonb_array_elements(permissions) p
			where p->'actions' ? %s
		)`, arg(q.Action)))
	}

	cond := ""
	if len(where) > 0 {
		cond = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from roles`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "name asc"
	switch q.SortBy {
	case "created_at":
		order = "created_at"
	case "sensitivity_level":
		order = `case sensitivity_level
			when 'low' then 0 when 'medium' then 1 when 'high' then 2 else 3 end`
	case "", "name":
		order = "name"
	}
	if q.SortOrder == "desc" {
		order += " desc"
	} else {
		order += " asc"
	}

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	query := `select id, name, description, permissions, sensitivity_level, created_at, updated_at
		from roles` + cond + ` order by ` + order +
		fmt.Sprintf(" limit %s offset %s", arg(limit), arg((page-1)*limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	roles := []*auth.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		roles = append(roles, role)
	}
	return roles, total, rows.Err()
}

func scanRole(row rowScanner) (*auth.Role, error) {
	var (
		role  auth.Role
		perms []byte
	)
	err := row.Scan(&role.ID, &role.Name, &role.Description, &perms,
		&role.SensitivityLevel, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, err
	}
	role.Permissions = []auth.Permission{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &role, nil
}
