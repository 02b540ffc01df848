package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"himmel.app/internal/auth"
)

func TestRoleStoreCreateDuplicateName(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("insert into roles").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	now := time.Now().UTC()
	err := store.Roles().Create(context.Background(), &auth.Role{
		ID:               "role-1",
		Name:             "editor",
		SensitivityLevel: auth.SensitivityLow,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
}

func TestRoleStoreByID(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now().UTC()
	perms := []byte(`[{"resource":"fiction","actions":["read","create"]}]`)
	mock.ExpectQuery("from roles where id").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "permissions", "sensitivity_level", "created_at", "updated_at",
		}).AddRow("role-1", "editor", "content editors", perms, "low", now, now))

	role, err := store.Roles().ByID(context.Background(), "role-1")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if role.Name != "editor" || role.SensitivityLevel != auth.SensitivityLow {
		t.Fatalf("unexpected role: %+v", role)
	}
	if len(role.Permissions) != 1 || role.Permissions[0].Resource != auth.ResourceFiction {
		t.Fatalf("permissions not decoded: %+v", role.Permissions)
	}
}

func TestRoleStoreListFilters(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("select count").
		WithArgs("critical").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("select id, name, description, permissions").
		WithArgs("critical", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "permissions", "sensitivity_level", "created_at", "updated_at",
		}).AddRow("role-1", "admin", "", []byte(`[]`), "critical", now, now))

	roles, total, err := store.Roles().List(context.Background(), auth.RoleQuery{
		SensitivityLevel: auth.SensitivityCritical,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(roles) != 1 || roles[0].Name != "admin" {
		t.Fatalf("total=%d roles=%+v", total, roles)
	}
}

func TestRoleStoreDeleteMissing(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("delete from roles").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Roles().Delete(context.Background(), "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
