package auth_test

import (
	"context"
	"errors"
	"testing"

	"himmel.app/internal/auth"
)

func TestCalculateSensitivity(t *testing.T) {
	cases := []struct {
		name  string
		perms []auth.Permission
		want  string
	}{
		{
			name: "empty grant set is low",
			want: auth.SensitivityLow,
		},
		{
			name: "benign resource, benign action",
			perms: []auth.Permission{
				{Resource: auth.ResourceFiction, Actions: []string{auth.ActionRead}},
			},
			want: auth.SensitivityLow,
		},
		{
			name: "many benign entries is medium",
			perms: []auth.Permission{
				{Resource: auth.ResourceFiction, Actions: []string{auth.ActionRead}},
				{Resource: auth.ResourceChapter, Actions: []string{auth.ActionRead}},
				{Resource: auth.ResourceTag, Actions: []string{auth.ActionRead}},
				{Resource: auth.ResourceComment, Actions: []string{auth.ActionRead}},
				{Resource: auth.ResourceRating, Actions: []string{auth.ActionRead}},
				{Resource: auth.ResourceForum, Actions: []string{auth.ActionRead}},
			},
			want: auth.SensitivityMedium,
		},
		{
			name: "identity resource alone is high",
			perms: []auth.Permission{
				{Resource: auth.ResourceUser, Actions: []string{auth.ActionRead}},
			},
			want: auth.SensitivityHigh,
		},
		{
			name: "destructive action alone is high",
			perms: []auth.Permission{
				{Resource: auth.ResourceComment, Actions: []string{auth.ActionDelete}},
			},
			want: auth.SensitivityHigh,
		},
		{
			name: "identity resource with destructive action is critical",
			perms: []auth.Permission{
				{Resource: auth.ResourceRole, Actions: []string{auth.ActionUpdate}},
			},
			want: auth.SensitivityCritical,
		},
		{
			name: "critical pair may span entries",
			perms: []auth.Permission{
				{Resource: auth.ResourcePermission, Actions: []string{auth.ActionRead}},
				{Resource: auth.ResourceComment, Actions: []string{auth.ActionDelete}},
			},
			want: auth.SensitivityCritical,
		},
	}
	for _, tc := range cases {
		if got := auth.CalculateSensitivity(tc.perms); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestNormalizePermissions(t *testing.T) {
	got, err := auth.NormalizePermissions([]auth.Permission{
		{Resource: "Fiction", Actions: []string{"read", "CREATE"}},
		{Resource: "fiction", Actions: []string{"read", "update"}},
		{Resource: "tag", Actions: []string{"read"}},
	})
	if err != nil {
		t.Fatalf("NormalizePermissions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("duplicate resources not merged: %+v", got)
	}
	fiction := got[0]
	if fiction.Resource != "fiction" {
		t.Fatalf("resource order not preserved: %+v", got)
	}
	want := []string{"create", "read", "update"}
	if len(fiction.Actions) != len(want) {
		t.Fatalf("actions = %v, want %v", fiction.Actions, want)
	}
	for i, a := range want {
		if fiction.Actions[i] != a {
			t.Fatalf("actions = %v, want %v", fiction.Actions, want)
		}
	}

	if _, err := auth.NormalizePermissions([]auth.Permission{{Resource: "spaceship", Actions: []string{"read"}}}); !errors.Is(err, auth.ErrInvalidPermission) {
		t.Fatalf("unknown resource: got %v, want ErrInvalidPermission", err)
	}
	if _, err := auth.NormalizePermissions([]auth.Permission{{Resource: "fiction", Actions: []string{"fly"}}}); !errors.Is(err, auth.ErrInvalidPermission) {
		t.Fatalf("unknown action: got %v, want ErrInvalidPermission", err)
	}
}

func TestHasPermissionFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plain := env.signUp(t, "plain_user", "plain@example.com", "Sup3r!secret")

	// Unknown principal, principal without a role, and dangling role id all
	// deny without erroring.
	for _, id := range []string{"missing-id", plain.ID} {
		ok, err := env.svc.HasPermission(ctx, id, auth.ResourceFiction, auth.ActionRead)
		if err != nil {
			t.Fatalf("HasPermission(%s): %v", id, err)
		}
		if ok {
			t.Fatalf("HasPermission(%s) granted without a role", id)
		}
	}

	if err := env.users.SetRole(ctx, plain.ID, "deleted-role-id"); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	ok, err := env.svc.HasPermission(ctx, plain.ID, auth.ResourceFiction, auth.ActionRead)
	if err != nil {
		t.Fatalf("HasPermission with dangling role: %v", err)
	}
	if ok {
		t.Fatalf("dangling role id granted access")
	}
}

func TestAuthorizeOwnershipOrGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.signUp(t, "owner_user", "owner@example.com", "Sup3r!secret")
	other := env.signUp(t, "other_user", "other@example.com", "Sup3r!secret")
	moderator := env.seedAdmin(t, auth.ResourceComment)

	// Ownership short-circuits without any role.
	if err := env.svc.Authorize(ctx, owner.ID, owner.ID, auth.ResourceComment, auth.ActionUpdate); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
	// Non-owner without grant is denied.
	if err := env.svc.Authorize(ctx, other.ID, owner.ID, auth.ResourceComment, auth.ActionUpdate); !errors.Is(err, auth.ErrAccessDenied) {
		t.Fatalf("non-owner: got %v, want ErrAccessDenied", err)
	}
	// Non-owner with the grant passes.
	if err := env.svc.Authorize(ctx, moderator.ID, owner.ID, auth.ResourceComment, auth.ActionUpdate); err != nil {
		t.Fatalf("moderator denied: %v", err)
	}
}

func TestRoleLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAdmin(t, auth.ResourceRole, auth.ResourceUser)
	plain := env.signUp(t, "plain_user", "plain@example.com", "Sup3r!secret")

	// Ungranted actors cannot touch role administration.
	if _, err := env.svc.CreateRole(ctx, plain.ID, "sneaky", "", nil); !errors.Is(err, auth.ErrAccessDenied) {
		t.Fatalf("ungranted create: got %v, want ErrAccessDenied", err)
	}

	role, err := env.svc.CreateRole(ctx, admin.ID, "editor", "content editors", []auth.Permission{
		{Resource: auth.ResourceFiction, Actions: []string{auth.ActionRead, auth.ActionCreate}},
	})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if role.SensitivityLevel != auth.SensitivityLow {
		t.Fatalf("sensitivity = %s, want low", role.SensitivityLevel)
	}

	if _, err := env.svc.CreateRole(ctx, admin.ID, "editor", "", nil); !errors.Is(err, auth.ErrDuplicateEntry) {
		t.Fatalf("duplicate name: got %v, want ErrDuplicateEntry", err)
	}

	// Granting destructive actions must bump the stored sensitivity.
	perms := []auth.Permission{
		{Resource: auth.ResourceUser, Actions: []string{auth.ActionDelete}},
	}
	updated, err := env.svc.UpdateRole(ctx, admin.ID, role.ID, auth.RoleUpdate{Permissions: &perms})
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if updated.SensitivityLevel != auth.SensitivityCritical {
		t.Fatalf("sensitivity after update = %s, want critical", updated.SensitivityLevel)
	}

	if err := env.svc.AssignRole(ctx, admin.ID, plain.ID, role.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	ok, err := env.svc.HasPermission(ctx, plain.ID, auth.ResourceUser, auth.ActionDelete)
	if err != nil || !ok {
		t.Fatalf("assigned role not effective: ok=%v err=%v", ok, err)
	}

	// Role edits propagate to holders on the next check.
	empty := []auth.Permission{}
	if _, err := env.svc.UpdateRole(ctx, admin.ID, role.ID, auth.RoleUpdate{Permissions: &empty}); err != nil {
		t.Fatalf("UpdateRole(empty): %v", err)
	}
	ok, err = env.svc.HasPermission(ctx, plain.ID, auth.ResourceUser, auth.ActionDelete)
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if ok {
		t.Fatalf("revoked grant still effective")
	}

	if err := env.svc.DeleteRole(ctx, admin.ID, role.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if _, err := env.svc.RoleByID(ctx, admin.ID, role.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("deleted role still readable: %v", err)
	}
}

func TestListRolesFiltering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAdmin(t, auth.ResourceRole)

	mk := func(name string, perms []auth.Permission) {
		t.Helper()
		if _, err := env.svc.CreateRole(ctx, admin.ID, name, "", perms); err != nil {
			t.Fatalf("CreateRole(%s): %v", name, err)
		}
	}
	mk("librarian", []auth.Permission{{Resource: auth.ResourceFiction, Actions: []string{auth.ActionRead}}})
	mk("moderator", []auth.Permission{{Resource: auth.ResourceComment, Actions: []string{auth.ActionDelete}}})
	mk("shelf", nil)

	roles, total, err := env.svc.ListRoles(ctx, admin.ID, auth.RoleQuery{Resource: auth.ResourceFiction})
	if err != nil {
		t.Fatalf("ListRoles(resource): %v", err)
	}
	if total != 1 || len(roles) != 1 || roles[0].Name != "librarian" {
		t.Fatalf("resource filter: total=%d roles=%+v", total, roles)
	}

	roles, total, err = env.svc.ListRoles(ctx, admin.ID, auth.RoleQuery{SensitivityLevel: auth.SensitivityHigh})
	if err != nil {
		t.Fatalf("ListRoles(sensitivity): %v", err)
	}
	if total != 1 || roles[0].Name != "moderator" {
		t.Fatalf("sensitivity filter: total=%d", total)
	}

	none := false
	roles, total, err = env.svc.ListRoles(ctx, admin.ID, auth.RoleQuery{HasPermission: &none})
	if err != nil {
		t.Fatalf("ListRoles(hasPermission): %v", err)
	}
	if total != 1 || roles[0].Name != "shelf" {
		t.Fatalf("hasPermission filter: total=%d", total)
	}
}
