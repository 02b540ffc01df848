package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"himmel.app/internal/ids"
)

// sensitivityEntryThreshold is the permission-entry count above which a role
// without critical grants classifies as medium.
const sensitivityEntryThreshold = 5

// criticalResources is the identity-administration resource set; combined
// with a critical action it marks a role critical.
var criticalResources = map[string]bool{
	ResourceUser:       true,
	ResourceRole:       true,
	ResourcePermission: true,
}

var criticalActions = map[string]bool{
	ActionUpdate: true,
	ActionDelete: true,
}

// HasPermission reports whether the principal's role grants action on
// resource. A principal without a role never satisfies any check.
func (s *Service) HasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	const op = "auth.HasPermission"

	user, err := s.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if user.RoleID == "" {
		return false, nil
	}
	role, err := s.roles.ByID(ctx, user.RoleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	for _, perm := range role.Permissions {
		if perm.Resource != resource {
			continue
		}
		for _, a := range perm.Actions {
			if a == action {
				return true, nil
			}
		}
	}
	return false, nil
}

// Authorize allows an operation when the principal owns the target resource
// OR its role grants the action — alternative paths, never combined.
func (s *Service) Authorize(ctx context.Context, userID, ownerID, resource, action string) error {
	const op = "auth.Authorize"

	if userID != "" && userID == ownerID {
		return nil
	}
	ok, err := s.HasPermission(ctx, userID, resource, action)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrAccessDenied)
	}
	return nil
}

// CalculateSensitivity classifies a grant set. Critical requires both an
// identity-administration resource and a destructive action; one of the two
// alone is high; many benign entries are medium; anything else is low.
func CalculateSensitivity(perms []Permission) string {
	var hasSystemAccess, hasCriticalActions bool
	for _, perm := range perms {
		if criticalResources[perm.Resource] {
			hasSystemAccess = true
		}
		for _, action := range perm.Actions {
			if criticalActions[action] {
				hasCriticalActions = true
				break
			}
		}
	}
	switch {
	case hasSystemAccess && hasCriticalActions:
		return SensitivityCritical
	case hasSystemAccess || hasCriticalActions:
		return SensitivityHigh
	case len(perms) > sensitivityEntryThreshold:
		return SensitivityMedium
	default:
		return SensitivityLow
	}
}

// NormalizePermissions validates entries and merges duplicate resources so
// each resource appears at most once with a deduplicated action set.
func NormalizePermissions(perms []Permission) ([]Permission, error) {
	merged := make(map[string]map[string]bool)
	var order []string
	for _, perm := range perms {
		resource := strings.ToLower(strings.TrimSpace(perm.Resource))
		if !validResource(resource) {
			return nil, fmt.Errorf("%w: unknown resource %q", ErrInvalidPermission, perm.Resource)
		}
		if _, ok := merged[resource]; !ok {
			merged[resource] = make(map[string]bool)
			order = append(order, resource)
		}
		for _, action := range perm.Actions {
			action = strings.ToLower(strings.TrimSpace(action))
			if !validAction(action) {
				return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidPermission, action)
			}
			merged[resource][action] = true
		}
	}
	result := make([]Permission, 0, len(order))
	for _, resource := range order {
		actions := make([]string, 0, len(merged[resource]))
		for action := range merged[resource] {
			actions = append(actions, action)
		}
		sort.Strings(actions)
		result = append(result, Permission{Resource: resource, Actions: actions})
	}
	return result, nil
}

// CreateRole creates a role with normalized permissions and a freshly
// computed sensitivity level. Requires the role/create grant.
func (s *Service) CreateRole(ctx context.Context, actorID, name, description string, perms []Permission) (*Role, error) {
	const op = "auth.CreateRole"

	if err := s.requirePermission(ctx, actorID, ResourceRole, ActionCreate); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s: %w: role name is required", op, ErrInvalidPermission)
	}
	normalized, err := NormalizePermissions(perms)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	role := &Role{
		ID:               ids.New(),
		Name:             name,
		Description:      strings.TrimSpace(description),
		Permissions:      normalized,
		SensitivityLevel: CalculateSensitivity(normalized),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrDuplicateEntry)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return role, nil
}

// RoleUpdate carries a partial role edit; nil fields are left untouched.
type RoleUpdate struct {
	Name        *string
	Description *string
	Permissions *[]Permission
}

// UpdateRole applies a partial edit. Sensitivity is recomputed whenever the
// permission list changes — the stored level is a cache, never an authority.
func (s *Service) UpdateRole(ctx context.Context, actorID, roleID string, upd RoleUpdate) (*Role, error) {
	const op = "auth.UpdateRole"

	if err := s.requirePermission(ctx, actorID, ResourceRole, ActionUpdate); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	role, err := s.roles.ByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%s: %w: role name is required", op, ErrInvalidPermission)
		}
		role.Name = name
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Permissions != nil {
		normalized, err := NormalizePermissions(*upd.Permissions)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		role.Permissions = normalized
		role.SensitivityLevel = CalculateSensitivity(normalized)
	}
	role.UpdatedAt = s.now().UTC()

	if err := s.roles.Update(ctx, role); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrDuplicateEntry)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return role, nil
}

// DeleteRole removes a role. Requires the role/delete grant.
func (s *Service) DeleteRole(ctx context.Context, actorID, roleID string) error {
	const op = "auth.DeleteRole"

	if err := s.requirePermission(ctx, actorID, ResourceRole, ActionDelete); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.roles.Delete(ctx, roleID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RoleByID loads one role. Requires the role/read grant.
func (s *Service) RoleByID(ctx context.Context, actorID, roleID string) (*Role, error) {
	const op = "auth.RoleByID"

	if err := s.requirePermission(ctx, actorID, ResourceRole, ActionRead); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	role, err := s.roles.ByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return role, nil
}

// ListRoles pages through roles with optional filters. Requires role/read.
func (s *Service) ListRoles(ctx context.Context, actorID string, q RoleQuery) ([]*Role, int, error) {
	const op = "auth.ListRoles"

	if err := s.requirePermission(ctx, actorID, ResourceRole, ActionRead); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 10
	}
	roles, total, err := s.roles.List(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return roles, total, nil
}

// AssignRole sets (or clears, with empty roleID) a principal's role.
// Requires the user/update grant; role changes apply to holders instantly
// because roles are referenced, never embedded.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID string) error {
	const op = "auth.AssignRole"

	if err := s.requirePermission(ctx, actorID, ResourceUser, ActionUpdate); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if roleID != "" {
		if _, err := s.roles.ByID(ctx, roleID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := s.users.SetRole(ctx, userID, roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) requirePermission(ctx context.Context, actorID, resource, action string) error {
	ok, err := s.HasPermission(ctx, actorID, resource, action)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}
