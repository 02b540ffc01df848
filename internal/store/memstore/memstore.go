// Package memstore provides in-memory implementations of the auth store
// interfaces. It backs tests and local development; persistence lives in
// store/pg.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"himmel.app/internal/auth"
)

type userRecord struct {
	user auth.User

	refreshTokenHash string
	refreshExpiresAt time.Time

	resetTokenHash string
	resetExpiresAt time.Time
}

// UserStore is a mutex-guarded map keyed by user id.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*userRecord
}

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*userRecord)}
}

func cloneUser(u auth.User) *auth.User {
	out := u
	if u.FavoriteTags != nil {
		out.FavoriteTags = append([]string(nil), u.FavoriteTags...)
	}
	if u.PremiumExpiresAt != nil {
		at := *u.PremiumExpiresAt
		out.PremiumExpiresAt = &at
	}
	return &out
}

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return auth.ErrAlreadyExists
	}
	for _, rec := range s.users {
		if u.Email != "" && rec.user.Email == u.Email {
			return auth.ErrAlreadyExists
		}
		if u.Username != "" && rec.user.Username == u.Username {
			return auth.ErrAlreadyExists
		}
	}
	s.users[u.ID] = &userRecord{user: *cloneUser(*u)}
	return nil
}

func (s *UserStore) ByID(ctx context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(rec.user), nil
}

func (s *UserStore) ByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findBy(func(u *auth.User) bool { return u.Email != "" && u.Email == email })
}

func (s *UserStore) ByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.findBy(func(u *auth.User) bool { return u.Username != "" && u.Username == username })
}

func (s *UserStore) ByFederationID(ctx context.Context, federationID string) (*auth.User, error) {
	return s.findBy(func(u *auth.User) bool { return u.FederationID != "" && u.FederationID == federationID })
}

func (s *UserStore) findBy(match func(*auth.User) bool) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if match(&rec.user) {
			return cloneUser(rec.user), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *UserStore) List(ctx context.Context) ([]*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*auth.User, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, cloneUser(rec.user))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.mutate(id, func(rec *userRecord) {
		rec.user.PasswordHash = passwordHash
		rec.user.UpdatedAt = time.Now().UTC()
	})
}

func (s *UserStore) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return s.mutate(id, func(rec *userRecord) {
		rec.resetTokenHash = tokenHash
		rec.resetExpiresAt = expiresAt
	})
}

func (s *UserStore) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.users {
		if rec.resetTokenHash == "" || rec.resetTokenHash != tokenHash {
			continue
		}
		if now.After(rec.resetExpiresAt) {
			return "", auth.ErrNotFound
		}
		rec.user.PasswordHash = newPasswordHash
		rec.user.UpdatedAt = now
		rec.resetTokenHash = ""
		rec.resetExpiresAt = time.Time{}
		return id, nil
	}
	return "", auth.ErrNotFound
}

func (s *UserStore) SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return s.mutate(id, func(rec *userRecord) {
		rec.refreshTokenHash = tokenHash
		rec.refreshExpiresAt = expiresAt
	})
}

func (s *UserStore) RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	if rec.refreshTokenHash == "" || rec.refreshTokenHash != oldHash {
		return auth.ErrNotFound
	}
	rec.refreshTokenHash = newHash
	rec.refreshExpiresAt = expiresAt
	return nil
}

func (s *UserStore) ClearRefreshToken(ctx context.Context, id string) error {
	return s.mutate(id, func(rec *userRecord) {
		rec.refreshTokenHash = ""
		rec.refreshExpiresAt = time.Time{}
	})
}

func (s *UserStore) LinkFederation(ctx context.Context, id, federationID string) error {
	return s.mutate(id, func(rec *userRecord) {
		rec.user.FederationID = federationID
		rec.user.UpdatedAt = time.Now().UTC()
	})
}

func (s *UserStore) SetRole(ctx context.Context, id, roleID string) error {
	return s.mutate(id, func(rec *userRecord) {
		rec.user.RoleID = roleID
		rec.user.UpdatedAt = time.Now().UTC()
	})
}

func (s *UserStore) SetPremium(ctx context.Context, id string, premium bool, expiresAt *time.Time) error {
	return s.mutate(id, func(rec *userRecord) {
		rec.user.IsPremium = premium
		rec.user.PremiumExpiresAt = expiresAt
		rec.user.UpdatedAt = time.Now().UTC()
	})
}

func (s *UserStore) mutate(id string, fn func(*userRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(rec)
	return nil
}

// RoleStore is a mutex-guarded map keyed by role id.
type RoleStore struct {
	mu    sync.RWMutex
	roles map[string]*auth.Role
}

// NewRoleStore returns an empty store.
func NewRoleStore() *RoleStore {
	return &RoleStore{roles: make(map[string]*auth.Role)}
}

func cloneRole(r auth.Role) *auth.Role {
	out := r
	out.Permissions = make([]auth.Permission, len(r.Permissions))
	for i, p := range r.Permissions {
		out.Permissions[i] = auth.Permission{
			Resource: p.Resource,
			Actions:  append([]string(nil), p.Actions...),
		}
	}
	return &out
}

func (s *RoleStore) Create(ctx context.Context, role *auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; ok {
		return auth.ErrAlreadyExists
	}
	for _, r := range s.roles {
		if strings.EqualFold(r.Name, role.Name) {
			return auth.ErrAlreadyExists
		}
	}
	s.roles[role.ID] = cloneRole(*role)
	return nil
}

func (s *RoleStore) ByID(ctx context.Context, id string) (*auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneRole(*role), nil
}

func (s *RoleStore) Update(ctx context.Context, role *auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return auth.ErrNotFound
	}
	for id, r := range s.roles {
		if id != role.ID && strings.EqualFold(r.Name, role.Name) {
			return auth.ErrAlreadyExists
		}
	}
	s.roles[role.ID] = cloneRole(*role)
	return nil
}

func (s *RoleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func (s *RoleStore) List(ctx context.Context, q auth.RoleQuery) ([]*auth.Role, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*auth.Role, 0, len(s.roles))
	for _, role := range s.roles {
		if !matchRole(role, q) {
			continue
		}
		matched = append(matched, cloneRole(*role))
	}
	sortRoles(matched, q.SortBy, q.SortOrder)
	total := len(matched)

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	start := (page - 1) * limit
	if start >= total {
		return []*auth.Role{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func matchRole(role *auth.Role, q auth.RoleQuery) bool {
	if q.Query != "" {
		needle := strings.ToLower(q.Query)
		if !strings.Contains(strings.ToLower(role.Name), needle) &&
			!strings.Contains(strings.ToLower(role.Description), needle) {
			return false
		}
	}
	if q.SensitivityLevel != "" && role.SensitivityLevel != q.SensitivityLevel {
		return false
	}
	if q.HasPermission != nil {
		if *q.HasPermission != (len(role.Permissions) > 0) {
			return false
		}
	}
	if q.Resource != "" || q.Action != "" {
		found := false
		for _, p := range role.Permissions {
			if q.Resource != "" && p.Resource != q.Resource {
				continue
			}
			if q.Action != "" && !containsString(p.Actions, q.Action) {
				continue
			}
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

func containsString(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}

func sortRoles(roles []*auth.Role, by, order string) {
	less := func(i, j int) bool { return roles[i].Name < roles[j].Name }
	switch by {
	case "created_at":
		less = func(i, j int) bool { return roles[i].CreatedAt.Before(roles[j].CreatedAt) }
	case "sensitivity_level":
		rank := map[string]int{
			auth.SensitivityLow:      0,
			auth.SensitivityMedium:   1,
			auth.SensitivityHigh:     2,
			auth.SensitivityCritical: 3,
		}
		less = func(i, j int) bool { return rank[roles[i].SensitivityLevel] < rank[roles[j].SensitivityLevel] }
	}
	if order == "desc" {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(roles, less)
}
