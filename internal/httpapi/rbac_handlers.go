package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"himmel.app/internal/audit"
	"himmel.app/internal/auth"
)

type createRoleRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Permissions []auth.Permission `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Permissions *[]auth.Permission `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"roleId"`
}

type roleResponse struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	Permissions      []auth.Permission `json:"permissions"`
	SensitivityLevel string            `json:"sensitivityLevel"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

func toRoleResponse(role *auth.Role) roleResponse {
	perms := role.Permissions
	if perms == nil {
		perms = []auth.Permission{}
	}
	return roleResponse{
		ID:               role.ID,
		Name:             role.Name,
		Description:      role.Description,
		Permissions:      perms,
		SensitivityLevel: role.SensitivityLevel,
		CreatedAt:        role.CreatedAt,
		UpdatedAt:        role.UpdatedAt,
	}
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listRoles(w, r)
	case http.MethodPost:
		a.createRole(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	role, err := a.auth.CreateRole(r.Context(), actorID, req.Name, req.Description, req.Permissions)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role_created", map[string]any{
		"role_id":     role.ID,
		"name":        role.Name,
		"sensitivity": role.SensitivityLevel,
	})
	w.Header().Set("Location", "/v1/roles/"+role.ID)
	writeData(w, http.StatusCreated, "role created", toRoleResponse(role))
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	actorID, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	q := roleQueryFromRequest(r)
	roles, total, err := a.auth.ListRoles(r.Context(), actorID, q)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	items := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		items = append(items, toRoleResponse(role))
	}
	writeData(w, http.StatusOK, "ok", map[string]any{
		"roles": items,
		"total": total,
		"page":  q.Page,
		"limit": q.Limit,
	})
}

func (a *API) handleRoleByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found", "NOT_FOUND")
		return
	}
	actorID, ok := mustPrincipal(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		role, err := a.auth.RoleByID(r.Context(), actorID, id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, "ok", toRoleResponse(role))

	case http.MethodPut:
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		role, err := a.auth.UpdateRole(r.Context(), actorID, id, auth.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
			Permissions: req.Permissions,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role_updated", map[string]any{
			"role_id":     role.ID,
			"sensitivity": role.SensitivityLevel,
		})
		writeData(w, http.StatusOK, "role updated", toRoleResponse(role))

	case http.MethodDelete:
		if err := a.auth.DeleteRole(r.Context(), actorID, id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role_deleted", map[string]any{
			"role_id": id,
		})
		writeData(w, http.StatusOK, "role deleted", nil)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actorID, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	users, err := a.auth.ListUsers(r.Context(), actorID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, toUserResponse(u))
	}
	writeData(w, http.StatusOK, "ok", map[string]any{
		"users": items,
		"total": len(items),
	})
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "role" {
		writeError(w, r, http.StatusNotFound, "resource not found", "NOT_FOUND")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actorID, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if err := a.auth.AssignRole(r.Context(), actorID, parts[0], req.RoleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role_assigned", map[string]any{
		"target_user_id": parts[0],
		"role_id":        req.RoleID,
	})
	writeData(w, http.StatusOK, "role assignment updated", nil)
}

func roleQueryFromRequest(r *http.Request) auth.RoleQuery {
	values := r.URL.Query()
	q := auth.RoleQuery{
		Query:            values.Get("query"),
		Resource:         values.Get("resource"),
		Action:           values.Get("action"),
		SensitivityLevel: values.Get("sensitivityLevel"),
		SortBy:           values.Get("sortBy"),
		SortOrder:        values.Get("sortOrder"),
	}
	if v := values.Get("hasPermission"); v != "" {
		has := v == "true" || v == "1"
		q.HasPermission = &has
	}
	if v, err := strconv.Atoi(values.Get("page")); err == nil {
		q.Page = v
	}
	if v, err := strconv.Atoi(values.Get("limit")); err == nil {
		q.Limit = v
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 10
	}
	return q
}
