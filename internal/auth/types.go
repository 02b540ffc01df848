package auth

import "time"

// Resources that permissions can be granted on.
const (
	ResourceUser         = "user"
	ResourceRole         = "role"
	ResourcePermission   = "permission"
	ResourceFiction      = "fiction"
	ResourceStatistic    = "statistic"
	ResourceTag          = "tag"
	ResourceComment      = "comment"
	ResourceRating       = "rating"
	ResourceChapter      = "chapter"
	ResourceForum        = "forum"
	ResourcePost         = "post"
	ResourceNotification = "notification"
)

// Actions a permission may allow on a resource.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Sensitivity tiers derived from a role's grant set.
const (
	SensitivityLow      = "low"
	SensitivityMedium   = "medium"
	SensitivityHigh     = "high"
	SensitivityCritical = "critical"
)

// User represents a principal. Username and Email are each unique when
// present; at least one of them is set. PasswordHash is empty for
// federation-only accounts. RoleID empty means no elevated grants.
type User struct {
	ID               string
	Username         string
	Email            string
	FullName         string
	PasswordHash     string
	FederationID     string
	RoleID           string
	IsPremium        bool
	PremiumExpiresAt *time.Time
	Bio              string
	FavoriteTags     []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Permission grants a set of actions on a single resource. A role's
// permission list holds each resource at most once.
type Permission struct {
	Resource string   `json:"resource"`
	Actions  []string `json:"actions"`
}

// Role bundles permissions under a unique name. SensitivityLevel is derived
// from the permission set and recomputed on every permission change.
type Role struct {
	ID               string
	Name             string
	Description      string
	Permissions      []Permission
	SensitivityLevel string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TokenPair carries a freshly issued session. RefreshToken is empty for
// access-only sessions (rememberMe disabled).
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RoleQuery filters and pages role listings.
type RoleQuery struct {
	Query            string
	Resource         string
	Action           string
	SensitivityLevel string
	HasPermission    *bool
	SortBy           string
	SortOrder        string
	Page             int
	Limit            int
}

func validResource(r string) bool {
	switch r {
	case ResourceUser, ResourceRole, ResourcePermission, ResourceFiction,
		ResourceStatistic, ResourceTag, ResourceComment, ResourceRating,
		ResourceChapter, ResourceForum, ResourcePost, ResourceNotification:
		return true
	}
	return false
}

func validAction(a string) bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return true
	}
	return false
}
