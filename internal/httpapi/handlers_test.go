package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"himmel.app/internal/auth"
	"himmel.app/internal/ids"
	"himmel.app/internal/store/memstore"
)

type testBackend struct {
	api   *API
	users *memstore.UserStore
	roles *memstore.RoleStore
	svc   *auth.Service
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	backend *testBackend
}

// stubVerifier accepts one hard-coded provider token.
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, idToken string) (auth.GoogleIdentity, error) {
	if idToken != "valid-google-token" {
		return auth.GoogleIdentity{}, auth.ErrInvalidToken
	}
	return auth.GoogleIdentity{
		Subject: "google-sub-42",
		Email:   "federated@example.com",
		Name:    "Federated Reader",
	}, nil
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	users := memstore.NewUserStore()
	roles := memstore.NewRoleStore()
	svc, err := auth.NewService(users, roles, auth.Config{
		JWTSecret:   []byte("test-secret"),
		Issuer:      "himmel-test",
		BcryptCost:  4,
		FrontendURL: "https://himmel.test",
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	api := New(svc, stubVerifier{}, ReadyProbe{}, Config{
		Version:      "test",
		RateBurst:    100,
		RatePerSec:   100,
		SignInBurst:  100,
		SignInPerMin: 6000,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	client := srv.Client()
	// Cookie-based sessions need a jar.
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client.Jar = jar

	return &apiClient{
		baseURL: srv.URL,
		client:  client,
		t:       t,
		backend: &testBackend{api: api, users: users, roles: roles, svc: svc},
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodGet, path, nil, headers)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode body %q: %v", raw, err)
	}
	return out
}

// bearerFor mints a session header for an existing principal.
func (c *apiClient) bearerFor(userID string) map[string]string {
	c.t.Helper()
	token, _, err := c.backend.svc.IssueAccessToken(userID)
	if err != nil {
		c.t.Fatalf("IssueAccessToken: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// seedAdmin creates a principal granted everything on the given resources.
func (c *apiClient) seedAdmin(t *testing.T, resources ...string) *auth.User {
	t.Helper()
	ctx := context.Background()
	perms := make([]auth.Permission, 0, len(resources))
	for _, res := range resources {
		perms = append(perms, auth.Permission{
			Resource: res,
			Actions:  []string{auth.ActionCreate, auth.ActionRead, auth.ActionUpdate, auth.ActionDelete},
		})
	}
	role := &auth.Role{
		ID:               ids.New(),
		Name:             "admin-" + ids.New(),
		Permissions:      perms,
		SensitivityLevel: auth.CalculateSensitivity(perms),
	}
	if err := c.backend.roles.Create(ctx, role); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	admin, err := c.backend.svc.SignUp(ctx, "admin_"+role.ID[:8], "admin-"+role.ID[:8]+"@example.com", "Adm1n!pass")
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := c.backend.users.SetRole(ctx, admin.ID, role.ID); err != nil {
		t.Fatalf("assign seed role: %v", err)
	}
	return admin
}

func (c *apiClient) seedUser(t *testing.T, username, email string) *auth.User {
	t.Helper()
	user, err := c.backend.svc.SignUp(context.Background(), username, email, "Sup3r!secret")
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return user
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" || body["service"] != "himmel-api" {
		t.Fatalf("unexpected healthz body: %v", body)
	}

	resp = c.get("/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/info", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info status %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["version"] != "test" {
		t.Fatalf("unexpected info body: %v", body)
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/v1/nope", c.bearerFor("whatever"))
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["code"] == "" || body["error"] == "" {
		t.Fatalf("error envelope incomplete: %v", body)
	}
	if body["request_id"] == "" {
		t.Fatalf("request id missing from envelope: %v", body)
	}
}
