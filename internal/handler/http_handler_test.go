package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worksafe-io/be-permits/internal/auth"
	"github.com/worksafe-io/be-permits/internal/logger"
	"github.com/worksafe-io/be-permits/internal/service"
	"github.com/worksafe-io/be-permits/internal/testkit"
)

type testAPI struct {
	server *httptest.Server
	tokens *auth.TokenManager
}

// newTestAPI wires the handlers exactly as the server does: public auth
// routes plus the token middleware in front of everything else, backed
// by in-memory stores.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	log := &logger.Logger{Logger: zerolog.Nop()}
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	users := testkit.NewUserStore()

	permitService := service.NewPermitService(
		testkit.NewPermitStore(), users, &testkit.RecordingPublisher{}, log)
	authService := service.NewAuthService(users, tokens, log)

	api := mux.NewRouter().PathPrefix("/api/v1").Subrouter()
	NewAuthHandler(authService, log).RegisterPublic(api)

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Middleware(tokens))
	NewPermitHandler(permitService, log).Register(protected)
	NewAuthHandler(authService, log).RegisterProtected(protected)

	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return &testAPI{server: server, tokens: tokens}
}

// tokenFor issues a token for a synthetic user at the given level.
func (a *testAPI) tokenFor(t *testing.T, userID string, role string, level int) string {
	t.Helper()
	token, err := a.tokens.CreateToken(auth.Identity{
		UserID: userID,
		Email:  userID + "@site.com",
		Role:   role,
		Level:  level,
	})
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+"/api/v1"+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func permitBody(number string) map[string]any {
	return map[string]any{
		"permitNumber": number,
		"poNumber":     "PO-7741",
		"employeeName": "Ravi Kumar",
		"permitType":   "Height",
		"location":     "Tower B scaffold",
		"issueDate":    "2026-09-01",
		"expiryDate":   "2026-09-15",
	}
}

func createPermit(t *testing.T, api *testAPI, token, number string) string {
	t.Helper()
	resp, body := api.do(t, http.MethodPost, "/permits", token, permitBody(number))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	permit := body["permit"].(map[string]any)
	return permit["id"].(string)
}

func TestPermits_RequireToken(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/permits", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, auth.ErrNoToken.Message, body["message"])

	resp, body = api.do(t, http.MethodGet, "/permits", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.ErrInvalidToken.Message, body["message"])
}

func TestCreatePermit_Endpoint(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor(t, "u-creator", auth.RoleClient, 4)

	resp, body := api.do(t, http.MethodPost, "/permits", token, permitBody("PTW-2026-001"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Permit created successfully", body["message"])

	permit := body["permit"].(map[string]any)
	assert.Equal(t, "Pending", permit["status"])
	assert.Equal(t, float64(4), permit["currentLevel"])

	// Same number again conflicts.
	resp, _ = api.do(t, http.MethodPost, "/permits", token, permitBody("PTW-2026-001"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Level-3 users cannot create.
	resp, _ = api.do(t, http.MethodPost, "/permits",
		api.tokenFor(t, "u-level3", auth.RoleClient, 3), permitBody("PTW-2026-002"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Missing required fields are a 400.
	resp, _ = api.do(t, http.MethodPost, "/permits", token, permitBody(""))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApprovePermit_Endpoint(t *testing.T) {
	api := newTestAPI(t)
	creator := api.tokenFor(t, "u-creator", auth.RoleClient, 4)
	id := createPermit(t, api, creator, "PTW-2026-001")

	resp, body := api.do(t, http.MethodPost, "/permits/"+id+"/approve", creator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Permit approved and forwarded", body["message"])
	assert.Equal(t, float64(3), body["currentLevel"])
	assert.Equal(t, "Pending", body["status"])

	// Approve is also reachable via GET for link-style clients.
	level3 := api.tokenFor(t, "u-level3", auth.RoleClient, 3)
	resp, body = api.do(t, http.MethodGet, "/permits/"+id+"/approve", level3, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["currentLevel"])

	// Wrong level is a 403, unknown id a 404.
	resp, _ = api.do(t, http.MethodPost, "/permits/"+id+"/approve", creator, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = api.do(t, http.MethodPost, "/permits/permit-404/approve", creator, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReturnPermit_Endpoint(t *testing.T) {
	api := newTestAPI(t)
	creator := api.tokenFor(t, "u-creator", auth.RoleClient, 4)
	id := createPermit(t, api, creator, "PTW-2026-001")
	api.do(t, http.MethodPost, "/permits/"+id+"/approve", creator, nil)

	level3 := api.tokenFor(t, "u-level3", auth.RoleClient, 3)
	resp, body := api.do(t, http.MethodPut, "/permits/"+id+"/return", level3,
		map[string]any{"requiredChanges": "fix the PO number"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Permit returned for corrections", body["message"])

	permit := body["permit"].(map[string]any)
	assert.Equal(t, "Returned", permit["status"])
	assert.Equal(t, float64(4), permit["currentLevel"])
	returned := permit["returnedInfo"].(map[string]any)
	assert.Equal(t, "fix the PO number", returned["requiredChanges"])

	// Missing requiredChanges is a 400.
	resp, _ = api.do(t, http.MethodPut, "/permits/"+id+"/return", creator,
		map[string]any{"requiredChanges": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEditPermit_Endpoint(t *testing.T) {
	api := newTestAPI(t)
	creator := api.tokenFor(t, "u-creator", auth.RoleClient, 4)
	id := createPermit(t, api, creator, "PTW-2026-001")
	api.do(t, http.MethodPost, "/permits/"+id+"/approve", creator, nil)

	level2 := api.tokenFor(t, "u-level2", auth.RoleClient, 2)
	resp, body := api.do(t, http.MethodPut, "/permits/"+id, level2,
		map[string]any{"poNumber": "PO-9900"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Permit details updated successfully", body["message"])

	permit := body["permit"].(map[string]any)
	assert.Equal(t, "PO-9900", permit["poNumber"])
	history := permit["approvalHistory"].([]any)
	require.Len(t, history, 2)

	// Editors one level up only; the current level gets a 403.
	level3 := api.tokenFor(t, "u-level3", auth.RoleClient, 3)
	resp, _ = api.do(t, http.MethodPut, "/permits/"+id, level3,
		map[string]any{"poNumber": "PO-0001"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeletePermit_Endpoint(t *testing.T) {
	api := newTestAPI(t)
	creator := api.tokenFor(t, "u-creator", auth.RoleClient, 4)
	id := createPermit(t, api, creator, "PTW-2026-001")

	// Unrelated users cannot delete.
	stranger := api.tokenFor(t, "u-stranger", auth.RoleClient, 2)
	resp, _ := api.do(t, http.MethodDelete, "/permits/"+id, stranger, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := api.do(t, http.MethodDelete, "/permits/"+id, creator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Permit deleted successfully", body["message"])

	resp, _ = api.do(t, http.MethodGet, "/permits/"+id, creator, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPendingAndSearch_Endpoints(t *testing.T) {
	api := newTestAPI(t)
	creator := api.tokenFor(t, "u-creator", auth.RoleClient, 4)
	first := createPermit(t, api, creator, "PTW-2026-001")
	createPermit(t, api, creator, "PTW-2026-002")
	api.do(t, http.MethodPost, "/permits/"+first+"/approve", creator, nil)

	level3 := api.tokenFor(t, "u-level3", auth.RoleClient, 3)
	resp, body := api.do(t, http.MethodGet, "/permits/pending", level3, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	admin := api.tokenFor(t, "u-admin", auth.RoleAdmin, 1)
	resp, body = api.do(t, http.MethodGet, "/permits/search?permitNumber=2026-002", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, _ = api.do(t, http.MethodGet, "/permits/search?currentLevel=abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/permits/search?status=Lost", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuth_Endpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"name":     "Ravi Kumar",
		"email":    "ravi@site.com",
		"password": "s3cret!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "User registered", body["message"])
	assert.Equal(t, float64(4), body["level"])
	token, ok := body["token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	resp, body = api.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "ravi@site.com",
		"password": "s3cret!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Login successful", body["message"])

	resp, body = api.do(t, http.MethodGet, "/auth/verify", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ravi@site.com", body["email"])

	resp, _ = api.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "ravi@site.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestVisibility_EndToEnd(t *testing.T) {
	api := newTestAPI(t)
	creator := api.tokenFor(t, "u-creator", auth.RoleClient, 4)
	id := createPermit(t, api, creator, "PTW-2026-001")

	// An uninvolved level-2 user cannot read the record directly.
	level2 := api.tokenFor(t, "u-level2", auth.RoleClient, 2)
	resp, _ := api.do(t, http.MethodGet, "/permits/"+id, level2, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := api.do(t, http.MethodGet, fmt.Sprintf("/permits/%s", id), creator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	permit := body["permit"].(map[string]any)
	assert.Equal(t, "PTW-2026-001", permit["permitNumber"])
}
