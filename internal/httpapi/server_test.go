package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"credpool-go/internal/credential"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestAdmin(t *testing.T) *credential.Admin {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := credential.NewStore(filepath.Join(t.TempDir(), "c.json"), credential.DefaultFailurePolicyConfig)
	require.NoError(t, store.Load())
	sel := credential.NewSelector(store, credential.PolicyPriorityFirst, 0)
	oidc := credential.NewOIDCClient(credential.DefaultOIDCConfig)
	refresh := credential.NewRefreshCoordinator(store, oidc, time.Minute)
	return credential.NewAdmin(store, sel, refresh)
}

func TestServerListCredentialsRequiresAdminKey(t *testing.T) {
	admin := newTestAdmin(t)
	srv := NewServer(admin, "secret", ":0")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/credentials", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/admin/credentials", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestServerAllowsAllRequestsWhenAdminKeyUnset(t *testing.T) {
	admin := newTestAdmin(t)
	srv := NewServer(admin, "", ":0")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/credentials", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServerGetAndSetMode(t *testing.T) {
	admin := newTestAdmin(t)
	srv := NewServer(admin, "", ":0")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/mode", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := json.Marshal(map[string]string{"mode": string(credential.PolicyRoundRobin)})
	req2 := httptest.NewRequest(http.MethodPut, "/api/admin/mode", bytes.NewReader(body))
	req2.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var resp struct {
		Mode string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	require.Equal(t, string(credential.PolicyRoundRobin), resp.Mode)
}

func TestServerDeleteUnknownCredentialReturnsNotFound(t *testing.T) {
	admin := newTestAdmin(t)
	srv := NewServer(admin, "", ":0")

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/credentials/999", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerSetPriorityInvalidIDReturnsBadRequest(t *testing.T) {
	admin := newTestAdmin(t)
	srv := NewServer(admin, "", ":0")

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/credentials/not-a-number/priority", bytes.NewReader([]byte(`{"priority":1}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
