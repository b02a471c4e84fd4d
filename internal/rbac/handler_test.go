package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
)

func newTestRouter(t *testing.T) (http.Handler, *Matrix, *memoryStore) {
	t.Helper()
	m, store := newTestMatrix(t)
	_, err := m.SeedDefaults(testCtx, adminActor)
	require.NoError(t, err)
	e := NewEvaluator(m, nil)
	h := NewHandler(nil, m, e)

	r := chi.NewRouter()
	r.Use(Authenticate(nil))
	r.Route("/rbac", h.MountRoutes)
	return r, m, store
}

func do(t *testing.T, h http.Handler, method, path, body, actor, roles string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != "" {
		req.Header.Set(HeaderActorID, actor)
	}
	req.Header.Set(HeaderActorRoles, roles)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuthenticateRequiresActor(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/rbac/me/capabilities", "", "", "employee")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodGet, "/rbac/me/capabilities", "", "u-1", "employee,pirate")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMyCapabilities(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/rbac/me/capabilities", "", "u-1", "employee")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Capabilities []catalog.Capability `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Contains(t, body.Capabilities, catalog.Cap(catalog.ModuleNeed, "submit"))
	require.NotContains(t, body.Capabilities, catalog.Cap(catalog.ModuleNeed, "accept"))
}

func TestAuthorizeEndpoint(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/rbac/authorize", `{"module":"purchase_request","action":"mark-paid"}`, "u-2", "accountant")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"allowed":true}`, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/rbac/authorize", `{"module":"purchase_request","action":"mark-paid"}`, "u-3", "employee")
	require.JSONEq(t, `{"allowed":false}`, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/rbac/authorize", `{"module":"purchase_request"}`, "u-3", "employee")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMatrixAdministrationIsGated(t *testing.T) {
	h, m, store := newTestRouter(t)
	entries := len(store.auditEntries())

	body := `{"role":"employee","module":"need","action":"accept"}`
	rr := do(t, h, http.MethodPost, "/rbac/grants", body, "u-1", "department_lead")
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.NotContains(t, rr.Body.String(), "role_permissions")

	rr = do(t, h, http.MethodPost, "/rbac/grants", body, "root", "admin")
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, m.Has(RoleEmployee, needAccept))
	require.Len(t, store.auditEntries(), entries+1)
	require.Equal(t, "root", store.auditEntries()[entries].ActorID)

	rr = do(t, h, http.MethodDelete, "/rbac/grants", body, "root", "admin")
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, m.Has(RoleEmployee, needAccept))

	rr = do(t, h, http.MethodPost, "/rbac/grants", `{"role":"admin","module":"need","action":"accept"}`, "root", "admin")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMatrixExportImportOverHTTP(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/rbac/matrix", "", "dg", "director_general")
	require.Equal(t, http.StatusOK, rr.Code)
	exported := rr.Body.String()

	rr = do(t, h, http.MethodPut, "/rbac/matrix", exported, "root", "admin")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, exported, rr.Body.String())

	rr = do(t, h, http.MethodPut, "/rbac/matrix", `{"version":1,"roles":[{"role":"employee","capabilities":[{"module":"stock","action":"adjust"}]}]}`, "root", "admin")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodGet, "/rbac/matrix", "", "u-1", "employee")
	require.Equal(t, http.StatusForbidden, rr.Code)
}
