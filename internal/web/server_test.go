package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/crm/internal/auth"
	"github.com/JonMunkholm/crm/internal/config"
	"github.com/JonMunkholm/crm/internal/core"
	_ "github.com/JonMunkholm/crm/internal/core/kinds"
	"github.com/JonMunkholm/crm/internal/store/memory"
)

type testServer struct {
	t      *testing.T
	srv    *Server
	store  *memory.Store
	tokens map[string]string
	ids    map[string]string
}

func newTestServer(t *testing.T, env map[string]string) *testServer {
	t.Helper()

	vars := map[string]string{
		"APP_ENV":      "test",
		"STORE_DRIVER": "memory",
		"BCRYPT_COST":  "4",
	}
	for k, v := range env {
		vars[k] = v
	}
	cfg, err := config.LoadFrom(func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	})
	require.NoError(t, err)

	store := memory.New()
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.App.Name)

	svc, err := core.NewService(core.Deps{
		Store:  store,
		Tokens: issuer,
		Hasher: auth.NewHasher(cfg.Auth.BcryptCost),
	}, core.OptionsFromConfig(cfg))
	require.NoError(t, err)

	ts := &testServer{
		t:      t,
		srv:    NewServer(svc, issuer, cfg),
		store:  store,
		tokens: map[string]string{},
		ids:    map[string]string{},
	}

	ctx := context.Background()
	for name, role := range map[string]core.Role{"admin": core.RoleAdmin, "alice": core.RoleEmployee, "bob": core.RoleEmployee} {
		email := name + "@crm.com"
		_, err := svc.EnsureUser(ctx, email, "password1", name, role)
		require.NoError(t, err)
		u, err := store.GetUserByEmail(ctx, email)
		require.NoError(t, err)
		tok, err := issuer.Issue(u)
		require.NoError(t, err)
		ts.tokens[name] = tok
		ts.ids[name] = u.ID
	}
	return ts
}

func (ts *testServer) do(method, path, as string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()

	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(ts.t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.10:40000"
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+ts.tokens[as])
	}
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[map[string]string](t, rec)
	assert.Equal(t, "CRM API", root["name"])
	assert.Equal(t, "running", root["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = ts.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/deals", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "AUTH001", body.Code)
	assert.Equal(t, "not authenticated", body.Error)
}

func TestRegisterLoginMe(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "carol@crm.com", "password": "secret1", "name": "Carol", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[map[string]any](t, rec)
	assert.Equal(t, "bearer", reg["token_type"])
	user := reg["user"].(map[string]any)
	assert.Equal(t, "employee", user["role"])
	assert.NotContains(t, user, "password_hash")

	rec = ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "carol@crm.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "not-an-email", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL001", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "carol@crm.com", "password": "wrong1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "incorrect email or password", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "carol@crm.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[map[string]any](t, rec)
	ts.tokens["carol"] = login["access_token"].(string)

	rec = ts.do(http.MethodGet, "/api/auth/me", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	assert.Equal(t, "carol@crm.com", me["email"])
	assert.NotNil(t, me["last_login"])

	rec = ts.do(http.MethodPost, "/api/auth/logout", "carol", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t, map[string]string{"LOGIN_RATE_LIMIT": "2"})

	creds := map[string]string{"email": "alice@crm.com", "password": "password1"}
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/auth/login", "", creds).Code)
	}
	rec := ts.do(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)
}

func TestContactsCRUD(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/contacts", "alice", map[string]any{"contact": "Jane Doe"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	id := created["id"].(string)
	assert.True(t, strings.HasPrefix(id, "c_"))
	assert.Equal(t, "Jane Doe", created["contact"])
	assert.Equal(t, ts.ids["alice"], created["owner_id"])
	assert.Nil(t, created["updated_at"])
	assert.NotContains(t, created, "data")

	rec = ts.do(http.MethodGet, "/api/contacts/"+id, "bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPut, "/api/contacts/"+id, "bob", map[string]any{"contact": "Hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "PERM001", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(http.MethodPut, "/api/contacts/"+id, "alice", map[string]any{"contact": "Jane Smith"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[map[string]any](t, rec)
	assert.Equal(t, "Jane Smith", updated["contact"])
	assert.NotNil(t, updated["updated_at"])

	rec = ts.do(http.MethodGet, "/api/contacts?search=smith", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodDelete, "/api/contacts/"+id, "bob", nil).Code)
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/contacts/"+id, "alice", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/contacts/"+id, "alice", nil).Code)
}

func TestDealsUpdateMerges(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/deals", "alice", map[string]any{
		"data": map[string]any{"Company": "Acme", "Stage": "lead"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = ts.do(http.MethodPut, "/api/deals/"+id, "admin", map[string]any{
		"data": map[string]any{"Stage": nil, "Size": 10},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode[map[string]any](t, rec)["data"].(map[string]any)
	assert.Equal(t, map[string]any{"Company": "Acme", "Size": float64(10)}, data)

	rec = ts.do(http.MethodPost, "/api/deals", "alice", map[string]any{"owner_id": "u_ghost", "data": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/deals", "alice", map[string]any{"data": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateWithoutData(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/pipeline", "alice", map[string]any{
		"data": map[string]any{"Company": "Acme"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	pipelineID := decode[map[string]any](t, rec)["id"].(string)

	rec = ts.do(http.MethodPut, "/api/pipeline/"+pipelineID, "bob", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[map[string]any](t, rec)
	assert.Equal(t, map[string]any{"Company": "Acme"}, updated["data"])
	assert.NotNil(t, updated["updated_at"])

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPut, "/api/pipeline/p_missing", "alice", map[string]any{}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPut, "/api/deals/d_missing", "alice", map[string]any{}).Code)

	rec = ts.do(http.MethodPost, "/api/deals", "alice", map[string]any{
		"data": map[string]any{"Company": "Acme"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	dealID := decode[map[string]any](t, rec)["id"].(string)

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPut, "/api/deals/"+dealID, "bob", map[string]any{}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, "/api/deals/"+dealID, "alice", map[string]any{"data": "nope"}).Code)
}

func TestUnknownKind(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/widgets", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListValidatesPagination(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/deals?skip=-1", "alice", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/deals?limit=abc", "alice", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/deals?skip=0&limit=10", "alice", nil).Code)
}

func TestImportFlows(t *testing.T) {
	ts := newTestServer(t, map[string]string{"IMPORT_MAX_ROWS": "5"})

	rec := ts.do(http.MethodPost, "/api/pipeline/import", "alice", map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "IMP001", body.Code)
	assert.Equal(t, "empty file", body.Error)

	rows := make([]map[string]any, 6)
	for i := range rows {
		rows[i] = map[string]any{"a": "b"}
	}
	rec = ts.do(http.MethodPost, "/api/deals/import", "alice", map[string]any{"deals": rows})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "IMP002", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(http.MethodPost, "/api/pipeline/import", "alice", map[string]any{
		"items": []map[string]any{{"Company": "Acme"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body = decode[ErrorResponse](t, rec)
	assert.Equal(t, "IMP003", body.Code)
	assert.Equal(t, "incorrect file for Pipeline", body.Error)

	rec = ts.do(http.MethodPost, "/api/contacts/import", "alice", map[string]any{
		"owner_id": ts.ids["bob"],
		"contacts": []map[string]any{{"Investor": "Fund"}, {"contact": " "}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	imported := decode[[]map[string]any](t, rec)
	require.Len(t, imported, 1)
	assert.Equal(t, "Fund", imported[0]["contact"])
	assert.Equal(t, ts.ids["bob"], imported[0]["owner_id"])

	rec = ts.do(http.MethodPost, "/api/contacts/import", "alice", `{"contacts": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportRateLimit(t *testing.T) {
	ts := newTestServer(t, nil)
	body := map[string]any{"deals": []map[string]any{{"Company": "Acme", "Size": 12345678901}}}

	for i := 0; i < 3; i++ {
		rec := ts.do(http.MethodPost, "/api/deals/import", "alice", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := ts.do(http.MethodPost, "/api/deals/import", "alice", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "too many imports, slow down", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(http.MethodGet, "/api/deals", "alice", nil)
	deals := decode[[]map[string]any](t, rec)
	require.Len(t, deals, 3)
	assert.Equal(t, float64(12345678901), deals[0]["data"].(map[string]any)["Size"])
}

func TestClearEnvironmentGate(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodPost, "/api/advisors", "alice", map[string]any{"data": map[string]any{"Advisor": "X"}})
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/advisors/clear", "alice", nil).Code)
	assert.Empty(t, decode[[]map[string]any](t, ts.do(http.MethodGet, "/api/advisors", "alice", nil)))

	staging := newTestServer(t, map[string]string{"APP_ENV": "staging"})
	rec := staging.do(http.MethodDelete, "/api/advisors/clear", "admin", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "disabled in production")
}

func TestExportCSVAndXLSX(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodPost, "/api/investors", "alice", map[string]any{"data": map[string]any{"Investor": "Fund, One"}})

	rec := ts.do(http.MethodGet, "/api/investors/export?format=csv", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "Investor", rows[0][2])
	assert.Equal(t, "Fund, One", rows[1][2])

	rec = ts.do(http.MethodGet, "/api/investors/export?format=xlsx", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	cell, err := f.GetCellValue("Investors", "C2")
	require.NoError(t, err)
	assert.Equal(t, "Fund, One", cell)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/investors/export?format=pdf", "alice", nil).Code)

	var exports int
	for _, e := range ts.store.AuditEntries() {
		if e.Action == core.ActionExport {
			exports++
		}
	}
	assert.Equal(t, 2, exports)
}

func TestListExportFlagAudits(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/companies?export=true", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := ts.store.AuditEntries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, core.ActionExport, last.Action)
	assert.Equal(t, "192.0.2.10", last.IP)
}

func TestUsersAdmin(t *testing.T) {
	ts := newTestServer(t, nil)

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/users", "alice", nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/audit", "alice", nil).Code)

	rec := ts.do(http.MethodGet, "/api/users", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 3)

	bob := ts.ids["bob"]
	rec = ts.do(http.MethodPut, "/api/users/"+bob, "admin", map[string]any{"role": "admin", "name": "Robert"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "admin", decode[map[string]any](t, rec)["role"])

	rec = ts.do(http.MethodPut, "/api/users/"+bob, "admin", map[string]any{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPut, "/api/users/"+bob+"/password", "admin", map[string]any{"password": "brand-new"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "bob@crm.com", "password": "brand-new"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/users/"+ts.ids["admin"], "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cannot delete yourself", decode[ErrorResponse](t, rec).Error)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/users/"+bob, "admin", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/users/"+bob, "admin", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/auth/me", "bob", nil).Code)

	rec = ts.do(http.MethodGet, "/api/audit?entity=users&action=change_password", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]map[string]any](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, bob, entries[0]["entity_id"])
}

func TestKindsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/kinds", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	kinds := decode[[]kindView](t, rec)
	require.Len(t, kinds, 6)
	assert.Equal(t, "advisors", kinds[0].Key)
}

func TestBodyLimit(t *testing.T) {
	ts := newTestServer(t, map[string]string{"SERVER_MAX_BODY_BYTES": "64"})
	big := map[string]any{"deals": []map[string]any{{"Company": strings.Repeat("x", 200)}}}
	rec := ts.do(http.MethodPost, "/api/deals/import", "alice", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestTokenExpiry(t *testing.T) {
	ts := newTestServer(t, map[string]string{"JWT_TTL": "1ns"})
	time.Sleep(10 * time.Millisecond)
	rec := ts.do(http.MethodGet, "/api/deals", "alice", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", decode[ErrorResponse](t, rec).Error)
}
