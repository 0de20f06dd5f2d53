package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/crm/internal/auth"
	"github.com/JonMunkholm/crm/internal/core"
	_ "github.com/JonMunkholm/crm/internal/core/kinds"
	"github.com/JonMunkholm/crm/internal/store/memory"
)

type testEnv struct {
	svc   *core.Service
	store *memory.Store
	now   time.Time
	admin core.Actor
	alice core.Actor
	bob   core.Actor
}

func (e *testEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

func newTestEnv(t *testing.T, mutate ...func(*core.Options)) *testEnv {
	t.Helper()

	opts := core.DefaultOptions()
	opts.AllowBulkClear = true
	for _, m := range mutate {
		m(&opts)
	}

	env := &testEnv{
		store: memory.New(),
		now:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }

	svc, err := core.NewService(core.Deps{
		Store:   env.store,
		Limiter: core.NewRateLimiterWithClock(clock),
		Tokens:  auth.NewIssuer("test-secret", time.Hour, "crm-test"),
		Hasher:  auth.NewHasher(4),
	}, opts)
	require.NoError(t, err)
	svc.SetClock(clock)
	env.svc = svc

	ctx := context.Background()
	mk := func(email string, role core.Role) core.Actor {
		_, err := svc.EnsureUser(ctx, email, "password1", email, role)
		require.NoError(t, err)
		u, err := env.store.GetUserByEmail(ctx, email)
		require.NoError(t, err)
		return core.ActorFromUser(u)
	}
	env.admin = mk("admin@crm.com", core.RoleAdmin)
	env.alice = mk("alice@crm.com", core.RoleEmployee)
	env.bob = mk("bob@crm.com", core.RoleEmployee)

	return env
}

func kind(t *testing.T, key string) *core.KindDefinition {
	t.Helper()
	k, ok := core.Get(key)
	require.True(t, ok, "kind %s registered", key)
	return k
}

func auditActions(s *memory.Store) []core.AuditAction {
	var out []core.AuditAction
	for _, e := range s.AuditEntries() {
		out = append(out, e.Action)
	}
	return out
}

func TestKindsRegistered(t *testing.T) {
	assert.Equal(t, 6, core.KindCount())

	contacts := kind(t, "contacts")
	assert.Equal(t, "c", contacts.Prefix)
	assert.Equal(t, "contacts", contacts.ImportField)
	assert.True(t, contacts.OwnerGated)
	assert.True(t, contacts.IsScalar())

	deals := kind(t, "deals")
	assert.Equal(t, "deals", deals.ImportField)
	assert.Equal(t, 100, deals.DefaultLimit)
	assert.Equal(t, 1000, deals.MaxLimit)

	for key, n := range map[string]int{"pipeline": 12, "companies": 6, "advisors": 7, "investors": 9} {
		k := kind(t, key)
		assert.Len(t, k.ExpectedHeaders, n, key)
		assert.False(t, k.OwnerGated, key)
		assert.Equal(t, "items", k.ImportField, key)
	}
	assert.Equal(t, "cr", kind(t, "companies").Prefix)
}

func TestCreate_DefaultsOwnerToActor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.svc.Create(ctx, env.alice, kind(t, "deals"), core.RecordInput{Payload: core.Payload{"Company": "Acme"}})
	require.NoError(t, err)
	assert.Regexp(t, `^d_[0-9a-f]{12}$`, rec.ID)
	require.NotNil(t, rec.OwnerID)
	assert.Equal(t, env.alice.ID, *rec.OwnerID)
	assert.Nil(t, rec.UpdatedAt)
	assert.Equal(t, []core.AuditAction{core.ActionCreate}, auditActions(env.store))
}

func TestCreate_ExplicitOwnerMustExist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.svc.Create(ctx, env.admin, kind(t, "contacts"), core.RecordInput{
		OwnerID: env.bob.ID,
		Payload: core.Payload{"contact": " Jane "},
	})
	require.NoError(t, err)
	assert.Equal(t, env.bob.ID, *rec.OwnerID)
	assert.Equal(t, "Jane", rec.Payload["contact"])

	_, err = env.svc.Create(ctx, env.admin, kind(t, "contacts"), core.RecordInput{
		OwnerID: "u_missing",
		Payload: core.Payload{"contact": "Jane"},
	})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, core.ReasonInvalid, verr.Reason)
}

func TestCreate_ContactRequiresName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Create(context.Background(), env.alice, kind(t, "contacts"), core.RecordInput{Payload: core.Payload{"contact": "  "}})
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdate_NonOwnerForbiddenOwnerSucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deals := kind(t, "deals")

	rec, err := env.svc.Create(ctx, env.alice, deals, core.RecordInput{Payload: core.Payload{"Company": "Acme"}})
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, env.bob, deals, rec.ID, core.Payload{"Company": "Hijacked"})
	assert.ErrorIs(t, err, core.ErrForbidden)

	stored, err := env.svc.Get(ctx, deals, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", stored.Payload["Company"])
	assert.Nil(t, stored.UpdatedAt)

	env.advance(time.Minute)
	updated, err := env.svc.Update(ctx, env.alice, deals, rec.ID, core.Payload{"Company": "Acme Ltd"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", updated.Payload["Company"])
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.Equal(env.now))

	_, err = env.svc.Update(ctx, env.admin, deals, rec.ID, core.Payload{"Stage": "won"})
	assert.NoError(t, err, "admins may edit any record")
}

func TestUpdate_MergeSemantics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deals := kind(t, "deals")

	rec, err := env.svc.Create(ctx, env.alice, deals, core.RecordInput{Payload: core.Payload{"A": "1", "B": "2"}})
	require.NoError(t, err)

	updated, err := env.svc.Update(ctx, env.alice, deals, rec.ID, core.Payload{"B": nil, "C": "3"})
	require.NoError(t, err)
	assert.Equal(t, core.Payload{"A": "1", "C": "3"}, updated.Payload)
}

func TestUpdateDelete_SheetKindsAreNotOwnerGated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	advisors := kind(t, "advisors")

	rec, err := env.svc.Create(ctx, env.alice, advisors, core.RecordInput{Payload: core.Payload{"Advisor": "X"}})
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, env.bob, advisors, rec.ID, core.Payload{"Advisor": "Y"})
	assert.NoError(t, err)
	assert.NoError(t, env.svc.Delete(ctx, env.bob, advisors, rec.ID))
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	contacts := kind(t, "contacts")

	rec, err := env.svc.Create(ctx, env.alice, contacts, core.RecordInput{Payload: core.Payload{"contact": "Jane"}})
	require.NoError(t, err)

	assert.ErrorIs(t, env.svc.Delete(ctx, env.bob, contacts, rec.ID), core.ErrForbidden)
	assert.ErrorIs(t, env.svc.Delete(ctx, env.alice, contacts, "c_missing"), core.ErrNotFound)
	require.NoError(t, env.svc.Delete(ctx, env.alice, contacts, rec.ID))

	_, err = env.svc.Get(ctx, contacts, rec.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDelete_SucceedsWhenAuditWriteFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deals := kind(t, "deals")

	rec, err := env.svc.Create(ctx, env.alice, deals, core.RecordInput{Payload: core.Payload{"Company": "Acme"}})
	require.NoError(t, err)

	env.store.FailAudit = errors.New("audit table unavailable")

	require.NoError(t, env.svc.Delete(ctx, env.alice, deals, rec.ID))

	_, err = env.svc.Get(ctx, deals, rec.ID)
	assert.ErrorIs(t, err, core.ErrNotFound, "deletion must not be rolled back")
}

func TestList_ClampsAndFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deals := kind(t, "deals")

	rows := make([]map[string]any, 0, 1200)
	for i := 0; i < 1200; i++ {
		rows = append(rows, map[string]any{"n": float64(i)})
	}
	_, err := env.svc.Import(ctx, env.alice, deals, core.ImportInput{Rows: rows})
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, env.bob, deals, core.RecordInput{Payload: core.Payload{"n": "bob"}})
	require.NoError(t, err)

	recs, err := env.svc.List(ctx, env.alice, deals, core.ListQuery{}, false)
	require.NoError(t, err)
	assert.Len(t, recs, 100, "default limit")

	recs, err = env.svc.List(ctx, env.alice, deals, core.ListQuery{Limit: 5000}, false)
	require.NoError(t, err)
	assert.Len(t, recs, 1000, "max limit")

	recs, err = env.svc.List(ctx, env.alice, deals, core.ListQuery{OwnerID: env.bob.ID}, false)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "bob", recs[0].Payload["n"])
}

func TestList_ContactsUnlimitedWithSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	contacts := kind(t, "contacts")

	rows := make([]map[string]any, 0, 1500)
	for i := 0; i < 1500; i++ {
		rows = append(rows, map[string]any{"contact": "Person"})
	}
	rows = append(rows, map[string]any{"contact": "Jane Doe"})
	_, err := env.svc.Import(ctx, env.alice, contacts, core.ImportInput{Rows: rows})
	require.NoError(t, err)

	recs, err := env.svc.List(ctx, env.alice, contacts, core.ListQuery{}, false)
	require.NoError(t, err)
	assert.Len(t, recs, 1501)

	recs, err = env.svc.List(ctx, env.alice, contacts, core.ListQuery{Search: "jane"}, false)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Jane Doe", recs[0].Payload["contact"])
}

func TestList_ExportFlagOnlyAudits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pipeline := kind(t, "pipeline")

	_, err := env.svc.Create(ctx, env.alice, pipeline, core.RecordInput{Payload: core.Payload{"Company": "A"}})
	require.NoError(t, err)

	plain, err := env.svc.List(ctx, env.alice, pipeline, core.ListQuery{}, false)
	require.NoError(t, err)
	exported, err := env.svc.List(ctx, env.alice, pipeline, core.ListQuery{}, true)
	require.NoError(t, err)
	assert.Equal(t, plain, exported)

	entries := env.store.AuditEntries()
	last := entries[len(entries)-1]
	assert.Equal(t, core.ActionExport, last.Action)
	assert.Equal(t, "pipeline", last.Entity)
	assert.Equal(t, 1, last.Meta["count"])
	assert.Equal(t, "alice@crm.com", last.Meta["email"])
}

func TestClear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	investors := kind(t, "investors")

	for i := 0; i < 3; i++ {
		_, err := env.svc.Create(ctx, env.alice, investors, core.RecordInput{Payload: core.Payload{"Investor": "X"}})
		require.NoError(t, err)
	}

	n, err := env.svc.Clear(ctx, env.alice, investors)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	recs, err := env.svc.List(ctx, env.alice, investors, core.ListQuery{}, false)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestClear_DisabledInProduction(t *testing.T) {
	env := newTestEnv(t, func(o *core.Options) { o.AllowBulkClear = false })
	ctx := context.Background()
	deals := kind(t, "deals")

	_, err := env.svc.Create(ctx, env.alice, deals, core.RecordInput{Payload: core.Payload{"a": "b"}})
	require.NoError(t, err)

	_, err = env.svc.Clear(ctx, env.admin, deals)
	assert.ErrorIs(t, err, core.ErrForbidden)

	recs, err := env.svc.List(ctx, env.alice, deals, core.ListQuery{}, false)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestExport_BuildsTableAndAudits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	contacts := kind(t, "contacts")

	_, err := env.svc.Create(ctx, env.alice, contacts, core.RecordInput{Payload: core.Payload{"contact": "Jane"}})
	require.NoError(t, err)

	table, err := env.svc.Export(ctx, env.alice, contacts, core.FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "owner_id", "contact", "created_at", "updated_at"}, table.Headers)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "Jane", table.Rows[0][2])

	entries := env.store.AuditEntries()
	last := entries[len(entries)-1]
	assert.Equal(t, core.ActionExport, last.Action)
	assert.Equal(t, "xlsx", last.Meta["format"])
}
