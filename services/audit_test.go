package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/floor-ops/models"
)

func TestAudit_JourneyIsCompleteAndOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := servedSession(t, f)
	_, err := f.engine.Settle(ctx, staff(models.RoleCashier), id, 0)
	require.NoError(t, err)

	entries, err := NewAuditLog(f.db).Journey(ctx, tenant, id)
	require.NoError(t, err)

	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
		assert.Equal(t, tenant, e.TenantID)
		assert.Equal(t, "T1", e.TableCode)
	}
	assert.Equal(t, []string{
		"Table claimed",
		"Items added",
		"Order sent to kitchen",
		"Order ready",
		"Order served",
		"Bill requested",
		"Session settled",
	}, actions)

	last := entries[len(entries)-1]
	assert.Equal(t, string(models.SessionBillRequested), last.FromStatus)
	assert.Equal(t, string(models.SessionClosed), last.ToStatus)
	assert.Equal(t, "cashier", last.ActorRole)
	assert.Equal(t, "cashier-1", last.ActorID)
}

func TestAudit_TimestampsNeverGoBackwards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	id := f.claim(t, "T1", "phone-a").Session.ID

	// Wall clock steps back an hour.
	f.clock.set(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC))
	_, err := f.engine.Advance(ctx, staff(models.RoleKitchen), id, models.SessionPreparing)
	require.NoError(t, err)

	entries, err := NewAuditLog(f.db).Query(ctx, AuditFilter{TenantID: tenant, TableCode: "T1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Table claimed", entries[0].Action)
	assert.Equal(t, "Order sent to kitchen", entries[1].Action)
	assert.False(t, entries[1].CreatedAt.Before(entries[0].CreatedAt))
}

func TestAudit_RejectedOperationsLeaveNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	id := f.claim(t, "T1", "phone-a").Session.ID

	_, err := f.engine.Advance(ctx, staff(models.RoleWaiter), id, models.SessionServed)
	require.Error(t, err)
	_, err = f.engine.ClearTable(ctx, staff(models.RoleCleaner), "T1")
	require.Error(t, err)

	var count int64
	require.NoError(t, f.db.Model(&models.AuditLogEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// breakAudit makes every audit append fail from here on.
func breakAudit(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.db.Migrator().DropTable(&models.AuditLogEntry{}))
	f.events.reset()
}

func TestAudit_FailedAppendRollsBackClaim(t *testing.T) {
	f := newFixture(t)
	f.seedTable(t, tenant, "T1")
	before := f.table(t, "T1")
	breakAudit(t, f)

	_, err := f.engine.Claim(context.Background(), GuestActor(tenant), ClaimRequest{
		TableCode: "T1", SessionToken: "phone-a", PartySize: 2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit entry")

	after := f.table(t, "T1")
	assert.Equal(t, models.TableVacant, after.Status)
	assert.Nil(t, after.SessionID)
	assert.Equal(t, before.Version, after.Version)

	var sessions int64
	require.NoError(t, f.db.Model(&models.Session{}).Count(&sessions).Error)
	assert.Zero(t, sessions)
	assert.Empty(t, f.events.names())
}

func TestAudit_FailedAppendRollsBackAdvance(t *testing.T) {
	f := newFixture(t)
	f.seedTable(t, tenant, "T1")
	id := f.claim(t, "T1", "phone-a").Session.ID
	before := f.table(t, "T1")
	breakAudit(t, f)

	_, err := f.engine.Advance(context.Background(), staff(models.RoleKitchen), id, models.SessionPreparing)
	require.Error(t, err)

	after := f.table(t, "T1")
	assert.Equal(t, models.TableActive, after.Status)
	require.NotNil(t, after.SessionID)
	assert.Equal(t, id, *after.SessionID)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.StatusChangedAt.UTC(), after.StatusChangedAt.UTC())

	session := f.session(t, id)
	assert.Equal(t, models.SessionNew, session.Status)
	assert.Empty(t, f.events.names())
}

func TestAudit_FailedAppendRollsBackSettle(t *testing.T) {
	f := newFixture(t)
	id := servedSession(t, f)
	before := f.table(t, "T1")
	sessionBefore := f.session(t, id)
	breakAudit(t, f)

	_, err := f.engine.Settle(context.Background(), staff(models.RoleCashier), id, 0)
	require.Error(t, err)

	after := f.table(t, "T1")
	assert.Equal(t, models.TableBillRequested, after.Status)
	require.NotNil(t, after.SessionID)
	assert.Equal(t, id, *after.SessionID)
	assert.Equal(t, before.Version, after.Version)

	session := f.session(t, id)
	assert.Equal(t, models.SessionBillRequested, session.Status)
	assert.NotNil(t, session.ActiveTableID)
	assert.Nil(t, session.SettledAt)
	assert.Zero(t, session.Total)
	assert.Len(t, session.Items, len(sessionBefore.Items))
	assert.Empty(t, f.events.names())
}

func TestAuditLog_QueryFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	f.seedTable(t, tenant, "T2")
	f.seedTable(t, "other", "T1")
	f.claim(t, "T1", "a")
	second := f.claim(t, "T2", "b")
	_, err := f.engine.Claim(ctx, GuestActor("other"), ClaimRequest{TableCode: "T1", SessionToken: "c", PartySize: 1})
	require.NoError(t, err)

	log := NewAuditLog(f.db)

	all, err := log.Query(ctx, AuditFilter{TenantID: tenant})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byTable, err := log.Query(ctx, AuditFilter{TenantID: tenant, TableCode: "T2"})
	require.NoError(t, err)
	require.Len(t, byTable, 1)
	require.NotNil(t, byTable[0].SessionID)
	assert.Equal(t, second.Session.ID, *byTable[0].SessionID)

	limited, err := log.Query(ctx, AuditFilter{TenantID: tenant, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	future, err := log.Query(ctx, AuditFilter{TenantID: tenant, From: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Empty(t, future)

	_, err = log.Query(ctx, AuditFilter{})
	requireKind(t, err, ErrValidation)
	_, err = log.Query(ctx, AuditFilter{TenantID: tenant, From: time.Now(), To: time.Now().Add(-time.Hour)})
	requireKind(t, err, ErrValidation)
}
