package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/floor-ops/models"
)

// servedSession claims T1, orders 37000 worth of items and walks the
// session to BILL_REQUESTED.
func servedSession(t *testing.T, f *fixture) string {
	t.Helper()
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	f.seedMenu(t, "tea", "Tea", 10000, nil, nil)
	f.seedMenu(t, "burger", "Burger", 12000, map[string]int64{"large": 15000}, map[string]int64{"cheese": 2000})

	res := f.claim(t, "T1", "phone-a")
	id := res.Session.ID

	_, err := f.engine.AddItems(ctx, GuestActor(tenant), id, []ItemRequest{
		{ItemID: "tea", Quantity: 2},
		{ItemID: "burger", Quantity: 1, Variant: "large", Modifiers: []string{"cheese"}},
	})
	require.NoError(t, err)

	steps := []struct {
		actor Actor
		to    models.SessionStatus
		table models.TableStatus
	}{
		{staff(models.RoleKitchen), models.SessionPreparing, models.TableActive},
		{staff(models.RoleKitchen), models.SessionReady, models.TableReady},
		{staff(models.RoleWaiter), models.SessionServed, models.TableReady},
		{GuestActor(tenant), models.SessionBillRequested, models.TableBillRequested},
	}
	for _, s := range steps {
		out, err := f.engine.Advance(ctx, s.actor, id, s.to)
		require.NoError(t, err, "advance to %s", s.to)
		assert.Equal(t, s.to, out.Session.Status)
		assert.Equal(t, s.table, f.table(t, "T1").Status)
	}
	return id
}

func TestLifecycle_FullPipelineAndSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := servedSession(t, f)

	res, err := f.engine.Settle(ctx, staff(models.RoleCashier), id, 1000)
	require.NoError(t, err)
	assert.Equal(t, models.SessionClosed, res.Session.Status)
	assert.Equal(t, int64(37000), res.Session.Subtotal)
	assert.Equal(t, int64(1000), res.Session.Discount)
	assert.Equal(t, int64(3700), res.Session.Tax)
	assert.Equal(t, int64(1850), res.Session.ServiceCharge)
	assert.Equal(t, int64(41550), res.Session.Total)

	stored := f.session(t, id)
	assert.Equal(t, int64(41550), stored.Total)
	assert.NotNil(t, stored.SettledAt)
	assert.Nil(t, stored.ActiveTableID)

	table := f.table(t, "T1")
	assert.Equal(t, models.TableDirty, table.Status)
	assert.Nil(t, table.SessionID)

	_, err = f.engine.ClearTable(ctx, staff(models.RoleCleaner), "T1")
	require.NoError(t, err)
	assert.Equal(t, models.TableVacant, f.table(t, "T1").Status)

	next := f.claim(t, "T1", "phone-z")
	assert.Equal(t, ClaimNew, next.Outcome)
	assert.NotEqual(t, id, next.Session.ID)

	assert.Contains(t, f.events.names(), "order_settled")
	assert.Contains(t, f.events.names(), "table_cleared")
}

func TestSettle_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := servedSession(t, f)

	_, err := f.engine.Settle(ctx, staff(models.RoleCashier), id, 0)
	require.NoError(t, err)

	_, err = f.engine.Settle(ctx, staff(models.RoleCashier), id, 0)
	fe := requireKind(t, err, ErrInvalidTransition)
	assert.Equal(t, models.SessionClosed, fe.SessionStatus)
	assert.Equal(t, models.TableDirty, fe.TableStatus)

	var settles int64
	require.NoError(t, f.db.Model(&models.AuditLogEntry{}).Where("kind = ?", models.AuditSettle).Count(&settles).Error)
	assert.Equal(t, int64(1), settles)
}

func TestSettle_RatesAndDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := servedSession(t, f)
	require.NoError(t, f.db.Create(&models.BillingSetting{TenantID: tenant, TaxRate: 0.11}).Error)

	_, err := f.engine.Settle(ctx, staff(models.RoleCashier), id, 37001)
	requireKind(t, err, ErrValidation)
	_, err = f.engine.Settle(ctx, staff(models.RoleCashier), id, -1)
	requireKind(t, err, ErrValidation)
	_, err = f.engine.Settle(ctx, staff(models.RoleWaiter), id, 0)
	requireKind(t, err, ErrForbidden)
	assert.Equal(t, models.TableBillRequested, f.table(t, "T1").Status)

	res, err := f.engine.Settle(ctx, staff(models.RoleManager), id, 37000)
	require.NoError(t, err)
	assert.Equal(t, int64(4070), res.Session.Tax)
	assert.Equal(t, int64(0), res.Session.ServiceCharge)
	assert.Equal(t, int64(4070), res.Session.Total)
}

func TestAdvance_ToClosedSettles(t *testing.T) {
	f := newFixture(t)
	id := servedSession(t, f)

	res, err := f.engine.Advance(context.Background(), staff(models.RoleCashier), id, models.SessionClosed)
	require.NoError(t, err)
	assert.Equal(t, models.SessionClosed, res.Session.Status)
	assert.Equal(t, int64(0), res.Session.Discount)
	assert.Equal(t, models.TableDirty, f.table(t, "T1").Status)
}

func TestAdvance_RejectsSkipsRegressionsAndRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	id := f.claim(t, "T1", "phone-a").Session.ID

	_, err := f.engine.Advance(ctx, staff(models.RoleWaiter), id, models.SessionServed)
	fe := requireKind(t, err, ErrInvalidTransition)
	assert.Equal(t, models.SessionNew, fe.SessionStatus)
	assert.Equal(t, models.TableActive, fe.TableStatus)

	_, err = f.engine.Advance(ctx, GuestActor(tenant), id, models.SessionPreparing)
	requireKind(t, err, ErrForbidden)
	// A refused role is also an invalid transition for callers that only check that.
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.engine.Advance(ctx, staff(models.RoleKitchen), id, models.SessionPreparing)
	require.NoError(t, err)

	_, err = f.engine.Advance(ctx, staff(models.RoleManager), id, models.SessionNew)
	requireKind(t, err, ErrInvalidTransition)

	_, err = f.engine.Advance(ctx, staff(models.RoleWaiter), id, models.SessionReady)
	requireKind(t, err, ErrForbidden)

	_, err = f.engine.Advance(ctx, staff(models.RoleManager), id, models.SessionCancelled)
	requireKind(t, err, ErrValidation)
	_, err = f.engine.Advance(ctx, staff(models.RoleManager), id, "EATING")
	requireKind(t, err, ErrValidation)

	_, err = f.engine.Advance(ctx, staff(models.RoleManager), "missing", models.SessionReady)
	requireKind(t, err, ErrSessionNotFound)

	assert.Equal(t, models.SessionPreparing, f.session(t, id).Status)
}

func TestAdvance_KitchenCanSkipPreparing(t *testing.T) {
	f := newFixture(t)
	f.seedTable(t, tenant, "T1")
	id := f.claim(t, "T1", "phone-a").Session.ID
	f.events.reset()

	_, err := f.engine.Advance(context.Background(), staff(models.RoleKitchen), id, models.SessionReady)
	require.NoError(t, err)
	assert.Equal(t, models.TableReady, f.table(t, "T1").Status)
	assert.Equal(t, []string{"order_update", "table_update"}, f.events.names())
}

func TestAddItems_PricesAreSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	f.seedMenu(t, "tea", "Tea", 10000, nil, nil)
	id := f.claim(t, "T1", "phone-a").Session.ID

	session, err := f.engine.AddItems(ctx, GuestActor(tenant), id, []ItemRequest{{ItemID: "tea", Quantity: 3, Notes: "no sugar"}})
	require.NoError(t, err)
	require.Len(t, session.Items, 1)
	assert.Equal(t, int64(10000), session.Items[0].UnitPrice)
	assert.Equal(t, "no sugar", session.Items[0].Notes)
	assert.Equal(t, 3, session.ItemCount())

	require.NoError(t, f.db.Model(&models.MenuItem{}).Where("id = ?", "tea").Update("price", 99999).Error)
	assert.Equal(t, int64(10000), f.session(t, id).Items[0].UnitPrice)

	// Adding items never moves the status.
	assert.Equal(t, models.SessionNew, f.session(t, id).Status)
	assert.Equal(t, models.TableActive, f.table(t, "T1").Status)
}

func TestAddItems_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	f.seedMenu(t, "tea", "Tea", 10000, nil, nil)
	require.NoError(t, f.db.Create(&models.MenuItem{ID: "gone", TenantID: tenant, Name: "Gone", Price: 1, Available: false}).Error)
	id := f.claim(t, "T1", "phone-a").Session.ID

	_, err := f.engine.AddItems(ctx, GuestActor(tenant), id, nil)
	requireKind(t, err, ErrValidation)
	_, err = f.engine.AddItems(ctx, GuestActor(tenant), id, []ItemRequest{{ItemID: "tea", Quantity: 0}})
	requireKind(t, err, ErrValidation)
	_, err = f.engine.AddItems(ctx, GuestActor(tenant), id, []ItemRequest{{ItemID: "gone", Quantity: 1}})
	requireKind(t, err, ErrValidation)
	_, err = f.engine.AddItems(ctx, GuestActor(tenant), id, []ItemRequest{{ItemID: "nope", Quantity: 1}})
	requireKind(t, err, ErrValidation)
	_, err = f.engine.AddItems(ctx, GuestActor("other"), id, []ItemRequest{{ItemID: "tea", Quantity: 1}})
	requireKind(t, err, ErrValidation) // tea is not on the other tenant's menu
	_, err = f.engine.AddItems(ctx, staff(models.RoleKitchen), id, []ItemRequest{{ItemID: "tea", Quantity: 1}})
	requireKind(t, err, ErrForbidden)

	_, err = f.engine.EmergencyReset(ctx, staff(models.RoleManager), "T1", "walked out")
	require.NoError(t, err)
	_, err = f.engine.AddItems(ctx, GuestActor(tenant), id, []ItemRequest{{ItemID: "tea", Quantity: 1}})
	requireKind(t, err, ErrInvalidTransition)

	assert.Empty(t, f.session(t, id).Items)
}

func TestEmergencyReset_CancelsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	id := f.claim(t, "T1", "phone-a").Session.ID

	_, err := f.engine.EmergencyReset(ctx, staff(models.RoleWaiter), "T1", "stuck")
	requireKind(t, err, ErrForbidden)

	res, err := f.engine.EmergencyReset(ctx, staff(models.RoleManager), "T1", "stuck")
	require.NoError(t, err)
	assert.Equal(t, models.TableVacant, res.Table.Status)
	require.NotNil(t, res.Session)
	assert.Equal(t, models.SessionCancelled, res.Session.Status)

	stored := f.session(t, id)
	assert.Equal(t, models.SessionCancelled, stored.Status)
	assert.Equal(t, "stuck", stored.CancelReason)
	assert.NotNil(t, stored.CancelledAt)
	assert.Nil(t, stored.SettledAt)
	assert.Nil(t, stored.ActiveTableID)

	var entry models.AuditLogEntry
	require.NoError(t, f.db.Where("kind = ?", models.AuditReset).First(&entry).Error)
	assert.True(t, entry.Override)
	assert.Equal(t, "Emergency reset (manual override)", entry.Action)
	assert.Equal(t, string(models.TableActive), entry.FromStatus)
	assert.Equal(t, string(models.TableVacant), entry.ToStatus)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(entry.Payload, &payload))
	assert.Equal(t, "NEW", payload["session_status_before"])
	assert.Equal(t, "stuck", payload["reason"])

	_, err = f.engine.EmergencyReset(ctx, staff(models.RoleManager), "T1", "again")
	requireKind(t, err, ErrInvalidTransition)

	assert.Equal(t, ClaimNew, f.claim(t, "T1", "phone-b").Outcome)
}

func TestClearTable_OnlyFromDirty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")

	_, err := f.engine.ClearTable(ctx, staff(models.RoleCleaner), "T1")
	fe := requireKind(t, err, ErrInvalidTransition)
	assert.Equal(t, models.TableVacant, fe.TableStatus)

	f.claim(t, "T1", "phone-a")
	_, err = f.engine.ClearTable(ctx, staff(models.RoleCleaner), "T1")
	requireKind(t, err, ErrInvalidTransition)

	_, err = f.engine.ClearTable(ctx, staff(models.RoleKitchen), "T1")
	requireKind(t, err, ErrForbidden)
}

func TestAssignStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	id := f.claim(t, "T1", "phone-a").Session.ID

	waiter := staff(models.RoleWaiter)
	_, err := f.engine.AssignStaff(ctx, waiter, id, "someone-else", "Someone")
	requireKind(t, err, ErrForbidden)

	s, err := f.engine.AssignStaff(ctx, waiter, id, waiter.ID, waiter.Name)
	require.NoError(t, err)
	require.NotNil(t, s.StaffID)
	assert.Equal(t, waiter.ID, *s.StaffID)

	f.events.reset()
	_, err = f.engine.AssignStaff(ctx, waiter, id, waiter.ID, waiter.Name)
	require.NoError(t, err)
	assert.Empty(t, f.events.names())

	_, err = f.engine.AssignStaff(ctx, staff(models.RoleManager), id, "w-2", "Dewi")
	require.NoError(t, err)
	assert.Equal(t, "Dewi", f.session(t, id).StaffName)
	assert.Equal(t, []string{"staff_assigned"}, f.events.names())

	_, err = f.engine.AssignStaff(ctx, staff(models.RoleKitchen), id, "k-1", "Chef")
	requireKind(t, err, ErrForbidden)
}

func TestAssignStaff_SameStaffNewName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	id := f.claim(t, "T1", "phone-a").Session.ID

	manager := staff(models.RoleManager)
	_, err := f.engine.AssignStaff(ctx, manager, id, "w-2", "Dewi")
	require.NoError(t, err)

	f.events.reset()
	s, err := f.engine.AssignStaff(ctx, manager, id, "w-2", "Dewi Lestari")
	require.NoError(t, err)
	assert.Equal(t, "Dewi Lestari", s.StaffName)
	assert.Equal(t, "Dewi Lestari", f.session(t, id).StaffName)
	assert.Equal(t, []string{"staff_assigned"}, f.events.names())

	view, err := NewFloorProjector(f.db).Project(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, view.Tables, 1)
	assert.Equal(t, "Dewi Lestari", view.Tables[0].Waiter)

	var assigns int64
	require.NoError(t, f.db.Model(&models.AuditLogEntry{}).
		Where("session_id = ? AND kind = ?", id, models.AuditAssign).
		Count(&assigns).Error)
	assert.Equal(t, int64(2), assigns)
}

func TestArchiveTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")
	f.seedTable(t, tenant, "T2")
	f.claim(t, "T2", "phone-a")

	_, err := f.engine.ArchiveTable(ctx, staff(models.RoleWaiter), "T1")
	requireKind(t, err, ErrForbidden)
	_, err = f.engine.ArchiveTable(ctx, staff(models.RoleManager), "T2")
	requireKind(t, err, ErrInvalidTransition)

	_, err = f.engine.ArchiveTable(ctx, staff(models.RoleManager), "T1")
	require.NoError(t, err)
	assert.True(t, f.table(t, "T1").DeletedAt.Valid)

	_, err = f.engine.Claim(ctx, GuestActor(tenant), ClaimRequest{TableCode: "T1", SessionToken: "x", PartySize: 1})
	requireKind(t, err, ErrTableNotFound)

	view, err := NewFloorProjector(f.db).Project(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, view.Tables, 1)
	assert.Equal(t, "T2", view.Tables[0].TableCode)
}

func TestRaiseAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTable(t, tenant, "T1")

	require.NoError(t, f.engine.RaiseAlert(ctx, GuestActor(tenant), "T1", AlertCallWaiter, ""))
	require.NoError(t, f.engine.RaiseAlert(ctx, GuestActor(tenant), "T1", AlertComplaint, "cold soup"))
	assert.Equal(t, []string{"waiter_called", "complaint_raised"}, f.events.names())

	requireKind(t, f.engine.RaiseAlert(ctx, GuestActor(tenant), "T1", "fire", ""), ErrValidation)
	requireKind(t, f.engine.RaiseAlert(ctx, GuestActor(tenant), "T9", AlertComplaint, ""), ErrTableNotFound)
	assert.Equal(t, models.TableVacant, f.table(t, "T1").Status)
}

func TestComputeTotals(t *testing.T) {
	items := []models.SessionItem{
		{Quantity: 3, UnitPrice: 333},
		{Quantity: 1, UnitPrice: 100, ModifierTotal: 50},
	}
	got, err := computeTotals(items, 0, 0.075, 0.05)
	require.NoError(t, err)
	assert.Equal(t, int64(1149), got.Subtotal)
	assert.Equal(t, int64(86), got.Tax)          // 86.175
	assert.Equal(t, int64(57), got.ServiceCharge) // 57.45
	assert.Equal(t, int64(1292), got.Total)

	_, err = computeTotals(items, 1150, 0, 0)
	requireKind(t, err, ErrValidation)
}
