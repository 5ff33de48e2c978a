package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/floor-ops/database"
	"github.com/yeremiapane/floor-ops/models"
	"github.com/yeremiapane/floor-ops/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const tenant = "t1"

type event struct {
	tenant string
	name   string
	data   interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Publish(tenantID, name string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{tenant: tenantID, name: name, data: data})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.name)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// stepClock advances one second per reading so audit order is deterministic.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *stepClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixture struct {
	db     *gorm.DB
	engine *Engine
	events *recorder
	clock  *stepClock
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	utils.SilenceLoggers()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// setupFileDB opens a WAL-mode database file with several connections, so
// transactions really do overlap.
func setupFileDB(t *testing.T, conns int) *gorm.DB {
	t.Helper()
	utils.SilenceLoggers()

	dsn := filepath.Join(t.TempDir(), "floor.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, setupTestDB(t))
}

func newFixtureOn(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	events := &recorder{}
	clock := &stepClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	opts := DefaultOptions()
	opts.TokenHashCost = bcrypt.MinCost
	engine := NewEngine(db, events, NewGormCatalog(db), opts)
	engine.Now = clock.Now
	engine.Audit.Now = clock.Now

	return &fixture{db: db, engine: engine, events: events, clock: clock}
}

func (f *fixture) seedTable(t *testing.T, tenantID, code string) *models.Table {
	t.Helper()
	table := &models.Table{
		TenantID:        tenantID,
		Code:            code,
		Capacity:        4,
		Status:          models.TableVacant,
		StatusChangedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(table).Error)
	return table
}

func (f *fixture) seedMenu(t *testing.T, id, name string, price int64, variants, modifiers map[string]int64) {
	t.Helper()
	item := models.MenuItem{ID: id, TenantID: tenant, Name: name, Price: price, Available: true}
	if variants != nil {
		b, _ := json.Marshal(variants)
		item.VariantPrices = datatypes.JSON(b)
	}
	if modifiers != nil {
		b, _ := json.Marshal(modifiers)
		item.Modifiers = datatypes.JSON(b)
	}
	require.NoError(t, f.db.Create(&item).Error)
}

func (f *fixture) table(t *testing.T, code string) models.Table {
	t.Helper()
	var table models.Table
	require.NoError(t, f.db.Unscoped().Where("tenant_id = ? AND code = ?", tenant, code).First(&table).Error)
	return table
}

func (f *fixture) session(t *testing.T, id string) models.Session {
	t.Helper()
	var s models.Session
	require.NoError(t, f.db.Preload("Items").Where("id = ?", id).First(&s).Error)
	return s
}

func (f *fixture) claim(t *testing.T, code, token string) *ClaimResult {
	t.Helper()
	res, err := f.engine.Claim(context.Background(), GuestActor(tenant), ClaimRequest{
		TableCode: code, SessionToken: token, PartySize: 2,
	})
	require.NoError(t, err)
	return res
}

func staff(role models.Role) Actor {
	return Actor{TenantID: tenant, ID: string(role) + "-1", Name: strings.ToUpper(string(role)), Role: role}
}

func requireKind(t *testing.T, err error, kind error) *FloorError {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	fe, ok := err.(*FloorError)
	require.True(t, ok, "expected *FloorError, got %T", err)
	return fe
}
