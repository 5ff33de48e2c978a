package services

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/floor-ops/models"
	"github.com/yeremiapane/floor-ops/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Notifier receives change notifications after a transaction commits.
// kds.Hub satisfies it.
type Notifier interface {
	Publish(tenantID, event string, data interface{})
}

type Options struct {
	// TxTimeout bounds one operation including its retries.
	TxTimeout time.Duration
	// StaleRetries is the number of attempts made when a compare-and-set loses.
	StaleRetries int

	DefaultTaxRate           float64
	DefaultServiceChargeRate float64

	TokenHashCost int
}

func DefaultOptions() Options {
	return Options{
		TxTimeout:                5 * time.Second,
		StaleRetries:             5,
		DefaultTaxRate:           0.10,
		DefaultServiceChargeRate: 0.05,
		TokenHashCost:            bcrypt.DefaultCost,
	}
}

// Engine owns every mutation of tables and sessions. Each public method runs
// in one database transaction together with its audit entry; notifications
// are only published once that transaction has committed.
type Engine struct {
	DB       *gorm.DB
	Notifier Notifier
	Catalog  Catalog
	Audit    *AuditRecorder
	Options  Options
	Now      func() time.Time
}

func NewEngine(db *gorm.DB, notifier Notifier, catalog Catalog, opts Options) *Engine {
	now := func() time.Time { return time.Now().UTC() }
	if opts.StaleRetries <= 0 {
		opts.StaleRetries = 1
	}
	if opts.TokenHashCost == 0 {
		opts.TokenHashCost = bcrypt.DefaultCost
	}
	return &Engine{
		DB:       db,
		Notifier: notifier,
		Catalog:  catalog,
		Audit:    &AuditRecorder{Now: now},
		Options:  opts,
		Now:      now,
	}
}

type notice struct {
	event string
	data  interface{}
}

// run executes fn in a transaction, retrying while it fails with
// ErrStaleWrite. fn must be safe to re-run from scratch.
func (e *Engine) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	if e.Options.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Options.TxTimeout)
		defer cancel()
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = classify(e.DB.WithContext(ctx).Transaction(fn))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return newError(ErrStaleWrite, "%s did not complete in time, retry", op)
		}
		if !errors.Is(err, ErrStaleWrite) || attempt >= e.Options.StaleRetries {
			return err
		}

		backoff := time.Duration(attempt)*10*time.Millisecond +
			time.Duration(rand.Int63n(int64(10*time.Millisecond)))
		utils.InfoLogger.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
		}).Debug("compare-and-set lost, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return newError(ErrStaleWrite, "%s did not complete in time, retry", op)
		}
	}
}

func (e *Engine) publish(tenantID string, notices []notice) {
	if e.Notifier == nil {
		return
	}
	for _, n := range notices {
		e.Notifier.Publish(tenantID, n.event, n.data)
	}
}

func (e *Engine) logTransition(actor Actor, table *models.Table, sessionID string, from, to string) {
	utils.InfoLogger.WithFields(logrus.Fields{
		"tenant":  actor.TenantID,
		"table":   table.Code,
		"session": sessionID,
		"from":    from,
		"to":      to,
		"actor":   actor.ID,
		"role":    actor.Role,
	}).Info("floor transition committed")
}

func loadTableByCode(tx *gorm.DB, tenantID, code string) (*models.Table, error) {
	var table models.Table
	err := tx.Where("tenant_id = ? AND code = ?", tenantID, code).First(&table).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrTableNotFound, "table %s not found", code)
	}
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// loadOwnedSession loads a session and its table and checks the table still
// points at the session. Only the session that owns its table may be mutated.
func loadOwnedSession(tx *gorm.DB, tenantID, sessionID string, withItems bool) (*models.Session, *models.Table, error) {
	var session models.Session
	q := tx.Where("tenant_id = ? AND id = ?", tenantID, sessionID)
	if withItems {
		q = q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
	}
	err := q.First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, newError(ErrSessionNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return nil, nil, err
	}

	var table models.Table
	err = tx.Unscoped().Where("tenant_id = ? AND id = ?", tenantID, session.TableID).First(&table).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, newError(ErrTableNotFound, "table of session %s not found", sessionID)
	}
	if err != nil {
		return nil, nil, err
	}

	if session.Status.Terminal() {
		return &session, &table, newError(ErrInvalidTransition, "session is already %s", session.Status).
			withState(table.Status, session.Status)
	}
	if table.SessionID == nil || *table.SessionID != session.ID || !table.Status.Occupied() {
		return &session, &table, newError(ErrSessionConflict, "session %s no longer owns table %s", session.ID, table.Code).
			withState(table.Status, session.Status)
	}
	return &session, &table, nil
}

// casTable writes updates only if the row still carries the version that was
// read, bumping the version. A lost race is reported as ErrStaleWrite.
func casTable(tx *gorm.DB, table *models.Table, now time.Time, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = now

	res := tx.Model(&models.Table{}).
		Where("id = ? AND version = ?", table.ID, table.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return newError(ErrStaleWrite, "table %s changed concurrently", table.Code)
	}
	table.Version++
	table.UpdatedAt = now
	return nil
}

// setTableStatus moves the table to status with the given owner.
func setTableStatus(tx *gorm.DB, table *models.Table, now time.Time, status models.TableStatus, owner *string) error {
	updates := map[string]interface{}{
		"status":     status,
		"session_id": owner,
	}
	if status != table.Status {
		updates["status_changed_at"] = now
	}
	if err := casTable(tx, table, now, updates); err != nil {
		return err
	}
	if status != table.Status {
		table.StatusChangedAt = now
	}
	table.Status = status
	table.SessionID = owner
	return nil
}
