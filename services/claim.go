package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/yeremiapane/floor-ops/kds"
	"github.com/yeremiapane/floor-ops/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type ClaimOutcome string

const (
	ClaimNew  ClaimOutcome = "NEW"
	ClaimJoin ClaimOutcome = "JOIN"
)

// maxTokenLen is bcrypt's input limit.
const maxTokenLen = 72

type ClaimRequest struct {
	TableCode    string
	SessionToken string
	PartySize    int
}

type ClaimResult struct {
	Outcome ClaimOutcome    `json:"outcome"`
	Session *models.Session `json:"session"`
	Table   *models.Table   `json:"table"`
	// Resumed is set on JOIN when the caller presented the token that
	// originally claimed the table.
	Resumed bool `json:"resumed"`
}

// Claim binds a vacant table to a new session, or points the caller at the
// session already owning it. The status read and the status write happen in
// one transaction guarded by the table's version, so among concurrent callers
// on a vacant table exactly one sees NEW and the rest JOIN that session.
func (e *Engine) Claim(ctx context.Context, actor Actor, req ClaimRequest) (*ClaimResult, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if !actor.oneOf(models.RoleGuest, models.RoleWaiter, models.RoleManager, models.RoleAdmin) {
		return nil, newError(ErrForbidden, "role %s may not claim tables", actor.Role)
	}
	if req.TableCode == "" {
		return nil, newError(ErrValidation, "table code is required")
	}
	if req.PartySize < 1 {
		return nil, newError(ErrValidation, "party size must be at least 1")
	}
	if req.SessionToken == "" || len(req.SessionToken) > maxTokenLen {
		return nil, newError(ErrValidation, "session token must be 1 to %d characters", maxTokenLen)
	}

	pre := e.prepareClaim(ctx, actor.TenantID, req)

	var result *ClaimResult
	err := e.run(ctx, "claim", func(tx *gorm.DB) error {
		result = nil
		table, err := loadTableByCode(tx, actor.TenantID, req.TableCode)
		if err != nil {
			return err
		}

		switch {
		case table.Status == models.TableVacant:
			result, err = e.claimVacant(tx, actor, table, req, pre)
			return err
		case table.Status.Occupied():
			result, err = e.joinExisting(tx, actor, table, req.SessionToken, pre)
			return err
		case table.Status == models.TableDirty:
			return newError(ErrTableNotReady, "table %s is waiting to be cleared", table.Code).
				withState(table.Status, "")
		default:
			return newError(ErrTableNotReady, "table %s has unknown status %s", table.Code, table.Status).
				withState(table.Status, "")
		}
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"table_code": result.Table.Code,
		"session_id": result.Session.ID,
		"status":     result.Table.Status,
	}
	if result.Outcome == ClaimNew {
		e.logTransition(actor, result.Table, result.Session.ID, string(models.TableVacant), string(models.TableActive))
		e.publish(actor.TenantID, []notice{
			{kds.EventOrderCreated, payload},
			{kds.EventTableUpdate, payload},
		})
	} else {
		e.publish(actor.TenantID, []notice{{kds.EventGuestJoined, payload}})
	}
	return result, nil
}

func (e *Engine) claimVacant(tx *gorm.DB, actor Actor, table *models.Table, req ClaimRequest, pre claimPrep) (*ClaimResult, error) {
	tokenHash := pre.tokenHash
	if tokenHash == "" {
		// The table was vacated after prepareClaim looked at it.
		h, err := bcrypt.GenerateFromPassword([]byte(req.SessionToken), e.Options.TokenHashCost)
		if err != nil {
			return nil, newError(ErrValidation, "session token: %v", err)
		}
		tokenHash = string(h)
	}

	now := e.Now()
	sessionID := uuid.NewString()
	tableID := table.ID

	if err := setTableStatus(tx, table, now, models.TableActive, &sessionID); err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:            sessionID,
		TenantID:      actor.TenantID,
		TableID:       table.ID,
		TableCode:     table.Code,
		ActiveTableID: &tableID,
		TokenHash:     tokenHash,
		PartySize:     req.PartySize,
		Status:        models.SessionNew,
		Items:         []models.SessionItem{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if actor.Role.Staff() {
		staffID := actor.ID
		session.StaffID = &staffID
		session.StaffName = actor.Name
	}
	if err := tx.Create(session).Error; err != nil {
		return nil, err
	}

	entry := newEntry(actor, table, &sessionID, models.AuditClaim, "Table claimed")
	entry.FromStatus = string(models.TableVacant)
	entry.ToStatus = string(models.TableActive)
	entry.Payload = auditPayload(map[string]interface{}{"party_size": req.PartySize})
	if err := e.Audit.Append(tx, entry); err != nil {
		return nil, err
	}

	return &ClaimResult{Outcome: ClaimNew, Session: session, Table: table}, nil
}

func (e *Engine) joinExisting(tx *gorm.DB, actor Actor, table *models.Table, token string, pre claimPrep) (*ClaimResult, error) {
	if table.SessionID == nil {
		return nil, newError(ErrSessionConflict, "table %s is %s without an owning session", table.Code, table.Status).
			withState(table.Status, "")
	}

	var session models.Session
	err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("tenant_id = ? AND id = ?", actor.TenantID, *table.SessionID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrSessionConflict, "table %s points at a missing session", table.Code).
			withState(table.Status, "")
	}
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() || session.TableID != table.ID {
		return nil, newError(ErrSessionConflict, "table %s points at a session it does not own", table.Code).
			withState(table.Status, session.Status)
	}

	resumed := pre.resumed
	if pre.checkedSession != session.ID {
		resumed = tokenMatches(session.TokenHash, token)
	}

	// Touch the row so the join is ordered against every other write on
	// this table.
	if err := casTable(tx, table, e.Now(), nil); err != nil {
		return nil, err
	}

	kind, action := models.AuditJoin, "Guest joined existing session"
	if resumed {
		kind, action = models.AuditResume, "Guest resumed session"
	}
	entry := newEntry(actor, table, &session.ID, kind, action)
	entry.FromStatus = string(table.Status)
	entry.ToStatus = string(table.Status)
	if err := e.Audit.Append(tx, entry); err != nil {
		return nil, err
	}

	return &ClaimResult{Outcome: ClaimJoin, Session: &session, Table: table, Resumed: resumed}, nil
}

// claimPrep is the bcrypt work done before the claim transaction opens.
type claimPrep struct {
	// tokenHash is set when the table looked vacant.
	tokenHash string
	// checkedSession is the owning session the token was compared against.
	checkedSession string
	resumed        bool
}

// prepareClaim reads the table without a transaction and does the bcrypt
// work its current status calls for. Nothing here is authoritative: the
// transaction re-reads the table and falls back to hashing or comparing
// inline when the table changed in between.
func (e *Engine) prepareClaim(ctx context.Context, tenantID string, req ClaimRequest) claimPrep {
	var pre claimPrep
	table, err := loadTableByCode(e.DB.WithContext(ctx), tenantID, req.TableCode)
	if err != nil {
		return pre
	}

	switch {
	case table.Status == models.TableVacant:
		h, err := bcrypt.GenerateFromPassword([]byte(req.SessionToken), e.Options.TokenHashCost)
		if err == nil {
			pre.tokenHash = string(h)
		}
	case table.Status.Occupied() && table.SessionID != nil:
		var session models.Session
		err := e.DB.WithContext(ctx).Select("id", "token_hash").
			Where("tenant_id = ? AND id = ?", tenantID, *table.SessionID).
			Limit(1).Find(&session).Error
		if err == nil && session.ID != "" {
			pre.checkedSession = session.ID
			pre.resumed = tokenMatches(session.TokenHash, req.SessionToken)
		}
	}
	return pre
}

func tokenMatches(hash, token string) bool {
	return hash != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
