package coupon

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/room-reservation/internal/model"
)

// Link points a redemption at what consumed it.  Exactly one field is set.
type Link struct {
	BookingID *uint64
	CreditID  *uint64
}

// BookingLink links a redemption to a booking.
func BookingLink(id uint64) Link { return Link{BookingID: &id} }

// CreditLink links a redemption to a credit purchase.
func CreditLink(id uint64) Link { return Link{CreditID: &id} }

// UsageStore persists redemption rows.  Find* return (nil, nil) when no row
// exists.  ClaimRestoredTx and RestoreTx are conditional updates reporting
// whether a row changed.  InsertTx must fail on the unique key
// (user, code, context) and that failure is returned unchanged.
type UsageStore interface {
	Find(ctx context.Context, userID uint64, code string, cctx model.CouponContext) (*model.CouponUsage, error)
	FindTx(ctx context.Context, tx *sql.Tx, userID uint64, code string, cctx model.CouponContext) (*model.CouponUsage, error)
	FindUsedByLinkTx(ctx context.Context, tx *sql.Tx, link Link) (*model.CouponUsage, error)
	ClaimRestoredTx(ctx context.Context, tx *sql.Tx, userID uint64, code string, cctx model.CouponContext, link Link) (bool, error)
	InsertTx(ctx context.Context, tx *sql.Tx, userID uint64, code string, cctx model.CouponContext, link Link) error
	RestoreTx(ctx context.Context, tx *sql.Tx, usageID uint64) (bool, error)
}

// CheckResult is the eligibility verdict.
type CheckResult struct {
	CanUse     bool        `json:"can_use"`
	Code       string      `json:"code,omitempty"`
	Definition *Definition `json:"definition,omitempty"`
}

// RecordMode says how a redemption was stored.
type RecordMode string

const (
	ModeCreated         RecordMode = "CREATED"
	ModeClaimedRestored RecordMode = "CLAIMED_RESTORED"
)

// RecordResult is returned by Record.
type RecordResult struct {
	OK   bool       `json:"ok"`
	Mode RecordMode `json:"mode"`
}

// RestoreResult is returned by Restore.
type RestoreResult struct {
	Restored bool   `json:"restored"`
	Code     string `json:"code,omitempty"`
}

// Manager runs the per (user, code, context) state machine:
// absent -> USED, RESTORED -> USED, USED -> RESTORED (unpaid only).
type Manager struct {
	store   UsageStore
	catalog *Catalog
	floor   int64
	now     func() time.Time
	logger  *zap.Logger
}

// NewManager builds a Manager.  floor <= 0 selects DefaultMinimumPayable.
func NewManager(store UsageStore, catalog *Catalog, floor int64, now func() time.Time, logger *zap.Logger) *Manager {
	if floor <= 0 {
		floor = DefaultMinimumPayable
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, catalog: catalog, floor: floor, now: now, logger: logger}
}

// Quote prices gross with the definition under the configured floor.
func (m *Manager) Quote(gross int64, d Definition) Quote { return Apply(gross, d, m.floor) }

// Check re-reads the current redemption state; nothing is cached.
func (m *Manager) Check(ctx context.Context, userID uint64, code string, cctx model.CouponContext) (CheckResult, error) {
	return m.check(code, cctx, func(norm string) (*model.CouponUsage, error) {
		return m.store.Find(ctx, userID, norm, cctx)
	})
}

// CheckTx is Check reading through tx.
func (m *Manager) CheckTx(ctx context.Context, tx *sql.Tx, userID uint64, code string, cctx model.CouponContext) (CheckResult, error) {
	return m.check(code, cctx, func(norm string) (*model.CouponUsage, error) {
		return m.store.FindTx(ctx, tx, userID, norm, cctx)
	})
}

func (m *Manager) check(code string, cctx model.CouponContext, find func(string) (*model.CouponUsage, error)) (CheckResult, error) {
	def, ok := m.catalog.Lookup(code)
	if !ok || !cctx.Valid() || !def.Allows(cctx, m.now()) {
		return CheckResult{Code: CodeInvalid}, nil
	}
	u, err := find(def.Code)
	if err != nil {
		return CheckResult{}, err
	}
	if u != nil && u.Status == model.CouponUsed {
		return CheckResult{Code: CodeAlreadyUsed}, nil
	}
	return CheckResult{CanUse: true, Definition: &def}, nil
}

// Record stores a redemption on tx.  A RESTORED row is claimed back with a
// conditional update; otherwise a row is inserted.  When a concurrent
// request wins, the insert's unique-key error is returned as is so the
// caller aborts its transaction.
func (m *Manager) Record(ctx context.Context, tx *sql.Tx, userID uint64, code string, cctx model.CouponContext, link Link) (RecordResult, error) {
	norm := Normalize(code)
	claimed, err := m.store.ClaimRestoredTx(ctx, tx, userID, norm, cctx, link)
	if err != nil {
		return RecordResult{}, err
	}
	if claimed {
		m.logger.Info("coupon redemption reclaimed",
			zap.Uint64("user_id", userID), zap.String("coupon", norm), zap.String("context", string(cctx)))
		return RecordResult{OK: true, Mode: ModeClaimedRestored}, nil
	}
	if err := m.store.InsertTx(ctx, tx, userID, norm, cctx, link); err != nil {
		return RecordResult{}, err
	}
	m.logger.Info("coupon redeemed",
		zap.Uint64("user_id", userID), zap.String("coupon", norm), zap.String("context", string(cctx)))
	return RecordResult{OK: true, Mode: ModeCreated}, nil
}

// Restore releases the redemption consumed by a booking.  A paid booking
// keeps its coupon consumed forever.
func (m *Manager) Restore(ctx context.Context, tx *sql.Tx, bookingID uint64, wasPaid bool) (RestoreResult, error) {
	return m.restore(ctx, tx, BookingLink(bookingID), wasPaid)
}

// RestoreCredit releases the redemption consumed by a credit purchase.
func (m *Manager) RestoreCredit(ctx context.Context, tx *sql.Tx, creditID uint64, wasPaid bool) (RestoreResult, error) {
	return m.restore(ctx, tx, CreditLink(creditID), wasPaid)
}

func (m *Manager) restore(ctx context.Context, tx *sql.Tx, link Link, wasPaid bool) (RestoreResult, error) {
	if wasPaid {
		return RestoreResult{}, nil
	}
	u, err := m.store.FindUsedByLinkTx(ctx, tx, link)
	if err != nil || u == nil {
		return RestoreResult{}, err
	}
	ok, err := m.store.RestoreTx(ctx, tx, u.ID)
	if err != nil {
		return RestoreResult{}, err
	}
	if !ok {
		return RestoreResult{}, nil
	}
	return RestoreResult{Restored: true, Code: u.Code}, nil
}

// Gate decides whether a coupon takes part in a payment.  No code, or no
// cash left to discount, means the coupon is ignored; the exception is a
// caller that insisted on the coupon while credit covers everything.
func Gate(cashDue int64, code string, requireCoupon bool) (bool, error) {
	if Normalize(code) == "" {
		return false, nil
	}
	if cashDue <= 0 {
		if requireCoupon {
			return false, ErrRequiresCashPayment
		}
		return false, nil
	}
	return true, nil
}
