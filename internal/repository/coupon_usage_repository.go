package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/room-reservation/internal/coupon"
	"github.com/iliyamo/room-reservation/internal/model"
)

// CouponUsageRepo persists coupon redemptions.  The table's unique key on
// (user_id, coupon_code, context) keeps at most one row per identity.
type CouponUsageRepo struct {
	db *sql.DB
}

// NewCouponUsageRepo returns a CouponUsageRepo bound to db.
func NewCouponUsageRepo(db *sql.DB) *CouponUsageRepo { return &CouponUsageRepo{db: db} }

const couponUsageColumns = `id, user_id, coupon_code, context, status, booking_id, credit_id, used_at, restored_at`

func scanCouponUsage(s scanner) (*model.CouponUsage, error) {
	var (
		u          model.CouponUsage
		bookingID  sql.NullInt64
		creditID   sql.NullInt64
		restoredAt sql.NullTime
	)
	err := s.Scan(&u.ID, &u.UserID, &u.Code, &u.Context, &u.Status, &bookingID, &creditID, &u.UsedAt, &restoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if bookingID.Valid {
		id := uint64(bookingID.Int64)
		u.BookingID = &id
	}
	if creditID.Valid {
		id := uint64(creditID.Int64)
		u.CreditID = &id
	}
	if restoredAt.Valid {
		t := restoredAt.Time
		u.RestoredAt = &t
	}
	return &u, nil
}

// Find returns the redemption row for an identity, or nil when none exists.
func (r *CouponUsageRepo) Find(ctx context.Context, userID uint64, code string, cctx model.CouponContext) (*model.CouponUsage, error) {
	return findUsage(ctx, r.db, userID, code, cctx)
}

// FindTx is Find on tx.
func (r *CouponUsageRepo) FindTx(ctx context.Context, tx *sql.Tx, userID uint64, code string, cctx model.CouponContext) (*model.CouponUsage, error) {
	return findUsage(ctx, tx, userID, code, cctx)
}

func findUsage(ctx context.Context, q queryer, userID uint64, code string, cctx model.CouponContext) (*model.CouponUsage, error) {
	return scanCouponUsage(q.QueryRowContext(ctx,
		`SELECT `+couponUsageColumns+` FROM coupon_usages WHERE user_id = ? AND coupon_code = ? AND context = ?`,
		userID, code, string(cctx),
	))
}

// FindUsedByLinkTx returns the USED redemption attached to a booking or a
// credit purchase, or nil.
func (r *CouponUsageRepo) FindUsedByLinkTx(ctx context.Context, tx *sql.Tx, link coupon.Link) (*model.CouponUsage, error) {
	col, id := "booking_id", link.BookingID
	if id == nil {
		col, id = "credit_id", link.CreditID
	}
	if id == nil {
		return nil, nil
	}
	return scanCouponUsage(tx.QueryRowContext(ctx,
		`SELECT `+couponUsageColumns+` FROM coupon_usages WHERE `+col+` = ? AND status = 'USED' LIMIT 1`,
		*id,
	))
}

// ClaimRestoredTx turns a RESTORED row back into USED for a new consumer.
// It reports false when there is no RESTORED row for the identity.
func (r *CouponUsageRepo) ClaimRestoredTx(ctx context.Context, tx *sql.Tx, userID uint64, code string, cctx model.CouponContext, link coupon.Link) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE coupon_usages
		 SET status = 'USED', booking_id = ?, credit_id = ?, used_at = UTC_TIMESTAMP(), restored_at = NULL
		 WHERE user_id = ? AND coupon_code = ? AND context = ? AND status = 'RESTORED'`,
		nullUint64(link.BookingID), nullUint64(link.CreditID), userID, code, string(cctx),
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// InsertTx creates the first redemption of an identity.  A concurrent
// first redemption makes this fail with a duplicate key error, which is
// returned unchanged.
func (r *CouponUsageRepo) InsertTx(ctx context.Context, tx *sql.Tx, userID uint64, code string, cctx model.CouponContext, link coupon.Link) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO coupon_usages (user_id, coupon_code, context, status, booking_id, credit_id, used_at)
		 VALUES (?, ?, ?, 'USED', ?, ?, UTC_TIMESTAMP())`,
		userID, code, string(cctx), nullUint64(link.BookingID), nullUint64(link.CreditID),
	)
	return err
}

// RestoreTx releases a USED redemption.
func (r *CouponUsageRepo) RestoreTx(ctx context.Context, tx *sql.Tx, usageID uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE coupon_usages SET status = 'RESTORED', restored_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = 'USED'`,
		usageID,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}
