package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/room-reservation/internal/model"
)

// CreditRepo persists credit grants.  remaining_cents is only ever
// lowered, and only through ConsumeTx or VoidPendingTx, both conditional.
type CreditRepo struct {
	db *sql.DB
}

// NewCreditRepo returns a CreditRepo bound to db.
func NewCreditRepo(db *sql.DB) *CreditRepo { return &CreditRepo{db: db} }

const creditSelect = `SELECT c.id, c.user_id, c.room_id, r.tier, c.usage_type, c.kind,
	c.original_cents, c.remaining_cents, c.price_cents, c.coupon_code, c.status, c.expires_at, c.created_at
	FROM credits c LEFT JOIN rooms r ON r.id = c.room_id`

func scanCredit(s scanner) (*model.Credit, error) {
	var (
		c       model.Credit
		roomID  sql.NullInt64
		tier    sql.NullInt64
		usage   sql.NullString
		coupon  sql.NullString
		expires sql.NullTime
	)
	err := s.Scan(&c.ID, &c.UserID, &roomID, &tier, &usage, &c.Kind,
		&c.OriginalCents, &c.RemainingCents, &c.PriceCents, &coupon, &c.Status, &expires, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if roomID.Valid {
		id := uint64(roomID.Int64)
		c.RoomID = &id
	}
	if tier.Valid {
		t := int(tier.Int64)
		c.RoomTier = &t
	}
	if usage.Valid {
		u := model.UsageType(usage.String)
		c.UsageType = &u
	}
	if coupon.Valid {
		c.CouponCode = &coupon.String
	}
	if expires.Valid {
		t := expires.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

// ListSpendable returns the CONFIRMED, non-empty, unexpired grants of a
// user, soonest expiry first and never-expiring last.
func (r *CreditRepo) ListSpendable(ctx context.Context, userID uint64, now time.Time) ([]model.Credit, error) {
	return listSpendable(ctx, r.db, userID, now)
}

// ListSpendableTx is ListSpendable on tx.
func (r *CreditRepo) ListSpendableTx(ctx context.Context, tx *sql.Tx, userID uint64, now time.Time) ([]model.Credit, error) {
	return listSpendable(ctx, tx, userID, now)
}

func listSpendable(ctx context.Context, q queryer, userID uint64, now time.Time) ([]model.Credit, error) {
	rows, err := q.QueryContext(ctx, creditSelect+`
		WHERE c.user_id = ? AND c.status = 'CONFIRMED' AND c.remaining_cents > 0
		  AND (c.expires_at IS NULL OR c.expires_at > ?)
		ORDER BY c.expires_at IS NULL, c.expires_at, c.created_at, c.id`,
		userID, now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListByUser returns every grant of a user, newest first.
func (r *CreditRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Credit, error) {
	rows, err := r.db.QueryContext(ctx, creditSelect+` WHERE c.user_id = ? ORDER BY c.created_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetTx loads one grant or returns ErrNotFound.
func (r *CreditRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Credit, error) {
	c, err := scanCredit(tx.QueryRowContext(ctx, creditSelect+` WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ConsumeTx takes amount from a CONFIRMED grant if it still holds at least
// that much.  It reports false when the predicate no longer holds, which
// means another transaction spent the balance first.  A grant drained to
// zero is marked USED in the same statement.
func (r *CreditRepo) ConsumeTx(ctx context.Context, tx *sql.Tx, creditID uint64, amount int64) (bool, error) {
	// MySQL applies SET assignments left to right, so the status test sees
	// the decremented balance.
	res, err := tx.ExecContext(ctx,
		`UPDATE credits
		 SET remaining_cents = remaining_cents - ?,
		     status = IF(remaining_cents = 0, 'USED', status)
		 WHERE id = ? AND status = 'CONFIRMED' AND remaining_cents >= ?`,
		amount, creditID, amount,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// InsertTx stores a new grant and sets c.ID.
func (r *CreditRepo) InsertTx(ctx context.Context, tx *sql.Tx, c *model.Credit) error {
	var usage sql.NullString
	if c.UsageType != nil {
		usage = sql.NullString{String: string(*c.UsageType), Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO credits (user_id, room_id, usage_type, kind, original_cents, remaining_cents,
			price_cents, coupon_code, status, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, nullUint64(c.RoomID), usage, string(c.Kind), c.OriginalCents, c.RemainingCents,
		c.PriceCents, nullString(c.CouponCode), string(c.Status), nullTime(c.ExpiresAt),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

// ConfirmTx moves a PENDING grant owned by userID to CONFIRMED.
func (r *CreditRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, id, userID uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE credits SET status = 'CONFIRMED' WHERE id = ? AND user_id = ? AND status = 'PENDING'`,
		id, userID,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// VoidPendingTx closes an unpaid PENDING grant owned by userID: status
// becomes USED and nothing remains.
func (r *CreditRepo) VoidPendingTx(ctx context.Context, tx *sql.Tx, id, userID uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE credits SET status = 'USED', remaining_cents = 0
		 WHERE id = ? AND user_id = ? AND status = 'PENDING'`,
		id, userID,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}
