package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/room-reservation/internal/model"
)

// BookingRepo persists bookings and the credit consumptions behind them.
// All timestamps are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, room_id, product_type, start_at, end_at, status,
	gross_cents, discount_cents, net_cents, cash_cents, credits_cents,
	coupon_code, payment_method, payment_ref, paid_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(s scanner) (*model.Booking, error) {
	var (
		b      model.Booking
		coupon sql.NullString
		method sql.NullString
		ref    sql.NullString
		paidAt sql.NullTime
	)
	err := s.Scan(
		&b.ID, &b.UserID, &b.RoomID, &b.Product, &b.StartAt, &b.EndAt, &b.Status,
		&b.GrossCents, &b.DiscountCents, &b.NetCents, &b.CashCents, &b.CreditsCents,
		&coupon, &method, &ref, &paidAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if coupon.Valid {
		b.CouponCode = &coupon.String
	}
	if method.Valid {
		m := model.PaymentMethod(method.String)
		b.PaymentMethod = &m
	}
	if ref.Valid {
		b.PaymentRef = &ref.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		b.PaidAt = &t
	}
	return &b, nil
}

// ListActiveInRange returns PENDING and CONFIRMED bookings of a room that
// start before `to` and end after `from`.
func (r *BookingRepo) ListActiveInRange(ctx context.Context, roomID uint64, from, to time.Time) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE room_id = ? AND status IN ('PENDING','CONFIRMED') AND start_at < ? AND end_at > ?
		 ORDER BY start_at`,
		roomID, to.UTC(), from.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// InsertTx stores b only if no active booking of the same room overlaps
// [b.StartAt, b.EndAt) once each existing end is extended by buffer.  The
// overlap check and the insert are one statement.  ErrConflict means the
// slot is taken.  On success b.ID is set.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking, buffer time.Duration) error {
	var method sql.NullString
	if b.PaymentMethod != nil {
		method = sql.NullString{String: string(*b.PaymentMethod), Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (user_id, room_id, product_type, start_at, end_at, status,
			gross_cents, discount_cents, net_cents, cash_cents, credits_cents,
			coupon_code, payment_method, payment_ref, paid_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ? FROM DUAL
		 WHERE NOT EXISTS (
			SELECT 1 FROM bookings x
			WHERE x.room_id = ? AND x.status IN ('PENDING','CONFIRMED')
			  AND x.start_at < ? AND DATE_ADD(x.end_at, INTERVAL ? SECOND) > ?
		 )`,
		b.UserID, b.RoomID, string(b.Product), b.StartAt.UTC(), b.EndAt.UTC(), string(b.Status),
		b.GrossCents, b.DiscountCents, b.NetCents, b.CashCents, b.CreditsCents,
		nullString(b.CouponCode), method, nullString(b.PaymentRef), nullTime(b.PaidAt),
		b.RoomID, b.EndAt.UTC(), int64(buffer/time.Second), b.StartAt.UTC(),
	)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// GetByID loads a booking or returns ErrNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return getBooking(ctx, r.db, id)
}

// GetTx is GetByID on tx.
func (r *BookingRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	return getBooking(ctx, tx, id)
}

func getBooking(ctx context.Context, q queryer, id uint64) (*model.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.Booking, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY start_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ConfirmPaymentTx moves a PENDING booking to CONFIRMED and stamps the
// payment.  It reports false when the booking is no longer PENDING.
func (r *BookingRepo) ConfirmPaymentTx(ctx context.Context, tx *sql.Tx, id uint64, method model.PaymentMethod, ref string, paidAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = 'CONFIRMED', payment_method = ?, payment_ref = ?, paid_at = ?
		 WHERE id = ? AND status = 'PENDING'`,
		string(method), ref, paidAt.UTC(), id,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// CancelTx moves a PENDING or CONFIRMED booking owned by userID to
// CANCELLED.  It reports false when the booking is not active any more.
func (r *BookingRepo) CancelTx(ctx context.Context, tx *sql.Tx, id, userID uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = 'CANCELLED'
		 WHERE id = ? AND user_id = ? AND status IN ('PENDING','CONFIRMED')`,
		id, userID,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// AddConsumptionsTx records which credits paid for a booking.
func (r *BookingRepo) AddConsumptionsTx(ctx context.Context, tx *sql.Tx, items []model.CreditConsumption) error {
	if len(items) == 0 {
		return nil
	}
	query := `INSERT INTO booking_credit_consumptions (booking_id, credit_id, amount_cents) VALUES `
	args := make([]any, 0, len(items)*3)
	for i, it := range items {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, it.BookingID, it.CreditID, it.AmountCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ListConsumptionsTx returns the credit consumptions of a booking.
func (r *BookingRepo) ListConsumptionsTx(ctx context.Context, tx *sql.Tx, bookingID uint64) ([]model.CreditConsumption, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT booking_id, credit_id, amount_cents FROM booking_credit_consumptions
		 WHERE booking_id = ? ORDER BY credit_id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CreditConsumption
	for rows.Next() {
		var c model.CreditConsumption
		if err := rows.Scan(&c.BookingID, &c.CreditID, &c.AmountCents); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
