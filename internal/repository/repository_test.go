package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/room-reservation/internal/coupon"
	"github.com/iliyamo/room-reservation/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func beginTx(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock) *sql.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	return tx
}

func TestIsDuplicateKey(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.True(t, IsDuplicateKey(dup))
	assert.True(t, IsDuplicateKey(fmt.Errorf("record coupon: %w", dup)))
	assert.False(t, IsDuplicateKey(&mysql.MySQLError{Number: 1213}))
	assert.False(t, IsDuplicateKey(errors.New("1062")))
}

func TestRoomGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT .* FROM rooms WHERE id = \\?").WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewRoomRepo(db).GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookingInsertTxIsConditional(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	repo := NewBookingRepo(db)
	start := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)
	b := &model.Booking{
		UserID: 1, RoomID: 2, Product: model.ProductHourly, StartAt: start, EndAt: start.Add(time.Hour),
		Status: model.BookingPending, GrossCents: 5000, NetCents: 5000, CashCents: 5000,
	}

	mock.ExpectExec("INSERT INTO bookings .* WHERE NOT EXISTS").
		WithArgs(
			uint64(1), uint64(2), "HOURLY", start, start.Add(time.Hour), "PENDING",
			int64(5000), int64(0), int64(5000), int64(5000), int64(0),
			nil, nil, nil, nil,
			uint64(2), start.Add(time.Hour), int64(900), start,
		).
		WillReturnResult(sqlmock.NewResult(77, 1))
	require.NoError(t, repo.InsertTx(context.Background(), tx, b, 15*time.Minute))
	assert.Equal(t, uint64(77), b.ID)

	mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.InsertTx(context.Background(), tx, b, 0)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBookingStatusTransitions(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	repo := NewBookingRepo(db)
	paidAt := time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE bookings SET status = 'CONFIRMED'.*WHERE id = \\? AND status = 'PENDING'").
		WithArgs("PIX", "pix-123", paidAt, uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.ConfirmPaymentTx(context.Background(), tx, 5, model.PaymentPix, "pix-123", paidAt)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE bookings SET status = 'CANCELLED'").
		WithArgs(uint64(5), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.CancelTx(context.Background(), tx, 5, 1)
	require.NoError(t, err)
	assert.False(t, ok, "already cancelled")
}

func TestBookingGetScansNullableColumns(t *testing.T) {
	db, mock := newMock(t)
	start := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)
	paid := start.Add(-time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "room_id", "product_type", "start_at", "end_at", "status",
		"gross_cents", "discount_cents", "net_cents", "cash_cents", "credits_cents",
		"coupon_code", "payment_method", "payment_ref", "paid_at", "created_at", "updated_at",
	}).AddRow(3, 1, 2, "SHIFT", start, start.Add(4*time.Hour), "CONFIRMED",
		18000, 1800, 16200, 6200, 10000, "BEMVINDO10", "CARD", "ch_1", paid, paid, paid)
	mock.ExpectQuery("SELECT .* FROM bookings WHERE id = \\?").WithArgs(uint64(3)).WillReturnRows(rows)

	b, err := NewBookingRepo(db).GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, model.ProductShift, b.Product)
	assert.Equal(t, b.GrossCents, b.NetCents+b.DiscountCents)
	require.NotNil(t, b.CouponCode)
	assert.Equal(t, "BEMVINDO10", *b.CouponCode)
	require.NotNil(t, b.PaymentMethod)
	assert.Equal(t, model.PaymentCard, *b.PaymentMethod)
	assert.True(t, b.WasPaid())
}

func TestAddConsumptionsTxBatches(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectExec("INSERT INTO booking_credit_consumptions \\(booking_id, credit_id, amount_cents\\) VALUES \\(\\?, \\?, \\?\\),\\(\\?, \\?, \\?\\)").
		WithArgs(uint64(7), uint64(1), int64(3000), uint64(7), uint64(2), int64(3000)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	err := NewBookingRepo(db).AddConsumptionsTx(context.Background(), tx, []model.CreditConsumption{
		{BookingID: 7, CreditID: 1, AmountCents: 3000},
		{BookingID: 7, CreditID: 2, AmountCents: 3000},
	})
	require.NoError(t, err)
	require.NoError(t, NewBookingRepo(db).AddConsumptionsTx(context.Background(), tx, nil))
}

func TestCreditConsumeTxReportsLostRace(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	repo := NewCreditRepo(db)

	q := "UPDATE credits\\s+SET remaining_cents = remaining_cents - \\?.*WHERE id = \\? AND status = 'CONFIRMED' AND remaining_cents >= \\?"
	mock.ExpectExec(q).WithArgs(int64(3000), uint64(1), int64(3000)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(3000), uint64(1), int64(3000)).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.ConsumeTx(context.Background(), tx, 1, 3000)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ConsumeTx(context.Background(), tx, 1, 3000)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreditListSpendable(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	exp := now.AddDate(0, 0, 10)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "room_id", "tier", "usage_type", "kind",
		"original_cents", "remaining_cents", "price_cents", "coupon_code", "status", "expires_at", "created_at",
	}).
		AddRow(1, 4, 2, 2, "HOURLY", "PURCHASE", 5000, 3000, 4500, "CREDITO15", "CONFIRMED", exp, now).
		AddRow(2, 4, nil, nil, nil, "MANUAL", 4000, 4000, 0, nil, "CONFIRMED", nil, now)
	mock.ExpectQuery("FROM credits c LEFT JOIN rooms r ON r.id = c.room_id\\s+WHERE c.user_id = \\? AND c.status = 'CONFIRMED'").
		WithArgs(uint64(4), now).WillReturnRows(rows)

	got, err := NewCreditRepo(db).ListSpendable(context.Background(), 4, now)
	require.NoError(t, err)
	require.Len(t, got, 2)

	scoped := got[0]
	require.NotNil(t, scoped.RoomID)
	require.NotNil(t, scoped.RoomTier)
	require.NotNil(t, scoped.UsageType)
	assert.Equal(t, 2, *scoped.RoomTier)
	assert.Equal(t, model.UsageHourly, *scoped.UsageType)
	assert.Equal(t, exp, *scoped.ExpiresAt)

	legacy := got[1]
	assert.Nil(t, legacy.RoomID)
	assert.Nil(t, legacy.UsageType)
	assert.Nil(t, legacy.ExpiresAt)
	assert.Equal(t, model.CreditManual, legacy.Kind)
}

func TestCreditInsertAndPendingTransitions(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	repo := NewCreditRepo(db)
	usage := model.UsageShift
	c := &model.Credit{
		UserID: 4, UsageType: &usage, Kind: model.CreditPurchase,
		OriginalCents: 18000, RemainingCents: 18000, PriceCents: 16200, Status: model.CreditPending,
	}

	mock.ExpectExec("INSERT INTO credits").
		WithArgs(uint64(4), nil, "SHIFT", "PURCHASE", int64(18000), int64(18000), int64(16200), nil, "PENDING", nil).
		WillReturnResult(sqlmock.NewResult(12, 1))
	require.NoError(t, repo.InsertTx(context.Background(), tx, c))
	assert.Equal(t, uint64(12), c.ID)

	mock.ExpectExec("UPDATE credits SET status = 'CONFIRMED' WHERE id = \\? AND user_id = \\? AND status = 'PENDING'").
		WithArgs(uint64(12), uint64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.ConfirmTx(context.Background(), tx, 12, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE credits SET status = 'USED', remaining_cents = 0").
		WithArgs(uint64(12), uint64(4)).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.VoidPendingTx(context.Background(), tx, 12, 4)
	require.NoError(t, err)
	assert.False(t, ok, "already confirmed")
}

func TestCouponUsageFindMissingIsNil(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT .* FROM coupon_usages WHERE user_id = \\? AND coupon_code = \\? AND context = \\?").
		WithArgs(uint64(1), "BEMVINDO10", "BOOKING").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	u, err := NewCouponUsageRepo(db).Find(context.Background(), 1, "BEMVINDO10", model.CouponContextBooking)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestCouponUsageClaimThenInsertPropagatesDuplicate(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	repo := NewCouponUsageRepo(db)
	link := coupon.BookingLink(40)

	mock.ExpectExec("UPDATE coupon_usages\\s+SET status = 'USED'.*status = 'RESTORED'").
		WithArgs(uint64(40), nil, uint64(1), "BEMVINDO10", "BOOKING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err := repo.ClaimRestoredTx(context.Background(), tx, 1, "BEMVINDO10", model.CouponContextBooking, link)
	require.NoError(t, err)
	assert.False(t, ok)

	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'uq_coupon_usage'"}
	mock.ExpectExec("INSERT INTO coupon_usages").
		WithArgs(uint64(1), "BEMVINDO10", "BOOKING", uint64(40), nil).
		WillReturnError(dup)
	err = repo.InsertTx(context.Background(), tx, 1, "BEMVINDO10", model.CouponContextBooking, link)
	assert.True(t, IsDuplicateKey(err))
}

func TestCouponUsageRestoreByLink(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	repo := NewCouponUsageRepo(db)
	used := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .* FROM coupon_usages WHERE credit_id = \\? AND status = 'USED'").
		WithArgs(uint64(12)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "coupon_code", "context", "status", "booking_id", "credit_id", "used_at", "restored_at",
		}).AddRow(3, 1, "CREDITO15", "CREDIT_PURCHASE", "USED", nil, 12, used, nil))
	u, err := repo.FindUsedByLinkTx(context.Background(), tx, coupon.CreditLink(12))
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, model.CouponContextCreditPurchase, u.Context)
	assert.Nil(t, u.BookingID)

	mock.ExpectExec("UPDATE coupon_usages SET status = 'RESTORED'.*WHERE id = \\? AND status = 'USED'").
		WithArgs(uint64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.RestoreTx(context.Background(), tx, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	none, err := repo.FindUsedByLinkTx(context.Background(), tx, coupon.Link{})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRoomList(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .* FROM rooms ORDER BY tier, name").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "tier", "hourly_price_cents", "shift_price_cents", "day_price_cents", "created_at"}).
			AddRow(1, "Sala 1", 1, 5000, 18000, 32000, now).
			AddRow(2, "Sala 2", 2, 8000, 28000, 50000, now))

	rooms, err := NewRoomRepo(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, 2, rooms[1].Tier)
	assert.Equal(t, int64(28000), rooms[1].ShiftPriceCents)
}

func TestBookingListByUserClampsLimit(t *testing.T) {
	db, mock := newMock(t)
	start := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .* FROM bookings WHERE user_id = \\? ORDER BY start_at DESC LIMIT \\?").
		WithArgs(uint64(7), 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "room_id", "product_type", "start_at", "end_at", "status",
			"gross_cents", "discount_cents", "net_cents", "cash_cents", "credits_cents",
			"coupon_code", "payment_method", "payment_ref", "paid_at", "created_at", "updated_at",
		}).AddRow(4, 7, 1, "HOURLY", start, start.Add(time.Hour), "PENDING",
			5000, 0, 5000, 5000, 0, nil, nil, nil, nil, start, start))

	items, err := NewBookingRepo(db).ListByUser(context.Background(), 7, 1000)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].CouponCode)
	assert.False(t, items[0].WasPaid())
}

func TestCreditListByUser(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .* FROM credits c LEFT JOIN rooms r .* WHERE c.user_id = \\?").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "room_id", "tier", "usage_type", "kind",
			"original_cents", "remaining_cents", "price_cents", "coupon_code", "status", "expires_at", "created_at",
		}).AddRow(1, 7, 2, 2, "SHIFT", "PURCHASE", 20000, 20000, 17000, "CREDITO15", "PENDING", now.Add(180*24*time.Hour), now).
			AddRow(2, 7, nil, nil, nil, "MANUAL", 3000, 1000, 0, nil, "CONFIRMED", nil, now))

	credits, err := NewCreditRepo(db).ListByUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, credits, 2)
	require.NotNil(t, credits[0].RoomTier)
	assert.Equal(t, 2, *credits[0].RoomTier)
	assert.Nil(t, credits[1].UsageType, "legacy grant")
	assert.Nil(t, credits[1].ExpiresAt)
}
