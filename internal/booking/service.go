// Package booking orchestrates the ledger components into the customer
// flows: booking a room with cash, credits and coupons; paying and
// cancelling bookings; buying credit.  Every flow is one database
// transaction and leaves nothing behind when it fails.
package booking

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/room-reservation/internal/audit"
	"github.com/iliyamo/room-reservation/internal/availability"
	"github.com/iliyamo/room-reservation/internal/calendar"
	"github.com/iliyamo/room-reservation/internal/coupon"
	"github.com/iliyamo/room-reservation/internal/credit"
	"github.com/iliyamo/room-reservation/internal/model"
	"github.com/iliyamo/room-reservation/internal/shiftwindow"
)

// TxBeginner starts transactions; *sql.DB satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// RoomStore reads rooms.
type RoomStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Room, error)
}

// BookingStore persists bookings.  InsertTx must refuse overlapping active
// bookings with repository.ErrConflict.
type BookingStore interface {
	InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking, buffer time.Duration) error
	GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error)
	ConfirmPaymentTx(ctx context.Context, tx *sql.Tx, id uint64, method model.PaymentMethod, ref string, paidAt time.Time) (bool, error)
	CancelTx(ctx context.Context, tx *sql.Tx, id, userID uint64) (bool, error)
	AddConsumptionsTx(ctx context.Context, tx *sql.Tx, items []model.CreditConsumption) error
	ListConsumptionsTx(ctx context.Context, tx *sql.Tx, bookingID uint64) ([]model.CreditConsumption, error)
}

// CreditStore persists credit grants outside of allocation.
type CreditStore interface {
	InsertTx(ctx context.Context, tx *sql.Tx, c *model.Credit) error
	GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Credit, error)
	ConfirmTx(ctx context.Context, tx *sql.Tx, id, userID uint64) (bool, error)
	VoidPendingTx(ctx context.Context, tx *sql.Tx, id, userID uint64) (bool, error)
}

// Deps wires a Service.
type Deps struct {
	DB        TxBeginner
	Rooms     RoomStore
	Bookings  BookingStore
	Credits   CreditStore
	Checker   *availability.Checker
	Guard     *shiftwindow.Guard
	Allocator *credit.Allocator
	Coupons   *coupon.Manager
	Calendar  *calendar.Resolver
	Audit     audit.Sink
	Logger    *zap.Logger
	Now       func() time.Time

	CreditValidity time.Duration // lifetime of purchased credit; 0 never expires
	RefundValidity time.Duration // lifetime of refund grants; 0 never expires
}

// Service runs the booking and credit purchase flows.
type Service struct {
	Deps
}

// NewService fills defaults and returns a Service.
func NewService(d Deps) *Service {
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Calendar == nil {
		d.Calendar = calendar.MustResolver("")
	}
	return &Service{Deps: d}
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Service) expiry(validity time.Duration) *time.Time {
	if validity <= 0 {
		return nil
	}
	t := s.Now().Add(validity).UTC()
	return &t
}
