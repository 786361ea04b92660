package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/room-reservation/internal/audit"
	"github.com/iliyamo/room-reservation/internal/model"
	"github.com/iliyamo/room-reservation/internal/repository"
)

// ConfirmPayment records the cash payment of a PENDING booking.  The
// transition is conditional; a booking that moved on is INVALID_STATE.
func (s *Service) ConfirmPayment(ctx context.Context, bookingID uint64, method model.PaymentMethod, ref string) (*model.Booking, error) {
	if !method.Valid() {
		return nil, fail(CodeInvalidPayment, "%q", method)
	}
	var b *model.Booking
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		b, err = s.Bookings.GetTx(ctx, tx, bookingID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		paidAt := s.Now().UTC()
		ok, err := s.Bookings.ConfirmPaymentTx(ctx, tx, bookingID, method, ref, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			return fail(CodeInvalidState, "booking %d is %s", bookingID, b.Status)
		}
		b.Status = model.BookingConfirmed
		b.PaymentMethod = &method
		b.PaymentRef = &ref
		b.PaidAt = &paidAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("booking paid", zap.Uint64("booking_id", b.ID), zap.String("method", string(method)))
	s.Audit.Emit(ctx, audit.NewEvent(audit.BookingPaid, b.UserID).ForBooking(b.ID).WithAmount(b.CashCents))
	return b, nil
}

// CancelResult describes what a cancellation gave back.
type CancelResult struct {
	Booking        *model.Booking `json:"booking"`
	CouponRestored bool           `json:"coupon_restored"`
	Refunds        []model.Credit `json:"refunds"`
}

// Cancel cancels an active booking owned by userID.  Consumed credits come
// back as new REFUND grants with the scope of the grant they came from.
// The coupon is released only when the booking was never paid.
func (s *Service) Cancel(ctx context.Context, bookingID, userID uint64) (*CancelResult, error) {
	out := &CancelResult{Refunds: []model.Credit{}}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		b, err := s.Bookings.GetTx(ctx, tx, bookingID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && b.UserID != userID) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if !b.Status.Active() {
			return fail(CodeInvalidState, "booking %d is %s", bookingID, b.Status)
		}
		ok, err := s.Bookings.CancelTx(ctx, tx, bookingID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fail(CodeInvalidState, "booking %d changed concurrently", bookingID)
		}
		b.Status = model.BookingCancelled
		out.Booking = b

		restored, err := s.Coupons.Restore(ctx, tx, b.ID, b.WasPaid())
		if err != nil {
			return fmt.Errorf("restore coupon: %w", err)
		}
		out.CouponRestored = restored.Restored

		consumed, err := s.Bookings.ListConsumptionsTx(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		for _, c := range consumed {
			src, err := s.Credits.GetTx(ctx, tx, c.CreditID)
			if err != nil {
				return fmt.Errorf("load credit %d: %w", c.CreditID, err)
			}
			refund := model.Credit{
				UserID:         b.UserID,
				RoomID:         src.RoomID,
				UsageType:      src.UsageType,
				Kind:           model.CreditRefund,
				OriginalCents:  c.AmountCents,
				RemainingCents: c.AmountCents,
				Status:         model.CreditConfirmed,
				ExpiresAt:      s.expiry(s.RefundValidity),
			}
			if err := s.Credits.InsertTx(ctx, tx, &refund); err != nil {
				return fmt.Errorf("refund credit %d: %w", c.CreditID, err)
			}
			out.Refunds = append(out.Refunds, refund)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b := out.Booking
	s.Logger.Info("booking cancelled",
		zap.Uint64("booking_id", b.ID),
		zap.Bool("was_paid", b.WasPaid()),
		zap.Bool("coupon_restored", out.CouponRestored),
		zap.Int("refunds", len(out.Refunds)),
	)
	s.Audit.Emit(ctx, audit.NewEvent(audit.BookingCancelled, b.UserID).ForBooking(b.ID))
	for _, r := range out.Refunds {
		s.Audit.Emit(ctx, audit.NewEvent(audit.CreditsRefunded, b.UserID).ForBooking(b.ID).ForCredit(r.ID).WithAmount(r.OriginalCents))
	}
	if out.CouponRestored && b.CouponCode != nil {
		s.Audit.Emit(ctx, audit.NewEvent(audit.CouponRestored, b.UserID).ForBooking(b.ID).WithCoupon(*b.CouponCode))
	}
	return out, nil
}
