package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/room-reservation/internal/audit"
	"github.com/iliyamo/room-reservation/internal/coupon"
	"github.com/iliyamo/room-reservation/internal/credit"
	"github.com/iliyamo/room-reservation/internal/model"
	"github.com/iliyamo/room-reservation/internal/repository"
)

// CreateRequest asks for one room over [Start, End).
type CreateRequest struct {
	UserID        uint64
	RoomID        uint64
	Product       model.ProductType
	Start         time.Time
	End           time.Time
	UseCredits    bool                // spend as much eligible credit as covers the price
	CouponCode    string              // optional; BOOKING context
	RequireCoupon bool                // fail instead of ignoring the coupon when no cash is due
	PaymentMethod model.PaymentMethod // optional intended cash method
}

// Quote is the priced breakdown of a request.  Gross = Net + Discount and
// Net = Cash + Credits.
type Quote struct {
	GrossCents    int64  `json:"gross_cents"`
	CreditsCents  int64  `json:"credits_cents"`
	DiscountCents int64  `json:"discount_cents"`
	CashCents     int64  `json:"cash_cents"`
	NetCents      int64  `json:"net_cents"`
	CouponCode    string `json:"coupon_code,omitempty"`
}

// CreateResult is a committed booking.
type CreateResult struct {
	Booking    *model.Booking       `json:"booking"`
	Allocation *credit.Allocation   `json:"allocation"`
	Coupon     *coupon.RecordResult `json:"coupon,omitempty"`
}

// plan is everything decided before the transaction opens.
type plan struct {
	room  *model.Room
	quote Quote
	scope credit.Scope
}

// Preview runs every read-only check of Create and prices the request.
// Nothing is written and nothing is reserved.
func (s *Service) Preview(ctx context.Context, req CreateRequest) (Quote, error) {
	p, err := s.plan(ctx, req)
	if err != nil {
		return Quote{}, err
	}
	return p.quote, nil
}

func (s *Service) plan(ctx context.Context, req CreateRequest) (*plan, error) {
	if err := checkShape(s.Calendar, req.Product, req.Start, req.End); err != nil {
		return nil, err
	}
	if req.PaymentMethod != "" && !req.PaymentMethod.Valid() {
		return nil, fail(CodeInvalidPayment, "%q", req.PaymentMethod)
	}
	room, err := s.Rooms.GetByID(ctx, req.RoomID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fail(CodeRoomNotFound, "room %d", req.RoomID)
	}
	if err != nil {
		return nil, err
	}

	free, err := s.Checker.IsAvailable(ctx, room.ID, req.Start, req.End, nil)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, ErrSlotUnavailable
	}
	if d := s.Guard.ShouldBlockHourlyPurchase(req.Start, req.Product); d.Blocked {
		return nil, fail(d.Code, "hourly weekdays open %d days ahead", d.Days)
	}

	p := &plan{room: room, scope: credit.Scope{RoomID: room.ID, Tier: room.Tier}}
	q := &p.quote
	q.GrossCents = grossPrice(room, req.Product, req.Start, req.End)

	if req.UseCredits && q.GrossCents > 0 {
		balance, err := s.Allocator.Balance(ctx, req.UserID, p.scope, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		q.CreditsCents = min(balance, q.GrossCents)
		if q.CreditsCents > 0 {
			if _, err := s.Allocator.PreCheck(ctx, p.creditRequest(req)); err != nil {
				return nil, err
			}
		}
	}
	q.CashCents = q.GrossCents - q.CreditsCents

	use, err := coupon.Gate(q.CashCents, req.CouponCode, req.RequireCoupon)
	if err != nil {
		return nil, err
	}
	if use {
		res, err := s.Coupons.Check(ctx, req.UserID, req.CouponCode, model.CouponContextBooking)
		if err != nil {
			return nil, err
		}
		if !res.CanUse {
			return nil, &coupon.Error{Code: res.Code}
		}
		cq := s.Coupons.Quote(q.CashCents, *res.Definition)
		q.DiscountCents = cq.Discount
		q.CashCents = cq.Final
		q.CouponCode = res.Definition.Code
	}
	q.NetCents = q.CashCents + q.CreditsCents
	return p, nil
}

func (p *plan) creditRequest(req CreateRequest) credit.Request {
	return credit.Request{
		UserID:     req.UserID,
		Scope:      p.scope,
		Required:   p.quote.CreditsCents,
		Start:      req.Start,
		End:        req.End,
		PreChecked: true,
	}
}

// Create books the room and settles what it can in one transaction:
// credits are spent, the booking row is inserted under the overlap guard,
// consumptions are recorded and the coupon is redeemed.  Any failure rolls
// everything back.  A booking fully covered by credit is CONFIRMED and
// paid; otherwise it waits PENDING for cash payment.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	p, err := s.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	q := p.quote
	now := s.Now().UTC()

	b := &model.Booking{
		UserID:        req.UserID,
		RoomID:        p.room.ID,
		Product:       req.Product,
		StartAt:       req.Start.UTC(),
		EndAt:         req.End.UTC(),
		Status:        model.BookingPending,
		GrossCents:    q.GrossCents,
		DiscountCents: q.DiscountCents,
		NetCents:      q.NetCents,
		CashCents:     q.CashCents,
		CreditsCents:  q.CreditsCents,
	}
	if q.CouponCode != "" {
		code := q.CouponCode
		b.CouponCode = &code
	}
	if req.PaymentMethod != "" {
		m := req.PaymentMethod
		b.PaymentMethod = &m
	}
	if q.CashCents == 0 {
		b.Status = model.BookingConfirmed
		b.PaidAt = &now
	}

	out := &CreateResult{Booking: b}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		alloc, err := s.Allocator.Allocate(ctx, tx, p.creditRequest(req))
		if err != nil {
			return err
		}
		out.Allocation = alloc

		if err := s.Bookings.InsertTx(ctx, tx, b, s.Checker.CleaningBuffer()); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrSlotUnavailable
			}
			return err
		}

		if len(alloc.Consumed) > 0 {
			items := make([]model.CreditConsumption, 0, len(alloc.Consumed))
			for _, c := range alloc.Consumed {
				items = append(items, model.CreditConsumption{BookingID: b.ID, CreditID: c.CreditID, AmountCents: c.Amount})
			}
			if err := s.Bookings.AddConsumptionsTx(ctx, tx, items); err != nil {
				return fmt.Errorf("record consumptions: %w", err)
			}
		}

		if q.CouponCode != "" {
			rec, err := s.Coupons.Record(ctx, tx, req.UserID, q.CouponCode, model.CouponContextBooking, coupon.BookingLink(b.ID))
			if repository.IsDuplicateKey(err) {
				return coupon.ErrAlreadyUsed
			}
			if err != nil {
				return fmt.Errorf("record coupon: %w", err)
			}
			out.Coupon = &rec
		}
		return nil
	})
	if err != nil {
		s.Logger.Info("booking refused",
			zap.Uint64("user_id", req.UserID),
			zap.Uint64("room_id", req.RoomID),
			zap.Error(err),
		)
		return nil, err
	}

	s.Logger.Info("booking created",
		zap.Uint64("booking_id", b.ID),
		zap.Uint64("user_id", b.UserID),
		zap.String("status", string(b.Status)),
		zap.Int64("cash_cents", b.CashCents),
		zap.Int64("credits_cents", b.CreditsCents),
	)
	s.Audit.Emit(ctx, audit.NewEvent(audit.BookingCreated, b.UserID).ForBooking(b.ID).WithAmount(b.NetCents))
	for _, c := range out.Allocation.Consumed {
		s.Audit.Emit(ctx, audit.NewEvent(audit.CreditsConsumed, b.UserID).ForBooking(b.ID).ForCredit(c.CreditID).WithAmount(c.Amount))
	}
	if out.Coupon != nil {
		s.Audit.Emit(ctx, audit.NewEvent(audit.CouponRedeemed, b.UserID).ForBooking(b.ID).WithCoupon(q.CouponCode).WithAmount(b.DiscountCents))
	}
	return out, nil
}
