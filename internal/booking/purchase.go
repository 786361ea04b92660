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

// PurchaseRequest buys AmountCents of credit.  RoomID scopes the grant;
// nil leaves it unscoped.
type PurchaseRequest struct {
	UserID      uint64
	UsageType   model.UsageType
	RoomID      *uint64
	AmountCents int64
	CouponCode  string // optional; CREDIT_PURCHASE context
}

// PurchaseResult is a pending grant and what the buyer owes for it.
type PurchaseResult struct {
	Credit        *model.Credit `json:"credit"`
	DiscountCents int64         `json:"discount_cents"`
	PriceCents    int64         `json:"price_cents"`
}

// PurchaseCredits creates a PENDING grant.  A coupon lowers the price, not
// the amount of credit granted.
func (s *Service) PurchaseCredits(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if !req.UsageType.Valid() {
		return nil, fail(CodeInvalidUsageType, "%q", req.UsageType)
	}
	if req.AmountCents <= 0 {
		return nil, fail(CodeInvalidAmount, "amount must be positive")
	}
	if req.RoomID != nil {
		_, err := s.Rooms.GetByID(ctx, *req.RoomID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(CodeRoomNotFound, "room %d", *req.RoomID)
		}
		if err != nil {
			return nil, err
		}
	}

	price := coupon.Quote{Gross: req.AmountCents, Final: req.AmountCents}
	var code string
	use, err := coupon.Gate(req.AmountCents, req.CouponCode, false)
	if err != nil {
		return nil, err
	}
	if use {
		res, err := s.Coupons.Check(ctx, req.UserID, req.CouponCode, model.CouponContextCreditPurchase)
		if err != nil {
			return nil, err
		}
		if !res.CanUse {
			return nil, &coupon.Error{Code: res.Code}
		}
		price = s.Coupons.Quote(req.AmountCents, *res.Definition)
		code = res.Definition.Code
	}

	usage := req.UsageType
	c := &model.Credit{
		UserID:         req.UserID,
		RoomID:         req.RoomID,
		UsageType:      &usage,
		Kind:           model.CreditPurchase,
		OriginalCents:  req.AmountCents,
		RemainingCents: req.AmountCents,
		PriceCents:     price.Final,
		Status:         model.CreditPending,
		ExpiresAt:      s.expiry(s.CreditValidity),
	}
	if code != "" {
		c.CouponCode = &code
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.Credits.InsertTx(ctx, tx, c); err != nil {
			return err
		}
		if code == "" {
			return nil
		}
		_, err := s.Coupons.Record(ctx, tx, req.UserID, code, model.CouponContextCreditPurchase, coupon.CreditLink(c.ID))
		if repository.IsDuplicateKey(err) {
			return coupon.ErrAlreadyUsed
		}
		if err != nil {
			return fmt.Errorf("record coupon: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("credit purchase started",
		zap.Uint64("credit_id", c.ID),
		zap.Uint64("user_id", c.UserID),
		zap.Int64("amount_cents", c.OriginalCents),
		zap.Int64("price_cents", c.PriceCents),
	)
	ev := audit.NewEvent(audit.CreditPurchased, c.UserID).ForCredit(c.ID).WithAmount(c.OriginalCents)
	if code != "" {
		ev = ev.WithCoupon(code)
	}
	s.Audit.Emit(ctx, ev)
	return &PurchaseResult{Credit: c, DiscountCents: price.Discount, PriceCents: price.Final}, nil
}

// ConfirmCreditPurchase makes a paid PENDING grant spendable.
func (s *Service) ConfirmCreditPurchase(ctx context.Context, creditID uint64) (*model.Credit, error) {
	var c *model.Credit
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = s.loadCredit(ctx, tx, creditID)
		if err != nil {
			return err
		}
		ok, err := s.Credits.ConfirmTx(ctx, tx, c.ID, c.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return fail(CodeInvalidState, "credit %d is %s", creditID, c.Status)
		}
		c.Status = model.CreditConfirmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("credit purchase confirmed", zap.Uint64("credit_id", c.ID))
	s.Audit.Emit(ctx, audit.NewEvent(audit.CreditPurchaseConfirmed, c.UserID).ForCredit(c.ID).WithAmount(c.OriginalCents))
	return c, nil
}

// CancelCreditPurchase voids an unpaid PENDING grant of userID and gives
// its coupon back.
func (s *Service) CancelCreditPurchase(ctx context.Context, creditID, userID uint64) (*model.Credit, error) {
	var c *model.Credit
	var restored bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = s.loadCredit(ctx, tx, creditID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return ErrCreditNotFound
		}
		ok, err := s.Credits.VoidPendingTx(ctx, tx, c.ID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fail(CodeInvalidState, "credit %d is %s", creditID, c.Status)
		}
		c.Status = model.CreditUsed
		c.RemainingCents = 0
		res, err := s.Coupons.RestoreCredit(ctx, tx, c.ID, false)
		if err != nil {
			return fmt.Errorf("restore coupon: %w", err)
		}
		restored = res.Restored
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("credit purchase cancelled", zap.Uint64("credit_id", c.ID), zap.Bool("coupon_restored", restored))
	s.Audit.Emit(ctx, audit.NewEvent(audit.CreditPurchaseCancelled, c.UserID).ForCredit(c.ID))
	if restored && c.CouponCode != nil {
		s.Audit.Emit(ctx, audit.NewEvent(audit.CouponRestored, c.UserID).ForCredit(c.ID).WithCoupon(*c.CouponCode))
	}
	return c, nil
}

// CreditBalance returns how much of userID's credit could pay for roomID
// over [start, end).
func (s *Service) CreditBalance(ctx context.Context, userID, roomID uint64, start, end time.Time) (int64, error) {
	room, err := s.Rooms.GetByID(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, fail(CodeRoomNotFound, "room %d", roomID)
	}
	if err != nil {
		return 0, err
	}
	return s.Allocator.Balance(ctx, userID, credit.Scope{RoomID: room.ID, Tier: room.Tier}, start, end)
}

func (s *Service) loadCredit(ctx context.Context, tx *sql.Tx, id uint64) (*model.Credit, error) {
	c, err := s.Credits.GetTx(ctx, tx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCreditNotFound
	}
	return c, err
}
