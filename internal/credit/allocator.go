// Package credit spends pre-paid credit grants.  Balances are reduced only
// through conditional decrements on the caller's transaction, so two
// requests racing for the same grant can never both spend it.
package credit

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/room-reservation/internal/model"
)

// Store is the persistence the allocator needs.  ListSpendable* return the
// user's CONFIRMED, unexpired grants with remaining > 0.  ConsumeTx
// subtracts amount from a grant only while remaining >= amount and reports
// whether a row was changed.
type Store interface {
	ListSpendable(ctx context.Context, userID uint64, now time.Time) ([]model.Credit, error)
	ListSpendableTx(ctx context.Context, tx *sql.Tx, userID uint64, now time.Time) ([]model.Credit, error)
	ConsumeTx(ctx context.Context, tx *sql.Tx, creditID uint64, amount int64) (bool, error)
}

// Scope is the room a booking is for.  A grant scoped to a room may be
// spent on that room or any room of an equal or lower tier.
type Scope struct {
	RoomID uint64
	Tier   int
}

// Request describes what has to be covered.
type Request struct {
	UserID   uint64
	Scope    Scope
	Required int64
	Start    time.Time
	End      time.Time
	// PreChecked is set when PreCheck already saw enough balance, which
	// turns a later shortfall into PARTIAL_CONSUMPTION.
	PreChecked bool
}

// Consumption is the amount spent from one grant.
type Consumption struct {
	CreditID uint64 `json:"credit_id"`
	Amount   int64  `json:"amount"`
}

// Allocation is the result of a successful Allocate.
type Allocation struct {
	Consumed      []Consumption `json:"consumed"`
	TotalConsumed int64         `json:"total_consumed"`
}

// Allocator covers amounts from a user's grants, soonest expiry first.
type Allocator struct {
	store     Store
	validator *UsageValidator
	now       func() time.Time
	logger    *zap.Logger
}

// NewAllocator builds an Allocator.  A nil now uses time.Now and a nil
// logger discards output.
func NewAllocator(store Store, validator *UsageValidator, now func() time.Time, logger *zap.Logger) *Allocator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{store: store, validator: validator, now: now, logger: logger}
}

// Balance returns the sum of visible remaining amounts the user could spend
// on the booking.  It reads outside any transaction.
func (a *Allocator) Balance(ctx context.Context, userID uint64, scope Scope, start, end time.Time) (int64, error) {
	credits, err := a.store.ListSpendable(ctx, userID, a.now())
	if err != nil {
		return 0, err
	}
	_, total := a.eligible(credits, scope, start, end)
	return total, nil
}

// PreCheck is the optimistic balance check run before opening a
// transaction.  Passing it guarantees nothing; Allocate re-validates.
func (a *Allocator) PreCheck(ctx context.Context, req Request) (int64, error) {
	available, err := a.Balance(ctx, req.UserID, req.Scope, req.Start, req.End)
	if err != nil {
		return 0, err
	}
	if available < req.Required {
		return available, insufficient(available, req.Required)
	}
	return available, nil
}

// Allocate spends req.Required from the user's eligible grants on tx.  Any
// returned error leaves decrements applied on tx; the caller must roll back.
func (a *Allocator) Allocate(ctx context.Context, tx *sql.Tx, req Request) (*Allocation, error) {
	alloc := &Allocation{Consumed: []Consumption{}}
	if req.Required <= 0 {
		return alloc, nil
	}
	credits, err := a.store.ListSpendableTx(ctx, tx, req.UserID, a.now())
	if err != nil {
		return nil, err
	}
	eligible, available := a.eligible(credits, req.Scope, req.Start, req.End)
	if available < req.Required {
		return nil, a.shortfall(req, available)
	}

	still := req.Required
	for _, c := range eligible {
		if still == 0 {
			break
		}
		take := c.RemainingCents
		if take > still {
			take = still
		}
		ok, err := a.store.ConsumeTx(ctx, tx, c.ID, take)
		if err != nil {
			return nil, err
		}
		if !ok {
			a.logger.Warn("credit consumed concurrently",
				zap.Uint64("user_id", req.UserID),
				zap.Uint64("credit_id", c.ID),
				zap.Int64("amount", take),
			)
			return nil, &Error{Code: CodeConsumedByAnother, CreditID: c.ID}
		}
		alloc.Consumed = append(alloc.Consumed, Consumption{CreditID: c.ID, Amount: take})
		alloc.TotalConsumed += take
		still -= take
	}
	if still > 0 {
		return nil, a.shortfall(req, alloc.TotalConsumed)
	}
	a.logger.Debug("credits allocated",
		zap.Uint64("user_id", req.UserID),
		zap.Int64("total", alloc.TotalConsumed),
		zap.Int("grants", len(alloc.Consumed)),
	)
	return alloc, nil
}

func (a *Allocator) shortfall(req Request, got int64) error {
	if req.PreChecked {
		return &Error{Code: CodePartialConsumption, Consumed: got, Expected: req.Required}
	}
	return insufficient(got, req.Required)
}

// eligible filters spendable grants for the booking and orders them by
// soonest expiry (never-expiring last), then creation time, then id.
func (a *Allocator) eligible(credits []model.Credit, scope Scope, start, end time.Time) ([]model.Credit, int64) {
	now := a.now()
	out := make([]model.Credit, 0, len(credits))
	var total int64
	for i := range credits {
		c := credits[i]
		if c.Status != model.CreditConfirmed || c.Exhausted() || c.ExpiredAt(now) {
			continue
		}
		if !inScope(&c, scope) {
			continue
		}
		if !a.validator.Validate(&c, start, end).Valid {
			continue
		}
		out = append(out, c)
		total += c.RemainingCents
	}
	sort.SliceStable(out, func(i, j int) bool { return before(&out[i], &out[j]) })
	return out, total
}

func inScope(c *model.Credit, scope Scope) bool {
	if c.RoomID == nil || *c.RoomID == scope.RoomID {
		return true
	}
	return c.RoomTier != nil && *c.RoomTier >= scope.Tier
}

func before(x, y *model.Credit) bool {
	switch {
	case x.ExpiresAt != nil && y.ExpiresAt == nil:
		return true
	case x.ExpiresAt == nil && y.ExpiresAt != nil:
		return false
	case x.ExpiresAt != nil && !x.ExpiresAt.Equal(*y.ExpiresAt):
		return x.ExpiresAt.Before(*y.ExpiresAt)
	}
	if !x.CreatedAt.Equal(y.CreatedAt) {
		return x.CreatedAt.Before(y.CreatedAt)
	}
	return x.ID < y.ID
}
