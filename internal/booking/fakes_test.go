package booking

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/room-reservation/internal/audit"
	"github.com/iliyamo/room-reservation/internal/coupon"
	"github.com/iliyamo/room-reservation/internal/model"
	"github.com/iliyamo/room-reservation/internal/repository"
)

type memRooms map[uint64]*model.Room

func (m memRooms) GetByID(_ context.Context, id uint64) (*model.Room, error) {
	if r, ok := m[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

// memBookings keeps the overlap guard and the conditional transitions of
// the SQL repository.
type memBookings struct {
	mu          sync.Mutex
	nextID      uint64
	rows        map[uint64]*model.Booking
	consumed    map[uint64][]model.CreditConsumption
	stealSlot   bool // InsertTx reports a lost race
	failConsume error
}

func newMemBookings() *memBookings {
	return &memBookings{rows: map[uint64]*model.Booking{}, consumed: map[uint64][]model.CreditConsumption{}}
}

func (m *memBookings) ListActiveInRange(_ context.Context, roomID uint64, from, to time.Time) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.rows {
		if b.RoomID == roomID && b.Status.Active() && b.StartAt.Before(to) && b.EndAt.After(from) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memBookings) InsertTx(_ context.Context, _ *sql.Tx, b *model.Booking, buffer time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stealSlot {
		return repository.ErrConflict
	}
	for _, x := range m.rows {
		if x.RoomID == b.RoomID && x.Status.Active() && x.StartAt.Before(b.EndAt) && x.EndAt.Add(buffer).After(b.StartAt) {
			return repository.ErrConflict
		}
	}
	m.nextID++
	b.ID = m.nextID
	cp := *b
	m.rows[b.ID] = &cp
	return nil
}

func (m *memBookings) GetTx(_ context.Context, _ *sql.Tx, id uint64) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBookings) ConfirmPaymentTx(_ context.Context, _ *sql.Tx, id uint64, method model.PaymentMethod, ref string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.Status != model.BookingPending {
		return false, nil
	}
	b.Status = model.BookingConfirmed
	b.PaymentMethod, b.PaymentRef, b.PaidAt = &method, &ref, &paidAt
	return true, nil
}

func (m *memBookings) CancelTx(_ context.Context, _ *sql.Tx, id, userID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.UserID != userID || !b.Status.Active() {
		return false, nil
	}
	b.Status = model.BookingCancelled
	return true, nil
}

func (m *memBookings) AddConsumptionsTx(_ context.Context, _ *sql.Tx, items []model.CreditConsumption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failConsume != nil {
		return m.failConsume
	}
	for _, it := range items {
		m.consumed[it.BookingID] = append(m.consumed[it.BookingID], it)
	}
	return nil
}

func (m *memBookings) ListConsumptionsTx(_ context.Context, _ *sql.Tx, bookingID uint64) ([]model.CreditConsumption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CreditConsumption(nil), m.consumed[bookingID]...), nil
}

func (m *memBookings) get(id uint64) model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

// memCredits serves both the allocator and the purchase flows.
type memCredits struct {
	mu      sync.Mutex
	nextID  uint64
	credits map[uint64]*model.Credit
}

func newMemCredits(cs ...model.Credit) *memCredits {
	m := &memCredits{credits: map[uint64]*model.Credit{}}
	for i := range cs {
		c := cs[i]
		m.credits[c.ID] = &c
		if c.ID > m.nextID {
			m.nextID = c.ID
		}
	}
	return m
}

func (m *memCredits) ListSpendable(_ context.Context, userID uint64, now time.Time) ([]model.Credit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Credit
	for _, c := range m.credits {
		if c.UserID == userID && c.Status == model.CreditConfirmed && c.RemainingCents > 0 && !c.ExpiredAt(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memCredits) ListSpendableTx(ctx context.Context, _ *sql.Tx, userID uint64, now time.Time) ([]model.Credit, error) {
	return m.ListSpendable(ctx, userID, now)
}

func (m *memCredits) ConsumeTx(_ context.Context, _ *sql.Tx, id uint64, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[id]
	if !ok || c.Status != model.CreditConfirmed || c.RemainingCents < amount {
		return false, nil
	}
	c.RemainingCents -= amount
	if c.RemainingCents == 0 {
		c.Status = model.CreditUsed
	}
	return true, nil
}

func (m *memCredits) InsertTx(_ context.Context, _ *sql.Tx, c *model.Credit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.credits[c.ID] = &cp
	return nil
}

func (m *memCredits) GetTx(_ context.Context, _ *sql.Tx, id uint64) (*model.Credit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCredits) ConfirmTx(_ context.Context, _ *sql.Tx, id, userID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[id]
	if !ok || c.UserID != userID || c.Status != model.CreditPending {
		return false, nil
	}
	c.Status = model.CreditConfirmed
	return true, nil
}

func (m *memCredits) VoidPendingTx(_ context.Context, _ *sql.Tx, id, userID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[id]
	if !ok || c.UserID != userID || c.Status != model.CreditPending {
		return false, nil
	}
	c.Status, c.RemainingCents = model.CreditUsed, 0
	return true, nil
}

func (m *memCredits) get(id uint64) model.Credit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.credits[id]
}

type usageKey struct {
	user uint64
	code string
	ctx  model.CouponContext
}

// memUsages enforces the coupon_usages unique key and counts every call so
// tests can prove the coupon was never touched.
type memUsages struct {
	mu        sync.Mutex
	nextID    uint64
	rows      map[usageKey]*model.CouponUsage
	calls     int
	duplicate bool // InsertTx fails as if another request won the race
}

func newMemUsages() *memUsages { return &memUsages{rows: map[usageKey]*model.CouponUsage{}} }

func (s *memUsages) Find(_ context.Context, userID uint64, code string, cctx model.CouponContext) (*model.CouponUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if u, ok := s.rows[usageKey{userID, code, cctx}]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *memUsages) FindTx(ctx context.Context, _ *sql.Tx, userID uint64, code string, cctx model.CouponContext) (*model.CouponUsage, error) {
	return s.Find(ctx, userID, code, cctx)
}

func (s *memUsages) FindUsedByLinkTx(_ context.Context, _ *sql.Tx, link coupon.Link) (*model.CouponUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, u := range s.rows {
		if u.Status != model.CouponUsed {
			continue
		}
		if link.BookingID != nil && u.BookingID != nil && *u.BookingID == *link.BookingID ||
			link.CreditID != nil && u.CreditID != nil && *u.CreditID == *link.CreditID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memUsages) ClaimRestoredTx(_ context.Context, _ *sql.Tx, userID uint64, code string, cctx model.CouponContext, link coupon.Link) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	u, ok := s.rows[usageKey{userID, code, cctx}]
	if !ok || u.Status != model.CouponRestored {
		return false, nil
	}
	u.Status = model.CouponUsed
	u.BookingID, u.CreditID, u.RestoredAt = link.BookingID, link.CreditID, nil
	return true, nil
}

func (s *memUsages) InsertTx(_ context.Context, _ *sql.Tx, userID uint64, code string, cctx model.CouponContext, link coupon.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	k := usageKey{userID, code, cctx}
	if _, ok := s.rows[k]; ok || s.duplicate {
		return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'uq_coupon_usage'"}
	}
	s.nextID++
	s.rows[k] = &model.CouponUsage{
		ID: s.nextID, UserID: userID, Code: code, Context: cctx, Status: model.CouponUsed,
		BookingID: link.BookingID, CreditID: link.CreditID, UsedAt: testNow,
	}
	return nil
}

func (s *memUsages) RestoreTx(_ context.Context, _ *sql.Tx, usageID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, u := range s.rows {
		if u.ID == usageID && u.Status == model.CouponUsed {
			u.Status = model.CouponRestored
			at := testNow
			u.RestoredAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (s *memUsages) status(userID uint64, code string, cctx model.CouponContext) model.CouponUsageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.rows[usageKey{userID, code, cctx}]; ok {
		return u.Status
	}
	return ""
}

func (s *memUsages) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recorder collects audit events.
type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Emit(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
