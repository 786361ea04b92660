package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/room-reservation/internal/model"
)

// RoomRepo reads the rooms table.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo returns a RoomRepo bound to db.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

const roomColumns = `id, name, tier, hourly_price_cents, shift_price_cents, day_price_cents, created_at`

// GetByID loads one room or returns ErrNotFound.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (*model.Room, error) {
	return getRoom(ctx, r.db, id)
}

// GetByIDTx is GetByID on tx.
func (r *RoomRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Room, error) {
	return getRoom(ctx, tx, id)
}

func getRoom(ctx context.Context, q queryer, id uint64) (*model.Room, error) {
	var rm model.Room
	err := q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id).Scan(
		&rm.ID, &rm.Name, &rm.Tier, &rm.HourlyPriceCents, &rm.ShiftPriceCents, &rm.DayPriceCents, &rm.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

// List returns all rooms ordered by tier then name.
func (r *RoomRepo) List(ctx context.Context) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY tier, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Room
	for rows.Next() {
		var rm model.Room
		if err := rows.Scan(&rm.ID, &rm.Name, &rm.Tier, &rm.HourlyPriceCents, &rm.ShiftPriceCents, &rm.DayPriceCents, &rm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}
