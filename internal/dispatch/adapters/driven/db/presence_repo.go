package db

import (
	"context"
	"time"

	"ride-dispatch/internal/dispatch/core/domain/model"

	"github.com/jackc/pgx/v5"
)

type PresenceRepo struct {
	db *DB
}

func NewPresenceRepo(db *DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

func (pr *PresenceRepo) UpsertLocation(ctx context.Context, driverId string, lat, lon float64) (time.Time, error) {
	q := `
	INSERT INTO driver_locations (driver_id, latitude, longitude, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (driver_id) DO UPDATE
		SET latitude = $2, longitude = $3, updated_at = NOW()
	RETURNING updated_at`

	var updatedAt time.Time
	err := pr.db.GetConn().QueryRow(ctx, q, driverId, lat, lon).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, err
	}
	return updatedAt, nil
}

// SetOnline upserts the status row. is_free is derived from the absence of an
// open booking so a driver reconnecting mid-trip does not become claimable.
func (pr *PresenceRepo) SetOnline(ctx context.Context, driverId string) (model.DriverStatus, error) {
	conn := pr.db.GetConn()
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.DriverStatus{}, err
	}
	defer tx.Rollback(ctx) // Safe rollback if not committed

	q1 := `
	SELECT EXISTS(
		SELECT 1 FROM bookings
		WHERE driver_id = $1 AND status IN ('ACCEPTED', 'ARRIVED', 'CHECKED_IN')
	)`

	var hasOpenBooking bool
	if err := tx.QueryRow(ctx, q1, driverId).Scan(&hasOpenBooking); err != nil {
		return model.DriverStatus{}, err
	}

	q2 := `
	INSERT INTO driver_status (driver_id, is_online, is_free, updated_at)
	VALUES ($1, true, $2, NOW())
	ON CONFLICT (driver_id) DO UPDATE
		SET is_online = true, is_free = $2, updated_at = NOW()
	RETURNING driver_id, is_online, is_free, updated_at`

	var s model.DriverStatus
	if err := tx.QueryRow(ctx, q2, driverId, !hasOpenBooking).Scan(&s.DriverId, &s.IsOnline, &s.IsFree, &s.UpdatedAt); err != nil {
		return model.DriverStatus{}, err
	}

	return s, tx.Commit(ctx)
}

func (pr *PresenceRepo) SetOffline(ctx context.Context, driverId string) (model.DriverStatus, error) {
	q := `
	INSERT INTO driver_status (driver_id, is_online, is_free, updated_at)
	VALUES ($1, false, false, NOW())
	ON CONFLICT (driver_id) DO UPDATE
		SET is_online = false, is_free = false, updated_at = NOW()
	RETURNING driver_id, is_online, is_free, updated_at`

	var s model.DriverStatus
	err := pr.db.GetConn().QueryRow(ctx, q, driverId).Scan(&s.DriverId, &s.IsOnline, &s.IsFree, &s.UpdatedAt)
	if err != nil {
		return model.DriverStatus{}, err
	}
	return s, nil
}

func (pr *PresenceRepo) SetFree(ctx context.Context, driverId string, free bool) error {
	q := `UPDATE driver_status SET is_free = $2, updated_at = NOW() WHERE driver_id = $1`
	_, err := pr.db.GetConn().Exec(ctx, q, driverId, free)
	return err
}

// TryClaim is the atomic read-modify-write on availability: the conditional
// update either wins the row or touches nothing.
func (pr *PresenceRepo) TryClaim(ctx context.Context, driverId string) (bool, error) {
	q := `
	UPDATE driver_status
	SET is_free = false, updated_at = NOW()
	WHERE driver_id = $1 AND is_online = true AND is_free = true`

	tag, err := pr.db.GetConn().Exec(ctx, q, driverId)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (pr *PresenceRepo) BulkSetAllOffline(ctx context.Context) (int64, error) {
	q := `UPDATE driver_status SET is_online = false, is_free = false, updated_at = NOW()`
	tag, err := pr.db.GetConn().Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const snapshotColumns = `
	SELECT DISTINCT ON (l.driver_id)
		l.driver_id, l.latitude, l.longitude,
		u.priority, u.star, u.gender, u.is_public_gender,
		s.is_online, s.is_free
	FROM driver_locations l
	JOIN driver_status s ON s.driver_id = l.driver_id
	JOIN users u ON u.id = l.driver_id
	WHERE s.is_online = true
		AND s.is_free = true
		AND u.active = true`

func (pr *PresenceRepo) Snapshots(ctx context.Context) ([]model.DriverSnapshot, error) {
	rows, err := pr.db.GetConn().Query(ctx, snapshotColumns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func (pr *PresenceRepo) SnapshotsByIds(ctx context.Context, driverIds []string) ([]model.DriverSnapshot, error) {
	q := snapshotColumns + ` AND l.driver_id = ANY($1)`
	rows, err := pr.db.GetConn().Query(ctx, q, driverIds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func scanSnapshots(rows pgx.Rows) ([]model.DriverSnapshot, error) {
	var out []model.DriverSnapshot
	for rows.Next() {
		var s model.DriverSnapshot
		err := rows.Scan(
			&s.DriverId, &s.Latitude, &s.Longitude,
			&s.Priority, &s.Star, &s.Gender, &s.IsPublicGender,
			&s.IsOnline, &s.IsFree,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
