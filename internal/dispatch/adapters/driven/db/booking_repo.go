package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/myerrors"

	"github.com/jackc/pgx/v5"
)

type BookingRepo struct {
	db *DB
}

func NewBookingRepo(db *DB) *BookingRepo {
	return &BookingRepo{db: db}
}

func (br *BookingRepo) Create(ctx context.Context, b model.Booking) error {
	q := `
	INSERT INTO bookings (id, search_request_id, driver_id, status)
	VALUES ($1, $2, $3, $4)`

	_, err := br.db.GetConn().Exec(ctx, q, b.ID, b.SearchRequestId, b.DriverId, b.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return myerrors.E(myerrors.KindConflict, "booking already exists for this request")
		}
		return err
	}
	return nil
}

func (br *BookingRepo) Get(ctx context.Context, bookingId string) (model.Booking, error) {
	q := `
	SELECT
		id, search_request_id, driver_id, status, drop_off_time, created_at, updated_at
	FROM
		bookings
	WHERE
		id = $1`

	var b model.Booking
	row := br.db.GetConn().QueryRow(ctx, q, bookingId)
	err := row.Scan(&b.ID, &b.SearchRequestId, &b.DriverId, &b.Status, &b.DropOffTime, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, myerrors.E(myerrors.KindNotFound, "booking not found")
		}
		return model.Booking{}, err
	}
	return b, nil
}

func (br *BookingRepo) GetByRequest(ctx context.Context, searchRequestId string) (model.Booking, error) {
	q := `
	SELECT
		id, search_request_id, driver_id, status, drop_off_time, created_at, updated_at
	FROM
		bookings
	WHERE
		search_request_id = $1`

	var b model.Booking
	row := br.db.GetConn().QueryRow(ctx, q, searchRequestId)
	err := row.Scan(&b.ID, &b.SearchRequestId, &b.DriverId, &b.Status, &b.DropOffTime, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, myerrors.E(myerrors.KindNotFound, "no booking for this request")
		}
		return model.Booking{}, err
	}
	return b, nil
}

func (br *BookingRepo) SetStatus(ctx context.Context, bookingId, from, to string) (bool, error) {
	q := `UPDATE bookings SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	tag, err := br.db.GetConn().Exec(ctx, q, bookingId, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteTx closes the trip and frees the driver in one commit. The status
// flip is conditional on CHECKED_IN, so a stale caller cannot complete twice.
func (br *BookingRepo) CompleteTx(ctx context.Context, bookingId string) (model.Booking, error) {
	conn := br.db.GetConn()
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Booking{}, err
	}
	defer tx.Rollback(ctx) // Safe rollback if not committed

	q1 := `
	UPDATE bookings
	SET status = 'COMPLETED', drop_off_time = NOW(), updated_at = NOW()
	WHERE id = $1 AND status = 'CHECKED_IN'
	RETURNING id, search_request_id, driver_id, status, drop_off_time, created_at, updated_at`

	var b model.Booking
	err = tx.QueryRow(ctx, q1, bookingId).Scan(&b.ID, &b.SearchRequestId, &b.DriverId, &b.Status, &b.DropOffTime, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, myerrors.E(myerrors.KindInvalidState, "booking is not ready to complete")
		}
		return model.Booking{}, fmt.Errorf("failed to complete booking: %w", err)
	}

	q2 := `UPDATE driver_status SET is_free = true, updated_at = NOW() WHERE driver_id = $1`
	if _, err := tx.Exec(ctx, q2, b.DriverId); err != nil {
		return model.Booking{}, fmt.Errorf("failed to free driver: %w", err)
	}

	return b, tx.Commit(ctx)
}

// CancelTx performs the whole cancellation as one unit: existence check under
// a row lock, the at-most-once cancel record, the status flip and the driver
// release either all commit or none do.
func (br *BookingRepo) CancelTx(ctx context.Context, cancel model.BookingCancel) (model.Booking, error) {
	conn := br.db.GetConn()
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Booking{}, err
	}
	defer tx.Rollback(ctx) // Safe rollback if not committed

	q1 := `
	SELECT id, search_request_id, driver_id, status, drop_off_time, created_at, updated_at
	FROM bookings
	WHERE id = $1
	FOR UPDATE`

	var b model.Booking
	err = tx.QueryRow(ctx, q1, cancel.BookingId).Scan(&b.ID, &b.SearchRequestId, &b.DriverId, &b.Status, &b.DropOffTime, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, myerrors.E(myerrors.KindNotFound, "booking not found")
		}
		return model.Booking{}, fmt.Errorf("failed to fetch booking: %w", err)
	}

	if !model.BookingOpen(b.Status) {
		return model.Booking{}, myerrors.Ef(myerrors.KindInvalidState, "booking is %s, only open bookings can be cancelled", b.Status)
	}

	imagesJSON, err := json.Marshal(cancel.ImageUrls)
	if err != nil {
		return model.Booking{}, fmt.Errorf("failed to marshal image urls: %w", err)
	}

	// booking_id carries a unique constraint; a concurrent cancel that
	// slipped past the row lock still loses here
	q2 := `
	INSERT INTO booking_cancels (id, booking_id, cancel_person_id, reason, image_urls)
	VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.Exec(ctx, q2, cancel.ID, cancel.BookingId, cancel.CancelPersonId, cancel.Reason, imagesJSON); err != nil {
		if isUniqueViolation(err) {
			return model.Booking{}, myerrors.E(myerrors.KindConflict, "booking already cancelled")
		}
		return model.Booking{}, fmt.Errorf("failed to insert cancel record: %w", err)
	}

	q3 := `UPDATE bookings SET status = 'CANCELLED', updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, q3, cancel.BookingId); err != nil {
		return model.Booking{}, fmt.Errorf("failed to update booking status: %w", err)
	}

	q4 := `UPDATE driver_status SET is_free = true, updated_at = NOW() WHERE driver_id = $1`
	if _, err := tx.Exec(ctx, q4, b.DriverId); err != nil {
		return model.Booking{}, fmt.Errorf("failed to free driver: %w", err)
	}

	b.Status = model.BookingCancelled
	return b, tx.Commit(ctx)
}
