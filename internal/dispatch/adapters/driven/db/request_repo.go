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

type RequestRepo struct {
	db *DB
}

func NewRequestRepo(db *DB) *RequestRepo {
	return &RequestRepo{db: db}
}

func (rr *RequestRepo) Create(ctx context.Context, m model.SearchRequest) error {
	conn := rr.db.GetConn()
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // Safe rollback if not committed

	// one live request per customer; checked inside the tx, not split
	// across round trips
	q1 := `SELECT EXISTS(SELECT 1 FROM search_requests WHERE customer_id = $1 AND status = 'PROCESSING')`

	var hasLive bool
	if err := tx.QueryRow(ctx, q1, m.CustomerId).Scan(&hasLive); err != nil {
		return fmt.Errorf("failed to check live requests: %w", err)
	}
	if hasLive {
		return myerrors.E(myerrors.KindConflict, "customer already has a live request")
	}

	var vehicleJSON, personJSON []byte
	if m.BookingVehicle != nil {
		if vehicleJSON, err = json.Marshal(m.BookingVehicle); err != nil {
			return fmt.Errorf("failed to marshal vehicle info: %w", err)
		}
	}
	if m.BookedPerson != nil {
		if personJSON, err = json.Marshal(m.BookedPerson); err != nil {
			return fmt.Errorf("failed to marshal person info: %w", err)
		}
	}

	q2 := `
	INSERT INTO search_requests (
		id, customer_id, driver_id, status, price, booking_vehicle, booked_person
	) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := tx.Exec(ctx, q2, m.ID, m.CustomerId, m.DriverId, m.Status, m.Price, vehicleJSON, personJSON); err != nil {
		return fmt.Errorf("failed to insert search request: %w", err)
	}

	return tx.Commit(ctx)
}

func (rr *RequestRepo) Get(ctx context.Context, requestId string) (model.SearchRequest, error) {
	q := `
	SELECT
		id, customer_id, driver_id, status, price, booking_vehicle, booked_person, created_at, updated_at
	FROM
		search_requests
	WHERE
		id = $1`

	var (
		m           model.SearchRequest
		vehicleJSON []byte
		personJSON  []byte
	)
	row := rr.db.GetConn().QueryRow(ctx, q, requestId)
	err := row.Scan(&m.ID, &m.CustomerId, &m.DriverId, &m.Status, &m.Price, &vehicleJSON, &personJSON, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SearchRequest{}, myerrors.E(myerrors.KindNotFound, "search request not found")
		}
		return model.SearchRequest{}, err
	}

	if len(vehicleJSON) > 0 {
		m.BookingVehicle = &model.VehicleInfo{}
		if err := json.Unmarshal(vehicleJSON, m.BookingVehicle); err != nil {
			return model.SearchRequest{}, fmt.Errorf("failed to unmarshal vehicle info: %w", err)
		}
	}
	if len(personJSON) > 0 {
		m.BookedPerson = &model.PersonInfo{}
		if err := json.Unmarshal(personJSON, m.BookedPerson); err != nil {
			return model.SearchRequest{}, fmt.Errorf("failed to unmarshal person info: %w", err)
		}
	}
	return m, nil
}

func (rr *RequestRepo) SetStatus(ctx context.Context, requestId, from, to string) (bool, error) {
	q := `UPDATE search_requests SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	tag, err := rr.db.GetConn().Exec(ctx, q, requestId, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (rr *RequestRepo) SetDriver(ctx context.Context, requestId, driverId string) (bool, error) {
	q := `UPDATE search_requests SET driver_id = $2, updated_at = NOW() WHERE id = $1 AND status = 'PROCESSING'`
	tag, err := rr.db.GetConn().Exec(ctx, q, requestId, driverId)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
