package ports

import (
	"context"
	"time"

	"ride-dispatch/internal/dispatch/core/domain/model"

	"github.com/jackc/pgx/v5"
)

type IDB interface {
	GetConn() *pgx.Conn
	IsAlive() error
	Close() error
}

// IUserRepo reads identity-owned user rows. The dispatch core never writes them.
type IUserRepo interface {
	Get(ctx context.Context, userId string) (model.User, error)
}

type IPresenceRepo interface {
	UpsertLocation(ctx context.Context, driverId string, lat, lon float64) (time.Time, error)
	// SetOnline derives is_free from the absence of an open booking instead of
	// forcing true, so a driver mid-trip cannot resurface as claimable.
	SetOnline(ctx context.Context, driverId string) (model.DriverStatus, error)
	SetOffline(ctx context.Context, driverId string) (model.DriverStatus, error)
	SetFree(ctx context.Context, driverId string, free bool) error
	// TryClaim atomically flips is_free from true to false, reporting whether
	// this caller won the row.
	TryClaim(ctx context.Context, driverId string) (bool, error)
	BulkSetAllOffline(ctx context.Context) (int64, error)
	Snapshots(ctx context.Context) ([]model.DriverSnapshot, error)
	SnapshotsByIds(ctx context.Context, driverIds []string) ([]model.DriverSnapshot, error)
}

type IRequestRepo interface {
	Create(ctx context.Context, req model.SearchRequest) error
	Get(ctx context.Context, requestId string) (model.SearchRequest, error)
	// SetStatus transitions only when the stored status equals from,
	// reporting whether a row moved.
	SetStatus(ctx context.Context, requestId, from, to string) (bool, error)
	// SetDriver swaps the target driver pointer while the request is still processing.
	SetDriver(ctx context.Context, requestId, driverId string) (bool, error)
}

type IBookingRepo interface {
	Create(ctx context.Context, b model.Booking) error
	Get(ctx context.Context, bookingId string) (model.Booking, error)
	// GetByRequest resolves the at-most-one booking tied to a search request.
	GetByRequest(ctx context.Context, searchRequestId string) (model.Booking, error)
	SetStatus(ctx context.Context, bookingId, from, to string) (bool, error)
	// CompleteTx closes the booking and frees its driver in one transaction.
	CompleteTx(ctx context.Context, bookingId string) (model.Booking, error)
	// CancelTx inserts the at-most-once cancel record, moves the booking to
	// CANCELLED and frees the driver, all in one transaction.
	CancelTx(ctx context.Context, cancel model.BookingCancel) (model.Booking, error)
}
