package services

import (
	"context"
	"time"

	"ride-dispatch/internal/dispatch/core/domain/dto"
	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/myerrors"
	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/geo"
	"ride-dispatch/internal/mylogger"
)

// PresenceService is the single write path for driver_status and
// driver_locations. No other component mutates those rows.
type PresenceService struct {
	ctx      context.Context
	mylog    mylogger.Logger
	users    ports.IUserRepo
	presence ports.IPresenceRepo
	geoIndex ports.IGeoIndex // optional
}

func NewPresenceService(ctx context.Context, mylog mylogger.Logger, users ports.IUserRepo, presence ports.IPresenceRepo, geoIndex ports.IGeoIndex) *PresenceService {
	return &PresenceService{
		ctx:      ctx,
		mylog:    mylog,
		users:    users,
		presence: presence,
		geoIndex: geoIndex,
	}
}

func (ps *PresenceService) SetLocation(ctx context.Context, driverId string, req dto.LocationUpdateDto) (dto.LocationUpdateResponseDto, error) {
	log := ps.mylog.Action("SetLocation")

	if req.Latitude == nil || req.Longitude == nil {
		return dto.LocationUpdateResponseDto{}, myerrors.E(myerrors.KindInvalidArgument, "latitude and longitude are required")
	}
	if !geo.ValidCoords(*req.Latitude, *req.Longitude) {
		return dto.LocationUpdateResponseDto{}, myerrors.E(myerrors.KindInvalidArgument, "coordinates out of range")
	}

	if err := ps.requireActiveDriver(ctx, driverId); err != nil {
		return dto.LocationUpdateResponseDto{}, err
	}

	updatedAt, err := ps.presence.UpsertLocation(ctx, driverId, *req.Latitude, *req.Longitude)
	if err != nil {
		log.Error("cannot upsert driver location", err, "driver_id", driverId)
		return dto.LocationUpdateResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot store location", err)
	}

	// Mirror into the geo index. Best-effort: postgres already holds the row.
	if ps.geoIndex != nil {
		if err := ps.geoIndex.Upsert(ctx, driverId, *req.Latitude, *req.Longitude); err != nil {
			log.Warn("geo index upsert failed", "driver_id", driverId, "err", err.Error())
		}
	}

	return dto.LocationUpdateResponseDto{
		DriverId:  driverId,
		UpdatedAt: updatedAt.Format(time.RFC3339),
	}, nil
}

func (ps *PresenceService) SetOnline(ctx context.Context, driverId string) (dto.PresenceResponseDto, error) {
	log := ps.mylog.Action("SetOnline")

	if err := ps.requireActiveDriver(ctx, driverId); err != nil {
		return dto.PresenceResponseDto{}, err
	}

	status, err := ps.presence.SetOnline(ctx, driverId)
	if err != nil {
		log.Error("cannot set driver online", err, "driver_id", driverId)
		return dto.PresenceResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot update status", err)
	}

	msg := "You are now online and ready to accept requests"
	if !status.IsFree {
		msg = "You are online; finish your open booking to accept new requests"
	}
	log.Info("driver online", "driver_id", driverId, "is_free", status.IsFree)
	return dto.PresenceResponseDto{
		DriverId: driverId,
		IsOnline: status.IsOnline,
		IsFree:   status.IsFree,
		Message:  msg,
	}, nil
}

func (ps *PresenceService) SetOffline(ctx context.Context, driverId string) (dto.PresenceResponseDto, error) {
	log := ps.mylog.Action("SetOffline")

	if err := ps.requireActiveDriver(ctx, driverId); err != nil {
		return dto.PresenceResponseDto{}, err
	}

	status, err := ps.presence.SetOffline(ctx, driverId)
	if err != nil {
		log.Error("cannot set driver offline", err, "driver_id", driverId)
		return dto.PresenceResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot update status", err)
	}

	log.Info("driver offline", "driver_id", driverId)
	return dto.PresenceResponseDto{
		DriverId: driverId,
		IsOnline: status.IsOnline,
		IsFree:   status.IsFree,
		Message:  "You are now offline",
	}, nil
}

// BulkSetAllOffline is the scheduled sweep forcing every driver offline.
func (ps *PresenceService) BulkSetAllOffline(ctx context.Context) (int64, error) {
	log := ps.mylog.Action("BulkSetAllOffline")

	n, err := ps.presence.BulkSetAllOffline(ctx)
	if err != nil {
		log.Error("offline sweep failed", err)
		return 0, myerrors.Wrap(myerrors.KindInternal, "cannot sweep drivers offline", err)
	}
	log.Info("offline sweep finished", "drivers", n)
	return n, nil
}

func (ps *PresenceService) requireActiveDriver(ctx context.Context, driverId string) error {
	u, err := ps.users.Get(ctx, driverId)
	if err != nil {
		return err
	}
	if u.Role != model.RoleDriver {
		return myerrors.E(myerrors.KindForbidden, "user is not a driver")
	}
	if !u.Active {
		return myerrors.E(myerrors.KindForbidden, "driver is deactivated")
	}
	return nil
}
