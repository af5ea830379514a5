package services

import (
	"context"

	"ride-dispatch/internal/dispatch/core/domain/brokerdto"
	"ride-dispatch/internal/dispatch/core/domain/dto"
	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/myerrors"
	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/mylogger"
	"ride-dispatch/internal/observability"
)

// RedispatchService moves a still-processing request to a new target driver.
// The persisted entity never changes status here; only its driver pointer
// moves. The two drivers receive divergent views of the same request: the old
// one a copy materialized as CANCELLED, the new one a fresh request payload.
type RedispatchService struct {
	ctx      context.Context
	mylog    mylogger.Logger
	identity ports.IIdentity
	users    ports.IUserRepo
	requests ports.IRequestRepo
	bookings ports.IBookingRepo
	presence ports.IPresenceRepo
	bus      ports.INotificationBus
	images   ports.IImageStore
	locks    *keyedMutex
}

func NewRedispatchService(
	ctx context.Context,
	mylog mylogger.Logger,
	identity ports.IIdentity,
	users ports.IUserRepo,
	requests ports.IRequestRepo,
	bookings ports.IBookingRepo,
	presence ports.IPresenceRepo,
	bus ports.INotificationBus,
	images ports.IImageStore,
) *RedispatchService {
	return &RedispatchService{
		ctx:      ctx,
		mylog:    mylog,
		identity: identity,
		users:    users,
		requests: requests,
		bookings: bookings,
		presence: presence,
		bus:      bus,
		images:   images,
		locks:    entityLocks,
	}
}

func (rds *RedispatchService) Reassign(ctx context.Context, requestId, oldDriverId, newDriverId string) (dto.RedispatchResponseDto, error) {
	log := rds.mylog.Action("Reassign")

	if oldDriverId == "" || newDriverId == "" {
		return dto.RedispatchResponseDto{}, myerrors.E(myerrors.KindInvalidArgument, "old_driver_id and new_driver_id are required")
	}
	if oldDriverId == newDriverId {
		return dto.RedispatchResponseDto{}, myerrors.E(myerrors.KindInvalidArgument, "new driver must differ from the old one")
	}

	unlock := rds.locks.Lock(requestId)
	defer unlock()

	m, err := rds.requests.Get(ctx, requestId)
	if err != nil {
		return dto.RedispatchResponseDto{}, err
	}
	if m.Status != model.SearchProcessing {
		return dto.RedispatchResponseDto{}, myerrors.Ef(myerrors.KindInvalidState, "request is %s, only PROCESSING requests can be redispatched", m.Status)
	}
	if m.DriverId != oldDriverId {
		return dto.RedispatchResponseDto{}, myerrors.E(myerrors.KindInvalidArgument, "old driver is not the current target of this request")
	}

	// The request stays PROCESSING after the driver accepts; the booking is
	// the fact that he is already driving. Reassigning past it would free a
	// driver mid-trip.
	if _, err := rds.bookings.GetByRequest(ctx, requestId); err == nil {
		return dto.RedispatchResponseDto{}, myerrors.E(myerrors.KindConflict, "driver already accepted this request")
	} else if !myerrors.IsKind(err, myerrors.KindNotFound) {
		return dto.RedispatchResponseDto{}, err
	}

	ok, err := rds.identity.HasRole(ctx, newDriverId, model.RoleDriver)
	if err != nil {
		return dto.RedispatchResponseDto{}, err
	}
	if !ok {
		return dto.RedispatchResponseDto{}, myerrors.E(myerrors.KindForbidden, "new target is not a driver")
	}

	// Claim the new driver before touching the request, so a lost race
	// leaves everything as it was.
	claimed, err := rds.presence.TryClaim(ctx, newDriverId)
	if err != nil {
		log.Error("cannot claim new driver", err, "driver_id", newDriverId)
		return dto.RedispatchResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot claim driver", err)
	}
	if !claimed {
		observability.ClaimConflictsTotal.Inc()
		return dto.RedispatchResponseDto{}, myerrors.E(myerrors.KindDriverUnavailable, "new driver is not available")
	}

	moved, err := rds.requests.SetDriver(ctx, requestId, newDriverId)
	if err != nil {
		rds.release(ctx, newDriverId)
		log.Error("cannot swap target driver", err, "request_id", requestId)
		return dto.RedispatchResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot reassign request", err)
	}
	if !moved {
		rds.release(ctx, newDriverId)
		return dto.RedispatchResponseDto{}, myerrors.E(myerrors.KindInvalidState, "request already left PROCESSING")
	}

	rds.release(ctx, oldDriverId)
	observability.RedispatchesTotal.Inc()
	log.Info("request redispatched", "request_id", requestId, "old_driver_id", oldDriverId, "new_driver_id", newDriverId)

	rds.notifyBothDrivers(ctx, m, oldDriverId, newDriverId)

	return dto.RedispatchResponseDto{
		RequestId: requestId,
		DriverId:  newDriverId,
		Status:    model.SearchProcessing,
		Message:   "Request reassigned to a new driver",
	}, nil
}

func (rds *RedispatchService) release(ctx context.Context, driverId string) {
	if err := rds.presence.SetFree(ctx, driverId, true); err != nil {
		rds.mylog.Action("Reassign").Error("cannot free driver", err, "driver_id", driverId)
	}
}

func (rds *RedispatchService) notifyBothDrivers(ctx context.Context, m model.SearchRequest, oldDriverId, newDriverId string) {
	log := rds.mylog.Action("Reassign")

	// Withdrawn view for the old driver: same entity, status overridden.
	withdrawn := brokerdto.RenderRequestView(m, nil, model.SearchCancelled, nil, nil)
	if err := rds.bus.Publish(ctx, brokerdto.TopicRequestCancel, []string{oldDriverId}, withdrawn); err != nil {
		observability.NotifyFailuresTotal.WithLabelValues(brokerdto.TopicRequestCancel).Inc()
		log.Warn("withdrawal notification publish failed", "driver_id", oldDriverId, "err", err.Error())
	}

	// Fresh view for the new driver, attachments re-materialized.
	customer, err := rds.users.Get(ctx, m.CustomerId)
	var customerPtr *model.User
	if err != nil {
		log.Warn("cannot denormalize customer profile", "customer_id", m.CustomerId, "err", err.Error())
	} else {
		customerPtr = &customer
	}
	var vehicleImages, personImages []string
	if m.BookingVehicle != nil {
		vehicleImages = materializeAttachments(ctx, rds.images, log, m.BookingVehicle.ImageUrls)
	}
	if m.BookedPerson != nil {
		personImages = materializeAttachments(ctx, rds.images, log, m.BookedPerson.ImageUrls)
	}
	m.DriverId = newDriverId
	fresh := brokerdto.RenderRequestView(m, customerPtr, "", vehicleImages, personImages)
	if err := rds.bus.Publish(ctx, brokerdto.TopicRequestNew, []string{newDriverId}, fresh); err != nil {
		observability.NotifyFailuresTotal.WithLabelValues(brokerdto.TopicRequestNew).Inc()
		log.Warn("new request notification publish failed", "driver_id", newDriverId, "err", err.Error())
	}
}
