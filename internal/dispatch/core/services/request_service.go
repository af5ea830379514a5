package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ride-dispatch/internal/dispatch/core/domain/brokerdto"
	"ride-dispatch/internal/dispatch/core/domain/dto"
	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/myerrors"
	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/mylogger"
	"ride-dispatch/internal/observability"
)

// RequestService owns the SearchRequest state machine:
// PROCESSING -> COMPLETED | CANCELLED, nothing else.
type RequestService struct {
	ctx      context.Context
	mylog    mylogger.Logger
	identity ports.IIdentity
	users    ports.IUserRepo
	requests ports.IRequestRepo
	presence ports.IPresenceRepo
	bus      ports.INotificationBus
	images   ports.IImageStore
	locks    *keyedMutex
}

func NewRequestService(
	ctx context.Context,
	mylog mylogger.Logger,
	identity ports.IIdentity,
	users ports.IUserRepo,
	requests ports.IRequestRepo,
	presence ports.IPresenceRepo,
	bus ports.INotificationBus,
	images ports.IImageStore,
) *RequestService {
	return &RequestService{
		ctx:      ctx,
		mylog:    mylog,
		identity: identity,
		users:    users,
		requests: requests,
		presence: presence,
		bus:      bus,
		images:   images,
		locks:    entityLocks,
	}
}

func (rs *RequestService) Create(ctx context.Context, customerId string, req dto.SearchRequestCreateDto) (dto.SearchRequestResponseDto, error) {
	log := rs.mylog.Action("CreateRequest")

	if req.DriverId == nil || *req.DriverId == "" {
		return dto.SearchRequestResponseDto{}, myerrors.E(myerrors.KindInvalidArgument, "driver_id is required")
	}
	if req.Price == nil || *req.Price < 0 {
		return dto.SearchRequestResponseDto{}, myerrors.E(myerrors.KindInvalidArgument, "price is required")
	}
	driverId := *req.DriverId

	if err := rs.requireActive(ctx, customerId, model.RoleCustomer); err != nil {
		return dto.SearchRequestResponseDto{}, err
	}
	if err := rs.requireActive(ctx, driverId, model.RoleDriver); err != nil {
		return dto.SearchRequestResponseDto{}, err
	}

	// The candidate search was a snapshot; the driver may have gone busy
	// since. Claim first, so two concurrent creates cannot both take him.
	claimed, err := rs.presence.TryClaim(ctx, driverId)
	if err != nil {
		log.Error("cannot claim driver", err, "driver_id", driverId)
		return dto.SearchRequestResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot claim driver", err)
	}
	if !claimed {
		observability.ClaimConflictsTotal.Inc()
		return dto.SearchRequestResponseDto{}, myerrors.E(myerrors.KindDriverUnavailable, "driver is no longer available")
	}

	m := model.SearchRequest{
		ID:         uuid.NewString(),
		CustomerId: customerId,
		DriverId:   driverId,
		Status:     model.SearchProcessing,
		Price:      *req.Price,
	}

	if req.BookingVehicle != nil {
		urls, err := storeAttachments(ctx, rs.images, req.BookingVehicle.Images)
		if err != nil {
			rs.releaseClaim(ctx, driverId)
			return dto.SearchRequestResponseDto{}, err
		}
		m.BookingVehicle = &model.VehicleInfo{
			Description: req.BookingVehicle.Description,
			Plate:       req.BookingVehicle.Plate,
			ImageUrls:   urls,
		}
	}
	if req.BookedPerson != nil {
		urls, err := storeAttachments(ctx, rs.images, req.BookedPerson.Images)
		if err != nil {
			rs.releaseClaim(ctx, driverId)
			return dto.SearchRequestResponseDto{}, err
		}
		m.BookedPerson = &model.PersonInfo{
			FullName:  req.BookedPerson.FullName,
			Phone:     req.BookedPerson.Phone,
			ImageUrls: urls,
		}
	}

	if err := rs.requests.Create(ctx, m); err != nil {
		rs.releaseClaim(ctx, driverId)
		if myerrors.IsKind(err, myerrors.KindConflict) {
			return dto.SearchRequestResponseDto{}, err
		}
		log.Error("cannot persist search request", err, "customer_id", customerId)
		return dto.SearchRequestResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot create request", err)
	}

	observability.RequestsCreatedTotal.Inc()
	log.Info("search request created", "request_id", m.ID, "customer_id", customerId, "driver_id", driverId)

	rs.notifyDriverNewRequest(ctx, m)

	return dto.SearchRequestResponseDto{
		RequestId: m.ID,
		DriverId:  driverId,
		Status:    m.Status,
		Price:     m.Price,
		CreatedAt: time.Now().Format(time.RFC3339),
	}, nil
}

func (rs *RequestService) Complete(ctx context.Context, requestId, customerId string) (dto.SearchRequestResponseDto, error) {
	log := rs.mylog.Action("CompleteRequest")

	unlock := rs.locks.Lock(requestId)
	defer unlock()

	m, err := rs.getOwned(ctx, requestId, customerId)
	if err != nil {
		return dto.SearchRequestResponseDto{}, err
	}
	if m.Status != model.SearchProcessing {
		return dto.SearchRequestResponseDto{}, myerrors.Ef(myerrors.KindInvalidState, "request is %s, only PROCESSING requests can be completed", m.Status)
	}

	moved, err := rs.requests.SetStatus(ctx, requestId, model.SearchProcessing, model.SearchCompleted)
	if err != nil {
		log.Error("cannot complete request", err, "request_id", requestId)
		return dto.SearchRequestResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot complete request", err)
	}
	if !moved {
		return dto.SearchRequestResponseDto{}, myerrors.E(myerrors.KindInvalidState, "request already left PROCESSING")
	}

	log.Info("search request completed", "request_id", requestId)
	return dto.SearchRequestResponseDto{
		RequestId: requestId,
		DriverId:  m.DriverId,
		Status:    model.SearchCompleted,
		Price:     m.Price,
	}, nil
}

// Cancel moves a processing request to CANCELLED. A non-empty driverId means
// a specific driver was the live target and gets both the cancellation notice
// and his availability back.
func (rs *RequestService) Cancel(ctx context.Context, requestId, customerId, driverId string) (dto.SearchRequestResponseDto, error) {
	log := rs.mylog.Action("CancelRequest")

	unlock := rs.locks.Lock(requestId)
	defer unlock()

	m, err := rs.getOwned(ctx, requestId, customerId)
	if err != nil {
		return dto.SearchRequestResponseDto{}, err
	}
	if m.Status != model.SearchProcessing {
		return dto.SearchRequestResponseDto{}, myerrors.Ef(myerrors.KindInvalidState, "request is %s, only PROCESSING requests can be cancelled", m.Status)
	}

	moved, err := rs.requests.SetStatus(ctx, requestId, model.SearchProcessing, model.SearchCancelled)
	if err != nil {
		log.Error("cannot cancel request", err, "request_id", requestId)
		return dto.SearchRequestResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot cancel request", err)
	}
	if !moved {
		return dto.SearchRequestResponseDto{}, myerrors.E(myerrors.KindInvalidState, "request already left PROCESSING")
	}

	if driverId != "" {
		// A redispatch may have moved the pointer since the client read it;
		// the row is the authority on who holds the claim.
		if driverId != m.DriverId {
			log.Warn("cancel carried a stale driver id", "request_id", requestId, "driver_id", driverId, "current_driver_id", m.DriverId)
		}
		target := m.DriverId
		if err := rs.presence.SetFree(ctx, target, true); err != nil {
			log.Error("cannot free driver after cancel", err, "driver_id", target)
		}
		view := brokerdto.RenderRequestView(m, nil, model.SearchCancelled, nil, nil)
		if err := rs.bus.Publish(ctx, brokerdto.TopicRequestCancel, []string{target}, view); err != nil {
			observability.NotifyFailuresTotal.WithLabelValues(brokerdto.TopicRequestCancel).Inc()
			log.Warn("cancel notification publish failed", "driver_id", target, "err", err.Error())
		}
	}

	log.Info("search request cancelled", "request_id", requestId, "driver_id", m.DriverId)
	return dto.SearchRequestResponseDto{
		RequestId: requestId,
		DriverId:  m.DriverId,
		Status:    model.SearchCancelled,
		Price:     m.Price,
	}, nil
}

func (rs *RequestService) requireActive(ctx context.Context, userId, role string) error {
	ok, err := rs.identity.HasRole(ctx, userId, role)
	if err != nil {
		return err
	}
	if !ok {
		return myerrors.Ef(myerrors.KindForbidden, "user does not hold the %s role", role)
	}
	active, err := rs.identity.IsActive(ctx, userId)
	if err != nil {
		return err
	}
	if !active {
		return myerrors.E(myerrors.KindForbidden, "user is deactivated")
	}
	return nil
}

func (rs *RequestService) getOwned(ctx context.Context, requestId, customerId string) (model.SearchRequest, error) {
	m, err := rs.requests.Get(ctx, requestId)
	if err != nil {
		return model.SearchRequest{}, err
	}
	if m.CustomerId != customerId {
		return model.SearchRequest{}, myerrors.E(myerrors.KindForbidden, "request belongs to another customer")
	}
	return m, nil
}

// releaseClaim is the compensation for a claim whose request never came to be.
func (rs *RequestService) releaseClaim(ctx context.Context, driverId string) {
	if err := rs.presence.SetFree(ctx, driverId, true); err != nil {
		rs.mylog.Action("CreateRequest").Error("cannot release claimed driver", err, "driver_id", driverId)
	}
}

func (rs *RequestService) notifyDriverNewRequest(ctx context.Context, m model.SearchRequest) {
	log := rs.mylog.Action("CreateRequest")

	customer, err := rs.users.Get(ctx, m.CustomerId)
	var customerPtr *model.User
	if err != nil {
		log.Warn("cannot denormalize customer profile", "customer_id", m.CustomerId, "err", err.Error())
	} else {
		customerPtr = &customer
	}

	var vehicleImages, personImages []string
	if m.BookingVehicle != nil {
		vehicleImages = materializeAttachments(ctx, rs.images, log, m.BookingVehicle.ImageUrls)
	}
	if m.BookedPerson != nil {
		personImages = materializeAttachments(ctx, rs.images, log, m.BookedPerson.ImageUrls)
	}

	view := brokerdto.RenderRequestView(m, customerPtr, "", vehicleImages, personImages)
	if err := rs.bus.Publish(ctx, brokerdto.TopicRequestNew, []string{m.DriverId}, view); err != nil {
		observability.NotifyFailuresTotal.WithLabelValues(brokerdto.TopicRequestNew).Inc()
		log.Warn("new request notification publish failed", "driver_id", m.DriverId, "err", err.Error())
	}
}
