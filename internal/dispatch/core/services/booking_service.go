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

// legal forward transitions; CANCELLED is reachable separately through Cancel
var bookingNext = map[string]string{
	model.BookingAccepted:  model.BookingArrived,
	model.BookingArrived:   model.BookingCheckedIn,
	model.BookingCheckedIn: model.BookingCompleted,
}

// BookingService owns the Booking state machine:
// ACCEPTED -> ARRIVED -> CHECKED_IN -> COMPLETED, with CANCELLED reachable
// from any open state via a BookingCancel record only.
type BookingService struct {
	ctx      context.Context
	mylog    mylogger.Logger
	requests ports.IRequestRepo
	bookings ports.IBookingRepo
	presence ports.IPresenceRepo
	bus      ports.INotificationBus
	images   ports.IImageStore
	locks    *keyedMutex
}

func NewBookingService(
	ctx context.Context,
	mylog mylogger.Logger,
	requests ports.IRequestRepo,
	bookings ports.IBookingRepo,
	presence ports.IPresenceRepo,
	bus ports.INotificationBus,
	images ports.IImageStore,
) *BookingService {
	return &BookingService{
		ctx:      ctx,
		mylog:    mylog,
		requests: requests,
		bookings: bookings,
		presence: presence,
		bus:      bus,
		images:   images,
		locks:    entityLocks,
	}
}

// Create is the driver's acceptance of a search request.
func (bs *BookingService) Create(ctx context.Context, searchRequestId, driverId string) (dto.BookingResponseDto, error) {
	log := bs.mylog.Action("CreateBooking")

	unlock := bs.locks.Lock(searchRequestId)
	defer unlock()

	req, err := bs.requests.Get(ctx, searchRequestId)
	if err != nil {
		return dto.BookingResponseDto{}, err
	}
	if req.Status != model.SearchProcessing {
		return dto.BookingResponseDto{}, myerrors.Ef(myerrors.KindInvalidState, "request is %s, bookings are created from PROCESSING only", req.Status)
	}
	if req.DriverId != driverId {
		return dto.BookingResponseDto{}, myerrors.E(myerrors.KindForbidden, "request is targeted at another driver")
	}

	b := model.Booking{
		ID:              uuid.NewString(),
		SearchRequestId: searchRequestId,
		DriverId:        driverId,
		Status:          model.BookingAccepted,
	}
	if err := bs.bookings.Create(ctx, b); err != nil {
		if myerrors.IsKind(err, myerrors.KindConflict) {
			return dto.BookingResponseDto{}, err
		}
		log.Error("cannot persist booking", err, "request_id", searchRequestId)
		return dto.BookingResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot create booking", err)
	}

	observability.ActiveBookings.Inc()
	log.Info("booking created", "booking_id", b.ID, "request_id", searchRequestId, "driver_id", driverId)

	bs.notify(ctx, []string{req.CustomerId}, brokerdto.BookingUpdate{
		BookingId:       b.ID,
		SearchRequestId: searchRequestId,
		DriverId:        driverId,
		Status:          b.Status,
	})

	return dto.BookingResponseDto{
		BookingId:       b.ID,
		SearchRequestId: searchRequestId,
		DriverId:        driverId,
		Status:          b.Status,
	}, nil
}

func (bs *BookingService) ChangeStatus(ctx context.Context, bookingId, newStatus string) (dto.BookingResponseDto, error) {
	log := bs.mylog.Action("ChangeBookingStatus")

	if newStatus == model.BookingCancelled {
		return dto.BookingResponseDto{}, myerrors.E(myerrors.KindInvalidState, "cancellation goes through the cancel operation")
	}

	unlock := bs.locks.Lock(bookingId)
	defer unlock()

	b, err := bs.bookings.Get(ctx, bookingId)
	if err != nil {
		return dto.BookingResponseDto{}, err
	}
	if bookingNext[b.Status] != newStatus {
		return dto.BookingResponseDto{}, myerrors.Ef(myerrors.KindInvalidState, "illegal transition %s -> %s", b.Status, newStatus)
	}

	if newStatus == model.BookingCompleted {
		return bs.complete(ctx, b)
	}

	moved, err := bs.bookings.SetStatus(ctx, bookingId, b.Status, newStatus)
	if err != nil {
		log.Error("cannot change booking status", err, "booking_id", bookingId)
		return dto.BookingResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot change status", err)
	}
	if !moved {
		return dto.BookingResponseDto{}, myerrors.Ef(myerrors.KindInvalidState, "booking already left %s", b.Status)
	}

	log.Info("booking status changed", "booking_id", bookingId, "status", newStatus)

	bs.notifyCounterparty(ctx, b, brokerdto.BookingUpdate{
		BookingId:       b.ID,
		SearchRequestId: b.SearchRequestId,
		DriverId:        b.DriverId,
		Status:          newStatus,
	}, false)

	return dto.BookingResponseDto{
		BookingId:       b.ID,
		SearchRequestId: b.SearchRequestId,
		DriverId:        b.DriverId,
		Status:          newStatus,
	}, nil
}

// complete closes the trip. Freeing the driver happens in the same
// transaction as the status flip: completion ends the busy period.
func (bs *BookingService) complete(ctx context.Context, b model.Booking) (dto.BookingResponseDto, error) {
	log := bs.mylog.Action("CompleteBooking")

	done, err := bs.bookings.CompleteTx(ctx, b.ID)
	if err != nil {
		if myerrors.KindOf(err) == myerrors.KindInternal {
			log.Error("cannot complete booking", err, "booking_id", b.ID)
		}
		return dto.BookingResponseDto{}, err
	}

	observability.ActiveBookings.Dec()
	log.Info("booking completed", "booking_id", b.ID, "driver_id", b.DriverId)

	dropOff := ""
	if done.DropOffTime != nil {
		dropOff = done.DropOffTime.Format(time.RFC3339)
	}

	bs.notifyCounterparty(ctx, done, brokerdto.BookingUpdate{
		BookingId:       done.ID,
		SearchRequestId: done.SearchRequestId,
		DriverId:        done.DriverId,
		Status:          done.Status,
		DropOffTime:     dropOff,
	}, false)

	return dto.BookingResponseDto{
		BookingId:       done.ID,
		SearchRequestId: done.SearchRequestId,
		DriverId:        done.DriverId,
		Status:          done.Status,
		DropOffTime:     dropOff,
	}, nil
}

// Cancel creates the BookingCancel record, the only legal path into
// CANCELLED. The record insert, the status flip and the driver release
// commit together.
func (bs *BookingService) Cancel(ctx context.Context, bookingId, actorId string, req dto.BookingCancelDto) (dto.BookingResponseDto, error) {
	log := bs.mylog.Action("CancelBooking")

	unlock := bs.locks.Lock(bookingId)
	defer unlock()

	b, err := bs.bookings.Get(ctx, bookingId)
	if err != nil {
		return dto.BookingResponseDto{}, err
	}
	if !model.BookingOpen(b.Status) {
		return dto.BookingResponseDto{}, myerrors.Ef(myerrors.KindInvalidState, "booking is %s, only open bookings can be cancelled", b.Status)
	}

	sr, err := bs.requests.Get(ctx, b.SearchRequestId)
	if err != nil {
		return dto.BookingResponseDto{}, err
	}
	if actorId != sr.CustomerId && actorId != b.DriverId {
		return dto.BookingResponseDto{}, myerrors.E(myerrors.KindForbidden, "only the customer or the assigned driver may cancel")
	}

	urls, err := storeAttachments(ctx, bs.images, req.Images)
	if err != nil {
		return dto.BookingResponseDto{}, err
	}

	cancel := model.BookingCancel{
		ID:             uuid.NewString(),
		BookingId:      bookingId,
		CancelPersonId: actorId,
		Reason:         req.Reason,
		ImageUrls:      urls,
	}
	cancelled, err := bs.bookings.CancelTx(ctx, cancel)
	if err != nil {
		if myerrors.KindOf(err) == myerrors.KindInternal {
			log.Error("cannot cancel booking", err, "booking_id", bookingId)
		}
		return dto.BookingResponseDto{}, err
	}

	observability.ActiveBookings.Dec()
	log.Info("booking cancelled", "booking_id", bookingId, "by", actorId)

	// counter-party: driver if the customer cancelled, customer otherwise
	update := brokerdto.BookingUpdate{
		BookingId:       cancelled.ID,
		SearchRequestId: cancelled.SearchRequestId,
		DriverId:        cancelled.DriverId,
		Status:          cancelled.Status,
		Cancel: &brokerdto.CancelDetails{
			CancelPersonId: actorId,
			Reason:         req.Reason,
			Images:         materializeAttachments(ctx, bs.images, log, urls),
		},
	}
	if actorId == sr.CustomerId {
		bs.notify(ctx, []string{b.DriverId}, update)
	} else {
		bs.notify(ctx, []string{sr.CustomerId}, update)
	}

	return dto.BookingResponseDto{
		BookingId:       cancelled.ID,
		SearchRequestId: cancelled.SearchRequestId,
		DriverId:        cancelled.DriverId,
		Status:          cancelled.Status,
	}, nil
}

func (bs *BookingService) notifyCounterparty(ctx context.Context, b model.Booking, update brokerdto.BookingUpdate, toDriver bool) {
	sr, err := bs.requests.Get(ctx, b.SearchRequestId)
	if err != nil {
		bs.mylog.Action("BookingNotify").Warn("cannot resolve counter-party", "booking_id", b.ID, "err", err.Error())
		return
	}
	recipient := sr.CustomerId
	if toDriver {
		recipient = b.DriverId
	}
	bs.notify(ctx, []string{recipient}, update)
}

func (bs *BookingService) notify(ctx context.Context, recipients []string, update brokerdto.BookingUpdate) {
	if err := bs.bus.Publish(ctx, brokerdto.TopicBookingUpdate, recipients, update); err != nil {
		observability.NotifyFailuresTotal.WithLabelValues(brokerdto.TopicBookingUpdate).Inc()
		bs.mylog.Action("BookingNotify").Warn("booking notification publish failed", "err", err.Error())
	}
}
