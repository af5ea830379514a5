package services

import (
	"context"
	"sync"
	"testing"

	"ride-dispatch/internal/dispatch/core/domain/brokerdto"
	"ride-dispatch/internal/dispatch/core/domain/dto"
	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/myerrors"
)

type bookingFixture struct {
	svc      *BookingService
	presence *fakePresence
	requests *fakeRequests
	bookings *fakeBookings
	bus      *fakeBus
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	presence := newFakePresence()
	presence.setStatus("d1", true, false) // claimed by the request
	requests := newFakeRequests()
	if err := requests.Create(context.Background(), model.SearchRequest{
		ID: "req1", CustomerId: "c1", DriverId: "d1", Status: model.SearchProcessing, Price: 75,
	}); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	bookings := newFakeBookings(presence)
	bus := &fakeBus{}
	svc := NewBookingService(context.Background(), nopLogger{}, requests, bookings, presence, bus, newFakeImages())
	return &bookingFixture{svc: svc, presence: presence, requests: requests, bookings: bookings, bus: bus}
}

func (fx *bookingFixture) accepted(t *testing.T) string {
	t.Helper()
	res, err := fx.svc.Create(context.Background(), "req1", "d1")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return res.BookingId
}

func (fx *bookingFixture) advance(t *testing.T, id string, statuses ...string) {
	t.Helper()
	for _, s := range statuses {
		if _, err := fx.svc.ChangeStatus(context.Background(), id, s); err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
	}
}

func TestBookingCreateRequiresProcessingRequest(t *testing.T) {
	fx := newBookingFixture(t)
	fx.requests.SetStatus(context.Background(), "req1", model.SearchProcessing, model.SearchCancelled)

	_, err := fx.svc.Create(context.Background(), "req1", "d1")
	if !myerrors.IsKind(err, myerrors.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestBookingCreateRejectsForeignDriver(t *testing.T) {
	fx := newBookingFixture(t)

	_, err := fx.svc.Create(context.Background(), "req1", "d9")
	if !myerrors.IsKind(err, myerrors.KindForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestBookingCreateAtMostOnePerRequest(t *testing.T) {
	fx := newBookingFixture(t)
	fx.accepted(t)

	_, err := fx.svc.Create(context.Background(), "req1", "d1")
	if !myerrors.IsKind(err, myerrors.KindConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestBookingForwardTransitions(t *testing.T) {
	fx := newBookingFixture(t)
	id := fx.accepted(t)

	fx.advance(t, id, model.BookingArrived, model.BookingCheckedIn, model.BookingCompleted)

	b, _ := fx.bookings.Get(context.Background(), id)
	if b.Status != model.BookingCompleted {
		t.Fatalf("expected COMPLETED, got %s", b.Status)
	}
	if b.DropOffTime == nil {
		t.Fatal("completion must set drop-off time")
	}
	if !fx.presence.isFree("d1") {
		t.Fatal("completion must free the driver")
	}
}

func TestBookingIllegalTransitions(t *testing.T) {
	cases := []struct {
		via []string
		to  string
	}{
		{nil, model.BookingCompleted},                           // ACCEPTED -> COMPLETED skips two states
		{nil, model.BookingCheckedIn},                           // ACCEPTED -> CHECKED_IN skips ARRIVED
		{[]string{model.BookingArrived}, model.BookingAccepted}, // backwards
	}
	for _, c := range cases {
		fx := newBookingFixture(t)
		id := fx.accepted(t)
		fx.advance(t, id, c.via...)
		if _, err := fx.svc.ChangeStatus(context.Background(), id, c.to); !myerrors.IsKind(err, myerrors.KindInvalidState) {
			t.Fatalf("transition to %s: expected InvalidState, got %v", c.to, err)
		}
	}
}

func TestBookingChangeStatusCannotCancel(t *testing.T) {
	fx := newBookingFixture(t)
	id := fx.accepted(t)

	_, err := fx.svc.ChangeStatus(context.Background(), id, model.BookingCancelled)
	if !myerrors.IsKind(err, myerrors.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestBookingCancelByDriverFromArrived(t *testing.T) {
	fx := newBookingFixture(t)
	id := fx.accepted(t)
	fx.advance(t, id, model.BookingArrived)

	res, err := fx.svc.Cancel(context.Background(), id, "d1", dto.BookingCancelDto{Reason: "customer unreachable"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Status != model.BookingCancelled {
		t.Fatalf("expected CANCELLED, got %s", res.Status)
	}
	if !fx.presence.isFree("d1") {
		t.Fatal("driver must be free after cancellation")
	}
	if len(fx.bookings.cancels) != 1 {
		t.Fatalf("expected exactly one cancel record, got %d", len(fx.bookings.cancels))
	}
	// driver cancelled, so the customer is the counter-party
	sent := fx.bus.sent(brokerdto.TopicBookingUpdate)
	last := sent[len(sent)-1]
	if last.recipients[0] != "c1" {
		t.Fatalf("expected customer notification, got %+v", last)
	}
	if last.payload.(brokerdto.BookingUpdate).Cancel == nil {
		t.Fatal("cancellation details missing from notification")
	}
}

func TestBookingCancelByCustomerNotifiesDriver(t *testing.T) {
	fx := newBookingFixture(t)
	id := fx.accepted(t)

	if _, err := fx.svc.Cancel(context.Background(), id, "c1", dto.BookingCancelDto{Reason: "changed plans"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	sent := fx.bus.sent(brokerdto.TopicBookingUpdate)
	last := sent[len(sent)-1]
	if last.recipients[0] != "d1" {
		t.Fatalf("expected driver notification, got %+v", last)
	}
}

func TestBookingCancelRejectsStrangers(t *testing.T) {
	fx := newBookingFixture(t)
	id := fx.accepted(t)

	_, err := fx.svc.Cancel(context.Background(), id, "somebody", dto.BookingCancelDto{Reason: "nope"})
	if !myerrors.IsKind(err, myerrors.KindForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestBookingCancelNotFromCompleted(t *testing.T) {
	fx := newBookingFixture(t)
	id := fx.accepted(t)
	fx.advance(t, id, model.BookingArrived, model.BookingCheckedIn, model.BookingCompleted)

	_, err := fx.svc.Cancel(context.Background(), id, "c1", dto.BookingCancelDto{Reason: "too late"})
	if !myerrors.IsKind(err, myerrors.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestBookingCancelAtMostOnceUnderConcurrency(t *testing.T) {
	fx := newBookingFixture(t)
	id := fx.accepted(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []string{"c1", "d1"} {
		wg.Add(1)
		go func(i int, actor string) {
			defer wg.Done()
			_, errs[i] = fx.svc.Cancel(context.Background(), id, actor, dto.BookingCancelDto{Reason: "race"})
		}(i, actor)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else if !myerrors.IsKind(err, myerrors.KindInvalidState) && !myerrors.IsKind(err, myerrors.KindConflict) {
			t.Fatalf("loser must see InvalidState or Conflict, got %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("exactly one cancel must succeed, got %d", won)
	}
	if len(fx.bookings.cancels) != 1 {
		t.Fatalf("expected exactly one cancel record, got %d", len(fx.bookings.cancels))
	}
}
