package services

import (
	"context"
	"sync"
	"testing"

	"ride-dispatch/internal/dispatch/core/domain/brokerdto"
	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/myerrors"
)

type redispatchFixture struct {
	svc      *RedispatchService
	users    *fakeUsers
	presence *fakePresence
	requests *fakeRequests
	bookings *fakeBookings
	bus      *fakeBus
}

// requestSvc builds a RequestService over the same stores, for flows where a
// customer cancel and a redispatch race on one request.
func (fx *redispatchFixture) requestSvc() *RequestService {
	return NewRequestService(context.Background(), nopLogger{}, fx.users, fx.users, fx.requests, fx.presence, fx.bus, newFakeImages())
}

func newRedispatchFixture(t *testing.T) *redispatchFixture {
	t.Helper()
	users := newFakeUsers(
		model.User{ID: "c1", Username: "alice", Role: model.RoleCustomer, Star: 4.7, Active: true},
		model.User{ID: "d-old", Role: model.RoleDriver, Active: true},
		model.User{ID: "d-new", Role: model.RoleDriver, Active: true},
	)
	presence := newFakePresence()
	presence.setStatus("d-old", true, false) // holds the request
	presence.setStatus("d-new", true, true)
	requests := newFakeRequests()
	if err := requests.Create(context.Background(), model.SearchRequest{
		ID: "req1", CustomerId: "c1", DriverId: "d-old", Status: model.SearchProcessing, Price: 42,
	}); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	bookings := newFakeBookings(presence)
	bus := &fakeBus{}
	svc := NewRedispatchService(context.Background(), nopLogger{}, users, users, requests, bookings, presence, bus, newFakeImages())
	return &redispatchFixture{svc: svc, users: users, presence: presence, requests: requests, bookings: bookings, bus: bus}
}

func TestReassignSwapsPointerKeepsProcessing(t *testing.T) {
	fx := newRedispatchFixture(t)

	res, err := fx.svc.Reassign(context.Background(), "req1", "d-old", "d-new")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if res.DriverId != "d-new" || res.Status != model.SearchProcessing {
		t.Fatalf("unexpected response %+v", res)
	}

	m, _ := fx.requests.Get(context.Background(), "req1")
	if m.DriverId != "d-new" {
		t.Fatalf("persisted driver pointer not swapped, got %s", m.DriverId)
	}
	if m.Status != model.SearchProcessing {
		t.Fatalf("persisted status must stay PROCESSING, got %s", m.Status)
	}
}

func TestReassignDivergentViews(t *testing.T) {
	fx := newRedispatchFixture(t)

	if _, err := fx.svc.Reassign(context.Background(), "req1", "d-old", "d-new"); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	withdrawn := fx.bus.sent(brokerdto.TopicRequestCancel)
	if len(withdrawn) != 1 || withdrawn[0].recipients[0] != "d-old" {
		t.Fatalf("expected withdrawal to d-old, got %+v", withdrawn)
	}
	view := withdrawn[0].payload.(brokerdto.RequestView)
	if view.Status != model.SearchCancelled {
		t.Fatalf("old driver's copy must read CANCELLED, got %s", view.Status)
	}
	if view.RequestId != "req1" {
		t.Fatalf("the withdrawn view must reference the same request, got %s", view.RequestId)
	}

	fresh := fx.bus.sent(brokerdto.TopicRequestNew)
	if len(fresh) != 1 || fresh[0].recipients[0] != "d-new" {
		t.Fatalf("expected fresh request to d-new, got %+v", fresh)
	}
	freshView := fresh[0].payload.(brokerdto.RequestView)
	if freshView.Status != model.SearchProcessing || freshView.DriverId != "d-new" {
		t.Fatalf("new driver's copy must be a live request, got %+v", freshView)
	}
	if freshView.Customer == nil || freshView.Customer.Username != "alice" {
		t.Fatalf("new driver's copy must carry the customer profile, got %+v", freshView.Customer)
	}
}

func TestReassignFreesOldClaimsNew(t *testing.T) {
	fx := newRedispatchFixture(t)

	if _, err := fx.svc.Reassign(context.Background(), "req1", "d-old", "d-new"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if !fx.presence.isFree("d-old") {
		t.Fatal("old driver must be freed")
	}
	if fx.presence.isFree("d-new") {
		t.Fatal("new driver must be claimed")
	}
}

func TestReassignLosesClaimRace(t *testing.T) {
	fx := newRedispatchFixture(t)
	fx.presence.setStatus("d-new", true, false)

	_, err := fx.svc.Reassign(context.Background(), "req1", "d-old", "d-new")
	if !myerrors.IsKind(err, myerrors.KindDriverUnavailable) {
		t.Fatalf("expected DriverUnavailable, got %v", err)
	}
	// nothing moved
	m, _ := fx.requests.Get(context.Background(), "req1")
	if m.DriverId != "d-old" {
		t.Fatalf("request must keep its old target, got %s", m.DriverId)
	}
	if fx.presence.isFree("d-old") {
		t.Fatal("old driver must stay claimed after a lost race")
	}
}

func TestReassignOnlyFromProcessing(t *testing.T) {
	fx := newRedispatchFixture(t)
	fx.requests.SetStatus(context.Background(), "req1", model.SearchProcessing, model.SearchCompleted)

	_, err := fx.svc.Reassign(context.Background(), "req1", "d-old", "d-new")
	if !myerrors.IsKind(err, myerrors.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestReassignRejectedOnceDriverAccepted(t *testing.T) {
	fx := newRedispatchFixture(t)
	if err := fx.bookings.Create(context.Background(), model.Booking{
		ID: "b1", SearchRequestId: "req1", DriverId: "d-old", Status: model.BookingAccepted,
	}); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	_, err := fx.svc.Reassign(context.Background(), "req1", "d-old", "d-new")
	if !myerrors.IsKind(err, myerrors.KindConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	// the accepting driver keeps his claim and his request
	if fx.presence.isFree("d-old") {
		t.Fatal("driver with an open booking must stay busy")
	}
	if !fx.presence.isFree("d-new") {
		t.Fatal("new driver must not be claimed")
	}
	m, _ := fx.requests.Get(context.Background(), "req1")
	if m.DriverId != "d-old" {
		t.Fatalf("request must keep its old target, got %s", m.DriverId)
	}
	if got := fx.bus.sent(brokerdto.TopicRequestCancel); len(got) != 0 {
		t.Fatalf("no withdrawal may be published, got %+v", got)
	}
}

func TestReassignValidatesDrivers(t *testing.T) {
	fx := newRedispatchFixture(t)

	if _, err := fx.svc.Reassign(context.Background(), "req1", "d-wrong", "d-new"); !myerrors.IsKind(err, myerrors.KindInvalidArgument) {
		t.Fatalf("wrong old driver: expected InvalidArgument, got %v", err)
	}
	if _, err := fx.svc.Reassign(context.Background(), "req1", "d-old", "c1"); !myerrors.IsKind(err, myerrors.KindForbidden) {
		t.Fatalf("customer as new driver: expected Forbidden, got %v", err)
	}
	if _, err := fx.svc.Reassign(context.Background(), "req1", "d-old", "d-old"); !myerrors.IsKind(err, myerrors.KindInvalidArgument) {
		t.Fatalf("same driver: expected InvalidArgument, got %v", err)
	}
}

func TestCancelAfterReassignFreesCurrentDriver(t *testing.T) {
	fx := newRedispatchFixture(t)

	if _, err := fx.svc.Reassign(context.Background(), "req1", "d-old", "d-new"); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	// The customer still believes d-old is the target; the cancel must act on
	// the pointer the row carries now.
	if _, err := fx.requestSvc().Cancel(context.Background(), "req1", "c1", "d-old"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !fx.presence.isFree("d-new") {
		t.Fatal("current target must be freed on cancel")
	}

	cancels := fx.bus.sent(brokerdto.TopicRequestCancel)
	// one withdrawal from the reassign to d-old, one cancellation to d-new
	if len(cancels) != 2 || cancels[1].recipients[0] != "d-new" {
		t.Fatalf("expected cancellation notice to d-new, got %+v", cancels)
	}
}

func TestConcurrentCancelAndReassignLeaveNoDriverStuck(t *testing.T) {
	fx := newRedispatchFixture(t)
	reqSvc := fx.requestSvc()

	var wg sync.WaitGroup
	var cancelErr, reassignErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = reqSvc.Cancel(context.Background(), "req1", "c1", "d-old")
	}()
	go func() {
		defer wg.Done()
		_, reassignErr = fx.svc.Reassign(context.Background(), "req1", "d-old", "d-new")
	}()
	wg.Wait()

	if cancelErr != nil {
		t.Fatalf("cancel must win in either order, got %v", cancelErr)
	}
	if reassignErr != nil && !myerrors.IsKind(reassignErr, myerrors.KindInvalidState) {
		t.Fatalf("reassign may only fail with InvalidState, got %v", reassignErr)
	}

	m, _ := fx.requests.Get(context.Background(), "req1")
	if m.Status != model.SearchCancelled {
		t.Fatalf("request must end CANCELLED, got %s", m.Status)
	}
	if !fx.presence.isFree("d-old") || !fx.presence.isFree("d-new") {
		t.Fatal("no driver may stay claimed against a cancelled request")
	}
}
