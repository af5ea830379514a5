package services

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"ride-dispatch/internal/dispatch/core/domain/brokerdto"
	"ride-dispatch/internal/dispatch/core/domain/dto"
	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/myerrors"
)

func str(s string) *string { return &s }

func newRequestFixture() (*RequestService, *fakeUsers, *fakePresence, *fakeRequests, *fakeBus) {
	users := newFakeUsers(
		model.User{ID: "c1", Username: "alice", Role: model.RoleCustomer, Star: 4.7, Active: true},
		model.User{ID: "d1", Username: "bob", Role: model.RoleDriver, Active: true},
		model.User{ID: "d2", Username: "carol", Role: model.RoleDriver, Active: true},
		model.User{ID: "inactive", Role: model.RoleCustomer, Active: false},
	)
	presence := newFakePresence()
	presence.setStatus("d1", true, true)
	presence.setStatus("d2", true, true)
	requests := newFakeRequests()
	bus := &fakeBus{}
	svc := NewRequestService(context.Background(), nopLogger{}, users, users, requests, presence, bus, newFakeImages())
	return svc, users, presence, requests, bus
}

func TestCreateRequestClaimsDriver(t *testing.T) {
	svc, _, presence, _, bus := newRequestFixture()

	res, err := svc.Create(context.Background(), "c1", dto.SearchRequestCreateDto{DriverId: str("d1"), Price: f64(120)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != model.SearchProcessing {
		t.Fatalf("expected PROCESSING, got %s", res.Status)
	}
	if presence.isFree("d1") {
		t.Fatal("driver must be busy after claim")
	}
	sent := bus.sent(brokerdto.TopicRequestNew)
	if len(sent) != 1 || sent[0].recipients[0] != "d1" {
		t.Fatalf("expected new-request notification to d1, got %+v", sent)
	}
}

func TestCreateRequestLosesClaimRace(t *testing.T) {
	svc, _, presence, _, _ := newRequestFixture()
	presence.setStatus("d1", true, false) // someone else holds him

	_, err := svc.Create(context.Background(), "c1", dto.SearchRequestCreateDto{DriverId: str("d1"), Price: f64(120)})
	if !myerrors.IsKind(err, myerrors.KindDriverUnavailable) {
		t.Fatalf("expected DriverUnavailable, got %v", err)
	}
}

func TestCreateRequestConcurrentClaimSingleWinner(t *testing.T) {
	users := newFakeUsers(
		model.User{ID: "c1", Role: model.RoleCustomer, Active: true},
		model.User{ID: "c2", Role: model.RoleCustomer, Active: true},
		model.User{ID: "d1", Role: model.RoleDriver, Active: true},
	)
	presence := newFakePresence()
	presence.setStatus("d1", true, true)
	requests := newFakeRequests()
	bus := &fakeBus{}
	svc := NewRequestService(context.Background(), nopLogger{}, users, users, requests, presence, bus, newFakeImages())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, customer := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(i int, customer string) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), customer, dto.SearchRequestCreateDto{DriverId: str("d1"), Price: f64(50)})
		}(i, customer)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else if !myerrors.IsKind(err, myerrors.KindDriverUnavailable) {
			t.Fatalf("loser must see DriverUnavailable, got %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("exactly one create must win the driver, got %d", won)
	}
}

func TestCreateRequestRejectsWrongRoles(t *testing.T) {
	svc, _, _, _, _ := newRequestFixture()

	if _, err := svc.Create(context.Background(), "d1", dto.SearchRequestCreateDto{DriverId: str("d2"), Price: f64(10)}); !myerrors.IsKind(err, myerrors.KindForbidden) {
		t.Fatalf("driver as caller: expected Forbidden, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "inactive", dto.SearchRequestCreateDto{DriverId: str("d1"), Price: f64(10)}); !myerrors.IsKind(err, myerrors.KindForbidden) {
		t.Fatalf("inactive caller: expected Forbidden, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "ghost", dto.SearchRequestCreateDto{DriverId: str("d1"), Price: f64(10)}); !myerrors.IsKind(err, myerrors.KindNotFound) {
		t.Fatalf("unknown caller: expected NotFound, got %v", err)
	}
}

func TestCreateRequestStoresAttachments(t *testing.T) {
	svc, _, _, requests, _ := newRequestFixture()

	img := base64.StdEncoding.EncodeToString([]byte("fake-jpeg"))
	res, err := svc.Create(context.Background(), "c1", dto.SearchRequestCreateDto{
		DriverId: str("d1"),
		Price:    f64(90),
		BookingVehicle: &dto.VehicleInfoDto{
			Description: "red scooter",
			Images:      []string{img},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, _ := requests.Get(context.Background(), res.RequestId)
	if m.BookingVehicle == nil || len(m.BookingVehicle.ImageUrls) != 1 {
		t.Fatalf("expected stored attachment url, got %+v", m.BookingVehicle)
	}
}

func TestCompleteRequestTerminalIdempotence(t *testing.T) {
	svc, _, _, _, _ := newRequestFixture()

	res, err := svc.Create(context.Background(), "c1", dto.SearchRequestCreateDto{DriverId: str("d1"), Price: f64(30)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Complete(context.Background(), res.RequestId, "c1"); err != nil {
		t.Fatalf("first complete must succeed: %v", err)
	}
	if _, err := svc.Complete(context.Background(), res.RequestId, "c1"); !myerrors.IsKind(err, myerrors.KindInvalidState) {
		t.Fatalf("second complete must be InvalidState, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), res.RequestId, "c1", ""); !myerrors.IsKind(err, myerrors.KindInvalidState) {
		t.Fatalf("cancel after complete must be InvalidState, got %v", err)
	}
}

func TestCancelRequestNotifiesAndFreesDriver(t *testing.T) {
	svc, _, presence, _, bus := newRequestFixture()

	res, err := svc.Create(context.Background(), "c1", dto.SearchRequestCreateDto{DriverId: str("d1"), Price: f64(30)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if presence.isFree("d1") {
		t.Fatal("driver should be claimed")
	}

	if _, err := svc.Cancel(context.Background(), res.RequestId, "c1", "d1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !presence.isFree("d1") {
		t.Fatal("driver must be freed after cancel")
	}
	sent := bus.sent(brokerdto.TopicRequestCancel)
	if len(sent) != 1 || sent[0].recipients[0] != "d1" {
		t.Fatalf("expected cancel notification to d1, got %+v", sent)
	}
}

func TestRequestOwnershipEnforced(t *testing.T) {
	svc, _, _, _, _ := newRequestFixture()

	res, err := svc.Create(context.Background(), "c1", dto.SearchRequestCreateDto{DriverId: str("d1"), Price: f64(30)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Complete(context.Background(), res.RequestId, "c2"); !myerrors.IsKind(err, myerrors.KindForbidden) {
		t.Fatalf("foreign customer: expected Forbidden, got %v", err)
	}
}

func TestCreateRequestSingleLivePerCustomer(t *testing.T) {
	svc, _, _, _, _ := newRequestFixture()

	if _, err := svc.Create(context.Background(), "c1", dto.SearchRequestCreateDto{DriverId: str("d1"), Price: f64(30)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Create(context.Background(), "c1", dto.SearchRequestCreateDto{DriverId: str("d2"), Price: f64(30)})
	if !myerrors.IsKind(err, myerrors.KindConflict) {
		t.Fatalf("expected Conflict for a second live request, got %v", err)
	}
}
