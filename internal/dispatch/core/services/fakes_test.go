package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/myerrors"
	"ride-dispatch/internal/mylogger"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)         {}
func (nopLogger) Info(string, ...any)          {}
func (nopLogger) Warn(string, ...any)          {}
func (nopLogger) Error(string, error, ...any)  {}
func (n nopLogger) Action(string) mylogger.Logger    { return n }
func (n nopLogger) With(...any) mylogger.Logger      { return n }
func (n nopLogger) WithGroup(string) mylogger.Logger { return n }

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newFakeUsers(users ...model.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Get(_ context.Context, id string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, myerrors.E(myerrors.KindNotFound, "user not found")
	}
	return u, nil
}

func (f *fakeUsers) IsActive(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return false, myerrors.E(myerrors.KindNotFound, "user not found")
	}
	return u.Active, nil
}

func (f *fakeUsers) HasRole(_ context.Context, id, role string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return false, myerrors.E(myerrors.KindNotFound, "user not found")
	}
	return u.Role == role, nil
}

type fakePresence struct {
	mu          sync.Mutex
	status      map[string]model.DriverStatus
	locations   map[string]model.DriverLocation
	snaps       []model.DriverSnapshot
	openBooking map[string]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		status:      make(map[string]model.DriverStatus),
		locations:   make(map[string]model.DriverLocation),
		openBooking: make(map[string]bool),
	}
}

func (f *fakePresence) setStatus(driverId string, online, free bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[driverId] = model.DriverStatus{DriverId: driverId, IsOnline: online, IsFree: free}
}

func (f *fakePresence) isFree(driverId string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[driverId].IsFree
}

func (f *fakePresence) UpsertLocation(_ context.Context, driverId string, lat, lon float64) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.locations[driverId] = model.DriverLocation{DriverId: driverId, Latitude: lat, Longitude: lon, UpdatedAt: now}
	return now, nil
}

func (f *fakePresence) SetOnline(_ context.Context, driverId string) (model.DriverStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := model.DriverStatus{DriverId: driverId, IsOnline: true, IsFree: !f.openBooking[driverId]}
	f.status[driverId] = s
	return s, nil
}

func (f *fakePresence) SetOffline(_ context.Context, driverId string) (model.DriverStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := model.DriverStatus{DriverId: driverId, IsOnline: false, IsFree: false}
	f.status[driverId] = s
	return s, nil
}

func (f *fakePresence) SetFree(_ context.Context, driverId string, free bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.status[driverId]
	s.DriverId = driverId
	s.IsFree = free
	f.status[driverId] = s
	return nil
}

func (f *fakePresence) TryClaim(_ context.Context, driverId string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.status[driverId]
	if !ok || !s.IsOnline || !s.IsFree {
		return false, nil
	}
	s.IsFree = false
	f.status[driverId] = s
	return true, nil
}

func (f *fakePresence) BulkSetAllOffline(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.status {
		s.IsOnline = false
		s.IsFree = false
		f.status[id] = s
		n++
	}
	return n, nil
}

func (f *fakePresence) Snapshots(_ context.Context) ([]model.DriverSnapshot, error) {
	return f.snaps, nil
}

func (f *fakePresence) SnapshotsByIds(_ context.Context, ids []string) ([]model.DriverSnapshot, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.DriverSnapshot
	for _, s := range f.snaps {
		if want[s.DriverId] {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeRequests struct {
	mu       sync.Mutex
	requests map[string]model.SearchRequest
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{requests: make(map[string]model.SearchRequest)}
}

func (f *fakeRequests) Create(_ context.Context, req model.SearchRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.CustomerId == req.CustomerId && r.Status == model.SearchProcessing {
			return myerrors.E(myerrors.KindConflict, "customer already has a live request")
		}
	}
	f.requests[req.ID] = req
	return nil
}

func (f *fakeRequests) Get(_ context.Context, id string) (model.SearchRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return model.SearchRequest{}, myerrors.E(myerrors.KindNotFound, "request not found")
	}
	return r, nil
}

func (f *fakeRequests) SetStatus(_ context.Context, id, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	f.requests[id] = r
	return true, nil
}

func (f *fakeRequests) SetDriver(_ context.Context, id, driverId string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != model.SearchProcessing {
		return false, nil
	}
	r.DriverId = driverId
	f.requests[id] = r
	return true, nil
}

type fakeBookings struct {
	mu       sync.Mutex
	bookings map[string]model.Booking
	byReq    map[string]string
	cancels  map[string]model.BookingCancel
	presence *fakePresence
}

func newFakeBookings(p *fakePresence) *fakeBookings {
	return &fakeBookings{
		bookings: make(map[string]model.Booking),
		byReq:    make(map[string]string),
		cancels:  make(map[string]model.BookingCancel),
		presence: p,
	}
}

func (f *fakeBookings) Create(_ context.Context, b model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byReq[b.SearchRequestId]; exists {
		return myerrors.E(myerrors.KindConflict, "booking already exists for this request")
	}
	f.bookings[b.ID] = b
	f.byReq[b.SearchRequestId] = b.ID
	return nil
}

func (f *fakeBookings) Get(_ context.Context, id string) (model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return model.Booking{}, myerrors.E(myerrors.KindNotFound, "booking not found")
	}
	return b, nil
}

func (f *fakeBookings) GetByRequest(_ context.Context, searchRequestId string) (model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byReq[searchRequestId]
	if !ok {
		return model.Booking{}, myerrors.E(myerrors.KindNotFound, "no booking for this request")
	}
	return f.bookings[id], nil
}

func (f *fakeBookings) SetStatus(_ context.Context, id, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	f.bookings[id] = b
	return true, nil
}

func (f *fakeBookings) CompleteTx(ctx context.Context, id string) (model.Booking, error) {
	f.mu.Lock()
	b, ok := f.bookings[id]
	if !ok {
		f.mu.Unlock()
		return model.Booking{}, myerrors.E(myerrors.KindNotFound, "booking not found")
	}
	if b.Status != model.BookingCheckedIn {
		f.mu.Unlock()
		return model.Booking{}, myerrors.Ef(myerrors.KindInvalidState, "illegal transition %s -> %s", b.Status, model.BookingCompleted)
	}
	now := time.Now()
	b.Status = model.BookingCompleted
	b.DropOffTime = &now
	f.bookings[id] = b
	f.mu.Unlock()
	_ = f.presence.SetFree(ctx, b.DriverId, true)
	return b, nil
}

func (f *fakeBookings) CancelTx(ctx context.Context, cancel model.BookingCancel) (model.Booking, error) {
	f.mu.Lock()
	b, ok := f.bookings[cancel.BookingId]
	if !ok {
		f.mu.Unlock()
		return model.Booking{}, myerrors.E(myerrors.KindNotFound, "booking not found")
	}
	if _, exists := f.cancels[cancel.BookingId]; exists {
		f.mu.Unlock()
		return model.Booking{}, myerrors.E(myerrors.KindConflict, "booking already cancelled")
	}
	if !model.BookingOpen(b.Status) {
		f.mu.Unlock()
		return model.Booking{}, myerrors.Ef(myerrors.KindInvalidState, "booking is %s", b.Status)
	}
	f.cancels[cancel.BookingId] = cancel
	b.Status = model.BookingCancelled
	f.bookings[cancel.BookingId] = b
	f.mu.Unlock()
	_ = f.presence.SetFree(ctx, b.DriverId, true)
	return b, nil
}

type published struct {
	topic      string
	recipients []string
	payload    any
}

type fakeBus struct {
	mu   sync.Mutex
	msgs []published
	fail bool
}

func (f *fakeBus) Publish(_ context.Context, topic string, recipients []string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("bus is down")
	}
	f.msgs = append(f.msgs, published{topic: topic, recipients: recipients, payload: payload})
	return nil
}

func (f *fakeBus) sent(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type fakeImages struct {
	mu    sync.Mutex
	blobs map[string][]byte
	n     int
}

func newFakeImages() *fakeImages {
	return &fakeImages{blobs: make(map[string][]byte)}
}

func (f *fakeImages) Save(_ context.Context, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	url := fmt.Sprintf("images/%d", f.n)
	f.blobs[url] = data
	return url, nil
}

func (f *fakeImages) Fetch(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[path]
	if !ok {
		return nil, fmt.Errorf("no blob at %s", path)
	}
	return data, nil
}
