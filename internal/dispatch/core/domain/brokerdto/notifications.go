package brokerdto

import "ride-dispatch/internal/dispatch/core/domain/model"

// Notification topics. The bus adapter maps these onto routing keys.
const (
	TopicCandidates    = "dispatch.candidates"
	TopicRequestNew    = "dispatch.request.new"
	TopicRequestCancel = "dispatch.request.cancel"
	TopicBookingUpdate = "dispatch.booking.update"
)

type CandidateView struct {
	DriverId   string  `json:"driver_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Priority   int     `json:"priority"`
	Star       float64 `json:"star"`
	DistanceKm float64 `json:"distance_km"`
}

// CandidateList is pushed to the searching customer after every candidate query.
type CandidateList struct {
	Candidates []CandidateView `json:"candidates"`
}

type CustomerProfile struct {
	CustomerId string  `json:"customer_id"`
	Username   string  `json:"username"`
	Star       float64 `json:"star"`
}

type VehicleView struct {
	Description string   `json:"description"`
	Plate       string   `json:"plate"`
	Images      []string `json:"images"` // re-encoded for transport
}

type PersonView struct {
	FullName string   `json:"full_name"`
	Phone    string   `json:"phone"`
	Images   []string `json:"images"`
}

// RequestView is the driver-facing materialization of a SearchRequest.
// Its Status field is a view attribute, not necessarily the persisted one:
// redispatch sends the withdrawn driver a copy with status CANCELLED while
// the stored request stays PROCESSING.
type RequestView struct {
	RequestId string           `json:"request_id"`
	DriverId  string           `json:"driver_id"`
	Status    string           `json:"status"`
	Price     float64          `json:"price"`
	Customer  *CustomerProfile `json:"customer,omitempty"`
	Vehicle   *VehicleView     `json:"vehicle,omitempty"`
	Person    *PersonView      `json:"person,omitempty"`
}

// RenderRequestView materializes a request for one recipient without touching
// the persisted entity. statusOverride replaces the stored status when non-empty.
func RenderRequestView(req model.SearchRequest, customer *model.User, statusOverride string, vehicleImages, personImages []string) RequestView {
	status := req.Status
	if statusOverride != "" {
		status = statusOverride
	}
	v := RequestView{
		RequestId: req.ID,
		DriverId:  req.DriverId,
		Status:    status,
		Price:     req.Price,
	}
	if customer != nil {
		v.Customer = &CustomerProfile{
			CustomerId: customer.ID,
			Username:   customer.Username,
			Star:       customer.Star,
		}
	}
	if req.BookingVehicle != nil {
		v.Vehicle = &VehicleView{
			Description: req.BookingVehicle.Description,
			Plate:       req.BookingVehicle.Plate,
			Images:      vehicleImages,
		}
	}
	if req.BookedPerson != nil {
		v.Person = &PersonView{
			FullName: req.BookedPerson.FullName,
			Phone:    req.BookedPerson.Phone,
			Images:   personImages,
		}
	}
	return v
}

type CancelDetails struct {
	CancelPersonId string   `json:"cancel_person_id"`
	Reason         string   `json:"reason"`
	Images         []string `json:"images,omitempty"`
}

// BookingUpdate goes to the counter-party on every booking transition.
type BookingUpdate struct {
	BookingId       string         `json:"booking_id"`
	SearchRequestId string         `json:"search_request_id"`
	DriverId        string         `json:"driver_id"`
	Status          string         `json:"status"`
	DropOffTime     string         `json:"drop_off_time,omitempty"`
	Cancel          *CancelDetails `json:"cancel,omitempty"`
}
