package model

import "time"

const (
	RoleCustomer = "CUSTOMER"
	RoleDriver   = "DRIVER"

	GenderFemale = "FEMALE"
	GenderMale   = "MALE"
)

// SearchRequest statuses
const (
	SearchProcessing = "PROCESSING"
	SearchCompleted  = "COMPLETED"
	SearchCancelled  = "CANCELLED"
)

// Booking statuses
const (
	BookingAccepted  = "ACCEPTED"
	BookingArrived   = "ARRIVED"
	BookingCheckedIn = "CHECKED_IN"
	BookingCompleted = "COMPLETED"
	BookingCancelled = "CANCELLED"
)

// User is owned by the identity subsystem, the dispatch core only reads it.
type User struct {
	ID             string // uuid
	Username       string
	Role           string
	Gender         string
	IsPublicGender bool
	Priority       int
	Star           float64
	Active         bool
}

type DriverLocation struct {
	DriverId  string // uuid, 1:1 with drivers
	Latitude  float64
	Longitude float64
	UpdatedAt time.Time
}

type DriverStatus struct {
	DriverId  string // uuid, 1:1 with drivers
	IsOnline  bool
	IsFree    bool
	UpdatedAt time.Time
}

type VehicleInfo struct {
	Description string   `json:"description"`
	Plate       string   `json:"plate"`
	ImageUrls   []string `json:"image_urls"`
}

type PersonInfo struct {
	FullName  string   `json:"full_name"`
	Phone     string   `json:"phone"`
	ImageUrls []string `json:"image_urls"`
}

type SearchRequest struct {
	ID             string // uuid
	CustomerId     string // uuid
	DriverId       string // uuid, current target; moves on redispatch
	Status         string
	Price          float64 // opaque, computed by the fare subsystem
	BookingVehicle *VehicleInfo
	BookedPerson   *PersonInfo
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Booking struct {
	ID              string // uuid
	SearchRequestId string // uuid, unique
	DriverId        string // uuid
	Status          string
	DropOffTime     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type BookingCancel struct {
	ID             string // uuid
	BookingId      string // uuid, unique: at most one cancel per booking
	CancelPersonId string // customer or driver uuid
	Reason         string
	ImageUrls      []string
	CreatedAt      time.Time
}

// Candidate is one ranked row of a candidate search.
type Candidate struct {
	DriverId   string
	Latitude   float64
	Longitude  float64
	Priority   int
	Star       float64
	DistanceKm float64
}

// DriverSnapshot is what the finder reads per driver: profile joined with
// live status and last reported location.
type DriverSnapshot struct {
	DriverId       string
	Latitude       float64
	Longitude      float64
	Priority       int
	Star           float64
	Gender         string
	IsPublicGender bool
	IsOnline       bool
	IsFree         bool
}

// Terminal reports whether a search request status admits no further transitions.
func Terminal(status string) bool {
	return status == SearchCompleted || status == SearchCancelled
}

// BookingOpen reports whether a booking status still holds the driver.
func BookingOpen(status string) bool {
	switch status {
	case BookingAccepted, BookingArrived, BookingCheckedIn:
		return true
	}
	return false
}
