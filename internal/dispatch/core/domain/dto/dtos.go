package dto

// HTTP request/response shapes. Pointers on inbound fields keep
// "absent" distinguishable from zero values during validation.

type LocationUpdateDto struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type LocationUpdateResponseDto struct {
	DriverId  string `json:"driver_id"`
	UpdatedAt string `json:"updated_at"`
}

type PresenceResponseDto struct {
	DriverId string `json:"driver_id"`
	IsOnline bool   `json:"is_online"`
	IsFree   bool   `json:"is_free"`
	Message  string `json:"message"`
}

type CandidateSearchDto struct {
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	RadiusKm   *float64 `json:"radius_km"`
	FemaleOnly bool     `json:"female_only"`
}

type CandidateDto struct {
	DriverId   string  `json:"driver_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Priority   int     `json:"priority"`
	Star       float64 `json:"star"`
	DistanceKm float64 `json:"distance_km"`
}

type CandidateSearchResponseDto struct {
	Candidates []CandidateDto `json:"candidates"`
}

type VehicleInfoDto struct {
	Description string   `json:"description"`
	Plate       string   `json:"plate"`
	Images      []string `json:"images"` // base64 payloads on create, urls on read
}

type PersonInfoDto struct {
	FullName string   `json:"full_name"`
	Phone    string   `json:"phone"`
	Images   []string `json:"images"`
}

type SearchRequestCreateDto struct {
	DriverId       *string         `json:"driver_id"`
	Price          *float64        `json:"price"`
	BookingVehicle *VehicleInfoDto `json:"booking_vehicle,omitempty"`
	BookedPerson   *PersonInfoDto  `json:"booked_person,omitempty"`
}

type SearchRequestResponseDto struct {
	RequestId string  `json:"request_id"`
	DriverId  string  `json:"driver_id"`
	Status    string  `json:"status"`
	Price     float64 `json:"price"`
	CreatedAt string  `json:"created_at"`
}

type SearchRequestCancelDto struct {
	DriverId string `json:"driver_id,omitempty"`
}

type BookingCreateDto struct {
	SearchRequestId *string `json:"search_request_id"`
}

type BookingResponseDto struct {
	BookingId       string `json:"booking_id"`
	SearchRequestId string `json:"search_request_id"`
	DriverId        string `json:"driver_id"`
	Status          string `json:"status"`
	DropOffTime     string `json:"drop_off_time,omitempty"`
}

type BookingStatusDto struct {
	Status *string `json:"status"`
}

type BookingCancelDto struct {
	Reason string   `json:"reason"`
	Images []string `json:"images,omitempty"`
}

type RedispatchDto struct {
	OldDriverId *string `json:"old_driver_id"`
	NewDriverId *string `json:"new_driver_id"`
}

type RedispatchResponseDto struct {
	RequestId string `json:"request_id"`
	DriverId  string `json:"driver_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}
