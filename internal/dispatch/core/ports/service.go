package ports

import (
	"context"

	"ride-dispatch/internal/dispatch/core/domain/dto"
)

type IPresenceService interface {
	SetLocation(ctx context.Context, driverId string, req dto.LocationUpdateDto) (dto.LocationUpdateResponseDto, error)
	SetOnline(ctx context.Context, driverId string) (dto.PresenceResponseDto, error)
	SetOffline(ctx context.Context, driverId string) (dto.PresenceResponseDto, error)
	BulkSetAllOffline(ctx context.Context) (int64, error)
}

type IFinderService interface {
	FindCandidates(ctx context.Context, customerId string, req dto.CandidateSearchDto) (dto.CandidateSearchResponseDto, error)
}

type IRequestService interface {
	Create(ctx context.Context, customerId string, req dto.SearchRequestCreateDto) (dto.SearchRequestResponseDto, error)
	Complete(ctx context.Context, requestId, customerId string) (dto.SearchRequestResponseDto, error)
	Cancel(ctx context.Context, requestId, customerId, driverId string) (dto.SearchRequestResponseDto, error)
}

type IBookingService interface {
	Create(ctx context.Context, searchRequestId, driverId string) (dto.BookingResponseDto, error)
	ChangeStatus(ctx context.Context, bookingId, newStatus string) (dto.BookingResponseDto, error)
	Cancel(ctx context.Context, bookingId, actorId string, req dto.BookingCancelDto) (dto.BookingResponseDto, error)
}

type IRedispatchService interface {
	Reassign(ctx context.Context, requestId, oldDriverId, newDriverId string) (dto.RedispatchResponseDto, error)
}
