package handle

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ride-dispatch/internal/dispatch/core/domain/dto"
	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/mylogger"
)

type BookingHandler struct {
	bookingService ports.IBookingService
	log            mylogger.Logger
}

func NewBookingHandler(bs ports.IBookingService, log mylogger.Logger) *BookingHandler {
	return &BookingHandler{
		bookingService: bs,
		log:            log,
	}
}

// Create accepts a search request on behalf of the authenticated driver.
func (bh *BookingHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverId := r.Header.Get("X-UserId")

		req := dto.BookingCreateDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		if req.SearchRequestId == nil || *req.SearchRequestId == "" {
			JsonError(w, http.StatusBadRequest, fmt.Errorf("search_request_id is required"))
			return
		}

		res, err := bh.bookingService.Create(r.Context(), *req.SearchRequestId, driverId)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusCreated, res)
	}
}

func (bh *BookingHandler) ChangeStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingId := r.PathValue("booking_id")

		req := dto.BookingStatusDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		if req.Status == nil || *req.Status == "" {
			JsonError(w, http.StatusBadRequest, fmt.Errorf("status is required"))
			return
		}

		res, err := bh.bookingService.ChangeStatus(r.Context(), bookingId, *req.Status)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}

func (bh *BookingHandler) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingId := r.PathValue("booking_id")
		actorId := r.Header.Get("X-UserId")

		req := dto.BookingCancelDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}

		res, err := bh.bookingService.Cancel(r.Context(), bookingId, actorId, req)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}
