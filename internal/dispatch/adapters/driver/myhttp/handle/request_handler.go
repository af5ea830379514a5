package handle

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ride-dispatch/internal/dispatch/core/domain/dto"
	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/mylogger"
)

type RequestHandler struct {
	requestService    ports.IRequestService
	redispatchService ports.IRedispatchService
	log               mylogger.Logger
}

func NewRequestHandler(rs ports.IRequestService, rd ports.IRedispatchService, log mylogger.Logger) *RequestHandler {
	return &RequestHandler{
		requestService:    rs,
		redispatchService: rd,
		log:               log,
	}
}

func (rh *RequestHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerId := r.Header.Get("X-UserId")

		req := dto.SearchRequestCreateDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}

		res, err := rh.requestService.Create(r.Context(), customerId, req)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusCreated, res)
	}
}

func (rh *RequestHandler) Complete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestId := r.PathValue("request_id")
		customerId := r.Header.Get("X-UserId")

		res, err := rh.requestService.Complete(r.Context(), requestId, customerId)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}

func (rh *RequestHandler) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestId := r.PathValue("request_id")
		customerId := r.Header.Get("X-UserId")

		req := dto.SearchRequestCancelDto{}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				JsonError(w, http.StatusBadRequest, err)
				return
			}
		}

		res, err := rh.requestService.Cancel(r.Context(), requestId, customerId, req.DriverId)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}

func (rh *RequestHandler) Redispatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestId := r.PathValue("request_id")

		req := dto.RedispatchDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		if req.OldDriverId == nil || req.NewDriverId == nil {
			JsonError(w, http.StatusBadRequest, fmt.Errorf("old_driver_id and new_driver_id are required"))
			return
		}

		res, err := rh.redispatchService.Reassign(r.Context(), requestId, *req.OldDriverId, *req.NewDriverId)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}
