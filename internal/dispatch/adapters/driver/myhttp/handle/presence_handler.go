package handle

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ride-dispatch/internal/dispatch/core/domain/dto"
	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/mylogger"
)

type PresenceHandler struct {
	presenceService ports.IPresenceService
	log             mylogger.Logger
}

func NewPresenceHandler(ps ports.IPresenceService, log mylogger.Logger) *PresenceHandler {
	return &PresenceHandler{
		presenceService: ps,
		log:             log,
	}
}

func (ph *PresenceHandler) SetLocation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverId := r.PathValue("driver_id")
		if driverId != r.Header.Get("X-UserId") {
			JsonError(w, http.StatusForbidden, fmt.Errorf("drivers may only report their own location"))
			return
		}

		req := dto.LocationUpdateDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}

		res, err := ph.presenceService.SetLocation(r.Context(), driverId, req)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}

func (ph *PresenceHandler) SetOnline() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverId := r.PathValue("driver_id")
		if driverId != r.Header.Get("X-UserId") {
			JsonError(w, http.StatusForbidden, fmt.Errorf("drivers may only change their own presence"))
			return
		}

		res, err := ph.presenceService.SetOnline(r.Context(), driverId)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}

func (ph *PresenceHandler) SetOffline() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverId := r.PathValue("driver_id")
		if driverId != r.Header.Get("X-UserId") {
			JsonError(w, http.StatusForbidden, fmt.Errorf("drivers may only change their own presence"))
			return
		}

		res, err := ph.presenceService.SetOffline(r.Context(), driverId)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}

// OfflineSweep is the maintenance endpoint that marks every driver offline,
// used after a full restart when no presence reports can be trusted.
func (ph *PresenceHandler) OfflineSweep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		affected, err := ph.presenceService.BulkSetAllOffline(r.Context())
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, map[string]any{"drivers_offline": affected})
	}
}
