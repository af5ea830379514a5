package handle

import (
	"encoding/json"
	"net/http"

	"ride-dispatch/internal/dispatch/core/domain/dto"
	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/mylogger"
)

type FinderHandler struct {
	finderService ports.IFinderService
	log           mylogger.Logger
}

func NewFinderHandler(fs ports.IFinderService, log mylogger.Logger) *FinderHandler {
	return &FinderHandler{
		finderService: fs,
		log:           log,
	}
}

func (fh *FinderHandler) Search() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerId := r.Header.Get("X-UserId")

		req := dto.CandidateSearchDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}

		res, err := fh.finderService.FindCandidates(r.Context(), customerId, req)
		if err != nil {
			serviceError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}
