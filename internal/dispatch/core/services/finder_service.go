package services

import (
	"context"
	"sort"

	"ride-dispatch/internal/dispatch/core/domain/brokerdto"
	"ride-dispatch/internal/dispatch/core/domain/dto"
	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/myerrors"
	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/geo"
	"ride-dispatch/internal/mylogger"
	"ride-dispatch/internal/observability"
)

// FinderService is the read path: it never mutates availability, it only
// snapshots it. Callers must re-claim through the request lifecycle, since a
// candidate can go busy between the search and the create call.
type FinderService struct {
	ctx      context.Context
	mylog    mylogger.Logger
	presence ports.IPresenceRepo
	bus      ports.INotificationBus
	geoIndex ports.IGeoIndex // optional prefilter
}

func NewFinderService(ctx context.Context, mylog mylogger.Logger, presence ports.IPresenceRepo, bus ports.INotificationBus, geoIndex ports.IGeoIndex) *FinderService {
	return &FinderService{
		ctx:      ctx,
		mylog:    mylog,
		presence: presence,
		bus:      bus,
		geoIndex: geoIndex,
	}
}

func (fs *FinderService) FindCandidates(ctx context.Context, customerId string, req dto.CandidateSearchDto) (dto.CandidateSearchResponseDto, error) {
	log := fs.mylog.Action("FindCandidates")

	if req.Latitude == nil || req.Longitude == nil || req.RadiusKm == nil {
		return dto.CandidateSearchResponseDto{}, myerrors.E(myerrors.KindInvalidArgument, "latitude, longitude and radius_km are required")
	}
	if !geo.ValidCoords(*req.Latitude, *req.Longitude) {
		return dto.CandidateSearchResponseDto{}, myerrors.E(myerrors.KindInvalidArgument, "coordinates out of range")
	}
	if *req.RadiusKm <= 0 {
		return dto.CandidateSearchResponseDto{}, myerrors.E(myerrors.KindInvalidArgument, "radius_km must be positive")
	}

	snaps, err := fs.snapshots(ctx, *req.Latitude, *req.Longitude, *req.RadiusKm)
	if err != nil {
		log.Error("cannot load driver snapshots", err)
		return dto.CandidateSearchResponseDto{}, myerrors.Wrap(myerrors.KindInternal, "cannot search drivers", err)
	}

	candidates := RankCandidates(snaps, *req.Latitude, *req.Longitude, *req.RadiusKm, req.FemaleOnly)
	observability.CandidateSearchesTotal.Inc()

	// Fire-and-forget: the search result is already computed, a bus outage
	// must not fail the query.
	fs.notifyCustomer(ctx, customerId, candidates)

	res := dto.CandidateSearchResponseDto{Candidates: make([]dto.CandidateDto, 0, len(candidates))}
	for _, c := range candidates {
		res.Candidates = append(res.Candidates, dto.CandidateDto{
			DriverId:   c.DriverId,
			Latitude:   c.Latitude,
			Longitude:  c.Longitude,
			Priority:   c.Priority,
			Star:       c.Star,
			DistanceKm: c.DistanceKm,
		})
	}
	log.Info("candidate search served", "customer_id", customerId, "candidates", len(candidates))
	return res, nil
}

func (fs *FinderService) snapshots(ctx context.Context, lat, lon, radiusKm float64) ([]model.DriverSnapshot, error) {
	if fs.geoIndex == nil {
		return fs.presence.Snapshots(ctx)
	}
	ids, err := fs.geoIndex.WithinRadius(ctx, lat, lon, radiusKm)
	if err != nil {
		// degraded index is not fatal, fall back to the full scan
		fs.mylog.Action("FindCandidates").Warn("geo index query failed, falling back", "err", err.Error())
		return fs.presence.Snapshots(ctx)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return fs.presence.SnapshotsByIds(ctx, ids)
}

func (fs *FinderService) notifyCustomer(ctx context.Context, customerId string, candidates []model.Candidate) {
	payload := brokerdto.CandidateList{Candidates: make([]brokerdto.CandidateView, 0, len(candidates))}
	for _, c := range candidates {
		payload.Candidates = append(payload.Candidates, brokerdto.CandidateView{
			DriverId:   c.DriverId,
			Latitude:   c.Latitude,
			Longitude:  c.Longitude,
			Priority:   c.Priority,
			Star:       c.Star,
			DistanceKm: c.DistanceKm,
		})
	}
	if err := fs.bus.Publish(ctx, brokerdto.TopicCandidates, []string{customerId}, payload); err != nil {
		observability.NotifyFailuresTotal.WithLabelValues(brokerdto.TopicCandidates).Inc()
		fs.mylog.Action("FindCandidates").Warn("candidate notification publish failed", "customer_id", customerId, "err", err.Error())
	}
}

// RankCandidates filters a snapshot set down to eligible drivers inside the
// radius and orders them by priority, then star, both descending. Drivers are
// deduplicated by id.
func RankCandidates(snaps []model.DriverSnapshot, lat, lon, radiusKm float64, femaleOnly bool) []model.Candidate {
	seen := make(map[string]bool, len(snaps))
	out := make([]model.Candidate, 0, len(snaps))
	for _, s := range snaps {
		if seen[s.DriverId] {
			continue
		}
		if !s.IsOnline || !s.IsFree {
			continue
		}
		if femaleOnly && (s.Gender != model.GenderFemale || !s.IsPublicGender) {
			continue
		}
		d := geo.Haversine(lat, lon, s.Latitude, s.Longitude)
		if d > radiusKm {
			continue
		}
		seen[s.DriverId] = true
		out = append(out, model.Candidate{
			DriverId:   s.DriverId,
			Latitude:   s.Latitude,
			Longitude:  s.Longitude,
			Priority:   s.Priority,
			Star:       s.Star,
			DistanceKm: d,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Star > out[j].Star
	})
	return out
}
