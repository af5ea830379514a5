package geocache

import (
	"context"
	"fmt"

	"ride-dispatch/internal/config"
	"ride-dispatch/internal/dispatch/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisGeo mirrors driver locations into a Redis GEO set. It is a prefilter
// only: membership here never overrides the Postgres snapshot.
type RedisGeo struct {
	client *redis.Client
	key    string
}

var _ ports.IGeoIndex = (*RedisGeo)(nil)

func New(cfg config.Redisconfig) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password})
	return &RedisGeo{client: c, key: cfg.GeoKey}
}

func (r *RedisGeo) Upsert(ctx context.Context, driverId string, lat, lon float64) error {
	err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      driverId,
		Latitude:  lat,
		Longitude: lon,
	}).Err()
	if err != nil {
		return fmt.Errorf("geoadd: %w", err)
	}
	return nil
}

func (r *RedisGeo) WithinRadius(ctx context.Context, lat, lon, radiusKm float64) ([]string, error) {
	res, err := r.client.GeoSearch(ctx, r.key, &redis.GeoSearchQuery{
		Latitude:   lat,
		Longitude:  lon,
		Radius:     radiusKm,
		RadiusUnit: "km",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}
	return res, nil
}

func (r *RedisGeo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisGeo) Close() error {
	return r.client.Close()
}
