package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ambulance-dispatch/internal/models"
)

// RedisIndex implements FleetIndex using Redis GEO commands. Positions are
// GEOADDed under one key; per-unit metadata lives in a hash.
type RedisIndex struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key, ctx: context.Background()}
}

func (r *RedisIndex) Upsert(a models.Ambulance) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{
		Longitude: a.Location.Lon,
		Latitude:  a.Location.Lat,
		Name:      a.ID,
	}).Result()
	_ = r.client.HSet(r.ctx, metaKey(a.ID), map[string]interface{}{
		"driver":    a.DriverName,
		"vehicle":   a.VehicleNumber,
		"available": strconv.FormatBool(a.Available),
		"updated":   time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisIndex) Nearby(lat, lon float64, radiusMeters float64, limit int) []models.Ambulance {
	res, err := r.client.GeoRadius(r.ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius:    radiusMeters,
		Unit:      "m",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Ambulance, 0, len(res))
	for _, g := range res {
		a := models.Ambulance{ID: g.Name}
		a.Location.Lat = g.Latitude
		a.Location.Lon = g.Longitude
		if m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result(); err == nil {
			a.DriverName = m["driver"]
			a.VehicleNumber = m["vehicle"]
			a.Available = m["available"] == "true"
		}
		out = append(out, a)
	}
	return out
}

func metaKey(id string) string { return "ambulance:meta:" + id }
