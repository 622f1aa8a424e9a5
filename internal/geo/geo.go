package geo

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/example/ambulance-dispatch/internal/models"
)

// EarthRadiusKm is the sphere radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometers between two
// (latitude, longitude) points given in degrees. Pure and total: it never
// fails, is symmetric in its arguments, and returns 0 for identical points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Distance is DistanceKm over Coord values.
func Distance(a, b models.Coord) float64 {
	return DistanceKm(a.Lat, a.Lon, b.Lat, b.Lon)
}

// FormatKm renders a distance the way the nearby listing displays it,
// e.g. "1.23 km".
func FormatKm(km float64) string { return fmt.Sprintf("%.2f km", km) }

// FleetIndex is the minimal position-index interface used for driver
// notification fan-out. The authoritative availability state lives in the
// fleet store; the index only answers "who is roughly near here".
type FleetIndex interface {
	Upsert(a models.Ambulance)
	Nearby(lat, lon float64, radiusMeters float64, limit int) []models.Ambulance
}

// Index is the in-memory FleetIndex used when Redis is not configured.
type Index struct {
	mu    sync.RWMutex
	units map[string]models.Ambulance
}

func NewIndex() *Index {
	return &Index{units: make(map[string]models.Ambulance)}
}

func (g *Index) Upsert(a models.Ambulance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a.UpdatedAt = time.Now()
	g.units[a.ID] = a
}

// naive scan; fine for the fleet sizes this serves
func (g *Index) Nearby(lat, lon float64, radiusMeters float64, limit int) []models.Ambulance {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		a    models.Ambulance
		dist float64
	}
	arr := make([]pair, 0, len(g.units))
	for _, a := range g.units {
		d := DistanceKm(lat, lon, a.Location.Lat, a.Location.Lon) * 1000
		if d > radiusMeters {
			continue
		}
		arr = append(arr, pair{a, d})
	}
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Ambulance, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].a)
	}
	return out
}
