package hospitals

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/example/ambulance-dispatch/internal/models"
)

// GooglePlaces implements PlacesProvider against the Google Places
// Nearby Search API, filtered to the hospital place type.
type GooglePlaces struct {
	client  *maps.Client
	timeout time.Duration
}

func NewGooglePlaces(apiKey string, timeout time.Duration) (*GooglePlaces, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GooglePlaces{client: client, timeout: timeout}, nil
}

func (g *GooglePlaces) NearbyHospitals(ctx context.Context, center models.Coord, radiusMeters int) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.NearbySearch(ctx, &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: center.Lat, Lng: center.Lon},
		Radius:   uint(radiusMeters),
		Type:     maps.PlaceTypeHospital,
	})
	if err != nil {
		return nil, fmt.Errorf("places nearby search: %w", err)
	}

	out := make([]Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Name == "" {
			continue
		}
		out = append(out, Candidate{
			Name:    r.Name,
			Address: r.Vicinity,
			Location: models.Coord{
				Lat: r.Geometry.Location.Lat,
				Lon: r.Geometry.Location.Lng,
			},
		})
	}
	return out, nil
}
