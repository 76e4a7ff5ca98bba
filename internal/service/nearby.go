package service

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository"
)

// DefaultNearbyRadius is how far Nearby looks, in meters.
const DefaultNearbyRadius = 5000.0

const earthRadiusMeters = 6371000.0

// NearbyService finds public events close to a location.
type NearbyService struct {
	repo   repository.PublicEventRepository
	clock  Clock
	radius float64
}

func NewNearbyService(repo repository.PublicEventRepository, clock Clock, radiusMeters float64) *NearbyService {
	if radiusMeters <= 0 {
		radiusMeters = DefaultNearbyRadius
	}
	return &NearbyService{repo: repo, clock: clock, radius: radiusMeters}
}

// Create publishes an event at a location.
func (s *NearbyService) Create(ctx context.Context, userID string, e model.PublicEvent) (*model.PublicEvent, error) {
	e.Name = strings.TrimSpace(e.Name)
	e.Time = strings.TrimSpace(e.Time)
	if e.Name == "" {
		return nil, apperror.ValidationFailed("name", "event name is required")
	}
	date, err := model.ParseDay(string(e.Date))
	if err != nil {
		return nil, apperror.ValidationFailed("date", "not a calendar date")
	}
	if date < s.clock.Today() {
		return nil, apperror.ValidationFailed("date", "event is in the past")
	}
	if err := validateCoordinates(e.Latitude, e.Longitude); err != nil {
		return nil, err
	}

	e.Date = date
	e.CreatedBy = userID
	if err := s.repo.CreatePublicEvent(ctx, &e); err != nil {
		return nil, fmt.Errorf("service/nearby: creating event: %w", err)
	}
	return &e, nil
}

// Nearby returns today's and upcoming events within the radius, nearest
// first, with DistanceMeters filled in.
func (s *NearbyService) Nearby(ctx context.Context, lat, lon float64) ([]model.PublicEvent, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	events, err := s.repo.ListPublicEventsFrom(ctx, s.clock.Today())
	if err != nil {
		return nil, fmt.Errorf("service/nearby: listing events: %w", err)
	}

	out := make([]model.PublicEvent, 0, len(events))
	for _, e := range events {
		d := HaversineMeters(lat, lon, e.Latitude, e.Longitude)
		if d > s.radius {
			continue
		}
		e.DistanceMeters = math.Round(d)
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b model.PublicEvent) int {
		return cmp.Compare(a.DistanceMeters, b.DistanceMeters)
	})
	return out, nil
}

// HaversineMeters is the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return apperror.ValidationFailed("latitude", "latitude must be between -90 and 90")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return apperror.ValidationFailed("longitude", "longitude must be between -180 and 180")
	}
	return nil
}
