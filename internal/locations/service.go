package locations

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// StationSource fetches points of interest around a center. Implemented by
// the charging-station directory client.
type StationSource interface {
	Fetch(ctx context.Context, lat, lng, radiusKm float64, maxResults int) ([]Location, error)
}

// WeatherSource fetches a weather snapshot for a point. A nil snapshot with
// a nil error means weather is not configured.
type WeatherSource interface {
	Fetch(ctx context.Context, lat, lng float64) (*Weather, error)
}

// Service fans out to the upstream sources and merges their results.
type Service struct {
	stations StationSource
	weather  WeatherSource
}

// NewService creates a Service.
func NewService(stations StationSource, weather WeatherSource) *Service {
	return &Service{
		stations: stations,
		weather:  weather,
	}
}

// Aggregate issues both upstream fetches concurrently and joins them.
// Station failures are fatal: stations are the primary data. Weather
// failures of any kind are absorbed and degrade the response to a nil
// weather snapshot.
func (s *Service) Aggregate(ctx context.Context, lat, lng, radiusKm float64, maxResults int) (*Response, error) {
	var (
		wg          sync.WaitGroup
		stations    []Location
		stationsErr error
		weather     *Weather
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		stations, stationsErr = s.stations.Fetch(ctx, lat, lng, radiusKm, maxResults)
	}()

	go func() {
		defer wg.Done()

		w, err := s.weather.Fetch(ctx, lat, lng)
		if err != nil {
			log.Warn().Err(err).
				Float64("lat", lat).
				Float64("lng", lng).
				Msg("weather fetch failed; continuing without weather")
			return
		}
		weather = w
	}()

	wg.Wait()

	if stationsErr != nil {
		return nil, stationsErr
	}

	if stations == nil {
		stations = []Location{}
	}

	return &Response{
		Data: stations,
		Meta: Meta{
			Count:   len(stations),
			Radius:  radiusKm,
			Center:  Coordinates{Lat: lat, Lng: lng},
			Sources: &SourceCounts{Transport: len(stations)},
		},
		Weather: weather,
	}, nil
}
