package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/evradar/ev-radar/internal/locations"
	"github.com/evradar/ev-radar/internal/problem"
)

// DefaultWeatherBaseURL is the OpenWeatherMap current-weather endpoint.
const DefaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Defaults used when the upstream reports no weather condition at all.
const (
	defaultWeatherIcon        = "01d"
	defaultWeatherDescription = "Unknown"
)

// WeatherClient fetches a weather snapshot for a point from OpenWeatherMap.
// Weather is optional enrichment: a missing API key yields (nil, nil), never
// an error.
type WeatherClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewWeatherClient creates a client. An empty baseURL selects the production
// endpoint.
func NewWeatherClient(client *http.Client, apiKey, baseURL string) *WeatherClient {
	if baseURL == "" {
		baseURL = DefaultWeatherBaseURL
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &WeatherClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		circuit: cb,
	}
}

type openWeatherResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
		Pressure  float64 `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// Fetch returns the normalized weather at (lat, lng), or nil when no API key
// is configured.
func (c *WeatherClient) Fetch(ctx context.Context, lat, lng float64) (*locations.Weather, error) {
	if c.apiKey == "" {
		return nil, nil
	}

	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	values.Set("appid", c.apiKey)
	values.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", c.baseURL, values.Encode()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := doRequest(ctx, c.client, c.circuit, req)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return nil, problem.New(http.StatusBadGateway, problem.SlugUpstreamError,
				"Weather Service Error", fmt.Sprintf("OpenWeatherMap API returned %s", se.Status))
		}
		return nil, problem.New(http.StatusBadGateway, problem.SlugUpstreamError,
			"Weather Service Error", fmt.Sprintf("OpenWeatherMap request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Sub-5xx statuses mean we built a bad request.
		return nil, problem.New(http.StatusBadRequest, problem.SlugUpstreamError,
			"Weather Service Error", fmt.Sprintf("OpenWeatherMap API returned %s", resp.Status))
	}

	var payload openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, problem.New(http.StatusBadGateway, problem.SlugUpstreamError,
			"Weather Service Error", fmt.Sprintf("OpenWeatherMap returned an unreadable response: %v", err))
	}

	return normalizeWeather(payload), nil
}

func normalizeWeather(payload openWeatherResponse) *locations.Weather {
	description := defaultWeatherDescription
	icon := defaultWeatherIcon
	if len(payload.Weather) > 0 {
		description = payload.Weather[0].Description
		icon = payload.Weather[0].Icon
	}

	label := payload.Name
	if payload.Sys.Country != "" {
		label = fmt.Sprintf("%s, %s", payload.Name, payload.Sys.Country)
	}

	return &locations.Weather{
		Location:    label,
		Temperature: int(math.Round(payload.Main.Temp)),
		FeelsLike:   int(math.Round(payload.Main.FeelsLike)),
		Humidity:    payload.Main.Humidity,
		Description: description,
		Icon:        icon,
		WindSpeed:   int(math.Round(payload.Wind.Speed * 3.6)), // m/s to km/h
		Pressure:    payload.Main.Pressure,
	}
}
