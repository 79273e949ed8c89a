package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/evradar/ev-radar/internal/locations"
	"github.com/evradar/ev-radar/internal/problem"
)

// DefaultChargeMapBaseURL is the Open Charge Map POI endpoint.
const DefaultChargeMapBaseURL = "https://api.openchargemap.io/v3/poi"

// ChargeMapClient fetches points of interest from the Open Charge Map
// directory and normalizes them into the common Location shape.
type ChargeMapClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewChargeMapClient creates a client. An empty baseURL selects the
// production endpoint.
func NewChargeMapClient(client *http.Client, apiKey, baseURL string) *ChargeMapClient {
	if baseURL == "" {
		baseURL = DefaultChargeMapBaseURL
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openchargemap",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &ChargeMapClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		circuit: cb,
	}
}

// chargeMapPOI mirrors the upstream response shape. Normalization is keyed
// to these field names and nowhere else; a second directory source only
// needs its own mapping function.
type chargeMapPOI struct {
	ID          int `json:"ID"`
	AddressInfo struct {
		Title           string `json:"Title"`
		AddressLine1    string `json:"AddressLine1"`
		Town            string `json:"Town"`
		StateOrProvince string `json:"StateOrProvince"`
		Postcode        string `json:"Postcode"`
		Country         *struct {
			Title string `json:"Title"`
		} `json:"Country"`
		Latitude  float64 `json:"Latitude"`
		Longitude float64 `json:"Longitude"`
	} `json:"AddressInfo"`
	OperatorInfo *struct {
		Title string `json:"Title"`
	} `json:"OperatorInfo"`
	Connections []struct {
		ConnectionType *struct {
			Title string `json:"Title"`
		} `json:"ConnectionType"`
		PowerKW    float64 `json:"PowerKW"`
		StatusType *struct {
			IsOperational *bool `json:"IsOperational"`
		} `json:"StatusType"`
	} `json:"Connections"`
	NumberOfPoints int `json:"NumberOfPoints"`
	StatusType     *struct {
		IsOperational *bool `json:"IsOperational"`
	} `json:"StatusType"`
}

// Fetch queries the directory for stations around (lat, lng) and returns the
// normalized result in upstream order. A missing API key is a local
// configuration fault, not an upstream one.
func (c *ChargeMapClient) Fetch(ctx context.Context, lat, lng, radiusKm float64, maxResults int) ([]locations.Location, error) {
	if c.apiKey == "" {
		return nil, problem.New(http.StatusInternalServerError, problem.SlugConfigMissingKey,
			"Configuration Error", "OCM_API_KEY environment variable is not set")
	}

	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	values.Set("distance", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	values.Set("distanceunit", "km")
	values.Set("maxresults", strconv.Itoa(maxResults))
	values.Set("compact", "true")
	values.Set("verbose", "false")
	values.Set("key", c.apiKey)

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
				"Upstream Service Error", fmt.Sprintf("Open Charge Map API returned %s", se.Status))
		}
		return nil, problem.New(http.StatusBadGateway, problem.SlugUpstreamError,
			"Upstream Service Error", fmt.Sprintf("Open Charge Map request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, problem.New(http.StatusBadGateway, problem.SlugUpstreamError,
			"Upstream Service Error", fmt.Sprintf("Open Charge Map API returned %s", resp.Status))
	}

	var pois []chargeMapPOI
	if err := json.NewDecoder(resp.Body).Decode(&pois); err != nil {
		return nil, problem.New(http.StatusBadGateway, problem.SlugUpstreamError,
			"Upstream Service Error", fmt.Sprintf("Open Charge Map returned an unreadable response: %v", err))
	}

	result := make([]locations.Location, 0, len(pois))
	for _, poi := range pois {
		result = append(result, transformPOI(poi))
	}
	return result, nil
}

// transformPOI maps one upstream record into the normalized Location shape.
func transformPOI(poi chargeMapPOI) locations.Location {
	// Distinct connection type labels, first-seen order.
	var connectionTypes []string
	seen := make(map[string]struct{})
	for _, conn := range poi.Connections {
		if conn.ConnectionType == nil || conn.ConnectionType.Title == "" {
			continue
		}
		if _, ok := seen[conn.ConnectionType.Title]; ok {
			continue
		}
		seen[conn.ConnectionType.Title] = struct{}{}
		connectionTypes = append(connectionTypes, conn.ConnectionType.Title)
	}
	if connectionTypes == nil {
		connectionTypes = []string{}
	}

	// Maximum rating across sub-connections; zero or unknown stays null.
	var maxPower float64
	for _, conn := range poi.Connections {
		if conn.PowerKW > maxPower {
			maxPower = conn.PowerKW
		}
	}
	var powerKW *float64
	if maxPower > 0 {
		powerKW = &maxPower
	}

	// Prefer the top-level status flag; fall back to "any sub-connection not
	// explicitly marked unavailable".
	var available bool
	if poi.StatusType != nil && poi.StatusType.IsOperational != nil {
		available = *poi.StatusType.IsOperational
	} else {
		for _, conn := range poi.Connections {
			if conn.StatusType == nil || conn.StatusType.IsOperational == nil || *conn.StatusType.IsOperational {
				available = true
				break
			}
		}
	}

	address := assembleAddress(
		poi.AddressInfo.AddressLine1,
		poi.AddressInfo.Town,
		poi.AddressInfo.StateOrProvince,
		poi.AddressInfo.Postcode,
	)

	name := poi.AddressInfo.Title
	if name == "" {
		name = "Unknown Station"
	}

	var operator *string
	if poi.OperatorInfo != nil && poi.OperatorInfo.Title != "" {
		title := poi.OperatorInfo.Title
		operator = &title
	}

	numberOfPoints := poi.NumberOfPoints
	if numberOfPoints == 0 {
		numberOfPoints = 1
	}

	return locations.Location{
		ID:              strconv.Itoa(poi.ID),
		Name:            name,
		Latitude:        poi.AddressInfo.Latitude,
		Longitude:       poi.AddressInfo.Longitude,
		Address:         address,
		Operator:        operator,
		ConnectionTypes: connectionTypes,
		PowerKW:         powerKW,
		Available:       available,
		NumberOfPoints:  numberOfPoints,
		Source:          locations.SourceTransport,
	}
}

// assembleAddress joins the non-empty fragments with ", ", falling back to a
// fixed placeholder when all are absent.
func assembleAddress(fragments ...string) string {
	var address string
	for _, frag := range fragments {
		if frag == "" {
			continue
		}
		if address != "" {
			address += ", "
		}
		address += frag
	}
	if address == "" {
		return "Address not available"
	}
	return address
}
