// Package mapclient is the client-side library consumed by the map UI: an
// API consumer for the locations endpoint, a geographically-pruned result
// cache, and the viewport change detection that gates when queries are
// issued.
package mapclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/evradar/ev-radar/internal/locations"
	"github.com/evradar/ev-radar/internal/problem"
)

// Client talks to the ev-radar HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an API client for the given server base URL.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// Locations queries the aggregate endpoint for the given bounds.
func (c *Client) Locations(ctx context.Context, bounds locations.MapBounds) (*locations.Response, error) {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(bounds.Lat, 'f', -1, 64))
	values.Set("lng", strconv.FormatFloat(bounds.Lng, 'f', -1, 64))
	values.Set("radius", strconv.FormatFloat(bounds.RadiusKm, 'f', -1, 64))

	var result locations.Response
	if err := c.getJSON(ctx, fmt.Sprintf("%s/api/locations?%s", c.baseURL, values.Encode()), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health reports the server's health status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	var result struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/health", &result); err != nil {
		return "", err
	}
	return result.Data.Status, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeFailure(resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return &problem.Error{
			Status: resp.StatusCode,
			Title:  "Invalid Response",
			Detail: "expected JSON response from server",
		}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeFailure turns a non-success response into a *problem.Error,
// preserving the problem-details body when the server sent one.
func decodeFailure(resp *http.Response) error {
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/problem+json") || strings.Contains(contentType, "application/json") {
		var details problem.Details
		if err := json.NewDecoder(resp.Body).Decode(&details); err == nil && details.Title != "" {
			return problem.FromDetails(details)
		}
	}

	title := resp.Status
	if title == "" {
		title = "Request Failed"
	}
	return &problem.Error{Status: resp.StatusCode, Title: title}
}

// ErrorInfo is a user-presentable rendering of a request failure. The UI
// shows Title/Message and offers a manual retry for recoverable cases.
type ErrorInfo struct {
	Title       string
	Message     string
	ProblemType string
}

// DescribeError maps known problem-type slugs to tailored user messages.
func DescribeError(err error) ErrorInfo {
	var perr *problem.Error
	if errors.As(err, &perr) {
		switch perr.Slug {
		case problem.SlugConfigMissingKey:
			return ErrorInfo{
				Title:       "Server configuration error",
				Message:     "The EV charging data service is not configured correctly.",
				ProblemType: perr.Slug,
			}
		case problem.SlugUpstreamError:
			msg := perr.Detail
			if msg == "" {
				msg = "An upstream service is unavailable"
			}
			return ErrorInfo{Title: perr.Title, Message: msg, ProblemType: perr.Slug}
		}

		msg := perr.Detail
		if msg == "" {
			msg = perr.Title
		}
		return ErrorInfo{Title: perr.Title, Message: msg, ProblemType: perr.Slug}
	}

	if err != nil {
		return ErrorInfo{Title: "Error loading data", Message: err.Error()}
	}
	return ErrorInfo{Title: "Error loading data", Message: "Failed to load data"}
}
