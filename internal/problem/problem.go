// Package problem implements RFC 7807 problem-details error responses.
package problem

import "fmt"

// TypeBase is the base URI under which problem type slugs are published.
const TypeBase = "https://api.ev-radar.dev/problems"

// Problem type slugs used across the API.
const (
	SlugValidationError  = "validation-error"
	SlugConfigMissingKey = "config-missing-api-key"
	SlugUpstreamError    = "upstream-service-error"
	SlugInternalError    = "internal-error"
	SlugNotFound         = "not-found"
)

// Details is the wire shape of an RFC 7807 response.
type Details struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// Error is an application error that maps onto a problem-details response.
type Error struct {
	Status int
	Slug   string
	Title  string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

// New creates a problem Error.
func New(status int, slug, title, detail string) *Error {
	return &Error{Status: status, Slug: slug, Title: title, Detail: detail}
}

// Details renders the error as an RFC 7807 body for the given request path.
func (e *Error) Details(instance string) Details {
	return Details{
		Type:     fmt.Sprintf("%s/%s", TypeBase, e.Slug),
		Title:    e.Title,
		Status:   e.Status,
		Detail:   e.Detail,
		Instance: instance,
	}
}

// FromDetails reconstructs an Error from a decoded problem-details body,
// e.g. on the client side of the API.
func FromDetails(d Details) *Error {
	return &Error{
		Status: d.Status,
		Slug:   SlugFromType(d.Type),
		Title:  d.Title,
		Detail: d.Detail,
	}
}

// SlugFromType extracts the trailing slug from a problem type URI.
// "about:blank" and empty URIs yield an empty slug.
func SlugFromType(typeURI string) string {
	if typeURI == "" || typeURI == "about:blank" {
		return ""
	}
	for i := len(typeURI) - 1; i >= 0; i-- {
		if typeURI[i] == '/' {
			return typeURI[i+1:]
		}
	}
	return typeURI
}
