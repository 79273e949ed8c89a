package httpapi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/evradar/ev-radar/internal/locations"
	"github.com/evradar/ev-radar/internal/problem"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *locations.Service) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"data": fiber.Map{
				"status":    "ok",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
			"meta": nil,
		})
	})

	app.Get("/api/locations", func(c *fiber.Ctx) error {
		q, err := parseLocationQuery(c)
		if err != nil {
			return err
		}

		result, err := service.Aggregate(c.Context(), *q.Lat, *q.Lng, q.Radius, q.MaxResults)
		if err != nil {
			return err
		}

		return c.JSON(result)
	})
}

// locationQuery holds the validated query parameters of the locations
// endpoint. Lat and Lng are pointers so that 0 counts as provided.
type locationQuery struct {
	Lat        *float64 `validate:"required,gte=-90,lte=90"`
	Lng        *float64 `validate:"required,gte=-180,lte=180"`
	Radius     float64  `validate:"gte=1,lte=100"`
	MaxResults int      `validate:"gte=1,lte=100"`
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	q := locationQuery{
		Radius:     locations.RadiusDefaultKm,
		MaxResults: locations.MaxResultsDefault,
	}

	if raw := c.Query("lat"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, validationError("lat must be a number")
		}
		q.Lat = &v
	}
	if raw := c.Query("lng"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, validationError("lng must be a number")
		}
		q.Lng = &v
	}
	if raw := c.Query("radius"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, validationError("radius must be a number")
		}
		q.Radius = v
	}
	if raw := c.Query("maxResults"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return q, validationError("maxResults must be an integer")
		}
		q.MaxResults = v
	}

	if err := validate.Struct(q); err != nil {
		return q, validationError(describeValidationError(err))
	}

	return q, nil
}

func validationError(detail string) *problem.Error {
	return problem.New(fiber.StatusBadRequest, problem.SlugValidationError, "Validation Error", detail)
}

func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: failed '%s' constraint", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
