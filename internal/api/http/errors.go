package httpapi

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"

	"github.com/evradar/ev-radar/internal/problem"
)

// MIMEProblemJSON is the content type of RFC 7807 responses.
const MIMEProblemJSON = "application/problem+json"

// ErrorHandler renders every handler error as an RFC 7807 problem response.
// Unknown errors become an opaque internal-error: no detail leaks to the
// client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var perr *problem.Error
	if errors.As(err, &perr) {
		return renderProblem(c, perr)
	}

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		slug := problem.SlugInternalError
		if ferr.Code == fiber.StatusNotFound {
			slug = problem.SlugNotFound
		}
		return renderProblem(c, problem.New(ferr.Code, slug, utils.StatusMessage(ferr.Code), ferr.Message))
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	return renderProblem(c, problem.New(fiber.StatusInternalServerError, problem.SlugInternalError,
		"Internal Server Error", ""))
}

// NotFoundHandler is the catch-all for unmatched routes.
func NotFoundHandler(c *fiber.Ctx) error {
	return renderProblem(c, problem.New(fiber.StatusNotFound, problem.SlugNotFound,
		"Not Found", fmt.Sprintf("The requested resource %s was not found", c.Path())))
}

func renderProblem(c *fiber.Ctx, perr *problem.Error) error {
	if err := c.Status(perr.Status).JSON(perr.Details(c.Path())); err != nil {
		return err
	}
	// c.JSON stamps application/json; the problem media type wins.
	c.Set(fiber.HeaderContentType, MIMEProblemJSON)
	return nil
}
