package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/i474232898/templog/internal/metrics"
	"github.com/i474232898/templog/internal/notify"
	"github.com/i474232898/templog/internal/series"
	"github.com/i474232898/templog/internal/series/providers"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
// notes and m may be nil.
func RegisterRoutes(app *fiber.App, service *series.Service, notes *notify.Center, m *metrics.Metrics) {
	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(service.Status())
	})

	// Sparse list, one row per recorded day.
	v1.Get("/entries", func(c *fiber.Ctx) error {
		return c.JSON(service.Entries())
	})

	// Dense list, one point per calendar day with gaps marked missing.
	v1.Get("/series", func(c *fiber.Ctx) error {
		return c.JSON(service.Dense())
	})

	v1.Post("/entries", func(c *fiber.Ctx) error {
		var req addEntryRequest
		if err := c.BodyParser(&req); err != nil {
			return service.Reject(&series.ValidationError{Field: "body", Reason: "not valid JSON"})
		}
		if err := validate.Struct(req); err != nil {
			return service.Reject(validationError(err))
		}

		entries, err := service.AddInput(c.UserContext(), req.Date, req.temperature())
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(series.Densify(entries))
	})

	v1.Delete("/entries/:date", func(c *fiber.Ctx) error {
		raw := c.Params("date")
		date, err := series.ParseDate(raw)
		if err != nil {
			return service.Reject(&series.ValidationError{Field: "date", Value: raw, Reason: "use YYYY-MM-DD"})
		}

		entries, err := service.Delete(c.UserContext(), date)
		if err != nil {
			return err
		}
		return c.JSON(series.Densify(entries))
	})

	v1.Post("/reload", func(c *fiber.Ctx) error {
		if err := service.Load(c.UserContext()); err != nil {
			return err
		}
		return c.JSON(service.Dense())
	})

	v1.Post("/session", func(c *fiber.Ctx) error {
		if err := service.SignIn(c.UserContext()); err != nil {
			return err
		}
		return c.JSON(service.Status())
	})

	v1.Delete("/session", func(c *fiber.Ctx) error {
		service.SignOut()
		return c.SendStatus(fiber.StatusNoContent)
	})

	if notes == nil {
		return
	}

	v1.Get("/notification", func(c *fiber.Ctx) error {
		n, ok := notes.Current()
		if !ok {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(n)
	})

	v1.Delete("/notification/:id", func(c *fiber.Ctx) error {
		if !notes.Dismiss(c.Params("id")) {
			return fiber.NewError(fiber.StatusNotFound, "notification is no longer current")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// ErrorHandler is the centralized error response for the app.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func statusFor(err error) int {
	var ferr *fiber.Error
	switch {
	case errors.As(err, &ferr):
		return ferr.Code
	case errors.Is(err, series.ErrStaleSession):
		return fiber.StatusConflict
	case errors.Is(err, series.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, providers.ErrUnauthorized):
		return fiber.StatusUnauthorized
	}

	switch series.KindOf(err) {
	case series.KindValidation:
		return fiber.StatusBadRequest
	case series.KindAuth:
		return fiber.StatusUnauthorized
	case series.KindProvider:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// validationError turns the first failed validator rule into the domain
// error so it is reported like any other input error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &series.ValidationError{Field: "body", Reason: err.Error()}
	}
	fe := verrs[0]
	verr := &series.ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag()}
	switch fe.Tag() {
	case "required":
		verr.Reason = "is required"
	case "datetime":
		verr.Value = fmt.Sprint(fe.Value())
		verr.Reason = "use YYYY-MM-DD"
	}
	return verr
}

// addEntryRequest is the body of POST /entries. Temperature may be sent as a
// JSON number or as the raw text typed into a form ("37,4").
type addEntryRequest struct {
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Temperature json.RawMessage `json:"temperature" validate:"required"`
}

func (r addEntryRequest) temperature() string {
	var s string
	if err := json.Unmarshal(r.Temperature, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(r.Temperature))
}
