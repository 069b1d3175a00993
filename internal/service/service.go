// Package service implements the reservation engine: lifecycle, moves,
// bulk price overrides and room inventory. Every mutating call is one
// store transaction; events and metrics follow a successful commit.
package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"innkeeper/internal/availability"
	"innkeeper/internal/calendar"
	"innkeeper/internal/domain"
	"innkeeper/internal/metrics"
	"innkeeper/internal/overrides"
)

// EventPublisher receives domain events after commit.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// GridCache stores resolved calendars. Implementations must drop entries of
// a room type when it changes.
type GridCache interface {
	GetGrid(ctx context.Context, roomTypeID string, from, to, today calendar.DateKey) (*availability.Grid, bool)
	PutGrid(ctx context.Context, grid *availability.Grid)
}

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	CodePrefix     string
	CodeDigits     int
	CodeAttempts   int
	TrustCaller    bool
	MaxStayNights  int
	MaxGuestsCount int
}

type core struct {
	store     domain.Store
	resolver  *availability.Resolver
	overrides *overrides.Store
	events    EventPublisher
	logger    *zerolog.Logger
}

func newCore(store domain.Store, clock calendar.Clock, events EventPublisher, logger *zerolog.Logger) *core {
	resolver := availability.NewResolver(clock)
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &core{
		store:     store,
		resolver:  resolver,
		overrides: overrides.New(resolver),
		events:    events,
		logger:    logger,
	}
}

func (c *core) publish(eventType string, payload interface{}) {
	if c.events == nil {
		return
	}
	if err := c.events.PublishJSON(eventType, payload); err != nil {
		c.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

// finish records the outcome of op. Caller errors log at warn level.
func (c *core) finish(op string, started time.Time, err error) error {
	metrics.ObserveTx(op, started)
	if err == nil {
		return nil
	}
	kind := domain.Kind(err)
	metrics.IncEngineError(op, kind)
	ev := c.logger.Error()
	if kind != "internal" && kind != "transaction" {
		ev = c.logger.Warn()
	}
	ev.Err(err).Str("op", op).Str("kind", kind).Msg("Engine operation failed")
	return err
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validateStruct converts the first validator failure into a domain.ValidationError.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.Invalid(fe.Field(), describeTag(fe))
	}
	return domain.Invalid("", err.Error())
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "must not be empty"
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func parseDate(field, value string) (calendar.DateKey, error) {
	if value == "" {
		return "", domain.Invalid(field, "must not be empty")
	}
	d, err := calendar.Parse(value)
	if err != nil {
		return "", domain.Invalid(field, err.Error())
	}
	return d, nil
}
