package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"signal-bridge/internal/metrics"
)

const contextKeyRequestID = "request_id"

// RequestID tags every request with an id, reusing the caller's when present.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(contextKeyRequestID, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// RequestIDFrom returns the id assigned by RequestID.
func RequestIDFrom(c echo.Context) string {
	id, _ := c.Get(contextKeyRequestID).(string)
	return id
}

// Recover turns handler panics into a 500 envelope.
func Recover(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					perr, ok := r.(error)
					if !ok {
						perr = fmt.Errorf("%v", r)
					}
					logger.Error().
						Err(perr).
						Str("request_id", RequestIDFrom(c)).
						Str("stack", string(debug.Stack())).
						Msg("panic recovered")
					err = AppErrorResponse(c, InternalError("Internal Server Error"))
				}
			}()
			return next(c)
		}
	}
}

// RequestLogging logs one line per request.
func RequestLogging(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			event := logger.Info()
			switch {
			case status >= http.StatusInternalServerError:
				event = logger.Error()
			case status >= http.StatusBadRequest:
				event = logger.Warn()
			}
			event.
				Str("request_id", RequestIDFrom(c)).
				Str("method", req.Method).
				Str("route", routeLabel(c)).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote", c.RealIP()).
				Msg("http request")
			return nil
		}
	}
}

// Metrics records request counts and latency with templated route labels.
func Metrics(recorder *metrics.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				var appErr *AppError
				switch {
				case errors.As(err, &he):
					status = he.Code
				case errors.As(err, &appErr):
					status = appErr.Status
				default:
					status = http.StatusInternalServerError
				}
			}
			recorder.RecordHTTP(routeLabel(c), c.Request().Method, status, time.Since(start).Seconds())
			return err
		}
	}
}

// routeLabel prefers the matched route template to keep label cardinality low.
func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
