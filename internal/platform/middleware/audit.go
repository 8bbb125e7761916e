package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
)

// Audit emits one structured "audit" log line per state-changing API call:
// admissions, record edits, discharges and appointment changes. Reads are not
// logged here; the request logger already covers them.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := auditAction(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = apperr.StatusOf(err)
			}

			rid, _ := c.Get("request_id").(string)
			hospital, _ := c.Get("hospital_id").(string)
			logger.Info().
				Str("type", "audit").
				Str("request_id", rid).
				Str("hospital_id", hospital).
				Str("action", action).
				Str("resource", auditResource(req.URL.Path)).
				Str("resource_id", c.Param("id")).
				Int("status", status).
				Bool("succeeded", err == nil && status < 400).
				Msg("mutation")

			return err
		}
	}
}

func auditAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return ""
	}
}

// auditResource names the resource a path acts on:
// /api/v1/patients/:id/discharge -> patients.discharge.
func auditResource(path string) string {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown"
	}
	if len(segments) >= 3 {
		return segments[0] + "." + segments[2]
	}
	return segments[0]
}
