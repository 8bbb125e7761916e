package scheduling

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.Book)
	api.GET("/appointments", h.ListDay)
	api.GET("/appointments/full-dates", h.FullDates)
	api.PUT("/appointments/:id", h.Reschedule)
	api.DELETE("/appointments/:id", h.Cancel)
}

func hospitalID(c echo.Context) uuid.UUID {
	return auth.HospitalIDFromContext(c.Request().Context())
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid appointment id")
	}
	return id, nil
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	a, err := h.svc.Book(c.Request().Context(), hospitalID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":     true,
		"message":     "Appointment created",
		"appointment": a,
	})
}

func (h *Handler) ListDay(c echo.Context) error {
	items, err := h.svc.ListDay(c.Request().Context(), hospitalID(c), c.QueryParam("date"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      "Appointments fetched successfully",
		"appointments": items,
	})
}

func (h *Handler) FullDates(c echo.Context) error {
	days, err := h.svc.FullDates(c.Request().Context(), hospitalID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Full dates fetched successfully",
		"fullDates": days,
	})
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	a, err := h.svc.Reschedule(c.Request().Context(), hospitalID(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Appointment updated",
		"data":    a,
	})
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Cancel(c.Request().Context(), hospitalID(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Appointment deleted",
	})
}
