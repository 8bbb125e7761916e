package patient

import (
	"net/http"
	"strconv"

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
	api.POST("/patients", h.Admit)
	api.GET("/patients/active", h.ListActive)
	api.GET("/patients/history", h.History)
	api.POST("/patients/:id/records", h.AppendRecord)
	api.PUT("/patients/:id/records", h.EditRecord)
	api.POST("/patients/:id/discharge", h.Discharge)
	api.GET("/analytics", h.Analytics)
}

func hospitalID(c echo.Context) uuid.UUID {
	return auth.HospitalIDFromContext(c.Request().Context())
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid patient id")
	}
	return id, nil
}

func (h *Handler) Admit(c echo.Context) error {
	var req AdmitRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	p, err := h.svc.Admit(c.Request().Context(), hospitalID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Patient added successfully",
		"patient": p,
	})
}

func (h *Handler) ListActive(c echo.Context) error {
	items, err := h.svc.ListActive(c.Request().Context(), hospitalID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Patients fetched successfully",
		"patients": items,
	})
}

func (h *Handler) History(c echo.Context) error {
	data, err := h.svc.History(c.Request().Context(), hospitalID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "History fetched successfully",
		"data":    data,
	})
}

type appendRecordRequest struct {
	TreatmentRecord *TreatmentRecord `json:"treatmentRecord"`
}

func (h *Handler) AppendRecord(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req appendRecordRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if req.TreatmentRecord == nil {
		return apperr.Validation("Missing treatment record")
	}
	p, err := h.svc.AppendRecord(c.Request().Context(), hospitalID(c), id, *req.TreatmentRecord)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Treatment record added successfully",
		"patient": p,
	})
}

type editRecordRequest struct {
	Date                   RecordDate       `json:"date"`
	UpdatedTreatmentRecord *TreatmentRecord `json:"updatedTreatmentRecord"`
}

func (h *Handler) EditRecord(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req editRecordRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if req.Date.Time().IsZero() || req.UpdatedTreatmentRecord == nil {
		return apperr.Validation("Missing required fields")
	}
	p, err := h.svc.EditRecord(c.Request().Context(), hospitalID(c), id, req.Date.Time(), *req.UpdatedTreatmentRecord)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Treatment record updated successfully",
		"patient": p,
	})
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	summary, err := h.svc.Discharge(c.Request().Context(), hospitalID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Patient discharged",
		"summary": summary,
	})
}

func (h *Handler) Analytics(c echo.Context) error {
	yearParam := c.QueryParam("year")
	if yearParam == "" {
		return apperr.Validation("Year is required")
	}
	year, err := strconv.Atoi(yearParam)
	if err != nil {
		return apperr.Validation("Year must be a number")
	}
	// An absent month or month=0 both mean the whole year.
	month := 0
	if m := c.QueryParam("month"); m != "" {
		if month, err = strconv.Atoi(m); err != nil {
			return apperr.Validation("Month must be a number")
		}
		if month < 0 || month > 12 {
			return apperr.Validation("Month must be between 1 and 12")
		}
	}

	report, err := h.svc.Analytics(c.Request().Context(), hospitalID(c), year, month)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Analytics fetched successfully",
		"analytics": report,
	})
}
