package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	msgCreated         = "Patient created successfully"
	msgListed          = "Patients retrieved successfully"
	msgRetrieved       = "Patient retrieved successfully"
	msgInternal        = "Internal server error"
	msgRetrievalFailed = "Failed to retrieve patients"
	msgNotFound        = "Patient not found"
	msgInvalidBody     = "Invalid request body"
)

// Response is the envelope every patient endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/patients", h.CreatePatient)
	g.GET("/patients", h.ListPatients)
	g.GET("/patients/:id", h.GetPatient)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req CreatePatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidBody)
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), req)
	if err != nil {
		if IsClientError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, msgInternal).SetInternal(err)
	}
	return c.JSON(http.StatusCreated, Response{Success: true, Data: p, Message: msgCreated})
}

func (h *Handler) ListPatients(c echo.Context) error {
	patients, err := h.svc.ListPatients(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, msgRetrievalFailed).SetInternal(err)
	}
	views := make([]View, 0, len(patients))
	for _, p := range patients {
		views = append(views, p.View())
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: views, Message: msgListed})
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, msgNotFound)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, msgInternal).SetInternal(err)
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: p, Message: msgRetrieved})
}
