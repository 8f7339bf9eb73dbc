package occupancy

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nir/leitos/internal/platform/auth"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.ReadRoles...))
	readGroup.GET("/mapa-leitos", h.GetBedMap)
	readGroup.GET("/mapa-leitos/export.xlsx", h.ExportBedMap)
	readGroup.GET("/stats", h.GetDashboard)
}

type bedMapResponse struct {
	Success bool `json:"success"`
	*BedMap
}

type dashboardResponse struct {
	Success bool `json:"success"`
	*Dashboard
}

func (h *Handler) GetBedMap(c echo.Context) error {
	m, err := h.svc.BedMap(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, bedMapResponse{Success: true, BedMap: m})
}

func (h *Handler) GetDashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, dashboardResponse{Success: true, Dashboard: d})
}

func (h *Handler) ExportBedMap(c echo.Context) error {
	m, err := h.svc.BedMap(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	data, err := ExportBedMap(m)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := fmt.Sprintf("censo-leitos-%s.xlsx", h.svc.clock.Now().Format("20060102-1504"))
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+name)
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
