package ward

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nir/leitos/internal/platform/auth"
	"github.com/nir/leitos/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.ReadRoles...))
	readGroup.GET("/get-admissao-detalhes", h.GetAdmissionDetails)
	readGroup.GET("/admissoes/:id", h.GetAdmissionDetails)
	readGroup.GET("/leitos", h.ListBeds)
	readGroup.GET("/pacientes", h.ListPatients)
	readGroup.GET("/pacientes/:id", h.GetPatient)

	api.POST("/update-paciente", h.UpdatePatient, auth.RequireRole(auth.EditRoles...))
	api.POST("/alta", h.DischargePatient, auth.RequireRole(auth.DischargeRoles...))
}

func httpError(err error) error {
	return echo.NewHTTPError(StatusCode(err), err.Error())
}

type detailsResponse struct {
	Success bool `json:"success"`
	*AdmissionDetails
}

func (h *Handler) GetAdmissionDetails(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		id = c.QueryParam("id")
	}
	details, err := h.svc.GetAdmissionDetails(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, detailsResponse{Success: true, AdmissionDetails: details})
}

type updatePatientRequest struct {
	PatientID  string `json:"paciente_id" form:"paciente_id"`
	Name       string `json:"nome" form:"nome"`
	CPF        string `json:"cpf" form:"cpf"`
	SUS        string `json:"sus" form:"sus"`
	BirthDate  string `json:"nasc" form:"nasc"`
	Sex        string `json:"sexo" form:"sexo"`
	MotherName string `json:"mae" form:"mae"`
	Phone      string `json:"telefone" form:"telefone"`
	Address    string `json:"endereco" form:"endereco"`
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var req updatePatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, err := h.svc.UpdatePatient(ctx, UpdatePatientInput{
		PatientID:  req.PatientID,
		Name:       req.Name,
		CPF:        req.CPF,
		SUSCard:    req.SUS,
		BirthDate:  req.BirthDate,
		Sex:        req.Sex,
		MotherName: req.MotherName,
		Phone:      req.Phone,
		Address:    req.Address,
		EditedBy:   auth.EditorFromContext(ctx),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "paciente": p})
}

type dischargeRequest struct {
	AdmissionID string `json:"admissao_id" form:"admissao_id"`
	BedID       string `json:"leito_id" form:"leito_id"`
	PatientID   string `json:"paciente_id" form:"paciente_id"`
	Type        string `json:"tipo_alta" form:"tipo_alta"`
	EventTime   string `json:"data_evento" form:"data_evento"`
	Notes       string `json:"detalhes_texto" form:"detalhes_texto"`
}

func (h *Handler) DischargePatient(c echo.Context) error {
	var req dischargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	adm, err := h.svc.DischargePatient(c.Request().Context(), DischargeInput{
		AdmissionID: req.AdmissionID,
		BedID:       req.BedID,
		PatientID:   req.PatientID,
		Type:        req.Type,
		EventTime:   req.EventTime,
		Notes:       req.Notes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "admissao": adm})
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "paciente": p})
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg))
}

func (h *Handler) ListBeds(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := BedFilter{
		Sector: Sector(c.QueryParam("setor")),
		Status: BedStatus(c.QueryParam("status")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	if raw := c.QueryParam("categoria"); raw != "" {
		cat, err := ParseCategory(raw)
		if err != nil {
			return httpError(err)
		}
		f.Category = cat
	}
	beds, total, err := h.svc.ListBeds(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(beds, total, pg))
}
