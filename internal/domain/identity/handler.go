package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rhp/rhp/internal/platform/httperr"
	"github.com/rhp/rhp/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/pacientes", h.ListPatients)
	api.GET("/pacientes/:cpf", h.GetPatient)
	api.POST("/pacientes", h.CreatePatient)
	api.PUT("/pacientes/:cpf", h.UpdatePatient)
	api.DELETE("/pacientes/:cpf", h.DeletePatient)

	api.GET("/profissionais", h.ListProfessionals)
	api.GET("/profissionais/:cpf", h.GetProfessional)
	api.POST("/profissionais", h.CreateProfessional)
	api.PUT("/profissionais/:cpf", h.UpdateProfessional)
	api.DELETE("/profissionais/:cpf", h.DeleteProfessional)
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = 0
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return httperr.From(err, "patient not found")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("cpf"))
	if err != nil {
		return httperr.From(err, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

// ListPatients accepts ?nome= to search by name.
func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), c.QueryParam("nome"), pg.Limit, pg.Offset)
	if err != nil {
		return httperr.From(err, "")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var patch PatientPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), c.Param("cpf"), &patch)
	if err != nil {
		return httperr.From(err, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.DeletePatient(c.Request().Context(), c.Param("cpf")); err != nil {
		return httperr.From(err, "patient not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Professional Handlers --

func (h *Handler) CreateProfessional(c echo.Context) error {
	var p Professional
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = 0
	if err := h.svc.CreateProfessional(c.Request().Context(), &p); err != nil {
		return httperr.From(err, "professional not found")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProfessional(c echo.Context) error {
	p, err := h.svc.GetProfessional(c.Request().Context(), c.Param("cpf"))
	if err != nil {
		return httperr.From(err, "professional not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListProfessionals(c echo.Context) error {
	pg := pagination.FromContext(c)
	out, total, err := h.svc.ListProfessionals(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httperr.From(err, "")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateProfessional(c echo.Context) error {
	var patch ProfessionalPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateProfessional(c.Request().Context(), c.Param("cpf"), &patch)
	if err != nil {
		return httperr.From(err, "professional not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProfessional(c echo.Context) error {
	if err := h.svc.DeleteProfessional(c.Request().Context(), c.Param("cpf")); err != nil {
		return httperr.From(err, "professional not found")
	}
	return c.NoContent(http.StatusNoContent)
}
