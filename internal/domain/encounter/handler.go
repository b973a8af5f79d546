package encounter

import (
	"net/http"
	"strconv"

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
	api.GET("/atendimentos", h.ListEncounters)
	api.GET("/atendimentos/:id", h.GetEncounter)
	api.POST("/atendimentos", h.CreateEncounter)
	api.PUT("/atendimentos/:id", h.UpdateEncounter)
	api.DELETE("/atendimentos/:id", h.DeleteEncounter)

	api.GET("/transferencias", h.ListTransfers)
	api.GET("/transferencias/:id", h.GetTransfer)
	api.POST("/transferencias", h.CreateTransfer)
	api.PUT("/transferencias/:id", h.UpdateTransfer)
	api.DELETE("/transferencias/:id", h.DeleteTransfer)

	api.GET("/altas", h.ListDischarges)
	api.GET("/altas/:id", h.GetDischarge)
	api.POST("/altas", h.CreateDischarge)
	api.PUT("/altas/:id", h.UpdateDischarge)
	api.DELETE("/altas/:id", h.DeleteDischarge)
}

func parseID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Encounter Handlers --

func (h *Handler) CreateEncounter(c echo.Context) error {
	var e Encounter
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.ID = 0
	if err := h.svc.CreateEncounter(c.Request().Context(), &e); err != nil {
		return httperr.From(err, "encounter not found")
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEncounter(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.GetEncounter(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err, "encounter not found")
	}
	return c.JSON(http.StatusOK, e)
}

// ListEncounters accepts ?cpf= to list one patient's encounters.
func (h *Handler) ListEncounters(c echo.Context) error {
	pg := pagination.FromContext(c)
	out, total, err := h.svc.ListEncounters(c.Request().Context(), c.QueryParam("cpf"), pg.Limit, pg.Offset)
	if err != nil {
		return httperr.From(err, "")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateEncounter(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch EncounterPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.UpdateEncounter(c.Request().Context(), id, &patch)
	if err != nil {
		return httperr.From(err, "encounter not found")
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteEncounter(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteEncounter(c.Request().Context(), id); err != nil {
		return httperr.From(err, "encounter not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Transfer Handlers --

func (h *Handler) CreateTransfer(c echo.Context) error {
	var t Transfer
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.ID = 0
	if err := h.svc.CreateTransfer(c.Request().Context(), &t); err != nil {
		return httperr.From(err, "transfer not found")
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTransfer(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTransfer(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err, "transfer not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTransfers(c echo.Context) error {
	pg := pagination.FromContext(c)
	out, total, err := h.svc.ListTransfers(c.Request().Context(), c.QueryParam("cpf"), pg.Limit, pg.Offset)
	if err != nil {
		return httperr.From(err, "")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateTransfer(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch TransferPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.svc.UpdateTransfer(c.Request().Context(), id, &patch)
	if err != nil {
		return httperr.From(err, "transfer not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTransfer(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTransfer(c.Request().Context(), id); err != nil {
		return httperr.From(err, "transfer not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Discharge Handlers --

func (h *Handler) CreateDischarge(c echo.Context) error {
	var d Discharge
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = 0
	if err := h.svc.CreateDischarge(c.Request().Context(), &d); err != nil {
		return httperr.From(err, "discharge not found")
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDischarge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDischarge(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err, "discharge not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDischarges(c echo.Context) error {
	pg := pagination.FromContext(c)
	out, total, err := h.svc.ListDischarges(c.Request().Context(), c.QueryParam("cpf"), pg.Limit, pg.Offset)
	if err != nil {
		return httperr.From(err, "")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateDischarge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch DischargePatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateDischarge(c.Request().Context(), id, &patch)
	if err != nil {
		return httperr.From(err, "discharge not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDischarge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDischarge(c.Request().Context(), id); err != nil {
		return httperr.From(err, "discharge not found")
	}
	return c.NoContent(http.StatusNoContent)
}
