package admin

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
	api.GET("/unidades", h.ListUnits)
	api.GET("/unidades/:id", h.GetUnit)
	api.POST("/unidades", h.CreateUnit)
	api.PUT("/unidades/:id", h.UpdateUnit)
	api.DELETE("/unidades/:id", h.DeleteUnit)

	api.GET("/leitos", h.ListBeds)
	api.GET("/leitos/:id", h.GetBed)
	api.POST("/leitos", h.CreateBed)
	api.PUT("/leitos/:id", h.UpdateBed)
	api.DELETE("/leitos/:id", h.DeleteBed)
}

func parseID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Unit Handlers --

func (h *Handler) CreateUnit(c echo.Context) error {
	var u Unit
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u.ID = 0
	if err := h.svc.CreateUnit(c.Request().Context(), &u); err != nil {
		return httperr.From(err, "unit not found")
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUnit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUnit(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err, "unit not found")
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUnits(c echo.Context) error {
	p := pagination.FromContext(c)
	units, total, err := h.svc.ListUnits(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return httperr.From(err, "")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(units, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateUnit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch UnitPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.UpdateUnit(c.Request().Context(), id, &patch)
	if err != nil {
		return httperr.From(err, "unit not found")
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUnit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteUnit(c.Request().Context(), id); err != nil {
		return httperr.From(err, "unit not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Bed Handlers --

func (h *Handler) CreateBed(c echo.Context) error {
	var b Bed
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b.ID = 0
	if err := h.svc.CreateBed(c.Request().Context(), &b); err != nil {
		return httperr.From(err, "bed not found")
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBed(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err, "bed not found")
	}
	return c.JSON(http.StatusOK, b)
}

// ListBeds accepts ?id_unidade= to list the beds of one unit.
func (h *Handler) ListBeds(c echo.Context) error {
	unitID := 0
	if v := c.QueryParam("id_unidade"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid id_unidade")
		}
		unitID = n
	}
	p := pagination.FromContext(c)
	beds, total, err := h.svc.ListBeds(c.Request().Context(), unitID, p.Limit, p.Offset)
	if err != nil {
		return httperr.From(err, "")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(beds, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch BedPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.UpdateBed(c.Request().Context(), id, &patch)
	if err != nil {
		return httperr.From(err, "bed not found")
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBed(c.Request().Context(), id); err != nil {
		return httperr.From(err, "bed not found")
	}
	return c.NoContent(http.StatusNoContent)
}
