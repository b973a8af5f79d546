package staging

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrReplayRunning is returned by a Trigger when a pass is already in flight.
var ErrReplayRunning = errors.New("replay pass already running")

// Trigger starts one replay pass in the background.
type Trigger func() error

// Handler exposes the staging area over HTTP.
type Handler struct {
	store   *Store
	trigger Trigger
}

// NewHandler builds the handler. trigger may be nil, in which case the
// replay endpoint is not registered.
func NewHandler(store *Store, trigger Trigger) *Handler {
	return &Handler{store: store, trigger: trigger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/staging", h.Status)
	if h.trigger != nil {
		api.POST("/staging/replay", h.Replay)
	}
}

// Status lists pending record counts per (action, entity).
func (h *Handler) Status(c echo.Context) error {
	pending, err := h.store.Pending(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read staging area").SetInternal(err)
	}
	total := 0
	for _, p := range pending {
		total += p.Files
	}
	if pending == nil {
		pending = []Pending{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"pending": pending,
		"total":   total,
	})
}

// Replay starts a pass and answers 202, or 409 while another pass is
// running. Progress shows up in Status as partitions drain.
func (h *Handler) Replay(c echo.Context) error {
	err := h.trigger()
	if errors.Is(err, ErrReplayRunning) {
		return echo.NewHTTPError(http.StatusConflict, "a replay pass is already running")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "replay failed").SetInternal(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "replay pass started"})
}
