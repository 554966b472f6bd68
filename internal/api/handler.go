package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"rocengine/internal/indicator"
	"rocengine/internal/model"

	"github.com/labstack/echo/v4"
)

// Controller is the engine surface the API drives. Implementations must be
// safe for concurrent use.
type Controller interface {
	Configs() []indicator.Config
	Keys() []string
	Latest(key string) ([]model.IndicatorResult, bool)
	History(key, name string) ([]float64, bool)
	Peek(obs model.Observation) []model.IndicatorResult
	Reload(configs []indicator.Config) (preserved, created int, err error)
	Reset(key string) bool
	ResetAll() int
}

// ReloadRequest is the POST /v1/reload body.
type ReloadRequest struct {
	Indicators []IndicatorSpec `json:"indicators" validate:"required,min=1,dive"`
}

// IndicatorSpec names one indicator. An omitted variant means ROC.
type IndicatorSpec struct {
	Variant string `json:"variant" default:"ROC"`
	Period  int    `json:"period" validate:"required,gte=1"`
}

// ReloadResponse reports how many instances survived a reload.
type ReloadResponse struct {
	Preserved  int    `json:"preserved"`
	Created    int    `json:"created"`
	Indicators string `json:"indicators"`
}

type handler struct {
	ctrl Controller
}

func (h *handler) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/v1")
	v1.GET("/indicators", h.listIndicators)
	v1.GET("/instruments", h.listInstruments)
	v1.GET("/latest/:exchange/:token", h.latest)
	v1.GET("/history/:exchange/:token/:name", h.history)
	v1.GET("/peek/:exchange/:token", h.peek)
	v1.POST("/reload", h.reload)
	v1.POST("/reset/:exchange/:token", h.resetInstrument)
	v1.POST("/reset", h.resetAll)
}

func instrumentKey(c echo.Context) string {
	return c.Param("exchange") + ":" + c.Param("token")
}

func (h *handler) listIndicators(c echo.Context) error {
	return successResponse(c, h.ctrl.Configs())
}

// Instrument is one tracked instrument in GET /v1/instruments.
type Instrument struct {
	Key      string `json:"key"`
	Exchange string `json:"exchange"`
	Token    string `json:"token"`
}

func (h *handler) listInstruments(c echo.Context) error {
	keys := h.ctrl.Keys()
	out := make([]Instrument, len(keys))
	for i, key := range keys {
		exchange, token := model.SplitKey(key)
		out[i] = Instrument{Key: key, Exchange: exchange, Token: token}
	}
	return successResponse(c, out)
}

func (h *handler) latest(c echo.Context) error {
	key := instrumentKey(c)
	results, ok := h.ctrl.Latest(key)
	if !ok {
		return notFoundResponse(c, "no results for "+key)
	}
	return successResponse(c, results)
}

func (h *handler) history(c echo.Context) error {
	key := instrumentKey(c)
	values, ok := h.ctrl.History(key, c.Param("name"))
	if !ok {
		return notFoundResponse(c, "no history for "+c.Param("name")+" on "+key)
	}
	return successResponse(c, map[string]interface{}{
		"name":   c.Param("name"),
		"key":    key,
		"values": values,
	})
}

// peek previews ?value= against current state without consuming it.
func (h *handler) peek(c echo.Context) error {
	value, err := strconv.ParseFloat(c.QueryParam("value"), 64)
	if err != nil {
		return badRequestResponse(c, []ValidationError{{
			Code:    "ERR_INVALID_VALUE",
			Field:   "value",
			Message: "value must be a number",
		}})
	}
	obs := model.Observation{
		Exchange: c.Param("exchange"),
		Token:    c.Param("token"),
		Value:    value,
		TS:       time.Now().UTC(),
	}
	results := h.ctrl.Peek(obs)
	if results == nil {
		return notFoundResponse(c, "no state for "+instrumentKey(c))
	}
	return successResponse(c, results)
}

func (h *handler) reload(c echo.Context) error {
	var req ReloadRequest
	if verrs := readAndValidateRequest(c, &req); verrs != nil {
		return badRequestResponse(c, verrs)
	}

	configs := make([]indicator.Config, 0, len(req.Indicators))
	for i, spec := range req.Indicators {
		v, err := indicator.ParseVariant(spec.Variant)
		if err != nil {
			return badRequestResponse(c, []ValidationError{{
				Code:    "ERR_UNKNOWN_VARIANT",
				Field:   "ReloadRequest.Indicators[" + strconv.Itoa(i) + "].Variant",
				Message: err.Error(),
			}})
		}
		configs = append(configs, indicator.Config{Variant: v, Period: spec.Period})
	}

	preserved, created, err := h.ctrl.Reload(configs)
	if err != nil {
		code := "ERR_INVALID_CONFIG"
		if errors.Is(err, indicator.ErrInvalidPeriod) {
			code = "ERR_INVALID_PERIOD"
		}
		return badRequestResponse(c, []ValidationError{{Code: code, Message: err.Error()}})
	}

	return successResponse(c, ReloadResponse{
		Preserved:  preserved,
		Created:    created,
		Indicators: indicator.FormatSpecs(configs),
	})
}

func (h *handler) resetInstrument(c echo.Context) error {
	if !h.ctrl.Reset(instrumentKey(c)) {
		return notFoundResponse(c, "unknown instrument "+instrumentKey(c))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) resetAll(c echo.Context) error {
	return successResponse(c, map[string]int{"reset": h.ctrl.ResetAll()})
}
