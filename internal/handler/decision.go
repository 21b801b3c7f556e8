package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"shelfcast/internal/decision"
	"shelfcast/internal/domain"
)

// DecisionRequest is the body of POST /api/decisions. Fields left out take
// the defaults below; lag and rolling features default to a flat 20000 a
// week history.
type DecisionRequest struct {
	Store        int      `json:"store" binding:"required,gt=0"`
	Dept         int      `json:"dept" binding:"required,gt=0"`
	CurrentStock *float64 `json:"current_stock" binding:"required,gte=0"`
	// Date is the forecast week as YYYY-MM-DD; empty means today.
	Date    string `json:"date"`
	Horizon string `json:"horizon" default:"week"`

	IsHoliday    bool    `json:"is_holiday"`
	Temperature  float64 `json:"temperature" default:"42.5"`
	FuelPrice    float64 `json:"fuel_price" default:"3.1"`
	MarkDown1    float64 `json:"markdown1"`
	MarkDown2    float64 `json:"markdown2"`
	MarkDown3    float64 `json:"markdown3"`
	MarkDown4    float64 `json:"markdown4"`
	MarkDown5    float64 `json:"markdown5"`
	CPI          float64 `json:"cpi" default:"211.0"`
	Unemployment float64 `json:"unemployment" default:"8.1"`
	Size         float64 `json:"size" default:"151315"`

	Lag1          float64 `json:"lag_1" default:"20000"`
	Lag2          float64 `json:"lag_2" default:"20000"`
	Lag3          float64 `json:"lag_3" default:"20000"`
	Lag4          float64 `json:"lag_4" default:"20000"`
	Lag8          float64 `json:"lag_8" default:"20000"`
	Lag12         float64 `json:"lag_12" default:"20000"`
	Lag16         float64 `json:"lag_16" default:"20000"`
	Lag20         float64 `json:"lag_20" default:"20000"`
	Lag24         float64 `json:"lag_24" default:"20000"`
	RollingMean4  float64 `json:"rolling_mean_4" default:"20000"`
	RollingStd4   float64 `json:"rolling_std_4" default:"1000"`
	RollingMean12 float64 `json:"rolling_mean_12" default:"20000"`
	RollingStd12  float64 `json:"rolling_std_12" default:"1500"`

	HistoricalStd *float64 `json:"historical_std"`
	ServiceLevelZ *float64 `json:"service_level_z"`
	LeadTime      *int     `json:"lead_time"`
	// Advice asks the advisor for an action plan.
	Advice bool `json:"advice" default:"true"`
}

type DecisionResponse struct {
	domain.DecisionRecord
	AISuggestion string `json:"ai_suggestion,omitempty"`
}

type fieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (r DecisionRequest) features(date time.Time) domain.FeatureRow {
	return domain.FeatureRow{
		Store:         r.Store,
		Dept:          r.Dept,
		IsHoliday:     r.IsHoliday,
		Temperature:   r.Temperature,
		FuelPrice:     r.FuelPrice,
		MarkDown1:     r.MarkDown1,
		MarkDown2:     r.MarkDown2,
		MarkDown3:     r.MarkDown3,
		MarkDown4:     r.MarkDown4,
		MarkDown5:     r.MarkDown5,
		CPI:           r.CPI,
		Unemployment:  r.Unemployment,
		Size:          r.Size,
		Lag1:          r.Lag1,
		Lag2:          r.Lag2,
		Lag3:          r.Lag3,
		Lag4:          r.Lag4,
		Lag8:          r.Lag8,
		Lag12:         r.Lag12,
		Lag16:         r.Lag16,
		Lag20:         r.Lag20,
		Lag24:         r.Lag24,
		RollingMean4:  r.RollingMean4,
		RollingStd4:   r.RollingStd4,
		RollingMean12: r.RollingMean12,
		RollingStd12:  r.RollingStd12,
	}.WithCalendar(date)
}

// Decide godoc
// @Summary      Forecast demand and size inventory
// @Description  Blends the active ensemble's forecast for one store department and derives safety stock, reorder point, stock status and order quantity for the chosen horizon
// @Tags         decisions
// @Accept       json
// @Produce      json
// @Param        request  body      DecisionRequest  true  "Decision request"
// @Success      200      {object}  DecisionResponse
// @Failure      400      {object}  map[string]interface{}
// @Failure      422      {object}  map[string]string
// @Failure      503      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/decisions [post]
func (h *Handler) Decide(c *gin.Context) {
	if h.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision service unavailable"})
		return
	}
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.decide")
	defer span.End()

	var req DecisionRequest
	if err := defaults.Set(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": bindingErrors(err)})
		return
	}

	horizon, err := domain.ParseHorizon(req.Horizon)
	if err != nil {
		writeError(c, err)
		return
	}
	date := h.now()
	if req.Date != "" {
		date, err = time.Parse(time.DateOnly, req.Date)
		if err != nil {
			writeError(c, &domain.InvalidFeatureRowError{Feature: "Day", Reason: fmt.Sprintf("date %q is not YYYY-MM-DD", req.Date)})
			return
		}
	}
	historicalStd := h.historicalStd
	if req.HistoricalStd != nil {
		historicalStd = *req.HistoricalStd
	}
	span.SetAttributes(
		attribute.Int("store", req.Store),
		attribute.Int("dept", req.Dept),
		attribute.String("horizon", string(horizon)),
	)

	rec, err := h.decisions.Decide(ctx, decision.Request{
		Features:      req.features(date),
		CurrentStock:  *req.CurrentStock,
		HistoricalStd: historicalStd,
		Horizon:       horizon,
		ServiceLevelZ: req.ServiceLevelZ,
		LeadTimeDays:  req.LeadTime,
	})
	if err != nil {
		span.RecordError(err)
		h.logger.Warn().Err(err).Int("store", req.Store).Int("dept", req.Dept).Msg("decision failed")
		writeError(c, err)
		return
	}

	resp := DecisionResponse{DecisionRecord: rec}
	if req.Advice && h.advisor != nil {
		suggestion, err := h.advisor.Suggest(ctx, rec)
		if err != nil {
			h.logger.Warn().Err(err).Msg("advisor suggestion failed")
		}
		resp.AISuggestion = suggestion
	}
	c.JSON(http.StatusOK, resp)
}

func bindingErrors(err error) []fieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Code: "ERR_INVALID_BODY", Message: err.Error()}}
	}
	out := make([]fieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, fieldError{
			Code:    "ERR_" + strings.ToUpper(e.Tag()),
			Field:   e.Field(),
			Message: validationMessage(e),
		})
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
	}
}
