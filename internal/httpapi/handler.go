package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"signal-bridge/internal/auth"
	"signal-bridge/internal/regime"
	"signal-bridge/internal/service"
	"signal-bridge/internal/signal"
	"signal-bridge/internal/verdict"
	"signal-bridge/internal/version"
)

const maxAlertBytes = 64 << 10

// Bridge is the behaviour the handlers need from the service layer.
type Bridge interface {
	HandleAlert(ctx context.Context, alert signal.TradeAlert) (verdict.Verdict, error)
	CheckRegime(ctx context.Context) (regime.Summary, error)
	NotifyRegime(ctx context.Context, force bool, message string) service.NotifyOutcome
	EnvSanity() service.EnvReport
	OpenAIHealth(ctx context.Context) service.ProbeResult
	TelegramHealth(ctx context.Context) service.ProbeResult
}

// Handler serves the bridge endpoints.
type Handler struct {
	bridge   Bridge
	gate     *auth.Gate
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewHandler constructs the route handlers.
func NewHandler(bridge Bridge, gate *auth.Gate, logger zerolog.Logger) *Handler {
	if gate == nil {
		gate = auth.NewGate(nil)
	}
	return &Handler{
		bridge:   bridge,
		gate:     gate,
		validate: validator.New(),
		logger:   logger.With().Str("component", "http_handler").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts every endpoint except /metrics.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	strict := auth.Middleware(h.gate, false, h.deny)
	deferred := auth.Middleware(h.gate, true, h.deny)

	e.GET("/health", h.Health)
	e.POST("/tv-webhook", h.Webhook, deferred)

	alt := e.Group("/altseason")
	alt.GET("/check", h.Check, strict)
	alt.POST("/notify", h.Notify, deferred)

	e.GET("/env-sanity", h.EnvSanity, strict)
	e.GET("/openai-health", h.OpenAIHealth, strict)
	e.GET("/tg-health", h.TelegramHealth, strict)
}

func (h *Handler) deny(c echo.Context) error {
	return AppErrorResponse(c, UnauthorizedError())
}

// bodyAuthorized completes a deferred gate check with the secret found in
// the body.
func (h *Handler) bodyAuthorized(c echo.Context, secret string) bool {
	return auth.Authorized(c) || h.gate.Check(secret) == nil
}

// Health is a liveness probe.
func (h *Handler) Health(c echo.Context) error {
	return SuccessResponse(c, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"time":    h.now(),
	})
}

// Webhook evaluates one TradingView alert.
func (h *Handler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxAlertBytes+1))
	if err != nil {
		return AppErrorResponse(c, BadRequestError("unable to read body"))
	}
	if len(body) > maxAlertBytes {
		return AppErrorResponse(c, NewAppError("ERR_TOO_LARGE", "body", "alert too large", http.StatusRequestEntityTooLarge))
	}

	var alert signal.TradeAlert
	decodeErr := json.Unmarshal(body, &alert)
	if !auth.Authorized(c) && (decodeErr != nil || !h.bodyAuthorized(c, alert.Secret)) {
		h.logger.Warn().Str("request_id", RequestIDFrom(c)).Msg("webhook rejected: bad secret")
		return h.deny(c)
	}
	if decodeErr != nil {
		return AppErrorResponse(c, InvalidAlertError(decodeField(decodeErr), "malformed alert payload"))
	}

	v, err := h.bridge.HandleAlert(c.Request().Context(), alert)
	if err != nil {
		var verr *signal.ValidationError
		if errors.As(err, &verr) {
			return AppErrorResponse(c, InvalidAlertError(verr.Field, verr.Error()))
		}
		h.logger.Error().Err(err).Str("request_id", RequestIDFrom(c)).Msg("webhook failed")
		return AppErrorResponse(c, InternalError("alert evaluation failed").WithError(err))
	}
	return SuccessResponse(c, v)
}

func decodeField(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field
	}
	return "body"
}

// CheckResponse is the /altseason/check body.
type CheckResponse struct {
	regime.SummaryView
	SourceError string `json:"source_error,omitempty"`
}

// Check evaluates the live regime without notifying.
func (h *Handler) Check(c echo.Context) error {
	summary, err := h.bridge.CheckRegime(c.Request().Context())
	res := CheckResponse{SummaryView: summary.View()}
	if err != nil {
		res.SourceError = err.Error()
	}
	return SuccessResponse(c, res)
}

// NotifyRequest is the /altseason/notify body. Every field is optional.
type NotifyRequest struct {
	Force   bool   `json:"force"`
	Message string `json:"message" validate:"max=1000"`
	Secret  string `json:"secret"`
}

// NotifyResponse is the /altseason/notify body.
type NotifyResponse struct {
	IsAltseason bool               `json:"is_altseason"`
	Notified    bool               `json:"notified"`
	Attempted   bool               `json:"attempted"`
	Forced      bool               `json:"forced"`
	Error       string             `json:"error,omitempty"`
	SourceError string             `json:"source_error,omitempty"`
	Summary     regime.SummaryView `json:"summary"`
}

// Notify runs the debounced regime notification flow.
func (h *Handler) Notify(c echo.Context) error {
	req := &NotifyRequest{}
	bindErr := h.readNotify(c, req)
	if !h.bodyAuthorized(c, req.Secret) {
		return h.deny(c)
	}
	if bindErr != nil {
		return AppErrorResponse(c, bindErr)
	}

	out := h.bridge.NotifyRegime(c.Request().Context(), req.Force, req.Message)
	res := NotifyResponse{
		IsAltseason: out.Summary.IsAltseason,
		Notified:    out.Notified,
		Attempted:   out.Attempted,
		Forced:      out.Forced,
		Summary:     out.Summary.View(),
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	if out.FetchErr != nil {
		res.SourceError = out.FetchErr.Error()
	}
	return SuccessResponse(c, res)
}

func (h *Handler) readNotify(c echo.Context, req *NotifyRequest) *AppError {
	if err := c.Bind(req); err != nil {
		return BadRequestError("malformed notify body")
	}
	if err := h.validate.StructCtx(c.Request().Context(), req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return NewAppError("ERR_"+strings.ToUpper(fe.Tag()), strings.ToLower(fe.Field()), fe.Error(), http.StatusBadRequest)
		}
		return BadRequestError(err.Error())
	}
	return nil
}

// EnvSanity reports which options are set.
func (h *Handler) EnvSanity(c echo.Context) error {
	return SuccessResponse(c, h.bridge.EnvSanity())
}

// OpenAIHealth probes the reasoning backend.
func (h *Handler) OpenAIHealth(c echo.Context) error {
	return probeResponse(c, h.bridge.OpenAIHealth(c.Request().Context()))
}

// TelegramHealth probes the Telegram bot.
func (h *Handler) TelegramHealth(c echo.Context) error {
	return probeResponse(c, h.bridge.TelegramHealth(c.Request().Context()))
}

func probeResponse(c echo.Context, res service.ProbeResult) error {
	status := http.StatusOK
	if !res.OK {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, res)
}
