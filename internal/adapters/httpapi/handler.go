package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/strcalc/internal/core/domain"
	"github.com/atvirokodosprendimai/strcalc/internal/core/usecase"
)

type ctxKey string

const (
	timeFormat              = "2006-01-02T15:04:05.999999999Z07:00"
	tenantIDCtxKey   ctxKey = "tenant_id"
	apiActorCtxKey   ctxKey = "api_actor"
	maxJSONBodySize         = 1 << 20
	maxBatchBodySize        = 8 << 20
	requestSource           = "http"
)

type Handler struct {
	calculator  *usecase.CalculatorService
	authService *usecase.AuthService
	logger      *zap.Logger
	limiter     *tenantLimiter
}

func NewHandler(calculator *usecase.CalculatorService, authService *usecase.AuthService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{calculator: calculator, authService: authService, logger: logger.Named("http")}
}

// WithRateLimit enables a per-tenant token bucket on the /v1 routes.
// A non-positive perSecond leaves the routes unlimited.
func (h *Handler) WithRateLimit(perSecond float64, burst int) *Handler {
	h.limiter = newTenantLimiter(perSecond, burst)
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Use(h.rateLimit)
		pr.Post("/v1/sum", h.sum)
		pr.Post("/v1/sum:batch", h.sumBatch)
		pr.Get("/v1/calculations", h.listCalculations)
		pr.Get("/v1/calculations/{id}", h.getCalculation)
	})

	return r
}

type sumRequest struct {
	Input string `json:"input"`
}

type batchSumRequest struct {
	Inputs []string `json:"inputs"`
}

type calculationResponse struct {
	ID        string  `json:"id"`
	Input     string  `json:"input"`
	Sum       int     `json:"sum"`
	Outcome   string  `json:"outcome"`
	Negatives []int   `json:"negatives,omitempty"`
	Error     string  `json:"error,omitempty"`
	Token     *string `json:"token,omitempty"`
	Index     *int    `json:"index,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func (h *Handler) sum(w http.ResponseWriter, r *http.Request) {
	strict, ok := parseStrict(w, r)
	if !ok {
		return
	}

	var req sumRequest
	if err := decodeValidated(w, r, maxJSONBodySize, sumRequestSchema(), &req); err != nil {
		h.handleDomainError(w, err)
		return
	}

	calc, err := h.calculator.Evaluate(r.Context(), tenantIDFromContext(r.Context()), req.Input, strict, requestMetadata(r))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toCalculationResponse(calc, nil))
	case isEvaluationError(err):
		writeJSON(w, http.StatusUnprocessableEntity, toCalculationResponse(calc, err))
	default:
		h.handleDomainError(w, err)
	}
}

func (h *Handler) sumBatch(w http.ResponseWriter, r *http.Request) {
	strict, ok := parseStrict(w, r)
	if !ok {
		return
	}

	var req batchSumRequest
	if err := decodeValidated(w, r, maxBatchBodySize, batchSumRequestSchema(), &req); err != nil {
		h.handleDomainError(w, err)
		return
	}

	results, err := h.calculator.EvaluateBatch(r.Context(), tenantIDFromContext(r.Context()), req.Inputs, strict, requestMetadata(r))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	items := make([]calculationResponse, 0, len(results))
	for _, res := range results {
		items = append(items, toCalculationResponse(res.Calculation, res.Err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) getCalculation(w http.ResponseWriter, r *http.Request) {
	calc, err := h.calculator.Get(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationResponse(calc, calc.Err()))
}

func (h *Handler) listCalculations(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	filter := domain.CalculationFilter{
		TenantID: tenantIDFromContext(r.Context()),
		Outcome:  domain.Outcome(r.URL.Query().Get("outcome")),
		AfterID:  r.URL.Query().Get("after"),
		Limit:    limit,
	}.Normalize()
	calcs, err := h.calculator.List(r.Context(), filter)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	result := make([]calculationResponse, 0, len(calcs))
	for _, calc := range calcs {
		result = append(result, toCalculationResponse(calc, calc.Err()))
	}

	payload := map[string]any{"items": result}
	if len(calcs) > 0 && len(calcs) == filter.Limit {
		payload["next_after"] = calcs[len(calcs)-1].ID
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func toCalculationResponse(calc domain.Calculation, err error) calculationResponse {
	resp := calculationResponse{
		ID:        calc.ID,
		Input:     calc.Input,
		Sum:       calc.Sum,
		Outcome:   string(calc.Outcome),
		Negatives: calc.Negatives,
		RequestID: calc.RequestID,
		CreatedAt: calc.CreatedAt.UTC().Format(timeFormat),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	var malformed *domain.MalformedTokenError
	if errors.As(err, &malformed) {
		token, index := malformed.Token, malformed.Index
		resp.Token = &token
		resp.Index = &index
	}
	return resp
}

func requestMetadata(r *http.Request) domain.RequestMetadata {
	return domain.RequestMetadata{
		Actor:     actorFromContext(r.Context()),
		Source:    requestSource,
		RequestID: middleware.GetReqID(r.Context()),
	}
}

func isEvaluationError(err error) bool {
	return errors.Is(err, domain.ErrNegativeNumbers) || errors.Is(err, domain.ErrMalformedInput)
}

func parseStrict(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("strict")
	if raw == "" {
		return false, true
	}
	strict, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "strict must be boolean")
		return false, false
	}
	return strict, true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	var schemaErr *RequestSchemaError
	switch {
	case errors.As(err, &schemaErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request", "details": schemaErr.Errors})
	case errors.Is(err, errInvalidJSON):
		writeError(w, http.StatusBadRequest, "invalid json body")
	case errors.Is(err, errBodyTooLarge), errors.Is(err, domain.ErrInputTooLarge), errors.Is(err, domain.ErrBatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, domain.ErrInvalidTenant), errors.Is(err, domain.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func tenantIDFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantIDCtxKey).(string)
	return tenant
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(apiActorCtxKey).(string)
	if actor == "" {
		return "api"
	}
	return actor
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "strcalc",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/sum": map[string]any{
				"post": map[string]any{"summary": "Sum a delimited string of integers"},
			},
			"/v1/sum:batch": map[string]any{
				"post": map[string]any{"summary": "Sum several inputs"},
			},
			"/v1/calculations": map[string]any{
				"get": map[string]any{"summary": "List calculation history"},
			},
			"/v1/calculations/{id}": map[string]any{
				"get": map[string]any{"summary": "Get one calculation"},
			},
		},
	}
}
