package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/cashflow-engine/internal/anomaly"
	"github.com/dvloznov/cashflow-engine/internal/api/middleware"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/engine"
	"github.com/dvloznov/cashflow-engine/internal/planstore"
	"github.com/dvloznov/cashflow-engine/internal/recurrence"
	"github.com/dvloznov/cashflow-engine/internal/subscription"
	"github.com/dvloznov/cashflow-engine/internal/timeline"
	"github.com/dvloznov/cashflow-engine/internal/variance"
	"github.com/rs/zerolog"
)

// PlanLoader resolves a plan location to a validated plan.
type PlanLoader interface {
	Load(ctx context.Context, location string) (*domain.Plan, error)
}

// PlanRequest is the body shared by every analysis endpoint. Exactly one of Plan
// and PlanURI is expected; Plan wins when both are set.
type PlanRequest struct {
	Plan     *domain.Plan `json:"plan,omitempty"`
	PlanURI  string       `json:"planUri,omitempty"`
	PeriodID int          `json:"periodId,omitempty"`
	AsOf     string       `json:"asOf,omitempty"`
	// Mode selects the timeline flavour: actuals, projected or hybrid (default).
	Mode string `json:"mode,omitempty"`
}

// Timeline modes.
const (
	ModeActuals   = "actuals"
	ModeProjected = "projected"
	ModeHybrid    = "hybrid"
)

// EventsResponse is returned by POST /api/v1/events.
type EventsResponse struct {
	PeriodID   int                    `json:"periodId"`
	Events     []domain.CashflowEvent `json:"events"`
	Amendments []recurrence.Amendment `json:"amendments"`
}

// TimelineResponse is returned by POST /api/v1/timeline.
type TimelineResponse struct {
	PeriodID       int                  `json:"periodId"`
	AsOf           string               `json:"asOf"`
	Mode           string               `json:"mode"`
	OpeningBalance domain.Money         `json:"openingBalance"`
	EndingBalance  domain.Money         `json:"endingBalance"`
	Lowest         *domain.TimelineRow  `json:"lowest,omitempty"`
	Rows           []domain.TimelineRow `json:"rows"`
}

// AnomaliesResponse is returned by POST /api/v1/anomalies.
type AnomaliesResponse struct {
	PeriodID  int                      `json:"periodId"`
	Anomalies []domain.DetectedAnomaly `json:"anomalies"`
}

// SubscriptionsResponse is returned by POST /api/v1/subscriptions.
type SubscriptionsResponse struct {
	AsOf          string                        `json:"asOf"`
	Subscriptions []domain.DetectedSubscription `json:"subscriptions"`
}

// AnalysisHandler serves the synchronous analysis endpoints.
type AnalysisHandler struct {
	loader   PlanLoader
	defaults engine.Request
	log      zerolog.Logger
}

// NewAnalysisHandler creates a new analysis handler. loader may be nil, in which
// case only inline plans are accepted. defaults carries the detector options.
func NewAnalysisHandler(loader PlanLoader, defaults engine.Request, log zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		loader:   loader,
		defaults: defaults,
		log:      log,
	}
}

// Events handles POST /api/v1/events
func (h *AnalysisHandler) Events(w http.ResponseWriter, r *http.Request) {
	plan, req, ok := h.readPlan(w, r)
	if !ok {
		return
	}
	periodID, _ := engine.Resolve(plan, req.Request)

	middleware.WriteJSON(w, http.StatusOK, EventsResponse{
		PeriodID:   periodID,
		Events:     orEmpty(recurrence.Expand(plan, periodID)),
		Amendments: orEmpty(recurrence.Diff(plan, periodID)),
	})
}

// Timeline handles POST /api/v1/timeline
func (h *AnalysisHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	plan, req, ok := h.readPlan(w, r)
	if !ok {
		return
	}
	periodID, asOf := engine.Resolve(plan, req.Request)
	b := timeline.Builder{Plan: plan, AsOf: asOf}

	resp := TimelineResponse{
		PeriodID:       periodID,
		AsOf:           asOf,
		Mode:           req.mode,
		OpeningBalance: b.OpeningBalance(periodID),
	}
	switch req.mode {
	case ModeActuals:
		resp.Rows = b.Actuals(periodID)
	case ModeProjected:
		resp.Rows = b.Projected(periodID)
	default:
		resp.Rows = b.Hybrid(periodID)
	}
	resp.Rows = orEmpty(resp.Rows)
	resp.EndingBalance = timeline.Ending(resp.Rows, resp.OpeningBalance)
	if low, found := timeline.Lowest(resp.Rows); found {
		resp.Lowest = &low
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Summary handles POST /api/v1/summary
func (h *AnalysisHandler) Summary(w http.ResponseWriter, r *http.Request) {
	plan, req, ok := h.readPlan(w, r)
	if !ok {
		return
	}
	periodID, asOf := engine.Resolve(plan, req.Request)

	summary := variance.Summarize(plan, periodID, asOf)
	summary.Categories = orEmpty(summary.Categories)
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// Anomalies handles POST /api/v1/anomalies
func (h *AnalysisHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	plan, req, ok := h.readPlan(w, r)
	if !ok {
		return
	}
	periodID, _ := engine.Resolve(plan, req.Request)

	opts := h.defaults.Anomaly
	if opts.RatioThreshold.IsZero() {
		opts = anomaly.DefaultOptions()
	}
	middleware.WriteJSON(w, http.StatusOK, AnomaliesResponse{
		PeriodID:  periodID,
		Anomalies: orEmpty(anomaly.Detect(plan, periodID, opts)),
	})
}

// Subscriptions handles POST /api/v1/subscriptions
func (h *AnalysisHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	plan, req, ok := h.readPlan(w, r)
	if !ok {
		return
	}
	_, asOf := engine.Resolve(plan, req.Request)

	history := engine.History(plan.Transactions, asOf)
	middleware.WriteJSON(w, http.StatusOK, SubscriptionsResponse{
		AsOf:          asOf,
		Subscriptions: orEmpty(subscription.Detect(history, asOf, h.defaults.Subscription)),
	})
}

// Analyze handles POST /api/v1/analyze
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	plan, req, ok := h.readPlan(w, r)
	if !ok {
		return
	}

	result, err := engine.Analyze(r.Context(), plan, req.Request)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to analyze plan")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to analyze plan")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// resolvedRequest is a decoded PlanRequest merged with the handler defaults.
type resolvedRequest struct {
	engine.Request
	mode string
}

// readPlan decodes the body and resolves the plan it refers to. On failure it has
// already written the error response.
func (h *AnalysisHandler) readPlan(w http.ResponseWriter, r *http.Request) (*domain.Plan, resolvedRequest, bool) {
	var body PlanRequest
	if !decodeBody(w, r, &body) {
		return nil, resolvedRequest{}, false
	}

	switch body.Mode {
	case "", ModeActuals, ModeProjected, ModeHybrid:
	default:
		middleware.WriteError(w, http.StatusBadRequest, "mode must be actuals, projected or hybrid")
		return nil, resolvedRequest{}, false
	}

	plan, status, err := resolvePlan(r.Context(), h.loader, body)
	if err != nil {
		h.log.Warn().Err(err).Str("plan_uri", body.PlanURI).Msg("Rejected plan")
		middleware.WriteError(w, status, err.Error())
		return nil, resolvedRequest{}, false
	}

	req := resolvedRequest{Request: h.defaults, mode: body.Mode}
	req.PeriodID = body.PeriodID
	req.AsOf = body.AsOf
	if req.mode == "" {
		req.mode = ModeHybrid
	}
	return plan, req, true
}

// resolvePlan returns the inline plan or loads the referenced one, along with the
// HTTP status to use when that fails.
func resolvePlan(ctx context.Context, loader PlanLoader, body PlanRequest) (*domain.Plan, int, error) {
	if body.Plan != nil {
		if err := planstore.Validate(body.Plan); err != nil {
			return nil, http.StatusUnprocessableEntity, err
		}
		return body.Plan, http.StatusOK, nil
	}
	if body.PlanURI == "" {
		return nil, http.StatusBadRequest, errors.New("plan or planUri is required")
	}
	if loader == nil {
		return nil, http.StatusBadRequest, errors.New("planUri is not supported by this server")
	}

	plan, err := loader.Load(ctx, body.PlanURI)
	switch {
	case errors.Is(err, planstore.ErrInvalidPlan):
		return nil, http.StatusUnprocessableEntity, err
	case err != nil:
		return nil, http.StatusBadRequest, errors.New("failed to load plan")
	}
	return plan, http.StatusOK, nil
}

// decodeBody reads a JSON request body into dst, writing a 400 or 413 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
