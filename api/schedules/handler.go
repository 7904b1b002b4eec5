// Package schedules exposes the planning workflow over HTTP.
package schedules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/induction"
	"github.com/kilianp07/induction/core/planning"
	"github.com/kilianp07/induction/core/schedule"
	"github.com/kilianp07/induction/core/snapshot"
	"github.com/kilianp07/induction/infra/fleet"
	"github.com/kilianp07/induction/pkg/export"
)

// Planner is the subset of planning.Planner served by the handler.
type Planner interface {
	RunInductionPlanning(ctx context.Context, depotID string, date time.Time) (*planning.RunResult, error)
	ResolveConflict(ctx context.Context, scheduleID, conflictID string, r conflict.Resolution) (conflict.Conflict, error)
	FinalizeSchedule(ctx context.Context, scheduleID, operatorID string) (*schedule.Schedule, error)
	ApplyOverride(ctx context.Context, scheduleID string, req schedule.OverrideRequest) (*schedule.Schedule, error)
	MarkExecuted(ctx context.Context, depotID string, date time.Time) (*schedule.Schedule, error)
	Schedule(ctx context.Context, id string) (*schedule.Schedule, error)
	Schedules(ctx context.Context, depotID string) ([]*schedule.Schedule, error)
	Ledger(ctx context.Context, scheduleID string) ([]schedule.Entry, error)
}

var _ Planner = (*planning.Planner)(nil)

// PlanRequest starts a planning run.
type PlanRequest struct {
	DepotID string `json:"depotId"`
	Date    string `json:"date"`
}

// FinalizeRequest commits a draft.
type FinalizeRequest struct {
	OperatorID string `json:"operatorId"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string                  `json:"error"`
	Code      schedule.ResultCode     `json:"code,omitempty"`
	Missing   []snapshot.MissingField `json:"missing,omitempty"`
	Conflicts []string                `json:"conflicts,omitempty"`
}

type handler struct {
	planner Planner
	token   string
	plans   *rate.Limiter
}

// NewHandler returns the HTTP handler of the planning API:
//
//	POST /api/plans
//	GET  /api/depots/{depot}/schedules
//	POST /api/depots/{depot}/schedules/{date}/execute
//	GET  /api/schedules/{id}
//	GET  /api/schedules/{id}/export?format=json|csv
//	GET  /api/schedules/{id}/ledger
//	POST /api/schedules/{id}/conflicts/{cid}
//	POST /api/schedules/{id}/finalize
//	POST /api/schedules/{id}/overrides
//
// Requests must include an Authorization header with "Bearer <token>" when
// token is non-empty. A non-nil planLimit throttles POST /api/plans, each
// of which runs the solver.
func NewHandler(p Planner, token string, planLimit *rate.Limiter) http.Handler {
	h := &handler{planner: p, token: token, plans: planLimit}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/plans", h.throttle(h.plan))
	mux.HandleFunc("GET /api/depots/{depot}/schedules", h.list)
	mux.HandleFunc("POST /api/depots/{depot}/schedules/{date}/execute", h.execute)
	mux.HandleFunc("GET /api/schedules/{id}", h.get)
	mux.HandleFunc("GET /api/schedules/{id}/export", h.export)
	mux.HandleFunc("GET /api/schedules/{id}/ledger", h.ledger)
	mux.HandleFunc("POST /api/schedules/{id}/conflicts/{cid}", h.resolve)
	mux.HandleFunc("POST /api/schedules/{id}/finalize", h.finalize)
	mux.HandleFunc("POST /api/schedules/{id}/overrides", h.override)
	return h.auth(mux)
}

func (h *handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && r.Header.Get("Authorization") != "Bearer "+h.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) throttle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.plans != nil {
			res := h.plans.Reserve()
			if d := res.Delay(); d > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", d.Seconds()+0.5))
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "planning runs are rate limited"})
				return
			}
		}
		next(w, r)
	}
}

func (h *handler) plan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if !decode(w, r, &req) {
		return
	}
	if req.DepotID == "" {
		badRequest(w, "depotId is required")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := h.planner.RunInductionPlanning(r.Context(), req.DepotID, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.planner.Schedules(r.Context(), r.PathValue("depot"))
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*schedule.Schedule{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) execute(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.PathValue("date"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	s, err := h.planner.MarkExecuted(r.Context(), r.PathValue("depot"), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.planner.Schedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	s, err := h.planner.Schedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	format := export.Format(r.URL.Query().Get("format"))
	switch format {
	case export.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-%s.csv", s.DepotID, s.Date.Format(time.DateOnly)))
	case export.FormatJSON, "":
		w.Header().Set("Content-Type", "application/json")
	default:
		badRequest(w, fmt.Sprintf("unsupported format %q", format))
		return
	}
	if err := export.Write(w, format, s); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *handler) ledger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.planner.Ledger(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []schedule.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req conflict.Resolution
	if !decode(w, r, &req) {
		return
	}
	c, err := h.planner.ResolveConflict(r.Context(), r.PathValue("id"), r.PathValue("cid"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) finalize(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OperatorID == "" {
		badRequest(w, "operatorId is required")
		return
	}
	s, err := h.planner.FinalizeSchedule(r.Context(), r.PathValue("id"), req.OperatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) override(w http.ResponseWriter, r *http.Request) {
	var req schedule.OverrideRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.planner.ApplyOverride(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("date is required")
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return d, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

// writeError maps planning errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		die *snapshot.DataIncompleteError
		inf *induction.InfeasibleModelError
		cu  *schedule.ConflictUnresolvedError
		cs  *schedule.ConcurrentScheduleError
	)
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &die):
		status = http.StatusUnprocessableEntity
		resp.Missing = die.Missing
	case errors.As(err, &inf):
		status = http.StatusUnprocessableEntity
		resp.Code = schedule.CodeInfeasible
	case errors.As(err, &cu):
		status = http.StatusConflict
		resp.Conflicts = cu.ConflictIDs
	case errors.As(err, &cs):
		status = http.StatusConflict
	case errors.Is(err, schedule.ErrNotFound), errors.Is(err, fleet.ErrUnknownDepot):
		status = http.StatusNotFound
	case errors.Is(err, schedule.ErrVersionConflict),
		errors.Is(err, schedule.ErrInvalidTransition),
		errors.Is(err, conflict.ErrAlreadyResolved):
		status = http.StatusConflict
	case errors.Is(err, conflict.ErrUnsafeOverride):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, conflict.ErrInvalidResolution),
		errors.Is(err, schedule.ErrInvalidOverride):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
