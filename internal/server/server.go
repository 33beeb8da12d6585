// Package server exposes the what-if tools over HTTP against uploaded
// workbooks held in memory.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/whatif/internal/config"
	"github.com/iwvelando/whatif/internal/observability"
	"github.com/iwvelando/whatif/internal/workbook"
	"github.com/iwvelando/whatif/pkg/goalseek"
	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/montecarlo"
	"github.com/iwvelando/whatif/pkg/scenario"
	"github.com/iwvelando/whatif/pkg/solver"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type handler struct {
	logger         *zap.Logger
	maxRequestSize int64
	version        string
	sessions       *sessionStore
	metrics        *observability.Collector
}

// NewHandler constructs the HTTP handler for the workbook and tool API.
// A nil metrics collector disables /metrics.
func NewHandler(logger *zap.Logger, cfg *Config, version string, metrics *observability.Collector) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:         logger,
		maxRequestSize: cfg.RequestSizeBytes(),
		version:        trimmedVersion,
		sessions:       newSessionStore(cfg.MaxSessions, metrics),
		metrics:        metrics,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/workbooks", h.handleCreateWorkbook)
	mux.HandleFunc("DELETE /api/workbooks/{id}", h.handleDeleteWorkbook)
	mux.HandleFunc("GET /api/workbooks/{id}/cells", h.withSession(h.handleGetCells))
	mux.HandleFunc("PUT /api/workbooks/{id}/cells", h.withSession(h.handleSetCell))

	mux.HandleFunc("POST /api/workbooks/{id}/goal-seek", h.withSession(h.handleGoalSeek))

	mux.HandleFunc("GET /api/workbooks/{id}/scenarios", h.withSession(h.handleListScenarios))
	mux.HandleFunc("POST /api/workbooks/{id}/scenarios", h.withSession(h.handleCreateScenario))
	mux.HandleFunc("POST /api/workbooks/{id}/scenarios/{sid}/apply", h.withSession(h.handleApplyScenario))
	mux.HandleFunc("DELETE /api/workbooks/{id}/scenarios/{sid}", h.withSession(h.handleDeleteScenario))
	mux.HandleFunc("POST /api/workbooks/{id}/scenarios/restore", h.withSession(h.handleRestoreScenarios))
	mux.HandleFunc("POST /api/workbooks/{id}/scenarios/summary", h.withSession(h.handleScenarioSummary))

	mux.HandleFunc("POST /api/workbooks/{id}/monte-carlo", h.withSession(h.handleMonteCarlo))
	mux.HandleFunc("POST /api/workbooks/{id}/solve", h.withSession(h.handleSolve))

	mux.HandleFunc("GET /api/version", h.handleVersion)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Cell  string `json:"cell,omitempty"`
}

type createdResponse struct {
	ID     string   `json:"id"`
	Sheets []string `json:"sheets,omitempty"`
}

type cellResponse struct {
	Ref     string          `json:"ref"`
	Value   model.CellValue `json:"value"`
	Formula string          `json:"formula,omitempty"`
}

type setCellRequest struct {
	Cell  string      `json:"cell" yaml:"cell"`
	Value interface{} `json:"value" yaml:"value"`
}

type goalSeekResponse struct {
	Result  *goalseek.Result   `json:"result"`
	Changes []model.CellChange `json:"changes"`
}

type scenarioCreatedResponse struct {
	ID scenario.ID `json:"id"`
}

type summaryRequest struct {
	ResultCells []string      `json:"resultCells" yaml:"resultCells"`
	IDs         []scenario.ID `json:"ids,omitempty" yaml:"ids,omitempty"`
}

type solveResponse struct {
	*solver.Outcome
	Changes []model.CellChange `json:"changes"`
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handleCreateWorkbook(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleCreateWorkbook"
	var spec workbook.Spec
	if !h.decodeBody(w, r, &spec, op) {
		return
	}
	book, err := workbook.New(h.logger, spec)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err, op)
		return
	}
	id, err := h.sessions.add(newSession(h.logger, book))
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, err, op)
		return
	}

	h.logger.Info("workbook session created",
		zap.String("op", op),
		zap.String("session", id.String()),
		zap.Strings("sheets", book.Sheets()),
		zap.Int("sessions", h.sessions.count()),
	)
	h.writeJSON(w, http.StatusCreated, createdResponse{ID: id.String(), Sheets: book.Sheets()})
}

func (h *handler) handleDeleteWorkbook(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.remove(r.PathValue("id")) {
		h.respondError(w, http.StatusNotFound, fmt.Errorf("workbook %q not found", r.PathValue("id")), "server.handleDeleteWorkbook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withSession resolves the {id} path value and serializes the request on
// the session.
func (h *handler) withSession(next func(http.ResponseWriter, *http.Request, *session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.sessions.get(r.PathValue("id"))
		if !ok {
			h.respondError(w, http.StatusNotFound, fmt.Errorf("workbook %q not found", r.PathValue("id")), "server.withSession")
			return
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		next(w, r, sess)
	}
}

func (h *handler) handleGetCells(w http.ResponseWriter, r *http.Request, sess *session) {
	const op = "server.handleGetCells"
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		h.writeJSON(w, http.StatusOK, map[string][]model.CellChange{"cells": sess.book.Snapshot()})
		return
	}
	h.writeCell(w, sess, model.CellRef(ref), op)
}

func (h *handler) handleSetCell(w http.ResponseWriter, r *http.Request, sess *session) {
	const op = "server.handleSetCell"
	var req setCellRequest
	if !h.decodeBody(w, r, &req, op) {
		return
	}
	ref := model.CellRef(strings.TrimSpace(req.Cell))
	if err := sess.book.SetInput(ref, req.Value); err != nil {
		h.respondError(w, http.StatusBadRequest, err, op)
		return
	}
	if err := sess.book.Recalculate(); err != nil {
		h.respondError(w, http.StatusInternalServerError, err, op)
		return
	}
	h.writeCell(w, sess, ref, op)
}

func (h *handler) writeCell(w http.ResponseWriter, sess *session, ref model.CellRef, op string) {
	value, err := sess.book.Get(ref)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err, op)
		return
	}
	formula, _, err := sess.book.Formula(ref)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, cellResponse{Ref: string(ref.Normalize()), Value: value, Formula: formula})
}

func (h *handler) handleGoalSeek(w http.ResponseWriter, r *http.Request, sess *session) {
	const op = "server.handleGoalSeek"
	var req config.GoalSeekConfig
	if !h.decodeBody(w, r, &req, op) {
		return
	}
	start := time.Now()
	if err := req.Validate(); err != nil {
		h.toolError(w, config.SectionGoalSeek, err, start, op)
		return
	}
	params := req.Params()
	res, err := goalseek.Seek(h.logger, sess.book, params, nil)
	if err != nil {
		h.toolError(w, config.SectionGoalSeek, err, start, op)
		return
	}
	h.metrics.ObserveRun(config.SectionGoalSeek, string(res.Status), res.Iterations, time.Since(start))
	h.writeJSON(w, http.StatusOK, goalSeekResponse{Result: res, Changes: goalseek.Changes(res, params)})
}

func (h *handler) handleListScenarios(w http.ResponseWriter, r *http.Request, sess *session) {
	h.writeJSON(w, http.StatusOK, map[string][]scenario.Scenario{"scenarios": sess.scenarios.List()})
}

func (h *handler) handleCreateScenario(w http.ResponseWriter, r *http.Request, sess *session) {
	const op = "server.handleCreateScenario"
	var req config.ScenarioConfig
	if !h.decodeBody(w, r, &req, op) {
		return
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		req.CreatedBy = config.DefaultCreatedBy
	}
	cells, values, err := req.Changes()
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err, op)
		return
	}
	id, err := sess.scenarios.Create(req.Name, cells, values, req.CreatedBy, req.Comment)
	if err != nil {
		h.respondError(w, statusFor(err), err, op)
		return
	}
	h.writeJSON(w, http.StatusCreated, scenarioCreatedResponse{ID: id})
}

func (h *handler) handleApplyScenario(w http.ResponseWriter, r *http.Request, sess *session) {
	const op = "server.handleApplyScenario"
	id, ok := h.scenarioID(w, r, op)
	if !ok {
		return
	}
	if err := sess.scenarios.Apply(id); err != nil {
		h.respondError(w, statusFor(err), err, op)
		return
	}
	s, _ := sess.scenarios.Get(id)
	changes := make([]model.CellChange, 0, len(s.ChangingCells))
	for _, ref := range s.ChangingCells {
		changes = append(changes, model.ChangeFor(ref, s.Values[ref]))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "changes": changes})
}

func (h *handler) handleDeleteScenario(w http.ResponseWriter, r *http.Request, sess *session) {
	const op = "server.handleDeleteScenario"
	id, ok := h.scenarioID(w, r, op)
	if !ok {
		return
	}
	if err := sess.scenarios.Delete(id); err != nil {
		h.respondError(w, http.StatusNotFound, err, op)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleRestoreScenarios(w http.ResponseWriter, r *http.Request, sess *session) {
	const op = "server.handleRestoreScenarios"
	if err := sess.scenarios.RestoreBase(); err != nil {
		h.respondError(w, statusFor(err), err, op)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleScenarioSummary(w http.ResponseWriter, r *http.Request, sess *session) {
	const op = "server.handleScenarioSummary"
	var req summaryRequest
	if !h.decodeBody(w, r, &req, op) {
		return
	}
	ids := req.IDs
	if len(ids) == 0 {
		for _, s := range sess.scenarios.List() {
			ids = append(ids, s.ID)
		}
	}
	results := make([]model.CellRef, len(req.ResultCells))
	for i, c := range req.ResultCells {
		results[i] = model.CellRef(strings.TrimSpace(c))
	}

	start := time.Now()
	report, err := sess.scenarios.SummaryReport(results, ids)
	if err != nil {
		h.toolError(w, config.SectionScenarios, err, start, op)
		return
	}
	h.metrics.ObserveRun(config.SectionScenarios, "Reported", len(ids), time.Since(start))
	h.writeJSON(w, http.StatusOK, report)
}

func (h *handler) handleMonteCarlo(w http.ResponseWriter, r *http.Request, sess *session) {
	const op = "server.handleMonteCarlo"
	var req config.SimulationConfig
	if !h.decodeBody(w, r, &req, op) {
		return
	}
	req.Normalize()
	start := time.Now()
	cfg, err := req.Build()
	if err != nil {
		h.toolError(w, config.SectionSimulation, err, start, op)
		return
	}
	res, err := montecarlo.Run(h.logger, sess.book, cfg, nil)
	if err != nil {
		h.toolError(w, config.SectionSimulation, err, start, op)
		return
	}
	if !req.KeepSamples {
		res.OutputSamples = nil
	}
	h.metrics.ObserveRun(config.SectionSimulation, "Completed", res.Iterations, time.Since(start))
	h.writeJSON(w, http.StatusOK, res)
}

func (h *handler) handleSolve(w http.ResponseWriter, r *http.Request, sess *session) {
	const op = "server.handleSolve"
	var req config.SolverConfig
	if !h.decodeBody(w, r, &req, op) {
		return
	}
	start := time.Now()
	if err := req.Validate(); err != nil {
		h.toolError(w, config.SectionSolver, err, start, op)
		return
	}
	layout, err := req.Layout()
	if err != nil {
		h.toolError(w, config.SectionSolver, err, start, op)
		return
	}
	bound, err := layout.Bind(sess.book)
	if err != nil {
		h.toolError(w, config.SectionSolver, err, start, op)
		return
	}
	outcome, err := solver.Solve(h.logger, bound, layout.Problem, req.Options())
	if err != nil {
		h.toolError(w, config.SectionSolver, err, start, op)
		return
	}
	changes, err := bound.Changes()
	if err != nil {
		h.toolError(w, config.SectionSolver, err, start, op)
		return
	}
	h.metrics.ObserveRun(config.SectionSolver, string(outcome.Status), outcome.Iterations, time.Since(start))
	h.writeJSON(w, http.StatusOK, solveResponse{Outcome: outcome, Changes: changes})
}

func (h *handler) scenarioID(w http.ResponseWriter, r *http.Request, op string) (scenario.ID, bool) {
	raw := r.PathValue("sid")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		h.respondError(w, http.StatusBadRequest, model.InvalidParams("invalid scenario id %q", raw), op)
		return 0, false
	}
	return scenario.ID(n), true
}

// decodeBody reads a JSON body, or YAML when the content type says so.
// Unknown fields are rejected.
func (h *handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, op string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestSize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Errorf("request exceeds limit of %d bytes", h.maxRequestSize), op)
			return false
		}
		h.respondError(w, http.StatusBadRequest, fmt.Errorf("failed to read request: %w", err), op)
		return false
	}

	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			h.respondError(w, http.StatusBadRequest, fmt.Errorf("failed to decode YAML request: %w", err), op)
			return false
		}
		return true
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return true
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err), op)
		return false
	}
	return true
}

// statusFor maps tool error kinds to HTTP statuses. Errors without a kind
// come from request validation.
func statusFor(err error) int {
	kind, ok := model.KindOf(err)
	if !ok {
		return http.StatusBadRequest
	}
	switch kind {
	case model.KindNonNumericCell:
		return http.StatusUnprocessableEntity
	case model.KindModel:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (h *handler) toolError(w http.ResponseWriter, tool string, err error, start time.Time, op string) {
	h.metrics.ObserveFailure(tool, err, time.Since(start))
	h.respondError(w, statusFor(err), err, op)
}

func (h *handler) respondError(w http.ResponseWriter, status int, err error, op string) {
	resp := errorResponse{Error: err.Error()}
	var toolErr *model.Error
	if errors.As(err, &toolErr) {
		resp.Kind = toolErr.Kind.String()
		if toolErr.Cell != "" {
			resp.Cell = string(toolErr.Cell)
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("op", op),
			zap.Int("status", status),
			zap.Error(err),
		)
	} else {
		h.logger.Debug("request rejected",
			zap.String("op", op),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	h.writeJSON(w, status, resp)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
