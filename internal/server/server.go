package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/copyleftdev/goldmine/internal/config"
	apperrors "github.com/copyleftdev/goldmine/internal/errors"
	"github.com/copyleftdev/goldmine/internal/logging"
	"github.com/copyleftdev/goldmine/internal/optimization"
	"github.com/copyleftdev/goldmine/internal/optimization/abc"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Run statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JSON-RPC 2.0 error codes
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeServerError    = -32000
)

// RunState records a finished colony run.
type RunState struct {
	ID        string
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Config    optimization.ColonyConfig
	Result    *optimization.OptimizationResult
	Err       error
}

// Server implements the HTTP and JSON-RPC API for colony runs. Each run
// executes synchronously on the request goroutine; finished runs are kept in
// memory until deleted.
type Server struct {
	cfg     *config.Config
	logger  Logger
	metrics *Metrics

	runs   map[string]*RunState
	runsMu sync.RWMutex
}

// NewServer creates a server instance with the given config, logger and
// metrics. metrics may be nil.
func NewServer(cfg *config.Config, logger Logger, metrics *Metrics) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		runs:    make(map[string]*RunState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/runs", s.handleList)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleDelete)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// paramError marks a request whose parameters were rejected.
type paramError struct {
	err error
}

func (e *paramError) Error() string { return e.err.Error() }
func (e *paramError) Unwrap() error { return e.err }

func invalidParams(format string, args ...interface{}) error {
	return &paramError{err: fmt.Errorf(format, args...)}
}

// errNotFound is returned for unknown run ids
var errNotFound = apperrors.New("run not found")

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      interface{}   `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "optimization.start":
		result, err = s.handleOptimizeStart(r.Context(), request.Params)
	case "optimization.status":
		result, err = s.handleOptimizationStatus(request.Params)
	case "optimization.list":
		result = s.listRuns()
	case "optimization.delete":
		err = s.handleOptimizationDelete(request.Params)
		result = map[string]string{"status": "deleted"}
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		var pe *paramError
		if apperrors.As(err, &pe) || apperrors.Is(err, errNotFound) {
			s.respondWithError(w, codeInvalidParams, err.Error(), request.ID)
			return
		}
		s.respondWithError(w, codeServerError, "Server error", request.ID)
		return
	}

	data, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
	if err != nil {
		s.logger.Error("Failed to encode RPC result", map[string]interface{}{
			"method": request.Method,
			"error":  err.Error(),
		})
		s.respondWithError(w, codeInternalError, "Internal error", request.ID)
		return
	}
	writeBody(w, http.StatusOK, data)
}

// firstParam returns params[0] as an object. An absent first parameter is
// treated as an empty object when optional is set.
func firstParam(params []interface{}, optional bool) (map[string]interface{}, error) {
	if len(params) == 0 {
		if optional {
			return map[string]interface{}{}, nil
		}
		return nil, invalidParams("missing required parameters")
	}
	paramMap, ok := params[0].(map[string]interface{})
	if !ok {
		return nil, invalidParams("invalid parameter format, expected object")
	}
	return paramMap, nil
}

// maxExactInt is the largest magnitude a float64 holds without losing
// integer precision.
const maxExactInt = 1 << 53

// intParam reads an integral number from m, keeping def when absent.
func intParam(m map[string]interface{}, key string, def int) (int, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return def, nil
	}
	v, ok := raw.(float64)
	if !ok || v != math.Trunc(v) {
		return 0, invalidParams("%s must be an integer", key)
	}
	if math.Abs(v) > maxExactInt {
		return 0, invalidParams("%s is out of range", key)
	}
	return int(v), nil
}

// checkLimits rejects runs larger than the configured per-request bounds.
func (s *Server) checkLimits(cc optimization.ColonyConfig) error {
	limits := s.cfg.Colony
	sources := cc.Sources
	if len(cc.Yields) > sources {
		sources = len(cc.Yields)
	}
	switch {
	case sources > limits.MaxSources:
		return invalidParams("sources must not exceed %d, got %d", limits.MaxSources, sources)
	case cc.PopulationSize > limits.MaxPopulation:
		return invalidParams("population_size must not exceed %d, got %d", limits.MaxPopulation, cc.PopulationSize)
	case cc.MaxIterations > limits.IterationLimit:
		return invalidParams("max_iterations must not exceed %d, got %d", limits.IterationLimit, cc.MaxIterations)
	}
	return nil
}

// colonyConfigFromParams overlays request parameters on the configured
// colony defaults.
func (s *Server) colonyConfigFromParams(m map[string]interface{}) (optimization.ColonyConfig, error) {
	cc := s.cfg.ColonyConfig()
	var err error

	sources := cc.Sources
	if sources, err = intParam(m, "sources", sources); err != nil {
		return cc, err
	}
	if sources != cc.Sources {
		cc.Sources = sources
		cc.Yields = nil
	}
	if cc.PopulationSize, err = intParam(m, "population_size", cc.PopulationSize); err != nil {
		return cc, err
	}
	if cc.MaxIterations, err = intParam(m, "max_iterations", cc.MaxIterations); err != nil {
		return cc, err
	}
	if cc.AbandonmentThreshold, err = intParam(m, "abandonment_threshold", cc.AbandonmentThreshold); err != nil {
		return cc, err
	}
	seed, err := intParam(m, "seed", int(cc.RandomSeed))
	if err != nil {
		return cc, err
	}
	cc.RandomSeed = int64(seed)

	random, _ := m["random_yields"].(bool)
	if raw, ok := m["yields"]; ok && raw != nil {
		if random {
			return cc, invalidParams("yields and random_yields are mutually exclusive")
		}
		list, ok := raw.([]interface{})
		if !ok {
			return cc, invalidParams("yields must be an array of numbers")
		}
		yields := make([]float64, len(list))
		for i, y := range list {
			v, ok := y.(float64)
			if !ok {
				return cc, invalidParams("yields must be an array of numbers")
			}
			yields[i] = v
		}
		cc.Yields = yields
		if _, explicit := m["sources"]; !explicit {
			cc.Sources = len(yields)
		}
	}
	if random {
		cc.Yields = nil
	}

	return cc, s.checkLimits(cc)
}

// handleOptimizeStart handles the optimization.start JSON-RPC method.
// It runs a colony to completion with the given parameters.
// Expected parameters (all optional): {"sources": 15, "population_size": 20,
// "max_iterations": 100, "abandonment_threshold": 10, "seed": 1,
// "yields": [...], "random_yields": false}
// Returns: {"optimization_id": "...", "status": "completed", "best_solution": {...}}
func (s *Server) handleOptimizeStart(ctx context.Context, params []interface{}) (interface{}, error) {
	paramMap, err := firstParam(params, true)
	if err != nil {
		return nil, err
	}

	cc, err := s.colonyConfigFromParams(paramMap)
	if err != nil {
		return nil, err
	}

	state, err := s.runOptimization(ctx, uuid.NewString(), cc)
	if err != nil {
		return nil, err
	}
	return runSummary(state), nil
}

// runOptimization builds and runs a colony, storing the finished run.
func (s *Server) runOptimization(ctx context.Context, id string, cc optimization.ColonyConfig) (*RunState, error) {
	runLogger := s.logger.WithFields(map[string]interface{}{"run_id": id})
	ctx = (&logging.CtxLogger{Logger: runLogger}).WithContext(ctx)

	state := &RunState{
		ID:        id,
		StartTime: time.Now(),
		Config:    cc,
	}

	colony, err := abc.NewColony(cc, abc.WithLogger(logging.NewZapLogger(runLogger)))
	if err != nil {
		if optimization.IsConfigError(err) {
			return nil, &paramError{err: err}
		}
		return nil, apperrors.Wrap(err, "create colony").WithComponent("server")
	}

	result, err := colony.Optimize(ctx)
	state.EndTime = time.Now()
	if err != nil {
		state.Status = StatusFailed
		state.Err = err
		runLogger.Error("Optimization failed", map[string]interface{}{"error": err.Error()})
	} else {
		state.Status = StatusCompleted
		state.Result = result
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(state.Status, state.Result)
	}

	s.runsMu.Lock()
	s.runs[id] = state
	s.runsMu.Unlock()

	return state, nil
}

// runSummary renders a run without its history.
func runSummary(state *RunState) map[string]interface{} {
	response := map[string]interface{}{
		"optimization_id": state.ID,
		"status":          state.Status,
		"start_time":      state.StartTime.Format(time.RFC3339),
		"end_time":        state.EndTime.Format(time.RFC3339),
	}
	if state.Result != nil {
		response["best_solution"] = state.Result.BestSolution
		response["iterations"] = state.Result.Iterations
	}
	if state.Err != nil {
		response["error"] = state.Err.Error()
	}
	return response
}

// handleOptimizationStatus handles the optimization.status JSON-RPC method.
// Expected parameters: {"optimization_id": "..."}
// Returns: the run summary plus yields and per-iteration history
func (s *Server) handleOptimizationStatus(params []interface{}) (interface{}, error) {
	id, err := runIDParam(params)
	if err != nil {
		return nil, err
	}

	s.runsMu.RLock()
	defer s.runsMu.RUnlock()

	state, exists := s.runs[id]
	if !exists {
		return nil, errNotFound
	}

	response := runSummary(state)
	response["config"] = map[string]interface{}{
		"sources":               state.Config.Sources,
		"population_size":       state.Config.PopulationSize,
		"max_iterations":        state.Config.MaxIterations,
		"abandonment_threshold": state.Config.AbandonmentThreshold,
		"seed":                  state.Config.RandomSeed,
	}
	if state.Result != nil {
		response["yields"] = state.Result.Yields
		response["history"] = state.Result.History
	}
	return response, nil
}

// handleOptimizationDelete handles the optimization.delete JSON-RPC method.
// Expected parameters: {"optimization_id": "..."}
func (s *Server) handleOptimizationDelete(params []interface{}) error {
	id, err := runIDParam(params)
	if err != nil {
		return err
	}

	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	if _, exists := s.runs[id]; !exists {
		return errNotFound
	}
	delete(s.runs, id)

	s.logger.Info("Optimization deleted", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

func runIDParam(params []interface{}) (string, error) {
	paramMap, err := firstParam(params, false)
	if err != nil {
		return "", err
	}
	id, ok := paramMap["optimization_id"].(string)
	if !ok || id == "" {
		return "", invalidParams("optimization_id is required")
	}
	return id, nil
}

// listRuns returns the summaries of all stored runs, oldest first.
func (s *Server) listRuns() []map[string]interface{} {
	s.runsMu.RLock()
	states := make([]*RunState, 0, len(s.runs))
	for _, state := range s.runs {
		states = append(states, state)
	}
	s.runsMu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].StartTime.Before(states[j].StartTime)
	})
	out := make([]map[string]interface{}, len(states))
	for i, state := range states {
		out[i] = runSummary(state)
	}
	return out
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	s.writeJSON(w, http.StatusOK, response)
}

// Close drops all stored runs
func (s *Server) Close() error {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	s.runs = make(map[string]*RunState)
	return nil
}

// writeJSON encodes body before committing status, answering 500 when the
// body cannot be encoded.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{
			"status": status,
			"error":  err.Error(),
		})
		writeBody(w, http.StatusInternalServerError, []byte(`{"error":"failed to encode response"}`))
		return
	}
	writeBody(w, status, data)
}

func writeBody(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func errorStatus(err error) int {
	var pe *paramError
	switch {
	case apperrors.Is(err, errNotFound):
		return http.StatusNotFound
	case apperrors.As(err, &pe):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleOptimize handles POST /api/v1/optimize. The body holds the same
// optional parameters as optimization.start; an empty body runs the defaults.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	reqBody := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil && err != io.EOF {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": fmt.Sprintf("Invalid request body: %v", err),
		})
		return
	}

	result, err := s.handleOptimizeStart(r.Context(), []interface{}{reqBody})
	if err != nil {
		s.writeJSON(w, errorStatus(err), map[string]interface{}{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusCreated, result)
}

// handleList handles GET /api/v1/runs
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.listRuns())
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.handleOptimizationStatus([]interface{}{map[string]interface{}{
		"optimization_id": chi.URLParam(r, "id"),
	}})
	if err != nil {
		s.writeJSON(w, errorStatus(err), map[string]interface{}{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleDelete handles DELETE /api/v1/optimization/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := s.handleOptimizationDelete([]interface{}{map[string]interface{}{
		"optimization_id": chi.URLParam(r, "id"),
	}})
	if err != nil {
		s.writeJSON(w, errorStatus(err), map[string]interface{}{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
