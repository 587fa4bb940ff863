package server

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/goldmine/internal/config"
	"github.com/copyleftdev/goldmine/internal/logging"
	"github.com/copyleftdev/goldmine/internal/optimization"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		Environment: "test",
	}

	// Set up HTTP config
	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second

	// Set up logging
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "console"
	cfg.Logging.Output = "stdout"

	// Set up the colony
	cfg.Colony.Sources = 15
	cfg.Colony.PopulationSize = 20
	cfg.Colony.MaxIterations = 25
	cfg.Colony.AbandonmentThreshold = 10
	cfg.Colony.Seed = 7
	cfg.Colony.MaxSources = 100
	cfg.Colony.MaxPopulation = 1000
	cfg.Colony.IterationLimit = 1000

	return cfg
}

// testLogger creates a test logger that discards debug noise
func testLogger(t *testing.T) *logging.Logger {
	logger, err := logging.NewLogger(&logging.Config{
		Level:  "warn",
		Format: "console",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

func testServer(t *testing.T) (*Server, *Metrics, chi.Router) {
	metrics := NewMetrics(prometheus.NewRegistry())
	srv := NewServer(testConfig(t), testLogger(t), metrics)
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, metrics, r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rr.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	}
	return rr, decoded
}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), nil)
	assert.NotNil(t, srv, "Server should be created")
}

func TestRegisterRoutes(t *testing.T) {
	_, _, r := testServer(t)

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/optimize", true},
		{"GET", "/api/v1/runs", true},
		{"GET", "/api/v1/status/123", true},
		{"DELETE", "/api/v1/optimization/123", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false}, // Not registered by server package
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			routed := rr.Code != http.StatusNotFound || strings.Contains(rr.Body.String(), "run not found")
			assert.Equal(t, tt.shouldExist, routed, "route %s %s", tt.method, tt.path)
		})
	}
}

func TestOptimizeDefaults(t *testing.T) {
	srv, metrics, r := testServer(t)

	rr, body := doJSON(t, r, http.MethodPost, "/api/v1/optimize", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, StatusCompleted, body["status"])
	assert.Equal(t, float64(25), body["iterations"])

	best, ok := body["best_solution"].(map[string]interface{})
	require.True(t, ok)
	params, ok := best["parameters"].([]interface{})
	require.True(t, ok)
	assert.Len(t, params, 15)
	for _, p := range params {
		v := p.(float64)
		assert.True(t, v >= 0 && v <= 1)
	}

	id := body["optimization_id"].(string)
	srv.runsMu.RLock()
	state := srv.runs[id]
	srv.runsMu.RUnlock()
	require.NotNil(t, state)
	assert.Equal(t, optimization.ReferenceYields, state.Result.Yields)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(StatusCompleted)))
	assert.Equal(t, 25.0, testutil.ToFloat64(metrics.iterations))
}

func TestOptimizeWithParameters(t *testing.T) {
	_, _, r := testServer(t)

	rr, body := doJSON(t, r, http.MethodPost, "/api/v1/optimize", map[string]interface{}{
		"yields":         []float64{1, 1, 1},
		"max_iterations": 0,
		"seed":           3,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	id := body["optimization_id"].(string)
	rr, status := doJSON(t, r, http.MethodGet, "/api/v1/status/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	cfg := status["config"].(map[string]interface{})
	assert.Equal(t, float64(3), cfg["sources"])
	assert.Equal(t, float64(0), cfg["max_iterations"])
	assert.Equal(t, []interface{}{1.0, 1.0, 1.0}, status["yields"])

	// with unit yields the total yield is the sum of the intensities
	best := status["best_solution"].(map[string]interface{})
	sum := 0.0
	for _, p := range best["parameters"].([]interface{}) {
		sum += p.(float64)
	}
	assert.InDelta(t, sum, best["value"].(float64), 1e-9)
}

func TestOptimizeRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "zero sources", body: map[string]interface{}{"sources": 0}},
		{name: "zero population", body: map[string]interface{}{"population_size": 0}},
		{name: "fractional iterations", body: map[string]interface{}{"max_iterations": 1.5}},
		{name: "negative yield", body: map[string]interface{}{"yields": []float64{1, -1}}},
		{name: "yields not numbers", body: map[string]interface{}{"yields": []string{"a"}}},
		{name: "total yield overflows", body: map[string]interface{}{"yields": []float64{1e308, 1e308, 1e308}}},
		{name: "population beyond int precision", body: map[string]interface{}{"population_size": 1e17}},
		{name: "population over limit", body: map[string]interface{}{"population_size": 1001}},
		{name: "sources over limit", body: map[string]interface{}{"sources": 101}},
		{name: "yields over source limit", body: map[string]interface{}{"yields": make([]float64, 101)}},
		{name: "iterations over limit", body: map[string]interface{}{"max_iterations": 1e6}},
		{name: "huge seed", body: map[string]interface{}{"seed": 1e300}},
		{name: "huge negative sources", body: map[string]interface{}{"sources": -1e20}},
		{name: "random and explicit yields", body: map[string]interface{}{"random_yields": true, "yields": []float64{1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, r := testServer(t)

			rr, body := doJSON(t, r, http.MethodPost, "/api/v1/optimize", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, body["error"])
			assert.Empty(t, srv.runs)
		})
	}
}

func TestOptimizeInvalidBody(t *testing.T) {
	_, _, r := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/optimize", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusAndDelete(t *testing.T) {
	_, _, r := testServer(t)

	rr, _ := doJSON(t, r, http.MethodGet, "/api/v1/status/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	_, body := doJSON(t, r, http.MethodPost, "/api/v1/optimize", map[string]interface{}{"max_iterations": 5})
	id := body["optimization_id"].(string)

	rr, status := doJSON(t, r, http.MethodGet, "/api/v1/status/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, status["history"], 5)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	var runs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0]["optimization_id"])

	rr, _ = doJSON(t, r, http.MethodDelete, "/api/v1/optimization/"+id, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr, _ = doJSON(t, r, http.MethodDelete, "/api/v1/optimization/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestJSONRPC(t *testing.T) {
	_, _, r := testServer(t)

	rpc := func(method string, params ...interface{}) map[string]interface{} {
		t.Helper()
		rr, body := doJSON(t, r, http.MethodPost, "/rpc", map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  method,
			"params":  params,
		})
		require.Equal(t, http.StatusOK, rr.Code)
		return body
	}

	started := rpc("optimization.start", map[string]interface{}{"max_iterations": 3})
	result, ok := started["result"].(map[string]interface{})
	require.True(t, ok, "%v", started)
	id := result["optimization_id"].(string)

	status := rpc("optimization.status", map[string]interface{}{"optimization_id": id})
	result = status["result"].(map[string]interface{})
	assert.Equal(t, StatusCompleted, result["status"])
	assert.Len(t, result["history"], 3)

	listed := rpc("optimization.list")
	assert.Len(t, listed["result"], 1)

	missing := rpc("optimization.status", map[string]interface{}{})
	errObj := missing["error"].(map[string]interface{})
	assert.Equal(t, float64(codeInvalidParams), errObj["code"])

	unknown := rpc("optimization.pause")
	errObj = unknown["error"].(map[string]interface{})
	assert.Equal(t, float64(codeMethodNotFound), errObj["code"])

	tooLarge := rpc("optimization.start", map[string]interface{}{"population_size": 1e17})
	errObj = tooLarge["error"].(map[string]interface{})
	assert.Equal(t, float64(codeInvalidParams), errObj["code"])

	overLimit := rpc("optimization.start", map[string]interface{}{"max_iterations": 1001})
	errObj = overLimit["error"].(map[string]interface{})
	assert.Equal(t, float64(codeInvalidParams), errObj["code"])

	deleted := rpc("optimization.delete", map[string]interface{}{"optimization_id": id})
	assert.Nil(t, deleted["error"])
}

func TestWriteJSON(t *testing.T) {
	srv, _, _ := testServer(t)

	tests := []struct {
		name       string
		status     int
		body       interface{}
		expectCode int
		expectKey  string
	}{
		{name: "encodable", status: http.StatusCreated, body: map[string]interface{}{"total": 1.5}, expectCode: http.StatusCreated, expectKey: "total"},
		{name: "infinite value", status: http.StatusCreated, body: map[string]interface{}{"total": math.Inf(1)}, expectCode: http.StatusInternalServerError, expectKey: "error"},
		{name: "nan value", status: http.StatusOK, body: []float64{math.NaN()}, expectCode: http.StatusInternalServerError, expectKey: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.writeJSON(rr, tt.status, tt.body)

			assert.Equal(t, tt.expectCode, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			var decoded map[string]interface{}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
			assert.Contains(t, decoded, tt.expectKey)
		})
	}
}

func TestJSONRPCInvalidRequests(t *testing.T) {
	_, _, r := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(codeParseError), body["error"].(map[string]interface{})["code"])

	_, body = doJSON(t, r, http.MethodPost, "/rpc", map[string]interface{}{"jsonrpc": "1.0", "method": "optimization.list"})
	assert.Equal(t, float64(codeInvalidRequest), body["error"].(map[string]interface{})["code"])
}

func TestClose(t *testing.T) {
	srv, _, r := testServer(t)
	doJSON(t, r, http.MethodPost, "/api/v1/optimize", map[string]interface{}{"max_iterations": 1})

	err := srv.Close()
	assert.NoError(t, err, "Close should not return an error")
	assert.Empty(t, srv.listRuns())
}

func TestRespondWithError(t *testing.T) {
	srv, _, _ := testServer(t)

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
		expectCode int
	}{
		{
			name:       "valid error response",
			code:       codeInvalidParams,
			message:    "invalid input",
			id:         "123",
			expectedID: "123",
			expectCode: http.StatusOK, // Because respondWithError writes 200 with error in body
		},
		{
			name:       "nil id",
			code:       codeServerError,
			message:    "server error",
			id:         nil,
			expectedID: nil,
			expectCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			assert.Equal(t, tt.expectCode, rr.Code, "status code should match")

			var response map[string]interface{}
			err := json.NewDecoder(rr.Body).Decode(&response)
			assert.NoError(t, err, "should decode response body")

			errObj, ok := response["error"].(map[string]interface{})
			assert.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"], "error code should match")
			assert.Equal(t, tt.message, errObj["message"], "error message should match")

			assert.Equal(t, tt.expectedID, response["id"], "response ID should match")
		})
	}
}
