package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/goldmine/internal/logging"
)

var errSentinel = stderrors.New("sentinel")

func TestErrorString(t *testing.T) {
	err := Wrap(errSentinel, "create colony").WithOperation("optimize").WithComponent("server")
	assert.Equal(t, "create colony: operation=optimize, component=server: sentinel", err.Error())
	assert.NotEmpty(t, err.StackTrace())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestIsAndAs(t *testing.T) {
	err := Wrap(errSentinel, "run r1")

	assert.True(t, Is(err, errSentinel))
	assert.Equal(t, errSentinel, Unwrap(err))

	var target *Error
	require.True(t, As(err, &target))
	assert.Equal(t, "run r1", target.Message)
	assert.False(t, Is(New("other"), errSentinel))
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.InfoLevel, &buf)

	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("colony exploded")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/optimize", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "colony exploded", entry["error"])
	assert.Equal(t, "/api/v1/optimize", entry["path"])
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
		logged bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "client error", status: http.StatusNotFound, level: "WARN", logged: true},
		{name: "server error", status: http.StatusInternalServerError, level: "ERROR", logged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.New(logging.InfoLevel, &buf)
			h := ErrorHandler(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status/x", nil))
			assert.Equal(t, tt.status, rr.Code)

			if !tt.logged {
				assert.Zero(t, buf.Len())
				return
			}
			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
		})
	}
}
