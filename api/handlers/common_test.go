package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/types"
)

// =============================================================================
// 🧪 响应辅助函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"k": "v"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"k":"v"}`, w.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, "ok")

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Data)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        *types.Error
		wantStatus int
	}{
		{
			name:       "explicit status wins",
			err:        types.NewError(types.ErrInternalError, "x").WithHTTPStatus(http.StatusTeapot),
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "mapped from code",
			err:        types.NewError(types.ErrSynthesisFailed, "tts down").WithStage("synthesis").WithCause(errors.New("exit 1")),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "invalid request",
			err:        types.NewError(types.ErrInvalidRequest, "bad"),
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Stage, resp.Error.Stage)
		})
	}
}

func TestWriteMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	WriteMethodNotAllowed(w, http.MethodGet, http.MethodPost)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, []string{"GET", "POST"}, w.Header().Values("Allow"))
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	cases := map[types.ErrorCode]int{
		types.ErrInvalidRequest:     http.StatusBadRequest,
		types.ErrContentRejected:    http.StatusUnprocessableEntity,
		types.ErrClientTimeout:      http.StatusGatewayTimeout,
		types.ErrHandshakeTimeout:   http.StatusGatewayTimeout,
		types.ErrServiceUnavailable: http.StatusServiceUnavailable,
		types.ErrCompletionFailed:   http.StatusBadGateway,
		types.ErrInternalError:      http.StatusInternalServerError,
		types.ErrorCode("UNKNOWN"):  http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, mapErrorCodeToHTTPStatus(code), "code %s", code)
	}
}

// =============================================================================
// 🧪 ResponseWriter 测试
// =============================================================================

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusNoContent)
	rw.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusNoContent, rw.StatusCode)
	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestResponseWriter_CountsBytesAndFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(5), rw.Bytes)
	assert.Equal(t, http.StatusOK, rw.StatusCode)

	require.NoError(t, http.NewResponseController(rw).Flush())
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, rw.Unwrap())
}
