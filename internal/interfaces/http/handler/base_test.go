package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/medview/backend/internal/domain/measurement"
	"github.com/medview/backend/internal/domain/shared"
	"github.com/medview/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(method string, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", strings.NewReader(body))
	return c, w
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from context",
			setup: func(c *gin.Context) {
				c.Set(requestIDContextKey, "ctx-request-id")
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set(RequestIDKey, "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(requestIDContextKey, "ctx-id")
				c.Request.Header.Set(RequestIDKey, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(http.MethodGet, "")
			tt.setup(c)

			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestBaseHandlerSuccessAndCreated(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext(http.MethodGet, "")
	h.Success(c, map[string]string{"key": "value"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"key":"value"}}`, w.Body.String())

	c, w = newTestContext(http.MethodPost, "")
	h.Created(c, map[string]string{"id": "123"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"123"`)
}

func TestBaseHandlerNoContent(t *testing.T) {
	h := &BaseHandler{}

	router := gin.New()
	router.DELETE("/test", func(c *gin.Context) {
		h.NoContent(c)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/test", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestBaseHandlerErrorMethods(t *testing.T) {
	tests := []struct {
		name         string
		method       func(*BaseHandler, *gin.Context)
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "BadRequest",
			method:       func(h *BaseHandler, c *gin.Context) { h.BadRequest(c, "bad") },
			expectedCode: http.StatusBadRequest,
			expectedErr:  dto.ErrCodeBadRequest,
		},
		{
			name:         "NotFound",
			method:       func(h *BaseHandler, c *gin.Context) { h.NotFound(c, "missing") },
			expectedCode: http.StatusNotFound,
			expectedErr:  dto.ErrCodeNotFound,
		},
		{
			name:         "InternalError",
			method:       func(h *BaseHandler, c *gin.Context) { h.InternalError(c, "boom") },
			expectedCode: http.StatusInternalServerError,
			expectedErr:  dto.ErrCodeInternal,
		},
		{
			name:         "ErrorWithCode derives the status",
			method:       func(h *BaseHandler, c *gin.Context) { h.ErrorWithCode(c, dto.ErrCodeNoMapping, "none") },
			expectedCode: http.StatusUnprocessableEntity,
			expectedErr:  dto.ErrCodeNoMapping,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodGet, "")
			c.Set(requestIDContextKey, "req-1")

			tt.method(&BaseHandler{}, c)

			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}
}

func TestBaseHandlerHandleDomainError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"already exists", shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"invalid input", shared.ErrInvalidInput, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"invalid state", shared.ErrInvalidState, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"invalid source", measurement.ErrInvalidSource, http.StatusBadRequest, dto.ErrCodeInvalidSource},
		{"ambiguous mapping", measurement.ErrAmbiguousMapping, http.StatusConflict, dto.ErrCodeAmbiguousMapping},
		{"no mappings", measurement.ErrNoMappings, http.StatusUnprocessableEntity, dto.ErrCodeNoMappings},
		{"conversion failed", measurement.ErrConversionFailed, http.StatusUnprocessableEntity, dto.ErrCodeConversionFailed},
		{"invalid measurement", measurement.ErrInvalidMeasurement, http.StatusBadRequest, dto.ErrCodeInvalidMeasurement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodGet, "")

			(&BaseHandler{}).HandleDomainError(c, tt.err)

			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
		})
	}
}

func TestBaseHandlerHandleDomainError_Wrapped(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "")

	err := fmt.Errorf("%w: annotation %q", measurement.ErrConversionFailed, "ann-7")
	(&BaseHandler{}).HandleDomainError(c, err)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, measurement.ErrConversionFailed.Message, resp.Error.Message)
	assert.Contains(t, resp.Error.Detail, "ann-7")
}

func TestBaseHandlerHandleNonDomainError(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "")

	(&BaseHandler{}).HandleDomainError(c, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
	assert.Equal(t, "An unexpected error occurred", resp.Error.Message)
	assert.NotContains(t, w.Body.String(), "disk on fire")
}

func TestBaseHandlerHandleDomainError_Nil(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "")

	(&BaseHandler{}).HandleDomainError(c, nil)

	assert.Empty(t, w.Body.Bytes())
}

func TestDecodeStrictJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	require.NoError(t, decodeStrictJSON([]byte(`{"name":"a"}`), &dst))
	assert.Equal(t, "a", dst.Name)

	err := decodeStrictJSON([]byte(`{"name":"a","extra":1}`), &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")

	assert.Error(t, decodeStrictJSON([]byte(`{`), &dst))
}

func TestIsEmptyBody(t *testing.T) {
	assert.True(t, isEmptyBody(nil))
	assert.True(t, isEmptyBody([]byte(" \n\t")))
	assert.False(t, isEmptyBody([]byte("{}")))
}

func TestBaseHandlerReadBody(t *testing.T) {
	h := &BaseHandler{}

	t.Run("within limit", func(t *testing.T) {
		c, _ := newTestContext(http.MethodPost, `{"a":1}`)
		raw, ok := h.readBody(c)
		require.True(t, ok)
		assert.Equal(t, `{"a":1}`, string(raw))
	})

	t.Run("over limit", func(t *testing.T) {
		c, w := newTestContext(http.MethodPost, strings.Repeat("x", 64))
		c.Request.Body = http.MaxBytesReader(w, c.Request.Body, 16)

		_, ok := h.readBody(c)
		assert.False(t, ok)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, decodeResponse(t, w).Error.Code)
	})
}
