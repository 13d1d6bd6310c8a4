package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/handler"
	"github.com/dmitrymomot/keygate/pkg/binder"
	"github.com/dmitrymomot/keygate/pkg/requestid"
)

type echoRequest struct {
	Name string `json:"name"`
	Key  string `query:"key"`
}

var errTeapot = errors.New("short and stout")

func classify(err error) (handler.ErrorInfo, bool) {
	if errors.Is(err, errTeapot) {
		return handler.ErrorInfo{Status: http.StatusTeapot, Message: "teapot", Reason: "stout"}, true
	}
	return handler.ErrorInfo{}, false
}

func serve(t *testing.T, h http.Handler, r *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	requestid.Middleware(h).ServeHTTP(rec, r)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestWrap(t *testing.T) {
	t.Parallel()

	echo := handler.Wrap(func(ctx handler.Context, req echoRequest) handler.Response {
		switch req.Name {
		case "teapot":
			return handler.Fail(errTeapot)
		case "boom":
			return handler.Fail(errors.New("db password leaked here"))
		case "nil":
			return nil
		}
		return handler.JSON(http.StatusCreated, map[string]string{"name": req.Name, "key": req.Key})
	},
		handler.WithBinders(binder.Query(), binder.JSON(64)),
		handler.WithErrorHandler(handler.NewErrorHandler(nil, classify)),
	)

	post := func(body string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/echo?key=k1", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		return r
	}

	t.Run("binds and renders", func(t *testing.T) {
		t.Parallel()

		rec, body := serve(t, echo, post(`{"name":"ann"}`))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "ann", body["name"])
		assert.Equal(t, "k1", body["key"])
	})

	t.Run("optional body", func(t *testing.T) {
		t.Parallel()

		rec, body := serve(t, echo, httptest.NewRequest(http.MethodPost, "/echo?key=k2", nil))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "k2", body["key"])
	})

	tests := []struct {
		name       string
		r          *http.Request
		wantStatus int
		wantError  string
		wantReason string
	}{
		{"domain error", post(`{"name":"teapot"}`), http.StatusTeapot, "teapot", "stout"},
		{"unknown error", post(`{"name":"boom"}`), http.StatusInternalServerError, "internal server error", ""},
		{"nil response", post(`{"name":"nil"}`), http.StatusInternalServerError, "internal server error", ""},
		{"too large", post(`{"name":"` + strings.Repeat("x", 100) + `"}`), http.StatusRequestEntityTooLarge, "", ""},
		{"bad json", post(`{"name":1}`), http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, body := serve(t, echo, tt.r)
			assert.Equal(t, tt.wantStatus, rec.Code)
			require.NotNil(t, body)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, body["reason"])
			} else {
				assert.NotContains(t, body, "reason")
			}
			assert.Equal(t, rec.Header().Get(requestid.Header), body["request_id"])
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	info := handler.ClassifyError(handler.NewHTTPError(http.StatusUnauthorized, ""))
	assert.Equal(t, http.StatusUnauthorized, info.Status)
	assert.Equal(t, "Unauthorized", info.Message)

	info = handler.ClassifyError(binder.ErrUnsupportedMediaType)
	assert.Equal(t, http.StatusUnsupportedMediaType, info.Status)
}
