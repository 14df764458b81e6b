package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/v1/coffeehouse/nlp/sentiment", "/v1/coffeehouse/nlp/sentiment"},
		{"/v1/generalizations/6f1c2a4e-9b1d-4c7a-8e2f-0a1b2c3d4e5f", "/v1/generalizations/{id}"},
		{"/v1/lydia/0123456789abcdef0123456789abcdef", "/v1/lydia/{id}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.path))
	}
}

func TestMiddleware_RecordsStatus(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/test/status", "429"))

	req := httptest.NewRequest(http.MethodPost, "/test/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/test/status", "429"))
	assert.Equal(t, before+1, after)
}
