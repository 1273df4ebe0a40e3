package trace

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" })

	var seen string
	var component string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		component = log.FromContext(r.Context()).Component()
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))

	require.Equal(t, http.StatusTeapot, rr.Code)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rr.Header().Get(HeaderRequestID))
	assert.Equal(t, log.ComponentHTTP, component)
	assert.Equal(t, int64(1), m.GetMetrics().TotalRequests)
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	m := NewMiddleware(nil)
	incoming := uuid.NewString()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, incoming)
	m.Middleware(http.NotFoundHandler()).ServeHTTP(rr, req)
	assert.Equal(t, incoming, rr.Header().Get(HeaderRequestID))

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "not a uuid")
	m.Middleware(http.NotFoundHandler()).ServeHTTP(rr, req)
	assert.NotEqual(t, "not a uuid", rr.Header().Get(HeaderRequestID))
}

func TestGetRequestIDMissing(t *testing.T) {
	assert.Empty(t, GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
