package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/books", "200").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/books").Observe(0.01)
	LoansCreatedTotal.Inc()
	LoansReturnedTotal.Inc()

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "library_http_requests_total")
	assert.Contains(t, string(body), "library_http_request_duration_seconds")
	assert.Contains(t, string(body), "library_loans_created_total")
	assert.Contains(t, string(body), "library_loans_returned_total")
}
