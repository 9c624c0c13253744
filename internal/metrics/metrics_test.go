package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestObserveHTTP(t *testing.T) {
	ObserveHTTP("GET /api/budgets", "GET", 200, 15*time.Millisecond)

	body := scrape(t)
	assert.Contains(t, body, `famfinance_http_requests_total{method="GET",route="GET /api/budgets",status="200"}`)
	assert.Contains(t, body, "famfinance_http_request_duration_seconds_bucket")
}

func TestHandlerExposesCollectors(t *testing.T) {
	BudgetsGenerated.Add(0)
	EmailJobs.WithLabelValues("sent").Add(0)

	body := scrape(t)
	assert.Contains(t, body, "famfinance_budgets_generated_total")
	assert.Contains(t, body, `famfinance_email_jobs_total{result="sent"}`)
}
