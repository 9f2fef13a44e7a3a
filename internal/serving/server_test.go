package serving

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-feature-store/internal/observability"
)

var fixedNow = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	return NewServer(testModel(t), nil).
		WithClock(func() time.Time { return fixedNow }).
		Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestServer_Health(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2025-01-15T10:30:00Z", body["timestamp"])
}

func TestServer_Home(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, "LogisticRegression", body["model"])
	assert.Equal(t, "AAPL", body["ticker"])
	assert.Contains(t, body, "endpoints")
}

func TestServer_ModelInfo(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/model_info", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[Artifact](t, rec)
	assert.Equal(t, testArtifact(), body)
}

func TestServer_Predict(t *testing.T) {
	before := testutil.ToFloat64(observability.DefaultMetrics.PredictionsTotal.WithLabelValues("UP", ConfidenceHigh))

	rec := do(t, newTestServer(t), http.MethodPost, "/predict", `{"signal": 1.0986122886681098, "noise": 3, "extra": "ignored"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[PredictResponse](t, rec)
	assert.Equal(t, PredictResponse{
		Prediction:      1,
		PredictionLabel: "UP",
		ProbabilityUp:   0.75,
		ProbabilityDown: 0.25,
		Confidence:      ConfidenceHigh,
		Recommendation:  "BUY at open, SELL at close",
		Timestamp:       "2025-01-15T10:30:00Z",
		Model:           "LogisticRegression",
		Ticker:          "AAPL",
	}, body)

	after := testutil.ToFloat64(observability.DefaultMetrics.PredictionsTotal.WithLabelValues("UP", ConfidenceHigh))
	assert.Equal(t, before+1, after)
}

func TestServer_Predict_NullIsImputed(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/predict", `{"signal": null, "noise": null}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[PredictResponse](t, rec)
	assert.Equal(t, 0.7311, body.ProbabilityUp)
	assert.Equal(t, 0.2689, body.ProbabilityDown)
}

func TestServer_Predict_EmptyBody(t *testing.T) {
	for _, body := range []string{"", "{}", "null"} {
		t.Run(body, func(t *testing.T) {
			rec := do(t, newTestServer(t), http.MethodPost, "/predict", body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, map[string]float64{"signal": 0, "noise": 0}, resp.Example)
		})
	}
}

func TestServer_Predict_MissingFeatures(t *testing.T) {
	before := testutil.ToFloat64(observability.DefaultMetrics.PredictionsFailed.WithLabelValues("missing_features"))

	rec := do(t, newTestServer(t), http.MethodPost, "/predict", `{"signal": 1}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Error, "noise")
	assert.Equal(t, []string{"signal", "noise"}, resp.RequiredFeatures)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.DefaultMetrics.PredictionsFailed.WithLabelValues("missing_features")))
}

func TestServer_Predict_BadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"signal": `},
		{"array body", `[1, 2]`},
		{"string value", `{"signal": "up", "noise": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(t), http.MethodPost, "/predict", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestServer_Predict_WrongMethod(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/predict", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RequestID(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestServer_Metrics(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "daily_features_")
}
