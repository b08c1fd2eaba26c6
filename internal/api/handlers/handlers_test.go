package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gigurra/subsmart/internal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, 6, 20, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) *http.ServeMux {
	t.Helper()
	store := internal.NewMemoryStore()
	categorizer, err := internal.NewCategorizer(nil)
	require.NoError(t, err)
	t.Cleanup(categorizer.Close)

	clock := func() time.Time { return today }
	engine := internal.NewEngine(store, internal.EngineConfig{Clock: clock})
	svc := internal.NewService(store, engine, categorizer, zerolog.Nop())

	mux := http.NewServeMux()
	New(svc, categorizer, clock).Register(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func monthlyRecords(description string, amount string, days ...string) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = fmt.Sprintf(`{"id": "%s-%d", "date": "%s", "description": "%s", "amount": %s}`,
			strings.ToLower(description), i, d, description, amount)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// seed ingests Netflix and Spotify histories for user 1 and runs detection.
func seed(t *testing.T, mux http.Handler) internal.JSONDetectResult {
	t.Helper()
	rec := do(t, mux, http.MethodPost, "/api/transactions?user_id=1",
		monthlyRecords("Netflix", "99", "2025-01-15", "2025-02-15", "2025-03-15", "2025-04-15", "2025-05-15", "2025-06-15"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, mux, http.MethodPost, "/api/transactions?user_id=1",
		`{"transactions": `+monthlyRecords("Spotify", `"129.00"`, "2025-03-03", "2025-04-03", "2025-05-03", "2025-06-03")+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, mux, http.MethodPost, "/api/subscriptions/detect?user_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[internal.JSONDetectResult](t, rec)
}

func findByKey(t *testing.T, mux http.Handler, key string) internal.JSONSubscription {
	t.Helper()
	rec := do(t, mux, http.MethodGet, "/api/subscriptions?user_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Subscriptions []internal.JSONSubscription `json:"subscriptions"`
	}](t, rec)
	for _, s := range resp.Subscriptions {
		if s.MerchantKey == key {
			return s
		}
	}
	t.Fatalf("no subscription for %s", key)
	return internal.JSONSubscription{}
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2025-06-20T09:30:00Z", body["time"])
}

func TestIngestTransactions(t *testing.T) {
	mux := newTestServer(t)

	rec := do(t, mux, http.MethodPost, "/api/transactions?user_id=1", `[
		{"id": "a", "date": "2025-01-15", "description": "Netflix", "amount": 99},
		{"id": "b", "date": "2025-02-15", "description": "Netflix", "amount": "99.00", "user_id": 1},
		{"id": "c", "date": "2025-02-30", "description": "Netflix", "amount": 99},
		{"id": "d", "date": "2025-03-15", "description": "Netflix", "amount": 99, "user_id": 7}
	]`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ingestResponse](t, rec)
	assert.Equal(t, 2, resp.Stored)
	assert.Equal(t, 0, resp.Repeated)
	require.Len(t, resp.Rejected, 2)
	assert.Equal(t, 2, resp.Rejected[0].Index)
	assert.Contains(t, resp.Rejected[0].Error, "invalid date")
	assert.Equal(t, 3, resp.Rejected[1].Index)

	rec = do(t, mux, http.MethodPost, "/api/transactions?user_id=1",
		`{"transactions": [{"id": "a", "date": "2025-01-15", "description": "Netflix", "amount": 99}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[ingestResponse](t, rec)
	assert.Equal(t, 0, resp.Stored)
	assert.Equal(t, 1, resp.Repeated)
	assert.NotNil(t, resp.Rejected)
}

func TestIngestTransactions_BadRequests(t *testing.T) {
	mux := newTestServer(t)
	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"missing user", "/api/transactions", `[]`},
		{"bad user", "/api/transactions?user_id=abc", `[]`},
		{"zero user", "/api/transactions?user_id=0", `[]`},
		{"bad json", "/api/transactions?user_id=1", `[{`},
		{"wrong shape", "/api/transactions?user_id=1", `"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestListTransactions(t *testing.T) {
	mux := newTestServer(t)
	seed(t, mux)

	rec := do(t, mux, http.MethodGet, "/api/transactions?user_id=1&skip=2&limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Transactions []internal.JSONTransaction `json:"transactions"`
		Count        int                        `json:"count"`
	}](t, rec)
	assert.Equal(t, 3, resp.Count)
	require.Len(t, resp.Transactions, 3)
	assert.Equal(t, "2025-03-03", resp.Transactions[0].Date)

	for _, q := range []string{"skip=-1", "limit=0", "limit=x"} {
		rec := do(t, mux, http.MethodGet, "/api/transactions?user_id=1&"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestDetectSubscriptions(t *testing.T) {
	mux := newTestServer(t)
	res := seed(t, mux)

	assert.Equal(t, 2, res.DetectedCount)
	assert.Equal(t, 2, res.CreatedCount)
	require.Len(t, res.Subscriptions, 2)
	for _, s := range res.Subscriptions {
		assert.Equal(t, "Streaming", s.Category)
		assert.Equal(t, "monthly", s.Frequency)
	}

	rec := do(t, mux, http.MethodPost, "/api/subscriptions/detect?user_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[internal.JSONDetectResult](t, rec)
	assert.Equal(t, 0, again.CreatedCount)
	assert.Equal(t, 0, again.UpdatedCount)
}

func TestGetAndListSubscriptions(t *testing.T) {
	mux := newTestServer(t)
	seed(t, mux)
	netflix := findByKey(t, mux, "netflix")

	rec := do(t, mux, http.MethodGet, "/api/subscriptions/"+netflix.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[internal.JSONSubscription](t, rec)
	assert.Equal(t, "netflix", got.MerchantKey)
	assert.Equal(t, "99.00", got.Amount.Decimal().StringFixed(2))
	assert.Equal(t, "2025-07-15", *got.NextBillingDate)

	rec = do(t, mux, http.MethodGet, "/api/subscriptions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/subscriptions?user_id=1&status=paused", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/subscriptions?user_id=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["count"])
}

func TestProrateAndCancel(t *testing.T) {
	mux := newTestServer(t)
	seed(t, mux)
	netflix := findByKey(t, mux, "netflix")

	rec := do(t, mux, http.MethodPost, "/api/subscriptions/"+netflix.ID+"/prorate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[internal.JSONProration](t, rec)
	assert.Equal(t, "2025-06-15", p.CycleStart)
	assert.Equal(t, 5, p.DaysUsed)
	assert.Equal(t, "82.50", p.RefundAmount.Decimal().StringFixed(2))

	rec = do(t, mux, http.MethodPost, "/api/subscriptions/"+netflix.ID+"/prorate", `{"cancellation_date": "2025-06-25"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "66.00", decode[internal.JSONProration](t, rec).RefundAmount.Decimal().StringFixed(2))

	rec = do(t, mux, http.MethodPost, "/api/subscriptions/"+netflix.ID+"/prorate", `{"cancellation_date": "2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, mux, http.MethodPost, "/api/subscriptions/"+netflix.ID+"/prorate", `{"cancellation_date": "June"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, mux, http.MethodPost, "/api/subscriptions/"+netflix.ID+"/prorate", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/subscriptions/"+netflix.ID+"/cancel", `{"cancellation_date": "2025-06-20"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[struct {
		Subscription internal.JSONSubscription `json:"subscription"`
		Proration    internal.JSONProration    `json:"proration"`
	}](t, rec)
	assert.Equal(t, "cancelled", cancelled.Subscription.Status)
	assert.Equal(t, "82.50", cancelled.Proration.RefundAmount.Decimal().StringFixed(2))

	rec = do(t, mux, http.MethodPost, "/api/subscriptions/"+netflix.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, mux, http.MethodPost, "/api/subscriptions/"+netflix.ID+"/prorate", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, mux, http.MethodPost, "/api/subscriptions/missing/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/subscriptions/detect?user_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[internal.JSONDetectResult](t, rec).SkippedCancelled)

	rec = do(t, mux, http.MethodGet, "/api/subscriptions?user_id=1&status=cancelled", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])
}

func TestDeleteSubscription(t *testing.T) {
	mux := newTestServer(t)
	seed(t, mux)
	spotify := findByKey(t, mux, "spotify")

	rec := do(t, mux, http.MethodDelete, "/api/subscriptions/"+spotify.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, mux, http.MethodDelete, "/api/subscriptions/"+spotify.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInsights(t *testing.T) {
	mux := newTestServer(t)
	seed(t, mux)

	rec := do(t, mux, http.MethodGet, "/api/insights?user_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[internal.JSONInsights](t, rec)
	assert.Equal(t, "2025-06-20", snap.AsOf)
	assert.Equal(t, 2, snap.SubscriptionCount)
	assert.Equal(t, "228.00", snap.TotalMonthlyCost.Decimal().StringFixed(2))
	require.NotNil(t, snap.HighestSpend)
	assert.Equal(t, "spotify", snap.HighestSpend.MerchantKey)
	require.Len(t, snap.PredictedUpcomingPayments, 2)
	assert.Equal(t, "spotify", snap.PredictedUpcomingPayments[0].MerchantKey)
	require.Len(t, snap.SpendingTrend, 6)
	assert.Equal(t, "99.00", snap.SpendingTrend[0].Amount.Decimal().StringFixed(2))

	rec = do(t, mux, http.MethodGet, "/api/insights?user_id=1&as_of=2025-10-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	later := decode[internal.JSONInsights](t, rec)
	assert.Len(t, later.UnusedSubscriptions, 2)
	assert.Empty(t, later.PredictedUpcomingPayments)

	rec = do(t, mux, http.MethodGet, "/api/insights?user_id=1&as_of=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPut, "/api/insights?user_id=1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
