package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gigurra/subsmart/internal"
	"github.com/gigurra/subsmart/internal/api/middleware"
	"github.com/gigurra/subsmart/internal/logger"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Handler serves the subscription API on top of a Service.
type Handler struct {
	svc         *internal.Service
	categorizer internal.Categorizer
	clock       func() time.Time
}

// New creates the handler. A nil clock uses the current UTC time.
func New(svc *internal.Service, categorizer internal.Categorizer, clock func() time.Time) *Handler {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{svc: svc, categorizer: categorizer, clock: clock}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/transactions", h.IngestTransactions)
	mux.HandleFunc("GET /api/transactions", h.ListTransactions)
	mux.HandleFunc("POST /api/subscriptions/detect", h.DetectSubscriptions)
	mux.HandleFunc("GET /api/subscriptions", h.ListSubscriptions)
	mux.HandleFunc("GET /api/subscriptions/{id}", h.GetSubscription)
	mux.HandleFunc("DELETE /api/subscriptions/{id}", h.DeleteSubscription)
	mux.HandleFunc("POST /api/subscriptions/{id}/prorate", h.ProrateSubscription)
	mux.HandleFunc("POST /api/subscriptions/{id}/cancel", h.CancelSubscription)
	mux.HandleFunc("GET /api/insights", h.Insights)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   h.clock().Format(time.RFC3339),
	})
}

type ingestResponse struct {
	Stored   int           `json:"stored"`
	Repeated int           `json:"repeated"`
	Rejected []recordError `json:"rejected"`
}

type recordError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IngestTransactions handles POST /api/transactions?user_id=
// The body is either an array of records or {"transactions": [...]}.
func (h *Handler) IngestTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	recs, err := decodeRecords(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.svc.Ingest(r.Context(), userID, recs)
	if err != nil {
		h.fail(w, r, err, "Failed to ingest transactions")
		return
	}

	resp := ingestResponse{Stored: res.Stored, Repeated: res.Repeated, Rejected: []recordError{}}
	for _, e := range res.Errors {
		resp.Rejected = append(resp.Rejected, recordError{Index: e.Index, Error: e.Err.Error()})
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func decodeRecords(r *http.Request) ([]internal.TransactionRecord, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var recs []internal.TransactionRecord
	if err := json.Unmarshal(raw, &recs); err == nil {
		return recs, nil
	}
	var wrapped struct {
		Transactions []internal.TransactionRecord `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Transactions, nil
}

// ListTransactions handles GET /api/transactions?user_id=&skip=&limit=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	skip, err := intParam(r, "skip", 0)
	if err != nil || skip < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid skip")
		return
	}
	limit, err := intParam(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	limit = min(limit, maxPageSize)

	txs, err := h.svc.Transactions(r.Context(), internal.TransactionFilter{UserID: userID, Offset: skip, Limit: limit})
	if err != nil {
		h.fail(w, r, err, "Failed to list transactions")
		return
	}

	out := make([]internal.JSONTransaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, internal.ToJSONTransaction(tx))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": out,
		"count":        len(out),
	})
}

// DetectSubscriptions handles POST /api/subscriptions/detect?user_id=
func (h *Handler) DetectSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	res, err := h.svc.DetectStored(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err, "Failed to detect subscriptions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, internal.ToJSONDetectResult(res, h.categorizer))
}

// ListSubscriptions handles GET /api/subscriptions?user_id=&status=
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	filter := internal.SubscriptionFilter{UserID: userID}
	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := internal.ParseStatus(s)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		filter.Status = status
	}

	subs, err := h.svc.Subscriptions(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err, "Failed to list subscriptions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subscriptions": internal.ToJSONSubscriptions(subs, h.categorizer),
		"count":         len(subs),
	})
}

// GetSubscription handles GET /api/subscriptions/{id}
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Subscription(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err, "Failed to get subscription")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, internal.ToJSONSubscription(sub, h.categorizer))
}

// DeleteSubscription handles DELETE /api/subscriptions/{id}
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err, "Failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cancellationRequest struct {
	CancellationDate string `json:"cancellation_date"`
}

// cancellationDate reads the body date; an empty body or date means today.
func (h *Handler) cancellationDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req cancellationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return time.Time{}, false
	}
	if req.CancellationDate == "" {
		return internal.Day(h.clock()), true
	}
	date, err := internal.ParseDate(req.CancellationDate)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "cancellation_date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

// ProrateSubscription handles POST /api/subscriptions/{id}/prorate
func (h *Handler) ProrateSubscription(w http.ResponseWriter, r *http.Request) {
	date, ok := h.cancellationDate(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	p, err := h.svc.Prorate(r.Context(), id, date)
	if err != nil {
		h.fail(w, r, err, "Failed to prorate subscription")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, internal.ToJSONProration(id, p))
}

// CancelSubscription handles POST /api/subscriptions/{id}/cancel
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	date, ok := h.cancellationDate(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	sub, p, err := h.svc.Cancel(r.Context(), id, date)
	if err != nil {
		h.fail(w, r, err, "Failed to cancel subscription")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subscription": internal.ToJSONSubscription(sub, h.categorizer),
		"proration":    internal.ToJSONProration(id, p),
	})
}

// Insights handles GET /api/insights?user_id=&as_of=
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	asOf := internal.Day(h.clock())
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := internal.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
			return
		}
		asOf = d
	}

	snap, err := h.svc.Insights(r.Context(), userID, asOf)
	if err != nil {
		h.fail(w, r, err, "Failed to compute insights")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, internal.ToJSONInsights(snap, h.categorizer))
}

// fail maps service errors onto status codes. Unexpected errors are logged
// and reported with the generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	var (
		validation *internal.ValidationError
		invalid    *internal.InvalidDateError
		cancelled  *internal.AlreadyCancelledError
	)
	switch {
	case errors.Is(err, internal.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation), errors.As(err, &invalid):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &cancelled):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg(message)
		middleware.WriteError(w, http.StatusInternalServerError, message)
	}
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	s := r.URL.Query().Get("user_id")
	if s == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid user_id %q", s))
		return 0, false
	}
	return id, true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
