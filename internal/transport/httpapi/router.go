package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/errs"
	"rpkimon/internal/ports"
)

const maxListLimit = 1000

// Service is the read side the API serves from.
type Service interface {
	ListUpdates(ctx context.Context, limit int) ([]ports.UpdateSummary, error)
	GetUpdate(ctx context.Context, updateID uint64) (ports.UpdateSummary, error)
	DeleteUpdate(ctx context.Context, updateID uint64) error
	ListUnreachabilities(ctx context.Context, filter ports.EventFilter) ([]ports.UnreachabilityView, error)
	ListInconsistencies(ctx context.Context, filter ports.EventFilter) ([]ports.InconsistencyView, error)
	ListObjectErrors(ctx context.Context, filter ports.EventFilter) ([]ports.ObjectErrorView, error)
}

type handler struct {
	svc Service
}

// NewRouter builds the HTTP API. A nil gatherer leaves /metrics unmounted.
func NewRouter(svc Service, gatherer prometheus.Gatherer) http.Handler {
	h := handler{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/updates", h.listUpdates)
		r.Get("/updates/{updateID}", h.getUpdate)
		r.Delete("/updates/{updateID}", h.deleteUpdate)
		r.Get("/unreachabilities", h.listUnreachabilities)
		r.Get("/inconsistencies", h.listInconsistencies)
		r.Get("/errors", h.listObjectErrors)
	})
	return r
}

func (h handler) listUpdates(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListUpdates(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]updateView, 0, len(items))
	for _, item := range items {
		out = append(out, toUpdateView(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h handler) getUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "updateID"))
	if !ok {
		return
	}
	update, err := h.svc.GetUpdate(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUpdateView(update))
}

func (h handler) deleteUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "updateID"))
	if !ok {
		return
	}
	if err := h.svc.DeleteUpdate(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h handler) listUnreachabilities(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListUnreachabilities(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]unreachabilityView, 0, len(items))
	for _, item := range items {
		out = append(out, toUnreachabilityView(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h handler) listInconsistencies(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListInconsistencies(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]inconsistencyView, 0, len(items))
	for _, item := range items {
		out = append(out, toInconsistencyView(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h handler) listObjectErrors(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListObjectErrors(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]objectErrorView, 0, len(items))
	for _, item := range items {
		out = append(out, toObjectErrorView(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func parseID(w http.ResponseWriter, raw string) (uint64, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid update id")
		return 0, false
	}
	return id, true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}

func parseFilter(w http.ResponseWriter, r *http.Request) (ports.EventFilter, bool) {
	var filter ports.EventFilter
	if raw := r.URL.Query().Get("update"); raw != "" {
		id, ok := parseID(w, raw)
		if !ok {
			return filter, false
		}
		filter.UpdateID = id
	}
	filter.OwnerID = r.URL.Query().Get("owner")

	limit, ok := parseLimit(w, r)
	if !ok {
		return filter, false
	}
	filter.Limit = limit
	return filter, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ports.ErrUpdateNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	logging.Error(r.Context(), "request failed", slog.Any("err", errs.Loggable(err)))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithAttrs(r.Context(),
			slog.String("component", "transport.httpapi"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Debug(ctx, "request served",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
