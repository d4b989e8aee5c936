// Package api serves the dashboard REST endpoints, the health probe, the
// Prometheus scrape endpoint and the websocket stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"btcpulse/internal/aggregate"
	"btcpulse/internal/dashboard"
	"btcpulse/internal/gateway"
	"btcpulse/internal/indicator"
	"btcpulse/internal/metrics"
	"btcpulse/internal/model"
)

// Aggregator runs hourly aggregation on demand.
type Aggregator interface {
	Run(ctx context.Context, lookbackDays int) (aggregate.Result, error)
	Rebuild(ctx context.Context, from, to time.Time) (aggregate.Result, error)
}

// Deps are the collaborators behind the routes. Nil optional fields disable
// their routes.
type Deps struct {
	Dashboard   *dashboard.Service
	Aggregator  Aggregator
	DefaultDays int

	Health  http.Handler     // optional, /api/v1/health
	Metrics *metrics.Metrics // optional, /metrics and request counting
	Hub     *gateway.Hub     // optional, /ws
	Logger  *slog.Logger
}

type server struct {
	Deps
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) *http.ServeMux {
	if d.DefaultDays <= 0 {
		d.DefaultDays = 7
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &server{Deps: d}
	mux := http.NewServeMux()

	if d.Health != nil {
		mux.Handle("GET /api/v1/health", d.Health)
	} else {
		mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
	}
	mux.HandleFunc("GET /api/v1/summary", s.instrument("summary", s.handleSummary))
	mux.HandleFunc("GET /api/v1/chart", s.instrument("chart", s.handleChart))
	mux.HandleFunc("POST /api/v1/aggregate", s.instrument("aggregate", s.handleAggregate))
	mux.HandleFunc("OPTIONS /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		gateway.SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}
	if d.Hub != nil {
		mux.HandleFunc("GET /ws", d.Hub.ServeWS)
	}
	return mux
}

// handleSummary handles GET /api/v1/summary?days=N.
func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) int {
	days, err := s.days(r)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	sum, err := s.Dashboard.Summary(r.Context(), days)
	if err != nil {
		return s.fail(w, r, err)
	}
	return writeJSON(w, http.StatusOK, sum)
}

// handleChart handles GET /api/v1/chart?days=N&hourly=bool&indicators=MA:24,RSI:14.
func (s *server) handleChart(w http.ResponseWriter, r *http.Request) int {
	days, err := s.days(r)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	q := r.URL.Query()
	hourly := false
	if v := q.Get("hourly"); v != "" {
		if hourly, err = strconv.ParseBool(v); err != nil {
			return writeError(w, http.StatusBadRequest, errors.New("hourly must be a boolean"))
		}
	}
	var specs []indicator.Spec
	if v := q.Get("indicators"); v != "" {
		if specs, err = indicator.ParseSpecs(v); err != nil {
			return writeError(w, http.StatusBadRequest, err)
		}
	}
	tbl, err := s.Dashboard.Chart(r.Context(), days, hourly, specs)
	if err != nil {
		return s.fail(w, r, err)
	}
	return writeJSON(w, http.StatusOK, tbl)
}

// handleAggregate handles POST /api/v1/aggregate?days=N, or
// ?from=RFC3339&to=RFC3339 to rebuild a range.
func (s *server) handleAggregate(w http.ResponseWriter, r *http.Request) int {
	q := r.URL.Query()
	var (
		res aggregate.Result
		err error
	)
	if q.Has("from") || q.Has("to") {
		from, ferr := time.Parse(time.RFC3339, q.Get("from"))
		to, terr := time.Parse(time.RFC3339, q.Get("to"))
		if ferr != nil || terr != nil {
			return writeError(w, http.StatusBadRequest, errors.New("from and to must be RFC3339 timestamps"))
		}
		res, err = s.Aggregator.Rebuild(r.Context(), from, to)
	} else {
		days, derr := s.days(r)
		if derr != nil {
			return writeError(w, http.StatusBadRequest, derr)
		}
		res, err = s.Aggregator.Run(r.Context(), days)
	}
	if err != nil {
		return s.fail(w, r, err)
	}
	return writeJSON(w, http.StatusOK, res)
}

func (s *server) days(r *http.Request) (int, error) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return s.DefaultDays, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > dashboard.MaxDays {
		return 0, errors.New("days must be an integer between 1 and " + strconv.Itoa(dashboard.MaxDays))
	}
	return n, nil
}

// fail maps domain errors to status codes and logs server-side failures.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) int {
	switch {
	case errors.Is(err, dashboard.ErrInvalidDays),
		errors.Is(err, indicator.ErrInvalidParameter),
		errors.Is(err, aggregate.ErrInvalidRange):
		return writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, model.ErrNoData):
		return writeError(w, http.StatusNotFound, err)
	}
	s.Logger.Error("request failed", "path", r.URL.Path, "error", err)
	return writeError(w, http.StatusInternalServerError, err)
}

// instrument sets CORS headers and counts requests by route and status code.
func (s *server) instrument(route string, h func(http.ResponseWriter, *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gateway.SetCORS(w)
		code := h(w, r)
		if s.Metrics != nil {
			s.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
	return code
}

func writeError(w http.ResponseWriter, code int, err error) int {
	return writeJSON(w, code, map[string]string{"error": err.Error()})
}
