// Package httpapi implements the HTTP surface of spec.md §6: the
// instrumented-job-facing /observe and /ack endpoints, the bearer-token
// gated /admin endpoints, and /status. Grounded on the teacher's choice
// to never reach for a router library (no chi/gin/echo/gorilla/mux
// import anywhere in the repo) — net/http.ServeMux is the idiom to
// imitate, with its Go 1.22+ method+wildcard patterns.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/rewire/rewire/pkg/ids"
	"github.com/rewire/rewire/pkg/obs"
	"github.com/rewire/rewire/pkg/rewireerr"
	"github.com/rewire/rewire/pkg/rewiretypes"
	"github.com/rewire/rewire/pkg/store"
	"github.com/rewire/rewire/pkg/trial"
)

// requestTimeout bounds every handler, per SPEC_FULL.md §4.I.
const requestTimeout = 10 * time.Second

// observationHistoryLimit bounds how many observations GET /observe/{id}
// returns, per spec.md §6.
const observationHistoryLimit = 10

// Server holds the dependencies every handler needs.
type Server struct {
	store      store.Store
	trials     *trial.Manager
	adminToken string
	log        zerolog.Logger
	metrics    *obs.Metrics
}

// New returns a Server. adminToken gates every /admin/* route.
func New(s store.Store, trials *trial.Manager, adminToken string, log zerolog.Logger, metrics *obs.Metrics) *Server {
	return &Server{
		store:      s,
		trials:     trials,
		adminToken: adminToken,
		log:        log.With().Str("component", "httpapi").Logger(),
		metrics:    metrics,
	}
}

// Handler returns the composed http.Handler, every route wrapped in
// http.TimeoutHandler per spec.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /observe/{id}", s.handleAppendObservation)
	mux.HandleFunc("GET /observe/{id}", s.handleGetObservations)
	mux.HandleFunc("GET /ack/{trial_id}", s.handleAck)
	mux.HandleFunc("POST /admin/new", s.requireAdmin(s.handleAdminNew))
	mux.HandleFunc("POST /admin/enable", s.requireAdmin(s.handleAdminSetEnabled(true)))
	mux.HandleFunc("POST /admin/disable", s.requireAdmin(s.handleAdminSetEnabled(false)))
	mux.HandleFunc("GET /status", s.handleStatus)
	return http.TimeoutHandler(mux, requestTimeout, "request timed out")
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeErr(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}

func (s *Server) handleAppendObservation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := r.ParseForm(); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed form body")
		return
	}
	kind := rewiretypes.ObservationKind(r.FormValue("kind"))
	if !rewiretypes.ValidKind(kind) {
		writeErr(w, http.StatusBadRequest, "kind must be start|end|ping|ack")
		return
	}
	meta := []byte(r.FormValue("meta"))

	ctx := r.Context()
	if _, err := s.store.GetExpectation(ctx, id); err != nil {
		s.writeStoreErr(w, err)
		return
	}
	if _, err := s.store.AppendObservation(ctx, id, kind, meta); err != nil {
		s.writeStoreErr(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObservationsTotal.Inc()
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetObservations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()
	exp, err := s.store.GetExpectation(ctx, id)
	if err != nil {
		s.writeStoreErr(w, err)
		return
	}
	history, err := s.store.RecentObservations(ctx, id, observationHistoryLimit)
	if err != nil {
		s.writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expectation":  exp,
		"observations": history,
	})
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	trialID := r.PathValue("trial_id")
	ok, err := s.trials.Ack(r.Context(), trialID)
	if err != nil {
		s.writeStoreErr(w, err)
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "unknown or non-pending trial")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAdminNew(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed form body")
		return
	}
	exp := rewiretypes.Expectation{
		ID:                ids.NewExpectationID(),
		Type:              rewiretypes.ExpectationType(r.FormValue("type")),
		Name:              r.FormValue("name"),
		OwnerContact:      r.FormValue("owner_contact"),
		ExpectedIntervalS: formInt64(r, "expected_interval_s"),
		ToleranceS:        formInt64(r, "tolerance_s"),
		Enabled:           true,
	}
	if raw := r.FormValue("params_json"); raw != "" {
		if err := unmarshalParams(&exp, raw); err != nil {
			writeErr(w, http.StatusBadRequest, "params_json: "+err.Error())
			return
		}
	}
	if err := rewiretypes.ValidateNewExpectation(exp); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateExpectation(r.Context(), exp); err != nil {
		s.writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// unmarshalParams decodes the opaque params_json admin field (spec.md
// §6: "params_json is opaque UTF-8") into exp's type-specific params,
// mirroring pkg/store's own params_json encoding so a value round-trips
// identically whichever path wrote it.
func unmarshalParams(exp *rewiretypes.Expectation, raw string) error {
	switch exp.Type {
	case rewiretypes.TypeSchedule:
		var p rewiretypes.ScheduleParams
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return err
		}
		exp.ScheduleParams = p
	case rewiretypes.TypeAlertPath:
		var p rewiretypes.AlertPathParams
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return err
		}
		exp.AlertPathParams = p
	default:
		return fmt.Errorf("unknown expectation type %q", exp.Type)
	}
	return nil
}

func (s *Server) handleAdminSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeErr(w, http.StatusBadRequest, "malformed form body")
			return
		}
		id := r.FormValue("id")
		if id == "" {
			writeErr(w, http.StatusBadRequest, "id must not be empty")
			return
		}
		if err := s.store.SetEnabled(r.Context(), id, enabled); err != nil {
			s.writeStoreErr(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("rewire ok\n"))
}

// writeStoreErr maps a rewireerr-tagged error to the HTTP status
// spec.md §7 assigns its kind.
func (s *Server) writeStoreErr(w http.ResponseWriter, err error) {
	switch {
	case rewireerr.IsNotFound(err):
		writeErr(w, http.StatusNotFound, err.Error())
	case rewireerr.IsValidation(err):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("store error")
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}

func formInt64(r *http.Request, key string) int64 {
	n, _ := strconv.ParseInt(r.FormValue(key), 10, 64)
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}
