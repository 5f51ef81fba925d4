package admin

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"astrond/cluster/internal/logging"
)

// HandlerSet bundles the cluster's admin HTTP handlers, mirroring the
// teacher's HandlerSet shape (liveness/readiness/metrics plus a bearer-token
// gated action endpoint — here, a manual replaylog retention sweep instead
// of a replay dump).
type HandlerSet struct {
	deps        Dependencies
	logger      *logging.Logger
	rateLimiter RateLimiter
	hub         *Hub
}

// RateLimiter gates how frequently sensitive admin operations may be
// invoked, adapted from the teacher's httpapi.RateLimiter interface.
type RateLimiter interface {
	Allow() bool
}

// NewHandlerSet constructs a HandlerSet for the given dependencies. hub may
// be nil, in which case the live-tail endpoint reports unavailable.
func NewHandlerSet(deps Dependencies, limiter RateLimiter, hub *Hub) *HandlerSet {
	logger := deps.Logger
	if logger == nil {
		logger = logging.L()
	}
	return &HandlerSet{deps: deps, logger: logger, rateLimiter: limiter, hub: hub}
}

// Register attaches every admin handler to mux, including the live-tail
// websocket endpoint.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/healthz", h.HealthHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/admin/catalog", h.CatalogHandler())
	mux.HandleFunc("/admin/replaylog/sweep", h.ReplaySweepHandler())
	mux.HandleFunc("/admin/ws", h.LiveTailHandler())
}

// HealthHandler reports process liveness and uptime.
func (h *HandlerSet) HealthHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Participants  int     `json:"participants"`
		QueueLength   int     `json:"queue_length"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Status: "alive", UptimeSeconds: h.deps.uptime().Seconds()}
		if h.deps.Director != nil {
			resp.Participants = h.deps.Director.ParticipantCount()
			resp.QueueLength = h.deps.Director.QueueLen()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// MetricsHandler emits Prometheus text-format metrics for the MD queue,
// scheduler tick timing, shard registry, and replaylog retention — the same
// exposition format the teacher uses, retargeted to cluster internals.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(w, "# HELP otp_cluster_uptime_seconds Process uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE otp_cluster_uptime_seconds gauge\n")
		fmt.Fprintf(w, "otp_cluster_uptime_seconds %.0f\n", h.deps.uptime().Seconds())

		if h.deps.Director != nil {
			snap := h.deps.Director.Metrics().Snapshot()
			fmt.Fprintf(w, "# HELP otp_md_routed_total Messages routed by the Message Director.\n")
			fmt.Fprintf(w, "# TYPE otp_md_routed_total counter\n")
			fmt.Fprintf(w, "otp_md_routed_total %d\n", snap.Routed)
			fmt.Fprintf(w, "# HELP otp_md_requeued_total Messages requeued pending sender liveness.\n")
			fmt.Fprintf(w, "# TYPE otp_md_requeued_total counter\n")
			fmt.Fprintf(w, "otp_md_requeued_total %d\n", snap.Requeued)
			fmt.Fprintf(w, "# HELP otp_md_dropped_total Messages dropped for a stale unreachable sender or no subscriber.\n")
			fmt.Fprintf(w, "# TYPE otp_md_dropped_total counter\n")
			fmt.Fprintf(w, "otp_md_dropped_total %d\n", snap.Dropped)
			fmt.Fprintf(w, "# HELP otp_md_participants Live participant subscriptions.\n")
			fmt.Fprintf(w, "# TYPE otp_md_participants gauge\n")
			fmt.Fprintf(w, "otp_md_participants %d\n", h.deps.Director.ParticipantCount())
			fmt.Fprintf(w, "# HELP otp_md_queue_length Pending messages awaiting flush.\n")
			fmt.Fprintf(w, "# TYPE otp_md_queue_length gauge\n")
			fmt.Fprintf(w, "otp_md_queue_length %d\n", h.deps.Director.QueueLen())
		}

		if h.deps.Loop != nil {
			snap := h.deps.Loop.Monitor().Snapshot()
			fmt.Fprintf(w, "# HELP otp_scheduler_tick_seconds Average tick duration across registered tasks.\n")
			fmt.Fprintf(w, "# TYPE otp_scheduler_tick_seconds gauge\n")
			fmt.Fprintf(w, "otp_scheduler_tick_seconds %f\n", snap.Average.Seconds())
			fmt.Fprintf(w, "# HELP otp_scheduler_tick_max_seconds Maximum observed tick duration.\n")
			fmt.Fprintf(w, "# TYPE otp_scheduler_tick_max_seconds gauge\n")
			fmt.Fprintf(w, "otp_scheduler_tick_max_seconds %f\n", snap.Max.Seconds())
		}

		if h.deps.Shards != nil {
			fmt.Fprintf(w, "# HELP otp_shards_registered Districts with a live AI registration.\n")
			fmt.Fprintf(w, "# TYPE otp_shards_registered gauge\n")
			fmt.Fprintf(w, "otp_shards_registered %d\n", len(h.deps.Shards.Snapshot()))
		}

		if h.deps.Cleaner != nil {
			stats := h.deps.Cleaner.Stats()
			fmt.Fprintf(w, "# HELP otp_replaylog_bundles Replay bundles currently retained.\n")
			fmt.Fprintf(w, "# TYPE otp_replaylog_bundles gauge\n")
			fmt.Fprintf(w, "otp_replaylog_bundles %d\n", stats.Bundles)
			fmt.Fprintf(w, "# HELP otp_replaylog_bytes Total on-disk size of retained replay bundles.\n")
			fmt.Fprintf(w, "# TYPE otp_replaylog_bytes gauge\n")
			fmt.Fprintf(w, "otp_replaylog_bytes %d\n", stats.Bytes)
		}
	}
}

// ReplaySweepHandler authorises and triggers an out-of-cadence replaylog
// retention sweep, mirroring the teacher's authorise()-gated replay-dump
// handler.
func (h *HandlerSet) ReplaySweepHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "replaylog_sweep"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.deps.AdminToken == "" {
			reqLogger.Warn("replaylog sweep denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("replaylog sweep denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("replaylog sweep denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.deps.Cleaner == nil {
			reqLogger.Warn("replaylog sweep denied: no cleaner configured")
			http.Error(w, "replaylog retention is unavailable", http.StatusServiceUnavailable)
			return
		}
		h.deps.Cleaner.RunOnce()
		reqLogger.Info("replaylog sweep triggered")
		writeJSON(w, http.StatusAccepted, response{Status: "accepted"})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.deps.AdminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
