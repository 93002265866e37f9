package broker

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rtsp-broker/internal/platform/config"
	"rtsp-broker/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// playProbeDeadline bounds how long a play request waits for the origin to
// report the new stream live.
const playProbeDeadline = 10 * time.Second

// ReadinessProbe is the part of the origin probe the handler needs.
type ReadinessProbe interface {
	WaitUntilLive(ctx context.Context, key StreamKey) error
}

// Handler exposes the broker HTTP endpoints using go-chi.
type Handler struct {
	cfg      *config.AppConfig
	registry *Registry
	probe    ReadinessProbe
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler over the given collaborators. Metrics may be
// nil to disable metric recording (e.g. in tests).
func NewHandler(cfg *config.AppConfig, reg *Registry, probe ReadinessProbe, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{cfg: cfg, registry: reg, probe: probe, log: log, metrics: m}
}

// Routes mounts the API endpoints. The stream catalog is public; play and
// heartbeat require an API key.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/streams", h.ListStreams)
	r.Group(func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Post("/api/play", h.Play)
		r.Post("/api/heartbeat", h.Heartbeat)
	})
}

type playRequest struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type playResponse struct {
	PlaybackURL string `json:"playback_url"`
}

type heartbeatRequest struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ListStreams handles GET /api/streams: the preconfigured catalog.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	streams := h.cfg.Streams
	if streams == nil {
		streams = []config.StreamConfig{}
	}
	writeJSON(w, http.StatusOK, streams)
}

// Play handles POST /api/play: resolve the source, ensure a transcoder is
// running, wait for the origin to report the stream, and return the playback
// URL.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	name := StreamName(req.Name)
	sourceURL, err := h.resolveSource(name, req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, started, err := h.registry.EnsureRunning(name, sourceURL)
	if err != nil {
		h.log.Error("play failed to start transcoder",
			slog.String("name", req.Name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to start transcoder")
		return
	}
	if started && h.metrics != nil {
		h.metrics.IncSessionsStarted()
	}

	ctx, cancel := context.WithTimeout(r.Context(), playProbeDeadline)
	defer cancel()
	if err := h.probe.WaitUntilLive(ctx, session.Key); err != nil {
		if !errors.Is(err, ErrProbeTimeout) {
			h.log.Error("origin probe failed",
				slog.String("name", req.Name),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "origin unavailable")
			return
		}
		// The session stays registered: the transcoder may still come up, and
		// a follow-up play will then see it live without respawning.
		h.log.Warn("origin probe timed out",
			slog.String("name", req.Name),
			slog.String("key", string(session.Key)),
		)
		if h.metrics != nil {
			h.metrics.IncProbeTimeouts()
		}
		writeError(w, http.StatusGatewayTimeout, "stream not live yet, retry shortly")
		return
	}

	playbackURL := strings.ReplaceAll(h.cfg.SRS.PlaybackURLTemplate, config.StreamNamePlaceholder, string(session.Key))
	h.log.Info("play",
		slog.String("name", req.Name),
		slog.String("key", string(session.Key)),
		slog.Bool("started", started),
	)
	writeJSON(w, http.StatusOK, playResponse{PlaybackURL: playbackURL})
}

// resolveSource picks the RTSP URL for a play request: the caller's override
// when present, otherwise the configured catalog entry for the name.
func (h *Handler) resolveSource(name StreamName, override string) (string, error) {
	if override == "" {
		url, ok := h.cfg.LookupStream(string(name))
		if !ok {
			return "", ErrUnknownStream
		}
		return url, nil
	}
	if !strings.HasPrefix(strings.ToLower(override), "rtsp://") {
		return "", ErrBadSourceURL
	}
	return override, nil
}

// Heartbeat handles POST /api/heartbeat: refresh the idle timer for an
// active session.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if !h.registry.Touch(StreamName(req.Name)) {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Healthz reports process liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAPIKey gates write endpoints behind the configured key set. An
// empty set disables auth for development use. The Authorization value is
// accepted bare or with a Bearer prefix and compared in constant time.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.cfg.APIKeys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" || !keyAllowed(h.cfg.APIKeys, token) {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken strips an optional Bearer prefix from an Authorization value.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return header
}

func keyAllowed(keys []string, provided string) bool {
	allowed := false
	for _, k := range keys {
		if len(k) == len(provided) && subtle.ConstantTimeCompare([]byte(k), []byte(provided)) == 1 {
			allowed = true
		}
	}
	return allowed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
