package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Probe timings. The origin needs a moment after the transcoder begins
// pushing before the stream appears in its API; callers poll until the
// context deadline.
const (
	probeRequestTimeout = 2 * time.Second
	probePollInterval   = 500 * time.Millisecond
)

// OriginProbe asks the media origin whether a stream key is currently being
// published, via its stream-listing API.
type OriginProbe struct {
	client *http.Client
	apiURL string
	log    *slog.Logger
}

// NewOriginProbe returns a probe against apiURL (the origin's stream-listing
// endpoint, e.g. http://host:1985/api/v1/streams).
func NewOriginProbe(apiURL string, log *slog.Logger) *OriginProbe {
	return &OriginProbe{
		client: &http.Client{Timeout: probeRequestTimeout},
		apiURL: apiURL,
		log:    log,
	}
}

type originStream struct {
	Name string `json:"name"`
}

type originStreamList struct {
	Streams []originStream `json:"streams"`
}

// IsLive reports whether the origin lists a stream named exactly key.
// Network errors, non-2xx responses, and malformed bodies all read as "not
// live"; the caller polls, so a transient failure only delays readiness.
func (p *OriginProbe) IsLive(ctx context.Context, key StreamKey) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("origin probe failed", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.log.Debug("origin probe rejected", slog.Int("status", resp.StatusCode))
		return false
	}

	var list originStreamList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		p.log.Debug("origin probe body unreadable", slog.String("error", err.Error()))
		return false
	}
	for _, s := range list.Streams {
		if s.Name == string(key) {
			return true
		}
	}
	return false
}

// WaitUntilLive polls IsLive until the origin reports key or ctx expires.
// On expiry it returns ErrProbeTimeout.
func (p *OriginProbe) WaitUntilLive(ctx context.Context, key StreamKey) error {
	ticker := time.NewTicker(probePollInterval)
	defer ticker.Stop()

	for {
		if p.IsLive(ctx, key) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrProbeTimeout
		case <-ticker.C:
		}
	}
}
