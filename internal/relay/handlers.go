package relay

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voxbridge/realtime-relay/internal/config"
	"github.com/voxbridge/realtime-relay/internal/logger"
)

// Handler serves the WebSocket endpoint and the read-only session API.
type Handler struct {
	opts     Options
	store    *Store
	dialer   UpstreamDialer
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler builds a Handler from the loaded configuration. The upstream
// dialer is a gorilla dialer with the configured handshake timeout.
func NewHandler(cfg *config.Config, store *Store, log *logger.Logger) *Handler {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	return &Handler{
		opts: Options{
			UpstreamURL:      cfg.UpstreamURL,
			Model:            cfg.Model,
			APIKey:           cfg.APIKey,
			IngestSampleRate: cfg.IngestSampleRate,
		},
		store:    store,
		dialer:   dialer,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(cfg.AllowedOrigins)},
		log:      log,
	}
}

// Routes mounts the relay on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws", h.ServeWS)
	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Get("/transcripts", h.GetTranscripts)
	})
	return r
}

// ServeWS upgrades the request and runs the relay loop until either side
// closes. The session id comes from the connection_id query parameter;
// reconnecting with the same id resumes the session record.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientWS, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConn(clientWS, r.URL.Query().Get("connection_id"), h.dialer, h.opts, h.store, h.log)
	h.log.Info().Str("session_id", conn.ID).Msg("client connected")

	if err := conn.ConnectUpstream(); err != nil {
		h.log.Error().Err(err).Str("session_id", conn.ID).Msg("upstream dial failed")
		conn.SendError("could not reach speech service")
		conn.session.Fail(err.Error())
		conn.Close()
		return
	}

	conn.PumpClient()
}

// GetSession returns the full session record.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, session.Snapshot())
}

// GetTranscripts returns only the transcripts of a session.
func (h *Handler) GetTranscripts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.store.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	snap := session.Snapshot()
	writeJSON(w, map[string]any{
		"session_id":  id,
		"transcripts": snap.Transcripts,
		"count":       len(snap.Transcripts),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// originChecker allows any origin when the allowlist is empty, otherwise
// requires an exact match.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}
