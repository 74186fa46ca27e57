package ws

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/metrics"
)

// Handler accepts WebSocket connections. Authentication runs to completion
// before the upgrade: no traffic is processed for a connection that has
// not presented a valid credential.
type Handler struct {
	hub      *Hub
	pipeline *Pipeline
	verifier *auth.Manager
	cfg      *config.Config
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the connection accept hook.
func NewHandler(hub *Hub, pipeline *Pipeline, verifier *auth.Manager, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		pipeline: pipeline,
		verifier: verifier,
		cfg:      cfg,
		log:      log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return cfg.OriginAllowed(r.Header.Get("Origin"))
			},
		},
	}
}

// ServeHTTP authenticates the handshake and, on success, registers the
// connection with the hub.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ident, err := h.authenticate(r)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, auth.ErrInvalidSubject) {
			reason = "invalid_subject"
		}
		metrics.ConnectionsRejected.WithLabelValues(reason).Inc()
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake rejected")
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		metrics.ConnectionsRejected.WithLabelValues("upgrade").Inc()
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	client := newClient(conn, h.hub, h.pipeline, *ident, h.log, h.cfg.SendBufferSize, h.cfg.MaxMessageSize)
	h.hub.Register(client)
	client.sendEvent(EventConnected, map[string]string{"userId": ident.UserID.String()})
}

// authenticate extracts and verifies the handshake credential: the Token
// cookie, or an Authorization bearer token for non-browser clients.
func (h *Handler) authenticate(r *http.Request) (*auth.Identity, error) {
	token := ""
	if cookie, err := r.Cookie("Token"); err == nil {
		token = cookie.Value
	}
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		return nil, fmt.Errorf("%w: no credential presented", ErrUnauthenticated)
	}
	ident, err := h.verifier.VerifyAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return ident, nil
}
