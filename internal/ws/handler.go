package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/middleware"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/relay"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/service"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/logger"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/metrics"
)

// Handler upgrades authenticated requests to websocket sessions.
type Handler struct {
	relay     *relay.Relay
	messages  *service.MessageService
	jwtSecret string
	upgrader  websocket.Upgrader
	logger    *logger.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(r *relay.Relay, msgs *service.MessageService, jwtSecret string, log *logger.Logger) *Handler {
	return &Handler{
		relay:     r,
		messages:  msgs,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The REST API is already fully CORS-open; the socket
			// surface matches it.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// Serve handles GET /ws. The handshake authenticates the session; the
// token comes from the Authorization header or, for browsers, the
// "token" query parameter.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	tokenString := middleware.BearerToken(r)
	if tokenString == "" {
		http.Error(w, `{"error":"missing authorization"}`, http.StatusUnauthorized)
		return
	}

	claims, err := middleware.ParseToken(h.jwtSecret, tokenString)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	metrics.IncrementWSSessions()
	defer metrics.DecrementWSSessions()

	sess := newSession(conn, claims.Subject, h.relay, h.messages, h.logger)
	go sess.writePump()
	sess.readPump()
}
