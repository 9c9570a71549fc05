// Package relay delivers freshly stored messages to the receiver's
// active sessions over NATS core subjects. Delivery is fire-and-forget:
// there is no queueing and no store-and-forward, so a receiver with no
// joined session simply misses the live event and catches up from the
// message store.
package relay

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/model"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/logger"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/metrics"
)

// subjectPrefix scopes all chat relay subjects.
const subjectPrefix = "chat.user"

// Config holds NATS connection configuration.
type Config struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// Relay is an explicit, constructible relay instance. One per process in
// production; tests may run several against isolated connections.
type Relay struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// Connect establishes the NATS connection and returns a relay bound to it.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Relay, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Relay{conn: nc, logger: log}, nil
}

// UserSubject returns the relay subject for a user's identity channel.
func UserSubject(userID string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, userID)
}

// Publish fans a chat:receive event out to every session subscribed
// under the receiver's identity. Errors are reported to the caller for
// logging only; a failed publish never fails the send that triggered it.
func (r *Relay) Publish(ctx context.Context, receiverID string, ev *model.ChatReceivePayload) error {
	data, err := json.Marshal(ev)
	if err != nil {
		metrics.RelayFailedTotal.Inc()
		return fmt.Errorf("failed to marshal relay event: %w", err)
	}

	if err := r.conn.Publish(UserSubject(receiverID), data); err != nil {
		metrics.RelayFailedTotal.Inc()
		return fmt.Errorf("failed to publish relay event: %w", err)
	}

	metrics.RelayPublishedTotal.Inc()
	return nil
}

// Subscription is one session's membership of an identity channel.
type Subscription struct {
	sub *nats.Subscription
}

// Unsubscribe leaves the channel. Safe to call after Shutdown.
func (s *Subscription) Unsubscribe() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

// Subscribe joins a user's identity channel. The handler runs on the
// NATS delivery goroutine; a malformed event is logged and dropped rather
// than propagated, so one bad payload cannot take the relay down.
func (r *Relay) Subscribe(userID string, handler func(*model.ChatReceivePayload)) (*Subscription, error) {
	sub, err := r.conn.Subscribe(UserSubject(userID), func(msg *nats.Msg) {
		var ev model.ChatReceivePayload
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			r.logger.Warn("dropping malformed relay event",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		handler(&ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", UserSubject(userID), err)
	}
	return &Subscription{sub: sub}, nil
}

// IsConnected reports whether the underlying connection is up.
func (r *Relay) IsConnected() bool {
	return r.conn != nil && r.conn.IsConnected()
}

// Shutdown drains all subscriptions and closes the connection.
func (r *Relay) Shutdown() {
	if r.conn == nil {
		return
	}
	if err := r.conn.Drain(); err != nil {
		r.logger.Warn("NATS drain failed", zap.Error(err))
		r.conn.Close()
	}
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
