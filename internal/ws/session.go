// Package ws implements the realtime relay surface: websocket sessions
// that join an identity channel and receive chat:receive events as
// messages are persisted.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/model"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/relay"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/service"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 128 * 1024
	sendBuffer     = 256
	sendTimeout    = 5 * time.Second
)

// session is one websocket connection bound to an authenticated user.
// State machine: connected -> joined (after a valid join event) ->
// closed. A session that never joins can still send, but receives
// nothing.
type session struct {
	conn     *websocket.Conn
	userID   string
	send     chan []byte
	done     chan struct{}
	sub      *relay.Subscription
	relay    *relay.Relay
	messages *service.MessageService
	logger   *logger.Logger
}

func newSession(conn *websocket.Conn, userID string, r *relay.Relay, msgs *service.MessageService, log *logger.Logger) *session {
	return &session{
		conn:     conn,
		userID:   userID,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		sub:      nil,
		relay:    r,
		messages: msgs,
		logger:   log.With(zap.String("user_id", userID)),
	}
}

// readPump reads client events until the connection drops. Every event
// handler failure is caught and reported as an error event; nothing
// propagates past the session.
func (s *session) readPump() {
	defer func() {
		close(s.done)
		if s.sub != nil {
			if err := s.sub.Unsubscribe(); err != nil {
				s.logger.Warn("unsubscribe failed", zap.Error(err))
			}
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var ev model.Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		s.handleEvent(&ev)
	}
}

// writePump drains the send channel into the connection and keeps the
// session alive with pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) handleEvent(ev *model.Event) {
	switch ev.Type {
	case model.EventJoin:
		s.handleJoin(ev.Payload)
	case model.EventChatSend:
		s.handleChatSend(ev.Payload)
	default:
		s.sendError("unknown event type: " + string(ev.Type))
	}
}

// handleJoin subscribes the session to its identity channel. Membership
// is bound to the handshake identity: a join naming any other user is
// rejected.
func (s *session) handleJoin(payload json.RawMessage) {
	var join model.JoinPayload
	if err := json.Unmarshal(payload, &join); err != nil {
		s.sendError("invalid join payload")
		return
	}
	if join.UserID != s.userID {
		s.sendError("cannot join another user's channel")
		return
	}
	if s.sub != nil {
		// Already joined; join is idempotent.
		return
	}

	sub, err := s.relay.Subscribe(s.userID, s.deliver)
	if err != nil {
		s.logger.Error("relay subscribe failed", zap.Error(err))
		s.sendError("failed to join channel")
		return
	}
	s.sub = sub
}

// handleChatSend routes a socket-submitted message through the message
// service, so it is persisted before any fan-out happens.
func (s *session) handleChatSend(payload json.RawMessage) {
	var send model.ChatSendPayload
	if err := json.Unmarshal(payload, &send); err != nil {
		s.sendError("invalid chat:send payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	_, err := s.messages.Send(ctx, s.userID, &model.SendMessageRequest{
		Receiver: send.Receiver,
		Content:  send.Content,
		Gig:      send.Gig,
	}, "ws")
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			s.sendError(vErr.Reason)
			return
		}
		s.logger.Error("socket send failed", zap.Error(err))
		s.sendError("failed to send message")
	}
}

// deliver runs on the NATS delivery goroutine. A slow session drops the
// event instead of blocking the relay; the message is already persisted.
func (s *session) deliver(ev *model.ChatReceivePayload) {
	data, err := encodeEvent(model.EventChatReceive, ev)
	if err != nil {
		s.logger.Warn("failed to encode chat:receive event", zap.Error(err))
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	default:
		s.logger.Warn("dropping relay event for slow session")
	}
}

func (s *session) sendError(msg string) {
	data, err := encodeEvent(model.EventError, &model.ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	default:
	}
}

func encodeEvent(eventType model.EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&model.Event{Type: eventType, Payload: raw})
}
