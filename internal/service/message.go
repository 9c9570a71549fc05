// Package service provides business logic for the marketplace chat
// subsystem: message persistence, history, conversation aggregation and
// server-side relay emission.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/model"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/store"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/logger"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/metrics"
)

// ValidationError marks a rejected send. Its message is returned
// verbatim to the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// MessageStore is the persistence surface the service depends on.
type MessageStore interface {
	Insert(ctx context.Context, msg *model.Message) error
	Between(ctx context.Context, userA, userB string, before time.Time, limit int64) ([]model.Message, error)
	ForUser(ctx context.Context, userID string) ([]model.Message, error)
}

// UserDirectory resolves user IDs to display names. Returns
// store.ErrNotFound for deleted identities.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// GigCatalog resolves gig IDs to titles.
type GigCatalog interface {
	Title(ctx context.Context, gigID string) (string, error)
}

// OrderDirectory resolves the latest order between two users.
type OrderDirectory interface {
	LatestBetween(ctx context.Context, userA, userB string) (*model.Order, error)
}

// Publisher is the relay surface. Publish failures are logged, never
// surfaced: the message is already persisted and the receiver catches up
// on the next history fetch.
type Publisher interface {
	Publish(ctx context.Context, receiverID string, ev *model.ChatReceivePayload) error
}

// MessageService handles message operations.
type MessageService struct {
	store  MessageStore
	users  UserDirectory
	gigs   GigCatalog
	orders OrderDirectory
	relay  Publisher
	logger *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(
	msgStore MessageStore,
	users UserDirectory,
	gigs GigCatalog,
	orders OrderDirectory,
	relay Publisher,
	log *logger.Logger,
) *MessageService {
	return &MessageService{
		store:  msgStore,
		users:  users,
		gigs:   gigs,
		orders: orders,
		relay:  relay,
		logger: log,
	}
}

// Send validates and persists a message, then emits the chat:receive
// event to the receiver's identity channel. Relay emission happens only
// after a successful store write, so live delivery can never outrun or
// diverge from persistence. via labels the submission path for metrics
// ("http" or "ws").
func (s *MessageService) Send(ctx context.Context, senderID string, req *model.SendMessageRequest, via string) (*model.Message, error) {
	if req.Receiver == "" || req.Content == "" {
		return nil, &ValidationError{Reason: "receiver and content required"}
	}

	msg := &model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Sender:    senderID,
		Receiver:  req.Receiver,
		Content:   req.Content,
		Timestamp: time.Now().UTC(),
	}

	if req.Gig != "" {
		msg.Gig = &model.GigRef{ID: req.Gig}
		title, err := s.gigs.Title(ctx, req.Gig)
		switch {
		case err == nil:
			msg.Gig.Title = title
		case errors.Is(err, store.ErrNotFound):
			// Dangling gig reference: keep the ID, omit the title.
		default:
			s.logger.Warn("gig title lookup failed",
				zap.String("gig_id", req.Gig),
				zap.Error(err),
			)
		}
	}

	if err := s.store.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	metrics.RecordMessage(via, msg.Gig != nil)

	if err := s.relay.Publish(ctx, msg.Receiver, &model.ChatReceivePayload{
		Sender:    msg.Sender,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		Gig:       msg.Gig,
	}); err != nil {
		s.logger.Warn("relay publish failed",
			zap.String("receiver", msg.Receiver),
			zap.Error(err),
		)
	}

	return msg, nil
}

// History returns the messages between the viewer and another user in
// ascending timestamp order, with gig titles populated. A non-zero
// before plus a positive limit selects the limit messages preceding that
// instant; the zero values return the full thread.
func (s *MessageService) History(ctx context.Context, viewerID, otherID string, before time.Time, limit int64) ([]model.Message, error) {
	messages, err := s.store.Between(ctx, viewerID, otherID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	s.populateGigTitles(ctx, messages)
	return messages, nil
}

// Conversations derives the viewer's inbox from the flat message set:
// one row per counterpart, newest conversation first. Messages whose
// counterpart cannot be resolved (deleted identity) are skipped
// silently.
func (s *MessageService) Conversations(ctx context.Context, viewerID string) ([]model.Conversation, error) {
	messages, err := s.store.ForUser(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	type resolved struct {
		name string
		ok   bool
	}
	names := make(map[string]resolved)

	grouped := make(map[string]*model.Conversation)
	var order []string

	for i := range messages {
		msg := &messages[i]

		counterpartID := msg.Sender
		if msg.Sender == viewerID {
			counterpartID = msg.Receiver
		}

		res, seen := names[counterpartID]
		if !seen {
			name, err := s.users.DisplayName(ctx, counterpartID)
			switch {
			case err == nil:
				res = resolved{name: name, ok: true}
			case errors.Is(err, store.ErrNotFound):
				res = resolved{}
			default:
				return nil, fmt.Errorf("failed to resolve user %s: %w", counterpartID, err)
			}
			names[counterpartID] = res
		}
		if !res.ok {
			// Tombstone for a deleted identity.
			continue
		}

		conv, exists := grouped[counterpartID]
		if !exists {
			conv = &model.Conversation{
				Counterpart: model.UserRef{ID: counterpartID, Username: res.name},
			}
			grouped[counterpartID] = conv
			order = append(order, counterpartID)
		}

		// Input is descending, so the first message seen per
		// counterpart is the conversation's most recent.
		if conv.LastMessage == nil {
			conv.LastMessage = &model.LastMessage{
				Content:   msg.Content,
				Timestamp: msg.Timestamp,
			}
		}

		if msg.Receiver == viewerID {
			conv.ReceivedCount++
		}
	}

	conversations := make([]model.Conversation, 0, len(order))
	for _, id := range order {
		conversations = append(conversations, *grouped[id])
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		a, b := conversations[i].LastMessage, conversations[j].LastMessage
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Timestamp.After(b.Timestamp)
	})

	metrics.ConversationsBuilt.Inc()
	return conversations, nil
}

// Thread assembles the full view of one chat thread: ascending history,
// the counterpart's identity, the current gig banner and buyer/seller
// labels. Returns store.ErrNotFound when the counterpart does not exist.
func (s *MessageService) Thread(ctx context.Context, viewerID, otherID string) (*model.Thread, error) {
	name, err := s.users.DisplayName(ctx, otherID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve counterpart: %w", err)
	}

	messages, err := s.History(ctx, viewerID, otherID, time.Time{}, 0)
	if err != nil {
		return nil, err
	}

	thread := &model.Thread{
		Counterpart:     model.UserRef{ID: otherID, Username: name},
		Messages:        messages,
		GigBanner:       GigBanner(messages),
		ViewerRole:      model.RoleUser,
		CounterpartRole: model.RoleUser,
	}

	order, err := s.orders.LatestBetween(ctx, viewerID, otherID)
	switch {
	case err == nil:
		if order.BuyerID == viewerID {
			thread.ViewerRole = model.RoleBuyer
			thread.CounterpartRole = model.RoleSeller
		} else if order.SellerID == viewerID {
			thread.ViewerRole = model.RoleSeller
			thread.CounterpartRole = model.RoleBuyer
		}
	case errors.Is(err, store.ErrNotFound):
		// No order between these users; both stay generic.
	default:
		s.logger.Warn("order lookup failed",
			zap.String("viewer", viewerID),
			zap.String("other", otherID),
			zap.Error(err),
		)
	}

	return thread, nil
}

// GigBanner derives the thread's "what this conversation is about"
// banner: the most recent message carrying a titled gig reference, or
// nil when no message in the thread has one. Input must be in ascending
// timestamp order.
func GigBanner(messages []model.Message) *model.GigRef {
	for i := len(messages) - 1; i >= 0; i-- {
		if g := messages[i].Gig; g != nil && g.Title != "" {
			return &model.GigRef{ID: g.ID, Title: g.Title}
		}
	}
	return nil
}

func (s *MessageService) populateGigTitles(ctx context.Context, messages []model.Message) {
	titles := make(map[string]string)
	for i := range messages {
		g := messages[i].Gig
		if g == nil {
			continue
		}
		title, seen := titles[g.ID]
		if !seen {
			resolved, err := s.gigs.Title(ctx, g.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("gig title lookup failed",
					zap.String("gig_id", g.ID),
					zap.Error(err),
				)
			}
			title = resolved
			titles[g.ID] = title
		}
		g.Title = title
	}
}
