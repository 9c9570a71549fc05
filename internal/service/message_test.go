package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/model"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/store"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/logger"
)

type fakeStore struct {
	messages  []model.Message
	insertErr error
}

func (f *fakeStore) Insert(ctx context.Context, msg *model.Message) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeStore) Between(ctx context.Context, userA, userB string, before time.Time, limit int64) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.messages {
		pair := (m.Sender == userA && m.Receiver == userB) || (m.Sender == userB && m.Receiver == userA)
		if !pair {
			continue
		}
		if !before.IsZero() && !m.Timestamp.Before(before) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (f *fakeStore) ForUser(ctx context.Context, userID string) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.messages {
		if m.Sender == userID || m.Receiver == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

type fakeUsers map[string]string

func (f fakeUsers) DisplayName(ctx context.Context, userID string) (string, error) {
	name, ok := f[userID]
	if !ok {
		return "", store.ErrNotFound
	}
	return name, nil
}

type fakeGigs map[string]string

func (f fakeGigs) Title(ctx context.Context, gigID string) (string, error) {
	title, ok := f[gigID]
	if !ok {
		return "", store.ErrNotFound
	}
	return title, nil
}

type fakeOrders struct {
	order *model.Order
}

func (f *fakeOrders) LatestBetween(ctx context.Context, userA, userB string) (*model.Order, error) {
	if f.order == nil {
		return nil, store.ErrNotFound
	}
	return f.order, nil
}

type published struct {
	receiver string
	event    *model.ChatReceivePayload
}

type fakeRelay struct {
	published  []published
	publishErr error
}

func (f *fakeRelay) Publish(ctx context.Context, receiverID string, ev *model.ChatReceivePayload) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{receiver: receiverID, event: ev})
	return nil
}

func nopLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func newTestService(st *fakeStore, users fakeUsers, gigs fakeGigs, orders *fakeOrders, relay *fakeRelay) *MessageService {
	return NewMessageService(st, users, gigs, orders, relay, nopLogger())
}

func seed(st *fakeStore, sender, receiver, content string, ts time.Time, gigID string) {
	msg := model.Message{
		ID:        fmt.Sprintf("m-%d", len(st.messages)),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: ts,
	}
	if gigID != "" {
		msg.Gig = &model.GigRef{ID: gigID}
	}
	st.messages = append(st.messages, msg)
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name string
		req  model.SendMessageRequest
	}{
		{name: "missing receiver", req: model.SendMessageRequest{Content: "hello"}},
		{name: "missing content", req: model.SendMessageRequest{Receiver: "u2"}},
		{name: "missing both", req: model.SendMessageRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{}
			relay := &fakeRelay{}
			svc := newTestService(st, fakeUsers{}, fakeGigs{}, &fakeOrders{}, relay)

			_, err := svc.Send(context.Background(), "u1", &tt.req, "http")

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Reason != "receiver and content required" {
				t.Errorf("unexpected reason: %q", vErr.Reason)
			}
			if len(st.messages) != 0 {
				t.Error("message should not be stored on validation failure")
			}
			if len(relay.published) != 0 {
				t.Error("nothing should be relayed on validation failure")
			}
		})
	}
}

func TestSendPersistsThenRelays(t *testing.T) {
	st := &fakeStore{}
	relay := &fakeRelay{}
	svc := newTestService(st, fakeUsers{}, fakeGigs{"g1": "Logo design"}, &fakeOrders{}, relay)

	msg, err := svc.Send(context.Background(), "u1", &model.SendMessageRequest{
		Receiver: "u2",
		Content:  "Hi, interested in your gig",
		Gig:      "g1",
	}, "http")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if msg.ID == "" {
		t.Error("message should get an ID")
	}
	if msg.Sender != "u1" || msg.Receiver != "u2" {
		t.Errorf("wrong participants: %s -> %s", msg.Sender, msg.Receiver)
	}
	if msg.Timestamp.IsZero() || msg.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp should be server-assigned UTC, got %v", msg.Timestamp)
	}
	if msg.Gig == nil || msg.Gig.ID != "g1" || msg.Gig.Title != "Logo design" {
		t.Errorf("gig should be populated with title, got %+v", msg.Gig)
	}
	if len(st.messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(st.messages))
	}

	if len(relay.published) != 1 {
		t.Fatalf("expected 1 relay event, got %d", len(relay.published))
	}
	pub := relay.published[0]
	if pub.receiver != "u2" {
		t.Errorf("relayed to %q, want u2", pub.receiver)
	}
	if pub.event.Sender != "u1" || pub.event.Content != msg.Content || !pub.event.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("relay event diverges from stored message: %+v", pub.event)
	}
	if pub.event.Gig == nil || pub.event.Gig.Title != "Logo design" {
		t.Errorf("relay event should carry the gig banner, got %+v", pub.event.Gig)
	}
}

func TestSendUnknownGigKeepsReference(t *testing.T) {
	st := &fakeStore{}
	svc := newTestService(st, fakeUsers{}, fakeGigs{}, &fakeOrders{}, &fakeRelay{})

	msg, err := svc.Send(context.Background(), "u1", &model.SendMessageRequest{
		Receiver: "u2",
		Content:  "hello",
		Gig:      "gone",
	}, "http")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.Gig == nil || msg.Gig.ID != "gone" || msg.Gig.Title != "" {
		t.Errorf("dangling gig should keep ID without title, got %+v", msg.Gig)
	}
}

func TestSendStoreFailure(t *testing.T) {
	st := &fakeStore{insertErr: errors.New("disk full")}
	relay := &fakeRelay{}
	svc := newTestService(st, fakeUsers{}, fakeGigs{}, &fakeOrders{}, relay)

	_, err := svc.Send(context.Background(), "u1", &model.SendMessageRequest{Receiver: "u2", Content: "x"}, "http")
	if err == nil {
		t.Fatal("expected error on store failure")
	}
	if len(relay.published) != 0 {
		t.Error("relay must not fire when persistence fails")
	}
}

func TestSendRelayFailureDoesNotFailSend(t *testing.T) {
	st := &fakeStore{}
	relay := &fakeRelay{publishErr: errors.New("nats down")}
	svc := newTestService(st, fakeUsers{}, fakeGigs{}, &fakeOrders{}, relay)

	msg, err := svc.Send(context.Background(), "u1", &model.SendMessageRequest{Receiver: "u2", Content: "x"}, "http")
	if err != nil {
		t.Fatalf("Send should succeed despite relay failure: %v", err)
	}
	if len(st.messages) != 1 || st.messages[0].ID != msg.ID {
		t.Error("message should still be persisted")
	}
}

func TestHistoryOrderingAndSymmetry(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{}
	// Seed out of order, with an unrelated pair mixed in.
	seed(st, "u2", "u1", "second", base.Add(2*time.Minute), "")
	seed(st, "u1", "u2", "first", base, "")
	seed(st, "u1", "u3", "other thread", base.Add(time.Minute), "")
	seed(st, "u1", "u2", "third", base.Add(3*time.Minute), "")

	svc := newTestService(st, fakeUsers{}, fakeGigs{}, &fakeOrders{}, &fakeRelay{})

	ab, err := svc.History(context.Background(), "u1", "u2", time.Time{}, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(ab) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(ab))
	}
	for i := 1; i < len(ab); i++ {
		if ab[i].Timestamp.Before(ab[i-1].Timestamp) {
			t.Errorf("messages out of order at %d", i)
		}
	}
	if ab[0].Content != "first" || ab[2].Content != "third" {
		t.Errorf("wrong reading order: %q ... %q", ab[0].Content, ab[2].Content)
	}

	ba, err := svc.History(context.Background(), "u2", "u1", time.Time{}, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(ba) != len(ab) {
		t.Fatalf("symmetry violated: %d vs %d", len(ba), len(ab))
	}
	for i := range ab {
		if ab[i].ID != ba[i].ID {
			t.Errorf("symmetry violated at %d: %s vs %s", i, ab[i].ID, ba[i].ID)
		}
	}
}

func TestHistoryCursor(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{}
	for i := 0; i < 5; i++ {
		seed(st, "u1", "u2", fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Minute), "")
	}
	svc := newTestService(st, fakeUsers{}, fakeGigs{}, &fakeOrders{}, &fakeRelay{})

	// The 2 messages immediately preceding msg-3, still ascending.
	page, err := svc.History(context.Background(), "u1", "u2", base.Add(3*time.Minute), 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page))
	}
	if page[0].Content != "msg-1" || page[1].Content != "msg-2" {
		t.Errorf("wrong page: %q, %q", page[0].Content, page[1].Content)
	}
}

func TestHistoryPopulatesGigTitles(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{}
	seed(st, "u1", "u2", "about your gig", base, "g1")
	seed(st, "u2", "u1", "sure", base.Add(time.Minute), "")

	svc := newTestService(st, fakeUsers{}, fakeGigs{"g1": "Logo design"}, &fakeOrders{}, &fakeRelay{})

	messages, err := svc.History(context.Background(), "u1", "u2", time.Time{}, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if messages[0].Gig == nil || messages[0].Gig.Title != "Logo design" {
		t.Errorf("gig title not populated: %+v", messages[0].Gig)
	}
	if messages[1].Gig != nil {
		t.Errorf("untagged message grew a gig: %+v", messages[1].Gig)
	}
}

func TestConversations(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{}
	// u1 <-> u2: three messages, two received by u1.
	seed(st, "u1", "u2", "hi", base, "")
	seed(st, "u2", "u1", "hello", base.Add(time.Minute), "")
	seed(st, "u2", "u1", "still there?", base.Add(4*time.Minute), "")
	// u1 <-> u3: one older message.
	seed(st, "u3", "u1", "ping", base.Add(2*time.Minute), "")
	// u1 <-> ghost: counterpart deleted, must be skipped.
	seed(st, "ghost", "u1", "boo", base.Add(10*time.Minute), "")

	users := fakeUsers{"u1": "alice", "u2": "bob", "u3": "carol"}
	svc := newTestService(st, users, fakeGigs{}, &fakeOrders{}, &fakeRelay{})

	conversations, err := svc.Conversations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}

	if len(conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(conversations))
	}

	// Newest conversation first.
	first := conversations[0]
	if first.Counterpart.ID != "u2" || first.Counterpart.Username != "bob" {
		t.Errorf("wrong first counterpart: %+v", first.Counterpart)
	}
	if first.LastMessage == nil || first.LastMessage.Content != "still there?" {
		t.Errorf("wrong last message: %+v", first.LastMessage)
	}
	if !first.LastMessage.Timestamp.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("wrong last message timestamp: %v", first.LastMessage.Timestamp)
	}
	if first.ReceivedCount != 2 {
		t.Errorf("expected receivedCount 2, got %d", first.ReceivedCount)
	}

	second := conversations[1]
	if second.Counterpart.ID != "u3" {
		t.Errorf("wrong second counterpart: %+v", second.Counterpart)
	}
	if second.ReceivedCount != 1 {
		t.Errorf("expected receivedCount 1, got %d", second.ReceivedCount)
	}
}

func TestConversationsCompleteness(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{}
	counterparts := []string{"u2", "u3", "u4"}
	users := fakeUsers{"u1": "alice"}
	for i, c := range counterparts {
		users[c] = c
		seed(st, "u1", c, "out", base.Add(time.Duration(2*i)*time.Minute), "")
		seed(st, c, "u1", "in", base.Add(time.Duration(2*i+1)*time.Minute), "")
	}
	svc := newTestService(st, users, fakeGigs{}, &fakeOrders{}, &fakeRelay{})

	conversations, err := svc.Conversations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(conversations) != len(counterparts) {
		t.Fatalf("expected %d conversations, got %d", len(counterparts), len(conversations))
	}
	seen := make(map[string]bool)
	for _, c := range conversations {
		if seen[c.Counterpart.ID] {
			t.Errorf("counterpart %s appears twice", c.Counterpart.ID)
		}
		seen[c.Counterpart.ID] = true
	}
}

func TestGigBanner(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		messages []model.Message
		want     *model.GigRef
	}{
		{
			name: "most recent titled gig wins",
			messages: []model.Message{
				{Content: "a", Timestamp: base, Gig: &model.GigRef{ID: "g1", Title: "Logo design"}},
				{Content: "b", Timestamp: base.Add(time.Minute)},
				{Content: "c", Timestamp: base.Add(2 * time.Minute), Gig: &model.GigRef{ID: "g2", Title: "SEO audit"}},
				{Content: "d", Timestamp: base.Add(3 * time.Minute)},
			},
			want: &model.GigRef{ID: "g2", Title: "SEO audit"},
		},
		{
			name: "untitled gig reference skipped",
			messages: []model.Message{
				{Content: "a", Timestamp: base, Gig: &model.GigRef{ID: "g1", Title: "Logo design"}},
				{Content: "b", Timestamp: base.Add(time.Minute), Gig: &model.GigRef{ID: "gone"}},
			},
			want: &model.GigRef{ID: "g1", Title: "Logo design"},
		},
		{
			name: "no gig context",
			messages: []model.Message{
				{Content: "a", Timestamp: base},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GigBanner(tt.messages)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if got != nil && (got.ID != tt.want.ID || got.Title != tt.want.Title) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestThread(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{}
	seed(st, "u1", "u2", "Hi, interested in your gig", base, "g1")
	seed(st, "u2", "u1", "Sure, what do you need?", base.Add(time.Minute), "")

	users := fakeUsers{"u1": "alice", "u2": "bob"}
	gigs := fakeGigs{"g1": "Logo design"}
	orders := &fakeOrders{order: &model.Order{
		ID:       "o1",
		BuyerID:  "u1",
		SellerID: "u2",
		GigID:    "g1",
		Status:   model.OrderActive,
	}}
	svc := newTestService(st, users, gigs, orders, &fakeRelay{})

	thread, err := svc.Thread(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("Thread failed: %v", err)
	}

	if thread.Counterpart.Username != "bob" {
		t.Errorf("wrong counterpart: %+v", thread.Counterpart)
	}
	if len(thread.Messages) != 2 || thread.Messages[0].Content != "Hi, interested in your gig" {
		t.Errorf("wrong history: %+v", thread.Messages)
	}
	// Banner stays g1: the reply carried no gig context.
	if thread.GigBanner == nil || thread.GigBanner.ID != "g1" || thread.GigBanner.Title != "Logo design" {
		t.Errorf("wrong gig banner: %+v", thread.GigBanner)
	}
	if thread.ViewerRole != model.RoleBuyer || thread.CounterpartRole != model.RoleSeller {
		t.Errorf("wrong roles: %s / %s", thread.ViewerRole, thread.CounterpartRole)
	}
}

func TestThreadWithoutOrder(t *testing.T) {
	st := &fakeStore{}
	users := fakeUsers{"u2": "bob"}
	svc := newTestService(st, users, fakeGigs{}, &fakeOrders{}, &fakeRelay{})

	thread, err := svc.Thread(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("Thread failed: %v", err)
	}
	if thread.ViewerRole != model.RoleUser || thread.CounterpartRole != model.RoleUser {
		t.Errorf("roles should default to User: %s / %s", thread.ViewerRole, thread.CounterpartRole)
	}
}

func TestThreadUnknownCounterpart(t *testing.T) {
	svc := newTestService(&fakeStore{}, fakeUsers{}, fakeGigs{}, &fakeOrders{}, &fakeRelay{})

	_, err := svc.Thread(context.Background(), "u1", "nobody")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
