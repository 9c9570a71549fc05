package ws

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/model"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/logger"
)

func testSession(userID string) *session {
	log := &logger.Logger{Logger: zap.NewNop()}
	return newSession(nil, userID, nil, nil, log)
}

func recvEvent(t *testing.T, s *session) *model.Event {
	t.Helper()
	select {
	case data := <-s.send:
		var ev model.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad event on send channel: %v", err)
		}
		return &ev
	case <-time.After(time.Second):
		t.Fatal("no event on send channel")
		return nil
	}
}

func TestJoinRejectsForeignIdentity(t *testing.T) {
	s := testSession("u1")

	payload, _ := json.Marshal(&model.JoinPayload{UserID: "u2"})
	s.handleJoin(payload)

	if s.sub != nil {
		t.Fatal("session must not subscribe under another identity")
	}
	ev := recvEvent(t, s)
	if ev.Type != model.EventError {
		t.Fatalf("expected error event, got %s", ev.Type)
	}
	var errPayload model.ErrorPayload
	json.Unmarshal(ev.Payload, &errPayload)
	if errPayload.Message != "cannot join another user's channel" {
		t.Errorf("unexpected error message: %q", errPayload.Message)
	}
}

func TestJoinRejectsMalformedPayload(t *testing.T) {
	s := testSession("u1")

	s.handleJoin(json.RawMessage(`{`))

	ev := recvEvent(t, s)
	if ev.Type != model.EventError {
		t.Fatalf("expected error event, got %s", ev.Type)
	}
}

func TestUnknownEventType(t *testing.T) {
	s := testSession("u1")

	s.handleEvent(&model.Event{Type: "presence:ping"})

	ev := recvEvent(t, s)
	if ev.Type != model.EventError {
		t.Fatalf("expected error event, got %s", ev.Type)
	}
}

func TestDeliverEnqueuesChatReceive(t *testing.T) {
	s := testSession("u1")
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.deliver(&model.ChatReceivePayload{
		Sender:    "u2",
		Content:   "hello",
		Timestamp: ts,
		Gig:       &model.GigRef{ID: "g1", Title: "Logo design"},
	})

	ev := recvEvent(t, s)
	if ev.Type != model.EventChatReceive {
		t.Fatalf("expected chat:receive, got %s", ev.Type)
	}
	var got model.ChatReceivePayload
	if err := json.Unmarshal(ev.Payload, &got); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if got.Sender != "u2" || got.Content != "hello" || !got.Timestamp.Equal(ts) {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.Gig == nil || got.Gig.Title != "Logo design" {
		t.Errorf("gig context lost: %+v", got.Gig)
	}
}

func TestDeliverDropsWhenSessionSlow(t *testing.T) {
	s := testSession("u1")
	for i := 0; i < sendBuffer; i++ {
		s.send <- []byte("{}")
	}

	// Buffer full and nothing draining: deliver must not block.
	done := make(chan struct{})
	go func() {
		s.deliver(&model.ChatReceivePayload{Sender: "u2", Content: "dropped"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliver blocked on a slow session")
	}
	if len(s.send) != sendBuffer {
		t.Errorf("expected buffer unchanged at %d, got %d", sendBuffer, len(s.send))
	}
}

func TestEncodeEvent(t *testing.T) {
	data, err := encodeEvent(model.EventError, &model.ErrorPayload{Message: "boom"})
	if err != nil {
		t.Fatalf("encodeEvent failed: %v", err)
	}

	var ev model.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	if ev.Type != model.EventError {
		t.Errorf("wrong type: %s", ev.Type)
	}
	var payload model.ErrorPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if payload.Message != "boom" {
		t.Errorf("wrong message: %q", payload.Message)
	}
}
