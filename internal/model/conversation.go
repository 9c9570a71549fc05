package model

import (
	"time"
)

// LastMessage is the most recent message of a conversation, as shown in
// the inbox.
type LastMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a derived view over the message store: one row per
// counterpart the viewer has exchanged messages with. Conversations are
// recomputed on every inbox fetch and never persisted.
//
// ReceivedCount is the total number of messages the viewer has received
// from this counterpart. There is no read-marker state, so it is not an
// unread count.
type Conversation struct {
	Counterpart   UserRef      `json:"counterpart"`
	LastMessage   *LastMessage `json:"lastMessage"`
	ReceivedCount int          `json:"receivedCount"`
}

// Thread is the full view of one chat thread: ordered history, the
// counterpart's identity, the current gig banner and role labels.
type Thread struct {
	Counterpart     UserRef   `json:"counterpart"`
	Messages        []Message `json:"messages"`
	GigBanner       *GigRef   `json:"gigBanner,omitempty"`
	ViewerRole      string    `json:"viewerRole"`
	CounterpartRole string    `json:"counterpartRole"`
}

// Role labels for thread participants. Derived from the most recent order
// between the two users; cosmetic only.
const (
	RoleBuyer  = "Buyer"
	RoleSeller = "Seller"
	RoleUser   = "User"
)
