// Package model defines data structures for the marketplace chat service.
package model

import (
	"time"
)

// GigRef links a message to the marketplace gig it was sent about.
// Only the ID is persisted; Title is resolved from the catalog on read.
type GigRef struct {
	ID    string `bson:"id" json:"id"`
	Title string `bson:"-" json:"title,omitempty"`
}

// Message is a point-to-point chat message. Messages are immutable once
// stored; there is no edit, delete or read-marker state.
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	Sender    string    `bson:"sender" json:"sender"`
	Receiver  string    `bson:"receiver" json:"receiver"`
	Content   string    `bson:"content" json:"content"`
	Gig       *GigRef   `bson:"gig,omitempty" json:"gig,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// SendMessageRequest is the body of POST /api/messages. Receiver and
// Content are mandatory; Gig is set when the message is sent from a
// gig-contextual action ("Contact Seller").
type SendMessageRequest struct {
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
	Gig      string `json:"gig,omitempty"`
}

// UserRef is a resolved identity reference.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// OrderStatus mirrors the marketplace order lifecycle. The chat service
// only reads orders, for buyer/seller labeling.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderActive    OrderStatus = "active"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is a read-only view of a marketplace order between two users.
type Order struct {
	ID        string      `bson:"_id" json:"id"`
	BuyerID   string      `bson:"buyerId" json:"buyerId"`
	SellerID  string      `bson:"sellerId" json:"sellerId"`
	GigID     string      `bson:"gigId" json:"gigId"`
	Status    OrderStatus `bson:"status" json:"status"`
	CreatedAt time.Time   `bson:"createdAt" json:"createdAt"`
}
