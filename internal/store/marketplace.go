package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/model"
)

// ErrNotFound is returned when a referenced identity, gig or order does
// not exist. Deleted users leave dangling references in old messages, so
// callers treat this as a tombstone, not a failure.
var ErrNotFound = errors.New("not found")

const (
	userCollection  = "users"
	gigCollection   = "services"
	orderCollection = "orders"
)

// UserDirectory resolves identity references against the marketplace
// users collection. Read-only.
type UserDirectory struct {
	db *mongo.Database
}

// NewUserDirectory creates a new UserDirectory.
func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{db: db}
}

// DisplayName returns the username for a user ID.
func (d *UserDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	var doc struct {
		Username string `bson:"username"`
	}
	err := d.db.Collection(userCollection).
		FindOne(ctx, bson.M{"_id": userID}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	return doc.Username, nil
}

// GigCatalog resolves gig references against the marketplace services
// collection. Read-only.
type GigCatalog struct {
	db *mongo.Database
}

// NewGigCatalog creates a new GigCatalog.
func NewGigCatalog(db *mongo.Database) *GigCatalog {
	return &GigCatalog{db: db}
}

// Title returns the title for a gig ID.
func (c *GigCatalog) Title(ctx context.Context, gigID string) (string, error) {
	var doc struct {
		Title string `bson:"title"`
	}
	err := c.db.Collection(gigCollection).
		FindOne(ctx, bson.M{"_id": gigID}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up gig: %w", err)
	}
	return doc.Title, nil
}

// OrderDirectory resolves buyer/seller relationships against the
// marketplace orders collection. Read-only.
type OrderDirectory struct {
	db *mongo.Database
}

// NewOrderDirectory creates a new OrderDirectory.
func NewOrderDirectory(db *mongo.Database) *OrderDirectory {
	return &OrderDirectory{db: db}
}

// LatestBetween returns the most recent order connecting two users in
// either buyer/seller arrangement, or ErrNotFound when none exists.
func (d *OrderDirectory) LatestBetween(ctx context.Context, userA, userB string) (*model.Order, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"buyerId": userA, "sellerId": userB},
			bson.M{"buyerId": userB, "sellerId": userA},
		},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var order model.Order
	err := d.db.Collection(orderCollection).FindOne(ctx, filter, opts).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}
	return &order, nil
}
