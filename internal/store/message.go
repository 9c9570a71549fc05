package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/model"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/metrics"
)

const messageCollection = "messages"

// MessageStore handles database operations for chat messages.
type MessageStore struct {
	db *mongo.Database
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{db: db}
}

// Insert stores one immutable message.
func (s *MessageStore) Insert(ctx context.Context, msg *model.Message) error {
	start := time.Now()
	_, err := s.db.Collection(messageCollection).InsertOne(ctx, msg)
	metrics.StoreOpDuration.WithLabelValues("insert").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// Between returns messages exchanged between two users in ascending
// timestamp order. A non-zero before narrows the window to messages older
// than that instant; a positive limit returns only the limit most recent
// messages of that window, still ascending.
func (s *MessageStore) Between(ctx context.Context, userA, userB string, before time.Time, limit int64) ([]model.Message, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues("between").Observe(time.Since(start).Seconds())
	}()

	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender": userA, "receiver": userB},
			bson.M{"sender": userB, "receiver": userA},
		},
	}
	if !before.IsZero() {
		filter["timestamp"] = bson.M{"$lt": before}
	}

	// With a limit, take the newest N of the window and flip back to
	// reading order. Without one, a single ascending scan suffices.
	if limit > 0 {
		opts := options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}}).
			SetLimit(limit)
		messages, err := s.find(ctx, filter, opts)
		if err != nil {
			return nil, err
		}
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
		return messages, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	return s.find(ctx, filter, opts)
}

// ForUser returns every message the user sent or received, descending by
// timestamp. This is the input to conversation aggregation.
func (s *MessageStore) ForUser(ctx context.Context, userID string) ([]model.Message, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues("for_user").Observe(time.Since(start).Seconds())
	}()

	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender": userID},
			bson.M{"receiver": userID},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	return s.find(ctx, filter, opts)
}

func (s *MessageStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Message, error) {
	cursor, err := s.db.Collection(messageCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []model.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}
