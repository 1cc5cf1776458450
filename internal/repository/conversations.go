package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/peteat123/Peteat-sub001/internal/domain"
)

// ConversationRepo keeps one summary document per unordered participant
// pair. The canonical pair key is the document _id.
type ConversationRepo struct {
	col *mongo.Collection
}

func NewConversationRepo(ctx context.Context, db *mongo.Database) (*ConversationRepo, error) {
	r := &ConversationRepo{col: db.Collection("conversations")}
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Upsert updates the summary for the pair (a, b) or creates it, in one
// find-and-modify call.
func (r *ConversationRepo) Upsert(ctx context.Context, a, b, preview, senderID string, at time.Time) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key, participants := domain.PairKey(a, b)
	update := bson.M{
		"$set": bson.M{
			"last_message_preview": preview,
			"last_sender_id":       senderID,
			"last_message_at":      at.UTC(),
		},
		"$setOnInsert": bson.M{
			"participants": participants,
			"created_at":   at.UTC(),
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var c domain.Conversation
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&c)
	if mongo.IsDuplicateKeyError(err) {
		// lost the insert race; the document exists now
		err = r.col.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&c)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListFor returns the user's conversations, most recent first.
func (r *ConversationRepo) ListFor(ctx context.Context, userID string, limit int64) ([]*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.col.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*domain.Conversation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
