package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/peteat123/Peteat-sub001/internal/domain"
)

type MessageRepo struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMessageRepo(ctx context.Context, db *mongo.Database) (*MessageRepo, error) {
	r := &MessageRepo{col: db.Collection("messages"), now: time.Now}
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "recipient_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "read", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Append validates and stores a new message.
func (r *MessageRepo) Append(ctx context.Context, sender, recipient, body string, attachments []string) (*domain.Message, error) {
	m, err := domain.NewMessage(sender, recipient, body, attachments, r.now())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := r.col.InsertOne(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// MarkRead flips read=true on the listed messages addressed to recipient.
// Unknown ids and ids of other users' messages are ignored.
func (r *MessageRepo) MarkRead(ctx context.Context, recipient string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.col.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "recipient_id": recipient, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// History returns messages exchanged between a and b in either direction,
// oldest first. A zero before means "up to now".
func (r *MessageRepo) History(ctx context.Context, a, b string, limit int64, before time.Time) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{"$or": []bson.M{
		{"sender_id": a, "recipient_id": b},
		{"sender_id": b, "recipient_id": a},
	}}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	// newest page first, then reversed so callers get ascending order
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		if m.Attachments == nil {
			m.Attachments = []string{}
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var m domain.Message
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
