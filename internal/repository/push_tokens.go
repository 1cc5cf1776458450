package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/peteat123/Peteat-sub001/internal/domain"
)

// PushTokenRepo stores device tokens keyed by token value, so a device that
// registers again (possibly under another user) never creates a duplicate.
type PushTokenRepo struct {
	col *mongo.Collection
}

func NewPushTokenRepo(ctx context.Context, db *mongo.Database) (*PushTokenRepo, error) {
	r := &PushTokenRepo{col: db.Collection("push_tokens")}
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PushTokenRepo) Upsert(ctx context.Context, userID, token, platform string) (*domain.PushToken, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"user_id": userID, "platform": platform, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var t domain.PushToken
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": token}, update, opts).Decode(&t)
	if mongo.IsDuplicateKeyError(err) {
		err = r.col.FindOneAndUpdate(ctx, bson.M{"_id": token}, update, opts).Decode(&t)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ForUsers returns every token owned by any of userIDs.
func (r *PushTokenRepo) ForUsers(ctx context.Context, userIDs []string) ([]domain.PushToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"user_id": bson.M{"$in": userIDs}})
}

// AllExcept returns every known token not owned by userID.
func (r *PushTokenRepo) AllExcept(ctx context.Context, userID string) ([]domain.PushToken, error) {
	return r.find(ctx, bson.M{"user_id": bson.M{"$ne": userID}})
}

func (r *PushTokenRepo) find(ctx context.Context, filter bson.M) ([]domain.PushToken, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.PushToken
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes token. ownerID, when set, restricts removal to that owner.
func (r *PushTokenRepo) Delete(ctx context.Context, token, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	filter := bson.M{"_id": token}
	if ownerID != "" {
		filter["user_id"] = ownerID
	}
	res, err := r.col.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
