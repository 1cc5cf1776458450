package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/peteat123/Peteat-sub001/internal/domain"
)

// BookingRepo reads bookings owned by the booking service.
type BookingRepo struct {
	col *mongo.Collection
}

func NewBookingRepo(ctx context.Context, db *mongo.Database) (*BookingRepo, error) {
	r := &BookingRepo{col: db.Collection("bookings")}
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_at", Value: 1}},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Upcoming returns bookings scheduled in [from, to] whose status is one of statuses.
func (r *BookingRepo) Upcoming(ctx context.Context, from, to time.Time, statuses []string) ([]domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	filter := bson.M{
		"scheduled_at": bson.M{"$gte": from.UTC(), "$lte": to.UTC()},
		"status":       bson.M{"$in": statuses},
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.Booking
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
