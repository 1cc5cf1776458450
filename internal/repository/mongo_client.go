package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("not found")

const (
	opTimeout    = 3 * time.Second
	queryTimeout = 5 * time.Second
)

func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// Stores bundles every collection the service touches.
type Stores struct {
	Messages      *MessageRepo
	Conversations *ConversationRepo
	PushTokens    *PushTokenRepo
	Notifications *NotificationRepo
	Bookings      *BookingRepo
}

func NewStores(ctx context.Context, db *mongo.Database) (*Stores, error) {
	msgs, err := NewMessageRepo(ctx, db)
	if err != nil {
		return nil, err
	}
	convs, err := NewConversationRepo(ctx, db)
	if err != nil {
		return nil, err
	}
	toks, err := NewPushTokenRepo(ctx, db)
	if err != nil {
		return nil, err
	}
	notifs, err := NewNotificationRepo(ctx, db)
	if err != nil {
		return nil, err
	}
	books, err := NewBookingRepo(ctx, db)
	if err != nil {
		return nil, err
	}
	return &Stores{
		Messages:      msgs,
		Conversations: convs,
		PushTokens:    toks,
		Notifications: notifs,
		Bookings:      books,
	}, nil
}
