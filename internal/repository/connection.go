package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultMongoPoolMax        = 50
	defaultMongoPoolMin        = 5
	defaultMongoConnectTimeout = 10 * time.Second
)

type MongoOptions struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
}

func (o MongoOptions) withDefaults() MongoOptions {
	if o.MaxPoolSize == 0 {
		o.MaxPoolSize = defaultMongoPoolMax
	}
	if o.MinPoolSize == 0 || o.MinPoolSize > o.MaxPoolSize {
		o.MinPoolSize = min(defaultMongoPoolMin, o.MaxPoolSize)
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultMongoConnectTimeout
	}
	return o
}

func (o MongoOptions) clientOptions() *options.ClientOptions {
	return options.Client().
		ApplyURI(o.URI).
		SetAppName("photopixel-carts").
		SetConnectTimeout(o.ConnectTimeout).
		SetServerSelectionTimeout(o.ConnectTimeout / 2).
		SetMaxPoolSize(o.MaxPoolSize).
		SetMinPoolSize(o.MinPoolSize)
}

// MongoConnection owns the client behind the cart collection.
type MongoConnection struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectMongoDB dials and pings the primary; a failed ping disconnects again.
func ConnectMongoDB(ctx context.Context, opts MongoOptions) (*MongoConnection, error) {
	if opts.URI == "" || opts.Database == "" {
		return nil, errors.New("mongo uri and database are required")
	}
	opts = opts.withDefaults()

	client, err := mongo.Connect(ctx, opts.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	conn := &MongoConnection{client: client, db: client.Database(opts.Database)}
	if err := conn.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return conn, nil
}

func (c *MongoConnection) Database() *mongo.Database {
	return c.db
}

func (c *MongoConnection) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}

func (c *MongoConnection) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
