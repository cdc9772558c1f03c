package db

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type NewMongoClientParams struct {
	URI            string
	AppName        string
	ConnectTimeout time.Duration
}

// NewMongoClient connects and pings the primary. The client is process wide,
// callers own its Disconnect.
func NewMongoClient(ctx context.Context, params NewMongoClientParams) (*mongo.Client, error) {
	if params.ConnectTimeout == 0 {
		params.ConnectTimeout = 10 * time.Second
	}

	clientOpts := options.Client().
		ApplyURI(params.URI).
		SetAppName(params.AppName).
		SetConnectTimeout(params.ConnectTimeout)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, params.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		if discErr := client.Disconnect(context.Background()); discErr != nil {
			log.Warnf("mongo disconnect after failed ping: %s", discErr)
		}
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return client, nil
}
