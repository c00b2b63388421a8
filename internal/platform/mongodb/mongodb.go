// Package mongodb opens and health-checks the MongoDB connection.
package mongodb

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/elalerce/records/internal/platform/envelope"
)

// Options configures Connect.
type Options struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	AppName        string
}

// ClientOptions builds driver options from opts and validates the URI.
func ClientOptions(opts Options) (*options.ClientOptions, error) {
	co := options.Client().ApplyURI(opts.URI)
	if opts.ConnectTimeout > 0 {
		co.SetConnectTimeout(opts.ConnectTimeout)
		co.SetServerSelectionTimeout(opts.ConnectTimeout)
	}
	if opts.AppName != "" {
		co.SetAppName(opts.AppName)
	}
	if err := co.Validate(); err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}
	return co, nil
}

// Connect opens a client and pings the primary. The returned database is
// opts.Database on that client.
func Connect(ctx context.Context, opts Options) (*mongo.Client, *mongo.Database, error) {
	co, err := ClientOptions(opts)
	if err != nil {
		return nil, nil, err
	}
	client, err := mongo.Connect(ctx, co)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(opts.Database), nil
}

// Health is the body of the Mongo health check.
type Health struct {
	Driver   string `json:"driver"`
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthHandler pings the primary and answers 503 when it is unreachable.
func HealthHandler(db *mongo.Database) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		if err := db.Client().Ping(ctx, readpref.Primary()); err != nil {
			return &envelope.Error{Status: http.StatusServiceUnavailable, Message: "store unreachable", Err: err}
		}
		return envelope.JSON(c, http.StatusOK, Health{Driver: "mongo", Status: "healthy", Database: db.Name()})
	}
}
