package persistence

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Supported driver names for Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

const defaultMongoDatabase = "cnw"

// OpenOptions carries the settings Open needs beyond the driver and DSN.
type OpenOptions struct {
	// Passphrase encrypts the file driver's state when set.
	Passphrase string
}

// Open builds a Provider by driver name. For file and sqlite the DSN is a
// directory; for the database drivers it is a connection URL. Connections
// opened here are released by the returned provider's Close.
func Open(ctx context.Context, driver, dsn string, o OpenOptions) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverMemory:
		return NewMemoryProvider(), nil
	case DriverFile, "":
		var opts []FileOption
		if o.Passphrase != "" {
			opts = append(opts, WithPassphrase(o.Passphrase))
		}
		return NewFileProvider(dsn, opts...)
	case DriverSQLite:
		return NewSQLiteProvider(ctx, dsn)
	case DriverPostgres:
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		p, err := NewPostgresProvider(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &owned{Provider: p, release: func(context.Context) error { pool.Close(); return nil }}, nil
	case DriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(dsn))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		p, err := NewMongoProvider(ctx, client.Database(mongoDatabaseName(dsn)))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &owned{Provider: p, release: client.Disconnect}, nil
	case DriverRedis:
		client, err := ConnectRedis(dsn)
		if err != nil {
			return nil, err
		}
		return &owned{Provider: NewRedisProvider(client), release: func(context.Context) error { return client.Close() }}, nil
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", driver)
	}
}

// mongoDatabaseName takes the database from the URI path, e.g.
// mongodb://host/licensing → "licensing".
func mongoDatabaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

// owned closes the connection Open created along with the provider.
type owned struct {
	Provider
	release func(context.Context) error
}

func (o *owned) Close(ctx context.Context) error {
	return errors.Join(o.Provider.Close(ctx), o.release(ctx))
}
