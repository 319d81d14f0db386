package dbclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"textingest/internal/domain"
	"textingest/internal/etl"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// mongoConnector implements Connector for MongoDB.
type mongoConnector struct {
	client *mongo.Client
	dbName string
	logger *zap.Logger
}

func newMongoConnector(conn domain.RepositoryConnection, logger *zap.Logger) (*mongoConnector, error) {
	uri := strings.TrimSpace(conn.URI)
	if uri == "" {
		return nil, errors.New("mongodb: connection URI is empty (set MONGODB_URI)")
	}
	if !strings.HasPrefix(uri, "mongodb://") && !strings.HasPrefix(uri, "mongodb+srv://") {
		return nil, fmt.Errorf("mongodb: URI must start with mongodb:// or mongodb+srv://, got %q", redactURI(uri))
	}
	dbName := conn.Database
	if dbName == "" {
		dbName = "mydb"
	}

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	logger.Info("mongodb connected", zap.String("uri", redactURI(uri)), zap.String("database", dbName))
	return &mongoConnector{client: client, dbName: dbName, logger: logger}, nil
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

// Insert stores doc as a single BSON document with fields in schema order.
func (m *mongoConnector) Insert(ctx context.Context, collection string, doc etl.Document) error {
	if collection == "" {
		return fmt.Errorf("%w: empty collection name", etl.ErrSinkRejected)
	}
	coll := m.client.Database(m.dbName).Collection(collection)
	if _, err := coll.InsertOne(ctx, toBSON(doc)); err != nil {
		return classifyMongoError(err)
	}
	return nil
}

func (m *mongoConnector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.client.Disconnect(ctx); err != nil {
		m.logger.Warn("mongodb disconnect", zap.Error(err))
		return err
	}
	m.logger.Info("mongodb disconnected", zap.String("database", m.dbName))
	return nil
}

func toBSON(doc etl.Document) bson.D {
	d := make(bson.D, 0, len(doc))
	for _, f := range doc {
		d = append(d, bson.E{Key: f.Key, Value: f.Value})
	}
	return d
}

func classifyMongoError(err error) error {
	switch {
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, mongo.ErrClientDisconnected),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", etl.ErrSinkConnection, err)
	default:
		return fmt.Errorf("%w: %v", etl.ErrSinkRejected, err)
	}
}

// redactURI hides credentials in a connection string for error messages.
func redactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
