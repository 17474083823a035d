package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	// URI is the connection string.
	URI string

	// Database is the database name.
	// Default: "warden"
	Database string

	// PolicyCollection holds one document per group.
	// Default: "fsub_settings"
	PolicyCollection string

	// UserCollection holds registered users.
	// Default: "users"
	UserCollection string

	// ConnectTimeout bounds the initial connect and ping.
	// Default: 10 seconds
	ConnectTimeout time.Duration
}

func (c *MongoConfig) applyDefaults() {
	if c.Database == "" {
		c.Database = "warden"
	}
	if c.PolicyCollection == "" {
		c.PolicyCollection = "fsub_settings"
	}
	if c.UserCollection == "" {
		c.UserCollection = "users"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// policyDocument is the stored document. required_channel is the single
// channel field older deployments wrote; it is still populated with the
// first channel and read when channels is absent.
type policyDocument struct {
	GroupID         int64            `bson:"group_id"`
	RequiredChannel string           `bson:"required_channel,omitempty"`
	Channels        []string         `bson:"channels,omitempty"`
	ChannelIDs      map[string]int64 `bson:"channel_ids,omitempty"`
	MuteSeconds     int64            `bson:"mute_seconds,omitempty"`
	UpdatedBy       int64            `bson:"updated_by,omitempty"`
	CreatedAt       time.Time        `bson:"created_at,omitempty"`
	UpdatedAt       time.Time        `bson:"updated_at,omitempty"`
}

type userDocument struct {
	UserID       int64     `bson:"user_id"`
	RegisteredAt time.Time `bson:"registered_at"`
}

// MongoBackend implements Backend on MongoDB.
type MongoBackend struct {
	client   *mongo.Client
	policies *mongo.Collection
	users    *mongo.Collection
	logger   *slog.Logger
}

// NewMongoBackend connects, pings and ensures the unique indexes exist.
func NewMongoBackend(ctx context.Context, cfg MongoConfig) (*MongoBackend, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri cannot be empty")
	}
	cfg.applyDefaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, newStorageError("mongo", "connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, newStorageError("mongo", "ping", err)
	}

	db := client.Database(cfg.Database)
	b := &MongoBackend{
		client:   client,
		policies: db.Collection(cfg.PolicyCollection),
		users:    db.Collection(cfg.UserCollection),
		logger:   slog.Default().With("component", "store.mongo"),
	}

	if err := b.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	b.logger.Info("mongo store connected",
		"database", cfg.Database,
		"policy_collection", cfg.PolicyCollection,
	)
	return b, nil
}

func (b *MongoBackend) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	if _, err := b.policies.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "group_id", Value: 1}},
		Options: unique,
	}); err != nil {
		return newStorageError("mongo", "create_policy_index", err)
	}
	if _, err := b.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: unique,
	}); err != nil {
		return newStorageError("mongo", "create_user_index", err)
	}
	return nil
}

func (b *MongoBackend) GetPolicy(ctx context.Context, groupID int64) (*GroupPolicy, error) {
	var doc policyDocument
	err := b.policies.FindOne(ctx, bson.M{"group_id": groupID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("mongo", "get_policy", err)
	}

	items := doc.Channels
	if len(items) == 0 && doc.RequiredChannel != "" {
		items = []string{doc.RequiredChannel}
	}
	refs, err := decodeChannels(items)
	if err != nil {
		return nil, newStorageError("mongo", "decode_channels", err)
	}

	return &GroupPolicy{
		GroupID:      doc.GroupID,
		Channels:     refs,
		ChannelIDs:   doc.ChannelIDs,
		MuteDuration: time.Duration(doc.MuteSeconds) * time.Second,
		UpdatedBy:    doc.UpdatedBy,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

func (b *MongoBackend) SetPolicy(ctx context.Context, policy *GroupPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	rec := encodePolicy(policy)
	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"required_channel": rec.Channels[0],
			"channels":         rec.Channels,
			"channel_ids":      rec.ChannelIDs,
			"mute_seconds":     int64(policy.MuteDuration / time.Second),
			"updated_by":       policy.UpdatedBy,
			"updated_at":       now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"created_at": 1})

	var doc policyDocument
	err := b.policies.FindOneAndUpdate(ctx, bson.M{"group_id": policy.GroupID}, update, opts).Decode(&doc)
	if err != nil {
		return newStorageError("mongo", "set_policy", err)
	}

	policy.CreatedAt = doc.CreatedAt
	policy.UpdatedAt = now
	return nil
}

func (b *MongoBackend) DeletePolicy(ctx context.Context, groupID int64) (bool, error) {
	res, err := b.policies.DeleteOne(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return false, newStorageError("mongo", "delete_policy", err)
	}
	return res.DeletedCount > 0, nil
}

func (b *MongoBackend) ListGroups(ctx context.Context) ([]int64, error) {
	opts := options.Find().
		SetProjection(bson.M{"group_id": 1}).
		SetSort(bson.D{{Key: "group_id", Value: 1}})

	cur, err := b.policies.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, newStorageError("mongo", "list_groups", err)
	}
	var docs []policyDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, newStorageError("mongo", "list_groups", err)
	}

	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.GroupID)
	}
	return ids, nil
}

func (b *MongoBackend) RegisterUser(ctx context.Context, userID int64) error {
	_, err := b.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": userDocument{UserID: userID, RegisteredAt: time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return newStorageError("mongo", "register_user", err)
	}
	return nil
}

func (b *MongoBackend) ListUsers(ctx context.Context) ([]int64, error) {
	opts := options.Find().
		SetProjection(bson.M{"user_id": 1}).
		SetSort(bson.D{{Key: "user_id", Value: 1}})

	cur, err := b.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, newStorageError("mongo", "list_users", err)
	}
	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, newStorageError("mongo", "list_users", err)
	}

	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.UserID)
	}
	return ids, nil
}

func (b *MongoBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx, readpref.Primary())
}

func (b *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}
