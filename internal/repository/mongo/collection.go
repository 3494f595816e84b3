package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/expense-auth/internal/apperror"
)

// CollectionName is the collection holding user documents.
const CollectionName = "users"

// Config holds the connection settings.
type Config struct {
	URL            string
	Database       string
	ConnectTimeout time.Duration
}

// New connects, verifies the server answers, and creates the indexes.
func New(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URL).
		SetConnectTimeout(timeout).
		SetRetryWrites(true).
		SetRetryReads(true))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging server: %w", err)
	}

	coll := &mongoCollection{coll: client.Database(cfg.Database).Collection(CollectionName)}
	if err := coll.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s := newStore(coll)
	s.closer = client.Disconnect
	return s, nil
}

// mongoCollection adapts *mongo.Collection to the documents interface and
// translates driver errors into the apperror taxonomy.
type mongoCollection struct {
	coll *mongo.Collection
}

// ensureIndexes creates the unique indexes. googleId and userIdHash are
// sparse: password-only accounts have no googleId and legacy documents
// have no userIdHash.
func (c *mongoCollection) ensureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: fieldEmail, Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: fieldGoogleID, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: fieldIDHash, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: creating indexes: %w", err)
	}
	return nil
}

func (c *mongoCollection) findOne(ctx context.Context, field string, value any) (*userDocument, error) {
	var doc userDocument
	err := c.coll.FindOne(ctx, bson.D{{Key: field, Value: value}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", fmt.Sprintf("%s %v", field, value))
		}
		return nil, apperror.Unavailable("mongo: finding user by "+field, err)
	}
	return &doc, nil
}

func (c *mongoCollection) insert(ctx context.Context, doc *userDocument) error {
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		return translateWrite("mongo: inserting user", err)
	}
	return nil
}

func (c *mongoCollection) stampIDHash(ctx context.Context, id bson.ObjectID, hash int64) error {
	filter := bson.D{
		{Key: fieldID, Value: id},
		{Key: fieldIDHash, Value: bson.D{{Key: "$exists", Value: false}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: fieldIDHash, Value: hash}}}}

	// MatchedCount == 0 means another request stamped it first; the caller
	// re-reads and picks up that value.
	if _, err := c.coll.UpdateOne(ctx, filter, update); err != nil {
		return translateWrite("mongo: stamping userIdHash", err)
	}
	return nil
}

func (c *mongoCollection) update(ctx context.Context, hash int64, fields map[string]any) (*userDocument, error) {
	set := bson.D{}
	for k, v := range fields {
		set = append(set, bson.E{Key: k, Value: v})
	}

	var doc userDocument
	err := c.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: fieldIDHash, Value: hash}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", fmt.Sprintf("%s %d", fieldIDHash, hash))
		}
		return nil, translateWrite("mongo: updating user", err)
	}
	return &doc, nil
}

func (c *mongoCollection) ping(ctx context.Context) error {
	if err := c.coll.Database().Client().Ping(ctx, nil); err != nil {
		return apperror.Unavailable("mongo: ping", err)
	}
	return nil
}

// translateWrite maps a duplicate-key error to the key that collided.
//
// The index is read from the "index: <name>" token of the server message.
// The rest of the message echoes the duplicated value, which is user input.
func translateWrite(op string, err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return apperror.Unavailable(op, err)
	}
	switch duplicateIndex(err.Error()) {
	case fieldIDHash + "_1":
		return errHashCollision
	case fieldGoogleID + "_1":
		return apperror.DuplicateAccount("google id")
	default:
		return apperror.DuplicateAccount("email")
	}
}

// duplicateIndex extracts the index name from an E11000 message, or "".
func duplicateIndex(msg string) string {
	_, rest, ok := strings.Cut(msg, "index: ")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, " ")
	return name
}
