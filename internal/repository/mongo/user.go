// Package mongo implements repository.UserRepository on a MongoDB
// collection.
//
// IDENTITY ON A DOCUMENT STORE:
// Documents are keyed by an ObjectID, but tokens and resource services
// expect an integer user id. Every document therefore carries a synthetic
// integer, userIdHash, generated when the document is created:
//
//	userIdHash = unix milliseconds + random offset in [0, 1000)
//
// FindByID looks users up by userIdHash, never by _id. The ObjectID hex
// string becomes the user's CorrelationID, which is what resource services
// scope their own records by.
//
// LEGACY DOCUMENTS:
// Accounts created before userIdHash existed lack the field. FindByEmail
// and FindByGoogleID stamp one on the fly, persist it, and re-read the
// document. The stamp only applies while the field is still absent, so
// two requests migrating the same document at once both end up with the
// first writer's value. There is no rollback.
package mongo

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/model"
	"github.com/sakif/expense-auth/internal/repository"
)

var _ repository.UserRepository = (*Store)(nil)

// Field names stored in the users collection.
const (
	fieldID         = "_id"
	fieldEmail      = "email"
	fieldGoogleID   = "googleId"
	fieldIDHash     = "userIdHash"
	fieldName       = "name"
	fieldAvatar     = "avatarUrl"
	fieldPassword   = "passwordHash"
	fieldUpdatedAt  = "updatedAt"
	maxHashAttempts = 3
)

// userDocument is the stored shape of a user.
type userDocument struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	UserIDHash   int64         `bson:"userIdHash,omitempty"`
	Email        string        `bson:"email"`
	Name         string        `bson:"name"`
	PasswordHash string        `bson:"passwordHash,omitempty"`
	GoogleID     string        `bson:"googleId,omitempty"`
	AvatarURL    string        `bson:"avatarUrl,omitempty"`
	CreatedAt    time.Time     `bson:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt"`
}

// errHashCollision means a generated userIdHash is already taken.
var errHashCollision = errors.New("mongo: userIdHash collision")

// documents is the collection surface the store needs. mongoCollection
// implements it on a real *mongo.Collection; tests use an in-memory fake.
type documents interface {
	findOne(ctx context.Context, field string, value any) (*userDocument, error)
	insert(ctx context.Context, doc *userDocument) error
	// stampIDHash sets userIdHash on the document only if it has none yet.
	stampIDHash(ctx context.Context, id bson.ObjectID, hash int64) error
	// update sets fields on the document with userIdHash == hash and
	// returns it after the change.
	update(ctx context.Context, hash int64, fields map[string]any) (*userDocument, error)
	ping(ctx context.Context) error
}

// Store is the document-backed user store.
type Store struct {
	docs    documents
	closer  func(context.Context) error
	now     func() time.Time
	newHash func() int64
}

func newStore(docs documents) *Store {
	s := &Store{
		docs:   docs,
		closer: func(context.Context) error { return nil },
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.newHash = func() int64 { return s.now().UnixMilli() + rand.Int64N(1000) }
	return s
}

// FindByEmail returns the user with email, migrating a legacy document.
func (s *Store) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	doc, err := s.docs.findOne(ctx, fieldEmail, email)
	if err != nil {
		return nil, err
	}
	return s.ensureIDHash(ctx, doc)
}

// FindByGoogleID returns the user linked to googleID, migrating a legacy
// document.
func (s *Store) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	doc, err := s.docs.findOne(ctx, fieldGoogleID, googleID)
	if err != nil {
		return nil, err
	}
	return s.ensureIDHash(ctx, doc)
}

// FindByID returns the user whose userIdHash equals id.
func (s *Store) FindByID(ctx context.Context, id int64) (*model.User, error) {
	doc, err := s.docs.findOne(ctx, fieldIDHash, id)
	if err != nil {
		return nil, err
	}
	return toUser(doc), nil
}

// Create inserts a new document with a fresh ObjectID and userIdHash.
func (s *Store) Create(ctx context.Context, u *model.User) error {
	now := s.now()
	doc := &userDocument{
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		GoogleID:     u.GoogleID,
		AvatarURL:    u.AvatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var err error
	for range maxHashAttempts {
		doc.ID = bson.NewObjectID()
		doc.UserIDHash = s.newHash()
		if err = s.docs.insert(ctx, doc); !errors.Is(err, errHashCollision) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, errHashCollision) {
			return apperror.Unavailable("mongo: generating user id", err)
		}
		return err
	}

	*u = *toUser(doc)
	return nil
}

// Update sets the non-nil patch fields on the user with userIdHash == id.
func (s *Store) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	if patch.IsEmpty() {
		return s.FindByID(ctx, id)
	}

	fields := map[string]any{fieldUpdatedAt: s.now()}
	if patch.Name != nil {
		fields[fieldName] = *patch.Name
	}
	if patch.AvatarURL != nil {
		fields[fieldAvatar] = *patch.AvatarURL
	}
	if patch.GoogleID != nil {
		fields[fieldGoogleID] = *patch.GoogleID
	}
	if patch.PasswordHash != nil {
		fields[fieldPassword] = *patch.PasswordHash
	}

	doc, err := s.docs.update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	return toUser(doc), nil
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.docs.ping(ctx)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.closer(ctx)
}

// ensureIDHash stamps a userIdHash on a legacy document, then re-reads it
// so the caller sees whichever value won.
func (s *Store) ensureIDHash(ctx context.Context, doc *userDocument) (*model.User, error) {
	if doc.UserIDHash != 0 {
		return toUser(doc), nil
	}

	var err error
	for range maxHashAttempts {
		if err = s.docs.stampIDHash(ctx, doc.ID, s.newHash()); !errors.Is(err, errHashCollision) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, errHashCollision) {
			return nil, apperror.Unavailable("mongo: generating user id", err)
		}
		return nil, err
	}

	fresh, err := s.docs.findOne(ctx, fieldID, doc.ID)
	if err != nil {
		return nil, err
	}
	if fresh.UserIDHash == 0 {
		return nil, apperror.Unavailable("mongo: stamping userIdHash", errors.New("field still missing after update"))
	}
	return toUser(fresh), nil
}

func toUser(doc *userDocument) *model.User {
	return &model.User{
		ID:            doc.UserIDHash,
		Email:         doc.Email,
		Name:          doc.Name,
		PasswordHash:  doc.PasswordHash,
		GoogleID:      doc.GoogleID,
		AvatarURL:     doc.AvatarURL,
		CorrelationID: doc.ID.Hex(),
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}
