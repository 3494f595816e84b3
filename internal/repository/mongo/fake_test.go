package mongo

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sakif/expense-auth/internal/apperror"
)

// fakeDocuments is an in-memory documents implementation that enforces the
// same unique indexes as ensureIndexes.
type fakeDocuments struct {
	mu      sync.Mutex
	docs    map[bson.ObjectID]userDocument
	stamps  int
	pingErr error
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{docs: make(map[bson.ObjectID]userDocument)}
}

// seed stores doc as is, bypassing uniqueness checks. Used for legacy data.
func (f *fakeDocuments) seed(doc userDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
}

func (f *fakeDocuments) findOne(_ context.Context, field string, value any) (*userDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if matches(d, field, value) {
			cp := d
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", fmt.Sprintf("%s %v", field, value))
}

func (f *fakeDocuments) insert(_ context.Context, doc *userDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		switch {
		case d.UserIDHash != 0 && d.UserIDHash == doc.UserIDHash:
			return errHashCollision
		case d.Email == doc.Email:
			return apperror.DuplicateAccount("email")
		case doc.GoogleID != "" && d.GoogleID == doc.GoogleID:
			return apperror.DuplicateAccount("google id")
		}
	}
	f.docs[doc.ID] = *doc
	return nil
}

func (f *fakeDocuments) stampIDHash(_ context.Context, id bson.ObjectID, hash int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.UserIDHash == hash {
			return errHashCollision
		}
	}
	d, ok := f.docs[id]
	if !ok || d.UserIDHash != 0 {
		return nil
	}
	d.UserIDHash = hash
	f.docs[id] = d
	f.stamps++
	return nil
}

func (f *fakeDocuments) update(_ context.Context, hash int64, fields map[string]any) (*userDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, d := range f.docs {
		if d.UserIDHash != hash {
			continue
		}
		for k, v := range fields {
			switch k {
			case fieldName:
				d.Name = v.(string)
			case fieldAvatar:
				d.AvatarURL = v.(string)
			case fieldGoogleID:
				d.GoogleID = v.(string)
			case fieldPassword:
				d.PasswordHash = v.(string)
			}
		}
		f.docs[id] = d
		cp := d
		return &cp, nil
	}
	return nil, apperror.NotFound("user", fmt.Sprintf("%s %d", fieldIDHash, hash))
}

func (f *fakeDocuments) ping(context.Context) error { return f.pingErr }

func matches(d userDocument, field string, value any) bool {
	switch field {
	case fieldID:
		return d.ID == value.(bson.ObjectID)
	case fieldEmail:
		return d.Email == value.(string)
	case fieldGoogleID:
		return d.GoogleID != "" && d.GoogleID == value.(string)
	case fieldIDHash:
		return d.UserIDHash != 0 && d.UserIDHash == value.(int64)
	}
	return false
}
